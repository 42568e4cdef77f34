package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-contact-intake/internal/analytics"
)

// TrackEvent godoc
// @ID          trackEvent
// @Summary     Relay an analytics event
// @Description Forwards the event to the GA4 Measurement Protocol when GA_MEASUREMENT_ID and
// @Description GA_API_SECRET are configured; otherwise accepts and drops it.
// @Tags        Analytics
// @Accept      json
// @Produce     json
//
// @Param       body  body  analytics.Event  true  "Event"
//
// @Success     200  {object}  map[string]bool  "ok"
// @Failure     500  {object}  handlers.ErrorResponse  "failed"
// @Router      /analytics [post]
func (h *Handlers) TrackEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	var ev analytics.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeAnalyticsFailed, msgAnalyticsFailed)
		return
	}
	if h.events != nil {
		if err := h.events.Forward(c.Request.Context(), ev); err != nil {
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeAnalyticsFailed, msgAnalyticsFailed)
			return
		}
	}
	ok(c, http.StatusOK, gin.H{"ok": true})
}
