// Package handlers provides the HTTP handlers of the contact-intake API.
//
// Every failure is answered with ErrorResponse. Its `error` text is safe to
// show to a visitor and `code` is one of the ErrCode constants in errors.go:
//
//	HTTP/1.1 400 Bad Request
//	{"request_id": "123e4567-e89b-12d3-a456-426614174000", "code": "bad_request", "error": "Missing required fields"}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-contact-intake/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by all endpoints.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"bad_request"`
	Error     string `json:"error" example:"Missing required fields"`
}

// fail aborts with the envelope. Server errors are logged on the request
// logger together with the last cause recorded via c.Error; the cause never
// reaches the response.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code)
		if last := c.Errors.Last(); last != nil {
			ev = ev.Err(last.Err)
		}
		ev.Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Error:     msg,
	})
}

// Fail exposes fail to the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
