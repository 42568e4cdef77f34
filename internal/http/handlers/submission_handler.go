// Contact submission HTTP handlers.
//
// This file exposes the intake and retrieval endpoints:
//   - POST {base}/submit-contact and the single-purpose variants
//     (contact, contact-kv, contact-db, contact-resend, contact-unified)
//   - GET  {base}/submissions and GET on the store-backed variants
//
// Every POST route is the same handler bound to a different pipeline, so the
// status mapping below depends only on how many backends the pipeline has and
// what kind they are.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-contact-intake/internal/analytics"
	"github.com/tbourn/go-contact-intake/internal/delivery"
	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/http/middleware"
	"github.com/tbourn/go-contact-intake/internal/services"
	"github.com/tbourn/go-contact-intake/internal/utils"
)

// maxListLimit caps ?limit on retrieval routes.
const maxListLimit = 1000

// Intake runs the submission pipeline. *services.IntakeService implements it.
type Intake interface {
	Submit(ctx context.Context, p domain.PartialSubmission, clientKey string) (*services.Result, error)
}

// EventForwarder relays analytics events. *analytics.Relay implements it.
type EventForwarder interface {
	Forward(ctx context.Context, ev analytics.Event) error
}

// Options configures Handlers.
type Options struct {
	SchedulingURL string         // echoed as schedulingUrl on success when set
	MaxBodyBytes  int64          // intake body cap; <= 0 means 64 KiB
	Events        EventForwarder // optional; nil answers {ok:true} without forwarding
}

// Handlers groups the HTTP endpoints of the intake API.
type Handlers struct {
	schedulingURL string
	maxBody       int64
	events        EventForwarder
}

// New constructs Handlers from opts.
func New(opts Options) *Handlers {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	return &Handlers{
		schedulingURL: opts.SchedulingURL,
		maxBody:       opts.MaxBodyBytes,
		events:        opts.Events,
	}
}

//
// DTOs
//

// SubmitRequest documents the intake payload. Fields are read loosely:
// numbers and booleans are accepted as text, null counts as absent.
type SubmitRequest struct {
	Email     string `json:"email" example:"jane@example.com"`
	FirstName string `json:"firstName" example:"Jane"`
	LastName  string `json:"lastName,omitempty" example:"Doe"`
	Company   string `json:"company,omitempty" example:"Acme"`
	JobTitle  string `json:"jobTitle,omitempty" example:"CTO"`
	Country   string `json:"country,omitempty" example:"UK"`
	Phone     string `json:"phone,omitempty" example:"+44 20 7946 0000"`
	Message   string `json:"message" example:"We need two Go engineers."`
	Consent   bool   `json:"consent,omitempty" example:"true"`
}

// SubmitResponse documents a successful intake. Per-backend flags
// (emailSuccess, kvSuccess, dbSuccess, memorySuccess) are present only when
// the route fans out to more than one backend.
type SubmitResponse struct {
	OK            bool   `json:"ok" example:"true"`
	ID            string `json:"id" example:"submission:1735689600000:3f1c9a52-7a0e-4d43-9f0e-6a2f51b1c2de"`
	Message       string `json:"message" example:"Form submitted successfully"`
	KVSuccess     *bool  `json:"kvSuccess,omitempty" example:"true"`
	EmailSuccess  *bool  `json:"emailSuccess,omitempty" example:"false"`
	SchedulingURL string `json:"schedulingUrl,omitempty" example:"https://calendly.com/moducode/intro"`
}

// ListSubmissionsResponse wraps stored submissions, newest first. Error is
// set (with an empty list) when the route's store is not configured.
type ListSubmissionsResponse struct {
	Error       string              `json:"error,omitempty"`
	Submissions []domain.Submission `json:"submissions"`
	Count       int                 `json:"count"`
}

//
// Helpers
//

// clientKey returns the first X-Forwarded-For entry, trimmed, or "unknown".
func clientKey(c *gin.Context) string {
	xff := c.GetHeader("X-Forwarded-For")
	if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return domain.UnknownClient
}

// submitBody builds the success body for res.
func (h *Handlers) submitBody(res *services.Result) gin.H {
	body := gin.H{
		"ok":      true,
		"id":      res.Submission.ID,
		"message": msgSubmitted,
	}
	if len(res.Outcomes) > 1 {
		for _, o := range res.Outcomes {
			flag := delivery.FlagName(o.Backend, o.Kind)
			prev, _ := body[flag].(bool)
			body[flag] = prev || o.OK()
		}
	}
	if h.schedulingURL != "" {
		body["schedulingUrl"] = h.schedulingURL
	}
	return body
}

// deliveryFailure maps a fully failed fan-out to a status, code and message.
// Single-backend routes report what went wrong with that backend; routes with
// several backends answer with one generic message.
func deliveryFailure(outcomes []delivery.Outcome) (int, string, string) {
	if len(outcomes) != 1 {
		return http.StatusInternalServerError, ErrCodeDeliveryFailed, msgAllFailed
	}
	o := outcomes[0]
	if o.Kind == delivery.KindStore {
		return http.StatusInternalServerError, ErrCodeDeliveryFailed, msgStoreFailed
	}
	switch {
	case errors.Is(o.Err, delivery.ErrConfigurationMissing):
		return http.StatusInternalServerError, ErrCodeNotConfigured, msgMailNotConfigured
	case errors.Is(o.Err, delivery.ErrAuthentication):
		return http.StatusInternalServerError, ErrCodeDeliveryFailed, msgMailAuthFailed
	case delivery.IsTransient(o.Err):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, msgMailUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeDeliveryFailed, msgMailFailed
	}
}

//
// Handlers
//

// Submit godoc
// @ID          submitContact
// @Summary     Submit the contact form
// @Description Validates the payload, applies the per-client hourly limit and delivers the
// @Description submission to every backend configured for the route. Succeeds when at least
// @Description one backend accepts it. The same contract is served by the variant routes
// @Description /contact (smtp), /contact-kv, /contact-db, /contact-resend and /contact-unified.
// @Tags        Contact
// @Accept      json
// @Produce     json
//
// @Param       X-Forwarded-For  header  string                    false  "Client address used for rate limiting"
// @Param       body             body    handlers.SubmitRequest    true   "Contact form"
//
// @Success     200  {object}  handlers.SubmitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing required fields"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limit exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Delivery failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Email service temporarily unavailable"
// @Router      /submit-contact [post]
func (h *Handlers) Submit(svc Intake) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

		// A body that is not a JSON object is treated as empty and fails
		// validation below.
		var p domain.PartialSubmission
		if err := c.ShouldBindJSON(&p); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, msgBodyTooLarge)
				return
			}
			p = domain.PartialSubmission{}
		}

		ctx := c.Request.Context()
		res, err := svc.Submit(ctx, p, clientKey(c))
		switch {
		case err == nil:
			ok(c, http.StatusOK, h.submitBody(res))
		case errors.Is(err, services.ErrMissingRequiredField):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgMissingFields)
		case errors.Is(err, services.ErrRateLimitExceeded):
			fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, msgRateLimited)
		case errors.Is(err, services.ErrAllBackendsFailed) && res != nil:
			lg := middleware.LoggerFrom(c)
			for _, o := range res.Outcomes {
				lg.Warn().Str("backend", o.Backend).Err(o.Err).Msg("delivery failed")
			}
			status, code, msg := deliveryFailure(res.Outcomes)
			fail(c, status, code, msg)
		default:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeInternal, msgServerError)
		}
	}
}

// ListSubmissions godoc
// @ID          listSubmissions
// @Summary     List stored submissions
// @Description Returns submissions from the record store, newest first. When the store is not
// @Description configured the response is 200 with an explanatory error and an empty list.
// @Description Requires X-Admin-Token when the server has ADMIN_TOKEN set.
// @Tags        Contact
// @Produce     json
//
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       limit          query   int     false  "Maximum number of submissions (default all, max 1000)"
//
// @Success     200  {object}  handlers.ListSubmissionsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to retrieve submissions"
// @Router      /submissions [get]
func (h *Handlers) ListSubmissions(store delivery.Lister) gin.HandlerFunc {
	return func(c *gin.Context) {
		empty := ListSubmissionsResponse{Error: msgStoreNotAvailable, Submissions: []domain.Submission{}}
		if store == nil {
			ok(c, http.StatusOK, empty)
			return
		}

		limit := utils.ClampLimit(c.Query("limit"), maxListLimit)
		subs, err := store.List(c.Request.Context(), limit)
		switch {
		case errors.Is(err, delivery.ErrConfigurationMissing):
			ok(c, http.StatusOK, empty)
			return
		case err != nil:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, msgListFailed)
			return
		}
		if subs == nil {
			subs = []domain.Submission{}
		}
		ok(c, http.StatusOK, ListSubmissionsResponse{Submissions: subs, Count: len(subs)})
	}
}
