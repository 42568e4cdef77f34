// Package services – IntakeService
//
// This file implements IntakeService, the single entry point for contact
// submissions. A submission moves through
//
//	Received -> Validated -> RateChecked -> Delivering -> Responded
//
// and exits early as Rejected when validation fails (ErrMissingRequiredField)
// or the client is over its window (ErrRateLimitExceeded). Delivery is a
// best-effort fan-out: every configured backend runs concurrently, each
// outcome is captured independently, and the submission is accepted when at
// least one backend succeeds.
//
// Observability: Submit and every backend call are OpenTelemetry spans;
// outcomes are counted in Prometheus and handed to the Observer.

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-contact-intake/internal/delivery"
	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/limiter"
	"github.com/tbourn/go-contact-intake/internal/observability"
)

// Observer receives the outcome of every fan-out. Implementations must not
// fail the request.
type Observer interface {
	Record(ctx context.Context, s domain.Submission, outcomes []delivery.Outcome)
}

// IntakeService validates, rate-checks and delivers contact submissions.
type IntakeService struct {
	Limiter  limiter.Limiter
	Backends []delivery.Backend // ordered; outcomes keep this order
	Observer Observer           // optional

	// Optional seams; default to time.Now and NewSubmissionID.
	Now   func() time.Time
	NewID func(time.Time) string
}

// Result is the outcome of an accepted (or fully failed) submission.
type Result struct {
	Submission domain.Submission
	Outcomes   []delivery.Outcome
}

// Succeeded reports whether any backend named name accepted the submission.
func (r *Result) Succeeded(name string) bool {
	for _, o := range r.Outcomes {
		if o.Backend == name && o.OK() {
			return true
		}
	}
	return false
}

// NewSubmissionID returns "submission:<unix-ms>:<uuid>".
func NewSubmissionID(now time.Time) string {
	return fmt.Sprintf("submission:%d:%s", now.UnixMilli(), uuid.NewString())
}

// Submit runs the intake pipeline for one payload from clientKey.
//
// Errors:
//   - ErrMissingRequiredField: nothing was rate-checked or delivered.
//   - ErrRateLimitExceeded: nothing was delivered.
//   - ErrAllBackendsFailed: every backend failed; the returned Result holds
//     each backend's error.
//
// A limiter failure admits the submission (fail open) and is logged.
func (s *IntakeService) Submit(ctx context.Context, p domain.PartialSubmission, clientKey string) (*Result, error) {
	tr := observability.Tracer("intake")
	ctx, span := tr.Start(ctx, "Submit", trace.WithAttributes(
		attribute.Int("backends", len(s.Backends)),
	))
	defer span.End()

	sub, err := Validate(p)
	if err != nil {
		submissionsTotal.WithLabelValues(outcomeInvalid).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	if clientKey == "" {
		clientKey = domain.UnknownClient
	}
	if s.Limiter != nil {
		d, lerr := s.Limiter.Admit(ctx, clientKey, now)
		switch {
		case lerr != nil:
			limiterErrors.Inc()
			zerolog.Ctx(ctx).Warn().Err(lerr).Msg("rate limiter unavailable; admitting submission")
		case d == limiter.Rejected:
			submissionsTotal.WithLabelValues(outcomeRateLimited).Inc()
			span.SetStatus(codes.Error, ErrRateLimitExceeded.Error())
			return nil, ErrRateLimitExceeded
		}
	}

	sub.Timestamp = now.UTC().Truncate(time.Millisecond)
	sub.SourceIP = clientKey
	if s.NewID != nil {
		sub.ID = s.NewID(now)
	} else {
		sub.ID = NewSubmissionID(now)
	}
	span.SetAttributes(attribute.String("submission.id", sub.ID))

	res := &Result{Submission: sub, Outcomes: s.fanOut(ctx, sub)}
	if s.Observer != nil {
		s.Observer.Record(ctx, sub, res.Outcomes)
	}

	for _, o := range res.Outcomes {
		if o.OK() {
			submissionsTotal.WithLabelValues(outcomeAccepted).Inc()
			return res, nil
		}
	}
	submissionsTotal.WithLabelValues(outcomeFailed).Inc()
	span.SetStatus(codes.Error, ErrAllBackendsFailed.Error())
	return res, ErrAllBackendsFailed
}

// fanOut delivers sub to every backend concurrently. A panicking backend
// is reported as a failed outcome.
func (s *IntakeService) fanOut(ctx context.Context, sub domain.Submission) []delivery.Outcome {
	out := make([]delivery.Outcome, len(s.Backends))
	done := make(chan struct{}, len(s.Backends))

	for i, b := range s.Backends {
		go func(i int, b delivery.Backend) {
			defer func() { done <- struct{}{} }()
			out[i] = s.deliver(ctx, b, sub)
		}(i, b)
	}
	for range s.Backends {
		<-done
	}
	return out
}

func (s *IntakeService) deliver(ctx context.Context, b delivery.Backend, sub domain.Submission) (o delivery.Outcome) {
	ctx, span := observability.Tracer("intake").Start(ctx, "Deliver", trace.WithAttributes(
		attribute.String("backend", b.Name()),
		attribute.String("backend.kind", b.Kind().String()),
	))
	start := time.Now()
	o = delivery.Outcome{Backend: b.Name(), Kind: b.Kind()}

	defer func() {
		if rec := recover(); rec != nil {
			o.Err = fmt.Errorf("backend %s panicked: %v", b.Name(), rec)
		}
		o.Duration = time.Since(start)

		result := "ok"
		if o.Err != nil {
			result = "error"
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
			zerolog.Ctx(ctx).Warn().Err(o.Err).Str("backend", b.Name()).Msg("delivery failed")
		}
		deliveriesTotal.WithLabelValues(b.Name(), result).Inc()
		deliveryDuration.WithLabelValues(b.Name()).Observe(o.Duration.Seconds())
		span.End()
	}()

	o.Err = b.Deliver(ctx, sub)
	return o
}

func (s *IntakeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
