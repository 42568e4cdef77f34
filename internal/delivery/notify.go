package delivery

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-contact-intake/internal/domain"
)

// NotificationLog writes one structured log event per processed submission.
// Visitor contact details are never logged; the id ties the event to the
// stored record.
type NotificationLog struct {
	logger zerolog.Logger
}

// NewNotificationLog logs to l, or to the global logger when l is nil.
func NewNotificationLog(l *zerolog.Logger) *NotificationLog {
	if l == nil {
		return &NotificationLog{logger: log.Logger}
	}
	return &NotificationLog{logger: *l}
}

// Record logs the outcome of a fan-out. It never fails.
func (n *NotificationLog) Record(_ context.Context, s domain.Submission, outcomes []Outcome) {
	ok := 0
	succeeded := zerolog.Arr()
	failed := zerolog.Dict()
	for _, o := range outcomes {
		if o.OK() {
			ok++
			succeeded.Str(o.Backend)
			continue
		}
		failed.Str(o.Backend, o.Err.Error())
	}

	ev := n.logger.Info()
	if ok == 0 {
		ev = n.logger.Error()
	} else if ok < len(outcomes) {
		ev = n.logger.Warn()
	}
	ev.Str("submission_id", s.ID).
		Str("timestamp", s.FormattedTimestamp()).
		Array("succeeded", succeeded).
		Dict("failed", failed).
		Int("backends", len(outcomes)).
		Msg("contact submission processed")
}
