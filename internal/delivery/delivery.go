// Package delivery implements the destinations a validated submission is
// handed to: mail senders (SMTP relay, transactional email API), record
// stores (Redis KV, SQL, in-memory) and the notification log.
//
// Every destination implements Backend. The intake service fans a
// submission out to an ordered set of backends and records each Outcome;
// one backend failing never prevents the others from running.
package delivery

import (
	"context"
	"time"

	"github.com/tbourn/go-contact-intake/internal/domain"
)

// Kind groups backends by what they do with a submission.
type Kind int

const (
	// KindMail forwards the submission as an email.
	KindMail Kind = iota
	// KindStore persists the submission for later retrieval.
	KindStore
)

func (k Kind) String() string {
	if k == KindStore {
		return "store"
	}
	return "mail"
}

// Backend is a destination for accepted submissions.
type Backend interface {
	// Name is the configuration name ("smtp", "resend", "kv", "db", "memory").
	Name() string
	Kind() Kind
	// Deliver hands s to the destination. s must not be modified.
	Deliver(ctx context.Context, s domain.Submission) error
}

// Lister is implemented by record stores that can list what they hold,
// newest first. limit <= 0 means no limit.
type Lister interface {
	List(ctx context.Context, limit int) ([]domain.Submission, error)
}

// Store is a record store backend that can also be listed.
type Store interface {
	Backend
	Lister
}

// Outcome is the result of one Deliver call.
type Outcome struct {
	Backend  string
	Kind     Kind
	Err      error
	Duration time.Duration
}

// OK reports whether the delivery succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// FlagName returns the response flag reporting a backend's success:
// "emailSuccess" for mail senders, "<name>Success" for stores.
func FlagName(name string, kind Kind) string {
	if kind == KindMail {
		return "emailSuccess"
	}
	return name + "Success"
}
