package delivery

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/go-contact-intake/internal/config"
)

// Registry holds one instance of every backend, keyed by configuration name.
// Routes that name the same backend share its instance, so the memory store
// lists what any route wrote to it.
type Registry map[string]Backend

// NewRegistry builds every known backend. A nil db or rdb (untyped nil, not a
// nil *redis.Client) yields a store that reports ErrConfigurationMissing.
func NewRegistry(cfg config.Config, db *gorm.DB, rdb redis.Cmdable) Registry {
	return Registry{
		config.BackendSMTP:   NewSMTPSender(cfg.SMTP, cfg.Mail),
		config.BackendResend: NewResendSender(cfg.Mail),
		config.BackendKV:     NewKVStore(rdb),
		config.BackendDB:     NewSQLStore(db),
		config.BackendMemory: NewMemoryStore(),
	}
}

// Select returns the named backends in order.
func (r Registry) Select(names ...string) ([]Backend, error) {
	out := make([]Backend, 0, len(names))
	for _, n := range names {
		b, ok := r[n]
		if !ok {
			return nil, fmt.Errorf("unknown delivery backend %q", n)
		}
		out = append(out, b)
	}
	return out, nil
}

// Store returns the named backend as a listable store.
func (r Registry) Store(name string) (Store, error) {
	b, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown record store %q", name)
	}
	s, ok := b.(Store)
	if !ok {
		return nil, fmt.Errorf("backend %q cannot be listed", name)
	}
	return s, nil
}
