package delivery

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/repo"
)

// SQLStore persists submissions in the submissions table via GORM.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore returns a store over db. A nil db yields a store that reports
// ErrConfigurationMissing.
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Name() string { return config.BackendDB }
func (s *SQLStore) Kind() Kind   { return KindStore }

func (s *SQLStore) Deliver(ctx context.Context, sub domain.Submission) error {
	if s.db == nil {
		return fmt.Errorf("%w: database is not open", ErrConfigurationMissing)
	}
	if err := repo.CreateSubmission(ctx, s.db, sub); err != nil {
		return fmt.Errorf("%w: db write: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]domain.Submission, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: database is not open", ErrConfigurationMissing)
	}
	out, err := repo.ListSubmissions(ctx, s.db, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: db read: %w", ErrStoreUnavailable, err)
	}
	return out, nil
}
