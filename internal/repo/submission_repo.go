package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-contact-intake/internal/domain"
)

// CreateSubmission inserts one submission row. Rows are append-only: the
// primary key is the intake-assigned id, so a duplicate id is an error.
func CreateSubmission(ctx context.Context, db *gorm.DB, s domain.Submission) error {
	s.Timestamp = s.Timestamp.UTC()
	return db.WithContext(ctx).Create(&s).Error
}

// ListSubmissions returns submissions newest first (timestamp DESC, then
// insertion order DESC). limit <= 0 returns all rows.
func ListSubmissions(ctx context.Context, db *gorm.DB, limit int) ([]domain.Submission, error) {
	out := []domain.Submission{}
	q := db.WithContext(ctx).Order("timestamp DESC").Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
