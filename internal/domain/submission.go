// Package domain defines the contact-intake models shared by the validator,
// the delivery backends and the HTTP layer. Submission is mapped with GORM
// for the SQL record store and serialized as JSON for the KV store and API
// responses.
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// TimestampLayout is the wire format of Submission.Timestamp (ISO-8601, UTC,
// millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// UnknownClient is recorded as SourceIP when no client identifier is present.
const UnknownClient = "unknown"

// Submission is a validated, normalized contact-form entry.
//
// Fields:
//   - ID: opaque identifier assigned at intake ("submission:<unix-ms>:<suffix>").
//   - Email / FirstName / Message: required, non-empty after trimming.
//   - LastName, Company, JobTitle, Country, Phone: optional, "" when absent.
//   - Consent: the client checkbox value; stored, not enforced.
//   - Timestamp: acceptance time in UTC.
//   - SourceIP: best-effort client identifier, "unknown" when absent.
//
// A Submission is built once at intake and never mutated afterwards.
type Submission struct {
	ID        string    `json:"id"        gorm:"type:varchar(96);primaryKey"`
	Email     string    `json:"email"     gorm:"type:varchar(320);not null;index"`
	FirstName string    `json:"firstName" gorm:"type:varchar(255);not null"`
	LastName  string    `json:"lastName"  gorm:"type:varchar(255);not null;default:''"`
	Company   string    `json:"company"   gorm:"type:varchar(255);not null;default:''"`
	JobTitle  string    `json:"jobTitle"  gorm:"type:varchar(255);not null;default:''"`
	Country   string    `json:"country"   gorm:"type:varchar(128);not null;default:''"`
	Phone     string    `json:"phone"     gorm:"type:varchar(64);not null;default:''"`
	Message   string    `json:"message"   gorm:"type:text;not null"`
	Consent   bool      `json:"consent"   gorm:"not null;default:false"`
	Timestamp time.Time `json:"-"         gorm:"not null;index:idx_submissions_ts"`
	SourceIP  string    `json:"sourceIp"  gorm:"type:varchar(64);not null;default:'unknown'"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// FullName joins first and last name, omitting an empty last name.
func (s Submission) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// FormattedTimestamp renders Timestamp in TimestampLayout.
func (s Submission) FormattedTimestamp() string {
	return s.Timestamp.UTC().Format(TimestampLayout)
}

type submissionJSON struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
	JobTitle  string `json:"jobTitle"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	Consent   bool   `json:"consent"`
	Timestamp string `json:"timestamp"`
	SourceIP  string `json:"sourceIp"`
}

// MarshalJSON writes the timestamp in TimestampLayout so stored records and
// API responses agree on one format.
func (s Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(submissionJSON{
		ID: s.ID, Email: s.Email, FirstName: s.FirstName, LastName: s.LastName,
		Company: s.Company, JobTitle: s.JobTitle, Country: s.Country, Phone: s.Phone,
		Message: s.Message, Consent: s.Consent, Timestamp: s.FormattedTimestamp(),
		SourceIP: s.SourceIP,
	})
}

// UnmarshalJSON accepts the layout written by MarshalJSON and plain RFC 3339.
func (s *Submission) UnmarshalJSON(b []byte) error {
	var w submissionJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Submission{
		ID: w.ID, Email: w.Email, FirstName: w.FirstName, LastName: w.LastName,
		Company: w.Company, JobTitle: w.JobTitle, Country: w.Country, Phone: w.Phone,
		Message: w.Message, Consent: w.Consent, SourceIP: w.SourceIP,
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return err
		}
		s.Timestamp = ts.UTC()
	}
	return nil
}

// RateLimitEntry is the per-client counter kept by the fixed-window limiter.
type RateLimitEntry struct {
	ClientKey   string
	Count       int
	WindowStart time.Time
}

// Field is a loosely typed JSON value from an untrusted form body. Strings,
// numbers and booleans are kept as text; null, objects and arrays are
// treated as absent. String records whether the value was a JSON string.
type Field struct {
	Value  string
	Set    bool
	String bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(b []byte) error {
	*f = Field{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Field{Value: s, Set: true, String: true}
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = Field{Value: strconv.FormatBool(v), Set: true}
	case 'n', '{', '[':
		// absent
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = Field{Value: n.String(), Set: true}
	}
	return nil
}

// PartialSubmission is the raw intake payload before validation.
type PartialSubmission struct {
	Email     Field `json:"email"`
	FirstName Field `json:"firstName"`
	LastName  Field `json:"lastName"`
	Company   Field `json:"company"`
	JobTitle  Field `json:"jobTitle"`
	Country   Field `json:"country"`
	Phone     Field `json:"phone"`
	Message   Field `json:"message"`
	Consent   Field `json:"consent"`
}
