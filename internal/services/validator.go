package services

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/sysutil"
)

// Validate checks an untrusted payload and returns the normalized submission.
//
// Text fields are trimmed and NFC-normalized; absent optional fields become
// "". It fails with ErrMissingRequiredField when email, firstName or message
// is absent, blank or not a JSON string. Consent is read as a truthy flag and never
// enforced. The returned submission carries no id, timestamp or source.
func Validate(p domain.PartialSubmission) (domain.Submission, error) {
	s := domain.Submission{
		Email:     required(p.Email),
		FirstName: required(p.FirstName),
		LastName:  clean(p.LastName),
		Company:   clean(p.Company),
		JobTitle:  clean(p.JobTitle),
		Country:   clean(p.Country),
		Phone:     clean(p.Phone),
		Message:   required(p.Message),
		Consent:   sysutil.IsTruthy(p.Consent.Value),
	}
	if s.Email == "" || s.FirstName == "" || s.Message == "" {
		return domain.Submission{}, ErrMissingRequiredField
	}
	return s, nil
}

// required reads a field that only counts when sent as a string.
func required(f domain.Field) string {
	if !f.String {
		return ""
	}
	return clean(f)
}

func clean(f domain.Field) string {
	if !f.Set {
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(f.Value))
}
