package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/sysutil"
)

// DefaultResendFrom is used when EMAIL_FROM is not set.
const DefaultResendFrom = "noreply@moducode.com"

// ResendSender delivers submissions through the Resend transactional email API.
type ResendSender struct {
	apiKey   string
	baseURL  string
	client   *resend.Client
	composer Composer
}

// NewResendSender builds a sender for the given mail settings. ResendAPIURL
// is the API base; a trailing "/emails" is accepted and dropped.
func NewResendSender(mail config.MailConfig) *ResendSender {
	timeout := mail.ResendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: statusTransport{base: http.DefaultTransport},
	}
	client := resend.NewCustomClient(httpClient, mail.ResendAPIKey)
	base := apiBase(mail.ResendAPIURL)
	if u, err := url.Parse(base); err == nil && base != "" {
		client.BaseURL = u
	}
	return &ResendSender{
		apiKey:  mail.ResendAPIKey,
		baseURL: base,
		client:  client,
		composer: Composer{
			Context:    mail.SubjectContext,
			From:       sysutil.FirstNonEmpty(mail.From, DefaultResendFrom),
			To:         mail.To,
			EscapeHTML: mail.EscapeHTML,
		},
	}
}

func apiBase(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(raw, "/"), "/emails") + "/"
}

func (r *ResendSender) Name() string { return config.BackendResend }
func (r *ResendSender) Kind() Kind   { return KindMail }

// Deliver composes the notification for sub and sends it through the API.
func (r *ResendSender) Deliver(ctx context.Context, sub domain.Submission) error {
	if r.apiKey == "" {
		return fmt.Errorf("%w: RESEND_API_KEY is required", ErrConfigurationMissing)
	}
	if r.baseURL != "" {
		if _, err := url.ParseRequestURI(r.baseURL); err != nil {
			return fmt.Errorf("%w: invalid RESEND_API_URL: %v", ErrConfigurationMissing, err)
		}
	}
	msg := r.composer.Compose(sub)

	call := &callResult{}
	_, err := r.client.Emails.SendWithContext(context.WithValue(ctx, callResultKey{}, call), &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err == nil {
		return nil
	}

	switch status := call.status; {
	case status == 0:
		transient := transientNetErr(err) || transientNetErr(call.err) || ctx.Err() != nil
		return &TransportError{Op: "resend", Transient: transient, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &TransportError{Op: "resend", Err: fmt.Errorf("%w: status %d", ErrAuthentication, status)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransportError{Op: "resend", Transient: true, Err: fmt.Errorf("status %d: %v", status, err)}
	default:
		return &TransportError{Op: "resend", Err: fmt.Errorf("status %d: %v", status, err)}
	}
}

// callResult receives the HTTP outcome of one API call, so errors are
// classified by status code rather than by the SDK's error text.
type callResult struct {
	status int
	err    error
}

type callResultKey struct{}

type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if call, ok := req.Context().Value(callResultKey{}).(*callResult); ok {
		call.err = err
		if resp != nil {
			call.status = resp.StatusCode
		}
	}
	return resp, err
}
