package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/domain"
	"github.com/tbourn/go-contact-intake/internal/sysutil"
)

// DefaultSMTPFrom is used when neither EMAIL_FROM nor SMTP_USER is set.
const DefaultSMTPFrom = "no-reply@moducode.com"

// SMTPSender delivers submissions through an authenticated SMTP relay.
//
// Secure dials implicit TLS. Otherwise the connection is upgraded with
// STARTTLS, or left plain when StartTLS is off. ConnectionTimeout bounds the
// TCP dial, GreetingTimeout bounds the banner, EHLO and TLS upgrade, and
// SocketTimeout bounds every later command and the DATA transfer.
type SMTPSender struct {
	cfg      config.SMTPConfig
	composer Composer
	now      func() time.Time
}

// NewSMTPSender builds a sender. From falls back to the SMTP user, then to
// DefaultSMTPFrom.
func NewSMTPSender(cfg config.SMTPConfig, mail config.MailConfig) *SMTPSender {
	return &SMTPSender{
		cfg: cfg,
		composer: Composer{
			Context:    mail.SubjectContext,
			From:       sysutil.FirstNonEmpty(mail.From, cfg.User, DefaultSMTPFrom),
			To:         mail.To,
			EscapeHTML: mail.EscapeHTML,
		},
		now: time.Now,
	}
}

func (s *SMTPSender) Name() string { return config.BackendSMTP }
func (s *SMTPSender) Kind() Kind   { return KindMail }

// Deliver composes and sends the notification email for sub.
func (s *SMTPSender) Deliver(ctx context.Context, sub domain.Submission) error {
	if !s.cfg.Configured() {
		return fmt.Errorf("%w: SMTP_HOST, SMTP_PORT, SMTP_USER and SMTP_PASS are required", ErrConfigurationMissing)
	}
	return s.Send(ctx, s.composer.Compose(sub))
}

// Composer returns the composer used for outgoing notifications.
func (s *SMTPSender) Composer() Composer { return s.composer }

// Send transmits an already composed message.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Configured() {
		return fmt.Errorf("%w: SMTP_HOST, SMTP_PORT, SMTP_USER and SMTP_PASS are required", ErrConfigurationMissing)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.ConnectionTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &TransportError{Op: "dial", Transient: transientNetErr(err), Err: err}
	}
	if s.cfg.Secure {
		raw = tls.Client(raw, s.tlsConfig())
	}
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	ctxLimit, _ := ctx.Deadline()
	conn := &boundedConn{Conn: raw}
	conn.setLimit(earliest(ctxLimit, time.Now().Add(s.cfg.GreetingTimeout)))
	_ = conn.SetDeadline(time.Time{})

	c, err := s.newClient(conn)
	if err != nil {
		_ = conn.Close()
		return s.transportErr(ctx, s.handshakeOp(), err)
	}
	defer c.Close()
	c.CommandTimeout = s.cfg.SocketTimeout
	c.SubmissionTimeout = s.cfg.SocketTimeout
	conn.setLimit(ctxLimit)
	_ = conn.SetDeadline(time.Time{})

	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.User, s.cfg.Password)); err != nil {
			if ctx.Err() != nil || transientNetErr(err) {
				return s.transportErr(ctx, "auth", err)
			}
			return &TransportError{Op: "auth", Err: fmt.Errorf("%w: %v", ErrAuthentication, err)}
		}
	}

	body, err := msg.Bytes(s.now(), uuid.NewString()+"@"+domainOf(msg.From))
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(body)); err != nil {
		return s.transportErr(ctx, "send", err)
	}
	// The relay accepted the message; a failed QUIT does not undo that.
	_ = c.Quit()
	return nil
}

// newClient runs the greeting. Plain connections are upgraded with STARTTLS
// unless the relay is configured without it.
func (s *SMTPSender) newClient(conn net.Conn) (*smtp.Client, error) {
	if !s.cfg.Secure && s.cfg.StartTLS {
		return smtp.NewClientStartTLS(conn, s.tlsConfig())
	}
	c := smtp.NewClient(conn)
	if err := c.Hello("localhost"); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (s *SMTPSender) handshakeOp() string {
	if !s.cfg.Secure && s.cfg.StartTLS {
		return "starttls"
	}
	return "greeting"
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.TLSInsecure, //nolint:gosec // operator opt-in for self-signed relays
		MinVersion:         tls.VersionTLS12,
	}
}

func (s *SMTPSender) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return &TransportError{Op: op, Transient: transientSMTPErr(err), Err: err}
}

// transientSMTPErr extends network classification with 4xx SMTP replies.
func transientSMTPErr(err error) bool {
	if transientNetErr(err) {
		return true
	}
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500
	}
	return false
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return strings.TrimRight(addr[i+1:], ">")
	}
	return "localhost"
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	}
	return b
}

// boundedConn caps every deadline the SMTP client sets at limit, so the
// greeting budget and the caller's context deadline hold even when the
// client installs its own per-command timeouts.
type boundedConn struct {
	net.Conn

	mu    sync.Mutex
	limit time.Time
}

func (c *boundedConn) setLimit(t time.Time) {
	c.mu.Lock()
	c.limit = t
	c.mu.Unlock()
}

func (c *boundedConn) bound(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit.IsZero() {
		return t
	}
	if t.IsZero() || t.After(c.limit) {
		return c.limit
	}
	return t
}

func (c *boundedConn) SetDeadline(t time.Time) error      { return c.Conn.SetDeadline(c.bound(t)) }
func (c *boundedConn) SetReadDeadline(t time.Time) error  { return c.Conn.SetReadDeadline(c.bound(t)) }
func (c *boundedConn) SetWriteDeadline(t time.Time) error { return c.Conn.SetWriteDeadline(c.bound(t)) }
