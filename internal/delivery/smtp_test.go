package delivery

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/tbourn/go-contact-intake/internal/config"
)

// --- in-process relay ---

type receivedMail struct {
	from string
	to   []string
	data string
	tls  bool
}

type relayBackend struct {
	user, pass string

	mu   sync.Mutex
	mail []receivedMail
}

func (b *relayBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &relaySession{b: b, conn: c}, nil
}

func (b *relayBackend) received() []receivedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]receivedMail(nil), b.mail...)
}

type relaySession struct {
	b      *relayBackend
	conn   *smtp.Conn
	authed bool
	from   string
	to     []string
}

func (s *relaySession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *relaySession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.b.user || password != s.b.pass {
			return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "Authentication failed"}
		}
		s.authed = true
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return &smtp.SMTPError{Code: 530, EnhancedCode: smtp.EnhancedCode{5, 7, 0}, Message: "Authentication required"}
	}
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	_, overTLS := s.conn.TLSConnectionState()
	s.b.mail = append(s.b.mail, receivedMail{from: s.from, to: s.to, data: string(b), tls: overTLS})
	s.b.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *relaySession) Logout() error { return nil }

func startRelay(t *testing.T) (*relayBackend, string, int) {
	t.Helper()
	return startRelayWith(t, nil)
}

// startRelayWith starts a relay; a non-nil tlsCfg makes it advertise STARTTLS.
func startRelayWith(t *testing.T, tlsCfg *tls.Config) (*relayBackend, string, int) {
	t.Helper()
	be := &relayBackend{user: "mailer@example.com", pass: "secret"}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = tlsCfg == nil
	srv.TLSConfig = tlsCfg
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return be, "127.0.0.1", addr.Port
}

// selfSignedTLS returns a server config with a throwaway certificate for
// 127.0.0.1.
func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
}

func smtpConfig(host string, port int, user, pass string) config.SMTPConfig {
	return config.SMTPConfig{
		Host:              host,
		Port:              port,
		User:              user,
		Password:          pass,
		ConnectionTimeout: 2 * time.Second,
		GreetingTimeout:   2 * time.Second,
		SocketTimeout:     2 * time.Second,
	}
}

func mailConfig() config.MailConfig {
	return config.MailConfig{To: "contact@example.com", SubjectContext: "Moducode call booking", EscapeHTML: true}
}

// --- tests ---

func TestSMTPSender_DeliversThroughRelay(t *testing.T) {
	relay, host, port := startRelay(t)
	s := NewSMTPSender(smtpConfig(host, port, "mailer@example.com", "secret"), mailConfig())

	if err := s.Deliver(context.Background(), sampleSubmission()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	got := relay.received()
	if len(got) != 1 {
		t.Fatalf("relay received %d messages; want 1", len(got))
	}
	m := got[0]
	// From falls back to the SMTP user when EMAIL_FROM is empty.
	if m.from != "mailer@example.com" {
		t.Fatalf("MAIL FROM = %q; want %q", m.from, "mailer@example.com")
	}
	if len(m.to) != 1 || m.to[0] != "contact@example.com" {
		t.Fatalf("RCPT TO = %v", m.to)
	}
	for _, want := range []string{"Reply-To: jane@example.com", "Subject: =?utf-8?q?", "multipart/alternative"} {
		if !strings.Contains(m.data, want) {
			t.Fatalf("message missing %q:\n%s", want, m.data)
		}
	}
}

func TestSMTPSender_UpgradesWithSTARTTLS(t *testing.T) {
	relay, host, port := startRelayWith(t, selfSignedTLS(t))
	cfg := smtpConfig(host, port, "mailer@example.com", "secret")
	cfg.StartTLS = true
	cfg.TLSInsecure = true

	if err := NewSMTPSender(cfg, mailConfig()).Deliver(context.Background(), sampleSubmission()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got := relay.received()
	if len(got) != 1 {
		t.Fatalf("relay received %d messages; want 1", len(got))
	}
	if !got[0].tls {
		t.Fatalf("message was sent without TLS")
	}
}

func TestSMTPSender_STARTTLSRequiredButNotOffered(t *testing.T) {
	relay, host, port := startRelay(t)
	cfg := smtpConfig(host, port, "mailer@example.com", "secret")
	cfg.StartTLS = true

	err := NewSMTPSender(cfg, mailConfig()).Deliver(context.Background(), sampleSubmission())
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "starttls" {
		t.Fatalf("want starttls transport error, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("a relay without STARTTLS will not start offering it on retry")
	}
	if n := len(relay.received()); n != 0 {
		t.Fatalf("relay received %d messages over plaintext", n)
	}
}

func TestSMTPSender_UntrustedCertificateRejected(t *testing.T) {
	_, host, port := startRelayWith(t, selfSignedTLS(t))
	cfg := smtpConfig(host, port, "mailer@example.com", "secret")
	cfg.StartTLS = true

	err := NewSMTPSender(cfg, mailConfig()).Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("want transport error for self-signed certificate, got %v", err)
	}
}

func TestSMTPSender_FromPrefersEmailFrom(t *testing.T) {
	mail := mailConfig()
	mail.From = "sales@example.com"
	if got := NewSMTPSender(smtpConfig("h", 25, "mailer", "pw"), mail).Composer().From; got != "sales@example.com" {
		t.Fatalf("From = %q", got)
	}
	if got := NewSMTPSender(config.SMTPConfig{}, mailConfig()).Composer().From; got != DefaultSMTPFrom {
		t.Fatalf("From = %q; want %q", got, DefaultSMTPFrom)
	}
}

func TestSMTPSender_BadCredentials(t *testing.T) {
	relay, host, port := startRelay(t)
	s := NewSMTPSender(smtpConfig(host, port, "mailer@example.com", "wrong"), mailConfig())

	err := s.Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("want ErrAuthentication, got %v", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("auth failure should also be a transport error: %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("auth failure must not be transient")
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Fatalf("error leaks the password: %v", err)
	}
	if n := len(relay.received()); n != 0 {
		t.Fatalf("relay received %d messages; want 0", n)
	}
}

func TestSMTPSender_MissingConfiguration(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587}, mailConfig())
	err := s.Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("want ErrConfigurationMissing, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatalf("configuration error should not be a transport error")
	}
}

func TestSMTPSender_ConnectionRefusedIsTransient(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	s := NewSMTPSender(smtpConfig("127.0.0.1", port, "mailer@example.com", "secret"), mailConfig())
	err = s.Deliver(context.Background(), sampleSubmission())
	if !errors.Is(err, ErrTransport) || !IsTransient(err) {
		t.Fatalf("want transient transport error, got %v", err)
	}
}

func TestSMTPSender_GreetingTimeout(t *testing.T) {
	// Accepts connections and never sends a banner.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	cfg := smtpConfig("127.0.0.1", l.Addr().(*net.TCPAddr).Port, "mailer@example.com", "secret")
	cfg.GreetingTimeout = 150 * time.Millisecond
	s := NewSMTPSender(cfg, mailConfig())

	start := time.Now()
	err = s.Deliver(context.Background(), sampleSubmission())
	if !IsTransient(err) {
		t.Fatalf("want transient timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("greeting timeout not enforced: took %v", elapsed)
	}
}

func TestBoundedConn_Bound(t *testing.T) {
	c := &boundedConn{}
	now := time.Now()
	if got := c.bound(now); !got.Equal(now) {
		t.Fatalf("no limit should pass through")
	}
	c.setLimit(now.Add(time.Second))
	if got := c.bound(time.Time{}); !got.Equal(now.Add(time.Second)) {
		t.Fatalf("zero deadline should become the limit")
	}
	if got := c.bound(now.Add(time.Minute)); !got.Equal(now.Add(time.Second)) {
		t.Fatalf("later deadline should be capped")
	}
	if got := c.bound(now.Add(time.Millisecond)); !got.Equal(now.Add(time.Millisecond)) {
		t.Fatalf("earlier deadline should be kept")
	}
}

func TestDomainOf(t *testing.T) {
	if domainOf("a@example.com") != "example.com" || domainOf("mailer") != "localhost" {
		t.Fatalf("domainOf unexpected")
	}
}
