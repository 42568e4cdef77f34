// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, delivery backends (SMTP, transactional email, record
// stores), rate limiting, analytics relay, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Known delivery backend names accepted in CONTACT_BACKENDS.
const (
	BackendSMTP   = "smtp"
	BackendResend = "resend"
	BackendKV     = "kv"
	BackendDB     = "db"
	BackendMemory = "memory"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SMTPConfig holds relay credentials and socket timeouts for the SMTP sender.
// A zero Host, Port, User or Password means the sender is not configured.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Secure      bool // implicit TLS (typically port 465)
	StartTLS    bool // upgrade plain connections; off only for relays without TLS
	TLSInsecure bool // skip certificate verification

	ConnectionTimeout time.Duration
	GreetingTimeout   time.Duration
	SocketTimeout     time.Duration
}

// MailConfig holds addressing and formatting shared by all mail senders.
type MailConfig struct {
	From           string // EMAIL_FROM; senders apply their own fallbacks when empty
	To             string // CONTACT_EMAIL
	SubjectContext string // leading words of the subject line
	EscapeHTML     bool   // escape visitor-provided text in the HTML body

	ResendAPIKey  string
	ResendAPIURL  string // API base; the SDK appends "emails"
	ResendTimeout time.Duration
}

// RateLimitConfig configures the per-client fixed-window submission limiter.
type RateLimitConfig struct {
	Backend string        // memory|redis
	Window  time.Duration // window length
	Max     int           // admitted submissions per window
}

// AnalyticsConfig configures the GA4 Measurement Protocol relay.
type AnalyticsConfig struct {
	MeasurementID string
	APISecret     string
	Endpoint      string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // intake request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Intake
	ContactBackends []string // ordered backend set for POST /submit-contact
	RecordStore     string   // store served by GET /submissions
	SchedulingURL   string   // optional post-submission scheduling link
	AdminToken      string   // optional guard for retrieval routes

	// Stores
	DBPath   string // SQLite path for the "db" record store
	RedisURL string // redis://… for the "kv" record store and shared limiter

	// Delivery
	SMTP SMTPConfig
	Mail MailConfig

	// Rate limiting
	RateLimit RateLimitConfig
	RateRPS   float64 // edge token bucket: tokens per second (>= 0)
	RateBurst int     // edge token bucket: bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Analytics
	Analytics AnalyticsConfig

	// Observability
	OTEL OTELConfig
}

// Load reads the configuration from the environment. Unset or empty
// variables take their defaults. Unparseable values and failed checks are
// all reported together in the returned error.
func Load() (Config, error) {
	e := &envReader{lookup: os.LookupEnv}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(e.integer("MAX_BODY_BYTES", 64<<10)),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.boolean("LOG_PRETTY", false),
		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api")),

		ContactBackends: splitCSV(strings.ToLower(e.str("CONTACT_BACKENDS", "kv,resend"))),
		RecordStore:     strings.ToLower(e.str("RECORD_STORE", BackendKV)),
		SchedulingURL:   e.str("SCHEDULING_URL", ""),
		AdminToken:      e.secret("ADMIN_TOKEN"),

		DBPath:   e.str("DB_PATH", "contact.db"),
		RedisURL: e.str("REDIS_URL", ""),

		SMTP: SMTPConfig{
			Host:              e.str("SMTP_HOST", ""),
			Port:              e.integer("SMTP_PORT", 0),
			User:              e.secret("SMTP_USER"),
			Password:          e.secret("SMTP_PASS"),
			Secure:            e.boolean("SMTP_SECURE", false),
			StartTLS:          e.boolean("SMTP_STARTTLS", true),
			TLSInsecure:       e.boolean("SMTP_TLS_INSECURE", false),
			ConnectionTimeout: e.duration("SMTP_CONNECTION_TIMEOUT", 10*time.Second),
			GreetingTimeout:   e.duration("SMTP_GREETING_TIMEOUT", 5*time.Second),
			SocketTimeout:     e.duration("SMTP_SOCKET_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			From:           e.str("EMAIL_FROM", ""),
			To:             e.str("CONTACT_EMAIL", "contact@moducode.com"),
			SubjectContext: e.str("MAIL_SUBJECT_CONTEXT", "Moducode call booking"),
			EscapeHTML:     e.boolean("MAIL_ESCAPE_HTML", true),
			ResendAPIKey:   e.secret("RESEND_API_KEY"),
			ResendAPIURL:   e.str("RESEND_API_URL", "https://api.resend.com/"),
			ResendTimeout:  e.duration("RESEND_TIMEOUT", 10*time.Second),
		},

		RateLimit: RateLimitConfig{
			Backend: strings.ToLower(e.str("RATE_LIMIT_BACKEND", "memory")),
			Window:  e.duration("RATE_LIMIT_WINDOW", time.Hour),
			Max:     e.integer("RATE_LIMIT_MAX", 5),
		},
		RateRPS:   e.float("RATE_RPS", 5.0),
		RateBurst: e.integer("RATE_BURST", 20),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		Analytics: AnalyticsConfig{
			MeasurementID: e.str("GA_MEASUREMENT_ID", ""),
			APISecret:     e.secret("GA_API_SECRET"),
			Endpoint:      e.str("GA_ENDPOINT", "https://www.google-analytics.com/mp/collect"),
		},

		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-contact-intake"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.problems()...)...)
}

// problems lists every constraint the loaded values violate.
func (c Config) problems() []error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, lvlErr := zerolog.ParseLevel(c.LogLevel)
	check(lvlErr == nil, "LOG_LEVEL %q is not a zerolog level", c.LogLevel)
	check(c.Port != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.MaxBodyBytes > 0, "MAX_BODY_BYTES must be > 0")

	check(len(c.ContactBackends) > 0, "CONTACT_BACKENDS must name at least one backend")
	for _, b := range c.ContactBackends {
		check(IsKnownBackend(b), "CONTACT_BACKENDS: unknown backend %q", b)
	}
	check(slices.Contains([]string{BackendKV, BackendDB, BackendMemory}, c.RecordStore),
		"RECORD_STORE must be one of: kv, db, memory")
	check(c.DBPath != "", "DB_PATH must not be empty")

	check(c.SMTP.Port >= 0 && c.SMTP.Port <= 65535, "SMTP_PORT must be within 0..65535")
	check(c.SMTP.ConnectionTimeout > 0 && c.SMTP.GreetingTimeout > 0 && c.SMTP.SocketTimeout > 0,
		"SMTP timeouts must be positive durations")
	check(c.Mail.ResendTimeout > 0, "RESEND_TIMEOUT must be > 0")

	check(c.RateLimit.Backend == "memory" || c.RateLimit.Backend == "redis",
		"RATE_LIMIT_BACKEND must be one of: memory, redis")
	check(c.RateLimit.Window > 0, "RATE_LIMIT_WINDOW must be > 0")
	check(c.RateLimit.Max >= 1, "RATE_LIMIT_MAX must be >= 1")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")

	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// IsKnownBackend reports whether name is a recognized delivery backend.
func IsKnownBackend(name string) bool {
	switch name {
	case BackendSMTP, BackendResend, BackendKV, BackendDB, BackendMemory:
		return true
	}
	return false
}

// Configured reports whether all required SMTP credentials are present.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.User != "" && c.Password != ""
}

// envReader reads typed variables and remembers which ones failed to parse.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// raw returns the trimmed value of k, or "" when unset.
func (e *envReader) raw(k string) string {
	v, _ := e.lookup(k)
	return strings.TrimSpace(v)
}

func (e *envReader) str(k, def string) string {
	if v := e.raw(k); v != "" {
		return v
	}
	return def
}

// secret returns the value of k verbatim; credentials keep their whitespace.
func (e *envReader) secret(k string) string {
	v, _ := e.lookup(k)
	return v
}

func (e *envReader) invalid(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, kind))
}

func (e *envReader) integer(k string, def int) int {
	v := e.raw(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(k, v, "integer")
		return def
	}
	return n
}

func (e *envReader) float(k string, def float64) float64 {
	v := e.raw(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(k, v, "number")
		return def
	}
	return f
}

func (e *envReader) boolean(k string, def bool) bool {
	switch v := strings.ToLower(e.raw(k)); v {
	case "":
		return def
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		e.invalid(k, v, "boolean")
		return def
	}
}

func (e *envReader) duration(k string, def time.Duration) time.Duration {
	v := e.raw(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(k, v, "duration")
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with exactly one leading slash and no trailing
// slash; blank means "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
