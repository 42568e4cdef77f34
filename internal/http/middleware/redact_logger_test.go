package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// accessLines returns the decoded "http_request" events in buf.
func accessLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if m["message"] == "http_request" {
			out = append(out, m)
		}
	}
	return out
}

func TestScrub(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"email=jane.doe+hire@example.com", "email=[REDACTED:email]"},
		{"call +1 (555) 123-4567 today", "call +[REDACTED:phone] today"},
		{"id 123e4567-e89b-12d3-a456-426614174000", "id [REDACTED:id]"},
		{"limit=50", "limit=50"},
	}
	for _, tc := range cases {
		if got := scrub(tc.in); got != tc.want {
			t.Errorf("scrub(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactingLogger_ScrubsQueryAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/api/submissions", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "email=a.b+tag@example.com&phone=+1-555-123-4567&id=123e4567-e89b-12d3-a456-426614174000"
	req := httptest.NewRequest(http.MethodGet, "/api/submissions?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set(HeaderAdminToken, "adm1n")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Forwarded-For", "jane@example.com")
	req.Header.Set(requestIDHeader, "rid-list")
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw := buf.String()
	for _, secret := range []string{"secret", "topsecret", "adm1n", "shhh", "a.b+tag@example.com", "jane@example.com", "426614174000"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("log leaked %q:\n%s", secret, raw)
		}
	}

	lines := accessLines(t, raw)
	if len(lines) != 1 {
		t.Fatalf("want one access line, got %d:\n%s", len(lines), raw)
	}
	ev := lines[0]
	if ev["level"] != "info" || ev["path"] != "/api/submissions" || ev["request_id"] != "rid-list" {
		t.Fatalf("event = %v", ev)
	}
	if ev["status"] != float64(200) || ev["bytes_out"] != float64(2) {
		t.Fatalf("status/bytes = %v/%v", ev["status"], ev["bytes_out"])
	}
	hdrs, _ := ev["headers"].(map[string]any)
	for _, k := range []string{"Authorization", "Cookie", HeaderAdminToken, "X-Api-Key"} {
		if hdrs[k] != redactedValue {
			t.Fatalf("header %s = %v; want masked", k, hdrs[k])
		}
	}
	if hdrs["X-Forwarded-For"] != "[REDACTED:email]" {
		t.Fatalf("X-Forwarded-For = %v", hdrs["X-Forwarded-For"])
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.POST("/api/submit-contact", func(c *gin.Context) {
		switch c.Query("case") {
		case "invalid":
			c.Status(http.StatusBadRequest)
		case "down":
			c.Status(http.StatusServiceUnavailable)
		case "recorded":
			_ = c.Error(errors.New("store write failed for jane@example.com"))
			c.Status(http.StatusOK)
		default:
			c.Status(http.StatusOK)
		}
	})

	want := map[string]string{"ok": "info", "invalid": "warn", "down": "error", "recorded": "error"}
	for _, k := range []string{"ok", "invalid", "down", "recorded"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/submit-contact?case="+k, nil))
	}

	lines := accessLines(t, buf.String())
	if len(lines) != 4 {
		t.Fatalf("want 4 access lines, got %d", len(lines))
	}
	for _, ev := range lines {
		k := strings.TrimPrefix(ev["query"].(string), "case=")
		if ev["level"] != want[k] {
			t.Errorf("case %s: level = %v; want %s", k, ev["level"], want[k])
		}
		if k == "recorded" {
			if e, _ := ev["errors"].(string); !strings.Contains(e, "[REDACTED:email]") || strings.Contains(e, "jane@") {
				t.Errorf("errors field = %q", e)
			}
		}
	}
}

func TestRedactingLogger_UnmatchedRouteUsesRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	lines := accessLines(t, buf.String())
	if len(lines) != 1 || lines[0]["path"] != "/nope" || lines[0]["level"] != "warn" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestRedactingLogger_AttachesRequestScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.POST("/api/submit-contact", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from gin context")
		zerolog.Ctx(c.Request.Context()).Info().Msg("from request context")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/submit-contact", nil)
	req.Header.Set(requestIDHeader, "rid-scoped")
	r.ServeHTTP(httptest.NewRecorder(), req)

	found := 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"message":"from `) {
			found++
			if !strings.Contains(line, `"request_id":"rid-scoped"`) || !strings.Contains(line, `"path":"/api/submit-contact"`) {
				t.Fatalf("scoped line missing fields: %s", line)
			}
		}
	}
	if found != 2 {
		t.Fatalf("want both scoped lines, got %d:\n%s", found, buf.String())
	}
}
