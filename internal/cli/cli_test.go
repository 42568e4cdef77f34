package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/delivery"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "send-test-email": false, "submit-test": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected command %q to be registered with root command", name)
		}
	}
	if rootCmd.PersistentFlags().Lookup("env-file") == nil {
		t.Fatal("root command should expose --env-file")
	}
}

func TestCommandFlags(t *testing.T) {
	if f := submitTestCmd.Flags().Lookup("url"); f == nil || f.DefValue != defaultSubmitURL {
		t.Fatalf("submit-test --url default = %+v", f)
	}
	if sendTestEmailCmd.Flags().Lookup("to") == nil {
		t.Fatal("send-test-email should expose --to")
	}
}

// unsetForTest clears key for the duration of the test and restores it after.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	base := filepath.Join(dir, ".env")
	if err := os.WriteFile(local, []byte("CONTACTD_TEST_A=local\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base, []byte("CONTACTD_TEST_A=base\nCONTACTD_TEST_B=base\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	unsetForTest(t, "CONTACTD_TEST_A")
	unsetForTest(t, "CONTACTD_TEST_B")
	t.Setenv("CONTACTD_TEST_C", "env")

	missing := filepath.Join(dir, "missing.env")
	if err := loadEnvFiles([]string{missing, local, base}); err != nil {
		t.Fatalf("loadEnvFiles: %v", err)
	}
	if got := os.Getenv("CONTACTD_TEST_A"); got != "local" {
		t.Fatalf("earlier file should win, got %q", got)
	}
	if got := os.Getenv("CONTACTD_TEST_B"); got != "base" {
		t.Fatalf("CONTACTD_TEST_B = %q", got)
	}
	if got := os.Getenv("CONTACTD_TEST_C"); got != "env" {
		t.Fatalf("process env must not be overwritten, got %q", got)
	}
}

func TestLoadEnvFiles_MalformedFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(bad, []byte("BAD-KEY=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadEnvFiles([]string{bad}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSubmitTest_PrintsFlags(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"id":"submission:1:abc","message":"Form submitted successfully","kvSuccess":true,"emailSuccess":false}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := submitTest(context.Background(), &out, srv.Client(), srv.URL); err != nil {
		t.Fatalf("submitTest: %v", err)
	}
	if got["email"] != "test@example.com" || got["firstName"] != "John" {
		t.Fatalf("server received %+v", got)
	}
	s := out.String()
	for _, want := range []string{
		"status: 200",
		"id: submission:1:abc",
		"emailSuccess: false",
		"kvSuccess: true",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("output missing %q:\n%s", want, s)
		}
	}
	if strings.Index(s, "emailSuccess") > strings.Index(s, "kvSuccess") {
		t.Fatalf("flags should be sorted:\n%s", s)
	}
}

func TestSubmitTest_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"request_id":"r","code":"too_many_requests","error":"Rate limit exceeded"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := submitTest(context.Background(), &out, srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !strings.Contains(out.String(), "error: Rate limit exceeded") {
		t.Fatalf("output = %s", out.String())
	}
}

func TestSubmitTest_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := submitTest(context.Background(), &out, srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for 502")
	}
	if !strings.Contains(out.String(), "body: bad gateway") {
		t.Fatalf("output = %s", out.String())
	}
}

func TestSendTestEmail_NotConfigured(t *testing.T) {
	cfg := config.Config{SMTP: config.SMTPConfig{Host: "smtp.example.com", User: "mailer@example.com"}}

	var out bytes.Buffer
	err := sendTestEmail(context.Background(), &out, cfg, "")
	if !errors.Is(err, delivery.ErrConfigurationMissing) {
		t.Fatalf("err = %v; want ErrConfigurationMissing", err)
	}
	s := out.String()
	if strings.Contains(s, "mailer@example.com") {
		t.Fatalf("smtp user must be masked:\n%s", s)
	}
	if !strings.Contains(s, "SMTP user:   ma****") {
		t.Fatalf("output = %s", s)
	}
}
