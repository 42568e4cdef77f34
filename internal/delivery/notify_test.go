package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNotificationLog_RecordsOutcomeWithoutPII(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	n := NewNotificationLog(&l)

	n.Record(context.Background(), sampleSubmission(), []Outcome{
		{Backend: "kv", Kind: KindStore},
		{Backend: "resend", Kind: KindMail, Err: errors.New("boom")},
	})

	line := buf.String()
	if strings.Contains(line, "jane@example.com") || strings.Contains(line, "Jane") {
		t.Fatalf("log line contains visitor details: %s", line)
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("not json: %v (%s)", err, line)
	}
	if ev["level"] != "warn" || ev["submission_id"] != sampleSubmission().ID {
		t.Fatalf("unexpected event: %v", ev)
	}
	if succ, _ := ev["succeeded"].([]any); len(succ) != 1 || succ[0] != "kv" {
		t.Fatalf("succeeded = %v", ev["succeeded"])
	}
	if failed, _ := ev["failed"].(map[string]any); failed["resend"] != "boom" {
		t.Fatalf("failed = %v", ev["failed"])
	}
}

func TestNotificationLog_Levels(t *testing.T) {
	cases := []struct {
		outcomes []Outcome
		want     string
	}{
		{[]Outcome{{Backend: "kv"}}, "info"},
		{[]Outcome{{Backend: "kv", Err: errors.New("x")}}, "error"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		NewNotificationLog(&l).Record(context.Background(), sampleSubmission(), tc.outcomes)
		if !strings.Contains(buf.String(), `"level":"`+tc.want+`"`) {
			t.Fatalf("want level %s, got %s", tc.want, buf.String())
		}
	}
}
