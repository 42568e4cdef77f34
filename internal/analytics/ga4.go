// Package analytics relays client-side events to the GA4 Measurement
// Protocol. The relay is a no-op when no measurement id or API secret is
// configured, so the browser can post events unconditionally.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-contact-intake/internal/config"
)

// DefaultClientID is sent when the caller omits client_id.
const DefaultClientID = "web-client"

// Event is one client-side analytics event.
type Event struct {
	Name     string         `json:"name" example:"form_submit"`
	Params   map[string]any `json:"params,omitempty"`
	ClientID string         `json:"client_id,omitempty" example:"web-client"`
}

type mpEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

type mpPayload struct {
	ClientID string    `json:"client_id"`
	Events   []mpEvent `json:"events"`
}

// Relay forwards events to GA4.
type Relay struct {
	measurementID string
	apiSecret     string
	endpoint      string
	client        *http.Client
}

// NewRelay builds a relay from cfg. A nil client gets a 5s timeout.
func NewRelay(cfg config.AnalyticsConfig, client *http.Client) *Relay {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Relay{
		measurementID: cfg.MeasurementID,
		apiSecret:     cfg.APISecret,
		endpoint:      cfg.Endpoint,
		client:        client,
	}
}

// Enabled reports whether events are actually forwarded.
func (r *Relay) Enabled() bool {
	return r != nil && r.measurementID != "" && r.apiSecret != ""
}

// Forward posts ev to the Measurement Protocol. Only transport failures are
// returned; GA4 answers 2xx for malformed events and a non-2xx status is
// logged and dropped.
func (r *Relay) Forward(ctx context.Context, ev Event) error {
	if !r.Enabled() {
		return nil
	}

	clientID := ev.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	params := ev.Params
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(mpPayload{
		ClientID: clientID,
		Events:   []mpEvent{{Name: ev.Name, Params: params}},
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	u, err := url.Parse(r.endpoint)
	if err != nil {
		return fmt.Errorf("invalid GA endpoint: %w", err)
	}
	q := u.Query()
	q.Set("measurement_id", r.measurementID)
	q.Set("api_secret", r.apiSecret)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		zerolog.Ctx(ctx).Warn().
			Int("status", resp.StatusCode).
			Str("event", ev.Name).
			Msg("analytics endpoint rejected event")
	}
	return nil
}
