package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"telecine/internal/config"
)

const userAgent = "Telecine/0.1.0"

// Event kinds published on job transitions.
const (
	KindJobCompleted = "job.completed"
	KindJobFailed    = "job.failed"
	KindTest         = "test"
)

// Event is the JSON payload posted to the callback endpoint.
type Event struct {
	Kind         string          `json:"event"`
	JobID        string          `json:"job_id,omitempty"`
	JobType      string          `json:"job_type,omitempty"`
	Status       string          `json:"status,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Service defines the callback surface exposed to the orchestrator.
type Service interface {
	Publish(ctx context.Context, event Event) error
}

// NewService builds a callback service backed by the configured webhook.
// When no callback URL is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Callbacks.URL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Callbacks.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(cfg.Callbacks.AuthToken),
		client:    &http.Client{Timeout: timeout},
	}
}

type webhookService struct {
	endpoint  string
	authToken string
	client    *http.Client
}

func (w *webhookService) Publish(ctx context.Context, event Event) error {
	if w == nil || w.client == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if w.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.authToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("callback endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event) error { return nil }
