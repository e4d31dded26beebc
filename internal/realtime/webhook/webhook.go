// Package webhook implements C11: parallel delivery of a realtime message to
// every webhook URL a channel has configured. Grounded on the teacher's
// internal/auth email-dispatch retry shape (bounded attempts, linear
// backoff between tries) generalized from a single recipient to N URLs
// delivered concurrently.
package webhook

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/insforge/core/internal/telemetry"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Message is the payload handed to every configured URL, unwrapped of any
// hub-specific envelope.
type Message struct {
	Event   string
	Channel string
	ID      string
	Payload []byte
}

// Result reports the outcome of delivering Message to one URL.
type Result struct {
	URL        string
	Success    bool
	StatusCode int
	Error      string
}

// Sender delivers webhook payloads over a shared HTTP client.
type Sender struct {
	client *http.Client
}

// New constructs a Sender with its own client, isolated from the PostgREST
// proxy's keep-alive pool since webhook targets are arbitrary external hosts.
func New() *Sender {
	return &Sender{client: &http.Client{Timeout: requestTimeout}}
}

// SendToAll delivers msg to every url concurrently, retrying only
// network-level failures up to maxAttempts times with linear backoff.
func (s *Sender) SendToAll(ctx context.Context, urls []string, msg Message) []Result {
	results := make([]Result, len(urls))
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = s.sendOne(ctx, url, msg)
		}(i, url)
	}

	wg.Wait()
	return results
}

func (s *Sender) sendOne(ctx context.Context, url string, msg Message) Result {
	start := time.Now()
	defer func() {
		telemetry.WebhookDeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return s.record(Result{URL: url, Success: false, Error: ctx.Err().Error()})
			case <-timer.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg.Payload))
		if err != nil {
			return s.record(Result{URL: url, Success: false, Error: err.Error()})
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-InsForge-Event", msg.Event)
		req.Header.Set("X-InsForge-Channel", msg.Channel)
		req.Header.Set("X-InsForge-Message-Id", msg.ID)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		success := resp.StatusCode >= 200 && resp.StatusCode < 300
		return s.record(Result{URL: url, Success: success, StatusCode: resp.StatusCode})
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return s.record(Result{URL: url, Success: false, Error: errMsg})
}

func (s *Sender) record(r Result) Result {
	outcome := "failure"
	if r.Success {
		outcome = "success"
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	return r
}
