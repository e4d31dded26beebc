// Package postgrest implements C7: the data-plane reverse proxy in front of
// an in-network PostgREST instance. Grounded on the teacher's httpserver
// conventions for keep-alive transports and on the retry/backoff shape of
// internal/auth/ratelimit.go, generalized from rate-limiting a local check
// to retrying a remote round trip.
package postgrest

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/telemetry"
)

// adminIssuer is the slice of *token.Service that Proxy needs to mint an
// admin JWT on API-key upgrade, kept as an interface for testability.
type adminIssuer interface {
	IssueAdmin() (string, error)
}

const (
	maxAttempts  = 3
	baseBackoff  = 200 * time.Millisecond
	backoffCap   = time.Second
	backoffRatio = 2.5
)

// hopByHopResponseHeaders are stripped from the upstream response before it
// is copied back to the caller, per spec.md §4.7.
var hopByHopResponseHeaders = []string{
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Content-Encoding",
}

// Request describes the inbound call to forward, already stripped of
// whatever the HTTP layer doesn't need to hand to PostgREST.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// Response is the upstream's result, ready to be written back verbatim.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Proxy forwards requests to PostgREST over a pooled keep-alive transport.
type Proxy struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     adminIssuer
	apiKey     string
}

// New constructs a Proxy. baseURL is PostgREST's in-network address; apiKey,
// when non-empty, is the shared secret a client can present instead of a
// bearer JWT to have the proxy mint one on its behalf.
func New(baseURL, apiKey string, tokens adminIssuer) (*Proxy, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgrest base url: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Proxy{
		baseURL: parsed,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		tokens: tokens,
		apiKey: apiKey,
	}, nil
}

// Forward proxies req to PostgREST, retrying transient network failures and
// upgrading a valid API key to an admin JWT before the first attempt.
func (p *Proxy) Forward(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		telemetry.PostgRESTProxyDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	target := *p.baseURL
	target.Path = strings.TrimRight(p.baseURL.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	target.RawQuery = req.Query.Encode()

	headers := req.Headers.Clone()
	if p.apiKey != "" && p.tokens != nil {
		if presented := headers.Get("X-Api-Key"); presented != "" &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(p.apiKey)) == 1 {
			adminJWT, err := p.tokens.IssueAdmin()
			if err == nil {
				headers.Set("Authorization", "Bearer "+adminJWT)
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(baseBackoff) * math.Pow(backoffRatio, float64(attempt)))
			if delay > backoffCap {
				delay = backoffCap
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := p.attempt(ctx, target, req.Method, headers, req.Body)
		if err == nil {
			return resp, nil
		}

		if !isNetworkError(err) {
			return nil, err
		}

		lastErr = err
		telemetry.PostgRESTRetriesTotal.Inc()
	}

	if isConnectionRefusedOrDNS(lastErr) {
		return nil, apperror.Unavailable("postgrest is unreachable").WithNextActions("retry shortly")
	}
	return nil, apperror.Wrap(apperror.KindServiceUnavailable, "postgrest request failed after retries", lastErr)
}

func (p *Proxy) attempt(ctx context.Context, target url.URL, method string, headers http.Header, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building postgrest request: %w", err)
	}
	httpReq.Header = headers

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading postgrest response: %w", err)
	}

	respHeaders := resp.Header.Clone()
	for _, h := range hopByHopResponseHeaders {
		respHeaders.Del(h)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: respHeaders, Body: respBody}, nil
}

// isNetworkError reports whether err represents a connection-level failure
// (no HTTP response was received), which alone is eligible for retry.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isConnectionRefusedOrDNS(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
