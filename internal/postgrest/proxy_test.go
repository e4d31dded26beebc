package postgrest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/insforge/core/internal/apperror"
)

type stubTokenIssuer struct{}

func (stubTokenIssuer) IssueAdmin() (string, error) { return "admin-jwt", nil }

func newTestProxy(t *testing.T, handler http.HandlerFunc) (*Proxy, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	p, err := New(srv.URL, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, srv
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	p, srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Kept", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	defer srv.Close()

	resp, err := p.Forward(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/widgets",
		Query:   url.Values{},
		Headers: http.Header{},
	})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Headers.Get("Connection") != "" {
		t.Fatalf("Connection header should have been stripped")
	}
	if resp.Headers.Get("X-Kept") != "yes" {
		t.Fatalf("X-Kept header should have been preserved")
	}
}

func TestForwardReturns4xxVerbatimWithoutRetry(t *testing.T) {
	attempts := 0
	p, srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad"}`))
	})
	defer srv.Close()

	resp, err := p.Forward(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "/widgets",
		Query:   url.Values{},
		Headers: http.Header{},
	})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (4xx must not retry)", attempts)
	}
}

func TestForwardUpgradesValidAPIKeyToAdminJWT(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := New(srv.URL, "secret-key", stubTokenIssuer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := http.Header{}
	headers.Set("X-Api-Key", "secret-key")
	_, err = p.Forward(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/widgets",
		Query:   url.Values{},
		Headers: headers,
	})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotAuth != "Bearer admin-jwt" {
		t.Fatalf("Authorization = %q, want upgraded admin JWT", gotAuth)
	}
}

func TestForwardUnreachableHostIsServiceUnavailable(t *testing.T) {
	p, err := New("http://127.0.0.1:1", "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Forward(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/widgets",
		Query:   url.Values{},
		Headers: http.Header{},
	})
	if err == nil {
		t.Fatalf("expected error for unreachable host")
	}
	appErr, ok := apperror.As(err)
	if !ok {
		t.Fatalf("expected *apperror.Error, got %T", err)
	}
	if appErr.Kind != apperror.KindServiceUnavailable {
		t.Fatalf("Kind = %v, want KindServiceUnavailable", appErr.Kind)
	}
}
