package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSendToAllSucceedsOn2xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("X-InsForge-Event") != "update" {
			t.Errorf("missing X-InsForge-Event header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New()
	results := s.SendToAll(context.Background(), []string{srv.URL}, Message{Event: "update", Channel: "widgets", ID: "m1", Payload: []byte(`{}`)})

	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v, want one success", results)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on success)", calls)
	}
}

func TestSendToAllDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New()
	results := s.SendToAll(context.Background(), []string{srv.URL}, Message{Event: "update", Channel: "widgets", ID: "m1", Payload: []byte(`{}`)})

	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one failure", results)
	}
	if results[0].StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want 400", results[0].StatusCode)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (4xx must not retry)", calls)
	}
}

func TestSendToAllDeliversToEveryURLConcurrently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New()
	results := s.SendToAll(context.Background(), []string{srv.URL, srv.URL, srv.URL}, Message{Event: "update", Channel: "widgets", ID: "m1", Payload: []byte(`{}`)})

	if len(results) != 3 {
		t.Fatalf("results len = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("expected all deliveries to succeed, got %+v", r)
		}
	}
}
