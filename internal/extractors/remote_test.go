package extractors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

func TestRemoteExtractor_Defaults(t *testing.T) {
	e := NewRemoteExtractor(RemoteConfig{BaseURL: "http://extractor:8000/"})

	if e.baseURL != "http://extractor:8000" {
		t.Errorf("expected trailing slash trimmed, got %s", e.baseURL)
	}
	if e.limiter.Burst() != 8 {
		t.Errorf("expected burst 8, got %d", e.limiter.Burst())
	}
	if e.client.Timeout != 5*time.Minute {
		t.Errorf("expected 5m timeout, got %v", e.client.Timeout)
	}
}

func TestRemoteExtractor_Extract(t *testing.T) {
	var got extractRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/extract" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(extractResponse{
			Text:      "PAGE 1\nHello.\nPAGE 2\nWorld.",
			PageCount: 2,
			Metadata:  map[string]string{"author": "ada"},
		})
	}))
	defer server.Close()

	e := NewRemoteExtractor(RemoteConfig{BaseURL: server.URL, Kinds: []domain.ItemKind{domain.ItemKindPDF}})
	out, err := e.Extract(context.Background(), driven.ExtractionSource{
		ItemID: "doc1",
		Kind:   domain.ItemKindPDF,
		Data:   []byte("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ItemID != "doc1" || got.Kind != "pdf" || string(got.Content) != "%PDF-1.7" {
		t.Errorf("unexpected request body %+v", got)
	}
	if out.PageCount != 2 || !strings.Contains(out.Text, "World.") {
		t.Errorf("unexpected extraction %+v", out)
	}
	if out.Metadata["author"] != "ada" || out.Metadata["extractor"] != "remote" {
		t.Errorf("unexpected metadata %v", out.Metadata)
	}
}

func TestRemoteExtractor_ServiceError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error body", http.StatusUnprocessableEntity, `{"error":"file is password protected"}`, "file is password protected"},
		{"bad status", http.StatusBadGateway, `upstream down`, "status 502"},
		{"malformed", http.StatusOK, `not json`, "failed to parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			e := NewRemoteExtractor(RemoteConfig{BaseURL: server.URL})
			_, err := e.Extract(context.Background(), driven.ExtractionSource{ItemID: "doc1", Kind: domain.ItemKindDOCX})
			if !errors.Is(err, domain.ErrExtractionFailed) {
				t.Fatalf("expected ErrExtractionFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected %q in %q", tt.message, err.Error())
			}
		})
	}
}

func TestRemoteExtractor_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	e := NewRemoteExtractor(RemoteConfig{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Extract(ctx, driven.ExtractionSource{ItemID: "doc1", Kind: domain.ItemKindAudio})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRemoteExtractor_RateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"text":"ok","page_count":1}`))
	}))
	defer server.Close()

	// One token, refilled every ten seconds: the second call cannot proceed
	// before the deadline.
	e := NewRemoteExtractor(RemoteConfig{BaseURL: server.URL, RateLimit: 0.1, Burst: 1})
	src := driven.ExtractionSource{ItemID: "doc1", Kind: domain.ItemKindImage}

	if _, err := e.Extract(context.Background(), src); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e.Extract(ctx, src); err == nil {
		t.Error("expected second call to be rate limited")
	}
	if calls != 1 {
		t.Errorf("expected 1 request to reach the service, got %d", calls)
	}
}

func TestRemoteExtractor_HealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	e := NewRemoteExtractor(RemoteConfig{BaseURL: server.URL})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	healthy = false
	if err := e.HealthCheck(context.Background()); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}
