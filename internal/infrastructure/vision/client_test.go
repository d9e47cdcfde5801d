package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
	"github.com/vatsight/pipeline/internal/infrastructure/resilience"
)

func fastExecutor(maxAttempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	})
}

func testRequest() ports.ModelRequest {
	return ports.ModelRequest{
		Template: domain.PromptTemplate{ID: "structured-json", Text: "extract the vat"},
		Pages: []domain.NormalizedPage{
			{MediaType: "text/plain", Text: "Invoice VAT €45.00"},
			{MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
		Category: domain.CategorySales,
	}
}

func TestExtractSendsRequestAndDecodesResponse(t *testing.T) {
	var gotBody extractRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(extractResponse{Text: "Total VAT: €45.00", TokensUsed: 42})
	}))
	defer server.Close()

	c := New(Options{
		BaseURL:        server.URL,
		APIKey:         "secret",
		Model:          "docvision-1",
		RequestsPerSec: 1000,
		Executor:       fastExecutor(1),
	})

	resp, err := c.Extract(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Extract error = %v", err)
	}
	if resp.Text != "Total VAT: €45.00" {
		t.Fatalf("unexpected response text %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Fatalf("expected 42 tokens, got %d", resp.TokensUsed)
	}
	if resp.TemplateID != "structured-json" {
		t.Fatalf("template id not propagated, got %q", resp.TemplateID)
	}

	if gotBody.Model != "docvision-1" {
		t.Fatalf("model not sent, got %q", gotBody.Model)
	}
	if !strings.Contains(gotBody.Prompt, "sales document") {
		t.Fatalf("category hint missing from prompt: %q", gotBody.Prompt)
	}
	if len(gotBody.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(gotBody.Pages))
	}
	if gotBody.Pages[0].Text == "" || gotBody.Pages[1].Data == "" {
		t.Fatalf("page payloads not encoded: %+v", gotBody.Pages)
	}
}

func TestExtractRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(extractResponse{Text: "Total VAT: €45.00"})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, RequestsPerSec: 1000, Executor: fastExecutor(3)})

	resp, err := c.Extract(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("empty response after retry")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestExtractDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, RequestsPerSec: 1000, Executor: fastExecutor(3)})

	_, err := c.Extract(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrExternalAPI) {
		t.Fatalf("expected external api error kind, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", got)
	}
}

func TestExtractExhaustedRetriesTagExternalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, RequestsPerSec: 1000, Executor: fastExecutor(2)})

	_, err := c.Extract(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if !domain.IsKind(err, domain.ErrExternalAPI) {
		t.Fatalf("expected external api error kind, got %v", err)
	}
}

func TestExtractRejectsEmptyRequest(t *testing.T) {
	c := New(Options{BaseURL: "http://localhost:0", RequestsPerSec: 1000, Executor: fastExecutor(1)})
	_, err := c.Extract(context.Background(), ports.ModelRequest{})
	if err == nil {
		t.Fatalf("expected error for request without pages")
	}
	if !domain.IsKind(err, domain.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestClassifyModelErrorStatuses(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tc := range cases {
		verdict := classifyModelError(&StatusError{StatusCode: tc.status, Status: http.StatusText(tc.status)})
		if verdict.Retryable != tc.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tc.status, verdict.Retryable, tc.retryable)
		}
	}
}
