package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corevault.org/internal/document"
)

func bundleWithDocs(t *testing.T) (*Service, Bundle) {
	t.Helper()
	docs, err := document.NewService(document.NewInMemory())
	if err != nil {
		t.Fatalf("document.NewService: %v", err)
	}
	ctx := context.Background()
	for _, title := range []string{"Drilling summary", "Assay certificates"} {
		if _, err := docs.Ingest(ctx, document.Document{Title: title, ProcessID: "p1"}, strings.NewReader(title)); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	svc, err := NewService(docs, nil, time.Second)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	bundle, err := svc.FetchBundle(ctx, "p1", "North Pit", "MINING", "Au")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	return svc, bundle
}

func TestGenerateUsesBackend(t *testing.T) {
	var gotPrompt string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrompt, _ = req["prompt"].(string)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "# North Pit Report\n\nAll good."})
	}))
	defer backend.Close()

	svc, bundle := bundleWithDocs(t)
	completer, err := NewHTTPCompleter(backend.URL, "test-model")
	if err != nil {
		t.Fatalf("NewHTTPCompleter: %v", err)
	}
	svc.completer = completer

	res := svc.Generate(context.Background(), bundle)
	if res.Fallback {
		t.Fatal("backend succeeded; fallback not expected")
	}
	if !strings.Contains(res.Markdown, "North Pit Report") {
		t.Fatalf("unexpected report: %q", res.Markdown)
	}
	if !strings.Contains(gotPrompt, "North Pit") || !strings.Contains(gotPrompt, "Drilling summary") {
		t.Fatalf("prompt missing context: %q", gotPrompt)
	}
}

func TestGenerateFallsBackOnBackendFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	svc, bundle := bundleWithDocs(t)
	completer, _ := NewHTTPCompleter(backend.URL, "test-model")
	svc.completer = completer

	res := svc.Generate(context.Background(), bundle)
	if !res.Fallback {
		t.Fatal("expected fallback on backend failure")
	}
	// Fallback is built from local data, never from the transport error.
	if strings.Contains(res.Markdown, "503") || strings.Contains(res.Markdown, "model loading") {
		t.Fatalf("transport error leaked into report: %q", res.Markdown)
	}
	for _, want := range []string{"North Pit", "Drilling summary", "Assay certificates", "MINING"} {
		if !strings.Contains(res.Markdown, want) {
			t.Fatalf("fallback report missing %q:\n%s", want, res.Markdown)
		}
	}
}

func TestGenerateFallsBackOnTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer backend.Close()

	svc, bundle := bundleWithDocs(t)
	completer, _ := NewHTTPCompleter(backend.URL, "test-model")
	svc.completer = completer
	svc.timeout = 50 * time.Millisecond

	start := time.Now()
	res := svc.Generate(context.Background(), bundle)
	if !res.Fallback {
		t.Fatal("expected fallback on timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("generate did not respect the timeout")
	}
}

func TestGenerateWithoutCompleter(t *testing.T) {
	svc, bundle := bundleWithDocs(t)
	res := svc.Generate(context.Background(), bundle)
	if !res.Fallback {
		t.Fatal("nil completer must take the fallback path")
	}
	if !strings.Contains(res.Markdown, "Documents on record: 2") {
		t.Fatalf("unexpected fallback report:\n%s", res.Markdown)
	}
}

func TestFallbackReportEmptyBundle(t *testing.T) {
	out := FallbackReport(Bundle{ProcessID: "p9", Mode: "EXPLORATION"}, time.Now())
	if !strings.Contains(out, "No documents recorded") {
		t.Fatalf("unexpected empty-bundle report:\n%s", out)
	}
}
