package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
)

func testService(baseURL string) *Service {
	svc := NewService(&common.LLMConfig{
		BaseURL:        baseURL,
		DefaultModel:   "test-model",
		RequestTimeout: "5s",
	}, "nomic-embed-text", arbor.NewLogger())
	return svc.(*Service)
}

func TestGenerateStreamsChunks(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{"response":"Hel","done":false}` + "\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"response":"lo","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer server.Close()

	var chunks []string
	err := testService(server.URL).Generate(context.Background(), "", "say hello", func(c string) bool {
		chunks = append(chunks, c)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(chunks, ""); got != "Hello" {
		t.Errorf("streamed %q, want Hello", got)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("empty model must fall back to the default, got %s", gotReq.Model)
	}
	if !gotReq.Stream {
		t.Error("generate request must ask for streaming")
	}
	if gotReq.Prompt != "say hello" {
		t.Errorf("prompt = %q", gotReq.Prompt)
	}
}

func TestGenerateAbandonedByCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			w.Write([]byte(`{"response":"x","done":false}` + "\n"))
		}
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer server.Close()

	calls := 0
	err := testService(server.URL).Generate(context.Background(), "m", "p", func(c string) bool {
		calls++
		return calls < 3
	})
	if err != nil {
		t.Fatalf("abandoning the stream is not an error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("callback invoked %d times after refusing, want 3", calls)
	}
}

func TestGenerateStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"ok","done":false}` + "\n"))
		w.Write([]byte(`{"error":"model not found"}` + "\n"))
	}))
	defer server.Close()

	err := testService(server.URL).Generate(context.Background(), "m", "p", func(c string) bool { return true })
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("got %v, want stream error surfaced", err)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer server.Close()

	err := testService(server.URL).Generate(context.Background(), "m", "p", func(c string) bool { return true })
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("got %v, want status error", err)
	}
}

func TestGenerateSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all\n"))
		w.Write([]byte(`{"response":"fine","done":true}` + "\n"))
	}))
	defer server.Close()

	var chunks []string
	err := testService(server.URL).Generate(context.Background(), "m", "p", func(c string) bool {
		chunks = append(chunks, c)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "fine" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestEmbedSingularShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("embed model = %s", req.Model)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	vec, err := testService(server.URL).Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedPluralShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.5, 0.6}}})
	}))
	defer server.Close()

	vec, err := testService(server.URL).Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := testService(server.URL).Embed(context.Background(), "text"); err == nil {
		t.Error("empty embedding must be an error")
	}
}

func TestListModelsCatalogMatching(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"gemma3:4b"},{"name":"custom:latest"}]}`))
	}))
	defer server.Close()

	infos, err := testService(server.URL).ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("models = %d, want 2", len(infos))
	}
	if infos[0].Name != "Gemma 3 4B" || infos[0].Description == "" {
		t.Errorf("catalog model not enriched: %+v", infos[0])
	}
	if infos[1].ID != "custom:latest" || infos[1].Name != "custom:latest" {
		t.Errorf("unknown model must keep its raw name: %+v", infos[1])
	}
}

func TestListModelsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := testService(server.URL).ListModels(context.Background()); err == nil {
		t.Error("non-200 tags response must be an error")
	}
}

func TestDefaultModel(t *testing.T) {
	if got := testService("http://localhost:11434").DefaultModel(); got != "test-model" {
		t.Errorf("DefaultModel() = %s", got)
	}
}
