package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kairos-labs/gca-proxy/internal/config"
	"github.com/kairos-labs/gca-proxy/internal/fallback"
	"github.com/kairos-labs/gca-proxy/internal/gclient"
	"github.com/kairos-labs/gca-proxy/internal/sigcache"
)

type staticTokenSource struct{}

func (staticTokenSource) Token(ctx context.Context) (string, error) { return "test-token", nil }
func (staticTokenSource) Invalidate()                                 {}

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := gclient.New(staticTokenSource{}, gclient.WithEndpoint(upstreamURL), gclient.WithLogger(log.WithField("test", true)))
	cache := sigcache.New(sigcache.NewMemoryStore())
	t.Cleanup(func() { cache.Destroy() })

	store := config.NewStore(&config.Config{GoogleCloudProject: "test-project"})
	return New(client, cache, fallback.New(), store, log.WithField("test", true))
}

func TestHealthzReportsOK(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNonStreamingChatCompletionReturnsAssembledMessage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"hello there"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}}`)
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "gemini-2.5-pro",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hello there" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Usage.PromptTokens != 3 {
		t.Fatalf("expected usage prompt_tokens=3, got %d", resp.Usage.PromptTokens)
	}
}

func TestNonStreamingRateLimitFallsBackToNextModel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded struct {
			Model string `json:"model"`
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &decoded)

		if decoded.Model == "gemini-2.5-pro" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limited"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"fallback reply"}]}}]}}`)
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "gemini-2.5-pro",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after fallback, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "fallback reply") {
		t.Fatalf("expected fallback reply in body, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "falling back to gemini-2.5-flash") {
		t.Fatalf("expected fallback notice prepended, got %s", rec.Body.String())
	}
}

func TestStreamingChatCompletionEmitsChunksAndDoneSentinel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"hi\"}]}}]}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "gemini-2.5-pro",
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := rec.Body.String()
	if !strings.Contains(out, `"content":"hi"`) {
		t.Fatalf("expected content delta in stream, got %s", out)
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "data: [DONE]") {
		t.Fatalf("expected stream to terminate with [DONE] sentinel, got %s", out)
	}
}

func TestStreamingRateLimitFallsBackWithSingleRoleChunk(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded struct {
			Model string `json:"model"`
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &decoded)

		if decoded.Model == "gemini-2.5-pro" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limited"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"hi\"}]}}]}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)

	body, _ := json.Marshal(map[string]interface{}{
		"model":    "gemini-2.5-pro",
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after fallback, got %d: %s", rec.Code, rec.Body.String())
	}
	out := rec.Body.String()
	if count := strings.Count(out, `"role":"assistant"`); count != 1 {
		t.Fatalf("expected exactly one role-bearing chunk, got %d: %s", count, out)
	}
	if !strings.Contains(out, "falling back to gemini-2.5-flash") {
		t.Fatalf("expected fallback notice prepended, got %s", out)
	}
	if !strings.Contains(out, `"content":"hi"`) {
		t.Fatalf("expected content delta in stream, got %s", out)
	}
}
