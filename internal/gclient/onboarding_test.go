package gclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

type fixedTokenSource struct{}

func (fixedTokenSource) Token(ctx context.Context) (string, error) { return "test-token", nil }
func (fixedTokenSource) Invalidate()                                {}

func discardLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestResolveProjectReturnsLoadCodeAssistProjectDirectly(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cloudaicompanionProject":"projects/already-onboarded"}`))
	}))
	defer upstream.Close()

	c := New(fixedTokenSource{}, WithEndpoint(upstream.URL), WithLogger(discardLogger()))

	project, err := c.ResolveProject(context.Background())
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if project != "projects/already-onboarded" {
		t.Fatalf("project = %q", project)
	}
}

func TestResolveProjectCachesAcrossCalls(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"cloudaicompanionProject":"projects/cached"}`))
	}))
	defer upstream.Close()

	c := New(fixedTokenSource{}, WithEndpoint(upstream.URL), WithLogger(discardLogger()))

	for i := 0; i < 3; i++ {
		if _, err := c.ResolveProject(context.Background()); err != nil {
			t.Fatalf("ResolveProject call %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single upstream handshake, got %d calls", calls)
	}
}

func TestResolveProjectOnboardsWhenNoProjectIsPreassigned(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case req(r, "loadCodeAssist"):
			w.Write([]byte(`{"allowedTiers":[{"id":"standard-tier","isDefault":true}]}`))
		case req(r, "onboardUser"):
			w.Write([]byte(`{"done":true,"response":{"cloudaicompanionProject":{"id":"projects/new"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	c := New(fixedTokenSource{}, WithEndpoint(upstream.URL), WithLogger(discardLogger()))

	project, err := c.ResolveProject(context.Background())
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if project != "projects/new" {
		t.Fatalf("project = %q", project)
	}
}

func req(r *http.Request, method string) bool {
	return len(r.URL.Path) >= len(method) && r.URL.Path[len(r.URL.Path)-len(method):] == method
}
