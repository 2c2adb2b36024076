// Package fallback implements the rate-limit fallback coordinator: on a
// rate-limit-classified UpstreamError, swap to a designated fallback
// model, re-drive the request once, and prepend a human-visible
// notification to the output.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/kairos-labs/gca-proxy/internal/gclient"
)

// policy is the static eligibility table: each thinking model maps to at
// most one fallback; a model already at the bottom of its chain has no
// entry.
var policy = map[string]string{
	"gemini-2.5-pro":      "gemini-2.5-flash",
	"gemini-2.5-flash":    "gemini-2.5-flash-lite",
	"gemini-3-pro-preview": "gemini-2.5-pro",
}

// rateLimitStatuses classifies which upstream HTTP statuses trigger a
// fallback attempt: 429 plus the two 5xx codes Code Assist uses for
// transient capacity exhaustion.
var rateLimitStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusServiceUnavailable:  true,
	http.StatusInternalServerError: true,
}

// IsRateLimit reports whether status should trigger a fallback attempt.
func IsRateLimit(status int) bool {
	return rateLimitStatuses[status]
}

// FallbackFor returns the eligible fallback model for the given model,
// and whether one exists.
func FallbackFor(model string) (string, bool) {
	fb, ok := policy[model]
	return fb, ok
}

// Coordinator wraps both streaming and non-streaming call paths with the
// fallback policy, protecting each model behind its own circuit breaker
// so a model stuck returning errors stops being retried for a cooldown
// window.
type Coordinator struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
}

// New constructs an empty Coordinator; circuit breakers are created
// lazily, one per model observed.
func New() *Coordinator {
	return &Coordinator{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns (creating if absent) a per-model soft rate shaper:
// not a substitute for upstream rate limiting, just a brake against
// hammering a model that is already failing. The circuit breaker below
// protects against that too, but the limiter smooths the burst of
// requests that accumulate while the breaker is still closed.
func (c *Coordinator) limiterFor(model string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[model]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(50*time.Millisecond), 5)
	c.limiters[model] = l
	return l
}

func (c *Coordinator) breakerFor(model string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[model]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[model] = cb
	return cb
}

// NonStreamingResult pairs a call's outcome with the model it actually
// ran against and an optional human-readable fallback notice.
type NonStreamingResult struct {
	Model    string
	Notice   string
	Response []byte
}

// RunNonStreaming executes call against model through its circuit
// breaker; on a rate-limit UpstreamError, or when model's breaker is open,
// it re-drives once against the fallback model if model has one.
func (c *Coordinator) RunNonStreaming(model string, call func(model string) ([]byte, error)) (*NonStreamingResult, error) {
	resp, err := c.execute(model, call)
	if err == nil {
		return &NonStreamingResult{Model: model, Response: resp}, nil
	}

	fbModel, eligible := c.classify(model, err)
	if !eligible {
		return nil, err
	}

	resp, err = c.execute(fbModel, call)
	if err != nil {
		return nil, err
	}
	return &NonStreamingResult{
		Model:    fbModel,
		Notice:   noticeText(model, fbModel),
		Response: resp,
	}, nil
}

// StreamAttempt describes one streaming call's outcome for
// DecideStreamFallback's caller: either the fallback was engaged (with a notice
// to prepend) or the original attempt is to be used as-is.
type StreamAttempt struct {
	Model  string
	Notice string
}

// DecideStreamFallback inspects an error observed before any chunk was
// written to the caller and returns the model to retry against, if
// eligible. Streaming fallback only applies pre-first-byte: once a
// chunk has reached the client, swapping models mid-stream would
// silently corrupt the response.
func (c *Coordinator) DecideStreamFallback(model string, err error) (StreamAttempt, bool) {
	fbModel, eligible := c.classify(model, err)
	if !eligible {
		return StreamAttempt{}, false
	}
	return StreamAttempt{Model: fbModel, Notice: noticeText(model, fbModel)}, true
}

// Execute runs call through model's circuit breaker, exported for the
// streaming path where the caller drives its own transformer and only
// needs breaker protection, not the non-streaming re-drive helper above.
func (c *Coordinator) Execute(model string, call func() error) error {
	_ = c.limiterFor(model).Wait(context.Background())
	_, err := c.breakerFor(model).Execute(func() (interface{}, error) {
		return nil, call()
	})
	return err
}

func (c *Coordinator) execute(model string, call func(model string) ([]byte, error)) ([]byte, error) {
	_ = c.limiterFor(model).Wait(context.Background())
	result, err := c.breakerFor(model).Execute(func() (interface{}, error) {
		return call(model)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Coordinator) classify(model string, err error) (string, bool) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return FallbackFor(model)
	}
	upstreamErr, ok := err.(*gclient.UpstreamError)
	if !ok || !IsRateLimit(upstreamErr.Status) {
		return "", false
	}
	return FallbackFor(model)
}

func noticeText(original, fallback string) string {
	return fmt.Sprintf("[note: %s is rate-limited; falling back to %s]\n", original, fallback)
}
