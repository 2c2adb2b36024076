package gclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
)

// modelOf extracts the model name from a geminiapi.Request body for
// debug tracing, returning "" for any other body shape.
func modelOf(body interface{}) string {
	if req, ok := body.(*geminiapi.Request); ok {
		return req.Model
	}
	return ""
}

// TokenSource supplies bearer tokens for upstream requests and lets the
// client force a refresh after a 401 to clear a cached access token.
// It mirrors golang.org/x/oauth2.TokenSource, extended with the
// invalidation hook the retry needs.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

const (
	defaultEndpoint = "https://cloudcode-pa.googleapis.com"
	apiVersion      = "v1internal"
)

// Client issues authenticated requests against the Code Assist backend.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	endpoint   string
	log        *logrus.Entry

	retryPolicy failsafe.Executor[*http.Response]

	onboardOnce sync.Once
	onboardMu   sync.Mutex
	project     string
	onboarded   bool
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithEndpoint overrides the default Code Assist base URL (tests only).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the default http.Client (tests only).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches the structured logger the DEBUG_THINKING request
// trace writes to.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a Client wrapping tokens, retrying transient network
// failures (not non-2xx responses, which surface as UpstreamError) with
// a bounded exponential backoff.
func New(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 0}, // streaming: caller controls deadlines via ctx
		tokens:     tokens,
		endpoint:   defaultEndpoint,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}

	rp := retrypolicy.Builder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool { return err != nil }).
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()
	c.retryPolicy = failsafe.NewExecutor[*http.Response](rp)

	return c
}

// CallEndpoint issues a non-streaming POST to {endpoint}/{version}:{method}
// and returns the raw JSON response body.
func (c *Client) CallEndpoint(ctx context.Context, method string, body interface{}) ([]byte, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gclient: marshal request: %w", err)
	}
	payload = applyRawPatch(payload, body)
	logThinkingRequest(c.log, payload, modelOf(body))

	resp, err := c.doWithRetry(ctx, method, payload, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gclient: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// StreamEndpoint issues a streaming POST (alt=sse) and returns the live
// response body for the caller to decode incrementally.
func (c *Client) StreamEndpoint(ctx context.Context, method string, body interface{}) (io.ReadCloser, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gclient: marshal request: %w", err)
	}
	payload = applyRawPatch(payload, body)
	logThinkingRequest(c.log, payload, modelOf(body))

	resp, err := c.doWithRetry(ctx, method+"?alt=sse", payload, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return resp.Body, nil
}

// doWithRetry performs the single-request send, with transient network
// errors retried by the failsafe policy for non-streaming requests (a
// partially-read streaming body must not be silently replayed, so
// streaming requests are exempt from that policy). A 401 gets a single
// handshake retry after forcing a token refresh, but only on the
// streaming path; a non-streaming 401 surfaces as an UpstreamError on
// first occurrence.
func (c *Client) doWithRetry(ctx context.Context, method string, payload []byte, streaming bool) (*http.Response, error) {
	send := func() (*http.Response, error) {
		return c.send(ctx, method, payload)
	}

	var resp *http.Response
	var err error
	if streaming {
		resp, err = send()
	} else {
		resp, err = c.retryPolicy.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
			return send()
		})
	}
	if err != nil {
		return nil, fmt.Errorf("gclient: request failed: %w", err)
	}

	if streaming && resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.tokens.Invalidate()
		retried, retryErr := send()
		if retryErr != nil {
			return nil, fmt.Errorf("gclient: retry after 401 failed: %w", retryErr)
		}
		if retried.StatusCode == http.StatusUnauthorized {
			data, _ := io.ReadAll(retried.Body)
			retried.Body.Close()
			return nil, &UpstreamError{Status: http.StatusUnauthorized, Body: string(data)}
		}
		return retried, nil
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method string, payload []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gclient: acquire token: %w", err)
	}

	url := fmt.Sprintf("%s/%s:%s", c.endpoint, apiVersion, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}
