package gclient

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// codeAssistEndpoints are HEAD-probed at startup to warm TLS/TCP
// connection state before the first real request pays that latency
// (adapted from a multi-provider connection-prewarmer to this single
// upstream's two hosts).
var codeAssistEndpoints = []string{
	defaultEndpoint,
	"https://oauth2.googleapis.com",
}

// Prewarm issues a best-effort HEAD request against each upstream host,
// ignoring errors: a failed prewarm just means the first real request
// pays full connection-setup cost.
func Prewarm(ctx context.Context) {
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 5 * time.Second}

	for _, endpoint := range codeAssistEndpoints {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			prewarmOne(ctx, client, url)
		}(endpoint)
	}
	wg.Wait()
}

func prewarmOne(ctx context.Context, client *http.Client, baseURL string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
