// Package gclient implements the upstream client: authenticated POSTs
// to the Code Assist Gemini backend, the 401 one-shot retry, and the
// one-shot onboarding/project-discovery handshake.
package gclient

import "fmt"

// UpstreamError is the structured error surfaced on any non-2xx upstream
// response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Body)
}

// StatusCode implements the ambient error contract every core error
// type gives, letting the routing collaborator map it to an HTTP
// response without a type switch on internals.
func (e *UpstreamError) StatusCode() int { return e.Status }

// OnboardingTimeout is returned when the onboardUser poll loop exceeds
// its attempt cap.
type OnboardingTimeout struct {
	Attempts int
}

func (e *OnboardingTimeout) Error() string {
	return fmt.Sprintf("onboarding: poll exhausted after %d attempts", e.Attempts)
}

// StatusCode reports OnboardingTimeout as a configuration-like
// failure rather than a retryable one.
func (e *OnboardingTimeout) StatusCode() int { return 500 }
