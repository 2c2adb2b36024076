package gclient

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	defaultProject    = "default-project"
	maxOnboardAttempts = 30
	onboardPollDelay   = time.Second
)

var onboardGroup singleflight.Group

// ResolveProject runs the one-shot project-discovery handshake, cached
// on the client instance and deduplicated across concurrent callers via
// singleflight, since the first request to arrive with no project
// configured otherwise triggers N redundant handshakes.
func (c *Client) ResolveProject(ctx context.Context) (string, error) {
	c.onboardMu.Lock()
	if c.onboarded {
		project := c.project
		c.onboardMu.Unlock()
		return project, nil
	}
	c.onboardMu.Unlock()

	result, err, _ := onboardGroup.Do(c.endpoint, func() (interface{}, error) {
		return c.runOnboarding(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) runOnboarding(ctx context.Context) (string, error) {
	c.onboardMu.Lock()
	if c.onboarded {
		project := c.project
		c.onboardMu.Unlock()
		return project, nil
	}
	c.onboardMu.Unlock()

	loadBody := map[string]interface{}{
		"cloudaicompanionProject": defaultProject,
		"metadata":                map[string]interface{}{"duetProject": defaultProject},
	}
	resp, err := c.CallEndpoint(ctx, "loadCodeAssist", loadBody)
	if err != nil {
		return "", err
	}
	if project := gjson.GetBytes(resp, "cloudaicompanionProject").String(); project != "" {
		return c.cacheProject(project), nil
	}

	tierID := "free-tier"
	gjson.GetBytes(resp, "allowedTiers").ForEach(func(_, tier gjson.Result) bool {
		if tier.Get("isDefault").Bool() {
			tierID = tier.Get("id").String()
			return false
		}
		return true
	})

	onboardBody := map[string]interface{}{
		"tierId":                  tierID,
		"cloudaicompanionProject": defaultProject,
	}

	for attempt := 0; attempt < maxOnboardAttempts; attempt++ {
		resp, err := c.CallEndpoint(ctx, "onboardUser", onboardBody)
		if err != nil {
			return "", err
		}
		if gjson.GetBytes(resp, "done").Bool() {
			project := gjson.GetBytes(resp, "response.cloudaicompanionProject.id").String()
			if project == "" {
				project = defaultProject
			}
			return c.cacheProject(project), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardPollDelay):
		}
	}

	return "", &OnboardingTimeout{Attempts: maxOnboardAttempts}
}

func (c *Client) cacheProject(project string) string {
	c.onboardMu.Lock()
	c.project = project
	c.onboarded = true
	c.onboardMu.Unlock()
	return project
}
