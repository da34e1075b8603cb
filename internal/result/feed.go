package result

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"survivor-pool-bot/internal/model"
)

// FeedClient reads final scores from an external fixture feed. Fixtures
// are matched by their external_ref; fixtures without one, or whose match
// has not finished, yield ErrResultUnavailable.
type FeedClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewFeedClient creates a FeedClient for the given feed endpoint.
func NewFeedClient(baseURL, token string) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// feedMatch mirrors the feed's per-match payload.
type feedMatch struct {
	Status string `json:"status"`
	Score  struct {
		FullTime struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"fullTime"`
	} `json:"score"`
}

// Scores fetches the final score for the fixture's external reference.
func (c *FeedClient) Scores(ctx context.Context, fixture *model.Fixture) (int, int, error) {
	if fixture.ExternalRef == nil {
		return 0, 0, ErrResultUnavailable
	}

	url := fmt.Sprintf("%s/matches/%s", c.baseURL, *fixture.ExternalRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("X-Auth-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("feed request failed: %v: %w", err, ErrResultUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("feed returned status %d: %w", resp.StatusCode, ErrResultUnavailable)
	}

	var match feedMatch
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return 0, 0, fmt.Errorf("failed to decode feed response: %w", err)
	}

	if match.Status != model.FixtureStatusFinished || match.Score.FullTime.Home == nil || match.Score.FullTime.Away == nil {
		return 0, 0, ErrResultUnavailable
	}

	return *match.Score.FullTime.Home, *match.Score.FullTime.Away, nil
}
