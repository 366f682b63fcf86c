// Package matching is the client for the external activity-matching oracle.
package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

// MatchPath is appended to the oracle base URL.
const MatchPath = "/match"

// Client asks the oracle for activities matching a date range.
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *zap.Logger
}

// response wraps the oracle answer.
type response struct {
	Matching *actuals.MatchResult `json:"matching"`
}

// NewClient creates an unauthenticated oracle client.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return newClient(baseURL, &http.Client{Timeout: timeout}, log)
}

// NewClientCredentialsClient creates a client whose requests carry a
// token obtained with the OAuth2 client-credentials grant. Tokens are
// cached and refreshed by the oauth2 package.
func NewClientCredentialsClient(ctx context.Context, baseURL string, cc clientcredentials.Config, timeout time.Duration, log *zap.Logger) *Client {
	hc := cc.Client(ctx)
	hc.Timeout = timeout
	return newClient(baseURL, hc, log)
}

// FromConfig picks the plain or client-credentials client. It returns nil
// when no oracle is configured.
func FromConfig(ctx context.Context, cfg config.MatchingConfig, log *zap.Logger) *Client {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.UsesClientCredentials() {
		return NewClientCredentialsClient(ctx, cfg.BaseURL, clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}, cfg.Timeout, log)
	}
	return NewClient(cfg.BaseURL, cfg.Timeout, log)
}

func newClient(baseURL string, hc *http.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + MatchPath,
		httpClient: hc,
		log:        log,
	}
}

// Match posts the request and returns the oracle's result. A response
// without a matching object is an empty result, not an error.
func (c *Client) Match(ctx context.Context, req actuals.MatchRequest) (*actuals.MatchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding match request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building match request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling matching oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("matching oracle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding match response: %w", err)
	}
	if out.Matching == nil {
		out.Matching = &actuals.MatchResult{}
	}

	c.log.Debug("oracle matched",
		zap.Int("activities", len(out.Matching.MatchedActivities)),
		zap.String("total_hours", out.Matching.TotalMatchedHours.String()),
		zap.Duration("took", time.Since(start)))
	return out.Matching, nil
}

var _ actuals.Matcher = (*Client)(nil)
