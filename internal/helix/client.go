// Package helix registers EventSub subscriptions through the Twitch Helix
// API. It is the overlay's only outbound HTTP surface; token acquisition and
// refresh happen outside this process.
package helix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/prediction-overlay/backend/internal/eventsub"
)

const (
	DefaultBaseURL = "https://api.twitch.tv/helix"

	defaultTimeout        = 30 * time.Second
	defaultRequestsPerSec = 5
	maxRetryElapsed       = 30 * time.Second
)

// Client registers websocket-transport EventSub subscriptions.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	clientID   string
	token      string
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL        string
	ClientID       string
	Token          string
	Timeout        time.Duration
	RequestsPerSec int
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = defaultRequestsPerSec
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		baseURL:    opts.BaseURL,
		clientID:   opts.ClientID,
		token:      opts.Token,
	}
}

type subscriptionRequest struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition subscriptionCondition `json:"condition"`
	Transport subscriptionTransport `json:"transport"`
}

type subscriptionCondition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

type subscriptionTransport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

// Register creates all four channel.prediction.* subscriptions for the
// broadcaster against the given websocket session. Registration is
// idempotent: an already-existing subscription (409) counts as success, so
// re-registering after a duplicate welcome is harmless.
func (c *Client) Register(ctx context.Context, broadcasterUserID, sessionID string) error {
	for _, subType := range eventsub.PredictionSubscriptionTypes {
		if err := c.createSubscription(ctx, subType, broadcasterUserID, sessionID); err != nil {
			return fmt.Errorf("registering %s: %w", subType, err)
		}
	}
	return nil
}

func (c *Client) createSubscription(ctx context.Context, subType, broadcasterUserID, sessionID string) error {
	body, err := json.Marshal(subscriptionRequest{
		Type:      subType,
		Version:   "1",
		Condition: subscriptionCondition{BroadcasterUserID: broadcasterUserID},
		Transport: subscriptionTransport{Method: "websocket", SessionID: sessionID},
	})
	if err != nil {
		return err
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/eventsub/subscriptions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Client-Id", c.clientID)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusAccepted:
			return nil
		case resp.StatusCode == http.StatusConflict:
			// Subscription already exists for this session; fine.
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &StatusError{StatusCode: resp.StatusCode}
		default:
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode})
		}
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = maxRetryElapsed
	return backoff.Retry(operation, backoff.WithContext(strategy, ctx))
}

// StatusError reports a non-success HTTP status from the Helix API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helix returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
