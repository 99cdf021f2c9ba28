package helix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/prediction-overlay/backend/internal/eventsub"
)

type recordedRequest struct {
	auth     string
	clientID string
	body     subscriptionRequest
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Options{
		BaseURL:        srv.URL,
		ClientID:       "client-1",
		Token:          "token-1",
		RequestsPerSec: 1000,
	})
}

func TestRegisterCreatesAllPredictionSubscriptions(t *testing.T) {
	var mu sync.Mutex
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/eventsub/subscriptions", r.URL.Path)

		var body subscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		requests = append(requests, recordedRequest{
			auth:     r.Header.Get("Authorization"),
			clientID: r.Header.Get("Client-Id"),
			body:     body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	require.NoError(t, c.Register(context.Background(), "1337", "sess-1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, len(eventsub.PredictionSubscriptionTypes))
	for i, subType := range eventsub.PredictionSubscriptionTypes {
		req := requests[i]
		assert.Equal(t, "Bearer token-1", req.auth)
		assert.Equal(t, "client-1", req.clientID)
		assert.Equal(t, subType, req.body.Type)
		assert.Equal(t, "1", req.body.Version)
		assert.Equal(t, "1337", req.body.Condition.BroadcasterUserID)
		assert.Equal(t, "websocket", req.body.Transport.Method)
		assert.Equal(t, "sess-1", req.body.Transport.SessionID)
	}
}

func TestRegisterTreatsConflictAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	assert.NoError(t, c.Register(context.Background(), "1337", "sess-1"),
		"existing subscriptions make re-registration a no-op")
}

func TestRegisterRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	require.NoError(t, c.Register(context.Background(), "1337", "sess-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(eventsub.PredictionSubscriptionTypes)+1, attempts)
}

func TestRegisterDoesNotRetryClientErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.Register(context.Background(), "1337", "sess-1")
	require.Error(t, err)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "a 403 is permanent, not retried")
}

func TestClientRateLimiterSustainsConfiguredRate(t *testing.T) {
	c := NewClient(Options{RequestsPerSec: 3})
	assert.Equal(t, rate.Limit(3), c.limiter.Limit())
	assert.Equal(t, 3, c.limiter.Burst())

	c = NewClient(Options{})
	assert.Equal(t, rate.Limit(defaultRequestsPerSec), c.limiter.Limit())
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusTooManyRequests}
	assert.Equal(t, "helix returned 429 Too Many Requests", err.Error())
}
