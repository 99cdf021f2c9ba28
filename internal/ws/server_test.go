package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-overlay/backend/internal/eventsub"
	"github.com/prediction-overlay/backend/internal/prediction"
)

func newTestServer(t *testing.T, health *eventsub.Health, authToken string) (*httptest.Server, *Broadcaster) {
	t.Helper()
	if health == nil {
		health = eventsub.NewHealth()
	}

	source := func() prediction.Snapshot { return startedSnapshot("pred-1") }
	b := NewBroadcaster(source, time.Hour)
	t.Cleanup(b.Close)

	s := NewServer(source, b, health, "", nil, nil, authToken)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b
}

func TestServerWSDeliversSnapshot(t *testing.T) {
	srv, b := newTestServer(t, nil, "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readSnapshot(t, conn)
	assert.Equal(t, MsgSnapshot, msg.Type)
	require.NotNil(t, msg.Payload.Event)
	assert.Equal(t, "pred-1", msg.Payload.Event.ID)

	b.Publish(startedSnapshot("pred-2"))
	msg = readSnapshot(t, conn)
	assert.Equal(t, "pred-2", msg.Payload.Event.ID)
}

func TestServerPredictionAPI(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")

	resp, err := http.Get(srv.URL + "/api/prediction")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap prediction.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, prediction.Started, snap.Phase)
	require.NotNil(t, snap.Event)
	assert.Equal(t, "pred-1", snap.Event.ID)
}

func TestServerHealthz(t *testing.T) {
	health := eventsub.NewHealth()
	srv, _ := newTestServer(t, health, "")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthzResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, eventsub.StatusHealthy, body.EventSub.Status)
}

func TestServerHealthzFailedIs503(t *testing.T) {
	health := eventsub.NewHealth()
	for i := 0; i < 3; i++ {
		health.RecordDialFailure(assert.AnError)
	}
	srv, _ := newTestServer(t, health, "")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerAuthorization(t *testing.T) {
	srv, _ := newTestServer(t, nil, "s3cret")

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"NoToken", "/api/prediction", "", http.StatusUnauthorized},
		{"QueryToken", "/api/prediction?token=s3cret", "", http.StatusOK},
		{"WrongQueryToken", "/api/prediction?token=nope", "", http.StatusUnauthorized},
		{"BearerToken", "/api/prediction", "Bearer s3cret", http.StatusOK},
		{"WrongBearerToken", "/api/prediction", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+tt.url, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServerHealthzSkipsAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil, "s3cret")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	newReq := func(origin, host string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("DefaultAllowsLocalhostAndSameHost", func(t *testing.T) {
		s := NewServer(nil, nil, nil, "", nil, nil, "")
		assert.True(t, s.checkOrigin(newReq("", "example.com")))
		assert.True(t, s.checkOrigin(newReq("http://localhost:3000", "example.com")))
		assert.True(t, s.checkOrigin(newReq("http://127.0.0.1:8080", "example.com")))
		assert.True(t, s.checkOrigin(newReq("https://example.com", "example.com")))
		assert.False(t, s.checkOrigin(newReq("https://evil.com", "example.com")))
	})

	t.Run("AllowlistIsExclusive", func(t *testing.T) {
		s := NewServer(nil, nil, nil, "", nil, []string{"https://overlay.example.com"}, "")
		assert.True(t, s.checkOrigin(newReq("https://overlay.example.com", "example.com")))
		assert.False(t, s.checkOrigin(newReq("http://localhost:3000", "example.com")))
		assert.False(t, s.checkOrigin(newReq("https://evil.com", "example.com")))
	})
}
