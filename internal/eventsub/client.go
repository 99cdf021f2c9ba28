package eventsub

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout = 10 * time.Second
	// defaultKeepalive covers the window before the welcome message reports
	// the real keepalive timeout.
	defaultKeepalive = 10 * time.Second
	// keepaliveGrace is added on top of the server-reported keepalive
	// timeout before a silent connection is treated as dead.
	keepaliveGrace = 5 * time.Second
)

// SessionHandler consumes the control messages of one connection.
// Implemented by session.Manager.
type SessionHandler interface {
	HandleOpen()
	HandleWelcome(ctx context.Context, s Session)
	HandleReconnect(s Session)
	Active() bool
}

// NotificationHandler consumes classified prediction notifications.
// Implemented by prediction.Machine.
type NotificationHandler interface {
	HandleNotification(subscriptionType string, event *PredictionEvent)
}

// Client maintains the persistent EventSub websocket connection. Frames are
// read and dispatched one at a time, in arrival order, on a single
// goroutine; the state machines downstream depend on later messages being
// authoritative over earlier ones.
type Client struct {
	sessions      SessionHandler
	notifications NotificationHandler
	health        *Health
	dialer        *websocket.Dialer

	mu     sync.Mutex
	target string // next dial target; swapped by session_reconnect
}

func NewClient(url string, sessions SessionHandler, notifications NotificationHandler, health *Health) *Client {
	return &Client{
		sessions:      sessions,
		notifications: notifications,
		health:        health,
		dialer:        &websocket.Dialer{HandshakeTimeout: dialTimeout},
		target:        url,
	}
}

// Target returns the current dial target.
func (c *Client) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *Client) setTarget(url string) {
	c.mu.Lock()
	c.target = url
	c.mu.Unlock()
}

// Run dials and reads until ctx is cancelled. A dropped connection is
// redialed against the current target with exponential backoff; no frame is
// ever processed concurrently with another.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		c.sessions.HandleOpen()

		err = c.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("target", c.Target()).Msg("eventsub connection lost, redialing")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	operation := func() error {
		target := c.Target()
		var err error
		conn, _, err = c.dialer.DialContext(ctx, target, nil)
		if err != nil {
			c.health.RecordDialFailure(err)
			log.Warn().Err(err).Str("target", target).Msg("eventsub dial failed")
			return err
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 0 // retry until cancelled
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}

	c.health.RecordDialSuccess()
	log.Info().Str("target", c.Target()).Msg("eventsub connected")
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	keepalive := defaultKeepalive
	conn.SetReadDeadline(time.Now().Add(keepalive + keepaliveGrace))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(keepalive + keepaliveGrace))

		msg, err := ParseMessage(data)
		if err != nil {
			// A malformed frame is discarded and reported; the connection
			// stays open and the next frame is processed normally.
			c.health.RecordMalformedFrame(err)
			log.Error().Err(err).Msg("discarding malformed eventsub frame")
			continue
		}
		if msg == nil {
			continue
		}

		switch m := msg.(type) {
		case *Welcome:
			if m.Session.KeepaliveTimeoutSeconds > 0 {
				keepalive = time.Duration(m.Session.KeepaliveTimeoutSeconds) * time.Second
				conn.SetReadDeadline(time.Now().Add(keepalive + keepaliveGrace))
			}
			c.sessions.HandleWelcome(ctx, m.Session)

		case *Keepalive:
			// Deadline already refreshed above; nothing else to do.

		case *Reconnect:
			// Swap the dial target for the next connection. The server
			// closes the old transport shortly after, which ends this read
			// loop and redials against the new target. A reconnect without
			// a url retains the previous target.
			if m.Session.ReconnectURL != nil && *m.Session.ReconnectURL != "" {
				c.setTarget(*m.Session.ReconnectURL)
			}
			c.sessions.HandleReconnect(m.Session)

		case *Notification:
			if !c.sessions.Active() {
				log.Debug().
					Str("subscription", m.SubscriptionType()).
					Msg("notification before session active, processing anyway")
			}
			c.notifications.HandleNotification(m.SubscriptionType(), m.Event)

		case *Revocation:
			log.Warn().
				Str("subscription", m.Subscription.Type).
				Str("status", m.Subscription.Status).
				Msg("eventsub subscription revoked")
		}
	}
}
