// Package ws fans the prediction display state out to connected overlay
// pages and serves the overlay's HTTP surface.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/prediction-overlay/backend/internal/prediction"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes snapshot messages to every connected overlay client.
// Readers only ever receive copies produced by the source func; they cannot
// reach the machine's canonical state.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	source         func() prediction.Snapshot
	snapshotTicker *time.Ticker
	done           chan struct{}
}

// NewBroadcaster wraps a snapshot source, typically
// (*prediction.Machine).Snapshot. A periodic full snapshot is pushed every
// snapshotInterval so overlay pages recover from missed frames.
func NewBroadcaster(source func() prediction.Snapshot, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients: make(map[*client]bool),
		source:  source,
		done:    make(chan struct{}),
	}
	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()
	return b
}

// Close stops the periodic snapshot loop and disconnects all clients.
func (b *Broadcaster) Close() {
	b.snapshotTicker.Stop()
	close(b.done)

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}

// AddClient registers a connection and immediately sends it the current
// snapshot. The snapshot is queued before the client becomes visible to
// broadcasts, so nobody else can touch its send channel yet.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	data, err := json.Marshal(WSMessage{Type: MsgSnapshot, Payload: b.source()})
	if err == nil {
		c.send <- data
	}

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish fans one snapshot out to all clients. Wired to the prediction
// machine's change hook, so it runs on the message-processing goroutine in
// arrival order.
func (b *Broadcaster) Publish(snap prediction.Snapshot) {
	b.broadcast(WSMessage{Type: MsgSnapshot, Payload: snap})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(WSMessage{Type: MsgSnapshot, Payload: b.source()})
		}
	}
}

// broadcast queues data for every registered client. Sends happen under the
// read lock while RemoveClient closes send channels under the write lock, so
// a send can never race a close. Slow clients are collected and removed once
// the lock is released.
func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("broadcast marshal error")
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("client", c.id).Msg("overlay client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
