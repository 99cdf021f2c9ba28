// Package eventsub decodes and validates the Twitch EventSub websocket
// protocol: the metadata/payload envelope, the session control messages
// and the channel.prediction.* notification payloads.
package eventsub

import (
	"encoding/json"
	"time"
)

// Envelope message types delivered by the EventSub websocket.
const (
	TypeWelcome      = "session_welcome"
	TypeKeepalive    = "session_keepalive"
	TypeReconnect    = "session_reconnect"
	TypeNotification = "notification"
	TypeRevocation   = "revocation"
)

// Prediction subscription types carried in notification metadata.
const (
	SubPredictionBegin    = "channel.prediction.begin"
	SubPredictionProgress = "channel.prediction.progress"
	SubPredictionLock     = "channel.prediction.lock"
	SubPredictionEnd      = "channel.prediction.end"
)

// PredictionSubscriptionTypes lists every subscription the overlay registers,
// in registration order.
var PredictionSubscriptionTypes = []string{
	SubPredictionBegin,
	SubPredictionProgress,
	SubPredictionLock,
	SubPredictionEnd,
}

// Metadata is present on every inbound frame.
type Metadata struct {
	MessageID           string    `json:"message_id" validate:"required"`
	MessageType         string    `json:"message_type" validate:"required"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type,omitempty"`
	SubscriptionVersion string    `json:"subscription_version,omitempty"`
}

// envelope is the raw frame shape. The payload stays undecoded until the
// message type is known; only the sub-object relevant to that type is
// guaranteed populated.
type envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Session identifies the logical stream. The id is issued on (re)connect and
// binds subscription registrations; ReconnectURL is only set on
// session_reconnect messages.
type Session struct {
	ID                      string    `json:"id" validate:"required"`
	Status                  string    `json:"status"`
	ConnectedAt             time.Time `json:"connected_at"`
	KeepaliveTimeoutSeconds int       `json:"keepalive_timeout_seconds"`
	ReconnectURL            *string   `json:"reconnect_url"`
}

// Subscription describes the registration a notification was delivered for.
type Subscription struct {
	ID      string `json:"id"`
	Type    string `json:"type" validate:"required"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Message is the tagged variant produced by ParseMessage. Each variant
// carries only the fields valid for its message type.
type Message interface {
	messageType() string
}

// Welcome is the first message on a new connection.
type Welcome struct {
	Metadata Metadata
	Session  Session
}

// Keepalive is a liveness signal; it carries no payload.
type Keepalive struct {
	Metadata Metadata
}

// Reconnect instructs the client to move to a new transport endpoint while
// keeping the same logical session.
type Reconnect struct {
	Metadata Metadata
	Session  Session
}

// Notification delivers a subscribed event. Event is nil for subscription
// types the overlay does not model; callers ignore those.
type Notification struct {
	Metadata     Metadata
	Subscription Subscription
	Event        *PredictionEvent
}

// Revocation reports that the upstream service dropped a subscription.
type Revocation struct {
	Metadata     Metadata
	Subscription Subscription
}

func (m *Welcome) messageType() string      { return TypeWelcome }
func (m *Keepalive) messageType() string    { return TypeKeepalive }
func (m *Reconnect) messageType() string    { return TypeReconnect }
func (m *Notification) messageType() string { return TypeNotification }
func (m *Revocation) messageType() string   { return TypeRevocation }

// SubscriptionType returns the notification subtype, preferring the metadata
// field and falling back to the payload subscription.
func (m *Notification) SubscriptionType() string {
	if m.Metadata.SubscriptionType != "" {
		return m.Metadata.SubscriptionType
	}
	return m.Subscription.Type
}
