package ws

type MessageType string

const (
	// MsgSnapshot carries the full prediction display state
	// (prediction.Snapshot). Sent on connect and after every state machine
	// transition; the overlay re-renders from it wholesale.
	MsgSnapshot MessageType = "snapshot"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}
