package eventsub

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared across ParseMessage calls; field names in errors come
// from json tags so paths match the wire format.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError reports a single frame that did not match the expected
// schema. Path points at the offending field in wire terms
// (e.g. "payload.session.id") so protocol drift can be diagnosed from logs.
type ValidationError struct {
	Path     string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema violation at %s: expected %s", e.Path, e.Expected)
}

// ParseMessage decodes and validates one raw frame. It returns a tagged
// Message variant, or (nil, nil) for well-formed frames of an unrecognized
// message type, which are ignored for forward compatibility. Unknown extra
// fields never cause a failure at any nesting level.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeError("", err)
	}
	if err := validate.Struct(env.Metadata); err != nil {
		return nil, fieldError("metadata", err)
	}

	switch env.Metadata.MessageType {
	case TypeWelcome:
		s, err := parseSession(env.Payload)
		if err != nil {
			return nil, err
		}
		return &Welcome{Metadata: env.Metadata, Session: *s}, nil

	case TypeKeepalive:
		return &Keepalive{Metadata: env.Metadata}, nil

	case TypeReconnect:
		s, err := parseSession(env.Payload)
		if err != nil {
			return nil, err
		}
		return &Reconnect{Metadata: env.Metadata, Session: *s}, nil

	case TypeNotification:
		return parseNotification(env)

	case TypeRevocation:
		sub, err := parseSubscription(env.Payload)
		if err != nil {
			return nil, err
		}
		return &Revocation{Metadata: env.Metadata, Subscription: *sub}, nil

	default:
		return nil, nil
	}
}

func parseSession(payload json.RawMessage) (*Session, error) {
	if len(payload) == 0 {
		return nil, &ValidationError{Path: "payload", Expected: "object"}
	}
	var p struct {
		Session *Session `json:"session"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, decodeError("payload", err)
	}
	if p.Session == nil {
		return nil, &ValidationError{Path: "payload.session", Expected: "object"}
	}
	if err := validate.Struct(p.Session); err != nil {
		return nil, fieldError("payload.session", err)
	}
	return p.Session, nil
}

func parseSubscription(payload json.RawMessage) (*Subscription, error) {
	if len(payload) == 0 {
		return nil, &ValidationError{Path: "payload", Expected: "object"}
	}
	var p struct {
		Subscription *Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, decodeError("payload", err)
	}
	if p.Subscription == nil {
		return nil, &ValidationError{Path: "payload.subscription", Expected: "object"}
	}
	if err := validate.Struct(p.Subscription); err != nil {
		return nil, fieldError("payload.subscription", err)
	}
	return p.Subscription, nil
}

func parseNotification(env envelope) (Message, error) {
	if len(env.Payload) == 0 {
		return nil, &ValidationError{Path: "payload", Expected: "object"}
	}
	var p struct {
		Subscription *Subscription   `json:"subscription"`
		Event        json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, decodeError("payload", err)
	}
	if p.Subscription == nil {
		return nil, &ValidationError{Path: "payload.subscription", Expected: "object"}
	}
	if err := validate.Struct(p.Subscription); err != nil {
		return nil, fieldError("payload.subscription", err)
	}

	n := &Notification{Metadata: env.Metadata, Subscription: *p.Subscription}
	if !strings.HasPrefix(n.SubscriptionType(), "channel.prediction.") {
		// Well-formed but unmodeled subscription type; delivered with a nil
		// event and ignored downstream.
		return n, nil
	}

	if len(p.Event) == 0 {
		return nil, &ValidationError{Path: "payload.event", Expected: "object"}
	}
	var ev PredictionEvent
	if err := json.Unmarshal(p.Event, &ev); err != nil {
		return nil, decodeError("payload.event", err)
	}
	if err := validate.Struct(&ev); err != nil {
		return nil, fieldError("payload.event", err)
	}
	if ev.WinningOutcomeID != "" {
		if _, ok := ev.Outcome(ev.WinningOutcomeID); !ok {
			return nil, &ValidationError{
				Path:     "payload.event.winning_outcome_id",
				Expected: "id present in outcomes",
			}
		}
	}
	n.Event = &ev
	return n, nil
}

// decodeError converts json decode failures into ValidationErrors where the
// failure names a field; syntax errors are wrapped as-is.
func decodeError(prefix string, err error) error {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		path := te.Field
		if prefix != "" {
			if path != "" {
				path = prefix + "." + path
			} else {
				path = prefix
			}
		}
		return &ValidationError{Path: path, Expected: te.Type.String()}
	}
	if prefix == "" {
		prefix = "frame"
	}
	return fmt.Errorf("decoding %s: %w", prefix, err)
}

// fieldError converts validator failures into a ValidationError for the
// first violated field, prefixed with its wire path.
func fieldError(prefix string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("validating %s: %w", prefix, err)
	}
	fe := verrs[0]
	// Namespace starts with the struct's type name; swap it for the wire
	// prefix of the object being validated.
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = prefix + path[i:]
	} else {
		path = prefix
	}
	expected := fe.Tag()
	if fe.Param() != "" {
		expected += "=" + fe.Param()
	}
	return &ValidationError{Path: path, Expected: expected}
}
