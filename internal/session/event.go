package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/zeebo/blake3"
)

// EventType names a signing provider event.
type EventType string

// Provider events.
const (
	EventLocked           EventType = "casper-wallet:locked"
	EventUnlocked         EventType = "casper-wallet:unlocked"
	EventTabChanged       EventType = "casper-wallet:tabChanged"
	EventConnected        EventType = "casper-wallet:connected"
	EventDisconnected     EventType = "casper-wallet:disconnected"
	EventActiveKeyChanged EventType = "casper-wallet:activeKeyChanged"
)

// ErrEventParse marks an event that could not be decoded. The state machine
// logs and drops such events.
var ErrEventParse = errors.New("event parse failure")

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// RawEvent is an event as delivered by the provider: a type name and a
// JSON-encoded detail string.
type RawEvent struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Fingerprint returns a digest identifying this exact delivery.
func (r RawEvent) Fingerprint() [32]byte {
	h := blake3.New()
	h.Write([]byte(r.Type))
	h.Write([]byte{0})
	h.Write([]byte(r.Detail))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// payload is the provider state carried by every event.
type payload struct {
	IsLocked    *bool   `json:"isLocked"    validate:"required"`
	IsConnected *bool   `json:"isConnected" validate:"required"`
	ActiveKey   *string `json:"activeKey"`
}

// UnmarshalJSON implements json.Unmarshaler
func (p *payload) UnmarshalJSON(data []byte) error {
	type alias *payload
	buf := (alias)(p)

	if err := json.Unmarshal(data, buf); err != nil {
		return err
	}

	return payloadValidator.Struct(p)
}

// Event is a parsed provider event.
type Event struct {
	Type      EventType
	Locked    bool
	Connected bool
	ActiveKey optional.Option[types.PublicKey]
}

// flags is the lenient view of a payload used by events that carry no key.
type flags struct {
	IsLocked    *bool `json:"isLocked"`
	IsConnected *bool `json:"isConnected"`
}

// ParseEvent decodes a raw event. Any failure wraps ErrEventParse.
//
// Locked and Disconnected are accepted on their type name alone; their
// detail is read when it decodes and ignored otherwise. The other events
// must carry a complete payload.
func ParseEvent(raw RawEvent) (Event, error) {
	typ := EventType(raw.Type)
	switch typ {
	case EventLocked:
		ev := Event{Type: typ, Locked: true}
		var f flags
		if json.Unmarshal([]byte(raw.Detail), &f) == nil && f.IsConnected != nil {
			ev.Connected = *f.IsConnected
		}
		return ev, nil
	case EventDisconnected:
		ev := Event{Type: typ}
		var f flags
		if json.Unmarshal([]byte(raw.Detail), &f) == nil && f.IsLocked != nil {
			ev.Locked = *f.IsLocked
		}
		return ev, nil
	case EventUnlocked, EventTabChanged, EventConnected, EventActiveKeyChanged:
	default:
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrEventParse, raw.Type)
	}

	var p payload
	if err := json.Unmarshal([]byte(raw.Detail), &p); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrEventParse, raw.Type, err)
	}

	ev := Event{Type: typ, Locked: *p.IsLocked, Connected: *p.IsConnected}
	if p.ActiveKey != nil && *p.ActiveKey != "" {
		key, err := types.ParsePublicKey(*p.ActiveKey)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %s: active key: %v", ErrEventParse, raw.Type, err)
		}
		ev.ActiveKey = optional.Some(key)
	}
	return ev, nil
}

// NewRawEvent encodes an event in provider form.
func NewRawEvent(typ EventType, locked, connected bool, activeKey optional.Option[string]) RawEvent {
	p := struct {
		IsLocked    bool    `json:"isLocked"`
		IsConnected bool    `json:"isConnected"`
		ActiveKey   *string `json:"activeKey"`
	}{IsLocked: locked, IsConnected: connected}
	if activeKey.IsSome() {
		k := activeKey.Unwrap()
		p.ActiveKey = &k
	}
	detail, _ := json.Marshal(p)
	return RawEvent{Type: string(typ), Detail: string(detail)}
}
