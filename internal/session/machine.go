package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
)

// Status is the coarse session state.
type Status int

const (
	StatusUnknown Status = iota
	StatusDisconnected
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session.
type State struct {
	Status    Status
	ActiveKey optional.Option[types.PublicKey]
}

// Connected reports whether an active key is present.
func (s State) Connected() bool {
	return s.ActiveKey.IsSome()
}

// Equal compares status and active key, ignoring key hex case.
func (s State) Equal(other State) bool {
	if s.Status != other.Status || s.ActiveKey.IsSome() != other.ActiveKey.IsSome() {
		return false
	}
	return s.ActiveKey.IsNone() || s.ActiveKey.Unwrap().Equal(other.ActiveKey.Unwrap())
}

func connectedTo(key types.PublicKey) State {
	return State{Status: StatusConnected, ActiveKey: optional.Some(key)}
}

var disconnected = State{Status: StatusDisconnected}

// Controller issues session requests to the signing provider.
type Controller interface {
	RequestConnection(ctx context.Context) (bool, error)
	DisconnectFromSite(ctx context.Context) (bool, error)
	RequestSwitchAccount(ctx context.Context) (bool, error)
}

// EventSource delivers provider events. The returned release function ends
// the subscription.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan RawEvent, func(), error)
}

// ErrNoController is returned by provider-backed requests when the machine
// was built without a Controller.
var ErrNoController = errors.New("session has no provider controller")

const subscriberBuffer = 16

// Machine owns the session state. Every transition is persisted before it
// becomes visible to Snapshot or subscribers.
type Machine struct {
	mu      sync.Mutex
	store   *Store
	ctrl    Controller
	state   State
	last    [32]byte
	hasLast bool
	subs    map[int]chan State
	nextSub int
	logger  zerolog.Logger
}

// NewMachine creates a machine initialized from the store. A never-written
// slot leaves the state Unknown.
func NewMachine(store *Store, ctrl Controller) (*Machine, error) {
	m := &Machine{
		store:  store,
		ctrl:   ctrl,
		subs:   make(map[int]chan State),
		logger: log.Session,
	}

	key, found, err := store.Load()
	if err != nil {
		return nil, err
	}
	switch {
	case !found:
		m.state = State{Status: StatusUnknown}
	case key.IsSome():
		m.state = connectedTo(key.Unwrap())
	default:
		m.state = disconnected
	}
	return m, nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel receiving each new state. Slow subscribers
// miss intermediate states but always see the latest one.
func (m *Machine) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Apply parses and applies one raw event and returns the resulting state.
// Unparsable events are logged and ignored. The only error returned is a
// persistence failure, in which case the state is unchanged.
func (m *Machine) Apply(raw RawEvent) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp := raw.Fingerprint()
	if m.hasLast && fp == m.last {
		m.logger.Debug().Str("event", raw.Type).Msg("Duplicate event delivery ignored")
		return m.state, nil
	}

	ev, err := ParseEvent(raw)
	if err != nil {
		m.logger.Warn().Err(err).Str("event", raw.Type).Msg("Dropping malformed event")
		return m.state, nil
	}

	if err := m.commitLocked(transition(m.state, ev)); err != nil {
		return m.state, err
	}
	m.last, m.hasLast = fp, true
	return m.state, nil
}

// transition returns the state that follows cur after ev.
func transition(cur State, ev Event) State {
	switch ev.Type {
	case EventConnected:
		if ev.ActiveKey.IsSome() {
			return connectedTo(ev.ActiveKey.Unwrap())
		}
		return cur
	case EventActiveKeyChanged, EventTabChanged, EventUnlocked:
		if ev.ActiveKey.IsSome() {
			return connectedTo(ev.ActiveKey.Unwrap())
		}
		return disconnected
	case EventDisconnected:
		return disconnected
	default: // EventLocked
		return cur
	}
}

// commitLocked persists next and then publishes it. m.mu must be held.
func (m *Machine) commitLocked(next State) error {
	if next.Equal(m.state) {
		return nil
	}
	if err := m.store.Save(next.ActiveKey); err != nil {
		m.logger.Error().Err(err).Str("status", next.Status.String()).Msg("Failed to persist session")
		return err
	}

	prev := m.state
	m.state = next
	ev := m.logger.Info().Str("from", prev.Status.String()).Str("to", next.Status.String())
	if next.ActiveKey.IsSome() {
		ev = ev.Str("active_key", next.ActiveKey.Unwrap().String())
	}
	ev.Msg("Session changed")

	for _, ch := range m.subs {
		select {
		case ch <- next:
		default:
			// Full: drop the oldest pending state to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
	return nil
}

// Run consumes events from src until ctx is done or the stream closes.
// The subscription is released on return.
func (m *Machine) Run(ctx context.Context, src EventSource) error {
	events, release, err := src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to provider events: %w", err)
	}
	defer release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := m.Apply(raw); err != nil {
				m.logger.Error().Err(err).Str("event", raw.Type).Msg("Event not applied")
			}
		}
	}
}

// Connect asks the provider to connect. The new key arrives as an event.
func (m *Machine) Connect(ctx context.Context) (bool, error) {
	if m.ctrl == nil {
		return false, ErrNoController
	}
	return m.ctrl.RequestConnection(ctx)
}

// SwitchAccount asks the provider to switch accounts. The new key arrives
// as an ActiveKeyChanged event.
func (m *Machine) SwitchAccount(ctx context.Context) (bool, error) {
	if m.ctrl == nil {
		return false, ErrNoController
	}
	return m.ctrl.RequestSwitchAccount(ctx)
}

// Disconnect moves to Disconnected immediately, persists it, and then asks
// the provider to disconnect.
func (m *Machine) Disconnect(ctx context.Context) (bool, error) {
	m.mu.Lock()
	err := m.commitLocked(disconnected)
	// A local transition invalidates duplicate suppression.
	m.hasLast = false
	m.mu.Unlock()
	if err != nil {
		return false, err
	}

	if m.ctrl == nil {
		return false, ErrNoController
	}
	return m.ctrl.DisconnectFromSite(ctx)
}
