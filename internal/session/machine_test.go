package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
)

func some(k string) optional.Option[string] { return optional.Some(k) }

func none() optional.Option[string] { return optional.None[string]() }

func newTestMachine(t *testing.T, db storage.DB, ctrl Controller) *Machine {
	t.Helper()
	m, err := NewMachine(NewStore(db), ctrl)
	if err != nil {
		t.Fatalf("NewMachine() error: %v", err)
	}
	return m
}

func persistedKey(t *testing.T, db storage.DB) (optional.Option[types.PublicKey], bool) {
	t.Helper()
	key, found, err := NewStore(db).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return key, found
}

func mustApply(t *testing.T, m *Machine, raw RawEvent) State {
	t.Helper()
	st, err := m.Apply(raw)
	if err != nil {
		t.Fatalf("Apply(%s) error: %v", raw.Type, err)
	}
	return st
}

func TestMachine_StartsUnknown(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	if st := m.Snapshot(); st.Status != StatusUnknown || st.Connected() {
		t.Errorf("initial state = %+v", st)
	}
}

func TestMachine_RestoresPersisted(t *testing.T) {
	db := storage.NewMemory()
	key, _ := types.ParsePublicKey(keyA)
	if err := NewStore(db).Save(optional.Some(key)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	m := newTestMachine(t, db, nil)
	st := m.Snapshot()
	if st.Status != StatusConnected || !st.ActiveKey.Unwrap().Equal(key) {
		t.Errorf("restored state = %+v", st)
	}

	if err := NewStore(db).Save(optional.None[types.PublicKey]()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if st := newTestMachine(t, db, nil).Snapshot(); st.Status != StatusDisconnected {
		t.Errorf("restored state = %+v, want disconnected", st)
	}
}

func TestMachine_Reconciliation(t *testing.T) {
	db := storage.NewMemory()
	m := newTestMachine(t, db, nil)

	st := mustApply(t, m, NewRawEvent(EventUnlocked, false, true, some(keyA)))
	if st.Status != StatusConnected || st.ActiveKey.Unwrap().String() != keyA {
		t.Fatalf("after unlock = %+v", st)
	}

	st = mustApply(t, m, NewRawEvent(EventTabChanged, false, true, some(keyB)))
	if st.ActiveKey.Unwrap().String() != keyB {
		t.Fatalf("after tab change = %+v", st)
	}
	if key, _ := persistedKey(t, db); key.Unwrap().String() != keyB {
		t.Errorf("persisted = %v, want %s", key, keyB)
	}

	st = mustApply(t, m, NewRawEvent(EventDisconnected, false, false, none()))
	if st.Status != StatusDisconnected || st.Connected() {
		t.Fatalf("after disconnect = %+v", st)
	}
	key, found := persistedKey(t, db)
	if !found || key.IsSome() {
		t.Errorf("persisted = %v (found %v), want null", key, found)
	}
}

func TestTransition(t *testing.T) {
	a, _ := types.ParsePublicKey(keyA)
	b, _ := types.ParsePublicKey(keyB)
	connA := connectedTo(a)
	unknown := State{Status: StatusUnknown}

	tests := []struct {
		name string
		cur  State
		ev   Event
		want State
	}{
		{"connected with key", unknown, Event{Type: EventConnected, ActiveKey: optional.Some(b)}, connectedTo(b)},
		{"connected without key keeps state", connA, Event{Type: EventConnected}, connA},
		{"active key changed", connA, Event{Type: EventActiveKeyChanged, ActiveKey: optional.Some(b)}, connectedTo(b)},
		{"active key cleared", connA, Event{Type: EventActiveKeyChanged}, disconnected},
		{"tab changed to unconnected site", connA, Event{Type: EventTabChanged}, disconnected},
		{"unlocked with key", disconnected, Event{Type: EventUnlocked, ActiveKey: optional.Some(a)}, connA},
		{"unlocked without key", unknown, Event{Type: EventUnlocked}, disconnected},
		{"disconnected", connA, Event{Type: EventDisconnected}, disconnected},
		{"locked is ignored", connA, Event{Type: EventLocked}, connA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transition(tt.cur, tt.ev); !got.Equal(tt.want) {
				t.Errorf("transition() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMachine_MalformedIgnored(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))

	bad := []RawEvent{
		{Type: string(EventUnlocked), Detail: "{not json"},
		{Type: "casper-wallet:unknown", Detail: `{"isLocked":false,"isConnected":false}`},
		{Type: string(EventActiveKeyChanged), Detail: `{"isConnected":true}`},
	}
	for _, raw := range bad {
		st, err := m.Apply(raw)
		if err != nil {
			t.Fatalf("Apply() error: %v", err)
		}
		if st.ActiveKey.Unwrap().String() != keyA {
			t.Errorf("malformed %s changed state to %+v", raw.Type, st)
		}
	}
}

func TestMachine_DisconnectedWithoutDetail(t *testing.T) {
	for _, detail := range []string{"{}", "", `{"activeKey":null}`, "{not json"} {
		t.Run(detail, func(t *testing.T) {
			db := storage.NewMemory()
			m := newTestMachine(t, db, nil)
			mustApply(t, m, NewRawEvent(EventUnlocked, false, true, some(keyA)))

			st := mustApply(t, m, RawEvent{Type: string(EventDisconnected), Detail: detail})
			if st.Status != StatusDisconnected || st.Connected() {
				t.Errorf("state = %+v, want disconnected", st)
			}
			key, found := persistedKey(t, db)
			if !found || key.IsSome() {
				t.Errorf("persisted = %v (found %v), want null", key, found)
			}
			raw, err := db.Get([]byte(SlotKey))
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if string(raw) != `{"publicKey":null}` {
				t.Errorf("slot = %s", raw)
			}
		})
	}
}

func TestMachine_LockedWithoutDetail(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))

	st := mustApply(t, m, RawEvent{Type: string(EventLocked), Detail: ""})
	if st.Status != StatusConnected || st.ActiveKey.Unwrap().String() != keyA {
		t.Errorf("locked changed state to %+v", st)
	}
}

func TestMachine_SameKeyDifferentCase(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))

	ch, cancel := m.Subscribe()
	defer cancel()

	st := mustApply(t, m, NewRawEvent(EventActiveKeyChanged, false, true, some(strings.ToUpper(keyA[:2])+strings.ToUpper(keyA[2:]))))
	if st.ActiveKey.Unwrap().String() != keyA {
		t.Errorf("active key respelled to %s", st.ActiveKey.Unwrap())
	}
	select {
	case s := <-ch:
		t.Errorf("unexpected notification %+v", s)
	default:
	}
}

type failingDB struct {
	storage.DB
	fail bool
}

func (f *failingDB) Put(key, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.DB.Put(key, value)
}

func TestMachine_PersistFailureKeepsState(t *testing.T) {
	db := &failingDB{DB: storage.NewMemory()}
	m := newTestMachine(t, db, nil)
	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))

	ch, cancel := m.Subscribe()
	defer cancel()

	db.fail = true
	raw := NewRawEvent(EventDisconnected, false, false, none())
	st, err := m.Apply(raw)
	if err == nil {
		t.Fatal("Apply() should report the persistence failure")
	}
	if st.ActiveKey.IsNone() || m.Snapshot().ActiveKey.IsNone() {
		t.Error("state must not change when persistence fails")
	}
	select {
	case s := <-ch:
		t.Errorf("unexpected notification %+v", s)
	default:
	}

	// The same delivery is retried once storage recovers.
	db.fail = false
	if st := mustApply(t, m, raw); st.Status != StatusDisconnected {
		t.Errorf("retry state = %+v", st)
	}
}

func TestMachine_Subscribe(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	ch, cancel := m.Subscribe()

	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))
	mustApply(t, m, NewRawEvent(EventActiveKeyChanged, false, true, some(keyB)))

	first := <-ch
	second := <-ch
	if first.ActiveKey.Unwrap().String() != keyA || second.ActiveKey.Unwrap().String() != keyB {
		t.Errorf("notifications = %+v, %+v", first, second)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// No panic sending after cancel.
	mustApply(t, m, NewRawEvent(EventDisconnected, false, false, none()))
}

func TestMachine_SlowSubscriberSeesLatest(t *testing.T) {
	m := newTestMachine(t, storage.NewMemory(), nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	keys := []string{keyA, keyB}
	for i := 0; i < subscriberBuffer*2+1; i++ {
		mustApply(t, m, NewRawEvent(EventActiveKeyChanged, false, true, some(keys[i%2])))
	}

	var last State
	for len(ch) > 0 {
		last = <-ch
	}
	if !last.Equal(m.Snapshot()) {
		t.Errorf("last notification %+v, snapshot %+v", last, m.Snapshot())
	}
}

type fakeController struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	switches    int
	stateAtCall State
	machine     *Machine
}

func (f *fakeController) RequestConnection(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return true, nil
}

func (f *fakeController) DisconnectFromSite(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	if f.machine != nil {
		f.stateAtCall = f.machine.Snapshot()
	}
	return true, nil
}

func (f *fakeController) RequestSwitchAccount(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switches++
	return true, nil
}

func TestMachine_DisconnectIsOptimistic(t *testing.T) {
	db := storage.NewMemory()
	ctrl := &fakeController{}
	m := newTestMachine(t, db, ctrl)
	ctrl.machine = m

	mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))

	ok, err := m.Disconnect(context.Background())
	if err != nil || !ok {
		t.Fatalf("Disconnect() = %v, %v", ok, err)
	}
	if ctrl.disconnects != 1 {
		t.Errorf("provider disconnects = %d", ctrl.disconnects)
	}
	if ctrl.stateAtCall.Status != StatusDisconnected {
		t.Errorf("state seen by provider = %+v, want disconnected", ctrl.stateAtCall)
	}
	if key, found := persistedKey(t, db); !found || key.IsSome() {
		t.Errorf("persisted = %v", key)
	}

	// A repeat of the earlier connect delivery applies again after a local
	// disconnect.
	st := mustApply(t, m, NewRawEvent(EventConnected, false, true, some(keyA)))
	if st.Status != StatusConnected {
		t.Errorf("reconnect state = %+v", st)
	}
}

func TestMachine_ConnectAndSwitch(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestMachine(t, storage.NewMemory(), ctrl)

	if ok, err := m.Connect(context.Background()); err != nil || !ok {
		t.Errorf("Connect() = %v, %v", ok, err)
	}
	if ok, err := m.SwitchAccount(context.Background()); err != nil || !ok {
		t.Errorf("SwitchAccount() = %v, %v", ok, err)
	}
	if ctrl.connects != 1 || ctrl.switches != 1 {
		t.Errorf("calls = %+v", ctrl)
	}
	// Requests do not change local state; events do.
	if m.Snapshot().Status != StatusUnknown {
		t.Errorf("state = %+v", m.Snapshot())
	}

	bare := newTestMachine(t, storage.NewMemory(), nil)
	if _, err := bare.Connect(context.Background()); !errors.Is(err, ErrNoController) {
		t.Errorf("Connect() error = %v, want ErrNoController", err)
	}
}

type chanSource struct {
	ch       chan RawEvent
	released chan struct{}
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan RawEvent, func(), error) {
	return s.ch, func() { close(s.released) }, nil
}

func TestMachine_Run(t *testing.T) {
	db := storage.NewMemory()
	m := newTestMachine(t, db, nil)
	src := &chanSource{ch: make(chan RawEvent), released: make(chan struct{})}

	states, cancelSub := m.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, src) }()

	src.ch <- NewRawEvent(EventConnected, false, true, some(keyA))
	src.ch <- RawEvent{Type: "garbage", Detail: "{}"}
	src.ch <- NewRawEvent(EventActiveKeyChanged, false, true, some(keyB))

	for _, want := range []string{keyA, keyB} {
		select {
		case st := <-states:
			if st.ActiveKey.Unwrap().String() != want {
				t.Errorf("state key = %s, want %s", st.ActiveKey.Unwrap(), want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for state")
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	select {
	case <-src.released:
	default:
		t.Error("subscription not released")
	}
}
