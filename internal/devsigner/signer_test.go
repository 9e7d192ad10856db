package devsigner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/require"
)

var testPassword = []byte("correct horse")

// scriptedApprover answers prompts from fields and records them.
type scriptedApprover struct {
	mu      sync.Mutex
	approve bool
	choice  int
	seen    []ApprovalRequest
}

func (a *scriptedApprover) Approve(_ context.Context, req ApprovalRequest) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, req)
	return a.approve, nil
}

func (a *scriptedApprover) ChooseAccount(_ context.Context, _ string, _ []types.PublicKey, _ int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.choice, nil
}

func newTestSigner(t *testing.T, approver Approver) (*Signer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.json")
	ks, err := CreateKeystore(path, testMnemonic, testPassword, fastParams())
	require.NoError(t, err)
	s := New(ks, Options{Approver: approver, KDF: fastParams()})
	require.NoError(t, s.Unlock(testPassword))
	return s, path
}

func nextEvent(t *testing.T, ch <-chan session.RawEvent) session.Event {
	t.Helper()
	select {
	case raw := <-ch:
		ev, err := session.ParseEvent(raw)
		require.NoError(t, err)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return session.Event{}
	}
}

func TestSigner_Locked(t *testing.T) {
	s, _ := newTestSigner(t, AutoApprover{})
	s.Lock()
	require.True(t, s.Locked())

	ctx := context.Background()
	_, err := s.GetActivePublicKey(ctx)
	require.ErrorIs(t, err, ErrLocked)
	_, err = s.RequestConnection(ctx)
	require.ErrorIs(t, err, ErrLocked)
	_, err = s.Accounts()
	require.ErrorIs(t, err, ErrLocked)

	require.ErrorIs(t, s.Unlock([]byte("wrong")), ErrWrongPassword)
	require.True(t, s.Locked())
	require.NoError(t, s.Unlock(testPassword))
	require.False(t, s.Locked())
}

func TestSigner_ConnectionEvents(t *testing.T) {
	s, _ := newTestSigner(t, AutoApprover{})
	ctx := context.Background()

	events, release, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer release()

	key, err := s.GetActivePublicKey(ctx)
	require.NoError(t, err)
	require.Empty(t, key, "unconnected site must not see the active key")

	ok, err := s.RequestConnection(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ev := nextEvent(t, events)
	require.Equal(t, session.EventConnected, ev.Type)
	require.True(t, ev.Connected)
	active, _ := s.GetActivePublicKey(ctx)
	require.Equal(t, active, ev.ActiveKey.Unwrap().String())

	ok, err = s.DisconnectFromSite(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ev = nextEvent(t, events)
	require.Equal(t, session.EventDisconnected, ev.Type)
	require.True(t, ev.ActiveKey.IsNone())

	ok, _ = s.DisconnectFromSite(ctx)
	require.False(t, ok, "second disconnect is a no-op")

	s.Lock()
	ev = nextEvent(t, events)
	require.Equal(t, session.EventLocked, ev.Type)
	require.True(t, ev.Locked)
}

func TestSigner_SiteIsolation(t *testing.T) {
	s, _ := newTestSigner(t, AutoApprover{})
	siteA := WithSite(context.Background(), "https://a.example")
	siteB := WithSite(context.Background(), "https://b.example")

	eventsB, releaseB, err := s.Subscribe(siteB)
	require.NoError(t, err)
	defer releaseB()

	_, err = s.RequestConnection(siteA)
	require.NoError(t, err)

	connected, err := s.IsConnected(siteB)
	require.NoError(t, err)
	require.False(t, connected)

	keyHex, err := s.GetActivePublicKey(siteA)
	require.NoError(t, err)
	_, err = s.Sign(siteB, gateway.SignRequest{SigningKey: keyHex, Payload: "{}"})
	require.ErrorIs(t, err, ErrNotConnected)

	// Site A's connect is not delivered to site B.
	select {
	case raw := <-eventsB:
		t.Fatalf("site B received %s", raw.Type)
	default:
	}
}

func TestSigner_SignDeploy(t *testing.T) {
	approver := &scriptedApprover{approve: true}
	s, _ := newTestSigner(t, approver)
	ctx := context.Background()
	_, err := s.RequestConnection(ctx)
	require.NoError(t, err)

	g, err := gateway.New(s)
	require.NoError(t, err)
	active, err := g.ActivePublicKey(ctx)
	require.NoError(t, err)
	key := active.Unwrap()

	d, err := deploy.NewBuilder(deploy.DefaultBuilderConfig()).
		AuctionEntry(deploy.Delegate, deploy.ChainTestnet, key.String(), key.String(), "500000000000", optional.None[string]())
	require.NoError(t, err)

	signed, out, err := g.SignAndApprove(ctx, d, key)
	require.NoError(t, err)
	require.True(t, out.Approved(), "outcome = %s", out)
	require.NoError(t, signed.VerifyApprovals())

	last := approver.seen[len(approver.seen)-1]
	require.Equal(t, KindSignDeploy, last.Kind)
	require.Equal(t, d.Hash, last.Deploy.Hash)

	approver.approve = false
	_, out, err = g.SignAndApprove(ctx, d, key)
	require.NoError(t, err)
	require.Equal(t, gateway.OutcomeCancelled, out.Kind)

	_, err = s.Sign(ctx, gateway.SignRequest{SigningKey: key.String(), Payload: `{"deploy":{}}`})
	require.ErrorIs(t, err, ErrInvalidPayload)

	other, _ := crypto.Ed25519KeyFromSeed(make([]byte, 32))
	_, err = s.Sign(ctx, gateway.SignRequest{SigningKey: other.PublicKey().String(), Payload: "{}"})
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestSigner_SignMessage(t *testing.T) {
	s, _ := newTestSigner(t, AutoApprover{})
	ctx := context.Background()
	s.RequestConnection(ctx)
	keyHex, _ := s.GetActivePublicKey(ctx)

	resp, err := s.SignMessage(ctx, gateway.SignRequest{SigningKey: keyHex, Payload: "login nonce 42"})
	require.NoError(t, err)
	key, _ := types.ParsePublicKey(keyHex)
	require.True(t, crypto.VerifySignature(key, crypto.MessageBytes("login nonce 42"), resp.Signature))
}

func TestSigner_AccountsPersist(t *testing.T) {
	s, path := newTestSigner(t, &scriptedApprover{approve: true, choice: 1})
	ctx := context.Background()

	edSeed := make([]byte, 32)
	edSeed[0] = 9
	edKey, err := s.ImportEd25519("cold", edSeed, testPassword)
	require.NoError(t, err)
	_, err = s.ImportEd25519("cold again", edSeed, testPassword)
	require.Error(t, err, "duplicate import")
	_, err = s.ImportEd25519("bad pw", make([]byte, 32), []byte("wrong"))
	require.ErrorIs(t, err, ErrWrongPassword)

	second, err := s.AddAccount("", testPassword)
	require.NoError(t, err)

	keys, err := s.Accounts()
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.True(t, keys[1].Equal(second), "derived accounts come first")
	require.True(t, keys[2].Equal(edKey))

	ok, err := s.RequestSwitchAccount(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Reopen from disk: accounts and selection survive.
	ks, err := OpenKeystore(path)
	require.NoError(t, err)
	reopened := New(ks, Options{KDF: fastParams()})
	require.NoError(t, reopened.Unlock(testPassword))
	keys, err = reopened.Accounts()
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "Account 2", ks.Accounts()[1].Name)
	require.True(t, types.SameKey(ks.Active(), second.String()))

	require.NoError(t, reopened.SetActive(edKey))
	require.ErrorIs(t, reopened.SetActive(types.PublicKey{}), ErrUnknownKey)
}

func TestSigner_SubscribeReleasedByContext(t *testing.T) {
	s, _ := newTestSigner(t, AutoApprover{})
	ctx, cancel := context.WithCancel(context.Background())
	events, release, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer release()

	cancel()
	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released on context cancel")
	}
	release()
}

type readySource struct {
	ch      <-chan session.RawEvent
	release func()
}

func (r readySource) Subscribe(context.Context) (<-chan session.RawEvent, func(), error) {
	return r.ch, r.release, nil
}

func waitState(t *testing.T, states <-chan session.State, want func(session.State) bool) session.State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if want(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for session state")
			return session.State{}
		}
	}
}

// The session machine follows the signer through connect, account switch
// and disconnect, persisting each step.
func TestSigner_SessionReconciliation(t *testing.T) {
	s, _ := newTestSigner(t, &scriptedApprover{approve: true, choice: 1})
	_, err := s.AddAccount("second", testPassword)
	require.NoError(t, err)

	db := storage.NewMemory()
	m, err := session.NewMachine(session.NewStore(db), s)
	require.NoError(t, err)
	states, cancelStates := m.Subscribe()
	defer cancelStates()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, release, err := s.Subscribe(ctx)
	require.NoError(t, err)
	go m.Run(ctx, readySource{ch: events, release: release})

	keys, _ := s.Accounts()

	ok, err := m.Connect(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	st := waitState(t, states, func(st session.State) bool { return st.Connected() })
	require.True(t, st.ActiveKey.Unwrap().Equal(keys[0]))

	ok, err = m.SwitchAccount(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	st = waitState(t, states, func(st session.State) bool {
		return st.Connected() && st.ActiveKey.Unwrap().Equal(keys[1])
	})

	persisted, found, err := session.NewStore(db).Load()
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, persisted.Unwrap().Equal(keys[1]))

	ok, err = m.Disconnect(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, session.StatusDisconnected, m.Snapshot().Status)
	connected, _ := s.IsConnected(ctx)
	require.False(t, connected)

	persisted, _, _ = session.NewStore(db).Load()
	require.True(t, persisted.IsNone())
}
