// Package devsigner is a software signing provider backed by an encrypted
// HD keystore. It serves development and test setups where no browser
// wallet is available.
package devsigner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
	"github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
)

// Errors.
var (
	ErrLocked         = errors.New("signer is locked")
	ErrNotConnected   = errors.New("site is not connected")
	ErrUnknownKey     = errors.New("signing key not in wallet")
	ErrInvalidPayload = errors.New("invalid sign payload")
)

// DefaultVersion is reported by GetVersion when Options.Version is empty.
const DefaultVersion = "1.0.0"

// DefaultSite is the site used when the context carries none.
const DefaultSite = "local"

const eventBuffer = 32

type siteKey struct{}

// WithSite tags ctx with the requesting site.
func WithSite(ctx context.Context, site string) context.Context {
	return context.WithValue(ctx, siteKey{}, site)
}

// SiteFrom returns the site carried by ctx.
func SiteFrom(ctx context.Context) string {
	if s, ok := ctx.Value(siteKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultSite
}

// Options configure a Signer.
type Options struct {
	Approver Approver
	Version  string
	KDF      KDFParams
}

type subscriber struct {
	site string
	ch   chan session.RawEvent
}

// Signer implements gateway.Provider over a keystore.
type Signer struct {
	mu       sync.Mutex
	ks       *Keystore
	approver Approver
	version  string
	kdf      KDFParams

	unlocked bool
	accounts []account
	active   int
	sites    map[string]bool

	subs    map[int]subscriber
	nextSub int
	logger  zerolog.Logger
}

var _ gateway.Provider = (*Signer)(nil)

// New creates a locked signer over ks.
func New(ks *Keystore, opts Options) *Signer {
	if opts.Approver == nil {
		opts.Approver = DenyApprover{}
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.KDF == (KDFParams{}) {
		opts.KDF = DefaultKDFParams()
	}
	return &Signer{
		ks:       ks,
		approver: opts.Approver,
		version:  opts.Version,
		kdf:      opts.KDF,
		sites:    make(map[string]bool),
		subs:     make(map[int]subscriber),
		logger:   log.Signer,
	}
}

// Unlock decrypts the keystore and loads every account.
func (s *Signer) Unlock(password []byte) error {
	defer log.Benchmark("unlock")()

	seed, err := s.ks.openSeed(password)
	if err != nil {
		return err
	}
	defer zero(seed)

	var accounts []account
	for _, e := range s.ks.Accounts() {
		key, err := DeriveAccount(seed, e.Index)
		if err != nil {
			return err
		}
		if !types.SameKey(key.PublicKey().String(), e.PublicKey) {
			return fmt.Errorf("keystore account %d does not match its seed", e.Index)
		}
		accounts = append(accounts, account{name: e.Name, path: DerivationPath(e.Index), signer: key})
	}
	for _, k := range s.ks.Imported() {
		raw, err := s.ks.openImported(k, password)
		if err != nil {
			return fmt.Errorf("imported key %s: %w", k.Name, err)
		}
		key, err := crypto.Ed25519KeyFromSeed(raw)
		zero(raw)
		if err != nil {
			return err
		}
		accounts = append(accounts, account{name: k.Name, signer: key})
	}
	if len(accounts) == 0 {
		return fmt.Errorf("keystore has no accounts")
	}

	s.mu.Lock()
	s.unlocked = true
	s.accounts = accounts
	s.active = 0
	for i, a := range accounts {
		if types.SameKey(a.publicKey().String(), s.ks.Active()) {
			s.active = i
		}
	}
	s.emitLocked("", session.EventUnlocked)
	s.mu.Unlock()

	s.logger.Info().Int("accounts", len(accounts)).Msg("Signer unlocked")
	return nil
}

// Lock drops all key material.
func (s *Signer) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return
	}
	for _, a := range s.accounts {
		if z, ok := a.signer.(interface{ Zero() }); ok {
			z.Zero()
		}
	}
	s.unlocked = false
	s.accounts = nil
	s.emitLocked("", session.EventLocked)
	s.logger.Info().Msg("Signer locked")
}

// Locked reports whether key material is unavailable.
func (s *Signer) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unlocked
}

// Accounts lists the wallet's public keys in selection order.
func (s *Signer) Accounts() ([]types.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}
	return s.publicKeysLocked(), nil
}

func (s *Signer) publicKeysLocked() []types.PublicKey {
	keys := make([]types.PublicKey, len(s.accounts))
	for i, a := range s.accounts {
		keys[i] = a.publicKey()
	}
	return keys
}

// AddAccount derives the next HD account. The password is needed to read
// the seed.
func (s *Signer) AddAccount(name string, password []byte) (types.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return types.PublicKey{}, ErrLocked
	}
	seed, err := s.ks.openSeed(password)
	if err != nil {
		return types.PublicKey{}, err
	}
	defer zero(seed)

	idx := s.ks.nextIndex()
	key, err := DeriveAccount(seed, idx)
	if err != nil {
		return types.PublicKey{}, err
	}
	if name == "" {
		name = fmt.Sprintf("Account %d", idx+1)
	}
	pub := key.PublicKey()
	if err := s.ks.addAccount(AccountEntry{Index: idx, Name: name, PublicKey: pub.String()}); err != nil {
		return types.PublicKey{}, err
	}
	// Derived accounts precede imported ones.
	derived := len(s.ks.Accounts()) - 1
	s.accounts = append(s.accounts[:derived], append([]account{{name: name, path: DerivationPath(idx), signer: key}}, s.accounts[derived:]...)...)
	if s.active >= derived {
		s.active++
	}
	s.logger.Info().Str("key", pub.String()).Str("path", DerivationPath(idx)).Msg("Account added")
	return pub, nil
}

// ImportEd25519 adds an explicit ed25519 key from its 32-byte seed.
func (s *Signer) ImportEd25519(name string, keySeed, password []byte) (types.PublicKey, error) {
	key, err := crypto.Ed25519KeyFromSeed(keySeed)
	if err != nil {
		return types.PublicKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return types.PublicKey{}, ErrLocked
	}
	// Confirms the password before sealing anything under it.
	seed, err := s.ks.openSeed(password)
	if err != nil {
		return types.PublicKey{}, err
	}
	zero(seed)

	pub := key.PublicKey().String()
	sealed, err := Seal(keySeed, password, importedAAD(pub), s.kdf)
	if err != nil {
		return types.PublicKey{}, err
	}
	if err := s.ks.addImported(ImportedKey{Name: name, PublicKey: pub, EncryptedSeed: sealed}); err != nil {
		return types.PublicKey{}, err
	}
	s.accounts = append(s.accounts, account{name: name, signer: key})
	return key.PublicKey(), nil
}

// SetActive selects the active account and notifies subscribers.
func (s *Signer) SetActive(key types.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return ErrLocked
	}
	for i, a := range s.accounts {
		if a.publicKey().Equal(key) {
			return s.setActiveLocked(i)
		}
	}
	return ErrUnknownKey
}

func (s *Signer) setActiveLocked(i int) error {
	if err := s.ks.setActive(s.accounts[i].publicKey().String()); err != nil {
		return err
	}
	changed := i != s.active
	s.active = i
	if changed {
		s.emitLocked("", session.EventActiveKeyChanged)
	}
	return nil
}

// RequestConnection asks the approver to connect the calling site.
func (s *Signer) RequestConnection(ctx context.Context) (bool, error) {
	site := SiteFrom(ctx)
	s.mu.Lock()
	if !s.unlocked {
		s.mu.Unlock()
		return false, ErrLocked
	}
	if s.sites[site] {
		s.mu.Unlock()
		return true, nil
	}
	active := s.accounts[s.active].publicKey()
	s.mu.Unlock()

	ok, err := s.approver.Approve(ctx, ApprovalRequest{Kind: KindConnect, Site: site, SigningKey: active})
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site] = true
	s.emitLocked(site, session.EventConnected)
	siteLog := log.ForSite(s.logger, site)
	siteLog.Info().Msg("Site connected")
	return true, nil
}

// DisconnectFromSite forgets the calling site.
func (s *Signer) DisconnectFromSite(ctx context.Context) (bool, error) {
	site := SiteFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sites[site] {
		return false, nil
	}
	delete(s.sites, site)
	s.emitLocked(site, session.EventDisconnected)
	siteLog := log.ForSite(s.logger, site)
	siteLog.Info().Msg("Site disconnected")
	return true, nil
}

// RequestSwitchAccount lets the approver pick another account.
func (s *Signer) RequestSwitchAccount(ctx context.Context) (bool, error) {
	site := SiteFrom(ctx)
	s.mu.Lock()
	if !s.unlocked {
		s.mu.Unlock()
		return false, ErrLocked
	}
	keys := s.publicKeysLocked()
	current := s.active
	s.mu.Unlock()

	choice, err := s.approver.ChooseAccount(ctx, site, keys, current)
	if err != nil || choice < 0 {
		return false, err
	}
	if choice >= len(keys) {
		return false, fmt.Errorf("account %d out of range", choice)
	}
	if err := s.SetActive(keys[choice]); err != nil {
		return false, err
	}
	return true, nil
}

// IsConnected reports whether the calling site is connected.
func (s *Signer) IsConnected(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return false, ErrLocked
	}
	return s.sites[SiteFrom(ctx)], nil
}

// GetActivePublicKey returns the active key, or "" if the site is not
// connected.
func (s *Signer) GetActivePublicKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return "", ErrLocked
	}
	if !s.sites[SiteFrom(ctx)] {
		return "", nil
	}
	return s.accounts[s.active].publicKey().String(), nil
}

// GetVersion returns the provider version.
func (s *Signer) GetVersion(context.Context) (string, error) {
	return s.version, nil
}

// signerFor resolves the key for a request from site.
func (s *Signer) signerFor(site, keyHex string) (crypto.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}
	if !s.sites[site] {
		return nil, ErrNotConnected
	}
	for _, a := range s.accounts {
		if types.SameKey(a.publicKey().String(), keyHex) {
			return a.signer, nil
		}
	}
	return nil, ErrUnknownKey
}

// Sign approves and signs a {"deploy": ...} payload. The returned
// signature is the raw 64 bytes over the deploy hash.
func (s *Signer) Sign(ctx context.Context, req gateway.SignRequest) (gateway.SignResponse, error) {
	site := SiteFrom(ctx)
	signer, err := s.signerFor(site, req.SigningKey)
	if err != nil {
		return gateway.SignResponse{}, err
	}

	var wrapped struct {
		Deploy json.RawMessage `json:"deploy"`
	}
	if err := json.Unmarshal([]byte(req.Payload), &wrapped); err != nil || len(wrapped.Deploy) == 0 {
		return gateway.SignResponse{}, fmt.Errorf("%w: missing deploy", ErrInvalidPayload)
	}
	d, err := deploy.Unmarshal(wrapped.Deploy)
	if err != nil {
		return gateway.SignResponse{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ok, err := s.approver.Approve(ctx, ApprovalRequest{
		Kind: KindSignDeploy, Site: site, SigningKey: signer.PublicKey(), Deploy: d,
	})
	if err != nil {
		return gateway.SignResponse{}, err
	}
	if !ok {
		s.logger.Info().Str("request", req.ID).Str("deploy", d.Hash.String()).Msg("Signature declined")
		return gateway.SignResponse{Cancelled: true}, nil
	}

	sig, err := signer.Sign(d.Hash[:])
	if err != nil {
		return gateway.SignResponse{}, err
	}
	s.logger.Info().
		Str("request", req.ID).
		Str("deploy", d.Hash.String()).
		Str("signer", signer.PublicKey().String()).
		Msg("Deploy signed")
	return gateway.SignResponse{Signature: sig}, nil
}

// SignMessage approves and signs an off-chain message.
func (s *Signer) SignMessage(ctx context.Context, req gateway.SignRequest) (gateway.SignResponse, error) {
	site := SiteFrom(ctx)
	signer, err := s.signerFor(site, req.SigningKey)
	if err != nil {
		return gateway.SignResponse{}, err
	}
	ok, err := s.approver.Approve(ctx, ApprovalRequest{
		Kind: KindSignMessage, Site: site, SigningKey: signer.PublicKey(), Message: req.Payload,
	})
	if err != nil {
		return gateway.SignResponse{}, err
	}
	if !ok {
		return gateway.SignResponse{Cancelled: true}, nil
	}
	sig, err := signer.Sign(crypto.MessageBytes(req.Payload))
	if err != nil {
		return gateway.SignResponse{}, err
	}
	return gateway.SignResponse{Signature: sig}, nil
}

// Subscribe streams events as seen by the calling site. The subscription
// ends when release is called or ctx is done.
func (s *Signer) Subscribe(ctx context.Context) (<-chan session.RawEvent, func(), error) {
	sub := subscriber{site: SiteFrom(ctx), ch: make(chan session.RawEvent, eventBuffer)}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(sub.ch)
			s.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, release)
	return sub.ch, func() { stop(); release() }, nil
}

// emitLocked sends typ to subscribers of site, or to all when site is "".
// Each subscriber sees the state from its own site. s.mu must be held.
func (s *Signer) emitLocked(site string, typ session.EventType) {
	for _, sub := range s.subs {
		if site != "" && sub.site != site {
			continue
		}
		connected := s.unlocked && s.sites[sub.site]
		key := optional.None[string]()
		if connected {
			key = optional.Some(s.accounts[s.active].publicKey().String())
		}
		select {
		case sub.ch <- session.NewRawEvent(typ, !s.unlocked, connected, key):
		default:
			siteLog := log.ForSite(s.logger, sub.site)
			siteLog.Warn().Str("event", string(typ)).Msg("Event dropped, subscriber is slow")
		}
	}
}
