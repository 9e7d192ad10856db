package deploy

import (
	"math/big"
	"strings"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/clvalue"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
)

// Chain names.
const (
	ChainMainnet = "casper"
	ChainTestnet = "casper-test"
)

// DefaultAuctionHash is the auction contract hash on casper-test.
const DefaultAuctionHash = "93d923e336b20a4c4ca14d592b60e5bd3fe330775618290104f9beb326db7ae2"

// Header defaults.
const (
	DefaultTTL      = 30 * time.Minute
	DefaultGasPrice = 1
)

// BuilderConfig fixes everything a Builder needs besides per-call inputs.
type BuilderConfig struct {
	Clock       func() time.Time
	TTL         time.Duration
	GasPrice    uint64
	Fees        FeeTable
	AuctionHash types.Hash
}

// DefaultBuilderConfig returns the standard configuration for casper-test.
func DefaultBuilderConfig() BuilderConfig {
	auction, _ := types.HexToHash(DefaultAuctionHash)
	return BuilderConfig{
		Clock:       time.Now,
		TTL:         DefaultTTL,
		GasPrice:    DefaultGasPrice,
		Fees:        DefaultFeeTable(),
		AuctionHash: auction,
	}
}

// Builder constructs deploys. It holds no mutable state; every method is a
// pure function of its config and arguments (the clock aside).
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a builder. Zero fields of cfg take their defaults.
func NewBuilder(cfg BuilderConfig) *Builder {
	def := DefaultBuilderConfig()
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.GasPrice == 0 {
		cfg.GasPrice = def.GasPrice
	}
	if cfg.Fees == (FeeTable{}) {
		cfg.Fees = def.Fees
	}
	if cfg.AuctionHash.IsZero() {
		cfg.AuctionHash = def.AuctionHash
	}
	return &Builder{cfg: cfg}
}

// Config returns the effective configuration.
func (b *Builder) Config() BuilderConfig {
	return b.cfg
}

// ContractRef names a stored contract by its hash, or by its package hash
// with an optional version (latest when absent).
type ContractRef struct {
	Hash      types.Hash
	ByPackage bool
	Version   optional.Option[uint32]
}

// ByHash refers to a contract by contract hash.
func ByHash(h types.Hash) ContractRef {
	return ContractRef{Hash: h}
}

// ByPackageHash refers to a contract by package hash.
func ByPackageHash(h types.Hash, version optional.Option[uint32]) ContractRef {
	return ContractRef{Hash: h, ByPackage: true, Version: version}
}

// NativeTransfer builds a transfer of amount motes from sender to recipient.
func (b *Builder) NativeTransfer(chainName, sender, recipient, amount string, id optional.Option[uint64]) (*Deploy, error) {
	if err := requireChain(chainName); err != nil {
		return nil, err
	}
	from, err := parseKey("sender", sender)
	if err != nil {
		return nil, err
	}
	to, err := parseKey("recipient", recipient)
	if err != nil {
		return nil, err
	}
	amt, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}

	idValue := clvalue.NewNone(clvalue.TypeU64)
	if id.IsSome() {
		idValue = clvalue.NewSome(clvalue.NewU64(id.Unwrap()))
	}
	args, err := clvalue.NewArgs(
		clvalue.NamedArg{Name: "amount", Value: amt},
		clvalue.NamedArg{Name: "target", Value: clvalue.NewPublicKey(to)},
		clvalue.NamedArg{Name: "id", Value: idValue},
	)
	if err != nil {
		return nil, &FieldError{Field: "args", Err: err}
	}

	session := ExecutableItem{Kind: ItemTransfer, Args: args}
	return b.assemble(chainName, from, new(big.Int).SetUint64(b.cfg.Fees.Transfer), session)
}

// AuctionEntry builds a delegate, undelegate or redelegate call against the
// auction contract. newValidator is required for Redelegate.
func (b *Builder) AuctionEntry(kind AuctionKind, chainName, delegator, validator, amount string,
	newValidator optional.Option[string]) (*Deploy, error) {
	fee, err := b.cfg.Fees.ForAuction(kind)
	if err != nil {
		return nil, &FieldError{Field: "kind", Err: err}
	}
	if err := requireChain(chainName); err != nil {
		return nil, err
	}
	del, err := parseKey("delegator", delegator)
	if err != nil {
		return nil, err
	}
	val, err := parseKey("validator", validator)
	if err != nil {
		return nil, err
	}
	amt, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}

	items := []clvalue.NamedArg{
		{Name: "delegator", Value: clvalue.NewPublicKey(del)},
		{Name: "validator", Value: clvalue.NewPublicKey(val)},
		{Name: "amount", Value: amt},
	}
	if kind == Redelegate {
		if newValidator.IsNone() || strings.TrimSpace(newValidator.Unwrap()) == "" {
			return nil, fieldErr("new_validator", ErrMissingField, nil)
		}
		nv, err := parseKey("new_validator", newValidator.Unwrap())
		if err != nil {
			return nil, err
		}
		items = append(items, clvalue.NamedArg{Name: "new_validator", Value: clvalue.NewPublicKey(nv)})
	}
	args, err := clvalue.NewArgs(items...)
	if err != nil {
		return nil, &FieldError{Field: "args", Err: err}
	}

	session := ExecutableItem{
		Kind:       ItemStoredContractByHash,
		Hash:       b.cfg.AuctionHash,
		EntryPoint: kind.String(),
		Args:       args,
	}
	return b.assemble(chainName, del, new(big.Int).SetUint64(fee), session)
}

// ContractCall builds a call of entryPoint on a stored contract.
func (b *Builder) ContractCall(chainName, caller string, ref ContractRef, entryPoint string,
	args clvalue.Args, paymentAmount string) (*Deploy, error) {
	if err := requireChain(chainName); err != nil {
		return nil, err
	}
	from, err := parseKey("caller", caller)
	if err != nil {
		return nil, err
	}
	if entryPoint == "" {
		return nil, fieldErr("entry_point", ErrMissingField, nil)
	}
	if ref.Hash.IsZero() {
		return nil, fieldErr("contract", ErrMissingField, nil)
	}
	payment, err := parseBig("payment_amount", paymentAmount)
	if err != nil {
		return nil, err
	}

	session := ExecutableItem{
		Kind:       ItemStoredContractByHash,
		Hash:       ref.Hash,
		EntryPoint: entryPoint,
		Args:       args,
	}
	if ref.ByPackage {
		session.Kind = ItemStoredVersionedContractByHash
		session.Version = ref.Version
	}
	return b.assemble(chainName, from, payment, session)
}

// ModuleBytes builds a deploy that executes the given wasm.
func (b *Builder) ModuleBytes(chainName, caller string, wasm []byte, args clvalue.Args,
	paymentAmount string) (*Deploy, error) {
	if err := requireChain(chainName); err != nil {
		return nil, err
	}
	from, err := parseKey("caller", caller)
	if err != nil {
		return nil, err
	}
	if len(wasm) == 0 {
		return nil, fieldErr("module_bytes", ErrMissingField, nil)
	}
	payment, err := parseBig("payment_amount", paymentAmount)
	if err != nil {
		return nil, err
	}

	session := ExecutableItem{
		Kind:        ItemModuleBytes,
		ModuleBytes: append([]byte(nil), wasm...),
		Args:        args,
	}
	return b.assemble(chainName, from, payment, session)
}

// Cep18Transfer builds a fungible-token transfer: entry point "transfer" on
// the token package with recipient as an account key and amount as U256.
func (b *Builder) Cep18Transfer(chainName, sender string, tokenPackage types.Hash, recipient, amount,
	paymentAmount string) (*Deploy, error) {
	to, err := parseKey("recipient", recipient)
	if err != nil {
		return nil, err
	}
	n, err := clvalue.ParseDecimal(amount)
	if err != nil {
		return nil, fieldErr("amount", ErrInvalidAmount, err)
	}
	amt, err := clvalue.NewU256(n)
	if err != nil {
		return nil, fieldErr("amount", ErrInvalidAmount, err)
	}
	args, err := clvalue.NewArgs(
		clvalue.NamedArg{Name: "recipient", Value: clvalue.NewKey(clvalue.AccountKey(to.AccountHash()))},
		clvalue.NamedArg{Name: "amount", Value: amt},
	)
	if err != nil {
		return nil, &FieldError{Field: "args", Err: err}
	}
	return b.ContractCall(chainName, sender, ByPackageHash(tokenPackage, optional.None[uint32]()),
		"transfer", args, paymentAmount)
}

func (b *Builder) assemble(chainName string, account types.PublicKey, payment *big.Int, session ExecutableItem) (*Deploy, error) {
	pay, err := StandardPayment(payment)
	if err != nil {
		return nil, fieldErr("payment_amount", ErrInvalidAmount, err)
	}
	return New(account, chainName, b.cfg.Clock(), b.cfg.TTL, b.cfg.GasPrice, nil, pay, session), nil
}

func requireChain(chainName string) error {
	if strings.TrimSpace(chainName) == "" {
		return fieldErr("chain_name", ErrMissingField, nil)
	}
	return nil
}

func parseKey(field, s string) (types.PublicKey, error) {
	k, err := types.ParsePublicKey(s)
	if err != nil {
		return types.PublicKey{}, fieldErr(field, ErrInvalidKeyEncoding, err)
	}
	return k, nil
}

func parseBig(field, s string) (*big.Int, error) {
	n, err := clvalue.ParseDecimal(s)
	if err != nil {
		return nil, fieldErr(field, ErrInvalidAmount, err)
	}
	return n, nil
}

func parseAmount(field, s string) (clvalue.Value, error) {
	v, err := clvalue.NewUintFromString(clvalue.TypeU512, s)
	if err != nil {
		return clvalue.Value{}, fieldErr(field, ErrInvalidAmount, err)
	}
	return v, nil
}
