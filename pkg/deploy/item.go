package deploy

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/clvalue"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
)

// ItemKind is the tag byte of an executable item.
type ItemKind byte

// Executable item variants.
const (
	ItemModuleBytes                   ItemKind = 0
	ItemStoredContractByHash          ItemKind = 1
	ItemStoredVersionedContractByHash ItemKind = 3
	ItemTransfer                      ItemKind = 5
)

var itemNames = map[ItemKind]string{
	ItemModuleBytes:                   "ModuleBytes",
	ItemStoredContractByHash:          "StoredContractByHash",
	ItemStoredVersionedContractByHash: "StoredVersionedContractByHash",
	ItemTransfer:                      "Transfer",
}

func (k ItemKind) String() string {
	if name, ok := itemNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ItemKind(%d)", byte(k))
}

// ExecutableItem is the payment or session logic of a deploy.
//
// Field use per kind:
//
//	ModuleBytes:                   ModuleBytes, Args
//	StoredContractByHash:          Hash, EntryPoint, Args
//	StoredVersionedContractByHash: Hash (package), Version, EntryPoint, Args
//	Transfer:                      Args
type ExecutableItem struct {
	Kind        ItemKind
	ModuleBytes []byte
	Hash        types.Hash
	Version     optional.Option[uint32]
	EntryPoint  string
	Args        clvalue.Args
}

// StandardPayment returns a payment item carrying only an amount.
func StandardPayment(amount *big.Int) (ExecutableItem, error) {
	v, err := clvalue.NewU512(amount)
	if err != nil {
		return ExecutableItem{}, err
	}
	args, err := clvalue.NewArgs(clvalue.NamedArg{Name: "amount", Value: v})
	if err != nil {
		return ExecutableItem{}, err
	}
	return ExecutableItem{Kind: ItemModuleBytes, Args: args}, nil
}

// Bytes returns the item's serialization.
func (it ExecutableItem) Bytes() []byte {
	buf := []byte{byte(it.Kind)}
	switch it.Kind {
	case ItemModuleBytes:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(it.ModuleBytes)))
		buf = append(buf, it.ModuleBytes...)
	case ItemStoredContractByHash:
		buf = append(buf, it.Hash[:]...)
		buf = appendString(buf, it.EntryPoint)
	case ItemStoredVersionedContractByHash:
		buf = append(buf, it.Hash[:]...)
		if it.Version.IsSome() {
			buf = append(buf, 1)
			buf = binary.LittleEndian.AppendUint32(buf, it.Version.Unwrap())
		} else {
			buf = append(buf, 0)
		}
		buf = appendString(buf, it.EntryPoint)
	}
	return append(buf, it.Args.Bytes()...)
}

// Equal reports structural equality.
func (it ExecutableItem) Equal(other ExecutableItem) bool {
	if it.Kind != other.Kind || it.Hash != other.Hash || it.EntryPoint != other.EntryPoint {
		return false
	}
	if !bytes.Equal(it.ModuleBytes, other.ModuleBytes) {
		return false
	}
	if it.Version.IsSome() != other.Version.IsSome() {
		return false
	}
	if it.Version.IsSome() && it.Version.Unwrap() != other.Version.Unwrap() {
		return false
	}
	return it.Args.Equal(other.Args)
}

// Amount returns the U512 "amount" argument, if present.
func (it ExecutableItem) Amount() (*big.Int, bool) {
	v, ok := it.Args.Get("amount")
	if !ok {
		return nil, false
	}
	n, err := v.AsBig()
	if err != nil {
		return nil, false
	}
	return n, true
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// itemBodyJSON holds the union of fields across variants.
type itemBodyJSON struct {
	ModuleBytes *string      `json:"module_bytes,omitempty"`
	Hash        *types.Hash  `json:"hash,omitempty"`
	Version     *uint32      `json:"version"`
	EntryPoint  *string      `json:"entry_point,omitempty"`
	Args        clvalue.Args `json:"args"`
}

// MarshalJSON encodes the item as {"<Variant>": {...}}.
func (it ExecutableItem) MarshalJSON() ([]byte, error) {
	name, ok := itemNames[it.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown executable item kind %d", it.Kind)
	}

	body := map[string]any{"args": it.Args}
	switch it.Kind {
	case ItemModuleBytes:
		body["module_bytes"] = hex.EncodeToString(it.ModuleBytes)
	case ItemStoredContractByHash:
		body["hash"] = it.Hash
		body["entry_point"] = it.EntryPoint
	case ItemStoredVersionedContractByHash:
		body["hash"] = it.Hash
		body["entry_point"] = it.EntryPoint
		if it.Version.IsSome() {
			body["version"] = it.Version.Unwrap()
		} else {
			body["version"] = nil
		}
	}
	return json.Marshal(map[string]any{name: body})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (it *ExecutableItem) UnmarshalJSON(data []byte) error {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return fmt.Errorf("executable item: %w", err)
	}
	if len(outer) != 1 {
		return fmt.Errorf("executable item: expected one variant, got %d", len(outer))
	}

	for name, raw := range outer {
		kind, ok := itemKindByName(name)
		if !ok {
			return fmt.Errorf("executable item: unknown variant %q", name)
		}
		var body itemBodyJSON
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("executable item %s: %w", name, err)
		}

		out := ExecutableItem{Kind: kind, Args: body.Args}
		switch kind {
		case ItemModuleBytes:
			if body.ModuleBytes == nil {
				return fmt.Errorf("executable item %s: %w: module_bytes", name, ErrMissingField)
			}
			b, err := hex.DecodeString(*body.ModuleBytes)
			if err != nil {
				return fmt.Errorf("executable item %s: module_bytes: %w", name, err)
			}
			if len(b) > 0 {
				out.ModuleBytes = b
			}
		case ItemStoredContractByHash, ItemStoredVersionedContractByHash:
			if body.Hash == nil || body.EntryPoint == nil {
				return fmt.Errorf("executable item %s: %w: hash and entry_point", name, ErrMissingField)
			}
			out.Hash = *body.Hash
			out.EntryPoint = *body.EntryPoint
			if kind == ItemStoredVersionedContractByHash {
				out.Version = optional.FromNillable(body.Version)
			}
		}
		*it = out
	}
	return nil
}

func itemKindByName(name string) (ItemKind, bool) {
	for k, n := range itemNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}
