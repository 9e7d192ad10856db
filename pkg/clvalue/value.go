package clvalue

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// Value is a typed runtime value stored as its canonical byte encoding.
// Values are immutable; accessors return copies.
type Value struct {
	typ  Type
	data []byte
}

// MapEntry is one key/value pair of a Map value.
type MapEntry struct {
	Key   Value
	Value Value
}

// NewBool returns a Bool value.
func NewBool(b bool) Value {
	if b {
		return Value{typ: TypeBool, data: []byte{1}}
	}
	return Value{typ: TypeBool, data: []byte{0}}
}

// NewU8 returns a U8 value.
func NewU8(n uint8) Value {
	return Value{typ: TypeU8, data: []byte{n}}
}

// NewU32 returns a U32 value.
func NewU32(n uint32) Value {
	return Value{typ: TypeU32, data: binary.LittleEndian.AppendUint32(nil, n)}
}

// NewU64 returns a U64 value.
func NewU64(n uint64) Value {
	return Value{typ: TypeU64, data: binary.LittleEndian.AppendUint64(nil, n)}
}

// NewU128 returns a U128 value.
func NewU128(n *big.Int) (Value, error) {
	return newBigUint(TypeU128, n)
}

// NewU256 returns a U256 value.
func NewU256(n *big.Int) (Value, error) {
	return newBigUint(TypeU256, n)
}

// NewU512 returns a U512 value.
func NewU512(n *big.Int) (Value, error) {
	return newBigUint(TypeU512, n)
}

// NewUintFromString parses a decimal string into an unsigned integer value of
// type t (U8 through U512). The width is always the caller's choice.
func NewUintFromString(t Type, s string) (Value, error) {
	n, err := ParseDecimal(s)
	if err != nil {
		return Value{}, err
	}
	switch t.Kind {
	case KindU8, KindU32, KindU64:
		if n.BitLen() > t.Kind.uintWidth()*8 {
			return Value{}, fmt.Errorf("%w: %s does not fit %s", ErrOverflow, s, t.Kind)
		}
		switch t.Kind {
		case KindU8:
			return NewU8(uint8(n.Uint64())), nil
		case KindU32:
			return NewU32(uint32(n.Uint64())), nil
		default:
			return NewU64(n.Uint64()), nil
		}
	case KindU128, KindU256, KindU512:
		return newBigUint(t, n)
	default:
		return Value{}, fmt.Errorf("%w: %s is not an unsigned integer type", ErrTypeMismatch, t)
	}
}

// ParseDecimal parses a non-negative base-10 integer of arbitrary size.
func ParseDecimal(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return n, nil
}

// newBigUint encodes n as a length-prefixed little-endian integer with no
// trailing zero bytes.
func newBigUint(t Type, n *big.Int) (Value, error) {
	if n == nil || n.Sign() < 0 {
		return Value{}, fmt.Errorf("%w: negative or nil", ErrInvalidNumber)
	}
	be := n.Bytes()
	width := t.Kind.uintWidth()
	if len(be) > width {
		return Value{}, fmt.Errorf("%w: %d bytes, %s holds %d", ErrOverflow, len(be), t.Kind, width)
	}
	data := make([]byte, 1+len(be))
	data[0] = byte(len(be))
	for i, b := range be {
		data[len(be)-i] = b
	}
	return Value{typ: t, data: data}, nil
}

// NewString returns a String value.
func NewString(s string) Value {
	data := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return Value{typ: TypeString, data: append(data, s...)}
}

// NewPublicKey returns a PublicKey value.
func NewPublicKey(k types.PublicKey) Value {
	return Value{typ: TypePublicKey, data: k.Bytes()}
}

// NewKey returns a Key value.
func NewKey(k Key) Value {
	return Value{typ: TypeKey, data: k.Bytes()}
}

// NewList returns a List<elem> value. Every item must have type elem.
func NewList(elem Type, items ...Value) (Value, error) {
	if err := elem.validate(); err != nil {
		return Value{}, err
	}
	data := binary.LittleEndian.AppendUint32(nil, uint32(len(items)))
	for i, item := range items {
		if !item.typ.Equal(elem) {
			return Value{}, fmt.Errorf("%w: list item %d is %s, want %s", ErrTypeMismatch, i, item.typ, elem)
		}
		data = append(data, item.data...)
	}
	return Value{typ: ListOf(elem), data: data}, nil
}

// NewMap returns a Map<key, value> value. Entry order is preserved.
func NewMap(key, value Type, entries ...MapEntry) (Value, error) {
	if err := MapOf(key, value).validate(); err != nil {
		return Value{}, err
	}
	data := binary.LittleEndian.AppendUint32(nil, uint32(len(entries)))
	for i, e := range entries {
		if !e.Key.typ.Equal(key) {
			return Value{}, fmt.Errorf("%w: map key %d is %s, want %s", ErrTypeMismatch, i, e.Key.typ, key)
		}
		if !e.Value.typ.Equal(value) {
			return Value{}, fmt.Errorf("%w: map value %d is %s, want %s", ErrTypeMismatch, i, e.Value.typ, value)
		}
		data = append(data, e.Key.data...)
		data = append(data, e.Value.data...)
	}
	return Value{typ: MapOf(key, value), data: data}, nil
}

// NewSome wraps v in Option<type of v>.
func NewSome(v Value) Value {
	data := append([]byte{1}, v.data...)
	return Value{typ: OptionOf(v.typ), data: data}
}

// NewNone returns an empty Option<elem>.
func NewNone(elem Type) Value {
	return Value{typ: OptionOf(elem), data: []byte{0}}
}

// FromBytes validates data as the canonical encoding of a value of type t.
func FromBytes(t Type, data []byte) (Value, error) {
	if err := t.validate(); err != nil {
		return Value{}, err
	}
	n, _, err := consume(t, data)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes for %s", ErrMalformed, len(data)-n, t)
	}
	return Value{typ: t, data: append([]byte(nil), data...)}, nil
}

// Type returns the value's type.
func (v Value) Type() Type {
	return v.typ
}

// Bytes returns a copy of the value's canonical encoding.
func (v Value) Bytes() []byte {
	return append([]byte(nil), v.data...)
}

// Equal reports whether two values have the same type and encoding.
func (v Value) Equal(other Value) bool {
	return v.typ.Equal(other.typ) && bytes.Equal(v.data, other.data)
}

// Encode returns the value in argument form:
// u32 length | encoding | type bytes.
func (v Value) Encode() []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(v.data)))
	buf = append(buf, v.data...)
	return append(buf, v.typ.Bytes()...)
}

// Parsed returns a JSON-friendly rendering of the value. U64 and wider
// integers are decimal strings so no JSON reader rounds them.
func (v Value) Parsed() (any, error) {
	_, parsed, err := consume(v.typ, v.data)
	return parsed, err
}

// AsBool returns the value of a Bool.
func (v Value) AsBool() (bool, error) {
	if v.typ.Kind != KindBool {
		return false, v.mismatch(TypeBool)
	}
	return v.data[0] == 1, nil
}

// AsUint64 returns the value of a U8, U32 or U64.
func (v Value) AsUint64() (uint64, error) {
	switch v.typ.Kind {
	case KindU8:
		return uint64(v.data[0]), nil
	case KindU32:
		return uint64(binary.LittleEndian.Uint32(v.data)), nil
	case KindU64:
		return binary.LittleEndian.Uint64(v.data), nil
	default:
		return 0, v.mismatch(TypeU64)
	}
}

// AsBig returns the value of any unsigned integer type.
func (v Value) AsBig() (*big.Int, error) {
	switch v.typ.Kind {
	case KindU8, KindU32, KindU64:
		n, _ := v.AsUint64()
		return new(big.Int).SetUint64(n), nil
	case KindU128, KindU256, KindU512:
		return decodeBig(v.data[1:]), nil
	default:
		return nil, v.mismatch(TypeU512)
	}
}

// AsString returns the value of a String.
func (v Value) AsString() (string, error) {
	if v.typ.Kind != KindString {
		return "", v.mismatch(TypeString)
	}
	return string(v.data[4:]), nil
}

// AsPublicKey returns the value of a PublicKey.
func (v Value) AsPublicKey() (types.PublicKey, error) {
	if v.typ.Kind != KindPublicKey {
		return types.PublicKey{}, v.mismatch(TypePublicKey)
	}
	return types.PublicKeyFromBytes(v.data)
}

// AsKey returns the value of a Key.
func (v Value) AsKey() (Key, error) {
	if v.typ.Kind != KindKey {
		return Key{}, v.mismatch(TypeKey)
	}
	var k Key
	k.Tag = KeyTag(v.data[0])
	copy(k.Hash[:], v.data[1:])
	return k, nil
}

// AsOption returns the inner value and whether it is present.
func (v Value) AsOption() (Value, bool, error) {
	if v.typ.Kind != KindOption {
		return Value{}, false, fmt.Errorf("%w: %s is not an Option", ErrTypeMismatch, v.typ)
	}
	if v.data[0] == 0 {
		return Value{}, false, nil
	}
	return Value{typ: *v.typ.Elem, data: append([]byte(nil), v.data[1:]...)}, true, nil
}

// AsList returns the items of a List.
func (v Value) AsList() ([]Value, error) {
	if v.typ.Kind != KindList {
		return nil, fmt.Errorf("%w: %s is not a List", ErrTypeMismatch, v.typ)
	}
	count := binary.LittleEndian.Uint32(v.data)
	items := make([]Value, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		item, n, err := split(*v.typ.Elem, v.data[off:])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		off += n
	}
	return items, nil
}

// AsMap returns the entries of a Map in encoded order.
func (v Value) AsMap() ([]MapEntry, error) {
	if v.typ.Kind != KindMap {
		return nil, fmt.Errorf("%w: %s is not a Map", ErrTypeMismatch, v.typ)
	}
	count := binary.LittleEndian.Uint32(v.data)
	entries := make([]MapEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		k, n, err := split(*v.typ.Key, v.data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		val, n, err := split(*v.typ.Value, v.data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		entries = append(entries, MapEntry{Key: k, Value: val})
	}
	return entries, nil
}

func (v Value) mismatch(want Type) error {
	return fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, v.typ, want)
}

// split consumes one value of type t from the front of b.
func split(t Type, b []byte) (Value, int, error) {
	n, _, err := consume(t, b)
	if err != nil {
		return Value{}, 0, err
	}
	return Value{typ: t, data: append([]byte(nil), b[:n]...)}, n, nil
}

// valueJSON is the wire form of a Value.
type valueJSON struct {
	CLType *Type           `json:"cl_type"`
	Bytes  string          `json:"bytes"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

// MarshalJSON encodes {"cl_type": …, "bytes": "<hex>", "parsed": …}.
func (v Value) MarshalJSON() ([]byte, error) {
	parsed, err := v.Parsed()
	if err != nil {
		return nil, err
	}
	p, err := json.Marshal(parsed)
	if err != nil {
		return nil, err
	}
	t := v.typ
	return json.Marshal(valueJSON{CLType: &t, Bytes: hex.EncodeToString(v.data), Parsed: p})
}

// UnmarshalJSON decodes the wire form. The bytes field is authoritative;
// parsed is display-only and ignored.
func (v *Value) UnmarshalJSON(data []byte) error {
	var j valueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.CLType == nil {
		return fmt.Errorf("%w: missing cl_type", ErrUnknownType)
	}
	raw, err := hex.DecodeString(j.Bytes)
	if err != nil {
		return fmt.Errorf("%w: bytes: %v", ErrMalformed, err)
	}
	decoded, err := FromBytes(*j.CLType, raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// decodeBig converts little-endian bytes to a big.Int.
func decodeBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

type mapEntryJSON struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}

// consume decodes one value of type t from the front of b and returns the
// number of bytes used together with its parsed rendering.
func consume(t Type, b []byte) (int, any, error) {
	short := func() (int, any, error) {
		return 0, nil, fmt.Errorf("%w: truncated %s", ErrMalformed, t)
	}

	switch t.Kind {
	case KindBool:
		if len(b) < 1 {
			return short()
		}
		if b[0] > 1 {
			return 0, nil, fmt.Errorf("%w: bool byte %d", ErrMalformed, b[0])
		}
		return 1, b[0] == 1, nil

	case KindU8:
		if len(b) < 1 {
			return short()
		}
		return 1, uint64(b[0]), nil

	case KindU32:
		if len(b) < 4 {
			return short()
		}
		return 4, uint64(binary.LittleEndian.Uint32(b)), nil

	case KindU64:
		if len(b) < 8 {
			return short()
		}
		return 8, strconv.FormatUint(binary.LittleEndian.Uint64(b), 10), nil

	case KindU128, KindU256, KindU512:
		if len(b) < 1 {
			return short()
		}
		l := int(b[0])
		if l > t.Kind.uintWidth() {
			return 0, nil, fmt.Errorf("%w: %s length %d", ErrMalformed, t, l)
		}
		if len(b) < 1+l {
			return short()
		}
		if l > 0 && b[l] == 0 {
			return 0, nil, fmt.Errorf("%w: %s has trailing zero byte", ErrMalformed, t)
		}
		return 1 + l, decodeBig(b[1 : 1+l]).String(), nil

	case KindString:
		if len(b) < 4 {
			return short()
		}
		l := binary.LittleEndian.Uint32(b)
		if uint64(len(b)-4) < uint64(l) {
			return short()
		}
		s := b[4 : 4+int(l)]
		if !utf8.Valid(s) {
			return 0, nil, fmt.Errorf("%w: string is not utf-8", ErrMalformed)
		}
		return 4 + int(l), string(s), nil

	case KindPublicKey:
		if len(b) < 1 {
			return short()
		}
		size := types.KeyAlgorithm(b[0]).KeySize()
		if size == 0 {
			return 0, nil, fmt.Errorf("%w: public key tag %d", ErrMalformed, b[0])
		}
		if len(b) < 1+size {
			return short()
		}
		pk, err := types.PublicKeyFromBytes(b[:1+size])
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return 1 + size, pk.String(), nil

	case KindKey:
		if len(b) < 1+types.HashSize {
			return short()
		}
		tag := KeyTag(b[0])
		if tag != KeyTagAccount && tag != KeyTagHash {
			return 0, nil, fmt.Errorf("%w: key tag %d", ErrMalformed, b[0])
		}
		var k Key
		k.Tag = tag
		copy(k.Hash[:], b[1:1+types.HashSize])
		return 1 + types.HashSize, k, nil

	case KindOption:
		if len(b) < 1 {
			return short()
		}
		switch b[0] {
		case 0:
			return 1, nil, nil
		case 1:
			n, p, err := consume(*t.Elem, b[1:])
			if err != nil {
				return 0, nil, err
			}
			return 1 + n, p, nil
		default:
			return 0, nil, fmt.Errorf("%w: option tag %d", ErrMalformed, b[0])
		}

	case KindList:
		if len(b) < 4 {
			return short()
		}
		count := binary.LittleEndian.Uint32(b)
		items := make([]any, 0, min(count, 1024))
		off := 4
		for i := uint32(0); i < count; i++ {
			n, p, err := consume(*t.Elem, b[off:])
			if err != nil {
				return 0, nil, err
			}
			items = append(items, p)
			off += n
		}
		return off, items, nil

	case KindMap:
		if len(b) < 4 {
			return short()
		}
		count := binary.LittleEndian.Uint32(b)
		entries := make([]mapEntryJSON, 0, min(count, 1024))
		off := 4
		for i := uint32(0); i < count; i++ {
			n, k, err := consume(*t.Key, b[off:])
			if err != nil {
				return 0, nil, err
			}
			off += n
			n, val, err := consume(*t.Value, b[off:])
			if err != nil {
				return 0, nil, err
			}
			off += n
			entries = append(entries, mapEntryJSON{Key: k, Value: val})
		}
		return off, entries, nil

	default:
		return 0, nil, fmt.Errorf("%w: tag %d", ErrUnknownType, byte(t.Kind))
	}
}
