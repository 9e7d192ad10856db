// Package clvalue implements self-describing runtime argument values:
// every value carries an explicit type tag and a canonical byte encoding.
package clvalue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the tag byte of a value type.
type Kind byte

// Supported kinds. Tag values follow the chain's type serialization.
const (
	KindBool      Kind = 0
	KindU8        Kind = 3
	KindU32       Kind = 4
	KindU64       Kind = 5
	KindU128      Kind = 6
	KindU256      Kind = 7
	KindU512      Kind = 8
	KindString    Kind = 10
	KindKey       Kind = 11
	KindOption    Kind = 13
	KindList      Kind = 14
	KindMap       Kind = 17
	KindPublicKey Kind = 22
)

// Errors.
var (
	ErrUnknownType   = errors.New("unknown value type")
	ErrTypeMismatch  = errors.New("value type mismatch")
	ErrOverflow      = errors.New("integer overflows type width")
	ErrMalformed     = errors.New("malformed value bytes")
	ErrDuplicateArg  = errors.New("duplicate argument name")
	ErrInvalidNumber = errors.New("not a non-negative decimal integer")
)

var kindNames = map[Kind]string{
	KindBool:      "Bool",
	KindU8:        "U8",
	KindU32:       "U32",
	KindU64:       "U64",
	KindU128:      "U128",
	KindU256:      "U256",
	KindU512:      "U512",
	KindString:    "String",
	KindKey:       "Key",
	KindOption:    "Option",
	KindList:      "List",
	KindMap:       "Map",
	KindPublicKey: "PublicKey",
}

// String returns the type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Type is a value type. Elem is set for List and Option, Key and Value for Map.
type Type struct {
	Kind  Kind
	Elem  *Type
	Key   *Type
	Value *Type
}

// Simple types.
var (
	TypeBool      = Type{Kind: KindBool}
	TypeU8        = Type{Kind: KindU8}
	TypeU32       = Type{Kind: KindU32}
	TypeU64       = Type{Kind: KindU64}
	TypeU128      = Type{Kind: KindU128}
	TypeU256      = Type{Kind: KindU256}
	TypeU512      = Type{Kind: KindU512}
	TypeString    = Type{Kind: KindString}
	TypeKey       = Type{Kind: KindKey}
	TypePublicKey = Type{Kind: KindPublicKey}
)

// ListOf returns the List<elem> type.
func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

// OptionOf returns the Option<elem> type.
func OptionOf(elem Type) Type {
	return Type{Kind: KindOption, Elem: &elem}
}

// MapOf returns the Map<key, value> type.
func MapOf(key, value Type) Type {
	return Type{Kind: KindMap, Key: &key, Value: &value}
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindList, KindOption:
		return t.Elem != nil && other.Elem != nil && t.Elem.Equal(*other.Elem)
	case KindMap:
		return t.Key != nil && other.Key != nil && t.Value != nil && other.Value != nil &&
			t.Key.Equal(*other.Key) && t.Value.Equal(*other.Value)
	default:
		return true
	}
}

// String renders the type, e.g. "Map<String, U512>".
func (t Type) String() string {
	switch t.Kind {
	case KindList, KindOption:
		if t.Elem == nil {
			return t.Kind.String() + "<?>"
		}
		return t.Kind.String() + "<" + t.Elem.String() + ">"
	case KindMap:
		if t.Key == nil || t.Value == nil {
			return "Map<?>"
		}
		return "Map<" + t.Key.String() + ", " + t.Value.String() + ">"
	default:
		return t.Kind.String()
	}
}

// uintWidth returns the maximum byte width of an unsigned integer kind.
func (k Kind) uintWidth() int {
	switch k {
	case KindU8:
		return 1
	case KindU32:
		return 4
	case KindU64:
		return 8
	case KindU128:
		return 16
	case KindU256:
		return 32
	case KindU512:
		return 64
	default:
		return 0
	}
}

// Bytes returns the type's binary encoding: tag byte, then nested types.
func (t Type) Bytes() []byte {
	buf := []byte{byte(t.Kind)}
	switch t.Kind {
	case KindList, KindOption:
		buf = append(buf, t.Elem.Bytes()...)
	case KindMap:
		buf = append(buf, t.Key.Bytes()...)
		buf = append(buf, t.Value.Bytes()...)
	}
	return buf
}

// validate checks that composite types carry their element types.
func (t Type) validate() error {
	switch t.Kind {
	case KindBool, KindU8, KindU32, KindU64, KindU128, KindU256, KindU512,
		KindString, KindKey, KindPublicKey:
		return nil
	case KindList, KindOption:
		if t.Elem == nil {
			return fmt.Errorf("%w: %s without element type", ErrUnknownType, t.Kind)
		}
		return t.Elem.validate()
	case KindMap:
		if t.Key == nil || t.Value == nil {
			return fmt.Errorf("%w: Map without key/value type", ErrUnknownType)
		}
		if err := t.Key.validate(); err != nil {
			return err
		}
		return t.Value.validate()
	default:
		return fmt.Errorf("%w: tag %d", ErrUnknownType, byte(t.Kind))
	}
}

// MarshalJSON encodes simple types as their name and composite types as
// single-key objects: {"List": T}, {"Option": T}, {"Map": {"key": K, "value": V}}.
func (t Type) MarshalJSON() ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case KindList, KindOption:
		return json.Marshal(map[string]Type{t.Kind.String(): *t.Elem})
	case KindMap:
		return json.Marshal(map[string]mapTypeJSON{"Map": {Key: t.Key, Value: t.Value}})
	default:
		return json.Marshal(t.Kind.String())
	}
}

type mapTypeJSON struct {
	Key   *Type `json:"key"`
	Value *Type `json:"value"`
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for k, n := range kindNames {
			if n == name && k != KindList && k != KindOption && k != KindMap {
				*t = Type{Kind: k}
				return nil
			}
		}
		return fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownType, err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("%w: composite type must have exactly one key", ErrUnknownType)
	}
	for name, raw := range obj {
		switch name {
		case "List", "Option":
			var elem Type
			if err := json.Unmarshal(raw, &elem); err != nil {
				return err
			}
			if name == "List" {
				*t = ListOf(elem)
			} else {
				*t = OptionOf(elem)
			}
		case "Map":
			var m mapTypeJSON
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			if m.Key == nil || m.Value == nil {
				return fmt.Errorf("%w: Map without key/value type", ErrUnknownType)
			}
			*t = MapOf(*m.Key, *m.Value)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownType, name)
		}
	}
	return nil
}
