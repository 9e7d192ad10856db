package clvalue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
)

// NamedArg is one runtime argument.
type NamedArg struct {
	Name  string
	Value Value
}

// Args is an ordered list of runtime arguments with unique names.
type Args struct {
	items []NamedArg
}

// NewArgs builds an argument list, rejecting duplicate names.
func NewArgs(items ...NamedArg) (Args, error) {
	var a Args
	for _, item := range items {
		if err := a.Insert(item.Name, item.Value); err != nil {
			return Args{}, err
		}
	}
	return a, nil
}

// Insert appends an argument. Names must be unique. Copies of an Args never
// observe each other's inserts.
func (a *Args) Insert(name string, v Value) error {
	if _, ok := a.Get(name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateArg, name)
	}
	a.items = append(slices.Clip(a.items), NamedArg{Name: name, Value: v})
	return nil
}

// Get returns the argument with the given name.
func (a Args) Get(name string) (Value, bool) {
	for _, item := range a.items {
		if item.Name == name {
			return item.Value, true
		}
	}
	return Value{}, false
}

// Items returns a copy of the arguments in order.
func (a Args) Items() []NamedArg {
	return append([]NamedArg(nil), a.items...)
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.items)
}

// Equal reports whether both lists hold equal arguments in the same order.
func (a Args) Equal(other Args) bool {
	if len(a.items) != len(other.items) {
		return false
	}
	for i := range a.items {
		if a.items[i].Name != other.items[i].Name || !a.items[i].Value.Equal(other.items[i].Value) {
			return false
		}
	}
	return true
}

// Bytes returns u32 count followed by (name, value) pairs.
func (a Args) Bytes() []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(a.items)))
	for _, item := range a.items {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(item.Name)))
		buf = append(buf, item.Name...)
		buf = append(buf, item.Value.Encode()...)
	}
	return buf
}

// MarshalJSON encodes the list as [[name, value], ...].
func (a Args) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(a.items))
	for _, item := range a.items {
		pairs = append(pairs, [2]any{item.Name, item.Value})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [[name, value], ...].
func (a *Args) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("args: %w", err)
	}
	var out Args
	for i, p := range pairs {
		var name string
		if err := json.Unmarshal(p[0], &name); err != nil {
			return fmt.Errorf("args[%d] name: %w", i, err)
		}
		var v Value
		if err := json.Unmarshal(p[1], &v); err != nil {
			return fmt.Errorf("args[%d] %q: %w", i, name, err)
		}
		if err := out.Insert(name, v); err != nil {
			return err
		}
	}
	*a = out
	return nil
}
