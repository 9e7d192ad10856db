package clvalue

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const testKeyHex = "0111bc2070a9af0f26f94b8549bffa5643ead0bc68eba3b1833039cfa2a9a8205d"

func mustU512(t *testing.T, s string) Value {
	t.Helper()
	v, err := NewUintFromString(TypeU512, s)
	if err != nil {
		t.Fatalf("NewUintFromString(%q): %v", s, err)
	}
	return v
}

func TestValue_Encoding(t *testing.T) {
	pk, err := types.ParsePublicKey(testKeyHex)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"bool true", NewBool(true), "01"},
		{"u8", NewU8(7), "07"},
		{"u32", NewU32(1), "01000000"},
		{"u64", NewU64(0x0102), "0201000000000000"},
		{"u512 zero", mustU512(t, "0"), "00"},
		{"u512 2.5 cspr", mustU512(t, "2500000000"), "0400f90295"},
		{"string", NewString("abc"), "03000000616263"},
		{"public key", NewPublicKey(pk), testKeyHex},
		{"none", NewNone(TypeU64), "00"},
		{"some u64", NewSome(NewU64(1)), "010100000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(tt.v.Bytes())
			if got != tt.want {
				t.Errorf("Bytes() = %s, want %s", got, tt.want)
			}
			back, err := FromBytes(tt.v.Type(), tt.v.Bytes())
			if err != nil {
				t.Fatalf("FromBytes() error: %v", err)
			}
			if !back.Equal(tt.v) {
				t.Error("FromBytes() should reproduce the value")
			}
		})
	}
}

func TestNewUintFromString_Errors(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		input string
		want  error
	}{
		{"empty", TypeU512, "", ErrInvalidNumber},
		{"negative", TypeU512, "-1", ErrInvalidNumber},
		{"decimal point", TypeU512, "1.5", ErrInvalidNumber},
		{"hex", TypeU512, "0x10", ErrInvalidNumber},
		{"u8 overflow", TypeU8, "256", ErrOverflow},
		{"u128 overflow", TypeU128, new(big.Int).Lsh(big.NewInt(1), 128).String(), ErrOverflow},
		{"not integer type", TypeString, "1", ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUintFromString(tt.typ, tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValue_WidthIsExplicit(t *testing.T) {
	a, _ := NewUintFromString(TypeU256, "5")
	b, _ := NewUintFromString(TypeU512, "5")
	if a.Equal(b) {
		t.Error("U256 and U512 values should differ even with the same number")
	}
	if !strings.EqualFold(hex.EncodeToString(a.Bytes()), hex.EncodeToString(b.Bytes())) {
		t.Error("encoded magnitudes should match")
	}
}

func TestFromBytes_Malformed(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		data string
	}{
		{"bool 2", TypeBool, "02"},
		{"u32 short", TypeU32, "0100"},
		{"u512 trailing zero", TypeU512, "020100"},
		{"u128 too wide", TypeU128, "11" + strings.Repeat("01", 17)},
		{"string truncated", TypeString, "05000000616263"},
		{"option tag", OptionOf(TypeU8), "0201"},
		{"key tag", TypeKey, "05" + strings.Repeat("00", 32)},
		{"trailing bytes", TypeU8, "0101"},
		{"list truncated", ListOf(TypeU32), "02000000010000000200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := hex.DecodeString(tt.data)
			if _, err := FromBytes(tt.typ, data); !errors.Is(err, ErrMalformed) {
				t.Errorf("FromBytes() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestValue_Composite(t *testing.T) {
	list, err := NewList(TypeU8, NewU8(1), NewU8(2))
	if err != nil {
		t.Fatalf("NewList() error: %v", err)
	}
	if got := hex.EncodeToString(list.Bytes()); got != "020000000102" {
		t.Errorf("list bytes = %s", got)
	}
	items, err := list.AsList()
	if err != nil || len(items) != 2 {
		t.Fatalf("AsList() = %v, %v", items, err)
	}
	if n, _ := items[1].AsUint64(); n != 2 {
		t.Errorf("items[1] = %d, want 2", n)
	}

	if _, err := NewList(TypeU8, NewU32(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("mixed list error = %v, want ErrTypeMismatch", err)
	}

	m, err := NewMap(TypeString, TypeU512,
		MapEntry{Key: NewString("a"), Value: mustU512(t, "1")},
		MapEntry{Key: NewString("b"), Value: mustU512(t, "300")},
	)
	if err != nil {
		t.Fatalf("NewMap() error: %v", err)
	}
	entries, err := m.AsMap()
	if err != nil {
		t.Fatalf("AsMap() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("AsMap() len = %d", len(entries))
	}
	if k, _ := entries[1].Key.AsString(); k != "b" {
		t.Errorf("entries[1].Key = %q", k)
	}
	if n, _ := entries[1].Value.AsBig(); n.Int64() != 300 {
		t.Errorf("entries[1].Value = %s", n)
	}

	opt := NewSome(NewString("x"))
	inner, ok, err := opt.AsOption()
	if err != nil || !ok {
		t.Fatalf("AsOption() = %v, %v", ok, err)
	}
	if s, _ := inner.AsString(); s != "x" {
		t.Errorf("inner = %q", s)
	}
	if _, ok, _ := NewNone(TypeString).AsOption(); ok {
		t.Error("None should not be present")
	}
}

func TestValue_Accessors(t *testing.T) {
	if _, err := NewString("x").AsBool(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsBool on String error = %v", err)
	}
	if _, err := NewBool(true).AsBig(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsBig on Bool error = %v", err)
	}

	k, err := ParseKey("account-hash-" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("ParseKey() error: %v", err)
	}
	got, err := NewKey(k).AsKey()
	if err != nil || got != k {
		t.Errorf("AsKey() = %v, %v", got, err)
	}

	pk, _ := types.ParsePublicKey(testKeyHex)
	gotPK, err := NewPublicKey(pk).AsPublicKey()
	if err != nil || !gotPK.Equal(pk) {
		t.Errorf("AsPublicKey() = %v, %v", gotPK, err)
	}
}

func TestValue_JSON(t *testing.T) {
	v := mustU512(t, "2500000000")
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	want := `{"cl_type":"U512","bytes":"0400f90295","parsed":"2500000000"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back Value
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !back.Equal(v) {
		t.Error("JSON roundtrip should reproduce the value")
	}

	data, err = json.Marshal(NewU64(1<<53 + 1))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if want := `{"cl_type":"U64","bytes":"0100000000002000","parsed":"9007199254740993"}`; string(data) != want {
		t.Errorf("Marshal(U64) = %s, want %s", data, want)
	}

	// parsed is display-only; bytes win.
	var stale Value
	if err := json.Unmarshal([]byte(`{"cl_type":"U512","bytes":"0400f90295","parsed":"1"}`), &stale); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !stale.Equal(v) {
		t.Error("bytes should be authoritative over parsed")
	}

	bad := []string{
		`{"bytes":"00"}`,
		`{"cl_type":"U512","bytes":"zz"}`,
		`{"cl_type":"Bool","bytes":"05"}`,
		`{"cl_type":"Nope","bytes":"00"}`,
	}
	for _, in := range bad {
		var x Value
		if err := json.Unmarshal([]byte(in), &x); err == nil {
			t.Errorf("Unmarshal(%s) should fail", in)
		}
	}
}

func TestType_JSON(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeU512, `"U512"`},
		{ListOf(TypeKey), `{"List":"Key"}`},
		{OptionOf(TypeU64), `{"Option":"U64"}`},
		{MapOf(TypeString, TypeU512), `{"Map":{"key":"String","value":"U512"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.typ)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
			var back Type
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if !back.Equal(tt.typ) {
				t.Errorf("roundtrip = %s, want %s", back, tt.typ)
			}
		})
	}

	var missing Type
	if err := json.Unmarshal([]byte(`{"Map":{"key":"String"}}`), &missing); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Map without value error = %v, want ErrUnknownType", err)
	}
}

func TestU512_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decimal survives encode/decode", prop.ForAll(
		func(hi, lo uint64) bool {
			n := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
			n.Or(n, new(big.Int).SetUint64(lo))
			v, err := NewU512(n)
			if err != nil {
				return false
			}
			back, err := FromBytes(TypeU512, v.Bytes())
			if err != nil {
				return false
			}
			got, err := back.AsBig()
			return err == nil && got.Cmp(n) == 0
		},
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
