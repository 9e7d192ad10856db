package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const (
	testEd25519Hex   = "0111BC2070A9aF0F26F94B8549BfFA5643eAD0bc68EBa3b1833039Cfa2a9a8205d"
	testSecp256k1Hex = "020279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
)

func TestParsePublicKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		alg     KeyAlgorithm
		wantErr bool
	}{
		{name: "ed25519 mixed case", input: testEd25519Hex, alg: AlgorithmEd25519},
		{name: "secp256k1", input: testSecp256k1Hex, alg: AlgorithmSecp256k1},
		{name: "empty", input: "", wantErr: true},
		{name: "not hex", input: "01zz", wantErr: true},
		{name: "unknown tag", input: "03" + strings.Repeat("00", 32), wantErr: true},
		{name: "ed25519 too short", input: "01" + strings.Repeat("ab", 31), wantErr: true},
		{name: "secp256k1 not on curve", input: "02" + "05" + strings.Repeat("00", 32), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := ParsePublicKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePublicKey(%q) should fail", tt.input)
				}
				if !errors.Is(err, ErrInvalidPublicKey) {
					t.Errorf("error = %v, want ErrInvalidPublicKey", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePublicKey(%q) error: %v", tt.input, err)
			}
			if k.Algorithm() != tt.alg {
				t.Errorf("Algorithm() = %v, want %v", k.Algorithm(), tt.alg)
			}
			if k.String() != tt.input {
				t.Errorf("String() = %s, want original spelling %s", k.String(), tt.input)
			}
			if len(k.Bytes()) != 1+tt.alg.KeySize() {
				t.Errorf("Bytes() length = %d", len(k.Bytes()))
			}
		})
	}
}

func TestPublicKey_EqualIgnoresCase(t *testing.T) {
	upper, err := ParsePublicKey(strings.ToUpper(testEd25519Hex))
	if err != nil {
		t.Fatalf("parse upper: %v", err)
	}
	lower, err := ParsePublicKey(strings.ToLower(testEd25519Hex))
	if err != nil {
		t.Fatalf("parse lower: %v", err)
	}
	if !upper.Equal(lower) {
		t.Error("keys differing only by hex case should be equal")
	}
	if upper.Normalized() != lower.Normalized() {
		t.Error("Normalized() should match for keys differing only by case")
	}
	if upper.String() == lower.String() {
		t.Error("String() should preserve the original spelling")
	}
	if !SameKey(strings.ToUpper(testEd25519Hex), testEd25519Hex) {
		t.Error("SameKey() should ignore case")
	}
	if SameKey(testEd25519Hex, "garbage") {
		t.Error("SameKey() should not match unparsable input")
	}
}

func TestPublicKey_AccountHash(t *testing.T) {
	a, _ := ParsePublicKey(testEd25519Hex)
	b, _ := ParsePublicKey(testSecp256k1Hex)

	if a.AccountHash() != a.AccountHash() {
		t.Error("AccountHash() should be deterministic")
	}
	if a.AccountHash() == b.AccountHash() {
		t.Error("different keys should have different account hashes")
	}
	lower, _ := ParsePublicKey(strings.ToLower(testEd25519Hex))
	if a.AccountHash() != lower.AccountHash() {
		t.Error("AccountHash() should not depend on hex case")
	}
}

func TestPublicKey_JSON(t *testing.T) {
	k, _ := ParsePublicKey(testEd25519Hex)
	data, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `"`+testEd25519Hex+`"` {
		t.Errorf("Marshal() = %s", data)
	}
	var got PublicKey
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !got.Equal(k) || got.String() != k.String() {
		t.Errorf("JSON roundtrip = %s, want %s", got, k)
	}
}

func TestPublicKeyFromBytes(t *testing.T) {
	k, _ := ParsePublicKey(testSecp256k1Hex)
	got, err := PublicKeyFromBytes(k.Bytes())
	if err != nil {
		t.Fatalf("PublicKeyFromBytes() error: %v", err)
	}
	if !got.Equal(k) {
		t.Error("PublicKeyFromBytes() should reproduce the key")
	}
	if _, err := PublicKeyFromBytes(nil); err == nil {
		t.Error("PublicKeyFromBytes(nil) should fail")
	}
}
