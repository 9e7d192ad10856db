package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/moznion/go-optional"
)

func TestGlobalFlag(t *testing.T) {
	tests := []struct {
		args  []string
		name  string
		value string
		n     int
		ok    bool
	}{
		{[]string{"--provider", "http://x", "status"}, "provider", "http://x", 2, true},
		{[]string{"--datadir=/tmp/d", "status"}, "datadir", "/tmp/d", 1, true},
		{[]string{"--site=dapp"}, "site", "dapp", 1, true},
		{[]string{"--network"}, "", "", 0, false},
		{[]string{"status"}, "", "", 0, false},
	}
	for _, tt := range tests {
		name, value, n, ok := globalFlag(tt.args)
		if name != tt.name || value != tt.value || n != tt.n || ok != tt.ok {
			t.Errorf("globalFlag(%v) = %q %q %d %v", tt.args, name, value, n, ok)
		}
	}
}

func signedDeploy(t *testing.T) *deploy.Deploy {
	t.Helper()
	key, err := crypto.GenerateSecp256k1Key()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Key: %v", err)
	}
	cfg := deploy.DefaultBuilderConfig()
	cfg.Clock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	pub := key.PublicKey().String()
	d, err := deploy.NewBuilder(cfg).NativeTransfer(deploy.ChainTestnet, pub, pub, "2500000000", optional.None[uint64]())
	if err != nil {
		t.Fatalf("NativeTransfer: %v", err)
	}
	sig, err := key.Sign(d.Hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return deploy.AddApproval(d, key.PublicKey(), crypto.TagSignature(key.PublicKey().Algorithm(), sig))
}

func TestEncodeReadDeploy(t *testing.T) {
	d := signedDeploy(t)
	data, err := encodeDeploy(d)
	if err != nil {
		t.Fatalf("encodeDeploy: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"deploy\": {") {
		t.Errorf("encoded deploy not wrapped: %.40s", data)
	}

	dir := t.TempDir()
	wrapped := filepath.Join(dir, "wrapped.json")
	os.WriteFile(wrapped, data, 0644)
	bare := filepath.Join(dir, "bare.json")
	raw, _ := deploy.Marshal(d)
	os.WriteFile(bare, raw, 0644)

	for _, path := range []string{wrapped, bare} {
		got, err := readDeploy(path)
		if err != nil {
			t.Fatalf("readDeploy(%s): %v", filepath.Base(path), err)
		}
		if !deploy.Equal(got, d) {
			t.Errorf("readDeploy(%s) differs from original", filepath.Base(path))
		}
		if err := got.VerifyApprovals(); err != nil {
			t.Errorf("VerifyApprovals: %v", err)
		}
	}
}

func TestReadDeploy_Tampered(t *testing.T) {
	d := signedDeploy(t)
	d.Header.ChainName = deploy.ChainMainnet
	raw, _ := deploy.Marshal(d)
	path := filepath.Join(t.TempDir(), "tampered.json")
	os.WriteFile(path, raw, 0644)

	if _, err := readDeploy(path); err == nil {
		t.Error("tampered deploy should be rejected")
	}
}
