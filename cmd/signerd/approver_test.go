package main

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

func testKeys(t *testing.T) []types.PublicKey {
	t.Helper()
	var keys []types.PublicKey
	for _, s := range []string{
		"01" + strings.Repeat("11", 32),
		"01" + strings.Repeat("22", 32),
	} {
		k, err := types.ParsePublicKey(s)
		if err != nil {
			t.Fatalf("ParsePublicKey: %v", err)
		}
		keys = append(keys, k)
	}
	return keys
}

func TestTerminalApprover_Approve(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"y", true}, // EOF without newline
	}
	for _, tt := range tests {
		a := newTerminalApprover(bufio.NewReader(strings.NewReader(tt.input)), io.Discard)
		got, err := a.Approve(context.Background(), devsigner.ApprovalRequest{Kind: devsigner.KindConnect, Site: "local"})
		if err != nil {
			t.Fatalf("Approve(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Approve(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTerminalApprover_ChooseAccount(t *testing.T) {
	keys := testKeys(t)
	tests := []struct {
		input string
		want  int
	}{
		{"1\n", 1},
		{"0\n", 0},
		{"\n", -1},
		{"7\n", -1},
		{"abc\n", -1},
	}
	for _, tt := range tests {
		a := newTerminalApprover(bufio.NewReader(strings.NewReader(tt.input)), io.Discard)
		got, err := a.ChooseAccount(context.Background(), "local", keys, 0)
		if err != nil {
			t.Fatalf("ChooseAccount(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ChooseAccount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestTerminalApprover_Withdrawn(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	a := newTerminalApprover(bufio.NewReader(pr), io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := a.Approve(ctx, devsigner.ApprovalRequest{Kind: devsigner.KindSignMessage, Message: "hi"})
	if err != nil || ok {
		t.Errorf("Approve() = %v, %v; want declined", ok, err)
	}
}
