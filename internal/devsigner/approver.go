package devsigner

import (
	"context"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// RequestKind identifies what the user is asked to approve.
type RequestKind string

const (
	KindConnect     RequestKind = "connect"
	KindSignDeploy  RequestKind = "sign"
	KindSignMessage RequestKind = "signMessage"
)

// ApprovalRequest describes one prompt.
type ApprovalRequest struct {
	Kind       RequestKind
	Site       string
	SigningKey types.PublicKey
	// Deploy is set for KindSignDeploy.
	Deploy *deploy.Deploy
	// Message is set for KindSignMessage.
	Message string
}

// Approver stands in for the user in front of the wallet.
type Approver interface {
	// Approve returns false when the user dismisses the prompt.
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
	// ChooseAccount returns the index of the selected account, or -1 when
	// the user cancels.
	ChooseAccount(ctx context.Context, site string, accounts []types.PublicKey, current int) (int, error)
}

// AutoApprover approves everything and switches to the next account.
type AutoApprover struct{}

func (AutoApprover) Approve(context.Context, ApprovalRequest) (bool, error) { return true, nil }

func (AutoApprover) ChooseAccount(_ context.Context, _ string, accounts []types.PublicKey, current int) (int, error) {
	if len(accounts) == 0 {
		return -1, nil
	}
	return (current + 1) % len(accounts), nil
}

// DenyApprover dismisses every prompt.
type DenyApprover struct{}

func (DenyApprover) Approve(context.Context, ApprovalRequest) (bool, error) { return false, nil }

func (DenyApprover) ChooseAccount(context.Context, string, []types.PublicKey, int) (int, error) {
	return -1, nil
}
