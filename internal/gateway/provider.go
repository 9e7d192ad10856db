package gateway

import (
	"context"

	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
)

// SignRequest asks the provider to sign a payload with one key.
type SignRequest struct {
	// ID correlates the request across logs and transports.
	ID string `json:"id"`
	// Payload is the canonical JSON deploy, or the plain message for
	// message signatures.
	Payload string `json:"payload"`
	// SigningKey is the hex public key that should sign.
	SigningKey string `json:"signingKey"`
}

// SignResponse is the provider's answer. Exactly one of Cancelled or a
// non-empty Signature is expected.
type SignResponse struct {
	Cancelled bool   `json:"cancelled"`
	Signature []byte `json:"signature,omitempty"`
}

// Provider is the external signing capability.
type Provider interface {
	RequestConnection(ctx context.Context) (bool, error)
	DisconnectFromSite(ctx context.Context) (bool, error)
	RequestSwitchAccount(ctx context.Context) (bool, error)
	IsConnected(ctx context.Context) (bool, error)
	// GetActivePublicKey returns the active key hex, or "" when none.
	GetActivePublicKey(ctx context.Context) (string, error)
	GetVersion(ctx context.Context) (string, error)
	Sign(ctx context.Context, req SignRequest) (SignResponse, error)
	SignMessage(ctx context.Context, req SignRequest) (SignResponse, error)
	// Subscribe streams provider events until the release func is called.
	Subscribe(ctx context.Context) (<-chan session.RawEvent, func(), error)
}
