// Package gateway translates deploys into signing provider requests and
// provider answers into typed outcomes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/Masterminds/semver/v3"
	"github.com/chebyrash/promise"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
)

var (
	// ErrProviderUnavailable is returned when no signing provider is present.
	ErrProviderUnavailable = errors.New("signing provider unavailable")
	// ErrUnsupportedVersion is returned by CheckVersion.
	ErrUnsupportedVersion = errors.New("unsupported provider version")
)

// Gateway is a thin façade over a Provider.
type Gateway struct {
	provider Provider
	logger   zerolog.Logger
}

// New creates a gateway over p.
func New(p Provider) (*Gateway, error) {
	if p == nil {
		return nil, ErrProviderUnavailable
	}
	return &Gateway{provider: p, logger: log.Gateway}, nil
}

// Provider returns the underlying provider.
func (g *Gateway) Provider() Provider {
	return g.provider
}

// SignPayload returns the canonical JSON the provider signs for d:
// {"deploy": <deploy JSON>}.
func SignPayload(d *deploy.Deploy) (string, error) {
	raw, err := json.Marshal(struct {
		Deploy *deploy.Deploy `json:"deploy"`
	}{d})
	if err != nil {
		return "", fmt.Errorf("encode deploy: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize deploy: %w", err)
	}
	return string(canonical), nil
}

// RequestSignature asks the provider to sign d with key. The promise
// resolves once with the outcome, or rejects with the provider's error.
func (g *Gateway) RequestSignature(ctx context.Context, d *deploy.Deploy, key types.PublicKey) *promise.Promise[Outcome] {
	return promise.New(func(resolve func(Outcome), reject func(error)) {
		payload, err := SignPayload(d)
		if err != nil {
			reject(err)
			return
		}
		req := SignRequest{ID: uuid.NewString(), Payload: payload, SigningKey: key.String()}
		g.logger.Debug().
			Str("request", req.ID).
			Str("deploy", d.Hash.String()).
			Str("signer", req.SigningKey).
			Msg("Requesting deploy signature")

		resp, err := g.provider.Sign(ctx, req)
		if err != nil {
			reject(err)
			return
		}
		out := outcomeOf(resp)
		g.logger.Info().
			Str("request", req.ID).
			Str("deploy", d.Hash.String()).
			Str("outcome", out.Kind.String()).
			Msg("Signature request resolved")
		resolve(out)
	})
}

// RequestMessageSignature asks the provider to sign an off-chain message.
func (g *Gateway) RequestMessageSignature(ctx context.Context, message string, key types.PublicKey) *promise.Promise[Outcome] {
	return promise.New(func(resolve func(Outcome), reject func(error)) {
		req := SignRequest{ID: uuid.NewString(), Payload: message, SigningKey: key.String()}
		g.logger.Debug().Str("request", req.ID).Str("signer", req.SigningKey).Msg("Requesting message signature")

		resp, err := g.provider.SignMessage(ctx, req)
		if err != nil {
			reject(err)
			return
		}
		resolve(outcomeOf(resp))
	})
}

// SignAndApprove requests a signature over d and, when approved, returns a
// copy of d carrying the new approval. Raw signatures are tagged with the
// key's algorithm and checked against the deploy hash. The input deploy is
// never modified, so the result can be fed back in for further signers.
func (g *Gateway) SignAndApprove(ctx context.Context, d *deploy.Deploy, key types.PublicKey) (*deploy.Deploy, Outcome, error) {
	res, err := g.RequestSignature(ctx, d, key).Await(ctx)
	if err != nil {
		return d, Outcome{}, err
	}
	out := *res
	if !out.Approved() {
		return d, out, nil
	}

	sig := out.Signature
	if len(sig) == types.SignatureSize {
		sig = crypto.TagSignature(key.Algorithm(), sig)
	}
	if !crypto.VerifySignature(key, d.Hash[:], sig) {
		g.logger.Warn().Str("deploy", d.Hash.String()).Str("signer", key.String()).Msg("Provider signature does not verify")
		return d, Outcome{Kind: OutcomeRejected, Reason: "signature does not verify"}, nil
	}
	out.Signature = sig
	return deploy.AddApproval(d, key, sig), out, nil
}

// Connect asks the provider to connect this site.
func (g *Gateway) Connect(ctx context.Context) (bool, error) {
	return g.provider.RequestConnection(ctx)
}

// Disconnect asks the provider to disconnect this site.
func (g *Gateway) Disconnect(ctx context.Context) (bool, error) {
	return g.provider.DisconnectFromSite(ctx)
}

// SwitchAccount asks the provider to let the user pick another account.
func (g *Gateway) SwitchAccount(ctx context.Context) (bool, error) {
	return g.provider.RequestSwitchAccount(ctx)
}

// IsConnected reports whether the provider considers this site connected.
func (g *Gateway) IsConnected(ctx context.Context) (bool, error) {
	return g.provider.IsConnected(ctx)
}

// ActivePublicKey returns the provider's active key, if any.
func (g *Gateway) ActivePublicKey(ctx context.Context) (optional.Option[types.PublicKey], error) {
	s, err := g.provider.GetActivePublicKey(ctx)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return optional.None[types.PublicKey](), nil
	}
	key, err := types.ParsePublicKey(s)
	if err != nil {
		return nil, fmt.Errorf("provider active key: %w", err)
	}
	return optional.Some(key), nil
}

// Version returns the provider version string.
func (g *Gateway) Version(ctx context.Context) (string, error) {
	return g.provider.GetVersion(ctx)
}

// CheckVersion verifies the provider version satisfies constraint, e.g.
// ">= 1.0.0". An empty constraint accepts any version.
func (g *Gateway) CheckVersion(ctx context.Context, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("version constraint: %w", err)
	}
	raw, err := g.provider.GetVersion(ctx)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, raw)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, v, constraint)
	}
	return nil
}
