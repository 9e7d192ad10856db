package rpc

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
)

// providerError maps provider failures onto RPC error codes.
func providerError(err error) *Error {
	code := CodeInternalError
	switch {
	case errors.Is(err, devsigner.ErrLocked):
		code = CodeLocked
	case errors.Is(err, devsigner.ErrNotConnected):
		code = CodeNotConnected
	case errors.Is(err, devsigner.ErrUnknownKey):
		code = CodeUnknownKey
	case errors.Is(err, devsigner.ErrInvalidPayload):
		code = CodeInvalidParams
	}
	return &Error{Code: code, Message: err.Error()}
}

func boolResult(ok bool, err error) (interface{}, *Error) {
	if err != nil {
		return nil, providerError(err)
	}
	return &BoolResult{Result: ok}, nil
}

func (s *Server) handleRequestConnection(ctx context.Context) (interface{}, *Error) {
	return boolResult(s.provider.RequestConnection(ctx))
}

func (s *Server) handleDisconnectFromSite(ctx context.Context) (interface{}, *Error) {
	return boolResult(s.provider.DisconnectFromSite(ctx))
}

func (s *Server) handleRequestSwitchAccount(ctx context.Context) (interface{}, *Error) {
	return boolResult(s.provider.RequestSwitchAccount(ctx))
}

func (s *Server) handleIsConnected(ctx context.Context) (interface{}, *Error) {
	return boolResult(s.provider.IsConnected(ctx))
}

func (s *Server) handleGetActivePublicKey(ctx context.Context) (interface{}, *Error) {
	key, err := s.provider.GetActivePublicKey(ctx)
	if err != nil {
		return nil, providerError(err)
	}
	return &KeyResult{Key: key}, nil
}

func (s *Server) handleGetVersion(ctx context.Context) (interface{}, *Error) {
	v, err := s.provider.GetVersion(ctx)
	if err != nil {
		return nil, providerError(err)
	}
	return &VersionResult{Version: v}, nil
}

func signResult(resp gateway.SignResponse, err error) (interface{}, *Error) {
	if err != nil {
		return nil, providerError(err)
	}
	if resp.Cancelled {
		return &SignResult{Cancelled: true}, nil
	}
	return &SignResult{Signature: hex.EncodeToString(resp.Signature)}, nil
}

func (s *Server) handleSign(ctx context.Context, req *Request) (interface{}, *Error) {
	var p SignParam
	if err := s.parseParams(req, &p); err != nil {
		return nil, err
	}
	return signResult(s.provider.Sign(ctx, gateway.SignRequest{ID: p.ID, Payload: p.Payload, SigningKey: p.SigningKey}))
}

func (s *Server) handleSignMessage(ctx context.Context, req *Request) (interface{}, *Error) {
	var p SignParam
	if err := s.parseParams(req, &p); err != nil {
		return nil, err
	}
	return signResult(s.provider.SignMessage(ctx, gateway.SignRequest{ID: p.ID, Payload: p.Payload, SigningKey: p.SigningKey}))
}

func (s *Server) handleSubscribe(ctx context.Context) (interface{}, *Error) {
	id, err := s.subs.open(devsigner.SiteFrom(ctx))
	if err != nil {
		return nil, providerError(err)
	}
	return &SubscribeResult{Subscription: id}, nil
}

func (s *Server) handlePollEvents(ctx context.Context, req *Request) (interface{}, *Error) {
	var p PollParam
	if err := s.parseParams(req, &p); err != nil {
		return nil, err
	}
	s.subs.sweep()
	sub, ok := s.subs.get(p.Subscription, devsigner.SiteFrom(ctx))
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: "subscription not found"}
	}
	events, dropped := sub.take(p.Max, s.subs.now())
	return &PollResult{Events: events, Dropped: dropped}, nil
}

func (s *Server) handleUnsubscribe(ctx context.Context, req *Request) (interface{}, *Error) {
	var p SubscriptionParam
	if err := s.parseParams(req, &p); err != nil {
		return nil, err
	}
	return &BoolResult{Result: s.subs.close(p.Subscription, devsigner.SiteFrom(ctx))}, nil
}
