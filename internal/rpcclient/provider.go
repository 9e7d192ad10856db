package rpcclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
	"github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/internal/rpc"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often Subscribe polls for events.
const DefaultPollInterval = 500 * time.Millisecond

// Provider implements gateway.Provider against a signer daemon.
type Provider struct {
	client       *Client
	pollInterval time.Duration
	logger       zerolog.Logger
}

var _ gateway.Provider = (*Provider)(nil)

// NewProvider wraps c. A non-positive interval selects the default.
func NewProvider(c *Client, pollInterval time.Duration) *Provider {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Provider{client: c, pollInterval: pollInterval, logger: log.RPC}
}

func (p *Provider) callBool(ctx context.Context, method string) (bool, error) {
	var res rpc.BoolResult
	if err := p.client.CallContext(ctx, method, nil, &res); err != nil {
		return false, err
	}
	return res.Result, nil
}

func (p *Provider) RequestConnection(ctx context.Context) (bool, error) {
	return p.callBool(ctx, rpc.MethodRequestConnection)
}

func (p *Provider) DisconnectFromSite(ctx context.Context) (bool, error) {
	return p.callBool(ctx, rpc.MethodDisconnectFromSite)
}

func (p *Provider) RequestSwitchAccount(ctx context.Context) (bool, error) {
	return p.callBool(ctx, rpc.MethodRequestSwitchAccount)
}

func (p *Provider) IsConnected(ctx context.Context) (bool, error) {
	return p.callBool(ctx, rpc.MethodIsConnected)
}

func (p *Provider) GetActivePublicKey(ctx context.Context) (string, error) {
	var res rpc.KeyResult
	if err := p.client.CallContext(ctx, rpc.MethodGetActivePublicKey, nil, &res); err != nil {
		return "", err
	}
	return res.Key, nil
}

func (p *Provider) GetVersion(ctx context.Context) (string, error) {
	var res rpc.VersionResult
	if err := p.client.CallContext(ctx, rpc.MethodGetVersion, nil, &res); err != nil {
		return "", err
	}
	return res.Version, nil
}

func (p *Provider) sign(ctx context.Context, method string, req gateway.SignRequest) (gateway.SignResponse, error) {
	var res rpc.SignResult
	params := rpc.SignParam{ID: req.ID, Payload: req.Payload, SigningKey: req.SigningKey}
	if err := p.client.CallContext(ctx, method, params, &res); err != nil {
		return gateway.SignResponse{}, err
	}
	if res.Cancelled {
		return gateway.SignResponse{Cancelled: true}, nil
	}
	sig, err := hex.DecodeString(res.Signature)
	if err != nil {
		return gateway.SignResponse{}, fmt.Errorf("decode signature: %w", err)
	}
	return gateway.SignResponse{Signature: sig}, nil
}

func (p *Provider) Sign(ctx context.Context, req gateway.SignRequest) (gateway.SignResponse, error) {
	return p.sign(ctx, rpc.MethodSign, req)
}

func (p *Provider) SignMessage(ctx context.Context, req gateway.SignRequest) (gateway.SignResponse, error) {
	return p.sign(ctx, rpc.MethodSignMessage, req)
}

// Subscribe opens a daemon subscription and polls it until release is
// called or ctx is done. The channel is closed when polling stops.
func (p *Provider) Subscribe(ctx context.Context) (<-chan session.RawEvent, func(), error) {
	var sub rpc.SubscribeResult
	if err := p.client.CallContext(ctx, rpc.MethodSubscribe, nil, &sub); err != nil {
		return nil, nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	ch := make(chan session.RawEvent)
	go p.poll(pollCtx, sub.Subscription, ch)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			unsubCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := p.client.CallContext(unsubCtx, rpc.MethodUnsubscribe, rpc.SubscriptionParam{Subscription: sub.Subscription}, nil); err != nil {
				p.logger.Debug().Err(err).Msg("Unsubscribe failed")
			}
		})
	}
	return ch, release, nil
}

func (p *Provider) poll(ctx context.Context, id string, ch chan<- session.RawEvent) {
	defer close(ch)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var res rpc.PollResult
		if err := p.client.CallContext(ctx, rpc.MethodPollEvents, rpc.PollParam{Subscription: id}, &res); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn().Err(err).Msg("Event poll failed")
			continue
		}
		if res.Dropped > 0 {
			p.logger.Warn().Int("dropped", res.Dropped).Msg("Signer dropped events")
		}
		for _, ev := range res.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
