package rpc

import "github.com/Klingon-tech/cspr-signer-kit/internal/session"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeLocked         = -32001
	CodeNotConnected   = -32002
	CodeUnknownKey     = -32003
)

// Method names.
const (
	MethodRequestConnection    = "signer_requestConnection"
	MethodDisconnectFromSite   = "signer_disconnectFromSite"
	MethodRequestSwitchAccount = "signer_requestSwitchAccount"
	MethodIsConnected          = "signer_isConnected"
	MethodGetActivePublicKey   = "signer_getActivePublicKey"
	MethodGetVersion           = "signer_getVersion"
	MethodSign                 = "signer_sign"
	MethodSignMessage          = "signer_signMessage"
	MethodSubscribe            = "signer_subscribe"
	MethodPollEvents           = "signer_pollEvents"
	MethodUnsubscribe          = "signer_unsubscribe"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// SignParam is used by signer_sign and signer_signMessage.
type SignParam struct {
	ID         string `json:"id,omitempty"`
	Payload    string `json:"payload" validate:"required"`
	SigningKey string `json:"signing_key" validate:"required,hexadecimal"`
}

// PollParam is used by signer_pollEvents.
type PollParam struct {
	Subscription string `json:"subscription" validate:"required,uuid"`
	Max          int    `json:"max,omitempty" validate:"gte=0,lte=1024"`
}

// SubscriptionParam is used by signer_unsubscribe.
type SubscriptionParam struct {
	Subscription string `json:"subscription" validate:"required,uuid"`
}

// ── Result types ────────────────────────────────────────────────────────

// BoolResult wraps a boolean answer.
type BoolResult struct {
	Result bool `json:"result"`
}

// KeyResult is the result of signer_getActivePublicKey. Key is empty when
// the site is not connected.
type KeyResult struct {
	Key string `json:"key"`
}

// VersionResult is the result of signer_getVersion.
type VersionResult struct {
	Version string `json:"version"`
}

// SignResult is the result of signer_sign and signer_signMessage.
type SignResult struct {
	Cancelled bool   `json:"cancelled"`
	Signature string `json:"signature,omitempty"` // hex
}

// SubscribeResult is the result of signer_subscribe.
type SubscribeResult struct {
	Subscription string `json:"subscription"`
}

// PollResult is the result of signer_pollEvents. Dropped counts events
// discarded because the buffer overflowed since the last poll.
type PollResult struct {
	Events  []session.RawEvent `json:"events"`
	Dropped int                `json:"dropped,omitempty"`
}
