package gateway

import "encoding/hex"

// OutcomeKind classifies a signature request result.
type OutcomeKind int

const (
	OutcomeCancelled OutcomeKind = iota
	OutcomeApproved
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of a signature request. Cancellation is an
// outcome, not an error.
type Outcome struct {
	Kind OutcomeKind
	// Signature is set when Kind is OutcomeApproved.
	Signature []byte
	// Reason is set when Kind is OutcomeRejected.
	Reason string
}

// Approved reports whether a signature was produced.
func (o Outcome) Approved() bool {
	return o.Kind == OutcomeApproved
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeApproved:
		return "approved(" + hex.EncodeToString(o.Signature) + ")"
	case OutcomeRejected:
		return "rejected(" + o.Reason + ")"
	default:
		return o.Kind.String()
	}
}

func outcomeOf(resp SignResponse) Outcome {
	switch {
	case resp.Cancelled:
		return Outcome{Kind: OutcomeCancelled}
	case len(resp.Signature) == 0:
		return Outcome{Kind: OutcomeRejected, Reason: "provider returned no signature"}
	default:
		return Outcome{Kind: OutcomeApproved, Signature: append([]byte(nil), resp.Signature...)}
	}
}
