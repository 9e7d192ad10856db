// Package deploy builds, signs and serializes transaction envelopes
// (deploys): a header, a payment item, a session item and a set of
// approvals.
package deploy

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// Deploy is a signable transaction envelope.
//
// Hash covers the header only; the header commits to payment and session
// through BodyHash. Approvals are not covered by either hash.
type Deploy struct {
	Hash      types.Hash
	Header    Header
	Payment   ExecutableItem
	Session   ExecutableItem
	Approvals []Approval
}

// BodyHash returns blake2b-256(payment bytes | session bytes).
func BodyHash(payment, session ExecutableItem) types.Hash {
	return crypto.HashConcat(payment.Bytes(), session.Bytes())
}

// New assembles a deploy with no approvals and computes both hashes.
func New(account types.PublicKey, chainName string, timestamp time.Time, ttl time.Duration,
	gasPrice uint64, dependencies []types.Hash, payment, session ExecutableItem) *Deploy {
	d := &Deploy{
		Header: Header{
			Account:      account,
			Timestamp:    timestamp.UTC().Truncate(time.Millisecond),
			TTL:          ttl.Truncate(time.Millisecond),
			GasPrice:     gasPrice,
			BodyHash:     BodyHash(payment, session),
			Dependencies: dependencies,
			ChainName:    chainName,
		},
		Payment: payment,
		Session: session,
	}
	d.Hash = d.Header.Hash()
	return d
}

// Validate checks that the body hash and deploy hash match the contents.
func (d *Deploy) Validate() error {
	if got := BodyHash(d.Payment, d.Session); got != d.Header.BodyHash {
		return fmt.Errorf("%w: header has %s, computed %s", ErrBodyHashMismatch, d.Header.BodyHash, got)
	}
	if got := d.Header.Hash(); got != d.Hash {
		return fmt.Errorf("%w: envelope has %s, computed %s", ErrDeployHashMismatch, d.Hash, got)
	}
	return nil
}

// VerifyApprovals checks every approval signature against the deploy hash.
func (d *Deploy) VerifyApprovals() error {
	for i, a := range d.Approvals {
		if !crypto.VerifySignature(a.Signer, d.Hash[:], a.Signature) {
			return fmt.Errorf("approval %d (%s): %w", i, a.Signer, ErrInvalidApproval)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Deploy) Clone() *Deploy {
	c := *d
	if d.Header.Dependencies != nil {
		c.Header.Dependencies = append([]types.Hash(nil), d.Header.Dependencies...)
	}
	if d.Approvals != nil {
		c.Approvals = make([]Approval, len(d.Approvals))
		for i, a := range d.Approvals {
			c.Approvals[i] = Approval{Signer: a.Signer, Signature: append([]byte(nil), a.Signature...)}
		}
	}
	// Args copies do not share appends; module bytes are copied.
	c.Payment.ModuleBytes = cloneBytes(d.Payment.ModuleBytes)
	c.Session.ModuleBytes = cloneBytes(d.Session.ModuleBytes)
	return &c
}

// Equal reports structural equality, including approvals in order.
func Equal(a, b *Deploy) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Hash != b.Hash || !a.Header.Equal(&b.Header) ||
		!a.Payment.Equal(b.Payment) || !a.Session.Equal(b.Session) ||
		len(a.Approvals) != len(b.Approvals) {
		return false
	}
	for i := range a.Approvals {
		if !a.Approvals[i].Equal(b.Approvals[i]) {
			return false
		}
	}
	return true
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
