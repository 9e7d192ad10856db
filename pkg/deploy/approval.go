package deploy

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// Approval is a signer key and its signature over the deploy hash.
type Approval struct {
	Signer    types.PublicKey
	Signature []byte
}

// Equal compares signer keys (ignoring hex case) and signature bytes.
func (a Approval) Equal(other Approval) bool {
	return a.Signer.Equal(other.Signer) && bytes.Equal(a.Signature, other.Signature)
}

type approvalJSON struct {
	Signer    types.PublicKey `json:"signer"`
	Signature string          `json:"signature"`
}

func (a Approval) MarshalJSON() ([]byte, error) {
	return json.Marshal(approvalJSON{Signer: a.Signer, Signature: hex.EncodeToString(a.Signature)})
}

func (a *Approval) UnmarshalJSON(data []byte) error {
	var j approvalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	if j.Signer.IsZero() {
		return fmt.Errorf("approval: %w: signer", ErrMissingField)
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("approval: signature: %w", err)
	}
	*a = Approval{Signer: j.Signer, Signature: sig}
	return nil
}

// AddApproval returns a copy of d with signature attached for signer. Any
// earlier approval by the same key is dropped and the new one is appended.
// d itself is not modified.
func AddApproval(d *Deploy, signer types.PublicKey, signature []byte) *Deploy {
	out := d.Clone()
	kept := make([]Approval, 0, len(out.Approvals)+1)
	for _, a := range out.Approvals {
		if !a.Signer.Equal(signer) {
			kept = append(kept, a)
		}
	}
	out.Approvals = append(kept, Approval{Signer: signer, Signature: append([]byte(nil), signature...)})
	return out
}

// ApprovalFor returns the approval attached by signer, if any.
func (d *Deploy) ApprovalFor(signer types.PublicKey) (Approval, bool) {
	for _, a := range d.Approvals {
		if a.Signer.Equal(signer) {
			return a, true
		}
	}
	return Approval{}, false
}
