package deploy

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

type deployJSON struct {
	Hash      types.Hash      `json:"hash"`
	Header    Header          `json:"header"`
	Payment   ExecutableItem  `json:"payment"`
	Session   json.RawMessage `json:"session,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Approvals []Approval      `json:"approvals"`
}

// MarshalJSON encodes the deploy in wire form.
func (d Deploy) MarshalJSON() ([]byte, error) {
	session, err := json.Marshal(d.Session)
	if err != nil {
		return nil, err
	}
	approvals := d.Approvals
	if approvals == nil {
		approvals = []Approval{}
	}
	return json.Marshal(deployJSON{
		Hash:      d.Hash,
		Header:    d.Header,
		Payment:   d.Payment,
		Session:   session,
		Approvals: approvals,
	})
}

// UnmarshalJSON decodes the wire form. The session may appear under
// "session" or "body". Hashes are not checked here; see Unmarshal.
func (d *Deploy) UnmarshalJSON(data []byte) error {
	var j deployJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	raw := j.Session
	if len(raw) == 0 {
		raw = j.Body
	}
	if len(raw) == 0 {
		return fmt.Errorf("deploy: %w: session", ErrMissingField)
	}
	var session ExecutableItem
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("deploy: session: %w", err)
	}
	var approvals []Approval
	if len(j.Approvals) > 0 {
		approvals = j.Approvals
	}
	*d = Deploy{
		Hash:      j.Hash,
		Header:    j.Header,
		Payment:   j.Payment,
		Session:   session,
		Approvals: approvals,
	}
	return nil
}

// Marshal serializes d to JSON.
func Marshal(d *Deploy) ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal parses a JSON deploy and rejects it if either hash does not
// match its contents.
func Unmarshal(data []byte) (*Deploy, error) {
	var d Deploy
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
