package rpc

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
)

// FuzzSignParam checks that arbitrary params never panic through decoding
// and validation.
func FuzzSignParam(f *testing.F) {
	f.Add([]byte(`{"payload":"{}","signing_key":"01ab"}`))
	f.Add([]byte(`{"payload":"","signing_key":"zz"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`[1,2,3]`))

	v := validator.New(validator.WithRequiredStructEnabled())
	f.Fuzz(func(t *testing.T, data []byte) {
		var p SignParam
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if err := v.Struct(&p); err == nil && (p.Payload == "" || p.SigningKey == "") {
			t.Fatalf("validation accepted %+v", p)
		}
	})
}
