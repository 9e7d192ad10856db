package deploy

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// timestampLayout renders timestamps with millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Header is the signed part of a deploy.
type Header struct {
	Account      types.PublicKey
	Timestamp    time.Time
	TTL          time.Duration
	GasPrice     uint64
	BodyHash     types.Hash
	Dependencies []types.Hash
	ChainName    string
}

// Bytes returns the header serialization:
//
//	account | timestamp ms (u64) | ttl ms (u64) | gas price (u64) |
//	body hash | dependency count (u32) | dependencies | chain name
func (h *Header) Bytes() []byte {
	buf := h.Account.Bytes()
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.Timestamp.UnixMilli()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.TTL.Milliseconds()))
	buf = binary.LittleEndian.AppendUint64(buf, h.GasPrice)
	buf = append(buf, h.BodyHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.Dependencies)))
	for _, dep := range h.Dependencies {
		buf = append(buf, dep[:]...)
	}
	return appendString(buf, h.ChainName)
}

// Hash returns the deploy hash: blake2b-256 of the header bytes.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.Bytes())
}

// Equal reports structural equality.
func (h *Header) Equal(other *Header) bool {
	if !h.Account.Equal(other.Account) ||
		!h.Timestamp.Equal(other.Timestamp) ||
		h.TTL != other.TTL ||
		h.GasPrice != other.GasPrice ||
		h.BodyHash != other.BodyHash ||
		h.ChainName != other.ChainName ||
		len(h.Dependencies) != len(other.Dependencies) {
		return false
	}
	for i := range h.Dependencies {
		if h.Dependencies[i] != other.Dependencies[i] {
			return false
		}
	}
	return true
}

type headerJSON struct {
	Account      types.PublicKey `json:"account"`
	Timestamp    string          `json:"timestamp"`
	TTL          string          `json:"ttl"`
	GasPrice     uint64          `json:"gas_price"`
	BodyHash     types.Hash      `json:"body_hash"`
	Dependencies []types.Hash    `json:"dependencies"`
	ChainName    string          `json:"chain_name"`
}

// MarshalJSON encodes the header in wire form.
func (h Header) MarshalJSON() ([]byte, error) {
	deps := h.Dependencies
	if deps == nil {
		deps = []types.Hash{}
	}
	return json.Marshal(headerJSON{
		Account:      h.Account,
		Timestamp:    h.Timestamp.UTC().Format(timestampLayout),
		TTL:          FormatTTL(h.TTL),
		GasPrice:     h.GasPrice,
		BodyHash:     h.BodyHash,
		Dependencies: deps,
		ChainName:    h.ChainName,
	})
}

// UnmarshalJSON decodes the wire form.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if j.Account.IsZero() {
		return fmt.Errorf("header: %w: account", ErrMissingField)
	}
	ts, err := time.Parse(time.RFC3339Nano, j.Timestamp)
	if err != nil {
		return fmt.Errorf("header: timestamp: %w", err)
	}
	ttl, err := ParseTTL(j.TTL)
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	var deps []types.Hash
	if len(j.Dependencies) > 0 {
		deps = j.Dependencies
	}
	*h = Header{
		Account:      j.Account,
		Timestamp:    ts.UTC(),
		TTL:          ttl,
		GasPrice:     j.GasPrice,
		BodyHash:     j.BodyHash,
		Dependencies: deps,
		ChainName:    j.ChainName,
	}
	return nil
}

var ttlUnits = []struct {
	suffix string
	d      time.Duration
}{
	{"day", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
}

// FormatTTL renders a duration as space-separated components, e.g. "30m"
// or "1h 30m". Sub-millisecond precision is dropped.
func FormatTTL(d time.Duration) string {
	d = d.Truncate(time.Millisecond)
	if d <= 0 {
		return "0ms"
	}
	var parts []string
	for _, u := range ttlUnits {
		if n := d / u.d; n > 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+u.suffix)
			d -= n * u.d
		}
	}
	return strings.Join(parts, " ")
}

// ParseTTL parses the form produced by FormatTTL. "days" and "d" are also
// accepted.
func ParseTTL(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("ttl: empty")
	}
	var total time.Duration
	for _, f := range fields {
		i := 0
		for i < len(f) && f[i] >= '0' && f[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("ttl: invalid component %q", f)
		}
		n, err := strconv.ParseInt(f[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ttl: %w", err)
		}
		var unit time.Duration
		switch f[i:] {
		case "ms":
			unit = time.Millisecond
		case "s":
			unit = time.Second
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "day", "days", "d":
			unit = 24 * time.Hour
		default:
			return 0, fmt.Errorf("ttl: unknown unit in %q", f)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}
