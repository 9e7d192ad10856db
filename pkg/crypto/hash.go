// Package crypto provides hashing and signature primitives for deploys.
package crypto

import (
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"golang.org/x/crypto/blake2b"
)

// Hash computes a BLAKE2b-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// HashConcat hashes the concatenation of the given byte slices.
// Used for the deploy body hash (payment followed by session).
func HashConcat(parts ...[]byte) types.Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// messagePrefix is prepended to off-chain messages before signing so a
// message signature can never be replayed as a deploy approval.
const messagePrefix = "Casper Message:\n"

// MessageBytes returns the bytes actually signed for an off-chain message.
func MessageBytes(message string) []byte {
	return []byte(messagePrefix + message)
}
