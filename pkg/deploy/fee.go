package deploy

import (
	"fmt"
	"strings"
)

// AuctionKind selects a stake-management entry point of the auction contract.
type AuctionKind int

// Auction entry points.
const (
	Delegate AuctionKind = iota + 1
	Undelegate
	Redelegate
)

// String returns the contract entry point name.
func (k AuctionKind) String() string {
	switch k {
	case Delegate:
		return "delegate"
	case Undelegate:
		return "undelegate"
	case Redelegate:
		return "redelegate"
	default:
		return fmt.Sprintf("AuctionKind(%d)", int(k))
	}
}

// ParseAuctionKind maps an entry point name to its kind.
func ParseAuctionKind(s string) (AuctionKind, error) {
	switch strings.ToLower(s) {
	case "delegate":
		return Delegate, nil
	case "undelegate":
		return Undelegate, nil
	case "redelegate":
		return Redelegate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, s)
	}
}

// Default payment amounts in motes.
const (
	DefaultTransferFee   uint64 = 100_000_000
	DefaultDelegateFee   uint64 = 2_500_000_000
	DefaultUndelegateFee uint64 = 10_000
	DefaultRedelegateFee uint64 = 10_000
)

// FeeTable holds the fixed payment amount per transaction family, in motes.
type FeeTable struct {
	Transfer   uint64
	Delegate   uint64
	Undelegate uint64
	Redelegate uint64
}

// DefaultFeeTable returns the standard payment amounts.
func DefaultFeeTable() FeeTable {
	return FeeTable{
		Transfer:   DefaultTransferFee,
		Delegate:   DefaultDelegateFee,
		Undelegate: DefaultUndelegateFee,
		Redelegate: DefaultRedelegateFee,
	}
}

// ForAuction returns the payment amount for an auction entry point.
func (f FeeTable) ForAuction(kind AuctionKind) (uint64, error) {
	switch kind {
	case Delegate:
		return f.Delegate, nil
	case Undelegate:
		return f.Undelegate, nil
	case Redelegate:
		return f.Redelegate, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownEntryPoint, kind)
	}
}
