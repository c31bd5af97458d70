// Package solver implements the AGI queue manager: the scheduler that owns
// the per-intent state machine, coordinates on-chain transactions with
// off-chain swap calls, and reconciles internal progress with the escrow
// contract's authoritative status.
package solver

import (
	"math/big"
	"time"

	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
)

// ExtendedStatus is the union of the contract's order status and the
// solver's internal overlay states. The contract does not model the swap
// phases, so 3 and 4 exist only in solver memory.
type ExtendedStatus uint8

const (
	// StatusPendingDispense mirrors contract status 0: awaiting withdrawAsset.
	StatusPendingDispense ExtendedStatus = 0

	// StatusDispensedPendingProceeds mirrors contract status 1: the sell
	// asset is in the solver's custody, swap pending.
	StatusDispensedPendingProceeds ExtendedStatus = 1

	// StatusProceedsReceived mirrors contract status 2: terminal success.
	StatusProceedsReceived ExtendedStatus = 2

	// StatusSwapInitiated is internal: a swap is in progress or about to start.
	StatusSwapInitiated ExtendedStatus = 3

	// StatusSwapCompleted is internal: the swap is done, the buy amount is
	// known, awaiting depositAsset.
	StatusSwapCompleted ExtendedStatus = 4
)

func (s ExtendedStatus) String() string {
	switch s {
	case StatusPendingDispense:
		return "pending_dispense"
	case StatusDispensedPendingProceeds:
		return "dispensed_pending_proceeds"
	case StatusProceedsReceived:
		return "proceeds_received"
	case StatusSwapInitiated:
		return "swap_initiated"
	case StatusSwapCompleted:
		return "swap_completed"
	default:
		return "unknown"
	}
}

// SwapPhase is the lifecycle of one intent's swap attempt.
type SwapPhase uint8

const (
	SwapPhasePending SwapPhase = iota
	SwapPhaseCompleted
	SwapPhaseFailed
)

func (p SwapPhase) String() string {
	switch p {
	case SwapPhasePending:
		return "pending"
	case SwapPhaseCompleted:
		return "completed"
	case SwapPhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SwapRecord tracks one intent's swap across retries of the overall step.
// A completed record is remembered so a later deposit failure does not
// trigger a second swap.
type SwapRecord struct {
	AmountToBuy *big.Int
	Phase       SwapPhase
	Attempts    int
}

// IntentProgress is the solver's in-memory overlay for one intent.
type IntentProgress struct {
	// extStatus is set once the intent passes the on-chain custody handoff;
	// hasExt distinguishes "no overlay" from status 0.
	extStatus ExtendedStatus
	hasExt    bool

	lastAttemptAt time.Time
	requiredDelay time.Duration
}

// SetStatus records an internal overlay status.
func (p *IntentProgress) SetStatus(s ExtendedStatus) {
	p.extStatus = s
	p.hasExt = true
}

// Status returns the overlay status and whether one is set.
func (p *IntentProgress) Status() (ExtendedStatus, bool) {
	return p.extStatus, p.hasExt
}

// Ready reports whether the intent's retry delay has elapsed.
func (p *IntentProgress) Ready(now time.Time) bool {
	if p.lastAttemptAt.IsZero() {
		return true
	}
	return now.Sub(p.lastAttemptAt) >= p.requiredDelay
}

// effectiveStatus merges the contract status with the internal overlay.
// The contract is the source of truth everywhere except status 1, the
// unique point where the solver holds custody and the contract cannot see
// swap progress.
func effectiveStatus(contract warehouse.OrderStatus, progress *IntentProgress) ExtendedStatus {
	if contract == warehouse.OrderStatusDispensedPendingProceeds && progress != nil {
		if internal, ok := progress.Status(); ok {
			return internal
		}
	}
	return ExtendedStatus(contract)
}
