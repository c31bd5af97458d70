package solver

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SwapError wraps any failure reported by the swap capability. The retry
// policy treats swap errors differently from transport and contract
// errors: they retry on the swap delay and count toward the eviction
// ceiling.
type SwapError struct {
	OrderID uint64
	Attempt int
	Err     error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("Swap failed for AGI %d at attempt %d", e.OrderID, e.Attempt)
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

// IsSwapError reports whether err is (or wraps) a SwapError.
func IsSwapError(err error) bool {
	var se *SwapError
	return errors.As(err, &se)
}

// TxRevertedError indicates a mined transaction with a reverted receipt.
// It is terminal for that submission but retried as a generic error: the
// next reconciliation read resolves whether the contract moved ahead of
// the solver's view.
type TxRevertedError struct {
	Op     string
	TxHash common.Hash
}

func (e *TxRevertedError) Error() string {
	return fmt.Sprintf("%s reverted on-chain (tx %s)", e.Op, e.TxHash.Hex())
}
