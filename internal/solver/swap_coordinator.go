package solver

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/semantic-layer/agi-solver/internal/aggregator"
	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// SwapCoordinator wraps the swap capability with per-intent idempotency:
// at most one outstanding swap call per order ID, a completed result
// cached for the remainder of the lifecycle, and a monotone attempt
// counter. Records outlive intent progress so the failed-swap report can
// still see exhausted intents after eviction.
//
// Swap execution happens on the queue worker, but the admission path
// reads records when deciding whether to refuse an exhausted intent, so
// the record map is guarded.
type SwapCoordinator struct {
	swapper Swapper

	mu      sync.RWMutex
	records map[uint64]*SwapRecord

	log *logging.Logger
}

// NewSwapCoordinator creates a swap coordinator over the given capability.
func NewSwapCoordinator(swapper Swapper) *SwapCoordinator {
	return &SwapCoordinator{
		swapper: swapper,
		records: make(map[uint64]*SwapRecord),
		log:     logging.GetDefault().Component("swap"),
	}
}

// Record returns a copy of the swap record for an order ID, if any.
func (c *SwapCoordinator) Record(orderID uint64) (SwapRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[orderID]
	if !ok {
		return SwapRecord{}, false
	}
	return *rec, true
}

// Clear drops the swap record for an order ID.
func (c *SwapCoordinator) Clear(orderID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, orderID)
}

// FailedExhausted returns the order IDs whose swap failed with attempts
// at or above the given ceiling.
func (c *SwapCoordinator) FailedExhausted(maxRetries int) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []uint64
	for id, rec := range c.records {
		if rec.Phase == SwapPhaseFailed && rec.Attempts >= maxRetries {
			ids = append(ids, id)
		}
	}
	return ids
}

// ExecuteSwap performs one swap attempt for an intent. The record is
// marked pending and the attempt counter incremented before the
// capability call; phase and cached amount are settled from the outcome.
// Any capability failure comes back as a SwapError.
func (c *SwapCoordinator) ExecuteSwap(ctx context.Context, orderID uint64, agi *warehouse.AGI, fromAddress common.Address) (*big.Int, error) {
	c.mu.Lock()
	rec, ok := c.records[orderID]
	if !ok {
		rec = &SwapRecord{}
		c.records[orderID] = rec
	}
	rec.Phase = SwapPhasePending
	rec.Attempts++
	attempt := rec.Attempts
	c.mu.Unlock()

	c.log.Info("Executing swap",
		"order_id", orderID,
		"sell", agi.AssetToSell.Hex(),
		"buy", agi.AssetToBuy.Hex(),
		"amount", agi.AmountToSell.String(),
		"attempt", attempt)

	amount, err := c.swapper.Execute(ctx, &aggregator.SwapRequest{
		FromToken:   agi.AssetToSell,
		ToToken:     agi.AssetToBuy,
		FromAmount:  agi.AmountToSell,
		FromAddress: fromAddress,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		rec.Phase = SwapPhaseFailed
		return nil, &SwapError{OrderID: orderID, Attempt: attempt, Err: err}
	}

	rec.Phase = SwapPhaseCompleted
	rec.AmountToBuy = amount

	c.log.Info("Swap completed", "order_id", orderID, "amount_to_buy", amount.String())

	return amount, nil
}
