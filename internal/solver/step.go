package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
	"github.com/semantic-layer/agi-solver/internal/storage"
)

// step reconciles one intent: read the contract's authoritative status,
// merge it with internal progress, and dispatch the handler for the
// effective status. Errors never escape the worker; they are classified
// and folded into the intent's retry state.
func (m *QueueManager) step(ctx context.Context, orderID uint64) {
	now := time.Now()

	prog := m.progress[orderID]
	if prog != nil && !prog.Ready(now) {
		m.log.Debug("Intent not ready", "order_id", orderID,
			"remaining", (prog.requiredDelay - now.Sub(prog.lastAttemptAt)).Round(time.Millisecond))
		return
	}

	agi, err := m.chain.ViewAGI(ctx, new(big.Int).SetUint64(orderID))
	if err != nil {
		m.finishStep(orderID, nil, fmt.Errorf("viewAGI: %w", err))
		return
	}

	if agi.IntentType != warehouse.IntentTypeTrade {
		// Not a trade: the solver has no handler for it. Drop it without a
		// failure row; this is not a swap failure.
		m.log.Warn("Unsupported intent type, dropping",
			"order_id", orderID, "intent_type", agi.IntentType)
		m.forget(orderID)
		return
	}

	effective := effectiveStatus(agi.OrderStatus, prog)

	m.log.Debug("Processing intent", "order_id", orderID,
		"contract_status", agi.OrderStatus, "effective_status", effective)

	var stepErr error
	switch effective {
	case StatusPendingDispense:
		stepErr = m.handlePendingDispense(ctx, orderID)
	case StatusDispensedPendingProceeds:
		m.handleDispensed(orderID)
	case StatusSwapInitiated:
		stepErr = m.handleSwapInitiated(ctx, orderID, agi)
	case StatusSwapCompleted:
		stepErr = m.handleSwapCompleted(ctx, orderID, agi)
	case StatusProceedsReceived:
		m.handleProceedsReceived(orderID)
		return
	default:
		m.log.Error("Unknown effective status, dropping", "order_id", orderID, "status", uint8(effective))
		m.forget(orderID)
		return
	}

	m.finishStep(orderID, agi, stepErr)
}

// handlePendingDispense withdraws the sell asset from the escrow. The
// contract flips its status 0 -> 1 on success; no internal status is set.
func (m *QueueManager) handlePendingDispense(ctx context.Context, orderID uint64) error {
	return m.tx.WithdrawAsset(ctx, orderID)
}

// handleDispensed marks the custody handoff. The swap itself runs on a
// later tick so a slow swap does not extend this step.
func (m *QueueManager) handleDispensed(orderID uint64) {
	m.ensureProgress(orderID).SetStatus(StatusSwapInitiated)
	m.log.Info("Asset in custody, swap scheduled", "order_id", orderID)
}

// handleSwapInitiated runs the swap through the coordinator, honoring
// prior attempts: a pending swap is left alone, a completed one advances
// the status without a second capability call, and an exhausted failure
// waits for the eviction already performed by the error path.
func (m *QueueManager) handleSwapInitiated(ctx context.Context, orderID uint64, agi *warehouse.AGI) error {
	if rec, ok := m.swaps.Record(orderID); ok {
		switch rec.Phase {
		case SwapPhasePending:
			m.log.Debug("Swap already in flight", "order_id", orderID)
			return nil
		case SwapPhaseCompleted:
			m.ensureProgress(orderID).SetStatus(StatusSwapCompleted)
			return nil
		case SwapPhaseFailed:
			if m.policy.Exhausted(rec.Attempts) {
				return nil
			}
		}
	}

	if _, err := m.swaps.ExecuteSwap(ctx, orderID, agi, m.chain.SolverAddress()); err != nil {
		return err
	}

	m.ensureProgress(orderID).SetStatus(StatusSwapCompleted)
	return nil
}

// handleSwapCompleted deposits the cached swap proceeds back into the
// escrow and clears any stale failure row for the intent.
func (m *QueueManager) handleSwapCompleted(ctx context.Context, orderID uint64, agi *warehouse.AGI) error {
	rec, ok := m.swaps.Record(orderID)
	if !ok || rec.Phase != SwapPhaseCompleted || rec.AmountToBuy == nil {
		return fmt.Errorf("no completed swap result for intent %d", orderID)
	}

	if err := m.tx.DepositAsset(ctx, orderID, agi.AssetToBuy, rec.AmountToBuy); err != nil {
		return err
	}

	m.ensureProgress(orderID).SetStatus(StatusProceedsReceived)

	if err := m.store.DeleteFailedSwap(orderID); err != nil {
		m.log.Warn("Failed to clear failure row", "order_id", orderID, "error", err)
	}

	m.log.Info("Proceeds deposited", "order_id", orderID, "amount", rec.AmountToBuy.String())
	return nil
}

// handleProceedsReceived retires a completed intent.
func (m *QueueManager) handleProceedsReceived(orderID uint64) {
	m.forget(orderID)
	m.emit(EventIntentCompleted, orderID)
	m.log.Info("Intent completed", "order_id", orderID)
}

// finishStep folds a step outcome into the intent's retry state. Swap
// errors that reach the ceiling evict the intent and persist a failure
// row; everything else stays in the queue on the class-appropriate delay.
func (m *QueueManager) finishStep(orderID uint64, agi *warehouse.AGI, stepErr error) {
	prog := m.ensureProgress(orderID)
	prog.lastAttemptAt = time.Now()
	prog.requiredDelay = m.policy.DelayFor(stepErr)

	if stepErr == nil {
		return
	}

	var swapErr *SwapError
	if errors.As(stepErr, &swapErr) {
		m.log.Warn("Swap attempt failed", "order_id", orderID,
			"attempt", swapErr.Attempt, "error", swapErr.Unwrap())

		if m.policy.Exhausted(swapErr.Attempt) {
			m.evict(orderID, agi, swapErr)
		}
		return
	}

	m.log.Warn("Step failed, will retry", "order_id", orderID, "error", stepErr)
}

// evict removes an intent that exhausted its swap retries. Progress is
// cleared but the swap record is kept for the failed-swap report; the
// failure is persisted for operator intervention.
func (m *QueueManager) evict(orderID uint64, agi *warehouse.AGI, swapErr *SwapError) {
	m.log.Error("Swap retries exhausted, evicting intent",
		"order_id", orderID, "attempts", swapErr.Attempt, "error", swapErr.Unwrap())

	m.removeFromQueue(orderID)
	delete(m.progress, orderID)

	row := &storage.FailedSwap{
		Timestamp:    time.Now(),
		OrderID:      orderID,
		ErrorMessage: swapErr.Error(),
	}
	if agi != nil {
		row.IntentType = agi.IntentType
		row.AssetToSell = agi.AssetToSell.Hex()
		row.AmountToSell = agi.AmountToSell
		row.AssetToBuy = agi.AssetToBuy.Hex()
		row.OrderStatus = uint8(agi.OrderStatus)
	}
	if err := m.store.RecordFailedSwap(row); err != nil {
		m.log.Error("Failed to persist failure row", "order_id", orderID, "error", err)
	}

	m.emit(EventIntentFailed, orderID)
}

// forget drops every trace of an intent: queue slot, progress, swap record.
func (m *QueueManager) forget(orderID uint64) {
	m.removeFromQueue(orderID)
	delete(m.progress, orderID)
	m.swaps.Clear(orderID)
}

func (m *QueueManager) ensureProgress(orderID uint64) *IntentProgress {
	prog, ok := m.progress[orderID]
	if !ok {
		prog = &IntentProgress{}
		m.progress[orderID] = prog
	}
	return prog
}
