package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// resubscribeDelay is the pause before re-establishing a dropped
// AGIPublished subscription.
const resubscribeDelay = 5 * time.Second

// Admission feeds intent IDs into the queue: a backlog scan against the
// contract on startup, then live AGIPublished events. The queue itself is
// not persisted; this is how it is rebuilt after a restart.
type Admission struct {
	chain Chain
	queue *QueueManager
	log   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdmission creates an admission source for the queue.
func NewAdmission(chain Chain, queue *QueueManager) *Admission {
	ctx, cancel := context.WithCancel(context.Background())
	return &Admission{
		chain:  chain,
		queue:  queue,
		log:    logging.GetDefault().Component("admission"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Backlog scans the contract for unprocessed intents and admits them:
// every ID in [1, nextOrderId) that is not in the processed list still
// needs work.
func (a *Admission) Backlog(ctx context.Context) error {
	next, err := a.chain.NextOrderID(ctx)
	if err != nil {
		return fmt.Errorf("nextOrderId: %w", err)
	}

	processedLen, err := a.chain.ProcessedAGIsLength(ctx)
	if err != nil {
		return fmt.Errorf("processedAGIsLength: %w", err)
	}

	processed := make(map[uint64]struct{})
	if processedLen.Sign() > 0 {
		ids, err := a.chain.GetProcessedAGIs(ctx, big.NewInt(0), processedLen)
		if err != nil {
			return fmt.Errorf("getProcessedAGIs: %w", err)
		}
		for _, id := range ids {
			processed[id.Uint64()] = struct{}{}
		}
	}

	admitted := 0
	for id := uint64(1); id < next.Uint64(); id++ {
		if _, ok := processed[id]; ok {
			continue
		}
		a.queue.Add(id)
		admitted++
	}

	a.log.Info("Backlog scan complete",
		"next_order_id", next.String(), "processed", len(processed), "admitted", admitted)

	return nil
}

// Start begins watching AGIPublished events, resubscribing whenever the
// subscription drops.
func (a *Admission) Start() {
	go a.watch()
	a.log.Info("Event admission started")
}

// Stop stops the watcher and waits for it to exit.
func (a *Admission) Stop() {
	a.cancel()
	<-a.done
	a.log.Info("Event admission stopped")
}

func (a *Admission) watch() {
	defer close(a.done)

	for {
		if a.ctx.Err() != nil {
			return
		}

		events, err := a.chain.WatchAGIPublished(a.ctx)
		if err != nil {
			a.log.Warn("Failed to subscribe, retrying", "error", err)
			select {
			case <-a.ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
			continue
		}

		a.log.Info("Subscribed to AGIPublished")

		for event := range events {
			a.log.Info("Intent published",
				"order_id", event.OrderID.String(),
				"sell", event.AssetToSell.Hex(),
				"buy", event.AssetToBuy.Hex(),
				"amount", event.AmountToSell.String())
			a.queue.Add(event.OrderID.Uint64())
		}

		// Channel closed: subscription dropped or ctx cancelled.
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}
