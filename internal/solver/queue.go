package solver

import (
	"context"
	"sync"
	"time"

	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// EventType labels an intent lifecycle event.
type EventType string

const (
	EventIntentAdmitted  EventType = "intent_admitted"
	EventIntentCompleted EventType = "intent_completed"
	EventIntentFailed    EventType = "intent_failed"
)

// Event is an intent lifecycle notification.
type Event struct {
	Type      EventType `json:"type"`
	OrderID   uint64    `json:"order_id"`
	Timestamp int64     `json:"timestamp"`
}

// EventHandler receives intent lifecycle events.
type EventHandler func(Event)

// Config holds queue manager settings.
type Config struct {
	// CheckInterval is the ticker period.
	CheckInterval time.Duration

	// Policy is the retry policy.
	Policy RetryPolicy
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *Config {
	return &Config{
		CheckInterval: DefaultCheckInterval,
		Policy:        DefaultRetryPolicy(),
	}
}

// QueueManager owns the ordered set of intents being worked and drives
// one processing step at a time. A single worker goroutine runs while the
// queue is non-empty; each tick rotates the head to the tail and
// processes it, so an intent waiting out a retry delay never blocks the
// others. Add is safe to call from any goroutine.
type QueueManager struct {
	chain  Chain
	swaps  *SwapCoordinator
	tx     *TxExecutor
	store  FailedSwapStore
	policy RetryPolicy

	checkInterval time.Duration

	mu      sync.Mutex
	queue   []uint64
	inQueue map[uint64]struct{}
	running bool
	closed  bool

	// progress is touched only by the worker goroutine.
	progress map[uint64]*IntentProgress

	handlersMu sync.RWMutex
	handlers   []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logging.Logger
}

// NewQueueManager creates a queue manager over the given capabilities.
func NewQueueManager(chain Chain, swapper Swapper, store FailedSwapStore, cfg *Config) *QueueManager {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &QueueManager{
		chain:         chain,
		swaps:         NewSwapCoordinator(swapper),
		tx:            NewTxExecutor(chain),
		store:         store,
		policy:        cfg.Policy,
		checkInterval: cfg.CheckInterval,
		inQueue:       make(map[uint64]struct{}),
		progress:      make(map[uint64]*IntentProgress),
		ctx:           ctx,
		cancel:        cancel,
		log:           logging.GetDefault().Component("queue"),
	}
}

// Add appends an intent to the queue tail and ensures the worker is
// running. Adding an intent already present is a no-op, and an intent
// whose swap is failed-and-exhausted is refused.
func (m *QueueManager) Add(orderID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if _, ok := m.inQueue[orderID]; ok {
		m.log.Debug("Intent already queued", "order_id", orderID)
		return
	}

	if rec, ok := m.swaps.Record(orderID); ok &&
		rec.Phase == SwapPhaseFailed && m.policy.Exhausted(rec.Attempts) {
		m.log.Warn("Refusing exhausted intent", "order_id", orderID, "attempts", rec.Attempts)
		return
	}

	m.queue = append(m.queue, orderID)
	m.inQueue[orderID] = struct{}{}

	m.log.Info("Intent queued", "order_id", orderID, "queue_len", len(m.queue))
	m.emit(EventIntentAdmitted, orderID)

	if !m.running {
		m.running = true
		m.wg.Add(1)
		go m.run()
	}
}

// Requeue clears any exhausted swap record for an intent and re-admits
// it. This is the operator escape hatch for evicted intents.
func (m *QueueManager) Requeue(orderID uint64) {
	if rec, ok := m.swaps.Record(orderID); ok &&
		rec.Phase == SwapPhaseFailed && m.policy.Exhausted(rec.Attempts) {
		m.swaps.Clear(orderID)
	}
	m.Add(orderID)
}

// Close stops the worker. An in-flight step completes; no per-step
// cancellation exists because tearing down a step that has submitted a
// transaction would break the at-most-once guarantee.
func (m *QueueManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// OnEvent registers an intent lifecycle event handler.
func (m *QueueManager) OnEvent(h EventHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *QueueManager) emit(t EventType, orderID uint64) {
	m.handlersMu.RLock()
	handlers := make([]EventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlersMu.RUnlock()

	event := Event{Type: t, OrderID: orderID, Timestamp: time.Now().Unix()}
	for _, h := range handlers {
		go h(event)
	}
}

// Len returns the number of queued intents.
func (m *QueueManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Queued returns a snapshot of the queued order IDs in queue order.
func (m *QueueManager) Queued() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, len(m.queue))
	copy(ids, m.queue)
	return ids
}

// FailedSwapReport returns the count and order IDs of intents whose swap
// failed and exhausted its retries.
func (m *QueueManager) FailedSwapReport() (int, []uint64) {
	ids := m.swaps.FailedExhausted(m.policy.MaxRetries)
	return len(ids), ids
}

// run is the worker loop: one intent per tick, stopping when the queue
// drains.
func (m *QueueManager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.log.Debug("Worker started", "interval", m.checkInterval)

	for {
		select {
		case <-m.ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		case <-ticker.C:
			orderID, ok := m.rotate()
			if !ok {
				m.log.Debug("Queue drained, worker stopping")
				return
			}
			m.step(context.WithoutCancel(m.ctx), orderID)
		}
	}
}

// rotate pops the head and appends it to the tail, returning the popped
// ID. When the queue is empty the worker is marked stopped under the same
// lock, so a concurrent Add observes either a running worker or an empty
// queue, never both.
func (m *QueueManager) rotate() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		m.running = false
		return 0, false
	}

	orderID := m.queue[0]
	m.queue = append(m.queue[1:], orderID)
	return orderID, true
}

// removeFromQueue drops an intent from the queue and membership set.
func (m *QueueManager) removeFromQueue(orderID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inQueue, orderID)
	for i, id := range m.queue {
		if id == orderID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}
