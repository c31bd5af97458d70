package solver

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/semantic-layer/agi-solver/internal/aggregator"
	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
	"github.com/semantic-layer/agi-solver/internal/storage"
)

// fakeChain simulates the escrow contract: statuses advance the way the
// real contract advances them when withdraw/deposit confirm.
type fakeChain struct {
	mu sync.Mutex

	agis map[uint64]*warehouse.AGI

	next      uint64
	processed []uint64

	withdrawCalls int
	depositCalls  int
	approveCalls  int
	lastDeposit   *big.Int

	withdrawErr error
	depositErr  error
	allowance   *big.Int

	// revertNext makes the next WaitReceipt report a reverted receipt.
	revertNext bool

	events chan *warehouse.AGIPublishedEvent
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		agis:      make(map[uint64]*warehouse.AGI),
		allowance: big.NewInt(0),
		events:    make(chan *warehouse.AGIPublishedEvent, 16),
	}
}

func (c *fakeChain) addAGI(orderID uint64, status warehouse.OrderStatus) *warehouse.AGI {
	c.mu.Lock()
	defer c.mu.Unlock()
	agi := &warehouse.AGI{
		IntentType:   warehouse.IntentTypeTrade,
		AssetToSell:  common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		AmountToSell: big.NewInt(100),
		AssetToBuy:   common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		OrderID:      new(big.Int).SetUint64(orderID),
		OrderStatus:  status,
	}
	c.agis[orderID] = agi
	return agi
}

func (c *fakeChain) status(orderID uint64) warehouse.OrderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agis[orderID].OrderStatus
}

func (c *fakeChain) ViewAGI(ctx context.Context, orderID *big.Int) (*warehouse.AGI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agi, ok := c.agis[orderID.Uint64()]
	if !ok {
		return nil, fmt.Errorf("no AGI %s", orderID)
	}
	cp := *agi
	return &cp, nil
}

func (c *fakeChain) NextOrderID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(c.next), nil
}

func (c *fakeChain) ProcessedAGIsLength(ctx context.Context) (*big.Int, error) {
	return big.NewInt(int64(len(c.processed))), nil
}

func (c *fakeChain) GetProcessedAGIs(ctx context.Context, start, end *big.Int) ([]*big.Int, error) {
	var out []*big.Int
	for _, id := range c.processed {
		out = append(out, new(big.Int).SetUint64(id))
	}
	return out, nil
}

func (c *fakeChain) ERC20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.allowance), nil
}

func (c *fakeChain) WithdrawAsset(ctx context.Context, orderID *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withdrawCalls++
	if c.withdrawErr != nil {
		err := c.withdrawErr
		c.withdrawErr = nil
		return common.Hash{}, err
	}
	c.agis[orderID.Uint64()].OrderStatus = warehouse.OrderStatusDispensedPendingProceeds
	return common.HexToHash("0x01"), nil
}

func (c *fakeChain) DepositAsset(ctx context.Context, orderID, amount *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depositCalls++
	if c.depositErr != nil {
		err := c.depositErr
		c.depositErr = nil
		return common.Hash{}, err
	}
	c.lastDeposit = new(big.Int).Set(amount)
	c.agis[orderID.Uint64()].OrderStatus = warehouse.OrderStatusProceedsReceived
	return common.HexToHash("0x02"), nil
}

func (c *fakeChain) ERC20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approveCalls++
	c.allowance = new(big.Int).Set(amount)
	return common.HexToHash("0x03"), nil
}

func (c *fakeChain) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revertNext {
		c.revertNext = false
		return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: txHash}, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func (c *fakeChain) WatchAGIPublished(ctx context.Context) (<-chan *warehouse.AGIPublishedEvent, error) {
	// Mirror the real client: the returned channel closes when ctx ends.
	out := make(chan *warehouse.AGIPublishedEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-c.events:
				out <- ev
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *fakeChain) ContractAddress() common.Address {
	return common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
}

func (c *fakeChain) SolverAddress() common.Address {
	return common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
}

// swapRequestAlias keeps test closures readable.
type swapRequestAlias = aggregator.SwapRequest

// fakeSwapper delegates to a configurable function.
type fakeSwapper struct {
	mu    sync.Mutex
	calls int
	fn    func(*aggregator.SwapRequest) (*big.Int, error)
}

func (s *fakeSwapper) Execute(ctx context.Context, req *aggregator.SwapRequest) (*big.Int, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return big.NewInt(100), nil
	}
	return fn(req)
}

func (s *fakeSwapper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeStore records failed-swap store interactions in memory.
type fakeStore struct {
	mu      sync.Mutex
	records map[uint64]*storage.FailedSwap
	deletes map[uint64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[uint64]*storage.FailedSwap),
		deletes: make(map[uint64]int),
	}
}

func (s *fakeStore) RecordFailedSwap(f *storage.FailedSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[f.OrderID]; ok {
		return nil // insert-or-ignore
	}
	s.records[f.OrderID] = f
	return nil
}

func (s *fakeStore) DeleteFailedSwap(orderID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[orderID]++
	delete(s.records, orderID)
	return nil
}

func (s *fakeStore) record(orderID uint64) (*storage.FailedSwap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.records[orderID]
	return f, ok
}

func (s *fakeStore) deleteCount(orderID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[orderID]
}

// newTestManager builds a manager whose worker never ticks on its own, so
// tests drive steps directly. Retry delays are zero unless a test sets
// them.
func newTestManager(chain Chain, swapper Swapper, store FailedSwapStore) *QueueManager {
	return NewQueueManager(chain, swapper, store, &Config{
		CheckInterval: time.Hour,
		Policy: RetryPolicy{
			RetryDelay:     0,
			SwapRetryDelay: 0,
			MaxRetries:     2,
		},
	})
}
