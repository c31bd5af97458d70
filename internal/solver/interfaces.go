package solver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/semantic-layer/agi-solver/internal/aggregator"
	"github.com/semantic-layer/agi-solver/internal/contracts/warehouse"
	"github.com/semantic-layer/agi-solver/internal/storage"
)

// Chain is the on-chain capability the solver core consumes. The
// production implementation is the warehouse contract client.
type Chain interface {
	// Views.
	ViewAGI(ctx context.Context, orderID *big.Int) (*warehouse.AGI, error)
	NextOrderID(ctx context.Context) (*big.Int, error)
	ProcessedAGIsLength(ctx context.Context) (*big.Int, error)
	GetProcessedAGIs(ctx context.Context, start, end *big.Int) ([]*big.Int, error)
	ERC20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error)

	// Writes. Each simulates before submitting and returns the tx hash.
	WithdrawAsset(ctx context.Context, orderID *big.Int) (common.Hash, error)
	DepositAsset(ctx context.Context, orderID, amount *big.Int) (common.Hash, error)
	ERC20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)

	// WaitReceipt polls for a receipt with bounded retries.
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Events.
	WatchAGIPublished(ctx context.Context) (<-chan *warehouse.AGIPublishedEvent, error)

	ContractAddress() common.Address
	SolverAddress() common.Address
}

// Swapper is the off-chain DEX routing capability.
type Swapper interface {
	Execute(ctx context.Context, req *aggregator.SwapRequest) (*big.Int, error)
}

// FailedSwapStore persists intents evicted after exhausting swap retries.
type FailedSwapStore interface {
	// RecordFailedSwap is insert-or-ignore on the order ID.
	RecordFailedSwap(f *storage.FailedSwap) error

	// DeleteFailedSwap is a no-op if no row exists.
	DeleteFailedSwap(orderID uint64) error
}
