package solver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// TxExecutor drives the on-chain half of an intent: withdrawAsset and
// depositAsset with ERC-20 approval handling and receipt confirmation.
// Reverted receipts surface as TxRevertedError so the retry policy can
// tell them apart from swap failures.
type TxExecutor struct {
	chain Chain

	// approvals caches, per token, an allowance known to cover a deposit
	// (a confirmed approve amount or an allowance read) so a retried deposit
	// skips the allowance round-trip. Consumed on deposit.
	approvals map[common.Address]*big.Int

	log *logging.Logger
}

// NewTxExecutor creates a transaction executor over the chain capability.
func NewTxExecutor(chain Chain) *TxExecutor {
	return &TxExecutor{
		chain:     chain,
		approvals: make(map[common.Address]*big.Int),
		log:       logging.GetDefault().Component("tx"),
	}
}

// confirm waits for a receipt and rejects reverted transactions.
func (e *TxExecutor) confirm(ctx context.Context, op string, txHash common.Hash) error {
	receipt, err := e.chain.WaitReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return &TxRevertedError{Op: op, TxHash: txHash}
	}
	return nil
}

// WithdrawAsset submits withdrawAsset(orderId) and waits for confirmation.
// On success the contract flips the order status 0 -> 1.
func (e *TxExecutor) WithdrawAsset(ctx context.Context, orderID uint64) error {
	txHash, err := e.chain.WithdrawAsset(ctx, new(big.Int).SetUint64(orderID))
	if err != nil {
		return fmt.Errorf("withdrawAsset: %w", err)
	}

	e.log.Info("Withdraw submitted", "order_id", orderID, "tx", txHash.Hex())

	return e.confirm(ctx, "withdrawAsset", txHash)
}

// DepositAsset ensures the escrow allowance covers amount, then submits
// depositAsset(orderId, amount) and waits for confirmation.
func (e *TxExecutor) DepositAsset(ctx context.Context, orderID uint64, assetToBuy common.Address, amount *big.Int) error {
	if err := e.ensureAllowance(ctx, assetToBuy, amount); err != nil {
		return err
	}

	txHash, err := e.chain.DepositAsset(ctx, new(big.Int).SetUint64(orderID), amount)
	if err != nil {
		return fmt.Errorf("depositAsset: %w", err)
	}

	e.log.Info("Deposit submitted", "order_id", orderID, "tx", txHash.Hex(), "amount", amount.String())

	if err := e.confirm(ctx, "depositAsset", txHash); err != nil {
		return err
	}

	// The deposit consumed the allowance.
	delete(e.approvals, assetToBuy)
	return nil
}

// ApproveERC20 submits approve(spender, amount) on token and waits for
// confirmation.
func (e *TxExecutor) ApproveERC20(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	txHash, err := e.chain.ERC20Approve(ctx, token, spender, amount)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	e.log.Info("Approval submitted", "token", token.Hex(), "tx", txHash.Hex(), "amount", amount.String())

	return e.confirm(ctx, "approve", txHash)
}

// ensureAllowance checks the escrow allowance for token and approves the
// exact amount when it falls short.
func (e *TxExecutor) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	spender := e.chain.ContractAddress()

	if cached, ok := e.approvals[token]; ok && cached.Cmp(amount) >= 0 {
		return nil
	}

	allowance, err := e.chain.ERC20Allowance(ctx, token, spender)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}

	if allowance.Cmp(amount) >= 0 {
		e.approvals[token] = new(big.Int).Set(allowance)
		return nil
	}

	if err := e.ApproveERC20(ctx, token, spender, amount); err != nil {
		return err
	}

	e.approvals[token] = new(big.Int).Set(amount)
	return nil
}
