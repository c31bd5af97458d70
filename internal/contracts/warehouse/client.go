// Package warehouse provides a Go client for the Warehouse13 escrow contract.
// The contract custodies assets across the withdraw-swap-deposit cycle and
// tracks authoritative order status.
package warehouse

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// OrderStatus is the contract-side status of an intent.
type OrderStatus uint8

const (
	OrderStatusPendingDispense          OrderStatus = 0
	OrderStatusDispensedPendingProceeds OrderStatus = 1
	OrderStatusProceedsReceived         OrderStatus = 2
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPendingDispense:
		return "pending_dispense"
	case OrderStatusDispensedPendingProceeds:
		return "dispensed_pending_proceeds"
	case OrderStatusProceedsReceived:
		return "proceeds_received"
	default:
		return "unknown"
	}
}

// AGI is an on-chain intent as returned by viewAGI.
type AGI struct {
	IntentType   uint8
	AssetToSell  common.Address
	AmountToSell *big.Int
	AssetToBuy   common.Address
	OrderID      *big.Int
	OrderStatus  OrderStatus
}

// IntentTypeTrade is the only intent type the solver executes.
const IntentTypeTrade uint8 = 0

// ErrReceiptTimeout is returned when a receipt cannot be obtained within
// the configured polling budget.
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// Config holds client construction parameters.
type Config struct {
	RPCURL          string
	WSRPCURL        string
	ContractAddress common.Address
	PrivateKey      *ecdsa.PrivateKey

	// Receipt polling. Zero values take the defaults below.
	ReceiptPollInterval time.Duration
	ReceiptMaxPolls     int
}

// Receipt polling defaults.
const (
	DefaultReceiptPollInterval = 3 * time.Second
	DefaultReceiptMaxPolls     = 1000
)

// Client wraps the Warehouse13 contract with typed calls, transaction
// submission, and event watching. Transaction submissions are serialized
// so the solver account nonce is handed out in order.
type Client struct {
	client          *ethclient.Client
	wsClient        *ethclient.Client
	contractAddress common.Address
	chainID         *big.Int

	abi      abi.ABI
	erc20    abi.ABI
	agiTopic common.Hash

	privateKey *ecdsa.PrivateKey
	from       common.Address

	pollInterval time.Duration
	maxPolls     int

	sendMu chan struct{} // size-1 semaphore serializing nonce use
	log    *logging.Logger
}

// NewClient dials the RPC endpoints and binds the contract.
func NewClient(cfg *Config) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	var wsClient *ethclient.Client
	if cfg.WSRPCURL != "" {
		wsClient, err = ethclient.Dial(cfg.WSRPCURL)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to WS RPC: %w", err)
		}
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		if wsClient != nil {
			wsClient.Close()
		}
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(warehouseABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse warehouse ABI: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	pollInterval := cfg.ReceiptPollInterval
	if pollInterval == 0 {
		pollInterval = DefaultReceiptPollInterval
	}
	maxPolls := cfg.ReceiptMaxPolls
	if maxPolls == 0 {
		maxPolls = DefaultReceiptMaxPolls
	}

	sendMu := make(chan struct{}, 1)
	sendMu <- struct{}{}

	return &Client{
		client:          client,
		wsClient:        wsClient,
		contractAddress: cfg.ContractAddress,
		chainID:         chainID,
		abi:             parsed,
		erc20:           erc20,
		agiTopic:        parsed.Events["AGIPublished"].ID,
		privateKey:      cfg.PrivateKey,
		from:            crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		pollInterval:    pollInterval,
		maxPolls:        maxPolls,
		sendMu:          sendMu,
		log:             logging.GetDefault().Component("chain"),
	}, nil
}

// Close closes the underlying RPC connections.
func (c *Client) Close() {
	c.client.Close()
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// ContractAddress returns the escrow contract address.
func (c *Client) ContractAddress() common.Address {
	return c.contractAddress
}

// SolverAddress returns the address transactions are sent from.
func (c *Client) SolverAddress() common.Address {
	return c.from
}

// =============================================================================
// View Functions
// =============================================================================

func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	return contractABI.Unpack(method, out)
}

// ViewAGI reads the on-chain state of one intent.
func (c *Client) ViewAGI(ctx context.Context, orderID *big.Int) (*AGI, error) {
	out, err := c.call(ctx, c.contractAddress, c.abi, "viewAGI", orderID)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("viewAGI returned %d values, want 6", len(out))
	}

	return &AGI{
		IntentType:   out[0].(uint8),
		AssetToSell:  out[1].(common.Address),
		AmountToSell: out[2].(*big.Int),
		AssetToBuy:   out[3].(common.Address),
		OrderID:      out[4].(*big.Int),
		OrderStatus:  OrderStatus(out[5].(uint8)),
	}, nil
}

// NextOrderID returns the contract's next unassigned order ID.
func (c *Client) NextOrderID(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.contractAddress, c.abi, "nextOrderId")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ProcessedAGIsLength returns the number of completed intents.
func (c *Client) ProcessedAGIsLength(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.contractAddress, c.abi, "processedAGIsLength")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetProcessedAGIs returns the order IDs of completed intents in [start, end).
func (c *Client) GetProcessedAGIs(ctx context.Context, start, end *big.Int) ([]*big.Int, error) {
	out, err := c.call(ctx, c.contractAddress, c.abi, "getProcessedAGIs", start, end)
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getProcessedAGIs returned unexpected type %T", out[0])
	}
	return ids, nil
}

// ERC20Allowance returns the spender allowance for the solver account.
func (c *Client) ERC20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, c.erc20, "allowance", c.from, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// =============================================================================
// Transaction Submission
// =============================================================================

// SimulateAndSend simulates a contract call from the solver account, then
// signs and submits it. Simulation failures are returned without spending
// gas. Submissions are serialized to keep nonce assignment in order.
func (c *Client) SimulateAndSend(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	select {
	case <-c.sendMu:
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
	defer func() { c.sendMu <- struct{}{} }()

	msg := ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}

	if _, err := c.client.CallContract(ctx, msg, nil); err != nil {
		return common.Hash{}, fmt.Errorf("simulation failed: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.log.Debug("Transaction submitted", "to", to.Hex(), "hash", signedTx.Hash().Hex(), "nonce", nonce)

	return signedTx.Hash(), nil
}

// WithdrawAsset submits withdrawAsset(orderId).
func (c *Client) WithdrawAsset(ctx context.Context, orderID *big.Int) (common.Hash, error) {
	data, err := c.abi.Pack("withdrawAsset", orderID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack withdrawAsset: %w", err)
	}
	return c.SimulateAndSend(ctx, c.contractAddress, data)
}

// DepositAsset submits depositAsset(orderId, amount). The contract pulls
// the buy asset from the solver via a prior allowance.
func (c *Client) DepositAsset(ctx context.Context, orderID, amount *big.Int) (common.Hash, error) {
	data, err := c.abi.Pack("depositAsset", orderID, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack depositAsset: %w", err)
	}
	return c.SimulateAndSend(ctx, c.contractAddress, data)
}

// ERC20Approve submits approve(spender, amount) on token.
func (c *Client) ERC20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := c.erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.SimulateAndSend(ctx, token, data)
}

// WaitReceipt polls for the receipt of txHash. Node lag is absorbed by
// bounded polling; the caller inspects receipt.Status for reverts.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for i := 0; i < c.maxPolls; i++ {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("Receipt poll error", "hash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
}
