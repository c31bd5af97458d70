package warehouse

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AGIPublishedEvent is a parsed AGIPublished log.
type AGIPublishedEvent struct {
	OrderID      *big.Int
	IntentType   uint8
	AssetToSell  common.Address
	AmountToSell *big.Int
	AssetToBuy   common.Address
	TxHash       common.Hash
	BlockNum     uint64
}

// ParseAGIPublished decodes an AGIPublished event from a raw log.
func (c *Client) ParseAGIPublished(l types.Log) (*AGIPublishedEvent, error) {
	if len(l.Topics) < 2 || l.Topics[0] != c.agiTopic {
		return nil, fmt.Errorf("log is not an AGIPublished event")
	}

	var data struct {
		IntentType   uint8
		AssetToSell  common.Address
		AmountToSell *big.Int
		AssetToBuy   common.Address
	}
	if err := c.abi.UnpackIntoInterface(&data, "AGIPublished", l.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack AGIPublished: %w", err)
	}

	return &AGIPublishedEvent{
		OrderID:      new(big.Int).SetBytes(l.Topics[1].Bytes()),
		IntentType:   data.IntentType,
		AssetToSell:  data.AssetToSell,
		AmountToSell: data.AmountToSell,
		AssetToBuy:   data.AssetToBuy,
		TxHash:       l.TxHash,
		BlockNum:     l.BlockNumber,
	}, nil
}

// WatchAGIPublished subscribes to AGIPublished events over the websocket
// endpoint. The returned channel closes when the subscription drops or ctx
// is cancelled; callers are expected to resubscribe.
func (c *Client) WatchAGIPublished(ctx context.Context) (<-chan *AGIPublishedEvent, error) {
	if c.wsClient == nil {
		return nil, fmt.Errorf("no websocket endpoint configured")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contractAddress},
		Topics:    [][]common.Hash{{c.agiTopic}},
	}

	logs := make(chan types.Log, 16)
	sub, err := c.wsClient.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to AGIPublished: %w", err)
	}

	outCh := make(chan *AGIPublishedEvent, 16)
	go func() {
		defer close(outCh)
		defer sub.Unsubscribe()

		for {
			select {
			case l := <-logs:
				event, err := c.ParseAGIPublished(l)
				if err != nil {
					c.log.Warn("Failed to parse AGIPublished log", "tx", l.TxHash.Hex(), "error", err)
					continue
				}
				outCh <- event
			case err := <-sub.Err():
				if err != nil {
					c.log.Warn("AGIPublished subscription dropped", "error", err)
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return outCh, nil
}
