package warehouse

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func parsedABIs(t *testing.T) (abi.ABI, abi.ABI) {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(warehouseABI))
	if err != nil {
		t.Fatalf("failed to parse warehouse ABI: %v", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		t.Fatalf("failed to parse erc20 ABI: %v", err)
	}
	return parsed, erc20
}

// testClient builds a client bound to nothing, for ABI-level tests.
func testClient(t *testing.T) *Client {
	t.Helper()

	parsed, erc20 := parsedABIs(t)
	return &Client{
		contractAddress: common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
		abi:             parsed,
		erc20:           erc20,
		agiTopic:        parsed.Events["AGIPublished"].ID,
	}
}

func TestABIMethods(t *testing.T) {
	parsed, erc20 := parsedABIs(t)

	for _, method := range []string{
		"viewAGI", "withdrawAsset", "depositAsset",
		"nextOrderId", "processedAGIsLength", "getProcessedAGIs",
	} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Errorf("warehouse ABI missing %s", method)
		}
	}

	if _, ok := parsed.Events["AGIPublished"]; !ok {
		t.Error("warehouse ABI missing AGIPublished event")
	}

	for _, method := range []string{"allowance", "approve", "balanceOf"} {
		if _, ok := erc20.Methods[method]; !ok {
			t.Errorf("erc20 ABI missing %s", method)
		}
	}
}

func TestViewAGIUnpack(t *testing.T) {
	parsed, _ := parsedABIs(t)

	sell := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buy := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	amount, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)

	packed, err := parsed.Methods["viewAGI"].Outputs.Pack(
		uint8(0), sell, amount, buy, big.NewInt(7), uint8(1))
	if err != nil {
		t.Fatalf("failed to pack outputs: %v", err)
	}

	out, err := parsed.Unpack("viewAGI", packed)
	if err != nil {
		t.Fatalf("failed to unpack: %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("unpacked %d values, want 6", len(out))
	}

	if got := out[1].(common.Address); got != sell {
		t.Errorf("assetToSell = %s, want %s", got.Hex(), sell.Hex())
	}
	if got := out[2].(*big.Int); got.Cmp(amount) != 0 {
		t.Errorf("amountToSell = %s, lost precision", got)
	}
	if got := OrderStatus(out[5].(uint8)); got != OrderStatusDispensedPendingProceeds {
		t.Errorf("orderStatus = %v, want 1", got)
	}
}

func TestParseAGIPublished(t *testing.T) {
	c := testClient(t)

	sell := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buy := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	amount := big.NewInt(5000)

	data, err := c.abi.Events["AGIPublished"].Inputs.NonIndexed().Pack(
		uint8(0), sell, amount, buy)
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	l := types.Log{
		Address: c.contractAddress,
		Topics: []common.Hash{
			c.agiTopic,
			common.BigToHash(big.NewInt(42)),
		},
		Data:        data,
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: 123,
	}

	event, err := c.ParseAGIPublished(l)
	if err != nil {
		t.Fatalf("ParseAGIPublished() error = %v", err)
	}

	if event.OrderID.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("OrderID = %s, want 42", event.OrderID)
	}
	if event.AssetToSell != sell {
		t.Errorf("AssetToSell = %s", event.AssetToSell.Hex())
	}
	if event.AssetToBuy != buy {
		t.Errorf("AssetToBuy = %s", event.AssetToBuy.Hex())
	}
	if event.AmountToSell.Cmp(amount) != 0 {
		t.Errorf("AmountToSell = %s, want 5000", event.AmountToSell)
	}
	if event.BlockNum != 123 {
		t.Errorf("BlockNum = %d, want 123", event.BlockNum)
	}
}

func TestParseAGIPublishedRejectsOtherLogs(t *testing.T) {
	c := testClient(t)

	l := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdead")},
	}
	if _, err := c.ParseAGIPublished(l); err == nil {
		t.Error("expected error for foreign log")
	}
}

func TestOrderStatusString(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   string
	}{
		{OrderStatusPendingDispense, "pending_dispense"},
		{OrderStatusDispensedPendingProceeds, "dispensed_pending_proceeds"},
		{OrderStatusProceedsReceived, "proceeds_received"},
		{OrderStatus(9), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
