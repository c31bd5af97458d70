package aggregator

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testRequest() *SwapRequest {
	return &SwapRequest{
		FromToken:   common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		ToToken:     common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		FromAmount:  big.NewInt(1000),
		FromAddress: common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd"),
	}
}

func TestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/quote") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing request id header")
		}
		json.NewEncoder(w).Encode(map[string]string{"dstAmount": "990"})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	amount, err := c.Quote(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if amount.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("amount = %s, want 990", amount)
	}
}

func TestExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/swap" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if body["amount"] != "1000" {
			t.Errorf("amount = %v, want 1000", body["amount"])
		}
		if body["slippage"] != 0.05 {
			t.Errorf("slippage = %v, want 0.05", body["slippage"])
		}

		json.NewEncoder(w).Encode(map[string]string{
			"dstAmount": "985",
			"txHash":    "0xdeadbeef",
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	amount, err := c.Execute(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if amount.Cmp(big.NewInt(985)) != 0 {
		t.Fatalf("amount = %s, want 985", amount)
	}
}

func TestExecuteLargeAmount(t *testing.T) {
	// 2^160: must survive the round trip without precision loss.
	huge := "1461501637330902918203684832716283019655932542976"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"dstAmount": huge})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	amount, err := c.Execute(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if amount.String() != huge {
		t.Fatalf("amount = %s, want %s", amount, huge)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       "Bad Request",
			"description": "insufficient liquidity",
			"statusCode":  400,
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	_, err := c.Execute(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "insufficient liquidity") {
		t.Errorf("error %q does not carry the API description", err)
	}
}

func TestMalformedAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"dstAmount": "not-a-number"})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	if _, err := c.Execute(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestDefaultSlippage(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://localhost"})
	if c.slippage != DefaultSlippage {
		t.Errorf("slippage = %v, want %v", c.slippage, DefaultSlippage)
	}

	c = NewClient(&Config{BaseURL: "http://localhost", Slippage: 0.01})
	if c.slippage != 0.01 {
		t.Errorf("slippage = %v, want 0.01", c.slippage)
	}
}
