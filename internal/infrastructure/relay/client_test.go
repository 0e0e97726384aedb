package relay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"aagateway/internal/smartaccount"

	"github.com/ethereum/go-ethereum/common"
)

type recordedRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newTestServer(t *testing.T, handle func(req recordedRequest) (any, *Error)) (*Client, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen = append(seen, req)
		result, rpcErr := handle(req)
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			response["error"] = rpcErr
		} else {
			response["result"] = result
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, &seen
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestGasPriceFastTier(t *testing.T) {
	client, seen := newTestServer(t, func(req recordedRequest) (any, *Error) {
		tier := map[string]string{"maxFeePerGas": "0x64", "maxPriorityFeePerGas": "0xa"}
		fast := map[string]string{"maxFeePerGas": "0x3e8", "maxPriorityFeePerGas": "0x64"}
		return map[string]any{"slow": tier, "standard": tier, "fast": fast}, nil
	})

	quote, err := client.GasPrice(context.Background())
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if quote.Fast.MaxFeePerGas.Int64() != 1000 || quote.Fast.MaxPriorityFeePerGas.Int64() != 100 {
		t.Fatalf("fast tier = %+v", quote.Fast)
	}
	if (*seen)[0].Method != "pimlico_getUserOperationGasPrice" {
		t.Fatalf("method = %s", (*seen)[0].Method)
	}
}

func TestGasPriceMissingFastTier(t *testing.T) {
	client, _ := newTestServer(t, func(req recordedRequest) (any, *Error) {
		return map[string]any{}, nil
	})
	if _, err := client.GasPrice(context.Background()); err == nil {
		t.Fatal("expected error for missing fast tier")
	}
}

func TestSponsorUserOperation(t *testing.T) {
	client, seen := newTestServer(t, func(req recordedRequest) (any, *Error) {
		return map[string]any{
			"paymaster":                     "0x0000000000000039cd5e8aE05257CE51C473ddd1",
			"paymasterData":                 "0x0102",
			"paymasterVerificationGasLimit": "0x249f0",
			"paymasterPostOpGasLimit":       "0xc350",
			"callGasLimit":                  "0x186a0",
			"verificationGasLimit":          "0x7a120",
			"preVerificationGas":            "0xc350",
		}, nil
	})

	op := &smartaccount.UserOperation{Sender: common.HexToAddress("0x01"), Nonce: big.NewInt(1)}
	sponsorship, err := client.SponsorUserOperation(context.Background(), op)
	if err != nil {
		t.Fatalf("sponsor: %v", err)
	}
	if sponsorship.Paymaster != common.HexToAddress("0x0000000000000039cd5e8aE05257CE51C473ddd1") {
		t.Fatalf("paymaster = %s", sponsorship.Paymaster.Hex())
	}
	if sponsorship.PaymasterVerificationGasLimit.Int64() != 150_000 {
		t.Fatalf("paymaster verification gas = %s", sponsorship.PaymasterVerificationGasLimit)
	}
	if sponsorship.CallGasLimit.Int64() != 100_000 {
		t.Fatalf("call gas = %s", sponsorship.CallGasLimit)
	}

	req := (*seen)[0]
	if req.Method != "pm_sponsorUserOperation" || len(req.Params) != 2 {
		t.Fatalf("request = %s with %d params", req.Method, len(req.Params))
	}
	var entryPoint common.Address
	if err := json.Unmarshal(req.Params[1], &entryPoint); err != nil {
		t.Fatalf("entry point param: %v", err)
	}
	if entryPoint != smartaccount.EntryPointV07 {
		t.Fatalf("entry point = %s", entryPoint.Hex())
	}
}

func TestPaymasterDataSendsChainID(t *testing.T) {
	client, seen := newTestServer(t, func(req recordedRequest) (any, *Error) {
		return map[string]any{"paymaster": "0x0000000000000039cd5e8aE05257CE51C473ddd1", "paymasterData": "0xabcd"}, nil
	})

	sponsorship, err := client.PaymasterData(context.Background(), &smartaccount.UserOperation{}, big.NewInt(80002))
	if err != nil {
		t.Fatalf("paymaster data: %v", err)
	}
	if len(sponsorship.PaymasterData) != 2 {
		t.Fatalf("paymaster data = %x", sponsorship.PaymasterData)
	}
	if sponsorship.CallGasLimit != nil {
		t.Fatal("paymaster data must not carry gas limits")
	}
	req := (*seen)[0]
	if req.Method != "pm_getPaymasterData" || len(req.Params) != 4 {
		t.Fatalf("request = %s with %d params", req.Method, len(req.Params))
	}
	if string(req.Params[2]) != `"0x13882"` {
		t.Fatalf("chain id param = %s", req.Params[2])
	}
}

func TestSendUserOperationRPCError(t *testing.T) {
	client, _ := newTestServer(t, func(req recordedRequest) (any, *Error) {
		return nil, &Error{Code: -32500, Message: "AA21 didn't pay prefund", Data: json.RawMessage(`"reverted"`)}
	})

	_, err := client.SendUserOperation(context.Background(), &smartaccount.UserOperation{})
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rpcErr.Code != -32500 || rpcErr.Details() != "reverted" {
		t.Fatalf("rpc error = %+v details=%q", rpcErr, rpcErr.Details())
	}
}

func TestUserOperationReceiptPendingAndIncluded(t *testing.T) {
	included := false
	txHash := common.HexToHash("0xfeed")
	client, _ := newTestServer(t, func(req recordedRequest) (any, *Error) {
		if !included {
			return nil, nil
		}
		return map[string]any{
			"userOpHash": common.HexToHash("0xbeef").Hex(),
			"success":    true,
			"receipt":    map[string]any{"transactionHash": txHash.Hex()},
		}, nil
	})

	receipt, err := client.UserOperationReceipt(context.Background(), common.HexToHash("0xbeef"))
	if err != nil || receipt != nil {
		t.Fatalf("pending receipt = %+v, err = %v", receipt, err)
	}

	included = true
	receipt, err = client.UserOperationReceipt(context.Background(), common.HexToHash("0xbeef"))
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt == nil || !receipt.Success || receipt.TxHash != txHash {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestPingChecksEntryPoint(t *testing.T) {
	client, _ := newTestServer(t, func(req recordedRequest) (any, *Error) {
		return []string{"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"}, nil
	})
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error when the v0.7 entry point is not supported")
	}
}
