package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"aagateway/internal/smartaccount"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client talks JSON-RPC to a bundler that also exposes paymaster methods
// (Pimlico-compatible).
type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
	entryPoint common.Address
	policyID   string
}

type Config struct {
	URL        string
	EntryPoint common.Address
	// SponsorshipPolicyID is forwarded to pm_sponsorUserOperation when set.
	SponsorshipPolicyID string
	Timeout             time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("bundler url is required")
	}
	if cfg.EntryPoint == (common.Address{}) {
		cfg.EntryPoint = smartaccount.EntryPointV07
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		entryPoint: cfg.EntryPoint,
		policyID:   cfg.SponsorshipPolicyID,
	}, nil
}

func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var result []common.Address
	if err := c.call(ctx, "eth_supportedEntryPoints", []any{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks that the bundler serves the configured entry point.
func (c *Client) Ping(ctx context.Context) error {
	entryPoints, err := c.SupportedEntryPoints(ctx)
	if err != nil {
		return err
	}
	for _, entryPoint := range entryPoints {
		if entryPoint == c.entryPoint {
			return nil
		}
	}
	return fmt.Errorf("bundler does not support entry point %s", c.entryPoint.Hex())
}

func (c *Client) GasPrice(ctx context.Context) (smartaccount.GasPriceQuote, error) {
	var result struct {
		Slow     rpcFeeTier `json:"slow"`
		Standard rpcFeeTier `json:"standard"`
		Fast     rpcFeeTier `json:"fast"`
	}
	if err := c.call(ctx, "pimlico_getUserOperationGasPrice", []any{}, &result); err != nil {
		return smartaccount.GasPriceQuote{}, err
	}
	if result.Fast.MaxFeePerGas == nil || result.Fast.MaxPriorityFeePerGas == nil {
		return smartaccount.GasPriceQuote{}, errors.New("gas price quote is missing the fast tier")
	}
	return smartaccount.GasPriceQuote{
		Slow:     result.Slow.toFeeTier(),
		Standard: result.Standard.toFeeTier(),
		Fast:     result.Fast.toFeeTier(),
	}, nil
}

// SponsorUserOperation asks the paymaster to sponsor op and estimate its gas.
func (c *Client) SponsorUserOperation(ctx context.Context, op *smartaccount.UserOperation) (smartaccount.Sponsorship, error) {
	params := []any{op, c.entryPoint}
	if c.policyID != "" {
		params = append(params, map[string]string{"sponsorshipPolicyId": c.policyID})
	}
	var result rpcSponsorship
	if err := c.call(ctx, "pm_sponsorUserOperation", params, &result); err != nil {
		return smartaccount.Sponsorship{}, err
	}
	return result.toSponsorship()
}

// PaymasterData requests final ERC-7677 paymaster data for op as-is; gas limits
// already on op are signed over, not re-estimated.
func (c *Client) PaymasterData(ctx context.Context, op *smartaccount.UserOperation, chainID *big.Int) (smartaccount.Sponsorship, error) {
	paymasterContext := map[string]string{}
	if c.policyID != "" {
		paymasterContext["sponsorshipPolicyId"] = c.policyID
	}
	params := []any{op, c.entryPoint, (*hexutil.Big)(chainID), paymasterContext}
	var result rpcSponsorship
	if err := c.call(ctx, "pm_getPaymasterData", params, &result); err != nil {
		return smartaccount.Sponsorship{}, err
	}
	return result.toSponsorship()
}

func (c *Client) SendUserOperation(ctx context.Context, op *smartaccount.UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, "eth_sendUserOperation", []any{op, c.entryPoint}, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// UserOperationReceipt returns nil, nil while the operation is still pending.
func (c *Client) UserOperationReceipt(ctx context.Context, hash common.Hash) (*smartaccount.UserOperationReceipt, error) {
	var result *rpcUserOperationReceipt
	if err := c.call(ctx, "eth_getUserOperationReceipt", []any{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return &smartaccount.UserOperationReceipt{
		UserOpHash: result.UserOpHash,
		Success:    result.Success,
		Reason:     result.Reason,
		TxHash:     result.Receipt.TransactionHash,
	}, nil
}

type rpcFeeTier struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

func (t rpcFeeTier) toFeeTier() smartaccount.FeeTier {
	return smartaccount.FeeTier{
		MaxFeePerGas:         (*big.Int)(t.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(t.MaxPriorityFeePerGas),
	}
}

type rpcSponsorship struct {
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
}

func (s rpcSponsorship) toSponsorship() (smartaccount.Sponsorship, error) {
	if s.Paymaster == nil {
		return smartaccount.Sponsorship{}, errors.New("paymaster response has no paymaster address")
	}
	return smartaccount.Sponsorship{
		Paymaster:                     *s.Paymaster,
		PaymasterData:                 s.PaymasterData,
		PaymasterVerificationGasLimit: (*big.Int)(s.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*big.Int)(s.PaymasterPostOpGasLimit),
		CallGasLimit:                  (*big.Int)(s.CallGasLimit),
		VerificationGasLimit:          (*big.Int)(s.VerificationGasLimit),
		PreVerificationGas:            (*big.Int)(s.PreVerificationGas),
	}, nil
}

type rpcUserOperationReceipt struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Success    bool        `json:"success"`
	Reason     string      `json:"reason"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Error is a JSON-RPC error returned by the bundler or paymaster.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Details returns the error data payload as a string, empty when absent.
func (e *Error) Details() string {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(e.Data, &text); err == nil {
		return text
	}
	return string(e.Data)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	ctx, span := otel.Tracer("aagateway/relay").Start(ctx, "relay."+method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("rpc.method", method))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
	if decodeErr == nil && decoded.Error != nil {
		return decoded.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: rpc status %d", method, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: decode response: %w", method, decodeErr)
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return fmt.Errorf("%s: rpc result is empty", method)
	}
	return json.Unmarshal(decoded.Result, result)
}
