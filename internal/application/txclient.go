package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"aagateway/internal/config"
	"aagateway/internal/contracts"
	"aagateway/internal/smartaccount"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type ChainReader interface {
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error)
}

type Relay interface {
	GasPrice(ctx context.Context) (smartaccount.GasPriceQuote, error)
	SponsorUserOperation(ctx context.Context, op *smartaccount.UserOperation) (smartaccount.Sponsorship, error)
	PaymasterData(ctx context.Context, op *smartaccount.UserOperation, chainID *big.Int) (smartaccount.Sponsorship, error)
	SendUserOperation(ctx context.Context, op *smartaccount.UserOperation) (common.Hash, error)
	UserOperationReceipt(ctx context.Context, hash common.Hash) (*smartaccount.UserOperationReceipt, error)
}

// Call is a single contract call executed by the smart account.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Submitted identifies a user operation once the bundler has accepted it.
// TxHash stays zero until the operation is included.
type Submitted struct {
	UserOpHash common.Hash
	TxHash     common.Hash
}

var ErrUserOperationTimeout = errors.New("user operation was not included before the timeout")

// TxClient sends sponsored calls from the smart account on one network.
type TxClient struct {
	chain   ChainReader
	relay   Relay
	account *smartaccount.Account
	network config.Network
}

func NewTxClient(chain ChainReader, relay Relay, account *smartaccount.Account, network config.Network) (*TxClient, error) {
	if chain == nil || relay == nil || account == nil {
		return nil, errors.New("tx client dependencies must not be nil")
	}
	if network.ChainID == 0 {
		return nil, errors.New("tx client network has no chain id")
	}
	if network.PollInterval <= 0 {
		network.PollInterval = 2 * time.Second
	}
	return &TxClient{chain: chain, relay: relay, account: account, network: network}, nil
}

func (c *TxClient) Network() config.Network {
	return c.network
}

func (c *TxClient) AccountAddress(ctx context.Context) (common.Address, error) {
	return c.account.Address(ctx, c.chain)
}

// SendTransaction wraps call in a user operation, has it sponsored, signs and
// submits it, then waits for the bundler to include it. The returned
// Submitted carries the user-op hash as soon as the bundler accepted the
// operation, even when the wait fails.
func (c *TxClient) SendTransaction(ctx context.Context, call Call) (Submitted, error) {
	op, err := c.buildUserOperation(ctx, call)
	if err != nil {
		return Submitted{}, err
	}

	fees, err := c.relay.GasPrice(ctx)
	if err != nil {
		return Submitted{}, fmt.Errorf("get gas price: %w", err)
	}
	op.MaxFeePerGas = fees.Fast.MaxFeePerGas
	op.MaxPriorityFeePerGas = fees.Fast.MaxPriorityFeePerGas

	if err := c.sponsor(ctx, op); err != nil {
		return Submitted{}, err
	}
	if err := c.account.SignUserOperation(op, c.network.ChainIDBig()); err != nil {
		return Submitted{}, fmt.Errorf("sign user operation: %w", err)
	}

	userOpHash, err := c.relay.SendUserOperation(ctx, op)
	if err != nil {
		return Submitted{}, fmt.Errorf("send user operation: %w", err)
	}
	slog.Info("user operation sent",
		"network", c.network.Name,
		"sender", op.Sender.Hex(),
		"target", call.To.Hex(),
		"user_op_hash", userOpHash.Hex(),
	)

	submitted := Submitted{UserOpHash: userOpHash}
	txHash, err := c.waitForInclusion(ctx, userOpHash)
	submitted.TxHash = txHash
	return submitted, err
}

// WaitForTransaction waits for the network's confirmation depth.
func (c *TxClient) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.chain.WaitForReceipt(ctx, txHash, c.network.Confirmations, c.network.ReceiptTimeout)
	if err != nil {
		return nil, fmt.Errorf("wait for transaction %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

func (c *TxClient) buildUserOperation(ctx context.Context, call Call) (*smartaccount.UserOperation, error) {
	sender, err := c.AccountAddress(ctx)
	if err != nil {
		return nil, err
	}
	op := &smartaccount.UserOperation{Sender: sender}

	code, err := c.chain.CodeAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("check smart account deployment: %w", err)
	}
	if len(code) == 0 {
		factory, factoryData, err := c.account.FactoryCall()
		if err != nil {
			return nil, err
		}
		op.Factory = &factory
		op.FactoryData = factoryData
	}

	key, err := smartaccount.RandomNonceKey()
	if err != nil {
		return nil, fmt.Errorf("generate nonce key: %w", err)
	}
	if op.Nonce, err = c.account.Nonce(ctx, c.chain, sender, key); err != nil {
		return nil, err
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if op.CallData, err = contracts.PackExecute(call.To, value, call.Data); err != nil {
		return nil, err
	}
	op.Signature = smartaccount.DummySignature
	return op, nil
}

func (c *TxClient) sponsor(ctx context.Context, op *smartaccount.UserOperation) error {
	gas := c.network.Gas
	if gas == nil {
		sponsorship, err := c.relay.SponsorUserOperation(ctx, op)
		if err != nil {
			return fmt.Errorf("sponsor user operation: %w", err)
		}
		sponsorship.Apply(op)
		return nil
	}

	paymaster := gas.Paymaster
	op.CallGasLimit = gas.CallGasLimit
	op.VerificationGasLimit = gas.VerificationGasLimit
	op.PreVerificationGas = gas.PreVerificationGas
	op.Paymaster = &paymaster
	op.PaymasterVerificationGasLimit = gas.PaymasterVerificationGasLimit
	op.PaymasterPostOpGasLimit = gas.PaymasterPostOpGasLimit

	sponsorship, err := c.relay.PaymasterData(ctx, op, c.network.ChainIDBig())
	if err != nil {
		return fmt.Errorf("get paymaster data: %w", err)
	}
	// Fixed limits are part of what the paymaster signed; only take its data.
	op.Paymaster = &sponsorship.Paymaster
	op.PaymasterData = sponsorship.PaymasterData
	return nil
}

func (c *TxClient) waitForInclusion(ctx context.Context, userOpHash common.Hash) (common.Hash, error) {
	if c.network.UserOpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.network.UserOpTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.network.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.relay.UserOperationReceipt(ctx, userOpHash)
		if err != nil && ctx.Err() == nil {
			return common.Hash{}, fmt.Errorf("get user operation receipt: %w", err)
		}
		if receipt != nil {
			if !receipt.Success {
				reason := receipt.Reason
				if reason == "" {
					reason = "execution reverted"
				}
				return receipt.TxHash, fmt.Errorf("user operation %s failed: %s", userOpHash.Hex(), reason)
			}
			return receipt.TxHash, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return common.Hash{}, fmt.Errorf("%w: %s: %w", ErrUserOperationTimeout, userOpHash.Hex(), ctx.Err())
			}
			return common.Hash{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
