package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a read-only connection to a chain RPC endpoint.
type Client struct {
	eth          *ethclient.Client
	pollInterval time.Duration
}

type Config struct {
	URL          string
	PollInterval time.Duration
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	eth, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{eth: eth, pollInterval: cfg.PollInterval}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, address, nil)
}

func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, address, nil)
}

func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// WaitForReceipt polls until hash is mined and buried under the requested
// number of confirmations. A zero timeout waits until ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error) {
	return waitForReceipt(ctx, c.eth, hash, confirmations, timeout, c.pollInterval)
}

type receiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

func waitForReceipt(ctx context.Context, source receiptSource, hash common.Hash, confirmations uint64, timeout, interval time.Duration) (*types.Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if confirmations == 0 {
		confirmations = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := source.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if confirmed, err := isConfirmed(ctx, source, receipt, confirmations); err != nil {
				return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), err)
			} else if confirmed {
				return receipt, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
			}
			return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func isConfirmed(ctx context.Context, source receiptSource, receipt *types.Receipt, confirmations uint64) (bool, error) {
	if confirmations <= 1 {
		return true, nil
	}
	head, err := source.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	if receipt.BlockNumber == nil {
		return false, nil
	}
	mined := receipt.BlockNumber.Uint64()
	return head >= mined && head-mined+1 >= confirmations, nil
}
