package smartaccount

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"aagateway/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SimpleAccountFactoryV07 is the eth-infinitism SimpleAccountFactory for EntryPoint v0.7.
var SimpleAccountFactoryV07 = common.HexToAddress("0x91E60e0613810449d098b5E5Ea2a48F0B7a8D0a4")

// DummySignature has a valid length and shape for gas estimation and stub sponsorship.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff00000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// Caller performs a read-only eth_call.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type Config struct {
	PrivateKey string
	Factory    common.Address
	EntryPoint common.Address
	Salt       *big.Int
}

// Account is a counterfactual SimpleAccount controlled by one owner key.
type Account struct {
	owner      *ecdsa.PrivateKey
	ownerAddr  common.Address
	factory    common.Address
	entryPoint common.Address
	salt       *big.Int

	mu      sync.RWMutex
	address common.Address
	known   bool
}

func New(cfg Config) (*Account, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if raw == "" {
		return nil, errors.New("owner private key is required")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid owner private key: %w", err)
	}
	if cfg.Factory == (common.Address{}) {
		cfg.Factory = SimpleAccountFactoryV07
	}
	if cfg.EntryPoint == (common.Address{}) {
		cfg.EntryPoint = EntryPointV07
	}
	salt := new(big.Int)
	if cfg.Salt != nil {
		salt.Set(cfg.Salt)
	}
	return &Account{
		owner:      key,
		ownerAddr:  crypto.PubkeyToAddress(key.PublicKey),
		factory:    cfg.Factory,
		entryPoint: cfg.EntryPoint,
		salt:       salt,
	}, nil
}

func (a *Account) Owner() common.Address {
	return a.ownerAddr
}

func (a *Account) EntryPoint() common.Address {
	return a.entryPoint
}

// Address resolves the counterfactual address through the factory's getAddress
// view. The result depends only on owner, factory and salt, so it is cached.
// The lookup runs outside the lock; concurrent first callers may each resolve
// and all store the same value. Failures are not cached.
func (a *Account) Address(ctx context.Context, caller Caller) (common.Address, error) {
	a.mu.RLock()
	address, known := a.address, a.known
	a.mu.RUnlock()
	if known {
		return address, nil
	}

	data, err := contracts.PackGetAccountAddress(a.ownerAddr, a.salt)
	if err != nil {
		return common.Address{}, err
	}
	result, err := caller.Call(ctx, a.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve smart account address: %w", err)
	}
	address, err = contracts.UnpackGetAccountAddress(result)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode smart account address: %w", err)
	}
	if address == (common.Address{}) {
		return common.Address{}, errors.New("account factory returned the zero address")
	}

	a.mu.Lock()
	a.address = address
	a.known = true
	a.mu.Unlock()
	return address, nil
}

// FactoryCall returns the factory and createAccount data used while the account
// is not yet deployed.
func (a *Account) FactoryCall() (common.Address, []byte, error) {
	data, err := contracts.PackCreateAccount(a.ownerAddr, a.salt)
	if err != nil {
		return common.Address{}, nil, err
	}
	return a.factory, data, nil
}

// Nonce reads the EntryPoint nonce for the given 192-bit key.
func (a *Account) Nonce(ctx context.Context, caller Caller, sender common.Address, key *big.Int) (*big.Int, error) {
	data, err := contracts.PackGetNonce(sender, key)
	if err != nil {
		return nil, err
	}
	result, err := caller.Call(ctx, a.entryPoint, data)
	if err != nil {
		return nil, fmt.Errorf("read account nonce: %w", err)
	}
	return contracts.UnpackGetNonce(result)
}

// SignUserOperation signs the v0.7 hash as an EIP-191 personal message, which
// is what SimpleAccount._validateSignature recovers against.
func (a *Account) SignUserOperation(op *UserOperation, chainID *big.Int) error {
	hash := op.Hash(a.entryPoint, chainID)
	signature, err := crypto.Sign(accounts.TextHash(hash.Bytes()), a.owner)
	if err != nil {
		return err
	}
	signature[crypto.RecoveryIDOffset] += 27
	op.Signature = signature
	return nil
}

// RandomNonceKey returns a random 192-bit nonce key. Operations sent under
// distinct keys have independent sequences, so concurrent submissions from the
// same owner never race for one nonce.
func RandomNonceKey() (*big.Int, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf[:]), nil
}
