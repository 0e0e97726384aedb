package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreateTokenArgs are the positional arguments of TokenFactory.createToken.
type CreateTokenArgs struct {
	Creator             common.Address
	Name                string
	Symbol              string
	InitialSupply       *big.Int
	MaxSupply           *big.Int
	InitialPrice        *big.Int
	CreatorLockupPeriod *big.Int
	LockLiquidity       bool
	LiquidityLockPeriod *big.Int
}

func PackAddPoints(user common.Address, points *big.Int) ([]byte, error) {
	return PointsABI.Pack("addPoints", user, points)
}

func PackGetPoints(user common.Address) ([]byte, error) {
	return PointsABI.Pack("getPoints", user)
}

func UnpackGetPoints(data []byte) (*big.Int, error) {
	return unpackUint(PointsABI.Unpack("getPoints", data))
}

func PackCreateToken(args CreateTokenArgs) ([]byte, error) {
	return TokenFactoryABI.Pack("createToken",
		args.Creator,
		args.Name,
		args.Symbol,
		orZero(args.InitialSupply),
		orZero(args.MaxSupply),
		orZero(args.InitialPrice),
		orZero(args.CreatorLockupPeriod),
		args.LockLiquidity,
		orZero(args.LiquidityLockPeriod),
	)
}

func PackBuyTokens(user common.Address, desiredTokenAmount *big.Int) ([]byte, error) {
	return TokenABI.Pack("buyTokens", user, desiredTokenAmount)
}

func PackSellTokens(user common.Address, tokenAmount *big.Int) ([]byte, error) {
	return TokenABI.Pack("sellTokens", user, tokenAmount)
}

// PackExecute wraps a call so the smart account forwards it to target.
func PackExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	return SimpleAccountABI.Pack("execute", target, orZero(value), data)
}

func PackCreateAccount(owner common.Address, salt *big.Int) ([]byte, error) {
	return SimpleAccountABI.Pack("createAccount", owner, orZero(salt))
}

func PackGetAccountAddress(owner common.Address, salt *big.Int) ([]byte, error) {
	return SimpleAccountABI.Pack("getAddress", owner, orZero(salt))
}

func UnpackGetAccountAddress(data []byte) (common.Address, error) {
	values, err := SimpleAccountABI.Unpack("getAddress", data)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("getAddress returned %d values", len(values))
	}
	address, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("getAddress returned a non-address value")
	}
	return address, nil
}

func PackGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	return EntryPointABI.Pack("getNonce", sender, orZero(key))
}

func UnpackGetNonce(data []byte) (*big.Int, error) {
	return unpackUint(EntryPointABI.Unpack("getNonce", data))
}

func unpackUint(values []any, err error) (*big.Int, error) {
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("expected 1 return value, got %d", len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type %T", values[0])
	}
	return value, nil
}

func orZero(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value
}
