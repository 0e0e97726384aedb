// Package smartaccount models an ERC-4337 (EntryPoint v0.7) smart account
// owned by a single ECDSA key: counterfactual address, init code, user
// operation hashing and signing.
package smartaccount

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EntryPointV07 is the canonical EntryPoint v0.7 deployment.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// UserOperation is the unpacked v0.7 form exchanged with bundlers.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

type userOperationJSON struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes  `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func (op *UserOperation) MarshalJSON() ([]byte, error) {
	out := userOperationJSON{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             bytesOrEmpty(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            bytesOrEmpty(op.Signature),
	}
	if op.Factory != nil {
		factoryData := hexutil.Bytes(bytesOrEmpty(op.FactoryData))
		out.Factory = op.Factory
		out.FactoryData = &factoryData
	}
	if op.Paymaster != nil {
		paymasterData := hexutil.Bytes(bytesOrEmpty(op.PaymasterData))
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = &paymasterData
	}
	return json.Marshal(out)
}

// InitCode is factory || factoryData, empty once the account is deployed.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData is paymaster || uint128 verification gas || uint128 post-op gas || data.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := make([]byte, 0, 52+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, packUint128Pair(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)...)
	return append(out, op.PaymasterData...)
}

// Hash is the EntryPoint v0.7 user operation hash for the given chain.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) common.Hash {
	packed := make([]byte, 0, 32*8)
	packed = append(packed, common.LeftPadBytes(op.Sender.Bytes(), 32)...)
	packed = append(packed, word(op.Nonce)...)
	packed = append(packed, crypto.Keccak256(op.InitCode())...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, packUint128Pair(op.VerificationGasLimit, op.CallGasLimit)...)
	packed = append(packed, word(op.PreVerificationGas)...)
	packed = append(packed, packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData())...)

	outer := make([]byte, 0, 32*3)
	outer = append(outer, crypto.Keccak256(packed)...)
	outer = append(outer, common.LeftPadBytes(entryPoint.Bytes(), 32)...)
	outer = append(outer, word(chainID)...)
	return crypto.Keccak256Hash(outer)
}

func packUint128Pair(high, low *big.Int) []byte {
	out := make([]byte, 0, 32)
	out = append(out, common.LeftPadBytes(valueOrZero(high).Bytes(), 16)...)
	return append(out, common.LeftPadBytes(valueOrZero(low).Bytes(), 16)...)
}

func word(value *big.Int) []byte {
	return common.LeftPadBytes(valueOrZero(value).Bytes(), 32)
}

func valueOrZero(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value
}

func hexBig(value *big.Int) *hexutil.Big {
	return (*hexutil.Big)(valueOrZero(value))
}

func bytesOrEmpty(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
