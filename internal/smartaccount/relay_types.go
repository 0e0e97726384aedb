package smartaccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTier is one EIP-1559 fee suggestion.
type FeeTier struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GasPriceQuote is a bundler's slow/standard/fast fee suggestion.
type GasPriceQuote struct {
	Slow     FeeTier
	Standard FeeTier
	Fast     FeeTier
}

// Sponsorship carries paymaster fields and, when the paymaster estimated
// them, gas limits. Nil limits leave the operation's own values untouched.
type Sponsorship struct {
	Paymaster                     common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
}

// Apply copies the sponsorship into op.
func (s Sponsorship) Apply(op *UserOperation) {
	paymaster := s.Paymaster
	op.Paymaster = &paymaster
	op.PaymasterData = s.PaymasterData
	if s.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = s.PaymasterVerificationGasLimit
	}
	if s.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = s.PaymasterPostOpGasLimit
	}
	if s.CallGasLimit != nil {
		op.CallGasLimit = s.CallGasLimit
	}
	if s.VerificationGasLimit != nil {
		op.VerificationGasLimit = s.VerificationGasLimit
	}
	if s.PreVerificationGas != nil {
		op.PreVerificationGas = s.PreVerificationGas
	}
}

// UserOperationReceipt is the subset of eth_getUserOperationReceipt the gateway reads.
type UserOperationReceipt struct {
	UserOpHash common.Hash
	Success    bool
	Reason     string
	TxHash     common.Hash
}
