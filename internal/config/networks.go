package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"aagateway/internal/smartaccount"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

const (
	NetworkBaseSepolia = "base-sepolia"
	NetworkPolygonAmoy = "polygon-amoy"
)

// DefaultPointsContract is the points/SBT contract deployed on Base Sepolia.
var DefaultPointsContract = common.HexToAddress("0x438b8336B6C4104d653F783714197d9C14fe17FD")

// DefaultPaymaster is Pimlico's EntryPoint v0.7 verifying paymaster.
var DefaultPaymaster = common.HexToAddress("0x0000000000000039cd5e8aE05257CE51C473ddd1")

// GasProfile pins user operation gas limits and the paymaster instead of
// asking the paymaster to estimate them.
type GasProfile struct {
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

// Network is every per-chain setting the gateway needs.
type Network struct {
	Name           string
	ChainID        uint64
	RPCURL         string
	BundlerURL     string
	EntryPoint     common.Address
	AccountFactory common.Address
	PointsContract common.Address
	TokenFactory   common.Address
	NativeSymbol   string

	MinAccountBalance *big.Int
	CreationFee       *big.Int
	PointsPerMint     *big.Int

	Confirmations  uint64
	ReceiptTimeout time.Duration
	UserOpTimeout  time.Duration
	PollInterval   time.Duration

	// Gas is nil when the paymaster estimates gas (pm_sponsorUserOperation).
	Gas *GasProfile
}

func (n Network) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(n.ChainID)
}

func fixedGasProfile() *GasProfile {
	return &GasProfile{
		CallGasLimit:                  big.NewInt(1_000_000),
		VerificationGasLimit:          big.NewInt(500_000),
		PreVerificationGas:            big.NewInt(100_000),
		Paymaster:                     DefaultPaymaster,
		PaymasterVerificationGasLimit: big.NewInt(150_000),
		PaymasterPostOpGasLimit:       big.NewInt(50_000),
	}
}

func etherFraction(numerator, denominator int64) *big.Int {
	value := new(big.Int).Mul(big.NewInt(params.Ether), big.NewInt(numerator))
	return value.Div(value, big.NewInt(denominator))
}

// defaultNetworks is the per-network constants table. Entries are copied
// before env overrides are applied.
func defaultNetworks() map[string]Network {
	return map[string]Network{
		NetworkBaseSepolia: {
			Name:              NetworkBaseSepolia,
			ChainID:           84532,
			EntryPoint:        smartaccount.EntryPointV07,
			AccountFactory:    smartaccount.SimpleAccountFactoryV07,
			PointsContract:    DefaultPointsContract,
			NativeSymbol:      "ETH",
			MinAccountBalance: etherFraction(2, 100),
			CreationFee:       etherFraction(1, 100),
			PointsPerMint:     big.NewInt(100),
			Confirmations:     1,
			UserOpTimeout:     60 * time.Second,
			PollInterval:      2 * time.Second,
		},
		NetworkPolygonAmoy: {
			Name:              NetworkPolygonAmoy,
			ChainID:           80002,
			EntryPoint:        smartaccount.EntryPointV07,
			AccountFactory:    smartaccount.SimpleAccountFactoryV07,
			NativeSymbol:      "MATIC",
			MinAccountBalance: etherFraction(2, 100),
			CreationFee:       etherFraction(1, 100),
			PointsPerMint:     big.NewInt(100),
			Confirmations:     3,
			ReceiptTimeout:    60 * time.Second,
			UserOpTimeout:     60 * time.Second,
			PollInterval:      2 * time.Second,
			Gas:               fixedGasProfile(),
		},
	}
}

// envPrefix maps "polygon-amoy" to "POLYGON_AMOY".
func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func loadNetwork(source EnvSource, name, apiKey string) (Network, error) {
	network, ok := defaultNetworks()[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q", name)
	}
	prefix := envPrefix(name) + "_"

	network.RPCURL = lookupDefault(source, prefix+"RPC_URL", lookupDefault(source, "INFURA_URL", ""))
	if network.RPCURL == "" {
		return Network{}, fmt.Errorf("%sRPC_URL or INFURA_URL is required", prefix)
	}
	network.BundlerURL = lookupDefault(source, prefix+"BUNDLER_URL",
		fmt.Sprintf("https://api.pimlico.io/v2/%d/rpc?apikey=%s", network.ChainID, apiKey))

	var err error
	if network.EntryPoint, err = parseAddressEnv(source, prefix+"ENTRY_POINT", network.EntryPoint); err != nil {
		return Network{}, err
	}
	if network.AccountFactory, err = parseAddressEnv(source, prefix+"ACCOUNT_FACTORY", network.AccountFactory); err != nil {
		return Network{}, err
	}
	if network.PointsContract, err = parseAddressEnv(source, "POINTS_CONTRACT_ADDRESS", network.PointsContract); err != nil {
		return Network{}, err
	}
	if network.TokenFactory, err = parseAddressEnv(source, "FACTORY_CONTRACT_ADDRESS", network.TokenFactory); err != nil {
		return Network{}, err
	}
	network.NativeSymbol = lookupDefault(source, prefix+"NATIVE_SYMBOL", network.NativeSymbol)

	if network.MinAccountBalance, err = parseEtherEnv(source, prefix+"MIN_ACCOUNT_BALANCE", network.MinAccountBalance); err != nil {
		return Network{}, err
	}
	if network.CreationFee, err = parseEtherEnv(source, prefix+"CREATION_FEE", network.CreationFee); err != nil {
		return Network{}, err
	}
	if network.PointsPerMint, err = parseBigEnv(source, "POINTS_PER_MINT", network.PointsPerMint); err != nil {
		return Network{}, err
	}
	if network.Confirmations, err = parseUintEnv(source, prefix+"CONFIRMATIONS", network.Confirmations); err != nil {
		return Network{}, err
	}
	if network.ReceiptTimeout, err = parseDurationEnv(source, prefix+"RECEIPT_TIMEOUT", network.ReceiptTimeout); err != nil {
		return Network{}, err
	}
	if network.UserOpTimeout, err = parseDurationEnv(source, prefix+"USEROP_TIMEOUT", network.UserOpTimeout); err != nil {
		return Network{}, err
	}
	if network.PollInterval, err = parseDurationEnv(source, prefix+"POLL_INTERVAL", network.PollInterval); err != nil {
		return Network{}, err
	}
	if network.PollInterval == 0 {
		return Network{}, fmt.Errorf("invalid %sPOLL_INTERVAL: must be positive", prefix)
	}

	switch strings.ToLower(lookupDefault(source, prefix+"SPONSORSHIP", "")) {
	case "":
	case "dynamic":
		network.Gas = nil
	case "fixed":
		if network.Gas == nil {
			network.Gas = fixedGasProfile()
		}
	default:
		return Network{}, fmt.Errorf("invalid %sSPONSORSHIP: want dynamic or fixed", prefix)
	}
	if network.Gas != nil {
		if network.Gas.Paymaster, err = parseAddressEnv(source, prefix+"PAYMASTER", network.Gas.Paymaster); err != nil {
			return Network{}, err
		}
	}
	return network, nil
}
