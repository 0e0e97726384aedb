// Package contracts holds the ABIs the gateway calls and the helpers that
// pack call data and decode results and logs for them.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const pointsABIJSON = `[
	{"type":"function","name":"addPoints","stateMutability":"nonpayable",
	 "inputs":[{"name":"user","type":"address","internalType":"address"},{"name":"points","type":"uint256","internalType":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"getPoints","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address","internalType":"address"}],
	 "outputs":[{"name":"","type":"uint256","internalType":"uint256"}]}
]`

const tokenFactoryABIJSON = `[
	{"type":"function","name":"createToken","stateMutability":"payable",
	 "inputs":[
		{"name":"creator","type":"address"},
		{"name":"name","type":"string"},
		{"name":"symbol","type":"string"},
		{"name":"initialSupply","type":"uint256"},
		{"name":"maxSupply","type":"uint256"},
		{"name":"initialPrice","type":"uint256"},
		{"name":"creatorLockupPeriod","type":"uint256"},
		{"name":"lockLiquidity","type":"bool"},
		{"name":"liquidityLockPeriod","type":"uint256"}
	 ],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"TokenCreated","anonymous":false,
	 "inputs":[
		{"name":"tokenAddress","type":"address","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false}
	 ]}
]`

const tokenABIJSON = `[
	{"type":"function","name":"buyTokens","stateMutability":"payable",
	 "inputs":[{"name":"user","type":"address"},{"name":"desiredTokenAmount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"sellTokens","stateMutability":"nonpayable",
	 "inputs":[{"name":"user","type":"address"},{"name":"tokenAmount","type":"uint256"}],
	 "outputs":[]}
]`

// simpleAccountABIJSON covers the ERC-4337 v0.7 SimpleAccount and its factory.
const simpleAccountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	PointsABI        = mustParse(pointsABIJSON)
	TokenFactoryABI  = mustParse(tokenFactoryABIJSON)
	TokenABI         = mustParse(tokenABIJSON)
	SimpleAccountABI = mustParse(simpleAccountABIJSON)
	EntryPointABI    = mustParse(entryPointABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: invalid abi: " + err.Error())
	}
	return parsed
}
