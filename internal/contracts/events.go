package contracts

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const TokenCreatedSignature = "TokenCreated(address,address,string,string)"

// TokenCreatedTopic is keccak256 of TokenCreatedSignature.
var TokenCreatedTopic = crypto.Keccak256Hash([]byte(TokenCreatedSignature))

// FindCreatedToken scans receipt logs for the first TokenCreated event and
// returns the token address held in the low 20 bytes of its first indexed topic,
// as lowercase hex.
func FindCreatedToken(logs []*types.Log) (string, bool) {
	for _, log := range logs {
		if log == nil || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != TokenCreatedTopic {
			continue
		}
		return "0x" + hex.EncodeToString(log.Topics[1][12:]), true
	}
	return "", false
}
