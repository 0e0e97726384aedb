package application

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"aagateway/internal/config"
	"aagateway/internal/contracts"
)

func TestSendTransactionDynamicSponsorship(t *testing.T) {
	chain := &fakeChain{code: []byte{0x60}}
	relay := &fakeRelay{pendingFor: 2}
	client := newTestTxClient(t, chain, relay, pointsNetwork())

	submitted, err := client.SendTransaction(context.Background(), Call{To: testPoints, Data: []byte{0xaa}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if submitted.UserOpHash != testUserOpHash || submitted.TxHash != testTxHash {
		t.Fatalf("unexpected submission: %+v", submitted)
	}
	if relay.sponsored != 1 || len(relay.paymaster) != 0 {
		t.Fatalf("expected pm_sponsorUserOperation only, sponsored=%d paymaster=%d", relay.sponsored, len(relay.paymaster))
	}
	if relay.polls != 3 {
		t.Fatalf("expected 3 receipt polls, got %d", relay.polls)
	}

	op := relay.sent[0]
	if op.Sender != testAccount {
		t.Fatalf("sender = %s", op.Sender.Hex())
	}
	if op.Factory != nil {
		t.Fatal("deployed account should not carry factory data")
	}
	if op.CallGasLimit.Int64() != 80_000 || op.MaxFeePerGas.Int64() != 30 || op.MaxPriorityFeePerGas.Int64() != 3 {
		t.Fatalf("sponsorship or fast fees not applied: %+v", op)
	}
	if len(op.Signature) != 65 {
		t.Fatalf("signature length = %d", len(op.Signature))
	}
	want, _ := contracts.PackExecute(testPoints, new(big.Int), []byte{0xaa})
	if !bytes.Equal(op.CallData, want) {
		t.Fatal("call data is not an execute call")
	}
	// The nonce key is random per operation and sits above the 64-bit sequence.
	if op.Nonce.BitLen() <= 64 {
		t.Fatalf("nonce %s does not carry a key", op.Nonce)
	}
}

func TestSendTransactionFixedGasProfile(t *testing.T) {
	chain := &fakeChain{}
	relay := &fakeRelay{}
	network := tokenNetwork()
	client := newTestTxClient(t, chain, relay, network)

	if _, err := client.SendTransaction(context.Background(), Call{To: testTokenFactor, Value: network.CreationFee}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if relay.sponsored != 0 || len(relay.paymaster) != 1 {
		t.Fatalf("expected pm_getPaymasterData only, sponsored=%d paymaster=%d", relay.sponsored, len(relay.paymaster))
	}
	if relay.paymasterID.Int64() != 80002 {
		t.Fatalf("paymaster chain id = %s", relay.paymasterID)
	}
	asked := relay.paymaster[0]
	if asked.CallGasLimit.Int64() != 1_000_000 || asked.PaymasterPostOpGasLimit.Int64() != 50_000 {
		t.Fatalf("fixed limits not set before paymaster call: %+v", asked)
	}

	op := relay.sent[0]
	if op.Factory == nil || *op.Factory != testFactory || len(op.FactoryData) == 0 {
		t.Fatal("undeployed account must carry factory and factory data")
	}
	if !bytes.Equal(op.PaymasterData, []byte{0x02, 0x03}) {
		t.Fatalf("paymaster data = %x", op.PaymasterData)
	}
	if *op.Paymaster != config.DefaultPaymaster {
		t.Fatalf("paymaster = %s", op.Paymaster.Hex())
	}
}

func TestSendTransactionFailedUserOperation(t *testing.T) {
	relay := &fakeRelay{failed: true, reason: "AA23 reverted"}
	client := newTestTxClient(t, &fakeChain{code: []byte{0x60}}, relay, pointsNetwork())

	submitted, err := client.SendTransaction(context.Background(), Call{To: testPoints})
	if err == nil || !strings.Contains(err.Error(), "AA23 reverted") {
		t.Fatalf("expected revert reason, got %v", err)
	}
	if submitted.UserOpHash != testUserOpHash {
		t.Fatal("user op hash should be reported after submission")
	}
}

func TestSendTransactionInclusionTimeout(t *testing.T) {
	relay := &fakeRelay{pendingFor: -1}
	network := pointsNetwork()
	network.UserOpTimeout = 20 * time.Millisecond
	client := newTestTxClient(t, &fakeChain{code: []byte{0x60}}, relay, network)

	_, err := client.SendTransaction(context.Background(), Call{To: testPoints})
	if !errors.Is(err, ErrUserOperationTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected inclusion timeout, got %v", err)
	}
}

func TestSendTransactionUpstreamErrors(t *testing.T) {
	cases := map[string]*fakeRelay{
		"gas price": {gasErr: errBoom},
		"sponsor":   {sponsorErr: errBoom},
		"send":      {sendErr: errBoom},
	}
	for name, relay := range cases {
		client := newTestTxClient(t, &fakeChain{code: []byte{0x60}}, relay, pointsNetwork())
		if _, err := client.SendTransaction(context.Background(), Call{To: testPoints}); !errors.Is(err, errBoom) {
			t.Fatalf("%s: expected wrapped error, got %v", name, err)
		}
		if len(relay.sent) != 0 && name != "send" {
			t.Fatalf("%s: operation should not be sent", name)
		}
	}
}

func TestWaitForTransactionUsesNetworkDepth(t *testing.T) {
	chain := &fakeChain{}
	client := newTestTxClient(t, chain, &fakeRelay{}, tokenNetwork())

	if _, err := client.WaitForTransaction(context.Background(), testTxHash); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if chain.confirmation != 3 || chain.timeout != time.Minute {
		t.Fatalf("confirmations=%d timeout=%s", chain.confirmation, chain.timeout)
	}
}

func TestNewTxClientValidates(t *testing.T) {
	if _, err := NewTxClient(nil, &fakeRelay{}, nil, pointsNetwork()); err == nil {
		t.Fatal("expected error for nil dependencies")
	}
}
