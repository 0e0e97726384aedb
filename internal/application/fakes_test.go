package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"aagateway/internal/config"
	"aagateway/internal/domain"
	"aagateway/internal/smartaccount"
	"aagateway/internal/streaming"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	testAccount     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testFactory     = common.HexToAddress("0xfac0000000000000000000000000000000000001")
	testPoints      = common.HexToAddress("0x438b8336B6C4104d653F783714197d9C14fe17FD")
	testTokenFactor = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testUserOpHash  = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")
	testTxHash      = common.HexToHash("0x0202020202020202020202020202020202020202020202020202020202020202")
)

type fakeChain struct {
	mu sync.Mutex

	balance    *big.Int
	balanceErr error
	code       []byte
	points     *big.Int
	callErr    error
	receipt    *types.Receipt
	receiptErr error

	networkCalls int
	calls        []common.Address
	waits        []common.Hash
	confirmation uint64
	timeout      time.Duration
}

func (f *fakeChain) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCalls++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeChain) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCalls++
	return f.code, nil
}

func (f *fakeChain) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCalls++
	f.calls = append(f.calls, to)
	switch to {
	case testFactory:
		return common.LeftPadBytes(testAccount.Bytes(), 32), nil
	case smartaccount.EntryPointV07:
		// getNonce(sender, key) returns key << 64 | sequence, sequence zero here.
		key := new(big.Int).SetBytes(data[36:68])
		return common.LeftPadBytes(key.Lsh(key, 64).Bytes(), 32), nil
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	value := f.points
	if value == nil {
		value = new(big.Int)
	}
	return common.LeftPadBytes(value.Bytes(), 32), nil
}

func (f *fakeChain) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCalls++
	f.waits = append(f.waits, hash)
	f.confirmation = confirmations
	f.timeout = timeout
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(10)}, nil
}

func (f *fakeChain) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networkCalls
}

type fakeRelay struct {
	mu sync.Mutex

	gasErr      error
	sponsorErr  error
	sendErr     error
	pendingFor  int
	failed      bool
	reason      string
	receiptErr  error
	sponsored   int
	paymaster   []*smartaccount.UserOperation
	paymasterID *big.Int
	sent        []*smartaccount.UserOperation
	polls       int
}

func (f *fakeRelay) GasPrice(ctx context.Context) (smartaccount.GasPriceQuote, error) {
	if f.gasErr != nil {
		return smartaccount.GasPriceQuote{}, f.gasErr
	}
	return smartaccount.GasPriceQuote{
		Slow: smartaccount.FeeTier{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(1)},
		Fast: smartaccount.FeeTier{MaxFeePerGas: big.NewInt(30), MaxPriorityFeePerGas: big.NewInt(3)},
	}, nil
}

func (f *fakeRelay) SponsorUserOperation(ctx context.Context, op *smartaccount.UserOperation) (smartaccount.Sponsorship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sponsored++
	if f.sponsorErr != nil {
		return smartaccount.Sponsorship{}, f.sponsorErr
	}
	return smartaccount.Sponsorship{
		Paymaster:                     config.DefaultPaymaster,
		PaymasterData:                 []byte{0x01},
		PaymasterVerificationGasLimit: big.NewInt(40_000),
		PaymasterPostOpGasLimit:       big.NewInt(1),
		CallGasLimit:                  big.NewInt(80_000),
		VerificationGasLimit:          big.NewInt(90_000),
		PreVerificationGas:            big.NewInt(50_000),
	}, nil
}

func (f *fakeRelay) PaymasterData(ctx context.Context, op *smartaccount.UserOperation, chainID *big.Int) (smartaccount.Sponsorship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *op
	f.paymaster = append(f.paymaster, &copied)
	f.paymasterID = chainID
	if f.sponsorErr != nil {
		return smartaccount.Sponsorship{}, f.sponsorErr
	}
	return smartaccount.Sponsorship{Paymaster: config.DefaultPaymaster, PaymasterData: []byte{0x02, 0x03}}, nil
}

func (f *fakeRelay) SendUserOperation(ctx context.Context, op *smartaccount.UserOperation) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, op)
	return testUserOpHash, nil
}

func (f *fakeRelay) UserOperationReceipt(ctx context.Context, hash common.Hash) (*smartaccount.UserOperationReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.pendingFor < 0 || f.polls <= f.pendingFor {
		return nil, nil
	}
	return &smartaccount.UserOperationReceipt{
		UserOpHash: hash,
		Success:    !f.failed,
		Reason:     f.reason,
		TxHash:     testTxHash,
	}, nil
}

type fakeJournal struct {
	mu        sync.Mutex
	records   []domain.Submission
	outcomes  map[string]domain.SubmissionOutcome
	recordErr error
	filter    SubmissionQueryFilter
}

func (f *fakeJournal) RecordSubmission(ctx context.Context, submission domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, submission)
	return nil
}

func (f *fakeJournal) CompleteSubmission(ctx context.Context, id string, outcome domain.SubmissionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]domain.SubmissionOutcome)
	}
	f.outcomes[id] = outcome
	return nil
}

func (f *fakeJournal) QuerySubmissions(ctx context.Context, filter SubmissionQueryFilter) ([]domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return f.records, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []streaming.Event
	err    error
}

func (f *fakePublisher) PublishEvent(ctx context.Context, event streaming.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (f *fakeObserver) OnOperation(operation string, outcome string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]string)
	}
	f.outcomes[operation] = outcome
}

var errBoom = errors.New("boom")

func pointsNetwork() config.Network {
	return config.Network{
		Name:              config.NetworkBaseSepolia,
		ChainID:           84532,
		EntryPoint:        smartaccount.EntryPointV07,
		AccountFactory:    testFactory,
		PointsContract:    testPoints,
		NativeSymbol:      "ETH",
		MinAccountBalance: big.NewInt(20_000_000_000_000_000),
		PointsPerMint:     big.NewInt(100),
		Confirmations:     1,
		UserOpTimeout:     time.Second,
		PollInterval:      time.Millisecond,
	}
}

func tokenNetwork() config.Network {
	return config.Network{
		Name:              config.NetworkPolygonAmoy,
		ChainID:           80002,
		EntryPoint:        smartaccount.EntryPointV07,
		AccountFactory:    testFactory,
		TokenFactory:      testTokenFactor,
		NativeSymbol:      "MATIC",
		MinAccountBalance: big.NewInt(20_000_000_000_000_000),
		CreationFee:       big.NewInt(10_000_000_000_000_000),
		Confirmations:     3,
		ReceiptTimeout:    time.Minute,
		UserOpTimeout:     time.Second,
		PollInterval:      time.Millisecond,
		Gas: &config.GasProfile{
			CallGasLimit:                  big.NewInt(1_000_000),
			VerificationGasLimit:          big.NewInt(500_000),
			PreVerificationGas:            big.NewInt(100_000),
			Paymaster:                     config.DefaultPaymaster,
			PaymasterVerificationGasLimit: big.NewInt(150_000),
			PaymasterPostOpGasLimit:       big.NewInt(50_000),
		},
	}
}

func newTestTxClient(t *testing.T, chain ChainReader, relay Relay, network config.Network) *TxClient {
	t.Helper()
	account, err := smartaccount.New(smartaccount.Config{
		PrivateKey: testKey,
		Factory:    network.AccountFactory,
		EntryPoint: network.EntryPoint,
	})
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	client, err := NewTxClient(chain, relay, account, network)
	if err != nil {
		t.Fatalf("new tx client: %v", err)
	}
	return client
}

type gatewayFixture struct {
	gateway     *Gateway
	pointsChain *fakeChain
	tokenChain  *fakeChain
	relay       *fakeRelay
	journal     *fakeJournal
	events      *fakePublisher
	observer    *fakeObserver
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{
		pointsChain: &fakeChain{balance: big.NewInt(50_000_000_000_000_000), code: []byte{0x60}},
		tokenChain:  &fakeChain{balance: big.NewInt(50_000_000_000_000_000), code: []byte{0x60}},
		relay:       &fakeRelay{},
		journal:     &fakeJournal{},
		events:      &fakePublisher{},
		observer:    &fakeObserver{},
	}
	gateway, err := NewGateway(
		newTestTxClient(t, f.pointsChain, f.relay, pointsNetwork()),
		newTestTxClient(t, f.tokenChain, f.relay, tokenNetwork()),
		GatewayOptions{Journal: f.journal, Events: f.events, Observer: f.observer},
	)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	f.gateway = gateway
	return f
}
