package application

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"aagateway/internal/contracts"
	"aagateway/internal/domain"
	"aagateway/internal/streaming"
	"aagateway/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Journal interface {
	RecordSubmission(ctx context.Context, submission domain.Submission) error
	CompleteSubmission(ctx context.Context, id string, outcome domain.SubmissionOutcome) error
	QuerySubmissions(ctx context.Context, filter SubmissionQueryFilter) ([]domain.Submission, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event streaming.Event) error
}

type OperationObserver interface {
	OnOperation(operation string, outcome string, duration time.Duration)
}

type GatewayOptions struct {
	Journal  Journal
	Events   EventPublisher
	Observer OperationObserver
}

// Gateway runs the points and token operations. Points calls go to one
// network, token calls to another; both may be the same.
type Gateway struct {
	points   *TxClient
	tokens   *TxClient
	journal  Journal
	events   EventPublisher
	observer OperationObserver
	now      func() time.Time
}

var ErrJournalDisabled = errors.New("submission journal is disabled")

func NewGateway(points, tokens *TxClient, opts GatewayOptions) (*Gateway, error) {
	if points == nil || tokens == nil {
		return nil, errors.New("gateway tx clients must not be nil")
	}
	return &Gateway{
		points:   points,
		tokens:   tokens,
		journal:  opts.Journal,
		events:   opts.Events,
		observer: opts.Observer,
		now:      time.Now,
	}, nil
}

// InsufficientFunds is the detail payload of an insufficient-funds error.
type InsufficientFunds struct {
	AccountAddress  string `json:"accountAddress"`
	CurrentBalance  string `json:"currentBalance"`
	RequiredBalance string `json:"requiredBalance"`
}

type SetPointsResult struct {
	TransactionHash common.Hash
}

type PointsResult struct {
	Address string
	Points  *big.Int
}

type CreateTokenInput struct {
	Name                string
	Symbol              string
	InitialSupply       string
	MaxSupply           string
	InitialPrice        string
	CreatorLockupPeriod string
	LockLiquidity       bool
	LiquidityLockPeriod string
	UserAddress         string
}

type CreateTokenResult struct {
	TokenAddress string
	CreationTx   common.Hash
	Creator      string
}

type SellTokensInput struct {
	TokenAddress string
	TokenAmount  string
	UserAddress  string
}

type BuyTokensInput struct {
	TokenAddress       string
	DesiredTokenAmount string
	EthAmount          string
	UserAddress        string
}

type TradeResult struct {
	TransactionHash common.Hash
	Receipt         *types.Receipt
}

// SetPoints credits the network's points-per-mint to the wallet at to.
func (g *Gateway) SetPoints(ctx context.Context, to string) (result SetPointsResult, err error) {
	ctx, finish := g.begin(ctx, "set_points")
	defer func() { err = finish(err) }()

	recipient, err := parseAddress(to, "Wallet address is required", "Invalid wallet address")
	if err != nil {
		return result, err
	}
	network := g.points.Network()

	account, err := g.points.AccountAddress(ctx)
	if err != nil {
		return result, err
	}
	balance, err := g.points.chain.BalanceAt(ctx, account)
	if err != nil {
		return result, err
	}
	if balance.Cmp(network.MinAccountBalance) < 0 {
		return result, &domain.Error{
			Kind:    domain.KindInsufficientFunds,
			Message: "Insufficient funds in smart account",
			Details: InsufficientFunds{
				AccountAddress:  account.Hex(),
				CurrentBalance:  units.FormatEther(balance),
				RequiredBalance: units.FormatEther(network.MinAccountBalance) + " " + network.NativeSymbol,
			},
		}
	}

	data, err := contracts.PackAddPoints(recipient, network.PointsPerMint)
	if err != nil {
		return result, err
	}
	submitted, _, err := g.execute(ctx, g.points, domain.OperationSetPoints, recipient, Call{To: network.PointsContract, Data: data})
	if err != nil {
		return result, err
	}

	g.publish(ctx, streaming.Event{
		Type:       streaming.EventPointsAdded,
		ChainID:    network.ChainID,
		TxHash:     submitted.TxHash.Hex(),
		UserOpHash: submitted.UserOpHash.Hex(),
		Sender:     account.Hex(),
		Subject:    recipient.Hex(),
		Amount:     network.PointsPerMint.String(),
	})
	return SetPointsResult{TransactionHash: submitted.TxHash}, nil
}

// GetPoints reads the points balance of address.
func (g *Gateway) GetPoints(ctx context.Context, address string) (result PointsResult, err error) {
	ctx, finish := g.begin(ctx, "get_points")
	defer func() { err = finish(err) }()

	owner, err := parseAddress(address, "Wallet address is required", "Invalid wallet address")
	if err != nil {
		return result, err
	}
	data, err := contracts.PackGetPoints(owner)
	if err != nil {
		return result, err
	}
	raw, err := g.points.chain.Call(ctx, g.points.Network().PointsContract, data)
	if err != nil {
		return result, err
	}
	points, err := contracts.UnpackGetPoints(raw)
	if err != nil {
		return result, err
	}
	return PointsResult{Address: strings.TrimSpace(address), Points: points}, nil
}

// CreateToken deploys a token through the factory and returns its address
// from the TokenCreated event.
func (g *Gateway) CreateToken(ctx context.Context, input CreateTokenInput) (result CreateTokenResult, err error) {
	ctx, finish := g.begin(ctx, "create_token")
	defer func() { err = finish(err) }()

	creator, err := parseAddress(input.UserAddress, "User address is required", "Invalid user address")
	if err != nil {
		return result, err
	}
	args := contracts.CreateTokenArgs{
		Creator:       creator,
		Name:          input.Name,
		Symbol:        input.Symbol,
		LockLiquidity: input.LockLiquidity,
	}
	if args.InitialSupply, err = parseOptionalUint(input.InitialSupply, "initialSupply"); err != nil {
		return result, err
	}
	if args.MaxSupply, err = parseOptionalUint(input.MaxSupply, "maxSupply"); err != nil {
		return result, err
	}
	if args.CreatorLockupPeriod, err = parseOptionalUint(input.CreatorLockupPeriod, "creatorLockupPeriod"); err != nil {
		return result, err
	}
	if args.LiquidityLockPeriod, err = parseOptionalUint(input.LiquidityLockPeriod, "liquidityLockPeriod"); err != nil {
		return result, err
	}
	if strings.TrimSpace(input.InitialPrice) != "" {
		if args.InitialPrice, err = units.ParseEther(input.InitialPrice); err != nil {
			return result, domain.NewValidationError("Invalid initialPrice")
		}
	}

	data, err := contracts.PackCreateToken(args)
	if err != nil {
		return result, err
	}
	network := g.tokens.Network()
	submitted, receipt, err := g.execute(ctx, g.tokens, domain.OperationCreateToken, creator, Call{
		To:    network.TokenFactory,
		Value: network.CreationFee,
		Data:  data,
	})
	if err != nil {
		return result, err
	}

	tokenAddress, ok := contracts.FindCreatedToken(receipt.Logs)
	if !ok {
		return result, &domain.Error{
			Kind:    domain.KindEventNotFound,
			Message: "Token creation event not found in logs",
			Details: "transaction " + submitted.TxHash.Hex(),
		}
	}

	g.publish(ctx, streaming.Event{
		Type:       streaming.EventTokenCreated,
		ChainID:    network.ChainID,
		TxHash:     submitted.TxHash.Hex(),
		UserOpHash: submitted.UserOpHash.Hex(),
		Subject:    creator.Hex(),
		Token:      tokenAddress,
		Amount:     orZero(args.InitialSupply).String(),
		Value:      network.CreationFee.String(),
	})
	return CreateTokenResult{
		TokenAddress: tokenAddress,
		CreationTx:   submitted.TxHash,
		Creator:      strings.TrimSpace(input.UserAddress),
	}, nil
}

// SellTokens sells tokenAmount base units of the token back to its curve.
func (g *Gateway) SellTokens(ctx context.Context, input SellTokensInput) (result TradeResult, err error) {
	ctx, finish := g.begin(ctx, "sell_tokens")
	defer func() { err = finish(err) }()

	token, user, err := parseTradeAddresses(input.TokenAddress, input.UserAddress)
	if err != nil {
		return result, err
	}
	amount, err := parseRequiredUint(input.TokenAmount, "Token amount is required", "tokenAmount")
	if err != nil {
		return result, err
	}
	data, err := contracts.PackSellTokens(user, amount)
	if err != nil {
		return result, err
	}
	submitted, receipt, err := g.execute(ctx, g.tokens, domain.OperationSellTokens, user, Call{To: token, Data: data})
	if err != nil {
		return result, err
	}

	g.publish(ctx, streaming.Event{
		Type:       streaming.EventTokensSold,
		ChainID:    g.tokens.Network().ChainID,
		TxHash:     submitted.TxHash.Hex(),
		UserOpHash: submitted.UserOpHash.Hex(),
		Subject:    user.Hex(),
		Token:      strings.ToLower(token.Hex()),
		Amount:     amount.String(),
	})
	return TradeResult{TransactionHash: submitted.TxHash, Receipt: receipt}, nil
}

// BuyTokens buys desiredTokenAmount base units, paying ethAmount wei.
func (g *Gateway) BuyTokens(ctx context.Context, input BuyTokensInput) (result TradeResult, err error) {
	ctx, finish := g.begin(ctx, "buy_tokens")
	defer func() { err = finish(err) }()

	token, user, err := parseTradeAddresses(input.TokenAddress, input.UserAddress)
	if err != nil {
		return result, err
	}
	amount, err := parseRequiredUint(input.DesiredTokenAmount, "Desired token amount is required", "desiredTokenAmount")
	if err != nil {
		return result, err
	}
	value, err := parseOptionalUint(input.EthAmount, "ethAmount")
	if err != nil {
		return result, err
	}
	data, err := contracts.PackBuyTokens(user, amount)
	if err != nil {
		return result, err
	}
	submitted, receipt, err := g.execute(ctx, g.tokens, domain.OperationBuyTokens, user, Call{To: token, Value: value, Data: data})
	if err != nil {
		return result, err
	}

	g.publish(ctx, streaming.Event{
		Type:       streaming.EventTokensBought,
		ChainID:    g.tokens.Network().ChainID,
		TxHash:     submitted.TxHash.Hex(),
		UserOpHash: submitted.UserOpHash.Hex(),
		Subject:    user.Hex(),
		Token:      strings.ToLower(token.Hex()),
		Amount:     amount.String(),
		Value:      orZero(value).String(),
	})
	return TradeResult{TransactionHash: submitted.TxHash, Receipt: receipt}, nil
}

// Submissions lists journaled submissions, newest first.
func (g *Gateway) Submissions(ctx context.Context, filter SubmissionQueryFilter) ([]domain.Submission, error) {
	if g.journal == nil {
		return nil, ErrJournalDisabled
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return g.journal.QuerySubmissions(ctx, filter)
}

// execute journals, sends and confirms one call.
func (g *Gateway) execute(ctx context.Context, client *TxClient, operation domain.Operation, subject common.Address, call Call) (Submitted, *types.Receipt, error) {
	network := client.Network()
	sender, err := client.AccountAddress(ctx)
	if err != nil {
		return Submitted{}, nil, err
	}

	now := g.now().UTC()
	submission := domain.Submission{
		ID:        uuid.NewString(),
		Operation: operation,
		ChainID:   network.ChainID,
		Sender:    sender.Hex(),
		Target:    call.To.Hex(),
		Subject:   subject.Hex(),
		Status:    domain.SubmissionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.recordSubmission(ctx, submission)

	submitted, err := client.SendTransaction(ctx, call)
	var receipt *types.Receipt
	if err == nil {
		receipt, err = client.WaitForTransaction(ctx, submitted.TxHash)
	}
	g.completeSubmission(ctx, submission.ID, submitted, err)
	if err != nil {
		return submitted, nil, err
	}
	slog.Info("transaction confirmed",
		"operation", operation,
		"network", network.Name,
		"tx_hash", submitted.TxHash.Hex(),
		"block_number", receipt.BlockNumber,
	)
	return submitted, receipt, nil
}

func (g *Gateway) recordSubmission(ctx context.Context, submission domain.Submission) {
	if g.journal == nil {
		return
	}
	if err := g.journal.RecordSubmission(ctx, submission); err != nil {
		slog.Warn("journal record failed", "id", submission.ID, "err", err)
	}
}

func (g *Gateway) completeSubmission(ctx context.Context, id string, submitted Submitted, sendErr error) {
	if g.journal == nil {
		return
	}
	outcome := domain.SubmissionOutcome{Status: domain.SubmissionConfirmed}
	if submitted.UserOpHash != (common.Hash{}) {
		outcome.UserOpHash = submitted.UserOpHash.Hex()
	}
	if submitted.TxHash != (common.Hash{}) {
		outcome.TxHash = submitted.TxHash.Hex()
	}
	if sendErr != nil {
		classified := classify(sendErr)
		outcome.Status = domain.SubmissionFailed
		outcome.ErrorKind = classified.Kind
		outcome.ErrorMessage = classified.Error()
	}
	// The outcome is written even when the caller went away.
	ctx = context.WithoutCancel(ctx)
	if err := g.journal.CompleteSubmission(ctx, id, outcome); err != nil {
		slog.Warn("journal update failed", "id", id, "err", err)
	}
}

func (g *Gateway) publish(ctx context.Context, event streaming.Event) {
	if g.events == nil {
		return
	}
	event.Timestamp = g.now().Unix()
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.HasTraceID() {
		event.TraceID = spanCtx.TraceID().String()
	}
	if err := g.events.PublishEvent(ctx, event); err != nil {
		slog.Warn("event publish failed", "type", event.Type, "tx_hash", event.TxHash, "err", err)
	}
}

// begin opens the operation span. The returned func classifies the error,
// closes the span and reports the outcome.
func (g *Gateway) begin(ctx context.Context, operation string) (context.Context, func(error) error) {
	ctx, span := otel.Tracer("aagateway/gateway").Start(ctx, "gateway."+operation)
	start := time.Now()
	return ctx, func(err error) error {
		defer span.End()
		outcome := "ok"
		var classified *domain.Error
		if err != nil {
			classified = classify(err)
			outcome = string(classified.Kind)
			span.SetAttributes(attribute.String("error.kind", outcome))
			span.RecordError(err)
			span.SetStatus(codes.Error, classified.Error())
			if classified.Kind != domain.KindValidation && classified.Kind != domain.KindInsufficientFunds {
				slog.Error("operation failed", "operation", operation, "kind", classified.Kind, "err", err)
			}
		}
		if g.observer != nil {
			g.observer.OnOperation(operation, outcome, time.Since(start))
		}
		if classified == nil {
			return nil
		}
		return classified
	}
}

func parseAddress(raw, missing, invalid string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, domain.NewValidationError(missing)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, domain.NewValidationError(invalid)
	}
	return common.HexToAddress(raw), nil
}

func parseTradeAddresses(tokenRaw, userRaw string) (common.Address, common.Address, error) {
	token, err := parseAddress(tokenRaw, "Token address is required", "Invalid token address")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	user, err := parseAddress(userRaw, "User address is required", "Invalid user address")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token, user, nil
}

func parseRequiredUint(raw, missing, field string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.NewValidationError(missing)
	}
	return parseOptionalUint(raw, field)
}

func parseOptionalUint(raw, field string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, err := units.ParseUint(raw)
	if err != nil {
		return nil, domain.NewValidationError("Invalid " + field)
	}
	return value, nil
}

func orZero(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value
}
