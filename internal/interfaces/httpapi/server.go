package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aagateway/internal/application"
	"aagateway/internal/domain"

	"github.com/ethereum/go-ethereum/core/types"
)

const maxBodyBytes = 1 << 20

// Gateway is the application surface served over HTTP.
type Gateway interface {
	SetPoints(ctx context.Context, to string) (application.SetPointsResult, error)
	GetPoints(ctx context.Context, address string) (application.PointsResult, error)
	CreateToken(ctx context.Context, input application.CreateTokenInput) (application.CreateTokenResult, error)
	SellTokens(ctx context.Context, input application.SellTokensInput) (application.TradeResult, error)
	BuyTokens(ctx context.Context, input application.BuyTokensInput) (application.TradeResult, error)
	Submissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.Submission, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Options struct {
	// Prefix mounts every route under a path such as "/api".
	Prefix      string
	Idempotency IdempotencyStore
	Limiter     *RateLimiter
	Checks      []Check
	BuildInfo   BuildInfo
}

type Server struct {
	gateway     Gateway
	metrics     *Metrics
	prefix      string
	idempotency IdempotencyStore
	limiter     *RateLimiter
	checks      []Check
	buildInfo   BuildInfo
}

func NewServer(gateway Gateway, metrics *Metrics, opts Options) (*Server, error) {
	if gateway == nil {
		return nil, errors.New("http server gateway must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	prefix := strings.TrimRight(opts.Prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Server{
		gateway:     gateway,
		metrics:     metrics,
		prefix:      prefix,
		idempotency: opts.Idempotency,
		limiter:     opts.Limiter,
		checks:      opts.Checks,
		buildInfo:   opts.BuildInfo,
	}, nil
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, http.MethodPost, "/setPoints", s.write(s.handleSetPoints))
	s.route(mux, http.MethodGet, "/getPoints", s.rateLimited(http.HandlerFunc(s.handleGetPoints)))
	s.route(mux, http.MethodPost, "/createToken", s.write(s.handleCreateToken))
	s.route(mux, http.MethodPost, "/sell-tokens", s.write(s.handleSellTokens))
	s.route(mux, http.MethodPost, "/buy-tokens", s.write(s.handleBuyTokens))
	s.route(mux, http.MethodGet, "/transactions", http.HandlerFunc(s.handleTransactions))
	s.route(mux, http.MethodGet, "/healthz", http.HandlerFunc(s.handleHealth))
	s.route(mux, http.MethodGet, "/readyz", http.HandlerFunc(s.handleReady))
	s.route(mux, http.MethodGet, "/version", http.HandlerFunc(s.handleVersion))
	mux.Handle(http.MethodGet+" "+s.prefix+"/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) route(mux *http.ServeMux, method, path string, handler http.Handler) {
	mux.Handle(method+" "+s.prefix+path, s.metrics.instrument(path, handler))
}

// write wraps the handlers that submit user operations.
func (s *Server) write(handler http.HandlerFunc) http.Handler {
	return s.rateLimited(s.idempotent(handler))
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening", "addr", addr, "prefix", s.prefix)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type setPointsRequest struct {
	To string `json:"to"`
}

type createTokenRequest struct {
	Name                string     `json:"name"`
	Symbol              string     `json:"symbol"`
	InitialSupply       flexNumber `json:"initialSupply"`
	MaxSupply           flexNumber `json:"maxSupply"`
	InitialPrice        flexNumber `json:"initialPrice"`
	CreatorLockupPeriod flexNumber `json:"creatorLockupPeriod"`
	LockLiquidity       bool       `json:"lockLiquidity"`
	LiquidityLockPeriod flexNumber `json:"liquidityLockPeriod"`
	UserAddress         string     `json:"userAddress"`
}

type sellTokensRequest struct {
	TokenAddress string     `json:"tokenAddress"`
	TokenAmount  flexNumber `json:"tokenAmount"`
	UserAddress  string     `json:"userAddress"`
}

type buyTokensRequest struct {
	TokenAddress       string     `json:"tokenAddress"`
	DesiredTokenAmount flexNumber `json:"desiredTokenAmount"`
	EthAmount          flexNumber `json:"ethAmount"`
	UserAddress        string     `json:"userAddress"`
}

type setPointsResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash"`
}

type pointsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Points  string `json:"points"`
	Address string `json:"address"`
}

type createTokenResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	TokenAddress string `json:"tokenAddress"`
	CreationTx   string `json:"creationTx"`
	Creator      string `json:"creator"`
}

type tradeResponse struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	TransactionHash string         `json:"transactionHash"`
	Receipt         *types.Receipt `json:"receipt"`
}

type failure struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Error   string           `json:"error,omitempty"`
	Details any              `json:"details,omitempty"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

func (s *Server) handleSetPoints(w http.ResponseWriter, r *http.Request) {
	var req setPointsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.gateway.SetPoints(r.Context(), req.To)
	if err != nil {
		respondFailure(w, err, "Failed to update minted status")
		return
	}
	respondJSON(w, http.StatusOK, setPointsResponse{
		Success:         true,
		Message:         "Minted status updated",
		TransactionHash: result.TransactionHash.Hex(),
	})
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	result, err := s.gateway.GetPoints(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		respondFailure(w, err, "Failed to get points")
		return
	}
	respondJSON(w, http.StatusOK, pointsResponse{
		Success: true,
		Message: "Points retrieved successfully",
		Points:  result.Points.String(),
		Address: result.Address,
	})
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.gateway.CreateToken(r.Context(), application.CreateTokenInput{
		Name:                req.Name,
		Symbol:              req.Symbol,
		InitialSupply:       string(req.InitialSupply),
		MaxSupply:           string(req.MaxSupply),
		InitialPrice:        string(req.InitialPrice),
		CreatorLockupPeriod: string(req.CreatorLockupPeriod),
		LockLiquidity:       req.LockLiquidity,
		LiquidityLockPeriod: string(req.LiquidityLockPeriod),
		UserAddress:         req.UserAddress,
	})
	if err != nil {
		respondFailure(w, err, "Failed to create token")
		return
	}
	respondJSON(w, http.StatusOK, createTokenResponse{
		Success:      true,
		Message:      "Token created successfully",
		TokenAddress: result.TokenAddress,
		CreationTx:   result.CreationTx.Hex(),
		Creator:      result.Creator,
	})
}

func (s *Server) handleSellTokens(w http.ResponseWriter, r *http.Request) {
	var req sellTokensRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.gateway.SellTokens(r.Context(), application.SellTokensInput{
		TokenAddress: req.TokenAddress,
		TokenAmount:  string(req.TokenAmount),
		UserAddress:  req.UserAddress,
	})
	if err != nil {
		respondFailure(w, err, "Failed to sell tokens")
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{
		Success:         true,
		Message:         "Tokens sold successfully",
		TransactionHash: result.TransactionHash.Hex(),
		Receipt:         result.Receipt,
	})
}

func (s *Server) handleBuyTokens(w http.ResponseWriter, r *http.Request) {
	var req buyTokensRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.gateway.BuyTokens(r.Context(), application.BuyTokensInput{
		TokenAddress:       req.TokenAddress,
		DesiredTokenAmount: string(req.DesiredTokenAmount),
		EthAmount:          string(req.EthAmount),
		UserAddress:        req.UserAddress,
	})
	if err != nil {
		respondFailure(w, err, "Failed to buy tokens")
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{
		Success:         true,
		Message:         "Tokens purchased successfully",
		TransactionHash: result.TransactionHash.Hex(),
		Receipt:         result.Receipt,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSubmissionFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	submissions, err := s.gateway.Submissions(r.Context(), filter)
	if errors.Is(err, application.ErrJournalDisabled) {
		respondError(w, http.StatusNotFound, "journal disabled")
		return
	}
	if err != nil {
		slog.Error("query submissions failed", "err", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if submissions == nil {
		submissions = []domain.Submission{}
	}
	respondJSON(w, http.StatusOK, submissions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, check := range s.checks {
		if err := check.Probe(ctx); err != nil {
			slog.Warn("readiness check failed", "check", check.Name, "err", err)
			respondError(w, http.StatusServiceUnavailable, check.Name+" not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parseSubmissionFilter(r *http.Request) (application.SubmissionQueryFilter, error) {
	query := r.URL.Query()
	filter := application.SubmissionQueryFilter{
		Operation: domain.Operation(query.Get("operation")),
		Sender:    strings.ToLower(query.Get("sender")),
		Subject:   strings.ToLower(query.Get("subject")),
		Status:    domain.SubmissionStatus(query.Get("status")),
	}
	switch filter.Operation {
	case "", domain.OperationSetPoints, domain.OperationCreateToken, domain.OperationSellTokens, domain.OperationBuyTokens:
	default:
		return filter, fmt.Errorf("invalid operation %q", filter.Operation)
	}
	switch filter.Status {
	case "", domain.SubmissionPending, domain.SubmissionConfirmed, domain.SubmissionFailed:
	default:
		return filter, fmt.Errorf("invalid status %q", filter.Status)
	}
	if raw := query.Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = value
	}
	return filter, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, failure{
			Message: "Invalid request body",
			Error:   err.Error(),
			Kind:    domain.KindValidation,
		})
		return false
	}
	return true
}

// respondFailure serialises a gateway error. Validation and funding problems
// are the caller's to fix and answer 400 with their own message; anything
// else is a 500 under the route's failure message with the raw cause.
func respondFailure(w http.ResponseWriter, err error, message string) {
	var gwErr *domain.Error
	if !errors.As(err, &gwErr) {
		gwErr = &domain.Error{Kind: domain.KindUnknown, Err: err}
	}
	switch gwErr.Kind {
	case domain.KindValidation:
		respondJSON(w, http.StatusBadRequest, failure{Message: gwErr.Message, Error: gwErr.Message, Kind: gwErr.Kind})
	case domain.KindInsufficientFunds:
		respondJSON(w, http.StatusBadRequest, failure{Message: gwErr.Message, Details: gwErr.Details, Kind: gwErr.Kind})
	default:
		respondJSON(w, http.StatusInternalServerError, failure{
			Message: message,
			Error:   gwErr.Cause(),
			Details: gwErr.Details,
			Kind:    gwErr.Kind,
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
