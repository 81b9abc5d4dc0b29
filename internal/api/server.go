// Package api exposes the vault over HTTP. Reads and the keeper endpoints are
// public; deposits and owner operations identify the caller by JWT subject.
package api

import (
	"context"
	"encoding/hex"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/recorder"
)

// Vault is the engine surface served over HTTP; *fund.Manager implements it.
type Vault interface {
	Status() fund.Status
	BalanceOf(user common.Address) *uint256.Int
	UserAt(index uint64) (common.Address, error)
	Deposit(ctx context.Context, user common.Address, amount *uint256.Int) error
	DepositToken(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	Withdraw(ctx context.Context, caller, to common.Address, amount *uint256.Int) error
	WithdrawAsset(ctx context.Context, caller, asset, to common.Address, amount *uint256.Int) error
	ChangeAmount(ctx context.Context, caller common.Address, amount *uint256.Int) error
	ChangeInterval(ctx context.Context, caller common.Address, interval time.Duration) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	CheckUpkeep(ctx context.Context, checkData []byte) (bool, []byte, error)
	PerformUpkeep(ctx context.Context, performData []byte) (model.UpkeepReport, error)
}

// Server routes HTTP requests to the vault.
type Server struct {
	router    *chi.Mux
	vault     Vault
	recorder  recorder.Recorder
	gatherer  prometheus.Gatherer
	validator *Validator
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithRecorder serves upkeep history from rec.
func WithRecorder(rec recorder.Recorder) Option { return func(s *Server) { s.recorder = rec } }

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithRateLimit caps mutating requests across all callers.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewServer wires routes for vault. Tokens are verified with v.
func NewServer(vault Vault, v *Validator, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		vault:     vault,
		recorder:  recorder.NewNoopRecorder(),
		validator: v,
		limiter:   rate.NewLimiter(rate.Limit(20), 40),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}

		r.Route("/v1/vault", func(r chi.Router) {
			r.Get("/", s.getStatus)
			r.Get("/users/{index}", s.getUser)
			r.Get("/balances/{address}", s.getBalance)
		})
		r.Route("/v1/upkeep", func(r chi.Router) {
			r.Get("/", s.checkUpkeep)
			r.Get("/history", s.upkeepHistory)
			r.With(s.rateLimit).Post("/perform", s.performUpkeep)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.validator, s.logger))
		r.Use(s.rateLimit)

		r.Post("/v1/deposits", s.deposit)
		r.Post("/v1/withdrawals", s.withdraw)
		r.Route("/v1/policy", func(r chi.Router) {
			r.Put("/amount", s.changeAmount)
			r.Put("/interval", s.changeInterval)
			r.Put("/owner", s.transferOwnership)
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.Status())
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeError(w, xerrors.New(xerrors.CodeIndexOutOfRange, "index must be a non-negative integer"))
		return
	}
	user, err := s.vault.UserAt(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index, "user": user.Hex()})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.Hex(), "balance": s.vault.BalanceOf(user).Dec()})
}

type upkeepCheck struct {
	UpkeepNeeded bool   `json:"upkeep_needed"`
	PerformData  string `json:"perform_data,omitempty"`
}

func (s *Server) checkUpkeep(w http.ResponseWriter, r *http.Request) {
	needed, data, err := s.vault.CheckUpkeep(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := upkeepCheck{UpkeepNeeded: needed}
	if len(data) > 0 {
		resp.PerformData = "0x" + hex.EncodeToString(data)
	}
	writeJSON(w, http.StatusOK, resp)
}

type performRequest struct {
	PerformData string `json:"perform_data"`
}

func (s *Server) performUpkeep(w http.ResponseWriter, r *http.Request) {
	var req performRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	data, err := hex.DecodeString(strings.TrimPrefix(req.PerformData, "0x"))
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidAmount, err, "perform_data must be hex"))
		return
	}
	report, err := s.vault.PerformUpkeep(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPerformResponse(report))
}

type performResponse struct {
	RunID       string `json:"run_id"`
	Mode        string `json:"mode"`
	PerformedAt int64  `json:"performed_at"`
	Recipient   string `json:"recipient,omitempty"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out,omitempty"`
	Fee         string `json:"fee,omitempty"`
	PayoutError string `json:"payout_error,omitempty"`
}

func newPerformResponse(r model.UpkeepReport) performResponse {
	resp := performResponse{
		RunID:       r.RunID,
		Mode:        string(r.Mode),
		PerformedAt: r.PerformedAt.Unix(),
		AmountIn:    model.AmountString(r.AmountIn),
	}
	if r.Recipient != (common.Address{}) {
		resp.Recipient = r.Recipient.Hex()
	}
	if r.Swap != nil {
		resp.AmountOut = model.AmountString(r.Swap.AmountOut)
		resp.Fee = model.AmountString(r.Swap.Fee)
	}
	if r.PayoutErr != nil {
		resp.PayoutError = r.PayoutErr.Error()
	}
	return resp
}

func (s *Server) upkeepHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, xerrors.New(xerrors.CodeInvalidAmount, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	events, err := s.recorder.RecentUpkeeps(limit)
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read upkeep history"))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type depositRequest struct {
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	if req.Asset == "" {
		err = s.vault.Deposit(r.Context(), caller, amount)
	} else {
		var asset common.Address
		if asset, err = parseAddress(req.Asset); err == nil {
			err = s.vault.DepositToken(r.Context(), caller, asset, amount)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user": caller.Hex(), "balance": s.vault.BalanceOf(caller).Dec()})
}

type withdrawRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	// Asset is optional; empty means the source asset.
	Asset string `json:"asset,omitempty"`
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	if req.Asset == "" {
		err = s.vault.Withdraw(r.Context(), caller, to, amount)
	} else {
		var asset common.Address
		if asset, err = parseAddress(req.Asset); err == nil {
			err = s.vault.WithdrawAsset(r.Context(), caller, asset, to, amount)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) changeAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.vault.ChangeAmount(r.Context(), callerFrom(r.Context()), amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.vault.Status())
}

// maxIntervalSeconds is the largest interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

type intervalRequest struct {
	IntervalSeconds int64 `json:"interval_seconds"`
}

func (s *Server) changeInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IntervalSeconds > maxIntervalSeconds {
		writeError(w, xerrors.Newf(xerrors.CodeInvalidAmount, "interval of %d seconds is out of range", req.IntervalSeconds))
		return
	}
	interval := time.Duration(req.IntervalSeconds) * time.Second
	if err := s.vault.ChangeInterval(r.Context(), callerFrom(r.Context()), interval); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.vault.Status())
}

type ownerRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.vault.TransferOwnership(r.Context(), callerFrom(r.Context()), owner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.vault.Status())
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidIdentity, "not a hex address", xerrors.WithMetadata("value", s))
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := model.ParseAmount(s)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidAmount, err, "invalid amount")
	}
	return amount, nil
}
