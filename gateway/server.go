package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakenet/core/types"
	nativecommon "stakenet/native/common"
	"stakenet/native/referral"
	"stakenet/native/stake"
	"stakenet/observability/metrics"
	"stakenet/state"
)

// Config carries the gateway's own settings, distinct from engine parameters.
type Config struct {
	OwnerToken       string
	RequestsPerMin   uint32
	IPRequestsPerMin uint32
	HeightSource     func() uint64
}

// Server exposes the staking engine and referral ledger over JSON/HTTP. All
// mutating calls are serialized behind one mutex, matching the single-writer
// execution model the engines assume.
type Server struct {
	mu        sync.Mutex
	engine    *stake.Engine
	ledger    *referral.Ledger
	store     *state.Store
	pauses    *nativecommon.PauseSet
	limiter   *quotaLimiter
	ipLimiter *ipRateLimiter
	events    *bufferedEmitter
	height    func() uint64
	owner     string
	log       *slog.Logger
	metrics   *metrics.StakingMetrics
}

// NewServer wires the gateway. The engine and ledger must already share the
// same store and operator registration.
func NewServer(engine *stake.Engine, ledger *referral.Ledger, store *state.Store, pauses *nativecommon.PauseSet, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{
		engine:    engine,
		ledger:    ledger,
		store:     store,
		pauses:    pauses,
		limiter:   newQuotaLimiter(cfg.RequestsPerMin),
		ipLimiter: newIPRateLimiter(cfg.IPRequestsPerMin),
		height:    cfg.HeightSource,
		owner:     strings.TrimSpace(cfg.OwnerToken),
		log:       log,
		metrics:   metrics.Staking(),
	}
	// Events raised inside a transaction stay buffered until the overlay
	// flushed, so a rolled-back operation never reaches logs or counters.
	srv.events = newBufferedEmitter(newObservingEmitter(log, srv.metrics))
	engine.SetEmitter(srv.events)
	ledger.SetEmitter(srv.events)
	return srv
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.ipLimiter.middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/stake", func(sr chi.Router) {
		sr.Post("/deposit", s.handleDeposit)
		sr.Post("/withdraw", s.handleWithdraw)
		sr.Get("/pool", s.handlePool)
		sr.Get("/position/{address}", s.handlePosition)
		sr.Get("/pending/{address}", s.handlePending)
	})

	r.Route("/v1/referral", func(sr chi.Router) {
		sr.Post("/withdraw", s.handleReferralWithdraw)
		sr.Get("/entry/{address}", s.handleReferralEntry)
		sr.Get("/binding/{address}", s.handleReferralBinding)
	})

	r.Route("/v1/admin", func(sr chi.Router) {
		sr.Use(s.requireOwner)
		sr.Post("/reward-rate", s.handleSetRewardRate)
		sr.Post("/treasury", s.handleSetTreasury)
		sr.Post("/commission-rate", s.handleSetCommissionRate)
		sr.Post("/min-commission", s.handleSetMinCommission)
		sr.Post("/pause", s.handlePause)
		sr.Post("/resume", s.handleResume)
		sr.Post("/sync-pool", s.handleSyncPool)
		sr.Post("/fund", s.handleFund)
	})

	return r
}

// requireOwner gates the administrative surface behind the configured bearer
// token. An unconfigured token closes the surface entirely.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
		if s.owner == "" || token != s.owner {
			s.metrics.ObserveFailure("unauthorized")
			writeJSONError(w, http.StatusUnauthorized, "owner credentials required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type depositRequest struct {
	User     string `json:"user"`
	Amount   string `json:"amount"`
	Referrer string `json:"referrer,omitempty"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var referrer [20]byte
	if strings.TrimSpace(req.Referrer) != "" {
		referrer, err = parseAddress(req.Referrer)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !s.limiter.Allow(user) {
		writeJSONError(w, http.StatusTooManyRequests, "request quota exceeded")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetBlockHeight(s.height())
	err = s.store.Update(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		s.ledger.SetState(tx)
		return s.engine.Deposit(user, amount, referrer)
	})
	if err != nil {
		s.events.Discard()
		s.writeEngineError(w, err)
		return
	}
	s.events.Flush()
	s.metrics.ObserveDeposit()
	s.refreshPoolGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type withdrawRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.limiter.Allow(user) {
		writeJSONError(w, http.StatusTooManyRequests, "request quota exceeded")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetBlockHeight(s.height())
	err = s.store.Update(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		s.ledger.SetState(tx)
		return s.engine.Withdraw(user, amount)
	})
	if err != nil {
		s.events.Discard()
		s.writeEngineError(w, err)
		return
	}
	s.events.Flush()
	s.metrics.ObserveWithdraw()
	s.refreshPoolGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pool *stake.Pool
	err := s.store.View(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		var viewErr error
		pool, viewErr = s.engine.PoolState()
		return viewErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalStaked":       pool.TotalStaked.String(),
		"accRewardPerShare": pool.AccRewardPerShare.String(),
		"lastRewardBlock":   pool.LastRewardBlock,
		"blockHeight":       s.height(),
		"rewardRate":        pool.RewardRate.String(),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var position *stake.Position
	err = s.store.View(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		var viewErr error
		position, viewErr = s.engine.PositionOf(addr)
		return viewErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":    common.Address(addr).Hex(),
		"amount":     position.Amount.String(),
		"rewardDebt": position.RewardDebt.String(),
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetBlockHeight(s.height())
	var pending *big.Int
	err = s.store.View(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		var viewErr error
		pending, viewErr = s.engine.PendingReward(addr)
		return viewErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": common.Address(addr).Hex(),
		"pending": pending.String(),
	})
}

type referralWithdrawRequest struct {
	Referrer string `json:"referrer"`
}

func (s *Server) handleReferralWithdraw(w http.ResponseWriter, r *http.Request) {
	var req referralWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	referrer, err := parseAddress(req.Referrer)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.limiter.Allow(referrer) {
		writeJSONError(w, http.StatusTooManyRequests, "request quota exceeded")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var paid *big.Int
	err = s.store.Update(func(tx *state.Tx) error {
		s.ledger.SetState(tx)
		var withdrawErr error
		paid, withdrawErr = s.ledger.WithdrawPending(referrer)
		return withdrawErr
	})
	if err != nil {
		s.events.Discard()
		s.writeEngineError(w, err)
		return
	}
	s.events.Flush()
	writeJSON(w, http.StatusOK, map[string]string{
		"referrer": common.Address(referrer).Hex(),
		"paid":     paid.String(),
	})
}

func (s *Server) handleReferralEntry(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var entry *referral.LedgerEntry
	err = s.store.View(func(tx *state.Tx) error {
		s.ledger.SetState(tx)
		var viewErr error
		entry, viewErr = s.ledger.EntryOf(addr)
		return viewErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"referrer":          common.Address(addr).Hex(),
		"referralCount":     entry.ReferralCount,
		"totalCommission":   entry.TotalCommission.String(),
		"pendingCommission": entry.PendingCommission.String(),
	})
}

func (s *Server) handleReferralBinding(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		referrer [20]byte
		bound    bool
	)
	err = s.store.View(func(tx *state.Tx) error {
		s.ledger.SetState(tx)
		var viewErr error
		referrer, bound, viewErr = s.ledger.ReferrerOf(addr)
		return viewErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := map[string]any{"user": common.Address(addr).Hex(), "bound": bound}
	if bound {
		resp["referrer"] = common.Address(referrer).Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

type rateRequest struct {
	Rate string `json:"rate"`
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetBlockHeight(s.height())
	err = s.store.Update(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		return s.engine.SetRewardRate(rate)
	})
	if err != nil {
		s.events.Discard()
		s.writeEngineError(w, err)
		return
	}
	s.events.Flush()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addressRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.SetTreasury(addr); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.ledger.SetTreasury(addr); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bpsRequest struct {
	Bps uint64 `json:"bps"`
}

func (s *Server) handleSetCommissionRate(w http.ResponseWriter, r *http.Request) {
	var req bpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.SetCommissionBps(req.Bps); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleSetMinCommission(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.SetMinWithdrawAmount(amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type moduleRequest struct {
	Module string `json:"module"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.pauses.Pause(strings.TrimSpace(req.Module))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.pauses.Resume(strings.TrimSpace(req.Module))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncPool(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var surplus *big.Int
	err := s.store.Update(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		var syncErr error
		surplus, syncErr = s.engine.SyncPoolBalance()
		return syncErr
	})
	if err != nil {
		s.events.Discard()
		s.writeEngineError(w, err)
		return
	}
	s.events.Flush()
	writeJSON(w, http.StatusOK, map[string]string{"swept": surplus.String()})
}

type fundRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// handleFund credits an account balance directly. It exists for treasury
// top-ups and local testing; the asset itself has no mint path through the
// engine.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.store.Update(func(tx *state.Tx) error {
		account, getErr := tx.GetAccount(addr)
		if getErr != nil {
			return getErr
		}
		if account == nil {
			account = &types.Account{}
		}
		account.EnsureBalance()
		account.Balance = new(big.Int).Add(account.Balance, amount)
		return tx.PutAccount(addr, account)
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) refreshPoolGauge() {
	_ = s.store.View(func(tx *state.Tx) error {
		s.engine.SetState(tx)
		pool, err := s.engine.PoolState()
		if err == nil {
			s.metrics.SetTotalStaked(pool.TotalStaked)
		}
		return nil
	})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := "internal"
	switch {
	case errors.Is(err, stake.ErrInvalidAmount), errors.Is(err, stake.ErrInvalidRewardRate),
		errors.Is(err, stake.ErrInvalidTreasury), errors.Is(err, referral.ErrInvalidTreasury),
		errors.Is(err, referral.ErrCommissionRateBound), errors.Is(err, referral.ErrWithdrawBound):
		status, reason = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, stake.ErrInsufficientBalance):
		status, reason = http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, stake.ErrTreasuryInsufficient), errors.Is(err, referral.ErrTreasuryInsufficient),
		errors.Is(err, referral.ErrCollectorInsolvent):
		status, reason = http.StatusConflict, "transfer_failure"
	case errors.Is(err, referral.ErrUnauthorized):
		status, reason = http.StatusForbidden, "unauthorized"
	case errors.Is(err, nativecommon.ErrModulePaused):
		status, reason = http.StatusServiceUnavailable, "paused"
	case errors.Is(err, nativecommon.ErrReentrancy):
		status, reason = http.StatusConflict, "reentrancy"
	}
	s.metrics.ObserveFailure(reason)
	s.log.Warn("operation rejected", "reason", reason, "error", err.Error())
	writeJSONError(w, status, err.Error())
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, errors.New("address must be a 0x-prefixed hex address")
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return [20]byte{}, errors.New("zero address not allowed")
	}
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a decimal integer")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount must not be negative")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
