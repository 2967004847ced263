// Package httpapi exposes the wallet engine over REST.
//
// Routes are registered on a gorilla/mux router so the package can be
// mounted under any prefix. Domain rejections (unknown model, pool
// exhausted) are reported as 200 responses with a rejected outcome;
// HTTP error statuses are reserved for transport-level problems.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/meter"
	"github.com/xraph/wallet/types"
)

// Identity resolves the caller's account from a request. Implementations
// typically read a session cookie or bearer token. When nil, the account
// in the URL is trusted as-is.
type Identity interface {
	Authorize(r *http.Request, accountID string) error
}

// IdentityFunc adapts a function to the Identity interface.
type IdentityFunc func(r *http.Request, accountID string) error

// Authorize implements Identity.
func (f IdentityFunc) Authorize(r *http.Request, accountID string) error {
	return f(r, accountID)
}

// Handler manages HTTP request handlers for the wallet engine.
type Handler struct {
	engine   *wallet.Wallet
	identity Identity
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(engine *wallet.Wallet, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIdentity sets the identity collaborator used to authorize requests.
func WithIdentity(id Identity) HandlerOption {
	return func(h *Handler) { h.identity = id }
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// SetupRoutes configures API routes.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods("GET")
	router.HandleFunc("/accounts/{id}/usage", h.Consume).Methods("POST")
	router.HandleFunc("/accounts/{id}/usage", h.ListUsage).Methods("GET")
	router.HandleFunc("/accounts/{id}/credit", h.Credit).Methods("POST")

	router.HandleFunc("/health", h.Health).Methods("GET")
}

// CreateAccount handles POST /accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.engine.CreateAccount(r.Context(), req.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, acct.Snapshot())
}

// GetBalance handles GET /accounts/{id}/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorized(w, r)
	if !ok {
		return
	}

	snap, err := h.engine.Balance(r.Context(), accountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// Consume handles POST /accounts/{id}/usage.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req struct {
		ModelID        string            `json:"model_id"`
		TokensUsed     int64             `json:"tokens_used"`
		IdempotencyKey string            `json:"idempotency_key,omitempty"`
		Metadata       map[string]string `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.Consume(r.Context(), wallet.ConsumeRequest{
		AccountID:      accountID,
		ModelID:        req.ModelID,
		TokensUsed:     req.TokensUsed,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		if wallet.IsRejection(err) && !errors.Is(err, wallet.ErrInvalidAmount) {
			// The request was understood and answered; the answer is "no".
			// A non-positive amount is a malformed request, not an answer.
			respondJSON(w, http.StatusOK, map[string]any{
				"outcome": "rejected",
				"reason":  wallet.RejectionReason(err),
			})
			return
		}
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"outcome":   "applied",
		"duplicate": res.Duplicate,
		"plan":      res.Plan,
		"snapshot":  res.Snapshot,
	})
}

// ListUsage handles GET /accounts/{id}/usage.
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorized(w, r)
	if !ok {
		return
	}

	opts, err := usageQueryOpts(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.engine.Usage(r.Context(), accountID, opts)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Credit handles POST /accounts/{id}/credit.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var req struct {
		Pool   string `json:"pool"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pool, ok := account.ParsePool(req.Pool)
	if !ok {
		respondReason(w, http.StatusBadRequest, fmt.Errorf("%w: %s", wallet.ErrUnknownPool, req.Pool))
		return
	}

	snap, err := h.engine.Credit(r.Context(), accountID, pool, types.Tokens(req.Amount))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// authorized extracts the account ID from the route and runs the identity
// check. It writes the error response itself when the check fails.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := mux.Vars(r)["id"]
	if accountID == "" {
		respondError(w, http.StatusBadRequest, "missing account id")
		return "", false
	}

	if h.identity != nil {
		if err := h.identity.Authorize(r, accountID); err != nil {
			respondError(w, http.StatusForbidden, "not authorized for this account")
			return "", false
		}
	}
	return accountID, true
}

// respondDomainError maps engine errors to HTTP statuses. The body
// carries the stable reason token alongside the error message whenever
// the error is a domain rejection.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case wallet.IsNotFound(err):
		respondReason(w, http.StatusNotFound, err)
	case errors.Is(err, wallet.ErrAccountExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, wallet.ErrUnknownModel),
		errors.Is(err, wallet.ErrUnknownPool), isValidation(err):
		respondReason(w, http.StatusBadRequest, err)
	case errors.Is(err, wallet.ErrInsufficientBalance):
		respondReason(w, http.StatusPaymentRequired, err)
	case errors.Is(err, wallet.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case wallet.IsRetryable(err):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("unhandled wallet error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondReason writes an error body with the rejection reason token
// when the error maps to one.
func respondReason(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	if reason := wallet.RejectionReason(err); reason != "" {
		body["reason"] = reason
	}
	respondJSON(w, status, body)
}

func isValidation(err error) bool {
	var verr wallet.ValidationError
	return errors.As(err, &verr)
}

func usageQueryOpts(r *http.Request) (meter.QueryOpts, error) {
	q := r.URL.Query()
	opts := meter.QueryOpts{
		ModelID: q.Get("model"),
	}

	if p := q.Get("pool"); p != "" {
		pool, ok := account.ParsePool(p)
		if !ok {
			return opts, errors.New("unknown pool: " + p)
		}
		opts.Pool = pool
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("invalid limit")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("invalid offset")
		}
		opts.Offset = n
	}
	if v := q.Get("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("invalid start time")
		}
		opts.Start = ts
	}
	if v := q.Get("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("invalid end time")
		}
		opts.End = ts
	}

	return opts, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
