package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wallet "github.com/xraph/wallet"
	"github.com/xraph/wallet/account"
	"github.com/xraph/wallet/store/memory"
)

func setupTestAPI(t *testing.T, opts ...HandlerOption) (*mux.Router, *wallet.Wallet) {
	t.Helper()

	w := wallet.New(memory.New(), wallet.WithMeterConfig(10, 10*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	router := mux.NewRouter()
	SetupRoutes(router, NewHandler(w, opts...))
	return router, w
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAccountEndpoint(t *testing.T) {
	router, _ := setupTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/accounts", map[string]string{"account_id": "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snap account.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "user-1", snap.AccountID)
	assert.EqualValues(t, account.InitialBuilderGrant, snap.Balance(account.PoolBuilder))

	rec = doJSON(t, router, http.MethodPost, "/accounts", map[string]string{"account_id": "user-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBalanceEndpoint(t *testing.T) {
	router, w := setupTestAPI(t)
	_, err := w.CreateAccount(context.Background(), "user-1")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/accounts/user-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap account.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, account.InitialBuilderGrant, snap.Balance(account.PoolBuilder))

	rec = doJSON(t, router, http.MethodGet, "/accounts/ghost/balance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsumeEndpoint(t *testing.T) {
	router, w := setupTestAPI(t)
	ctx := context.Background()
	_, err := w.CreateAccount(ctx, "user-1")
	require.NoError(t, err)
	_, err = w.Credit(ctx, "user-1", account.PoolClaude, 1000)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/accounts/user-1/usage", map[string]any{
		"model_id":    "claude-sonnet-4",
		"tokens_used": 200,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Outcome   string `json:"outcome"`
		Duplicate bool   `json:"duplicate"`
		Plan      struct {
			SourcePool    string `json:"source_pool"`
			DebitedAmount int64  `json:"debited_amount"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "applied", out.Outcome)
	assert.False(t, out.Duplicate)
	assert.Equal(t, "claude", out.Plan.SourcePool)
	assert.EqualValues(t, 200, out.Plan.DebitedAmount)
}

func TestConsumeEndpointRejection(t *testing.T) {
	router, w := setupTestAPI(t)
	_, err := w.CreateAccount(context.Background(), "user-1")
	require.NoError(t, err)

	// Unknown model is a domain answer, not a transport failure.
	rec := doJSON(t, router, http.MethodPost, "/accounts/user-1/usage", map[string]any{
		"model_id":    "palm-2",
		"tokens_used": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "rejected", out.Outcome)
	assert.Equal(t, wallet.ReasonUnknownModel, out.Reason)

	// Pool exhaustion returns the stable token, not the error prose,
	// so clients can switch on it.
	rec = doJSON(t, router, http.MethodPost, "/accounts/user-1/usage", map[string]any{
		"model_id":    "gpt-4o",
		"tokens_used": 1_000_000_000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "rejected", out.Outcome)
	assert.Equal(t, wallet.ReasonInsufficientBalance, out.Reason)
}

func TestConsumeEndpointMalformedBody(t *testing.T) {
	router, w := setupTestAPI(t)
	_, err := w.CreateAccount(context.Background(), "user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/accounts/user-1/usage", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/accounts/user-1/usage", map[string]any{
		"model_id":    "gpt-4o",
		"tokens_used": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditEndpoint(t *testing.T) {
	router, w := setupTestAPI(t)
	_, err := w.CreateAccount(context.Background(), "user-1")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/accounts/user-1/credit", map[string]any{
		"pool":   "gpt",
		"amount": 5000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snap account.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 5000, snap.Balance(account.PoolGPT))

	rec = doJSON(t, router, http.MethodPost, "/accounts/user-1/credit", map[string]any{
		"pool":   "gold",
		"amount": 5000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, wallet.ReasonUnknownPool, errBody.Reason)
}

func TestListUsageEndpoint(t *testing.T) {
	router, w := setupTestAPI(t)
	ctx := context.Background()
	_, err := w.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = w.Consume(ctx, wallet.ConsumeRequest{
		AccountID:  "user-1",
		ModelID:    "gpt-4o",
		TokensUsed: 25,
	})
	require.NoError(t, err)

	// Journal writes are batched; poll until the flush lands.
	var out struct {
		Count int `json:"count"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, router, http.MethodGet, "/accounts/user-1/usage", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		if out.Count > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, out.Count)

	rec := doJSON(t, router, http.MethodGet, "/accounts/user-1/usage?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentityGuard(t *testing.T) {
	denied := IdentityFunc(func(_ *http.Request, accountID string) error {
		if accountID != "user-1" {
			return errors.New("forbidden")
		}
		return nil
	})
	router, w := setupTestAPI(t, WithIdentity(denied))
	_, err := w.CreateAccount(context.Background(), "user-1")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/accounts/user-1/balance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/accounts/user-2/balance", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "healthy", out["status"])
}
