package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "stakenet/native/common"
	"stakenet/native/referral"
	"stakenet/native/stake"
	"stakenet/state"
	"stakenet/storage"
)

const (
	testOwnerToken = "test-owner-token"
	userAddr       = "0x0000000000000000000000000000000000000011"
	referrerAddr   = "0x0000000000000000000000000000000000000022"
	treasuryAddr   = "0x00000000000000000000000000000000000000fe"
)

type testHarness struct {
	router http.Handler
	height uint64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{}

	store := state.NewStore(storage.NewMemDB())
	pauses := nativecommon.NewPauseSet(nil)

	var treasury [20]byte
	treasury[19] = 0xfe
	engine := stake.NewEngine(stake.ModuleAccount, treasury)
	engine.SetPauses(pauses)

	ledger := referral.NewLedger(referral.CollectorAccount, treasury)
	ledger.SetPauses(pauses)
	ledger.AddOperator(engine.ModuleAddress())
	engine.SetReferrals(ledger)

	srv := NewServer(engine, ledger, store, pauses, Config{
		OwnerToken:     testOwnerToken,
		RequestsPerMin: 0,
		HeightSource:   func() uint64 { return h.height },
	}, nil)
	h.router = srv.Router()
	return h
}

func (h *testHarness) do(t *testing.T, method, path string, body any, owner bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner {
		req.Header.Set("Authorization", "Bearer "+testOwnerToken)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestDepositWithdrawFlow(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": userAddr, "amount": "1000"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": treasuryAddr, "amount": "100000"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	h.height = 100
	rec = h.do(t, http.MethodPost, "/v1/admin/reward-rate", map[string]string{"rate": "10"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": userAddr, "amount": "1000"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	h.height = 110
	rec = h.do(t, http.MethodGet, "/v1/stake/pending/"+userAddr, nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "100", h.decode(t, rec)["pending"])

	rec = h.do(t, http.MethodPost, "/v1/stake/withdraw", map[string]string{"user": userAddr, "amount": "1000"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/stake/pool", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0", h.decode(t, rec)["totalStaked"])
}

func TestWithdrawBeyondPrincipalRejected(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": userAddr, "amount": "100"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": userAddr, "amount": "100"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/stake/withdraw", map[string]string{"user": userAddr, "amount": "101"}, false)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestReferralFlow(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": userAddr, "amount": "1000"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": treasuryAddr, "amount": "100000"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/reward-rate", map[string]string{"rate": "10"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{
		"user": userAddr, "amount": "1000", "referrer": referrerAddr,
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/referral/binding/"+userAddr, nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload := h.decode(t, rec)
	require.Equal(t, true, payload["bound"])

	// Settle 100 reward; 10% flows to the referrer.
	h.height = 10
	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": userAddr, "amount": "0"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/referral/entry/"+referrerAddr, nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload = h.decode(t, rec)
	require.Equal(t, "10", payload["pendingCommission"])

	// Below the dust floor: silent no-op.
	rec = h.do(t, http.MethodPost, "/v1/admin/min-commission", map[string]string{"amount": "50"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/referral/withdraw", map[string]string{"referrer": referrerAddr}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0", h.decode(t, rec)["paid"])

	rec = h.do(t, http.MethodPost, "/v1/admin/min-commission", map[string]string{"amount": "10"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/referral/withdraw", map[string]string{"referrer": referrerAddr}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "10", h.decode(t, rec)["paid"])
}

func TestAdminRequiresOwnerToken(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": userAddr, "amount": "1"}, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
}

func TestBadAddressRejected(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": "nope", "amount": "1"}, false)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestPauseBlocksDeposits(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/fund", map[string]string{"address": userAddr, "amount": "100"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/pause", map[string]string{"module": "staking"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": userAddr, "amount": "100"}, false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/admin/resume", map[string]string{"module": "staking"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/stake/deposit", map[string]string{"user": userAddr, "amount": "100"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
