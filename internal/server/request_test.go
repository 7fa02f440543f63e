package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	reqdomain "github.com/smallbiznis/bloodbridge/internal/request/domain"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequestService struct {
	openResult   *reqdomain.OpenResult
	actionResult *reqdomain.ActionResult
	err          error

	lastAccept reqdomain.BankAcceptRequest
	donorCalls int
}

func (f *fakeRequestService) OpenEmergency(ctx context.Context, req reqdomain.OpenEmergencyRequest) (*reqdomain.OpenResult, error) {
	_ = ctx
	_ = req
	return f.openResult, f.err
}

func (f *fakeRequestService) OpenBloodDrive(ctx context.Context, req reqdomain.OpenBloodDriveRequest) (*reqdomain.OpenResult, error) {
	_ = ctx
	_ = req
	return f.openResult, f.err
}

func (f *fakeRequestService) BankAccept(ctx context.Context, req reqdomain.BankAcceptRequest) (*reqdomain.ActionResult, error) {
	_ = ctx
	f.lastAccept = req
	return f.actionResult, f.err
}

func (f *fakeRequestService) BankReject(ctx context.Context, req reqdomain.BankRejectRequest) (*reqdomain.ActionResult, error) {
	_ = ctx
	_ = req
	return f.actionResult, f.err
}

func (f *fakeRequestService) DonorAccept(ctx context.Context, requestID string) (*reqdomain.ActionResult, error) {
	_ = ctx
	_ = requestID
	f.donorCalls++
	return f.actionResult, f.err
}

func (f *fakeRequestService) DonorReject(ctx context.Context, requestID, note string) (*reqdomain.ActionResult, error) {
	_ = ctx
	_ = requestID
	_ = note
	return f.actionResult, f.err
}

type fakeViewService struct {
	views []*logdomain.RequestView
	err   error
}

func (f *fakeViewService) ListAll(ctx context.Context, filter logdomain.ListRequestFilter) ([]*logdomain.RequestView, error) {
	_ = ctx
	_ = filter
	return f.views, f.err
}

func (f *fakeViewService) ListMine(ctx context.Context) ([]*logdomain.RequestView, error) {
	_ = ctx
	return f.views, f.err
}

func (f *fakeViewService) ListBankQueue(ctx context.Context) ([]*logdomain.RequestView, error) {
	_ = ctx
	return f.views, f.err
}

func (f *fakeViewService) ListFulfilledHistory(ctx context.Context) ([]*logdomain.RequestView, error) {
	_ = ctx
	return f.views, f.err
}

func (f *fakeViewService) ListDonorVisible(ctx context.Context) ([]*logdomain.RequestView, error) {
	_ = ctx
	return f.views, f.err
}

func newTestServer(t *testing.T, reqSvc reqdomain.Service, viewSvc logdomain.ViewService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	engine.Use(ActorContextMiddleware())

	s := &Server{
		engine:     engine,
		requestSvc: reqSvc,
		viewSvc:    viewSvc,
	}
	s.registerRoutes()
	return engine
}

func doRequest(engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func bankHeaders() map[string]string {
	return map[string]string{"X-Actor-Role": "bank", "X-Org-ID": "bank-001"}
}

func donorHeaders() map[string]string {
	return map[string]string{"X-Actor-Role": "donor", "X-Donor-ID": "donor-001"}
}

func TestOpenEmergencyHandler(t *testing.T) {
	fake := &fakeRequestService{openResult: &reqdomain.OpenResult{RequestID: "hops-0001", TransactionID: "hops-001-abc123"}}
	engine := newTestServer(t, fake, &fakeViewService{})

	rec := doRequest(engine, http.MethodPost, "/api/requests/emergency",
		gin.H{"blood_type": "O-", "component": "rbc", "units": 5},
		map[string]string{"X-Actor-Role": "hospital", "X-Org-ID": "hops-001"},
	)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result reqdomain.OpenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hops-0001", result.RequestID)
}

func TestLifecycleRoutesRequireRole(t *testing.T) {
	engine := newTestServer(t, &fakeRequestService{}, &fakeViewService{})

	// No actor at all.
	rec := doRequest(engine, http.MethodPost, "/api/requests/emergency", gin.H{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Donor cannot open requests.
	rec = doRequest(engine, http.MethodPost, "/api/requests/emergency", gin.H{}, donorHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Hospital cannot act as a bank.
	rec = doRequest(engine, http.MethodPost, "/api/requests/hops-0001/accept", nil,
		map[string]string{"X-Actor-Role": "hospital", "X-Org-ID": "hops-001"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Role without an identity is rejected.
	rec = doRequest(engine, http.MethodPost, "/api/requests/hops-0001/accept", nil,
		map[string]string{"X-Actor-Role": "bank"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBankAcceptHandler(t *testing.T) {
	fake := &fakeRequestService{actionResult: &reqdomain.ActionResult{
		Outcome:        reqdomain.OutcomePartiallyFulfilled,
		RequestID:      "hops-0001",
		UnitsFulfilled: 3,
		RemainingUnits: 2,
	}}
	engine := newTestServer(t, fake, &fakeViewService{})

	rec := doRequest(engine, http.MethodPost, "/api/requests/hops-0001/accept",
		gin.H{"units": 3}, bankHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hops-0001", fake.lastAccept.RequestID)
	require.NotNil(t, fake.lastAccept.Units)
	assert.Equal(t, int64(3), *fake.lastAccept.Units)

	var result reqdomain.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, reqdomain.OutcomePartiallyFulfilled, result.Outcome)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{reqdomain.ErrRequestNotFound, http.StatusNotFound},
		{reqdomain.ErrConflict, http.StatusConflict},
		{reqdomain.ErrInvalidUnits, http.StatusBadRequest},
		{reqdomain.ErrForbiddenRole, http.StatusForbidden},
	}
	for _, tc := range cases {
		fake := &fakeRequestService{err: tc.err}
		engine := newTestServer(t, fake, &fakeViewService{})

		rec := doRequest(engine, http.MethodPost, "/api/requests/hops-0001/accept", nil, bankHeaders())
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestDonorAcceptConflict(t *testing.T) {
	fake := &fakeRequestService{err: reqdomain.ErrConflict}
	engine := newTestServer(t, fake, &fakeViewService{})

	rec := doRequest(engine, http.MethodPost, "/api/requests/hops-0001/donor-accept", nil, donorHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, fake.donorCalls)

	var payload struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "conflict", payload.Error.Type)
}

func TestListVisibleRequiresDonor(t *testing.T) {
	views := []*logdomain.RequestView{{RequestID: "hops-0001", Status: logdomain.StatusOpen}}
	engine := newTestServer(t, &fakeRequestService{}, &fakeViewService{views: views})

	rec := doRequest(engine, http.MethodGet, "/api/requests/visible", nil, bankHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(engine, http.MethodGet, "/api/requests/visible", nil, donorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Requests []struct {
			RequestID     string `json:"request_id"`
			DisplayStatus string `json:"display_status"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Requests, 1)
	assert.Equal(t, "hops-0001", payload.Requests[0].RequestID)
	assert.Equal(t, "OPEN", payload.Requests[0].DisplayStatus)
}
