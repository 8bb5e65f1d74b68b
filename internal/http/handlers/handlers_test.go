package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/potholewatch/server/internal/auth"
	"github.com/potholewatch/server/internal/metrics"
	"github.com/potholewatch/server/internal/middleware"
	"github.com/potholewatch/server/internal/model"
	"github.com/potholewatch/server/internal/pipeline"
	"github.com/potholewatch/server/internal/repo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

type fixture struct {
	router  *chi.Mux
	tokens  *auth.TokenService
	reports *repo.MemoryReportRepo
	metrics *metrics.Metrics

	mu    sync.Mutex
	codes map[string]string
}

func (f *fixture) lastCode(identifier string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[identifier]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{codes: map[string]string{}}

	codeRepo := repo.NewMemoryCodeRepo(0)
	t.Cleanup(func() { _ = codeRepo.Close() })
	notifier := auth.NotifierFunc(func(_ context.Context, identifier, code string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.codes[identifier] = code
		return nil
	})

	f.tokens = auth.NewTokenService(testSecret, 0)
	f.reports = repo.NewMemoryReportRepo()
	f.metrics = metrics.New()

	issuer := auth.NewCodeIssuer(codeRepo, notifier, auth.CodeIssuerOptions{Salt: "salt", TTL: time.Minute})
	authHandler := NewAuthHandler(auth.NewAuthService(issuer, f.tokens), f.metrics)
	gate := pipeline.NewGate(f.tokens)
	reportHandler := NewReportHandler(pipeline.New(gate, f.reports, nil), f.metrics)

	r := chi.NewRouter()
	r.Post("/api/send-otp", authHandler.HandleSendOTP)
	r.Post("/api/verify-otp", authHandler.HandleVerifyOTP)
	r.Post("/api/report", reportHandler.HandleSubmitReport)
	r.Get("/api/potholes", reportHandler.HandleListReports)
	r.Get("/api/dashboard", reportHandler.HandleDashboard)
	r.With(middleware.AuthMiddleware(gate, RespondWithError)).Get("/api/me", authHandler.HandleMe)
	r.Get("/health", NewHealthHandler(f.reports).ServeHTTP)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"], body["kind"]
}

func TestSendAndVerifyOTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/send-otp", "", `{"identifier":"+15551234567"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"OTP sent"}`, rec.Body.String())

	code := f.lastCode("+15551234567")
	require.Len(t, code, 6)

	rec = f.do(t, http.MethodPost, "/api/verify-otp", "", fmt.Sprintf(`{"identifier":"+15551234567","code":%q}`, code))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp verifyOTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	identity, err := f.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", identity)

	rec = f.do(t, http.MethodPost, "/api/verify-otp", "", fmt.Sprintf(`{"identifier":"+15551234567","code":%q}`, code))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, kind := decodeError(t, rec)
	assert.Equal(t, KindInvalidCode, kind)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CodeVerifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CodeVerifications.WithLabelValues(KindInvalidCode)))
}

func TestSendAndVerifyOTP_phoneAliases(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/send-otp", "", `{"phone":"+15550000001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	code := f.lastCode("+15550000001")
	rec = f.do(t, http.MethodPost, "/api/verify-otp", "", fmt.Sprintf(`{"phone":"+15550000001","otp":%q}`, code))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendOTP_errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"missing identifier", `{}`, http.StatusBadRequest, KindMissingIdentifier},
		{"blank identifier", `{"identifier":"   "}`, http.StatusBadRequest, KindMissingIdentifier},
		{"malformed body", `{"identifier":`, http.StatusBadRequest, KindMissingIdentifier},
		{"empty body", ``, http.StatusBadRequest, KindMissingIdentifier},
		{"numeric identifier", `{"identifier":15551234567}`, http.StatusBadRequest, KindMissingIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/send-otp", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			_, kind := decodeError(t, rec)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestVerifyOTP_wrongCode(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/send-otp", "", `{"identifier":"+15551234567"}`).Code)

	for _, body := range []string{
		`{"identifier":"+15551234567","code":"000000"}`,
		`{"identifier":"+15551234567"}`,
		`{"identifier":"+15559999999","code":"123456"}`,
		``,
		`{"identifier":"+15551234567","code":123456}`,
		`{"identifier":`,
	} {
		rec := f.do(t, http.MethodPost, "/api/verify-otp", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
		_, kind := decodeError(t, rec)
		assert.Equal(t, KindInvalidCode, kind, body)
	}

	// a wrong guess leaves the real code usable
	code := f.lastCode("+15551234567")
	rec := f.do(t, http.MethodPost, "/api/verify-otp", "", fmt.Sprintf(`{"identifier":"+15551234567","code":%q}`, code))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitReport(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Issue("+15551234567")
	require.NoError(t, err)
	start := time.Now().Add(-time.Millisecond)

	rec := f.do(t, http.MethodPost, "/api/report", token, `{"lat":12.9,"lng":77.6}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var report model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "+15551234567", report.SubmittedBy)
	assert.Equal(t, model.UnknownCity, report.City)
	assert.Equal(t, model.UnknownCountry, report.Country)
	assert.Equal(t, 12.9, report.Lat)
	assert.Equal(t, 77.6, report.Lng)
	assert.False(t, report.Timestamp.Before(start))
}

func TestSubmitReport_errors(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Issue("+15551234567")
	require.NoError(t, err)
	other := auth.NewTokenService("another-secret-that-is-32-characters-long", 0)
	forged, err := other.Issue("+15551234567")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		body   string
		status int
		kind   string
	}{
		{"no header", "", `{"lat":1,"lng":2}`, http.StatusUnauthorized, KindAuthRequired},
		{"empty bearer", "Bearer ", `{"lat":1,"lng":2}`, http.StatusUnauthorized, KindMissingToken},
		{"basic scheme", "Basic dXNlcjpwYXNz", `{"lat":1,"lng":2}`, http.StatusUnauthorized, KindInvalidToken},
		{"forged token", "Bearer " + forged, `{"lat":1,"lng":2}`, http.StatusUnauthorized, KindInvalidToken},
		{"string lat", "Bearer " + token, `{"lat":"abc","lng":2}`, http.StatusBadRequest, KindInvalidInput},
		{"missing lng", "Bearer " + token, `{"lat":1}`, http.StatusBadRequest, KindInvalidInput},
		{"malformed body", "Bearer " + token, `{"lat":`, http.StatusBadRequest, KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/report", bytes.NewBufferString(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			_, kind := decodeError(t, rec)
			assert.Equal(t, tt.kind, kind)
		})
	}

	count, err := f.reports.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "rejected submissions must not be stored")
}

func TestListReports(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/potholes", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	ctx := context.Background()
	for _, city := range []string{"A", "B", "A"} {
		_, err := f.reports.Create(ctx, model.Report{Lat: 1, Lng: 2, City: city, SubmittedBy: "x"})
		require.NoError(t, err)
	}

	var all []model.Report
	rec = f.do(t, http.MethodGet, "/api/potholes", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	var onlyA []model.Report
	rec = f.do(t, http.MethodGet, "/api/potholes?city=A", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &onlyA))
	require.Len(t, onlyA, 2)
	for _, r := range onlyA {
		assert.Equal(t, "A", r.City)
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/dashboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":0,"mostCities":[],"leastCities":[]}`, rec.Body.String())

	ctx := context.Background()
	for _, city := range []string{"A", "A", "A", "B", "B", "C"} {
		_, err := f.reports.Create(ctx, model.Report{Lat: 1, Lng: 2, City: city, SubmittedBy: "x"})
		require.NoError(t, err)
	}

	rec = f.do(t, http.MethodGet, "/api/dashboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total": 6,
		"mostCities": [{"city":"A","count":3},{"city":"B","count":2},{"city":"C","count":1}],
		"leastCities": [{"city":"C","count":1},{"city":"B","count":2},{"city":"A","count":3}]
	}`, rec.Body.String())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Issue("+15551234567")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"+15551234567"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth_storeDown(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(failingPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{auth.ErrMissingIdentifier, http.StatusBadRequest, KindMissingIdentifier},
		{auth.ErrInvalidCode, http.StatusUnauthorized, KindInvalidCode},
		{fmt.Errorf("%w: smtp down", auth.ErrNotifyFailed), http.StatusBadGateway, KindNotifyFailed},
		{&pipeline.StageError{Stage: pipeline.Unauthenticated, Err: pipeline.ErrAuthRequired}, http.StatusUnauthorized, KindAuthRequired},
		{&pipeline.StageError{Stage: pipeline.Unauthenticated, Err: auth.ErrExpiredToken}, http.StatusUnauthorized, KindExpiredToken},
		{&pipeline.StageError{Stage: pipeline.Authenticated, Err: pipeline.ErrInvalidInput}, http.StatusBadRequest, KindInvalidInput},
		{&pipeline.StageError{Stage: pipeline.Validated, Err: fmt.Errorf("%w: insert: boom", repo.ErrStorage)}, http.StatusInternalServerError, KindStorageError},
		{ErrRateLimited, http.StatusTooManyRequests, KindRateLimited},
		{errors.New("surprise"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			status, kind, msg := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, kind)
			assert.NotEmpty(t, msg)
		})
	}
}
