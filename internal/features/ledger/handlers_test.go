package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc := NewService(NewMemoryStore(), scoring.DefaultPolicy(), Options{})
	r := chi.NewRouter()
	NewHandler(svc).Register(r)
	return r, svc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEventFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, http.MethodPost, "/events/user-registered", `{"userId": 7}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/v1/scores/7", rec.Header().Get("Location"))

	rec = do(r, http.MethodPost, "/events/match-outcome", `{"userId": 7, "success": true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tx Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))
	assert.Equal(t, TypeMatchSuccess, tx.Type)

	rec = do(r, http.MethodGet, "/scores/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var score Score
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &score))
	assert.InDelta(t, 20.0, score.TotalScore, 1e-9)
	assert.InDelta(t, 50.0, score.Matching, 1e-9)

	rec = do(r, http.MethodGet, "/scores/7/transactions?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page TransactionPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)

	rec = do(r, http.MethodGet, "/scores/7/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)
}

func TestHandlerErrors(t *testing.T) {
	r, svc := newTestRouter(t)
	_, err := svc.RegisterUser(context.Background(), UserRegistered{UserID: 1})
	require.NoError(t, err)
	_, err = svc.RecordContribution(context.Background(), ContributionRecorded{EventID: "ev-1", UserID: 1, Weight: 2})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing score", http.MethodGet, "/scores/99", "", http.StatusNotFound, "user_not_found"},
		{"bad user id", http.MethodGet, "/scores/abc", "", http.StatusBadRequest, "invalid_user_id"},
		{"bad limit", http.MethodGet, "/scores/1/transactions?limit=-1", "", http.StatusBadRequest, "bad_request"},
		{"cursor without separator", http.MethodGet, "/scores/1/transactions?cursor=YWJj", "", http.StatusBadRequest, "invalid_cursor"},
		{"cursor with bad id", http.MethodGet, "/scores/1/transactions?cursor=MXx4eXo", "", http.StatusBadRequest, "invalid_cursor"},
		{"cursor with bad time", http.MethodGet, "/scores/1/transactions?cursor=YWJjfDAwMDAwMDAwLTAwMDAtMDAwMC0wMDAwLTAwMDAwMDAwMDAwMQ", "", http.StatusBadRequest, "invalid_cursor"},
		{"unknown field", http.MethodPost, "/events/contribution", `{"userId":1,"points":3}`, http.StatusBadRequest, "bad_request"},
		{"zero contribution", http.MethodPost, "/events/contribution", `{"userId":1,"weight":0}`, http.StatusBadRequest, "invalid_amount"},
		{"penalty for unknown user", http.MethodPost, "/events/penalty", `{"userId":5,"amount":3,"reason":"x"}`, http.StatusNotFound, "user_not_found"},
		{"event id reused by another event", http.MethodPost, "/events/penalty", `{"eventId":"ev-1","userId":1,"amount":3,"reason":"x"}`, http.StatusConflict, "ref_conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body common.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}
