package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
	"github.com/jdores/selfserve-egressip/internal/service/audit"
	"github.com/jdores/selfserve-egressip/internal/service/egress"
)

type fakeLists struct {
	mu      sync.Mutex
	members map[string][]string
	listErr error
	addErr  error
}

func (f *fakeLists) ListItems(_ context.Context, listID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string{}, f.members[listID]...), nil
}

func (f *fakeLists) AddToList(_ context.Context, listID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.members[listID] = append(f.members[listID], email)
	return nil
}

func (f *fakeLists) RemoveFromList(_ context.Context, listID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []string
	for _, e := range f.members[listID] {
		if e != email {
			kept = append(kept, e)
		}
	}
	f.members[listID] = kept
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	err     error
}

func (m *memAuditRepo) Insert(_ context.Context, e *domain.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAuditRepo) List(_ context.Context, beforeID int64, limit int) ([]domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.AuditLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeID > 0 && m.entries[i].ID >= beforeID {
			continue
		}
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memAuditRepo) ListOlderThan(context.Context, time.Time, int64, int) ([]domain.AuditLogEntry, error) {
	return nil, nil
}

func (m *memAuditRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type testEnv struct {
	handler http.Handler
	lists   *fakeLists
	repo    *memAuditRepo
	egress  *egress.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	locations := domain.NewLocations([]domain.EgressLocation{
		{ID: "L1", Name: "US"},
		{ID: "L2", Name: "EU"},
	})
	lists := &fakeLists{members: map[string][]string{}}
	repo := &memAuditRepo{}
	auditSvc := audit.NewService(repo, 0)
	egressSvc := egress.NewService(locations, lists, auditSvc)

	reg := prometheus.NewRegistry()
	egressSvc.SetMetrics(metrics.New(reg))

	h := NewHandlers(egressSvc, auditSvc)
	handler := SetupRoutes(h, RouteOptions{
		AllowedOrigins: []string{"https://egress.example.com"},
		Health:         NewHealthChecker(nil, nil),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &testEnv{handler: handler, lists: lists, repo: repo, egress: egressSvc}
}

func assertion(t *testing.T, email string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": email}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, identity, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != "" {
		req.Header.Set("Cf-Access-Jwt-Assertion", assertion(t, identity))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSelectAndReset(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/select", "Alice@X.com", `{"listId":"L2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "EU", body["assignedTo"])
	assert.Nil(t, body["removedFrom"])
	assert.Equal(t, []string{"alice@x.com"}, env.lists.members["L2"])

	rec, body = env.do(t, http.MethodPost, "/select", "alice@x.com", `{"listId":"L1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "US", body["assignedTo"])
	assert.Equal(t, "EU", body["removedFrom"])

	rec, body = env.do(t, http.MethodGet, "/api/assignment", "alice@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	current := body["current"].(map[string]any)
	assert.Equal(t, "US", current["locationName"])
	assert.Len(t, body["locations"], 2)

	rec, body = env.do(t, http.MethodPost, "/reset", "alice@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "US", body["removedFrom"])
	assigned, hasAssigned := body["assignedTo"]
	assert.True(t, hasAssigned, "reset keeps the select response shape")
	assert.Nil(t, assigned)

	assert.Len(t, env.repo.entries, 3)
}

func TestUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/select", "/reset", "/admin/assign", "/admin/remove"} {
		rec, body := env.do(t, http.MethodPost, path, "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Unauthorized", body["error"])
	}
	for _, path := range []string{"/whoami", "/api/assignment", "/admin/memberships", "/admin/logs"} {
		rec, _ := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestSelect_BadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		body string
		want string
	}{
		{`not json`, "Invalid request body"},
		{`{}`, "Missing listId"},
		{`{"listId":"L9"}`, "Invalid location"},
	}
	for _, tt := range tests {
		rec, body := env.do(t, http.MethodPost, "/select", "a@x.com", tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tt.want, body["error"])
	}
}

func TestSelect_UpstreamFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.lists.listErr = errors.New("gateway list L1 returned 500: internal upstream detail")

	rec, body := env.do(t, http.MethodPost, "/select", "a@x.com", `{"listId":"L1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error updating egress policies, please try again", body["error"])
	assert.NotContains(t, rec.Body.String(), "upstream detail")
}

func TestSelect_Busy(t *testing.T) {
	env := newTestEnv(t)
	env.egress.SetLeaser(heldLeaser{})

	rec, _ := env.do(t, http.MethodPost, "/select", "a@x.com", `{"listId":"L1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type heldLeaser struct{}

func (heldLeaser) TryLease(context.Context, string) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

func TestAdminAssignRemove(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/admin/assign", "admin@x.com", `{"email":" Bob@X.com ","listId":"L1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob@x.com", body["email"])
	assert.Equal(t, "US", body["assignedTo"])

	rec, body = env.do(t, http.MethodPost, "/admin/assign", "admin@x.com", `{"email":"bob","listId":"L1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email address", body["error"])

	rec, body = env.do(t, http.MethodPost, "/admin/remove", "admin@x.com", `{"email":"bob@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "US", body["removedFrom"])

	require.Len(t, env.repo.entries, 2)
	assert.Equal(t, "admin@x.com", env.repo.entries[0].Actor)
	assert.Equal(t, domain.ActionAdminRemove, env.repo.entries[1].Action)
}

func TestGetMemberships_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.lists.listErr = errors.New("timeout")

	rec, body := env.do(t, http.MethodGet, "/admin/memberships", "admin@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["degraded"])
	m := body["memberships"].(map[string]any)
	l1 := m["L1"].(map[string]any)
	assert.Equal(t, "US", l1["name"])
	assert.Empty(t, l1["emails"])
}

func TestGetLogs_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		_, _ = env.do(t, http.MethodPost, "/select", fmt.Sprintf("u%d@x.com", i), `{"listId":"L1"}`)
	}

	rec, body := env.do(t, http.MethodGet, "/admin/logs?limit=2", "admin@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"], 2)
	assert.Equal(t, true, body["hasMore"])
	assert.Equal(t, float64(4), body["nextCursor"])

	rec, body = env.do(t, http.MethodGet, "/admin/logs?cursor=2&limit=abc", "admin@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"], 1)
	assert.Equal(t, false, body["hasMore"])
	assert.Nil(t, body["nextCursor"])
}

func TestGetLogs_Error(t *testing.T) {
	env := newTestEnv(t)
	env.repo.err = errors.New("relation audit_log does not exist")

	rec, body := env.do(t, http.MethodGet, "/admin/logs", "admin@x.com", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error loading audit logs", body["error"])
}

func TestWhoami(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Cf-Access-Jwt-Assertion", assertion(t, "a@x.com"))
	req.Header.Set("CF-Connecting-IP", "203.0.113.7")
	req.Header.Set("CF-IPCountry", "DE")
	req.Header.Set("CF-Ray", "8a1b2c3d4e5f6a7b-FRA")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"ip":"203.0.113.7","city":null,"country":"DE","region":null,"timezone":null,"colo":"FRA"}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	_, _ = env.do(t, http.MethodPost, "/select", "a@x.com", `{"listId":"L1"}`)
	rec, _ = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `egress_transitions_total{action="select",outcome="applied"} 1`)
}

func TestHealthReadiness_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil)
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/nope", "a@x.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/select", nil)
	req.Header.Set("Origin", "https://egress.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://egress.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
