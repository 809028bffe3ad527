package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/followup"
	"github.com/spigell/talent-outreach/internal/matching"
	"github.com/spigell/talent-outreach/internal/metrics"
	"github.com/spigell/talent-outreach/internal/model"
	"github.com/spigell/talent-outreach/internal/store"
	"github.com/spigell/talent-outreach/internal/store/storetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, s *store.Store) (*gin.Engine, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	return NewRouter(Deps{
		Matcher:   matching.NewService(s, matching.Config{}, m, zap.NewNop()),
		Scheduler: followup.NewService(followup.Deps{Store: s, Metrics: m}, followup.Config{}),
		DB:        s,
		Metrics:   m,
		Gatherer:  reg,
		Logger:    zap.NewNop(),
	}), reg
}

func seed(t *testing.T) *store.Store {
	t.Helper()

	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, model.Role{
		ID: "r1", OrganizationID: "org-1", ProjectID: "p1", Title: "Senior Software Engineer",
		Location: "Remote", Requirements: "Python, AWS, Kubernetes", CreatedAt: now,
	}))
	require.NoError(t, s.CreateCandidate(ctx, model.Candidate{
		ID: "c1", OrganizationID: "org-1", Name: "Ada", CurrentTitle: "Software Engineer II", Location: "Remote",
		Skills: model.StringList{"Python", "Docker"}, IntelligenceScore: 75, Status: "active", CreatedAt: now,
	}))
	require.NoError(t, s.CreateCampaign(ctx, model.Campaign{ID: "camp-1", OrganizationID: "org-1", Name: "Platform", CreatedAt: now}))

	sentAt := time.Now().UTC().Add(-4 * 24 * time.Hour)
	require.NoError(t, s.CreateTask(ctx, model.OutreachTask{
		ID: "t1", OrganizationID: "org-1", CampaignID: "camp-1", CandidateID: "c1", TaskType: model.TaskTypeInitial,
		Stage: model.TaskTypeInitial, Status: model.TaskStatusSent, AttemptNumber: 1, SentAt: &sentAt, CreatedAt: sentAt,
	}))
	return s
}

func do(t *testing.T, engine http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestMatchEndpoint(t *testing.T) {
	engine, _ := newTestRouter(t, seed(t))

	for _, path := range []string{"/functions/v1/analyzeCampaignProject", "/api/match"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, engine, http.MethodPost, path, `{"organization_id":"org-1","project_id":"p1","campaign_id":"camp-1"}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

			var resp matching.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, 1, resp.RolesAnalyzed)
			require.Len(t, resp.MatchedCandidates, 1)
			assert.Equal(t, 55, resp.MatchedCandidates[0].MatchScore)
			assert.Equal(t, "r1", resp.MatchedCandidates[0].RoleID)
		})
	}
}

func TestMatchEndpointErrors(t *testing.T) {
	engine, _ := newTestRouter(t, seed(t))

	tests := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest, error: "organization_id is required"},
		{name: "missing project", body: `{"organization_id":"org-1"}`, status: http.StatusBadRequest, error: "project_id or role_id is required"},
		{name: "malformed", body: `{"organization_id":`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, engine, http.MethodPost, "/api/match", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			if tt.error != "" {
				assert.Equal(t, tt.error, resp.Error)
			}
		})
	}
}

func TestMatchEndpointDriverFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT .* FROM roles").WillReturnError(errors.New(`relation "roles" does not exist`))

	engine, _ := newTestRouter(t, store.New(sqlx.NewDb(mockDB, "postgres")))
	w := do(t, engine, http.MethodPost, "/api/match", `{"organization_id":"org-1","project_id":"p1"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `relation \"roles\" does not exist`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerEndpoint(t *testing.T) {
	engine, _ := newTestRouter(t, seed(t))

	w := do(t, engine, http.MethodPost, "/functions/v1/processOutreachScheduler", `{"organization_id":"org-1","dry_run":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var dry map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dry))
	assert.Equal(t, true, dry["dry_run"])
	assert.EqualValues(t, 1, dry["follow_ups_created"])
	assert.Len(t, dry["tasks_to_create"], 1)

	w = do(t, engine, http.MethodPost, "/api/outreach/scheduler", `{"organization_id":"org-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var live map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Len(t, live["created_tasks"], 1)

	w = do(t, engine, http.MethodPost, "/api/outreach/scheduler", `{"organization_id":"org-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var throttled map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &throttled))
	assert.Equal(t, true, throttled["skipped"])
	assert.Contains(t, throttled["message"], "30 minutes")

	w = do(t, engine, http.MethodPost, "/api/outreach/scheduler", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"organization_id is required"}`, w.Body.String())
}

func TestPreflight(t *testing.T) {
	engine, _ := newTestRouter(t, seed(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/match", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-client-info")
}

func TestHealthAndMetrics(t *testing.T) {
	engine, _ := newTestRouter(t, seed(t))

	w := do(t, engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	do(t, engine, http.MethodPost, "/api/match", `{"organization_id":"org-1","project_id":"p1"}`)

	w = do(t, engine, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "talent_outreach_matching_runs_total")
	assert.Contains(t, w.Body.String(), `path="/api/match"`)
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthUnavailable(t *testing.T) {
	engine := NewRouter(Deps{DB: downDB{}, Gatherer: prometheus.NewRegistry()})

	w := do(t, engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
