package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/talent-outreach/internal/model"
	"github.com/spigell/talent-outreach/internal/store"
	"github.com/spigell/talent-outreach/internal/store/storetest"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func followUp(id, candidateID, taskType string) model.OutreachTask {
	return model.OutreachTask{
		ID:             id,
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		CandidateID:    candidateID,
		TaskType:       taskType,
		Stage:          taskType,
		Status:         model.TaskStatusPending,
		AttemptNumber:  2,
		CreatedAt:      base,
	}
}

func TestListRoles(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, model.Role{ID: "r2", OrganizationID: "org-1", ProjectID: "p1", Title: "Backend Engineer", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.CreateRole(ctx, model.Role{ID: "r1", OrganizationID: "org-1", ProjectID: "p1", Title: "Designer", CreatedAt: base}))
	require.NoError(t, s.CreateRole(ctx, model.Role{ID: "r3", OrganizationID: "org-1", ProjectID: "p1", Title: "Closed", Status: "closed", CreatedAt: base}))
	require.NoError(t, s.CreateRole(ctx, model.Role{ID: "r4", OrganizationID: "org-2", ProjectID: "p1", Title: "Other org", CreatedAt: base}))

	tests := []struct {
		name  string
		query store.RoleQuery
		want  []string
	}{
		{name: "active roles of a project", query: store.RoleQuery{OrganizationID: "org-1", ProjectID: "p1"}, want: []string{"r1", "r2"}},
		{name: "single role wins over project", query: store.RoleQuery{OrganizationID: "org-1", ProjectID: "p1", RoleID: "r3"}, want: []string{"r3"}},
		{name: "role of another organization", query: store.RoleQuery{OrganizationID: "org-1", RoleID: "r4"}, want: []string{}},
		{name: "unknown project", query: store.RoleQuery{OrganizationID: "org-1", ProjectID: "nope"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles, err := s.ListRoles(ctx, tt.query)
			require.NoError(t, err)

			ids := []string{}
			for _, r := range roles {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCandidateListsRoundTrip(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCandidate(ctx, model.Candidate{
		ID:             "c1",
		OrganizationID: "org-1",
		Name:           "Ada",
		Skills:         model.StringList{"Go", "SQL"},
		CreatedAt:      base,
	}))

	candidates, err := s.ListCandidates(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.StringList{"Go", "SQL"}, candidates[0].Skills)
	assert.Empty(t, candidates[0].Tags)
	assert.True(t, candidates[0].CreatedAt.Equal(base))
}

func TestSaveCampaignMatches(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCampaign(ctx, model.Campaign{ID: "camp-1", OrganizationID: "org-1", Name: "Q2", CreatedAt: base}))

	entries := []model.MatchEntry{{
		MatchResult: model.MatchResult{CandidateID: "c1", CandidateName: "Ada", MatchScore: 70, MatchReasons: []string{"Location compatible"}, RoleID: "r1"},
		Status:      model.MatchStatusMatched,
		AddedAt:     base,
	}}
	require.NoError(t, s.SaveCampaignMatches(ctx, "org-1", "camp-1", entries, base))

	entries[0].MatchScore = 80
	require.NoError(t, s.SaveCampaignMatches(ctx, "org-1", "camp-1", entries, base.Add(time.Hour)))

	campaign, err := s.GetCampaign(ctx, "org-1", "camp-1")
	require.NoError(t, err)
	require.Len(t, campaign.MatchedCandidates, 1)
	require.NotNil(t, campaign.LastMatchedAt)
	assert.True(t, campaign.LastMatchedAt.Equal(base.Add(time.Hour)))

	stored, ok := campaign.MatchedCandidates[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "matched", stored["status"])
	assert.EqualValues(t, 80, stored["match_score"])

	matches, err := s.ListCampaignMatches(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 80, matches[0].MatchScore)
	assert.Equal(t, model.StringList{"Location compatible"}, matches[0].MatchReasons)
}

func TestSaveCampaignMatchesUnknownCampaign(t *testing.T) {
	s := storetest.New(t)

	err := s.SaveCampaignMatches(context.Background(), "org-1", "missing", nil, base)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestInsertTasksReportsConflicts(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	inserted, conflicts, err := s.InsertTasks(ctx, []model.OutreachTask{
		followUp("t1", "c1", model.TaskTypeFollowUp1),
		followUp("t2", "c2", model.TaskTypeFollowUp1),
	})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
	assert.Empty(t, conflicts)

	inserted, conflicts, err = s.InsertTasks(ctx, []model.OutreachTask{
		followUp("t3", "c1", model.TaskTypeFollowUp1),
		followUp("t4", "c1", model.TaskTypeFollowUp2),
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "t4", inserted[0].ID)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "t3", conflicts[0].ID)
}

func TestInitialTasksAreNotUnique(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	first := followUp("t1", "c1", model.TaskTypeInitial)
	second := followUp("t2", "c1", model.TaskTypeInitial)

	require.NoError(t, s.CreateTask(ctx, first))
	require.NoError(t, s.CreateTask(ctx, second))
}

func TestSentTasksAndCandidateChecks(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	late := base.Add(48 * time.Hour)
	early := base

	sent := func(id, candidateID, campaignID string, at time.Time) model.OutreachTask {
		task := followUp(id, candidateID, model.TaskTypeInitial)
		task.CampaignID = campaignID
		task.Status = model.TaskStatusSent
		task.SentAt = &at
		return task
	}

	require.NoError(t, s.CreateTask(ctx, sent("t-late", "c1", "camp-1", late)))
	require.NoError(t, s.CreateTask(ctx, sent("t-early", "c2", "camp-2", early)))
	pendingTask := followUp("t-pending", "c3", model.TaskTypeInitial)
	require.NoError(t, s.CreateTask(ctx, pendingTask))

	tasks, err := s.ListSentTasks(ctx, "org-1", "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-early", tasks[0].ID)
	assert.Equal(t, "t-late", tasks[1].ID)

	tasks, err = s.ListSentTasks(ctx, "org-1", "camp-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t-late", tasks[0].ID)

	require.NoError(t, s.UpdateTaskStatus(ctx, "org-1", "t-late", model.TaskStatusReplied, late))

	replied, err := s.HasReply(ctx, "org-1", "c1")
	require.NoError(t, err)
	assert.True(t, replied)

	replied, err = s.HasReply(ctx, "org-1", "c2")
	require.NoError(t, err)
	assert.False(t, replied)

	existing, err := s.GetFollowUp(ctx, "org-1", "c2", model.TaskTypeFollowUp1)
	require.NoError(t, err)
	assert.Nil(t, existing)

	require.NoError(t, s.CreateTask(ctx, followUp("t-f1", "c2", model.TaskTypeFollowUp1)))
	existing, err = s.GetFollowUp(ctx, "org-1", "c2", model.TaskTypeFollowUp1)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "t-f1", existing.ID)

	orgs, err := s.ListOrganizationsWithSentTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, orgs)
}

func TestSchedulerRunsAndUsers(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	run, err := s.LatestSchedulerRun(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, run)

	require.NoError(t, s.AppendSchedulerRun(ctx, model.SchedulerRun{ID: "l1", OrganizationID: "org-1", CreatedAt: base}))
	require.NoError(t, s.AppendSchedulerRun(ctx, model.SchedulerRun{
		ID: "l2", OrganizationID: "org-1", CreatedAt: base.Add(time.Hour),
		Metadata: model.JSONMap{"follow_ups_created": 2},
	}))

	run, err = s.LatestSchedulerRun(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "l2", run.ID)
	assert.EqualValues(t, 2, run.Metadata["follow_ups_created"])

	user, err := s.FirstUserID(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, user)

	require.NoError(t, s.CreateUser(ctx, "u1", "org-1", "ops@example.com"))
	user, err = s.FirstUserID(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user)
}

func TestMigrateDownAndUp(t *testing.T) {
	s := storetest.New(t)

	require.NoError(t, s.Migrate(store.MigrateDown, 0, nil))
	_, err := s.ListCandidates(context.Background(), "org-1")
	require.Error(t, err)

	require.NoError(t, s.Migrate(store.MigrateUp, 0, nil))
	require.NoError(t, s.Migrate(store.MigrateUp, 0, nil))
}

func TestInsertTasksRollsBackOnDriverError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := store.New(sqlx.NewDb(mockDB, "pgx"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outreach_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outreach_tasks").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err = s.InsertTasks(context.Background(), []model.OutreachTask{
		followUp("t1", "c1", model.TaskTypeFollowUp1),
		followUp("t2", "c2", model.TaskTypeFollowUp1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Driver: "mysql", URL: "x"})
	require.Error(t, err)
}
