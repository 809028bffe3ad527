package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spigell/talent-outreach/internal/model"
)

const roleSelectColumns = `id, organization_id, project_id, title, department, location, requirements,
	responsibilities, salary_range, employment_type, status, created_at`

const candidateSelectColumns = `id, organization_id, name, current_title, current_company, location, skills, tags,
	intelligence_score, intelligence_level, recommended_approach, notes, status, stage, created_at`

const campaignSelectColumns = `id, organization_id, name, role_title, company_name, automation_config,
	matched_candidates, last_matched_at, created_at`

// RoleQuery selects either one role by id or every active role of a project.
type RoleQuery struct {
	OrganizationID string
	ProjectID      string
	RoleID         string
}

// ListRoles returns the roles a matching pass scores against. A role id wins over a project id.
func (s *Store) ListRoles(ctx context.Context, q RoleQuery) ([]model.Role, error) {
	var (
		query string
		args  []any
	)

	if q.RoleID != "" {
		query = `SELECT ` + roleSelectColumns + ` FROM roles WHERE id = ? AND organization_id = ?`
		args = []any{q.RoleID, q.OrganizationID}
	} else {
		query = `SELECT ` + roleSelectColumns + ` FROM roles
			WHERE organization_id = ? AND project_id = ? AND status = ?
			ORDER BY created_at, id`
		args = []any{q.OrganizationID, q.ProjectID, model.RoleStatusActive}
	}

	roles := []model.Role{}
	if err := s.db.SelectContext(ctx, &roles, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	return roles, nil
}

// ListCandidates returns every candidate of the organization in creation order.
func (s *Store) ListCandidates(ctx context.Context, organizationID string) ([]model.Candidate, error) {
	query := `SELECT ` + candidateSelectColumns + ` FROM candidates WHERE organization_id = ? ORDER BY created_at, id`

	candidates := []model.Candidate{}
	if err := s.db.SelectContext(ctx, &candidates, s.db.Rebind(query), organizationID); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return candidates, nil
}

// GetCandidate returns ErrNotFound when the candidate does not belong to the organization.
func (s *Store) GetCandidate(ctx context.Context, organizationID, candidateID string) (*model.Candidate, error) {
	query := `SELECT ` + candidateSelectColumns + ` FROM candidates WHERE id = ? AND organization_id = ?`

	var candidate model.Candidate
	err := s.db.GetContext(ctx, &candidate, s.db.Rebind(query), candidateID, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}
	return &candidate, nil
}

// GetCampaign returns ErrNotFound when the campaign does not belong to the organization.
func (s *Store) GetCampaign(ctx context.Context, organizationID, campaignID string) (*model.Campaign, error) {
	query := `SELECT ` + campaignSelectColumns + ` FROM campaigns WHERE id = ? AND organization_id = ?`

	var campaign model.Campaign
	err := s.db.GetContext(ctx, &campaign, s.db.Rebind(query), campaignID, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select campaign: %w", err)
	}
	return &campaign, nil
}

// SaveCampaignMatches replaces the campaign's matched candidates and upserts one
// candidate_campaign_matches row per entry, in a single transaction.
func (s *Store) SaveCampaignMatches(ctx context.Context, organizationID, campaignID string, entries []model.MatchEntry, at time.Time) error {
	at = utc(at)

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal matched candidates: %w", err)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		update := `UPDATE campaigns SET matched_candidates = ?, last_matched_at = ? WHERE id = ? AND organization_id = ?`
		res, err := tx.ExecContext(ctx, tx.Rebind(update), string(payload), at, campaignID, organizationID)
		if err != nil {
			return fmt.Errorf("update campaign matches: %w", err)
		}
		if err := requireRows(res, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)); err != nil {
			return err
		}

		upsert := `INSERT INTO candidate_campaign_matches
			(candidate_id, campaign_id, organization_id, role_id, match_score, match_reasons, matched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (candidate_id, campaign_id) DO UPDATE SET
				role_id = excluded.role_id,
				match_score = excluded.match_score,
				match_reasons = excluded.match_reasons,
				matched_at = excluded.matched_at`

		for _, entry := range entries {
			reasons, err := model.StringList(entry.MatchReasons).Value()
			if err != nil {
				return fmt.Errorf("marshal match reasons: %w", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(upsert),
				entry.CandidateID, campaignID, organizationID, entry.RoleID, entry.MatchScore, reasons, at,
			); err != nil {
				return fmt.Errorf("upsert candidate campaign match: %w", err)
			}
		}
		return nil
	})
}

// CandidateCampaignMatch is a row of candidate_campaign_matches.
type CandidateCampaignMatch struct {
	CandidateID    string           `db:"candidate_id"`
	CampaignID     string           `db:"campaign_id"`
	OrganizationID string           `db:"organization_id"`
	RoleID         string           `db:"role_id"`
	MatchScore     int              `db:"match_score"`
	MatchReasons   model.StringList `db:"match_reasons"`
	MatchedAt      time.Time        `db:"matched_at"`
}

func (s *Store) ListCampaignMatches(ctx context.Context, campaignID string) ([]CandidateCampaignMatch, error) {
	query := `SELECT candidate_id, campaign_id, organization_id, role_id, match_score, match_reasons, matched_at
		FROM candidate_campaign_matches WHERE campaign_id = ? ORDER BY match_score DESC, candidate_id`

	matches := []CandidateCampaignMatch{}
	if err := s.db.SelectContext(ctx, &matches, s.db.Rebind(query), campaignID); err != nil {
		return nil, fmt.Errorf("select campaign matches: %w", err)
	}
	return matches, nil
}

func requireRows(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
