package store

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/talent-outreach/internal/model"
)

func (s *Store) CreateRole(ctx context.Context, r model.Role) error {
	if r.Status == "" {
		r.Status = model.RoleStatusActive
	}
	query := `INSERT INTO roles (id, organization_id, project_id, title, department, location, requirements,
		responsibilities, salary_range, employment_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		r.ID, r.OrganizationID, r.ProjectID, r.Title, r.Department, r.Location, r.Requirements,
		r.Responsibilities, r.SalaryRange, r.EmploymentType, r.Status, utc(r.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *Store) CreateCandidate(ctx context.Context, c model.Candidate) error {
	if c.Status == "" {
		c.Status = "active"
	}
	query := `INSERT INTO candidates (id, organization_id, name, current_title, current_company, location, skills,
		tags, intelligence_score, intelligence_level, recommended_approach, notes, status, stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		c.ID, c.OrganizationID, c.Name, c.CurrentTitle, c.CurrentCompany, c.Location, c.Skills,
		c.Tags, c.IntelligenceScore, c.IntelligenceLevel, c.RecommendedApproach, c.Notes, c.Status, c.Stage,
		utc(c.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func (s *Store) CreateCampaign(ctx context.Context, c model.Campaign) error {
	query := `INSERT INTO campaigns (id, organization_id, name, role_title, company_name, automation_config,
		matched_candidates, last_matched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		c.ID, c.OrganizationID, c.Name, c.RoleTitle, c.CompanyName, c.AutomationConfig,
		c.MatchedCandidates, c.LastMatchedAt, utc(c.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, id, organizationID, email string) error {
	query := `INSERT INTO users (id, organization_id, email, created_at) VALUES (?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), id, organizationID, email, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
