// Package model holds the rows the matching pass and the follow-up scheduler read and write.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Task statuses.
const (
	TaskStatusPending       = "pending"
	TaskStatusApprovedReady = "approved_ready"
	TaskStatusSent          = "sent"
	TaskStatusReplied       = "replied"
	TaskStatusFailed        = "failed"
	TaskStatusCancelled     = "cancelled"
)

// Task types (also used as the task stage).
const (
	TaskTypeInitial    = "initial"
	TaskTypeFollowUp1  = "follow_up_1"
	TaskTypeFollowUp2  = "follow_up_2"
	RoleStatusActive   = "active"
	MatchStatusMatched = "matched"
)

// EventSchedulerRun is the system_logs event type used as the scheduler throttle marker.
const EventSchedulerRun = "outreach_scheduler_run"

type Role struct {
	ID               string    `db:"id" json:"id"`
	OrganizationID   string    `db:"organization_id" json:"organization_id"`
	ProjectID        string    `db:"project_id" json:"project_id,omitempty"`
	Title            string    `db:"title" json:"title"`
	Department       string    `db:"department" json:"department,omitempty"`
	Location         string    `db:"location" json:"location,omitempty"`
	Requirements     string    `db:"requirements" json:"requirements,omitempty"`
	Responsibilities string    `db:"responsibilities" json:"responsibilities,omitempty"`
	SalaryRange      string    `db:"salary_range" json:"salary_range,omitempty"`
	EmploymentType   string    `db:"employment_type" json:"employment_type,omitempty"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Candidate struct {
	ID                  string     `db:"id" json:"id"`
	OrganizationID      string     `db:"organization_id" json:"organization_id"`
	Name                string     `db:"name" json:"name"`
	CurrentTitle        string     `db:"current_title" json:"current_title,omitempty"`
	CurrentCompany      string     `db:"current_company" json:"current_company,omitempty"`
	Location            string     `db:"location" json:"location,omitempty"`
	Skills              StringList `db:"skills" json:"skills"`
	Tags                StringList `db:"tags" json:"tags"`
	IntelligenceScore   int        `db:"intelligence_score" json:"intelligence_score"`
	IntelligenceLevel   string     `db:"intelligence_level" json:"intelligence_level,omitempty"`
	RecommendedApproach string     `db:"recommended_approach" json:"recommended_approach,omitempty"`
	Notes               string     `db:"notes" json:"notes,omitempty"`
	Status              string     `db:"status" json:"status"`
	Stage               string     `db:"stage" json:"stage,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

type Campaign struct {
	ID                string     `db:"id" json:"id"`
	OrganizationID    string     `db:"organization_id" json:"organization_id"`
	Name              string     `db:"name" json:"name"`
	RoleTitle         string     `db:"role_title" json:"role_title,omitempty"`
	CompanyName       string     `db:"company_name" json:"company_name,omitempty"`
	AutomationConfig  JSONMap    `db:"automation_config" json:"automation_config"`
	MatchedCandidates JSONList   `db:"matched_candidates" json:"matched_candidates"`
	LastMatchedAt     *time.Time `db:"last_matched_at" json:"last_matched_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

type OutreachTask struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	CampaignID     string     `db:"campaign_id" json:"campaign_id,omitempty"`
	CandidateID    string     `db:"candidate_id" json:"candidate_id"`
	TaskType       string     `db:"task_type" json:"task_type"`
	Channel        string     `db:"channel" json:"channel,omitempty"`
	Status         string     `db:"status" json:"status"`
	Stage          string     `db:"stage" json:"stage"`
	AttemptNumber  int        `db:"attempt_number" json:"attempt_number"`
	Subject        string     `db:"subject" json:"subject,omitempty"`
	Content        string     `db:"content" json:"content,omitempty"`
	Metadata       JSONMap    `db:"metadata" json:"metadata,omitempty"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SchedulerRun is a system_logs row.
type SchedulerRun struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	EventType      string    `db:"event_type" json:"event_type"`
	Metadata       JSONMap   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MatchResult is the best-fit role of one candidate. It has no table of its own.
type MatchResult struct {
	CandidateID         string   `json:"candidate_id"`
	CandidateName       string   `json:"candidate_name"`
	MatchScore          int      `json:"match_score"`
	MatchReasons        []string `json:"match_reasons"`
	IntelligenceScore   int      `json:"intelligence_score"`
	RecommendedApproach string   `json:"recommended_approach"`
	RoleID              string   `json:"role_id,omitempty"`
	RoleTitle           string   `json:"role_title,omitempty"`
}

// MatchEntry is a MatchResult as stored in campaigns.matched_candidates.
type MatchEntry struct {
	MatchResult
	Status  string    `json:"status"`
	AddedAt time.Time `json:"added_at"`
}

// StringList is a list of strings stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	*l = out
	return nil
}

// JSONMap is a JSON object stored in a text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan json object: %w", err)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan json object: %w", err)
	}
	*m = out
	return nil
}

// JSONList is a JSON array of arbitrary values stored in a text column.
type JSONList []any

func (l JSONList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]any(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *JSONList) Scan(src any) error {
	raw, err := rawJSON(src)
	if err != nil {
		return fmt.Errorf("scan json list: %w", err)
	}
	if len(raw) == 0 {
		*l = JSONList{}
		return nil
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan json list: %w", err)
	}
	*l = out
	return nil
}

func rawJSON(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", src)
	}
}
