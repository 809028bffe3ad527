// Package matching scores an organization's candidates against open roles and keeps the best fits.
package matching

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/talent-outreach/internal/filtering"
	"github.com/spigell/talent-outreach/internal/logger"
	"github.com/spigell/talent-outreach/internal/metrics"
	"github.com/spigell/talent-outreach/internal/model"
	"github.com/spigell/talent-outreach/internal/store"
)

const (
	DefaultMinScore            = 30
	DefaultLimit               = 50
	defaultRecommendedApproach = "nurture"
)

// ValidationError marks a request the caller has to fix.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is caused by an invalid request.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type Store interface {
	ListRoles(ctx context.Context, q store.RoleQuery) ([]model.Role, error)
	ListCandidates(ctx context.Context, organizationID string) ([]model.Candidate, error)
	SaveCampaignMatches(ctx context.Context, organizationID, campaignID string, entries []model.MatchEntry, at time.Time) error
}

type Request struct {
	ProjectID      string   `json:"project_id"`
	CampaignID     string   `json:"campaign_id"`
	OrganizationID string   `json:"organization_id"`
	RoleID         string   `json:"role_id"`
	MinScore       *float64 `json:"min_score"`
	Limit          *int     `json:"limit"`
	CandidateIDs   []string `json:"candidate_ids"`
}

type Response struct {
	Success            bool                `json:"success"`
	Message            string              `json:"message,omitempty"`
	RolesAnalyzed      int                 `json:"roles_analyzed"`
	CandidatesAnalyzed int                 `json:"candidates_analyzed"`
	MatchedCandidates  []model.MatchResult `json:"matched_candidates"`
}

type Config struct {
	Workers   int               `mapstructure:"workers"`
	Filtering *filtering.Config `mapstructure:"filtering"`
}

type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

func NewService(s Store, cfg Config, m *metrics.Metrics, log *zap.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Filtering == nil {
		cfg.Filtering = filtering.DefaultConfig()
	}
	return &Service{
		store:   s,
		logger:  logger.WithFields(log),
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Request) validate() error {
	r.OrganizationID = strings.TrimSpace(r.OrganizationID)
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	r.RoleID = strings.TrimSpace(r.RoleID)
	r.CampaignID = strings.TrimSpace(r.CampaignID)

	if r.OrganizationID == "" {
		return &ValidationError{Message: "organization_id is required"}
	}
	if r.ProjectID == "" && r.RoleID == "" {
		return &ValidationError{Message: "project_id or role_id is required"}
	}
	return nil
}

func (r *Request) minScore() float64 {
	if r.MinScore == nil {
		return DefaultMinScore
	}
	return *r.MinScore
}

func (r *Request) limit() int {
	if r.Limit == nil || *r.Limit <= 0 {
		return DefaultLimit
	}
	return *r.Limit
}

// Run executes one matching pass.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	log := logger.WithFields(s.logger, logger.DomainFields(req.OrganizationID, req.CampaignID)...)
	started := time.Now()

	roles, err := s.store.ListRoles(ctx, store.RoleQuery{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		RoleID:         req.RoleID,
	})
	if err != nil {
		s.metrics.MatchRun(metrics.OutcomeError, 0, time.Since(started))
		return nil, err
	}

	if len(roles) == 0 {
		log.Info("no roles to match against",
			zap.String("project_id", req.ProjectID),
			zap.String("role_id", req.RoleID),
		)
		s.metrics.MatchRun(metrics.OutcomeEmpty, 0, time.Since(started))
		return &Response{
			Success:           true,
			Message:           "No active roles found",
			MatchedCandidates: []model.MatchResult{},
		}, nil
	}

	rows, err := s.store.ListCandidates(ctx, req.OrganizationID)
	if err != nil {
		s.metrics.MatchRun(metrics.OutcomeError, 0, time.Since(started))
		return nil, err
	}

	cfg := *s.cfg.Filtering
	cfg.CandidateIDs = req.CandidateIDs

	candidates, err := filtering.Run(ctx, &cfg, filtering.Deps{Logger: log}, filtering.Default(), model.NewCandidates(rows))
	if err != nil {
		s.metrics.MatchRun(metrics.OutcomeError, 0, time.Since(started))
		return nil, fmt.Errorf("filter candidates: %w", err)
	}

	best, err := s.scoreAll(ctx, candidates.Items, roles)
	if err != nil {
		s.metrics.MatchRun(metrics.OutcomeError, 0, time.Since(started))
		return nil, err
	}

	matches := rank(best, req.minScore(), req.limit())

	if req.CampaignID != "" && len(matches) > 0 {
		at := s.now()
		entries := make([]model.MatchEntry, 0, len(matches))
		for _, m := range matches {
			entries = append(entries, model.MatchEntry{MatchResult: m, Status: model.MatchStatusMatched, AddedAt: at})
		}
		err := s.store.SaveCampaignMatches(ctx, req.OrganizationID, req.CampaignID, entries, at)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("campaign not found, matches are not stored", zap.Error(err))
		case err != nil:
			s.metrics.MatchRun(metrics.OutcomeError, 0, time.Since(started))
			return nil, err
		default:
			log.Info("campaign matches replaced", zap.Int("matches", len(entries)))
		}
	}

	log.Info("matching pass finished",
		zap.Int("roles_analyzed", len(roles)),
		zap.Int("candidates_analyzed", candidates.Len()),
		zap.Int("matched", len(matches)),
		zap.Float64("min_score", req.minScore()),
		zap.Int("limit", req.limit()),
	)
	s.metrics.MatchRun(metrics.OutcomeSuccess, len(matches), time.Since(started))

	return &Response{
		Success:            true,
		RolesAnalyzed:      len(roles),
		CandidatesAnalyzed: candidates.Len(),
		MatchedCandidates:  matches,
	}, nil
}

// scoreAll finds the best role of every candidate. The result keeps the candidate order.
func (s *Service) scoreAll(ctx context.Context, candidates []*model.Candidate, roles []model.Role) ([]model.MatchResult, error) {
	results := make([]model.MatchResult, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, c := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = bestMatch(c, roles)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// bestMatch keeps the highest scoring role. The first role wins a tie.
func bestMatch(c *model.Candidate, roles []model.Role) model.MatchResult {
	approach := strings.TrimSpace(c.RecommendedApproach)
	if approach == "" {
		approach = defaultRecommendedApproach
	}

	result := model.MatchResult{
		CandidateID:         c.ID,
		CandidateName:       c.Name,
		MatchScore:          -1,
		IntelligenceScore:   c.IntelligenceScore,
		RecommendedApproach: approach,
	}

	for i := range roles {
		score, reasons := Score(c, &roles[i])
		if score > result.MatchScore {
			result.MatchScore = score
			result.MatchReasons = reasons
			result.RoleID = roles[i].ID
			result.RoleTitle = roles[i].Title
		}
	}

	if result.MatchReasons == nil {
		result.MatchReasons = []string{}
	}
	return result
}

func rank(results []model.MatchResult, minScore float64, limit int) []model.MatchResult {
	kept := make([]model.MatchResult, 0, len(results))
	for _, r := range results {
		if float64(r.MatchScore) >= minScore {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].MatchScore > kept[j].MatchScore
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
