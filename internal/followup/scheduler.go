// Package followup stages follow-up outreach tasks for candidates who have not answered a sent message.
package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/ai"
	"github.com/spigell/talent-outreach/internal/logger"
	"github.com/spigell/talent-outreach/internal/metrics"
	"github.com/spigell/talent-outreach/internal/model"
	"github.com/spigell/talent-outreach/internal/outreach"
	"github.com/spigell/talent-outreach/internal/store"
)

const (
	DefaultThrottle = 30 * time.Minute

	maxSkippedReported = 10
	day                = 24 * time.Hour
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
	LatestSchedulerRun(ctx context.Context, organizationID string) (*model.SchedulerRun, error)
	ListSentTasks(ctx context.Context, organizationID, campaignID string) ([]model.OutreachTask, error)
	GetFollowUp(ctx context.Context, organizationID, candidateID, taskType string) (*model.OutreachTask, error)
	HasReply(ctx context.Context, organizationID, candidateID string) (bool, error)
	GetCampaign(ctx context.Context, organizationID, campaignID string) (*model.Campaign, error)
	GetCandidate(ctx context.Context, organizationID, candidateID string) (*model.Candidate, error)
	InsertTasks(ctx context.Context, tasks []model.OutreachTask) (inserted, conflicts []model.OutreachTask, err error)
	AppendSchedulerRun(ctx context.Context, run model.SchedulerRun) error
	FirstUserID(ctx context.Context, organizationID string) (string, error)
}

// Dispatcher starts sending approved follow-ups. It must not block on the remote call.
type Dispatcher interface {
	Dispatch(ctx context.Context, req outreach.Request)
}

// Leaser serializes live runs of one organization.
type Leaser interface {
	TryAcquire(ctx context.Context, organizationID string) (func(context.Context) error, bool, error)
}

type Publisher interface {
	PublishFollowUp(ctx context.Context, task model.OutreachTask) error
}

type Config struct {
	Throttle time.Duration `mapstructure:"throttle"`
}

type Deps struct {
	Store      Store
	Drafter    ai.Drafter
	Dispatcher Dispatcher
	Leaser     Leaser
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Request struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	DryRun         bool   `json:"dry_run"`
	Force          bool   `json:"force"`
}

// Response is either a throttled notice or a run report, depending on Throttled.
type Response struct {
	Success           bool
	Throttled         bool
	Message           string
	DryRun            bool
	SentTasksAnalyzed int
	FollowUpsCreated  int
	TasksToCreate     []model.OutreachTask
	CreatedTasks      []model.OutreachTask
	Skipped           []string
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Throttled {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Skipped bool   `json:"skipped"`
			Message string `json:"message"`
		}{Success: r.Success, Skipped: true, Message: r.Message})
	}

	report := struct {
		Success           bool                  `json:"success"`
		DryRun            bool                  `json:"dry_run"`
		SentTasksAnalyzed int                   `json:"sent_tasks_analyzed"`
		FollowUpsCreated  int                   `json:"follow_ups_created"`
		TasksToCreate     *[]model.OutreachTask `json:"tasks_to_create,omitempty"`
		CreatedTasks      *[]model.OutreachTask `json:"created_tasks,omitempty"`
		Skipped           []string              `json:"skipped"`
	}{
		Success:           r.Success,
		DryRun:            r.DryRun,
		SentTasksAnalyzed: r.SentTasksAnalyzed,
		FollowUpsCreated:  r.FollowUpsCreated,
		Skipped:           r.Skipped,
	}
	if report.Skipped == nil {
		report.Skipped = []string{}
	}

	if r.DryRun {
		tasks := nonNil(r.TasksToCreate)
		report.TasksToCreate = &tasks
	} else {
		tasks := nonNil(r.CreatedTasks)
		report.CreatedTasks = &tasks
	}
	return json.Marshal(report)
}

type Service struct {
	deps     Deps
	rules    []Rule
	throttle time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if deps.Drafter == nil {
		deps.Drafter = ai.TemplateDrafter{}
	}

	return &Service{
		deps:     deps,
		rules:    DefaultRules,
		throttle: cfg.Throttle,
		logger:   logger.WithFields(deps.Logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// run holds the state of a single pass.
type run struct {
	processed map[string]bool
	campaigns map[string]*campaignInfo
	staged    []model.OutreachTask
	skipped   []string
}

type campaignInfo struct {
	campaign    *model.Campaign
	autoApprove bool
}

// Run executes one scheduler pass for an organization.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	if req.OrganizationID == "" {
		return nil, &ValidationError{Message: "organization_id is required"}
	}

	log := logger.WithFields(s.logger, logger.DomainFields(req.OrganizationID, req.CampaignID)...)
	log = log.With(zap.Bool("dry_run", req.DryRun), zap.Bool("force", req.Force))
	now := s.now()

	if !req.Force {
		resp, err := s.throttled(ctx, req.OrganizationID, now)
		if err != nil {
			s.deps.Metrics.SchedulerRun(metrics.OutcomeError)
			return nil, err
		}
		if resp != nil {
			log.Info("scheduler run throttled", zap.String("message", resp.Message))
			s.deps.Metrics.SchedulerRun(metrics.OutcomeThrottled)
			return resp, nil
		}
	}

	if !req.DryRun && s.deps.Leaser != nil {
		release, ok, err := s.deps.Leaser.TryAcquire(ctx, req.OrganizationID)
		switch {
		case err != nil:
			log.Warn("scheduler lease unavailable, continuing without it", zap.Error(err))
		case !ok:
			log.Info("another scheduler run holds the lease")
			s.deps.Metrics.SchedulerRun(metrics.OutcomeLocked)
			return &Response{
				Success:   true,
				Throttled: true,
				Message:   "Another scheduler run is in progress for this organization",
			}, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("failed to release scheduler lease", zap.Error(err))
				}
			}()
		}
	}

	tasks, err := s.deps.Store.ListSentTasks(ctx, req.OrganizationID, req.CampaignID)
	if err != nil {
		s.deps.Metrics.SchedulerRun(metrics.OutcomeError)
		return nil, err
	}

	r := &run{
		processed: map[string]bool{},
		campaigns: map[string]*campaignInfo{},
	}
	for i := range tasks {
		if err := s.evaluate(ctx, log, r, &tasks[i], now); err != nil {
			s.deps.Metrics.SchedulerRun(metrics.OutcomeError)
			return nil, err
		}
	}

	resp := &Response{
		Success:           true,
		DryRun:            req.DryRun,
		SentTasksAnalyzed: len(tasks),
	}

	if req.DryRun {
		resp.FollowUpsCreated = len(r.staged)
		resp.TasksToCreate = nonNil(r.staged)
		resp.Skipped = firstReasons(r.skipped)
		log.Info("scheduler dry run finished",
			zap.Int("sent_tasks_analyzed", len(tasks)),
			zap.Int("follow_ups_staged", len(r.staged)),
			zap.Int("skipped", len(r.skipped)),
		)
		s.deps.Metrics.SchedulerRun(metrics.OutcomeDryRun)
		return resp, nil
	}

	inserted, conflicts, err := s.deps.Store.InsertTasks(ctx, r.staged)
	if err != nil {
		s.deps.Metrics.SchedulerRun(metrics.OutcomeError)
		return nil, err
	}
	for _, t := range conflicts {
		r.skip(fmt.Sprintf("Candidate %s: %s already scheduled", t.CandidateID, t.TaskType))
		s.deps.Metrics.FollowUpSkipped()
	}
	for _, t := range inserted {
		s.deps.Metrics.FollowUpCreated(t.TaskType)
		log.Info("follow-up created",
			append(logger.TaskFields(t.ID, t.CandidateID),
				zap.String("task_type", t.TaskType),
				zap.String("status", t.Status),
			)...,
		)
	}

	s.publish(ctx, log, inserted)
	s.trigger(ctx, log, req.OrganizationID, inserted)
	s.record(ctx, log, req, len(tasks), len(inserted), len(r.skipped), now)

	resp.FollowUpsCreated = len(inserted)
	resp.CreatedTasks = nonNil(inserted)
	resp.Skipped = firstReasons(r.skipped)

	log.Info("scheduler run finished",
		zap.Int("sent_tasks_analyzed", len(tasks)),
		zap.Int("follow_ups_created", len(inserted)),
		zap.Int("skipped", len(r.skipped)),
	)
	s.deps.Metrics.SchedulerRun(metrics.OutcomeSuccess)
	return resp, nil
}

func (s *Service) throttled(ctx context.Context, organizationID string, now time.Time) (*Response, error) {
	last, err := s.deps.Store.LatestSchedulerRun(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}

	elapsed := now.Sub(last.CreatedAt.UTC())
	if elapsed >= s.throttle {
		return nil, nil
	}

	remaining := int(math.Ceil((s.throttle - elapsed).Minutes()))
	return &Response{
		Success:   true,
		Throttled: true,
		Message:   fmt.Sprintf("Scheduler ran recently. Next run available in %d minutes", remaining),
	}, nil
}

// evaluate applies the rules to one sent task. A candidate is handled at most once per run.
func (s *Service) evaluate(ctx context.Context, log *zap.Logger, r *run, task *model.OutreachTask, now time.Time) error {
	if task.SentAt == nil || r.processed[task.CandidateID] {
		return nil
	}

	days := int(now.Sub(task.SentAt.UTC()) / day)

	for _, rule := range s.rules {
		if days < rule.Days {
			break
		}

		existing, err := s.deps.Store.GetFollowUp(ctx, task.OrganizationID, task.CandidateID, rule.TaskType)
		if err != nil {
			return err
		}
		if existing != nil {
			r.skip(fmt.Sprintf("Candidate %s already has %s", task.CandidateID, rule.TaskType))
			s.deps.Metrics.FollowUpSkipped()
			if awaitingSend(existing.Status) {
				return nil
			}
			// Already sent, failed or cancelled: escalate to the next rule.
			continue
		}

		replied, err := s.deps.Store.HasReply(ctx, task.OrganizationID, task.CandidateID)
		if err != nil {
			return err
		}
		if replied {
			r.skip(fmt.Sprintf("Candidate %s has replied", task.CandidateID))
			s.deps.Metrics.FollowUpSkipped()
			r.processed[task.CandidateID] = true
			return nil
		}

		staged, err := s.stage(ctx, log, r, task, rule, days, now)
		if err != nil {
			return err
		}
		r.staged = append(r.staged, *staged)
		r.processed[task.CandidateID] = true
		return nil
	}

	return nil
}

func (s *Service) stage(ctx context.Context, log *zap.Logger, r *run, prev *model.OutreachTask, rule Rule, days int, now time.Time) (*model.OutreachTask, error) {
	info, err := s.campaign(ctx, log, r, prev.OrganizationID, prev.CampaignID)
	if err != nil {
		return nil, err
	}

	candidate, err := s.deps.Store.GetCandidate(ctx, prev.OrganizationID, prev.CandidateID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	in := ai.DraftInput{Stage: rule.TaskType, DaysSinceContact: days}
	if candidate != nil {
		in.CandidateName = candidate.Name
		in.CandidateTitle = candidate.CurrentTitle
		in.CandidateCompany = candidate.CurrentCompany
		in.IntelligenceScore = candidate.IntelligenceScore
	}
	if info.campaign != nil {
		in.RoleTitle = info.campaign.RoleTitle
		in.CompanyName = info.campaign.CompanyName
	}

	draft, err := s.deps.Drafter.Draft(ctx, in)
	if err != nil || draft == nil {
		log.Warn("failed to draft follow-up", zap.String(logger.FieldCandidate, prev.CandidateID), zap.Error(err))
		draft = &ai.Draft{}
	}

	status := model.TaskStatusPending
	if info.autoApprove {
		status = model.TaskStatusApprovedReady
	}

	metadata := model.JSONMap{
		"auto_generated":          true,
		"previous_task_id":        prev.ID,
		"days_since_last_contact": days,
	}
	if draft.Source != "" {
		metadata["draft_source"] = draft.Source
	}

	return &model.OutreachTask{
		ID:             uuid.NewString(),
		OrganizationID: prev.OrganizationID,
		CampaignID:     prev.CampaignID,
		CandidateID:    prev.CandidateID,
		TaskType:       rule.TaskType,
		Channel:        prev.Channel,
		Status:         status,
		Stage:          rule.TaskType,
		AttemptNumber:  prev.AttemptNumber + 1,
		Subject:        draft.Subject,
		Content:        draft.Content,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// campaign loads a campaign once per run. A missing campaign means no auto-approval.
func (s *Service) campaign(ctx context.Context, log *zap.Logger, r *run, organizationID, campaignID string) (*campaignInfo, error) {
	if info, ok := r.campaigns[campaignID]; ok {
		return info, nil
	}

	info := &campaignInfo{}
	if campaignID != "" {
		campaign, err := s.deps.Store.GetCampaign(ctx, organizationID, campaignID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Debug("campaign of sent task not found", zap.String(logger.FieldCampaign, campaignID))
		case err != nil:
			return nil, err
		default:
			info.campaign = campaign
			automation, err := DecodeAutomation(campaign.AutomationConfig)
			if err != nil {
				log.Warn("ignoring invalid automation config", zap.String(logger.FieldCampaign, campaignID), zap.Error(err))
			}
			info.autoApprove = automation.AutoApproveFollowups
		}
	}

	r.campaigns[campaignID] = info
	return info, nil
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, inserted []model.OutreachTask) {
	if s.deps.Publisher == nil {
		return
	}
	for _, t := range inserted {
		if err := s.deps.Publisher.PublishFollowUp(ctx, t); err != nil {
			log.Warn("failed to publish follow-up event", append(logger.TaskFields(t.ID, t.CandidateID), zap.Error(err))...)
		}
	}
}

// trigger fires one outreach call per campaign that received approved follow-ups.
func (s *Service) trigger(ctx context.Context, log *zap.Logger, organizationID string, inserted []model.OutreachTask) {
	if s.deps.Dispatcher == nil {
		return
	}

	var campaigns []string
	seen := map[string]bool{}
	for _, t := range inserted {
		if t.Status != model.TaskStatusApprovedReady || t.CampaignID == "" || seen[t.CampaignID] {
			continue
		}
		seen[t.CampaignID] = true
		campaigns = append(campaigns, t.CampaignID)
	}
	if len(campaigns) == 0 {
		return
	}

	userID, err := s.deps.Store.FirstUserID(ctx, organizationID)
	if err != nil {
		log.Warn("failed to look up a user for outreach", zap.Error(err))
		return
	}
	if userID == "" {
		log.Warn("organization has no user to run outreach as")
		return
	}

	for _, campaignID := range campaigns {
		s.deps.Dispatcher.Dispatch(ctx, outreach.Request{
			CampaignID:     campaignID,
			UserID:         userID,
			OrganizationID: organizationID,
		})
	}
}

func (s *Service) record(ctx context.Context, log *zap.Logger, req Request, analyzed, created, skipped int, now time.Time) {
	err := s.deps.Store.AppendSchedulerRun(ctx, model.SchedulerRun{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		EventType:      model.EventSchedulerRun,
		Metadata: model.JSONMap{
			"campaign_id":         req.CampaignID,
			"forced":              req.Force,
			"sent_tasks_analyzed": analyzed,
			"follow_ups_created":  created,
			"skipped":             skipped,
		},
		CreatedAt: now,
	})
	if err != nil {
		log.Warn("failed to record scheduler run", zap.Error(err))
	}
}

// awaitingSend reports whether a follow-up has not gone out yet. Later rules wait for it.
func awaitingSend(status string) bool {
	return status == model.TaskStatusPending || status == model.TaskStatusApprovedReady
}

func (r *run) skip(reason string) {
	r.skipped = append(r.skipped, reason)
}

func firstReasons(reasons []string) []string {
	if len(reasons) > maxSkippedReported {
		reasons = reasons[:maxSkippedReported]
	}
	return append([]string{}, reasons...)
}

func nonNil(tasks []model.OutreachTask) []model.OutreachTask {
	if tasks == nil {
		return []model.OutreachTask{}
	}
	return tasks
}
