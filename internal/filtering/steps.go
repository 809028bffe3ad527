package filtering

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/model"
)

type statusFilter struct {
	disabled   bool
	reason     string
	statuses   []string
	allowEmpty bool
}

// NewStatus creates a filter that keeps candidates in one of the configured statuses.
// Candidates without a status are kept only when AllowEmptyStatus is set.
func NewStatus() Filter {
	return &statusFilter{}
}

func (f *statusFilter) Name() string { return "status" }

func (f *statusFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *statusFilter) IsEnabled() bool { return !f.disabled }

func (f *statusFilter) Validate(cfg *Config) error {
	f.statuses = nil
	f.allowEmpty = false
	if cfg != nil {
		f.statuses = append(f.statuses, cfg.Statuses...)
		f.allowEmpty = cfg.AllowEmptyStatus
	}
	return nil
}

func (f *statusFilter) Apply(_ context.Context, deps Deps, c *model.Candidates) (*model.Candidates, Step, error) {
	initial := c.Len()
	if len(f.statuses) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	allowed := f.statuses
	if f.allowEmpty {
		allowed = append([]string{""}, f.statuses...)
	}

	excluded := c.Keep(model.CandidateStatusField, allowed)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding candidates by status",
			zap.Strings("allowed_statuses", f.statuses),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *statusFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{
			"statuses":           strings.Join(f.statuses, ","),
			"allow_empty_status": strconv.FormatBool(f.allowEmpty),
		},
	}
}

type stageFilter struct {
	disabled bool
	reason   string
	stages   []string
}

// NewStage creates a filter that removes candidates in a closed pipeline stage.
func NewStage() Filter {
	return &stageFilter{}
}

func (f *stageFilter) Name() string { return "stage" }

func (f *stageFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *stageFilter) IsEnabled() bool { return !f.disabled }

func (f *stageFilter) Validate(cfg *Config) error {
	f.stages = nil
	if cfg != nil {
		f.stages = append(f.stages, cfg.ExcludedStages...)
	}
	return nil
}

func (f *stageFilter) Apply(_ context.Context, deps Deps, c *model.Candidates) (*model.Candidates, Step, error) {
	initial := c.Len()
	if len(f.stages) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Exclude(model.CandidateStageField, f.stages)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding candidates by stage",
			zap.Strings("excluded_stages", f.stages),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *stageFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"excluded_stages": strings.Join(f.stages, ",")},
	}
}

type candidateIDsFilter struct {
	ids []string
}

// NewCandidateIDs creates a filter that narrows the run to explicitly requested candidates.
func NewCandidateIDs() Filter {
	return &candidateIDsFilter{}
}

func (f *candidateIDsFilter) Name() string { return "candidate_ids" }

func (f *candidateIDsFilter) Disable(string) {}

func (f *candidateIDsFilter) IsEnabled() bool { return true }

func (f *candidateIDsFilter) Validate(cfg *Config) error {
	f.ids = nil
	if cfg != nil {
		f.ids = append(f.ids, cfg.CandidateIDs...)
	}
	return nil
}

func (f *candidateIDsFilter) Apply(_ context.Context, deps Deps, c *model.Candidates) (*model.Candidates, Step, error) {
	initial := c.Len()
	if len(f.ids) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(model.CandidateIDField, f.ids)
	if deps.Logger != nil {
		deps.Logger.Debug("narrowing to requested candidates",
			zap.Int("requested", len(f.ids)),
			zap.Int("dropped", len(excluded)),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *candidateIDsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Details: map[string]string{"requested": strconv.Itoa(len(f.ids))},
	}
}
