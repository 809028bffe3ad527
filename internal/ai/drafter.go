// Package ai drafts follow-up messages, from templates or from a language model.
package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/utils"
)

const (
	SourceTemplate = "template"

	defaultStage   = "follow_up_1"
	boundaryFactor = 0.5
	ellipsis       = "..."
)

// DraftInput is everything a drafter may reference.
type DraftInput struct {
	Stage             string
	CandidateName     string
	CandidateTitle    string
	CandidateCompany  string
	IntelligenceScore int
	RoleTitle         string
	CompanyName       string
	DaysSinceContact  int
}

type Draft struct {
	Subject string
	Content string
	Source  string
}

type Drafter interface {
	Draft(ctx context.Context, in DraftInput) (*Draft, error)
}

// StageConfig steers the message of one outreach stage.
type StageConfig struct {
	Context  string
	Tone     string
	MaxChars int
}

var stages = map[string]StageConfig{
	"initial": {
		Context:  "First outreach. Be warm, specific, and show you've done research.",
		Tone:     "genuinely interested",
		MaxChars: 1000,
	},
	"follow_up_1": {
		Context:  "Follow-up after no response. Add new value, reference timing signals.",
		Tone:     "helpful and understanding",
		MaxChars: 600,
	},
	"follow_up_2": {
		Context:  "Final follow-up. Brief, respectful, leave door open.",
		Tone:     "professional",
		MaxChars: 400,
	},
}

// Stage returns the configuration of a stage, falling back to the first follow-up.
func Stage(name string) StageConfig {
	if cfg, ok := stages[name]; ok {
		return cfg
	}
	return stages[defaultStage]
}

// TemplateDrafter fills fixed per-stage templates. It never fails.
type TemplateDrafter struct{}

func (TemplateDrafter) Draft(_ context.Context, in DraftInput) (*Draft, error) {
	first := firstName(in.CandidateName)

	var subject, content string
	switch in.Stage {
	case "follow_up_2":
		role := in.RoleTitle
		if role == "" {
			role = "opportunity"
		}
		subject = fmt.Sprintf("One last note, %s", first)
		content = fmt.Sprintf("Hi %s,\n\nFinal follow-up on the %s I mentioned.\n\n"+
			"No worries if the timing isn't right. Door's always open.\n\nBest regards", first, role)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Hi %s,\n\nFollowing up on my earlier message. ", first)
		if in.IntelligenceScore >= 70 {
			b.WriteString("Based on your profile, I genuinely think this could be aligned with where you want to go.\n\n")
		} else {
			b.WriteString("I think this could be worth exploring.\n\n")
		}
		b.WriteString("Happy to share more details whenever works for you.\n\nBest regards")
		subject = fmt.Sprintf("Quick thought, %s", first)
		content = b.String()
	}

	return &Draft{
		Subject: subject,
		Content: TruncateToLimit(content, Stage(in.Stage).MaxChars),
		Source:  SourceTemplate,
	}, nil
}

// WithFallback returns a drafter that uses fallback whenever primary fails.
func WithFallback(primary, fallback Drafter, logger *zap.Logger) Drafter {
	if primary == nil {
		return fallback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackDrafter{primary: primary, fallback: fallback, logger: logger}
}

type fallbackDrafter struct {
	primary  Drafter
	fallback Drafter
	logger   *zap.Logger
}

func (f *fallbackDrafter) Draft(ctx context.Context, in DraftInput) (*Draft, error) {
	draft, err := f.primary.Draft(ctx, in)
	if err == nil && draft != nil && strings.TrimSpace(draft.Content) != "" {
		return draft, nil
	}

	f.logger.Warn("drafting failed, using template",
		zap.String("stage", in.Stage),
		zap.Error(err),
	)
	return f.fallback.Draft(ctx, in)
}

// TruncateToLimit cuts text to maxChars runes, preferring a sentence and then a word boundary.
func TruncateToLimit(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	if maxChars <= len(ellipsis) {
		return utils.Clip(text, maxChars)
	}

	cut := string(runes[:maxChars])
	if i := strings.LastIndex(cut, ". "); i > int(float64(len(cut))*boundaryFactor) {
		return cut[:i+1]
	}

	// The ellipsis has to fit inside the limit too.
	room := string(runes[:maxChars-len(ellipsis)])
	if i := strings.LastIndex(room, " "); i > int(float64(len(room))*boundaryFactor) {
		return strings.TrimRight(room[:i], " ") + ellipsis
	}
	return utils.TruncateForLog(cut, maxChars-len(ellipsis))
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}
