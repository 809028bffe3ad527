package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/ai"
	"github.com/spigell/talent-outreach/internal/utils"
)

const (
	SourceGemini = "gemini"

	defaultMaxLogLength = 200
	maxInstructionRunes = 500
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

// PromptOverrides lets operators tune the generated messages.
type PromptOverrides struct {
	Tone         string `mapstructure:"tone"`
	Instructions string `mapstructure:"instructions"`
}

// Drafter writes follow-up messages with Gemini.
type Drafter struct {
	generator contentGenerator
	overrides PromptOverrides
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Drafter = (*Drafter)(nil)

func NewDrafter(generator contentGenerator, overrides PromptOverrides, logger *zap.Logger, maxLogLength int) *Drafter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Drafter{
		generator: generator,
		overrides: PromptOverrides{
			Tone:         sanitizeLine(overrides.Tone),
			Instructions: sanitizeBlock(overrides.Instructions),
		},
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (d *Drafter) Draft(ctx context.Context, in ai.DraftInput) (*ai.Draft, error) {
	if d == nil || d.generator == nil {
		return nil, errors.New("gemini drafter is not initialized")
	}

	payload := map[string]any{
		"candidate": map[string]any{
			"name":               in.CandidateName,
			"current_title":      in.CandidateTitle,
			"current_company":    in.CandidateCompany,
			"intelligence_score": in.IntelligenceScore,
		},
		"role": map[string]any{
			"title":   in.RoleTitle,
			"company": in.CompanyName,
		},
	}

	contextJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal draft context: %w", err)
	}

	stage := ai.Stage(in.Stage)
	prompt := d.buildPrompt(in, stage, string(contextJSON))

	d.logger.Debug("gemini generate content request",
		zap.String("stage", in.Stage),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("gemini generate content response",
		zap.String("stage", in.Stage),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	draft, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	draft.Content = ai.TruncateToLimit(draft.Content, stage.MaxChars)
	return draft, nil
}

func (d *Drafter) buildPrompt(in ai.DraftInput, stage ai.StageConfig, contextJSON string) string {
	tone := stage.Tone
	if d.overrides.Tone != "" {
		tone = d.overrides.Tone
	}

	extra := ""
	if d.overrides.Instructions != "" {
		extra = "- " + d.overrides.Instructions + "\n"
	}

	stageName := in.Stage
	if stageName == "" {
		stageName = "follow_up_1"
	}

	replacer := strings.NewReplacer(
		"{{STAGE}}", stageName,
		"{{STAGE_CONTEXT}}", stage.Context,
		"{{TONE}}", tone,
		"{{DAYS_SINCE_CONTACT}}", strconv.Itoa(in.DaysSinceContact),
		"{{MAX_CHARS}}", strconv.Itoa(stage.MaxChars),
		"{{EXTRA_INSTRUCTIONS}}", extra,
		"{{CONTEXT_JSON}}", contextJSON,
	)

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Stage: {{STAGE}}\n{{STAGE_CONTEXT}}\nTone: {{TONE}}\n\n{{CONTEXT_JSON}}\n\nJSON Response:"
	}
	return replacer.Replace(template)
}

func parseResponse(raw string) (*ai.Draft, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	content := coerceString(data["content"])
	if content == "" {
		return nil, errors.New("gemini response has no content")
	}

	return &ai.Draft{
		Subject: coerceString(data["subject"]),
		Content: content,
		Source:  SourceGemini,
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// sanitizeLine flattens operator input to a single line.
func sanitizeLine(s string) string {
	s = strings.NewReplacer("{{", "(", "}}", ")").Replace(utils.SingleLine(s))
	return utils.TruncateForLog(s, maxInstructionRunes)
}

func sanitizeBlock(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = sanitizeLine(line); line != "" {
			kept = append(kept, line)
		}
	}
	return utils.TruncateForLog(strings.Join(kept, " "), maxInstructionRunes)
}
