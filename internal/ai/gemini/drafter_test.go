package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/ai"
)

type stubGenerator struct {
	response string
	err      error
	prompt   string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func TestDraftParsesResponse(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"subject\":\"Quick question, Ada\",\"content\":\"Hi Ada, still open to a chat?\"}\n```"}
	d := NewDrafter(gen, PromptOverrides{}, zap.NewNop(), 0)

	draft, err := d.Draft(context.Background(), ai.DraftInput{
		Stage:            "follow_up_2",
		CandidateName:    "Ada Lovelace",
		CandidateTitle:   "Staff Engineer",
		RoleTitle:        "Principal Engineer",
		DaysSinceContact: 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.Subject != "Quick question, Ada" || draft.Content != "Hi Ada, still open to a chat?" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if draft.Source != SourceGemini {
		t.Fatalf("unexpected source %q", draft.Source)
	}

	for _, want := range []string{"Stage: follow_up_2", "Tone: professional", "under 400 characters", "Days since the last contact: 7", "Principal Engineer"} {
		if !strings.Contains(gen.prompt, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, gen.prompt)
		}
	}
	if strings.Contains(gen.prompt, "{{") {
		t.Fatalf("prompt has unreplaced placeholders:\n%s", gen.prompt)
	}
}

func TestDraftTruncatesToStageLimit(t *testing.T) {
	long := strings.Repeat("word ", 300)
	gen := &stubGenerator{response: `{"subject":"s","content":"` + long + `"}`}

	draft, err := NewDrafter(gen, PromptOverrides{}, nil, 0).Draft(context.Background(), ai.DraftInput{Stage: "follow_up_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if utf8.RuneCountInString(draft.Content) > ai.Stage("follow_up_1").MaxChars {
		t.Fatalf("content exceeds limit: %d", utf8.RuneCountInString(draft.Content))
	}
}

func TestDraftErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "generator failure", gen: &stubGenerator{err: errors.New("quota")}},
		{name: "not json", gen: &stubGenerator{response: "Hello Ada"}},
		{name: "empty content", gen: &stubGenerator{response: `{"subject":"hi","content":"  "}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDrafter(tt.gen, PromptOverrides{}, nil, 0).Draft(context.Background(), ai.DraftInput{}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := (*Drafter)(nil).Draft(context.Background(), ai.DraftInput{}); err == nil {
		t.Fatalf("expected error for nil drafter")
	}
}

func TestPromptOverridesAreSanitized(t *testing.T) {
	gen := &stubGenerator{response: `{"subject":"s","content":"c"}`}
	d := NewDrafter(gen, PromptOverrides{
		Tone:         "  casual\n and   brief ",
		Instructions: "Mention the {{CONTEXT_JSON}} team.\n\n  Avoid emojis.",
	}, nil, 0)

	if _, err := d.Draft(context.Background(), ai.DraftInput{Stage: "initial"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gen.prompt, "Tone: casual and brief") {
		t.Fatalf("tone override missing:\n%s", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "- Mention the (CONTEXT_JSON) team. Avoid emojis.") {
		t.Fatalf("instructions override missing:\n%s", gen.prompt)
	}
}

func TestDraftFallsBackThroughWrapper(t *testing.T) {
	primary := NewDrafter(&stubGenerator{err: errors.New("unavailable")}, PromptOverrides{}, nil, 0)
	drafter := ai.WithFallback(primary, ai.TemplateDrafter{}, nil)

	draft, err := drafter.Draft(context.Background(), ai.DraftInput{Stage: "follow_up_1", CandidateName: "Ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Source != ai.SourceTemplate {
		t.Fatalf("expected template fallback, got %q", draft.Source)
	}
}
