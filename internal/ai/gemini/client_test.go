package gemini

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type scriptedChat struct {
	owner *scriptedChats
}

func (c *scriptedChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.owner.calls++
	if len(parts) > 0 {
		c.owner.lastPrompt = parts[0].Text
	}
	if len(c.owner.errs) > 0 {
		err := c.owner.errs[0]
		c.owner.errs = c.owner.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: c.owner.reply}}},
		}},
	}, nil
}

type scriptedChats struct {
	errs       []error
	reply      string
	calls      int
	lastPrompt string
	lastModel  string
}

func (s *scriptedChats) Create(_ context.Context, model string, _ *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	s.lastModel = model
	return &scriptedChat{owner: s}, nil
}

func newTestGenerator(chats *scriptedChats, retries int) *Generator {
	return &Generator{
		chats:      chats,
		model:      defaultModel,
		maxRetries: retries,
		logger:     zap.NewNop(),
	}
}

func TestGenerateContentRetriesTemporaryErrors(t *testing.T) {
	chats := &scriptedChats{
		errs: []error{
			genai.APIError{Code: 503, Message: "overloaded"},
			&genai.APIError{Code: 429, Message: "Resource exhausted, retry in 0s"},
		},
		reply: `{"subject":"Hi","content":"Hello"}`,
	}

	out, err := newTestGenerator(chats, 3).GenerateContent(context.Background(), "  write a note  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"subject":"Hi","content":"Hello"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if chats.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", chats.calls)
	}
	if chats.lastPrompt != "write a note" {
		t.Fatalf("prompt must be trimmed, got %q", chats.lastPrompt)
	}
	if chats.lastModel != defaultModel {
		t.Fatalf("unexpected model %q", chats.lastModel)
	}
}

func TestGenerateContentStopsOnPermanentErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{name: "bad request", err: genai.APIError{Code: 400, Message: "invalid"}, calls: 1},
		{name: "long quota delay", err: genai.APIError{Code: 429, Message: "quota exceeded, retry after 120s"}, calls: 1},
		{name: "non api error", err: errors.New("dial tcp: refused"), calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chats := &scriptedChats{errs: []error{tt.err, tt.err, tt.err}, reply: "{}"}

			_, err := newTestGenerator(chats, 3).GenerateContent(context.Background(), "prompt")
			if err == nil {
				t.Fatalf("expected error")
			}
			if chats.calls != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, chats.calls)
			}
		})
	}
}

func TestGenerateContentGivesUpAfterMaxRetries(t *testing.T) {
	overloaded := genai.APIError{Code: 500, Message: "internal"}
	chats := &scriptedChats{errs: []error{overloaded, overloaded, overloaded}}

	_, err := newTestGenerator(chats, 2).GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected error")
	}
	if chats.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", chats.calls)
	}
}

func TestGenerateContentValidation(t *testing.T) {
	if _, err := (*Generator)(nil).GenerateContent(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for nil generator")
	}
	if _, err := newTestGenerator(&scriptedChats{}, 1).GenerateContent(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
	if _, err := newTestGenerator(&scriptedChats{reply: "  "}, 1).GenerateContent(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for empty response")
	}
	if _, err := NewGenerator(context.Background(), " ", "", 0, nil); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
