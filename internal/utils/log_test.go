package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "non-positive limit", input: "follow-up body", limit: 0, expect: ""},
		{name: "fits", input: "Hi Ada", limit: 10, expect: "Hi Ada"},
		{name: "cut with ellipsis", input: "Quick follow-up on the role", limit: 5, expect: "Quick..."},
		{name: "trimmed before measuring", input: "  Ada  ", limit: 3, expect: "Ada"},
		{name: "multibyte runes", input: "Zoë Müller", limit: 3, expect: "Zoë..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expect, TruncateForLog(tt.input, tt.limit))
		})
	}
}

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Clip("anything", 0))
	assert.Equal(t, "Zo", Clip("Zoë", 2))
	assert.Equal(t, "Zoë", Clip("Zoë", 3))
	assert.Equal(t, "Zoë", Clip("Zoë", 10))
}

func TestSingleLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "be brief and warm", SingleLine("  be brief\n\tand   warm \n"))
	assert.Equal(t, "", SingleLine(" \n "))
}

func TestWaitFor(t *testing.T) {
	t.Parallel()

	require.NoError(t, WaitFor(context.Background(), 0))
	require.NoError(t, WaitFor(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitFor(ctx, time.Hour), context.Canceled)
}
