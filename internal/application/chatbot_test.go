package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

func TestChatbot_Ask(t *testing.T) {
	f := newQAFixture(t)
	bot, err := NewChatbot(f.registry, WithChatTopK(1))
	require.NoError(t, err)

	resp, err := bot.Ask(context.Background(), "  What is the capital of FRANCE?  ", 0)
	require.NoError(t, err)

	assert.Equal(t, "what is the capital of france?", resp.Question)
	assert.Equal(t, "paris is the capital of france.", resp.Answer)
	assert.Equal(t, []string{"france.txt"}, resp.Sources)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "/docs/france.txt", resp.Chunks[0].Source)
	assert.EqualValues(t, 1, resp.Usage.Calls)

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question:\nwhat is the capital of france?")
	assert.Contains(t, prompts[0], "paris is the capital of france.")
}

func TestChatbot_AskTopKOverride(t *testing.T) {
	f := newQAFixture(t)
	f.llm.AddResponse(testutils.MockResponse{Pattern: "germany", Response: "Berlin"})
	bot, err := NewChatbot(f.registry, WithChatTopK(1))
	require.NoError(t, err)

	resp, err := bot.Ask(context.Background(), "What is the capital of Germany?", 2)
	require.NoError(t, err)

	assert.Equal(t, "Berlin", resp.Answer)
	assert.Equal(t, []string{"germany.txt", "france.txt"}, resp.Sources)
}

func TestChatbot_AskErrors(t *testing.T) {
	t.Run("blank question", func(t *testing.T) {
		bot, err := NewChatbot(newQAFixture(t).registry)
		require.NoError(t, err)

		_, err = bot.Ask(context.Background(), "   ", 0)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("model failure", func(t *testing.T) {
		f := newQAFixture(t)
		f.llm.SetError(errors.New("model unavailable"))
		bot, err := NewChatbot(f.registry)
		require.NoError(t, err)

		_, err = bot.Ask(context.Background(), "What is the capital of France?", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution failed at answer")
		assert.Contains(t, err.Error(), "model unavailable")
	})

	t.Run("canceled context", func(t *testing.T) {
		bot, err := NewChatbot(newQAFixture(t).registry)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = bot.Ask(ctx, "What is the capital of France?", 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewChatbot_MissingDependencies(t *testing.T) {
	registry := NewDefaultUnitRegistry(units.Deps{})
	_, err := NewChatbot(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieve")
}

func TestChatbot_ValidateAnswer(t *testing.T) {
	tests := []struct {
		name        string
		expected    string
		predicted   string
		wantVerdict string
		wantMatch   bool
	}{
		{"contained answer", "Paris", "Paris is the capital of France.", "Yes", true},
		{"case differs", "PARIS", "paris", "Yes", true},
		{"different answer", "Rome", "Paris is the capital of France.", "No", false},
	}

	bot, err := NewChatbot(newQAFixture(t).registry)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, match, err := bot.ValidateAnswer(context.Background(), tt.expected, tt.predicted)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, verdict)
			assert.Equal(t, tt.wantMatch, match)
		})
	}
}

func TestChatbot_Dictionary(t *testing.T) {
	bot, err := NewChatbot(newQAFixture(t).registry)
	require.NoError(t, err)

	_, ok := bot.Expected("What is the capital of France?")
	assert.False(t, ok)

	bot.LoadDictionary([]domain.QueryCase{
		{Question: "What is the capital of France?", Answer: "Paris"},
		{Question: "Who wrote Faust?", Answer: "Goethe"},
	})

	answer, ok := bot.Expected("  what is the CAPITAL of france?")
	require.True(t, ok)
	assert.Equal(t, "Paris", answer)

	_, ok = bot.Expected("who wrote hamlet?")
	assert.False(t, ok)
}
