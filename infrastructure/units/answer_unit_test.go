package units

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

func retrieved(contents ...string) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, len(contents))
	for i, c := range contents {
		out[i] = domain.RetrievedChunk{
			Chunk: domain.Chunk{ID: c, Source: "/docs/facts.txt", Content: c},
			Score: 1 - float64(i)*0.1,
		}
	}
	return out
}

func TestNewAnswerUnit(t *testing.T) {
	client := testutils.NewMockLLMClient("mock")

	tests := []struct {
		name    string
		unit    string
		config  AnswerConfig
		wantErr string
	}{
		{name: "defaults", unit: "answer", config: DefaultAnswerConfig()},
		{name: "empty name", unit: "", config: DefaultAnswerConfig(), wantErr: "unit name cannot be empty"},
		{name: "short prompt", unit: "answer", config: func() AnswerConfig {
			c := DefaultAnswerConfig()
			c.Prompt = "hi"
			return c
		}(), wantErr: "configuration validation failed"},
		{name: "bad template", unit: "answer", config: func() AnswerConfig {
			c := DefaultAnswerConfig()
			c.Prompt = "Question: {{.Question"
			return c
		}(), wantErr: "failed to parse prompt template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewAnswerUnit(tt.unit, client, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, unit.Validate())
		})
	}

	_, err := NewAnswerUnit("answer", nil, DefaultAnswerConfig())
	assert.ErrorIs(t, err, ErrLLMClientNil)
}

func TestAnswerUnit_RenderPrompt(t *testing.T) {
	unit, err := NewAnswerUnit("answer", testutils.NewMockLLMClient("mock"), DefaultAnswerConfig())
	require.NoError(t, err)

	prompt, err := unit.RenderPrompt("what is the capital of france?", retrieved("chunk one", "chunk two"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "You are an intelligent assistant"))
	assert.Contains(t, prompt, "Context:\nchunk one\n\nchunk two\n\nQuestion:\nwhat is the capital of france?")
	assert.Contains(t, prompt, `say "Can't find Information".`)
}

func TestAnswerUnit_Execute(t *testing.T) {
	client := testutils.NewMockLLMClient("mock")
	client.AddResponse(testutils.MockResponse{Pattern: "capital of france", Response: "  Paris  "})
	unit, err := NewAnswerUnit("answer", client, DefaultAnswerConfig())
	require.NoError(t, err)

	t.Run("answers from context", func(t *testing.T) {
		// Given a question and retrieved chunks
		state := domain.With(domain.NewState(), domain.KeyQuestion, "what is the capital of france?")
		state = domain.With(state, domain.KeyChunks, retrieved("paris is the capital of france."))

		// When the unit runs
		next, err := unit.Execute(context.Background(), state)
		require.NoError(t, err)

		// Then the trimmed answer and usage are recorded
		answer, ok := domain.Get(next, domain.KeyAnswer)
		require.True(t, ok)
		assert.Equal(t, "Paris", answer)
		assert.EqualValues(t, 1, next.GetUsage().Calls)
		assert.Positive(t, next.GetUsage().Tokens)

		_, ok = domain.Get(state, domain.KeyAnswer)
		assert.False(t, ok, "input state must not change")
	})

	t.Run("no chunks", func(t *testing.T) {
		state := domain.With(domain.NewState(), domain.KeyQuestion, "who wrote hamlet?")

		next, err := unit.Execute(context.Background(), state)
		require.NoError(t, err)

		answer, _ := domain.Get(next, domain.KeyAnswer)
		assert.Equal(t, NotFoundAnswer, answer)
	})

	t.Run("missing question", func(t *testing.T) {
		_, err := unit.Execute(context.Background(), domain.NewState())
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("model failure", func(t *testing.T) {
		failing := testutils.NewMockLLMClient("mock")
		boom := errors.New("model unavailable")
		failing.SetError(boom)
		u, err := NewAnswerUnit("answer", failing, DefaultAnswerConfig())
		require.NoError(t, err)

		state := domain.With(domain.NewState(), domain.KeyQuestion, "q?")
		_, err = u.Execute(context.Background(), state)
		assert.ErrorIs(t, err, boom)
	})
}

func TestNewAnswerFromConfig(t *testing.T) {
	deps := Deps{LLM: testutils.NewMockLLMClient("mock")}

	unit, err := NewAnswerFromConfig("answer", map[string]any{
		"max_tokens":  256,
		"temperature": 0.2,
		"system":      "Answer in English.",
	}, deps)
	require.NoError(t, err)

	au := unit.(*AnswerUnit)
	assert.Equal(t, 256, au.config.MaxTokens)
	assert.InDelta(t, 0.2, au.config.Temperature, 1e-9)
	assert.Equal(t, DefaultAnswerPrompt, au.config.Prompt)

	_, err = NewAnswerFromConfig("answer", nil, Deps{})
	assert.ErrorIs(t, err, ErrLLMClientNil)
}
