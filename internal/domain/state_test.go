package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewState verifies that a new State instance is initialized correctly.
func TestNewState(t *testing.T) {
	state := NewState()

	assert.NotNil(t, state.data, "NewState() should initialize the data map.")
	assert.Empty(t, state.Keys(), "NewState() should create an empty state.")
}

func TestState_Get(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() State
		assert func(t *testing.T, state State)
	}{
		{
			name: "get existing string value",
			setup: func() State {
				return With(NewState(), KeyQuestion, "what is the refund window?")
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyQuestion)
				assert.True(t, ok)
				assert.Equal(t, "what is the refund window?", got)
			},
		},
		{
			name:  "get non-existent key",
			setup: NewState,
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyAnswer)
				assert.False(t, ok, "Get() should not find a non-existent key.")
			},
		},
		{
			name: "get retrieved chunks",
			setup: func() State {
				chunks := []RetrievedChunk{
					{Chunk: Chunk{ID: "a", Content: "alpha", Source: "docs/a.txt"}, Score: 0.9},
					{Chunk: Chunk{ID: "b", Content: "beta", Source: "docs/b.txt", Page: 2}, Score: 0.4},
				}
				return With(NewState(), KeyChunks, chunks)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyChunks)
				require.True(t, ok)
				require.Len(t, got, 2)
				assert.Equal(t, "alpha", got[0].Content)
				assert.Equal(t, 2, got[1].Page)
			},
		},
		{
			name: "get relevance flags",
			setup: func() State {
				return With(NewState(), KeyRelevanceFlags, []int{1, 0, 1})
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyRelevanceFlags)
				require.True(t, ok)
				assert.Equal(t, []int{1, 0, 1}, got)
			},
		},
		{
			name: "type mismatch on raw write",
			setup: func() State {
				return NewState().WithRaw(KeyTopK.Name(), "ten")
			},
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyTopK)
				assert.False(t, ok, "Get() should reject a value of the wrong type.")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assert(t, tt.setup())
		})
	}
}

func TestState_With(t *testing.T) {
	// Given a state holding a question
	original := With(NewState(), KeyQuestion, "first")

	// When the question is overwritten
	updated := With(original, KeyQuestion, "second")

	// Then the original is untouched
	got, _ := Get(original, KeyQuestion)
	assert.Equal(t, "first", got)
	got, _ = Get(updated, KeyQuestion)
	assert.Equal(t, "second", got)
}

func TestState_WithMultiple(t *testing.T) {
	state := NewState().WithMultiple(map[string]any{
		KeyQuestion.Name(): "q",
		KeyExpected.Name(): "a",
		KeyTopK.Name():     6,
	})

	q, ok := Get(state, KeyQuestion)
	assert.True(t, ok)
	assert.Equal(t, "q", q)

	k, ok := Get(state, KeyTopK)
	assert.True(t, ok)
	assert.Equal(t, 6, k)

	assert.Equal(t, []string{"expected", "question", "top_k"}, state.Keys())
}

func TestState_DeepCopy(t *testing.T) {
	t.Run("slices written in are copied", func(t *testing.T) {
		flags := []int{1, 0}
		state := With(NewState(), KeyRelevanceFlags, flags)

		flags[0] = 0

		got, _ := Get(state, KeyRelevanceFlags)
		assert.Equal(t, []int{1, 0}, got, "Mutating the input slice must not change the state.")
	})

	t.Run("slices read out are copied", func(t *testing.T) {
		state := With(NewState(), KeyChunks, []RetrievedChunk{
			{Chunk: Chunk{ID: "a", Embedding: []float32{1, 2}}},
		})

		got, _ := Get(state, KeyChunks)
		got[0].ID = "mutated"
		got[0].Embedding[0] = 99

		again, _ := Get(state, KeyChunks)
		assert.Equal(t, "a", again[0].ID)
		assert.Equal(t, float32(1), again[0].Embedding[0])
	})

	t.Run("maps are copied", func(t *testing.T) {
		key := NewKey[map[string]string]("dictionary")
		m := map[string]string{"q": "a"}
		state := With(NewState(), key, m)

		m["q"] = "changed"

		got, _ := Get(state, key)
		assert.Equal(t, "a", got["q"])
	})

	t.Run("nil slices stay nil", func(t *testing.T) {
		state := With(NewState(), KeyChunks, nil)

		got, ok := Get(state, KeyChunks)
		assert.True(t, ok)
		assert.Nil(t, got)
	})
}

func TestState_Usage(t *testing.T) {
	state := NewState().RecordUsage(100, 1).RecordUsage(50, 1)

	usage := state.GetUsage()
	assert.Equal(t, int64(150), usage.Tokens)
	assert.Equal(t, int64(2), usage.Calls)
	assert.Equal(t, Usage{}, NewState().GetUsage())
}

func TestState_String(t *testing.T) {
	state := With(NewState(), KeyAnswer, "paris")
	assert.Contains(t, state.String(), "paris")
}

func TestState_ConcurrentAccess(t *testing.T) {
	base := With(NewState(), KeyQuestion, "shared")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := With(base, KeyAnswer, fmt.Sprintf("answer-%d", i))
			got, ok := Get(next, KeyAnswer)
			assert.True(t, ok)
			assert.Equal(t, fmt.Sprintf("answer-%d", i), got)

			q, _ := Get(base, KeyQuestion)
			assert.Equal(t, "shared", q)
		}(i)
	}
	wg.Wait()

	_, ok := Get(base, KeyAnswer)
	assert.False(t, ok, "Writes in goroutines must not leak into the shared base state.")
}
