package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

func TestIsMatch(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"Yes", true},
		{"yes.", true},
		{"YES, it is present", true},
		{"No", false},
		{"", false},
		{"Eyes", true},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMatch(tt.response))
		})
	}
}

func TestValidationUnit_Execute(t *testing.T) {
	client := testutils.NewMockLLMClient("mock")
	unit, err := NewValidationUnit("validate", client, DefaultValidationConfig())
	require.NoError(t, err)
	require.NoError(t, unit.Validate())

	tests := []struct {
		name      string
		expected  string
		predicted string
		wantMatch bool
		wantResp  string
	}{
		{name: "contained", expected: "Paris", predicted: "The capital is PARIS.", wantMatch: true, wantResp: "Yes"},
		{name: "not contained", expected: "Paris", predicted: "Lyon", wantMatch: false, wantResp: "No"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.With(domain.NewState(), domain.KeyExpected, tt.expected)
			state = domain.With(state, domain.KeyAnswer, tt.predicted)

			next, err := unit.Execute(context.Background(), state)
			require.NoError(t, err)

			resp, _ := domain.Get(next, domain.KeyValidation)
			match, _ := domain.Get(next, domain.KeyMatchFlag)
			assert.Equal(t, tt.wantResp, resp)
			assert.Equal(t, tt.wantMatch, match)
		})
	}
}

func TestValidationUnit_LowercasesBothAnswers(t *testing.T) {
	client := testutils.NewMockLLMClient("mock")
	unit, err := NewValidationUnit("validate", client, DefaultValidationConfig())
	require.NoError(t, err)

	_, err = unit.Check(context.Background(), "Eiffel TOWER", "The Eiffel Tower")
	require.NoError(t, err)

	prompts := client.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Expected Answer:\neiffel tower\n")
	assert.Contains(t, prompts[0], "Predicted Answer:\nthe eiffel tower\n")
}

func TestValidationUnit_SkipsWithoutExpected(t *testing.T) {
	client := testutils.NewMockLLMClient("mock")
	unit, err := NewValidationUnit("validate", client, DefaultValidationConfig())
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyAnswer, "Paris")
	next, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	_, ok := domain.Get(next, domain.KeyMatchFlag)
	assert.False(t, ok)
	assert.Empty(t, client.Prompts())
}

func TestValidationUnit_MissingAnswer(t *testing.T) {
	unit, err := NewValidationUnit("validate", testutils.NewMockLLMClient("mock"), DefaultValidationConfig())
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyExpected, "Paris")
	_, err = unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestNewValidationFromConfig(t *testing.T) {
	_, err := NewValidationFromConfig("validate", map[string]any{"max_tokens": 0}, Deps{LLM: testutils.NewMockLLMClient("mock")})
	assert.ErrorIs(t, err, ErrConfigValidation)

	unit, err := NewValidationFromConfig("validate", map[string]any{"timeout": "10s"}, Deps{LLM: testutils.NewMockLLMClient("mock")})
	require.NoError(t, err)
	assert.Equal(t, "validate", unit.Name())
}
