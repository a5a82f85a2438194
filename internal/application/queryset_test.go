package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/domain"
)

func writeQueryFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadQuerySet(t *testing.T) {
	want := []domain.QueryCase{
		{Question: "What is the capital of France?", Answer: "Paris"},
		{Question: "Who wrote Faust?", Answer: "Goethe"},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "query.json",
			content: `{"queries": [
				{"question": "What is the capital of France?", "answer": "Paris"},
				{"question": "Who wrote Faust?", "answer": "Goethe"}
			]}`,
		},
		{
			name: "yaml",
			file: "query.yaml",
			content: `queries:
  - question: What is the capital of France?
    answer: Paris
  - question: Who wrote Faust?
    answer: Goethe
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadQuerySet(writeQueryFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadQuerySet_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadQuerySet(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := LoadQuerySet(writeQueryFile(t, "query.json", `{"queries": [`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing query set")
	})

	t.Run("no queries", func(t *testing.T) {
		_, err := LoadQuerySet(writeQueryFile(t, "query.json", `{"queries": []}`))
		assert.ErrorIs(t, err, ErrEmptyQuerySet)
	})

	t.Run("blank question", func(t *testing.T) {
		_, err := LoadQuerySet(writeQueryFile(t, "query.json",
			`{"queries": [{"question": "ok?", "answer": "a"}, {"question": "  ", "answer": "b"}]}`))
		require.Error(t, err)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"queries[1]: question is empty"}, verr.Errors)
	})
}
