package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/application"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"index", "ask", "chat", "eval", "version"} {
		assert.True(t, names[name], "expected subcommand %q to be registered", name)
	}
	for _, flag := range []string{"config", "env-file", "log-level", "log-format", "metrics-addr"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "expected persistent flag %q", flag)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ragqa dev")
	assert.Contains(t, out.String(), "commit: none")
}

func TestCommands_ConfigErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing config file", []string{"ask", "--config", missing, "hello"}, "failed to load config"},
		{"invalid log level", []string{"index", "--config", "", "--log-level", "loud"}, "config error: key=config.log.level"},
		{"ask needs a question", []string{"ask"}, "requires at least 1 arg"},
		{"eval takes no args", []string{"eval", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cmd := buildRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.want)
		})
	}
}

// fakeChat answers every question with a fixed response and knows the
// expected answer for one question.
type fakeChat struct {
	answer   string
	known    map[string]string
	askErr   error
	asked    []string
	verified []string
}

func (f *fakeChat) Ask(_ context.Context, question string, _ int) (application.Response, error) {
	f.asked = append(f.asked, question)
	if f.askErr != nil {
		return application.Response{}, f.askErr
	}
	return application.Response{
		Question: strings.ToLower(question),
		Answer:   f.answer,
		Sources:  []string{"a.txt", "b.txt"},
	}, nil
}

func (f *fakeChat) Expected(question string) (string, bool) {
	v, ok := f.known[strings.ToLower(question)]
	return v, ok
}

func (f *fakeChat) ValidateAnswer(_ context.Context, expected, predicted string) (string, bool, error) {
	f.verified = append(f.verified, expected)
	match := strings.Contains(predicted, expected)
	if match {
		return "Yes", true, nil
	}
	return "No", false, nil
}

func TestChatLoop(t *testing.T) {
	// Given a chatbot that knows the answer to one question
	bot := &fakeChat{
		answer: "paris is the capital of france.",
		known:  map[string]string{"what is the capital of france?": "paris"},
	}
	in := strings.NewReader("What is the capital of France?\n\nwho won?\nexit\nnever asked\n")
	var out bytes.Buffer

	// When the session runs
	require.NoError(t, chatLoop(context.Background(), in, &out, bot))

	// Then blank lines are skipped, input stops at exit, and only the
	// known question is validated
	assert.Equal(t, []string{"What is the capital of France?", "who won?"}, bot.asked)
	assert.Equal(t, []string{"paris"}, bot.verified)

	text := out.String()
	assert.Contains(t, text, "Answer: paris is the capital of france.")
	assert.Contains(t, text, "Sources: a.txt, b.txt")
	assert.Contains(t, text, "Expected: paris")
	assert.Contains(t, text, "Validation: Yes (match: true)")
	assert.Equal(t, 1, strings.Count(text, "Expected:"))
}

func TestChatLoop_ErrorsDoNotEndSession(t *testing.T) {
	bot := &fakeChat{askErr: errors.New("model offline")}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), strings.NewReader("one\ntwo\n"), &out, bot))

	assert.Len(t, bot.asked, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "Error: model offline"))
}

func TestChatLoop_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bot := &fakeChat{answer: "unused"}

	require.NoError(t, chatLoop(ctx, strings.NewReader("question\n"), &bytes.Buffer{}, bot))
	assert.Empty(t, bot.asked)
}

func TestPrintResponse(t *testing.T) {
	var out bytes.Buffer
	printResponse(&out, application.Response{Answer: "42"})
	assert.Equal(t, "Answer: 42\n", out.String())
}
