package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-ragqa/internal/application"
	"github.com/ahrav/go-ragqa/internal/domain"
)

// =============================================================================
// Chat and eval
// =============================================================================

// chatService is the part of the chatbot the REPL drives.
type chatService interface {
	Ask(ctx context.Context, question string, topK int) (application.Response, error)
	Expected(question string) (string, bool)
	ValidateAnswer(ctx context.Context, expected, predicted string) (string, bool, error)
}

func runChat(cmd *cobra.Command, opts *globalOptions, queries string) error {
	env, err := setupRuntime(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer env.close()

	bot, err := env.components.NewChatbot()
	if err != nil {
		return err
	}

	path := queries
	if path == "" {
		path = env.cfg.Evaluation.Queries
	}
	cases, err := application.LoadQuerySet(path)
	switch {
	case err == nil:
		bot.LoadDictionary(cases)
		env.logger.Info("loaded known answers", "path", path, "count", len(cases))
	case queries == "" && errors.Is(err, fs.ErrNotExist):
		// The default query set is optional for chat.
	default:
		return err
	}

	return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), bot)
}

// chatLoop answers one question per input line until EOF, "exit" or
// "quit". A failed question is reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, bot chatService) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `Ask a question ("exit" to quit).`)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		resp, err := bot.Ask(ctx, line, 0)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printResponse(out, resp)

		expected, ok := bot.Expected(line)
		if !ok {
			continue
		}
		verdict, match, err := bot.ValidateAnswer(ctx, expected, resp.Answer)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Expected: %s\n", expected)
		fmt.Fprintf(out, "Validation: %s (match: %t)\n", verdict, match)
	}
}

func printResponse(out io.Writer, resp application.Response) {
	fmt.Fprintf(out, "Answer: %s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintf(out, "Sources: %s\n", strings.Join(resp.Sources, ", "))
	}
}

func runEval(cmd *cobra.Command, opts *globalOptions, queries, output string, topK int) error {
	env, err := setupRuntime(cmd, opts, func(cfg *application.Config) {
		if queries != "" {
			cfg.Evaluation.Queries = queries
		}
		if output != "" {
			cfg.Evaluation.Output = output
		}
		if topK > 0 {
			cfg.Retrieval.EvalTopK = topK
		}
	})
	if err != nil {
		return err
	}
	defer env.close()

	cases, err := application.LoadQuerySet(env.cfg.Evaluation.Queries)
	if err != nil {
		return err
	}
	evaluator, err := env.components.NewBatchEvaluator()
	if err != nil {
		return err
	}
	results, err := evaluator.Evaluate(cmd.Context(), cases)
	if err != nil {
		return err
	}
	if err := application.WriteCSVFile(env.cfg.Evaluation.Output, results); err != nil {
		return err
	}

	s := domain.Summarize(results)
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Queries\t%d\n", s.Queries)
	fmt.Fprintf(w, "Answer match rate\t%.3f\n", s.MatchRate)
	fmt.Fprintf(w, "Exact match rate\t%.3f\n", s.ExactMatchRate)
	fmt.Fprintf(w, "Mean token F1\t%.3f\n", s.MeanF1)
	fmt.Fprintf(w, "Mean precision@%d\t%.3f\n", env.cfg.Retrieval.EvalTopK, s.MeanPrecisionAtK)
	fmt.Fprintf(w, "Mean nDCG@%d\t%.3f\n", env.cfg.Retrieval.EvalTopK, s.MeanNDCGAtK)
	fmt.Fprintf(w, "Mean fuzzy similarity\t%.3f\n", s.MeanFuzzySimilarity)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Results written to %s\n", env.cfg.Evaluation.Output)
	return nil
}
