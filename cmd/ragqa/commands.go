package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	envFiles    []string
	logLevel    string
	logFormat   string
	metricsAddr string
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ragqa",
		Short: "Question answering over your documents, with an evaluation harness",
		Long: `ragqa indexes a directory of text documents into a vector store and
answers questions from them with a language model.

The eval command replays a labelled query set and reports exact match,
token F1, precision@k and nDCG@k for every question.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "Additional .env files to load")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(
		buildIndexCmd(opts),
		buildAskCmd(opts),
		buildChatCmd(opts),
		buildEvalCmd(opts),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildIndexCmd(opts *globalOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the vector index from the document directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and re-index files as they change")
	return cmd
}

func buildAskCmd(opts *globalOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, args, topK)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	return cmd
}

func buildChatCmd(opts *globalOptions) *cobra.Command {
	var queries string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question answering session",
		Long: `Reads questions from standard input until EOF or "exit".

When a question appears in the query set, the expected answer and the
model's match verdict are printed with the answer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, queries)
		},
	}
	cmd.Flags().StringVarP(&queries, "queries", "q", "", "Query set with known answers (default from config)")
	return cmd
}

func buildEvalCmd(opts *globalOptions) *cobra.Command {
	var (
		queries string
		out     string
		topK    int
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a labelled query set and write a CSV report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts, queries, out, topK)
		},
	}
	cmd.Flags().StringVarP(&queries, "queries", "q", "", "Query set file (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV output path (default from config)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks retrieved and ranked per query (default from config)")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragqa %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}
