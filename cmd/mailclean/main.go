package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	workers int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailclean",
		Short: "mailclean - Email cleaning and thank-you scoring tools",
		Long: `mailclean runs the mail-sentinel cleaning pipeline from the command line.

It strips reply chains, greetings, metadata and signatures from email bodies,
masks file names and addresses, deduplicates thread paragraphs, cleans whole
datasets (CSV, JSON lines or Parquet) and builds the reference vector used
to score emails.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker goroutines for batch work (default is one per CPU)")

	// Add commands
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(referenceCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(clearCacheCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cleanCmd() *cobra.Command {
	var eml, report bool

	cmd := &cobra.Command{
		Use:   "clean [file]",
		Short: "Clean one email",
		Long:  "Run the full cleaning pipeline over one email read from a file or stdin and print the cleaned text.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(args, eml, report)
		},
	}

	cmd.Flags().BoolVar(&eml, "eml", false, "Input is an RFC 822 message")
	cmd.Flags().BoolVar(&report, "report", false, "Print the cleaned text with per-rule findings as JSON")

	return cmd
}

func threadCmd() *cobra.Command {
	var asJSON, clean bool

	cmd := &cobra.Command{
		Use:   "thread <file>...",
		Short: "Join a thread and drop repeated paragraphs",
		Long: `Join the emails of one thread, oldest first, and keep a single copy of
every paragraph. Each file is one email, or with --json a single file holds
a JSON array of email bodies.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThread(cmd.Context(), args, asJSON, clean)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Read the thread from a JSON array of strings")
	cmd.Flags().BoolVar(&clean, "clean", false, "Clean every email before joining")

	return cmd
}

func batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <input> <output>",
		Short: "Clean a dataset",
		Long: `Clean every email of a dataset and write the result. The format of each
side follows its extension: .csv, .json/.jsonl/.ndjson or .parquet.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0], args[1])
		},
	}
}

func referenceCmd() *cobra.Command {
	var (
		label int
		out   string
	)

	cmd := &cobra.Command{
		Use:   "reference <dataset>",
		Short: "Build the reference vector",
		Long: `Clean and embed every example carrying the label and save their average
embedding as the reference vector. When the vector store is enabled the
examples are stored as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReference(cmd.Context(), args[0], label, out)
		},
	}

	cmd.Flags().IntVar(&label, "label", 1, "Label of the examples to average")
	cmd.Flags().StringVar(&out, "out", "", "Reference file (default is scoring.reference_path)")

	return cmd
}

func scoreCmd() *cobra.Command {
	var eml, verbose bool

	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score one email against the reference vector",
		Long:  "Print 1 when the email reads as a thank-you message and 0 otherwise.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), args, eml, verbose)
		},
	}

	cmd.Flags().BoolVar(&eml, "eml", false, "Input is an RFC 822 message")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print distance and threshold as JSON")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector store and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context())
		},
	}
}

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every cached embedding",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearCache(cmd.Context())
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, file and environment overrides, with secrets masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig()
		},
	}
}
