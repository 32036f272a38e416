package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/app"
	"github.com/raaihank/text-anonymizer/internal/batch"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Detect and replace PII in free text",
		Long: `anonymize finds personal data in text with pattern rules and
named-entity models, then replaces it with consistent tokens, masks or
short hashes.

Every input text (or every batch record) is its own session: the same
entity gets the same token within a session and unrelated tokens across
sessions.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logging.level")

	rootCmd.AddCommand(textCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(cacheClearCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, the stderr logger and the shared detectors
func setup() (*config.Config, *logger.Logger, *app.Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyLogLevel(cfg, logLevel); err != nil {
		return nil, nil, nil, err
	}

	log, err := app.NewLogger(cfg, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	services, err := app.Initialize(cfg, log, false)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, services, nil
}

// applyLogLevel overrides logging.level when the flag was given
func applyLogLevel(cfg *config.Config, level string) error {
	if level == "" {
		return nil
	}
	cfg.Logging.Level = level
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

func textCmd() *cobra.Command {
	var strategy, language string

	cmd := &cobra.Command{
		Use:   "text <text|->",
		Short: "Anonymize a single text",
		Long: `Anonymize a single text and print the result as JSON.

Use "-" to read the text from stdin.

Example:
  anonymize text "John Doe lives in Lisbon, call +351 912 345 678"
  anonymize text --strategy masking --language en - < letter.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}
			if text == "" {
				return fmt.Errorf("no text provided")
			}

			cfg, log, services, err := setup()
			if err != nil {
				return err
			}
			defer services.Close()
			defer log.Sync()

			if strategy == "" {
				strategy = cfg.Anonymizer.DefaultStrategy
			}
			if language == "" {
				language = cfg.Anonymizer.DefaultLanguage
			}

			engine, err := anonymizer.New(strategy, language, services.Patterns, services.Semantic,
				anonymizer.WithAllowedStrategies(cfg.Anonymizer.SupportedStrategies),
				anonymizer.WithLogger(log.WithComponent("anonymizer")),
			)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			return printJSON(cmd.OutOrStdout(), engine.Anonymize(ctx, text))
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Substitution strategy (consistent_tokens, masking, hashing)")
	cmd.Flags().StringVar(&language, "language", "", "Language code or auto")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		input, output      string
		strategy, language string
		workers, maxLength int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Anonymize every record of a dataset file",
		Long: `Anonymize every record of a CSV, JSON Lines or Parquet file.

Input records carry id, text and optionally entities. Output is JSON Lines
or Parquet, chosen by the output file extension.

Example:
  anonymize batch --input tickets.csv --output tickets.parquet
  anonymize batch --input mail.jsonl --output mail.jsonl --strategy hashing --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, services, err := setup()
			if err != nil {
				return err
			}
			defer services.Close()
			defer log.Sync()

			pipeline, err := newPipeline(cfg, log, services, strategy, language, workers, maxLength)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			summary, err := pipeline.ProcessFile(ctx, input, output)
			if err != nil {
				log.Error("Batch anonymization failed", zap.Error(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input dataset (.csv, .json, .jsonl, .parquet)")
	cmd.Flags().StringVar(&output, "output", "", "Output file (.json, .jsonl, .parquet)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Substitution strategy")
	cmd.Flags().StringVar(&language, "language", "", "Language code or auto")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines (default: number of CPUs)")
	cmd.Flags().IntVar(&maxLength, "max-length", 0, "Skip records longer than this many bytes (0: no limit)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func evaluateCmd() *cobra.Command {
	var (
		input                   string
		strategy, language      string
		workers                 int
		minPrecision, minRecall float64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score detection against a labelled dataset",
		Long: `Anonymize a labelled dataset and report precision and recall of the
detected entity texts against each record's expected entities.

Example:
  anonymize evaluate --input synthetic.jsonl --min-precision 0.5 --min-recall 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, services, err := setup()
			if err != nil {
				return err
			}
			defer services.Close()
			defer log.Sync()

			pipeline, err := newPipeline(cfg, log, services, strategy, language, workers, 0)
			if err != nil {
				return err
			}

			records, err := batch.ReadFile(input)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			eval, err := pipeline.Evaluate(ctx, records)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), eval); err != nil {
				return err
			}

			if eval.Precision < minPrecision {
				return fmt.Errorf("precision %.2f below threshold %.2f", eval.Precision, minPrecision)
			}
			if eval.Recall < minRecall {
				return fmt.Errorf("recall %.2f below threshold %.2f", eval.Recall, minRecall)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Labelled dataset (.csv, .json, .jsonl, .parquet)")
	cmd.Flags().StringVar(&strategy, "strategy", string(anonymizer.ConsistentTokens), "Substitution strategy")
	cmd.Flags().StringVar(&language, "language", "", "Language code or auto")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines (default: number of CPUs)")
	cmd.Flags().Float64Var(&minPrecision, "min-precision", 0, "Fail when precision is below this value")
	cmd.Flags().Float64Var(&minRecall, "min-recall", 0, "Fail when recall is below this value")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-clear",
		Short: "Remove every cached semantic detection result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, services, err := setup()
			if err != nil {
				return err
			}
			defer services.Close()
			defer log.Sync()

			if services.Cache == nil {
				return fmt.Errorf("detection cache is disabled or unreachable")
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := services.Cache.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Detection cache cleared")
			return nil
		},
	}
}

func newPipeline(cfg *config.Config, log *logger.Logger, services *app.Services, strategy, language string, workers, maxLength int) (*batch.Pipeline, error) {
	if strategy == "" {
		strategy = cfg.Anonymizer.DefaultStrategy
	}
	if language == "" {
		language = cfg.Anonymizer.DefaultLanguage
	}
	return batch.NewPipeline(services.Patterns, services.Semantic, batch.Config{
		Strategy:          strategy,
		Language:          language,
		AllowedStrategies: cfg.Anonymizer.SupportedStrategies,
		WorkerCount:       workers,
		MaxTextLength:     maxLength,
	}, log.WithComponent("batch"))
}
