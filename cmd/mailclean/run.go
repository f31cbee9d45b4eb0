package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/mail-sentinel/internal/app"
	"github.com/raaihank/mail-sentinel/internal/batch"
	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/config"
	"github.com/raaihank/mail-sentinel/internal/logger"
	"github.com/raaihank/mail-sentinel/internal/mailparse"
	"github.com/raaihank/mail-sentinel/internal/scoring"
)

// setup loads the configuration and brings up the requested services
func setup(opts app.Options) (*config.Config, *logger.Logger, *app.Services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if workers > 0 {
		cfg.Batch.Workers = workers
	}

	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	services, err := app.Initialize(cfg, log, opts)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, services, nil
}

// withSignals cancels ctx on SIGINT or SIGTERM
func withSignals(ctx context.Context, log *logger.Logger) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, cancelling operations...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// readInput reads one email from the named file, or stdin without one
func readInput(args []string, eml bool) (string, error) {
	var r io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	if eml {
		msg, err := mailparse.Parse(r)
		if err != nil {
			return "", err
		}
		return msg.Text(), nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runClean(args []string, eml, report bool) error {
	_, log, services, err := setup(app.Options{})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	text, err := readInput(args, eml)
	if err != nil {
		return err
	}

	if report {
		return printJSON(services.Cleaner.Clean(text))
	}
	fmt.Println(services.Cleaner.FullClean(text))
	return nil
}

func runThread(ctx context.Context, files []string, asJSON, clean bool) error {
	cfg, log, services, err := setup(app.Options{})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	var emails []string
	if asJSON {
		data, err := os.ReadFile(files[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", files[0], err)
		}
		if err := json.Unmarshal(data, &emails); err != nil {
			return fmt.Errorf("failed to parse %s: %w", files[0], err)
		}
	} else {
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			emails = append(emails, string(data))
		}
	}

	if clean {
		ctx, cancel := withSignals(ctx, log)
		defer cancel()

		var failures []cleaning.ItemError
		emails, failures = cleaning.CleanBatch(ctx, emails, cfg.Batch.Workers, services.Cleaner.FullClean)
		for _, failure := range failures {
			log.Warn("Email cleaning failed", zap.Int("email", failure.Index), zap.Error(failure.Err))
		}
	}

	thread := services.Cleaner.Thread()
	fmt.Println(thread.RemoveRepeatingParagraphs(thread.JoinThread(emails)))
	return nil
}

func runBatch(ctx context.Context, in, out string) error {
	cfg, log, services, err := setup(app.Options{})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	ctx, cancel := withSignals(ctx, log)
	defer cancel()

	pipeline := batch.NewPipeline(services.Cleaner, nil, nil, batch.ConfigFrom(cfg.Batch), log.WithComponent("batch").Logger)
	result, err := pipeline.CleanFile(ctx, in, out)
	if err != nil {
		return fmt.Errorf("batch cleaning failed: %w", err)
	}

	fmt.Printf("Cleaned %d of %d records in %v (%d failed)\n",
		result.ProcessedOK, result.TotalRecords, result.Duration, result.ProcessedFailed)
	return nil
}

func runReference(ctx context.Context, in string, label int, out string) error {
	cfg, log, services, err := setup(app.Options{Embeddings: true, Store: true})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	ctx, cancel := withSignals(ctx, log)
	defer cancel()

	var store batch.ExampleStore
	if services.Store != nil {
		store = services.Store
	}

	pipeline := batch.NewPipeline(services.Cleaner, services.EmbeddingService, store,
		batch.ConfigFrom(cfg.Batch), log.WithComponent("batch").Logger)
	reference, result, err := pipeline.BuildReference(ctx, in, label)
	if err != nil {
		return fmt.Errorf("reference building failed: %w", err)
	}

	if out == "" {
		out = cfg.Scoring.ReferencePath
	}
	if err := scoring.SaveReference(out, reference); err != nil {
		return err
	}

	log.Info("Reference vector saved",
		zap.String("path", out),
		zap.Int("label", label),
		zap.Int("dimensions", len(reference)),
		zap.Int64("examples", result.TotalRecords-result.Skipped),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))

	fmt.Printf("Saved %d-dimensional reference from %d examples to %s\n", len(reference), result.TotalRecords-result.Skipped, out)
	return nil
}

func runScore(ctx context.Context, args []string, eml, verbose bool) error {
	cfg, log, services, err := setup(app.Options{
		Embeddings: true,
		Store:      true,
	})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := services.LoadReference(ctx); err != nil {
		return err
	}
	if !services.Scorer.HasReference() {
		return fmt.Errorf("no reference vector: run mailclean reference first (source %s)", cfg.Scoring.ReferenceSource)
	}

	text, err := readInput(args, eml)
	if err != nil {
		return err
	}

	result, err := services.Scorer.Score(ctx, text)
	if err != nil {
		return err
	}

	if verbose {
		return printJSON(result)
	}
	fmt.Println(result.Decision)
	return nil
}

func runStats(ctx context.Context) error {
	cfg, log, services, err := setup(app.Options{Embeddings: true, Store: true})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	if ctx == nil {
		ctx = context.Background()
	}

	if services.Store == nil && services.Cache == nil {
		fmt.Println("Neither the vector store nor the cache is enabled")
		return nil
	}

	if services.Store != nil {
		stats, err := services.Store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get database stats: %w", err)
		}

		fmt.Printf("\n=== Mail-Sentinel Example Store Statistics ===\n")
		fmt.Printf("Total Examples:     %d\n", stats.TotalExamples)
		if stats.TotalExamples > 0 {
			fmt.Printf("Positive Examples:  %d (%.1f%%)\n", stats.PositiveCount,
				float64(stats.PositiveCount)/float64(stats.TotalExamples)*100)
			fmt.Printf("Negative Examples:  %d (%.1f%%)\n", stats.NegativeCount,
				float64(stats.NegativeCount)/float64(stats.TotalExamples)*100)
		}
	}

	if services.Cache != nil {
		cacheStats, err := services.Cache.GetStats(ctx)
		if err != nil {
			log.Warn("Failed to get cache stats", zap.Error(err))
		} else {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Key Prefix:         %s\n", cfg.Cache.KeyPrefix)
			fmt.Printf("Total Keys:         %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:       %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}

func runClearCache(ctx context.Context) error {
	_, log, services, err := setup(app.Options{Embeddings: true})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer services.Close()

	if services.Cache == nil {
		return fmt.Errorf("embedding cache is not enabled")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := services.Cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Println("Embedding cache cleared")
	return nil
}

func runConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	masked := *cfg
	masked.Embeddings.Azure.APIKey = mask(masked.Embeddings.Azure.APIKey)
	masked.Cache.RedisURL = mask(masked.Cache.RedisURL)
	masked.Vector.DatabaseURL = mask(masked.Vector.DatabaseURL)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
