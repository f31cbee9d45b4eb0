package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/embeddings"
	"github.com/raaihank/mail-sentinel/internal/vector"
)

// ExampleStore persists labelled examples
type ExampleStore interface {
	BatchInsert(ctx context.Context, examples []*vector.IntentExample) (*vector.BatchInsertResult, error)
}

// Pipeline cleans email datasets and builds reference vectors from them
type Pipeline struct {
	cleaner          *cleaning.Cleaner
	embeddingService embeddings.EmbeddingService
	store            ExampleStore
	config           *Config
	logger           *zap.Logger
}

// NewPipeline creates a new batch pipeline. The embedding service and store are
// only needed by BuildReference and may be nil for cleaning.
func NewPipeline(
	cleaner *cleaning.Cleaner,
	embeddingService embeddings.EmbeddingService,
	store ExampleStore,
	config *Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cleaner:          cleaner,
		embeddingService: embeddingService,
		store:            store,
		config:           config,
		logger:           logger,
	}
}

// CleanFile runs FullClean over every record of in and writes the cleaned records
// to out, in out's format. A record whose cleaning fails is written with empty text.
func (p *Pipeline) CleanFile(ctx context.Context, in, out string) (*ProcessingResult, error) {
	start := time.Now()

	records, err := ReadRecords(in, p.config)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting batch cleaning",
		zap.String("input", in),
		zap.String("format", string(DetectFileFormat(in))),
		zap.Int("records", len(records)),
		zap.Int("batch_size", p.config.BatchSize))

	result := &ProcessingResult{TotalRecords: int64(len(records))}
	if err := p.cleanRecords(ctx, records, result); err != nil {
		return result, err
	}

	if err := WriteRecords(out, records); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch cleaning completed",
		zap.String("output", out),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// cleanRecords replaces each record's text with its cleaned form, one batch at a time
func (p *Pipeline) cleanRecords(ctx context.Context, records []Record, result *ProcessingResult) error {
	for lo := 0; lo < len(records); lo += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		hi := min(lo+p.config.BatchSize, len(records))

		texts := make([]string, hi-lo)
		for i := range texts {
			texts[i] = records[lo+i].Text
		}

		cleanStart := time.Now()
		cleaned, failures := cleaning.CleanBatch(ctx, texts, p.config.Workers, p.cleaner.FullClean)
		result.CleaningTime += time.Since(cleanStart)

		for i := range cleaned {
			records[lo+i].Text = cleaned[i]
		}
		for _, failure := range failures {
			p.logger.Warn("Record cleaning failed", zap.Int("record", lo+failure.Index), zap.Error(failure.Err))
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", lo+failure.Index, failure.Err))
		}

		result.ProcessedFailed += int64(len(failures))
		result.ProcessedOK += int64(len(cleaned) - len(failures))

		p.logger.Debug("Batch cleaned",
			zap.Int("from", lo),
			zap.Int("to", hi),
			zap.Duration("duration", time.Since(cleanStart)))
	}
	return nil
}

// BuildReference cleans and embeds every record carrying label, stores the examples
// when a store is configured, and returns the average of their embeddings
func (p *Pipeline) BuildReference(ctx context.Context, in string, label int) ([]float32, *ProcessingResult, error) {
	if p.embeddingService == nil {
		return nil, nil, fmt.Errorf("reference building needs an embedding service")
	}
	start := time.Now()

	records, err := ReadRecords(in, p.config)
	if err != nil {
		return nil, nil, err
	}

	var selected []Record
	for _, record := range records {
		if record.Label == label {
			selected = append(selected, record)
		}
	}

	result := &ProcessingResult{TotalRecords: int64(len(selected))}
	if err := p.cleanRecords(ctx, selected, result); err != nil {
		return nil, result, err
	}

	var vectors [][]float32
	for lo := 0; lo < len(selected); lo += p.config.BatchSize {
		hi := min(lo+p.config.BatchSize, len(selected))

		texts := make([]string, 0, hi-lo)
		for _, record := range selected[lo:hi] {
			if strings.TrimSpace(record.Text) == "" {
				result.Skipped++
				continue
			}
			texts = append(texts, record.Text)
		}
		if len(texts) == 0 {
			continue
		}

		embeddingStart := time.Now()
		batch, err := p.embeddingService.GenerateBatchEmbeddings(ctx, texts)
		if err != nil {
			return nil, result, fmt.Errorf("batch embedding generation failed: %w", err)
		}
		result.EmbeddingTime += time.Since(embeddingStart)

		examples := make([]*vector.IntentExample, 0, len(texts))
		for i, embedding := range batch.Embeddings {
			if embedding == nil {
				continue
			}
			vectors = append(vectors, embedding)
			examples = append(examples, vector.NewIntentExample(texts[i], label, batch.ServiceType, embedding))
		}
		for _, err := range batch.Errors {
			result.Errors = append(result.Errors, err.Error())
		}

		if p.store != nil && len(examples) > 0 {
			dbStart := time.Now()
			inserted, err := p.store.BatchInsert(ctx, examples)
			if err != nil {
				return nil, result, fmt.Errorf("database batch insert failed: %w", err)
			}
			result.DatabaseTime += time.Since(dbStart)
			result.Inserted += inserted.Inserted
			result.Duplicates += inserted.Duplicates
		}
	}

	reference, err := embeddings.Average(vectors)
	if err != nil {
		return nil, result, fmt.Errorf("no usable examples with label %d: %w", label, err)
	}
	result.Duration = time.Since(start)

	p.logger.Info("Reference built",
		zap.Int("label", label),
		zap.Int("examples", len(vectors)),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))

	return reference, result, nil
}
