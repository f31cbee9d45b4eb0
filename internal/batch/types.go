package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// Record represents a single email from the input dataset
type Record struct {
	Text  string `parquet:"text" json:"text"`
	Label int    `parquet:"label" json:"label"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Skipped         int64         `json:"skipped"`
	Inserted        int64         `json:"inserted"`
	Duplicates      int64         `json:"duplicates"`
	Duration        time.Duration `json:"duration"`
	CleaningTime    time.Duration `json:"cleaning_time"`
	EmbeddingTime   time.Duration `json:"embedding_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize   int
	Workers     int
	TextColumn  string
	LabelColumn string
}

// ConfigFrom maps the application batch section onto a pipeline Config
func ConfigFrom(cfg config.BatchConfig) *Config {
	c := &Config{
		BatchSize:   cfg.BatchSize,
		Workers:     cfg.Workers,
		TextColumn:  cfg.TextColumn,
		LabelColumn: cfg.LabelColumn,
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.TextColumn == "" {
		c.TextColumn = "text"
	}
	if c.LabelColumn == "" {
		c.LabelColumn = "label"
	}
	return c
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
