package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrNoExamples is returned when no example carries the requested label
var ErrNoExamples = errors.New("no intent examples for label")

// Store keeps labelled intent examples in PostgreSQL + pgvector
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a new vector store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Vector store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the pgvector extension and creates the examples table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create intent_examples table: %w", err)
	}
	return nil
}

// Insert adds one example; a duplicate text is left untouched
func (s *Store) Insert(ctx context.Context, example *IntentExample) error {
	query := `
		INSERT INTO intent_examples (text, text_hash, label, embedding_type, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (text_hash) DO NOTHING
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		example.Text,
		example.TextHash,
		example.Label,
		example.EmbeddingType,
		FormatEmbedding(example.Embedding),
	).Scan(&example.ID, &example.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("Duplicate example skipped", zap.String("text_hash", example.TextHash))
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to insert example", zap.Error(err), zap.Int("label", example.Label))
		return fmt.Errorf("failed to insert example: %w", err)
	}
	return nil
}

// BatchInsert adds many examples in one statement, skipping duplicate text hashes
func (s *Store) BatchInsert(ctx context.Context, examples []*IntentExample) (*BatchInsertResult, error) {
	if len(examples) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	query, args := batchInsertQuery(examples)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Batch insert failed", zap.Error(err))
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(examples))
	}

	result := &BatchInsertResult{
		Inserted:   inserted,
		Duplicates: int64(len(examples)) - inserted,
		Duration:   time.Since(start),
	}

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", result.Duplicates),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func batchInsertQuery(examples []*IntentExample) (string, []interface{}) {
	valueStrings := make([]string, 0, len(examples))
	valueArgs := make([]interface{}, 0, len(examples)*5)

	for i, example := range examples {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs,
			example.Text,
			example.TextHash,
			example.Label,
			example.EmbeddingType,
			FormatEmbedding(example.Embedding),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO intent_examples (text, text_hash, label, embedding_type, embedding)
		VALUES %s
		ON CONFLICT (text_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))
	return query, valueArgs
}

// AverageEmbedding returns the pgvector mean of every example with the label
func (s *Store) AverageEmbedding(ctx context.Context, label int) ([]float32, error) {
	var avg sql.NullString
	query := "SELECT AVG(embedding)::text FROM intent_examples WHERE label = $1"
	if err := s.db.GetContext(ctx, &avg, query, label); err != nil {
		return nil, fmt.Errorf("failed to average embeddings: %w", err)
	}
	if !avg.Valid {
		return nil, fmt.Errorf("%w %d", ErrNoExamples, label)
	}
	return ParseEmbedding(avg.String)
}

// GetStats returns example counts
func (s *Store) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN label = 1 THEN 1 END) AS positive,
			COUNT(CASE WHEN label = 0 THEN 1 END) AS negative
		FROM intent_examples`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FormatEmbedding converts a float32 slice to the pgvector text form "[a,b,c]"
func FormatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseEmbedding converts the pgvector text form back to a float32 slice
func ParseEmbedding(embeddingStr string) ([]float32, error) {
	embeddingStr = strings.TrimSpace(embeddingStr)
	if !strings.HasPrefix(embeddingStr, "[") || !strings.HasSuffix(embeddingStr, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", embeddingStr)
	}
	embeddingStr = embeddingStr[1 : len(embeddingStr)-1]
	if strings.TrimSpace(embeddingStr) == "" {
		return []float32{}, nil
	}

	parts := strings.Split(embeddingStr, ",")
	embedding := make([]float32, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding value: %w", err)
		}
		embedding[i] = float32(val)
	}
	return embedding, nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || !strings.Contains(userPart[:colon], "//") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
