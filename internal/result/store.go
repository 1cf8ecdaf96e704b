// Package result implements the append-only entity sink with query and export.
package result

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/ndquoc/recon-be/shared/metrics"
)

const (
	// MaxQueryLimit caps rows returned by a single query call.
	MaxQueryLimit = 1000
	// MaxExportLimit caps rows streamed by a single export call.
	MaxExportLimit = 20000

	defaultQueryLimit = 100
)

// Filter narrows query and export scans.
type Filter struct {
	Type      string
	TextMatch string
	JobID     string
	Limit     int
}

// Store handles all database operations for entities.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Write appends one entity. Duplicate content is not an error.
func (s *Store) Write(ctx context.Context, entity Entity) error {
	query := `
		INSERT INTO entities (job_id, type, data, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query, entity.JobID, entity.Type, []byte(entity.Data), entity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write entity: %w", err)
	}

	metrics.EntitiesWritten.WithLabelValues(entity.Type).Inc()
	return nil
}

// WriteBatch appends entities one by one inside a transaction so a partially
// persisted tool run never surfaces as completed.
func (s *Store) WriteBatch(ctx context.Context, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO entities (job_id, type, data, created_at)
		VALUES ($1, $2, $3, $4)
	`

	for _, entity := range entities {
		if _, err := tx.ExecContext(ctx, query, entity.JobID, entity.Type, []byte(entity.Data), entity.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write entity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entity batch: %w", err)
	}

	for _, entity := range entities {
		metrics.EntitiesWritten.WithLabelValues(entity.Type).Inc()
	}

	s.logger.Debug("Entity batch persisted",
		slog.String("job_id", entities[0].JobID),
		slog.Int("count", len(entities)),
	)

	return nil
}

// Query returns entities most-recent-first, capped at MaxQueryLimit.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Entity, error) {
	query, args := buildEntityQuery(filter, defaultQueryLimit, MaxQueryLimit)

	var entities []Entity
	if err := s.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	return entities, nil
}

// buildEntityQuery assembles the filtered SELECT shared by Query and Export.
func buildEntityQuery(filter Filter, defaultLimit, maxLimit int) (string, []interface{}) {
	query := `
		SELECT id, job_id, type, data, created_at
		FROM entities
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	if filter.TextMatch != "" {
		query += fmt.Sprintf(" AND data::text ILIKE $%d", argIdx)
		args = append(args, "%"+filter.TextMatch+"%")
		argIdx++
	}

	// Most-recent-first is the contract, id breaks created_at ties
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	return query, args
}
