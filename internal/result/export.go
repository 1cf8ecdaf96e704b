package result

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// Export formats.
const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
)

// Encoder serializes entities one record at a time so exports stream instead
// of buffering the full result set.
type Encoder interface {
	Encode(entity Entity) error
	Flush() error
}

// NewEncoder returns the encoder for the requested format, or an error for
// unknown formats.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch format {
	case FormatNDJSON:
		return &ndjsonEncoder{enc: json.NewEncoder(w)}, nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		return &csvEncoder{w: cw}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

type ndjsonEncoder struct {
	enc *json.Encoder
}

func (e *ndjsonEncoder) Encode(entity Entity) error {
	return e.enc.Encode(entity)
}

func (e *ndjsonEncoder) Flush() error {
	return nil
}

type csvEncoder struct {
	w           *csv.Writer
	wroteHeader bool
}

func (e *csvEncoder) Encode(entity Entity) error {
	if !e.wroteHeader {
		if err := e.w.Write([]string{"job_id", "type", "data", "created_at"}); err != nil {
			return err
		}
		e.wroteHeader = true
	}

	return e.w.Write([]string{
		entity.JobID,
		entity.Type,
		string(entity.Data),
		entity.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (e *csvEncoder) Flush() error {
	e.w.Flush()
	return e.w.Error()
}

// Export streams matching entities into enc row by row, most-recent-first,
// capped at MaxExportLimit. Each call runs its own query, so a failed export
// can simply be restarted.
func (s *Store) Export(ctx context.Context, filter Filter, enc Encoder) (int, error) {
	query, args := buildEntityQuery(filter, MaxExportLimit, MaxExportLimit)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query entities for export: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var entity Entity
		if err := rows.StructScan(&entity); err != nil {
			return count, fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := enc.Encode(entity); err != nil {
			return count, fmt.Errorf("failed to encode entity: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("failed while streaming entities: %w", err)
	}

	if err := enc.Flush(); err != nil {
		return count, fmt.Errorf("failed to flush export: %w", err)
	}

	return count, nil
}
