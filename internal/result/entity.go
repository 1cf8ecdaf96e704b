package result

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is one normalized unit of extracted intelligence. Entities are
// immutable once written; duplicates across runs are valid provenance.
type Entity struct {
	ID        int64           `db:"id" json:"-"`
	JobID     string          `db:"job_id" json:"job_id"`
	Type      string          `db:"type" json:"type"`
	Data      json.RawMessage `db:"data" json:"data"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// New builds an Entity from a structured payload.
func New(jobID, entityType string, data map[string]any) (Entity, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to marshal entity data: %w", err)
	}

	return Entity{
		JobID:     jobID,
		Type:      entityType,
		Data:      raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}
