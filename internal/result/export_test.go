package result

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntity(t *testing.T, jobID, entityType string, data map[string]any) Entity {
	t.Helper()
	entity, err := New(jobID, entityType, data)
	require.NoError(t, err)
	entity.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return entity
}

func TestNewEncoder(t *testing.T) {
	t.Run("known formats", func(t *testing.T) {
		for _, format := range []string{FormatNDJSON, FormatCSV} {
			enc, err := NewEncoder(format, &bytes.Buffer{})
			require.NoError(t, err)
			assert.NotNil(t, enc)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewEncoder("xml", &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported export format")
	})
}

func TestNDJSONEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(FormatNDJSON, &buf)
	require.NoError(t, err)

	first := testEntity(t, "job-1", "subdomain", map[string]any{"value": "www.example.com"})
	second := testEntity(t, "job-1", "account", map[string]any{"platform": "GitHub"})

	require.NoError(t, enc.Encode(first))
	require.NoError(t, enc.Encode(second))
	require.NoError(t, enc.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var decoded struct {
		JobID     string          `json:"job_id"`
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		CreatedAt time.Time       `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "job-1", decoded.JobID)
	assert.Equal(t, "subdomain", decoded.Type)
	assert.JSONEq(t, `{"value":"www.example.com"}`, string(decoded.Data))
	assert.False(t, decoded.CreatedAt.IsZero())

	// The internal row id never leaks into exports
	assert.NotContains(t, lines[0], `"id"`)
}

func TestCSVEncoder(t *testing.T) {
	t.Run("header precedes the first record", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := NewEncoder(FormatCSV, &buf)
		require.NoError(t, err)

		require.NoError(t, enc.Encode(testEntity(t, "job-1", "subdomain", map[string]any{"value": "a.example.com"})))
		require.NoError(t, enc.Encode(testEntity(t, "job-2", "account", map[string]any{"platform": "Reddit"})))
		require.NoError(t, enc.Flush())

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, []string{"job_id", "type", "data", "created_at"}, records[0])
		assert.Equal(t, "job-1", records[1][0])
		assert.Equal(t, "subdomain", records[1][1])
		assert.JSONEq(t, `{"value":"a.example.com"}`, records[1][2])
		assert.Equal(t, "2025-06-01T12:00:00Z", records[1][3])
	})

	t.Run("no records means no output at all", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := NewEncoder(FormatCSV, &buf)
		require.NoError(t, err)

		require.NoError(t, enc.Flush())
		assert.Empty(t, buf.String())
	})

	t.Run("payload with quotes and commas survives round-trip", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := NewEncoder(FormatCSV, &buf)
		require.NoError(t, err)

		require.NoError(t, enc.Encode(testEntity(t, "job-1", "metadata", map[string]any{
			"Author": `Jane "JD" Doe, Esq.`,
		})))
		require.NoError(t, enc.Flush())

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Contains(t, records[1][2], `Jane \"JD\" Doe, Esq.`)
	})
}

func TestBuildEntityQuery(t *testing.T) {
	tests := []struct {
		name         string
		filter       Filter
		wantContains []string
		wantArgs     []interface{}
	}{
		{
			name:         "no filters applies default limit",
			filter:       Filter{},
			wantContains: []string{"ORDER BY created_at DESC, id DESC", "LIMIT $1"},
			wantArgs:     []interface{}{defaultQueryLimit},
		},
		{
			name:         "type and job filters",
			filter:       Filter{Type: "subdomain", JobID: "job-1"},
			wantContains: []string{"type = $1", "job_id = $2", "LIMIT $3"},
			wantArgs:     []interface{}{"subdomain", "job-1", defaultQueryLimit},
		},
		{
			name:         "text match wraps the term in wildcards",
			filter:       Filter{TextMatch: "example"},
			wantContains: []string{"data::text ILIKE $1"},
			wantArgs:     []interface{}{"%example%", defaultQueryLimit},
		},
		{
			name:         "limit above the cap is clamped",
			filter:       Filter{Limit: MaxQueryLimit * 10},
			wantContains: []string{"LIMIT $1"},
			wantArgs:     []interface{}{MaxQueryLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildEntityQuery(tt.filter, defaultQueryLimit, MaxQueryLimit)

			for _, want := range tt.wantContains {
				assert.Contains(t, query, want)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
