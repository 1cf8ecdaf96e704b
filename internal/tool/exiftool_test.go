package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExiftool_Parse(t *testing.T) {
	exiftool := NewExiftool()
	ec := &ExecContext{JobID: "7f8c9e4a-1111-2222-3333-444455556666"}

	t.Run("one metadata entity per file record", func(t *testing.T) {
		raw := []byte(`[
  {
    "SourceFile": "target.bin",
    "Directory": ".",
    "Author": "Jane Analyst",
    "CreateDate": "2024:11:02 09:14:00",
    "Software": "LibreOffice 7.6"
  }
]`)

		parsed, err := exiftool.Parse(ec, raw)
		require.NoError(t, err)
		require.Len(t, parsed.Entities, 1)

		entity := parsed.Entities[0]
		assert.Equal(t, ec.JobID, entity.JobID)
		assert.Equal(t, "metadata", entity.Type)

		var data map[string]any
		require.NoError(t, json.Unmarshal(entity.Data, &data))
		assert.Equal(t, "Jane Analyst", data["Author"])

		// Local filesystem details never leave the sandbox
		assert.NotContains(t, data, "SourceFile")
		assert.NotContains(t, data, "Directory")

		assert.Equal(t, 1, parsed.Stats["files"])
	})

	t.Run("rejects non-json output", func(t *testing.T) {
		_, err := exiftool.Parse(ec, []byte("File not found: target.bin"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse exiftool output")
	})

	t.Run("empty array yields no entities", func(t *testing.T) {
		parsed, err := exiftool.Parse(ec, []byte("[]"))
		require.NoError(t, err)
		assert.Empty(t, parsed.Entities)
	})
}
