package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmass_Parse(t *testing.T) {
	amass := NewAmass()
	ec := &ExecContext{JobID: "7f8c9e4a-1111-2222-3333-444455556666"}

	t.Run("one entity per discovered name", func(t *testing.T) {
		raw := []byte("www.example.com\nAPI.Example.Com\n\nmail.example.com\n")

		parsed, err := amass.Parse(ec, raw)
		require.NoError(t, err)
		require.Len(t, parsed.Entities, 3)

		var data map[string]string
		require.NoError(t, json.Unmarshal(parsed.Entities[1].Data, &data))
		assert.Equal(t, "api.example.com", data["value"], "names are normalized to lowercase")

		for _, e := range parsed.Entities {
			assert.Equal(t, ec.JobID, e.JobID)
			assert.Equal(t, "subdomain", e.Type)
		}

		assert.Equal(t, 3, parsed.Stats["subdomains"])
	})

	t.Run("skips noise lines with spaces", func(t *testing.T) {
		raw := []byte("www.example.com\nAverage DNS queries per second: 120\n")

		parsed, err := amass.Parse(ec, raw)
		require.NoError(t, err)
		require.Len(t, parsed.Entities, 1)
	})

	t.Run("empty output yields no entities", func(t *testing.T) {
		parsed, err := amass.Parse(ec, nil)
		require.NoError(t, err)
		assert.Empty(t, parsed.Entities)
		assert.Equal(t, 0, parsed.Stats["subdomains"])
	})
}
