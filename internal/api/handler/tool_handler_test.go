package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolHandler_ListTools(t *testing.T) {
	r := testRouter(testDeps(t, nil))

	rec := doRequest(r, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	requireJSON(t, rec)

	var resp struct {
		Tools []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Source string `json:"source"`
			Params []struct {
				Key      string `json:"key"`
				Type     string `json:"type"`
				Required bool   `json:"required"`
			} `json:"params"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 3)

	assert.Equal(t, "amass", resp.Tools[0].ID)
	assert.Equal(t, "sherlock", resp.Tools[1].ID)
	assert.Equal(t, "exiftool", resp.Tools[2].ID)

	// Param specs carry enough to render an input form
	require.NotEmpty(t, resp.Tools[0].Params)
	assert.Equal(t, "domain", resp.Tools[0].Params[0].Key)
	assert.Equal(t, "string", resp.Tools[0].Params[0].Type)
	assert.True(t, resp.Tools[0].Params[0].Required)
}
