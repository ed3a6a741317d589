package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRequest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRequest(t *testing.T) {
	path := writeRequest(t, `{
		"event_id": "EVT-1",
		"disaster_description": "M6.5 earthquake near the county seat",
		"structured_input": {"location": {"latitude": 31.68, "longitude": 103.85}}
	}`)

	req, err := loadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "EVT-1", req.EventID)

	lat, lng, ok := req.Location()
	require.True(t, ok)
	assert.InDelta(t, 31.68, lat, 1e-9)
	assert.InDelta(t, 103.85, lng, 1e-9)
}

func TestLoadRequestRejectsEmptyDescription(t *testing.T) {
	path := writeRequest(t, `{"event_id": "EVT-2"}`)
	_, err := loadRequest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disaster_description")
}

func TestLoadRequestRejectsMalformedJSON(t *testing.T) {
	path := writeRequest(t, `{"event_id": `)
	_, err := loadRequest(path)
	require.Error(t, err)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "AIza...wxyz", maskKey("AIzaSomethingLongwxyz"))
}
