package json

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, NewWriter().WriteJSON(path, map[string]any{"value": uint64(18446744073709551615)}))

	var out map[string]any
	require.NoError(t, NewReader().ReadJSON(path, &out))
	assert.Equal(t, json.Number("18446744073709551615"), out["value"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteBytes_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	w := NewWriter()

	require.NoError(t, w.WriteBytes(path, []byte("first")))
	require.NoError(t, w.WriteBytes(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestReadJSON_Missing(t *testing.T) {
	var out map[string]any
	err := NewReader().ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
