package restricted

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileIsEmptySet(t *testing.T) {
	s, err := NewSet(filepath.Join(t.TempDir(), "restricted.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Symbols())
	assert.False(t, s.Contains("BTC/USDT"))
}

func TestAddPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.json")
	s, err := NewSet(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("XYZ/USDT"))
	require.NoError(t, s.Add("ABC/USDT"))
	require.NoError(t, s.Add("XYZ/USDT")) // idempotent

	fresh, err := NewSet(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC/USDT", "XYZ/USDT"}, fresh.Symbols())
	assert.True(t, fresh.Contains("XYZ/USDT"))
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.json")
	s, err := NewSet(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`["NEW/USDT"]`), 0o644))
	require.NoError(t, s.Reload())
	assert.True(t, s.Contains("NEW/USDT"))
}

func TestReloadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := NewSet(path)
	assert.Error(t, err)
}
