package binding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, zerolog.Nop())
	modelPath := "/models/avatar_v2.model3"

	table := DefaultTable()
	table["mouth_talk"].Name = "face_talk"
	table["mouth_talk"].SemanticFrames = map[string]string{FrameKey(1): "open"}

	require.NoError(t, c.Store(modelPath, table))

	// keyed by filename only, not the full model path
	data, err := os.ReadFile(filepath.Join(dir, "avatar_v2.model3.map.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"face_talk"`)

	loaded, ok := c.Load(modelPath)
	require.True(t, ok)
	assert.Equal(t, table, loaded)
}

func TestCache_MissOnAbsentEntry(t *testing.T) {
	c := NewCache(t.TempDir(), zerolog.Nop())
	_, ok := c.Load("/models/never_seen.model3")
	assert.False(t, ok)
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, zerolog.Nop())
	modelPath := "/models/avatar.model3"

	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatar.model3.map.json"), []byte("{truncated"), 0o644))

	_, ok := c.Load(modelPath)
	assert.False(t, ok)

	// the next store overwrites the corrupt entry
	require.NoError(t, c.Store(modelPath, DefaultTable()))
	loaded, ok := c.Load(modelPath)
	require.True(t, ok)
	assert.Equal(t, DefaultTable(), loaded)
}

func TestCache_StructurallyInvalidEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, zerolog.Nop())

	// valid JSON, wrong shape: a null param
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.model3.map.json"), []byte(`{"mouth_talk":null}`), 0o644))

	_, ok := c.Load("/models/bad.model3")
	assert.False(t, ok)
}

func TestCache_UnknownUsageTagIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, zerolog.Nop())

	// valid JSON, but the usage tag is outside the closed vocabulary
	entry := `{"mouth_talk":{"name":"face_talk","range":[0,1],"category":"mouth","special_usage":["MOUTH_BANANA"]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "odd.model3.map.json"), []byte(entry), 0o644))

	_, ok := c.Load("/models/odd.model3")
	assert.False(t, ok)
}

func TestCache_CreatesDirectoryOnStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "bindings")
	c := NewCache(dir, zerolog.Nop())

	require.NoError(t, c.Store("avatar.model3", DefaultTable()))
	_, err := os.Stat(filepath.Join(dir, "avatar.model3.map.json"))
	assert.NoError(t, err)
}

func TestCache_SameFilenameSharesEntry(t *testing.T) {
	c := NewCache(t.TempDir(), zerolog.Nop())

	table := DefaultTable()
	table["head_turn"].Name = "head_x"
	require.NoError(t, c.Store("/downloads/avatar.model3", table))

	// a different directory with the same filename hits the same entry
	loaded, ok := c.Load("/library/avatar.model3")
	require.True(t, ok)
	assert.Equal(t, "head_x", loaded["head_turn"].Name)
}
