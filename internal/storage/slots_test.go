package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSlots_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	slots, err := NewFileSlots(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = slots.Get(SlotTasks)
	assert.ErrorIs(t, err, ErrEmptySlot)

	require.NoError(t, slots.Put(SlotTasks, []byte(`[{"id":"1"}]`)))
	data, err := slots.Get(SlotTasks)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))
	assert.FileExists(t, filepath.Join(dir, "tasks.json"))

	// Shorter write must not leave a tail of the previous blob.
	require.NoError(t, slots.Put(SlotTasks, []byte(`[]`)))
	data, err = slots.Get(SlotTasks)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestFileSlots_PutReplacesByRename(t *testing.T) {
	dir := t.TempDir()
	slots, err := NewFileSlots(dir)
	require.NoError(t, err)

	require.NoError(t, slots.Put(SlotSyncQueue, []byte(`[{"id":"a"},{"id":"b"}]`)))
	before, err := os.Stat(filepath.Join(dir, "sync_queue.json"))
	require.NoError(t, err)

	require.NoError(t, slots.Put(SlotSyncQueue, []byte(`[]`)))
	after, err := os.Stat(filepath.Join(dir, "sync_queue.json"))
	require.NoError(t, err)
	assert.False(t, os.SameFile(before, after), "a rewrite swaps in a new file instead of editing in place")

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	data, err := slots.Get(SlotSyncQueue)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestFileSlots_SharedDirectory(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileSlots(dir)
	require.NoError(t, err)
	second, err := NewFileSlots(dir)
	require.NoError(t, err)

	require.NoError(t, first.Put(SlotSyncQueue, []byte(`[1]`)))
	require.NoError(t, second.Put(SlotSyncQueue, []byte(`[2]`)))

	data, err := first.Get(SlotSyncQueue)
	require.NoError(t, err)
	assert.Equal(t, `[2]`, string(data), "last writer wins")
}

func TestFileSlots_InvalidKey(t *testing.T) {
	slots, err := NewFileSlots(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc", "Tasks", "a/b"} {
		assert.Error(t, slots.Put(key, []byte("x")), "key %q", key)
	}
}

func TestNewFileSlots_EmptyDir(t *testing.T) {
	_, err := NewFileSlots("")
	assert.Error(t, err)
}

func TestFileSlots_ReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family_session.json"), []byte(`{"familyId":"f"}`), 0o644))
	slots, err := NewFileSlots(dir)
	require.NoError(t, err)

	data, err := slots.Get(SlotFamily)
	require.NoError(t, err)
	assert.JSONEq(t, `{"familyId":"f"}`, string(data))
}

func TestMemorySlots(t *testing.T) {
	slots := NewMemorySlots()
	_, err := slots.Get("x")
	assert.ErrorIs(t, err, ErrEmptySlot)

	buf := []byte("abc")
	require.NoError(t, slots.Put("x", buf))
	buf[0] = 'z'

	data, err := slots.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data), "stored copy is isolated from the caller's buffer")
}
