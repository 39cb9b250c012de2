package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RecordAndLoad(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	path := filepath.Join(dir, JournalName)

	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record("a.pdf"))
	require.NoError(t, j.Record("b.pdf"))
	require.NoError(t, j.Close())

	done, err := LoadJournal(path, inputDir)
	require.NoError(t, err)
	assert.Len(t, done, 2)
	assert.Contains(t, done, "a.pdf")
	assert.Contains(t, done, "b.pdf")
}

func TestLoadJournal_Missing(t *testing.T) {
	dir := t.TempDir()
	done, err := LoadJournal(filepath.Join(dir, JournalName), dir)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestLoadJournal_ReconcilesStaleEntries(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(inputDir, 0755))
	path := filepath.Join(dir, JournalName)

	// "crashed.pdf" was journaled but the move never happened: the file
	// is still sitting in the input dir.
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "crashed.pdf"), []byte("x"), 0644))

	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record("moved.pdf"))
	require.NoError(t, j.Record("crashed.pdf"))
	require.NoError(t, j.Close())

	done, err := LoadJournal(path, inputDir)
	require.NoError(t, err)
	assert.Contains(t, done, "moved.pdf")
	assert.NotContains(t, done, "crashed.pdf", "stale entry must be re-processed")
}

func TestLoadJournal_SkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalName)
	require.NoError(t, os.WriteFile(path, []byte("a.pdf\n\n  \nb.pdf\n"), 0644))

	done, err := LoadJournal(path, dir)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestResetJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalName)
	require.NoError(t, os.WriteFile(path, []byte("a.pdf\n"), 0644))

	require.NoError(t, ResetJournal(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Resetting an absent journal is fine.
	require.NoError(t, ResetJournal(path))
}

func TestJournal_ConcurrentRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalName)

	j, err := OpenJournal(path)
	require.NoError(t, err)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errs <- j.Record(fmt.Sprintf("doc_%02d.pdf", i))
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	require.NoError(t, j.Close())

	done, err := LoadJournal(path, dir)
	require.NoError(t, err)
	assert.Len(t, done, n)
}
