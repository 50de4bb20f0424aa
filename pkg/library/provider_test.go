package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLibrary = `
graphs:
  - id: deploy
    name: Deploy
    start: start
    nodes:
      start:
        kind: start
      ship:
        kind: task
        action: ship it
      done:
        kind: exit
    edges:
      - from: start
        to: ship
        condition: always
      - from: ship
        to: done
        condition: on_success
plans:
  - id: checklist
    name: Checklist
    steps:
      - name: First
        action: do the first thing
`

const brokenLibrary = `
graphs:
  - id: broken
    start: start
    nodes:
      start:
        kind: start
    edges:
      - from: start
        to: nowhere
        condition: always
`

func writeLibrary(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileProvider_LoadsFile(t *testing.T) {
	path := writeLibrary(t, t.TempDir(), "library.yaml", validLibrary)
	registry := NewRegistry(nil)

	_, err := NewFileProvider(path, registry, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Len())
	_, ok := registry.Get("deploy")
	assert.True(t, ok)
	// The linear plan was compiled into a graph.
	checklist, ok := registry.Get("checklist")
	require.True(t, ok)
	assert.Equal(t, "step_1", checklist.StartNodeID)
}

func TestFileProvider_BrokenLibraryIsStartupError(t *testing.T) {
	path := writeLibrary(t, t.TempDir(), "library.yaml", brokenLibrary)

	_, err := NewFileProvider(path, NewRegistry(nil), nil)
	assert.Error(t, err)
}

func TestFileProvider_LoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeLibrary(t, dir, "a.yaml", validLibrary)
	writeLibrary(t, dir, "notes.txt", "not a library")
	registry := NewRegistry(nil)

	_, err := NewFileProvider(dir, registry, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Len())
}

func TestFileProvider_DirectoryRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeLibrary(t, dir, "a.yaml", validLibrary)
	writeLibrary(t, dir, "b.yaml", validLibrary)

	_, err := NewFileProvider(dir, NewRegistry(nil), nil)
	assert.Error(t, err)
}

func TestFileProvider_MissingPath(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"), NewRegistry(nil), nil)
	assert.Error(t, err)
}

// A failed reload keeps the last known good library live.
func TestFileProvider_ReloadKeepsLastKnownGood(t *testing.T) {
	path := writeLibrary(t, t.TempDir(), "library.yaml", validLibrary)
	registry := NewRegistry(nil)

	p, err := NewFileProvider(path, registry, nil)
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	require.NoError(t, os.WriteFile(path, []byte(brokenLibrary), 0o600))
	// Reload directly; the watcher path is timing-dependent.
	assert.Error(t, p.load())
	assert.Equal(t, 2, registry.Len())
	_, ok := registry.Get("deploy")
	assert.True(t, ok)
}

func TestFileProvider_WatchAndClose(t *testing.T) {
	path := writeLibrary(t, t.TempDir(), "library.yaml", validLibrary)
	registry := NewRegistry(nil)

	p, err := NewFileProvider(path, registry, nil)
	require.NoError(t, err)
	require.NoError(t, p.Watch())
	// Watch is idempotent.
	require.NoError(t, p.Watch())
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
