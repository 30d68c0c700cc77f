package apfc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestFileWatcherDetectsGoFileWrite(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)

	fw, err := NewFileWatcher(ws)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	defer fw.Stop()

	path := filepath.Join(ws.Root(), "src", "Core")
	require.NoError(t, os.MkdirAll(path, 0o755))
	file := filepath.Join(path, "Widget.go")
	require.NoError(t, os.WriteFile(file, []byte("package core\n"), 0o644))

	select {
	case edit := <-fw.Edits():
		require.Equal(t, file, edit.Path)
		require.Contains(t, []string{"create", "write"}, edit.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for external edit notification")
	}
}

func TestFileWatcherIgnoresNonGoFiles(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)

	fw, err := NewFileWatcher(ws)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	defer fw.Stop()

	file := filepath.Join(ws.Root(), "README.md")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	select {
	case edit := <-fw.Edits():
		t.Fatalf("unexpected edit notification for non-.go file: %+v", edit)
	case <-time.After(700 * time.Millisecond):
		// expected: no notification within the debounce+window interval
	}
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	fw, err := NewFileWatcher(ws)
	require.NoError(t, err)

	require.NoError(t, fw.Start(context.Background()))
	fw.Stop()
	fw.Stop() // must not panic or block on a second call
}

func TestFileWatcherHandleEventClassifiesOps(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	fw, err := NewFileWatcher(ws)
	require.NoError(t, err)
	defer fw.watcher.Close()

	goPath := filepath.Join(ws.Root(), "a.go")
	fw.handleEvent(fsnotify.Event{Name: goPath, Op: fsnotify.Create})
	fw.mu.Lock()
	_, ok := fw.debounce[goPath]
	fw.mu.Unlock()
	require.True(t, ok)

	txtPath := filepath.Join(ws.Root(), "a.txt")
	fw.handleEvent(fsnotify.Event{Name: txtPath, Op: fsnotify.Create})
	fw.mu.Lock()
	_, ok = fw.debounce[txtPath]
	fw.mu.Unlock()
	require.False(t, ok)
}
