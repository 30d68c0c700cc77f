package apfc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nerdstack/apfc/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ExternalEdit reports a change to a .go file seen by the FileWatcher —
// e.g. a human editing a generated file mid-run. The watcher does not tell
// writes made through Workspace.Write apart from other changes, so those are
// reported too. Surfaced as a warning, never fatal (§8 "defensive fidelity
// check, not a required behavior").
type ExternalEdit struct {
	Path string
	Op   string // "create" | "write" | "remove" | "rename"
	At   time.Time
}

// FileWatcher watches the workspace root directory for out-of-band changes
// to *.go files while a run is in progress. Adapted from the teacher's
// internal/core.MangleWatcher (debounced fsnotify event loop watching
// a fixed directory for a fixed file suffix), generalized from watching
// *.mg files under .nerd/mangle to watching *.go files for the duration of
// an Orchestrator run. The watch is not recursive: only files directly
// inside the root are seen, not those in subdirectories such as src/.
type pendingEdit struct {
	op string
	at time.Time
}

type FileWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	root     string
	debounce map[string]pendingEdit
	stopCh   chan struct{}
	doneCh   chan struct{}
	edits    chan ExternalEdit
	running  bool
}

// NewFileWatcher constructs a FileWatcher for the workspace root directory
// (its subdirectories are not watched).
func NewFileWatcher(ws *Workspace) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, newErr(ErrKindWorkspaceSecurity, "NewFileWatcher", err)
	}
	return &FileWatcher{
		watcher:  w,
		root:     ws.Root(),
		debounce: make(map[string]pendingEdit),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		edits:    make(chan ExternalEdit, 32),
	}, nil
}

// Edits exposes the channel of debounced external-edit notifications.
func (fw *FileWatcher) Edits() <-chan ExternalEdit { return fw.edits }

// Start begins watching in a background goroutine; non-blocking.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	if err := fw.watcher.Add(fw.root); err != nil {
		logging.APFCLog(logging.CategoryWorkspace).Warnw("file watch failed to attach to root", "root", fw.root, "error", err)
	}
	go fw.run(ctx)
	return nil
}

// Stop halts the watcher and releases its handle.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh
	fw.watcher.Close()
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)
	defer close(fw.edits)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case _, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
		case <-debounceTicker.C:
			fw.flush()
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".go") {
		return
	}
	var op string
	switch {
	case event.Op&fsnotify.Create != 0:
		op = "create"
	case event.Op&fsnotify.Write != 0:
		op = "write"
	case event.Op&fsnotify.Remove != 0:
		op = "remove"
	case event.Op&fsnotify.Rename != 0:
		op = "rename"
	default:
		return
	}
	fw.mu.Lock()
	fw.debounce[event.Name] = pendingEdit{op: op, at: time.Now()}
	fw.mu.Unlock()
}

// flush emits one ExternalEdit per debounced path whose last event is older
// than the debounce window, then clears it.
func (fw *FileWatcher) flush() {
	const window = 500 * time.Millisecond
	fw.mu.Lock()
	defer fw.mu.Unlock()
	now := time.Now()
	for path, pending := range fw.debounce {
		if now.Sub(pending.at) < window {
			continue
		}
		delete(fw.debounce, path)
		select {
		case fw.edits <- ExternalEdit{Path: path, Op: pending.op, At: pending.at}:
		default:
		}
	}
}
