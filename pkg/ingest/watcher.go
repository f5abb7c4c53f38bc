package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// settleDelay is how long a dropped file must stay quiet before it is
// read. Copies into the folder arrive as bursts of writes.
const settleDelay = 500 * time.Millisecond

// Watcher ingests files dropped into a local folder. File names carry
// the workspace as <session>_<type>.<ext>, for example
// acme-04_transactions.csv; every settled drop becomes a fresh upload
// with a new upload id.
type Watcher struct {
	dir     string
	indexer *Indexer
	fs      *fsnotify.Watcher
	work    chan string

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewWatcher validates the drop folder and builds a Watcher.
func NewWatcher(dir string, indexer *Indexer) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", dir)
	}
	return &Watcher{
		dir:     dir,
		indexer: indexer,
		work:    make(chan string, 64),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start registers the watch and enqueues files already present in the
// folder. Processing runs on a background goroutine until Close or ctx
// cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.fs = fs

	go w.loop(ctx)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.settle(filepath.Join(w.dir, entry.Name()))
	}

	slog.Info("Watching drop folder", "dir", w.dir)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.settle(event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("Drop folder watch error", "error", err)
		case path := <-w.work:
			w.process(ctx, path)
		}
	}
}

// settle resets the per-file quiet timer; the file is enqueued once no
// write lands for settleDelay. Names outside the drop convention are
// ignored without a timer.
func (w *Watcher) settle(path string) {
	if _, _, ok := parseDropName(filepath.Base(path)); !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.timers[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		select {
		case w.work <- path:
		default:
			slog.Warn("Ingest queue full, dropping file", "path", path)
		}
	})
}

func (w *Watcher) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	sessionID, docType, ok := parseDropName(name)
	if !ok {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		slog.Warn("Cannot open dropped file", "path", path, "error", err)
		return
	}
	defer file.Close()

	ws := protocol.Workspace{
		SessionID:    sessionID,
		UploadID:     uuid.NewString(),
		DocumentType: docType,
	}
	count, err := w.indexer.IngestFile(ctx, ws, name, file)
	if err != nil {
		slog.Warn("Dropped file rejected", "path", path, "error", err)
		return
	}
	slog.Info("Dropped file ingested",
		"path", path,
		"session_id", sessionID,
		"upload_id", ws.UploadID,
		"documents", count)
}

// Close stops the watch and cancels pending quiet timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

// parseDropName reads the <session>_<type>.<ext> convention. The last
// underscore splits session from type so session ids may carry
// underscores themselves.
func parseDropName(name string) (string, protocol.DocumentType, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	supported := false
	for _, e := range SupportedExtensions() {
		if ext == e {
			supported = true
			break
		}
	}
	if !supported {
		return "", "", false
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", "", false
	}
	session := base[:idx]

	switch base[idx+1:] {
	case "transactions":
		return session, protocol.DocumentTypeTransactions, true
	case "financial":
		return session, protocol.DocumentTypeFinancial, true
	}
	return "", "", false
}
