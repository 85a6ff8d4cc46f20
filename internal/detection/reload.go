package detection

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// TuningWatcher hot-reloads detection tuning from a file: edits to
// the tuning file take effect without a restart. Invalid files are
// logged and ignored, keeping the previous tuning active.
type TuningWatcher struct {
	path      string
	evaluator *Evaluator
	watcher   *fsnotify.Watcher
}

// NewTuningWatcher creates a watcher that applies tuning changes from
// path to the evaluator.
func NewTuningWatcher(path string, evaluator *Evaluator) (*TuningWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on
	// save, which would drop a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch tuning directory: %w", err)
	}

	return &TuningWatcher{
		path:      path,
		evaluator: evaluator,
		watcher:   watcher,
	}, nil
}

// Run processes file events until the context is canceled.
func (w *TuningWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("tuning watcher error: %v", err)
		}
	}
}

func (w *TuningWatcher) reload() {
	tuning, err := LoadTuningFromFile(w.path)
	if err != nil {
		log.Printf("tuning reload rejected: %v", err)
		return
	}
	w.evaluator.SetTuning(tuning)
	log.Printf("detection tuning reloaded from %s", w.path)
}
