package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes one source directory and turns fsnotify events into
// WatchEvents. Delivery is blocking: if the consumer falls behind, event
// intake waits rather than dropping. Deduplication of rapid successive
// events is the dispatcher's job, not ours.
type Watcher struct {
	sourceDir     string
	touchExisting bool
	logger        Logger
}

func NewWatcher(sourceDir string, touchExisting bool, logger Logger) *Watcher {
	return &Watcher{sourceDir: sourceDir, touchExisting: touchExisting, logger: logger}
}

// Observe starts watching and returns the event stream. The stream is
// closed when ctx is cancelled or the underlying watcher dies. When
// touchExisting is set, a Created event is synthesized for every file
// already present, in filename order, before live events are delivered.
func (w *Watcher) Observe(ctx context.Context) (<-chan WatchEvent, error) {
	if _, err := os.Stat(w.sourceDir); err != nil {
		return nil, fmt.Errorf("source dir %s: %w", w.sourceDir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.sourceDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.sourceDir, err)
	}

	out := make(chan WatchEvent)

	go func() {
		defer close(out)
		defer fw.Close()

		if w.touchExisting {
			w.announceExisting(ctx, out)
		}

		for {
			select {
			case e, ok := <-fw.Events:
				if !ok {
					return
				}
				ev, ok := translate(e)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				if w.logger != nil {
					w.logger.Errorf("watcher error on %s: %v", w.sourceDir, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (w *Watcher) announceExisting(ctx context.Context, out chan<- WatchEvent) {
	entries, err := os.ReadDir(w.sourceDir)
	if err != nil {
		if w.logger != nil {
			w.logger.Errorf("scan %s: %v", w.sourceDir, err)
		}
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		abs, err := filepath.Abs(filepath.Join(w.sourceDir, name))
		if err != nil {
			continue
		}
		debugLog(w.logger, "Touching existing file: %s", name)
		select {
		case out <- WatchEvent{Kind: EventCreated, Path: abs, Timestamp: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

// translate maps an fsnotify op to our event kinds. A rename within the
// directory surfaces as Moved for the old name (the new name arrives as
// its own Created). A move into the directory from outside is a Created.
func translate(e fsnotify.Event) (WatchEvent, bool) {
	abs, err := filepath.Abs(e.Name)
	if err != nil {
		return WatchEvent{}, false
	}
	if filepath.Base(abs)[0] == '.' {
		return WatchEvent{}, false
	}

	ev := WatchEvent{Path: abs, Timestamp: time.Now()}
	switch {
	case e.Op.Has(fsnotify.Create):
		ev.Kind = EventCreated
	case e.Op.Has(fsnotify.Write):
		ev.Kind = EventModified
	case e.Op.Has(fsnotify.Rename):
		ev.Kind = EventMoved
	case e.Op.Has(fsnotify.Remove):
		ev.Kind = EventDeleted
	default:
		return WatchEvent{}, false
	}
	return ev, true
}
