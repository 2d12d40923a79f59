package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labops/resulttx/internal/config"
	"github.com/labops/resulttx/internal/notify"
)

// Resolver maps a (base path, hint, label) triple to a remote subfolder.
// Implementations fail closed with ErrMappingNotFound.
type Resolver interface {
	Resolve(basePath, hint, label string) (string, error)
}

// Transferer copies one local file into a subfolder on the remote host.
type Transferer interface {
	Transfer(ctx context.Context, localPath, subfolder string) error
}

// Archiver relocates a sent file out of the source directory.
type Archiver interface {
	Archive(localPath string) (string, error)
}

// HistoryStore is the persistent bookkeeping behind retry limits and the
// history CLI. A nil store disables bookkeeping (used in tests).
type HistoryStore interface {
	ErrorCount(path string) (int, error)
	RecordSent(path, hint, folder, remoteHost string, size int64, attempts int) error
	RecordFailure(path, hint, reason string, attempts int) error
}

type fileState struct {
	lastSize int64
	lastMod  int64
	timer    *time.Timer
}

type ctrlKind int

const (
	ctrlStart ctrlKind = iota
	ctrlFinish
)

type ctrlMsg struct {
	kind ctrlKind
	path string
}

// Dispatcher drives each watched file through filter, resolve, transfer
// and archive. One orchestrator goroutine owns all per-path state; actual
// transfers run in a bounded worker pool. A path is never processed by two
// workers at once, and events arriving while a path is in flight are
// replayed after it finishes.
type Dispatcher struct {
	cfg        config.WatchConfig
	filter     *PatternFilter
	hints      *HintExtractor
	resolver   Resolver
	transferer Transferer
	archiver   Archiver
	history    HistoryStore
	notifier   *notify.Notifier
	logger     Logger

	settling     time.Duration
	retryBackoff time.Duration
	retryTimeout time.Duration
	maxAttempts  int
	errorCeiling int
	limit        int
	queueSize    int
}

func NewDispatcher(cfg config.WatchConfig, filter *PatternFilter, hints *HintExtractor,
	resolver Resolver, transferer Transferer, archiver Archiver,
	history HistoryStore, notifier *notify.Notifier, logger Logger) *Dispatcher {

	d := &Dispatcher{
		cfg:        cfg,
		filter:     filter,
		hints:      hints,
		resolver:   resolver,
		transferer: transferer,
		archiver:   archiver,
		history:    history,
		notifier:   notifier,
		logger:     logger,

		settling:     parseDuration(cfg.SettlingDelay, 5*time.Second),
		retryBackoff: parseDuration(cfg.RetryBackoff, 2*time.Second),
		retryTimeout: parseDuration(cfg.RetryTimeout, 10*time.Minute),
		maxAttempts:  cfg.MaxAttempts,
		errorCeiling: cfg.ErrorCeiling,
		limit:        cfg.ConcurrencyLimit,
		queueSize:    cfg.QueueSize,
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 3
	}
	if d.errorCeiling <= 0 {
		d.errorCeiling = 10
	}
	if d.limit <= 0 {
		d.limit = 5
	}
	if d.queueSize <= 0 {
		d.queueSize = 100
	}
	return d
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	dur, err := time.ParseDuration(s)
	if err != nil || dur <= 0 {
		return fallback
	}
	return dur
}

// Run consumes events until ctx is cancelled or the event channel closes,
// then waits for in-flight work to drain.
func (d *Dispatcher) Run(ctx context.Context, events <-chan WatchEvent) {
	if d.logger != nil {
		d.logger.Infof("[%s] Dispatching %s -> %s:%s", d.cfg.Name, d.cfg.SourceDir, d.cfg.Hostname, d.cfg.DestinationDir)
	}

	pending := make(map[string]*fileState)
	active := make(map[string]bool)
	rerun := make(map[string]bool)

	ctrl := make(chan ctrlMsg, d.queueSize)
	sem := make(chan struct{}, d.limit)
	var wg sync.WaitGroup

	stopTimers := func() {
		for p, st := range pending {
			st.timer.Stop()
			delete(pending, p)
		}
	}

	// drain keeps consuming ctrl while in-flight workers wind down, so a
	// full buffer can never block a finishing worker during shutdown.
	drain := func() {
		stopTimers()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		for {
			select {
			case <-ctrl:
			case <-done:
				return
			}
		}
	}

	settle := func(path string) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		size, mod := info.Size(), info.ModTime().UnixNano()

		if st, ok := pending[path]; ok {
			if size != st.lastSize || mod != st.lastMod {
				debugLog(d.logger, "Metadata changed for %s (%d -> %d bytes). Resetting timer.", filepath.Base(path), st.lastSize, size)
				st.timer.Stop()
				st.lastSize = size
				st.lastMod = mod
				st.timer = time.AfterFunc(d.settling, func() {
					ctrl <- ctrlMsg{ctrlStart, path}
				})
			} else {
				debugLog(d.logger, "Redundant event for %s. Keeping current timer.", filepath.Base(path))
			}
			return
		}

		debugLog(d.logger, "New candidate %s (%d bytes). Starting settling timer.", filepath.Base(path), size)
		st := &fileState{lastSize: size, lastMod: mod}
		st.timer = time.AfterFunc(d.settling, func() {
			ctrl <- ctrlMsg{ctrlStart, path}
		})
		pending[path] = st
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				drain()
				return
			}
			switch ev.Kind {
			case EventDeleted, EventMoved:
				// Moved within the watch dir: the old name is gone; the
				// new name arrives as its own Created event.
				if st, ok := pending[ev.Path]; ok {
					st.timer.Stop()
					delete(pending, ev.Path)
				}
				delete(rerun, ev.Path)
			case EventCreated, EventModified:
				if active[ev.Path] {
					debugLog(d.logger, "Event for in-flight %s. Will replay after it finishes.", filepath.Base(ev.Path))
					rerun[ev.Path] = true
					continue
				}
				settle(ev.Path)
			}

		case m := <-ctrl:
			switch m.kind {
			case ctrlStart:
				if st, ok := pending[m.path]; ok {
					st.timer.Stop()
					delete(pending, m.path)
				}
				if active[m.path] {
					rerun[m.path] = true
					continue
				}
				active[m.path] = true
				wg.Add(1)
				go func(p string) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() {
						<-sem
						ctrl <- ctrlMsg{ctrlFinish, p}
					}()
					d.process(ctx, p)
				}(m.path)
			case ctrlFinish:
				delete(active, m.path)
				if rerun[m.path] {
					delete(rerun, m.path)
					settle(m.path)
				}
			}

		case <-ctx.Done():
			drain()
			return
		}
	}
}

// process runs one file through the pipeline: filter, hint, resolve,
// transfer with retry, archive. The source file is only ever removed via
// the archive rename; every failure leaves it in place.
func (d *Dispatcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Already archived or removed by the operator. Nothing to do.
		debugLog(d.logger, "Skipping %s: gone before processing", filepath.Base(path))
		return
	}

	if d.history != nil {
		count, err := d.history.ErrorCount(path)
		if err == nil && count >= d.errorCeiling {
			if d.logger != nil {
				d.logger.Warningf("[%s] Skipping %s: %d consecutive errors. Reset history to retry.", d.cfg.Name, filepath.Base(path), count)
			}
			return
		}
	}

	if !d.filter.Matches(path) {
		debugLog(d.logger, "Ignoring %s: does not match patterns", filepath.Base(path))
		return
	}

	file := ResultFile{
		LocalPath: path,
		Filename:  filepath.Base(path),
		SizeBytes: info.Size(),
		Label:     d.cfg.Label,
	}
	if hint, ok := d.hints.Extract(file.Filename); ok {
		file.Hint = hint
	}

	folder, err := d.resolver.Resolve(d.cfg.DestinationDir, file.Hint, file.Label)
	if err != nil {
		if d.logger != nil {
			d.logger.Errorf("[%s] Cannot resolve destination for %s: %v", d.cfg.Name, file.Filename, err)
		}
		d.recordFailure(ctx, file, "", 0, err)
		return
	}

	if d.logger != nil {
		d.logger.Infof("[%s] Sending %s -> %s/%s", d.cfg.Name, file.Filename, d.cfg.DestinationDir, folder)
	}

	attempts, err := d.transferWithRetry(ctx, path, folder)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Shutdown mid-retry. The file stays put and is announced
			// again on the next start; not a delivery failure.
			debugLog(d.logger, "Stopped while retrying %s", file.Filename)
			return
		}
		if d.logger != nil {
			d.logger.Errorf("[%s] Transfer failed for %s after %d attempt(s): %v", d.cfg.Name, file.Filename, attempts, err)
		}
		d.recordFailure(ctx, file, folder, attempts, err)
		return
	}

	archived, err := d.archiver.Archive(path)
	if err != nil {
		if d.logger != nil {
			d.logger.Errorf("[%s] Archive failed for %s: %v", d.cfg.Name, file.Filename, err)
		}
		d.recordFailure(ctx, file, folder, attempts, err)
		return
	}

	if d.logger != nil {
		d.logger.Infof("[%s] Sent %s (attempt %d), archived as %s", d.cfg.Name, file.Filename, attempts, filepath.Base(archived))
	}
	if d.history != nil {
		if err := d.history.RecordSent(path, file.Hint, folder, d.cfg.Hostname, file.SizeBytes, attempts); err != nil && d.logger != nil {
			d.logger.Errorf("[%s] History write failed: %v", d.cfg.Name, err)
		}
	}
	d.post(ctx, file, folder, "sent", "", attempts)
}

// transferWithRetry retries transient failures with doubling backoff,
// bounded by attempt count and elapsed time. Auth and mapping problems
// are never retried here; fixing them needs an operator.
func (d *Dispatcher) transferWithRetry(ctx context.Context, path, folder string) (int, error) {
	deadline := time.Now().Add(d.retryTimeout)
	backoff := d.retryBackoff

	attempts := 0
	for {
		attempts++
		err := d.transferer.Transfer(ctx, path, folder)
		if err == nil {
			return attempts, nil
		}
		if !retryable(err) || attempts >= d.maxAttempts || !time.Now().Add(backoff).Before(deadline) {
			return attempts, err
		}

		debugLog(d.logger, "Attempt %d for %s failed (%v). Retrying in %s.", attempts, filepath.Base(path), err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return attempts, ctx.Err()
		}
		backoff *= 2
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, file ResultFile, folder string, attempts int, cause error) {
	if d.history != nil {
		if err := d.history.RecordFailure(file.LocalPath, file.Hint, reason(cause), attempts); err != nil && d.logger != nil {
			d.logger.Errorf("[%s] History write failed: %v", d.cfg.Name, err)
		}
	}
	d.post(ctx, file, folder, "failed", reason(cause), attempts)
}

func (d *Dispatcher) post(ctx context.Context, file ResultFile, folder, status, errMsg string, attempts int) {
	if d.notifier == nil {
		return
	}
	err := d.notifier.Post(ctx, notify.Outcome{
		Watch:     d.cfg.Name,
		Hostname:  d.cfg.Hostname,
		Filename:  file.Filename,
		Hint:      file.Hint,
		Folder:    folder,
		SizeBytes: file.SizeBytes,
		Status:    status,
		Error:     errMsg,
		Attempts:  attempts,
		Timestamp: time.Now(),
	})
	if err != nil && d.logger != nil {
		d.logger.Warningf("[%s] Outcome webhook failed: %v", d.cfg.Name, err)
	}
}

// reason reduces an error chain to its taxonomy label for history rows.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrMappingNotFound):
		return "mapping_not_found"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	case errors.Is(err, ErrRemoteIOFailure):
		return "remote_io_failure"
	case errors.Is(err, ErrCollisionUnresolved):
		return "collision_unresolved"
	case errors.Is(err, ErrLocalIOFailure):
		return "local_io_failure"
	case err == nil:
		return ""
	}
	return err.Error()
}
