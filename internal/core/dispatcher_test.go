package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labops/resulttx/internal/config"
)

type mapResolver map[string]string

func (r mapResolver) Resolve(basePath, hint, label string) (string, error) {
	if folder, ok := r[hint]; ok {
		return folder, nil
	}
	return "", fmt.Errorf("%w: hint=%q", ErrMappingNotFound, hint)
}

// fakeTransferer copies files into a local "remote" directory and tracks
// per-path concurrency so tests can assert mutual exclusion.
type fakeTransferer struct {
	remoteDir string
	delay     time.Duration
	fail      func(attempt int) error

	mu         sync.Mutex
	calls      int
	inFlight   map[string]int
	maxOverlap int
}

func newFakeTransferer(remoteDir string) *fakeTransferer {
	return &fakeTransferer{remoteDir: remoteDir, inFlight: make(map[string]int)}
}

func (f *fakeTransferer) Transfer(ctx context.Context, localPath, subfolder string) error {
	f.mu.Lock()
	f.calls++
	attempt := f.calls
	f.inFlight[localPath]++
	if f.inFlight[localPath] > f.maxOverlap {
		f.maxOverlap = f.inFlight[localPath]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight[localPath]--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		if err := f.fail(attempt); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalIOFailure, err)
	}
	dir := filepath.Join(f.remoteDir, subfolder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteIOFailure, err)
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(localPath)), data, 0644)
}

func (f *fakeTransferer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	mu       sync.Mutex
	sent     map[string]int    // path -> attempts
	failed   map[string]string // path -> reason
	errCount map[string]int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{sent: map[string]int{}, failed: map[string]string{}, errCount: map[string]int{}}
}

func (h *fakeHistory) ErrorCount(path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errCount[path], nil
}

func (h *fakeHistory) RecordSent(path, hint, folder, remoteHost string, size int64, attempts int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[path] = attempts
	h.errCount[path] = 0
	return nil
}

func (h *fakeHistory) RecordFailure(path, hint, reason string, attempts int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[path] = reason
	h.errCount[path]++
	return nil
}

func (h *fakeHistory) failureReason(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed[path]
}

func (h *fakeHistory) sentAttempts(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent[path]
}

func testConfig(sourceDir string) config.WatchConfig {
	return config.WatchConfig{
		Name:             "test",
		Hostname:         "results.example.org",
		SourceDir:        sourceDir,
		DestinationDir:   "/srv/results",
		Label:            "bhs",
		FilePatterns:     []string{"*.pdf"},
		SettlingDelay:    "10ms",
		RetryBackoff:     "1ms",
		RetryTimeout:     "5s",
		MaxAttempts:      3,
		ConcurrencyLimit: 4,
		QueueSize:        16,
	}
}

type pipeline struct {
	dispatcher *Dispatcher
	transferer *fakeTransferer
	history    *fakeHistory
	remoteDir  string
	archiveDir string
	events     chan WatchEvent
	done       chan struct{}
}

func startPipeline(t *testing.T, cfg config.WatchConfig, resolver Resolver, tr *fakeTransferer) *pipeline {
	t.Helper()

	hints, err := NewHintExtractor("", 0)
	require.NoError(t, err)

	archiveDir := filepath.Join(t.TempDir(), "archive")
	hist := newFakeHistory()

	d := NewDispatcher(cfg,
		NewPatternFilter(cfg.FilePatterns, cfg.MimeTypes),
		hints, resolver, tr, NewArchiveMover(archiveDir), hist, nil, nil)

	p := &pipeline{
		dispatcher: d,
		transferer: tr,
		history:    hist,
		remoteDir:  tr.remoteDir,
		archiveDir: archiveDir,
		events:     make(chan WatchEvent),
		done:       make(chan struct{}),
	}
	go func() {
		d.Run(context.Background(), p.events)
		close(p.done)
	}()
	return p
}

func (p *pipeline) stop(t *testing.T) {
	t.Helper()
	close(p.events)
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}

func created(path string) WatchEvent {
	return WatchEvent{Kind: EventCreated, Path: path, Timestamp: time.Now()}
}

func TestDispatcherEndToEnd(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	p := startPipeline(t, testConfig(src), mapResolver{"12": "folder12"}, tr)

	p.events <- created(path)

	archived := filepath.Join(p.archiveDir, "066-129999-9.pdf")
	require.Eventually(t, func() bool {
		_, err := os.Stat(archived)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	// Re-delivering the event for the archived file must not re-transfer:
	// the path is gone from the source dir, so processing short-circuits.
	p.events <- created(path)
	time.Sleep(100 * time.Millisecond)
	p.stop(t)
	assert.Equal(t, 1, tr.callCount())

	// Delivered to the mapped remote subfolder.
	remote := filepath.Join(p.remoteDir, "folder12", "066-129999-9.pdf")
	data, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, data)

	// Gone from source, recorded as sent.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, p.history.sentAttempts(path))
}

func TestDispatcherMappingNotFound(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	p := startPipeline(t, testConfig(src), mapResolver{}, tr)

	p.events <- created(path)

	require.Eventually(t, func() bool {
		return p.history.failureReason(path) != ""
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	assert.Equal(t, "mapping_not_found", p.history.failureReason(path))
	assert.Zero(t, tr.callCount(), "no remote copy may be attempted without a mapping")

	// File stays in the source dir for operator-driven recovery.
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestDispatcherRetryThenSuccess(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	tr.fail = func(attempt int) error {
		if attempt <= 2 {
			return fmt.Errorf("%w: connection reset", ErrNetworkFailure)
		}
		return nil
	}
	p := startPipeline(t, testConfig(src), mapResolver{"12": "folder12"}, tr)

	p.events <- created(path)

	require.Eventually(t, func() bool {
		return p.history.sentAttempts(path) > 0
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	assert.Equal(t, 3, p.history.sentAttempts(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDispatcherAuthFailureNotRetried(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	tr.fail = func(attempt int) error {
		return fmt.Errorf("%w: key rejected", ErrAuthFailure)
	}
	p := startPipeline(t, testConfig(src), mapResolver{"12": "folder12"}, tr)

	p.events <- created(path)

	require.Eventually(t, func() bool {
		return p.history.failureReason(path) != ""
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	assert.Equal(t, "auth_failure", p.history.failureReason(path))
	assert.Equal(t, 1, tr.callCount(), "auth failures must not be retried")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestDispatcherTransferExhaustsBudget(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	tr.fail = func(attempt int) error {
		return fmt.Errorf("%w: unreachable", ErrNetworkFailure)
	}
	p := startPipeline(t, testConfig(src), mapResolver{"12": "folder12"}, tr)

	p.events <- created(path)

	require.Eventually(t, func() bool {
		return p.history.failureReason(path) != ""
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	assert.Equal(t, "network_failure", p.history.failureReason(path))
	assert.Equal(t, 3, tr.callCount())
	_, err := os.Stat(path)
	assert.NoError(t, err, "file must remain in source after terminal failure")
}

func TestDispatcherIgnoresNonMatching(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "notes.txt", []byte("not a result"))
	match := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	p := startPipeline(t, testConfig(src), mapResolver{"12": "folder12"}, tr)

	p.events <- created(path)
	p.events <- created(match)

	require.Eventually(t, func() bool {
		return p.history.sentAttempts(match) > 0
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	assert.Equal(t, 1, tr.callCount())
	_, err := os.Stat(path)
	assert.NoError(t, err, "non-matching files are left untouched")
	assert.Empty(t, p.history.failureReason(path))
}

func TestDispatcherNoConcurrentTransfersSamePath(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	tr.delay = 30 * time.Millisecond
	// Keep the source file around so replayed events can re-process it.
	tr.fail = func(attempt int) error {
		return fmt.Errorf("%w: still down", ErrNetworkFailure)
	}

	cfg := testConfig(src)
	cfg.MaxAttempts = 1
	p := startPipeline(t, cfg, mapResolver{"12": "folder12"}, tr)

	for i := 0; i < 5; i++ {
		p.events <- created(path)
		p.events <- WatchEvent{Kind: EventModified, Path: path, Timestamp: time.Now()}
	}

	require.Eventually(t, func() bool {
		return tr.callCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	p.stop(t)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.maxOverlap, "a path must never be in two transfers at once")
}

func TestDispatcherSkipsAfterErrorCeiling(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	cfg := testConfig(src)
	cfg.ErrorCeiling = 3

	p := startPipeline(t, cfg, mapResolver{"12": "folder12"}, tr)
	p.history.mu.Lock()
	p.history.errCount[path] = 3
	p.history.mu.Unlock()

	p.events <- created(path)
	time.Sleep(100 * time.Millisecond)
	p.stop(t)

	assert.Zero(t, tr.callCount(), "paths over the error ceiling are skipped until reset")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestDispatcherShutdownDuringBackoffLeavesHistoryClean(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	tr := newFakeTransferer(t.TempDir())
	tr.fail = func(attempt int) error {
		return fmt.Errorf("%w: connection reset", ErrNetworkFailure)
	}

	cfg := testConfig(src)
	// Cancellation must land inside the backoff wait, not between attempts.
	cfg.RetryBackoff = "30s"
	cfg.RetryTimeout = "10m"

	hints, err := NewHintExtractor("", 0)
	require.NoError(t, err)
	hist := newFakeHistory()
	d := NewDispatcher(cfg,
		NewPatternFilter(cfg.FilePatterns, cfg.MimeTypes),
		hints, mapResolver{"12": "folder12"}, tr,
		NewArchiveMover(filepath.Join(t.TempDir(), "archive")), hist, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan WatchEvent)
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()

	events <- created(path)
	require.Eventually(t, func() bool {
		return tr.callCount() == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	// An interrupted retry is not a delivery failure. The file stays in
	// the source dir and is announced again on the next start.
	assert.Empty(t, hist.failureReason(path))
	count, err := hist.ErrorCount(path)
	require.NoError(t, err)
	assert.Zero(t, count, "shutdown must not count against the error ceiling")
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
