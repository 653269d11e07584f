package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long the watcher waits for a burst of changes to
// settle before re-surveying.
const DefaultDebounce = 2 * time.Second

// Watcher re-surveys the project when manifests, top-level directories or
// HEAD change, and emits a report whenever drift against the baseline is
// non-zero.
type Watcher struct {
	surveyor   *Surveyor
	comparator *Comparator
	debounce   time.Duration
	logger     *slog.Logger

	fs      *fsnotify.Watcher
	reports chan *Report
	stop    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	baseline *Survey
}

// NewWatcher creates a watcher comparing against baseline.
func NewWatcher(s *Surveyor, c *Comparator, baseline *Survey, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		surveyor:   s,
		comparator: c,
		debounce:   debounce,
		logger:     s.logger,
		fs:         fw,
		reports:    make(chan *Report, 4),
		stop:       make(chan struct{}),
		baseline:   baseline,
	}, nil
}

// Reports returns the channel of drift reports.
func (w *Watcher) Reports() <-chan *Report {
	return w.reports
}

// SetBaseline replaces the survey reports are computed against, typically
// after a re-plan has absorbed the drift.
func (w *Watcher) SetBaseline(s *Survey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.baseline = s
}

// Start registers watches and begins processing in the background.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.surveyor.root
	if err := w.fs.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !skipDirs[e.Name()] && e.Name()[0] != '.' {
			_ = w.fs.Add(filepath.Join(root, e.Name()))
		}
	}
	// Commits land in logs/HEAD; absent in fresh or bare repositories.
	if logs := filepath.Join(root, ".git", "logs", "HEAD"); fileExists(logs) {
		_ = w.fs.Add(logs)
	}

	go w.loop(ctx)
	return nil
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.fs.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == w.surveyor.root {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fs.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.check()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("drift watcher error", "error", err)
		}
	}
}

// check re-surveys and emits a report when the score is non-zero.
func (w *Watcher) check() {
	next, err := w.surveyor.Survey()
	if err != nil {
		w.logger.Warn("drift re-survey failed", "error", err)
		return
	}

	w.mu.Lock()
	base := w.baseline
	w.mu.Unlock()
	if base == nil {
		return
	}

	report := w.comparator.Compare(base, next)
	if report.Score == 0 {
		return
	}
	w.logger.Info("drift detected", "score", report.Score, "category", report.Category)

	select {
	case w.reports <- report:
	case <-w.stop:
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
