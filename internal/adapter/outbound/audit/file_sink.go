// Package audit adapts the domain audit.Sink interface to an append-only,
// newline-delimited file on disk, rotated daily and by size.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
)

// filenamePattern matches audit-YYYY-MM-DD.log or audit-YYYY-MM-DD-N.log,
// the same scheme the teacher's file-based store used for its own log.
var filenamePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// FileConfig configures a FileSink.
type FileConfig struct {
	// Dir is the directory audit-*.log files are written to.
	Dir string
	// MaxFileSizeMB caps a single file's size before rotating to a
	// suffixed file for the same day (default 100).
	MaxFileSizeMB int
	// QueueSize bounds the in-memory record queue between Log callers
	// and the writer goroutine (default 1024).
	QueueSize int
}

// FileSink writes audit.Record values to disk from a single dedicated
// goroutine, so that concurrent request handlers never block on file IO
// (spec.md §4.2, §5: a slow or stalled disk must not affect request
// latency). Records that arrive faster than they can be written are
// dropped with a warning log rather than applying backpressure to callers.
type FileSink struct {
	dir         string
	maxFileSize int64
	logger      *slog.Logger

	records chan audit.Record
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewFileSink creates the audit directory if needed, opens (or resumes)
// today's log file on the writer goroutine, and returns once that file is
// confirmed open.
func NewFileSink(cfg FileConfig, logger *slog.Logger) (*FileSink, error) {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	s := &FileSink{
		dir:         cfg.Dir,
		maxFileSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		logger:      logger,
		records:     make(chan audit.Record, cfg.QueueSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	ready := make(chan error, 1)
	go s.run(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s, nil
}

// Log enqueues rec for the writer goroutine. It never blocks: a full queue
// drops the record and logs a warning, trading completeness for the
// request path's latency guarantee.
func (s *FileSink) Log(_ context.Context, rec audit.Record) {
	select {
	case s.records <- rec:
	default:
		s.logger.Warn("audit queue full, dropping record", "destination", rec.Destination)
	}
}

// Close stops the writer goroutine and blocks until its current file is
// synced and closed.
func (s *FileSink) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	return nil
}

// run is the sink's single writer goroutine. It owns the open *os.File
// exclusively, so no locking is needed around writes or rotation.
func (s *FileSink) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.stopped)

	today := time.Now().UTC().Format("2006-01-02")
	suffix := s.findHighestSuffix(today)
	f, size, err := s.openFile(today, suffix)
	if err != nil {
		ready <- err
		return
	}
	ready <- nil

	currentDate := today
	currentSuffix := suffix
	currentSize := size
	defer func() {
		_ = f.Sync()
		_ = f.Close()
	}()

	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				return
			}
			dateStr := rec.Timestamp.UTC().Format("2006-01-02")
			if dateStr != currentDate {
				_ = f.Sync()
				_ = f.Close()
				newSuffix := s.findHighestSuffix(dateStr)
				nf, size, err := s.openFile(dateStr, newSuffix)
				if err != nil {
					s.logger.Error("audit: rotate by date failed", "error", err)
					return
				}
				f, currentDate, currentSuffix, currentSize = nf, dateStr, newSuffix, size
			} else if s.maxFileSize > 0 && currentSize >= s.maxFileSize {
				_ = f.Sync()
				_ = f.Close()
				currentSuffix++
				nf, size, err := s.openFile(currentDate, currentSuffix)
				if err != nil {
					s.logger.Error("audit: rotate by size failed", "error", err)
					return
				}
				f, currentSize = nf, size
			}

			data, err := json.Marshal(rec)
			if err != nil {
				s.logger.Error("audit: marshal record failed", "error", err)
				continue
			}
			data = append(data, '\n')
			n, err := f.Write(data)
			if err != nil {
				s.logger.Error("audit: write record failed", "error", err)
				continue
			}
			currentSize += int64(n)

		case <-s.done:
			return
		}
	}
}

func (s *FileSink) findHighestSuffix(dateStr string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		matches := filenamePattern.FindStringSubmatch(e.Name())
		if matches == nil || matches[1] != dateStr || matches[2] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[2])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (s *FileSink) filename(dateStr string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("audit-%s.log", dateStr)
	}
	return fmt.Sprintf("audit-%s-%d.log", dateStr, suffix)
}

func (s *FileSink) openFile(dateStr string, suffix int) (*os.File, int64, error) {
	path := filepath.Join(s.dir, s.filename(dateStr, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("open audit file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat audit file %s: %w", path, err)
	}
	return f, info.Size(), nil
}

var _ audit.Sink = (*FileSink)(nil)
