// Package wal is the file-based write-ahead log that keeps batched events
// durable while Redis is unreachable.
package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/worksync/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".ndjson"
	filePerm      = 0644
	maxLineBytes  = 4 << 20
)

// ErrFull is returned when a write would exceed the configured disk budget.
var ErrFull = errors.New("wal disk budget exhausted")

// Log is an append-only, segmented NDJSON log of events.
type Log struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu         sync.Mutex
	active     *os.File
	activeSize int64
	sealedSize int64
}

// Open creates dir if needed and appends to its newest segment.
func Open(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	l := &Log{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "wal"),
	}
	if err := l.resume(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends one event as a single line.
func (l *Log) Write(ctx context.Context, event domain.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for WAL: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		if err := l.startSegment(); err != nil {
			return err
		}
	}
	if l.sealedSize+l.activeSize+int64(len(line)) > l.maxTotalSize {
		return fmt.Errorf("%w (%d bytes used of %d)", ErrFull, l.sealedSize+l.activeSize, l.maxTotalSize)
	}

	n, err := l.active.Write(line)
	l.activeSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to append to WAL segment: %w", err)
	}

	if l.activeSize >= l.maxSegmentSize {
		if err := l.startSegment(); err != nil {
			l.logger.Error("failed to rotate WAL segment", "error", err)
		}
	}
	return nil
}

// Replay hands every logged event, oldest first, to handler. It stops at
// the first handler error so nothing is lost before Truncate.
func (l *Log) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sealActive(); err != nil {
		return err
	}

	segments, err := l.segments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	l.logger.Info("replaying WAL", "segment_count", len(segments))

	replayed := 0
	for _, path := range segments {
		n, err := l.replaySegment(ctx, path, handler)
		replayed += n
		if err != nil {
			return err
		}
	}

	l.logger.Info("WAL replay completed", "events", replayed)
	return nil
}

func (l *Log) replaySegment(ctx context.Context, path string, handler func(domain.Event) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var event domain.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			l.logger.Warn("skipping corrupt WAL entry", "segment", filepath.Base(path), "error", err)
			continue
		}
		if err := handler(event); err != nil {
			return n, fmt.Errorf("replay handler failed on event %s: %w", event.ID, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return n, nil
}

// Truncate deletes every segment and starts a fresh one.
func (l *Log) Truncate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sealActive(); err != nil {
		return err
	}
	segments, err := l.segments()
	if err != nil {
		return err
	}
	for _, path := range segments {
		if err := os.Remove(path); err != nil {
			l.logger.Error("failed to remove WAL segment", "path", path, "error", err)
		}
	}
	l.sealedSize = 0
	return l.startSegment()
}

// Size is the number of bytes currently held on disk.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealedSize + l.activeSize
}

// Close syncs and closes the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealActive()
}

func (l *Log) sealActive() error {
	if l.active == nil {
		return nil
	}
	if err := l.active.Sync(); err != nil {
		l.logger.Error("failed to sync WAL segment", "error", err)
	}
	err := l.active.Close()
	l.sealedSize += l.activeSize
	l.active = nil
	l.activeSize = 0
	if err != nil {
		return fmt.Errorf("failed to close WAL segment: %w", err)
	}
	return nil
}

func (l *Log) startSegment() error {
	if err := l.sealActive(); err != nil {
		l.logger.Error("failed to seal WAL segment before rotating", "error", err)
	}

	path := filepath.Join(l.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create WAL segment %s: %w", path, err)
	}
	l.active = f
	l.activeSize = 0
	l.logger.Debug("started WAL segment", "path", path)
	return nil
}

// resume recomputes the disk usage and reopens the newest segment if it
// still has room.
func (l *Log) resume() error {
	segments, err := l.segments()
	if err != nil {
		return err
	}

	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat segment %s: %w", path, err)
		}
		total += info.Size()
	}

	if len(segments) == 0 {
		return l.startSegment()
	}

	latest := segments[len(segments)-1]
	info, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latest, err)
	}
	l.sealedSize = total - info.Size()
	if info.Size() >= l.maxSegmentSize {
		l.sealedSize = total
		return l.startSegment()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest, err)
	}
	l.active = f
	l.activeSize = info.Size()
	if total > 0 {
		l.logger.Info("resumed WAL with pending data", "path", latest, "bytes", total)
	}
	return nil
}

func (l *Log) segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			out = append(out, filepath.Join(l.dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}
