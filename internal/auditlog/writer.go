package auditlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// WriterConfig holds configuration for the buffered writer.
type WriterConfig struct {
	// Path is the log artifact file, created if absent.
	Path string
	// BufferSize is the entry queue capacity (default 1000).
	BufferSize int
	// FlushInterval is how often buffered entries hit disk (default 5s).
	FlushInterval time.Duration
}

// Writer appends audit entries to the log file as JSON lines. Entries are
// collected on a channel and flushed by a background goroutine, either
// when a batch fills or on the flush interval. Write never blocks the
// request path.
type Writer struct {
	config  WriterConfig
	file    *os.File
	buffer  chan *Entry
	flushCh chan chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWriter opens (or creates) the log file in append mode and starts the
// background flush loop. The caller must call Close during shutdown.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		config:  cfg,
		file:    file,
		buffer:  make(chan *Entry, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w, nil
}

// Write queues an entry for async appending. Non-blocking: if the buffer
// is full the entry is dropped and a warning is logged.
func (w *Writer) Write(entry *Entry) {
	if entry == nil {
		return
	}

	select {
	case w.buffer <- entry:
	default:
		slog.Warn("audit log buffer full, dropping entry",
			"request_id", entry.RequestID,
			"path", entry.Path,
		)
	}
}

// Flush forces all queued entries onto disk and waits until done or the
// context expires. The publisher calls this before staging the artifact.
func (w *Writer) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case w.flushCh <- ack:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the flush loop, drains remaining entries and closes the file.
func (w *Writer) Close() error {
	close(w.done)
	w.wg.Wait()
	return w.file.Close()
}

// flushLoop runs in the background and moves buffered entries to disk.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, 100)

	flush := func() {
		w.writeBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-w.buffer:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}

		case <-ticker.C:
			flush()

		case ack := <-w.flushCh:
			// Drain whatever is queued before acknowledging.
			for {
				select {
				case entry := <-w.buffer:
					batch = append(batch, entry)
					continue
				default:
				}
				break
			}
			flush()
			close(ack)

		case <-w.done:
			// Shutdown: drain remaining entries, final flush.
			close(w.buffer)
			for entry := range w.buffer {
				batch = append(batch, entry)
			}
			flush()
			if err := w.file.Sync(); err != nil {
				slog.Error("failed to sync audit log file", "error", err)
			}
			return
		}
	}
}

// writeBatch appends a batch of entries as JSON lines.
func (w *Writer) writeBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	for _, entry := range batch {
		line, err := json.Marshal(entry)
		if err != nil {
			slog.Error("failed to marshal audit entry", "error", err, "request_id", entry.RequestID)
			continue
		}
		line = append(line, '\n')
		if _, err := w.file.Write(line); err != nil {
			slog.Error("failed to append audit entry", "error", err)
		}
	}
}
