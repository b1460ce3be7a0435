package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
	"github.com/projectdiscovery/utils/batcher"
	"github.com/rs/xid"
)

// Record is one JSON line of output
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Writer buffers records and flushes them as JSON lines. Every record
// carries the ID of the invocation that created the writer.
type Writer struct {
	id      string
	out     io.Writer
	closer  io.Closer
	batcher *batcher.Batcher[Record]

	mu  sync.Mutex
	err error
}

// Options tunes the flush behavior, zero values use the environment defaults
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
}

// New creates a writer on out
func New(out io.Writer, options Options) *Writer {
	if options.BatchSize <= 0 {
		options.BatchSize = pkg.OutputBatchSize()
	}
	if options.FlushInterval <= 0 {
		options.FlushInterval = pkg.OutputFlushInterval()
	}

	w := &Writer{id: xid.New().String(), out: out}
	w.batcher = batcher.New(
		batcher.WithMaxCapacity[Record](options.BatchSize),
		batcher.WithFlushInterval[Record](options.FlushInterval),
		batcher.WithFlushCallback[Record](w.flush),
	)
	go w.batcher.Run()
	return w
}

// NewFile creates a writer appending to path
func NewFile(path string, options Options) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file %s: %w", path, err)
	}
	w := New(file, options)
	w.closer = file
	return w, nil
}

// ID returns the invocation ID stamped on every record
func (w *Writer) ID() string {
	return w.id
}

// Partial queues a partial result of command
func (w *Writer) Partial(command string, data any) {
	w.append(command, types.EventPartial, data, nil)
}

// Done queues the final aggregate of command
func (w *Writer) Done(command string, data any) {
	w.append(command, types.EventDone, data, nil)
}

// Failed queues the error that ended command
func (w *Writer) Failed(command string, err error) {
	w.append(command, types.EventFailed, nil, err)
}

func (w *Writer) append(command string, kind types.EventKind, data any, err error) {
	record := Record{
		ID:        w.id,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Event:     kind.String(),
		Data:      data,
	}
	if err != nil {
		record.Error = err.Error()
	}
	w.batcher.Append(record)
}

func (w *Writer) flush(records []Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			gologger.Debug().Msgf("could not encode %s record: %v", record.Command, err)
			continue
		}
		line = append(line, '\n')
		if _, err := w.out.Write(line); err != nil && w.err == nil {
			w.err = err
		}
	}
}

// Close flushes pending records and closes the underlying file
func (w *Writer) Close() error {
	w.batcher.Stop()
	w.batcher.WaitDone()

	w.mu.Lock()
	err := w.err
	w.mu.Unlock()

	if w.closer != nil {
		if closeErr := w.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
