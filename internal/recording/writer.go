// Package recording writes the captured header and raw data payloads to a
// 24-bit biosignal file.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"firestige.xyz/eeglink/internal/bdf"
	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/metrics"
)

// bufferedPayloads is how many payloads the write buffer holds: 30 seconds
// of ten payloads per second.
const bufferedPayloads = 10 * 30

// Options describe a new record file.
type Options struct {
	Patient     string
	Labels      []string
	PayloadSize int
}

// Writer appends payloads to an open record file.
type Writer struct {
	mu       sync.Mutex
	fs       afero.Fs
	file     afero.File
	path     string
	buf      []byte
	capacity int
	frames   int
	paused   bool
	closed   bool
}

// DefaultPath returns dir/EegRecord_<Y>.<M>.<D>___<h>.<m>.<s>.bdf for t.
func DefaultPath(dir string, t time.Time) string {
	name := fmt.Sprintf("EegRecord_%d.%d.%d___%d.%d.%d.bdf",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return filepath.Join(dir, name)
}

// Create opens path on fs, creating parent directories, and writes header
// with the patient name and channel labels patched in.
func Create(fs afero.Fs, path string, header []byte, opts Options) (*Writer, error) {
	if opts.PayloadSize <= 0 {
		return nil, fmt.Errorf("recording: invalid payload size %d", opts.PayloadSize)
	}
	hdr, err := bdf.Patch(header, opts.Patient, opts.Labels)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrRecordCreateFailed, dir, err)
		}
	}
	file, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrRecordCreateFailed, path, err)
	}
	if _, err := file.Write(hdr); err != nil {
		err = multierr.Combine(
			fmt.Errorf("%w: write header: %v", core.ErrRecordCreateFailed, err),
			file.Close(),
			fs.Remove(path),
		)
		return nil, err
	}

	capacity := opts.PayloadSize * bufferedPayloads
	return &Writer{
		fs:       fs,
		file:     file,
		path:     path,
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}, nil
}

// Append buffers one payload. While paused it is a no-op.
// The buffer is written out when the payload would overflow it.
func (w *Writer) Append(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.paused {
		return nil
	}
	if len(w.buf)+len(payload) > w.capacity {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, payload...)
	w.frames++
	metrics.RecordedFramesTotal.Inc()
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.file.Write(w.buf)
	w.buf = w.buf[:0]
	metrics.RecordFlushesTotal.Inc()
	if err != nil {
		return fmt.Errorf("recording: flush %s: %w", w.path, err)
	}
	return nil
}

// Pause stops appending without closing the file.
func (w *Writer) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume re-enables appending.
func (w *Writer) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// Paused reports whether appends are currently ignored.
func (w *Writer) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Frames returns the number of payloads accepted so far.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Path returns the record file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes buffered payloads, stores the final record count in the
// header and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.flush()
	if perr := bdf.WriteDataRecords(w.file, w.frames); perr != nil {
		err = multierr.Append(err, fmt.Errorf("recording: patch record count: %w", perr))
	}
	return multierr.Append(err, w.file.Close())
}
