package pcapfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/irctrakz/chunkcap/pkg/logging"
)

// pathLocks serializes writers of the same file within the process.
var pathLocks sync.Map // string -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	mu, _ := pathLocks.LoadOrStore(filepath.Clean(key), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Writer appends records to one capture file. The file is opened and closed
// for every call; no handle is held between records.
type Writer struct {
	path string
	mu   *sync.Mutex
	perm os.FileMode
}

// NewWriter returns a writer for path. Nothing is touched on disk until the
// first EnsureHeader or record write.
func NewWriter(path string) *Writer {
	return &Writer{path: path, mu: lockFor(path), perm: 0644}
}

// Path returns the capture file path.
func (w *Writer) Path() string { return w.path }

// EnsureHeader writes the global header if the file is missing or empty.
// It is a no-op for a non-empty file and safe to call before every record.
func (w *Writer) EnsureHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()
	return w.ensureHeader(f)
}

// AppendRecord appends one record: the record header followed by hdr and
// payload. Captured and original lengths are both len(hdr)+len(payload).
func (w *Writer) AppendRecord(ts time.Time, hdr, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()
	return w.appendRecord(f, ts, hdr, payload)
}

// WriteRecord runs EnsureHeader and AppendRecord as one atomic unit.
func (w *Writer) WriteRecord(ts time.Time, hdr, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	if err := w.ensureHeader(f); err != nil {
		f.Close()
		return err
	}
	if err := w.appendRecord(f, ts, hdr, payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close capture file %s: %w", w.path, err)
	}
	return nil
}

// Size returns the current file length, or 0 if the file does not exist.
func (w *Writer) Size() (int64, error) {
	fi, err := os.Stat(w.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat capture file %s: %w", w.path, err)
	}
	return fi.Size(), nil
}

func (w *Writer) open() (*os.File, error) {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, w.perm)
	if err != nil {
		return nil, fmt.Errorf("open capture file %s: %w", w.path, err)
	}
	return f, nil
}

func (w *Writer) ensureHeader(f *os.File) error {
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat capture file %s: %w", w.path, err)
	}
	if fi.Size() > 0 {
		return nil
	}
	if _, err := f.Write(GlobalHeader()); err != nil {
		return fmt.Errorf("write capture header %s: %w", w.path, err)
	}
	logging.DebugWithFields(logging.Fields{"component": "pcapfile", "path": w.path}, "capture header written")
	return nil
}

func (w *Writer) appendRecord(f *os.File, ts time.Time, hdr, payload []byte) error {
	n := len(hdr) + len(payload)
	rec := recGet(RecordHeaderLen + n)
	defer recPut(rec)

	putRecordHeader(rec, ts, n)
	copy(rec[RecordHeaderLen:], hdr)
	copy(rec[RecordHeaderLen+len(hdr):], payload)
	if _, err := f.Write(rec); err != nil {
		return fmt.Errorf("append capture record %s: %w", w.path, err)
	}
	return nil
}
