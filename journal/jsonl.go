package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/milk9111/blockfuse/merge"
)

const journalSuffix = ".jsonl.zst"

// JSONLZstdWriter appends JSON lines to zstd compressed files, one file per
// UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, hour, journalSuffix))
}

// Journal is a merge.Listener that writes fusion records on its own
// goroutine. Records are dropped, and counted, if the writer falls behind.
type Journal struct {
	w *JSONLZstdWriter

	mu     sync.RWMutex
	closed bool
	ch     chan Record
	wg     sync.WaitGroup

	seq     atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64
}

var _ merge.Listener = (*Journal)(nil)

// OpenJournal starts a journal writing fusions-*.jsonl.zst files under dir.
func OpenJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j := &Journal{
		w:  NewJSONLZstdWriter(dir, "fusions"),
		ch: make(chan Record, 4096),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func (j *Journal) OnFusion(fu merge.Fusion) {
	if j == nil {
		return
	}
	rec := NewRecord(fu, time.Now())

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	rec.Seq = j.seq.Add(1)
	select {
	case j.ch <- rec:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) loop() {
	for rec := range j.ch {
		if err := j.w.Write(rec); err != nil {
			if j.errs.Add(1) == 1 {
				log.Printf("journal: write fusion %d: %v", rec.Seq, err)
			}
			continue
		}
		j.written.Add(1)
	}
}

// Written returns the number of records written so far.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Dropped returns the number of records lost to a full queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Close drains queued records and closes the current file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	if err := j.w.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	if n := j.errs.Load(); n > 0 {
		return fmt.Errorf("journal: %d records failed to write", n)
	}
	return nil
}

// Files lists the journal files under dir in chronological order.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "fusions-") && strings.HasSuffix(name, journalSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadJSONL decodes every record in a journal file. Files appended to by
// several runs hold several zstd frames; the decoder reads them in sequence.
func ReadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []Record
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}
