package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/milk9111/blockfuse/merge"
)

// timeLayout is fixed width so recorded_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteIndex is a merge.Listener that indexes fusions in SQLite from a
// writer goroutine. The JSONL journal remains the source of truth; rows are
// dropped if the writer falls behind.
type SQLiteIndex struct {
	db  *sql.DB
	run string

	mu     sync.RWMutex
	closed bool
	ch     chan Record
	wg     sync.WaitGroup

	seq     atomic.Uint64
	dropped atomic.Uint64
}

var _ merge.Listener = (*SQLiteIndex)(nil)

// OpenSQLite opens or creates the index at path. Rows written through this
// index are tagged with run.
func OpenSQLite(path, run string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty db path")
	}
	if run == "" {
		run = time.Now().UTC().Format("20060102T150405.000Z")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}

	s := &SQLiteIndex{
		db:  db,
		run: run,
		ch:  make(chan Record, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: pragmas: %w", err)
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fusions (
			run TEXT NOT NULL,
			seq INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			self TEXT NOT NULL,
			other TEXT NOT NULL,
			result TEXT NOT NULL,
			axis TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			sx REAL NOT NULL,
			sy REAL NOT NULL,
			sz REAL NOT NULL,
			material TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fusions_axis ON fusions(axis);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Run returns the run tag of rows written through this index.
func (s *SQLiteIndex) Run() string { return s.run }

// Dropped returns the number of rows lost to a full queue.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) OnFusion(fu merge.Fusion) {
	if s == nil {
		return
	}
	rec := NewRecord(fu, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	rec.Seq = s.seq.Add(1)
	select {
	case s.ch <- rec:
	default:
		s.dropped.Add(1)
	}
}

// Close flushes queued rows and closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO fusions(run,seq,recorded_at,self,other,result,axis,x,y,z,sx,sy,sz,material,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		log.Printf("journal: prepare insert: %v", err)
		for range s.ch {
			s.dropped.Add(1)
		}
		return
	}
	defer insert.Close()

	const commitEvery = 512

	var (
		tx      *sql.Tx
		opCount int
	)
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("journal: commit: %v", err)
		}
		tx = nil
		opCount = 0
	}

	for rec := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				log.Printf("journal: begin: %v", err)
				s.dropped.Add(1)
				continue
			}
			tx = txx
		}

		raw, _ := json.Marshal(rec)
		out := rec.Output
		if _, err := tx.Stmt(insert).Exec(
			s.run,
			int64(rec.Seq),
			rec.RecordedAt.UTC().Format(timeLayout),
			rec.Self,
			rec.Other,
			rec.Result,
			rec.Axis,
			out.Position[0], out.Position[1], out.Position[2],
			out.Size[0], out.Size[1], out.Size[2],
			rec.Material,
			string(raw),
		); err != nil {
			log.Printf("journal: insert fusion %d: %v", rec.Seq, err)
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			continue
		}
		opCount++

		// Commit when the queue is drained so readers see rows promptly.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

// Summary aggregates indexed fusions.
type Summary struct {
	Run       string
	Fusions   int64
	ByAxis    map[string]int64
	MaxVolume float64
	First     string
	Last      string
}

// Report reads an existing index.
type Report struct {
	db *sql.DB
}

// OpenReport opens an index for reading. The file must exist.
func OpenReport(path string) (*Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Report{db: db}, nil
}

func (r *Report) Close() error { return r.db.Close() }

// Runs lists the run tags in the index, oldest first.
func (r *Report) Runs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run FROM fusions GROUP BY run ORDER BY MIN(recorded_at)`)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Summary aggregates one run, or every run when run is empty.
func (r *Report) Summary(ctx context.Context, run string) (Summary, error) {
	sum := Summary{Run: run, ByAxis: map[string]int64{}}

	where, args := "", []any{}
	if run != "" {
		where, args = " WHERE run = ?", []any{run}
	}

	var first, last sql.NullString
	var maxVolume sql.NullFloat64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(sx*sy*sz), MIN(recorded_at), MAX(recorded_at) FROM fusions`+where, args...,
	).Scan(&sum.Fusions, &maxVolume, &first, &last); err != nil {
		return sum, fmt.Errorf("journal: summary: %w", err)
	}
	sum.MaxVolume = maxVolume.Float64
	sum.First = first.String
	sum.Last = last.String

	rows, err := r.db.QueryContext(ctx, `SELECT axis, COUNT(*) FROM fusions`+where+` GROUP BY axis ORDER BY axis`, args...)
	if err != nil {
		return sum, fmt.Errorf("journal: summary by axis: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var axis string
		var n int64
		if err := rows.Scan(&axis, &n); err != nil {
			return sum, err
		}
		sum.ByAxis[axis] = n
	}
	return sum, rows.Err()
}
