package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"collegead.ai/internal/persistence/log"
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/reg"
	"collegead.ai/internal/sim/tuning"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable read model of a run. The JSONL logs remain the
// source of truth; writes are queued and dropped if the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropHistory  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqHistory
	reqSnapshot
)

type req struct {
	kind  reqKind
	runID string

	event    reg.Record
	history  log.HistoryLine
	snapshot snapshotRow
}

type snapshotRow struct {
	Week    int
	Path    string
	Coaches int
	Digest  string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEventTotal    uint64
	DropHistoryTotal  uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A full run of history rows arrives in one burst at ingest time.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			start_week INTEGER NOT NULL,
			weeks INTEGER NOT NULL,
			batches INTEGER NOT NULL,
			coaches INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			week INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			category TEXT,
			weight REAL NOT NULL DEFAULT 0,
			coach_id TEXT,
			intensity REAL NOT NULL,
			persistence_weeks REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, week, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_coach_week ON events(run_id, coach_id, week);`,
		`CREATE INDEX IF NOT EXISTS idx_events_event ON events(run_id, event_id);`,
		`CREATE TABLE IF NOT EXISTS trait_history (
			run_id TEXT NOT NULL,
			week INTEGER NOT NULL,
			coach_id TEXT NOT NULL,
			trait TEXT NOT NULL,
			pre REAL NOT NULL,
			post REAL NOT NULL,
			delta REAL NOT NULL,
			contexts TEXT NOT NULL,
			tags TEXT NOT NULL,
			PRIMARY KEY (run_id, coach_id, trait, week)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			week INTEGER NOT NULL,
			path TEXT NOT NULL,
			coaches INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run_id, week)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropHistoryTotal:  s.dropHistory.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteEvents(runID string, recs []reg.Record) {
	if s == nil || s.closed.Load() {
		return
	}
	for i := range recs {
		s.enqueue(req{kind: reqEvent, runID: runID, event: recs[i]}, &s.dropEvent)
	}
}

func (s *SQLiteIndex) WriteHistory(runID string, rows []log.HistoryLine) {
	if s == nil || s.closed.Load() {
		return
	}
	for _, r := range rows {
		s.enqueue(req{kind: reqHistory, runID: runID, history: r}, &s.dropHistory)
	}
}

func (s *SQLiteIndex) RecordSnapshot(runID string, week int, path string, coaches int, digest string) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{Week: week, Path: path, Coaches: coaches, Digest: digest}
	s.enqueue(req{kind: reqSnapshot, runID: runID, snapshot: r}, &s.dropSnapshot)
}

// Run describes one invocation of the simulator.
type Run struct {
	ID        string
	Seed      uint64
	StartWeek int
	Weeks     int
	Batches   int
	Coaches   int
}

// RecordRun is synchronous so the run row exists before its events land.
func (s *SQLiteIndex) RecordRun(r Run) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs(run_id,seed,start_week,weeks,batches,coaches,recorded_at) VALUES(?,?,?,?,?,?,?)`,
		r.ID, int64(r.Seed), r.StartWeek, r.Weeks, r.Batches, r.Coaches,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// UpsertCatalogs stores the raw catalog files and the tuning actually
// applied, keyed by file name, with their digests.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	digests := cats.Digests()
	for _, name := range []string{catalogs.GravityFile, catalogs.AnchorsFile, catalogs.ContextsFile, catalogs.ComponentsFile, catalogs.EventsFile} {
		b, err := os.ReadFile(filepath.Join(configDir, name))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: name, digest: digests[name], json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,week,seq,event_id,category,weight,coach_id,intensity,persistence_weeks,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertHistory, _ := s.db.Prepare(`INSERT OR REPLACE INTO trait_history(run_id,week,coach_id,trait,pre,post,delta,contexts,tags) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,week,path,coaches,digest) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertHistory, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)
	// Merged logs interleave batches, so event sequence numbers are kept
	// per (run, week) rather than reset on week change.
	type weekKey struct {
		run  string
		week int
	}
	eventSeq := map[weekKey]int{}

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	// Idle ticks commit a lingering tx so synchronous callers sharing the
	// single connection are not blocked behind it.
	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-idle.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			k := weekKey{run: r.runID, week: e.Week}
			seq := eventSeq[k]
			eventSeq[k] = seq + 1
			raw, _ := json.Marshal(e)
			exec(insertEvent, r.runID, e.Week, seq, e.EventID, e.Category, e.Weight, e.CoachID, e.Intensity, e.PersistenceWeeks, string(raw))

		case reqHistory:
			h := r.history
			exec(insertHistory, r.runID, h.Week, h.CoachID, h.Trait, h.Pre, h.Post, h.Delta, h.Contexts, h.Tags)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, r.runID, sn.Week, sn.Path, sn.Coaches, sn.Digest)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
