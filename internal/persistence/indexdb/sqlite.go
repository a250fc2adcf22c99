// Package indexdb mirrors generation logs and snapshots into a queryable SQLite index.
// The JSONL logs stay the source of truth; the index drops writes when it falls behind.
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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db    *sql.DB
	mapID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropGeneration atomic.Uint64
	dropSnapshot   atomic.Uint64
	dropSeed       atomic.Uint64
	writeErrors    atomic.Uint64
}

type reqKind int

const (
	reqGeneration reqKind = iota + 1
	reqSnapshot
	reqSeed
)

type req struct {
	kind reqKind

	generation regen.GenerationLogEntry
	snapshot   snapshotRow
	seed       seedRow
}

type snapshotRow struct {
	Generation uint64
	Path       string
	Seed       uint64
	GridSize   int
	Sites      int
	Cells      int
	Digest     string
	CreatedMS  int64
}

type seedRow struct {
	Seed       uint64
	GridSize   int
	Generation uint64
	Digest     string
	Path       string
	RecordedAt string
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	DropGenerationTotal uint64 `json:"drop_generation_total"`
	DropSnapshotTotal   uint64 `json:"drop_snapshot_total"`
	DropSeedTotal       uint64 `json:"drop_seed_total"`
	WriteErrorTotal     uint64 `json:"write_error_total"`
}

func OpenSQLite(path, mapID string) (*SQLiteIndex, error) {
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
		db:    db,
		mapID: mapID,
		ch:    make(chan req, 4096),
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
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			map_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			kind TEXT NOT NULL,
			unix_ms INTEGER NOT NULL,
			seed TEXT NOT NULL,
			grid_size INTEGER NOT NULL,
			sites INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			triangles INTEGER NOT NULL,
			digest TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			error TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_digest ON generations(digest);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_seed ON generations(seed, grid_size);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			generation INTEGER NOT NULL,
			map_id TEXT NOT NULL,
			path TEXT NOT NULL,
			seed TEXT NOT NULL,
			grid_size INTEGER NOT NULL,
			sites INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			digest TEXT NOT NULL,
			created_unix_ms INTEGER NOT NULL,
			PRIMARY KEY (map_id, generation)
		);`,
		`CREATE TABLE IF NOT EXISTS seeds (
			seed TEXT NOT NULL,
			grid_size INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			digest TEXT NOT NULL,
			archive_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (seed, grid_size)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

// seedKey stores the full uint64 range; SQLite integers are signed.
func seedKey(seed uint64) string { return strconv.FormatUint(seed, 16) }

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
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropGenerationTotal: s.dropGeneration.Load(),
		DropSnapshotTotal:   s.dropSnapshot.Load(),
		DropSeedTotal:       s.dropSeed.Load(),
		WriteErrorTotal:     s.writeErrors.Load(),
	}
}

// WriteGeneration implements regen.GenerationLogger.
func (s *SQLiteIndex) WriteGeneration(entry regen.GenerationLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqGeneration, generation: entry}:
	default:
		s.dropGeneration.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Generation: snap.Header.Generation,
		Path:       path,
		Seed:       snap.Config.Seed,
		GridSize:   snap.Config.GridSize,
		Sites:      len(snap.Sites),
		Cells:      len(snap.Cells),
		Digest:     snap.Header.Digest,
		CreatedMS:  snap.CreatedUnixMS,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordSeed notes the archived snapshot for a (seed, grid size) pair.
func (s *SQLiteIndex) RecordSeed(seed uint64, gridSize int, generation uint64, digest, archivedPath string) {
	if s == nil || s.closed.Load() {
		return
	}
	if archivedPath == "" {
		return
	}
	r := seedRow{
		Seed:       seed,
		GridSize:   gridSize,
		Generation: generation,
		Digest:     digest,
		Path:       archivedPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSeed, seed: r}:
	default:
		s.dropSeed.Add(1)
	}
}

// UpsertTuning stores the tuning values the server actually applies.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// GenerationRow is one indexed regeneration attempt.
type GenerationRow struct {
	Attempt    uint64  `json:"attempt"`
	Generation uint64  `json:"generation"`
	Kind       string  `json:"kind"`
	UnixMS     int64   `json:"unix_ms"`
	Seed       string  `json:"seed"`
	GridSize   int     `json:"grid_size"`
	Cells      int     `json:"cells"`
	Digest     string  `json:"digest"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// QueryGenerations returns up to limit generations rows, newest first.
func QueryGenerations(ctx context.Context, db *sql.DB, limit int) ([]GenerationRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT attempt,generation,kind,unix_ms,seed,grid_size,cells,digest,duration_ms,error FROM generations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GenerationRow
	for rows.Next() {
		var r GenerationRow
		if err := rows.Scan(&r.Attempt, &r.Generation, &r.Kind, &r.UnixMS, &r.Seed, &r.GridSize, &r.Cells, &r.Digest, &r.DurationMS, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertGeneration, _ := s.db.Prepare(`INSERT INTO generations(map_id,attempt,generation,kind,unix_ms,seed,grid_size,sites,cells,triangles,digest,duration_ms,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(generation,map_id,path,seed,grid_size,sites,cells,digest,created_unix_ms) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSeed, _ := s.db.Prepare(`INSERT OR IGNORE INTO seeds(seed,grid_size,generation,digest,archive_path,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertGeneration, insertSnapshot, insertSeed} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

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
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeErrors.Add(1)
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			lastCommit = time.Now()
			return
		}
		opCount++
	}

	// Commit whatever is pending once the queue goes quiet.
	idle := time.NewTimer(commitMaxWait)
	defer idle.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-idle.C:
			commit()
			idle.Reset(commitMaxWait)
			continue
		}

		begin()
		if tx == nil {
			s.writeErrors.Add(1)
			continue
		}
		switch r.kind {
		case reqGeneration:
			e := r.generation
			raw, _ := json.Marshal(e)
			exec(insertGeneration,
				s.mapID,
				int64(e.Attempt),
				int64(e.Generation),
				e.Kind,
				e.UnixMS,
				seedKey(e.Config.Seed),
				e.Config.GridSize,
				e.Sites,
				e.Cells,
				e.Triangles,
				e.Digest,
				e.DurationMS,
				e.Error,
				string(raw),
			)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot,
				int64(sn.Generation),
				s.mapID,
				sn.Path,
				seedKey(sn.Seed),
				sn.GridSize,
				sn.Sites,
				sn.Cells,
				sn.Digest,
				sn.CreatedMS,
			)
		case reqSeed:
			se := r.seed
			exec(insertSeed,
				seedKey(se.Seed),
				se.GridSize,
				int64(se.Generation),
				se.Digest,
				se.Path,
				se.RecordedAt,
			)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(commitMaxWait)
	}
}
