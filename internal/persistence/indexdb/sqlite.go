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

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/catalogs"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index over the event journal, the
// audit trail and periodic grid snapshots. Writes go through a single
// writer goroutine; enqueue never blocks a grid operation. The JSONL
// logs remain the source of truth when the indexer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	event    protocol.Event
	audit    grid.AuditEntry
	snapshot grid.GridState
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
		// High buffer: cascades emit bursts of events and must not stall.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			ms INTEGER NOT NULL,
			type TEXT NOT NULL,
			source TEXT,
			consumer TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_seq ON events(type, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_source_seq ON events(source, seq);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_ms ON audits(actor, ms);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			sources INTEGER NOT NULL,
			assemblies INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

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

// WriteEvent implements grid.EventSink.
func (s *SQLiteIndex) WriteEvent(e protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		// Drop if the indexer falls behind; JSONL logs stay authoritative.
	}
	return nil
}

// WriteAudit implements grid.AuditSink.
func (s *SQLiteIndex) WriteAudit(entry grid.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
	}
	return nil
}

// RecordSnapshot indexes a full grid state, keyed by journal seq.
func (s *SQLiteIndex) RecordSnapshot(st grid.GridState) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: st}:
	default:
	}
}

// UpsertCatalogs stores the catalog documents and applied tuning with
// their digests, so an operator can tell which definitions a grid ran.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name   string
		digest string
		json   []byte
	}
	var rows []row
	read := func(name, digest, path string) {
		b, err := os.ReadFile(path)
		if err != nil || len(b) == 0 {
			return
		}
		rows = append(rows, row{name: name, digest: digest, json: b})
	}
	if configDir != "" && cats != nil {
		read("consumers", cats.Consumers.Digest, filepath.Join(configDir, "consumers.json"))
		read("fuels", cats.Fuels.Digest, filepath.Join(configDir, "fuels.json"))
		read("sources", cats.Sources.Digest, filepath.Join(configDir, "sources.json"))
	}
	{
		// Tuning: store the values we actually apply (canonical JSON).
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
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

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(seq,ms,type,source,consumer,raw_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(ms,actor,action,target,reason,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,recorded_at,sources,assemblies,raw_json) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
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

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			if insertEvent == nil {
				continue
			}
			raw, _ := json.Marshal(r.event)
			if _, err := tx.Stmt(insertEvent).Exec(
				eventInt(r.event, "seq"),
				eventInt(r.event, "ms"),
				eventStr(r.event, "type"),
				eventStr(r.event, "source"),
				eventStr(r.event, "consumer"),
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			if insertAudit == nil {
				continue
			}
			raw, _ := json.Marshal(r.audit)
			if _, err := tx.Stmt(insertAudit).Exec(
				r.audit.Ms,
				r.audit.Actor,
				r.audit.Action,
				r.audit.Target,
				r.audit.Reason,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			raw, _ := json.Marshal(r.snapshot)
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(r.snapshot.Seq),
				time.Now().UTC().Format(time.RFC3339Nano),
				len(r.snapshot.Sources),
				len(r.snapshot.Assemblies),
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

func eventInt(e protocol.Event, key string) int64 {
	switch v := e[key].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

func eventStr(e protocol.Event, key string) string {
	s, _ := e[key].(string)
	return s
}
