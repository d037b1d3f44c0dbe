package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
)

var ErrClosed = errors.New("index closed")

// SQLiteIndex stores the discovery markers and region forces synchronously, and indexes
// teleport events through an asynchronous writer so the tick loop never waits on disk.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan runtime.Event
	wg   sync.WaitGroup
	once sync.Once

	closed      atomic.Bool
	dropEvents  atomic.Uint64
	writeErrors atomic.Uint64
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropEventTotal uint64 `json:"drop_event_total"`
	WriteErrors    uint64 `json:"write_errors"`
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
		ch: make(chan runtime.Event, 65536),
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
		`CREATE TABLE IF NOT EXISTS markers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			dim TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			UNIQUE (kind, dim, x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS region_forces (
			dim TEXT NOT NULL,
			rx INTEGER NOT NULL,
			rz INTEGER NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (dim, rx, rz)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			grp TEXT NOT NULL,
			src_dim TEXT NOT NULL,
			src_x INTEGER NOT NULL,
			src_y INTEGER NOT NULL,
			src_z INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_grp_tick ON events(grp, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_src ON events(src_dim, src_x, src_z, src_y, tick);`,
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

/* ---------- discovery markers ---------- */

func (s *SQLiteIndex) AppendMarker(ctx context.Context, kind string, loc model.Location) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO markers(kind,dim,x,y,z) VALUES(?,?,?,?,?)`,
		kind, loc.Dim, loc.X, loc.Y, loc.Z)
	return err
}

func (s *SQLiteIndex) RemoveMarker(ctx context.Context, kind string, loc model.Location) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM markers WHERE kind=? AND dim=? AND x=? AND y=? AND z=?`,
		kind, loc.Dim, loc.X, loc.Y, loc.Z)
	return err
}

// LoadMarkers returns kind's markers in insertion order.
func (s *SQLiteIndex) LoadMarkers(ctx context.Context, kind string) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dim,x,y,z FROM markers WHERE kind=? ORDER BY seq`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.Dim, &l.X, &l.Y, &l.Z); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

/* ---------- region forces ---------- */

func (s *SQLiteIndex) SaveRegionForce(ctx context.Context, key model.RegionKey, count int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if count <= 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM region_forces WHERE dim=? AND rx=? AND rz=?`, key.Dim, key.X, key.Z)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO region_forces(dim,rx,rz,count) VALUES(?,?,?,?)
		 ON CONFLICT(dim,rx,rz) DO UPDATE SET count=excluded.count`,
		key.Dim, key.X, key.Z, count)
	return err
}

func (s *SQLiteIndex) LoadRegionForces(ctx context.Context) (map[model.RegionKey]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dim,rx,rz,count FROM region_forces`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.RegionKey]int{}
	for rows.Next() {
		var (
			k model.RegionKey
			n int
		)
		if err := rows.Scan(&k.Dim, &k.X, &k.Z, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

/* ---------- events ---------- */

// WriteEvent queues ev for indexing. It never blocks; events are dropped when the writer
// falls behind since the JSONL audit log remains the source of truth.
func (s *SQLiteIndex) WriteEvent(ev runtime.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropEvents.Add(1)
	}
}

// GroupEvents returns up to limit indexed events for g, oldest first.
func (s *SQLiteIndex) GroupEvents(ctx context.Context, g model.GroupID, limit int) ([]runtime.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM events WHERE grp=? ORDER BY id LIMIT ?`, g.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []runtime.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ev runtime.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents counts indexed events of kind (all kinds when empty).
func (s *SQLiteIndex) CountEvents(ctx context.Context, kind runtime.EventKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind=?`, string(kind)).Scan(&n)
	}
	return n, err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropEventTotal: s.dropEvents.Load(),
		WriteErrors:    s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO events(tick,kind,grp,src_dim,src_x,src_y,src_z,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
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
			s.writeErrors.Add(1)
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
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// The connection is shared with the synchronous marker calls, so the transaction is
	// committed as soon as the queue drains.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for ev := range s.ch {
		begin()
		if tx == nil || insertEvent == nil {
			continue
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			s.writeErrors.Add(1)
			continue
		}
		if _, err := tx.Stmt(insertEvent).Exec(
			int64(ev.Tick),
			string(ev.Kind),
			ev.Group.String(),
			ev.Source.Dim, ev.Source.X, ev.Source.Y, ev.Source.Z,
			ev.Code,
			string(raw),
		); err != nil {
			s.writeErrors.Add(1)
			rollback()
			continue
		}
		opCount++
		flushIfNeeded()
	}

	commit()
}
