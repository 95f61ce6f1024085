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

	"voxelfluid/internal/persistence/snapshot"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/catalogs"
	"voxelfluid/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick          atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	tick     area.TickLogEntry
	snapshot snapshotRow
	groups   []groupRow
}

type snapshotRow struct {
	Tick    uint64
	AreaID  string
	Path    string
	SizeX   int
	SizeY   int
	SizeZ   int
	Records int
	Groups  int
	Frozen  int
	Mist    int
}

type groupRow struct {
	Tick   uint64
	ID     uint32
	Fluid  string
	State  int
	Points int
	Excess int64
	Stable bool
}

// Stats reports the writer queue and how many requests were dropped because the
// writer fell behind.
type Stats struct {
	QueueDepth             int    `json:"queue_depth"`
	QueueCapacity          int    `json:"queue_capacity"`
	DropTickTotal          uint64 `json:"drop_tick_total"`
	DropSnapshotTotal      uint64 `json:"drop_snapshot_total"`
	DropSnapshotStateTotal uint64 `json:"drop_snapshot_state_total"`
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
	// WAL is much faster for append-style workloads.
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
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			temperature INTEGER NOT NULL,
			groups_active INTEGER NOT NULL,
			unstable INTEGER NOT NULL,
			edits INTEGER NOT NULL,
			frozen INTEGER NOT NULL,
			thawed INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS totals (
			tick INTEGER NOT NULL,
			fluid TEXT NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (tick, fluid)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			fluid TEXT,
			volume INTEGER NOT NULL,
			moved INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos_tick ON edits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			area_id TEXT NOT NULL,
			path TEXT NOT NULL,
			size_x INTEGER NOT NULL,
			size_y INTEGER NOT NULL,
			size_z INTEGER NOT NULL,
			records INTEGER NOT NULL,
			groups_total INTEGER NOT NULL,
			frozen INTEGER NOT NULL,
			mist INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_groups (
			tick INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			fluid TEXT NOT NULL,
			state INTEGER NOT NULL,
			points INTEGER NOT NULL,
			excess INTEGER NOT NULL,
			stable INTEGER NOT NULL,
			PRIMARY KEY (tick, group_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_groups_fluid ON snapshot_groups(fluid, tick);`,
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropTickTotal:          s.dropTick.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry area.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		AreaID:  snap.Header.AreaID,
		Path:    path,
		SizeX:   snap.Size[0],
		SizeY:   snap.Size[1],
		SizeZ:   snap.Size[2],
		Records: len(snap.Records),
		Groups:  len(snap.Registry.Groups),
		Frozen:  len(snap.Frozen),
		Mist:    len(snap.Mist),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordSnapshotState indexes the per-group census of a snapshot.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	rows := make([]groupRow, 0, len(snap.Registry.Groups))
	for _, g := range snap.Registry.Groups {
		name := fmt.Sprintf("#%d", g.Type)
		if int(g.Type) < len(snap.Fluids) {
			name = snap.Fluids[g.Type].Name
		}
		rows = append(rows, groupRow{
			Tick:   snap.Header.Tick,
			ID:     g.ID,
			Fluid:  name,
			State:  int(g.State),
			Points: len(g.Points),
			Excess: g.Excess,
			Stable: g.Stable,
		})
	}
	select {
	case s.ch <- req{kind: reqSnapshotState, groups: rows}:
	default:
		s.dropSnapshotState.Add(1)
	}
}

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
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "fluids.json")); err == nil {
			rows = append(rows, kv{name: "fluids_defs", digest: cats.Fluids.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Fluids.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "fluids_palette", digest: cats.Fluids.PaletteDigest, json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
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

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,temperature,groups_active,unstable,edits,frozen,thawed,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertTotal, _ := s.db.Prepare(`INSERT OR REPLACE INTO totals(tick,fluid,volume) VALUES(?,?,?)`)
	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(tick,seq,op,x,y,z,fluid,volume,moved,error) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,area_id,path,size_x,size_y,size_z,records,groups_total,frozen,mist) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertGroup, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshot_groups(tick,group_id,fluid,state,points,excess,stable) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertTotal, insertEdit, insertSnapshot, insertGroup} {
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

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
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
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.Digest, e.Temperature, e.Groups, e.Unstable, len(e.Edits), e.Frozen, e.Thawed, string(b)) {
				continue
			}
			for _, name := range sortedNames(e.Totals) {
				if !exec(insertTotal, int64(e.Tick), name, e.Totals[name]) {
					break
				}
			}
			for i, ed := range e.Edits {
				if !exec(insertEdit, int64(e.Tick), i, string(ed.Op), ed.Pos[0], ed.Pos[1], ed.Pos[2], ed.Fluid, int64(ed.Volume), int64(ed.Moved), ed.Error) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.AreaID, sn.Path, sn.SizeX, sn.SizeY, sn.SizeZ, sn.Records, sn.Groups, sn.Frozen, sn.Mist)

		case reqSnapshotState:
			for _, g := range r.groups {
				stable := 0
				if g.Stable {
					stable = 1
				}
				if !exec(insertGroup, int64(g.Tick), int64(g.ID), g.Fluid, g.State, g.Points, g.Excess, stable) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
