// Package record stores simulation runs in SQLite.
//
// A [Recorder] is a [sim.Sink]: every recorded tick writes its timing, the
// root pose, and per-level node counts and translation bounds. The matrices
// themselves are not stored; use a binary sink for full transforms.
package record

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/sim"
)

// Run is one row of the runs table.
type Run struct {
	ID         string    `db:"id"`
	ConfigHash string    `db:"config_hash"`
	Variant    string    `db:"variant"`
	Depth      int       `db:"depth"`
	Nodes      int       `db:"nodes"`
	Seed       int64     `db:"seed"`
	StartedAt  time.Time `db:"started_at"`
}

// Tick is one row of the ticks table.
type Tick struct {
	RunID     string  `db:"run_id"`
	Tick      int64   `db:"tick"`
	DeltaTime float64 `db:"dt"`
	RootX     float64 `db:"root_x"`
	RootY     float64 `db:"root_y"`
	RootZ     float64 `db:"root_z"`
	RootScale float64 `db:"root_scale"`
	Nodes     int     `db:"nodes"`
}

// Level is one row of the levels table: the axis-aligned box around the
// translations of one level at one tick.
type Level struct {
	RunID string  `db:"run_id"`
	Tick  int64   `db:"tick"`
	Level int     `db:"level"`
	Count int     `db:"count"`
	MinX  float64 `db:"min_x"`
	MinY  float64 `db:"min_y"`
	MinZ  float64 `db:"min_z"`
	MaxX  float64 `db:"max_x"`
	MaxY  float64 `db:"max_y"`
	MaxZ  float64 `db:"max_z"`
}

// Recorder writes frames to a SQLite database.
type Recorder struct {
	conn  *sqlx.DB
	every uint64
	seen  map[string]bool
}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	r := &Recorder{conn: conn, every: 1, seen: make(map[string]bool)}
	if err := r.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// SetEvery records only every n-th tick. Zero or one records all ticks.
func (r *Recorder) SetEvery(n uint64) {
	r.every = max(n, 1)
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.conn.Close()
}

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		config_hash TEXT NOT NULL DEFAULT '',
		variant TEXT NOT NULL DEFAULT '',
		depth INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		dt REAL NOT NULL,
		root_x REAL NOT NULL,
		root_y REAL NOT NULL,
		root_z REAL NOT NULL,
		root_scale REAL NOT NULL,
		nodes INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS levels (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		level INTEGER NOT NULL,
		count INTEGER NOT NULL,
		min_x REAL NOT NULL,
		min_y REAL NOT NULL,
		min_z REAL NOT NULL,
		max_x REAL NOT NULL,
		max_y REAL NOT NULL,
		max_z REAL NOT NULL,
		PRIMARY KEY (run_id, tick, level)
	);
	`
	_, err := r.conn.Exec(schema)
	return err
}

// StartRun stores the descriptive fields of a run. Draw inserts a minimal row
// for runs it has not seen, so calling StartRun is optional.
func (r *Recorder) StartRun(ctx context.Context, s *sim.Simulation) error {
	cfg := s.Config()
	_, err := r.conn.ExecContext(ctx, `INSERT INTO runs
		(id, config_hash, variant, depth, nodes, seed, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_hash = excluded.config_hash,
			variant = excluded.variant,
			seed = excluded.seed`,
		s.RunID(), s.ConfigHash(), cfg.Tree.Variant, s.Tree().Depth(), s.Tree().NodeCount(),
		int64(cfg.Tree.Seed), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	r.seen[s.RunID()] = true
	return nil
}

// Draw records f if its tick is selected by SetEvery.
func (r *Recorder) Draw(ctx context.Context, f *sim.Frame) error {
	if f.Tick%r.every != 0 {
		return nil
	}
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if !r.seen[f.RunID] {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO runs
			(id, depth, nodes, started_at) VALUES (?, ?, ?, ?)`,
			f.RunID, len(f.Batches), f.NodeCount(), time.Now().UTC()); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO ticks
		(run_id, tick, dt, root_x, root_y, root_z, root_scale, nodes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, int64(f.Tick), f.DeltaTime,
		f.Root.Position[0], f.Root.Position[1], f.Root.Position[2], f.Root.Scale,
		f.NodeCount()); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT OR REPLACE INTO levels
		(run_id, tick, level, count, min_x, min_y, min_z, max_x, max_y, max_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range f.Batches {
		lv := bounds(b)
		if _, err := stmt.ExecContext(ctx, f.RunID, int64(f.Tick), b.Level, len(b.Matrices),
			lv.MinX, lv.MinY, lv.MinZ, lv.MaxX, lv.MaxY, lv.MaxZ); err != nil {
			return fmt.Errorf("insert level %d: %w", b.Level, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.seen[f.RunID] = true
	return nil
}

func bounds(b sim.Batch) Level {
	lv := Level{
		MinX: math.Inf(1), MinY: math.Inf(1), MinZ: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1), MaxZ: math.Inf(-1),
	}
	if len(b.Matrices) == 0 {
		return Level{}
	}
	for _, m := range b.Matrices {
		p := fractal.Translation(m)
		x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
		lv.MinX, lv.MaxX = min(lv.MinX, x), max(lv.MaxX, x)
		lv.MinY, lv.MaxY = min(lv.MinY, y), max(lv.MaxY, y)
		lv.MinZ, lv.MaxZ = min(lv.MinZ, z), max(lv.MaxZ, z)
	}
	return lv
}

// Runs returns all runs, newest first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := r.conn.SelectContext(ctx, &runs,
		`SELECT id, config_hash, variant, depth, nodes, seed, started_at
		 FROM runs ORDER BY started_at DESC, id`)
	return runs, err
}

// Ticks returns the recorded ticks of a run in order.
func (r *Recorder) Ticks(ctx context.Context, runID string) ([]Tick, error) {
	var ticks []Tick
	err := r.conn.SelectContext(ctx, &ticks,
		`SELECT run_id, tick, dt, root_x, root_y, root_z, root_scale, nodes
		 FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	return ticks, err
}

// Levels returns the level rows of one recorded tick.
func (r *Recorder) Levels(ctx context.Context, runID string, tick uint64) ([]Level, error) {
	var levels []Level
	err := r.conn.SelectContext(ctx, &levels,
		`SELECT run_id, tick, level, count, min_x, min_y, min_z, max_x, max_y, max_z
		 FROM levels WHERE run_id = ? AND tick = ? ORDER BY level`, runID, int64(tick))
	return levels, err
}

var _ sim.Sink = (*Recorder)(nil)
