package hosts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/timemap"

	_ "modernc.org/sqlite" // SQLite driver.
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is a host backed by a SQLite project database. An undo block is a
// transaction; committing it also records a snapshot of the project as it
// was, which Undo restores.
type SQLite struct {
	db      *sql.DB
	tx      *sql.Tx
	pending *Project
}

// OpenSQLite opens or creates the project database and applies migrations
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection, so reads inside an open block see its writes
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *SQLite) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			track TEXT NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL NOT NULL,
			media TEXT NOT NULL,
			source_offset REAL NOT NULL DEFAULT 0,
			envelope TEXT NOT NULL DEFAULT '',
			selected INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS tempo_points (
			id INTEGER PRIMARY KEY,
			time REAL NOT NULL,
			bpm REAL NOT NULL,
			numerator INTEGER NOT NULL,
			denominator INTEGER NOT NULL,
			linear INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS markers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			time REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS undo_log (
			id INTEGER PRIMARY KEY,
			label TEXT NOT NULL,
			created_at TEXT NOT NULL,
			snapshot TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_track_start ON items(track, start_time);`,
		`CREATE INDEX IF NOT EXISTS idx_tempo_points_time ON tempo_points(time);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Import replaces the whole project with p
func (s *SQLite) Import(ctx context.Context, p *Project) error {
	return s.inTx(ctx, func(q querier) error { return writeProject(ctx, q, p) })
}

// Export reads the whole project
func (s *SQLite) Export(ctx context.Context) (*Project, error) {
	return readProject(ctx, s.q())
}

// SetSelection selects exactly the given item IDs
func (s *SQLite) SetSelection(ctx context.Context, ids ...string) error {
	return s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `UPDATE items SET selected = 0`); err != nil {
			return err
		}
		for _, id := range ids {
			res, err := q.ExecContext(ctx, `UPDATE items SET selected = 1 WHERE id = ?`, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: %s", ErrItemNotFound, id)
			}
		}
		return nil
	})
}

// History returns the labels of committed undo steps, oldest first
func (s *SQLite) History(ctx context.Context) ([]string, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT label FROM undo_log ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		out = append(out, label)
	}
	return out, rows.Err()
}

// Undo restores the project saved by the most recent committed block
func (s *SQLite) Undo(ctx context.Context) (string, error) {
	if s.tx != nil {
		return "", ErrBlockOpen
	}
	var label string
	err := s.inTx(ctx, func(q querier) error {
		var (
			id       int64
			snapshot string
		)
		err := q.QueryRowContext(ctx, `SELECT id, label, snapshot FROM undo_log ORDER BY id DESC LIMIT 1`).
			Scan(&id, &label, &snapshot)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNothingToUndo
		}
		if err != nil {
			return err
		}
		var p Project
		if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
			return fmt.Errorf("corrupt undo snapshot %d: %w", id, err)
		}
		if err := writeProject(ctx, q, &p); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `DELETE FROM undo_log WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return "", err
	}
	return label, nil
}

// inTx runs fn in a fresh transaction, or in the open undo block
func (s *SQLite) inTx(ctx context.Context, fn func(q querier) error) (err error) {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SelectedItems implements practice.Reader
func (s *SQLite) SelectedItems(ctx context.Context) ([]practice.Item, error) {
	records, err := readItems(ctx, s.q(), `WHERE selected = 1`)
	if err != nil {
		return nil, err
	}
	out := make([]practice.Item, len(records))
	for i, r := range records {
		out[i] = r.Item()
	}
	return out, nil
}

// TempoMap implements practice.Reader
func (s *SQLite) TempoMap(ctx context.Context) ([]timemap.TempoPoint, error) {
	return readTempo(ctx, s.q())
}

// InsertItemCopy implements practice.Writer
func (s *SQLite) InsertItemCopy(ctx context.Context, track string, item practice.Item, start, duration float64) error {
	if !(duration > 0) {
		return fmt.Errorf("copy of %q has length %v", item.ID, duration)
	}
	return insertItem(ctx, s.q(), ItemRecord{
		ID:           uuid.NewString(),
		Track:        track,
		Start:        start,
		End:          start + duration,
		Media:        item.Media,
		SourceOffset: item.SourceOffset,
		Envelope:     item.Envelope,
	})
}

// RemoveItem implements practice.Writer
func (s *SQLite) RemoveItem(ctx context.Context, id string) error {
	res, err := s.q().ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return nil
}

// RemoveTempoPoints implements practice.Writer
func (s *SQLite) RemoveTempoPoints(ctx context.Context, start, end float64) error {
	_, err := s.q().ExecContext(ctx,
		`DELETE FROM tempo_points WHERE time >= ? AND time < ?`,
		start-timeTolerance, end-timeTolerance)
	return err
}

// ShiftItemsAndMarkersAfter implements practice.Writer
func (s *SQLite) ShiftItemsAndMarkersAfter(ctx context.Context, t, delta float64) error {
	q := s.q()
	from := t - timeTolerance
	if _, err := q.ExecContext(ctx,
		`UPDATE items SET start_time = start_time + ?, end_time = end_time + ? WHERE start_time >= ?`,
		delta, delta, from); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `UPDATE markers SET time = time + ? WHERE time >= ?`, delta, from); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `UPDATE tempo_points SET time = time + ? WHERE time >= ?`, delta, from)
	return err
}

// InsertTempoPoint implements practice.Writer. A point already at the same
// time is replaced.
func (s *SQLite) InsertTempoPoint(ctx context.Context, p timemap.TempoPoint) error {
	if err := p.Validate(); err != nil {
		return err
	}
	q := s.q()
	if _, err := q.ExecContext(ctx,
		`DELETE FROM tempo_points WHERE time >= ? AND time <= ?`,
		p.Time-timeTolerance, p.Time+timeTolerance); err != nil {
		return err
	}
	return insertTempo(ctx, q, p)
}

// BeginUndoBlock implements practice.Undoer
func (s *SQLite) BeginUndoBlock(ctx context.Context) error {
	if s.tx != nil {
		return ErrBlockOpen
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	before, err := readProject(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	s.tx, s.pending = tx, before
	return nil
}

// EndUndoBlock implements practice.Undoer
func (s *SQLite) EndUndoBlock(ctx context.Context, label string) error {
	if s.tx == nil {
		return ErrNoBlock
	}
	snapshot, err := json.Marshal(s.pending)
	if err != nil {
		return err
	}
	if _, err := s.tx.ExecContext(ctx,
		`INSERT INTO undo_log (label, created_at, snapshot) VALUES (?, ?, ?)`,
		label, time.Now().UTC().Format(time.RFC3339Nano), string(snapshot)); err != nil {
		return err
	}
	err = s.tx.Commit()
	s.tx, s.pending = nil, nil
	return err
}

// AbortUndoBlock implements practice.Undoer
func (s *SQLite) AbortUndoBlock(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx, s.pending = nil, nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func readProject(ctx context.Context, q querier) (*Project, error) {
	p := &Project{}
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'name'`).Scan(&p.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if p.Items, err = readItems(ctx, q, ""); err != nil {
		return nil, err
	}
	if p.Tempo, err = readTempo(ctx, q); err != nil {
		return nil, err
	}
	if p.Markers, err = readMarkers(ctx, q); err != nil {
		return nil, err
	}
	return p, nil
}

func writeProject(ctx context.Context, q querier, p *Project) error {
	for _, stmt := range []string{
		`DELETE FROM items`,
		`DELETE FROM tempo_points`,
		`DELETE FROM markers`,
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES ('name', ?)`, p.Name); err != nil {
		return err
	}
	for _, it := range p.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if err := insertItem(ctx, q, it); err != nil {
			return err
		}
	}
	for _, tp := range p.Tempo {
		if err := insertTempo(ctx, q, tp); err != nil {
			return err
		}
	}
	for _, m := range p.Markers {
		if _, err := q.ExecContext(ctx, `INSERT INTO markers (name, time) VALUES (?, ?)`, m.Name, m.Time); err != nil {
			return err
		}
	}
	return nil
}

func insertItem(ctx context.Context, q querier, it ItemRecord) error {
	var envelope string
	if len(it.Envelope) > 0 {
		raw, err := json.Marshal(it.Envelope)
		if err != nil {
			return err
		}
		envelope = string(raw)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO items (id, track, start_time, end_time, media, source_offset, envelope, selected)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Track, it.Start, it.End, it.Media, it.SourceOffset, envelope, boolToInt(it.Selected))
	return err
}

func insertTempo(ctx context.Context, q querier, p timemap.TempoPoint) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tempo_points (time, bpm, numerator, denominator, linear) VALUES (?, ?, ?, ?, ?)`,
		p.Time, p.BPM, p.Numerator, p.Denominator, boolToInt(p.Linear))
	return err
}

func readItems(ctx context.Context, q querier, where string) ([]ItemRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, track, start_time, end_time, media, source_offset, envelope, selected
		 FROM items `+where+` ORDER BY track, start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemRecord
	for rows.Next() {
		var (
			r        ItemRecord
			envelope string
			selected int
		)
		if err := rows.Scan(&r.ID, &r.Track, &r.Start, &r.End, &r.Media, &r.SourceOffset, &envelope, &selected); err != nil {
			return nil, err
		}
		if envelope != "" {
			if err := json.Unmarshal([]byte(envelope), &r.Envelope); err != nil {
				return nil, fmt.Errorf("item %s: corrupt envelope: %w", r.ID, err)
			}
		}
		r.Selected = selected != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func readTempo(ctx context.Context, q querier) ([]timemap.TempoPoint, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT time, bpm, numerator, denominator, linear FROM tempo_points ORDER BY time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timemap.TempoPoint
	for rows.Next() {
		var (
			p      timemap.TempoPoint
			linear int
		)
		if err := rows.Scan(&p.Time, &p.BPM, &p.Numerator, &p.Denominator, &linear); err != nil {
			return nil, err
		}
		p.Linear = linear != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func readMarkers(ctx context.Context, q querier) ([]Marker, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, time FROM markers ORDER BY time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.Name, &m.Time); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ practice.Timeline = (*SQLite)(nil)
