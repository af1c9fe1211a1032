// Package history keeps a host-side record of committed buffer moves in
// SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Move is one committed buffer move.
type Move struct {
	ID           string    `json:"id"`
	Stepper      string    `json:"stepper"`
	StartTime    float64   `json:"start_time"`
	AccelT       float64   `json:"accel_t"`
	CruiseT      float64   `json:"cruise_t"`
	DecelT       float64   `json:"decel_t"`
	Distance     float64   `json:"distance"`
	Velocity     float64   `json:"velocity"`
	Acceleration float64   `json:"acceleration"`
	Cause        string    `json:"cause"` // "trigger" or "command"
	WallTime     time.Time `json:"wall_time"`
}

// Duration returns the move time in seconds.
func (m Move) Duration() float64 {
	return m.AccelT + m.CruiseT + m.DecelT
}

// Store is a SQLite-backed move log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history db %s", path)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "apply history schema to %s", path)
	}
	return &Store{db: db}, nil
}

// Record stores a move.
func (s *Store) Record(ctx context.Context, m Move) error {
	const query = `
		INSERT INTO buffer_moves (id, stepper, start_time, accel_t, cruise_t, decel_t,
			distance, velocity, acceleration, cause, wall_time_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.Stepper, m.StartTime, m.AccelT, m.CruiseT,
		m.DecelT, m.Distance, m.Velocity, m.Acceleration, m.Cause, m.WallTime.UnixNano())
	if err != nil {
		return errors.Wrapf(err, "record move %s", m.ID)
	}
	return nil
}

// Recent returns up to limit moves, newest first. An empty stepper
// matches every stepper.
func (s *Store) Recent(ctx context.Context, stepper string, limit int) ([]Move, error) {
	const query = `
		SELECT id, stepper, start_time, accel_t, cruise_t, decel_t,
			distance, velocity, acceleration, cause, wall_time_ns
		FROM buffer_moves
		WHERE (? = '' OR stepper = ?)
		ORDER BY wall_time_ns DESC, start_time DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, stepper, stepper, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent moves")
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		var m Move
		var wall int64
		if err := rows.Scan(&m.ID, &m.Stepper, &m.StartTime, &m.AccelT, &m.CruiseT, &m.DecelT,
			&m.Distance, &m.Velocity, &m.Acceleration, &m.Cause, &wall); err != nil {
			return nil, errors.Wrap(err, "scan move")
		}
		m.WallTime = time.Unix(0, wall)
		moves = append(moves, m)
	}
	return moves, errors.Wrap(rows.Err(), "iterate moves")
}

// Count returns the number of moves recorded for stepper.
func (s *Store) Count(ctx context.Context, stepper string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM buffer_moves WHERE stepper = ?`, stepper).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count moves")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
