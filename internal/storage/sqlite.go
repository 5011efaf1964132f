package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/tracker"
)

// MemoryPath keeps the whole history in process memory.
const MemoryPath = ":memory:"

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    target      TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    status_code INTEGER NOT NULL DEFAULT 0,
    response_ms INTEGER NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_target_checked ON checks(target, checked_at DESC);

CREATE TABLE IF NOT EXISTS transitions (
    id              TEXT    PRIMARY KEY,
    target          TEXT    NOT NULL,
    previous_status TEXT    NOT NULL DEFAULT '',
    status          TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    occurred_at     TEXT    NOT NULL,
    delivered       INTEGER NOT NULL,
    delivery_error  TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transitions_occurred ON transitions(occurred_at DESC);
`

// Check is a stored probe result.
type Check struct {
	ID         int64     `json:"id"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	ResponseMs int64     `json:"response_ms"`
	Error      string    `json:"error"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Transition is a stored status change and the outcome of its notification.
// PreviousStatus is empty for the first observation of a target.
type Transition struct {
	ID             string    `json:"id"`
	Target         string    `json:"target"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
	Delivered      bool      `json:"delivered"`
	DeliveryError  string    `json:"delivery_error"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{"PRAGMA synchronous=NORMAL", "PRAGMA cache_size=5000"}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertCheck persists a probe result.
func (d *DB) InsertCheck(ctx context.Context, r checker.CheckResult) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO checks (target, status, status_code, response_ms, error, checked_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Target.URL,
		string(r.Status),
		r.StatusCode,
		r.ResponseTime.Milliseconds(),
		r.Error,
		r.CheckedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting check for %q: %w", r.Target.URL, err)
	}
	return nil
}

// InsertTransition persists a transition. deliveryErr is the notifier's
// result; nil means the message was delivered.
func (d *DB) InsertTransition(ctx context.Context, t tracker.Transition, deliveryErr error) error {
	prev := ""
	if t.Previous != nil {
		prev = string(*t.Previous)
	}
	errText := ""
	if deliveryErr != nil {
		errText = deliveryErr.Error()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO transitions (id, target, previous_status, status, occurred_at, delivered, delivery_error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Target.URL,
		prev,
		string(t.Current),
		t.At.UTC().Format(timeLayout),
		deliveryErr == nil,
		errText,
	)
	if err != nil {
		return fmt.Errorf("inserting transition for %q: %w", t.Target.URL, err)
	}
	return nil
}

// LatestCheck returns the most recent check for the given target, or nil if none.
func (d *DB) LatestCheck(ctx context.Context, target string) (*Check, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, target, status, status_code, response_ms, error, checked_at FROM checks WHERE target = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		target,
	)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest check for %q: %w", target, err)
	}
	return c, nil
}

// TargetHistory returns paginated check history for a target plus the total count.
func (d *DB) TargetHistory(ctx context.Context, target string, limit, offset int) ([]Check, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checks WHERE target = ?`, target,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting checks for %q: %w", target, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, target, status, status_code, response_ms, error, checked_at FROM checks WHERE target = ? ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		target, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", target, err)
	}
	defer rows.Close()

	checks, err := scanChecks(rows)
	if err != nil {
		return nil, 0, err
	}
	return checks, total, nil
}

// AllLatest returns the most recent check for each target.
func (d *DB) AllLatest(ctx context.Context) ([]Check, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, target, status, status_code, response_ms, error, checked_at
		FROM checks
		WHERE id IN (
			SELECT MAX(id) FROM checks GROUP BY target
		)
		ORDER BY target
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanChecks(rows)
}

// UptimePercent returns the percentage of "up" checks in the last N checks for a target.
func (d *DB) UptimePercent(ctx context.Context, target string, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM checks WHERE target = ? ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, target, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", target, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

// RecentTransitions returns the newest transitions first.
func (d *DB) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, target, previous_status, status, occurred_at, delivered, delivery_error
		FROM transitions
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var occurredAt string
		if err := rows.Scan(&t.ID, &t.Target, &t.PreviousStatus, &t.Status, &occurredAt, &t.Delivered, &t.DeliveryError); err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}
		if t.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (*Check, error) {
	var c Check
	var checkedAt string
	err := row.Scan(&c.ID, &c.Target, &c.Status, &c.StatusCode, &c.ResponseMs, &c.Error, &checkedAt)
	if err != nil {
		return nil, err
	}
	if c.CheckedAt, err = parseTime(checkedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanChecks(rows *sql.Rows) ([]Check, error) {
	var checks []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		checks = append(checks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t, nil
}
