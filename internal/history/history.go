// Package history keeps a rolling sqlite log of channel readings.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Point is one stored reading.
type Point struct {
	Channel string    `json:"channel"`
	Value   float64   `json:"value"`
	Time    time.Time `json:"time"`
}

// DB is the reading history.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dsn.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// sqlite serialises writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel TEXT NOT NULL,
			value REAL NOT NULL,
			ts INTEGER NOT NULL -- unix milliseconds
		);
		CREATE INDEX IF NOT EXISTS readings_channel_ts ON readings (channel, ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}
	return &DB{db: db}, nil
}

// Record stores one reading.
func (h *DB) Record(channel string, value float64, at time.Time) error {
	_, err := h.db.Exec("INSERT INTO readings (channel, value, ts) VALUES (?, ?, ?)",
		channel, value, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Query returns the readings of channel at or after since, oldest first,
// at most limit rows (0 means no limit).
func (h *DB) Query(channel string, since time.Time, limit int) ([]Point, error) {
	q := "SELECT value, ts FROM readings WHERE channel = ? AND ts >= ? ORDER BY ts ASC, id ASC"
	args := []any{channel, since.UnixMilli()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		var ts int64
		if err := rows.Scan(&p.Value, &ts); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		p.Channel = channel
		p.Time = time.UnixMilli(ts).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune deletes readings older than before and returns how many were removed.
func (h *DB) Prune(before time.Time) (int64, error) {
	res, err := h.db.Exec("DELETE FROM readings WHERE ts < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (h *DB) Close() error {
	return h.db.Close()
}
