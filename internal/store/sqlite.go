package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite persists snapshots. Only the latest snapshot's events are kept.
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// Open opens (or creates) the database at path with WAL enabled.
func Open(path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	appLog.Debug("sqlite opened", "path", path)
	return &SQLite{conn: conn}, nil
}

func (db *SQLite) Close() error {
	return db.conn.Close()
}

// EnsureSchema creates tables if they don't exist.
func (db *SQLite) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveSnapshot upserts every event of s, removes events that are no longer
// present and records the snapshot row, all in one transaction.
func (db *SQLite) SaveSnapshot(ctx context.Context, s Snapshot) (err error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, snapshot_id, position, title, description, location, url,
		                    start_at, end_at, category, tags, lat, lng)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			position    = excluded.position,
			title       = excluded.title,
			description = excluded.description,
			location    = excluded.location,
			url         = excluded.url,
			start_at    = excluded.start_at,
			end_at      = excluded.end_at,
			category    = excluded.category,
			tags        = excluded.tags,
			lat         = excluded.lat,
			lng         = excluded.lng`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	sid := s.ID.String()
	for i, ev := range s.Events {
		tags, err := json.Marshal(nonNil(ev.Tags))
		if err != nil {
			return fmt.Errorf("encode tags for %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, sid, i, ev.Title,
			nullString(ev.Description), nullString(ev.Location), nullString(ev.URL),
			ev.Start.UTC().Format(timeLayout), ev.End.UTC().Format(timeLayout),
			string(ev.Category), string(tags),
			nullFloat(ev.Lat), nullFloat(ev.Lng),
		); err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE snapshot_id <> ?`, sid); err != nil {
		return fmt.Errorf("delete stale events: %w", err)
	}

	var scraped sql.NullString
	if s.ScrapedAt != nil {
		scraped = sql.NullString{String: s.ScrapedAt.UTC().Format(timeLayout), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, scraped_at, saved_at, event_count) VALUES (?, ?, ?, ?)`,
		sid, scraped, time.Now().UTC().Format(timeLayout), len(s.Events),
	); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id <> ?`, sid); err != nil {
		return fmt.Errorf("delete stale snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	appLog.Debug("snapshot saved", "id", sid, "event_count", len(s.Events))
	return nil
}

// LatestSnapshot rebuilds the most recently saved snapshot. ok is false
// when nothing has been saved yet.
func (db *SQLite) LatestSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	var (
		id      string
		scraped sql.NullString
	)
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, scraped_at FROM snapshots ORDER BY saved_at DESC, rowid DESC LIMIT 1`)
	if err := row.Scan(&id, &scraped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("query snapshot: %w", err)
	}

	snap.ID, err = uuid.Parse(id)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot id %q: %w", id, err)
	}
	if scraped.Valid {
		t, err := time.Parse(timeLayout, scraped.String)
		if err == nil {
			snap.ScrapedAt = &t
		}
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, description, location, url, start_at, end_at, category, tags, lat, lng
		FROM events WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	snap.Events = []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return Snapshot{}, false, err
		}
		snap.Events = append(snap.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("iterate events: %w", err)
	}
	return snap, true, nil
}

func scanEvent(rows *sql.Rows) (model.Event, error) {
	var (
		ev                    model.Event
		desc, loc, url        sql.NullString
		start, end, cat, tags string
		lat, lng              sql.NullFloat64
	)
	if err := rows.Scan(&ev.ID, &ev.Title, &desc, &loc, &url, &start, &end, &cat, &tags, &lat, &lng); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	var err error
	if ev.Start, err = time.Parse(timeLayout, start); err != nil {
		return ev, fmt.Errorf("event %s start: %w", ev.ID, err)
	}
	if ev.End, err = time.Parse(timeLayout, end); err != nil {
		return ev, fmt.Errorf("event %s end: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &ev.Tags); err != nil {
		return ev, fmt.Errorf("event %s tags: %w", ev.ID, err)
	}
	ev.Category = model.Category(cat)
	ev.Description = fromNullString(desc)
	ev.Location = fromNullString(loc)
	ev.URL = fromNullString(url)
	ev.Lat = fromNullFloat(lat)
	ev.Lng = fromNullFloat(lng)
	return ev, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
