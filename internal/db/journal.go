package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/monitoring"
)

// Dispatch status values stored in the status column.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Session is one run of the control process.
type Session struct {
	ID         uuid.UUID  `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CarURL     string     `json:"car_url"`
	SerialPort string     `json:"serial_port"`
	Version    string     `json:"version"`
}

// DispatchRow is one journalled command.
type DispatchRow struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id,omitempty"`
	Source       string     `json:"source"`
	Channel      string     `json:"channel"`
	Action       string     `json:"action"`
	Speed        int        `json:"speed"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// ChannelSummary counts journalled commands for one channel.
type ChannelSummary struct {
	Channel string `json:"channel"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// StartSession records the start of a run and makes it the session that
// later dispatches are attributed to.
func (db *DB) StartSession(carURL, serialPort, version string, at time.Time) (Session, error) {
	s := Session{
		ID:         uuid.New(),
		StartedAt:  at,
		CarURL:     carURL,
		SerialPort: serialPort,
		Version:    version,
	}
	_, err := db.Exec(`INSERT INTO sessions (session_id, started_at, car_url, serial_port, version) VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), at.UnixNano(), carURL, serialPort, version)
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time on a session.
func (db *DB) EndSession(id uuid.UUID, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT session_id, started_at, ended_at, car_url, serial_port, version
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			id      string
			started int64
			ended   sql.NullInt64
			s       Session
		)
		if err := rows.Scan(&id, &started, &ended, &s.CarURL, &s.SerialPort, &s.Version); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordDispatch inserts a sent command under sessionID. A zero sessionID
// stores NULL.
func (db *DB) RecordDispatch(sessionID uuid.UUID, rec dispatch.Record) error {
	var session any
	if sessionID != uuid.Nil {
		session = sessionID.String()
	}
	_, err := db.Exec(`INSERT INTO dispatches (dispatch_id, session_id, source, channel, action, speed, dispatched_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), session, rec.Source, rec.Command.Channel.String(), rec.Command.Action(),
		rec.Command.Speed, rec.At.UnixNano(), StatusSent)
	if err != nil {
		return fmt.Errorf("record dispatch %s: %w", rec.ID, err)
	}
	return nil
}

// MarkDispatchFailed flags a previously recorded dispatch as failed.
func (db *DB) MarkDispatchFailed(id uuid.UUID, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := db.Exec(`UPDATE dispatches SET status = ?, error = ?, failed_at = ? WHERE dispatch_id = ?`,
		StatusFailed, msg, at.UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("mark dispatch %s failed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark dispatch %s failed: %w", id, sql.ErrNoRows)
	}
	return nil
}

// RecentDispatches returns up to limit journalled commands, newest first.
// A non-empty channel restricts the result to that channel.
func (db *DB) RecentDispatches(channel string, limit int) ([]DispatchRow, error) {
	query := `SELECT dispatch_id, COALESCE(session_id, ''), source, channel, action, speed, dispatched_at, status, COALESCE(error, ''), failed_at
		FROM dispatches`
	args := []any{}
	if channel != "" {
		query += ` WHERE channel = ?`
		args = append(args, channel)
	}
	query += ` ORDER BY dispatched_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRow
	for rows.Next() {
		var (
			r      DispatchRow
			at     int64
			failed sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Source, &r.Channel, &r.Action, &r.Speed, &at, &r.Status, &r.Error, &failed); err != nil {
			return nil, err
		}
		r.DispatchedAt = time.Unix(0, at)
		if failed.Valid {
			t := time.Unix(0, failed.Int64)
			r.FailedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DispatchSummary counts sent and failed commands per channel.
func (db *DB) DispatchSummary() ([]ChannelSummary, error) {
	rows, err := db.Query(`SELECT channel,
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM dispatches GROUP BY channel ORDER BY channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelSummary
	for rows.Next() {
		var s ChannelSummary
		if err := rows.Scan(&s.Channel, &s.Sent, &s.Failed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// journalBuffer bounds the number of journal writes waiting on the writer.
const journalBuffer = 256

type journalEntry struct {
	rec   dispatch.Record
	cause error
	at    time.Time
}

// Journal writes dispatch notifications to the database off the
// notifying goroutine. Entries are written in the order received.
type Journal struct {
	db      *DB
	session uuid.UUID
	entries chan journalEntry
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewJournal returns a Journal that attributes writes to session.
func NewJournal(db *DB, session uuid.UUID) *Journal {
	return &Journal{
		db:      db,
		session: session,
		entries: make(chan journalEntry, journalBuffer),
		done:    make(chan struct{}),
	}
}

// Observer adapts the journal to dispatcher notifications.
func (j *Journal) Observer() dispatch.Observer {
	return dispatch.ObserverFuncs{
		OnDispatched: func(rec dispatch.Record) { j.enqueue(journalEntry{rec: rec}) },
		OnFailed: func(rec dispatch.Record, err error) {
			if err == nil {
				err = errors.New("dispatch failed")
			}
			j.enqueue(journalEntry{rec: rec, cause: err, at: time.Now()})
		},
	}
}

func (j *Journal) enqueue(e journalEntry) {
	select {
	case <-j.done:
		return
	default:
	}
	select {
	case j.entries <- e:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			monitoring.Opsf("journal backlog full, %d entries dropped", n)
		}
	}
}

// Dropped returns the number of entries discarded because the writer fell
// behind.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Run writes queued entries until ctx is cancelled or Close is called,
// then drains what is already queued.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-ctx.Done():
			j.drain()
			return
		case <-j.done:
			j.drain()
			return
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		default:
			return
		}
	}
}

func (j *Journal) write(e journalEntry) {
	var err error
	if e.cause == nil {
		err = j.db.RecordDispatch(j.session, e.rec)
	} else {
		err = j.db.MarkDispatchFailed(e.rec.ID, e.cause, e.at)
	}
	if err != nil {
		monitoring.Diagf("journal write: %v", err)
	}
}

// Flush writes whatever is queued on the calling goroutine. It must not
// run concurrently with Run.
func (j *Journal) Flush() { j.drain() }

// Close stops accepting entries. Run returns after draining.
func (j *Journal) Close() {
	j.closeOnce.Do(func() { close(j.done) })
}
