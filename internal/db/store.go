package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const tsLayout = "2006-01-02 15:04:05"

// ErrNoSession is returned by LastSession on an empty history.
var ErrNoSession = errors.New("no advertising session")

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Best-effort (won't fail open if unsupported by build).
	_, _ = db.Exec(`PRAGMA foreign_keys = ON;`)
	// SQLite is effectively single-writer; keep one connection to avoid SQLITE_BUSY
	// when the controller and the event watcher write at the same time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS advertising_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT,
	stopped_at TEXT,
	adapter TEXT,
	uuid TEXT,
	major INTEGER,
	minor INTEGER,
	address TEXT,
	address_mode TEXT,
	frame_hex TEXT,
	adv_raw TEXT,
	gps_start TEXT,
	stop_reason TEXT
);
`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS radio_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER,
	timestamp TEXT,
	kind TEXT,
	code INTEGER,
	message TEXT,
	FOREIGN KEY(session_id) REFERENCES advertising_sessions(id) ON DELETE CASCADE
);
`)
	if err != nil {
		return err
	}
	_ = execIgnore(s.db, ctx, `CREATE INDEX IF NOT EXISTS idx_radio_events_session ON radio_events(session_id)`)

	// A crash leaves the last session open; it is not advertising any more.
	_, err = s.db.ExecContext(ctx, `
UPDATE advertising_sessions
SET stopped_at = COALESCE(started_at, ?), stop_reason = 'interrupted'
WHERE stopped_at IS NULL
`, time.Now().Format(tsLayout))
	return err
}

func execIgnore(db *sql.DB, ctx context.Context, q string) error {
	_, err := db.ExecContext(ctx, q)
	return err
}

type SessionParams struct {
	StartedAt   time.Time
	Adapter     string
	UUID        string
	Major       uint16
	Minor       uint16
	Address     string
	AddressMode string
	FrameHex    string
	AdvRaw      *string
	GPSStart    *string
}

func (s *Store) CreateSession(ctx context.Context, p SessionParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO advertising_sessions (
	started_at, adapter, uuid, major, minor, address, address_mode, frame_hex, adv_raw, gps_start
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		p.StartedAt.Format(tsLayout),
		p.Adapter,
		strings.ToUpper(p.UUID),
		int64(p.Major),
		int64(p.Minor),
		strings.ToUpper(p.Address),
		p.AddressMode,
		p.FrameHex,
		optString(p.AdvRaw),
		optString(p.GPSStart),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CloseSession stamps the stop time. Closing an already closed session is a no-op.
func (s *Store) CloseSession(ctx context.Context, id int64, reason string, at time.Time) error {
	if id <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
UPDATE advertising_sessions SET stopped_at = ?, stop_reason = ?
WHERE id = ? AND stopped_at IS NULL
`, at.Format(tsLayout), strings.TrimSpace(reason), id)
	return err
}

type RadioEventParams struct {
	// SessionID 0 stores an event that arrived outside a session.
	SessionID int64
	At        time.Time
	Kind      string
	Code      int
	Message   string
}

func (s *Store) InsertRadioEvent(ctx context.Context, p RadioEventParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sid *int64
	if p.SessionID > 0 {
		sid = &p.SessionID
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO radio_events (session_id, timestamp, kind, code, message)
VALUES (?, ?, ?, ?, ?)
`, optInt64(sid), p.At.Format(tsLayout), p.Kind, p.Code, p.Message)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type Session struct {
	ID          int64
	StartedAt   string
	StoppedAt   string
	Adapter     string
	UUID        string
	Major       int
	Minor       int
	Address     string
	AddressMode string
	FrameHex    string
	GPSStart    string
	StopReason  string
}

func (s *Store) LastSession(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Session
	var stoppedAt, advGPS, reason sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, started_at, stopped_at, adapter, uuid, major, minor, address, address_mode, frame_hex, gps_start, stop_reason
FROM advertising_sessions ORDER BY id DESC LIMIT 1
`).Scan(&out.ID, &out.StartedAt, &stoppedAt, &out.Adapter, &out.UUID, &out.Major, &out.Minor,
		&out.Address, &out.AddressMode, &out.FrameHex, &advGPS, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	out.StoppedAt = stoppedAt.String
	out.GPSStart = advGPS.String
	out.StopReason = reason.String
	return out, nil
}

func (s *Store) GetStatistics(ctx context.Context) (totalSessions, openSessions, distinctIdentities, failedEvents int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM advertising_sessions`).Scan(&totalSessions)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM advertising_sessions WHERE stopped_at IS NULL`).Scan(&openSessions)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT DISTINCT uuid, major, minor FROM advertising_sessions)`).Scan(&distinctIdentities)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM radio_events WHERE kind = 'failed'`).Scan(&failedEvents)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return totalSessions, openSessions, distinctIdentities, failedEvents, nil
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
