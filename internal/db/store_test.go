package db

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, path
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.LastSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("empty history: %v", err)
	}

	gps := "52.520000,13.405000"
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.CreateSession(ctx, SessionParams{
		StartedAt:   start,
		Adapter:     "hci0",
		UUID:        "2d7a9f0c-e0e8-4cc9-a71b-a21db2d034a1",
		Major:       100,
		Minor:       1,
		Address:     "c4:13:a9:da:a8:97",
		AddressMode: "pseudo",
		FrameHex:    "2D7A9F0CE0E84CC9A71BA21DB2D034A100640001C413A9DAA897",
		GPSStart:    &gps,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.LastSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != id || got.UUID != "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1" || got.Address != "C4:13:A9:DA:A8:97" {
		t.Errorf("session %+v", got)
	}
	if got.StartedAt != "2026-03-01 12:00:00" || got.StoppedAt != "" || got.GPSStart != gps {
		t.Errorf("session %+v", got)
	}

	if err := s.CloseSession(ctx, id, "stopped", start.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	// Already closed: the first stop wins.
	if err := s.CloseSession(ctx, id, "shutdown", start.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LastSession(ctx)
	if got.StoppedAt != "2026-03-01 12:01:00" || got.StopReason != "stopped" {
		t.Errorf("closed session %+v", got)
	}
}

func TestRadioEventsAndStatistics(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		minor := uint16(1)
		if i == 2 {
			minor = 2
		}
		if _, err := s.CreateSession(ctx, SessionParams{UUID: "X", Major: 1, Minor: minor}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CloseSession(ctx, 1, "restart", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRadioEvent(ctx, RadioEventParams{SessionID: 1, Kind: "started"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRadioEvent(ctx, RadioEventParams{Kind: "failed", Code: 2, Message: "Too many advertisers."}); err != nil {
		t.Fatal(err)
	}

	total, open, identities, failed, err := s.GetStatistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || open != 2 || identities != 2 || failed != 1 {
		t.Errorf("stats total=%d open=%d identities=%d failed=%d", total, open, identities, failed)
	}

	var nulls int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM radio_events WHERE session_id IS NULL`).Scan(&nulls); err != nil {
		t.Fatal(err)
	}
	if nulls != 1 {
		t.Errorf("%d events without session", nulls)
	}
}

func TestReopenClosesInterruptedSessions(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	if _, err := s.CreateSession(ctx, SessionParams{UUID: "X"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.LastSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.StopReason != "interrupted" || got.StoppedAt == "" {
		t.Errorf("session %+v", got)
	}
}

func columns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSchemaStableAcrossReopen(t *testing.T) {
	want := map[string][]string{
		"advertising_sessions": {"id", "started_at", "stopped_at", "adapter", "uuid", "major", "minor",
			"address", "address_mode", "frame_hex", "adv_raw", "gps_start", "stop_reason"},
		"radio_events": {"id", "session_id", "timestamp", "kind", "code", "message"},
	}

	s, path := openTemp(t)
	for i := 0; i < 2; i++ {
		for table, cols := range want {
			if got := columns(t, s, table); !reflect.DeepEqual(got, cols) {
				t.Errorf("open %d: %s columns %v, want %v", i, table, got, cols)
			}
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		var err error
		if s, err = Open(path); err != nil {
			t.Fatalf("reopen: %v", err)
		}
	}
	s.Close()
}
