package status

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/util"
)

type stubBeacon struct{ st beacon.State }

func (s stubBeacon) State() beacon.State { return s.st }

type stubGPS struct{ loc *string }

func (s stubGPS) Location() *string { return s.loc }
func (s stubGPS) Status() string    { return "offline" }
func (s stubGPS) Source() string    { return "" }

type stubStats struct{ err error }

func (s stubStats) GetStatistics(context.Context) (int, int, int, int, error) {
	return 4, 1, 2, 3, s.err
}

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	util.SetConsole(&buf)
	t.Cleanup(func() { util.SetConsole(nil) })
	return &buf
}

func TestPrintOnceAdvertising(t *testing.T) {
	buf := capture(t)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	loc := "52.520000, 13.405000"
	p := Provider{
		Beacon: stubBeacon{beacon.State{
			Phase: beacon.Advertising,
			Info:  beacon.StartedInfo{UUID: "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1", Major: 100, Minor: 1, Address: "C4:13:A9:DA:A8:97"},
			Since: now.Add(-90 * time.Second),
		}},
		GPS:   stubGPS{loc: &loc},
		Store: stubStats{},
	}
	PrintOnce(context.Background(), p, now)

	out := buf.String()
	for _, want := range []string{
		"advertising 2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1 major=100 minor=1 mac=C4:13:A9:DA:A8:97 for 1m30s",
		loc,
		"Sessions: 4, Open: 1, Identities: 2, Failures: 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintOnceIdleSkipsMissingSources(t *testing.T) {
	buf := capture(t)
	now := time.Now()
	p := Provider{
		Beacon: stubBeacon{beacon.State{Phase: beacon.Idle, Since: now.Add(-5 * time.Second)}},
		GPS:    stubGPS{},
		Store:  stubStats{err: errors.New("locked")},
	}
	PrintOnce(context.Background(), p, now)

	out := buf.String()
	if !strings.Contains(out, "idle for 5s") || !strings.Contains(out, "[GPS DATA]") || !strings.Contains(out, "offline") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "[DB STATS]") {
		t.Errorf("stats printed on error:\n%s", out)
	}
}
