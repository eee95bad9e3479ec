package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"
)

func (s *State) runGPSDLoop(ctx context.Context, addr string) {
	reconnect(ctx, "gpsd "+addr, func() error { return s.readGPSD(ctx, addr) })
}

type gpsdReport struct {
	Class string       `json:"class"`
	Mode  *json.Number `json:"mode"`
	Lat   *float64     `json:"lat"`
	Lon   *float64     `json:"lon"`
}

func (s *State) readGPSD(ctx context.Context, addr string) error {
	conn, err := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.attach("gpsd", func() { _ = conn.Close() })
	defer s.detach()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true}\n")); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		s.handleGPSDLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("gpsd connection closed")
}

// handleGPSDLine applies a TPV report with a 2D or 3D fix. Anything else
// only counts as traffic.
func (s *State) handleGPSDLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	s.countPacket()

	var r gpsdReport
	if err := json.Unmarshal([]byte(line), &r); err != nil || r.Class != "TPV" {
		return
	}
	if r.Mode == nil || r.Lat == nil || r.Lon == nil {
		return
	}
	if mode, err := r.Mode.Int64(); err != nil || mode < 2 {
		return
	}
	s.setFix(*r.Lat, *r.Lon)
}
