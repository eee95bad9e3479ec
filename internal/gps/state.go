// Package gps keeps an optional site position for the beacon. The fix is
// stamped on advertising sessions so a history row says where it was sent.
package gps

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"blebeacon/internal/util"
)

type Config struct {
	// Mode: off|auto|gpsd|serial
	Mode     string
	GPSDAddr string
	Device   string
	Baud     int
}

// Enabled reports whether a reader should be started at all.
func (c Config) Enabled() bool {
	m := strings.ToLower(strings.TrimSpace(c.Mode))
	return m != "" && m != "off"
}

// Fix is one position report.
type Fix struct {
	Lat float64
	Lon float64
	At  time.Time
}

type State struct {
	mu sync.RWMutex

	fix      Fix
	packets  int
	source   string
	maxAge   time.Duration
	closeSrc func()
	now      func() time.Time
}

// NewState returns a state that treats fixes older than maxAge as stale.
func NewState(maxAge time.Duration) *State {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &State{maxAge: maxAge, now: time.Now}
}

// Start launches the reader for cfg.Mode in the background and returns once
// the source has been chosen. Readers reconnect until ctx is done.
func (s *State) Start(ctx context.Context, cfg Config) error {
	cfg = normalizeConfig(cfg)
	switch cfg.Mode {
	case "off":
		return nil
	case "gpsd":
		go s.runGPSDLoop(ctx, cfg.GPSDAddr)
	case "serial":
		if cfg.Device == "" {
			return errors.New("gps serial mode requires a device path (e.g., -gps-device /dev/ttyUSB0)")
		}
		go s.runSerialLoop(ctx, cfg.Device, cfg.Baud)
	case "auto":
		if gpsdReachable(cfg.GPSDAddr, 800*time.Millisecond) {
			go s.runGPSDLoop(ctx, cfg.GPSDAddr)
			return nil
		}
		if cfg.Device == "" {
			cfg.Device = GuessSerialDevice()
		}
		if cfg.Device == "" {
			return fmt.Errorf("gps auto mode: gpsd not reachable at %s and no serial device detected", cfg.GPSDAddr)
		}
		go s.runSerialLoop(ctx, cfg.Device, cfg.Baud)
	default:
		return fmt.Errorf("invalid gps mode: %q (expected off|auto|gpsd|serial)", cfg.Mode)
	}
	util.Linef("[GPS]", util.ColorGray, "source %s", cfg.Mode)
	return nil
}

// Stop closes the active reader; its loop reconnects unless ctx is done.
func (s *State) Stop() {
	s.mu.RLock()
	closer := s.closeSrc
	s.mu.RUnlock()
	if closer != nil {
		closer()
	}
}

func normalizeConfig(cfg Config) Config {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "off"
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.GPSDAddr == "" {
		cfg.GPSDAddr = "127.0.0.1:2947"
	}
	cfg.Device = strings.TrimSpace(cfg.Device)
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	return cfg
}

func gpsdReachable(addr string, timeout time.Duration) bool {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// LastFix returns the newest fix. ok is false before the first one.
func (s *State) LastFix() (Fix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix, !s.fix.At.IsZero()
}

// Location formats the last fix as "lat, lon", or "(lat, lon)" once it is
// stale. It returns nil when no fix was ever received.
func (s *State) Location() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fix.At.IsZero() {
		return nil
	}
	v := fmt.Sprintf("%f, %f", s.fix.Lat, s.fix.Lon)
	if s.now().Sub(s.fix.At) > s.maxAge {
		v = "(" + v + ")"
	}
	return &v
}

// Status is "online" with a fresh fix, "no fix" while packets arrive without
// one, and "offline" otherwise.
func (s *State) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case !s.fix.At.IsZero() && s.now().Sub(s.fix.At) <= s.maxAge:
		return "online"
	case s.source != "":
		return "no fix"
	default:
		return "offline"
	}
}

// Source returns "gpsd", "serial" or "" when no reader is connected.
func (s *State) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *State) setFix(lat, lon float64) {
	s.mu.Lock()
	first := s.fix.At.IsZero()
	s.fix = Fix{Lat: lat, Lon: lon, At: s.now()}
	s.mu.Unlock()
	if first {
		util.Linef("[GPS]", util.ColorGreen, "fix %f, %f", lat, lon)
		log.Printf("gps: first fix %f, %f", lat, lon)
	}
}

func (s *State) countPacket() {
	s.mu.Lock()
	s.packets++
	s.mu.Unlock()
}

func (s *State) attach(kind string, closer func()) {
	s.mu.Lock()
	s.source = kind
	s.closeSrc = closer
	s.mu.Unlock()
}

func (s *State) detach() {
	s.mu.Lock()
	s.source = ""
	s.closeSrc = nil
	s.mu.Unlock()
}

// reconnect runs read until ctx is done, pausing between attempts.
func reconnect(ctx context.Context, what string, read func() error) {
	announced := false
	for ctx.Err() == nil {
		if !announced {
			util.Linef("[GPS]", util.ColorGray, "connecting to %s", what)
			log.Printf("gps: connecting to %s", what)
			announced = true
		}
		if err := read(); err != nil && ctx.Err() == nil {
			announced = false
			util.Linef("[GPS]", util.ColorYellow, "%s disconnected: %v", what, err)
			log.Printf("gps: %s disconnected: %v", what, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
