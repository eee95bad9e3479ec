// Package config loads the beacon profile from YAML.
//
// Example:
//
//	adapter: hci0
//	beacon:
//	  uuid: 2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1
//	  major: 100
//	  minor: 1
//	  pseudo_address: true
//	device:
//	  model: "Raspberry Pi 4"
//	gps:
//	  mode: off
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"blebeacon/internal/beacon"
	"blebeacon/internal/devid"
	"blebeacon/internal/frame"
)

type Config struct {
	Adapter        string        `yaml:"adapter"`
	Database       string        `yaml:"database"`
	LogFile        string        `yaml:"log_file"`
	StatusInterval time.Duration `yaml:"status_interval"`

	Beacon Beacon           `yaml:"beacon"`
	Device devid.Attributes `yaml:"device"`
	GPS    GPS              `yaml:"gps"`
}

type Beacon struct {
	UUID string `yaml:"uuid"`
	// Major and Minor are ints so out-of-range values in the file are
	// reported instead of silently wrapping.
	Major         int    `yaml:"major"`
	Minor         int    `yaml:"minor"`
	PseudoAddress bool   `yaml:"pseudo_address"`
	FixedAddress  string `yaml:"fixed_address"`
}

type GPS struct {
	Mode     string `yaml:"mode"`
	GPSDAddr string `yaml:"gpsd_addr"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
}

func Default() Config {
	return Config{
		Adapter:        "hci0",
		Database:       "beacon_sessions.db",
		LogFile:        "app.log",
		StatusInterval: 30 * time.Second,
		Beacon: Beacon{
			PseudoAddress: true,
			FixedAddress:  beacon.DefaultFixedAddress,
		},
		GPS: GPS{
			Mode:     "off",
			GPSDAddr: "127.0.0.1:2947",
			Baud:     9600,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks fields that are not validated again by the controller.
// The UUID is checked here too so a bad profile fails before the radio is touched.
func (c Config) Validate() error {
	var errs []error
	if c.Beacon.UUID != "" {
		if _, err := frame.ParseUUID(c.Beacon.UUID); err != nil {
			errs = append(errs, fmt.Errorf("beacon.uuid: %w", err))
		}
	}
	if c.Beacon.Major < 0 || c.Beacon.Major > 0xFFFF {
		errs = append(errs, fmt.Errorf("beacon.major: %d out of range 0..65535", c.Beacon.Major))
	}
	if c.Beacon.Minor < 0 || c.Beacon.Minor > 0xFFFF {
		errs = append(errs, fmt.Errorf("beacon.minor: %d out of range 0..65535", c.Beacon.Minor))
	}
	if !c.Beacon.PseudoAddress {
		if _, err := frame.ParseAddress(c.Beacon.FixedAddress); err != nil {
			errs = append(errs, fmt.Errorf("beacon.fixed_address: %w", err))
		}
	}
	if strings.TrimSpace(c.Adapter) == "" {
		errs = append(errs, errors.New("adapter: empty"))
	}
	if c.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("status_interval: %s must be positive", c.StatusInterval))
	}
	switch strings.ToLower(c.GPS.Mode) {
	case "", "off", "auto", "gpsd", "serial":
	default:
		errs = append(errs, fmt.Errorf("gps.mode: %q (expected off|auto|gpsd|serial)", c.GPS.Mode))
	}
	return errors.Join(errs...)
}

// MajorMinor narrows the identity fields. Call Validate first.
func (b Beacon) MajorMinor() (uint16, uint16) {
	return uint16(b.Major), uint16(b.Minor)
}
