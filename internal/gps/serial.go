package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

func (s *State) runSerialLoop(ctx context.Context, dev string, baud int) {
	reconnect(ctx, fmt.Sprintf("serial %s (%d baud)", dev, baud), func() error {
		err := s.readSerial(ctx, dev, baud)
		// USB receivers come back under a new name after a replug.
		if guessed := GuessSerialDevice(); err != nil && guessed != "" {
			dev = guessed
		}
		return err
	})
}

func (s *State) readSerial(ctx context.Context, dev string, baud int) error {
	port, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return err
	}
	defer port.Close()

	s.attach("serial", func() { _ = port.Close() })
	defer s.detach()

	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		s.handleNMEALine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("serial reader stopped")
}

// handleNMEALine applies position sentences that carry a valid fix.
func (s *State) handleNMEALine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	s.countPacket()

	sent, err := nmea.Parse(line)
	if err != nil {
		return
	}
	switch v := sent.(type) {
	case nmea.RMC:
		if strings.EqualFold(v.Validity, "A") {
			s.setFix(v.Latitude, v.Longitude)
		}
	case nmea.GGA:
		if v.FixQuality != "0" && (v.Latitude != 0 || v.Longitude != 0) {
			s.setFix(v.Latitude, v.Longitude)
		}
	case nmea.GLL:
		if strings.EqualFold(v.Validity, "A") {
			s.setFix(v.Latitude, v.Longitude)
		}
	}
}
