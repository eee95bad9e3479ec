package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/frame"
	"blebeacon/internal/util"
)

type startParams struct {
	UUID   string
	Major  uint16
	Minor  uint16
	Pseudo bool
}

const consoleHelp = `commands:
  start [uuid [major [minor]]]  start or restart advertising
  pseudo on|off                 advertise the derived or the fixed address
  stop                          stop advertising
  status                        show the current state
  quit                          stop and exit`

// runConsole reads commands until quit, EOF or ctx is done.
func runConsole(ctx context.Context, ctrl *beacon.Controller, params *startParams) {
	util.Line("[CONSOLE]", util.ColorGray, "type 'help' for commands")
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			s, err := util.PromptString("> ")
			if err != nil {
				if !errors.Is(err, io.EOF) {
					util.Linef("[ERROR]", util.ColorYellow, "read: %v", err)
				}
				return
			}
			select {
			case lines <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, ctrl, params, line); quit {
				return
			}
		}
	}
}

// runCommand executes one console line and reports whether to quit.
func runCommand(ctx context.Context, ctrl *beacon.Controller, params *startParams, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "start":
		next := *params
		if len(fields) > 1 {
			next.UUID = fields[1]
		}
		for i, dst := range []*uint16{&next.Major, &next.Minor} {
			if len(fields) > i+2 {
				v, err := util.ParseUint16(fields[i+2])
				if err != nil {
					util.Linef("[ERROR]", util.ColorYellow, "%v", err)
					return false
				}
				*dst = v
			}
		}
		info, err := ctrl.Start(ctx, next.UUID, next.Major, next.Minor, next.Pseudo)
		if err != nil {
			reportError(err)
			return false
		}
		*params = next
		printStarted(info)
	case "pseudo":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			util.Line("[ERROR]", util.ColorYellow, "usage: pseudo on|off")
			return false
		}
		params.Pseudo = fields[1] == "on"
		util.Linef("[CONSOLE]", util.ColorGray, "pseudo address %s (applies on next start)", fields[1])
	case "stop":
		if err := ctrl.Stop(ctx); err != nil {
			reportError(err)
		}
	case "status":
		printState(ctrl.State())
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Println(consoleHelp)
	default:
		util.Linef("[ERROR]", util.ColorYellow, "unknown command %q (try 'help')", fields[0])
	}
	return false
}

func printStarted(info beacon.StartedInfo) {
	ad := frame.ManufacturerAD(frame.CompanyID, info.Frame.Bytes())
	mode := "fixed"
	if info.Pseudo {
		// Scanners classify the hash output like any random address.
		mode = "pseudo, " + info.Frame.Address().RandomSubtype()
	}
	util.Linef("[BEACON]", util.ColorGray, "address %s (%s)", info.Address, mode)
	util.Linef("[BEACON]", util.ColorGray, "AD %s", util.BytesToHex(ad))
	for _, it := range frame.ParseAD(ad) {
		log.Printf("beacon: AD %s", it)
	}
	if len(ad) > frame.MaxADLen {
		util.Linef("[WARN]", util.ColorYellow, "AD is %d bytes, over the %d byte legacy limit", len(ad), frame.MaxADLen)
	}
	switch got, err := decodeAD(ad); {
	case err != nil:
		util.Linef("[WARN]", util.ColorYellow, "AD does not decode: %v", err)
	case got != info.Frame:
		util.Linef("[WARN]", util.ColorYellow, "AD decodes to %s", got)
	}
}

// decodeAD reads the frame back out of an AD the way a scanner would.
func decodeAD(ad []byte) (frame.Frame, error) {
	data, ok := frame.FindManufacturerData(ad, frame.CompanyID)
	if !ok {
		return frame.Frame{}, fmt.Errorf("no manufacturer data for company 0x%04X", frame.CompanyID)
	}
	return frame.FromBytes(data)
}

func printState(st beacon.State) {
	since := time.Since(st.Since).Truncate(time.Second)
	if st.Phase != beacon.Advertising {
		util.Linef("[STATUS]", util.ColorGray, "idle for %s", since)
		return
	}
	util.Linef("[STATUS]", util.ColorGreen, "%s (for %s)", st.Info, since)
}

// reportError prints one line whose wording depends on the error kind.
func reportError(err error) {
	switch {
	case errors.Is(err, beacon.ErrNotAdvertising):
		util.Line("[BEACON]", util.ColorGray, "not advertising")
	case errors.Is(err, beacon.ErrRadioUnavailable):
		util.Line("[ERROR]", util.ColorYellow, "Bluetooth adapter unavailable or off")
	case errors.Is(err, beacon.ErrPermissionDenied):
		util.Linef("[ERROR]", util.ColorRed, "permission denied: %v", err)
	case errors.Is(err, beacon.ErrInvalidConfiguration):
		util.Linef("[ERROR]", util.ColorYellow, "invalid configuration: %v", err)
	default:
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
	}
}
