package beacon

import (
	"fmt"
	"time"

	"blebeacon/internal/frame"
)

type Phase int

const (
	Idle Phase = iota
	Advertising
)

func (p Phase) String() string {
	if p == Advertising {
		return "advertising"
	}
	return "idle"
}

// StartedInfo is the configuration actually used for the broadcast.
type StartedInfo struct {
	UUID    string
	Major   uint16
	Minor   uint16
	Address string
	Pseudo  bool
	Frame   frame.Frame
}

func (i StartedInfo) String() string {
	return fmt.Sprintf("Advertising started with UUID=%s, major=%d, minor=%d, mac=%s", i.UUID, i.Major, i.Minor, i.Address)
}

// State is a snapshot of the controller. Info is only meaningful while
// Phase is Advertising.
type State struct {
	Phase Phase
	Info  StartedInfo
	Since time.Time
}
