package status

import (
	"context"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/util"
)

type BeaconSource interface {
	State() beacon.State
}

type GPSSource interface {
	Location() *string
	Status() string
	Source() string
}

type StatsSource interface {
	GetStatistics(ctx context.Context) (totalSessions, openSessions, distinctIdentities, failedEvents int, err error)
}

// Provider holds the optional sources; nil ones are skipped.
type Provider struct {
	Beacon BeaconSource
	GPS    GPSSource
	Store  StatsSource
}

// Run prints periodic structured status lines to the console.
func Run(ctx context.Context, interval time.Duration, p Provider) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			PrintOnce(ctx, p, time.Now())
		}
	}
}

func PrintOnce(ctx context.Context, p Provider, now time.Time) {
	if p.Beacon != nil {
		st := p.Beacon.State()
		up := now.Sub(st.Since).Truncate(time.Second)
		if st.Phase == beacon.Advertising {
			util.Linef("[BEACON]", util.ColorGreen, "advertising %s major=%d minor=%d mac=%s for %s",
				st.Info.UUID, st.Info.Major, st.Info.Minor, st.Info.Address, up)
		} else {
			util.Linef("[BEACON]", util.ColorGray, "idle for %s", up)
		}
	}

	if p.GPS != nil {
		loc := p.GPS.Status()
		if s := p.GPS.Location(); s != nil {
			loc = *s
		}
		if src := p.GPS.Source(); src != "" {
			loc += " via " + src
		}
		util.Linef("[GPS DATA]", util.ColorCyan, "%s", loc)
	}

	if p.Store != nil {
		total, open, identities, failed, err := p.Store.GetStatistics(ctx)
		if err == nil {
			util.Linef("[DB STATS]", util.ColorGray, "Sessions: %d, Open: %d, Identities: %d, Failures: %d", total, open, identities, failed)
		}
	}

	if pct := util.BatteryPercent(); pct != "" {
		util.Linef("[BATTERY]", util.ColorGray, "%s", pct)
	}
}
