package bluetooth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"blebeacon/internal/util"
)

type PreflightOptions struct {
	// RestartBluetoothService restarts the bluetooth unit when the adapter is
	// missing (root + systemctl only).
	RestartBluetoothService bool
	// PowerOn sets Powered=true when the adapter is off.
	PowerOn bool
}

// Preflight makes sure the adapter is visible to BlueZ and, optionally,
// powered. Problems are reported on the console; the returned error only
// says the adapter is still missing.
func Preflight(ctx context.Context, adapterID string, opt PreflightOptions) error {
	adapterID = strings.TrimSpace(adapterID)
	if adapterID == "" {
		return fmt.Errorf("preflight: no adapter")
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		util.Linef("[PREFLIGHT]", util.ColorYellow, "dbus SystemBus error: %v", err)
		return err
	}

	st := bluezAdapterState(ctx, conn, adapterID)
	if !st.Present {
		util.Linef("[PREFLIGHT]", util.ColorYellow, "adapter %s missing", adapterID)
		log.Printf("preflight: adapter %s missing", adapterID)
		if opt.RestartBluetoothService && util.IsRoot() {
			if !util.ServiceIsActive(ctx, "bluetooth") {
				util.Line("[PREFLIGHT]", util.ColorGray, "bluetooth service inactive -> restarting")
			} else {
				util.Line("[PREFLIGHT]", util.ColorGray, "restarting bluetooth service")
			}
			_ = util.RestartService(ctx, "bluetooth")

			t := time.NewTimer(1500 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			st = bluezAdapterState(ctx, conn, adapterID)
		}
		if !st.Present {
			return fmt.Errorf("preflight: adapter %s not found", adapterID)
		}
	}

	if !st.Powered && opt.PowerOn {
		if err := bluezEnsureAdapterPowered(ctx, conn, adapterID); err != nil {
			util.Linef("[PREFLIGHT]", util.ColorYellow, "power on %s failed: %v", adapterID, err)
			log.Printf("preflight: power on %s: %v", adapterID, err)
		} else {
			util.Linef("[PREFLIGHT]", util.ColorGray, "adapter %s powered on", adapterID)
		}
	}
	return nil
}
