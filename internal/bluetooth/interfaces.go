package bluetooth

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/godbus/dbus/v5"
)

var (
	ifaceLineRe = regexp.MustCompile(`^(hci\d+):.*`)
	busRe       = regexp.MustCompile(`Bus:\s*(USB|UART|PCI|SDIO|Virtual)`)
	bdAddrRe    = regexp.MustCompile(`BD Address:\s*([0-9A-Fa-f:]{17})`)
)

// ListAdapters asks BlueZ for its controllers and falls back to hciconfig
// when the system bus is not reachable.
func ListAdapters(ctx context.Context) ([]AdapterInfo, error) {
	if conn, err := dbus.SystemBus(); err == nil {
		if managed, err := bluezManagedObjects(ctx, conn); err == nil {
			if list := adaptersFromManaged(managed); len(list) > 0 {
				return list, nil
			}
		}
	}
	out, err := exec.CommandContext(ctx, "hciconfig").CombinedOutput()
	if err != nil {
		return nil, err
	}
	return parseHciconfig(out), nil
}

func parseHciconfig(out []byte) []AdapterInfo {
	var list []AdapterInfo
	var cur *AdapterInfo

	flush := func() {
		if cur == nil {
			return
		}
		if cur.BusInfo == "" {
			cur.BusInfo = "Unknown"
		}
		list = append(list, *cur)
		cur = nil
	}

	for _, raw := range bytes.Split(out, []byte{'\n'}) {
		line := strings.TrimSpace(string(bytes.TrimRight(raw, "\r")))
		if line == "" {
			continue
		}
		if m := ifaceLineRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &AdapterInfo{ID: m[1]}
			if bm := busRe.FindStringSubmatch(line); bm != nil {
				cur.BusInfo = bm[1]
			}
			continue
		}
		if cur == nil {
			continue
		}
		if cur.BusInfo == "" {
			if bm := busRe.FindStringSubmatch(line); bm != nil {
				cur.BusInfo = bm[1]
			}
		}
		if m := bdAddrRe.FindStringSubmatch(line); m != nil {
			cur.Address = strings.ToUpper(m[1])
		}
		if strings.HasPrefix(line, "UP ") || line == "UP" {
			cur.Powered = true
		}
	}
	flush()
	return list
}
