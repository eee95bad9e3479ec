package util

import (
	"os/exec"
	"regexp"
)

var batteryPctRe = regexp.MustCompile(`(\d{1,3})%`)

// BatteryPercent returns the battery level from `acpi -b`, or "" on mains-powered
// hosts and hosts without acpi.
func BatteryPercent() string {
	out, err := exec.Command("acpi", "-b").CombinedOutput()
	if err != nil {
		return ""
	}
	return parseBatteryPercent(string(out))
}

func parseBatteryPercent(s string) string {
	m := batteryPctRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + "%"
}
