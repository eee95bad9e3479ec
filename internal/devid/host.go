package devid

import (
	"errors"
	"io/fs"
	"strings"
)

var ErrNoInstallID = errors.New("devid: no machine id found")

var (
	installIDPaths = []string{"etc/machine-id", "var/lib/dbus/machine-id"}
	modelPaths     = []string{"proc/device-tree/model", "sys/devices/virtual/dmi/id/product_name"}
)

const (
	vendorPath     = "sys/devices/virtual/dmi/id/sys_vendor"
	compatiblePath = "proc/device-tree/compatible"
)

// HostAttributes reads the attributes from a root filesystem, usually os.DirFS("/").
//
// Model comes from the device tree (Raspberry Pi and other boards) or DMI (PCs).
// Brand comes from DMI, or the vendor prefix of the first device tree
// "compatible" entry (e.g. "raspberrypi,4-model-b" -> "raspberrypi").
// Model and Brand may be empty; a missing install id is an error.
func HostAttributes(root fs.FS) (Attributes, error) {
	var a Attributes
	a.InstallID = firstValue(root, installIDPaths...)
	if a.InstallID == "" {
		return a, ErrNoInstallID
	}
	a.Model = firstValue(root, modelPaths...)
	a.Brand = firstValue(root, vendorPath)
	if a.Brand == "" {
		if compat := readValue(root, compatiblePath); compat != "" {
			if i := strings.IndexByte(compat, ','); i > 0 {
				a.Brand = compat[:i]
			}
		}
	}
	return a, nil
}

func firstValue(root fs.FS, paths ...string) string {
	for _, p := range paths {
		if v := readValue(root, p); v != "" {
			return v
		}
	}
	return ""
}

// readValue returns the file content up to the first NUL, trimmed.
// Device tree strings are NUL terminated.
func readValue(root fs.FS, path string) string {
	b, err := fs.ReadFile(root, path)
	if err != nil {
		return ""
	}
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
