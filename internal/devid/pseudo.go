// Package devid derives the pseudo device address advertised in place of the
// real controller address, and collects the host attributes it is derived from.
package devid

import (
	"crypto/sha256"

	"blebeacon/internal/frame"
)

// Attributes are stable, low-entropy strings describing this installation.
type Attributes struct {
	InstallID string `yaml:"install_id"`
	Model     string `yaml:"model"`
	Brand     string `yaml:"brand"`
}

// PseudoAddress hashes InstallID+Model+Brand (UTF-8, no separators) with
// SHA-256 and keeps the first 6 bytes. Deployed beacons depend on this exact
// derivation, so neither the missing delimiter nor the truncation may change.
func PseudoAddress(a Attributes) frame.Address {
	sum := sha256.Sum256([]byte(a.InstallID + a.Model + a.Brand))
	var out frame.Address
	copy(out[:], sum[:frame.AddressLen])
	return out
}

// Merge returns a with every non-empty field of override applied.
func (a Attributes) Merge(override Attributes) Attributes {
	if override.InstallID != "" {
		a.InstallID = override.InstallID
	}
	if override.Model != "" {
		a.Model = override.Model
	}
	if override.Brand != "" {
		a.Brand = override.Brand
	}
	return a
}
