package bluetooth

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"blebeacon/internal/beacon"
)

// AdvertiseError is a BlueZ failure translated into a beacon failure code.
// Permission failures match beacon.ErrPermissionDenied.
type AdvertiseError struct {
	Code       beacon.FailureCode
	Name       string
	Permission bool
	Err        error
}

func (e *AdvertiseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Code, e.Name, e.Err)
}

func (e *AdvertiseError) Unwrap() error { return e.Err }

func (e *AdvertiseError) Is(target error) bool {
	return e.Permission && target == beacon.ErrPermissionDenied
}

var permissionErrors = map[string]bool{
	"org.bluez.Error.NotPermitted":           true,
	"org.bluez.Error.NotAuthorized":          true,
	"org.freedesktop.DBus.Error.AccessDenied": true,
	"org.freedesktop.DBus.Error.AuthFailed":   true,
}

func classifyBlueZError(err error) *AdvertiseError {
	name, msg := dbusErrorName(err)
	ae := &AdvertiseError{Code: beacon.FailureInternalError, Name: name, Err: err}
	switch {
	case permissionErrors[name]:
		ae.Permission = true
	case name == "org.bluez.Error.InvalidLength":
		ae.Code = beacon.FailureDataTooLarge
	case name == "org.bluez.Error.AlreadyExists":
		ae.Code = beacon.FailureAlreadyStarted
	case name == "org.bluez.Error.NotSupported":
		ae.Code = beacon.FailureFeatureUnsupported
	case strings.Contains(strings.ToLower(msg), "maximum advertisements"):
		ae.Code = beacon.FailureTooManyAdvertisers
	case name == "":
		ae.Code = beacon.FailureUnknown
	}
	return ae
}

func dbusErrorName(err error) (name string, msg string) {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name, firstString(de.Body)
	}
	var dp *dbus.Error
	if errors.As(err, &dp) && dp != nil {
		return dp.Name, firstString(dp.Body)
	}
	return "", ""
}

func firstString(body []interface{}) string {
	if len(body) == 0 {
		return ""
	}
	s, _ := body[0].(string)
	return s
}
