package bluetooth

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"

	"blebeacon/internal/beacon"
)

func TestClassifyBlueZError(t *testing.T) {
	tests := []struct {
		err        error
		code       beacon.FailureCode
		permission bool
	}{
		{dbus.Error{Name: "org.bluez.Error.NotPermitted"}, beacon.FailureInternalError, true},
		{dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}, beacon.FailureInternalError, true},
		{dbus.Error{Name: "org.bluez.Error.InvalidLength"}, beacon.FailureDataTooLarge, false},
		{dbus.Error{Name: "org.bluez.Error.AlreadyExists"}, beacon.FailureAlreadyStarted, false},
		{dbus.Error{Name: "org.bluez.Error.NotSupported"}, beacon.FailureFeatureUnsupported, false},
		{dbus.Error{Name: "org.bluez.Error.Failed", Body: []interface{}{"Maximum advertisements reached"}}, beacon.FailureTooManyAdvertisers, false},
		{dbus.Error{Name: "org.bluez.Error.Failed", Body: []interface{}{"Failed to register"}}, beacon.FailureInternalError, false},
		{&dbus.Error{Name: "org.bluez.Error.NotAuthorized"}, beacon.FailureInternalError, true},
		{fmt.Errorf("call: %w", dbus.Error{Name: "org.bluez.Error.InvalidLength"}), beacon.FailureDataTooLarge, false},
		{errors.New("connection reset"), beacon.FailureUnknown, false},
	}
	for _, tc := range tests {
		ae := classifyBlueZError(tc.err)
		if ae.Code != tc.code {
			t.Errorf("%v: code %v, want %v", tc.err, ae.Code, tc.code)
		}
		if got := errors.Is(ae, beacon.ErrPermissionDenied); got != tc.permission {
			t.Errorf("%v: permission %v, want %v", tc.err, got, tc.permission)
		}
	}
}

func TestPermissionSurvivesWrapping(t *testing.T) {
	r := NewRadio("hci0")
	ae := classifyBlueZError(dbus.Error{Name: "org.bluez.Error.NotPermitted"})
	err := fmt.Errorf("register advertisement on %s: %w", r.AdapterID(), ae)
	if !errors.Is(err, beacon.ErrPermissionDenied) {
		t.Fatal("wrapped permission error lost its kind")
	}
}

func TestAdvertisementProperties(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 26)
	m := advertisementProperties(payload, 0x004C)

	props, ok := m[advIface]
	if !ok {
		t.Fatalf("missing %s", advIface)
	}
	if got := props["Type"].Value; got != "broadcast" {
		t.Errorf("Type %v", got)
	}
	for _, k := range []string{"MinInterval", "MaxInterval"} {
		p, ok := props[k]
		if !ok {
			t.Errorf("missing %s", k)
			continue
		}
		if got, ok := p.Value.(uint32); !ok || got != 100 {
			t.Errorf("%s %v", k, p.Value)
		}
	}
	md, ok := props["ManufacturerData"].Value.(map[uint16]dbus.Variant)
	if !ok {
		t.Fatalf("ManufacturerData has type %T", props["ManufacturerData"].Value)
	}
	if len(md) != 1 {
		t.Fatalf("%d manufacturer entries", len(md))
	}
	data, ok := md[0x004C].Value().([]byte)
	if !ok || !bytes.Equal(data, payload) {
		t.Errorf("payload % x", data)
	}
	for _, k := range []string{"LocalName", "Includes", "IncludeTxPower", "ServiceUUIDs"} {
		if _, ok := props[k]; ok {
			t.Errorf("unexpected property %s", k)
		}
	}

	// The exported value must not alias the caller's slice.
	payload[0] = 0
	if data[0] != 0xAB {
		t.Error("payload aliased")
	}
}

func TestReleaseEmitsEvent(t *testing.T) {
	r := NewRadio("hci0")
	adv := &advertisement{radio: r}
	if err := adv.Release(); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-r.Events():
		if ev.Kind != beacon.EventReleased {
			t.Errorf("kind %v", ev.Kind)
		}
	default:
		t.Fatal("no event")
	}
}

func TestEmitDoesNotBlock(t *testing.T) {
	r := NewRadio("hci0")
	for i := 0; i < cap(r.events)+5; i++ {
		r.emit(beacon.RadioEvent{Kind: beacon.EventStarted})
	}
	if len(r.events) != cap(r.events) {
		t.Errorf("queued %d", len(r.events))
	}
}

func TestAdaptersFromManaged(t *testing.T) {
	managed := managedObjects{
		"/org/bluez/hci1": {
			"org.bluez.Adapter1": {
				"Address": dbus.MakeVariant("aa:bb:cc:dd:ee:ff"),
				"Alias":   dbus.MakeVariant("usb dongle"),
				"Powered": dbus.MakeVariant(false),
			},
		},
		"/org/bluez/hci0": {
			"org.bluez.Adapter1": {
				"Address": dbus.MakeVariant("B8:27:EB:00:00:01"),
				"Name":    dbus.MakeVariant("raspberrypi"),
				"Powered": dbus.MakeVariant(true),
			},
			advManager: {},
		},
		"/org/bluez/hci0/dev_11_22_33_44_55_66": {
			"org.bluez.Device1": {},
		},
	}
	got := adaptersFromManaged(managed)
	if len(got) != 2 {
		t.Fatalf("got %d adapters", len(got))
	}
	if got[0].ID != "hci0" || !got[0].Powered || !got[0].Advertising || got[0].Name != "raspberrypi" {
		t.Errorf("hci0: %+v", got[0])
	}
	if got[1].ID != "hci1" || got[1].Powered || got[1].Advertising || got[1].Address != "AA:BB:CC:DD:EE:FF" || got[1].Name != "usb dongle" {
		t.Errorf("hci1: %+v", got[1])
	}
}

func TestParseHciconfig(t *testing.T) {
	out := []byte("hci1:\tType: Primary  Bus: USB\n" +
		"\tBD Address: 00:1A:7D:DA:71:13  ACL MTU: 310:10  SCO MTU: 64:8\n" +
		"\tDOWN\n" +
		"\tRX bytes:0 acl:0 sco:0 events:0 errors:0\n" +
		"\n" +
		"hci0:\tType: Primary  Bus: UART\n" +
		"\tBD Address: b8:27:eb:12:34:56  ACL MTU: 1021:8  SCO MTU: 64:1\n" +
		"\tUP RUNNING \n")
	got := parseHciconfig(out)
	if len(got) != 2 {
		t.Fatalf("got %d adapters", len(got))
	}
	if got[0].ID != "hci1" || got[0].BusInfo != "USB" || got[0].Powered || got[0].Address != "00:1A:7D:DA:71:13" {
		t.Errorf("hci1: %+v", got[0])
	}
	if got[1].ID != "hci0" || got[1].BusInfo != "UART" || !got[1].Powered || got[1].Address != "B8:27:EB:12:34:56" {
		t.Errorf("hci0: %+v", got[1])
	}
}
