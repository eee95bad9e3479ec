package bluetooth

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/pkg/errors"
	tg "tinygo.org/x/bluetooth"

	"blebeacon/internal/beacon"
)

const (
	advIface   = "org.bluez.LEAdvertisement1"
	advManager = "org.bluez.LEAdvertisingManager1"
	advPath    = dbus.ObjectPath("/org/blebeacon/advertisement0")
)

// Radio advertises through BlueZ's LEAdvertisingManager1 on one adapter.
// It implements beacon.Radio.
type Radio struct {
	adapterID string
	events    chan beacon.RadioEvent

	mu         sync.Mutex
	conn       *dbus.Conn
	registered bool
}

func NewRadio(adapterID string) *Radio {
	return &Radio{
		adapterID: strings.TrimSpace(adapterID),
		events:    make(chan beacon.RadioEvent, 16),
	}
}

func (r *Radio) AdapterID() string { return r.adapterID }

func (r *Radio) Events() <-chan beacon.RadioEvent { return r.events }

func (r *Radio) bus() (*dbus.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "dbus SystemBus")
	}
	r.conn = conn
	return conn, nil
}

// Available reports whether the adapter exists and is powered.
func (r *Radio) Available(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := tg.NewAdapter(r.adapterID).Enable(); err != nil {
		log.Printf("radio: %s enable failed: %v", r.adapterID, err)
		return false
	}
	conn, err := r.bus()
	if err != nil {
		log.Printf("radio: %v", err)
		return false
	}
	st := bluezAdapterState(ctx, conn, r.adapterID)
	if !st.Present || !st.Powered {
		log.Printf("radio: %s present=%v powered=%v", r.adapterID, st.Present, st.Powered)
		return false
	}
	return true
}

// BeginAdvertising exports a broadcast advertisement carrying payload as
// manufacturer data under companyID and registers it with BlueZ. No local
// name or TX power is included.
func (r *Radio) BeginAdvertising(ctx context.Context, payload []byte, companyID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		ae := &AdvertiseError{Code: beacon.FailureAlreadyStarted, Err: errors.New("advertisement already registered")}
		r.emit(beacon.RadioEvent{Kind: beacon.EventFailed, Code: ae.Code, Err: ae, At: time.Now()})
		return ae
	}
	conn, err := r.bus()
	if err != nil {
		return err
	}
	if err := exportAdvertisement(conn, &advertisement{radio: r}, payload, companyID); err != nil {
		unexportAdvertisement(conn)
		return errors.Wrap(err, "export advertisement")
	}

	call := conn.Object("org.bluez", adapterPath(r.adapterID)).
		CallWithContext(ctx, advManager+".RegisterAdvertisement", 0, advPath, map[string]dbus.Variant{})
	if call.Err != nil {
		unexportAdvertisement(conn)
		ae := classifyBlueZError(call.Err)
		r.emit(beacon.RadioEvent{Kind: beacon.EventFailed, Code: ae.Code, Err: ae, At: time.Now()})
		return errors.Wrapf(ae, "register advertisement on %s", r.adapterID)
	}

	r.registered = true
	r.emit(beacon.RadioEvent{Kind: beacon.EventStarted, At: time.Now()})
	return nil
}

// EndAdvertising unregisters and unexports the advertisement. The local
// object is removed even if BlueZ reports an error.
func (r *Radio) EndAdvertising(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registered {
		return nil
	}
	conn, err := r.bus()
	if err != nil {
		return err
	}
	call := conn.Object("org.bluez", adapterPath(r.adapterID)).
		CallWithContext(ctx, advManager+".UnregisterAdvertisement", 0, advPath)
	unexportAdvertisement(conn)
	r.registered = false
	if call.Err != nil {
		return errors.Wrapf(classifyBlueZError(call.Err), "unregister advertisement on %s", r.adapterID)
	}
	return nil
}

// emit never blocks; telemetry is dropped when nobody is listening.
func (r *Radio) emit(ev beacon.RadioEvent) {
	select {
	case r.events <- ev:
	default:
		log.Printf("radio: event dropped: %s", ev)
	}
}

// advertisement is the object BlueZ calls back into.
type advertisement struct {
	radio *Radio
}

// Release is called by BlueZ when it removes the advertisement on its own.
func (a *advertisement) Release() *dbus.Error {
	a.radio.emit(beacon.RadioEvent{Kind: beacon.EventReleased, At: time.Now()})
	return nil
}

// advInterval is the low-latency advertising interval in milliseconds. BlueZ
// older than 5.58 ignores MinInterval and MaxInterval and uses its default.
const advInterval uint32 = 100

func advertisementProperties(payload []byte, companyID uint16) prop.Map {
	data := append([]byte(nil), payload...)
	return prop.Map{
		advIface: {
			"Type":        {Value: "broadcast", Emit: prop.EmitFalse},
			"MinInterval": {Value: advInterval, Emit: prop.EmitFalse},
			"MaxInterval": {Value: advInterval, Emit: prop.EmitFalse},
			"ManufacturerData": {
				Value: map[uint16]dbus.Variant{companyID: dbus.MakeVariant(data)},
				Emit:  prop.EmitFalse,
			},
		},
	}
}

func exportAdvertisement(conn *dbus.Conn, adv *advertisement, payload []byte, companyID uint16) error {
	if err := conn.Export(adv, advPath, advIface); err != nil {
		return err
	}
	props, err := prop.Export(conn, advPath, advertisementProperties(payload, companyID))
	if err != nil {
		return err
	}
	node := &introspect.Node{
		Name: string(advPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       advIface,
				Methods:    introspect.Methods(adv),
				Properties: props.Introspection(advIface),
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), advPath, "org.freedesktop.DBus.Introspectable")
}

func unexportAdvertisement(conn *dbus.Conn) {
	_ = conn.Export(nil, advPath, advIface)
	_ = conn.Export(nil, advPath, "org.freedesktop.DBus.Properties")
	_ = conn.Export(nil, advPath, "org.freedesktop.DBus.Introspectable")
}
