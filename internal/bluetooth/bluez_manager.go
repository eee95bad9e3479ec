package bluetooth

import (
	"context"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// AdapterInfo describes one BlueZ controller.
type AdapterInfo struct {
	ID      string
	Address string
	Name    string
	Powered bool
	// Advertising is true when the adapter exposes LEAdvertisingManager1.
	Advertising bool
	BusInfo     string
}

type adapterState struct {
	Present bool
	Powered bool
	Address string
}

func adapterPath(adapterID string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + strings.TrimSpace(adapterID))
}

func bluezManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	root := conn.Object("org.bluez", dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var managed managedObjects
	if err := call.Store(&managed); err != nil {
		return nil, err
	}
	return managed, nil
}

func bluezAdapterState(ctx context.Context, conn *dbus.Conn, adapterID string) adapterState {
	managed, err := bluezManagedObjects(ctx, conn)
	if err != nil {
		return adapterState{}
	}
	for _, a := range adaptersFromManaged(managed) {
		if a.ID == strings.TrimSpace(adapterID) {
			return adapterState{Present: true, Powered: a.Powered, Address: a.Address}
		}
	}
	return adapterState{}
}

// adaptersFromManaged extracts Adapter1 objects, sorted by ID.
func adaptersFromManaged(managed managedObjects) []AdapterInfo {
	var out []AdapterInfo
	for path, ifaces := range managed {
		ad, ok := ifaces["org.bluez.Adapter1"]
		if !ok {
			continue
		}
		p := string(path)
		if !strings.HasPrefix(p, "/org/bluez/") {
			continue
		}
		info := AdapterInfo{ID: strings.TrimPrefix(p, "/org/bluez/")}
		if s, ok := variantString(ad, "Address"); ok {
			info.Address = strings.ToUpper(strings.TrimSpace(s))
		}
		if s, ok := variantString(ad, "Alias"); ok {
			info.Name = s
		} else if s, ok := variantString(ad, "Name"); ok {
			info.Name = s
		}
		if v, ok := ad["Powered"]; ok {
			if b, ok := v.Value().(bool); ok {
				info.Powered = b
			}
		}
		_, info.Advertising = ifaces[advManager]
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func variantString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

// bluezEnsureAdapterPowered sets Adapter1.Powered=true.
func bluezEnsureAdapterPowered(ctx context.Context, conn *dbus.Conn, adapterID string) error {
	obj := conn.Object("org.bluez", adapterPath(adapterID))
	return obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0,
		"org.bluez.Adapter1", "Powered", dbus.MakeVariant(true)).Err
}
