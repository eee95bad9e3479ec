package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/bluetooth"
	"blebeacon/internal/db"
	"blebeacon/internal/devid"
	"blebeacon/internal/frame"
	"blebeacon/internal/gps"
	"blebeacon/internal/util"
)

type stubRadio struct {
	begins int
	ends   int
}

func (r *stubRadio) Available(context.Context) bool { return true }
func (r *stubRadio) BeginAdvertising(context.Context, []byte, uint16) error {
	r.begins++
	return nil
}
func (r *stubRadio) EndAdvertising(context.Context) error {
	r.ends++
	return nil
}
func (r *stubRadio) Events() <-chan beacon.RadioEvent { return nil }

func attrs() (devid.Attributes, error) {
	return devid.Attributes{InstallID: "a1b2c3d4e5f60718", Model: "Pixel 7", Brand: "google"}, nil
}

func TestRunCommand(t *testing.T) {
	var out bytes.Buffer
	util.SetConsole(&out)
	defer util.SetConsole(nil)

	ctx := context.Background()
	radio := &stubRadio{}
	ctrl := beacon.New(radio, beacon.WithAttributes(attrs))
	params := &startParams{UUID: "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1", Major: 100, Minor: 1, Pseudo: true}

	if runCommand(ctx, ctrl, params, "start") {
		t.Fatal("start quit")
	}
	st := ctrl.State()
	if st.Phase != beacon.Advertising || st.Info.Address != "C4:13:A9:DA:A8:97" {
		t.Fatalf("state %+v", st)
	}

	runCommand(ctx, ctrl, params, "start 2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1 7 8")
	if params.Major != 7 || params.Minor != 8 || ctrl.State().Info.Minor != 8 {
		t.Errorf("params %+v", params)
	}

	// A rejected start keeps the previous parameters.
	runCommand(ctx, ctrl, params, "start nope")
	if params.UUID != "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1" {
		t.Errorf("params %+v", params)
	}
	runCommand(ctx, ctrl, params, "start 2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1 70000")
	if params.Major != 7 {
		t.Errorf("params %+v", params)
	}

	runCommand(ctx, ctrl, params, "pseudo off")
	runCommand(ctx, ctrl, params, "start")
	if got := ctrl.State().Info.Address; got != beacon.DefaultFixedAddress {
		t.Errorf("address %s", got)
	}

	runCommand(ctx, ctrl, params, "stop")
	runCommand(ctx, ctrl, params, "stop")
	runCommand(ctx, ctrl, params, "status")
	if ctrl.State().Phase != beacon.Idle {
		t.Error("still advertising")
	}
	if radio.begins != 3 || radio.ends != 3 {
		t.Errorf("begins=%d ends=%d", radio.begins, radio.ends)
	}
	if !strings.Contains(out.String(), "not advertising") || !strings.Contains(out.String(), "invalid configuration") {
		t.Errorf("console output:\n%s", out.String())
	}
	if !runCommand(ctx, ctrl, params, "quit") {
		t.Error("quit did not quit")
	}
}

func TestDecodeAD(t *testing.T) {
	uuid, err := frame.ParseUUID("2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1")
	if err != nil {
		t.Fatal(err)
	}
	addr, err := frame.ParseAddress("C4:13:A9:DA:A8:97")
	if err != nil {
		t.Fatal(err)
	}
	f := frame.Encode(uuid, 100, 1, addr)

	got, err := decodeAD(frame.ManufacturerAD(frame.CompanyID, f.Bytes()))
	if err != nil || got != f {
		t.Errorf("got %s %v, want %s", got, err, f)
	}

	if _, err := decodeAD(frame.ManufacturerAD(0x0059, f.Bytes())); err == nil {
		t.Error("other company accepted")
	}
	if _, err := decodeAD(frame.ManufacturerAD(frame.CompanyID, f.Bytes()[:frame.Len-1])); !errors.Is(err, frame.ErrFrameLength) {
		t.Errorf("short frame: %v", err)
	}
	if _, err := decodeAD(nil); err == nil {
		t.Error("empty AD accepted")
	}
}

func TestPrintStartedChecksAD(t *testing.T) {
	var out bytes.Buffer
	util.SetConsole(&out)
	defer util.SetConsole(nil)

	ctrl := beacon.New(&stubRadio{}, beacon.WithAttributes(attrs))
	info, err := ctrl.Start(context.Background(), "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1", 100, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	printStarted(info)
	if strings.Contains(out.String(), "[WARN]") {
		t.Errorf("unexpected warning:\n%s", out.String())
	}
}

func TestSelectAdapter(t *testing.T) {
	adapters := []bluetooth.AdapterInfo{{ID: "hci0"}, {ID: "hci1"}}
	if got, err := selectAdapter(adapters, "hci1", false); err != nil || got != "hci1" {
		t.Errorf("got %q %v", got, err)
	}
	if _, err := selectAdapter(adapters, "hci7", false); err == nil {
		t.Error("unknown adapter accepted")
	}
	if _, err := selectAdapter(nil, "hci0", false); err == nil {
		t.Error("empty list accepted")
	}
}

func TestStoreRecorder(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	rec := storeRecorder{store: store, gps: gps.NewState(time.Minute), adapter: "hci0"}
	ctrl := beacon.New(&stubRadio{}, beacon.WithAttributes(attrs), beacon.WithRecorder(rec))
	if _, err := ctrl.Start(ctx, "2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1", 100, 1, true); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	last, err := store.LastSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.Adapter != "hci0" || last.AddressMode != "pseudo" || last.StopReason != "stopped" || last.GPSStart != "" {
		t.Errorf("session %+v", last)
	}
	if last.FrameHex != "2D7A9F0CE0E84CC9A71BA21DB2D034A100640001C413A9DAA897" {
		t.Errorf("frame %s", last.FrameHex)
	}

	if err := rec.RecordEvent(ctx, last.ID, beacon.RadioEvent{Kind: beacon.EventFailed, Code: beacon.FailureTooManyAdvertisers, At: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_, _, _, failed, err := store.GetStatistics(ctx)
	if err != nil || failed != 1 {
		t.Errorf("failed=%d err=%v", failed, err)
	}
}
