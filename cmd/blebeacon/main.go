package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/bluetooth"
	"blebeacon/internal/config"
	"blebeacon/internal/db"
	"blebeacon/internal/devid"
	"blebeacon/internal/gps"
	"blebeacon/internal/status"
	"blebeacon/internal/util"
)

func main() {
	var (
		configFlag      = flag.String("config", "beacon.yaml", "YAML profile (missing file = defaults)")
		uuidFlag        = flag.String("uuid", "", "Beacon UUID (8-4-4-4-12). If empty, you are prompted.")
		majorFlag       = flag.Int("major", 0, "Beacon major (0..65535)")
		minorFlag       = flag.Int("minor", 0, "Beacon minor (0..65535)")
		pseudoFlag      = flag.Bool("pseudo-address", true, "Advertise the address derived from this host instead of the fixed one")
		fixedAddrFlag   = flag.String("fixed-address", beacon.DefaultFixedAddress, "Address advertised when -pseudo-address=false")
		adapterFlag     = flag.String("adapter", "hci0", "Bluetooth adapter to advertise on")
		dbFlag          = flag.String("db", "beacon_sessions.db", "SQLite session history")
		logFileFlag     = flag.String("log-file", "app.log", "Log file")
		restartBlueZSvc = flag.Bool("restart-bluetooth", true, "Preflight: restart bluetooth service if the adapter is missing (requires root + systemctl)")
		powerOnFlag     = flag.Bool("power-on", true, "Preflight: power the adapter on if it is off")
		statsInterval   = flag.Duration("stats-interval", 30*time.Second, "Console status interval")
		gpsModeFlag     = flag.String("gps-mode", "off", "GPS mode: off|auto|gpsd|serial")
		gpsdAddrFlag    = flag.String("gpsd-addr", "127.0.0.1:2947", "gpsd TCP address")
		gpsDeviceFlag   = flag.String("gps-device", "", "GPS serial device path (e.g., /dev/ttyUSB0)")
		gpsBaudFlag     = flag.Int("gps-baud", 9600, "GPS serial baud rate")
		durationFlag    = flag.Duration("duration", 0, "Stop advertising after this long (0 = until interrupted)")
		interactiveFlag = flag.Bool("interactive", false, "Read start/stop/status commands from stdin")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	overrides := map[string]func(){
		"uuid":           func() { cfg.Beacon.UUID = strings.TrimSpace(*uuidFlag) },
		"major":          func() { cfg.Beacon.Major = *majorFlag },
		"minor":          func() { cfg.Beacon.Minor = *minorFlag },
		"pseudo-address": func() { cfg.Beacon.PseudoAddress = *pseudoFlag },
		"fixed-address":  func() { cfg.Beacon.FixedAddress = strings.TrimSpace(*fixedAddrFlag) },
		"adapter":        func() { cfg.Adapter = strings.TrimSpace(*adapterFlag) },
		"db":             func() { cfg.Database = strings.TrimSpace(*dbFlag) },
		"log-file":       func() { cfg.LogFile = strings.TrimSpace(*logFileFlag) },
		"stats-interval": func() { cfg.StatusInterval = *statsInterval },
		"gps-mode":       func() { cfg.GPS.Mode = *gpsModeFlag },
		"gpsd-addr":      func() { cfg.GPS.GPSDAddr = *gpsdAddrFlag },
		"gps-device":     func() { cfg.GPS.Device = *gpsDeviceFlag },
		"gps-baud":       func() { cfg.GPS.Baud = *gpsBaudFlag },
	}
	for name, apply := range overrides {
		if set[name] {
			apply()
		}
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	printLogo()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if cfg.Beacon.UUID == "" {
		s, err := util.PromptString("Enter the beacon UUID (e.g. 2D7A9F0C-E0E8-4CC9-A71B-A21DB2D034A1): ")
		if err != nil {
			util.Linef("[ERROR]", util.ColorYellow, "no UUID given: %v", err)
			os.Exit(1)
		}
		cfg.Beacon.UUID = s
		for _, f := range []struct {
			name string
			dst  *int
		}{{"major", &cfg.Beacon.Major}, {"minor", &cfg.Beacon.Minor}} {
			if set[f.name] {
				continue
			}
			v, err := util.PromptDefault(strings.ToUpper(f.name[:1])+f.name[1:], strconv.Itoa(*f.dst))
			if err != nil {
				continue
			}
			n, err := util.ParseUint16(v)
			if err != nil {
				util.Linef("[ERROR]", util.ColorYellow, "%s: %v", f.name, err)
				os.Exit(1)
			}
			*f.dst = int(n)
		}
	}
	if err := cfg.Validate(); err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "invalid configuration: %v", err)
		os.Exit(1)
	}
	major, minor := cfg.Beacon.MajorMinor()

	adapters, err := bluetooth.ListAdapters(ctx)
	if err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "failed to get Bluetooth adapters: %v", err)
		os.Exit(1)
	}
	adapter, err := selectAdapter(adapters, cfg.Adapter, !set["adapter"] && *interactiveFlag)
	if err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		os.Exit(1)
	}
	if err := bluetooth.Preflight(ctx, adapter, bluetooth.PreflightOptions{
		RestartBluetoothService: *restartBlueZSvc,
		PowerOn:                 *powerOnFlag,
	}); err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		os.Exit(1)
	}

	store, err := db.Open(cfg.Database)
	if err != nil {
		util.Linef("[ERROR]", util.ColorYellow, "failed to open database: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	if last, err := store.LastSession(ctx); err == nil {
		util.Linef("[SESSION]", util.ColorGray, "last: id=%d uuid=%s major=%d minor=%d %s (%s)",
			last.ID, last.UUID, last.Major, last.Minor, last.StartedAt, last.StopReason)
	}

	gpsState := gps.NewState(5 * time.Minute)
	defer gpsState.Stop()
	gpsCfg := gps.Config{Mode: cfg.GPS.Mode, GPSDAddr: cfg.GPS.GPSDAddr, Device: cfg.GPS.Device, Baud: cfg.GPS.Baud}
	if gpsCfg.Enabled() {
		if err := gpsState.Start(ctx, gpsCfg); err != nil {
			// Non-fatal: sessions are recorded without a position.
			util.Linef("[GPS]", util.ColorYellow, "GPS disabled: %v", err)
			log.Printf("gps: %v", err)
		}
	}

	deviceOverrides := cfg.Device
	radio := bluetooth.NewRadio(adapter)
	ctrl := beacon.New(radio,
		beacon.WithAttributes(func() (devid.Attributes, error) {
			attrs, err := devid.HostAttributes(os.DirFS("/"))
			attrs = attrs.Merge(deviceOverrides)
			if attrs.InstallID == "" {
				if err == nil {
					err = devid.ErrNoInstallID
				}
				return attrs, err
			}
			return attrs, nil
		}),
		beacon.WithFixedAddress(cfg.Beacon.FixedAddress),
		beacon.WithRecorder(storeRecorder{store: store, gps: gpsState, adapter: radio.AdapterID()}),
	)
	go ctrl.Watch(ctx)
	go status.Run(ctx, cfg.StatusInterval, status.Provider{Beacon: ctrl, GPS: gpsState, Store: store})

	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := ctrl.Shutdown(sctx); err != nil {
			util.Linef("[ERROR]", util.ColorYellow, "stop on exit: %v", err)
		}
		util.Line("[EXIT]", util.ColorGray, "stopping")
	}()

	params := startParams{UUID: cfg.Beacon.UUID, Major: major, Minor: minor, Pseudo: cfg.Beacon.PseudoAddress}
	info, err := ctrl.Start(ctx, params.UUID, params.Major, params.Minor, params.Pseudo)
	if err != nil {
		reportError(err)
		if !*interactiveFlag {
			cancel()
			return
		}
	} else {
		printStarted(info)
	}

	if *interactiveFlag {
		runConsole(ctx, ctrl, &params)
		return
	}

	if *durationFlag > 0 {
		t := time.NewTimer(*durationFlag)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			if err := ctrl.Stop(ctx); err != nil && !errors.Is(err, beacon.ErrNotAdvertising) {
				reportError(err)
			}
		}
		return
	}
	<-ctx.Done()
}

// selectAdapter checks want against the adapters BlueZ knows. With prompt set
// and more than one adapter present, the operator picks one.
func selectAdapter(adapters []bluetooth.AdapterInfo, want string, prompt bool) (string, error) {
	if len(adapters) == 0 {
		return "", errors.New("no Bluetooth adapters found")
	}
	if prompt && len(adapters) > 1 {
		fmt.Println("Available Bluetooth adapters:")
		for i, a := range adapters {
			fmt.Printf("%d: %s %s (%s)\n", i, a.ID, a.Address, a.BusInfo)
		}
		s, err := util.PromptString("Select the adapter to advertise on (enter the number): ")
		if err != nil {
			return "", fmt.Errorf("invalid selection: %w", err)
		}
		if s = strings.TrimSpace(s); s != "" {
			var idx int
			if _, err := fmt.Sscanf(s, "%d", &idx); err != nil || idx < 0 || idx >= len(adapters) {
				return "", fmt.Errorf("invalid adapter index: %s", s)
			}
			return adapters[idx].ID, nil
		}
	}
	for _, a := range adapters {
		if a.ID == want {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("unknown adapter %q", want)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

func printLogo() {
	logo := `
    _/_/_/    _/        _/_/_/_/    _/_/_/    _/_/_/_/    _/_/    _/_/_/    _/_/    _/      _/
   _/    _/  _/        _/          _/    _/  _/        _/    _/  _/      _/    _/  _/_/    _/
  _/_/_/    _/        _/_/_/      _/_/_/    _/_/_/    _/_/_/_/  _/      _/    _/  _/  _/  _/
 _/    _/  _/        _/          _/    _/  _/        _/    _/  _/      _/    _/  _/    _/_/
_/_/_/    _/_/_/_/  _/_/_/_/    _/_/_/    _/_/_/_/  _/    _/  _/_/_/    _/_/    _/      _/
`
	fmt.Println(logo)
	fmt.Println("HouneTeam - BLE beacon")
}
