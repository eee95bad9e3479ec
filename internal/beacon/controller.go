// Package beacon owns the single advertisement slot of a radio and moves it
// between Idle and Advertising.
package beacon

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"blebeacon/internal/devid"
	"blebeacon/internal/frame"
	"blebeacon/internal/util"
)

// DefaultFixedAddress is advertised when the pseudo address is declined and
// no other fixed address was configured.
const DefaultFixedAddress = "00:11:22:33:44:55"

// Recorder keeps a history of broadcasts. Failures are logged and never
// affect the controller state.
type Recorder interface {
	OpenSession(ctx context.Context, info StartedInfo, at time.Time) (int64, error)
	CloseSession(ctx context.Context, sessionID int64, reason string, at time.Time) error
	RecordEvent(ctx context.Context, sessionID int64, ev RadioEvent) error
}

type Option func(*Controller)

// WithAttributes sets the source of device attributes for the pseudo address.
func WithAttributes(fn func() (devid.Attributes, error)) Option {
	return func(c *Controller) { c.attributes = fn }
}

func WithFixedAddress(addr string) Option {
	return func(c *Controller) { c.fixedAddress = addr }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// Controller serializes Start and Stop: the mutex is held for the whole
// transition, radio calls included, so a restart can never overlap another.
type Controller struct {
	mu    sync.Mutex
	state State

	radio        Radio
	attributes   func() (devid.Attributes, error)
	fixedAddress string
	recorder     Recorder
	now          func() time.Time

	// Written under mu. Watch also reads it under mu so an event emitted
	// during BeginAdvertising waits for its session to be opened.
	sessionID atomic.Int64
}

func New(radio Radio, opts ...Option) *Controller {
	c := &Controller{
		radio:        radio,
		fixedAddress: DefaultFixedAddress,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Since = c.now()
	return c
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start validates the configuration and (re)starts the broadcast. Any running
// advertisement is halted first. On a precondition or validation failure the
// current state is kept; on a radio failure the controller ends Idle.
func (c *Controller) Start(ctx context.Context, uuidText string, major, minor uint16, usePseudoAddress bool) (StartedInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.radio.Available(ctx) {
		log.Printf("beacon: start refused, radio unavailable")
		return StartedInfo{}, &Error{Op: "start", Kind: ErrRadioUnavailable}
	}

	uuid, err := frame.ParseUUID(uuidText)
	if err != nil {
		return StartedInfo{}, &Error{Op: "start", Kind: ErrInvalidConfiguration, Err: err}
	}
	addr, err := c.resolveAddress(usePseudoAddress)
	if err != nil {
		return StartedInfo{}, &Error{Op: "start", Kind: ErrInvalidConfiguration, Err: err}
	}

	if c.state.Phase == Advertising {
		if err := c.stopLocked(ctx, "restart"); err != nil {
			log.Printf("beacon: halt before restart: %v", err)
		}
	}

	f := frame.Encode(uuid, major, minor, addr)
	if err := c.radio.BeginAdvertising(ctx, f.Bytes(), frame.CompanyID); err != nil {
		c.state = State{Phase: Idle, Since: c.now()}
		e := radioError("start", err)
		log.Printf("beacon: %v", e)
		return StartedInfo{}, e
	}

	info := StartedInfo{
		UUID:    uuid.String(),
		Major:   major,
		Minor:   minor,
		Address: addr.String(),
		Pseudo:  usePseudoAddress,
		Frame:   f,
	}
	c.state = State{Phase: Advertising, Info: info, Since: c.now()}
	c.openSession(ctx, info)

	log.Printf("beacon: %s", info)
	util.Line("[BEACON]", util.ColorGreen, info.String())
	return info, nil
}

// Stop halts the broadcast. The controller is Idle afterwards even when the
// radio reports an error; that error is still returned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != Advertising {
		return &Error{Op: "stop", Kind: ErrNotAdvertising}
	}
	if err := c.stopLocked(ctx, "stopped"); err != nil {
		e := radioError("stop", err)
		log.Printf("beacon: %v", e)
		return e
	}
	util.Line("[BEACON]", util.ColorGray, "Advertising stopped.")
	return nil
}

// Shutdown stops a running broadcast and is a no-op when Idle.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != Advertising {
		return nil
	}
	if err := c.stopLocked(ctx, "shutdown"); err != nil {
		return radioError("stop", err)
	}
	return nil
}

func (c *Controller) stopLocked(ctx context.Context, reason string) error {
	err := c.radio.EndAdvertising(ctx)
	c.state = State{Phase: Idle, Since: c.now()}
	c.closeSession(ctx, reason)
	log.Printf("beacon: advertising halted (%s)", reason)
	return err
}

func (c *Controller) resolveAddress(pseudo bool) (frame.Address, error) {
	if !pseudo {
		return frame.ParseAddress(c.fixedAddress)
	}
	if c.attributes == nil {
		return frame.Address{}, devid.ErrNoInstallID
	}
	attrs, err := c.attributes()
	if err != nil {
		return frame.Address{}, err
	}
	return devid.PseudoAddress(attrs), nil
}

// Watch consumes radio events until ctx is done. Events are telemetry only:
// they are logged and recorded but never change the controller state.
func (c *Controller) Watch(ctx context.Context) {
	events := c.radio.Events()
	if events == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.observe(ctx, ev)
		}
	}
}

func (c *Controller) observe(ctx context.Context, ev RadioEvent) {
	switch ev.Kind {
	case EventStarted:
		log.Printf("beacon: BLE advertising started successfully")
		util.Line("[RADIO]", util.ColorGreen, "advertising accepted by the controller")
	case EventFailed:
		log.Printf("beacon: advertising start failure: %s", ev)
		util.Linef("[RADIO]", util.ColorYellow, "advertising failed: %s", ev.Code)
	case EventReleased:
		log.Printf("beacon: advertisement released by the host stack")
		util.Line("[RADIO]", util.ColorYellow, "advertisement released by the host stack")
	default:
		log.Printf("beacon: radio event %s", ev)
	}
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	id := c.sessionID.Load()
	c.mu.Unlock()
	if err := c.recorder.RecordEvent(ctx, id, ev); err != nil {
		log.Printf("beacon: record event: %v", err)
	}
}

func (c *Controller) openSession(ctx context.Context, info StartedInfo) {
	if c.recorder == nil {
		return
	}
	id, err := c.recorder.OpenSession(context.WithoutCancel(ctx), info, c.now())
	if err != nil {
		log.Printf("beacon: open session: %v", err)
		return
	}
	c.sessionID.Store(id)
}

func (c *Controller) closeSession(ctx context.Context, reason string) {
	id := c.sessionID.Swap(0)
	if c.recorder == nil || id == 0 {
		return
	}
	if err := c.recorder.CloseSession(context.WithoutCancel(ctx), id, reason, c.now()); err != nil {
		log.Printf("beacon: close session %d: %v", id, err)
	}
}
