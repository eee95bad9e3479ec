package main

import (
	"context"
	"fmt"
	"time"

	"blebeacon/internal/beacon"
	"blebeacon/internal/db"
	"blebeacon/internal/frame"
	"blebeacon/internal/gps"
	"blebeacon/internal/util"
)

// storeRecorder keeps the advertising history in SQLite, stamped with the
// current site fix when one is known.
type storeRecorder struct {
	store   *db.Store
	gps     *gps.State
	adapter string
}

func (r storeRecorder) OpenSession(ctx context.Context, info beacon.StartedInfo, at time.Time) (int64, error) {
	mode := "fixed"
	if info.Pseudo {
		mode = "pseudo"
	}
	payload := info.Frame.Bytes()
	adv := util.BytesToHex(frame.ManufacturerAD(frame.CompanyID, payload))
	var loc *string
	if r.gps != nil {
		loc = r.gps.Location()
	}
	return r.store.CreateSession(ctx, db.SessionParams{
		StartedAt:   at,
		Adapter:     r.adapter,
		UUID:        info.UUID,
		Major:       info.Major,
		Minor:       info.Minor,
		Address:     info.Address,
		AddressMode: mode,
		FrameHex:    fmt.Sprintf("%X", payload),
		AdvRaw:      &adv,
		GPSStart:    loc,
	})
}

func (r storeRecorder) CloseSession(ctx context.Context, sessionID int64, reason string, at time.Time) error {
	return r.store.CloseSession(ctx, sessionID, reason, at)
}

func (r storeRecorder) RecordEvent(ctx context.Context, sessionID int64, ev beacon.RadioEvent) error {
	msg := ""
	if ev.Kind == beacon.EventFailed {
		msg = ev.Code.String()
		if ev.Err != nil {
			msg += " " + ev.Err.Error()
		}
	}
	_, err := r.store.InsertRadioEvent(ctx, db.RadioEventParams{
		SessionID: sessionID,
		At:        ev.At,
		Kind:      ev.Kind.String(),
		Code:      int(ev.Code),
		Message:   msg,
	})
	return err
}
