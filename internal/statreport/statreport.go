// Package statreport implements the stats activity spec.md §2/§5 names
// alongside the six protocol activities: once per stat_interval it
// swaps-and-resets the upstream/downstream counters, publishes the stat
// JSON body the upstream pipeline folds into its next PUSH_DATA datagram,
// records the window in the stats-log database, and pushes a snapshot to
// the monitor feed.
package statreport

import (
	"context"
	"log"
	"time"

	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/monitor"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/agsys/packetfwd/internal/semtech"
	"github.com/agsys/packetfwd/internal/statslog"
)

// Loop runs the stats-window cycle until ctx fires.
type Loop struct {
	GW       *gateway.Context
	DB       *statslog.DB    // optional; nil disables history persistence
	Monitor  *monitor.Server // optional; nil disables the live feed push
	Interval time.Duration
}

// Run ticks at Interval (falling back to 30s if unset) until ctx fires.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	up := l.GW.Upstream.Snapshot()
	down := l.GW.Downstream.Snapshot()

	stat := semtech.Stat{
		Time: semtech.FormatStatTime(time.Now()),
		RXNb: up.Received,
		RXOK: up.OK,
		RXFW: up.Forwarded,
		ACKR: up.AckRate(),
		DWNb: down.RespReceived,
		TXNb: down.TxOK,
	}
	l.fillLocation(&stat)
	l.fillTemperature(&stat)

	if body, err := stat.MarshalJSON(); err != nil {
		log.Printf("statreport: marshal stat: %v", err)
	} else {
		l.GW.Reports.Publish(body)
	}

	if l.Monitor != nil {
		l.Monitor.Broadcast(monitor.StatsPayload{
			RXReceived:  up.Received,
			RXOK:        up.OK,
			RXForwarded: up.Forwarded,
			TXOK:        down.TxOK,
			TXFail:      down.TxFail,
			AckRate:     up.AckRate(),
		})
	}

	if l.DB != nil {
		if _, err := l.DB.InsertWindow(statslog.Window{
			RXReceived:      up.Received,
			RXOK:            up.OK,
			RXBad:           up.Bad,
			RXNoCRC:         up.NoCRC,
			RXForwarded:     up.Forwarded,
			TXOK:            down.TxOK,
			TXFail:          down.TxFail,
			PullsSent:       down.PullsSent,
			PullsAcked:      down.PullsAcked,
			BeaconsSent:     down.BeaconsSent,
			BeaconsRejected: down.BeaconsRejected,
			AckRate:         up.AckRate(),
		}); err != nil {
			log.Printf("statreport: insert window: %v", err)
		}
	}
}

// fillLocation prefers a live GPS fix over the configured reference
// position, matching the reference server's own stat.lati/long behavior.
func (l *Loop) fillLocation(stat *semtech.Stat) {
	if lat, lon, ok := l.GW.TimeRef.Location(); ok {
		stat.HaveLocation = true
		stat.Lati = lat
		stat.Long = lon
		stat.Alti = l.GW.Config.Gateway.RefAltitude
		return
	}
	cfg := l.GW.Config.Gateway
	if cfg.RefLatitude != 0 || cfg.RefLongitude != 0 {
		stat.HaveLocation = true
		stat.Lati = cfg.RefLatitude
		stat.Long = cfg.RefLongitude
		stat.Alti = cfg.RefAltitude
	}
}

func (l *Loop) fillTemperature(stat *semtech.Stat) {
	err := l.GW.WithRadio(func(hal radio.HAL) error {
		t, err := hal.GetTemperature()
		if err != nil {
			return err
		}
		stat.HaveTemp = true
		stat.Temp = t
		return nil
	})
	if err != nil {
		log.Printf("statreport: temperature: %v", err)
	}
}
