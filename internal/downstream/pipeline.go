// Package downstream implements the D activity (spec.md §4.3): PULL_DATA
// heartbeats, PULL_RESP parsing/validation/JIT enqueue, TX_ACK emission,
// and beacon-queue refill.
package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/agsys/packetfwd/internal/beacon"
	"github.com/agsys/packetfwd/internal/config"
	"github.com/agsys/packetfwd/internal/counter"
	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/jit"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/agsys/packetfwd/internal/semtech"
)

const pullTimeout = 500 * time.Millisecond

// Pipeline runs the downstream activity against a single UDP connection.
type Pipeline struct {
	GW        *gateway.Context
	Conn      *net.UDPConn
	GatewayID [8]byte

	autoquitMisses int
}

// Run loops until ctx fires or the autoquit threshold is crossed.
func (p *Pipeline) Run(ctx context.Context) error {
	keepalive := time.Duration(p.GW.Config.Gateway.KeepaliveInterval) * time.Second
	if keepalive <= 0 {
		keepalive = 10 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	var pendingToken uint16
	havePending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tok, err := p.sendPullData()
			if err != nil {
				log.Printf("downstream: pull_data: %v", err)
				continue
			}
			pendingToken = tok
			havePending = true
			p.autoquitMisses++
			if threshold := p.GW.Config.Gateway.AutoquitThreshold; threshold > 0 && p.autoquitMisses >= threshold {
				log.Printf("downstream: %d consecutive unacknowledged PULL_DATA, shutting down", p.autoquitMisses)
				p.GW.RequestExit()
				return nil
			}
		default:
		}

		p.refillBeacons()

		p.Conn.SetReadDeadline(time.Now().Add(pullTimeout))
		buf := make([]byte, 2048)
		n, err := p.Conn.Read(buf)
		if err != nil {
			continue // timeout or short read: ignore and continue (spec.md §4.3 step 3)
		}
		if n < 4 {
			continue
		}
		data := buf[:n]

		switch data[3] {
		case semtech.PullAck:
			if havePending && (uint16(data[1])<<8|uint16(data[2])) == pendingToken {
				p.GW.Downstream.AddPull(true)
				p.autoquitMisses = 0
				havePending = false
			}
		case semtech.PullResp:
			p.handlePullResp(data)
		}
	}
}

func (p *Pipeline) sendPullData() (uint16, error) {
	header := semtech.Header{
		Version:   semtech.ProtocolVersion,
		Token:     semtech.NewToken(),
		Type:      semtech.PullData,
		GatewayID: p.GatewayID,
	}
	if _, err := p.Conn.Write(header.Encode()); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	p.GW.Downstream.AddPull(false)
	return header.TokenUint16(), nil
}

func (p *Pipeline) handlePullResp(datagram []byte) {
	_, err := semtech.DecodeHeader(datagram)
	if err != nil || len(datagram) <= semtech.HeaderSize {
		log.Printf("downstream: malformed PULL_RESP header: %v", err)
		return
	}
	body := datagram[semtech.HeaderSize:]

	var wire struct {
		Txpk json.RawMessage `json:"txpk"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || wire.Txpk == nil {
		// Malformed PULL_RESP: no token in spec.md §6's vocabulary fits a
		// parse failure, so drop it without a tx_ack, matching the
		// reference server's own tolerant behavior.
		log.Printf("downstream: malformed PULL_RESP body: %v", err)
		return
	}

	token := [2]byte{datagram[1], datagram[2]}

	pkt, err := semtech.ParseTXPK(wire.Txpk)
	if err != nil {
		log.Printf("downstream: %v", err)
		p.GW.Downstream.AddResponse(len(body), false, "")
		return
	}

	if pkt.Mode == radio.TXModeOnGPS {
		if !p.GW.TimeRef.Valid(time.Now()) {
			p.sendTxAck(token[:], semtech.TxAckGPSUnlocked, "")
			p.GW.Downstream.AddResponse(len(body), false, "GPS_UNLOCKED")
			return
		}
		ms, ok, _ := semtech.TmmsRequested(wire.Txpk)
		if ok {
			gpsTime := gpsEpoch.Add(time.Duration(ms) * time.Millisecond)
			if xf, stable := p.GW.Xtal.Correction(); stable {
				if c, ok := p.GW.TimeRef.GPSToCount(gpsTime, xf); ok {
					pkt.TargetCountUS = c
					pkt.Mode = radio.TXModeTimestamped
				}
			}
		}
	}

	if !p.checkFrequency(pkt) {
		p.sendTxAck(token[:], semtech.TxAckTxFreq, "")
		p.GW.Downstream.AddResponse(len(body), false, "TX_FREQ")
		return
	}

	warnPower, chosen := p.resolvePower(pkt)
	pkt.PowerDBm = chosen

	q, ok := p.GW.Chain(pkt.RFChain)
	if !ok {
		p.sendTxAck(token[:], semtech.TxAckTxFreq, "rf chain not configured for TX")
		p.GW.Downstream.AddResponse(len(body), false, "TX_FREQ")
		return
	}

	var now counter.Counter
	p.GW.WithRadio(func(hal radio.HAL) error {
		c, err := hal.GetInstCnt()
		now = c
		return err
	})

	result := q.Enqueue(now, pkt, jit.DownlinkA)
	if result != jit.OK {
		rejectToken, ok := semtech.TokenForRejection(result)
		if ok {
			p.sendTxAck(token[:], rejectToken, "")
		}
		p.GW.Downstream.AddResponse(len(body), false, rejectToken)
		return
	}

	if warnPower {
		p.sendTxAckWarn(token[:], semtech.TxAckTxPowerWarn, chosen)
	} else {
		p.sendTxAck(token[:], semtech.TxAckNone, "")
	}
	p.GW.Downstream.AddResponse(len(body), true, "")
}

func (p *Pipeline) checkFrequency(pkt radio.TXPacket) bool {
	for _, r := range p.GW.Config.SX130x.Radios {
		if !r.TxEnable {
			continue
		}
		if r.TxFreqMin == 0 && r.TxFreqMax == 0 {
			return true // not configured, no range restriction
		}
		if pkt.FreqHz >= r.TxFreqMin && pkt.FreqHz <= r.TxFreqMax {
			return true
		}
	}
	return len(p.GW.Config.SX130x.Radios) == 0 // simulator default: permissive
}

// resolvePower finds the largest gain-LUT entry whose rf_power does not
// exceed the requested power (spec.md §4.3 step 7), returning whether the
// match was inexact (a TX_POWER warning is owed) and the chosen value.
func (p *Pipeline) resolvePower(pkt radio.TXPacket) (warn bool, chosen int8) {
	var lut []config.GainLUTEntry
	for _, r := range p.GW.Config.SX130x.Radios {
		if r.TxEnable && len(r.TxGainLUT) > 0 {
			lut = r.TxGainLUT
			break
		}
	}
	if len(lut) == 0 {
		return false, pkt.PowerDBm
	}
	best := lut[0].RFPower
	found := false
	exact := false
	for _, e := range lut {
		if e.RFPower <= pkt.PowerDBm && (!found || e.RFPower > best) {
			best = e.RFPower
			found = true
		}
		if e.RFPower == pkt.PowerDBm {
			exact = true
		}
	}
	return !exact, best
}

func (p *Pipeline) refillBeacons() {
	if p.GW.Beacon == nil {
		return
	}
	var gpsNow uint32
	if snap, ok := p.GW.TimeRef.Snapshot(); ok {
		elapsed := time.Since(snap.SysTime)
		gpsNow = uint32(snap.GPSTime.Add(elapsed).Sub(gpsEpoch) / time.Second)
	}
	added := p.GW.Beacon.Refill(gpsNow)
	for _, sec := range added {
		p.enqueueBeacon(sec)
	}
}

func (p *Pipeline) enqueueBeacon(gpsSeconds uint32) {
	cfg := p.GW.Config.Gateway.Beacon
	_, freqHz := beacon.Channel(gpsSeconds, cfg.Period, cfg.FreqNb, cfg.FreqStep, cfg.FreqHz)

	lat, lon, haveLoc := p.GW.TimeRef.Location()
	payload, err := beacon.BuildPayload(cfg.DataRate, gpsSeconds, haveLoc, lat, lon)
	if err != nil {
		log.Printf("downstream: build beacon payload: %v", err)
		p.GW.Downstream.AddBeacon(false, false, true)
		return
	}

	gpsTime := gpsEpoch.Add(time.Duration(gpsSeconds) * time.Second)
	xf, stable := p.GW.Xtal.Correction()
	if !stable {
		xf = 1.0
	}
	target, ok := p.GW.TimeRef.GPSToCount(gpsTime, xf)
	if !ok {
		p.GW.Downstream.AddBeacon(false, false, true)
		return
	}

	pkt := radio.TXPacket{
		Mode:          radio.TXModeTimestamped,
		TargetCountUS: target,
		FreqHz:        freqHz,
		PowerDBm:      cfg.Power,
		Modulation:    radio.ModulationLoRa,
		Bandwidth:     radio.Bandwidth125kHz,
		DataRate:      cfg.DataRate,
		CodeRate:      radio.CodeRate4_5,
		PreambleLen:   radio.StdLoraPreamble,
		Payload:       payload,
	}

	for chain, q := range p.GW.JIT {
		var now counter.Counter
		p.GW.WithRadio(func(hal radio.HAL) error {
			c, err := hal.GetInstCnt()
			now = c
			return err
		})
		pkt.RFChain = chain
		if q.Enqueue(now, pkt, jit.Beacon) == jit.OK {
			p.GW.Downstream.AddBeacon(true, false, false)
		} else {
			p.GW.Downstream.AddBeacon(false, false, true)
		}
		p.GW.Beacon.PopDispatched(gpsSeconds)
		return
	}
}

func (p *Pipeline) sendTxAck(token []byte, errToken, text string) {
	body := semtech.NewTxAckBody(errToken, text)
	if errToken == semtech.TxAckNone {
		body = semtech.TxAckBody{}
	}
	p.writeTxAck(token, body)
}

func (p *Pipeline) sendTxAckWarn(token []byte, warnToken string, value int8) {
	p.writeTxAck(token, semtech.NewTxAckWarnBody(warnToken, value))
}

func (p *Pipeline) writeTxAck(token []byte, body semtech.TxAckBody) {
	var tok [2]byte
	copy(tok[:], token)
	header := semtech.Header{
		Version:   semtech.ProtocolVersion,
		Token:     tok,
		Type:      semtech.TxAck,
		GatewayID: p.GatewayID,
	}
	data := header.Encode()
	if d := body.TxpkAck; d.Error != "" || d.Warn != "" {
		encoded, err := body.MarshalJSON()
		if err != nil {
			log.Printf("downstream: marshal tx_ack: %v", err)
			return
		}
		data = append(data, encoded...)
	}
	if _, err := p.Conn.Write(data); err != nil {
		log.Printf("downstream: write tx_ack: %v", err)
	}
}

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)
