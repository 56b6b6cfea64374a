// Package upstream implements the U activity (spec.md §4.2): poll the
// radio for received frames, serialize them as rxpk JSON inside a
// PUSH_DATA datagram, merge in a pending stat report, and await PUSH_ACK.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/agsys/packetfwd/internal/semtech"
)

// Policy selects which CRC outcomes are forwarded upstream, matching the
// gateway_conf forward_crc_* flags.
type Policy struct {
	ForwardValid    bool
	ForwardError    bool
	ForwardDisabled bool
}

func (p Policy) admits(status radio.CRCStatus) bool {
	switch status {
	case radio.CRCOK:
		return p.ForwardValid
	case radio.CRCBad:
		return p.ForwardError
	default:
		return p.ForwardDisabled
	}
}

const (
	nbPktMax      = 8
	fetchSleep    = 100 * time.Millisecond
	pushTimeoutMS = 100
)

// Pipeline runs the upstream activity against a single UDP connection to
// the server.
type Pipeline struct {
	GW        *gateway.Context
	Conn      *net.UDPConn
	GatewayID [8]byte
	Policy    Policy
}

// Run loops until ctx (ExitDone/QuitDone) fires. On a radio.Receive error
// it returns, matching spec.md §7's fatal-error classification: the
// caller is expected to terminate the process.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkts, err := p.fetch()
		if err != nil {
			return fmt.Errorf("upstream: receive: %w", err)
		}

		admitted := p.filter(pkts)
		report, haveReport := p.GW.Reports.Consume()

		if len(admitted) == 0 && !haveReport {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchSleep):
			}
			continue
		}

		if err := p.sendDatagram(admitted, report); err != nil {
			log.Printf("upstream: send datagram: %v", err)
		}
	}
}

func (p *Pipeline) fetch() ([]radio.RXPacket, error) {
	var pkts []radio.RXPacket
	err := p.GW.WithRadio(func(hal radio.HAL) error {
		var err error
		pkts, err = hal.Receive(nbPktMax)
		return err
	})
	return pkts, err
}

func (p *Pipeline) filter(pkts []radio.RXPacket) []radio.RXPacket {
	out := make([]radio.RXPacket, 0, len(pkts))
	for _, pkt := range pkts {
		p.GW.Upstream.AddReceived(pkt.CRCStatus == radio.CRCOK, pkt.CRCStatus == radio.CRCBad)
		if p.Policy.admits(pkt.CRCStatus) {
			out = append(out, pkt)
			p.GW.Upstream.AddForwarded(len(pkt.Payload))
		}
	}
	return out
}

// buildRXPK converts one received frame into the wire RXPK shape,
// attaching UTC/GPS times only while the time reference is valid.
func (p *Pipeline) buildRXPK(pkt radio.RXPacket) semtech.RXPK {
	out := semtech.RXPK{
		Tmst:       uint32(pkt.CountUS),
		Chan:       pkt.IFChain,
		RFChain:    pkt.RFChain,
		FreqHz:     pkt.FreqHz,
		Modu:       pkt.Modulation.String(),
		Codr:       pkt.CodeRate.String(),
		RSSIChan:   pkt.RSSIChan,
		RSSISignal: pkt.RSSISignal,
		SNR:        pkt.SNR,
		FreqOffset: pkt.FreqOffsetHz,
		Payload:    pkt.Payload,
	}
	switch pkt.CRCStatus {
	case radio.CRCOK:
		out.Stat = 1
	case radio.CRCBad:
		out.Stat = -1
	}
	if pkt.Modulation == radio.ModulationLoRa {
		out.Datr = fmt.Sprintf("SF%dBW%d", pkt.DataRate, uint32(pkt.Bandwidth)/1000)
	} else {
		out.Datr = fmt.Sprintf("%d", pkt.DataRate)
	}
	if pkt.FineTimestamp != nil {
		out.FineTimestamp = *pkt.FineTimestamp
		out.HaveFineTimestamp = true
	}
	if p.GW.TimeRef.Valid(time.Now()) {
		if xf, stable := p.GW.Xtal.Correction(); stable {
			if gt, ok := p.GW.TimeRef.CountToGPS(pkt.CountUS, xf); ok {
				out.HaveGPS = true
				out.TimeISO = gt.UTC().Format("2006-01-02T15:04:05.000000Z")
				out.TmmsMS = uint64(gt.Sub(gpsEpoch).Milliseconds())
			}
		}
	}
	return out
}

// gpsEpoch is 1980-01-06T00:00:00Z, the origin spec.md §4.3's `tmms` field
// (and the wider GPS time standard) counts milliseconds from.
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

func (p *Pipeline) sendDatagram(pkts []radio.RXPacket, report []byte) error {
	var buf bytes.Buffer
	header := semtech.Header{
		Version:   semtech.ProtocolVersion,
		Token:     semtech.NewToken(),
		Type:      semtech.PushData,
		GatewayID: p.GatewayID,
	}
	buf.Write(header.Encode())

	buf.WriteByte('{')
	wroteField := false
	if len(pkts) > 0 {
		buf.WriteString(`"rxpk":[`)
		for i, pkt := range pkts {
			if i > 0 {
				buf.WriteByte(',')
			}
			rxpk := p.buildRXPK(pkt)
			rxpk.WriteJSON(&buf)
		}
		buf.WriteByte(']')
		wroteField = true
	}
	if report != nil {
		if wroteField {
			buf.WriteByte(',')
		}
		buf.WriteString(`"stat":`)
		buf.Write(report)
	}
	buf.WriteByte('}')

	if _, err := p.Conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	acked := p.awaitAck(header.TokenUint16())
	p.GW.Upstream.AddDatagram(acked)
	return nil
}

// awaitAck waits up to pushTimeoutMS/2 twice for a valid PUSH_ACK, per
// spec.md §4.2 step 7's doubled-wait rationale.
func (p *Pipeline) awaitAck(wantToken uint16) bool {
	deadline := time.Duration(pushTimeoutMS/2) * time.Millisecond
	buf := make([]byte, 128)
	for attempt := 0; attempt < 2; attempt++ {
		p.Conn.SetReadDeadline(time.Now().Add(deadline))
		n, err := p.Conn.Read(buf)
		if err != nil {
			continue
		}
		if n >= 4 && buf[0] == semtech.ProtocolVersion && buf[3] == semtech.PushAck {
			if (uint16(buf[1])<<8 | uint16(buf[2])) == wantToken {
				return true
			}
		}
	}
	return false
}
