package radio

import "testing"

// TestLoraTimeOnAirNonZero checks the end-to-end upstream scenario from
// spec.md §8 is internally consistent: an SF7/BW125/4-5 2-byte frame has a
// short, non-zero airtime.
func TestLoraTimeOnAirNonZero(t *testing.T) {
	pkt := TXPacket{
		Modulation: ModulationLoRa,
		Bandwidth:  Bandwidth125kHz,
		DataRate:   7,
		CodeRate:   CodeRate4_5,
		Payload:    []byte{0xAA, 0xBB},
	}
	toa := TimeOnAir(pkt)
	if toa == 0 {
		t.Fatalf("expected non-zero time on air")
	}
	if toa > 100_000 {
		t.Fatalf("airtime implausibly large: %d us", toa)
	}
}

func TestLoraTimeOnAirGrowsWithSF(t *testing.T) {
	base := TXPacket{
		Modulation: ModulationLoRa,
		Bandwidth:  Bandwidth125kHz,
		CodeRate:   CodeRate4_5,
		Payload:    []byte{0x01, 0x02, 0x03},
	}
	sf7 := base
	sf7.DataRate = 7
	sf12 := base
	sf12.DataRate = 12

	if TimeOnAir(sf12) <= TimeOnAir(sf7) {
		t.Fatalf("expected SF12 airtime (%d) > SF7 airtime (%d)", TimeOnAir(sf12), TimeOnAir(sf7))
	}
}

func TestFskTimeOnAir(t *testing.T) {
	pkt := TXPacket{
		Modulation: ModulationFSK,
		DataRate:   50000,
		Payload:    make([]byte, 16),
	}
	toa := TimeOnAir(pkt)
	if toa == 0 {
		t.Fatalf("expected non-zero FSK airtime")
	}
}

func TestUndefinedModulationZeroToa(t *testing.T) {
	if got := TimeOnAir(TXPacket{}); got != 0 {
		t.Fatalf("expected 0 for undefined modulation, got %d", got)
	}
}
