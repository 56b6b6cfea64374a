package semtech

// CRC16 computes CRC-16/CCITT-XMODEM: polynomial 0x1021, initial value
// 0x0000, no input/output reflection, no final XOR. Used both as a
// protocol self-test vector (spec.md §8: "123456789" -> 0x31C3) and inside
// beacon payload construction (spec.md §4.4).
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
