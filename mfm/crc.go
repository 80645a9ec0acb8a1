package mfm

// CRC seeds after the three A1 sync bytes of a marker.
const (
	crcAfterSync  = 0xcdb4 // CRC of A1 A1 A1
	crcAfterIDAM  = 0xb230 // CRC of A1 A1 A1 FE
	crcPolynomial = 0x1021
)

// crc16CCITTByte adds one byte to a CRC-16-CCITT checksum, MSB first.
func crc16CCITTByte(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ crcPolynomial
		} else {
			crc <<= 1
		}
	}
	return crc
}

func crc16CCITT(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc16CCITTByte(crc, b)
	}
	return crc
}
