package otp

// crcResidual es el valor de CRC16 sobre un bloque yubikey íntegro
// (datos + complemento a uno del CRC, little-endian).
const crcResidual = 0xf0b8

// CRC16 calcula el CRC-16 ISO 13239 (polinomio reflejado 0x8408, init 0xffff).
func CRC16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			n := crc & 1
			crc >>= 1
			if n != 0 {
				crc ^= 0x8408
			}
		}
	}
	return crc
}
