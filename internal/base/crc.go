package base

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli CRC32 checksum of data, the variant used
// throughout the on-disk format (block trailers, log records, the manifest).
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// MaskCRC transforms a raw CRC so that it is unlikely to be equal to the CRC
// of in-flight data that contains an embedded CRC of its own (the classic
// LevelDB masking trick): ((crc >> 15) | (crc << 17)) + 0xa282ead8.
func MaskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// UnmaskCRC reverses MaskCRC.
func UnmaskCRC(masked uint32) uint32 {
	rot := masked - 0xa282ead8
	return (rot << 15) | (rot >> 17)
}
