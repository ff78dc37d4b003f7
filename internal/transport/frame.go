package transport

import (
	"bytes"
	"encoding/binary"
)

// BuildLengthPrefixedFrame writes [type byte][uint32 BE total length][payload]
// into buf, where the length field counts the whole frame (type + length
// field + payload + one trailing checksum byte), matching the layout C7's
// checksummed messages use on the wire. The checksum byte itself is not
// written: callers append it themselves once buf.Bytes() is final.
func BuildLengthPrefixedFrame(buf *bytes.Buffer, msgType byte, payload []byte) {
	totalLen := 1 + 4 + len(payload)
	buf.Grow(totalLen)
	buf.WriteByte(msgType)
	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(totalLen)+1) // +1 for the checksum byte
	buf.Write(lenField[:])
	buf.Write(payload)
}

// ChecksumByte returns the byte that makes the sum of data (mod 256) equal to
// zero, i.e. the two's-complement negation of the byte sum.
func ChecksumByte(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return -sum
}
