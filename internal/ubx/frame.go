package ubx

import (
	"encoding/binary"
	"fmt"
)

// Sync bytes that open every UBX frame.
const (
	Sync1 = 0xB5
	Sync2 = 0x62
)

const (
	headerLen   = 6 // sync(2) + class + id + length(2)
	checksumLen = 2

	// DefaultMaxPayload bounds the declared length the decoder will buffer.
	DefaultMaxPayload = 1024
)

// MessageType identifies a (class, id) pair.
type MessageType struct {
	Class byte
	ID    byte
}

func (t MessageType) String() string {
	switch t {
	case TypeAlmanac:
		return "almanac"
	case TypeEphemeris:
		return "ephemeris"
	default:
		return fmt.Sprintf("0x%02X/0x%02X", t.Class, t.ID)
	}
}

var (
	TypeAlmanac   = MessageType{Class: 0x01, ID: 0x30}
	TypeEphemeris = MessageType{Class: 0x01, ID: 0x31}
)

// Checksum computes the UBX Fletcher-8 pair over data. For a frame, data is
// everything between the sync bytes and the checksum: class, id, the two
// length bytes and the payload.
func Checksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode builds a complete frame: sync, header, payload and checksum.
func Encode(t MessageType, payload []byte) []byte {
	buf := make([]byte, 0, headerLen+len(payload)+checksumLen)
	buf = append(buf, Sync1, Sync2, t.Class, t.ID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// EncodeAlmanac frames an almanac record using AlmanacLayout.
func EncodeAlmanac(rec AlmanacRecord) []byte {
	return Encode(TypeAlmanac, AlmanacLayout.Encode(&rec))
}

// EncodeEphemeris frames an ephemeris record using EphemerisLayout.
func EncodeEphemeris(rec EphemerisRecord) []byte {
	return Encode(TypeEphemeris, EphemerisLayout.Encode(&rec))
}
