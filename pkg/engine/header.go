package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/ssargent/slotkv/pkg/codec"
)

// HeaderSize is the fixed size, in bytes, of every collection file's
// header.
const HeaderSize = 36

// CurrentVersion is the header version this package writes for newly
// created collections.
const CurrentVersion uint16 = 1

// FormatFlags are the header's format bits.
type FormatFlags uint8

const (
	FlagEncrypted FormatFlags = 1 << iota
	FlagCompressed
)

// Header is the fixed 36-byte prefix of a collection file:
//
//	version:2 | serializer:1 | flags:1 | salt:16 | checksum:16
//
// Serializer and flags are authoritative on re-open: a caller's
// configuration is reconciled against whatever the header already says,
// not the other way around.
type Header struct {
	Version    uint16
	Serializer codec.Serializer
	Flags      FormatFlags
	Salt       [16]byte
	Checksum   [16]byte
}

// Encrypted reports whether the header's format flags mark the collection
// as encrypted.
func (h Header) Encrypted() bool {
	return h.Flags&FlagEncrypted != 0
}

// Compressed reports whether the header's format flags mark the
// collection as compressed.
func (h Header) Compressed() bool {
	return h.Flags&FlagCompressed != 0
}

// MarshalBinary renders the header to its 36-byte on-disk form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.Version)
	buf[2] = byte(h.Serializer)
	buf[3] = byte(h.Flags)
	copy(buf[4:20], h.Salt[:])
	copy(buf[20:36], h.Checksum[:])
	return buf, nil
}

// ParseHeader reads a Header from its 36-byte on-disk form.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header too short: %d bytes", ErrStorageFailure, len(buf))
	}
	var h Header
	h.Version = binary.LittleEndian.Uint16(buf[0:2])
	h.Serializer = codec.Serializer(buf[2])
	h.Flags = FormatFlags(buf[3])
	copy(h.Salt[:], buf[4:20])
	copy(h.Checksum[:], buf[20:36])
	return h, nil
}
