package archive

import (
	"encoding/binary"
	"fmt"
)

// Layout, little-endian throughout:
//
//	fixed header   24 bytes
//	record * N     24-byte record header + body
//	trailer        12 bytes; the checksum covers every byte before it
const (
	formatVersion uint16 = 1

	fixedHeaderSize  = 24
	recordHeaderSize = 24
	trailerSize      = 12

	recordMarker  uint16 = 0x4D52 // "RM"
	trailerMarker uint16 = 0x4E45 // "EN"

	recordFlagSourceMap uint16 = 1 << 0
)

var magic = [8]byte{'E', 'D', 'G', 'E', 'Z', 'I', 'P', 0x1a}

type fixedHeader struct {
	Magic       [8]byte
	Version     uint16
	Flags       uint16
	HeaderSize  uint32
	ModuleCount uint32
	Reserved    uint32
}

type recordHeader struct {
	Marker       uint16
	Flags        uint16
	SpecLen      uint32
	HeadersLen   uint32
	ContentLen   uint32
	SourceMapLen uint32
	Reserved     uint32
}

type trailer struct {
	Marker   uint16
	Reserved uint16
	Checksum uint64
}

func (h fixedHeader) encode() []byte {
	buf := make([]byte, fixedHeaderSize)
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.ModuleCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.Reserved)
	return buf
}

func decodeFixedHeader(buf []byte) fixedHeader {
	var h fixedHeader
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	h.Flags = binary.LittleEndian.Uint16(buf[10:12])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[12:16])
	h.ModuleCount = binary.LittleEndian.Uint32(buf[16:20])
	h.Reserved = binary.LittleEndian.Uint32(buf[20:24])
	return h
}

func (h recordHeader) encode() []byte {
	buf := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.Marker)
	binary.LittleEndian.PutUint16(buf[2:4], h.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], h.SpecLen)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeadersLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.ContentLen)
	binary.LittleEndian.PutUint32(buf[16:20], h.SourceMapLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.Reserved)
	return buf
}

func decodeRecordHeader(buf []byte) recordHeader {
	return recordHeader{
		Marker:       binary.LittleEndian.Uint16(buf[0:2]),
		Flags:        binary.LittleEndian.Uint16(buf[2:4]),
		SpecLen:      binary.LittleEndian.Uint32(buf[4:8]),
		HeadersLen:   binary.LittleEndian.Uint32(buf[8:12]),
		ContentLen:   binary.LittleEndian.Uint32(buf[12:16]),
		SourceMapLen: binary.LittleEndian.Uint32(buf[16:20]),
		Reserved:     binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// bodyLen is the number of bytes following the record header.
func (h recordHeader) bodyLen() int {
	return int(h.SpecLen) + int(h.HeadersLen) + int(h.ContentLen) + int(h.SourceMapLen)
}

func (t trailer) encode() []byte {
	buf := make([]byte, trailerSize)
	binary.LittleEndian.PutUint16(buf[0:2], t.Marker)
	binary.LittleEndian.PutUint16(buf[2:4], t.Reserved)
	binary.LittleEndian.PutUint64(buf[4:12], t.Checksum)
	return buf
}

func decodeTrailer(buf []byte) trailer {
	return trailer{
		Marker:   binary.LittleEndian.Uint16(buf[0:2]),
		Reserved: binary.LittleEndian.Uint16(buf[2:4]),
		Checksum: binary.LittleEndian.Uint64(buf[4:12]),
	}
}

func validateFixedHeader(h fixedHeader, lim Limits) error {
	if h.Magic != magic {
		return fmt.Errorf("%w: invalid magic", ErrCorruptArchive)
	}
	if h.Version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptArchive, h.Version)
	}
	if h.Flags != 0 || h.Reserved != 0 {
		return fmt.Errorf("%w: reserved header fields must be 0", ErrCorruptArchive)
	}
	if h.HeaderSize != fixedHeaderSize {
		return fmt.Errorf("%w: header size %d", ErrCorruptArchive, h.HeaderSize)
	}
	if int64(h.ModuleCount) > int64(lim.MaxModules) {
		return fmt.Errorf("%w: %d modules exceeds limit %d", ErrCorruptArchive, h.ModuleCount, lim.MaxModules)
	}
	return nil
}

func validateRecordHeader(h recordHeader, lim Limits) error {
	if h.Marker != recordMarker {
		return fmt.Errorf("%w: bad record marker 0x%04x", ErrCorruptArchive, h.Marker)
	}
	if h.Reserved != 0 || h.Flags&^recordFlagSourceMap != 0 {
		return fmt.Errorf("%w: reserved record fields must be 0", ErrCorruptArchive)
	}
	if (h.Flags&recordFlagSourceMap != 0) != (h.SourceMapLen > 0) {
		return fmt.Errorf("%w: source map flag disagrees with length %d", ErrCorruptArchive, h.SourceMapLen)
	}
	switch {
	case h.SpecLen == 0:
		return fmt.Errorf("%w: empty specifier", ErrCorruptArchive)
	case h.SpecLen > lim.MaxSpecifierLen:
		return fmt.Errorf("%w: specifier length %d exceeds limit", ErrCorruptArchive, h.SpecLen)
	case h.HeadersLen > lim.MaxHeadersLen:
		return fmt.Errorf("%w: headers length %d exceeds limit", ErrCorruptArchive, h.HeadersLen)
	case h.ContentLen > lim.MaxContentLen:
		return fmt.Errorf("%w: content length %d exceeds limit", ErrCorruptArchive, h.ContentLen)
	case h.SourceMapLen > lim.MaxSourceMapLen:
		return fmt.Errorf("%w: source map length %d exceeds limit", ErrCorruptArchive, h.SourceMapLen)
	}
	return nil
}

func encodeHeaders(hs []Header) []byte {
	n := 0
	for _, h := range hs {
		n += 8 + len(h.Key) + len(h.Value)
	}
	buf := make([]byte, 0, n)
	for _, h := range hs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.Key)))
		buf = append(buf, h.Key...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.Value)))
		buf = append(buf, h.Value...)
	}
	return buf
}

func decodeHeaders(buf []byte) ([]Header, error) {
	var hs []Header
	for len(buf) > 0 {
		key, rest, err := readLenPrefixed(buf)
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("%w: empty header key", ErrCorruptArchive)
		}
		val, rest, err := readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		hs = append(hs, Header{Key: string(key), Value: string(val)})
		buf = rest
	}
	return hs, nil
}

func readLenPrefixed(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated header entry", ErrCorruptArchive)
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return nil, nil, fmt.Errorf("%w: header entry length %d overruns block", ErrCorruptArchive, n)
	}
	return buf[:n], buf[n:], nil
}
