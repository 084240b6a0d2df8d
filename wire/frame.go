// Package wire implements the framed binary protocol spoken between a journal source and its sinks.
//
// A frame is a fixed 12-byte header {size int32, index int64} followed by size payload bytes when
// size is a positive length. Negative sentinel sizes carry control meaning and have no payload.
// Header fields are native-endian; only the 8-byte resume request sent by a sink is big-endian,
// so that it stays readable by sources built for either byte order. The two must not be unified
// without a protocol version bump.
package wire

import (
	"encoding/binary"
)

// HeaderSize is the fixed length in bytes of a frame header
const HeaderSize = 12

// MaxExcerptSize is the largest legal payload length; larger or negative non-sentinel sizes
// indicate a corrupted stream
const MaxExcerptSize = 128 << 20

// Sentinel size values, agreed between source and sink. They are disjoint from any legal
// payload length.
const (
	// InSyncLen is a heartbeat: the source has nothing newer to send
	InSyncLen int32 = -128

	// PaddedLen tells an indexed-journal sink to emit a block-sized padding excerpt
	PaddedLen int32 = -127

	// SyncIdxLen acknowledges a resume request; the header index carries the source's
	// authoritative reply position
	SyncIdxLen int32 = -126
)

// Resume request sentinels, in place of a concrete last-known index
const (
	// RequestFromStart asks for the stream from the very beginning
	RequestFromStart int64 = -1

	// RequestFromEnd asks for the stream from the current end
	RequestFromEnd int64 = -2
)

// Kind classifies the size field of a decoded header
type Kind int

// Frame kinds in rough order of frequency
const (
	KindData Kind = iota
	KindHeartbeat
	KindPadding
	KindSyncAck
	KindCorrupt
)

// Header is the decoded fixed frame header
type Header struct {
	Size  int32
	Index int64
}

// Kind classifies the header by its size field
func (hdr Header) Kind() Kind {
	switch hdr.Size {
	case InSyncLen:
		return KindHeartbeat
	case PaddedLen:
		return KindPadding
	case SyncIdxLen:
		return KindSyncAck
	}
	if hdr.Size < 0 || hdr.Size > MaxExcerptSize {
		return KindCorrupt
	}
	return KindData
}

// DecodeHeader decodes a frame header from the first HeaderSize bytes of b
func DecodeHeader(b []byte) Header {
	return Header{
		Size:  int32(binary.NativeEndian.Uint32(b)),
		Index: int64(binary.NativeEndian.Uint64(b[4:])),
	}
}

// EncodeHeader encodes the header into the first HeaderSize bytes of b
func EncodeHeader(b []byte, hdr Header) {
	binary.NativeEndian.PutUint32(b, uint32(hdr.Size))
	binary.NativeEndian.PutUint64(b[4:], uint64(hdr.Index))
}

// AppendHeader appends the encoded header to dst
func AppendHeader(dst []byte, hdr Header) []byte {
	var b [HeaderSize]byte
	EncodeHeader(b[:], hdr)
	return append(dst, b[:]...)
}

// EncodeResumeRequest encodes the 8-byte big-endian resume request written by a sink right
// after every (re)connect: "the last index I already have, send me strictly later records"
func EncodeResumeRequest(index int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(index))
	return b[:]
}

// DecodeResumeRequest decodes an 8-byte big-endian resume request
func DecodeResumeRequest(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
