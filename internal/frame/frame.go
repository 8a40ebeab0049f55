// Package frame implements the binary wire formats shared by every ABCD
// worker: waveform frames (raw digitizer samples plus per-sample gate
// lanes) and event frames (per-pulse feature records). Both are
// little-endian, unpadded, and self-delimiting by header fields, so a
// message is simply a concatenation of frames with no outer length
// prefix.
package frame

import (
	"encoding/binary"
	"fmt"
)

// WaveformHeaderSize is the fixed-size prefix of every waveform frame:
// timestamp(8) + channel(1) + samples_number(4) + gates_number(1).
const WaveformHeaderSize = 14

// EventSize is the fixed size of one event record on the wire.
const EventSize = 16

// ErrTruncated is returned when a frame declares more data than the
// remaining buffer holds.
var ErrTruncated = fmt.Errorf("frame: truncated")

// Waveform is a single decoded waveform frame. Samples is a freshly
// decoded copy; Gates is a slice into the original buffer, so callers
// must not retain it past the buffer's lifetime if the buffer is reused.
type Waveform struct {
	Timestamp       uint64
	Channel         uint8
	SamplesNumber   uint32
	GatesNumber     uint8
	Samples         []uint16
	Gates           []byte // GatesNumber lanes of SamplesNumber bytes each, concatenated
}

// Event is a single decoded event record.
type Event struct {
	Timestamp        uint64
	Qshort           uint16
	Qlong            uint16
	BaselineOrQextra uint16
	Channel          uint8
	Flags            uint8
}

// Pileup bit within Event.Flags.
const FlagPileup uint8 = 1 << 0

// DecodeWaveform decodes a single waveform frame starting at offset.
// It returns the decoded frame and the offset of the byte following it.
// It returns ErrTruncated if any declared field would read past buf.
func DecodeWaveform(buf []byte, offset int) (Waveform, int, error) {
	var w Waveform
	if offset < 0 || offset+WaveformHeaderSize > len(buf) {
		return w, offset, ErrTruncated
	}

	w.Timestamp = binary.LittleEndian.Uint64(buf[offset : offset+8])
	w.Channel = buf[offset+8]
	w.SamplesNumber = binary.LittleEndian.Uint32(buf[offset+9 : offset+13])
	w.GatesNumber = buf[offset+13]

	samplesBytes := int(w.SamplesNumber) * 2
	gatesBytes := int(w.GatesNumber) * int(w.SamplesNumber)
	next := offset + WaveformHeaderSize + samplesBytes + gatesBytes
	if next > len(buf) || next < 0 {
		return w, offset, ErrTruncated
	}

	samples := make([]uint16, w.SamplesNumber)
	base := offset + WaveformHeaderSize
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(buf[base+2*i : base+2*i+2])
	}
	w.Samples = samples
	w.Gates = buf[base+samplesBytes : base+samplesBytes+gatesBytes]

	return w, next, nil
}

// EncodeWaveform appends the wire encoding of w to dst and returns the
// result, encoding exactly WaveformHeaderSize + 2*len(Samples) +
// len(Gates) bytes.
func EncodeWaveform(dst []byte, w Waveform) []byte {
	var hdr [WaveformHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], w.Timestamp)
	hdr[8] = w.Channel
	binary.LittleEndian.PutUint32(hdr[9:13], w.SamplesNumber)
	hdr[13] = w.GatesNumber
	dst = append(dst, hdr[:]...)

	for _, s := range w.Samples {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], s)
		dst = append(dst, b[:]...)
	}
	dst = append(dst, w.Gates...)
	return dst
}

// DecodeAllWaveforms decodes every fully-present waveform frame in buf,
// in order, silently stopping at the first truncated trailing frame
// (global invariant: truncated tails never corrupt already-decoded
// frames).
func DecodeAllWaveforms(buf []byte) []Waveform {
	var out []Waveform
	offset := 0
	for offset+WaveformHeaderSize <= len(buf) {
		w, next, err := DecodeWaveform(buf, offset)
		if err != nil {
			break
		}
		out = append(out, w)
		offset = next
	}
	return out
}

// DecodeEvent decodes a single fixed-size event record at offset.
func DecodeEvent(buf []byte, offset int) (Event, error) {
	var e Event
	if offset < 0 || offset+EventSize > len(buf) {
		return e, ErrTruncated
	}
	e.Timestamp = binary.LittleEndian.Uint64(buf[offset : offset+8])
	e.Qshort = binary.LittleEndian.Uint16(buf[offset+8 : offset+10])
	e.Qlong = binary.LittleEndian.Uint16(buf[offset+10 : offset+12])
	e.BaselineOrQextra = binary.LittleEndian.Uint16(buf[offset+12 : offset+14])
	e.Channel = buf[offset+14]
	e.Flags = buf[offset+15]
	return e, nil
}

// EncodeEvent returns the 16-byte wire encoding of e.
func EncodeEvent(e Event) [EventSize]byte {
	var b [EventSize]byte
	binary.LittleEndian.PutUint64(b[0:8], e.Timestamp)
	binary.LittleEndian.PutUint16(b[8:10], e.Qshort)
	binary.LittleEndian.PutUint16(b[10:12], e.Qlong)
	binary.LittleEndian.PutUint16(b[12:14], e.BaselineOrQextra)
	b[14] = e.Channel
	b[15] = e.Flags
	return b
}

// DecodeAllEvents decodes every fully-present event record in buf.
func DecodeAllEvents(buf []byte) []Event {
	var out []Event
	offset := 0
	for offset+EventSize <= len(buf) {
		e, err := DecodeEvent(buf, offset)
		if err != nil {
			break
		}
		out = append(out, e)
		offset += EventSize
	}
	return out
}

// Kind names the two binary payload kinds carried on the data topic.
type Kind int

const (
	KindWaveforms Kind = iota
	KindEvents
)

// TopicFor builds the `data_abcd_<kind>_v0_s<N>` topic string for a
// payload of exactly byteSize bytes.
func TopicFor(kind Kind, byteSize int) string {
	switch kind {
	case KindWaveforms:
		return fmt.Sprintf("data_abcd_waveforms_v0_s%d", byteSize)
	case KindEvents:
		return fmt.Sprintf("data_abcd_events_v0_s%d", byteSize)
	default:
		panic("frame: unknown Kind")
	}
}
