package frame

import (
	"bytes"
	"testing"
)

func sampleWaveform() Waveform {
	return Waveform{
		Timestamp:     123456789,
		Channel:       3,
		SamplesNumber: 4,
		GatesNumber:   2,
		Samples:       []uint16{10, 20, 30, 40},
		Gates:         []byte{1, 1, 0, 0, 2, 2, 2, 2},
	}
}

func TestEncodeDecodeWaveformRoundTrip(t *testing.T) {
	w := sampleWaveform()
	buf := EncodeWaveform(nil, w)

	got, next, err := DecodeWaveform(buf, 0)
	if err != nil {
		t.Fatalf("DecodeWaveform: %v", err)
	}
	if next != len(buf) {
		t.Errorf("next = %d, want %d", next, len(buf))
	}
	if got.Timestamp != w.Timestamp || got.Channel != w.Channel ||
		got.SamplesNumber != w.SamplesNumber || got.GatesNumber != w.GatesNumber {
		t.Errorf("header mismatch: got %+v, want %+v", got, w)
	}
	for i, s := range w.Samples {
		if got.Samples[i] != s {
			t.Errorf("sample %d = %d, want %d", i, got.Samples[i], s)
		}
	}
	if !bytes.Equal(got.Gates, w.Gates) {
		t.Errorf("gates = %v, want %v", got.Gates, w.Gates)
	}
}

// TestDecodeThenEncodeIsByteExact is property P1: decoding a buffer and
// re-encoding the decoded frame reproduces the original bytes exactly.
func TestDecodeThenEncodeIsByteExact(t *testing.T) {
	w1 := sampleWaveform()
	w2 := Waveform{Timestamp: 2, Channel: 1, SamplesNumber: 3, GatesNumber: 0,
		Samples: []uint16{1, 2, 3}, Gates: []byte{}}

	var buf []byte
	buf = EncodeWaveform(buf, w1)
	buf = EncodeWaveform(buf, w2)

	// Truncate the trailing frame by a few bytes to simulate a partial message.
	truncated := buf[:len(buf)-3]

	decoded := DecodeAllWaveforms(truncated)
	if len(decoded) != 1 {
		t.Fatalf("DecodeAllWaveforms returned %d frames, want 1", len(decoded))
	}

	reencoded := EncodeWaveform(nil, decoded[0])
	prefix := buf[:len(reencoded)]
	if !bytes.Equal(reencoded, prefix) {
		t.Errorf("re-encoded frame does not match original prefix:\ngot  %v\nwant %v", reencoded, prefix)
	}
}

func TestDecodeWaveformTruncatedHeader(t *testing.T) {
	buf := make([]byte, 10)
	if _, _, err := DecodeWaveform(buf, 0); err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeWaveformTruncatedPayload(t *testing.T) {
	w := sampleWaveform()
	buf := EncodeWaveform(nil, w)
	short := buf[:len(buf)-1]
	if _, _, err := DecodeWaveform(short, 0); err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	e := Event{Timestamp: 9999, Qshort: 100, Qlong: 200, BaselineOrQextra: 1000, Channel: 5, Flags: FlagPileup}
	wire := EncodeEvent(e)
	got, err := DecodeEvent(wire[:], 0)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if got != e {
		t.Errorf("got %+v, want %+v", got, e)
	}
}

func TestDecodeAllEvents(t *testing.T) {
	e1 := Event{Timestamp: 1, Qshort: 1, Qlong: 1, BaselineOrQextra: 1, Channel: 0, Flags: 0}
	e2 := Event{Timestamp: 2, Qshort: 2, Qlong: 2, BaselineOrQextra: 2, Channel: 1, Flags: FlagPileup}

	var buf []byte
	w1 := EncodeEvent(e1)
	w2 := EncodeEvent(e2)
	buf = append(buf, w1[:]...)
	buf = append(buf, w2[:]...)

	got := DecodeAllEvents(buf)
	if len(got) != 2 || got[0] != e1 || got[1] != e2 {
		t.Errorf("DecodeAllEvents = %+v, want [%+v %+v]", got, e1, e2)
	}
}

func TestTopicFor(t *testing.T) {
	if got, want := TopicFor(KindWaveforms, 42), "data_abcd_waveforms_v0_s42"; got != want {
		t.Errorf("TopicFor(waveforms,42) = %q, want %q", got, want)
	}
	if got, want := TopicFor(KindEvents, 16), "data_abcd_events_v0_s16"; got != want {
		t.Errorf("TopicFor(events,16) = %q, want %q", got, want)
	}
}
