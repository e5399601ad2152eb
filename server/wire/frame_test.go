package wire

import (
	"bytes"
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
)

func TestWriteReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Wire: 7, Opcode: 0x8001, Body: []byte{1, 2, 3, 4}}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Wire != want.Wire || got.Opcode != want.Opcode || !bytes.Equal(got.Body, want.Body) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Inbound() {
		t.Fatal("opcode with high bit set should report Inbound() == false")
	}
}

func TestReadFrameRejectsShortBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Wire: geom.ControlWireId}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	raw[2], raw[3] = 1, 0 // corrupt body_len to 1, below the opcode's own 2 bytes
	if _, err := ReadFrame(bytes.NewReader(raw)); err != ErrShortBody {
		t.Fatalf("ReadFrame with body_len=1: got %v, want ErrShortBody", err)
	}
}

func TestDecoderStreamsMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		{Wire: 1, Opcode: 1, Body: []byte("a")},
		{Wire: 1, Opcode: 2, Body: []byte("bb")},
		{Wire: 2, Opcode: 3, Body: nil},
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	d := NewDecoder(&buf)
	var got []Frame
	for f := range d.Frames() {
		got = append(got, f)
	}
	if len(got) != len(frames) {
		t.Fatalf("got %d frames, want %d", len(got), len(frames))
	}
	for i, f := range frames {
		if got[i].Wire != f.Wire || got[i].Opcode != f.Opcode || !bytes.Equal(got[i].Body, f.Body) {
			t.Fatalf("frame %d = %+v, want %+v", i, got[i], f)
		}
	}
}
