// Package wire implements the length-framed binary transport described in
// SPEC_FULL.md §6: a fixed little-endian header wrapping an opaque body.
// Decoding the body into a concrete request/response variant is the
// out-of-scope wire codec mentioned in §1; this package only knows how to
// split the stream into frames and put them back together.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/riftkeep/outpostd/server/geom"
)

// MaxBodyLen bounds a single frame's body to guard against a corrupt or
// hostile length prefix forcing an unbounded allocation. It is also the
// largest value the u16 body_len header field can carry.
const MaxBodyLen = 0xFFFF

// ErrFrameTooLarge is returned by WriteFrame when a frame's body_len would
// exceed MaxBodyLen.
var ErrFrameTooLarge = errors.New("wire: frame body exceeds MaxBodyLen")

// ErrShortBody is returned when body_len is less than 2 (too small to
// hold the opcode field).
var ErrShortBody = errors.New("wire: frame body shorter than opcode field")

// Frame is one decoded wire message: WireId 0 carries the framing-level
// control messages (AddClient, RemoveClient, Shutdown, Restart); any
// other WireId carries a per-client message identified by Opcode, whose
// high bit encodes direction (client->server vs server->client).
type Frame struct {
	Wire   geom.WireId
	Opcode uint16
	Body   []byte
}

// OpcodeDirectionBit is the high bit of Opcode distinguishing inbound
// requests from outbound responses sharing the same opcode table.
const OpcodeDirectionBit = uint16(1) << 15

// Inbound reports whether this frame's opcode is a client->server
// request (direction bit clear).
func (f Frame) Inbound() bool { return f.Opcode&OpcodeDirectionBit == 0 }

// ReadFrame reads one length-framed message: WireId:u16, body_len:u16,
// opcode:u16, body[body_len-2], all little-endian.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	wireID := geom.WireId(binary.LittleEndian.Uint16(header[0:2]))
	bodyLen := binary.LittleEndian.Uint16(header[2:4])
	if bodyLen < 2 {
		return Frame{}, ErrShortBody
	}
	if int(bodyLen) > MaxBodyLen {
		return Frame{}, ErrFrameTooLarge
	}
	rest := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, err
	}
	return Frame{
		Wire:   wireID,
		Opcode: binary.LittleEndian.Uint16(rest[0:2]),
		Body:   rest[2:],
	}, nil
}

// WriteFrame writes f in the wire format described by ReadFrame.
func WriteFrame(w io.Writer, f Frame) error {
	bodyLen := 2 + len(f.Body)
	if bodyLen > MaxBodyLen {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.LittleEndian.PutUint16(header[0:2], uint16(f.Wire))
	binary.LittleEndian.PutUint16(header[2:4], uint16(bodyLen))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	var opcodeBuf [2]byte
	binary.LittleEndian.PutUint16(opcodeBuf[:], f.Opcode)
	if _, err := w.Write(opcodeBuf[:]); err != nil {
		return err
	}
	if len(f.Body) == 0 {
		return nil
	}
	_, err := w.Write(f.Body)
	return err
}

// Decoder runs on its own goroutine (the "input decoder thread" of §5),
// reading frames from r and pushing them into Frames() until r returns an
// error (typically io.EOF on stream close).
type Decoder struct {
	r      *bufio.Reader
	frames chan Frame
	errs   chan error
}

// NewDecoder wraps r and starts the decode goroutine immediately.
func NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{
		r:      bufio.NewReader(r),
		frames: make(chan Frame, 64),
		errs:   make(chan error, 1),
	}
	go d.run()
	return d
}

func (d *Decoder) run() {
	defer close(d.frames)
	for {
		f, err := ReadFrame(d.r)
		if err != nil {
			d.errs <- err
			return
		}
		d.frames <- f
	}
}

// Frames returns the channel of successfully decoded frames, closed when
// decoding stops (on error or EOF); the terminal error is then available
// from Err().
func (d *Decoder) Frames() <-chan Frame { return d.frames }

// Err returns the error that stopped decoding, once Frames() has closed.
// Blocks until that happens if called early.
func (d *Decoder) Err() error { return <-d.errs }

// Encoder runs on its own goroutine (the "output encoder thread" of §5),
// writing every Frame sent to Enqueue to w in arrival order.
type Encoder struct {
	w     *bufio.Writer
	out   chan Frame
	done  chan struct{}
	errFn func(error)
}

// NewEncoder wraps w and starts the encode goroutine immediately. errFn,
// if non-nil, is called from the encoder goroutine on the first write
// failure, after which the encoder drains (but discards) further frames
// until Close is called.
func NewEncoder(w io.Writer, errFn func(error)) *Encoder {
	e := &Encoder{
		w:     bufio.NewWriter(w),
		out:   make(chan Frame, 256),
		done:  make(chan struct{}),
		errFn: errFn,
	}
	go e.run()
	return e
}

func (e *Encoder) run() {
	defer close(e.done)
	failed := false
	for f := range e.out {
		if failed {
			continue
		}
		if err := WriteFrame(e.w, f); err != nil {
			failed = true
			if e.errFn != nil {
				e.errFn(err)
			}
			continue
		}
		if err := e.w.Flush(); err != nil {
			failed = true
			if e.errFn != nil {
				e.errFn(err)
			}
		}
	}
}

// Enqueue queues f for writing. Safe to call from any goroutine.
func (e *Encoder) Enqueue(f Frame) { e.out <- f }

// Close stops accepting new frames and waits for the goroutine to drain
// and exit.
func (e *Encoder) Close() {
	close(e.out)
	<-e.done
}
