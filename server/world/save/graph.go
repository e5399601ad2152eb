// Package save implements the object-graph encoding used by savefiles: a
// padded little-endian binary format where cross-object references are
// written as stable ids and reconstructed on read via cycle-safe
// placeholder fabrication, so that e.g. an entity record referencing its
// owning client can be read before the client's own record is reached.
//
// The on-disk shape follows original_source/src/server/world/save (the
// Writer/Reader traits, SaveId cross-referencing, ReadId::fabricate).
// That implementation derived a fresh per-file SaveId for each object on
// first reference via a HashMap<AnyId,SaveId>; this port instead writes
// the object's own geom.StableId directly, since every persisted object
// here already carries one (assigned by StableIdMap.Pin before the graph
// is walked) — a second, file-local id namespace would just be a less
// stable copy of one that already exists.
package save

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/riftkeep/outpostd/server/geom"
)

// CurrentVersion is the binary format version prefixed to every savefile.
const CurrentVersion uint32 = 6

// ErrVersionMismatch is returned by NewReader when a savefile's version
// prefix does not match CurrentVersion. Per the persistence error
// taxonomy, the caller treats this as fatal for that one object rather
// than retrying.
var ErrVersionMismatch = errors.New("save: version prefix does not match CurrentVersion")

func padding(n int) int { return (4 - n%4) % 4 }

// Writer encodes the padded little-endian primitives the save format is
// built from. It does not buffer; wrap it around a *bufio.Writer for
// efficient small writes.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w, writing CurrentVersion as the format's leading
// 4-byte prefix.
func NewWriter(w io.Writer) (*Writer, error) {
	wr := &Writer{w: w}
	if err := wr.WriteUint32(CurrentVersion); err != nil {
		return nil, err
	}
	return wr, nil
}

func (wr *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := wr.w.Write(buf[:])
	return err
}

func (wr *Writer) WriteInt32(v int32) error { return wr.WriteUint32(uint32(v)) }

// WriteByte writes a single unpadded byte, for small tag/count fields
// that don't warrant graph.go's blob padding scheme.
func (wr *Writer) WriteByte(v byte) error {
	_, err := wr.w.Write([]byte{v})
	return err
}

func (wr *Writer) WriteUint16(v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := wr.w.Write(buf[:])
	return err
}

func (wr *Writer) WriteUint64(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := wr.w.Write(buf[:])
	return err
}

// WriteStableId writes id; geom.NoStableId (0) doubles as the "absent
// reference" sentinel, so there is no separate optional-id encoding.
func (wr *Writer) WriteStableId(id geom.StableId) error { return wr.WriteUint64(uint64(id)) }

func (wr *Writer) WriteCount(n int) error { return wr.WriteUint32(uint32(n)) }

// WriteBytes writes a length-prefixed, zero-padded-to-4-bytes byte string.
func (wr *Writer) WriteBytes(b []byte) error {
	if err := wr.WriteCount(len(b)); err != nil {
		return err
	}
	if len(b) > 0 {
		if _, err := wr.w.Write(b); err != nil {
			return err
		}
	}
	return wr.writePadding(len(b))
}

func (wr *Writer) WriteString(s string) error { return wr.WriteBytes([]byte(s)) }

func (wr *Writer) writePadding(n int) error {
	pad := padding(n)
	if pad == 0 {
		return nil
	}
	var zero [3]byte
	_, err := wr.w.Write(zero[:pad])
	return err
}

// Reader decodes the format Writer produces.
type Reader struct {
	r io.Reader
}

// NewReader wraps r, reading and checking the format's version prefix.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{r: r}
	v, err := rd.ReadUint32()
	if err != nil {
		return nil, err
	}
	if v != CurrentVersion {
		return nil, ErrVersionMismatch
	}
	return rd, nil
}

func (rd *Reader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (rd *Reader) ReadInt32() (int32, error) {
	v, err := rd.ReadUint32()
	return int32(v), err
}

// ReadByte implements io.ByteReader and reads a single unpadded byte
// written by Writer.WriteByte.
func (rd *Reader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (rd *Reader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (rd *Reader) ReadUint64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (rd *Reader) ReadStableId() (geom.StableId, error) {
	v, err := rd.ReadUint64()
	return geom.StableId(v), err
}

func (rd *Reader) ReadCount() (int, error) {
	v, err := rd.ReadUint32()
	return int(v), err
}

func (rd *Reader) ReadBytes() ([]byte, error) {
	n, err := rd.ReadCount()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n+padding(n))
	if n+padding(n) > 0 {
		if _, err := io.ReadFull(rd.r, buf); err != nil {
			return nil, err
		}
	}
	return buf[:n], nil
}

func (rd *Reader) ReadString() (string, error) {
	b, err := rd.ReadBytes()
	return string(b), err
}
