package save

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Store is the file-level persistence layer underneath the graph codec in
// graph.go: it frames each object's encoded bytes with a codec tag and an
// xxhash checksum, compresses them, and writes them atomically (temp file
// + rename) so a crash mid-write never corrupts the previous savefile.
//
// Small, high-churn records (clients, entities, inventories, planes,
// structures) use snappy, favouring write latency over ratio. Terrain
// chunk block arrays are large and mostly repetitive, so they use zstd
// instead, trading a little more CPU for a much smaller file.
type Store struct {
	dir Dir
	zw  *zstd.Encoder
	zr  *zstd.Decoder
}

const (
	codecSnappy byte = 1
	codecZstd   byte = 2
)

// Open returns a Store rooted at root, ready to read and write object
// files under it (see Dir's *Path methods for the exact layout).
func Open(root string) (*Store, error) {
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("save: init zstd encoder: %w", err)
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("save: init zstd decoder: %w", err)
	}
	return &Store{dir: NewDir(root), zw: zw, zr: zr}, nil
}

// Dir exposes the Store's path layout to callers building up save/load
// plans over multiple objects.
func (s *Store) Dir() Dir { return s.dir }

// Close releases the Store's zstd encoder/decoder resources.
func (s *Store) Close() {
	s.zw.Close()
	s.zr.Close()
}

// WriteGraph encodes via encode into graph.go's binary format, then
// frames and snappy-compresses the result to path.
func (s *Store) WriteGraph(path string, encode func(*Writer) error) error {
	var buf bytes.Buffer
	wr, err := NewWriter(&buf)
	if err != nil {
		return err
	}
	if err := encode(wr); err != nil {
		return err
	}
	return s.writeFramed(path, buf.Bytes(), codecSnappy)
}

// ReadGraph reads and decompresses path, then decodes its graph.go
// contents via decode. Returns an error satisfying os.IsNotExist if path
// does not exist — a missing object savefile is a normal "never
// persisted yet" outcome, not a corruption.
func (s *Store) ReadGraph(path string, decode func(*Reader) error) error {
	raw, err := s.readFramed(path)
	if err != nil {
		return err
	}
	rd, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return decode(rd)
}

// WriteTerrainChunk is WriteGraph's zstd-compressed counterpart, used for
// terrain chunk records whose block arrays dominate their size.
func (s *Store) WriteTerrainChunk(path string, encode func(*Writer) error) error {
	var buf bytes.Buffer
	wr, err := NewWriter(&buf)
	if err != nil {
		return err
	}
	if err := encode(wr); err != nil {
		return err
	}
	return s.writeFramed(path, buf.Bytes(), codecZstd)
}

// ReadTerrainChunk is ReadGraph's counterpart for zstd-framed files.
func (s *Store) ReadTerrainChunk(path string, decode func(*Reader) error) error {
	raw, err := s.readFramed(path)
	if err != nil {
		return err
	}
	rd, err := NewReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return decode(rd)
}

// Remove deletes path if present; a missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) writeFramed(path string, raw []byte, codec byte) error {
	var compressed []byte
	switch codec {
	case codecSnappy:
		compressed = snappy.Encode(nil, raw)
	case codecZstd:
		compressed = s.zw.EncodeAll(raw, nil)
	default:
		return fmt.Errorf("save: unknown codec byte %d", codec)
	}
	checksum := xxhash.Sum64(raw)
	out := make([]byte, 0, 9+len(compressed))
	out = append(out, codec)
	var cbuf [8]byte
	binary.LittleEndian.PutUint64(cbuf[:], checksum)
	out = append(out, cbuf[:]...)
	out = append(out, compressed...)
	return atomicWriteFile(path, out)
}

func (s *Store) readFramed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 9 {
		return nil, fmt.Errorf("save: truncated file %s", path)
	}
	codec := data[0]
	checksum := binary.LittleEndian.Uint64(data[1:9])
	compressed := data[9:]

	var raw []byte
	switch codec {
	case codecSnappy:
		raw, err = snappy.Decode(nil, compressed)
	case codecZstd:
		raw, err = s.zr.DecodeAll(compressed, nil)
	default:
		return nil, fmt.Errorf("save: unknown codec byte %d in %s", codec, path)
	}
	if err != nil {
		return nil, fmt.Errorf("save: decompress %s: %w", path, err)
	}
	if xxhash.Sum64(raw) != checksum {
		return nil, fmt.Errorf("save: checksum mismatch in %s", path)
	}
	return raw, nil
}

func atomicWriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("save: create directory for %s: %w", path, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("save: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save: rename temp file into place for %s: %w", path, err)
	}
	return nil
}
