package save

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/riftkeep/outpostd/server/geom"
)

// sanitizeName encodes every rune outside [A-Za-z0-9_,.] as an escape
// sequence sized to its codepoint, so arbitrary client names become safe
// filesystem paths without colliding on the escape character itself (the
// escape char '-' is itself escaped when it appears literally). The name
// is first normalized to NFC so two canonically-equivalent spellings of
// the same display name (e.g. a precomposed accented letter vs. a base
// letter plus a combining mark) always escape to the same path.
func sanitizeName(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '-':
			b.WriteString("-x2d")
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == ',' || r == '.':
			b.WriteRune(r)
		case r <= 0xFF:
			fmt.Fprintf(&b, "-x%02x", r)
		case r <= 0xFFFF:
			fmt.Fprintf(&b, "-u%04x", r)
		default:
			fmt.Fprintf(&b, "-U%08x", r)
		}
	}
	return b.String()
}

// validSanitizedName reports whether name is non-empty and free of control
// characters. Nothing calls it; Register does not validate names.
func validSanitizedName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Dir lays out a single SAVE_DIR's subdirectories for each persisted
// object kind, per the "one file per plane/client/terrain chunk, plus a
// misc file" scheme.
type Dir struct {
	Root string
}

// NewDir returns a Dir rooted at root. It does not create any directory;
// store.go's atomicWriteFile creates each file's parent directory with
// os.MkdirAll when it writes, matching the teacher's lazy-create-on-write
// style for its own world save directories.
func NewDir(root string) Dir { return Dir{Root: root} }

func (d Dir) ClientPath(name string) string {
	return filepath.Join(d.Root, "clients", sanitizeName(name)+".client")
}

func (d Dir) PlanePath(id geom.StableId) string {
	return filepath.Join(d.Root, "planes", fmt.Sprintf("%x.plane", uint64(id)))
}

func (d Dir) TerrainChunkPath(id geom.StableId) string {
	return filepath.Join(d.Root, "terrain_chunks", fmt.Sprintf("%x.terrain_chunk", uint64(id)))
}

func (d Dir) EntityPath(id geom.StableId) string {
	return filepath.Join(d.Root, "entities", fmt.Sprintf("%x.entity", uint64(id)))
}

func (d Dir) InventoryPath(id geom.StableId) string {
	return filepath.Join(d.Root, "inventories", fmt.Sprintf("%x.inventory", uint64(id)))
}

func (d Dir) StructurePath(id geom.StableId) string {
	return filepath.Join(d.Root, "structures", fmt.Sprintf("%x.structure", uint64(id)))
}

func (d Dir) MiscPath() string {
	return filepath.Join(d.Root, "misc")
}
