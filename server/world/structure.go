package world

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

// TemplateId indexes the static structure-template table (structures.json,
// out of scope here; see phys.StructureTemplate for the shape it
// contributes to the terrain cache).
type TemplateId uint16

// StructureFlags is a bitfield of per-structure flags.
type StructureFlags uint16

// Structure occupies an axis-aligned box within one plane.
type Structure struct {
	// Plane always refers to a loaded plane (invariant enforced at
	// attach time).
	Plane    geom.PlaneId
	Pos      geom.V3 // tile coordinates, not pixels
	Template TemplateId

	stableID   geom.StableId
	Flags      StructureFlags
	Attachment StructureAttachment
	ChildInvs  map[geom.InventoryId]struct{}
}

// NewStructure returns a fresh, unpinned Structure.
func NewStructure(plane geom.PlaneId, pos geom.V3, template TemplateId, attach StructureAttachment) *Structure {
	return &Structure{
		Plane:      plane,
		Pos:        pos,
		Template:   template,
		Attachment: attach,
		ChildInvs:  make(map[geom.InventoryId]struct{}),
	}
}

// Bounds returns the structure's axis-aligned pixel-space box given its
// template's size (in tiles). Pos and size are both tile coordinates;
// both are scaled to pixels so the result can feed Region3.ChunkRegion
// directly.
func (s *Structure) Bounds(size geom.V3) geom.Region3 {
	pixelPos := geom.V3{X: s.Pos.X * geom.TileSize, Y: s.Pos.Y * geom.TileSize, Z: s.Pos.Z * geom.TileSize}
	pixelSize := geom.V3{X: size.X * geom.TileSize, Y: size.Y * geom.TileSize, Z: size.Z * geom.TileSize}
	return geom.NewRegion3(pixelPos, pixelSize)
}

// GetStableId implements geom.StableIdHolder.
func (s *Structure) GetStableId() geom.StableId { return s.stableID }

// SetStableId implements geom.StableIdHolder.
func (s *Structure) SetStableId(id geom.StableId) { s.stableID = id }

// TemplateTable resolves a TemplateId to its static shape definition. It
// is supplied by the data-table loader (structures.json).
type TemplateTable interface {
	Template(TemplateId) (*phys.StructureTemplate, bool)
}
