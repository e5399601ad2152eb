package world

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

// TerrainChunkFlags is a bitfield of per-chunk flags.
type TerrainChunkFlags uint16

const (
	// ChunkGenerationPending marks a chunk that has been created as a
	// placeholder while background generation is still in flight (§4.5).
	ChunkGenerationPending TerrainChunkFlags = 1 << iota
)

// TerrainChunk is one 16x16x16 loaded region of terrain.
type TerrainChunk struct {
	// Plane always refers to a loaded plane (invariant enforced at
	// attach time).
	Plane geom.PlaneId
	Cpos  geom.V2
	Blocks *phys.BlockChunk

	stableID        geom.StableId
	Flags           TerrainChunkFlags
	ChildStructures map[geom.StructureId]struct{}
}

// NewTerrainChunk returns a fresh, unpinned, pending TerrainChunk at cpos
// in the given plane, with an all-Empty block array.
func NewTerrainChunk(plane geom.PlaneId, cpos geom.V2) *TerrainChunk {
	return &TerrainChunk{
		Plane:           plane,
		Cpos:            cpos,
		Blocks:          &phys.BlockChunk{},
		Flags:           ChunkGenerationPending,
		ChildStructures: make(map[geom.StructureId]struct{}),
	}
}

// Pending reports whether this chunk is still waiting on background
// generation.
func (c *TerrainChunk) Pending() bool { return c.Flags&ChunkGenerationPending != 0 }

// GetStableId implements geom.StableIdHolder.
func (c *TerrainChunk) GetStableId() geom.StableId { return c.stableID }

// SetStableId implements geom.StableIdHolder.
func (c *TerrainChunk) SetStableId(id geom.StableId) { c.stableID = id }
