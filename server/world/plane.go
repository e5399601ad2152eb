package world

import "github.com/riftkeep/outpostd/server/geom"

// Plane is a logical world: the overworld, a dungeon instance, or the
// distinguished limbo plane.
type Plane struct {
	Name string

	// LoadedChunks maps a chunk coordinate to the transient id of the
	// chunk currently loaded there. SavedChunks maps the same
	// coordinate to that chunk's stable id once it has been persisted.
	// Invariant: if cpos is present in both, LoadedChunks[cpos]'s
	// stable id equals SavedChunks[cpos].
	LoadedChunks map[geom.V2]geom.TerrainChunkId
	SavedChunks  map[geom.V2]geom.StableId

	stableID geom.StableId
}

// NewPlane returns a fresh, unpinned Plane.
func NewPlane(name string) *Plane {
	return &Plane{
		Name:         name,
		LoadedChunks: make(map[geom.V2]geom.TerrainChunkId),
		SavedChunks:  make(map[geom.V2]geom.StableId),
	}
}

// GetStableId implements geom.StableIdHolder.
func (p *Plane) GetStableId() geom.StableId { return p.stableID }

// SetStableId implements geom.StableIdHolder.
func (p *Plane) SetStableId(id geom.StableId) { p.stableID = id }
