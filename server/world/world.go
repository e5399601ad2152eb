// Package world owns the authoritative state of the simulated world:
// clients, entities, inventories, planes, terrain chunks, and structures,
// along with the relational invariants between them. Mutation happens
// exclusively through Fragment operations (fragment.go), which validate
// arguments, apply the change, update secondary indices, and fire hooks.
package world

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

// chunkKey identifies a chunk within a specific plane, used as a map key
// for cross-plane indices such as structures_by_chunk.
type chunkKey struct {
	Plane geom.PlaneId
	Cpos  geom.V2
}

// World is the owning container for every object kind. Its zero value is
// not usable; construct with New.
type World struct {
	Clients       *geom.StableIdMap[geom.ClientId, *Client]
	Entities      *geom.StableIdMap[geom.EntityId, *Entity]
	Inventories   *geom.StableIdMap[geom.InventoryId, *Inventory]
	Planes        *geom.StableIdMap[geom.PlaneId, *Plane]
	TerrainChunks *geom.StableIdMap[geom.TerrainChunkId, *TerrainChunk]
	Structures    *geom.StableIdMap[geom.StructureId, *Structure]

	structuresByChunk map[chunkKey]map[geom.StructureId]struct{}
	// entitiesByPlane indexes entities whose plane is loaded; entities
	// in limbo are indexed by limboEntities instead (§3 invariant b).
	entitiesByPlane map[geom.PlaneId]map[geom.EntityId]struct{}
	limboEntities   map[geom.StableId]map[geom.EntityId]struct{}
	// chunkEntities indexes AttachChunk entities by the chunk that owns
	// their lifetime, for cascading destruction on chunk unload.
	chunkEntities map[geom.TerrainChunkId]map[geom.EntityId]struct{}
}

// New returns an empty World.
func New() *World {
	return &World{
		Clients:       geom.NewStableIdMap[geom.ClientId, *Client](),
		Entities:      geom.NewStableIdMap[geom.EntityId, *Entity](),
		Inventories:   geom.NewStableIdMap[geom.InventoryId, *Inventory](),
		Planes:        geom.NewStableIdMap[geom.PlaneId, *Plane](),
		TerrainChunks: geom.NewStableIdMap[geom.TerrainChunkId, *TerrainChunk](),
		Structures:    geom.NewStableIdMap[geom.StructureId, *Structure](),

		structuresByChunk: make(map[chunkKey]map[geom.StructureId]struct{}),
		entitiesByPlane:   make(map[geom.PlaneId]map[geom.EntityId]struct{}),
		limboEntities:     make(map[geom.StableId]map[geom.EntityId]struct{}),
		chunkEntities:     make(map[geom.TerrainChunkId]map[geom.EntityId]struct{}),
	}
}

// StructuresInChunk returns the set of structure ids recorded against
// (plane, cpos). Part of the secondary-index maintenance described in
// §4.3; consumed directly by the phys.Cache rebuild via an adapter (see
// CacheSource in cache_adapter.go).
func (w *World) StructuresInChunk(plane geom.PlaneId, cpos geom.V2) []geom.StructureId {
	set, ok := w.structuresByChunk[chunkKey{plane, cpos}]
	if !ok {
		return nil
	}
	out := make([]geom.StructureId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// EntitiesInPlane returns the entities currently indexed as loaded in the
// given plane (does not include entities in limbo).
func (w *World) EntitiesInPlane(plane geom.PlaneId) []geom.EntityId {
	set, ok := w.entitiesByPlane[plane]
	if !ok {
		return nil
	}
	out := make([]geom.EntityId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// LimboEntities returns the entities parked in limbo for the plane with
// the given stable id.
func (w *World) LimboEntities(stablePlane geom.StableId) []geom.EntityId {
	set, ok := w.limboEntities[stablePlane]
	if !ok {
		return nil
	}
	out := make([]geom.EntityId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (w *World) indexStructure(plane geom.PlaneId, cpos geom.V2, sid geom.StructureId) {
	key := chunkKey{plane, cpos}
	set, ok := w.structuresByChunk[key]
	if !ok {
		set = make(map[geom.StructureId]struct{})
		w.structuresByChunk[key] = set
	}
	set[sid] = struct{}{}
}

func (w *World) unindexStructure(plane geom.PlaneId, cpos geom.V2, sid geom.StructureId) {
	key := chunkKey{plane, cpos}
	if set, ok := w.structuresByChunk[key]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(w.structuresByChunk, key)
		}
	}
}

func (w *World) indexEntityPlane(plane geom.PlaneId, eid geom.EntityId) {
	set, ok := w.entitiesByPlane[plane]
	if !ok {
		set = make(map[geom.EntityId]struct{})
		w.entitiesByPlane[plane] = set
	}
	set[eid] = struct{}{}
}

func (w *World) unindexEntityPlane(plane geom.PlaneId, eid geom.EntityId) {
	if set, ok := w.entitiesByPlane[plane]; ok {
		delete(set, eid)
		if len(set) == 0 {
			delete(w.entitiesByPlane, plane)
		}
	}
}

func (w *World) indexEntityLimbo(stablePlane geom.StableId, eid geom.EntityId) {
	set, ok := w.limboEntities[stablePlane]
	if !ok {
		set = make(map[geom.EntityId]struct{})
		w.limboEntities[stablePlane] = set
	}
	set[eid] = struct{}{}
}

func (w *World) unindexEntityLimbo(stablePlane geom.StableId, eid geom.EntityId) {
	if set, ok := w.limboEntities[stablePlane]; ok {
		delete(set, eid)
		if len(set) == 0 {
			delete(w.limboEntities, stablePlane)
		}
	}
}

// chunkBlocks adapts TerrainChunks lookup to phys.ChunkSource's Blocks
// method; see cache_adapter.go for the full adapter.
func (w *World) chunkBlocks(plane geom.PlaneId, cpos geom.V2) *phys.BlockChunk {
	p, ok := w.Planes.Get(plane)
	if !ok {
		return nil
	}
	tcid, ok := p.LoadedChunks[cpos]
	if !ok {
		return nil
	}
	tc, ok := w.TerrainChunks.Get(tcid)
	if !ok {
		return nil
	}
	return tc.Blocks
}
