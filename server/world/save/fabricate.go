package save

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/world"
)

// The Resolve* functions are this port's equivalent of reader.rs's
// ReadId::fabricate: given a stable id read from a cross-reference field,
// return the transient id already bound to it if the object has been
// visited, or fabricate a zero-value placeholder transient id for it
// otherwise. The placeholder's exported fields are overwritten in place
// once the reader reaches that object's own record later in the same
// load pass (or a previous one, for objects that outlive the file that
// referenced them).

func ResolveClient(w *world.World, sid geom.StableId) geom.ClientId {
	if sid == geom.NoStableId {
		return geom.NoClient
	}
	if id, ok := w.Clients.TransientByStable(sid); ok {
		return id
	}
	return w.Clients.FabricateUnchecked(sid, world.NewClient(""))
}

func ResolveEntity(w *world.World, sid geom.StableId) geom.EntityId {
	if sid == geom.NoStableId {
		return geom.NoEntity
	}
	if id, ok := w.Entities.TransientByStable(sid); ok {
		return id
	}
	return w.Entities.FabricateUnchecked(sid, world.NewEntity(geom.NoStableId, geom.V3{}, 0))
}

func ResolveInventory(w *world.World, sid geom.StableId) geom.InventoryId {
	if sid == geom.NoStableId {
		return geom.NoInventory
	}
	if id, ok := w.Inventories.TransientByStable(sid); ok {
		return id
	}
	return w.Inventories.FabricateUnchecked(sid, world.NewInventory(0, world.InventoryAttachment{}))
}

func ResolvePlane(w *world.World, sid geom.StableId) geom.PlaneId {
	if sid == geom.NoStableId {
		return geom.NoPlane
	}
	if id, ok := w.Planes.TransientByStable(sid); ok {
		return id
	}
	return w.Planes.FabricateUnchecked(sid, world.NewPlane(""))
}

func ResolveTerrainChunk(w *world.World, sid geom.StableId) geom.TerrainChunkId {
	if sid == geom.NoStableId {
		return geom.NoTerrainChunk
	}
	if id, ok := w.TerrainChunks.TransientByStable(sid); ok {
		return id
	}
	return w.TerrainChunks.FabricateUnchecked(sid, world.NewTerrainChunk(geom.NoPlane, geom.V2{}))
}

func ResolveStructure(w *world.World, sid geom.StableId) geom.StructureId {
	if sid == geom.NoStableId {
		return geom.NoStructure
	}
	if id, ok := w.Structures.TransientByStable(sid); ok {
		return id
	}
	return w.Structures.FabricateUnchecked(sid, world.NewStructure(geom.NoPlane, geom.V3{}, 0, world.StructureAttachment{}))
}
