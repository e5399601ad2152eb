package world

import "github.com/riftkeep/outpostd/server/geom"

// Hooks is the visible-flavor notification surface fired by Fragment
// operations (§4.3). It is normally backed by the vision and messages
// subsystems. During save-file load and top-down destruction, operations
// run with NopHooks instead so that no appear/disappear traffic reaches
// clients for objects whose state is not yet (or no longer) consistent —
// this is the "hidden flavor" described in §4.3.
type Hooks interface {
	OnClientCreate(cid geom.ClientId)
	OnClientDestroy(cid geom.ClientId)

	OnEntityCreate(eid geom.EntityId)
	OnEntityDestroy(eid geom.EntityId)
	OnEntityPlaneChange(eid geom.EntityId, oldPlane, newPlane geom.PlaneId)
	OnEntityMotionChange(eid geom.EntityId)

	OnInventoryCreate(iid geom.InventoryId)
	OnInventoryDestroy(iid geom.InventoryId)
	OnInventoryUpdate(iid geom.InventoryId, slot int)

	OnPlaneCreate(pid geom.PlaneId)
	OnPlaneDestroy(pid geom.PlaneId)

	OnChunkCreate(plane geom.PlaneId, cpos geom.V2)
	OnChunkDestroy(plane geom.PlaneId, cpos geom.V2)
	OnChunkUpdate(plane geom.PlaneId, cpos geom.V2)

	OnStructureCreate(sid geom.StructureId)
	OnStructureDestroy(sid geom.StructureId)
	OnStructureReplace(sid geom.StructureId)
}

// NopHooks implements Hooks with no-ops. It is the hidden-flavor
// implementation used during load and cascading destruction.
type NopHooks struct{}

func (NopHooks) OnClientCreate(geom.ClientId)                           {}
func (NopHooks) OnClientDestroy(geom.ClientId)                          {}
func (NopHooks) OnEntityCreate(geom.EntityId)                           {}
func (NopHooks) OnEntityDestroy(geom.EntityId)                          {}
func (NopHooks) OnEntityPlaneChange(geom.EntityId, geom.PlaneId, geom.PlaneId) {}
func (NopHooks) OnEntityMotionChange(geom.EntityId)                     {}
func (NopHooks) OnInventoryCreate(geom.InventoryId)                     {}
func (NopHooks) OnInventoryDestroy(geom.InventoryId)                    {}
func (NopHooks) OnInventoryUpdate(geom.InventoryId, int)                {}
func (NopHooks) OnPlaneCreate(geom.PlaneId)                             {}
func (NopHooks) OnPlaneDestroy(geom.PlaneId)                            {}
func (NopHooks) OnChunkCreate(geom.PlaneId, geom.V2)                    {}
func (NopHooks) OnChunkDestroy(geom.PlaneId, geom.V2)                   {}
func (NopHooks) OnChunkUpdate(geom.PlaneId, geom.V2)                    {}
func (NopHooks) OnStructureCreate(geom.StructureId)                     {}
func (NopHooks) OnStructureDestroy(geom.StructureId)                    {}
func (NopHooks) OnStructureReplace(geom.StructureId)                    {}

// ScriptHooks is invoked for cleanup purposes on every destroy operation
// regardless of hook flavor — even the hidden flavor used by cascading
// destruction still needs script-owned state (e.g. held references) torn
// down. A nil ScriptHooks is valid and simply skipped.
type ScriptHooks interface {
	OnEntityDestroyed(eid geom.EntityId)
	OnInventoryDestroyed(iid geom.InventoryId)
	OnStructureDestroyed(sid geom.StructureId)
}
