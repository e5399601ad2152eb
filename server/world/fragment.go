package world

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

// Fragment is the sole mutation surface for a World (§4.3). Every operation
// validates its arguments against current state, applies the change,
// updates the secondary indices owned by World, and finally invokes Hooks
// in the fixed order described in SPEC_FULL.md §4.3/§4.4. A failed
// operation leaves the World unmodified.
//
// Hidden-flavor operations (used by save-file load and the tail end of
// cascading destruction) are obtained via Hidden(), which swaps Hooks for
// NopHooks while keeping Script wired so cleanup still runs.
type Fragment struct {
	W         *World
	Templates TemplateTable
	Hooks     Hooks
	Script    ScriptHooks
}

// NewFragment returns a Fragment with the given hook set. hooks may not be
// nil; pass NopHooks{} for the hidden flavor directly, or call Hidden on an
// existing visible Fragment.
func NewFragment(w *World, templates TemplateTable, hooks Hooks, script ScriptHooks) *Fragment {
	return &Fragment{W: w, Templates: templates, Hooks: hooks, Script: script}
}

// Hidden returns a copy of f with Hooks replaced by NopHooks, for use
// during load and cascading teardown.
func (f *Fragment) Hidden() *Fragment {
	return &Fragment{W: f.W, Templates: f.Templates, Hooks: NopHooks{}, Script: f.Script}
}

// structureBounds resolves a structure's tile-space footprint via its
// template, returning ok=false if the template no longer resolves (should
// not happen for a live structure created through CreateStructure).
func (f *Fragment) structureBounds(s *Structure) (geom.Region3, bool) {
	tmpl, ok := f.Templates.Template(s.Template)
	if !ok {
		return geom.Region3{}, false
	}
	return s.Bounds(tmpl.Size), true
}

func (f *Fragment) scriptEntityDestroyed(eid geom.EntityId) {
	if f.Script != nil {
		f.Script.OnEntityDestroyed(eid)
	}
}

func (f *Fragment) scriptInventoryDestroyed(iid geom.InventoryId) {
	if f.Script != nil {
		f.Script.OnInventoryDestroyed(iid)
	}
}

func (f *Fragment) scriptStructureDestroyed(sid geom.StructureId) {
	if f.Script != nil {
		f.Script.OnStructureDestroyed(sid)
	}
}

// --- Client -----------------------------------------------------------

// CreateClient inserts a new client with the given name and fires
// OnClientCreate.
func (f *Fragment) CreateClient(name string) geom.ClientId {
	cid := f.W.Clients.Insert(NewClient(name))
	f.Hooks.OnClientCreate(cid)
	return cid
}

// DestroyClient removes a client along with every entity and inventory it
// owns (top-down: entities' own child inventories are destroyed first via
// DestroyEntity, then the client's direct inventories, then the client
// itself), per the cascading-destroy order in §4.3.
func (f *Fragment) DestroyClient(cid geom.ClientId) error {
	c, ok := f.W.Clients.Get(cid)
	if !ok {
		return ErrNoSuchClient
	}
	for eid := range c.ChildEntities {
		if err := f.DestroyEntity(eid); err != nil {
			return err
		}
	}
	for iid := range c.ChildInvs {
		if err := f.DestroyInventory(iid); err != nil {
			return err
		}
	}
	f.W.Clients.Remove(cid)
	f.Hooks.OnClientDestroy(cid)
	return nil
}

// --- Entity -------------------------------------------------------------

// CreateEntityWorld creates an AttachWorld entity bound to stablePlane
// (which need not currently be loaded) at pos.
func (f *Fragment) CreateEntityWorld(stablePlane geom.StableId, pos geom.V3, now Time) geom.EntityId {
	e := NewEntity(stablePlane, pos, now)
	eid := f.W.Entities.Insert(e)
	f.indexEntityByPlaneState(stablePlane, e.Plane, eid)
	f.Hooks.OnEntityCreate(eid)
	return eid
}

// AttachEntityClient binds an existing entity's lifetime to a client,
// recording it in the client's ChildEntities set. Typically used to make an
// entity a client's pawn.
func (f *Fragment) AttachEntityClient(eid geom.EntityId, cid geom.ClientId) error {
	e, ok := f.W.Entities.Get(eid)
	if !ok {
		return ErrNoSuchEntity
	}
	c, ok := f.W.Clients.Get(cid)
	if !ok {
		return ErrNoSuchClient
	}
	f.detachEntity(eid, e)
	e.Attachment = EntityAttachment{Kind: AttachClient, Cid: cid}
	c.ChildEntities[eid] = struct{}{}
	return nil
}

// AttachEntityChunk binds an existing entity's lifetime to the terrain
// chunk it currently occupies. The entity's motion must already be Fixed
// (§9 open-question resolution); otherwise ErrChunkMotionNotFixed is
// returned and nothing changes.
func (f *Fragment) AttachEntityChunk(eid geom.EntityId, tcid geom.TerrainChunkId) error {
	e, ok := f.W.Entities.Get(eid)
	if !ok {
		return ErrNoSuchEntity
	}
	if !e.Motion.Fixed() {
		return ErrChunkMotionNotFixed
	}
	if _, ok := f.W.TerrainChunks.Get(tcid); !ok {
		return ErrNoSuchChunk
	}
	f.detachEntity(eid, e)
	e.Attachment = EntityAttachment{Kind: AttachChunk, Tcid: tcid}
	f.chunkChildEntities(tcid)[eid] = struct{}{}
	return nil
}

// detachEntity removes eid from whichever owner set its current
// Attachment points at, prior to reattaching it elsewhere.
func (f *Fragment) detachEntity(eid geom.EntityId, e *Entity) {
	switch e.Attachment.Kind {
	case AttachClient:
		if c, ok := f.W.Clients.Get(e.Attachment.Cid); ok {
			delete(c.ChildEntities, eid)
		}
	case AttachChunk:
		if set, ok := f.W.chunkEntities[e.Attachment.Tcid]; ok {
			delete(set, eid)
			if len(set) == 0 {
				delete(f.W.chunkEntities, e.Attachment.Tcid)
			}
		}
	}
}

// chunkChildEntities returns (lazily creating) the set of AttachChunk
// entities whose lifetime is bound to tcid.
func (f *Fragment) chunkChildEntities(tcid geom.TerrainChunkId) map[geom.EntityId]struct{} {
	s, ok := f.W.chunkEntities[tcid]
	if !ok {
		s = make(map[geom.EntityId]struct{})
		f.W.chunkEntities[tcid] = s
	}
	return s
}

// DestroyEntity removes an entity along with its child inventories.
func (f *Fragment) DestroyEntity(eid geom.EntityId) error {
	e, ok := f.W.Entities.Get(eid)
	if !ok {
		return ErrNoSuchEntity
	}
	for iid := range e.ChildInvs {
		if err := f.DestroyInventory(iid); err != nil {
			return err
		}
	}
	f.detachEntity(eid, e)
	f.unindexEntityByPlaneState(e, eid)
	f.W.Entities.Remove(eid)
	f.scriptEntityDestroyed(eid)
	f.Hooks.OnEntityDestroy(eid)
	return nil
}

// indexEntityByPlaneState indexes an entity into entitiesByPlane if plane
// is loaded (non-LimboPlane), otherwise into limboEntities under
// stablePlane.
func (f *Fragment) indexEntityByPlaneState(stablePlane geom.StableId, plane geom.PlaneId, eid geom.EntityId) {
	if plane == LimboPlane {
		f.W.indexEntityLimbo(stablePlane, eid)
	} else {
		f.W.indexEntityPlane(plane, eid)
	}
}

func (f *Fragment) unindexEntityByPlaneState(e *Entity, eid geom.EntityId) {
	if e.Plane == LimboPlane {
		f.W.unindexEntityLimbo(e.StablePlane, eid)
	} else {
		f.W.unindexEntityPlane(e.Plane, eid)
	}
}

// SetEntityMotion installs a freshly computed motion (typically the
// result of a phys.Collide call driven by the event loop's Input or
// PhysicsUpdate handlers) and fires OnEntityMotionChange so Vision can
// notify current viewers.
func (f *Fragment) SetEntityMotion(eid geom.EntityId, m Motion) error {
	e, ok := f.W.Entities.Get(eid)
	if !ok {
		return ErrNoSuchEntity
	}
	e.Motion = m
	f.Hooks.OnEntityMotionChange(eid)
	return nil
}

// EnterLimbo moves every entity currently indexed as loaded in pid into
// limbo under stablePlane, because the plane itself is about to unload
// (§3 invariant (b)). Called by the chunk-lifecycle plane-unload path
// before the plane is removed from World.
func (f *Fragment) EnterLimbo(pid geom.PlaneId, stablePlane geom.StableId) {
	for _, eid := range f.W.EntitiesInPlane(pid) {
		e, ok := f.W.Entities.Get(eid)
		if !ok {
			continue
		}
		f.W.unindexEntityPlane(pid, eid)
		e.Plane = LimboPlane
		f.W.indexEntityLimbo(stablePlane, eid)
		f.Hooks.OnEntityPlaneChange(eid, pid, LimboPlane)
	}
}

// LeaveLimbo reattaches every limbo entity bound to stablePlane now that
// pid (freshly loaded, carrying that stable id) is available again.
func (f *Fragment) LeaveLimbo(pid geom.PlaneId, stablePlane geom.StableId) {
	for _, eid := range f.W.LimboEntities(stablePlane) {
		e, ok := f.W.Entities.Get(eid)
		if !ok {
			continue
		}
		f.W.unindexEntityLimbo(stablePlane, eid)
		e.Plane = pid
		f.W.indexEntityPlane(pid, eid)
		f.Hooks.OnEntityPlaneChange(eid, LimboPlane, pid)
	}
}

// --- Inventory ------------------------------------------------------------

// CreateInventory creates a size-slot inventory attached per attach and
// links it into the relevant owner's ChildInvs set.
func (f *Fragment) CreateInventory(size int, attach InventoryAttachment) (geom.InventoryId, error) {
	switch attach.Kind {
	case InvAttachClient:
		if _, ok := f.W.Clients.Get(attach.Cid); !ok {
			return geom.NoInventory, ErrNoSuchClient
		}
	case InvAttachEntity:
		if _, ok := f.W.Entities.Get(attach.Eid); !ok {
			return geom.NoInventory, ErrNoSuchEntity
		}
	case InvAttachStructure:
		if _, ok := f.W.Structures.Get(attach.Sid); !ok {
			return geom.NoInventory, ErrNoSuchStructure
		}
	}
	iid := f.W.Inventories.Insert(NewInventory(size, attach))
	switch attach.Kind {
	case InvAttachClient:
		c, _ := f.W.Clients.Get(attach.Cid)
		c.ChildInvs[iid] = struct{}{}
	case InvAttachEntity:
		e, _ := f.W.Entities.Get(attach.Eid)
		e.ChildInvs[iid] = struct{}{}
	case InvAttachStructure:
		s, _ := f.W.Structures.Get(attach.Sid)
		s.ChildInvs[iid] = struct{}{}
	}
	f.Hooks.OnInventoryCreate(iid)
	return iid, nil
}

// DestroyInventory removes an inventory and unlinks it from its owner.
func (f *Fragment) DestroyInventory(iid geom.InventoryId) error {
	inv, ok := f.W.Inventories.Get(iid)
	if !ok {
		return ErrNoSuchInventory
	}
	switch inv.Attachment.Kind {
	case InvAttachClient:
		if c, ok := f.W.Clients.Get(inv.Attachment.Cid); ok {
			delete(c.ChildInvs, iid)
		}
	case InvAttachEntity:
		if e, ok := f.W.Entities.Get(inv.Attachment.Eid); ok {
			delete(e.ChildInvs, iid)
		}
	case InvAttachStructure:
		if s, ok := f.W.Structures.Get(inv.Attachment.Sid); ok {
			delete(s.ChildInvs, iid)
		}
	}
	f.W.Inventories.Remove(iid)
	f.scriptInventoryDestroyed(iid)
	f.Hooks.OnInventoryDestroy(iid)
	return nil
}

// MoveInventoryItems moves items between two slots, possibly in different
// inventories, and fires OnInventoryUpdate for each side touched.
func (f *Fragment) MoveInventoryItems(srcIid geom.InventoryId, srcSlot int, dstIid geom.InventoryId, dstSlot int, count uint8) (uint8, error) {
	src, ok := f.W.Inventories.Get(srcIid)
	if !ok {
		return 0, ErrNoSuchInventory
	}
	dst, ok := f.W.Inventories.Get(dstIid)
	if !ok {
		return 0, ErrNoSuchInventory
	}
	moved, err := MoveItems(src, srcSlot, dst, dstSlot, count)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		f.Hooks.OnInventoryUpdate(srcIid, srcSlot)
		f.Hooks.OnInventoryUpdate(dstIid, dstSlot)
	}
	return moved, nil
}

// --- Plane ----------------------------------------------------------------

// CreatePlane creates a new, empty plane.
func (f *Fragment) CreatePlane(name string) geom.PlaneId {
	pid := f.W.Planes.Insert(NewPlane(name))
	f.Hooks.OnPlaneCreate(pid)
	return pid
}

// DestroyPlane removes a plane. The caller must have already unloaded
// every chunk (LoadedChunks empty); planes with loaded chunks cannot be
// destroyed directly, mirroring the chunk-lifecycle dependency order in
// SPEC_FULL.md's System Overview.
func (f *Fragment) DestroyPlane(pid geom.PlaneId) error {
	p, ok := f.W.Planes.Get(pid)
	if !ok {
		return ErrNoSuchPlane
	}
	if len(p.LoadedChunks) > 0 {
		return ErrChunkNotLoaded
	}
	f.W.Planes.Remove(pid)
	f.Hooks.OnPlaneDestroy(pid)
	return nil
}

// --- TerrainChunk -----------------------------------------------------

// CreateTerrainChunk loads a (possibly generation-pending) chunk at cpos
// into plane.
func (f *Fragment) CreateTerrainChunk(plane geom.PlaneId, cpos geom.V2) (geom.TerrainChunkId, error) {
	p, ok := f.W.Planes.Get(plane)
	if !ok {
		return geom.NoTerrainChunk, ErrNoSuchPlane
	}
	if _, exists := p.LoadedChunks[cpos]; exists {
		return p.LoadedChunks[cpos], nil
	}
	tc := NewTerrainChunk(plane, cpos)
	tcid := f.W.TerrainChunks.Insert(tc)
	p.LoadedChunks[cpos] = tcid
	f.Hooks.OnChunkCreate(plane, cpos)
	return tcid, nil
}

// DestroyTerrainChunk unloads a chunk, destroying its AttachChunk entities
// and StructAttachChunk structures (top-down, per §4.3/§9), but leaving
// StructAttachPlane structures and the plane itself untouched (§9
// resolution: plane-attached structures persist past chunk unload).
func (f *Fragment) DestroyTerrainChunk(tcid geom.TerrainChunkId) error {
	tc, ok := f.W.TerrainChunks.Get(tcid)
	if !ok {
		return ErrNoSuchChunk
	}
	hidden := f.Hidden()
	for sid := range tc.ChildStructures {
		s, ok := f.W.Structures.Get(sid)
		if !ok {
			continue
		}
		if s.Attachment == StructAttachChunk {
			if err := hidden.DestroyStructure(sid); err != nil {
				return err
			}
		}
	}
	if set, ok := f.W.chunkEntities[tcid]; ok {
		for eid := range set {
			if err := hidden.DestroyEntity(eid); err != nil {
				return err
			}
		}
		delete(f.W.chunkEntities, tcid)
	}
	p, ok := f.W.Planes.Get(tc.Plane)
	if ok {
		delete(p.LoadedChunks, tc.Cpos)
		if sid := tc.GetStableId(); sid != geom.NoStableId {
			p.SavedChunks[tc.Cpos] = sid
		}
	}
	f.W.TerrainChunks.Remove(tcid)
	f.Hooks.OnChunkDestroy(tc.Plane, tc.Cpos)
	return nil
}

// UpdateTerrainChunkBlocks installs new block contents (e.g. after
// background generation completes or a single-block edit) and fires
// OnChunkUpdate so the terrain cache and any watching clients refresh.
func (f *Fragment) UpdateTerrainChunkBlocks(tcid geom.TerrainChunkId, mutate func(*phys.BlockChunk)) error {
	tc, ok := f.W.TerrainChunks.Get(tcid)
	if !ok {
		return ErrNoSuchChunk
	}
	mutate(tc.Blocks)
	tc.Flags &^= ChunkGenerationPending
	f.Hooks.OnChunkUpdate(tc.Plane, tc.Cpos)
	return nil
}

// --- Structure --------------------------------------------------------

// CreateStructure places a new structure at pos in plane, bound to
// template, provided the plane exists and the template resolves. It makes
// no overlap check: a structure whose footprint overlaps an existing one
// is placed all the same. It only tracks per-chunk registration (§4.1
// structure/terrain-cache interaction).
func (f *Fragment) CreateStructure(plane geom.PlaneId, pos geom.V3, template TemplateId, attach StructureAttachment) (geom.StructureId, error) {
	if _, ok := f.W.Planes.Get(plane); !ok {
		return geom.NoStructure, ErrNoSuchPlane
	}
	tmpl, ok := f.Templates.Template(template)
	if !ok {
		return geom.NoStructure, ErrNoSuchTemplate
	}
	s := NewStructure(plane, pos, template, attach)
	sid := f.W.Structures.Insert(s)
	s.Bounds(tmpl.Size).ChunkRegion().Points(func(cpos geom.V2) {
		f.W.indexStructure(plane, cpos, sid)
	})
	if attach == StructAttachChunk {
		if p, ok := f.W.Planes.Get(plane); ok {
			cpos := geom.TileToChunkV3(pos)
			if tcid, ok := p.LoadedChunks[cpos]; ok {
				if tc, ok := f.W.TerrainChunks.Get(tcid); ok {
					tc.ChildStructures[sid] = struct{}{}
				}
			}
		}
	}
	f.Hooks.OnStructureCreate(sid)
	return sid, nil
}

// DestroyStructure removes a structure along with its child inventories.
func (f *Fragment) DestroyStructure(sid geom.StructureId) error {
	s, ok := f.W.Structures.Get(sid)
	if !ok {
		return ErrNoSuchStructure
	}
	for iid := range s.ChildInvs {
		if err := f.DestroyInventory(iid); err != nil {
			return err
		}
	}
	if bounds, ok := f.structureBounds(s); ok {
		bounds.ChunkRegion().Points(func(cpos geom.V2) {
			f.W.unindexStructure(s.Plane, cpos, sid)
		})
	}
	if s.Attachment == StructAttachChunk {
		if p, ok := f.W.Planes.Get(s.Plane); ok {
			cpos := geom.TileToChunkV3(s.Pos)
			if tcid, ok := p.LoadedChunks[cpos]; ok {
				if tc, ok := f.W.TerrainChunks.Get(tcid); ok {
					delete(tc.ChildStructures, sid)
				}
			}
		}
	}
	f.W.Structures.Remove(sid)
	f.scriptStructureDestroyed(sid)
	f.Hooks.OnStructureDestroy(sid)
	return nil
}

// ReplaceStructureTemplate swaps a structure's template in place (e.g. a
// door opening), re-indexing its chunk footprint and firing
// OnStructureReplace rather than a destroy/create pair so that vision
// treats it as an update, not an appear/disappear flicker.
func (f *Fragment) ReplaceStructureTemplate(sid geom.StructureId, template TemplateId) error {
	s, ok := f.W.Structures.Get(sid)
	if !ok {
		return ErrNoSuchStructure
	}
	oldBounds, hadOld := f.structureBounds(s)
	newTmpl, ok := f.Templates.Template(template)
	if !ok {
		return ErrNoSuchTemplate
	}
	if hadOld {
		oldBounds.ChunkRegion().Points(func(cpos geom.V2) {
			f.W.unindexStructure(s.Plane, cpos, sid)
		})
	}
	s.Template = template
	s.Bounds(newTmpl.Size).ChunkRegion().Points(func(cpos geom.V2) {
		f.W.indexStructure(s.Plane, cpos, sid)
	})
	f.Hooks.OnStructureReplace(sid)
	return nil
}
