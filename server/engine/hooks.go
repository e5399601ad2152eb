package engine

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/session"
	"github.com/riftkeep/outpostd/server/vision"
	"github.com/riftkeep/outpostd/server/world"
)

// engineHooks is the visible-flavor world.Hooks implementation: it
// translates raw world mutation notifications into Vision updates, which
// in turn call back into visionCallbacks to actually push wire traffic
// through the session.Router. Grounded on original_source's
// engine/hooks.rs (WorldHooks delegating into Vision, with a nested
// VisionHooks adapter doing the actual message sends).
type engineHooks struct {
	w   *world.World
	vis *vision.Vision
	rt  *session.Router
}

func newEngineHooks(w *world.World, vis *vision.Vision, rt *session.Router) *engineHooks {
	return &engineHooks{w: w, vis: vis, rt: rt}
}

func (h *engineHooks) cb() vision.Callbacks {
	return visionCallbacks{w: h.w, rt: h.rt}
}

// entityArea returns the set of chunks an entity currently occupies,
// derived from its motion's start and end positions — at most two chunks,
// per original_source's engine/hooks.rs entity_area helper. An entity in
// limbo occupies nothing.
func entityArea(w *world.World, eid geom.EntityId) map[geom.V2]struct{} {
	e, ok := w.Entities.Get(eid)
	if !ok || e.InLimbo() {
		return nil
	}
	area := make(map[geom.V2]struct{}, 2)
	area[geom.PixelToChunk(e.Motion.StartPos)] = struct{}{}
	area[geom.PixelToChunk(e.Motion.EndPos)] = struct{}{}
	return area
}

func (h *engineHooks) OnClientCreate(cid geom.ClientId) {}
func (h *engineHooks) OnClientDestroy(cid geom.ClientId) {
	h.vis.RemoveClient(cid, h.cb())
}

func (h *engineHooks) OnEntityCreate(eid geom.EntityId) {
	h.vis.AddEntity(eid, entityArea(h.w, eid), h.cb())
}

func (h *engineHooks) OnEntityDestroy(eid geom.EntityId) {
	h.vis.RemoveEntity(eid, h.cb())
}

func (h *engineHooks) OnEntityPlaneChange(eid geom.EntityId, oldPlane, newPlane geom.PlaneId) {
	h.vis.SetEntityArea(eid, entityArea(h.w, eid), h.cb())
}

func (h *engineHooks) OnEntityMotionChange(eid geom.EntityId) {
	h.vis.SetEntityArea(eid, entityArea(h.w, eid), h.cb())
}

func (h *engineHooks) OnInventoryCreate(iid geom.InventoryId) {}
func (h *engineHooks) OnInventoryDestroy(iid geom.InventoryId) {}
func (h *engineHooks) OnInventoryUpdate(iid geom.InventoryId, slot int) {
	h.vis.UpdateInventory(iid, slot, h.cb())
}

func (h *engineHooks) OnPlaneCreate(pid geom.PlaneId) {}
func (h *engineHooks) OnPlaneDestroy(pid geom.PlaneId) {}

func (h *engineHooks) OnChunkCreate(plane geom.PlaneId, cpos geom.V2) {
	h.vis.AddChunk(cpos, h.cb())
}

func (h *engineHooks) OnChunkDestroy(plane geom.PlaneId, cpos geom.V2) {
	h.vis.RemoveChunk(cpos, h.cb())
}

func (h *engineHooks) OnChunkUpdate(plane geom.PlaneId, cpos geom.V2) {
	h.vis.UpdateChunk(cpos, h.cb())
}

func (h *engineHooks) OnStructureCreate(sid geom.StructureId) {
	if s, ok := h.w.Structures.Get(sid); ok {
		h.vis.UpdateChunk(geom.TileToChunkV3(s.Pos), h.cb())
	}
}

func (h *engineHooks) OnStructureDestroy(sid geom.StructureId) {
	if s, ok := h.w.Structures.Get(sid); ok {
		h.vis.UpdateChunk(geom.TileToChunkV3(s.Pos), h.cb())
	}
}

func (h *engineHooks) OnStructureReplace(sid geom.StructureId) {
	if s, ok := h.w.Structures.Get(sid); ok {
		h.vis.UpdateChunk(geom.TileToChunkV3(s.Pos), h.cb())
	}
}

// visionCallbacks is vision.Callbacks's concrete implementation: each
// method pushes exactly one outbound wire message through the router.
// Mirrors original_source's VisionHooks, which does the actual
// ClientResponse construction and send.
type visionCallbacks struct {
	w  *world.World
	rt *session.Router
}

func (c visionCallbacks) ChunkAppear(cid geom.ClientId, cpos geom.V2) {}

func (c visionCallbacks) ChunkDisappear(cid geom.ClientId, cpos geom.V2) {
	idx, err := c.rt.LocalChunkIndex(cid, cpos)
	if err != nil {
		return
	}
	body := make([]byte, 2)
	putU16(body, idx)
	_ = c.rt.Send(cid, opChunkGone, body)
}

func (c visionCallbacks) ChunkUpdate(cid geom.ClientId, cpos geom.V2) {
	idx, err := c.rt.LocalChunkIndex(cid, cpos)
	if err != nil {
		return
	}
	body := make([]byte, 2)
	putU16(body, idx)
	_ = c.rt.Send(cid, opChunkUpdate, body)
}

func (c visionCallbacks) EntityAppear(cid geom.ClientId, eid geom.EntityId) {}

func (c visionCallbacks) EntityDisappear(cid geom.ClientId, eid geom.EntityId) {
	body := make([]byte, 4)
	putU32(body, uint32(eid))
	_ = c.rt.Send(cid, opEntityGone, body)
}

func (c visionCallbacks) EntityUpdate(cid geom.ClientId, eid geom.EntityId) {
	c.sendEntityUpdate(cid, eid)
}

func (c visionCallbacks) EntityMotionUpdate(cid geom.ClientId, eid geom.EntityId) {
	c.sendEntityUpdate(cid, eid)
}

// sendEntityUpdate composes the entity's name (if controlled by a
// client) and local-remapped motion into one update frame. The
// name lookup mirrors original_source's on_entity_appear, which looks up
// the controlling client's name via the AttachClient attachment, falling
// back to an empty name for non-player entities.
func (c visionCallbacks) sendEntityUpdate(cid geom.ClientId, eid geom.EntityId) {
	e, ok := c.w.Entities.Get(eid)
	if !ok {
		return
	}
	name := ""
	if e.Attachment.Kind == world.AttachClient {
		if cl, ok := c.w.Clients.Get(e.Attachment.Cid); ok {
			name = cl.Name
		}
	}
	lm, err := c.rt.LocalMotionFor(cid, e.Motion)
	if err != nil {
		return
	}
	body := make([]byte, 0, 4+12+12+2+2+len(name))
	eidBuf := make([]byte, 4)
	putU32(eidBuf, uint32(eid))
	body = append(body, eidBuf...)
	body = append(body, writeV3(lm.StartPos)...)
	body = append(body, writeV3(lm.EndPos)...)
	timeBuf := make([]byte, 4)
	putU16(timeBuf[0:2], uint16(lm.StartTime))
	putU16(timeBuf[2:4], uint16(lm.EndTime))
	body = append(body, timeBuf...)
	body = append(body, writeString(name)...)
	_ = c.rt.Send(cid, opEntityUpdate, body)
}

func (c visionCallbacks) InventoryAppear(cid geom.ClientId, iid geom.InventoryId) {}

func (c visionCallbacks) InventoryDisappear(cid geom.ClientId, iid geom.InventoryId) {}

func (c visionCallbacks) InventoryUpdate(cid geom.ClientId, iid geom.InventoryId, slot int) {
	inv, ok := c.w.Inventories.Get(iid)
	if !ok || slot < 0 || slot >= len(inv.Contents) {
		return
	}
	item := inv.Contents[slot]
	body := make([]byte, 4+2+1+4+4)
	putU32(body[0:4], uint32(iid))
	putU16(body[4:6], uint16(slot))
	body[6] = byte(item.Kind)
	putU32(body[7:11], uint32(item.Count))
	putU32(body[11:15], uint32(item.Id))
	_ = c.rt.Send(cid, opInventoryUpdate, body)
}
