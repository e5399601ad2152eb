// Package vision tracks, per client, which chunks and entities are
// currently within view, and fires appear/update/disappear callbacks as
// that visible set changes. It has no notion of message encoding or
// network I/O; those live in server/session and the Callbacks
// implementation supplied by the engine.
package vision

import (
	"golang.org/x/exp/maps"

	"github.com/riftkeep/outpostd/server/geom"
)

// ViewSize is the chunk-space view window's extent (columns x rows).
var ViewSize = geom.V2{X: 5, Y: 6}

// ViewAnchor is the offset from the view window's top-left corner to the
// chunk the viewer is centered on.
var ViewAnchor = geom.V2{X: 2, Y: 2}

// RegionFor returns the chunk-space view region centered on the chunk
// containing pixel position pos.
func RegionFor(pos geom.V3) geom.Region2 {
	center := geom.PixelToChunk(pos)
	base := geom.V2{X: center.X - ViewAnchor.X, Y: center.Y - ViewAnchor.Y}
	return geom.Region2{Min: base, Max: geom.V2{X: base.X + ViewSize.X, Y: base.Y + ViewSize.Y}}
}

// Callbacks receives visibility transition notifications. Every method
// must be implemented; the package provides no no-op base type.
type Callbacks interface {
	ChunkAppear(cid geom.ClientId, cpos geom.V2)
	ChunkDisappear(cid geom.ClientId, cpos geom.V2)
	ChunkUpdate(cid geom.ClientId, cpos geom.V2)

	EntityAppear(cid geom.ClientId, eid geom.EntityId)
	EntityDisappear(cid geom.ClientId, eid geom.EntityId)
	EntityUpdate(cid geom.ClientId, eid geom.EntityId)
	// EntityMotionUpdate fires instead of EntityUpdate when an entity's
	// occupied-chunk set changes but a client was already viewing it
	// both before and after (§4.4: "mere area change").
	EntityMotionUpdate(cid geom.ClientId, eid geom.EntityId)

	InventoryAppear(cid geom.ClientId, iid geom.InventoryId)
	InventoryDisappear(cid geom.ClientId, iid geom.InventoryId)
	InventoryUpdate(cid geom.ClientId, iid geom.InventoryId, slot int)
}

type visionClient struct {
	view            geom.Region2
	visibleEntities map[geom.EntityId]int
}

func newVisionClient() *visionClient {
	return &visionClient{visibleEntities: make(map[geom.EntityId]int)}
}

type visionEntity struct {
	area    map[geom.V2]struct{}
	viewers map[geom.ClientId]struct{}
}

func newVisionEntity() *visionEntity {
	return &visionEntity{area: make(map[geom.V2]struct{}), viewers: make(map[geom.ClientId]struct{})}
}

type visionInventory struct {
	subscribers map[geom.ClientId]struct{}
}

func newVisionInventory() *visionInventory {
	return &visionInventory{subscribers: make(map[geom.ClientId]struct{})}
}

// Vision is the spatial visibility tracker: it owns per-client view
// regions and per-entity occupied-chunk sets, and derives a refcounted
// visible-entity set per client from their intersection.
type Vision struct {
	clients     map[geom.ClientId]*visionClient
	entities    map[geom.EntityId]*visionEntity
	inventories map[geom.InventoryId]*visionInventory

	clientsByChunk  map[geom.V2]map[geom.ClientId]struct{}
	entitiesByChunk map[geom.V2]map[geom.EntityId]struct{}
	loadedChunks    map[geom.V2]struct{}
}

// New returns an empty Vision tracker.
func New() *Vision {
	return &Vision{
		clients:         make(map[geom.ClientId]*visionClient),
		entities:        make(map[geom.EntityId]*visionEntity),
		inventories:     make(map[geom.InventoryId]*visionInventory),
		clientsByChunk:  make(map[geom.V2]map[geom.ClientId]struct{}),
		entitiesByChunk: make(map[geom.V2]map[geom.EntityId]struct{}),
		loadedChunks:    make(map[geom.V2]struct{}),
	}
}

// AddClient registers cid with an empty view, then expands it to view.
func (v *Vision) AddClient(cid geom.ClientId, view geom.Region2, cb Callbacks) {
	v.clients[cid] = newVisionClient()
	v.SetClientView(cid, view, cb)
}

// RemoveClient collapses cid's view to empty (disappearing everything it
// could see) and forgets it.
func (v *Vision) RemoveClient(cid geom.ClientId, cb Callbacks) {
	v.SetClientView(cid, geom.Region2{}, cb)
	delete(v.clients, cid)
}

// ClientView returns cid's current view region.
func (v *Vision) ClientView(cid geom.ClientId) (geom.Region2, bool) {
	c, ok := v.clients[cid]
	if !ok {
		return geom.Region2{}, false
	}
	return c.view, true
}

// SetClientView moves cid's view region, firing chunk/entity
// appear/disappear/update for every chunk that leaves or enters view.
func (v *Vision) SetClientView(cid geom.ClientId, newView geom.Region2, cb Callbacks) {
	c, ok := v.clients[cid]
	if !ok {
		return
	}
	oldView := c.view
	c.view = newView

	oldView.Points(func(p geom.V2) {
		if newView.Contains(p) {
			return
		}
		for eid := range v.entitiesByChunk[p] {
			v.releaseVisible(c, cid, eid, cb)
		}
		if _, loaded := v.loadedChunks[p]; loaded {
			cb.ChunkDisappear(cid, p)
		}
		v.unindexClientChunk(p, cid)
	})

	newView.Points(func(p geom.V2) {
		if oldView.Contains(p) {
			return
		}
		for eid := range v.entitiesByChunk[p] {
			v.retainVisible(c, cid, eid, cb)
		}
		if _, loaded := v.loadedChunks[p]; loaded {
			cb.ChunkAppear(cid, p)
			cb.ChunkUpdate(cid, p)
		}
		v.indexClientChunk(p, cid)
	})
}

func (v *Vision) retainVisible(c *visionClient, cid geom.ClientId, eid geom.EntityId, cb Callbacks) {
	c.visibleEntities[eid]++
	if c.visibleEntities[eid] != 1 {
		return
	}
	cb.EntityAppear(cid, eid)
	cb.EntityUpdate(cid, eid)
	if e, ok := v.entities[eid]; ok {
		e.viewers[cid] = struct{}{}
	}
}

func (v *Vision) releaseVisible(c *visionClient, cid geom.ClientId, eid geom.EntityId, cb Callbacks) {
	count, ok := c.visibleEntities[eid]
	if !ok {
		return
	}
	count--
	if count > 0 {
		c.visibleEntities[eid] = count
		return
	}
	delete(c.visibleEntities, eid)
	cb.EntityDisappear(cid, eid)
	if e, ok := v.entities[eid]; ok {
		delete(e.viewers, cid)
	}
}

// AddEntity registers eid with an empty occupied-chunk set, then expands
// it to area.
func (v *Vision) AddEntity(eid geom.EntityId, area map[geom.V2]struct{}, cb Callbacks) {
	v.entities[eid] = newVisionEntity()
	v.SetEntityArea(eid, area, cb)
}

// RemoveEntity collapses eid's occupied-chunk set to empty and forgets it.
func (v *Vision) RemoveEntity(eid geom.EntityId, cb Callbacks) {
	v.SetEntityArea(eid, nil, cb)
	delete(v.entities, eid)
}

// SetEntityArea moves the set of chunks eid occupies (for a multi-tile
// entity this may be more than one chunk), firing appear/disappear for
// every viewing client whose visibility of eid changes, and a single
// update to every client that keeps viewing it throughout.
func (v *Vision) SetEntityArea(eid geom.EntityId, newArea map[geom.V2]struct{}, cb Callbacks) {
	e, ok := v.entities[eid]
	if !ok {
		return
	}
	oldArea := e.area
	e.area = make(map[geom.V2]struct{})

	oldViewers := maps.Clone(e.viewers)

	// Retain the newly occupied chunks before releasing the vacated ones,
	// so a client viewing both keeps a nonzero count throughout.
	var released []geom.V2
	for p := range oldArea {
		if _, still := newArea[p]; !still {
			released = append(released, p)
		}
	}

	for p := range newArea {
		if _, had := oldArea[p]; had {
			continue
		}
		for cid := range v.clientsByChunk[p] {
			v.retainVisible(v.clients[cid], cid, eid, cb)
		}
		v.indexEntityChunk(p, eid)
	}

	for _, p := range released {
		for cid := range v.clientsByChunk[p] {
			v.releaseVisible(v.clients[cid], cid, eid, cb)
		}
		v.unindexEntityChunk(p, eid)
	}

	// A client that viewed eid both before and after this area change
	// sees it move, not appear/disappear (§4.4).
	for cid := range e.viewers {
		if _, was := oldViewers[cid]; was {
			cb.EntityMotionUpdate(cid, eid)
		}
	}

	e.area = newArea
}

// AddChunk marks a chunk loaded, firing chunk appear+update to every
// client currently viewing it.
func (v *Vision) AddChunk(cpos geom.V2, cb Callbacks) {
	v.loadedChunks[cpos] = struct{}{}
	for cid := range v.clientsByChunk[cpos] {
		cb.ChunkAppear(cid, cpos)
		cb.ChunkUpdate(cid, cpos)
	}
}

// RemoveChunk marks a chunk unloaded, firing chunk disappear to every
// client currently viewing it.
func (v *Vision) RemoveChunk(cpos geom.V2, cb Callbacks) {
	for cid := range v.clientsByChunk[cpos] {
		cb.ChunkDisappear(cid, cpos)
	}
	delete(v.loadedChunks, cpos)
}

// UpdateChunk fires chunk update to every client currently viewing cpos
// (e.g. after a block edit or terrain generation finishes).
func (v *Vision) UpdateChunk(cpos geom.V2, cb Callbacks) {
	for cid := range v.clientsByChunk[cpos] {
		cb.ChunkUpdate(cid, cpos)
	}
}

func (v *Vision) indexClientChunk(p geom.V2, cid geom.ClientId) {
	set, ok := v.clientsByChunk[p]
	if !ok {
		set = make(map[geom.ClientId]struct{})
		v.clientsByChunk[p] = set
	}
	set[cid] = struct{}{}
}

func (v *Vision) unindexClientChunk(p geom.V2, cid geom.ClientId) {
	if set, ok := v.clientsByChunk[p]; ok {
		delete(set, cid)
		if len(set) == 0 {
			delete(v.clientsByChunk, p)
		}
	}
}

func (v *Vision) indexEntityChunk(p geom.V2, eid geom.EntityId) {
	set, ok := v.entitiesByChunk[p]
	if !ok {
		set = make(map[geom.EntityId]struct{})
		v.entitiesByChunk[p] = set
	}
	set[eid] = struct{}{}
}

func (v *Vision) unindexEntityChunk(p geom.V2, eid geom.EntityId) {
	if set, ok := v.entitiesByChunk[p]; ok {
		delete(set, eid)
		if len(set) == 0 {
			delete(v.entitiesByChunk, p)
		}
	}
}

// SubscribeInventory registers cid's interest in iid, independent of
// geography, firing InventoryAppear on the first subscription. Idempotent
// double-subscription fires no extra callback.
func (v *Vision) SubscribeInventory(cid geom.ClientId, iid geom.InventoryId, cb Callbacks) {
	inv, ok := v.inventories[iid]
	if !ok {
		inv = newVisionInventory()
		v.inventories[iid] = inv
	}
	if _, already := inv.subscribers[cid]; already {
		return
	}
	inv.subscribers[cid] = struct{}{}
	cb.InventoryAppear(cid, iid)
}

// UnsubscribeInventory withdraws cid's interest in iid, firing
// InventoryDisappear if it was subscribed.
func (v *Vision) UnsubscribeInventory(cid geom.ClientId, iid geom.InventoryId, cb Callbacks) {
	inv, ok := v.inventories[iid]
	if !ok {
		return
	}
	if _, subscribed := inv.subscribers[cid]; !subscribed {
		return
	}
	delete(inv.subscribers, cid)
	if len(inv.subscribers) == 0 {
		delete(v.inventories, iid)
	}
	cb.InventoryDisappear(cid, iid)
}

// UpdateInventory notifies every client subscribed to iid that slot
// changed.
func (v *Vision) UpdateInventory(iid geom.InventoryId, slot int, cb Callbacks) {
	inv, ok := v.inventories[iid]
	if !ok {
		return
	}
	for cid := range inv.subscribers {
		cb.InventoryUpdate(cid, iid, slot)
	}
}
