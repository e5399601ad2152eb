package vision

import (
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
)

type recordingCallbacks struct {
	chunkAppear, chunkDisappear, chunkUpdate []geom.V2
	entityAppear, entityDisappear            []geom.EntityId
	entityUpdate, entityMotionUpdate         []geom.EntityId
	inventoryAppear, inventoryDisappear      []geom.InventoryId
	inventoryUpdate                          []geom.InventoryId
}

func (r *recordingCallbacks) ChunkAppear(_ geom.ClientId, p geom.V2) { r.chunkAppear = append(r.chunkAppear, p) }
func (r *recordingCallbacks) ChunkDisappear(_ geom.ClientId, p geom.V2) {
	r.chunkDisappear = append(r.chunkDisappear, p)
}
func (r *recordingCallbacks) ChunkUpdate(_ geom.ClientId, p geom.V2) { r.chunkUpdate = append(r.chunkUpdate, p) }
func (r *recordingCallbacks) EntityAppear(_ geom.ClientId, eid geom.EntityId) {
	r.entityAppear = append(r.entityAppear, eid)
}
func (r *recordingCallbacks) EntityDisappear(_ geom.ClientId, eid geom.EntityId) {
	r.entityDisappear = append(r.entityDisappear, eid)
}
func (r *recordingCallbacks) EntityUpdate(_ geom.ClientId, eid geom.EntityId) {
	r.entityUpdate = append(r.entityUpdate, eid)
}
func (r *recordingCallbacks) EntityMotionUpdate(_ geom.ClientId, eid geom.EntityId) {
	r.entityMotionUpdate = append(r.entityMotionUpdate, eid)
}
func (r *recordingCallbacks) InventoryAppear(_ geom.ClientId, iid geom.InventoryId) {
	r.inventoryAppear = append(r.inventoryAppear, iid)
}
func (r *recordingCallbacks) InventoryDisappear(_ geom.ClientId, iid geom.InventoryId) {
	r.inventoryDisappear = append(r.inventoryDisappear, iid)
}
func (r *recordingCallbacks) InventoryUpdate(_ geom.ClientId, iid geom.InventoryId, _ int) {
	r.inventoryUpdate = append(r.inventoryUpdate, iid)
}

func TestAddClientSeesAlreadyLoadedChunkAndEntity(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}

	v.AddEntity(1, map[geom.V2]struct{}{{0, 0}: {}}, cb)
	v.AddChunk(geom.V2{0, 0}, cb)
	cb.chunkAppear, cb.chunkUpdate = nil, nil // reset: no client was viewing yet

	view := geom.Region2{Min: geom.V2{-1, -1}, Max: geom.V2{2, 2}}
	v.AddClient(10, view, cb)

	if len(cb.chunkAppear) != 1 || cb.chunkAppear[0] != (geom.V2{0, 0}) {
		t.Fatalf("chunkAppear = %+v, want [{0 0}]", cb.chunkAppear)
	}
	if len(cb.entityAppear) != 1 || cb.entityAppear[0] != geom.EntityId(1) {
		t.Fatalf("entityAppear = %+v, want [1]", cb.entityAppear)
	}
}

func TestEntityLeavingViewFiresDisappearOnce(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}
	view := geom.Region2{Min: geom.V2{-1, -1}, Max: geom.V2{2, 2}}
	v.AddClient(10, view, cb)

	v.AddEntity(1, map[geom.V2]struct{}{{0, 0}: {}}, cb)
	if len(cb.entityAppear) != 1 {
		t.Fatalf("entityAppear = %+v, want 1 entry", cb.entityAppear)
	}

	v.SetEntityArea(1, map[geom.V2]struct{}{{5, 5}: {}}, cb)
	if len(cb.entityDisappear) != 1 || cb.entityDisappear[0] != geom.EntityId(1) {
		t.Fatalf("entityDisappear = %+v, want [1]", cb.entityDisappear)
	}
}

func TestEntityVisibleFromTwoChunksDisappearsOnlyOnce(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}
	view := geom.Region2{Min: geom.V2{0, 0}, Max: geom.V2{3, 3}}
	v.AddClient(10, view, cb)

	// A 2-chunk-wide entity occupies two cells within the same view.
	v.AddEntity(1, map[geom.V2]struct{}{{0, 0}: {}, {1, 0}: {}}, cb)
	if len(cb.entityAppear) != 1 {
		t.Fatalf("entityAppear should fire exactly once for a multi-chunk entity, got %+v", cb.entityAppear)
	}

	v.RemoveEntity(1, cb)
	if len(cb.entityDisappear) != 1 {
		t.Fatalf("entityDisappear should fire exactly once, got %+v", cb.entityDisappear)
	}
}

func TestRemoveClientCollapsesView(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}
	view := geom.Region2{Min: geom.V2{0, 0}, Max: geom.V2{2, 2}}
	v.AddClient(10, view, cb)
	v.AddChunk(geom.V2{0, 0}, cb)
	cb.chunkDisappear = nil

	v.RemoveClient(10, cb)
	found := false
	for _, p := range cb.chunkDisappear {
		if p == (geom.V2{0, 0}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("chunkDisappear = %+v, want {0 0} present", cb.chunkDisappear)
	}
}

func TestEntityHandoffBetweenOverlappingViewersEmitsMotionUpdate(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}

	v.AddClient(1, geom.Region2{Min: geom.V2{0, 0}, Max: geom.V2{1, 1}}, cb) // sees only (0,0)
	v.AddClient(2, geom.Region2{Min: geom.V2{1, 0}, Max: geom.V2{2, 1}}, cb) // sees only (1,0)
	v.AddClient(3, geom.Region2{Min: geom.V2{0, 0}, Max: geom.V2{2, 1}}, cb) // sees both

	v.AddEntity(1, map[geom.V2]struct{}{{0, 0}: {}}, cb)
	*cb = recordingCallbacks{}

	v.SetEntityArea(1, map[geom.V2]struct{}{{1, 0}: {}}, cb)

	if len(cb.entityDisappear) != 1 || cb.entityDisappear[0] != 1 {
		t.Fatalf("client A should see the entity disappear, got %+v", cb.entityDisappear)
	}
	if len(cb.entityAppear) != 1 || cb.entityAppear[0] != 1 {
		t.Fatalf("client B should see the entity appear, got %+v", cb.entityAppear)
	}
	if len(cb.entityMotionUpdate) != 1 || cb.entityMotionUpdate[0] != 1 {
		t.Fatalf("client C should see only a motion update, got %+v", cb.entityMotionUpdate)
	}
}

func TestInventorySubscriptionIsIdempotentAndGeographyIndependent(t *testing.T) {
	v := New()
	cb := &recordingCallbacks{}

	v.SubscribeInventory(1, 100, cb)
	v.SubscribeInventory(1, 100, cb)
	if len(cb.inventoryAppear) != 1 {
		t.Fatalf("inventoryAppear = %+v, want exactly 1 (idempotent)", cb.inventoryAppear)
	}

	v.UpdateInventory(100, 0, cb)
	if len(cb.inventoryUpdate) != 1 {
		t.Fatalf("inventoryUpdate = %+v, want exactly 1", cb.inventoryUpdate)
	}

	v.UnsubscribeInventory(1, 100, cb)
	if len(cb.inventoryDisappear) != 1 {
		t.Fatalf("inventoryDisappear = %+v, want exactly 1", cb.inventoryDisappear)
	}

	cb.inventoryUpdate = nil
	v.UpdateInventory(100, 0, cb)
	if len(cb.inventoryUpdate) != 0 {
		t.Fatal("unsubscribed client should not receive further inventory updates")
	}
}
