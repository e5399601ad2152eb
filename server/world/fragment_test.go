package world

import (
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

type fakeTemplates map[TemplateId]*phys.StructureTemplate

func (t fakeTemplates) Template(id TemplateId) (*phys.StructureTemplate, bool) {
	tmpl, ok := t[id]
	return tmpl, ok
}

func newTestFragment() (*Fragment, fakeTemplates) {
	w := New()
	templates := fakeTemplates{
		1: {Size: geom.V3{X: 1, Y: 1, Z: 1}, Layer: 0, TileShape: []phys.Shape{phys.Solid}},
	}
	return NewFragment(w, templates, NopHooks{}, nil), templates
}

func TestCreateDestroyClientCascades(t *testing.T) {
	f, _ := newTestFragment()
	cid := f.CreateClient("alice")

	plane := f.CreatePlane("overworld")
	p, _ := f.W.Planes.Get(plane)
	stable, _ := f.W.Planes.Pin(plane)

	eid := f.CreateEntityWorld(stable, geom.V3{}, 0)
	if err := f.AttachEntityClient(eid, cid); err != nil {
		t.Fatalf("AttachEntityClient: %v", err)
	}
	iid, err := f.CreateInventory(10, InventoryAttachment{Kind: InvAttachClient, Cid: cid})
	if err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}

	if err := f.DestroyClient(cid); err != nil {
		t.Fatalf("DestroyClient: %v", err)
	}
	if _, ok := f.W.Entities.Get(eid); ok {
		t.Fatal("entity should have been destroyed with its client")
	}
	if _, ok := f.W.Inventories.Get(iid); ok {
		t.Fatal("inventory should have been destroyed with its client")
	}
	if _, ok := f.W.Clients.Get(cid); ok {
		t.Fatal("client should no longer exist")
	}
	_ = p
}

func TestChunkAttachRequiresFixedMotion(t *testing.T) {
	f, _ := newTestFragment()
	plane := f.CreatePlane("overworld")
	stable, _ := f.W.Planes.Pin(plane)
	tcid, err := f.CreateTerrainChunk(plane, geom.V2{})
	if err != nil {
		t.Fatalf("CreateTerrainChunk: %v", err)
	}

	eid := f.CreateEntityWorld(stable, geom.V3{}, 0)
	e, _ := f.W.Entities.Get(eid)
	e.Motion = Motion{StartPos: geom.V3{}, EndPos: geom.V3{X: 32}, StartTime: 0, Duration: 500}

	if err := f.AttachEntityChunk(eid, tcid); err != ErrChunkMotionNotFixed {
		t.Fatalf("AttachEntityChunk with moving entity: got %v, want ErrChunkMotionNotFixed", err)
	}

	e.Motion = FixedMotion(geom.V3{}, 0)
	if err := f.AttachEntityChunk(eid, tcid); err != nil {
		t.Fatalf("AttachEntityChunk with fixed entity: %v", err)
	}

	if err := f.DestroyTerrainChunk(tcid); err != nil {
		t.Fatalf("DestroyTerrainChunk: %v", err)
	}
	if _, ok := f.W.Entities.Get(eid); ok {
		t.Fatal("chunk-attached entity should be destroyed when its chunk unloads")
	}
}

func TestPlaneAttachedStructureSurvivesChunkUnload(t *testing.T) {
	f, _ := newTestFragment()
	plane := f.CreatePlane("overworld")
	tcid, err := f.CreateTerrainChunk(plane, geom.V2{})
	if err != nil {
		t.Fatalf("CreateTerrainChunk: %v", err)
	}

	sid, err := f.CreateStructure(plane, geom.V3{}, 1, StructAttachPlane)
	if err != nil {
		t.Fatalf("CreateStructure: %v", err)
	}

	if err := f.DestroyTerrainChunk(tcid); err != nil {
		t.Fatalf("DestroyTerrainChunk: %v", err)
	}
	if _, ok := f.W.Structures.Get(sid); !ok {
		t.Fatal("plane-attached structure must survive its chunk unloading")
	}
}

func TestChunkAttachedStructureDestroyedWithChunk(t *testing.T) {
	f, _ := newTestFragment()
	plane := f.CreatePlane("overworld")
	tcid, err := f.CreateTerrainChunk(plane, geom.V2{})
	if err != nil {
		t.Fatalf("CreateTerrainChunk: %v", err)
	}

	sid, err := f.CreateStructure(plane, geom.V3{}, 1, StructAttachChunk)
	if err != nil {
		t.Fatalf("CreateStructure: %v", err)
	}
	if len(f.W.StructuresInChunk(plane, geom.V2{})) != 1 {
		t.Fatal("structure should be indexed against its chunk")
	}

	if err := f.DestroyTerrainChunk(tcid); err != nil {
		t.Fatalf("DestroyTerrainChunk: %v", err)
	}
	if _, ok := f.W.Structures.Get(sid); ok {
		t.Fatal("chunk-attached structure must be destroyed with its chunk")
	}
	if len(f.W.StructuresInChunk(plane, geom.V2{})) != 0 {
		t.Fatal("destroyed structure must be unindexed")
	}
}

func TestMoveInventoryItemsAcrossInventories(t *testing.T) {
	f, _ := newTestFragment()
	src, err := f.CreateInventory(4, InventoryAttachment{Kind: InvAttachWorld})
	if err != nil {
		t.Fatalf("CreateInventory src: %v", err)
	}
	dst, err := f.CreateInventory(4, InventoryAttachment{Kind: InvAttachWorld})
	if err != nil {
		t.Fatalf("CreateInventory dst: %v", err)
	}
	srcInv, _ := f.W.Inventories.Get(src)
	srcInv.Contents[0] = Item{Kind: ItemBulk, Count: 5, Id: 42}

	moved, err := f.MoveInventoryItems(src, 0, dst, 0, 3)
	if err != nil {
		t.Fatalf("MoveInventoryItems: %v", err)
	}
	if moved != 3 {
		t.Fatalf("moved = %d, want 3", moved)
	}
	dstInv, _ := f.W.Inventories.Get(dst)
	if dstInv.Contents[0] != (Item{Kind: ItemBulk, Count: 3, Id: 42}) {
		t.Fatalf("dst slot = %+v", dstInv.Contents[0])
	}
	if srcInv.Contents[0] != (Item{Kind: ItemBulk, Count: 2, Id: 42}) {
		t.Fatalf("src slot = %+v", srcInv.Contents[0])
	}
}

func TestReplaceStructureTemplateReindexes(t *testing.T) {
	f, templates := newTestFragment()
	templates[2] = &phys.StructureTemplate{Size: geom.V3{X: 1, Y: 1, Z: 1}, TileShape: []phys.Shape{phys.Solid}}

	plane := f.CreatePlane("overworld")
	sid, err := f.CreateStructure(plane, geom.V3{}, 1, StructAttachPlane)
	if err != nil {
		t.Fatalf("CreateStructure: %v", err)
	}
	if err := f.ReplaceStructureTemplate(sid, 2); err != nil {
		t.Fatalf("ReplaceStructureTemplate: %v", err)
	}
	s, _ := f.W.Structures.Get(sid)
	if s.Template != 2 {
		t.Fatalf("template = %d, want 2", s.Template)
	}
	if len(f.W.StructuresInChunk(plane, geom.V2{})) != 1 {
		t.Fatal("structure should still be indexed against its chunk after replace")
	}
}
