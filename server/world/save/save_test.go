package save

import (
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/world"
)

type fakeTemplates map[world.TemplateId]*phys.StructureTemplate

func (t fakeTemplates) Template(id world.TemplateId) (*phys.StructureTemplate, bool) {
	tmpl, ok := t[id]
	return tmpl, ok
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestSaveAllLoadAllRoundTrip(t *testing.T) {
	store := openTestStore(t)
	w := world.New()
	f := world.NewFragment(w, fakeTemplates{}, world.NopHooks{}, nil)

	cid := f.CreateClient("alice")
	pid := f.CreatePlane("overworld")
	pStable, _ := w.Planes.Pin(pid)

	eid := f.CreateEntityWorld(pStable, geom.V3{X: 10, Y: 20, Z: 0}, 0)
	if err := f.AttachEntityClient(eid, cid); err != nil {
		t.Fatalf("AttachEntityClient: %v", err)
	}
	c, _ := w.Clients.Get(cid)
	c.Pawn = eid

	if err := SaveAll(store, w); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	saved, err := ListSaved(store)
	if err != nil {
		t.Fatalf("ListSaved: %v", err)
	}
	if len(saved.ClientNames) != 1 || saved.ClientNames[0] != "alice" {
		t.Fatalf("ListSaved.ClientNames = %v, want [alice]", saved.ClientNames)
	}
	if len(saved.Planes) != 1 || len(saved.Entities) != 1 {
		t.Fatalf("ListSaved found %d planes, %d entities, want 1 and 1", len(saved.Planes), len(saved.Entities))
	}

	w2 := world.New()
	if err := LoadAll(store, w2, saved.ClientNames, saved.Planes, saved.Entities, nil, nil); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	cid2, ok := findClientByName(w2, "alice")
	if !ok {
		t.Fatal("loaded world has no client named alice")
	}
	c2, _ := w2.Clients.Get(cid2)
	if c2.Pawn == geom.NoEntity {
		t.Fatal("loaded client has no pawn entity")
	}
	ent2, ok := w2.Entities.Get(c2.Pawn)
	if !ok {
		t.Fatal("loaded pawn entity missing from world")
	}
	if ent2.Motion.StartPos != (geom.V3{X: 10, Y: 20, Z: 0}) {
		t.Fatalf("loaded entity position = %v, want {10 20 0}", ent2.Motion.StartPos)
	}
}

func TestSaveTerrainChunksRoundTrip(t *testing.T) {
	store := openTestStore(t)
	w := world.New()
	f := world.NewFragment(w, fakeTemplates{}, world.NopHooks{}, nil)

	pid := f.CreatePlane("overworld")
	cpos := geom.V2{X: 3, Y: -2}
	tcid, err := f.CreateTerrainChunk(pid, cpos)
	if err != nil {
		t.Fatalf("CreateTerrainChunk: %v", err)
	}
	if err := f.UpdateTerrainChunkBlocks(tcid, func(blocks *phys.BlockChunk) {
		blocks[0] = 7
	}); err != nil {
		t.Fatalf("UpdateTerrainChunkBlocks: %v", err)
	}

	if err := SaveAll(store, w); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := SaveTerrainChunks(store, w); err != nil {
		t.Fatalf("SaveTerrainChunks: %v", err)
	}

	tc, _ := w.TerrainChunks.Get(tcid)
	stable := tc.GetStableId()
	if stable == geom.NoStableId {
		t.Fatal("terrain chunk was never pinned by SaveTerrainChunks")
	}

	var gotBlocks *phys.BlockChunk
	if err := store.ReadTerrainChunk(store.Dir().TerrainChunkPath(stable), func(rd *Reader) error {
		blocks, _, err := DecodeChunkBlocks(rd)
		if err != nil {
			return err
		}
		gotBlocks = blocks
		return nil
	}); err != nil {
		t.Fatalf("ReadTerrainChunk: %v", err)
	}
	if gotBlocks[0] != 7 {
		t.Fatalf("loaded block[0] = %d, want 7", gotBlocks[0])
	}
}

func TestOnlineClientsRoundTrip(t *testing.T) {
	store := openTestStore(t)

	online := map[geom.WireId]string{1: "alice", 2: "bob"}
	if err := WriteOnlineClients(store, online); err != nil {
		t.Fatalf("WriteOnlineClients: %v", err)
	}

	got, err := ReadOnlineClients(store)
	if err != nil {
		t.Fatalf("ReadOnlineClients: %v", err)
	}
	if len(got) != 2 || got[1] != "alice" || got[2] != "bob" {
		t.Fatalf("ReadOnlineClients = %v, want %v", got, online)
	}

	// Consumed exactly once: a second read reports nothing.
	again, err := ReadOnlineClients(store)
	if err != nil {
		t.Fatalf("second ReadOnlineClients: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second ReadOnlineClients = %v, want empty", again)
	}
}

func TestWriteOnlineClientsEmptyRemovesFile(t *testing.T) {
	store := openTestStore(t)
	if err := WriteOnlineClients(store, map[geom.WireId]string{1: "alice"}); err != nil {
		t.Fatalf("WriteOnlineClients: %v", err)
	}
	if err := WriteOnlineClients(store, nil); err != nil {
		t.Fatalf("WriteOnlineClients(nil): %v", err)
	}
	got, err := ReadOnlineClients(store)
	if err != nil {
		t.Fatalf("ReadOnlineClients: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ReadOnlineClients after clearing = %v, want empty", got)
	}
}

func TestCheckpointMarkerRoundTrip(t *testing.T) {
	store := openTestStore(t)

	empty, err := ReadCheckpointMarker(store)
	if err != nil {
		t.Fatalf("ReadCheckpointMarker (missing file): %v", err)
	}
	if empty.RunId != "" {
		t.Fatalf("ReadCheckpointMarker (missing file) = %+v, want zero value", empty)
	}

	want := CheckpointMarker{RunId: "test-run", UnixMilli: 1234}
	if err := WriteCheckpointMarker(store, want); err != nil {
		t.Fatalf("WriteCheckpointMarker: %v", err)
	}
	got, err := ReadCheckpointMarker(store)
	if err != nil {
		t.Fatalf("ReadCheckpointMarker: %v", err)
	}
	if got != want {
		t.Fatalf("ReadCheckpointMarker = %+v, want %+v", got, want)
	}
}
