package chunks

import (
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
)

func TestLifecycleRetainLoadsHalo(t *testing.T) {
	lc := newLifecycle()
	loaded := make(map[geom.V2]int)
	load := func(_ geom.PlaneId, cpos geom.V2) { loaded[cpos]++ }

	first := lc.retain(1, geom.V2{X: 5, Y: 5}, load)
	if !first {
		t.Fatal("first retain of a fresh chunk must report true")
	}
	if len(loaded) != 9 {
		t.Fatalf("loaded %d chunks, want 9 (3x3 halo)", len(loaded))
	}
	for _, cpos := range [...]geom.V2{{4, 4}, {5, 4}, {6, 4}, {4, 5}, {5, 5}, {6, 5}, {4, 6}, {5, 6}, {6, 6}} {
		if loaded[cpos] != 1 {
			t.Fatalf("chunk %+v loaded %d times, want 1", cpos, loaded[cpos])
		}
	}
}

func TestLifecycleRetainSharedNeighborLoadsOnce(t *testing.T) {
	lc := newLifecycle()
	loaded := make(map[geom.V2]int)
	load := func(_ geom.PlaneId, cpos geom.V2) { loaded[cpos]++ }

	lc.retain(1, geom.V2{X: 0, Y: 0}, load)
	second := lc.retain(1, geom.V2{X: 1, Y: 0}, load)
	if !second {
		t.Fatal("retain of a distinct user chunk must report true even if halo overlaps")
	}
	// (1,0), (1,-1), (1,1), (0,0), (0,-1), (0,1) overlap between the two 3x3 haloes.
	shared := geom.V2{X: 1, Y: 0}
	if loaded[shared] != 1 {
		t.Fatalf("shared halo chunk loaded %d times, want 1 (refcounted, not reloaded)", loaded[shared])
	}
}

func TestLifecycleReleaseUnloadsHaloOnLastUser(t *testing.T) {
	lc := newLifecycle()
	load := func(geom.PlaneId, geom.V2) {}
	unloaded := make(map[geom.V2]int)
	unload := func(_ geom.PlaneId, cpos geom.V2) { unloaded[cpos]++ }

	lc.retain(1, geom.V2{X: 0, Y: 0}, load)
	last := lc.release(1, geom.V2{X: 0, Y: 0}, unload)
	if !last {
		t.Fatal("release of the sole user must report true")
	}
	if len(unloaded) != 9 {
		t.Fatalf("unloaded %d chunks, want 9", len(unloaded))
	}
}

func TestLifecycleReleaseKeepsSharedNeighborLoaded(t *testing.T) {
	lc := newLifecycle()
	load := func(geom.PlaneId, geom.V2) {}
	unloaded := make(map[geom.V2]int)
	unload := func(_ geom.PlaneId, cpos geom.V2) { unloaded[cpos]++ }

	lc.retain(1, geom.V2{X: 0, Y: 0}, load)
	lc.retain(1, geom.V2{X: 1, Y: 0}, load)
	lc.release(1, geom.V2{X: 0, Y: 0}, unload)

	shared := geom.V2{X: 1, Y: 0}
	if unloaded[shared] != 0 {
		t.Fatalf("shared chunk %+v was unloaded while still retained by a second user", shared)
	}
}
