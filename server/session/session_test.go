package session

import (
	"bytes"
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world"
)

func newTestRouter(t *testing.T) (*Router, *bytes.Buffer, geom.WireId) {
	t.Helper()
	r := NewRouter()
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf, nil)
	t.Cleanup(enc.Close)
	wid := geom.WireId(1)
	r.AddWire(wid, enc)
	return r, &buf, wid
}

func TestSendRoutesThroughBoundWire(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(1, wid)

	if err := r.Send(1, 0x1234, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendUnknownClientFails(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if err := r.Send(99, 0, nil); err != ErrUnknownClient {
		t.Fatalf("Send for unbound client: got %v, want ErrUnknownClient", err)
	}
}

func TestRemoveWireUnbindsItsClient(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(5, wid)

	cid, had := r.RemoveWire(wid)
	if !had || cid != 5 {
		t.Fatalf("RemoveWire = (%v, %v), want (5, true)", cid, had)
	}
	if _, ok := r.ClientForWire(wid); ok {
		t.Fatal("client still resolvable after its wire was removed")
	}
	if err := r.Send(5, 0, nil); err != ErrUnknownClient {
		t.Fatalf("Send after RemoveWire: got %v, want ErrUnknownClient", err)
	}
}

func TestLocalChunkIndexWrapsIntoWindow(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(1, wid)

	// Force a known offset so the wrap arithmetic is checkable.
	r.mu.Lock()
	r.infos[1].chunkOff = geom.V2{X: 0, Y: 0}
	r.mu.Unlock()

	idx, err := r.LocalChunkIndex(1, geom.V2{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("LocalChunkIndex: %v", err)
	}
	if idx != 0 {
		t.Fatalf("index = %d, want 0", idx)
	}

	// LocalSize chunks away must wrap back to the same index.
	idx2, err := r.LocalChunkIndex(1, geom.V2{X: LocalSize, Y: 0})
	if err != nil {
		t.Fatalf("LocalChunkIndex: %v", err)
	}
	if idx2 != idx {
		t.Fatalf("index after a full wrap = %d, want %d", idx2, idx)
	}
}

func TestLocalPosWrapsAtWindowBoundary(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(1, wid)
	r.mu.Lock()
	r.infos[1].chunkOff = geom.V2{X: 0, Y: 0}
	r.mu.Unlock()

	pos := geom.V3{X: localPixelExtent + 10, Y: 5, Z: 3}
	got, err := r.LocalPos(1, pos)
	if err != nil {
		t.Fatalf("LocalPos: %v", err)
	}
	want := geom.V3{X: 10, Y: 5, Z: 3}
	if got != want {
		t.Fatalf("LocalPos = %+v, want %+v", got, want)
	}
}

func TestLocalMotionForPreservesDeltaAcrossWrap(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(1, wid)
	r.mu.Lock()
	r.infos[1].chunkOff = geom.V2{X: 0, Y: 0}
	r.mu.Unlock()

	m := world.Motion{
		StartPos:  geom.V3{X: localPixelExtent - 5, Y: 0, Z: 0},
		EndPos:    geom.V3{X: localPixelExtent + 5, Y: 0, Z: 0},
		StartTime: 1000,
		Duration:  200,
	}
	lm, err := r.LocalMotionFor(1, m)
	if err != nil {
		t.Fatalf("LocalMotionFor: %v", err)
	}
	gotDelta := int32(lm.EndPos.X) - int32(lm.StartPos.X)
	wantDelta := int32(10)
	if gotDelta != wantDelta {
		t.Fatalf("delta across wrap = %d, want %d (unwrapped motion must not jump)", gotDelta, wantDelta)
	}
}

func TestMaybeCheckViewThrottles(t *testing.T) {
	r, _, wid := newTestRouter(t)
	r.AddClient(1, wid)

	if !r.MaybeCheckView(1, 0) {
		t.Fatal("first check at t=0 should be allowed")
	}
	if r.MaybeCheckView(1, 500) {
		t.Fatal("check 500ms later should be throttled")
	}
	if !r.MaybeCheckView(1, 1000) {
		t.Fatal("check exactly 1000ms later should be allowed")
	}
}

func TestLocalTimeRoundTripsNearBase(t *testing.T) {
	base := world.Time(1_000_000)
	for _, delta := range []int64{0, 1, -1, 30000, -30000} {
		want := base + world.Time(delta)
		lt := ToLocalTime(want)
		got := FromLocalTime(lt, base)
		if got != want {
			t.Fatalf("delta %d: round-trip = %d, want %d", delta, got, want)
		}
	}
}
