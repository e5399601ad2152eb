package phys

import (
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
)

// flatFloor is a ShapeSource over an infinite flat floor at z=0 with a
// solid wall starting at tile x=wallTile (inclusive), used to exercise
// collision against a boundary.
type flatFloor struct {
	wallTile int32 // tiles >= wallTile, at z>0, are Solid; set to a huge value to disable.
}

func (f flatFloor) ShapeAt(pos geom.V3) Shape {
	tx := geom.PixelToTile(pos.X)
	tz := geom.PixelToTile(pos.Z)
	if tz == 0 {
		return Floor
	}
	if tx >= f.wallTile {
		return Solid
	}
	return Empty
}

func TestCollideFreeMovement(t *testing.T) {
	src := flatFloor{wallTile: 1 << 20}
	size := geom.V3{X: 20, Y: 20, Z: 60}
	start := geom.V3{X: geom.TileSize, Y: geom.TileSize, Z: 0}
	velocity := geom.V3{X: 32, Y: 0, Z: 0}

	end, dur := Collide(src, size, start, velocity)
	wantEnd := geom.V3{X: start.X + geom.TileSize, Y: start.Y, Z: start.Z}
	if end != wantEnd {
		t.Fatalf("end = %+v, want %+v", end, wantEnd)
	}
	wantDur := int32(1000 * geom.TileSize / 32)
	if dur != wantDur {
		t.Fatalf("duration = %d, want %d", dur, wantDur)
	}
}

func TestCollideStopsAtWall(t *testing.T) {
	// Wall starts at tile x=5, i.e. pixel x=160. The moving box is a
	// single pixel wide in x so its leading edge sits exactly at its own
	// position, matching the worked example in the specification
	// scenario.
	src := flatFloor{wallTile: 5}
	size := geom.V3{X: 1, Y: 1, Z: 60}
	start := geom.V3{X: geom.TileSize, Y: geom.TileSize, Z: 0}
	velocity := geom.V3{X: 150, Y: 0, Z: 0}

	end, _ := Collide(src, size, start, velocity)
	if end.X >= 160 {
		t.Fatalf("entity passed through wall: end.X = %d", end.X)
	}
	if end.X != 159 {
		t.Fatalf("end.X = %d, want 159 (stopped one pixel shy of the wall)", end.X)
	}
}

func TestCollideZeroVelocity(t *testing.T) {
	src := flatFloor{wallTile: 1 << 20}
	pos := geom.V3{X: 50, Y: 50, Z: 0}
	end, dur := Collide(src, geom.V3{X: 20, Y: 20, Z: 60}, pos, geom.V3{})
	if end != pos {
		t.Fatalf("end = %+v, want unchanged %+v", end, pos)
	}
	if dur != DurationMax {
		t.Fatalf("duration = %d, want DurationMax", dur)
	}
}

func TestShapePredicates(t *testing.T) {
	if !RampE.IsRamp() || !RampW.IsRamp() || !RampS.IsRamp() || !RampN.IsRamp() {
		t.Fatal("ramp variants must report IsRamp")
	}
	if Floor.IsRamp() || Solid.IsRamp() || Empty.IsRamp() {
		t.Fatal("non-ramp shapes must not report IsRamp")
	}
	if !Empty.IsEmpty() || !RampTop.IsEmpty() {
		t.Fatal("Empty and RampTop must report IsEmpty")
	}
	if Floor.IsEmpty() || Solid.IsEmpty() {
		t.Fatal("Floor and Solid must not report IsEmpty")
	}
}
