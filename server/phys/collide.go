package phys

import "github.com/riftkeep/outpostd/server/geom"

// DurationMax is the largest motion duration (in ms) the kernel will ever
// report; it also stands in for "effectively stationary" when velocity is
// zero or fully blocked.
const DurationMax int32 = 0xFFFF

// walkIterationLimit bounds the integer accumulator walk so that a
// degenerate velocity (absurdly large, or a cache bug) can never hang the
// engine goroutine.
const walkIterationLimit = 500

// accumStep is the per-axis accumulator threshold; velocity components are
// expressed in pixels per accumStep ticks (pixels/1000 ticks).
const accumStep = 1000

// ShapeSource is the read interface the collision kernel needs: the
// occupancy of any tile within one plane. *Cache implements this once
// bound to a plane via Cache.ShapeAt (plane is passed alongside pos there;
// callers of Collide bind a single plane by closing over it).
type ShapeSource interface {
	ShapeAt(pos geom.V3) Shape
}

// CheckRegion reports whether an axis-aligned box may be occupied by a
// moving entity: the box must lie entirely at non-negative coordinates,
// its bottom must be tile-aligned in z, every tile along the bottom layer
// must be Floor, and every tile above the bottom within the box must be
// empty (Empty or RampTop).
func CheckRegion(source ShapeSource, box geom.Region3) bool {
	if box.Min.X < 0 || box.Min.Y < 0 || box.Min.Z < 0 {
		return false
	}
	if box.Min.Z%geom.TileSize != 0 {
		return false
	}
	xLo, xHi := geom.PixelToTile(box.Min.X), geom.PixelToTile(box.Max.X-1)
	yLo, yHi := geom.PixelToTile(box.Min.Y), geom.PixelToTile(box.Max.Y-1)
	zLo, zHi := geom.PixelToTile(box.Min.Z), geom.PixelToTile(box.Max.Z-1)

	for ty := yLo; ty <= yHi; ty++ {
		for tx := xLo; tx <= xHi; tx++ {
			pos := geom.V3{X: tx * geom.TileSize, Y: ty * geom.TileSize, Z: zLo * geom.TileSize}
			if source.ShapeAt(pos) != Floor {
				return false
			}
		}
	}
	for tz := zLo + 1; tz <= zHi; tz++ {
		for ty := yLo; ty <= yHi; ty++ {
			for tx := xLo; tx <= xHi; tx++ {
				pos := geom.V3{X: tx * geom.TileSize, Y: ty * geom.TileSize, Z: tz * geom.TileSize}
				if !source.ShapeAt(pos).IsEmpty() {
					return false
				}
			}
		}
	}
	return true
}

// leadingSlab builds the 1-pixel-thick face a moving box sweeps into when
// it advances by one pixel along axis (0=X,1=Y,2=Z) in the given sign.
func leadingSlab(pos, size geom.V3, axis int, sign int32) geom.Region3 {
	min, max := pos, pos.Add(size)
	switch axis {
	case 0:
		if sign > 0 {
			min.X, max.X = max.X, max.X+1
		} else {
			min.X, max.X = min.X-1, min.X
		}
	case 1:
		if sign > 0 {
			min.Y, max.Y = max.Y, max.Y+1
		} else {
			min.Y, max.Y = min.Y-1, min.Y
		}
	case 2:
		if sign > 0 {
			min.Z, max.Z = max.Z, max.Z+1
		} else {
			min.Z, max.Z = min.Z-1, min.Z
		}
	}
	return geom.Region3{Min: min, Max: max}
}

func signOf(v int32) int32 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

func axisComponent(v geom.V3, axis int) int32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setAxisComponent(v *geom.V3, axis int, val int32) {
	switch axis {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
}

// walkPath advances pos along velocity one pixel at a time using an
// integer accumulator (no floating point), stopping permanently on any
// axis whose leading face fails CheckRegion. It returns the farthest
// reachable position.
//
// Each outer iteration represents one pixel of travel along the dominant
// axis (the one with the largest |velocity| component); the other axes
// accumulate toward that same per-iteration threshold, so they advance in
// proportion to the dominant axis exactly as the duration formula in
// duration() assumes. This bounds the walk by distance travelled, not by
// simulated time, so walkIterationLimit comfortably covers any single
// physics step regardless of how slow velocity is.
func walkPath(source ShapeSource, size, pos, velocity geom.V3) geom.V3 {
	denom := int32(0)
	for axis := 0; axis < 3; axis++ {
		v := axisComponent(velocity, axis)
		if v < 0 {
			v = -v
		}
		if v > denom {
			denom = v
		}
	}
	if denom == 0 {
		return pos
	}

	var accum [3]int32
	blocked := [3]bool{}
	for iter := 0; iter < walkIterationLimit; iter++ {
		advanced := false
		for axis := 0; axis < 3; axis++ {
			if blocked[axis] {
				continue
			}
			v := axisComponent(velocity, axis)
			if v == 0 {
				continue
			}
			sign := signOf(v)
			accum[axis] += v * sign // accumulate |v|
			for accum[axis] >= denom {
				candidate := pos
				setAxisComponent(&candidate, axis, axisComponent(pos, axis)+sign)
				slab := leadingSlab(pos, size, axis, sign)
				if !CheckRegion(source, slab) {
					blocked[axis] = true
					accum[axis] = 0
					break
				}
				pos = candidate
				accum[axis] -= denom
				advanced = true
			}
		}
		if !advanced {
			break
		}
	}
	return pos
}

// checkSide reports whether the 1-pixel face immediately adjoining pos on
// the given axis and sign is free to enter.
func checkSide(source ShapeSource, pos, size geom.V3, axis int, sign int32) bool {
	return CheckRegion(source, leadingSlab(pos, size, axis, sign))
}

// Collide is the collision kernel's entry point: given a ShapeSource, the
// axis-aligned size of a moving box, its starting position, and an
// integer pixel velocity (units per 1000 ticks), it returns the resulting
// end position and the duration (ms) that motion takes, clamped to
// DurationMax.
func Collide(source ShapeSource, size, pos, velocity geom.V3) (geom.V3, int32) {
	if velocity.IsZero() {
		return pos, DurationMax
	}

	end := walkPath(source, size, pos, velocity)
	if end == pos {
		// Fully blocked on the first pass: determine which axes are
		// blocked and retry with those zeroed out (sliding along the
		// remaining axes).
		slideVel := velocity
		for axis := 0; axis < 3; axis++ {
			v := axisComponent(velocity, axis)
			if v == 0 {
				continue
			}
			if !checkSide(source, pos, size, axis, signOf(v)) {
				setAxisComponent(&slideVel, axis, 0)
			}
		}
		if !slideVel.IsZero() {
			end = walkPath(source, size, pos, slideVel)
		}
	}

	return end, duration(pos, end, velocity)
}

// duration computes the dominant-axis travel time in ms, clamped to
// DurationMax, and promoted to DurationMax if clamping would otherwise
// yield zero (the "stationary with a target velocity" case).
func duration(start, end, velocity geom.V3) int32 {
	if start == end {
		return DurationMax
	}
	bestAxis, bestAbs := 0, int32(0)
	for axis := 0; axis < 3; axis++ {
		v := axisComponent(velocity, axis)
		if v < 0 {
			v = -v
		}
		if v > bestAbs {
			bestAbs, bestAxis = v, axis
		}
	}
	if bestAbs == 0 {
		return DurationMax
	}
	delta := axisComponent(end, bestAxis) - axisComponent(start, bestAxis)
	if delta < 0 {
		delta = -delta
	}
	// Widen to avoid overflow: delta and velocity are both bounded by
	// world extent but the product can exceed int32.
	d := int64(delta) * int64(accumStep) / int64(bestAbs)
	if d <= 0 {
		return DurationMax
	}
	if d > int64(DurationMax) {
		return DurationMax
	}
	return int32(d)
}
