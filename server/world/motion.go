package world

import "github.com/riftkeep/outpostd/server/geom"

// Time is world-time in milliseconds, distinct from wall-clock time. The
// engine keeps a constant offset between the two (see server/timer).
type Time int64

// Motion describes an entity's linear interpolation between two pixel
// positions over a span of world-time. Position at time t interpolates
// linearly between StartPos and EndPos and clamps to EndPos once t passes
// EndTime.
type Motion struct {
	StartPos  geom.V3
	EndPos    geom.V3
	StartTime Time
	Duration  int32 // ms; DurationMax sentinel means "never arrives"
}

// FixedMotion returns a Motion describing an entity that never moves.
func FixedMotion(pos geom.V3, now Time) Motion {
	return Motion{StartPos: pos, EndPos: pos, StartTime: now, Duration: 0}
}

// EndTime returns the world-time at which motion completes.
func (m Motion) EndTime() Time {
	return m.StartTime + Time(m.Duration)
}

// Stationary reports whether the motion never changes position.
func (m Motion) Stationary() bool {
	return m.StartPos == m.EndPos
}

// Fixed reports whether the motion is both stationary and effectively
// permanent (duration is zero, i.e. it never completes to re-trigger a
// physics update). Chunk-attached entities are required to have Fixed
// motion; see the attach-to-Chunk validation in fragment.go.
func (m Motion) Fixed() bool {
	return m.Stationary() && m.Duration == 0
}

// PosAt returns the interpolated position at world-time t, clamping to
// EndPos once t reaches EndTime. Interpolation widens to int64 during the
// multiply to avoid overflow across world-sized deltas (see design notes
// on integer overflow in motion interpolation).
func (m Motion) PosAt(t Time) geom.V3 {
	if m.Duration <= 0 || t >= m.EndTime() {
		return m.EndPos
	}
	if t <= m.StartTime {
		return m.StartPos
	}
	elapsed := int64(t - m.StartTime)
	total := int64(m.Duration)
	return geom.V3{
		X: lerp(m.StartPos.X, m.EndPos.X, elapsed, total),
		Y: lerp(m.StartPos.Y, m.EndPos.Y, elapsed, total),
		Z: lerp(m.StartPos.Z, m.EndPos.Z, elapsed, total),
	}
}

func lerp(start, end int32, elapsed, total int64) int32 {
	delta := int64(end) - int64(start)
	return start + int32(delta*elapsed/total)
}
