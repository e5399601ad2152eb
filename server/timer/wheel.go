// Package timer implements the two-level timing wheel described in
// SPEC_FULL.md §4.6: a background goroutine that turns scheduled
// times into cookie wakeups delivered back to the engine over a
// channel, with cookie-based idempotent cancellation.
package timer

import (
	"sort"
	"time"
)

// Time is a wall-clock instant in Unix milliseconds, the scale now()
// reads. The engine converts its own world-time to and from this scale by
// adding or subtracting its startup epoch.
type Time int64

const (
	// bucketBits sizes one wheel bucket to 2^bucketBits milliseconds.
	bucketBits = 3
	bucketMS   = 1 << bucketBits

	// wheelBits sizes the whole level-1 wheel; anything farther out than
	// this horizon is parked in the level-2 overflow list until it gets
	// close enough to be promoted.
	wheelBits    = 17
	wheelMS      = 1 << wheelBits
	wheelBuckets = 1 << (wheelBits - bucketBits)

	// updateInterval is how often (in wheel time) the overflow list is
	// scanned for entries to promote into the wheel proper.
	updateInterval = wheelMS / 2
)

// wake is one pending timer entry: the Time it fires at and the
// cookie identifying it.
type wake struct {
	when   Time
	cookie uint32
}

// wheel is the pure scheduling data structure; it owns no goroutines or
// channels itself so it can be driven and tested synchronously.
type wheel struct {
	now     Time
	buckets [wheelBuckets][]wake
	later   []wake
}

func newWheel(now Time) *wheel {
	return &wheel{now: now}
}

// schedule inserts a wake, clamping times in the past to fire on the next
// tick rather than being lost.
func (w *wheel) schedule(wk wake) {
	if wk.when < w.now {
		wk.when = w.now
	}
	if wk.when-w.now >= wheelMS {
		w.later = append(w.later, wk)
		return
	}
	idx := bucketIndex(wk.when)
	w.buckets[idx] = append(w.buckets[idx], wk)
}

// cancel removes a previously scheduled wake, if it hasn't fired yet. It
// is a no-op (not an error) if the wake is already gone — the idempotent
// cancellation semantics required by §4.6.
func (w *wheel) cancel(wk wake) {
	if wk.when < w.now {
		return
	}
	idx := bucketIndex(wk.when)
	if removeWake(&w.buckets[idx], wk) {
		return
	}
	removeWake(&w.later, wk)
}

func removeWake(bucket *[]wake, wk wake) bool {
	b := *bucket
	for i, cand := range b {
		if cand == wk {
			*bucket = append(b[:i], b[i+1:]...)
			return true
		}
	}
	return false
}

// advance moves the wheel forward by one bucket, returning the cookies
// due at the bucket just vacated, sorted by their exact offset within it
// so simultaneous ties fire in schedule order.
func (w *wheel) advance() []uint32 {
	idx := bucketIndex(w.now)
	due := w.buckets[idx]
	w.buckets[idx] = nil
	w.now += bucketMS

	if w.now%updateInterval == 0 {
		w.promoteOverflow()
	}

	sort.SliceStable(due, func(i, j int) bool { return due[i].when < due[j].when })
	cookies := make([]uint32, len(due))
	for i, wk := range due {
		cookies[i] = wk.cookie
	}
	return cookies
}

// promoteOverflow moves every level-2 entry that has come within the
// wheel's horizon back into the bucket array.
func (w *wheel) promoteOverflow() {
	kept := w.later[:0]
	for _, wk := range w.later {
		if wk.when < w.now+wheelMS {
			w.schedule(wk)
		} else {
			kept = append(kept, wk)
		}
	}
	w.later = kept
}

// nextTick returns the Time the wheel will next advance to.
func (w *wheel) nextTick() Time { return w.now + bucketMS }

func bucketIndex(t Time) int {
	return int(uint32(t)&(wheelMS-1)) >> bucketBits
}

// now returns the current wall-clock Time in milliseconds, untruncated;
// callers that need bucket alignment round it down themselves.
func now() Time {
	return Time(time.Now().UnixMilli())
}
