// Package chunks tracks reference counts for loaded terrain chunks and
// drives their loading and unloading through a Provider. The package
// itself never touches terrain data; it only decides when a chunk's
// refcount transitions to/from zero and calls into the Provider at that
// moment.
package chunks

import (
	"log/slog"

	"github.com/riftkeep/outpostd/server/geom"
)

type chunkKey struct {
	Plane geom.PlaneId
	Cpos  geom.V2
}

// lifecycle implements the two-counter refcounting scheme: requesting
// chunk cpos also retains its 1-chunk halo (RegionAround(cpos, 1)), since
// a structure based outside cpos can still overlap it. userRefCount
// tracks external callers; refCount tracks retains from the halo
// expansion of neighboring requests.
type lifecycle struct {
	refCount     map[chunkKey]uint32
	userRefCount map[chunkKey]uint32
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		refCount:     make(map[chunkKey]uint32),
		userRefCount: make(map[chunkKey]uint32),
	}
}

// retain increments cpos's user refcount and, if this is the first user,
// retains cpos and its 8 neighbors internally, invoking load for each
// chunk whose internal refcount transitions 0->1. Returns true iff cpos
// itself was a first-user retain.
func (l *lifecycle) retain(plane geom.PlaneId, cpos geom.V2, load func(geom.PlaneId, geom.V2)) bool {
	key := chunkKey{plane, cpos}
	l.userRefCount[key]++
	first := l.userRefCount[key] == 1
	if first {
		geom.RegionAround(cpos, 1).Points(func(sub geom.V2) {
			l.retainInner(plane, sub, load)
		})
	}
	return first
}

// release decrements cpos's user refcount and, once it reaches zero,
// releases cpos and its 8 neighbors internally, invoking unload for each
// chunk whose internal refcount transitions 1->0. Returns true iff cpos
// itself was released to zero users.
func (l *lifecycle) release(plane geom.PlaneId, cpos geom.V2, unload func(geom.PlaneId, geom.V2)) bool {
	key := chunkKey{plane, cpos}
	count, ok := l.userRefCount[key]
	if !ok || count == 0 {
		slog.Error("chunks: release of chunk with zero user refcount", "plane", plane, "cpos", cpos)
		return false
	}
	count--
	last := count == 0
	if last {
		delete(l.userRefCount, key)
	} else {
		l.userRefCount[key] = count
	}
	if last {
		geom.RegionAround(cpos, 1).Points(func(sub geom.V2) {
			l.releaseInner(plane, sub, unload)
		})
	}
	return last
}

func (l *lifecycle) retainInner(plane geom.PlaneId, cpos geom.V2, load func(geom.PlaneId, geom.V2)) {
	key := chunkKey{plane, cpos}
	l.refCount[key]++
	if l.refCount[key] == 1 {
		load(plane, cpos)
	}
}

func (l *lifecycle) releaseInner(plane geom.PlaneId, cpos geom.V2, unload func(geom.PlaneId, geom.V2)) {
	key := chunkKey{plane, cpos}
	count, ok := l.refCount[key]
	if !ok || count == 0 {
		slog.Error("chunks: internal release of chunk with zero refcount", "plane", plane, "cpos", cpos)
		return
	}
	count--
	if count == 0 {
		delete(l.refCount, key)
		unload(plane, cpos)
	} else {
		l.refCount[key] = count
	}
}
