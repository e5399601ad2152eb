package geom

import "github.com/brentp/intintmap"

// StableIdHolder is implemented by every object kind stored in a
// StableIdMap: it must be able to report and lazily accept a StableId.
// Implementations are expected to be pointer-receiver so that SetStableId
// mutates the stored object in place.
type StableIdHolder interface {
	GetStableId() StableId
	SetStableId(StableId)
}

// StableIdMap holds objects of one kind, indexed by a transient,
// process-lifetime id K, plus a lazily-populated reverse index from
// StableId to K for objects that have been "pinned" (persisted at least
// once). It is the Go analogue of the original implementation's
// StableIdMap<K, V>.
type StableIdMap[K ~uint32, V StableIdHolder] struct {
	objects       map[K]V
	byStable      *intintmap.Map // int64(StableId) -> int64(K)
	nextTransient K
	nextStable    StableId
}

// NewStableIdMap returns an empty map. Transient ids start at 1 (0 is the
// reserved "no object" sentinel for every id kind).
func NewStableIdMap[K ~uint32, V StableIdHolder]() *StableIdMap[K, V] {
	return &StableIdMap[K, V]{
		objects:       make(map[K]V),
		byStable:      intintmap.New(64, 0.6),
		nextTransient: 1,
	}
}

// Insert assigns v a fresh transient id and stores it. It does not assign a
// stable id; that happens lazily on first Pin.
func (m *StableIdMap[K, V]) Insert(v V) K {
	id := m.nextTransient
	m.nextTransient++
	m.objects[id] = v
	return id
}

// Remove deletes the object with the given transient id, dropping it from
// the stable-id reverse index if it had been pinned.
func (m *StableIdMap[K, V]) Remove(id K) (V, bool) {
	v, ok := m.objects[id]
	if !ok {
		var zero V
		return zero, false
	}
	if sid := v.GetStableId(); sid != NoStableId {
		m.byStable.Del(int64(sid))
	}
	delete(m.objects, id)
	return v, true
}

// Get returns the object with the given transient id.
func (m *StableIdMap[K, V]) Get(id K) (V, bool) {
	v, ok := m.objects[id]
	return v, ok
}

// Len returns the number of live objects.
func (m *StableIdMap[K, V]) Len() int { return len(m.objects) }

// Range calls fn for every (id, object) pair. Order is unspecified.
func (m *StableIdMap[K, V]) Range(fn func(K, V) bool) {
	for id, v := range m.objects {
		if !fn(id, v) {
			return
		}
	}
}

// Pin assigns a stable id to the object with the given transient id if it
// does not already have one, and (re-)registers it in the reverse index.
// It reports false if no object exists with that transient id.
func (m *StableIdMap[K, V]) Pin(id K) (StableId, bool) {
	v, ok := m.objects[id]
	if !ok {
		return NoStableId, false
	}
	sid := v.GetStableId()
	if sid == NoStableId {
		m.nextStable++
		sid = m.nextStable
		v.SetStableId(sid)
	}
	m.byStable.Put(int64(sid), int64(id))
	return sid, true
}

// FabricateUnchecked allocates a fresh transient id for an object being
// reconstructed during a save-graph load, binds it to the given stable id
// without further validation, and advances the stable-id counter past it
// so that new pins never collide with an id read from disk. Used only by
// the save/load path to create cycle-safe placeholders.
func (m *StableIdMap[K, V]) FabricateUnchecked(sid StableId, v V) K {
	v.SetStableId(sid)
	id := m.Insert(v)
	m.byStable.Put(int64(sid), int64(id))
	if sid > m.nextStable {
		m.nextStable = sid
	}
	return id
}

// TransientByStable looks up the transient id currently bound to a stable
// id, if that object is loaded.
func (m *StableIdMap[K, V]) TransientByStable(sid StableId) (K, bool) {
	raw, ok := m.byStable.Get(int64(sid))
	if !ok {
		return 0, false
	}
	return K(raw), true
}
