package chunks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/riftkeep/outpostd/server/geom"
)

// Provider does the actual work of loading and unloading planes and
// terrain chunks — from a savefile, or by invoking procedural
// generation. Manager only decides when to call it.
type Provider interface {
	LoadPlane(ctx context.Context, stablePlane geom.StableId) error
	UnloadPlane(ctx context.Context, plane geom.PlaneId) error
	LoadTerrainChunk(ctx context.Context, plane geom.PlaneId, cpos geom.V2) error
	UnloadTerrainChunk(ctx context.Context, plane geom.PlaneId, cpos geom.V2) error
}

// ChunkReadyFunc is invoked once a LoadTerrainChunk call submitted by
// Manager.Retain completes, successfully or not, so the event loop can
// install the result (e.g. call Fragment.UpdateTerrainChunkBlocks) from
// its own goroutine rather than the worker's.
type ChunkReadyFunc func(plane geom.PlaneId, cpos geom.V2, err error)

// Manager retains and releases terrain chunks on behalf of callers (the
// vision subsystem expanding a client's viewport, for instance),
// dispatching the underlying load/unload work to Provider. Terrain
// generation can be slow, so loads run on a bounded background worker
// pool; singleflight collapses duplicate concurrent loads of the same
// chunk that can arise when two overlapping viewports retain it within
// the same tick.
type Manager struct {
	mu       sync.Mutex
	lc       *lifecycle
	provider Provider
	onReady  ChunkReadyFunc

	planeRefCount map[geom.PlaneId]uint32

	group      *errgroup.Group
	groupCtx   context.Context
	sf         singleflight.Group
}

// NewManager returns a Manager bounded to at most maxWorkers concurrent
// background loads. onReady is called (from a worker goroutine, not the
// caller's) once each chunk load finishes.
func NewManager(ctx context.Context, provider Provider, maxWorkers int, onReady ChunkReadyFunc) *Manager {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	return &Manager{
		lc:            newLifecycle(),
		provider:      provider,
		onReady:       onReady,
		planeRefCount: make(map[geom.PlaneId]uint32),
		group:         g,
		groupCtx:      gctx,
	}
}

// Retain requests that cpos (and its 1-chunk halo) be loaded, reporting
// whether this call caused cpos itself to transition from zero users.
// Actual loading happens asynchronously; onReady fires when it's done.
func (m *Manager) Retain(plane geom.PlaneId, cpos geom.V2) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lc.retain(plane, cpos, m.submitLoad)
}

// Release requests that cpos (and its halo) be released. Once a chunk's
// internal refcount reaches zero it is unloaded immediately (unload is
// assumed cheap — flushing cached state, not regenerating it).
func (m *Manager) Release(plane geom.PlaneId, cpos geom.V2) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lc.release(plane, cpos, m.submitUnload)
}

// RetainPlane increments plane's reference count, loading it via the
// provider if this is the first retain.
func (m *Manager) RetainPlane(plane geom.PlaneId, stablePlane geom.StableId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planeRefCount[plane]++
	if m.planeRefCount[plane] == 1 {
		if err := m.provider.LoadPlane(m.groupCtx, stablePlane); err != nil {
			slog.Error("chunks: load plane failed", "plane", plane, "err", err)
		}
	}
}

// ReleasePlane decrements plane's reference count, unloading it via the
// provider once it reaches zero.
func (m *Manager) ReleasePlane(plane geom.PlaneId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.planeRefCount[plane]
	if !ok || count == 0 {
		slog.Error("chunks: release of plane with zero refcount", "plane", plane)
		return
	}
	count--
	if count == 0 {
		delete(m.planeRefCount, plane)
		if err := m.provider.UnloadPlane(m.groupCtx, plane); err != nil {
			slog.Error("chunks: unload plane failed", "plane", plane, "err", err)
		}
	} else {
		m.planeRefCount[plane] = count
	}
}

func (m *Manager) submitLoad(plane geom.PlaneId, cpos geom.V2) {
	key := chunkSfKey(plane, cpos)
	m.group.Go(func() error {
		_, err, _ := m.sf.Do(key, func() (any, error) {
			return nil, m.provider.LoadTerrainChunk(m.groupCtx, plane, cpos)
		})
		if m.onReady != nil {
			m.onReady(plane, cpos, err)
		}
		return nil
	})
}

func (m *Manager) submitUnload(plane geom.PlaneId, cpos geom.V2) {
	if err := m.provider.UnloadTerrainChunk(m.groupCtx, plane, cpos); err != nil {
		slog.Error("chunks: unload terrain chunk failed", "plane", plane, "cpos", cpos, "err", err)
	}
}

// Wait blocks until every in-flight background load has completed. The
// load goroutines always return nil, so Wait returns nil; load errors are
// reported through the ChunkReadyFunc instead. Used during shutdown.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// chunkSfKey builds the exact (not hashed) singleflight key for a chunk
// load. It must never collide between distinct (plane, cpos) pairs, so a
// direct fmt encoding is used rather than a fast non-cryptographic hash.
func chunkSfKey(plane geom.PlaneId, cpos geom.V2) string {
	return fmt.Sprintf("%d:%d:%d", plane, cpos.X, cpos.Y)
}
