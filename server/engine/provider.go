package engine

import (
	"context"
	"math/rand"
	"os"
	"sync"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/world"
	"github.com/riftkeep/outpostd/server/world/save"
)

// chunkKey identifies a live terrain chunk by the plane it belongs to and
// its chunk-grid position, the same pair chunks.Manager keys its own
// refcounts by.
type chunkKey struct {
	Plane geom.PlaneId
	Cpos  geom.V2
}

// worldProvider implements chunks.Provider. Its Load/Unload methods run
// on chunks.Manager's background worker goroutines, never the engine's
// own goroutine, so they must not read or write *world.World or
// *world.Fragment directly — doing so would reintroduce the locking this
// design exists to avoid. Instead they talk only to the Store and to
// their own mutex-guarded side tables; the engine goroutine drains
// pending results via takeResult from its handleChunkReady handler and
// applies them through Fragment.UpdateTerrainChunkBlocks.
type worldProvider struct {
	store *save.Store
	gen   *flatGenerator

	mu       sync.Mutex
	chunkIDs map[chunkKey]geom.StableId // savefile backing a chunk about to load, if any
	pending  map[chunkKey]loadedChunk
}

type loadedChunk struct {
	blocks *phys.BlockChunk
	flags  world.TerrainChunkFlags
}

func newWorldProvider(store *save.Store, gen *flatGenerator) *worldProvider {
	return &worldProvider{
		store:    store,
		gen:      gen,
		chunkIDs: make(map[chunkKey]geom.StableId),
		pending:  make(map[chunkKey]loadedChunk),
	}
}

// bindChunk records which savefile (if any) backs a chunk the engine is
// about to retain. Called only from the engine goroutine, strictly
// before the corresponding chunks.Manager.Retain call, so there is no
// race with LoadTerrainChunk reading the same entry on a worker
// goroutine afterwards.
func (p *worldProvider) bindChunk(plane geom.PlaneId, cpos geom.V2, saved geom.StableId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunkIDs[chunkKey{plane, cpos}] = saved
}

func (p *worldProvider) unbindChunk(plane geom.PlaneId, cpos geom.V2) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chunkIDs, chunkKey{plane, cpos})
}

// takeResult removes and returns the blocks a completed load stashed,
// called by the engine goroutine from its handleChunkReady handler.
func (p *worldProvider) takeResult(plane geom.PlaneId, cpos geom.V2) (loadedChunk, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := chunkKey{plane, cpos}
	lc, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	return lc, ok
}

// LoadPlane and UnloadPlane are no-ops: this port keeps the single
// overworld plane resident for the whole process lifetime rather than
// paging planes in and out (see DESIGN.md), so chunks.Manager's plane
// refcounting never needs a backing action.
func (p *worldProvider) LoadPlane(ctx context.Context, stablePlane geom.StableId) error { return nil }
func (p *worldProvider) UnloadPlane(ctx context.Context, plane geom.PlaneId) error       { return nil }

func (p *worldProvider) LoadTerrainChunk(ctx context.Context, plane geom.PlaneId, cpos geom.V2) error {
	key := chunkKey{plane, cpos}
	p.mu.Lock()
	saved, hasSaved := p.chunkIDs[key]
	p.mu.Unlock()

	var blocks *phys.BlockChunk
	var flags world.TerrainChunkFlags
	if hasSaved && saved != geom.NoStableId {
		path := p.store.Dir().TerrainChunkPath(saved)
		err := p.store.ReadTerrainChunk(path, func(rd *save.Reader) error {
			var readErr error
			blocks, flags, readErr = save.DecodeChunkBlocks(rd)
			return readErr
		})
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if blocks == nil {
		blocks = p.gen.Generate(plane, cpos)
		flags = 0
	}

	p.mu.Lock()
	p.pending[key] = loadedChunk{blocks: blocks, flags: flags}
	p.mu.Unlock()
	return nil
}

func (p *worldProvider) UnloadTerrainChunk(ctx context.Context, plane geom.PlaneId, cpos geom.V2) error {
	key := chunkKey{plane, cpos}
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
	return nil
}

// flatGenerator produces a minimal deterministic terrain for chunks with
// no savefile yet: a single solid ground layer at the bottom of the
// chunk, empty air above, with scattered single-tile rises seeded from
// the world seed and chunk position. Biome-specific generation is out of
// scope for this port (see DESIGN.md); this exists only to give
// newly-discovered chunks something other than an empty void, so the
// collision and vision subsystems downstream have real terrain to work
// against end to end.
type flatGenerator struct {
	seed int64
}

func newFlatGenerator(seed int64) *flatGenerator { return &flatGenerator{seed: seed} }

const (
	blockAir    phys.BlockId = 0
	blockGround phys.BlockId = 1
	blockRise   phys.BlockId = 2
)

func (g *flatGenerator) Generate(plane geom.PlaneId, cpos geom.V2) *phys.BlockChunk {
	blocks := &phys.BlockChunk{}
	rng := rand.New(rand.NewSource(g.seed ^ int64(plane)<<32 ^ int64(cpos.X)<<16 ^ int64(cpos.Y)))
	for y := int32(0); y < geom.ChunkSize; y++ {
		for x := int32(0); x < geom.ChunkSize; x++ {
			blocks[phys.BlockIndex(x, y, 0)] = blockGround
			if rng.Intn(40) == 0 {
				blocks[phys.BlockIndex(x, y, 1)] = blockRise
			}
		}
	}
	return blocks
}
