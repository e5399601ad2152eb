package phys

import (
	"github.com/riftkeep/outpostd/server/geom"
)

// BlockId indexes the static block-data table (out of scope here; see
// BlockShapeTable).
type BlockId uint16

// BlockChunk is the flat array of block ids backing one terrain chunk,
// indexed as x + y*ChunkSize + z*ChunkSize*ChunkSize.
type BlockChunk [geom.ChunkSize * geom.ChunkSize * geom.ChunkSize]BlockId

// BlockIndex returns the flat index of local tile coordinate (x,y,z)
// within a BlockChunk. Coordinates must be in [0, ChunkSize).
func BlockIndex(x, y, z int32) int {
	return int(x) + int(y)*geom.ChunkSize + int(z)*geom.ChunkSize*geom.ChunkSize
}

// BlockShapeTable maps a BlockId to the Shape it occupies. It is supplied
// by the data-table loader (blocks.json); the physics package only
// consumes it.
type BlockShapeTable interface {
	ShapeOf(BlockId) Shape
}

// StructureTemplate describes the static shape footprint of one structure
// kind: its axis-aligned size in tiles, the occupancy layer it claims, and
// a per-tile shape grid of that size.
type StructureTemplate struct {
	Size      geom.V3
	Layer     uint8
	TileShape []Shape // indexed as x + y*Size.X + z*Size.X*Size.Y
}

// ShapeAt returns the template's shape at local tile offset (x,y,z), or
// Empty if out of range.
func (t *StructureTemplate) ShapeAt(x, y, z int32) Shape {
	if x < 0 || y < 0 || z < 0 || x >= t.Size.X || y >= t.Size.Y || z >= t.Size.Z {
		return Empty
	}
	idx := int(x) + int(y)*int(t.Size.X) + int(z)*int(t.Size.X)*int(t.Size.Y)
	if idx < 0 || idx >= len(t.TileShape) {
		return Empty
	}
	return t.TileShape[idx]
}

// StructureInstance is the minimal view of a placed structure the cache
// needs: its footprint and template. PosTile is the structure's origin in
// tile coordinates.
type StructureInstance struct {
	PosTile  geom.V3
	Template *StructureTemplate
}

// ChunkEntry is the cached shape grid for one loaded terrain chunk: a
// dense Shape array plus, per tile, a bitmask of the structure layers that
// currently overlap it.
type ChunkEntry struct {
	Shapes [geom.ChunkSize * geom.ChunkSize * geom.ChunkSize]Shape
	Layers [geom.ChunkSize * geom.ChunkSize * geom.ChunkSize]uint8
}

func (e *ChunkEntry) rebuild(blocks *BlockChunk, table BlockShapeTable, cpos geom.V2, structures []StructureInstance) {
	for i, bid := range blocks {
		e.Shapes[i] = table.ShapeOf(bid)
		e.Layers[i] = 0
	}
	baseX := cpos.X * geom.ChunkSize
	baseY := cpos.Y * geom.ChunkSize
	for si := range structures {
		s := &structures[si]
		t := s.Template
		if t == nil {
			continue
		}
		for lz := int32(0); lz < t.Size.Z; lz++ {
			wz := s.PosTile.Z + lz
			if wz < 0 || wz >= geom.ChunkSize {
				continue
			}
			for ly := int32(0); ly < t.Size.Y; ly++ {
				wy := s.PosTile.Y + ly - baseY
				if wy < 0 || wy >= geom.ChunkSize {
					continue
				}
				for lx := int32(0); lx < t.Size.X; lx++ {
					wx := s.PosTile.X + lx - baseX
					if wx < 0 || wx >= geom.ChunkSize {
						continue
					}
					over := t.ShapeAt(lx, ly, lz)
					if over == Empty {
						continue
					}
					idx := BlockIndex(wx, wy, wz)
					if overridePrecedence(e.Shapes[idx], over) {
						e.Shapes[idx] = over
					}
					e.Layers[idx] |= 1 << (t.Layer & 7)
				}
			}
		}
	}
}

// ChunkSource resolves the block data and overlapping structures needed to
// (re)build one chunk's cache entry. It is implemented by the world store.
type ChunkSource interface {
	// Blocks returns the block array for a loaded chunk, or nil if the
	// chunk is not currently loaded.
	Blocks(plane geom.PlaneId, cpos geom.V2) *BlockChunk
	// StructuresInChunk returns every structure whose footprint
	// intersects the given chunk.
	StructuresInChunk(plane geom.PlaneId, cpos geom.V2) []StructureInstance
}

// Cache is the per-(plane,chunk) shape grid consumed by the collision
// kernel through its ShapeAt method.
type Cache struct {
	table  BlockShapeTable
	source ChunkSource
	chunks map[geom.PlaneId]map[geom.V2]*ChunkEntry
}

// NewCache builds an empty Cache backed by the given block-shape table and
// chunk data source.
func NewCache(table BlockShapeTable, source ChunkSource) *Cache {
	return &Cache{
		table:  table,
		source: source,
		chunks: make(map[geom.PlaneId]map[geom.V2]*ChunkEntry),
	}
}

// AddChunk recomputes (creating if absent) the cache entry for one chunk.
// Called when a chunk finishes loading.
func (c *Cache) AddChunk(plane geom.PlaneId, cpos geom.V2) {
	blocks := c.source.Blocks(plane, cpos)
	if blocks == nil {
		return
	}
	m, ok := c.chunks[plane]
	if !ok {
		m = make(map[geom.V2]*ChunkEntry)
		c.chunks[plane] = m
	}
	entry, ok := m[cpos]
	if !ok {
		entry = &ChunkEntry{}
		m[cpos] = entry
	}
	entry.rebuild(blocks, c.table, cpos, c.source.StructuresInChunk(plane, cpos))
}

// RemoveChunk drops the cache entry for a chunk that is unloading.
func (c *Cache) RemoveChunk(plane geom.PlaneId, cpos geom.V2) {
	if m, ok := c.chunks[plane]; ok {
		delete(m, cpos)
		if len(m) == 0 {
			delete(c.chunks, plane)
		}
	}
}

// Invalidate recomputes every currently-loaded chunk whose grid overlaps
// the given world-space region. Chunks that are not loaded (mid-unload,
// or never loaded) are silently skipped.
func (c *Cache) Invalidate(plane geom.PlaneId, region geom.Region3) {
	m, ok := c.chunks[plane]
	if !ok {
		return
	}
	region.ChunkRegion().Points(func(cpos geom.V2) {
		if _, ok := m[cpos]; ok {
			c.AddChunk(plane, cpos)
		}
	})
}

// entryAt returns the cache entry covering pixel position pos, if loaded.
func (c *Cache) entryAt(plane geom.PlaneId, pos geom.V3) (*ChunkEntry, int, bool) {
	m, ok := c.chunks[plane]
	if !ok {
		return nil, 0, false
	}
	cpos := geom.PixelToChunk(pos)
	entry, ok := m[cpos]
	if !ok {
		return nil, 0, false
	}
	tile := geom.PixelToTileV3(pos)
	lx := tile.X - cpos.X*geom.ChunkSize
	ly := tile.Y - cpos.Y*geom.ChunkSize
	lz := tile.Z
	if lz < 0 || lz >= geom.ChunkSize {
		return entry, 0, false
	}
	return entry, BlockIndex(lx, ly, lz), true
}

// ShapeAt backs a ShapeSource once bound to a plane (it takes the plane
// as an extra argument, so it does not implement the interface itself):
// it looks up the Shape of the tile
// containing the given pixel position. Unloaded chunks and out-of-range z
// report Solid, so the collision kernel treats unknown space as
// impassable rather than as a hole to fall through.
func (c *Cache) ShapeAt(plane geom.PlaneId, pos geom.V3) Shape {
	entry, idx, ok := c.entryAt(plane, pos)
	if !ok {
		return Solid
	}
	return entry.Shapes[idx]
}

// LayerMaskAt returns the bitmask of structure layers occupying the tile
// containing pos, or 0 if the chunk is not loaded.
func (c *Cache) LayerMaskAt(plane geom.PlaneId, pos geom.V3) uint8 {
	entry, idx, ok := c.entryAt(plane, pos)
	if !ok {
		return 0
	}
	return entry.Layers[idx]
}
