package world

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
)

// CacheSource adapts a World plus a structure-template table to
// phys.ChunkSource, so a phys.Cache can be rebuilt directly from live
// world state whenever §4.1's update policy requires it.
type CacheSource struct {
	W         *World
	Templates TemplateTable
}

// Blocks implements phys.ChunkSource.
func (s CacheSource) Blocks(plane geom.PlaneId, cpos geom.V2) *phys.BlockChunk {
	return s.W.chunkBlocks(plane, cpos)
}

// StructuresInChunk implements phys.ChunkSource.
func (s CacheSource) StructuresInChunk(plane geom.PlaneId, cpos geom.V2) []phys.StructureInstance {
	ids := s.W.StructuresInChunk(plane, cpos)
	if len(ids) == 0 {
		return nil
	}
	out := make([]phys.StructureInstance, 0, len(ids))
	for _, id := range ids {
		st, ok := s.W.Structures.Get(id)
		if !ok {
			continue
		}
		tmpl, ok := s.Templates.Template(st.Template)
		if !ok {
			continue
		}
		out = append(out, phys.StructureInstance{PosTile: st.Pos, Template: tmpl})
	}
	return out
}
