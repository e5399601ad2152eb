// Package data loads the static content tables (block shapes and
// structure templates) referenced throughout SPEC_FULL.md's world and
// physics layers from DATA_DIR, the JSONC-with-comments format the
// teacher's own dependency set already reserves (df-mc/jsonc is an
// indirect require in the teacher's go.mod, transitively pulled in by
// its own config loader; this package is the first thing in this repo
// to import it directly — see DESIGN.md for the thin-grounding note).
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/df-mc/jsonc"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/world"
)

// blockEntry is one row of blocks.json: a named block and the collision
// shape it occupies.
type blockEntry struct {
	Id    phys.BlockId `json:"id"`
	Name  string       `json:"name"`
	Shape string       `json:"shape"`
}

// structureEntry is one row of structures.json: a named structure
// template, its tile footprint, the occupancy layer it claims, and a
// flattened per-tile shape grid (row-major x, then y, then z, matching
// phys.StructureTemplate.TileShape's indexing).
type structureEntry struct {
	Id     world.TemplateId `json:"id"`
	Name   string           `json:"name"`
	Size   [3]int32         `json:"size"`
	Layer  uint8            `json:"layer"`
	Shapes []string         `json:"shapes"`
}

// Tables is the fully loaded, immutable static content set: block shapes
// (phys.BlockShapeTable) and structure templates (world.TemplateTable).
// Both are safe for concurrent read-only use once Load returns, since
// nothing in this package ever mutates them afterward.
type Tables struct {
	blockShapes map[phys.BlockId]phys.Shape
	templates   map[world.TemplateId]*phys.StructureTemplate
	blockNames  map[string]phys.BlockId
}

// Load reads blocks.json and structures.json from dir (SPEC_FULL.md §6's
// DATA_DIR), tolerating "//" and "/* */" comments per the teacher's own
// config convention (df-mc/jsonc.ToJSON strips them before
// encoding/json.Unmarshal takes over).
func Load(dir string) (*Tables, error) {
	t := &Tables{
		blockShapes: make(map[phys.BlockId]phys.Shape),
		templates:   make(map[world.TemplateId]*phys.StructureTemplate),
		blockNames:  make(map[string]phys.BlockId),
	}

	var blocks []blockEntry
	if err := loadJSONC(filepath.Join(dir, "blocks.json"), &blocks); err != nil {
		return nil, fmt.Errorf("data: load blocks.json: %w", err)
	}
	for _, b := range blocks {
		shape, ok := shapeByName[b.Shape]
		if !ok {
			return nil, fmt.Errorf("data: block %q: unknown shape %q", b.Name, b.Shape)
		}
		t.blockShapes[b.Id] = shape
		t.blockNames[b.Name] = b.Id
	}

	var structures []structureEntry
	if err := loadJSONC(filepath.Join(dir, "structures.json"), &structures); err != nil {
		return nil, fmt.Errorf("data: load structures.json: %w", err)
	}
	for _, s := range structures {
		size := geom.V3{X: s.Size[0], Y: s.Size[1], Z: s.Size[2]}
		want := int(size.X) * int(size.Y) * int(size.Z)
		if len(s.Shapes) != want {
			return nil, fmt.Errorf("data: structure %q: expected %d shape entries, got %d", s.Name, want, len(s.Shapes))
		}
		tiles := make([]phys.Shape, want)
		for i, name := range s.Shapes {
			shape, ok := shapeByName[name]
			if !ok {
				return nil, fmt.Errorf("data: structure %q: unknown shape %q", s.Name, name)
			}
			tiles[i] = shape
		}
		t.templates[s.Id] = &phys.StructureTemplate{Size: size, Layer: s.Layer, TileShape: tiles}
	}

	return t, nil
}

// ShapeOf implements phys.BlockShapeTable.
func (t *Tables) ShapeOf(id phys.BlockId) phys.Shape {
	return t.blockShapes[id]
}

// Template implements world.TemplateTable.
func (t *Tables) Template(id world.TemplateId) (*phys.StructureTemplate, bool) {
	tmpl, ok := t.templates[id]
	return tmpl, ok
}

// BlockByName resolves a block's table id from its data-file name.
func (t *Tables) BlockByName(name string) (phys.BlockId, bool) {
	id, ok := t.blockNames[name]
	return id, ok
}

var shapeByName = map[string]phys.Shape{
	"empty":    phys.Empty,
	"floor":    phys.Floor,
	"solid":    phys.Solid,
	"ramp_e":   phys.RampE,
	"ramp_w":   phys.RampW,
	"ramp_s":   phys.RampS,
	"ramp_n":   phys.RampN,
	"ramp_top": phys.RampTop,
}

func loadJSONC(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonc.ToJSON(raw), out)
}
