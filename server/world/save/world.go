package save

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/world"
)

// Saved is the inventory of object files a previous SaveAll left on disk,
// as discovered by ListSaved. LoadAll consumes it directly.
type Saved struct {
	ClientNames  []string
	Planes       []geom.StableId
	Entities     []geom.StableId
	Inventories  []geom.StableId
	Structures   []geom.StableId
}

// ListSaved scans store's directory layout and reports what it finds,
// without reading any file's contents. A brand new save directory (no
// subdirectories yet) reports an empty Saved, not an error.
func ListSaved(store *Store) (Saved, error) {
	var out Saved
	root := store.Dir().Root

	names, err := listIDs(filepath.Join(root, "planes"), ".plane")
	if err != nil {
		return out, err
	}
	out.Planes = names
	if out.Entities, err = listIDs(filepath.Join(root, "entities"), ".entity"); err != nil {
		return out, err
	}
	if out.Inventories, err = listIDs(filepath.Join(root, "inventories"), ".inventory"); err != nil {
		return out, err
	}
	if out.Structures, err = listIDs(filepath.Join(root, "structures"), ".structure"); err != nil {
		return out, err
	}

	clientsDir := filepath.Join(root, "clients")
	entries, err := os.ReadDir(clientsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), ".client")
		if name == ent.Name() {
			continue
		}
		out.ClientNames = append(out.ClientNames, unsanitizeClientFileName(name))
	}
	return out, nil
}

// listIDs reads every "<hex>.suffix" file directly under dir, parsing the
// hex stem back into a geom.StableId.
func listIDs(dir, suffix string) ([]geom.StableId, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]geom.StableId, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		stem := strings.TrimSuffix(ent.Name(), suffix)
		if stem == ent.Name() {
			continue
		}
		v, err := strconv.ParseUint(stem, 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, geom.StableId(v))
	}
	return ids, nil
}

// unsanitizeClientFileName is intentionally a no-op: ClientPath's
// sanitizeName escaping is lossy-safe but not meant to be reversed here,
// since the client's real display Name is read back from inside its own
// record on the first ReadClient call anyway. The placeholder created by
// clientPlaceholderID before that read only needs a name stable enough to
// find the right file again, which the sanitized stem already is.
func unsanitizeClientFileName(stem string) string { return stem }

// SaveAll writes a full checkpoint of every persisted object currently
// held in w, one file per object under store's Dir layout. Terrain
// chunks are deliberately excluded: SaveTerrainChunks writes them and the
// engine's chunks.Provider reads them back (see engine/provider.go).
//
// Every object is pinned (assigned a stable id if it lacks one) before
// its own record is written, so that cross-references written by other
// objects' records always resolve.
func SaveAll(store *Store, w *world.World) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	w.Clients.Range(func(cid geom.ClientId, c *world.Client) bool {
		sid, _ := w.Clients.Pin(cid)
		note(store.WriteGraph(store.Dir().ClientPath(c.Name), func(wr *Writer) error {
			return WriteClient(wr, w, c)
		}))
		_ = sid
		return true
	})
	w.Entities.Range(func(eid geom.EntityId, e *world.Entity) bool {
		sid, _ := w.Entities.Pin(eid)
		note(store.WriteGraph(store.Dir().EntityPath(sid), func(wr *Writer) error {
			return WriteEntity(wr, w, e)
		}))
		return true
	})
	w.Inventories.Range(func(iid geom.InventoryId, inv *world.Inventory) bool {
		sid, _ := w.Inventories.Pin(iid)
		note(store.WriteGraph(store.Dir().InventoryPath(sid), func(wr *Writer) error {
			return WriteInventory(wr, w, inv)
		}))
		return true
	})
	w.Structures.Range(func(sid geom.StructureId, s *world.Structure) bool {
		stable, _ := w.Structures.Pin(sid)
		note(store.WriteGraph(store.Dir().StructurePath(stable), func(wr *Writer) error {
			return WriteStructure(wr, w, s)
		}))
		return true
	})
	w.Planes.Range(func(pid geom.PlaneId, p *world.Plane) bool {
		stable, _ := w.Planes.Pin(pid)
		note(store.WriteGraph(store.Dir().PlanePath(stable), func(wr *Writer) error {
			return WritePlane(wr, p)
		}))
		return true
	})
	return firstErr
}

// LoadAll reads every object file a previous SaveAll wrote, fabricating
// World entries for each and resolving their cross-references. names
// holds clients' sanitized filename stems exactly as ListSaved reports
// them (never re-sanitized here, since sanitizeName is not idempotent on
// its own escape sequences); every other kind is keyed by the stable id
// encoded in its filename. Missing files are treated as "never saved",
// not an error — the normal state for a brand new world.
//
// Call order matters only in that every Resolve* call is safe regardless
// of order (fabricate-on-first-reference), so planes, entities,
// inventories, clients, and structures may be loaded in any sequence.
func LoadAll(store *Store, w *world.World, names []string, planeIDs, entityIDs, inventoryIDs, structureIDs []geom.StableId) error {
	var firstErr error
	note := func(err error) {
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}

	for _, sid := range planeIDs {
		pid := ResolvePlane(w, sid)
		p, _ := w.Planes.Get(pid)
		note(store.ReadGraph(store.Dir().PlanePath(sid), func(rd *Reader) error {
			return ReadPlane(rd, p)
		}))
	}
	for _, stem := range names {
		path := filepath.Join(store.Dir().Root, "clients", stem+".client")
		cid := clientPlaceholderID(w, stem)
		c, _ := w.Clients.Get(cid)
		note(store.ReadGraph(path, func(rd *Reader) error {
			return ReadClient(rd, w, c)
		}))
	}
	for _, sid := range entityIDs {
		eid := ResolveEntity(w, sid)
		e, _ := w.Entities.Get(eid)
		note(store.ReadGraph(store.Dir().EntityPath(sid), func(rd *Reader) error {
			return ReadEntity(rd, w, e)
		}))
	}
	for _, sid := range inventoryIDs {
		iid := ResolveInventory(w, sid)
		inv, _ := w.Inventories.Get(iid)
		note(store.ReadGraph(store.Dir().InventoryPath(sid), func(rd *Reader) error {
			return ReadInventory(rd, w, inv)
		}))
	}
	for _, sid := range structureIDs {
		stid := ResolveStructure(w, sid)
		s, _ := w.Structures.Get(stid)
		note(store.ReadGraph(store.Dir().StructurePath(sid), func(rd *Reader) error {
			return ReadStructure(rd, w, s)
		}))
	}
	return firstErr
}

// SaveTerrainChunks persists every terrain chunk still resident in w,
// writing only its block array and flags (encodeBlocks, the format
// DecodeChunkBlocks and engine/provider.go read back), and records each
// one in its owning Plane's SavedChunks map.
//
// It is the only place terrain chunks are written: the per-chunk
// streaming path in engine/provider.go only reads saved chunks, and
// releasing a chunk does not persist it. Call this before SaveAll so the
// planes it touches are checkpointed with up-to-date SavedChunks entries.
func SaveTerrainChunks(store *Store, w *world.World) error {
	var firstErr error
	w.TerrainChunks.Range(func(tcid geom.TerrainChunkId, tc *world.TerrainChunk) bool {
		sid, _ := w.TerrainChunks.Pin(tcid)
		path := store.Dir().TerrainChunkPath(sid)
		if err := store.WriteTerrainChunk(path, func(wr *Writer) error {
			return encodeBlocks(wr, tc.Blocks, tc.Flags)
		}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		if p, ok := w.Planes.Get(tc.Plane); ok {
			p.SavedChunks[tc.Cpos] = sid
		}
		return true
	})
	return firstErr
}

// clientPlaceholderID returns the transient id of the client named name,
// creating one if this is the first time that name has been seen this
// process (clients are the one kind whose savefile is named, not
// numbered, since a reconnecting player supplies a name, not a stable
// id).
func clientPlaceholderID(w *world.World, name string) geom.ClientId {
	if existing, ok := findClientByName(w, name); ok {
		return existing
	}
	return w.Clients.Insert(world.NewClient(name))
}

func findClientByName(w *world.World, name string) (geom.ClientId, bool) {
	var found geom.ClientId
	var ok bool
	w.Clients.Range(func(cid geom.ClientId, c *world.Client) bool {
		if c.Name == name {
			found, ok = cid, true
			return false
		}
		return true
	})
	return found, ok
}
