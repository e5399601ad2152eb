package save

import (
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/world"
)

// This file is the per-object-kind counterpart to graph.go's primitive
// encoding and fabricate.go's cross-reference resolution: one
// Write<Kind>/Read<Kind> pair per world object kind, each responsible for
// its own field layout. Cross-object references (a client's pawn, an
// entity's owning plane) are written as the referenced object's
// geom.StableId and resolved back to a transient id on read via the
// Resolve* helpers, which fabricate a placeholder if the referenced
// object's own record hasn't been read yet in this pass.

// WriteClient encodes c's persisted fields. The client's own stable id is
// not written here — the caller already derived the file path from it.
func WriteClient(wr *Writer, w *world.World, c *world.Client) error {
	if err := wr.WriteString(c.Name); err != nil {
		return err
	}
	pawnStable := stableIdOf(w.Entities, c.Pawn)
	if err := wr.WriteStableId(pawnStable); err != nil {
		return err
	}
	return wr.WriteUint16(uint16(c.CurrentInput))
}

// ReadClient decodes into a fresh Client (or the placeholder already
// fabricated for it by a prior reference), resolving its pawn reference
// against w.
func ReadClient(rd *Reader, w *world.World, c *world.Client) error {
	name, err := rd.ReadString()
	if err != nil {
		return err
	}
	pawnStable, err := rd.ReadStableId()
	if err != nil {
		return err
	}
	input, err := rd.ReadUint16()
	if err != nil {
		return err
	}
	c.Name = name
	c.Pawn = ResolveEntity(w, pawnStable)
	c.CurrentInput = world.InputBits(input)
	return nil
}

// WriteEntity encodes e's persisted fields, including its world-time
// motion. World-time is counted from the engine's startup epoch, which is
// not saved (see engine.go), so a restored motion's times are read against
// the new process's origin.
func WriteEntity(wr *Writer, w *world.World, e *world.Entity) error {
	if err := wr.WriteStableId(e.StablePlane); err != nil {
		return err
	}
	if err := writeMotion(wr, e.Motion); err != nil {
		return err
	}
	if err := wr.WriteUint16(uint16(e.Anim)); err != nil {
		return err
	}
	if err := writeV3(wr, e.Facing); err != nil {
		return err
	}
	if err := writeV3(wr, e.TargetVelocity); err != nil {
		return err
	}
	if err := wr.WriteUint32(e.Appearance); err != nil {
		return err
	}
	return writeEntityAttachment(wr, w, e.Attachment)
}

// ReadEntity decodes into e, re-deriving its cached transient Plane field
// from StablePlane (LimboPlane if that plane isn't currently loaded).
func ReadEntity(rd *Reader, w *world.World, e *world.Entity) error {
	stablePlane, err := rd.ReadStableId()
	if err != nil {
		return err
	}
	motion, err := readMotion(rd)
	if err != nil {
		return err
	}
	anim, err := rd.ReadUint16()
	if err != nil {
		return err
	}
	facing, err := readV3(rd)
	if err != nil {
		return err
	}
	targetVel, err := readV3(rd)
	if err != nil {
		return err
	}
	appearance, err := rd.ReadUint32()
	if err != nil {
		return err
	}
	attach, err := readEntityAttachment(rd, w)
	if err != nil {
		return err
	}
	e.StablePlane = stablePlane
	if pid, ok := w.Planes.TransientByStable(stablePlane); ok {
		e.Plane = pid
	} else {
		e.Plane = world.LimboPlane
	}
	e.Motion = motion
	e.Anim = world.AnimId(anim)
	e.Facing = facing
	e.TargetVelocity = targetVel
	e.Appearance = appearance
	e.Attachment = attach
	return nil
}

// WriteInventory encodes an inventory's slot contents and its owner.
func WriteInventory(wr *Writer, w *world.World, inv *world.Inventory) error {
	if err := wr.WriteCount(len(inv.Contents)); err != nil {
		return err
	}
	for _, item := range inv.Contents {
		if err := wr.WriteByte(byte(item.Kind)); err != nil {
			return err
		}
		if err := wr.WriteByte(item.Count); err != nil {
			return err
		}
		if err := wr.WriteByte(item.Tag); err != nil {
			return err
		}
		if err := wr.WriteUint16(uint16(item.Id)); err != nil {
			return err
		}
	}
	return writeInventoryAttachment(wr, w, inv.Attachment)
}

// ReadInventory decodes into inv.
func ReadInventory(rd *Reader, w *world.World, inv *world.Inventory) error {
	n, err := rd.ReadCount()
	if err != nil {
		return err
	}
	contents := make([]world.Item, n)
	for i := range contents {
		kind, err := rd.ReadByte()
		if err != nil {
			return err
		}
		count, err := rd.ReadByte()
		if err != nil {
			return err
		}
		tag, err := rd.ReadByte()
		if err != nil {
			return err
		}
		id, err := rd.ReadUint16()
		if err != nil {
			return err
		}
		contents[i] = world.Item{Kind: world.ItemKind(kind), Count: count, Tag: tag, Id: world.ItemId(id)}
	}
	attach, err := readInventoryAttachment(rd, w)
	if err != nil {
		return err
	}
	inv.Contents = contents
	inv.Attachment = attach
	return nil
}

// WritePlane encodes a plane's name and its saved-chunk index (not its
// LoadedChunks, which is runtime-only state rebuilt as chunks load).
func WritePlane(wr *Writer, p *world.Plane) error {
	if err := wr.WriteString(p.Name); err != nil {
		return err
	}
	if err := wr.WriteCount(len(p.SavedChunks)); err != nil {
		return err
	}
	for cpos, sid := range p.SavedChunks {
		if err := wr.WriteInt32(cpos.X); err != nil {
			return err
		}
		if err := wr.WriteInt32(cpos.Y); err != nil {
			return err
		}
		if err := wr.WriteStableId(sid); err != nil {
			return err
		}
	}
	return nil
}

// ReadPlane decodes into p.
func ReadPlane(rd *Reader, p *world.Plane) error {
	name, err := rd.ReadString()
	if err != nil {
		return err
	}
	n, err := rd.ReadCount()
	if err != nil {
		return err
	}
	saved := make(map[geom.V2]geom.StableId, n)
	for i := 0; i < n; i++ {
		x, err := rd.ReadInt32()
		if err != nil {
			return err
		}
		y, err := rd.ReadInt32()
		if err != nil {
			return err
		}
		sid, err := rd.ReadStableId()
		if err != nil {
			return err
		}
		saved[geom.V2{X: x, Y: y}] = sid
	}
	p.Name = name
	p.SavedChunks = saved
	if p.LoadedChunks == nil {
		p.LoadedChunks = make(map[geom.V2]geom.TerrainChunkId)
	}
	return nil
}

// WriteTerrainChunk encodes a terrain chunk's plane, position, and full
// block array. Block arrays are large and mostly repetitive, so callers
// should persist terrain chunks via Store.WriteTerrainChunk (zstd), not
// Store.WriteGraph.
func WriteTerrainChunk(wr *Writer, w *world.World, tc *world.TerrainChunk) error {
	planeStable := stableIdOf(w.Planes, tc.Plane)
	if err := wr.WriteStableId(planeStable); err != nil {
		return err
	}
	if err := wr.WriteInt32(tc.Cpos.X); err != nil {
		return err
	}
	if err := wr.WriteInt32(tc.Cpos.Y); err != nil {
		return err
	}
	return encodeBlocks(wr, tc.Blocks, tc.Flags)
}

// ReadTerrainChunk decodes into tc, always clearing
// ChunkGenerationPending — a chunk read from disk is, by definition, not
// awaiting generation.
func ReadTerrainChunk(rd *Reader, w *world.World, tc *world.TerrainChunk) error {
	planeStable, err := rd.ReadStableId()
	if err != nil {
		return err
	}
	cx, err := rd.ReadInt32()
	if err != nil {
		return err
	}
	cy, err := rd.ReadInt32()
	if err != nil {
		return err
	}
	blocks, flags, err := decodeBlocks(rd)
	if err != nil {
		return err
	}
	tc.Plane = ResolvePlane(w, planeStable)
	tc.Cpos = geom.V2{X: cx, Y: cy}
	tc.Blocks = blocks
	tc.Flags = flags
	if tc.ChildStructures == nil {
		tc.ChildStructures = make(map[geom.StructureId]struct{})
	}
	return nil
}

// encodeBlocks/decodeBlocks write just a chunk's block array and flags,
// with no plane cross-reference. SaveTerrainChunks writes chunk files in
// this format, and the live per-chunk streaming path (engine's
// chunks.Provider implementation) reads them on a background worker
// goroutine, which therefore must never touch *world.World (only the
// engine's single goroutine may). Nothing writes chunk files with the full
// WriteTerrainChunk/ReadTerrainChunk pair above.
func encodeBlocks(wr *Writer, blocks *phys.BlockChunk, flags world.TerrainChunkFlags) error {
	for _, b := range blocks {
		if err := wr.WriteUint16(uint16(b)); err != nil {
			return err
		}
	}
	return wr.WriteUint16(uint16(flags &^ world.ChunkGenerationPending))
}

func decodeBlocks(rd *Reader) (*phys.BlockChunk, world.TerrainChunkFlags, error) {
	blocks := &phys.BlockChunk{}
	for i := range blocks {
		v, err := rd.ReadUint16()
		if err != nil {
			return nil, 0, err
		}
		blocks[i] = phys.BlockId(v)
	}
	flags, err := rd.ReadUint16()
	if err != nil {
		return nil, 0, err
	}
	return blocks, world.TerrainChunkFlags(flags) &^ world.ChunkGenerationPending, nil
}

// EncodeChunkBlocks and DecodeChunkBlocks are encodeBlocks/decodeBlocks'
// exported counterparts, named for external callers (the engine
// package's chunks.Provider implementation) that have no reason to reach
// into this package's internals otherwise.
func EncodeChunkBlocks(wr *Writer, blocks *phys.BlockChunk, flags world.TerrainChunkFlags) error {
	return encodeBlocks(wr, blocks, flags)
}

func DecodeChunkBlocks(rd *Reader) (*phys.BlockChunk, world.TerrainChunkFlags, error) {
	return decodeBlocks(rd)
}

// WriteStructure encodes a structure's placement, template, and owner.
func WriteStructure(wr *Writer, w *world.World, s *world.Structure) error {
	planeStable := stableIdOf(w.Planes, s.Plane)
	if err := wr.WriteStableId(planeStable); err != nil {
		return err
	}
	if err := writeV3(wr, s.Pos); err != nil {
		return err
	}
	if err := wr.WriteUint16(uint16(s.Template)); err != nil {
		return err
	}
	if err := wr.WriteUint16(uint16(s.Flags)); err != nil {
		return err
	}
	return wr.WriteByte(byte(s.Attachment))
}

// ReadStructure decodes into s.
func ReadStructure(rd *Reader, w *world.World, s *world.Structure) error {
	planeStable, err := rd.ReadStableId()
	if err != nil {
		return err
	}
	pos, err := readV3(rd)
	if err != nil {
		return err
	}
	template, err := rd.ReadUint16()
	if err != nil {
		return err
	}
	flags, err := rd.ReadUint16()
	if err != nil {
		return err
	}
	attach, err := rd.ReadByte()
	if err != nil {
		return err
	}
	s.Plane = ResolvePlane(w, planeStable)
	s.Pos = pos
	s.Template = world.TemplateId(template)
	s.Flags = world.StructureFlags(flags)
	s.Attachment = world.StructureAttachment(attach)
	if s.ChildInvs == nil {
		s.ChildInvs = make(map[geom.InventoryId]struct{})
	}
	return nil
}

func writeV3(wr *Writer, v geom.V3) error {
	if err := wr.WriteInt32(v.X); err != nil {
		return err
	}
	if err := wr.WriteInt32(v.Y); err != nil {
		return err
	}
	return wr.WriteInt32(v.Z)
}

func readV3(rd *Reader) (geom.V3, error) {
	x, err := rd.ReadInt32()
	if err != nil {
		return geom.V3{}, err
	}
	y, err := rd.ReadInt32()
	if err != nil {
		return geom.V3{}, err
	}
	z, err := rd.ReadInt32()
	if err != nil {
		return geom.V3{}, err
	}
	return geom.V3{X: x, Y: y, Z: z}, nil
}

func writeMotion(wr *Writer, m world.Motion) error {
	if err := writeV3(wr, m.StartPos); err != nil {
		return err
	}
	if err := writeV3(wr, m.EndPos); err != nil {
		return err
	}
	if err := wr.WriteUint64(uint64(m.StartTime)); err != nil {
		return err
	}
	return wr.WriteInt32(m.Duration)
}

func readMotion(rd *Reader) (world.Motion, error) {
	start, err := readV3(rd)
	if err != nil {
		return world.Motion{}, err
	}
	end, err := readV3(rd)
	if err != nil {
		return world.Motion{}, err
	}
	startTime, err := rd.ReadUint64()
	if err != nil {
		return world.Motion{}, err
	}
	duration, err := rd.ReadInt32()
	if err != nil {
		return world.Motion{}, err
	}
	return world.Motion{StartPos: start, EndPos: end, StartTime: world.Time(startTime), Duration: duration}, nil
}

const (
	attachWorldTag  byte = 0
	attachChunkTag  byte = 1
	attachClientTag byte = 2
)

func writeEntityAttachment(wr *Writer, w *world.World, a world.EntityAttachment) error {
	switch a.Kind {
	case world.AttachChunk:
		if err := wr.WriteByte(attachChunkTag); err != nil {
			return err
		}
		return wr.WriteStableId(stableIdOf(w.TerrainChunks, a.Tcid))
	case world.AttachClient:
		if err := wr.WriteByte(attachClientTag); err != nil {
			return err
		}
		return wr.WriteStableId(stableIdOf(w.Clients, a.Cid))
	default:
		return wr.WriteByte(attachWorldTag)
	}
}

func readEntityAttachment(rd *Reader, w *world.World) (world.EntityAttachment, error) {
	tag, err := rd.ReadByte()
	if err != nil {
		return world.EntityAttachment{}, err
	}
	switch tag {
	case attachChunkTag:
		sid, err := rd.ReadStableId()
		if err != nil {
			return world.EntityAttachment{}, err
		}
		return world.EntityAttachment{Kind: world.AttachChunk, Tcid: ResolveTerrainChunk(w, sid)}, nil
	case attachClientTag:
		sid, err := rd.ReadStableId()
		if err != nil {
			return world.EntityAttachment{}, err
		}
		return world.EntityAttachment{Kind: world.AttachClient, Cid: ResolveClient(w, sid)}, nil
	default:
		return world.EntityAttachment{Kind: world.AttachWorld}, nil
	}
}

const (
	invAttachWorldTag     byte = 0
	invAttachClientTag    byte = 1
	invAttachEntityTag    byte = 2
	invAttachStructureTag byte = 3
)

func writeInventoryAttachment(wr *Writer, w *world.World, a world.InventoryAttachment) error {
	switch a.Kind {
	case world.InvAttachClient:
		if err := wr.WriteByte(invAttachClientTag); err != nil {
			return err
		}
		return wr.WriteStableId(stableIdOf(w.Clients, a.Cid))
	case world.InvAttachEntity:
		if err := wr.WriteByte(invAttachEntityTag); err != nil {
			return err
		}
		return wr.WriteStableId(stableIdOf(w.Entities, a.Eid))
	case world.InvAttachStructure:
		if err := wr.WriteByte(invAttachStructureTag); err != nil {
			return err
		}
		return wr.WriteStableId(stableIdOf(w.Structures, a.Sid))
	default:
		return wr.WriteByte(invAttachWorldTag)
	}
}

func readInventoryAttachment(rd *Reader, w *world.World) (world.InventoryAttachment, error) {
	tag, err := rd.ReadByte()
	if err != nil {
		return world.InventoryAttachment{}, err
	}
	switch tag {
	case invAttachClientTag:
		sid, err := rd.ReadStableId()
		if err != nil {
			return world.InventoryAttachment{}, err
		}
		return world.InventoryAttachment{Kind: world.InvAttachClient, Cid: ResolveClient(w, sid)}, nil
	case invAttachEntityTag:
		sid, err := rd.ReadStableId()
		if err != nil {
			return world.InventoryAttachment{}, err
		}
		return world.InventoryAttachment{Kind: world.InvAttachEntity, Eid: ResolveEntity(w, sid)}, nil
	case invAttachStructureTag:
		sid, err := rd.ReadStableId()
		if err != nil {
			return world.InventoryAttachment{}, err
		}
		return world.InventoryAttachment{Kind: world.InvAttachStructure, Sid: ResolveStructure(w, sid)}, nil
	default:
		return world.InventoryAttachment{Kind: world.InvAttachWorld}, nil
	}
}

// stableIdOf pins and returns the stable id of a transient id, or
// geom.NoStableId for the zero transient id (meaning "no reference").
func stableIdOf[K ~uint32, V geom.StableIdHolder](m *geom.StableIdMap[K, V], id K) geom.StableId {
	var zero K
	if id == zero {
		return geom.NoStableId
	}
	sid, ok := m.Pin(id)
	if !ok {
		return geom.NoStableId
	}
	return sid
}
