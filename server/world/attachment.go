package world

import "github.com/riftkeep/outpostd/server/geom"

// EntityAttachment names what an Entity's lifetime is bound to.
type EntityAttachment struct {
	Kind EntityAttachKind
	Cid  geom.ClientId       // valid iff Kind == AttachClient
	Tcid geom.TerrainChunkId // valid iff Kind == AttachChunk
}

// EntityAttachKind enumerates the three places an entity may be anchored.
type EntityAttachKind uint8

const (
	// AttachWorld entities persist independently; nothing destroys them
	// automatically.
	AttachWorld EntityAttachKind = iota
	// AttachChunk entities are destroyed when their containing terrain
	// chunk unloads. Their motion must be Motion.Fixed (see open
	// question resolution in SPEC_FULL.md §9).
	AttachChunk
	// AttachClient entities are destroyed along with the client that
	// owns them (typically a client's pawn).
	AttachClient
)

// StructureAttachment names what a Structure's lifetime is bound to.
type StructureAttachment uint8

const (
	// StructAttachPlane structures are free-standing: they persist with
	// the plane and are not destroyed when a containing chunk unloads
	// (resolution of the §9 open question).
	StructAttachPlane StructureAttachment = iota
	// StructAttachChunk structures are destroyed along with their
	// containing terrain chunk.
	StructAttachChunk
)

// InventoryAttachment names what owns an Inventory.
type InventoryAttachment struct {
	Kind InventoryAttachKind
	Cid  geom.ClientId
	Eid  geom.EntityId
	Sid  geom.StructureId
}

// InventoryAttachKind enumerates inventory owners.
type InventoryAttachKind uint8

const (
	InvAttachWorld InventoryAttachKind = iota
	InvAttachClient
	InvAttachEntity
	InvAttachStructure
)
