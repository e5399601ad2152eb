package geom

import "fmt"

// StableId is a 64-bit identity assigned lazily to an object the first time
// it is persisted ("pinned"). It is unique among all objects of its kind,
// for all time, independent of process restarts.
type StableId uint64

// NoStableId is the reserved value meaning "no stable id has been assigned
// yet".
const NoStableId StableId = 0

// ClientId is a transient, process-lifetime identifier for a Client.
type ClientId uint32

// EntityId is a transient, process-lifetime identifier for an Entity.
type EntityId uint32

// InventoryId is a transient, process-lifetime identifier for an Inventory.
type InventoryId uint32

// PlaneId is a transient, process-lifetime identifier for a Plane.
type PlaneId uint32

// TerrainChunkId is a transient, process-lifetime identifier for a
// TerrainChunk.
type TerrainChunkId uint32

// StructureId is a transient, process-lifetime identifier for a Structure.
type StructureId uint32

// NoEntity, NoInventory, etc. are the zero-value sentinels meaning "no such
// object" for each transient id kind; the zero id is never assigned to a
// real object since id 0 is reserved.
const (
	NoClient        ClientId       = 0
	NoEntity        EntityId       = 0
	NoInventory     InventoryId    = 0
	NoPlane         PlaneId        = 0
	NoTerrainChunk  TerrainChunkId = 0
	NoStructure     StructureId    = 0
)

// WireId identifies one connected wire (a client connection that a
// frontend multiplexes over the engine's single stdin/stdout pipe).
type WireId uint16

// ControlWireId is the reserved WireId carrying framing-level control
// messages (AddClient, RemoveClient, Shutdown, Restart) rather than
// messages belonging to a particular client.
const ControlWireId WireId = 0

// LimboPlaneStableId is the stable id of the distinguished "limbo" plane
// that hosts entities whose actual plane is currently unloaded.
const LimboPlaneStableId StableId = 1

func (id ClientId) String() string       { return fmt.Sprintf("Client(%d)", uint32(id)) }
func (id EntityId) String() string       { return fmt.Sprintf("Entity(%d)", uint32(id)) }
func (id InventoryId) String() string    { return fmt.Sprintf("Inventory(%d)", uint32(id)) }
func (id PlaneId) String() string        { return fmt.Sprintf("Plane(%d)", uint32(id)) }
func (id TerrainChunkId) String() string { return fmt.Sprintf("TerrainChunk(%d)", uint32(id)) }
func (id StructureId) String() string    { return fmt.Sprintf("Structure(%d)", uint32(id)) }
