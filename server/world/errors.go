package world

import "errors"

// Validation errors returned by fragment operations. Each leaves the world
// unmodified; see Fragment for the guarantee.
var (
	ErrClientExists      = errors.New("world: client already exists")
	ErrNoSuchClient      = errors.New("world: no such client")
	ErrNoSuchEntity      = errors.New("world: no such entity")
	ErrNoSuchInventory   = errors.New("world: no such inventory")
	ErrNoSuchPlane       = errors.New("world: no such plane")
	ErrNoSuchChunk       = errors.New("world: no such terrain chunk")
	ErrNoSuchStructure   = errors.New("world: no such structure")
	ErrPlaneNotLoaded    = errors.New("world: target plane is not loaded")
	ErrChunkNotLoaded    = errors.New("world: target chunk is not loaded")
	ErrStructureOverlaps = errors.New("world: structure placement overlaps another structure")
	ErrNoSuchTemplate    = errors.New("world: structure template does not resolve")
	ErrBadAttachment     = errors.New("world: attachment is not valid for this operation")
	ErrChunkMotionNotFixed = errors.New("world: chunk-attached entity must have fixed motion")
	ErrInventoryFull     = errors.New("world: inventory has no room for item")
	ErrBadSlot           = errors.New("world: slot index out of range")
)
