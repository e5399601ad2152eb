package world

import "github.com/riftkeep/outpostd/server/geom"

// InputBits is a bitmask of currently-held movement/action inputs sent by
// a client, interpreted by the event loop's Input handler.
type InputBits uint16

// Client is a connected (or persisted, while offline) player session.
type Client struct {
	Name string

	// Pawn is the entity this client controls, if any. Invariant: if set,
	// that entity exists and lists this client's id in its attachment.
	Pawn         geom.EntityId
	CurrentInput InputBits

	stableID       geom.StableId
	ChildEntities  map[geom.EntityId]struct{}
	ChildInvs      map[geom.InventoryId]struct{}
}

// NewClient returns a fresh, unpinned Client with the given name.
func NewClient(name string) *Client {
	return &Client{
		Name:          name,
		Pawn:          geom.NoEntity,
		ChildEntities: make(map[geom.EntityId]struct{}),
		ChildInvs:     make(map[geom.InventoryId]struct{}),
	}
}

// GetStableId implements geom.StableIdHolder.
func (c *Client) GetStableId() geom.StableId { return c.stableID }

// SetStableId implements geom.StableIdHolder.
func (c *Client) SetStableId(id geom.StableId) { c.stableID = id }
