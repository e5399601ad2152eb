package world

import "github.com/riftkeep/outpostd/server/geom"

// AnimId indexes the static animation table (out of scope here).
type AnimId uint16

// Entity is anything that moves around in a plane: players' pawns, mobs,
// projectiles.
type Entity struct {
	// StablePlane is the authoritative binding: the stable id of the
	// plane this entity belongs to, whether or not that plane is
	// currently loaded.
	StablePlane geom.StableId
	// Plane is the cached transient id of the plane, valid only while
	// it is loaded; otherwise it equals LimboPlane.
	Plane geom.PlaneId

	Motion          Motion
	Anim            AnimId
	Facing          geom.V3
	TargetVelocity  geom.V3
	Appearance      uint32

	stableID      geom.StableId
	Attachment    EntityAttachment
	ChildInvs     map[geom.InventoryId]struct{}
}

// LimboPlane is the sentinel PlaneId an Entity carries while its actual
// plane is unloaded. It is never a real loaded plane's transient id.
const LimboPlane geom.PlaneId = 0

// NewEntity returns a fresh, unpinned, world-attached Entity positioned at
// pos and stationary as of now.
func NewEntity(stablePlane geom.StableId, pos geom.V3, now Time) *Entity {
	return &Entity{
		StablePlane: stablePlane,
		Plane:       LimboPlane,
		Motion:      FixedMotion(pos, now),
		Attachment:  EntityAttachment{Kind: AttachWorld},
		ChildInvs:   make(map[geom.InventoryId]struct{}),
	}
}

// InLimbo reports whether the entity's plane is currently unloaded.
func (e *Entity) InLimbo() bool { return e.Plane == LimboPlane }

// GetStableId implements geom.StableIdHolder.
func (e *Entity) GetStableId() geom.StableId { return e.stableID }

// SetStableId implements geom.StableIdHolder.
func (e *Entity) SetStableId(id geom.StableId) { e.stableID = id }
