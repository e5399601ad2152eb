package world

import "github.com/riftkeep/outpostd/server/geom"

// ItemId indexes the static item table (out of scope here).
type ItemId uint16

// MaxInventorySize is the slot-count cap (§3): "Inventory size is capped
// at 255".
const MaxInventorySize = 255

// ItemKind distinguishes the three slot states.
type ItemKind uint8

const (
	ItemEmpty ItemKind = iota
	// ItemBulk is a stackable item; Count must be > 0.
	ItemBulk
	// ItemSpecial is a non-stackable item carrying opaque script-owned
	// data identified by Tag. Moving it between inventories other than
	// within the same container slot range requires script
	// intervention; this package only enforces the slot bookkeeping.
	ItemSpecial
)

// Item is the contents of one inventory slot.
type Item struct {
	Kind  ItemKind
	Count uint8 // Bulk only; always 0 for Empty/Special.
	Tag   uint8 // Special only.
	Id    ItemId
}

// EmptyItem is the zero-value empty slot.
var EmptyItem = Item{Kind: ItemEmpty}

// Inventory is an ordered, fixed-size array of item slots.
type Inventory struct {
	Contents []Item

	stableID   geom.StableId
	Attachment InventoryAttachment
}

// NewInventory returns a fresh, unpinned Inventory with size empty slots.
// size is clamped to MaxInventorySize.
func NewInventory(size int, attach InventoryAttachment) *Inventory {
	if size > MaxInventorySize {
		size = MaxInventorySize
	}
	contents := make([]Item, size)
	return &Inventory{Contents: contents, Attachment: attach}
}

// GetStableId implements geom.StableIdHolder.
func (i *Inventory) GetStableId() geom.StableId { return i.stableID }

// SetStableId implements geom.StableIdHolder.
func (i *Inventory) SetStableId(id geom.StableId) { i.stableID = id }

// MoveItems moves up to count units of the item in src[srcSlot] into
// dst[dstSlot], merging into an existing compatible Bulk stack or filling
// an Empty slot, and returns the number of units actually moved. Special
// items move as a whole unit (count is ignored and clamped to 1) only
// into an Empty destination slot.
func MoveItems(src *Inventory, srcSlot int, dst *Inventory, dstSlot int, count uint8) (uint8, error) {
	if srcSlot < 0 || srcSlot >= len(src.Contents) {
		return 0, ErrBadSlot
	}
	if dstSlot < 0 || dstSlot >= len(dst.Contents) {
		return 0, ErrBadSlot
	}
	from := &src.Contents[srcSlot]
	to := &dst.Contents[dstSlot]

	switch from.Kind {
	case ItemEmpty:
		return 0, nil
	case ItemSpecial:
		if to.Kind != ItemEmpty {
			return 0, nil
		}
		*to = *from
		*from = EmptyItem
		return 1, nil
	case ItemBulk:
		if count > from.Count {
			count = from.Count
		}
		switch to.Kind {
		case ItemEmpty:
			*to = Item{Kind: ItemBulk, Count: count, Id: from.Id}
		case ItemBulk:
			if to.Id != from.Id {
				return 0, nil
			}
			to.Count += count
		default:
			return 0, nil
		}
		from.Count -= count
		if from.Count == 0 {
			*from = EmptyItem
		}
		return count, nil
	}
	return 0, nil
}
