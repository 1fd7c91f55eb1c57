package gamemap

// Attribute value types used inside an item attribute map.
const (
	AttrTypeNone    = 0
	AttrTypeString  = 1
	AttrTypeInteger = 2
	AttrTypeFloat   = 3
	AttrTypeDouble  = 4
	AttrTypeBoolean = 5
)

// AttrEntry is one key/value pair of an item attribute map. Raw holds the
// value bytes exactly as they appear on disk so entries this engine does
// not interpret survive a load/save cycle untouched.
type AttrEntry struct {
	Key  []byte
	Type uint8
	Raw  []byte
}

// Item is a map item. The ID is always ServerID-space once in memory;
// translation to and from ClientID space happens at the format boundary.
type Item struct {
	ID uint16

	// ClientID is the sprite-space id when known, purely informational.
	ClientID uint16

	// RawUnknownID keeps the on-disk id of an item that could not be
	// resolved against the item database (ID is then the placeholder 0).
	RawUnknownID uint16

	// Subtype is the fluid/charge subtype, -1 when unset.
	Subtype int

	// Count is the stack count, 0 when unset.
	Count int

	ActionID    uint16
	UniqueID    uint16
	Text        string
	Description string
	Destination *Position
	DepotID     uint16
	HouseDoorID int // -1 when unset

	// Attributes is the generic attribute map carried by newer formats.
	Attributes []AttrEntry

	// Contents holds nested container items.
	Contents []*Item

	// Unknown preserves attribute bytes this engine does not recognize,
	// re-emitted verbatim on save.
	Unknown []byte
}

// NewItem returns an item with sentinel fields cleared.
func NewItem(id uint16) *Item {
	return &Item{ID: id, Subtype: -1, HouseDoorID: -1}
}

// CountItems returns 1 plus the number of nested container items.
func (it *Item) CountItems() int {
	n := 1
	stack := make([]*Item, len(it.Contents))
	copy(stack, it.Contents)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, cur.Contents...)
	}
	return n
}
