package gamemap

// Tile state flags persisted in OTBM.
const (
	FlagProtectionZone uint32 = 1 << 0
	FlagNoPVP          uint32 = 1 << 2
	FlagNoLogout       uint32 = 1 << 3
	FlagPVPZone        uint32 = 1 << 4
)

// Tile is one map square: an optional ground item, an ordered item stack,
// state flags and an optional house back-reference.
type Tile struct {
	Pos    Position
	Ground *Item
	Items  []*Item
	Flags  uint32

	// HouseID is 0 for ordinary tiles. A non-zero id is kept even when no
	// matching House entity exists so the validator can flag it.
	HouseID uint32

	// Zones are the zone ids this tile belongs to (newer formats only).
	Zones []uint16

	// Unknown preserves tile attribute bytes this engine does not
	// recognize, re-emitted verbatim on save.
	Unknown []byte
}

// ItemCount counts the ground item plus all stacked items, including
// nested container contents.
func (t *Tile) ItemCount() int {
	n := 0
	if t.Ground != nil {
		n += t.Ground.CountItems()
	}
	for _, it := range t.Items {
		n += it.CountItems()
	}
	return n
}
