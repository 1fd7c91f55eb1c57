// Package otbm reads and writes the OTBM binary tile-map format used by
// Tibia-derived game servers.
//
// The format is a node tree: each node is delimited by structural marker
// bytes and carries a type tag, an escaped attribute payload and zero or
// more child nodes. There is no payload length; a payload ends at the
// first unescaped marker.
package otbm

// Structural marker bytes. Any occurrence of one of these values inside
// payload data must be preceded by markerEscape on the wire; an unescaped
// occurrence is always a structural event.
const (
	markerStart  = 0xFE
	markerEnd    = 0xFF
	markerEscape = 0xFD
)

// File magic. RME-authored files sometimes carry four zero bytes instead
// of the "OTBM" signature.
var (
	magicOTBM     = [4]byte{'O', 'T', 'B', 'M'}
	magicWildcard = [4]byte{0, 0, 0, 0}
)

// Node type tags.
const (
	nodeRoot      = 0x01
	nodeMapData   = 0x02
	nodeItemDef   = 0x03
	nodeTileArea  = 0x04
	nodeTile      = 0x05
	nodeItem      = 0x06
	nodeTileSq    = 0x07
	nodeTileRef   = 0x08
	nodeSpawns    = 0x09
	nodeSpawnArea = 0x0A
	nodeMonster   = 0x0B
	nodeTowns     = 0x0C
	nodeTown      = 0x0D
	nodeHouseTile = 0x0E
	nodeWaypoints = 0x0F
	nodeWaypoint  = 0x10
	nodeTileZone  = 0x11
)

// Attribute tags.
const (
	attrDescription      = 0x01
	attrExtFile          = 0x02
	attrTileFlags        = 0x03
	attrActionID         = 0x04
	attrUniqueID         = 0x05
	attrText             = 0x06
	attrDesc             = 0x07
	attrTeleDest         = 0x08
	attrItem             = 0x09
	attrDepotID          = 0x0A
	attrExtSpawnMonster  = 0x0B
	attrRuneCharges      = 0x0C
	attrExtHouseFile     = 0x0D
	attrHouseDoorID      = 0x0E
	attrCount            = 0x0F
	attrDuration         = 0x10
	attrDecayingState    = 0x11
	attrWrittenDate      = 0x12
	attrWrittenBy        = 0x13
	attrSleeperGUID      = 0x14
	attrSleepStart       = 0x15
	attrCharges          = 0x16
	attrExtSpawnNPC      = 0x17
	attrExtZoneFile      = 0x18
	attrAttributeMap     = 0x80
)

func nodeName(typ byte) string {
	switch typ {
	case nodeRoot:
		return "root"
	case nodeMapData:
		return "map_data"
	case nodeItemDef:
		return "item_def"
	case nodeTileArea:
		return "tile_area"
	case nodeTile:
		return "tile"
	case nodeItem:
		return "item"
	case nodeTileSq:
		return "tile_square"
	case nodeTileRef:
		return "tile_ref"
	case nodeSpawns:
		return "spawns"
	case nodeSpawnArea:
		return "spawn_area"
	case nodeMonster:
		return "monster"
	case nodeTowns:
		return "towns"
	case nodeTown:
		return "town"
	case nodeHouseTile:
		return "house_tile"
	case nodeWaypoints:
		return "waypoints"
	case nodeWaypoint:
		return "waypoint"
	case nodeTileZone:
		return "tile_zone"
	}
	return "unknown"
}
