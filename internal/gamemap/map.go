package gamemap

// Header carries the map-level metadata stored in the OTBM root and
// map-data nodes.
type Header struct {
	OTBMVersion uint32
	Width       uint16
	Height      uint16
	ItemsMajor  uint32
	ItemsMinor  uint32
	Description string

	// External side-channel files referenced by the map. These are loaded
	// and saved by the host, never parsed here.
	MonsterSpawnFile string
	NPCSpawnFile     string
	HouseFile        string
	ZoneFile         string

	// Unknown preserves map-data attribute bytes this engine does not
	// recognize, re-emitted verbatim on save.
	Unknown []byte
}

// House is a house entity. OTBM itself only stores house-id
// back-references on tiles; the entity list comes from the host.
type House struct {
	ID     uint32
	Name   string
	TownID uint32
	Rent   uint32
	Entry  *Position
	Flags  uint32
}

// Town is a town entity with its temple position.
type Town struct {
	ID     uint32
	Name   string
	Temple Position
}

// Waypoint is a named position.
type Waypoint struct {
	Name string
	Pos  Position
}

// SpawnEntry is one creature inside a spawn area.
type SpawnEntry struct {
	Name     string
	OffsetX  int
	OffsetY  int
	Interval int
}

// SpawnArea is a creature spawn region. Spawns live in side-channel files
// owned by the host; the engine only models them.
type SpawnArea struct {
	Center  Position
	Radius  int
	Entries []SpawnEntry
}

// Map is a fully assembled game map. The engine builds one on load and
// consumes one on save; it never retains a Map across calls.
type Map struct {
	Header    Header
	Tiles     map[Position]*Tile
	Houses    map[uint32]*House
	Towns     map[uint32]*Town
	Waypoints map[string]*Waypoint

	MonsterSpawns []*SpawnArea
	NPCSpawns     []*SpawnArea

	// ZoneNames maps zone id to name for maps whose host loaded the zone
	// side-channel file.
	ZoneNames map[uint16]string
}

// New returns an empty map with the given header.
func New(h Header) *Map {
	return &Map{
		Header:    h,
		Tiles:     map[Position]*Tile{},
		Houses:    map[uint32]*House{},
		Towns:     map[uint32]*Town{},
		Waypoints: map[string]*Waypoint{},
		ZoneNames: map[uint16]string{},
	}
}

// Tile returns the tile at pos, or nil.
func (m *Map) Tile(pos Position) *Tile {
	return m.Tiles[pos]
}

// SetTile inserts or replaces a tile at its own position.
func (m *Map) SetTile(t *Tile) {
	m.Tiles[t.Pos] = t
}

// RemoveTile deletes the tile at pos if present.
func (m *Map) RemoveTile(pos Position) {
	delete(m.Tiles, pos)
}

// TileCount returns the number of tiles.
func (m *Map) TileCount() int { return len(m.Tiles) }
