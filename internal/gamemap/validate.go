package gamemap

import "fmt"

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one finding of the map validator.
type Issue struct {
	Severity string
	Code     string
	Message  string
	Pos      *Position
}

// Result collects validator findings.
type Result struct {
	Issues []Issue
}

func (r *Result) add(severity, code, msg string, pos *Position) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Code: code, Message: msg, Pos: pos})
}

// HasErrors reports whether any issue has error severity.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity issues.
func (r *Result) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Warnings returns the warning-severity issues.
func (r *Result) Warnings() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

const maxFloor = 15

// Validate inspects an assembled map for dangling references and
// out-of-bounds entities. It never mutates the map.
func Validate(m *Map) *Result {
	res := &Result{}

	if m.Header.Width == 0 || m.Header.Height == 0 {
		res.add(SeverityError, "MAP_DIMENSIONS_INVALID",
			fmt.Sprintf("map dimensions must be positive, got %dx%d", m.Header.Width, m.Header.Height), nil)
	}

	inBounds := func(p Position) bool {
		return p.X < m.Header.Width && p.Y < m.Header.Height && p.Z <= maxFloor
	}

	usedHouseIDs := map[uint32]bool{}
	oob := 0
	for pos, tile := range m.Tiles {
		pos := pos
		if !inBounds(pos) {
			oob++
		}
		if tile.HouseID != 0 {
			usedHouseIDs[tile.HouseID] = true
			if _, ok := m.Houses[tile.HouseID]; !ok {
				res.add(SeverityError, "HOUSE_ID_MISSING",
					fmt.Sprintf("tile references undefined house id %d", tile.HouseID), &pos)
			}
		}
		for _, zid := range tile.Zones {
			if len(m.ZoneNames) > 0 {
				if _, ok := m.ZoneNames[zid]; !ok {
					res.add(SeverityWarning, "ZONE_ID_MISSING",
						fmt.Sprintf("tile references undefined zone id %d", zid), &pos)
				}
			}
		}
	}
	if oob > 0 {
		res.add(SeverityError, "TILE_OUT_OF_BOUNDS",
			fmt.Sprintf("%d tiles outside declared bounds %dx%d", oob, m.Header.Width, m.Header.Height), nil)
	}

	for name, wp := range m.Waypoints {
		if name == "" {
			res.add(SeverityWarning, "WAYPOINT_EMPTY_NAME", "waypoint has an empty name", nil)
		}
		if !inBounds(wp.Pos) {
			p := wp.Pos
			res.add(SeverityWarning, "WAYPOINT_OUT_OF_BOUNDS",
				fmt.Sprintf("waypoint %q outside map bounds", name), &p)
		}
	}

	for id, town := range m.Towns {
		if id == 0 {
			res.add(SeverityError, "TOWN_ID_INVALID", "town id must be positive", nil)
		}
		if !inBounds(town.Temple) {
			p := town.Temple
			res.add(SeverityError, "TOWN_TEMPLE_OUT_OF_BOUNDS",
				fmt.Sprintf("town %d temple outside map bounds", id), &p)
		}
	}

	for id, house := range m.Houses {
		if id == 0 {
			res.add(SeverityError, "HOUSE_ID_INVALID", "house id must be positive", nil)
		}
		if !usedHouseIDs[id] {
			res.add(SeverityWarning, "HOUSE_UNUSED",
				fmt.Sprintf("house %d is defined but no tile references it", id), nil)
		}
		if house.TownID != 0 {
			if _, ok := m.Towns[house.TownID]; !ok {
				res.add(SeverityWarning, "HOUSE_TOWN_MISSING",
					fmt.Sprintf("house %d references undefined town id %d", id, house.TownID), nil)
			}
		}
		if house.Entry != nil {
			p := *house.Entry
			if !inBounds(p) {
				res.add(SeverityWarning, "HOUSE_ENTRY_OUT_OF_BOUNDS",
					fmt.Sprintf("house %d entry outside map bounds", id), &p)
			} else if m.Tile(p) == nil {
				res.add(SeverityWarning, "HOUSE_ENTRY_MISSING_TILE",
					fmt.Sprintf("house %d entry position has no tile", id), &p)
			}
		}
	}

	checkSpawns := func(kind string, areas []*SpawnArea) {
		for _, area := range areas {
			if !inBounds(area.Center) {
				p := area.Center
				res.add(SeverityError, kind+"_SPAWN_OUT_OF_BOUNDS",
					fmt.Sprintf("%s spawn center outside map bounds", kind), &p)
			}
			if area.Radius < 0 {
				p := area.Center
				res.add(SeverityError, kind+"_SPAWN_RADIUS_INVALID",
					fmt.Sprintf("%s spawn radius %d is negative", kind, area.Radius), &p)
			}
			for _, e := range area.Entries {
				if e.Name == "" {
					p := area.Center
					res.add(SeverityWarning, kind+"_SPAWN_EMPTY_NAME",
						kind+" spawn entry has an empty creature name", &p)
				}
			}
		}
	}
	checkSpawns("MONSTER", m.MonsterSpawns)
	checkSpawns("NPC", m.NPCSpawns)

	return res
}
