package otbm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mapforge.dev/internal/gamemap"
	"mapforge.dev/internal/itemdb"
)

// SaveReport is the structured outcome of a successful save.
type SaveReport struct {
	Version  uint32
	Tiles    int
	Items    int
	Bytes    int64
	Duration time.Duration
}

type encoder struct {
	fmt    Descriptor
	db     *itemdb.Database
	mapper *itemdb.Mapper
}

func (e *encoder) structuralf(format string, args ...any) error {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}

// areaKey addresses one 256x256 tile area on one floor.
type areaKey struct {
	baseX uint16
	baseY uint16
	z     uint8
}

// Save serializes the map to w. The serialization is deterministic: areas,
// tiles, towns, waypoints and zone lists are emitted in sorted order, so
// loading a file and saving it again without edits reproduces it byte for
// byte.
func Save(ctx context.Context, w io.Writer, m *gamemap.Map, fc Context) (*SaveReport, error) {
	start := time.Now()

	e := &encoder{db: fc.DB, mapper: fc.Mapper}
	if fc.Format != nil {
		e.fmt = *fc.Format
	} else {
		e.fmt = DescriptorForVersion(m.Header.OTBMVersion)
	}
	if !VersionSupported(e.fmt.Version) {
		return nil, &VersionError{Version: e.fmt.Version}
	}

	// All id translation problems surface before a single byte is written.
	items, err := e.preflight(m)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: w}
	bw := newWriter(cw)

	writeRootHeader(bw, m.Header, e.fmt)

	bw.begin(nodeMapData)
	writeMapDataAttrs(bw, m.Header, m.Header.Unknown)

	areas, order := groupAreas(m)
	for i, key := range order {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tiles := areas[key]
		sort.Slice(tiles, func(a, b int) bool {
			if tiles[a].Pos.Y != tiles[b].Pos.Y {
				return tiles[a].Pos.Y < tiles[b].Pos.Y
			}
			return tiles[a].Pos.X < tiles[b].Pos.X
		})
		bw.begin(nodeTileArea)
		bw.u16(key.baseX)
		bw.u16(key.baseY)
		bw.u8(key.z)
		for _, t := range tiles {
			if err := e.encodeTileNode(bw, t, key.baseX, key.baseY); err != nil {
				return nil, err
			}
		}
		bw.end()
	}

	e.encodeTowns(bw, m)
	e.encodeWaypoints(bw, m)

	bw.end() // map data
	bw.end() // root

	if err := bw.flush(); err != nil {
		return nil, err
	}

	return &SaveReport{
		Version:  e.fmt.Version,
		Tiles:    m.TileCount(),
		Items:    items,
		Bytes:    cw.n,
		Duration: time.Since(start),
	}, nil
}

// SaveFile serializes the map to a temporary file in the destination
// directory, syncs it and renames it over path. On any error the existing
// file is left untouched.
func SaveFile(ctx context.Context, path string, m *gamemap.Map, fc Context) (*SaveReport, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".otbm-save-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	rep, err := Save(ctx, tmp, m, fc)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, err
	}
	return rep, nil
}

// preflight walks every item once, counting them and verifying that each
// ServerID can be expressed in the target id space. It returns a single
// UnmappedIDError naming every offending id and tile, so the host can fix
// them all in one pass.
func (e *encoder) preflight(m *gamemap.Map) (int, error) {
	items := 0
	unmapped := map[uint16]bool{}
	var positions []gamemap.Position

	checkItem := func(it *gamemap.Item, pos gamemap.Position) {
		stack := []*gamemap.Item{it}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			items++
			miss := false
			if cur.ID == 0 {
				// Placeholder left by a load: the original id was never
				// resolved, so it cannot be expressed in any target space.
				miss = true
				unmapped[cur.RawUnknownID] = true
			} else if e.fmt.UsesClientID {
				miss = e.mapper == nil
				if !miss {
					_, err := e.mapper.ServerToClient(cur.ID)
					miss = err != nil
				}
				if miss {
					unmapped[cur.ID] = true
				}
			}
			if miss {
				positions = append(positions, pos)
			}
			stack = append(stack, cur.Contents...)
		}
	}

	for pos, t := range m.Tiles {
		if t.Ground != nil {
			checkItem(t.Ground, pos)
		}
		for _, it := range t.Items {
			checkItem(it, pos)
		}
	}

	if len(unmapped) > 0 {
		ids := make([]uint16, 0, len(unmapped))
		for id := range unmapped {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		sort.Slice(positions, func(i, j int) bool {
			a, b := positions[i], positions[j]
			if a.Z != b.Z {
				return a.Z < b.Z
			}
			if a.Y != b.Y {
				return a.Y < b.Y
			}
			return a.X < b.X
		})
		return 0, &UnmappedIDError{IDs: ids, Positions: positions}
	}
	return items, nil
}

// groupAreas buckets tiles into 256x256 per-floor areas and returns the
// area keys in deterministic order.
func groupAreas(m *gamemap.Map) (map[areaKey][]*gamemap.Tile, []areaKey) {
	areas := map[areaKey][]*gamemap.Tile{}
	for _, t := range m.Tiles {
		key := areaKey{baseX: t.Pos.X &^ 0xFF, baseY: t.Pos.Y &^ 0xFF, z: t.Pos.Z}
		areas[key] = append(areas[key], t)
	}
	order := make([]areaKey, 0, len(areas))
	for key := range areas {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.z != b.z {
			return a.z < b.z
		}
		if a.baseY != b.baseY {
			return a.baseY < b.baseY
		}
		return a.baseX < b.baseX
	})
	return areas, order
}

func (e *encoder) encodeTowns(w *writer, m *gamemap.Map) {
	if len(m.Towns) == 0 {
		return
	}
	ids := make([]uint32, 0, len(m.Towns))
	for id := range m.Towns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w.begin(nodeTowns)
	for _, id := range ids {
		t := m.Towns[id]
		w.begin(nodeTown)
		w.u32(t.ID)
		w.str(t.Name)
		w.u16(t.Temple.X)
		w.u16(t.Temple.Y)
		w.u8(t.Temple.Z)
		w.end()
	}
	w.end()
}

func (e *encoder) encodeWaypoints(w *writer, m *gamemap.Map) {
	// The waypoints container only exists from version 3 on.
	if len(m.Waypoints) == 0 || e.fmt.Version < 3 {
		return
	}
	names := make([]string, 0, len(m.Waypoints))
	for name := range m.Waypoints {
		names = append(names, name)
	}
	sort.Strings(names)

	w.begin(nodeWaypoints)
	for _, name := range names {
		wp := m.Waypoints[name]
		w.begin(nodeWaypoint)
		w.str(wp.Name)
		w.u16(wp.Pos.X)
		w.u16(wp.Pos.Y)
		w.u8(wp.Pos.Z)
		w.end()
	}
	w.end()
}

// countingWriter tracks bytes written for the save report.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
