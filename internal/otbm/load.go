package otbm

import (
	"context"
	"io"
	"os"
	"time"

	"mapforge.dev/internal/gamemap"
	"mapforge.dev/internal/guard"
	"mapforge.dev/internal/itemdb"
)

// Context carries everything one load or save call needs. It is threaded
// explicitly through the codec; the engine keeps no global state, so
// independent calls may run concurrently.
type Context struct {
	// Format overrides the descriptor derived from the file header on
	// load, and selects the target dialect on save.
	Format *Descriptor

	// DB supplies item semantics (ground detection, stackable handling)
	// and is optional.
	DB *itemdb.Database

	// Mapper translates between id spaces. Required for ClientID-space
	// targets on save; optional on load (missing mappings degrade to
	// placeholder warnings).
	Mapper *itemdb.Mapper

	// Limits configures the resource guard. Zero values mean defaults.
	Limits guard.Limits
}

// Warning is one recoverable anomaly downgraded during load.
type Warning struct {
	Code    string
	Message string
	RawID   uint16
	Pos     *gamemap.Position
	Action  string
}

// LoadReport is the structured outcome of a successful load. The engine
// never logs; the host renders this as it sees fit.
type LoadReport struct {
	Version  uint32
	Width    uint16
	Height   uint16
	Tiles    int64
	Items    int64
	Duration time.Duration
	Warnings []Warning
}

type decoder struct {
	ctx    context.Context
	r      *reader
	fmt    Descriptor
	db     *itemdb.Database
	mapper *itemdb.Mapper
	guard  *guard.Tracker
	rep    *LoadReport

	seenHouseIDs map[uint32]bool
}

func (d *decoder) warn(w Warning) {
	d.rep.Warnings = append(d.rep.Warnings, w)
}

// mapDataDecoders dispatches map-data children by node type. Adding a
// future node kind means adding a row here, not touching the walk logic.
var mapDataDecoders = map[byte]func(*decoder, *payload, *gamemap.Map) error{
	nodeTileArea:  (*decoder).decodeTileArea,
	nodeTowns:     (*decoder).decodeTowns,
	nodeWaypoints: (*decoder).decodeWaypoints,
}

// LoadFile loads an OTBM map from disk. The file size is checked against
// the resource guard before any parsing.
func LoadFile(ctx context.Context, path string, fc Context) (*gamemap.Map, *LoadReport, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	tracker := guard.New(fc.Limits)
	if err := tracker.CheckFileSize(st.Size()); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return load(ctx, f, fc, tracker)
}

// Load loads an OTBM map from a byte source. On any fatal error no
// partial map is returned.
func Load(ctx context.Context, r io.Reader, fc Context) (*gamemap.Map, *LoadReport, error) {
	return load(ctx, r, fc, guard.New(fc.Limits))
}

func load(ctx context.Context, src io.Reader, fc Context, tracker *guard.Tracker) (*gamemap.Map, *LoadReport, error) {
	start := time.Now()
	r := newReader(src)

	hdr, err := readRootHeader(r)
	if err != nil {
		return nil, nil, err
	}

	d := &decoder{
		ctx:          ctx,
		r:            r,
		db:           fc.DB,
		mapper:       fc.Mapper,
		guard:        tracker,
		rep:          &LoadReport{Version: hdr.OTBMVersion, Width: hdr.Width, Height: hdr.Height},
		seenHouseIDs: map[uint32]bool{},
	}
	if fc.Format != nil {
		d.fmt = *fc.Format
	} else {
		d.fmt = DescriptorForVersion(hdr.OTBMVersion)
	}

	m := gamemap.New(hdr)

	// Root children. A conforming file has exactly one map-data child;
	// anything else is skipped whole.
	for {
		typ, p, err := r.beginNode()
		if err != nil {
			return nil, nil, err
		}
		if typ == nodeMapData {
			r.push("map_data")
			if err := d.decodeMapData(p, m); err != nil {
				return nil, nil, err
			}
			r.pop()
		} else {
			delim, err := p.drain()
			if err != nil {
				return nil, nil, err
			}
			if delim == markerStart {
				if err := r.skipSiblings(); err != nil {
					return nil, nil, err
				}
			}
		}

		op, err := r.u8()
		if err != nil {
			return nil, nil, err
		}
		if op == markerStart {
			continue
		}
		if op == markerEnd {
			break
		}
		return nil, nil, r.structf("invalid stream op 0x%02X after root child", op)
	}

	d.rep.Tiles = tracker.Tiles()
	d.rep.Items = tracker.Items()
	d.rep.Duration = time.Since(start)
	return m, d.rep, nil
}

func (d *decoder) decodeMapData(p *payload, m *gamemap.Map) error {
	unknown, warns, err := decodeMapDataAttrs(p, &m.Header)
	if err != nil {
		return err
	}
	m.Header.Unknown = unknown
	for _, w := range warns {
		d.warn(w)
	}

	if p.delim != markerStart {
		return nil // map without tiles, towns or waypoints
	}

	for {
		typ, cp, err := d.r.beginNode()
		if err != nil {
			return err
		}
		if dec, ok := mapDataDecoders[typ]; ok {
			d.r.push(nodeName(typ))
			if err := dec(d, cp, m); err != nil {
				return err
			}
			d.r.pop()
		} else {
			delim, err := cp.drain()
			if err != nil {
				return err
			}
			if delim == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
		}

		op, err := d.r.u8()
		if err != nil {
			return err
		}
		if op == markerStart {
			continue
		}
		if op == markerEnd {
			return nil
		}
		return d.r.structf("invalid stream op 0x%02X after map_data child", op)
	}
}

func (d *decoder) decodeTileArea(p *payload, m *gamemap.Map) error {
	// Cancellation granularity is the tile area.
	if err := d.ctx.Err(); err != nil {
		return err
	}

	baseX, err := p.u16()
	if err != nil {
		return err
	}
	baseY, err := p.u16()
	if err != nil {
		return err
	}
	z, err := p.u8()
	if err != nil {
		return err
	}
	delim, err := p.drain()
	if err != nil {
		return err
	}
	if delim != markerStart {
		return nil // empty area
	}

	for {
		typ, tp, err := d.r.beginNode()
		if err != nil {
			return err
		}
		if typ == nodeTile || typ == nodeHouseTile {
			d.r.push(nodeName(typ))
			tile, err := d.decodeTile(typ, tp, baseX, baseY, z)
			if err != nil {
				return err
			}
			d.r.pop()

			d.checkTileAnomalies(tile, m)
			m.SetTile(tile)
			if err := d.guard.AddTile(); err != nil {
				return err
			}
		} else {
			dl, err := tp.drain()
			if err != nil {
				return err
			}
			if dl == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
		}

		op, err := d.r.u8()
		if err != nil {
			return err
		}
		if op == markerStart {
			continue
		}
		if op == markerEnd {
			return nil
		}
		return d.r.structf("invalid stream op 0x%02X after tile", op)
	}
}

// checkTileAnomalies downgrades per-tile oddities to warnings. Legacy
// files routinely violate their declared bounds, so the tile is kept
// either way.
func (d *decoder) checkTileAnomalies(t *gamemap.Tile, m *gamemap.Map) {
	if t.Pos.X >= m.Header.Width || t.Pos.Y >= m.Header.Height {
		pos := t.Pos
		d.warn(Warning{
			Code:    WarnOutOfBounds,
			Message: "tile outside declared map bounds, keeping it",
			Pos:     &pos,
		})
	}
	if t.HouseID != 0 && !d.seenHouseIDs[t.HouseID] {
		d.seenHouseIDs[t.HouseID] = true
		pos := t.Pos
		d.warn(Warning{
			Code:    WarnDanglingHouseID,
			Message: "tile references a house entity not present in the map file; the validator can confirm it against the house list",
			RawID:   uint16(t.HouseID),
			Pos:     &pos,
		})
	}
}

func (d *decoder) decodeTowns(p *payload, m *gamemap.Map) error {
	delim, err := p.drain()
	if err != nil {
		return err
	}
	if delim != markerStart {
		return nil
	}
	for {
		typ, tp, err := d.r.beginNode()
		if err != nil {
			return err
		}
		if typ == nodeTown {
			d.r.push("town")
			id, err := tp.u32()
			if err != nil {
				return err
			}
			name, err := tp.str()
			if err != nil {
				return err
			}
			temple, err := d.decodePos(tp)
			if err != nil {
				return err
			}
			m.Towns[id] = &gamemap.Town{ID: id, Name: name, Temple: temple}
			if _, err := tp.drain(); err != nil {
				return err
			}
			if tp.delim == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
			d.r.pop()
		} else {
			dl, err := tp.drain()
			if err != nil {
				return err
			}
			if dl == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
		}

		op, err := d.r.u8()
		if err != nil {
			return err
		}
		if op == markerStart {
			continue
		}
		if op == markerEnd {
			return nil
		}
		return d.r.structf("invalid stream op 0x%02X after town", op)
	}
}

func (d *decoder) decodeWaypoints(p *payload, m *gamemap.Map) error {
	delim, err := p.drain()
	if err != nil {
		return err
	}
	if delim != markerStart {
		return nil
	}
	for {
		typ, wp, err := d.r.beginNode()
		if err != nil {
			return err
		}
		if typ == nodeWaypoint {
			d.r.push("waypoint")
			name, err := wp.str()
			if err != nil {
				return err
			}
			pos, err := d.decodePos(wp)
			if err != nil {
				return err
			}
			m.Waypoints[name] = &gamemap.Waypoint{Name: name, Pos: pos}
			if _, err := wp.drain(); err != nil {
				return err
			}
			if wp.delim == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
			d.r.pop()
		} else {
			dl, err := wp.drain()
			if err != nil {
				return err
			}
			if dl == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
		}

		op, err := d.r.u8()
		if err != nil {
			return err
		}
		if op == markerStart {
			continue
		}
		if op == markerEnd {
			return nil
		}
		return d.r.structf("invalid stream op 0x%02X after waypoint", op)
	}
}
