package otbm

import (
	"sort"

	"mapforge.dev/internal/gamemap"
)

// decodeTile reads one tile or house-tile node, including its item and
// zone children, and returns the assembled tile.
func (d *decoder) decodeTile(typ byte, p *payload, baseX, baseY uint16, z uint8) (*gamemap.Tile, error) {
	offX, err := p.u8()
	if err != nil {
		return nil, err
	}
	offY, err := p.u8()
	if err != nil {
		return nil, err
	}

	t := &gamemap.Tile{
		Pos: gamemap.Position{X: baseX + uint16(offX), Y: baseY + uint16(offY), Z: z},
	}

	if typ == nodeHouseTile {
		if t.HouseID, err = p.u32(); err != nil {
			return nil, err
		}
	}

	// Tile payload attributes.
attrs:
	for {
		attr, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch attr {
		case attrTileFlags:
			if t.Flags, err = p.u32(); err != nil {
				return nil, err
			}
		case attrItem:
			// Compact item: bare id, used for simple ground.
			rawID, err := p.u16()
			if err != nil {
				return nil, err
			}
			sid, cid, rawUnknown := d.resolveRawID(rawID, &t.Pos)
			it := gamemap.NewItem(sid)
			it.ClientID = cid
			it.RawUnknownID = rawUnknown
			if t.Ground == nil {
				t.Ground = it
			} else {
				t.Items = append(t.Items, it)
			}
			if err := d.guard.AddItems(1); err != nil {
				return nil, err
			}
		default:
			d.warn(Warning{
				Code:    WarnUnknownAttribute,
				Message: nodeUnknownAttrMsg("tile", attr),
				Pos:     &t.Pos,
			})
			tail, err := p.tail()
			if err != nil {
				return nil, err
			}
			t.Unknown = append([]byte{attr}, tail...)
			break attrs
		}
	}

	if p.delim == markerStart {
		if err := d.decodeTileChildren(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// decodeTileChildren consumes the tile's child nodes: items (with
// arbitrarily nested container contents) and zone lists. Container depth
// is file-authored, so nesting is tracked with an explicit frame stack
// rather than native recursion.
func (d *decoder) decodeTileChildren(t *gamemap.Tile) error {
	// stack[0] is the tile level; deeper frames are open containers.
	stack := []*gamemap.Item{nil}

	for {
		typ, p, err := d.r.beginNode()
		if err != nil {
			return err
		}

		switch typ {
		case nodeItem:
			d.r.push("item")
			it, err := d.decodeItemPayload(p, &t.Pos)
			if err != nil {
				return err
			}
			if err := d.guard.AddItems(1); err != nil {
				return err
			}
			if parent := stack[len(stack)-1]; parent != nil {
				parent.Contents = append(parent.Contents, it)
			} else if t.Ground == nil && d.isGroundID(it.ID) {
				t.Ground = it
			} else {
				t.Items = append(t.Items, it)
			}
			if _, err := p.drain(); err != nil {
				return err
			}
			if p.delim == markerStart {
				// Container contents follow as children of this item.
				stack = append(stack, it)
				continue
			}
			d.r.pop()

		case nodeTileZone:
			d.r.push("tile_zone")
			n, err := p.u16()
			if err != nil {
				return err
			}
			for i := 0; i < int(n); i++ {
				zid, err := p.u16()
				if err != nil {
					return err
				}
				if zid != 0 {
					t.Zones = append(t.Zones, zid)
				}
			}
			if _, err := p.drain(); err != nil {
				return err
			}
			if p.delim == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
			d.r.pop()

		default:
			if _, err := p.drain(); err != nil {
				return err
			}
			if p.delim == markerStart {
				if err := d.r.skipSiblings(); err != nil {
					return err
				}
			}
		}

		// Advance: sibling, or close one or more levels.
		for {
			op, err := d.r.u8()
			if err != nil {
				return err
			}
			if op == markerStart {
				break
			}
			if op != markerEnd {
				return d.r.structf("invalid stream op 0x%02X in tile children", op)
			}
			if stack[len(stack)-1] != nil {
				d.r.pop()
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return nil
			}
		}
	}
}

func (d *decoder) isGroundID(id uint16) bool {
	if d.db == nil || id == 0 {
		return false
	}
	t := d.db.ByServer(id)
	return t != nil && t.Ground()
}

// isCompactGround reports whether a ground item can be written as the
// compact tile attribute. The compact form cannot carry attributes or
// container contents.
func isCompactGround(it *gamemap.Item) bool {
	return it.ActionID == 0 &&
		it.UniqueID == 0 &&
		it.Text == "" &&
		it.Description == "" &&
		it.Destination == nil &&
		it.Count == 0 &&
		it.Subtype < 0 &&
		it.DepotID == 0 &&
		it.HouseDoorID < 0 &&
		len(it.Contents) == 0 &&
		len(it.Attributes) == 0 &&
		len(it.Unknown) == 0
}

// encodeTileNode writes one tile (or house tile) with its items and
// zones.
func (e *encoder) encodeTileNode(w *writer, t *gamemap.Tile, baseX, baseY uint16) error {
	relX := int(t.Pos.X) - int(baseX)
	relY := int(t.Pos.Y) - int(baseY)
	if relX < 0 || relX > 0xFF || relY < 0 || relY > 0xFF {
		return e.structuralf("tile %s outside area base (%d,%d)", t.Pos, baseX, baseY)
	}

	typ := byte(nodeTile)
	if t.HouseID != 0 {
		typ = nodeHouseTile
	}
	w.begin(typ)
	w.u8(uint8(relX))
	w.u8(uint8(relY))
	if t.HouseID != 0 {
		w.u32(t.HouseID)
	}
	if t.Flags != 0 {
		w.u8(attrTileFlags)
		w.u32(t.Flags)
	}

	var children []*gamemap.Item
	if t.Ground != nil {
		if e.fmt.Version >= 2 && isCompactGround(t.Ground) {
			diskID, err := e.encodeItemID(t.Ground.ID)
			if err != nil {
				return err
			}
			w.u8(attrItem)
			w.u16(diskID)
		} else {
			children = append(children, t.Ground)
		}
	}
	children = append(children, t.Items...)
	if len(t.Unknown) > 0 {
		w.bytes(t.Unknown)
	}

	for _, it := range children {
		if err := e.encodeItemNode(w, it); err != nil {
			return err
		}
	}

	if len(t.Zones) > 0 {
		zones := append([]uint16(nil), t.Zones...)
		sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
		w.begin(nodeTileZone)
		w.u16(uint16(len(zones)))
		for _, zid := range zones {
			w.u16(zid)
		}
		w.end()
	}

	w.end()
	return nil
}
