package otbm

import (
	"mapforge.dev/internal/gamemap"
	"mapforge.dev/internal/itemdb"
)

// resolveRawID translates an on-disk item id into ServerID space. In
// ClientID-space formats an id missing from the database yields the
// placeholder id 0 with the raw id retained, never a silent default.
func (d *decoder) resolveRawID(rawID uint16, pos *gamemap.Position) (serverID, clientID, rawUnknown uint16) {
	if !d.fmt.UsesClientID {
		serverID = rawID
		if d.mapper != nil {
			if cid, err := d.mapper.ServerToClient(rawID); err == nil {
				clientID = cid
			}
		}
		return serverID, clientID, 0
	}

	clientID = rawID
	if d.mapper == nil {
		d.warn(Warning{
			Code:    WarnMissingMapper,
			Message: "ClientID-space map loaded without an id mapper; ids may be wrong",
			RawID:   rawID,
			Pos:     pos,
		})
		return rawID, clientID, 0
	}
	sid, err := d.mapper.ClientToServer(rawID)
	if err != nil {
		d.warn(Warning{
			Code:    WarnMissingIDMapping,
			Message: "no server id mapping for client id, substituting placeholder",
			RawID:   rawID,
			Pos:     pos,
			Action:  "placeholder",
		})
		return 0, clientID, rawID
	}
	return sid, clientID, 0
}

// decodeItemPayload reads one item node payload into an Item. The stream
// is left on the payload delimiter; the caller handles container children
// when the delimiter is NODE_START.
func (d *decoder) decodeItemPayload(p *payload, pos *gamemap.Position) (*gamemap.Item, error) {
	rawID, err := p.u16()
	if err != nil {
		return nil, err
	}

	serverID, clientID, rawUnknown := d.resolveRawID(rawID, pos)
	it := gamemap.NewItem(serverID)
	it.ClientID = clientID
	it.RawUnknownID = rawUnknown

	var typ *itemdb.Type
	if d.db != nil && it.ID != 0 {
		typ = d.db.ByServer(it.ID)
		if typ == nil {
			it.RawUnknownID = it.ID
			it.ID = 0
			d.warn(Warning{
				Code:    WarnUnknownItemID,
				Message: "item id not in database, substituting placeholder",
				RawID:   rawID,
				Pos:     pos,
				Action:  "placeholder",
			})
		}
	}

	// Version 1 writes the subtype of stackables/fluids/splashes as a raw
	// byte directly after the id, before any tagged attribute.
	if d.fmt.Version == 1 && typ != nil && (typ.Stackable() || typ.FluidContainer() || typ.Splash()) {
		st, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if ok {
			it.Subtype = int(st)
		}
	}

	if err := d.decodeItemAttrs(p, it, rawID, pos); err != nil {
		return nil, err
	}

	// Stackables carry one logical quantity under two historical tags.
	if typ != nil && (typ.Stackable() || typ.FluidContainer() || typ.Splash()) {
		if it.Subtype < 0 && it.Count > 0 {
			it.Subtype = it.Count
		}
		if it.Count == 0 && it.Subtype >= 0 {
			it.Count = it.Subtype
		}
	}
	return it, nil
}

func (d *decoder) decodeItemAttrs(p *payload, it *gamemap.Item, rawID uint16, pos *gamemap.Position) error {
	for {
		attr, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch attr {
		case attrCount:
			v, err := p.u8()
			if err != nil {
				return err
			}
			it.Count = int(v)
		case attrActionID:
			if it.ActionID, err = p.u16(); err != nil {
				return err
			}
		case attrUniqueID:
			if it.UniqueID, err = p.u16(); err != nil {
				return err
			}
		case attrText:
			if it.Text, err = p.str(); err != nil {
				return err
			}
		case attrDesc:
			if it.Description, err = p.str(); err != nil {
				return err
			}
		case attrTeleDest:
			dest, err := d.decodePos(p)
			if err != nil {
				return err
			}
			it.Destination = &dest
		case attrDepotID:
			if it.DepotID, err = p.u16(); err != nil {
				return err
			}
		case attrRuneCharges:
			v, err := p.u8()
			if err != nil {
				return err
			}
			it.Subtype = int(v)
		case attrCharges:
			v, err := p.u16()
			if err != nil {
				return err
			}
			it.Subtype = int(v)
		case attrHouseDoorID:
			v, err := p.u8()
			if err != nil {
				return err
			}
			it.HouseDoorID = int(v)
		case attrAttributeMap:
			if it.Attributes, err = decodeAttributeMap(p); err != nil {
				return err
			}
			applyAttributeMap(it)
		default:
			// Unknown tag: the length is unknowable, so keep the rest of
			// the payload verbatim and re-emit it on save.
			d.warn(Warning{
				Code:    WarnUnknownAttribute,
				Message: nodeUnknownAttrMsg("item", attr),
				RawID:   rawID,
				Pos:     pos,
			})
			tail, err := p.tail()
			if err != nil {
				return err
			}
			it.Unknown = append([]byte{attr}, tail...)
			return nil
		}
	}
}

func (d *decoder) decodePos(p *payload) (gamemap.Position, error) {
	x, err := p.u16()
	if err != nil {
		return gamemap.Position{}, err
	}
	y, err := p.u16()
	if err != nil {
		return gamemap.Position{}, err
	}
	z, err := p.u8()
	if err != nil {
		return gamemap.Position{}, err
	}
	return gamemap.Position{X: x, Y: y, Z: z}, nil
}

// decodeAttributeMap reads the generic typed attribute map carried by
// newer formats: u16 count of (key, type, value) entries.
func decodeAttributeMap(p *payload) ([]gamemap.AttrEntry, error) {
	n, err := p.u16()
	if err != nil {
		return nil, err
	}
	out := make([]gamemap.AttrEntry, 0, n)
	for i := 0; i < int(n); i++ {
		key, err := p.strBytes()
		if err != nil {
			return nil, err
		}
		atype, err := p.u8()
		if err != nil {
			return nil, err
		}
		var raw []byte
		switch atype {
		case gamemap.AttrTypeString:
			slen, err := p.u32()
			if err != nil {
				return nil, err
			}
			raw = make([]byte, slen)
			if err := p.readFull(raw); err != nil {
				return nil, err
			}
		case gamemap.AttrTypeInteger, gamemap.AttrTypeFloat:
			raw = make([]byte, 4)
			if err := p.readFull(raw); err != nil {
				return nil, err
			}
		case gamemap.AttrTypeDouble:
			raw = make([]byte, 8)
			if err := p.readFull(raw); err != nil {
				return nil, err
			}
		case gamemap.AttrTypeBoolean:
			raw = make([]byte, 1)
			if err := p.readFull(raw); err != nil {
				return nil, err
			}
		case gamemap.AttrTypeNone:
			// no value bytes
		default:
			return nil, p.r.structf("unknown attribute-map value type %d", atype)
		}
		out = append(out, gamemap.AttrEntry{Key: key, Type: atype, Raw: raw})
	}
	return out, nil
}

func attrI32(raw []byte) (int, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	v := int32(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
	return int(v), true
}

// applyAttributeMap fills typed item fields from attribute-map entries
// that the plain attributes left unset. The entries themselves are kept
// so a later save re-emits them unchanged.
func applyAttributeMap(it *gamemap.Item) {
	var destX, destY, destZ *int
	for _, e := range it.Attributes {
		switch string(e.Key) {
		case "aid":
			if it.ActionID == 0 {
				if v, ok := attrI32(e.Raw); ok {
					it.ActionID = uint16(v)
				}
			}
		case "uid":
			if it.UniqueID == 0 {
				if v, ok := attrI32(e.Raw); ok {
					it.UniqueID = uint16(v)
				}
			}
		case "text":
			if it.Text == "" {
				it.Text = string(e.Raw)
			}
		case "desc":
			if it.Description == "" {
				it.Description = string(e.Raw)
			}
		case "subtype":
			if it.Subtype < 0 {
				if v, ok := attrI32(e.Raw); ok {
					it.Subtype = v
				}
			}
		case "depotid":
			if it.DepotID == 0 {
				if v, ok := attrI32(e.Raw); ok {
					it.DepotID = uint16(v)
				}
			}
		case "doorid":
			if it.HouseDoorID < 0 {
				if v, ok := attrI32(e.Raw); ok {
					it.HouseDoorID = v
				}
			}
		case "destination.x":
			if v, ok := attrI32(e.Raw); ok {
				destX = &v
			}
		case "destination.y":
			if v, ok := attrI32(e.Raw); ok {
				destY = &v
			}
		case "destination.z":
			if v, ok := attrI32(e.Raw); ok {
				destZ = &v
			}
		}
	}
	if it.Destination == nil && destX != nil && destY != nil && destZ != nil {
		it.Destination = &gamemap.Position{X: uint16(*destX), Y: uint16(*destY), Z: uint8(*destZ)}
	}
}

// itemTypeOf returns the database entry for an item, or nil.
func (e *encoder) itemTypeOf(it *gamemap.Item) *itemdb.Type {
	if e.db == nil || it.ID == 0 {
		return nil
	}
	return e.db.ByServer(it.ID)
}

// encodeItemID translates a ServerID into the target id space.
func (e *encoder) encodeItemID(id uint16) (uint16, error) {
	if !e.fmt.UsesClientID {
		return id, nil
	}
	if e.mapper == nil {
		return 0, &UnmappedIDError{IDs: []uint16{id}}
	}
	cid, err := e.mapper.ServerToClient(id)
	if err != nil {
		return 0, &UnmappedIDError{IDs: []uint16{id}}
	}
	return cid, nil
}

// encodeItemNode writes a full item node including container children.
// In-memory container nesting is walked with an explicit stack.
func (e *encoder) encodeItemNode(w *writer, it *gamemap.Item) error {
	type frame struct {
		item *gamemap.Item
		next int
	}
	stack := []frame{{item: it}}
	if err := e.encodeItemPayload(w, it); err != nil {
		return err
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.item.Contents) {
			child := top.item.Contents[top.next]
			top.next++
			if err := e.encodeItemPayload(w, child); err != nil {
				return err
			}
			stack = append(stack, frame{item: child})
			continue
		}
		w.end()
		stack = stack[:len(stack)-1]
	}
	return nil
}

// encodeItemPayload opens an item node and writes its attribute payload,
// leaving the node open for children.
func (e *encoder) encodeItemPayload(w *writer, it *gamemap.Item) error {
	if it.ID == 0 {
		return e.structuralf("refusing to serialize placeholder item id 0 (raw id %d)", it.RawUnknownID)
	}
	diskID, err := e.encodeItemID(it.ID)
	if err != nil {
		return err
	}

	w.begin(nodeItem)
	w.u16(diskID)

	typ := e.itemTypeOf(it)
	subtyped := typ != nil && (typ.Stackable() || typ.FluidContainer() || typ.Splash())

	if e.fmt.Version == 1 && subtyped {
		w.u8(uint8(subtypeOrCount(it)))
	} else if subtyped {
		w.u8(attrCount)
		w.u8(uint8(subtypeOrCount(it)))
	} else if it.Count > 0 && it.Count != 1 {
		w.u8(attrCount)
		w.u8(uint8(it.Count))
	} else if it.Subtype >= 0 {
		if it.Subtype <= 0xFF {
			w.u8(attrRuneCharges)
			w.u8(uint8(it.Subtype))
		} else {
			w.u8(attrCharges)
			w.u16(uint16(it.Subtype))
		}
	}

	if it.ActionID > 0 {
		w.u8(attrActionID)
		w.u16(it.ActionID)
	}
	if it.UniqueID > 0 {
		w.u8(attrUniqueID)
		w.u16(it.UniqueID)
	}
	if it.Text != "" {
		w.u8(attrText)
		w.str(it.Text)
	}
	if it.Description != "" {
		w.u8(attrDesc)
		w.str(it.Description)
	}
	if it.Destination != nil {
		w.u8(attrTeleDest)
		w.u16(it.Destination.X)
		w.u16(it.Destination.Y)
		w.u8(it.Destination.Z)
	}
	if it.DepotID > 0 {
		w.u8(attrDepotID)
		w.u16(it.DepotID)
	}
	if it.HouseDoorID >= 0 {
		w.u8(attrHouseDoorID)
		w.u8(uint8(it.HouseDoorID))
	}
	if len(it.Attributes) > 0 {
		encodeAttributeMap(w, it.Attributes)
	}
	if len(it.Unknown) > 0 {
		w.bytes(it.Unknown)
	}
	return nil
}

func subtypeOrCount(it *gamemap.Item) int {
	if it.Subtype >= 0 {
		return it.Subtype
	}
	if it.Count > 0 {
		return it.Count
	}
	return 1
}

func encodeAttributeMap(w *writer, entries []gamemap.AttrEntry) {
	w.u8(attrAttributeMap)
	w.u16(uint16(len(entries)))
	for _, e := range entries {
		key := e.Key
		if len(key) > 0xFFFF {
			key = key[:0xFFFF]
		}
		w.u16(uint16(len(key)))
		w.bytes(key)
		w.u8(e.Type)
		switch e.Type {
		case gamemap.AttrTypeString:
			w.u32(uint32(len(e.Raw)))
			w.bytes(e.Raw)
		case gamemap.AttrTypeNone:
			// no value bytes
		default:
			w.bytes(e.Raw)
		}
	}
}
