package otbm

import (
	"mapforge.dev/internal/gamemap"
)

// readRootHeader validates the magic, opens the root node and decodes the
// fixed-size header payload. On return the stream sits on the first child
// type tag; the root payload delimiter must be NODE_START since an OTBM
// without a map-data child is not a map.
func readRootHeader(r *reader) (gamemap.Header, error) {
	var magic [4]byte
	if err := r.readFull(magic[:]); err != nil {
		return gamemap.Header{}, err
	}
	if magic != magicOTBM && magic != magicWildcard {
		return gamemap.Header{}, r.structf("invalid OTBM magic %q", magic[:])
	}

	op, err := r.u8()
	if err != nil {
		return gamemap.Header{}, err
	}
	if op != markerStart {
		return gamemap.Header{}, r.structf("expected NODE_START, got 0x%02X", op)
	}

	typ, p, err := r.beginNode()
	if err != nil {
		return gamemap.Header{}, err
	}
	if typ != nodeRoot {
		return gamemap.Header{}, r.structf("expected root node, got %s (0x%02X)", nodeName(typ), typ)
	}
	r.push("root")

	var h gamemap.Header
	if h.OTBMVersion, err = p.u32(); err != nil {
		return gamemap.Header{}, err
	}
	if !VersionSupported(h.OTBMVersion) {
		return gamemap.Header{}, &VersionError{Version: h.OTBMVersion}
	}
	if h.Width, err = p.u16(); err != nil {
		return gamemap.Header{}, err
	}
	if h.Height, err = p.u16(); err != nil {
		return gamemap.Header{}, err
	}
	if h.ItemsMajor, err = p.u32(); err != nil {
		return gamemap.Header{}, err
	}
	if h.ItemsMinor, err = p.u32(); err != nil {
		return gamemap.Header{}, err
	}

	delim, err := p.drain()
	if err != nil {
		return gamemap.Header{}, err
	}
	if delim != markerStart {
		return gamemap.Header{}, r.structf("root node has no children")
	}
	return h, nil
}

// decodeMapDataAttrs reads the map-data attribute payload: the map
// description and the external side-channel file references. Unknown
// attribute bytes are preserved in the returned tail.
func decodeMapDataAttrs(p *payload, h *gamemap.Header) (unknown []byte, warnings []Warning, err error) {
	for {
		attr, ok, err := p.next()
		if err != nil {
			return nil, warnings, err
		}
		if !ok {
			return unknown, warnings, nil
		}

		switch attr {
		case attrDescription:
			if h.Description, err = p.str(); err != nil {
				return nil, warnings, err
			}
		case attrExtSpawnMonster:
			if h.MonsterSpawnFile, err = p.str(); err != nil {
				return nil, warnings, err
			}
		case attrExtSpawnNPC:
			if h.NPCSpawnFile, err = p.str(); err != nil {
				return nil, warnings, err
			}
		case attrExtHouseFile:
			if h.HouseFile, err = p.str(); err != nil {
				return nil, warnings, err
			}
		case attrExtZoneFile:
			if h.ZoneFile, err = p.str(); err != nil {
				return nil, warnings, err
			}
		default:
			// Cannot know the length of an unrecognized attribute; keep
			// the rest of the payload verbatim for re-emission on save.
			warnings = append(warnings, Warning{
				Code:    WarnUnknownAttribute,
				Message: nodeUnknownAttrMsg("map_data", attr),
			})
			tail, err := p.tail()
			if err != nil {
				return nil, warnings, err
			}
			unknown = append([]byte{attr}, tail...)
			return unknown, warnings, nil
		}
	}
}

func nodeUnknownAttrMsg(node string, attr byte) string {
	return "unknown " + node + " attribute 0x" + hexByte(attr) + ", preserving raw bytes"
}

const hexDigits = "0123456789ABCDEF"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

// writeRootHeader emits the magic and opens the root node with its fixed
// header payload. The caller closes the root after the map-data child.
func writeRootHeader(w *writer, h gamemap.Header, d Descriptor) {
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(d.Version)
	w.u16(h.Width)
	w.u16(h.Height)
	w.u32(d.ItemsMajor)
	w.u32(d.ItemsMinor)
}

// writeMapDataAttrs emits the map-data attribute payload, mirroring
// decodeMapDataAttrs, with preserved unknown bytes re-emitted last.
func writeMapDataAttrs(w *writer, h gamemap.Header, unknown []byte) {
	if h.Description != "" {
		w.u8(attrDescription)
		w.str(h.Description)
	}
	if h.MonsterSpawnFile != "" {
		w.u8(attrExtSpawnMonster)
		w.str(h.MonsterSpawnFile)
	}
	if h.HouseFile != "" {
		w.u8(attrExtHouseFile)
		w.str(h.HouseFile)
	}
	if h.NPCSpawnFile != "" {
		w.u8(attrExtSpawnNPC)
		w.str(h.NPCSpawnFile)
	}
	if h.ZoneFile != "" {
		w.u8(attrExtZoneFile)
		w.str(h.ZoneFile)
	}
	if len(unknown) > 0 {
		w.bytes(unknown)
	}
}
