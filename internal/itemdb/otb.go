// Package itemdb loads the items.otb item database: the per-item
// ServerID/ClientID pairs and type flags the map codec needs to interpret
// item payloads, plus the header used for client-version sniffing.
package itemdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

// items.otb shares the node-file framing of OTBM: the same marker bytes,
// the same escape rule.
const (
	nodeStart  = 0xFE
	nodeEnd    = 0xFF
	escapeChar = 0xFD
)

var (
	magicOTBI     = [4]byte{'O', 'T', 'B', 'I'}
	magicWildcard = [4]byte{0, 0, 0, 0}
)

const rootAttrVersion = 0x01

// Item groups (subset the engine interprets).
const (
	GroupNone       = 0
	GroupGround     = 1
	GroupContainer  = 2
	GroupSplash     = 11
	GroupFluid      = 12
	GroupDeprecated = 13
)

// Item type flags (subset the engine interprets).
const (
	FlagStackable uint32 = 1 << 7
)

// Per-item attribute tags.
const (
	itemAttrServerID = 0x10
	itemAttrClientID = 0x11
)

// FormatError is corruption of the items.otb byte stream.
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("items.otb: %s at offset %d", e.Msg, e.Offset)
}

// Header is the items.otb version header. CSD is the raw 128-byte version
// string, e.g. "OTB 3.65.62-13.10".
type Header struct {
	Major uint32
	Minor uint32
	Build uint32
	CSD   string
}

var csdClientRe = regexp.MustCompile(`-(\d+)\.(\d+)`)

// Very old databases carry no client version in the CSD string; map their
// OTB version directly.
var legacyOTBClientVersions = map[uint32]int{
	101: 740,
	102: 750,
}

// ClientVersion extracts the Tibia client version this database targets:
// "OTB 3.65.62-13.10" yields 1310. Databases without the suffix fall back
// to the legacy OTB-version table, then to major*100+minor.
func (h Header) ClientVersion() int {
	if m := csdClientRe.FindStringSubmatch(h.CSD); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return major*100 + minor
	}
	otb := h.Major*100 + h.Minor
	if v, ok := legacyOTBClientVersions[otb]; ok {
		return v
	}
	return int(otb)
}

// Type is one item database entry.
type Type struct {
	ServerID uint16
	ClientID uint16
	Group    uint8
	Flags    uint32
}

func (t *Type) Ground() bool         { return t.Group == GroupGround }
func (t *Type) Stackable() bool      { return t.Flags&FlagStackable != 0 }
func (t *Type) FluidContainer() bool { return t.Group == GroupFluid }
func (t *Type) Splash() bool         { return t.Group == GroupSplash }

// Database is a loaded items.otb.
type Database struct {
	Header   Header
	byServer map[uint16]*Type
	byClient map[uint16]*Type
}

// New builds a database from explicit entries, for hosts that source
// item types from somewhere other than items.otb. First occurrence wins
// on duplicate ids, matching Decode.
func New(hdr Header, types ...Type) *Database {
	db := &Database{
		Header:   hdr,
		byServer: map[uint16]*Type{},
		byClient: map[uint16]*Type{},
	}
	for i := range types {
		t := types[i]
		if _, ok := db.byServer[t.ServerID]; !ok {
			db.byServer[t.ServerID] = &t
		}
		if _, ok := db.byClient[t.ClientID]; !ok {
			db.byClient[t.ClientID] = &t
		}
	}
	return db
}

// ByServer returns the entry for a ServerID, or nil.
func (db *Database) ByServer(id uint16) *Type { return db.byServer[id] }

// ByClient returns the entry for a ClientID, or nil.
func (db *Database) ByClient(id uint16) *Type { return db.byClient[id] }

// Len returns the number of entries.
func (db *Database) Len() int { return len(db.byServer) }

// ServerIDs calls fn for every known ServerID.
func (db *Database) ServerIDs(fn func(uint16)) {
	for id := range db.byServer {
		fn(id)
	}
}

// Mapper builds the session-wide ID translation layer from this database.
func (db *Database) Mapper() *Mapper {
	m := &Mapper{
		clientToServer: make(map[uint16]uint16, len(db.byClient)),
		serverToClient: make(map[uint16]uint16, len(db.byServer)),
	}
	for id, t := range db.byServer {
		m.serverToClient[id] = t.ClientID
	}
	for id, t := range db.byClient {
		m.clientToServer[id] = t.ServerID
	}
	return m
}

// Load reads an items.otb file.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// LoadHeader reads just the version header, cheaply enough for format
// sniffing before a full load.
func LoadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	r := &otbReader{br: bufio.NewReader(f)}
	if err := r.readMagicAndRootStart(); err != nil {
		return Header{}, err
	}
	rootPayload, _, err := r.nodePayload()
	if err != nil {
		return Header{}, err
	}
	return parseRootHeader(rootPayload, r)
}

// Decode reads an items.otb stream.
func Decode(rd io.Reader) (*Database, error) {
	r := &otbReader{br: bufio.NewReader(rd)}
	if err := r.readMagicAndRootStart(); err != nil {
		return nil, err
	}

	rootPayload, rootDelim, err := r.nodePayload()
	if err != nil {
		return nil, err
	}
	hdr, err := parseRootHeader(rootPayload, r)
	if err != nil {
		return nil, err
	}

	db := &Database{
		Header:   hdr,
		byServer: map[uint16]*Type{},
		byClient: map[uint16]*Type{},
	}

	if rootDelim == nodeStart {
		if err := r.walkItems(db); err != nil {
			return nil, err
		}
	} else if rootDelim != nodeEnd {
		return nil, r.errf("invalid root delimiter 0x%02X", rootDelim)
	}
	return db, nil
}

type otbReader struct {
	br  *bufio.Reader
	off int64
}

func (r *otbReader) errf(format string, args ...any) error {
	return &FormatError{Offset: r.off, Msg: fmt.Sprintf(format, args...)}
}

func (r *otbReader) u8() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, r.errf("unexpected end of stream")
	}
	r.off++
	return b, nil
}

func (r *otbReader) readMagicAndRootStart() error {
	var magic [4]byte
	if _, err := io.ReadFull(r.br, magic[:]); err != nil {
		return r.errf("truncated magic")
	}
	r.off += 4
	if magic != magicOTBI && magic != magicWildcard {
		return r.errf("invalid magic %q", magic[:])
	}
	op, err := r.u8()
	if err != nil {
		return err
	}
	if op != nodeStart {
		return r.errf("expected NODE_START, got 0x%02X", op)
	}
	return nil
}

// nodePayload reads the unescaped payload of the current node up to its
// delimiter. In items.otb the node type byte is part of the payload.
func (r *otbReader) nodePayload() ([]byte, byte, error) {
	var out []byte
	for {
		b, err := r.u8()
		if err != nil {
			return nil, 0, err
		}
		switch b {
		case nodeStart, nodeEnd:
			return out, b, nil
		case escapeChar:
			lit, err := r.u8()
			if err != nil {
				return nil, 0, r.errf("escape byte at end of stream")
			}
			out = append(out, lit)
		default:
			out = append(out, b)
		}
	}
}

// walkItems consumes all item nodes under the root. Nested children are
// skipped with a depth counter, never native recursion.
func (r *otbReader) walkItems(db *Database) error {
	for {
		pl, delim, err := r.nodePayload()
		if err != nil {
			return err
		}
		if err := parseItemNode(pl, db); err != nil {
			return err
		}

		if delim == nodeStart {
			depth := 1
			for depth > 0 {
				_, d, err := r.nodePayload()
				if err != nil {
					return err
				}
				if d == nodeStart {
					depth++
					continue
				}
				for {
					op, err := r.u8()
					if err != nil {
						return err
					}
					if op == nodeStart {
						break
					}
					if op != nodeEnd {
						return r.errf("invalid stream op 0x%02X in item subtree", op)
					}
					depth--
					if depth == 0 {
						break
					}
				}
				if depth == 0 {
					break
				}
			}
		} else if delim != nodeEnd {
			return r.errf("invalid node delimiter 0x%02X", delim)
		}

		op, err := r.u8()
		if err != nil {
			return err
		}
		if op == nodeStart {
			continue
		}
		if op == nodeEnd {
			return nil
		}
		return r.errf("invalid stream op 0x%02X after item node", op)
	}
}

func parseRootHeader(payload []byte, r *otbReader) (Header, error) {
	// Root payload: u8 type info, u32 flags (both unused), then the
	// version attribute: u8 attr, u16 datalen, u32 major/minor/build and
	// a 128-byte version string.
	const versionLen = 4 + 4 + 4 + 128
	if len(payload) < 1+4+1+2 {
		return Header{}, r.errf("root node too small (%d bytes)", len(payload))
	}
	off := 1 + 4
	if payload[off] != rootAttrVersion {
		return Header{}, r.errf("expected ROOT_ATTR_VERSION, got 0x%02X", payload[off])
	}
	off++
	datalen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if datalen != versionLen {
		return Header{}, r.errf("invalid version header size %d", datalen)
	}
	if off+versionLen > len(payload) {
		return Header{}, r.errf("truncated version header")
	}
	h := Header{
		Major: binary.LittleEndian.Uint32(payload[off:]),
		Minor: binary.LittleEndian.Uint32(payload[off+4:]),
		Build: binary.LittleEndian.Uint32(payload[off+8:]),
	}
	csd := payload[off+12 : off+12+128]
	for i, b := range csd {
		if b == 0 {
			csd = csd[:i]
			break
		}
	}
	h.CSD = string(csd)
	return h, nil
}

func parseItemNode(payload []byte, db *Database) error {
	if len(payload) == 0 {
		return nil
	}
	group := payload[0]
	if group == GroupDeprecated {
		return nil
	}
	if len(payload) < 1+4 {
		return nil
	}
	flags := binary.LittleEndian.Uint32(payload[1:])
	off := 5

	var serverID, clientID uint16
	var haveServer, haveClient bool

	// Attributes: repeated u8 tag, u16 datalen, datalen bytes.
	for off < len(payload) {
		attr := payload[off]
		off++
		if off+2 > len(payload) {
			break
		}
		datalen := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if off+datalen > len(payload) {
			break
		}
		data := payload[off : off+datalen]
		off += datalen

		switch {
		case attr == itemAttrServerID && datalen == 2:
			serverID = binary.LittleEndian.Uint16(data)
			haveServer = true
		case attr == itemAttrClientID && datalen == 2:
			clientID = binary.LittleEndian.Uint16(data)
			haveClient = true
		}
	}

	if !haveServer || !haveClient {
		return nil
	}
	t := &Type{ServerID: serverID, ClientID: clientID, Group: group, Flags: flags}
	// First occurrence wins; duplicate ids are ignored.
	if _, ok := db.byServer[serverID]; !ok {
		db.byServer[serverID] = t
	}
	if _, ok := db.byClient[clientID]; !ok {
		db.byClient[clientID] = t
	}
	return nil
}
