package otbm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"mapforge.dev/internal/gamemap"
	"mapforge.dev/internal/guard"
	"mapforge.dev/internal/itemdb"
)

// testDB returns a small item database: a ground, a stackable and a
// container type.
func testDB() *itemdb.Database {
	return itemdb.New(
		itemdb.Header{Major: 3, Minor: 65, Build: 62, CSD: "OTB 3.65.62-13.10"},
		itemdb.Type{ServerID: 100, ClientID: 5000, Group: itemdb.GroupGround},
		itemdb.Type{ServerID: 101, ClientID: 5001, Flags: itemdb.FlagStackable},
		itemdb.Type{ServerID: 102, ClientID: 5002, Group: itemdb.GroupContainer},
		itemdb.Type{ServerID: 103, ClientID: 5003},
	)
}

func testCtx(db *itemdb.Database) Context {
	var mapper *itemdb.Mapper
	if db != nil {
		mapper = db.Mapper()
	}
	return Context{DB: db, Mapper: mapper}
}

// minimalMapFile builds a version-3 ServerID-space file with one tile at
// (0,0,7) carrying ground item 100 as the compact attribute.
func minimalMapFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.u8(attrDescription)
	w.str("unit test map")
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	w.begin(nodeTile)
	w.u8(0)
	w.u8(0)
	w.u8(attrItem)
	w.u16(100)
	w.end() // tile
	w.end() // tile area
	w.end() // map data
	w.end() // root
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return buf.Bytes()
}

func TestLoadMinimalServerIDMap(t *testing.T) {
	m, rep, err := Load(context.Background(), bytes.NewReader(minimalMapFile(t)), testCtx(testDB()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rep.Version != 3 || rep.Width != 256 || rep.Height != 256 {
		t.Fatalf("report header = v%d %dx%d", rep.Version, rep.Width, rep.Height)
	}
	if len(rep.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", rep.Warnings)
	}
	if m.Header.Description != "unit test map" {
		t.Fatalf("description = %q", m.Header.Description)
	}
	if m.TileCount() != 1 {
		t.Fatalf("tile count = %d, want 1", m.TileCount())
	}
	tile := m.Tile(gamemap.Position{X: 0, Y: 0, Z: 7})
	if tile == nil {
		t.Fatal("no tile at (0,0,7)")
	}
	if tile.Ground == nil || tile.Ground.ID != 100 {
		t.Fatalf("ground = %+v, want id 100", tile.Ground)
	}
	if len(tile.Items) != 0 {
		t.Fatalf("stacked items = %d, want 0", len(tile.Items))
	}
}

func TestResaveIsByteIdentical(t *testing.T) {
	fix := minimalMapFile(t)
	fc := testCtx(testDB())

	m, _, err := Load(context.Background(), bytes.NewReader(fix), fc)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var out bytes.Buffer
	if _, err := Save(context.Background(), &out, m, fc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !bytes.Equal(out.Bytes(), fix) {
		t.Fatalf("re-save differs from source\n got %x\nwant %x", out.Bytes(), fix)
	}
}

func TestLoadClientIDMap(t *testing.T) {
	// Same shape as the minimal map, but a version-5 file storing the
	// ClientID 5000 on disk.
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(5)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	w.begin(nodeTile)
	w.u8(1)
	w.u8(2)
	w.u8(attrItem)
	w.u16(5000)
	w.end()
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	m, rep, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), testCtx(testDB()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rep.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", rep.Warnings)
	}
	tile := m.Tile(gamemap.Position{X: 1, Y: 2, Z: 7})
	if tile == nil {
		t.Fatal("no tile at (1,2,7)")
	}
	if tile.Ground == nil || tile.Ground.ID != 100 {
		t.Fatalf("ground id = %+v, want server id 100", tile.Ground)
	}
	if tile.Ground.ClientID != 5000 {
		t.Fatalf("client id = %d, want 5000", tile.Ground.ClientID)
	}
}

func TestLoadCorruptMarkerFails(t *testing.T) {
	fix := minimalMapFile(t)
	// Clobber a root header payload byte with an unescaped NODE_END. The
	// root payload now terminates early, which must surface as structural
	// corruption, never a silent misparse.
	fix[14] = markerEnd

	m, _, err := Load(context.Background(), bytes.NewReader(fix), testCtx(testDB()))
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StructuralError", err)
	}
	if m != nil {
		t.Fatal("partial map returned on structural corruption")
	}
}

func TestLoadTruncatedStreamFails(t *testing.T) {
	fix := minimalMapFile(t)
	for _, cut := range []int{3, 10, len(fix) / 2, len(fix) - 1} {
		_, _, err := Load(context.Background(), bytes.NewReader(fix[:cut]), testCtx(testDB()))
		var se *StructuralError
		if !errors.As(err, &se) {
			t.Fatalf("cut at %d: err = %v, want StructuralError", cut, err)
		}
	}
}

func TestLoadUnsupportedVersionFails(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(99)
	w.u16(1)
	w.u16(1)
	w.u32(4)
	w.u32(4)
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	_, _, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), testCtx(nil))
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VersionError", err)
	}
	if ve.Version != 99 {
		t.Fatalf("version = %d, want 99", ve.Version)
	}
}

func TestLoadBadMagicFails(t *testing.T) {
	fix := minimalMapFile(t)
	fix[0] = 'X'
	_, _, err := Load(context.Background(), bytes.NewReader(fix), testCtx(nil))
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StructuralError", err)
	}
}

func TestLoadWildcardMagic(t *testing.T) {
	fix := minimalMapFile(t)
	copy(fix[:4], magicWildcard[:])
	if _, _, err := Load(context.Background(), bytes.NewReader(fix), testCtx(testDB())); err != nil {
		t.Fatalf("load with wildcard magic: %v", err)
	}
}

func TestDanglingHouseIDWarns(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	w.begin(nodeHouseTile)
	w.u8(5)
	w.u8(5)
	w.u32(7) // house id with no matching entity anywhere
	w.u8(attrItem)
	w.u16(100)
	w.end()
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	m, rep, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), testCtx(testDB()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tile := m.Tile(gamemap.Position{X: 5, Y: 5, Z: 7})
	if tile == nil || tile.HouseID != 7 {
		t.Fatalf("tile = %+v, want house id 7 retained", tile)
	}
	found := false
	for _, wn := range rep.Warnings {
		if wn.Code == WarnDanglingHouseID {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %+v, want %s", rep.Warnings, WarnDanglingHouseID)
	}
}

func TestUnknownItemIDBecomesPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	w.begin(nodeTile)
	w.u8(0)
	w.u8(0)
	w.begin(nodeItem)
	w.u16(999) // not in the database
	w.end()
	w.end()
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	m, rep, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), testCtx(testDB()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tile := m.Tile(gamemap.Position{X: 0, Y: 0, Z: 7})
	if tile == nil || len(tile.Items) != 1 {
		t.Fatalf("tile = %+v, want one stacked item", tile)
	}
	it := tile.Items[0]
	if it.ID != 0 || it.RawUnknownID != 999 {
		t.Fatalf("item = id %d raw %d, want placeholder 0 raw 999", it.ID, it.RawUnknownID)
	}
	found := false
	for _, wn := range rep.Warnings {
		if wn.Code == WarnUnknownItemID && wn.RawID == 999 {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %+v, want %s", rep.Warnings, WarnUnknownItemID)
	}
}

func TestUnknownItemAttributePreserved(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	w.begin(nodeTile)
	w.u8(0)
	w.u8(0)
	w.begin(nodeItem)
	w.u16(103)
	w.u8(0x6F) // tag this engine does not know
	w.bytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	w.end()
	w.end()
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	fix := buf.Bytes()
	fc := testCtx(testDB())

	m, rep, err := Load(context.Background(), bytes.NewReader(fix), fc)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tile := m.Tile(gamemap.Position{X: 0, Y: 0, Z: 7})
	if tile == nil || len(tile.Items) != 1 {
		t.Fatalf("tile = %+v", tile)
	}
	want := []byte{0x6F, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(tile.Items[0].Unknown, want) {
		t.Fatalf("unknown remainder = %x, want %x", tile.Items[0].Unknown, want)
	}
	found := false
	for _, wn := range rep.Warnings {
		if wn.Code == WarnUnknownAttribute {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %+v, want %s", rep.Warnings, WarnUnknownAttribute)
	}

	// The opaque remainder survives a save byte for byte.
	var out bytes.Buffer
	if _, err := Save(context.Background(), &out, m, fc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !bytes.Equal(out.Bytes(), fix) {
		t.Fatalf("re-save differs from source\n got %x\nwant %x", out.Bytes(), fix)
	}
}

func TestOutOfBoundsTileKeptWithWarning(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(10)
	w.u16(10)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(256)
	w.u16(0)
	w.u8(7)
	w.begin(nodeTile)
	w.u8(4)
	w.u8(4)
	w.u8(attrItem)
	w.u16(100)
	w.end()
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	m, rep, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), testCtx(testDB()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Tile(gamemap.Position{X: 260, Y: 4, Z: 7}) == nil {
		t.Fatal("out-of-bounds tile was dropped")
	}
	found := false
	for _, wn := range rep.Warnings {
		if wn.Code == WarnOutOfBounds {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %+v, want %s", rep.Warnings, WarnOutOfBounds)
	}
}

func TestLoadCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Load(ctx, bytes.NewReader(minimalMapFile(t)), testCtx(testDB()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadTileLimit(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.rawBytes(magicOTBM[:])
	w.begin(nodeRoot)
	w.u32(3)
	w.u16(256)
	w.u16(256)
	w.u32(4)
	w.u32(4)
	w.begin(nodeMapData)
	w.begin(nodeTileArea)
	w.u16(0)
	w.u16(0)
	w.u8(7)
	for i := 0; i < 3; i++ {
		w.begin(nodeTile)
		w.u8(uint8(i))
		w.u8(0)
		w.u8(attrItem)
		w.u16(100)
		w.end()
	}
	w.end()
	w.end()
	w.end()
	if err := w.flush(); err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	fc := testCtx(testDB())
	fc.Limits = guard.Limits{MaxTiles: 2}
	_, _, err := Load(context.Background(), bytes.NewReader(buf.Bytes()), fc)
	var le *guard.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LimitError", err)
	}
	if le.Kind != "tile count" {
		t.Fatalf("limit kind = %q", le.Kind)
	}
}
