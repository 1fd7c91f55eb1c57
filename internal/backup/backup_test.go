package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotListRestore(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "backups"), 5, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	src := filepath.Join(dir, "world.otbm")
	payload := bytes.Repeat([]byte("OTBM tile data "), 1000)
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	gen, err := store.Snapshot(src)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if gen == nil {
		t.Fatal("no generation returned")
	}
	if gen.RawBytes != int64(len(payload)) {
		t.Fatalf("raw bytes = %d, want %d", gen.RawBytes, len(payload))
	}
	if gen.StoredByte >= gen.RawBytes {
		t.Fatalf("stored %d bytes, no compression over %d raw", gen.StoredByte, gen.RawBytes)
	}

	gens, err := store.List(src)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(gens) != 1 || gens[0].ID != gen.ID || gens[0].SHA256 != gen.SHA256 {
		t.Fatalf("list = %+v", gens)
	}

	// Clobber the source, then restore.
	if err := os.WriteFile(src, []byte("ruined"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Restore(gen.ID, src); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("restored content differs from original")
	}
}

func TestSnapshotMissingSourceIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "backups"), 5, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	gen, err := store.Snapshot(filepath.Join(dir, "never-saved.otbm"))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if gen != nil {
		t.Fatalf("generation = %+v, want nil for missing source", gen)
	}
}

func TestPruneKeepsNewestGenerations(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "backups"), 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	src := filepath.Join(dir, "world.otbm")
	var ids []int64
	for i := 0; i < 4; i++ {
		if err := os.WriteFile(src, []byte{byte(i), 1, 2, 3}, 0o644); err != nil {
			t.Fatal(err)
		}
		gen, err := store.Snapshot(src)
		if err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		ids = append(ids, gen.ID)
	}

	gens, err := store.List(src)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("kept %d generations, want 2", len(gens))
	}
	if gens[0].ID != ids[3] || gens[1].ID != ids[2] {
		t.Fatalf("kept ids %d,%d; want newest %d,%d", gens[0].ID, gens[1].ID, ids[3], ids[2])
	}

	// Pruned archives are gone from disk; kept ones remain.
	for i, gen := range gens {
		if _, err := os.Stat(gen.Path); err != nil {
			t.Fatalf("kept generation %d missing on disk: %v", i, err)
		}
	}
	if err := store.Restore(ids[0], src); err == nil {
		t.Fatal("restore of pruned generation succeeded")
	}
}

func TestRestoreUnknownID(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "backups"), 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Restore(12345, filepath.Join(dir, "out.otbm")); err == nil {
		t.Fatal("restore of unknown id succeeded")
	}
}
