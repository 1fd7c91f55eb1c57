// Package backup keeps zstd-compressed generations of a map file next to
// the workspace, indexed in a small SQLite database so the editor can
// list and restore them without scanning the directory. A generation is
// written before every save-over, so a bad save never costs more than
// one editing session.
package backup

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// Generation is one stored backup.
type Generation struct {
	ID         int64
	Source     string
	Path       string
	CreatedAt  time.Time
	RawBytes   int64
	StoredByte int64
	SHA256     string
}

// Store is an open backup directory.
type Store struct {
	dir         string
	generations int
	level       zstd.EncoderLevel
	db          *sql.DB
}

// Open opens (or creates) a backup store. generations is the per-source
// retention count; level is the zstd compression level (1..11).
func Open(dir string, generations, level int) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty backup dir")
	}
	if generations <= 0 {
		generations = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		dir:         dir,
		generations: generations,
		level:       zstd.EncoderLevelFromZstd(level),
		db:          db,
	}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS generations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			source      TEXT NOT NULL,
			path        TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			raw_bytes   INTEGER NOT NULL,
			stored_bytes INTEGER NOT NULL,
			sha256      TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_source ON generations(source, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("backup index init: %w", err)
		}
	}
	return nil
}

// Snapshot stores a compressed copy of the file at sourcePath and prunes
// old generations past the retention count. Missing sources are not an
// error: the first save of a new map has nothing to back up.
func (s *Store) Snapshot(sourcePath string) (*Generation, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer src.Close()

	name := fmt.Sprintf("%s.%d.otbm.zst", filepath.Base(sourcePath), time.Now().UnixNano())
	destPath := filepath.Join(s.dir, name)
	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	defer dest.Close()

	enc, err := zstd.NewWriter(dest, zstd.WithEncoderLevel(s.level))
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	raw, err := io.Copy(io.MultiWriter(enc, h), src)
	if err != nil {
		enc.Close()
		os.Remove(destPath)
		return nil, err
	}
	if err := enc.Close(); err != nil {
		os.Remove(destPath)
		return nil, err
	}
	if err := dest.Sync(); err != nil {
		os.Remove(destPath)
		return nil, err
	}

	st, err := os.Stat(destPath)
	if err != nil {
		return nil, err
	}

	gen := &Generation{
		Source:     sourcePath,
		Path:       destPath,
		CreatedAt:  time.Now().UTC(),
		RawBytes:   raw,
		StoredByte: st.Size(),
		SHA256:     hex.EncodeToString(h.Sum(nil)),
	}
	res, err := s.db.Exec(
		`INSERT INTO generations (source, path, created_at, raw_bytes, stored_bytes, sha256)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		gen.Source, gen.Path, gen.CreatedAt.Format(time.RFC3339Nano),
		gen.RawBytes, gen.StoredByte, gen.SHA256,
	)
	if err != nil {
		return nil, err
	}
	gen.ID, _ = res.LastInsertId()

	if err := s.prune(sourcePath); err != nil {
		return gen, err
	}
	return gen, nil
}

func (s *Store) prune(sourcePath string) error {
	rows, err := s.db.Query(
		`SELECT id, path FROM generations WHERE source = ? ORDER BY id DESC LIMIT -1 OFFSET ?`,
		sourcePath, s.generations,
	)
	if err != nil {
		return err
	}
	type victim struct {
		id   int64
		path string
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			rows.Close()
			return err
		}
		victims = append(victims, v)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if _, err := s.db.Exec(`DELETE FROM generations WHERE id = ?`, v.id); err != nil {
			return err
		}
	}
	return nil
}

// List returns the stored generations for a source, newest first.
func (s *Store) List(sourcePath string) ([]Generation, error) {
	rows, err := s.db.Query(
		`SELECT id, source, path, created_at, raw_bytes, stored_bytes, sha256
		 FROM generations WHERE source = ? ORDER BY id DESC`,
		sourcePath,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Generation
	for rows.Next() {
		var g Generation
		var created string
		if err := rows.Scan(&g.ID, &g.Source, &g.Path, &created, &g.RawBytes, &g.StoredByte, &g.SHA256); err != nil {
			return nil, err
		}
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Restore decompresses generation id into destPath via a temp file and
// rename, the same no-partial-write discipline the map saver uses.
func (s *Store) Restore(id int64, destPath string) error {
	var path string
	err := s.db.QueryRow(`SELECT path FROM generations WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return fmt.Errorf("backup generation %d not found", id)
	}
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dec, err := zstd.NewReader(src)
	if err != nil {
		return err
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".restore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, dec); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}
