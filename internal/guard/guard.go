// Package guard enforces resource ceilings while decoding untrusted map
// files: a cheap file-size precheck before parsing starts and incremental
// entity counters during parsing, so a pathological length field fails
// fast instead of exhausting host memory.
package guard

import "fmt"

// ErrCodeLimit tags resource rejections.
const ErrCodeLimit = "E_RESOURCE_LIMIT"

// LimitError is a fatal resource rejection.
type LimitError struct {
	Kind   string
	Limit  int64
	Actual int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s limit exceeded (%d > %d)", ErrCodeLimit, e.Kind, e.Actual, e.Limit)
}

// Limits configures the guard. Zero values mean "use the default".
type Limits struct {
	MaxFileBytes    int64 `yaml:"max_file_bytes"`
	MaxTiles        int64 `yaml:"max_tiles"`
	MaxItems        int64 `yaml:"max_items"`
	CheckEveryTiles int64 `yaml:"check_every_tiles"`
}

// DefaultLimits returns the stock ceilings: generous for real maps, tight
// enough to stop a hostile length field.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes:    1 << 30, // 1 GiB
		MaxTiles:        2_000_000,
		MaxItems:        16_000_000,
		CheckEveryTiles: 4096,
	}
}

// Normalize fills zero fields with defaults.
func (l *Limits) Normalize() {
	d := DefaultLimits()
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = d.MaxFileBytes
	}
	if l.MaxTiles <= 0 {
		l.MaxTiles = d.MaxTiles
	}
	if l.MaxItems <= 0 {
		l.MaxItems = d.MaxItems
	}
	if l.CheckEveryTiles <= 0 {
		l.CheckEveryTiles = d.CheckEveryTiles
	}
}

// Tracker counts decoded entities against the limits. One tracker serves
// one load call; it is not shared.
type Tracker struct {
	limits Limits
	tiles  int64
	items  int64
}

// New returns a tracker for one load.
func New(l Limits) *Tracker {
	l.Normalize()
	return &Tracker{limits: l}
}

// CheckFileSize rejects oversized inputs before any parsing.
func (t *Tracker) CheckFileSize(n int64) error {
	if n > t.limits.MaxFileBytes {
		return &LimitError{Kind: "file size", Limit: t.limits.MaxFileBytes, Actual: n}
	}
	return nil
}

// AddTile records one decoded tile. The item ceiling is only re-checked
// every CheckEveryTiles tiles; the tile ceiling is exact.
func (t *Tracker) AddTile() error {
	t.tiles++
	if t.tiles > t.limits.MaxTiles {
		return &LimitError{Kind: "tile count", Limit: t.limits.MaxTiles, Actual: t.tiles}
	}
	if t.tiles%t.limits.CheckEveryTiles == 0 && t.items > t.limits.MaxItems {
		return &LimitError{Kind: "item count", Limit: t.limits.MaxItems, Actual: t.items}
	}
	return nil
}

// AddItems records n decoded items.
func (t *Tracker) AddItems(n int) error {
	t.items += int64(n)
	if t.items > t.limits.MaxItems {
		return &LimitError{Kind: "item count", Limit: t.limits.MaxItems, Actual: t.items}
	}
	return nil
}

// Tiles returns the tile count so far.
func (t *Tracker) Tiles() int64 { return t.tiles }

// Items returns the item count so far.
func (t *Tracker) Items() int64 { return t.items }
