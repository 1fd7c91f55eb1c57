package guard

import (
	"errors"
	"testing"
)

func TestDefaultsFillZeroFields(t *testing.T) {
	var l Limits
	l.Normalize()
	d := DefaultLimits()
	if l != d {
		t.Fatalf("normalized = %+v, want %+v", l, d)
	}

	l = Limits{MaxTiles: 5}
	l.Normalize()
	if l.MaxTiles != 5 || l.MaxFileBytes != d.MaxFileBytes {
		t.Fatalf("partial normalize = %+v", l)
	}
}

func TestFileSizeCheck(t *testing.T) {
	tr := New(Limits{MaxFileBytes: 100})
	if err := tr.CheckFileSize(100); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	err := tr.CheckFileSize(101)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LimitError", err)
	}
	if le.Kind != "file size" || le.Limit != 100 || le.Actual != 101 {
		t.Fatalf("detail = %+v", le)
	}
}

func TestTileLimit(t *testing.T) {
	tr := New(Limits{MaxTiles: 3})
	for i := 0; i < 3; i++ {
		if err := tr.AddTile(); err != nil {
			t.Fatalf("tile %d: %v", i, err)
		}
	}
	err := tr.AddTile()
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LimitError", err)
	}
	if tr.Tiles() != 4 {
		t.Fatalf("tiles = %d", tr.Tiles())
	}
}

func TestItemLimit(t *testing.T) {
	tr := New(Limits{MaxItems: 10})
	if err := tr.AddItems(10); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	err := tr.AddItems(1)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LimitError", err)
	}
	if le.Kind != "item count" {
		t.Fatalf("kind = %q", le.Kind)
	}
	if tr.Items() != 11 {
		t.Fatalf("items = %d", tr.Items())
	}
}

func TestLimitErrorMessageCarriesCode(t *testing.T) {
	err := &LimitError{Kind: "tile count", Limit: 1, Actual: 2}
	if got := err.Error(); got != "E_RESOURCE_LIMIT: tile count limit exceeded (2 > 1)" {
		t.Fatalf("message = %q", got)
	}
}
