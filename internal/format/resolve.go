// Package format resolves which on-disk dialect a map file uses and
// which item database serves it. Resolution is best effort: an editor
// must open whatever file the user points it at.
package format

import (
	"mapforge.dev/internal/itemdb"
	"mapforge.dev/internal/otbm"
)

// Resolution sources, in priority order.
const (
	SourceHint      = "hint"
	SourceMapHeader = "map_header"
	SourceItemDB    = "item_db"
	SourceFallback  = "fallback"
)

// Hints is optional caller knowledge fed into resolution. Zero fields
// mean "unknown".
type Hints struct {
	// ClientVersion is the target client, e.g. 740 or 1310, typically
	// from project metadata.
	ClientVersion int

	// StructuralVersion pins the OTBM structural version outright.
	StructuralVersion uint32
}

// Resolution is the outcome: the dialect descriptor plus which item
// database files to load for it.
type Resolution struct {
	Descriptor    otbm.Descriptor
	ClientVersion int
	Source        string

	// ItemsFile and MetaFile name the database files expected next to the
	// map, relative to the workspace data directory.
	ItemsFile string
	MetaFile  string
}

// fallbackVersion is the structural version assumed when nothing else is
// known. Version 3 reads every traditional ServerID-space file and is the
// most widely written dialect.
const fallbackVersion = 3

// Resolve produces a format resolution. Priority: explicit hints, then
// the version embedded in the map header, then the item database's own
// client-version string, then the generic fallback.
func Resolve(h Hints, headerVersion uint32, dbHeader *itemdb.Header) Resolution {
	if h.StructuralVersion > 0 {
		return resolution(h.StructuralVersion, h.ClientVersion, SourceHint)
	}
	if h.ClientVersion > 0 {
		return resolution(structuralForClient(h.ClientVersion), h.ClientVersion, SourceHint)
	}
	if headerVersion > 0 {
		return resolution(headerVersion, clientForStructural(headerVersion), SourceMapHeader)
	}
	if dbHeader != nil {
		if cv := dbHeader.ClientVersion(); cv > 0 {
			return resolution(structuralForClient(cv), cv, SourceItemDB)
		}
	}
	return resolution(fallbackVersion, clientForStructural(fallbackVersion), SourceFallback)
}

func resolution(structural uint32, client int, source string) Resolution {
	if client == 0 {
		client = clientForStructural(structural)
	}
	return Resolution{
		Descriptor:    otbm.DescriptorForVersion(structural),
		ClientVersion: client,
		Source:        source,
		ItemsFile:     "items.otb",
		MetaFile:      "items.xml",
	}
}

// structuralForClient maps a client version to the structural version its
// tooling writes. The newer clients moved to ClientID-space files.
func structuralForClient(cv int) uint32 {
	switch {
	case cv >= 1200:
		return 5
	case cv >= 1000:
		return 4
	case cv >= 810:
		return 3
	case cv >= 800:
		return 2
	default:
		return 1
	}
}

// clientForStructural is the reverse guess, used when only the structural
// version is known. It picks the oldest client of each band.
func clientForStructural(v uint32) int {
	switch {
	case v >= 5:
		return 1200
	case v == 4:
		return 1000
	case v == 3:
		return 810
	case v == 2:
		return 800
	default:
		return 740
	}
}
