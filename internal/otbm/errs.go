package otbm

import (
	"fmt"
	"strings"

	"mapforge.dev/internal/gamemap"
)

// Error codes. Fatal conditions surface as typed errors carrying one of
// these codes so callers can choose UI wording without string matching.
const (
	ErrCodeStructural = "E_OTBM_STRUCTURAL"
	ErrCodeVersion    = "E_OTBM_VERSION"
	ErrCodeUnmappedID = "E_OTBM_UNMAPPED_ID"
)

// Warning codes reported through LoadReport.
const (
	WarnUnknownItemID    = "unknown_item_id"
	WarnUnknownAttribute = "unknown_attribute"
	WarnMissingIDMapping = "missing_client_id_mapping"
	WarnMissingMapper    = "missing_id_mapper"
	WarnOutOfBounds      = "tile_out_of_bounds"
	WarnDanglingHouseID  = "dangling_house_id"
)

// StructuralError is fatal corruption of the byte stream: bad magic, a
// broken escape sequence, a truncated stream or malformed node structure.
// No partial map is returned alongside one.
type StructuralError struct {
	Offset int64
	Path   []string
	Msg    string
}

func (e *StructuralError) Error() string {
	p := "root"
	if len(e.Path) > 0 {
		p = strings.Join(e.Path, "/")
	}
	return fmt.Sprintf("%s: %s at offset %d (node %s)", ErrCodeStructural, e.Msg, e.Offset, p)
}

// VersionError reports a structural version newer than this engine
// understands.
type VersionError struct {
	Version uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: unsupported OTBM structural version %d (newest supported is %d)",
		ErrCodeVersion, e.Version, MaxVersion)
}

// UnmappedIDError is fatal on save: one or more in-memory ServerIDs have
// no ClientID mapping for the target format. Positions name the offending
// tiles so the host can point at them.
type UnmappedIDError struct {
	IDs       []uint16
	Positions []gamemap.Position
}

func (e *UnmappedIDError) Error() string {
	return fmt.Sprintf("%s: %d item id(s) have no client id mapping (first id %d at %d position(s))",
		ErrCodeUnmappedID, len(e.IDs), e.IDs[0], len(e.Positions))
}
