package otbm

// Structural version bounds. Versions 1 through 4 are the traditional
// ServerID-space formats; 5 and up store ClientIDs on disk.
const (
	MinVersion        = 1
	MaxVersion        = 7
	clientIDMinVer    = 5
	defaultItemsMajor = 4
	defaultItemsMinor = 4
)

// Descriptor pins down the on-disk dialect of one load or save: the
// structural version and which identifier space item ids use.
type Descriptor struct {
	Version      uint32
	UsesClientID bool
	ItemsMajor   uint32
	ItemsMinor   uint32
}

// DescriptorForVersion returns the descriptor for a structural version.
func DescriptorForVersion(v uint32) Descriptor {
	return Descriptor{
		Version:      v,
		UsesClientID: v >= clientIDMinVer,
		ItemsMajor:   defaultItemsMajor,
		ItemsMinor:   defaultItemsMinor,
	}
}

// VersionSupported reports whether the engine understands a structural
// version.
func VersionSupported(v uint32) bool {
	return v >= MinVersion && v <= MaxVersion
}
