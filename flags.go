package mffs

// OpenFlags are passed to Open, mirroring the original FFS_* open flags.
type OpenFlags int

const (
	// RDONLY opens a file for reading only. This is the zero value.
	RDONLY OpenFlags = 0x0000
	// WRONLY opens a file for writing only.
	WRONLY OpenFlags = 0x0001
	// RDWR opens a file for reading and writing.
	RDWR OpenFlags = 0x0002
	// CREATE creates the file if it doesn't exist, or replaces it (on close)
	// if it does. Implementations MUST test this with bitwise AND: the
	// original source tested `flags && FFS_CREATE`, which treated any
	// nonzero flag as a create request. That bug is not reproduced here.
	CREATE OpenFlags = 0x0100
)

// Has reports whether all bits of want are set in flags.
func (flags OpenFlags) Has(want OpenFlags) bool {
	return flags&want == want
}

// SpaceOption selects what Space reports or does.
type SpaceOption int

const (
	// SpaceFreeBytes sums payload capacity over FREE and FREE_DIRTY sectors.
	SpaceFreeBytes SpaceOption = 0
	// SpaceFreeSectors counts FREE and FREE_DIRTY sectors.
	SpaceFreeSectors SpaceOption = 1
	// SpaceTotalBytes sums payload capacity over every sector.
	SpaceTotalBytes SpaceOption = 2
	// SpaceTotalSectors counts every sector.
	SpaceTotalSectors SpaceOption = 3
	// SpaceWipe erases every sector and returns SpaceTotalBytes' value.
	SpaceWipe SpaceOption = 128
)

// MaxOpenFiles is the default capacity of an Engine's file table, matching
// FFS_MAX_FILE_DESCRIPTORS in the original implementation.
const MaxOpenFiles = 2

// NewFileDisplayName is substituted by NextDirectory for a file-node whose
// name was never written (a chain head allocated but not yet closed).
const NewFileDisplayName = "[New File]"
