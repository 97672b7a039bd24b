// Package mffs implements a minimal flash-resident file system: a flat
// namespace of variable-length byte files stored as singly-linked chains of
// fixed-size sectors across one or more flash "sections."
package mffs

// GlobalSector is a sector index in the concatenated address space formed by
// laying every section's sectors end to end in table order.
type GlobalSector uint32

// EndOfChain marks the end of a sector chain, or "no sector allocated yet"
// depending on context. It is all-bits-one, same as the original's -1 cast
// to an unsigned long.
const EndOfChain GlobalSector = 0xFFFFFFFF

// Section is the contract a flash (or flash-emulating) device must satisfy
// to be managed by the engine. Sections are unaware of the global sector
// numbering; the Registry translates for them.
//
// Read and Write operate on a sector already relative to this section.
// Callers guarantee that Write only transitions bits 1 -> 0; a Section
// implementation backed by real NOR/NAND flash can rely on that and need not
// re-check it, but implementations over ordinary storage (files, memory)
// should still enforce it so bugs in the engine are caught rather than
// silently producing corrupt media.
type Section interface {
	// Read fills buf (len(buf) bytes) starting at offset within sector rel.
	Read(rel uint32, offset uint32, buf []byte) error
	// Write writes buf to sector rel starting at offset. Only 1 -> 0 bit
	// transitions are permitted until the next Erase of that sector.
	Write(rel uint32, offset uint32, buf []byte) error
	// Erase returns the entire sector to all-0xFF.
	Erase(rel uint32) error
	// SectorSize returns the fixed sector size for every sector in this
	// section.
	SectorSize() uint32
	// SectorCount returns the number of sectors this section manages.
	SectorCount() uint32
}

// SectionTableEntry pairs a Section implementation with the device metadata
// needed to place it within the global sector address space. It mirrors
// FFS_FLASH_SECTION from the original implementation, minus the raw
// function pointers (those are the Section interface here).
type SectionTableEntry struct {
	// Device identifies the physical device this section lives on. It has
	// no meaning to the engine beyond being carried through to tooling.
	Device uint8
	// Start is the first sector of this section, relative to device 0 of
	// the section itself (not the global address space).
	Start uint32
	// Count is the number of sectors in this section.
	Count uint32
	// SectorSize is the size, in bytes, of every sector in this section.
	SectorSize uint32
	Section    Section
}

// FileInfo is the file-node information returned by NextDirectory and by
// Engine.Stat, stripped of on-media offsets the caller has no use for.
type FileInfo struct {
	Name        string
	Permissions uint8
	Size        uint32
	DataTime    uint32
	Count       uint32
}
