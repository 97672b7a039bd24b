package mffs

import (
	"encoding/binary"

	ffserrors "github.com/jcoverton/mffs/errors"
)

// ChainManager walks and extends the Next-linked sector chains that make up
// a file, per spec.md §4.4.
type ChainManager struct {
	registry  *Registry
	allocator *Allocator
}

// NewChainManager creates a ChainManager over registry, allocating new
// sectors through allocator.
func NewChainManager(registry *Registry, allocator *Allocator) *ChainManager {
	return &ChainManager{registry: registry, allocator: allocator}
}

// LocatePosition walks the chain rooted at head, returning the sector that
// contains byte offset position (relative to the start of the file's data),
// its header, and the byte offset of that position from the start of the
// sector (DataOffset plus the position's distance into the sector's data).
func (c *ChainManager) LocatePosition(head GlobalSector, position uint32) (GlobalSector, SectorHeader, uint32, ffserrors.DriverError) {
	sector := head
	var running uint32
	var lastSector GlobalSector
	var lastHeader SectorHeader

	for {
		if sector == EndOfChain {
			// position lands exactly on the end of the chain's allocated
			// capacity (e.g. a previous Write filled the last sector to its
			// boundary). Hand back the last sector positioned just past its
			// payload so the caller's append-on-full-sector loop kicks in
			// rather than failing to resolve a nonexistent next sector.
			return lastSector, lastHeader, lastHeader.SectorLength, nil
		}

		header, err := c.registry.ReadHeader(sector)
		if err != nil {
			return 0, SectorHeader{}, 0, err
		}

		capacity := header.PayloadCapacity()
		if position < running+capacity {
			offset := header.DataOffset + (position - running)
			return sector, header, offset, nil
		}

		running += capacity
		lastSector, lastHeader = sector, header
		sector = header.Next
	}
}

// AppendSector allocates a new plain sector and chains it after
// predecessor, back-patching the predecessor's Next field. Because Next
// starts as EndOfChain (all bits one), this write is a legal NOR 1 -> 0
// transition.
func (c *ChainManager) AppendSector(predecessor GlobalSector) (GlobalSector, SectorHeader, ffserrors.DriverError) {
	newSector, header, err := c.allocator.Allocate(sectorPlain)
	if err != nil {
		return 0, SectorHeader{}, err
	}

	nextBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(nextBuf, uint32(newSector))
	if err := c.registry.Write(predecessor, headerNextOffset, nextBuf); err != nil {
		return 0, SectorHeader{}, err
	}

	return newSector, header, nil
}

// patchNext back-patches the Next field of sector to point at target. It is
// used by Rename to splice a file's existing tail onto a freshly allocated
// head sector.
func (c *ChainManager) patchNext(sector GlobalSector, target GlobalSector) ffserrors.DriverError {
	nextBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(nextBuf, uint32(target))
	return c.registry.Write(sector, headerNextOffset, nextBuf)
}

// FreeChain walks the chain rooted at head, marking every sector
// FREE_DIRTY. It is idempotent: once a sector's status is FREE_DIRTY,
// revisiting it is a no-op write of the same value, matching spec.md §4.4.
func (c *ChainManager) FreeChain(head GlobalSector) ffserrors.DriverError {
	sector := head
	for sector != EndOfChain {
		header, err := c.registry.ReadHeader(sector)
		if err != nil {
			return err
		}

		next := header.Next
		if err := markFreeDirty(c.registry, sector, &header); err != nil {
			return err
		}
		c.allocator.MarkFree(sector)

		sector = next
	}
	return nil
}

// markFreeDirty rewrites the Version/Status/SectorChecksum run of a
// header's on-media copy to flip Status to FREE_DIRTY, leaving every other
// field untouched -- the partial-header rewrite spec.md §4.4 requires under
// NOR write-once-per-bit semantics.
func markFreeDirty(registry *Registry, sector GlobalSector, header *SectorHeader) ffserrors.DriverError {
	header.Status = StatusFreeDirty
	run := make([]byte, 4)
	run[0] = header.Version
	run[1] = uint8(header.Status)
	binary.LittleEndian.PutUint16(run[2:4], header.SectorChecksum)
	return registry.Write(sector, headerStatusOffset, run)
}
