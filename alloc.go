package mffs

import (
	"github.com/boljen/go-bitmap"

	ffserrors "github.com/jcoverton/mffs/errors"
)

// sectorKind selects whether a newly allocated sector reserves room for a
// FileNode immediately after its header.
type sectorKind int

const (
	sectorPlain sectorKind = iota
	sectorWithFilenode
)

// Allocator finds and prepares free sectors for reuse. It scans sector
// headers directly, per spec.md §4.3, but keeps a go-bitmap hint of sectors
// already known to be FREE/FREE_DIRTY/virgin so repeated allocations after a
// Check() don't always restart the linear scan from sector 0 the way the
// original implementation does. The bitmap is only ever a hint: Allocate
// still reads and validates the candidate sector's header before using it,
// so a stale hint just costs a wasted read, never correctness.
type Allocator struct {
	registry        *Registry
	hint            bitmap.Bitmap
	hintValid       bool
	errorSectorHigh uint32
}

// NewAllocator creates an Allocator over registry. The hint cache starts
// invalid and is populated lazily on first use.
func NewAllocator(registry *Registry) *Allocator {
	return &Allocator{registry: registry}
}

// ErrorSectorHighWater returns the largest number of never-formatted
// (virgin) sectors the allocator has examined in a single Allocate scan
// since the engine started, mirroring ErrorSectorCount in the original.
func (a *Allocator) ErrorSectorHighWater() uint32 {
	return a.errorSectorHigh
}

// ResetHint invalidates the free-sector hint bitmap, forcing the next
// Allocate to rebuild it from a full header scan. Check() calls this after
// it has authoritatively reclassified every sector.
func (a *Allocator) ResetHint() {
	a.hintValid = false
}

func (a *Allocator) rebuildHint() {
	total := a.registry.TotalSectors()
	a.hint = bitmap.New(int(total))
	for sector := GlobalSector(0); uint32(sector) < total; sector++ {
		if a.isCandidate(sector) {
			a.hint.Set(int(sector), true)
		}
	}
	a.hintValid = true
}

func (a *Allocator) isCandidate(sector GlobalSector) bool {
	header, err := a.registry.ReadHeader(sector)
	if err != nil {
		return false
	}
	if !header.Valid() {
		return true
	}
	return header.Status == StatusFree || header.Status == StatusFreeDirty
}

// Allocate scans for the first FREE, FREE_DIRTY, or virgin (never-formatted)
// sector, erases it, and writes a fresh header onto it per spec.md §4.3. It
// returns ErrOutOfSpace if no candidate sector exists.
func (a *Allocator) Allocate(kind sectorKind) (GlobalSector, SectorHeader, ffserrors.DriverError) {
	if !a.hintValid {
		a.rebuildHint()
	}

	total := a.registry.TotalSectors()
	errorRun := uint32(0)

	for sector := GlobalSector(0); uint32(sector) < total; sector++ {
		if !a.hint.Get(int(sector)) {
			continue
		}

		header, err := a.registry.ReadHeader(sector)
		if err != nil {
			return 0, SectorHeader{}, err
		}

		virgin := !header.Valid()
		if virgin {
			errorRun++
			if errorRun > a.errorSectorHigh {
				a.errorSectorHigh = errorRun
			}
		} else if header.Status != StatusFree && header.Status != StatusFreeDirty {
			// The hint was stale; this sector was reallocated since the
			// bitmap was built. Clear the hint bit and keep scanning.
			a.hint.Set(int(sector), false)
			continue
		}

		if kind == sectorWithFilenode && a.registry.SectorSize(sector) < uint32(HeaderSize+FileNodeSize) {
			// Per spec.md §3, a filenode sector needs room for the header
			// plus a fixed-layout FileNode (65-byte name included); a
			// section with smaller sectors can never host one. Leave the
			// hint bit set -- a plain allocation can still use this sector
			// -- and keep scanning for one that fits.
			continue
		}

		return a.prepare(sector, header, kind)
	}

	return 0, SectorHeader{}, ffserrors.ErrOutOfSpace
}

func (a *Allocator) prepare(sector GlobalSector, header SectorHeader, kind sectorKind) (GlobalSector, SectorHeader, ffserrors.DriverError) {
	eraseCount := header.EraseCount
	if header.Valid() {
		eraseCount++
	} else {
		eraseCount = 1
	}

	status := StatusInUse
	dataOffset := uint32(HeaderSize)
	if kind == sectorWithFilenode {
		status = StatusInUseFilenode
		dataOffset = uint32(HeaderSize + FileNodeSize)
	}

	fresh := SectorHeader{
		Key:            SectorHeaderKey,
		Next:           EndOfChain,
		EraseCount:     eraseCount,
		Version:        FileSystemVersion,
		Status:         status,
		SectorChecksum: 0xFFFF,
		SectorLength:   a.registry.SectorSize(sector),
		DataOffset:     dataOffset,
	}

	if err := a.registry.Erase(sector); err != nil {
		return 0, SectorHeader{}, err
	}
	if err := a.registry.WriteHeader(sector, &fresh); err != nil {
		return 0, SectorHeader{}, err
	}

	a.hint.Set(int(sector), false)
	return sector, fresh, nil
}

// MarkFree updates the hint bitmap to reflect that sector is now
// FREE_DIRTY, so a subsequent Allocate can find it without a full rescan.
func (a *Allocator) MarkFree(sector GlobalSector) {
	if a.hintValid {
		a.hint.Set(int(sector), true)
	}
}
