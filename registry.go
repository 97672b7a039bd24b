package mffs

import (
	ffserrors "github.com/jcoverton/mffs/errors"
)

// Registry maps a global sector index to the (Section, relative sector)
// pair that serves it, by walking the section table in declaration order.
// It performs no caching: every lookup re-walks the table, exactly as the
// original GetFlashSectionEntry does, because the table is expected to be
// tiny (a handful of sections) relative to how often sectors are addressed.
type Registry struct {
	table []SectionTableEntry
}

// NewRegistry builds a Registry over table, in declaration order. Section 0
// occupies global indices [0, table[0].Count), section 1 occupies
// [table[0].Count, table[0].Count+table[1].Count), and so on.
func NewRegistry(table []SectionTableEntry) *Registry {
	return &Registry{table: append([]SectionTableEntry(nil), table...)}
}

// TotalSectors returns the sum of every section's sector count.
func (r *Registry) TotalSectors() uint32 {
	var total uint32
	for _, entry := range r.table {
		total += entry.Count
	}
	return total
}

// resolve locates the section table entry and relative sector number for a
// global sector index. It returns false if the index is out of range.
func (r *Registry) resolve(sector GlobalSector) (*SectionTableEntry, uint32, bool) {
	remaining := uint32(sector)
	for i := range r.table {
		entry := &r.table[i]
		if remaining < entry.Count {
			return entry, remaining, true
		}
		remaining -= entry.Count
	}
	return nil, 0, false
}

// Contains reports whether sector falls within one of the defined sections.
// This is the by-value equivalent of the original's ValidSector, which was
// declared to take a section pointer but used it as a value; here the
// Registry does the by-reference table walk internally and the caller only
// ever sees a bool, resolving Open Question 2 of spec.md §9.
func (r *Registry) Contains(sector GlobalSector) bool {
	_, _, ok := r.resolve(sector)
	return ok
}

// SectorSize returns the sector size of whichever section contains sector,
// or 0 if the index is out of range.
func (r *Registry) SectorSize(sector GlobalSector) uint32 {
	entry, _, ok := r.resolve(sector)
	if !ok {
		return 0
	}
	return entry.SectorSize
}

// ReadHeader reads and decodes the HeaderSize-byte header at the start of
// sector.
func (r *Registry) ReadHeader(sector GlobalSector) (SectorHeader, ffserrors.DriverError) {
	buf := make([]byte, HeaderSize)
	if err := r.Read(sector, 0, buf); err != nil {
		return SectorHeader{}, err
	}
	return DecodeHeader(buf), nil
}

// WriteHeader encodes and writes h to the start of sector.
func (r *Registry) WriteHeader(sector GlobalSector, h *SectorHeader) ffserrors.DriverError {
	return r.Write(sector, 0, EncodeHeader(h))
}

// Read reads len(buf) bytes from sector starting at offset.
func (r *Registry) Read(sector GlobalSector, offset uint32, buf []byte) ffserrors.DriverError {
	entry, rel, ok := r.resolve(sector)
	if !ok {
		return ffserrors.ErrInvalidSectorNumber
	}
	if err := entry.Section.Read(rel, offset, buf); err != nil {
		return ffserrors.ErrInvalidSectorNumber.Wrap(err)
	}
	return nil
}

// Write writes buf to sector starting at offset.
func (r *Registry) Write(sector GlobalSector, offset uint32, buf []byte) ffserrors.DriverError {
	entry, rel, ok := r.resolve(sector)
	if !ok {
		return ffserrors.ErrInvalidSectorNumber
	}
	if err := entry.Section.Write(rel, offset, buf); err != nil {
		return ffserrors.ErrInvalidSectorNumber.Wrap(err)
	}
	return nil
}

// Erase returns sector to all-0xFF.
func (r *Registry) Erase(sector GlobalSector) ffserrors.DriverError {
	entry, rel, ok := r.resolve(sector)
	if !ok {
		return ffserrors.ErrInvalidSectorNumber
	}
	if err := entry.Section.Erase(rel); err != nil {
		return ffserrors.ErrInvalidSectorNumber.Wrap(err)
	}
	return nil
}
