package mffs

import (
	ffserrors "github.com/jcoverton/mffs/errors"
)

// descriptor is one File Table entry: an open file's in-core state. Field
// names and roles follow FFS_FILE_DESCRIPTOR in the original implementation.
type descriptor struct {
	inUse             bool
	flags             OpenFlags
	deleteOldFile     bool
	writeFnodeOnClose bool
	fnodeSector       GlobalSector
	oldFnodeSector    GlobalSector
	position          uint32
	node              FileNode
}

// noFnodeSector is the sentinel stored in descriptor.fnodeSector for a
// newly-created file that has not yet had its first sector allocated.
const noFnodeSector GlobalSector = EndOfChain

// fileTable is the fixed-capacity table of open file descriptors, per
// spec.md §4.5.
type fileTable struct {
	entries []descriptor
}

func newFileTable(capacity int) *fileTable {
	return &fileTable{entries: make([]descriptor, capacity)}
}

// allocate returns the index of the first free slot, zero-initialized and
// marked in use, or ErrTooManyOpenFiles if the table is full.
func (t *fileTable) allocate() (int, ffserrors.DriverError) {
	for i := range t.entries {
		if !t.entries[i].inUse {
			t.entries[i] = descriptor{inUse: true}
			return i, nil
		}
	}
	return 0, ffserrors.ErrTooManyOpenFiles
}

// free releases a descriptor slot.
func (t *fileTable) free(fd int) {
	t.entries[fd] = descriptor{}
}

// get returns the descriptor at fd, or ErrInvalidFileDescriptor if fd is out
// of range or not currently in use.
func (t *fileTable) get(fd int) (*descriptor, ffserrors.DriverError) {
	if fd < 0 || fd >= len(t.entries) || !t.entries[fd].inUse {
		return nil, ffserrors.ErrInvalidFileDescriptor
	}
	return &t.entries[fd], nil
}
