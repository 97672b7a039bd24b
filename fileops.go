package mffs

import (
	ffserrors "github.com/jcoverton/mffs/errors"
)

// Open locates or creates a file and returns a descriptor, per spec.md §4.6.
//
// CREATE is tested with bitwise AND (flags.Has(CREATE)), not the logical AND
// bug from the original source -- per the REDESIGN FLAG in spec.md §9, any
// nonzero flags value must not be mistaken for a create request.
func (e *Engine) Open(name string, flags OpenFlags, permissions uint8) (int, ffserrors.DriverError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd, err := e.files.allocate()
	if err != nil {
		return 0, err
	}
	desc := &e.files.entries[fd]
	desc.flags = flags

	sector, node, found, err := e.findFileNode(name)
	if err != nil {
		e.files.free(fd)
		return 0, err
	}

	if !found && !flags.Has(CREATE) {
		e.files.free(fd)
		return 0, ffserrors.ErrFileDoesNotExist
	}

	if flags.Has(CREATE) {
		if found {
			desc.deleteOldFile = true
			desc.oldFnodeSector = sector
			desc.node = FileNode{
				Permissions: permissions,
				Filename:    node.Filename,
				FileSize:    0,
				Count:       node.Count + 1,
			}
		} else {
			desc.node = FileNode{
				Permissions: permissions,
				Filename:    name,
				FileSize:    0,
				Count:       0,
			}
		}
		desc.fnodeSector = noFnodeSector
	} else {
		desc.fnodeSector = sector
		desc.node = node
	}

	return fd, nil
}

// Close writes out a newly-created file's file-node (if one is pending) and
// frees any superseded file's chain, per spec.md §4.6.
func (e *Engine) Close(fd int) ffserrors.DriverError {
	e.mu.Lock()
	defer e.mu.Unlock()

	desc, err := e.files.get(fd)
	if err != nil {
		return err
	}

	if desc.writeFnodeOnClose {
		if err := e.registry.Write(desc.fnodeSector, HeaderSize, EncodeFileNode(&desc.node)); err != nil {
			return err
		}
	}
	if desc.deleteOldFile {
		if err := e.chain.FreeChain(desc.oldFnodeSector); err != nil {
			return err
		}
	}

	e.files.free(fd)
	return nil
}

// Read fills buf with up to len(buf) bytes starting at the descriptor's
// current cursor, per spec.md §4.6. It returns the number of bytes read.
func (e *Engine) Read(fd int, buf []byte) (int, ffserrors.DriverError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	desc, err := e.files.get(fd)
	if err != nil {
		return 0, err
	}

	if desc.position >= desc.node.FileSize {
		return 0, ffserrors.ErrInvalidFilePosition
	}

	n := len(buf)
	remaining := int(desc.node.FileSize - desc.position)
	if n > remaining {
		n = remaining
	}

	sector, header, offset, err := e.chain.LocatePosition(desc.fnodeSector, desc.position)
	if err != nil {
		return 0, err
	}

	totalRead := 0
	for n > 0 {
		if offset > header.SectorLength {
			// A correctly functioning Allocator never hands back a sector
			// too small for its own DataOffset, but guard the subtraction
			// anyway rather than let it wrap into a bogus huge length.
			return totalRead, ffserrors.ErrInvalidSectorNumber
		}
		inSector := int(header.SectorLength - offset)
		chunk := n
		if chunk > inSector {
			chunk = inSector
		}

		if err := e.registry.Read(sector, offset, buf[totalRead:totalRead+chunk]); err != nil {
			return totalRead, err
		}

		n -= chunk
		desc.position += uint32(chunk)
		totalRead += chunk

		if n == 0 {
			break
		}

		sector = header.Next
		header, err = e.registry.ReadHeader(sector)
		if err != nil {
			return totalRead, err
		}
		offset = header.DataOffset
	}

	return totalRead, nil
}

// Write appends or overwrites up to len(buf) bytes at the descriptor's
// current cursor, extending the chain as needed, per spec.md §4.6. It
// returns the number of bytes written.
func (e *Engine) Write(fd int, buf []byte) (int, ffserrors.DriverError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	desc, err := e.files.get(fd)
	if err != nil {
		return 0, err
	}

	var sector GlobalSector
	var header SectorHeader
	var offset uint32

	if desc.fnodeSector == noFnodeSector {
		sector, header, err = e.allocator.Allocate(sectorWithFilenode)
		if err != nil {
			return 0, err
		}
		desc.writeFnodeOnClose = true
		desc.fnodeSector = sector
		offset = header.DataOffset
	} else {
		sector, header, offset, err = e.chain.LocatePosition(desc.fnodeSector, desc.position)
		if err != nil {
			return 0, err
		}
	}

	n := len(buf)
	totalWritten := 0

	for n > 0 {
		if offset > header.SectorLength {
			// Same guard as Read: never trust a sector whose DataOffset
			// doesn't fit its own SectorLength enough to let the
			// subtraction below wrap.
			return totalWritten, ffserrors.ErrInvalidSectorNumber
		}
		inSector := int(header.SectorLength - offset)
		chunk := n
		if chunk > inSector {
			chunk = inSector
		}

		if err := e.registry.Write(sector, offset, buf[totalWritten:totalWritten+chunk]); err != nil {
			return totalWritten, err
		}

		n -= chunk
		desc.position += uint32(chunk)
		totalWritten += chunk
		if desc.position > desc.node.FileSize {
			desc.node.FileSize = desc.position
		}

		if n == 0 {
			break
		}

		newSector, newHeader, err := e.chain.AppendSector(sector)
		if err != nil {
			return totalWritten, err
		}
		sector = newSector
		header = newHeader
		offset = header.DataOffset
	}

	return totalWritten, nil
}

// Erase deletes the file named name, per spec.md §4.6.
func (e *Engine) Erase(name string) ffserrors.DriverError {
	e.mu.Lock()
	defer e.mu.Unlock()

	sector, _, found, err := e.findFileNode(name)
	if err != nil {
		return err
	}
	if !found {
		return ffserrors.ErrFileNotFound
	}

	return e.chain.FreeChain(sector)
}

// Rename changes a file's name, allocating a fresh file-node sector because
// NOR flash cannot rewrite the name field in place, per spec.md §4.6. Count
// is bumped on the new head before it is written, resolving Open Question 3
// of spec.md §9 so the Checker's duplicate-resolution tiebreaker has
// something to break a tie with if this crashes midway.
func (e *Engine) Rename(name, newName string) ffserrors.DriverError {
	e.mu.Lock()
	defer e.mu.Unlock()

	sector, node, found, err := e.findFileNode(name)
	if err != nil {
		return err
	}
	if !found {
		return ffserrors.ErrFileNotFound
	}

	_, _, newFound, err := e.findFileNode(newName)
	if err != nil {
		return err
	}
	if newFound {
		return ffserrors.ErrNewNameExists
	}

	oldHeader, err := e.registry.ReadHeader(sector)
	if err != nil {
		return err
	}
	payloadLength := oldHeader.PayloadCapacity()
	tail := oldHeader.Next

	newSector, newHeader, err := e.allocator.Allocate(sectorWithFilenode)
	if err != nil {
		return err
	}

	if payloadLength != newHeader.PayloadCapacity() {
		_ = e.chain.FreeChain(newSector)
		return ffserrors.ErrOutOfSpace
	}

	buf := make([]byte, payloadLength)
	if err := e.registry.Read(sector, oldHeader.DataOffset, buf); err != nil {
		return err
	}
	if err := e.registry.Write(newSector, newHeader.DataOffset, buf); err != nil {
		return err
	}

	node.Filename = newName
	node.Count = node.Count + 1
	if err := e.registry.Write(newSector, HeaderSize, EncodeFileNode(&node)); err != nil {
		return err
	}

	if tail != EndOfChain {
		if err := e.chain.patchNext(newSector, tail); err != nil {
			return err
		}
	}

	if err := markFreeDirty(e.registry, sector, &oldHeader); err != nil {
		return err
	}
	e.allocator.MarkFree(sector)
	return nil
}

// Stat returns the file-node metadata for name without opening it, per the
// FileInfo contract named in api.go.
func (e *Engine) Stat(name string) (FileInfo, ffserrors.DriverError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, node, found, err := e.findFileNode(name)
	if err != nil {
		return FileInfo{}, err
	}
	if !found {
		return FileInfo{}, ffserrors.ErrFileNotFound
	}

	displayName := node.Filename
	if node.IsPartiallyWritten() {
		displayName = NewFileDisplayName
	}

	return FileInfo{
		Name:        displayName,
		Permissions: node.Permissions,
		Size:        node.FileSize,
		DataTime:    node.DataTime,
		Count:       node.Count,
	}, nil
}

// NextDirectory advances *handle to just past the next IN_USE_FILENODE
// sector found at or after its current value, copying that file's node out,
// per spec.md §4.6. It returns found=true when an entry was produced.
func (e *Engine) NextDirectory(handle *GlobalSector) (FileInfo, bool, ffserrors.DriverError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sector := *handle; e.registry.Contains(sector); sector++ {
		header, err := e.registry.ReadHeader(sector)
		if err != nil {
			return FileInfo{}, false, err
		}
		if header.Status != StatusInUseFilenode {
			continue
		}

		nodeBuf := make([]byte, FileNodeSize)
		if err := e.registry.Read(sector, HeaderSize, nodeBuf); err != nil {
			return FileInfo{}, false, err
		}
		node := DecodeFileNode(nodeBuf)
		*handle = sector + 1

		name := node.Filename
		if node.IsPartiallyWritten() {
			name = NewFileDisplayName
		}

		return FileInfo{
			Name:        name,
			Permissions: node.Permissions,
			Size:        node.FileSize,
			DataTime:    node.DataTime,
			Count:       node.Count,
		}, true, nil
	}

	return FileInfo{}, false, nil
}
