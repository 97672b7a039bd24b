package mffs

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	ffserrors "github.com/jcoverton/mffs/errors"
)

// sectorClass is the Checker's transient, in-core classification for one
// sector, per spec.md §4.7. It exists only for the duration of one Check
// pass; the on-media Status field remains the durable source of truth.
type sectorClass byte

const (
	classUnset sectorClass = iota
	classBad
	classFree
	classInUse
	classFNode
)

// Check runs the full-media classify/reclaim/dedupe scrub pass described in
// spec.md §4.7. It returns the number of sectors whose on-media state was
// modified. I/O failures reading or writing an individual sector are
// aggregated with go-multierror rather than aborting the pass -- every other
// sector still gets classified and repaired -- and returned alongside the
// fixed count.
func (e *Engine) Check() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.registry.TotalSectors()
	classes := make([]sectorClass, total)

	var errs *multierror.Error
	var badCount uint32

	// Phase 1: per-sector classification, including chain walks from every
	// IN_USE_FILENODE head.
	for sector := GlobalSector(0); uint32(sector) < total; sector++ {
		header, err := e.registry.ReadHeader(sector)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		switch {
		case !header.Valid() && header.Status != StatusFree && header.Status != StatusFreeDirty:
			classes[sector] = classBad

		case header.Status == StatusFree || header.Status == StatusFreeDirty:
			classes[sector] = classFree

		case header.Status == StatusInUse:
			// Left unmarked for now; reachable only by a chain walk below.
			// If nothing ever claims it, phase 2 treats it as an orphan.

		case header.Status == StatusInUseFilenode:
			nodeBuf := make([]byte, FileNodeSize)
			if err := e.registry.Read(sector, HeaderSize, nodeBuf); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			node := DecodeFileNode(nodeBuf)

			if node.FileSize == 0 || node.FileSize == 0xFFFFFFFF {
				classes[sector] = classBad
				continue
			}

			classes[sector] = classFNode
			e.walkChain(header.Next, classes, total, &errs)
		}
	}

	for _, c := range classes {
		if c == classBad {
			badCount++
		}
	}
	if badCount > e.badSectorHigh {
		e.badSectorHigh = badCount
	}

	// Phase 2: orphan reclamation. Anything not settled as INUSE, FNODE, or
	// FREE by phase 1 is either corrupt (erase it) or an orphaned chain
	// sector that lost its head (mark it FREE_DIRTY).
	var fixed uint32
	for sector := GlobalSector(0); uint32(sector) < total; sector++ {
		switch classes[sector] {
		case classInUse, classFNode, classFree:
			continue
		case classBad:
			if err := e.registry.Erase(sector); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			fixed++
		default:
			header, err := e.registry.ReadHeader(sector)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if err := markFreeDirty(e.registry, sector, &header); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			fixed++
		}
	}

	// Phase 3: duplicate-name resolution among surviving file-node heads.
	deleted := make(map[GlobalSector]bool)
	for i := GlobalSector(0); uint32(i) < total; i++ {
		if classes[i] != classFNode || deleted[i] {
			continue
		}
		nodeI, err := e.readFileNodeAt(i)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		for j := i + 1; uint32(j) < total; j++ {
			if classes[j] != classFNode || deleted[j] {
				continue
			}
			nodeJ, err := e.readFileNodeAt(j)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if !strings.EqualFold(nodeI.Filename, nodeJ.Filename) {
				continue
			}

			loser := j
			if nodeJ.Count > nodeI.Count {
				loser = i
			}

			var freed uint32
			for s, steps := loser, uint32(0); s != EndOfChain && steps < total; steps++ {
				h, err := e.registry.ReadHeader(s)
				if err != nil {
					break
				}
				freed++
				s = h.Next
			}

			if err := e.chain.FreeChain(loser); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			deleted[loser] = true
			fixed += freed

			if loser == i {
				break
			}
		}
	}

	e.allocator.ResetHint()

	if errs != nil {
		return fixed, errs.ErrorOrNil()
	}
	return fixed, nil
}

// walkChain marks every successor of head as classInUse, incrementing the
// engine's cross-chain counter whenever a successor had already been
// assigned a different classification, per spec.md §4.7. It is bounded by
// total to guard against a corrupted chain that cycles back on itself.
func (e *Engine) walkChain(head GlobalSector, classes []sectorClass, total uint32, errs **multierror.Error) {
	sector := head
	for steps := uint32(0); sector != EndOfChain && steps < total; steps++ {
		header, err := e.registry.ReadHeader(sector)
		if err != nil {
			*errs = multierror.Append(*errs, err)
			return
		}

		if uint32(sector) < total && classes[sector] != classUnset && classes[sector] != classInUse {
			e.crossChainCount++
		}
		if uint32(sector) < total {
			classes[sector] = classInUse
		}

		sector = header.Next
	}
}

// readFileNodeAt reads and decodes the file-node stored at the start of an
// IN_USE_FILENODE sector's payload.
func (e *Engine) readFileNodeAt(sector GlobalSector) (FileNode, ffserrors.DriverError) {
	buf := make([]byte, FileNodeSize)
	if err := e.registry.Read(sector, HeaderSize, buf); err != nil {
		return FileNode{}, err
	}
	return DecodeFileNode(buf), nil
}

// BadSectorHighWater reports the largest count of corrupt (BAD) sectors seen
// in a single Check pass since the engine started.
func (e *Engine) BadSectorHighWater() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.badSectorHigh
}
