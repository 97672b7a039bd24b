package mffs

import (
	"strings"
	"sync"

	ffserrors "github.com/jcoverton/mffs/errors"
)

// Engine is a mounted instance of the file system over a section table. It
// replaces the original's process-wide singleton with an explicit handle so
// multiple independently-mounted volumes can coexist, per spec.md §9.
//
// All exported methods acquire Engine's mutex at entry and release it via
// defer on every exit path, realizing the lock/unlock collaborator named in
// spec.md §5 and §6 as external to the core.
type Engine struct {
	mu sync.Mutex

	registry  *Registry
	allocator *Allocator
	chain     *ChainManager
	files     *fileTable

	crossChainCount uint32
	badSectorHigh   uint32
}

// Initialize mounts the file system over table and returns a ready-to-use
// Engine. capacity sets the number of simultaneously open files; pass 0 for
// the default of MaxOpenFiles.
func Initialize(table []SectionTableEntry, capacity int) *Engine {
	if capacity <= 0 {
		capacity = MaxOpenFiles
	}

	registry := NewRegistry(table)
	allocator := NewAllocator(registry)

	return &Engine{
		registry:  registry,
		allocator: allocator,
		chain:     NewChainManager(registry, allocator),
		files:     newFileTable(capacity),
	}
}

// Terminate releases any resources held by the engine. Callers should close
// every open descriptor first; Terminate does not do this for them.
func (e *Engine) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = newFileTable(len(e.files.entries))
}

// ErrorSectorHighWater reports the largest number of never-formatted
// sectors the allocator has examined in one scan since Initialize.
func (e *Engine) ErrorSectorHighWater() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocator.ErrorSectorHighWater()
}

// CrossChainCount reports the number of cross-linked-sector detections
// accumulated over every Check since Initialize.
func (e *Engine) CrossChainCount() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crossChainCount
}

// findFileNode scans every sector for an INUSE_FILENODE whose name matches
// name case-insensitively. It returns the sector, the decoded node, and
// whether it was found -- the by-value equivalent of LocateFileNode, which
// returned both a found/not-found code and a sector value the caller in
// Open only ever tested against -1. Standardizing on the sector value (or
// its absence) resolves Open Question 1 of spec.md §9.
func (e *Engine) findFileNode(name string) (GlobalSector, FileNode, bool, ffserrors.DriverError) {
	total := e.registry.TotalSectors()

	for sector := GlobalSector(0); uint32(sector) < total; sector++ {
		header, err := e.registry.ReadHeader(sector)
		if err != nil {
			return 0, FileNode{}, false, err
		}
		if header.Status != StatusInUseFilenode {
			continue
		}

		nodeBuf := make([]byte, FileNodeSize)
		if err := e.registry.Read(sector, HeaderSize, nodeBuf); err != nil {
			return 0, FileNode{}, false, err
		}
		node := DecodeFileNode(nodeBuf)

		if strings.EqualFold(node.Filename, name) {
			return sector, node, true, nil
		}
	}

	return 0, FileNode{}, false, nil
}
