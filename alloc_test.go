package mffs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSection is a minimal in-memory Section for package-internal tests that
// need direct access to unexported engine state.
type fakeSection struct {
	data       []byte
	sectorSize uint32
	count      uint32
}

func newFakeSection(sectorSize, count uint32) *fakeSection {
	data := make([]byte, uint64(sectorSize)*uint64(count))
	for i := range data {
		data[i] = 0xFF
	}
	return &fakeSection{data: data, sectorSize: sectorSize, count: count}
}

func (f *fakeSection) SectorSize() uint32  { return f.sectorSize }
func (f *fakeSection) SectorCount() uint32 { return f.count }

func (f *fakeSection) Read(rel uint32, offset uint32, buf []byte) error {
	pos := uint64(rel)*uint64(f.sectorSize) + uint64(offset)
	copy(buf, f.data[pos:pos+uint64(len(buf))])
	return nil
}

func (f *fakeSection) Write(rel uint32, offset uint32, buf []byte) error {
	pos := uint64(rel)*uint64(f.sectorSize) + uint64(offset)
	copy(f.data[pos:pos+uint64(len(buf))], buf)
	return nil
}

func (f *fakeSection) Erase(rel uint32) error {
	pos := uint64(rel) * uint64(f.sectorSize)
	for i := uint64(0); i < uint64(f.sectorSize); i++ {
		f.data[pos+i] = 0xFF
	}
	return nil
}

func newFakeRegistry(sectorSize, count uint32) *Registry {
	section := newFakeSection(sectorSize, count)
	return NewRegistry([]SectionTableEntry{
		{Device: 0, Start: 0, Count: count, SectorSize: sectorSize, Section: section},
	})
}

func TestAllocatorAllocateVirginSector(t *testing.T) {
	registry := newFakeRegistry(128, 8)
	allocator := NewAllocator(registry)

	sector, header, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)
	assert.EqualValues(t, 0, sector)
	assert.True(t, header.Valid())
	assert.Equal(t, StatusInUse, header.Status)
	assert.EqualValues(t, EndOfChain, header.Next)
}

func TestAllocatorSkipsInUseSectors(t *testing.T) {
	registry := newFakeRegistry(128, 4)
	allocator := NewAllocator(registry)

	first, _, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)

	second, _, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)

	assert.NotEqual(t, first, second)
}

func TestAllocatorOutOfSpace(t *testing.T) {
	registry := newFakeRegistry(128, 1)
	allocator := NewAllocator(registry)

	_, _, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)

	_, _, err = allocator.Allocate(sectorPlain)
	require.NotNil(t, err)
}

func TestAllocatorReclaimsFreedSector(t *testing.T) {
	registry := newFakeRegistry(128, 2)
	allocator := NewAllocator(registry)

	sector, header, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)

	require.Nil(t, markFreeDirty(registry, sector, &header))
	allocator.MarkFree(sector)

	reused, _, err := allocator.Allocate(sectorPlain)
	require.Nil(t, err)
	assert.Equal(t, sector, reused)
}

func TestChainAppendAndLocate(t *testing.T) {
	registry := newFakeRegistry(128, 8)
	allocator := NewAllocator(registry)
	chain := NewChainManager(registry, allocator)

	head, headHeader, err := allocator.Allocate(sectorWithFilenode)
	require.Nil(t, err)

	next, _, err := chain.AppendSector(head)
	require.Nil(t, err)

	updatedHead, err := registry.ReadHeader(head)
	require.Nil(t, err)
	assert.Equal(t, next, updatedHead.Next)

	sector, _, offset, err := chain.LocatePosition(head, headHeader.PayloadCapacity())
	require.Nil(t, err)
	assert.Equal(t, next, sector)
	nextHeader, err := registry.ReadHeader(next)
	require.Nil(t, err)
	assert.Equal(t, nextHeader.DataOffset, offset)
}

func TestChainFreeChainIsIdempotent(t *testing.T) {
	registry := newFakeRegistry(128, 8)
	allocator := NewAllocator(registry)
	chain := NewChainManager(registry, allocator)

	head, _, err := allocator.Allocate(sectorWithFilenode)
	require.Nil(t, err)
	next, _, err := chain.AppendSector(head)
	require.Nil(t, err)

	require.Nil(t, chain.FreeChain(head))
	require.Nil(t, chain.FreeChain(head))

	headHeader, err := registry.ReadHeader(head)
	require.Nil(t, err)
	assert.Equal(t, StatusFreeDirty, headHeader.Status)

	nextHeader, err := registry.ReadHeader(next)
	require.Nil(t, err)
	assert.Equal(t, StatusFreeDirty, nextHeader.Status)
}

func TestRegistryContainsBounds(t *testing.T) {
	registry := newFakeRegistry(64, 4)
	assert.True(t, registry.Contains(0))
	assert.True(t, registry.Contains(3))
	assert.False(t, registry.Contains(4))
}
