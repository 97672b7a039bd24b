package mffs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcoverton/mffs"
	ffserrors "github.com/jcoverton/mffs/errors"
	"github.com/jcoverton/mffs/memsection"
)

func newTestEngine(t *testing.T, sectorSize, count uint32) *mffs.Engine {
	t.Helper()
	engine, _ := newTestEngineWithSection(t, sectorSize, count)
	return engine
}

func newTestEngineWithSection(t *testing.T, sectorSize, count uint32) (*mffs.Engine, *memsection.Section) {
	t.Helper()
	section := memsection.New(sectorSize, count)
	table := []mffs.SectionTableEntry{
		{Device: 0, Start: 0, Count: count, SectorSize: sectorSize, Section: section},
	}
	return mffs.Initialize(table, 0), section
}

func TestCreateWriteReadBack(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd, err := engine.Open("hello.txt", mffs.WRONLY|mffs.CREATE, 0o64)
	require.Nil(t, err)

	n, err := engine.Write(fd, []byte("hello, world"))
	require.Nil(t, err)
	assert.Equal(t, 12, n)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("hello.txt", mffs.RDONLY, 0)
	require.Nil(t, err)

	buf := make([]byte, 12)
	n, err = engine.Read(fd, buf)
	require.Nil(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "hello, world", string(buf))
	require.Nil(t, engine.Close(fd))
}

func TestOpenMissingFileWithoutCreateFails(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	_, err := engine.Open("nope.txt", mffs.RDONLY, 0)
	require.NotNil(t, err)
	assert.Equal(t, ffserrors.ErrFileDoesNotExist.Code(), err.Code())
}

func TestWriteSpansMultipleSectors(t *testing.T) {
	engine := newTestEngine(t, 128, 64)

	// Payload deliberately exceeds one sector's capacity to force the write
	// to cross chain boundaries.
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}

	fd, err := engine.Open("big.bin", mffs.WRONLY|mffs.CREATE, 0o64)
	require.Nil(t, err)
	n, err := engine.Write(fd, payload)
	require.Nil(t, err)
	assert.Equal(t, len(payload), n)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("big.bin", mffs.RDONLY, 0)
	require.Nil(t, err)
	readBack := make([]byte, len(payload))
	n, err = engine.Read(fd, readBack)
	require.Nil(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)
}

func TestWriteContinuesExactlyAtSectorBoundary(t *testing.T) {
	engine := newTestEngine(t, 128, 64)

	fd, err := engine.Open("boundary.bin", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)

	// The filenode sector's payload capacity is SectorSize - HeaderSize -
	// FileNodeSize. Filling it exactly, then writing again in the same
	// session, must extend the chain rather than fail to locate a
	// nonexistent successor of the still-open last sector.
	first := make([]byte, 128-mffs.HeaderSize-mffs.FileNodeSize)
	for i := range first {
		first[i] = byte(i)
	}
	n, err := engine.Write(fd, first)
	require.Nil(t, err)
	assert.Equal(t, len(first), n)

	second := []byte("more")
	n, err = engine.Write(fd, second)
	require.Nil(t, err)
	assert.Equal(t, len(second), n)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("boundary.bin", mffs.RDONLY, 0)
	require.Nil(t, err)
	buf := make([]byte, len(first)+len(second))
	n, err = engine.Read(fd, buf)
	require.Nil(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, append(append([]byte{}, first...), second...), buf)
	require.Nil(t, engine.Close(fd))
}

func TestOverwriteCreateFreesOldChain(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd, err := engine.Open("a", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("hello"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("a", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("world"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("a", mffs.RDONLY, 0)
	require.Nil(t, err)
	buf := make([]byte, 5)
	_, err = engine.Read(fd, buf)
	require.Nil(t, err)
	assert.Equal(t, "world", string(buf))
	require.Nil(t, engine.Close(fd))

	fixed, cerr := engine.Check()
	assert.NoError(t, cerr)
	assert.EqualValues(t, 0, fixed, "overwrite-create should leave no duplicate to reclaim")
}

func TestRenameBumpsCountAndBlocksCollision(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd, err := engine.Open("old.txt", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("data"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	fd, err = engine.Open("taken.txt", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("x"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	require.Nil(t, engine.Rename("old.txt", "new.txt"))

	renamed, err := engine.Stat("new.txt")
	require.Nil(t, err)
	assert.EqualValues(t, 1, renamed.Count, "rename should bump Count from 0 to 1")

	err = engine.Rename("new.txt", "taken.txt")
	require.NotNil(t, err)
	assert.Equal(t, ffserrors.ErrNewNameExists.Code(), err.Code())

	fd, err = engine.Open("new.txt", mffs.RDONLY, 0)
	require.Nil(t, err)
	buf := make([]byte, 4)
	_, err = engine.Read(fd, buf)
	require.Nil(t, err)
	assert.Equal(t, "data", string(buf))
	require.Nil(t, engine.Close(fd))
}

func TestEraseRemovesFile(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd, err := engine.Open("gone.txt", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("bye"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	require.Nil(t, engine.Erase("gone.txt"))

	_, err = engine.Open("gone.txt", mffs.RDONLY, 0)
	require.NotNil(t, err)
	assert.Equal(t, ffserrors.ErrFileDoesNotExist.Code(), err.Code())
}

func TestTooManyOpenFiles(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd1, err := engine.Open("a", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	fd2, err := engine.Open("b", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)

	_, err = engine.Open("c", mffs.WRONLY|mffs.CREATE, 0)
	require.NotNil(t, err)
	assert.Equal(t, ffserrors.ErrTooManyOpenFiles.Code(), err.Code())

	require.Nil(t, engine.Close(fd1))
	require.Nil(t, engine.Close(fd2))
}

func TestNextDirectoryEnumeratesFiles(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	for _, name := range []string{"a", "b"} {
		fd, err := engine.Open(name, mffs.WRONLY|mffs.CREATE, 0)
		require.Nil(t, err)
		require.Nil(t, engine.Close(fd))
	}

	handle := mffs.GlobalSector(0)
	seen := map[string]bool{}
	for {
		info, found, err := engine.NextDirectory(&handle)
		require.Nil(t, err)
		if !found {
			break
		}
		seen[info.Name] = true
	}

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestStatReturnsMetadataWithoutOpening(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	fd, err := engine.Open("tagged.txt", mffs.WRONLY|mffs.CREATE, 0o600)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("metadata"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	info, err := engine.Stat("tagged.txt")
	require.Nil(t, err)
	assert.Equal(t, "tagged.txt", info.Name)
	assert.EqualValues(t, 8, info.Size)
	assert.EqualValues(t, 0o600, info.Permissions)

	_, err = engine.Stat("missing.txt")
	require.NotNil(t, err)
	assert.Equal(t, ffserrors.ErrFileNotFound.Code(), err.Code())
}

func TestSpaceAccounting(t *testing.T) {
	engine := newTestEngine(t, 128, 32)

	totalBytes, err := engine.Space(mffs.SpaceTotalBytes)
	require.Nil(t, err)
	assert.EqualValues(t, 32*(128-mffs.HeaderSize), totalBytes)

	totalSectors, err := engine.Space(mffs.SpaceTotalSectors)
	require.Nil(t, err)
	assert.EqualValues(t, 32, totalSectors)

	freeBefore, err := engine.Space(mffs.SpaceFreeBytes)
	require.Nil(t, err)
	assert.Equal(t, totalBytes, freeBefore)

	fd, err := engine.Open("x", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	_, err = engine.Write(fd, []byte("hi"))
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	freeAfter, err := engine.Space(mffs.SpaceFreeBytes)
	require.Nil(t, err)
	assert.Less(t, freeAfter, freeBefore)
}

func TestCheckRepairsOrphanedChainSector(t *testing.T) {
	engine, section := newTestEngineWithSection(t, 128, 32)

	// A filenode sector's payload capacity here is 128 - HeaderSize -
	// FileNodeSize; writing well past that forces the chain to span a
	// second, plain sector so there is a real tail to orphan.
	fd, err := engine.Open("a", mffs.WRONLY|mffs.CREATE, 0)
	require.Nil(t, err)
	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = engine.Write(fd, payload)
	require.Nil(t, err)
	require.Nil(t, engine.Close(fd))

	// Simulate a crash that freed only the head sector (sector 0, the first
	// allocation on this fresh image) and never reached the tail:
	// patch the head's Status to FREE_DIRTY directly on the backing store,
	// leaving its Next pointer -- and the still-IN_USE tail sector it
	// points to -- untouched. That tail is now an orphan: unreachable from
	// any IN_USE_FILENODE head, per spec.md §4.7 phase 1.
	headBuf := make([]byte, mffs.HeaderSize)
	require.Nil(t, section.Read(0, 0, headBuf))
	head := mffs.DecodeHeader(headBuf)
	require.NotEqual(t, mffs.EndOfChain, head.Next, "write should have spanned a second sector")
	tail := head.Next

	head.Status = mffs.StatusFreeDirty
	require.Nil(t, section.Write(0, 0, mffs.EncodeHeader(&head)))

	tailBuf := make([]byte, mffs.HeaderSize)
	require.Nil(t, section.Read(uint32(tail), 0, tailBuf))
	beforeTail := mffs.DecodeHeader(tailBuf)
	assert.Equal(t, mffs.StatusInUse, beforeTail.Status, "tail should still look in-use before Check")

	fixed, cerr := engine.Check()
	assert.NoError(t, cerr)
	assert.GreaterOrEqual(t, fixed, uint32(1), "the orphaned tail sector should be reclaimed")

	require.Nil(t, section.Read(uint32(tail), 0, tailBuf))
	afterTail := mffs.DecodeHeader(tailBuf)
	assert.Equal(t, mffs.StatusFreeDirty, afterTail.Status, "orphan reclamation should mark the tail FREE_DIRTY")
}
