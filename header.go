package mffs

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// SectorHeaderKey is the magic value ("mffs" packed big-endian into a
// 32-bit word) that marks a sector as ever having been formatted by this
// engine.
const SectorHeaderKey uint32 = 0x6d666673

// Status is the sector lifecycle state recorded in SectorHeader.Status. Per
// spec.md §3, transitions are monotonic within one lifecycle of a sector
// (between erases): FREE -> INUSE or INUSE_FILENODE, and any in-use status
// -> FREE_DIRTY. Only a full erase returns a sector from FREE_DIRTY to FREE.
type Status uint8

const (
	// StatusInUse marks an ordinary chain-body sector.
	StatusInUse Status = 0x0F
	// StatusInUseFilenode marks a chain-head sector; a FileNode immediately
	// follows the header.
	StatusInUseFilenode Status = 0xF0
	// StatusFree marks an erased sector (the post-erase default).
	StatusFree Status = 0xFF
	// StatusFreeDirty marks a sector that is logically free but still holds
	// old data; it must be erased before reuse.
	StatusFreeDirty Status = 0x00
)

// FileSystemVersion is the on-media format version written into every
// header produced by this implementation.
const FileSystemVersion uint8 = 1

// HeaderSize is the encoded size, in bytes, of a SectorHeader.
const HeaderSize = 4 + 4 + 4 + 1 + 1 + 2 + 4 + 4

// FileNodeSize is the encoded size, in bytes, of a FileNode.
const FileNodeSize = 1 + (MaxFilenameLength + 1) + 4 + 4 + 4

// MaxFilenameLength is the longest name storable in a FileNode, excluding
// the NUL terminator.
const MaxFilenameLength = 64

// SectorHeader is the fixed-layout record at offset 0 of every managed
// sector. See spec.md §3 for field semantics.
type SectorHeader struct {
	Key            uint32
	Next           GlobalSector
	EraseCount     uint32
	Version        uint8
	Status         Status
	SectorChecksum uint16
	SectorLength   uint32
	DataOffset     uint32
}

// Valid reports whether this header's Key matches the sanity key, i.e.
// whether the sector has ever been formatted by this engine.
func (h *SectorHeader) Valid() bool {
	return h.Key == SectorHeaderKey
}

// PayloadCapacity returns the number of user-data bytes this sector can
// hold, i.e. SectorLength - DataOffset.
func (h *SectorHeader) PayloadCapacity() uint32 {
	if h.DataOffset > h.SectorLength {
		return 0
	}
	return h.SectorLength - h.DataOffset
}

// EncodeHeader serializes h into a HeaderSize-byte buffer.
func EncodeHeader(h *SectorHeader) []byte {
	buf := make([]byte, HeaderSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, h.Key)
	binary.Write(w, binary.LittleEndian, uint32(h.Next))
	binary.Write(w, binary.LittleEndian, h.EraseCount)
	binary.Write(w, binary.LittleEndian, h.Version)
	binary.Write(w, binary.LittleEndian, uint8(h.Status))
	binary.Write(w, binary.LittleEndian, h.SectorChecksum)
	binary.Write(w, binary.LittleEndian, h.SectorLength)
	binary.Write(w, binary.LittleEndian, h.DataOffset)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a SectorHeader.
func DecodeHeader(buf []byte) SectorHeader {
	var h SectorHeader
	h.Key = binary.LittleEndian.Uint32(buf[0:4])
	h.Next = GlobalSector(binary.LittleEndian.Uint32(buf[4:8]))
	h.EraseCount = binary.LittleEndian.Uint32(buf[8:12])
	h.Version = buf[12]
	h.Status = Status(buf[13])
	h.SectorChecksum = binary.LittleEndian.Uint16(buf[14:16])
	h.SectorLength = binary.LittleEndian.Uint32(buf[16:20])
	h.DataOffset = binary.LittleEndian.Uint32(buf[20:24])
	return h
}

// headerNextOffset is the byte offset of the Next field within an encoded
// header, used when back-patching a predecessor's chain pointer: because
// Next starts as all-ones (EndOfChain), overwriting it is a legal 1 -> 0
// NOR write even though the rest of the header is untouched.
const headerNextOffset = 4

// headerStatusOffset is the byte offset of the Version+Status+SectorChecksum
// run; markFreeDirty (used by FreeChain, Check and Rename) rewrites this
// 4-byte run alone to flip Status
// to FREE_DIRTY without touching any other field, mirroring the original's
// partial-header rewrite.
const headerStatusOffset = 12

// FileNode is the per-file metadata record written immediately after the
// header of an INUSE_FILENODE sector.
type FileNode struct {
	Permissions uint8
	Filename    string
	FileSize    uint32
	DataTime    uint32
	Count       uint32

	// nameFirstByte is the raw first byte of the on-media Filename field,
	// preserved separately from Filename: a virgin (never-written) name
	// field has no NUL and decodes to the whole 65-byte run of 0xFF bytes,
	// and IsPartiallyWritten tests the raw first byte rather than the
	// decoded string.
	nameFirstByte byte
}

// IsPartiallyWritten reports whether this file-node is a chain head that was
// allocated but never had its real name/size written -- a crash between
// Allocate(sectorWithFilenode) and the file's Close. NextDirectory substitutes
// NewFileDisplayName for these.
func (n *FileNode) IsPartiallyWritten() bool {
	return isPartiallyWritten(n.nameFirstByte, n.FileSize)
}

// EncodeFileNode serializes n into a FileNodeSize-byte buffer. Filename is
// truncated to MaxFilenameLength bytes and NUL-terminated.
func EncodeFileNode(n *FileNode) []byte {
	buf := make([]byte, FileNodeSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, n.Permissions)

	nameField := make([]byte, MaxFilenameLength+1)
	name := n.Filename
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	copy(nameField, name)
	w.Write(nameField)

	binary.Write(w, binary.LittleEndian, n.FileSize)
	binary.Write(w, binary.LittleEndian, n.DataTime)
	binary.Write(w, binary.LittleEndian, n.Count)
	return buf
}

// DecodeFileNode parses a FileNodeSize-byte buffer into a FileNode.
func DecodeFileNode(buf []byte) FileNode {
	var n FileNode
	n.Permissions = buf[0]

	nameField := buf[1 : 1+MaxFilenameLength+1]
	n.nameFirstByte = nameField[0]
	nul := len(nameField)
	for i, b := range nameField {
		if b == 0 {
			nul = i
			break
		}
	}
	n.Filename = string(nameField[:nul])

	rest := buf[1+MaxFilenameLength+1:]
	n.FileSize = binary.LittleEndian.Uint32(rest[0:4])
	n.DataTime = binary.LittleEndian.Uint32(rest[4:8])
	n.Count = binary.LittleEndian.Uint32(rest[8:12])
	return n
}

// isPartiallyWritten reports whether a file-node's first name byte and
// FileSize indicate a chain head that was allocated but never had its
// file-node written (a crash between allocation and close).
func isPartiallyWritten(nameFirstByte byte, fileSize uint32) bool {
	return nameFirstByte == 0xFF && fileSize == 0xFFFFFFFF
}
