// Package memsection provides an in-memory mffs.Section backed by
// github.com/xaionaro-go/bytesextra, for tests.
package memsection

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/jcoverton/mffs"
)

// Section is an in-core flash section. Erase resets a sector to all-0xFF,
// the post-erase state NOR flash settles into.
type Section struct {
	stream     io.ReadWriteSeeker
	sectorSize uint32
	count      uint32
}

// New allocates a Section of count sectors, each sectorSize bytes, all
// initialized to 0xFF (the erased state).
func New(sectorSize, count uint32) *Section {
	buf := make([]byte, uint64(sectorSize)*uint64(count))
	for i := range buf {
		buf[i] = 0xFF
	}
	return &Section{
		stream:     bytesextra.NewReadWriteSeeker(buf),
		sectorSize: sectorSize,
		count:      count,
	}
}

func (s *Section) SectorSize() uint32  { return s.sectorSize }
func (s *Section) SectorCount() uint32 { return s.count }

func (s *Section) checkBounds(rel uint32) error {
	if rel >= s.count {
		return fmt.Errorf("sector %d not in range [0, %d)", rel, s.count)
	}
	return nil
}

func (s *Section) Read(rel uint32, offset uint32, buf []byte) error {
	if err := s.checkBounds(rel); err != nil {
		return err
	}
	pos := int64(rel)*int64(s.sectorSize) + int64(offset)
	if _, err := s.stream.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(s.stream, buf)
	return err
}

// Write enforces the NOR write-once-per-bit contract documented on
// mffs.Section: a bit may only transition 1 -> 0 between erases. A caller
// attempting an illegal 0 -> 1 transition gets an error instead of silently
// corrupt-looking media, since this backing store has no physical reason to
// forbid it otherwise.
func (s *Section) Write(rel uint32, offset uint32, buf []byte) error {
	if err := s.checkBounds(rel); err != nil {
		return err
	}
	pos := int64(rel)*int64(s.sectorSize) + int64(offset)

	existing := make([]byte, len(buf))
	if _, err := s.stream.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(s.stream, existing); err != nil {
		return err
	}
	for i, want := range buf {
		if want&^existing[i] != 0 {
			return fmt.Errorf("illegal 0->1 bit transition at sector %d offset %d+%d", rel, offset, i)
		}
	}

	if _, err := s.stream.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	_, err := s.stream.Write(buf)
	return err
}

// Erase returns the whole sector to all-0xFF, bypassing the write-once check
// since an erase is precisely the operation that legally clears it.
func (s *Section) Erase(rel uint32) error {
	if err := s.checkBounds(rel); err != nil {
		return err
	}
	blank := make([]byte, s.sectorSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	pos := int64(rel) * int64(s.sectorSize)
	if _, err := s.stream.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	_, err := s.stream.Write(blank)
	return err
}

var _ mffs.Section = (*Section)(nil)
