// Package filesection provides a bounds-checked mffs.Section backed by an
// on-disk image file.
package filesection

import (
	"fmt"
	"io"
	"os"

	"github.com/jcoverton/mffs"
)

// Section addresses a contiguous run of fixed-size sectors within an open
// file, starting at StartOffset bytes from the beginning of the file. This
// lets several Sections share one image file, e.g. for a multi-section test
// fixture.
type Section struct {
	file        *os.File
	sectorSize  uint32
	count       uint32
	startOffset int64
}

// Open wraps an already-open, seekable file as a Section of count sectors of
// sectorSize bytes each, starting at startOffset.
func Open(file *os.File, sectorSize, count uint32, startOffset int64) *Section {
	return &Section{
		file:        file,
		sectorSize:  sectorSize,
		count:       count,
		startOffset: startOffset,
	}
}

// Create truncates or creates path to hold count sectors of sectorSize
// bytes, all initialized to the erased (0xFF) state, and returns a Section
// over it.
func Create(path string, sectorSize, count uint32) (*Section, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	blank := make([]byte, sectorSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for i := uint32(0); i < count; i++ {
		if _, err := file.Write(blank); err != nil {
			file.Close()
			return nil, err
		}
	}

	return Open(file, sectorSize, count, 0), nil
}

// File returns the underlying open file, so callers can close it once done.
func (s *Section) File() *os.File { return s.file }

func (s *Section) SectorSize() uint32  { return s.sectorSize }
func (s *Section) SectorCount() uint32 { return s.count }

func (s *Section) checkBounds(rel uint32) error {
	if rel >= s.count {
		return fmt.Errorf("sector %d not in range [0, %d)", rel, s.count)
	}
	return nil
}

func (s *Section) seekTo(rel uint32, offset uint32) error {
	if err := s.checkBounds(rel); err != nil {
		return err
	}
	pos := s.startOffset + int64(rel)*int64(s.sectorSize) + int64(offset)
	_, err := s.file.Seek(pos, io.SeekStart)
	return err
}

func (s *Section) Read(rel uint32, offset uint32, buf []byte) error {
	if err := s.seekTo(rel, offset); err != nil {
		return err
	}
	_, err := io.ReadFull(s.file, buf)
	return err
}

func (s *Section) Write(rel uint32, offset uint32, buf []byte) error {
	if err := s.seekTo(rel, offset); err != nil {
		return err
	}
	_, err := s.file.Write(buf)
	return err
}

func (s *Section) Erase(rel uint32) error {
	blank := make([]byte, s.sectorSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	return s.Write(rel, 0, blank)
}

var _ mffs.Section = (*Section)(nil)
