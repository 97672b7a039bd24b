// Package sectiontable loads and saves section-table layouts as CSV, host
// tooling for describing how a flash device's sections map to mffs.Section
// implementations, independent of the engine's on-media format.
package sectiontable

import (
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/jcoverton/mffs"
	"github.com/jcoverton/mffs/filesection"
)

// Row describes one section table entry as it would appear in a layout file
// read by mffsctl: a device slot, its starting sector on that device, how
// many sectors it has, and the sector size within it.
type Row struct {
	Device     uint8  `csv:"device"`
	Start      uint32 `csv:"start_sector"`
	Count      uint32 `csv:"sector_count"`
	SectorSize uint32 `csv:"sector_size"`
	ImagePath  string `csv:"image_path"`
}

// Load parses a CSV section-table layout from r.
func Load(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Save serializes rows as CSV to w.
func Save(w io.Writer, rows []Row) error {
	return gocsv.Marshal(rows, w)
}

// Open opens (creating if necessary) each row's backing image file and
// builds the corresponding mffs.SectionTableEntry list, ready to hand to
// mffs.Initialize. The caller is responsible for closing the returned files
// once the Engine built from the entries is torn down.
func Open(rows []Row) ([]mffs.SectionTableEntry, []*os.File, error) {
	entries := make([]mffs.SectionTableEntry, 0, len(rows))
	files := make([]*os.File, 0, len(rows))

	for _, row := range rows {
		info, statErr := os.Stat(row.ImagePath)
		var section *filesection.Section
		var file *os.File
		var err error

		if statErr == nil && info.Size() == int64(row.SectorSize)*int64(row.Count) {
			file, err = os.OpenFile(row.ImagePath, os.O_RDWR, 0o644)
			if err == nil {
				section = filesection.Open(file, row.SectorSize, row.Count, 0)
			}
		} else {
			section, err = filesection.Create(row.ImagePath, row.SectorSize, row.Count)
			if section != nil {
				file = section.File()
			}
		}

		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return nil, nil, err
		}

		files = append(files, file)
		entries = append(entries, mffs.SectionTableEntry{
			Device:     row.Device,
			Start:      row.Start,
			Count:      row.Count,
			SectorSize: row.SectorSize,
			Section:    section,
		})
	}

	return entries, files, nil
}
