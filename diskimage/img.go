package diskimage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sergev/dumpfloppy/disk"
)

// WriteIMG writes the disk contents as a flat sector image: tracks in
// cylinder then head order, sectors of each track in logical order.
// Tracks absent from the disk are skipped; a track with an unread
// sector is an error.
func WriteIMG(w io.Writer, d *disk.Disk) error {
	bw := bufio.NewWriter(w)
	for cyl := 0; cyl < d.NumPhysCyls; cyl++ {
		for head := 0; head < d.NumPhysHeads; head++ {
			t := d.Track(cyl, head)
			if t.Status == disk.TrackUnknown {
				continue
			}

			sectors := make([]*disk.Sector, len(t.Sectors))
			for i := range t.Sectors {
				sectors[i] = &t.Sectors[i]
			}
			sort.SliceStable(sectors, func(i, j int) bool {
				return sectors[i].Addr.Sector < sectors[j].Addr.Sector
			})

			for _, s := range sectors {
				if s.Status != disk.SectorGood {
					return fmt.Errorf("missing sector %d of track %d.%d", s.Addr.Sector, cyl, head)
				}
				if _, err := bw.Write(s.Data()); err != nil {
					return fmt.Errorf("failed to write sector %d of track %d.%d: %w", s.Addr.Sector, cyl, head, err)
				}
			}
		}
	}
	return bw.Flush()
}

// WriteIMGFile writes disk contents to an IMG or IMA format file.
func WriteIMGFile(filename string, d *disk.Disk) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteIMG(file, d); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
