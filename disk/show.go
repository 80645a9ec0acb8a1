package disk

import (
	"fmt"
	"io"
	"sort"
)

// ShowSector prints a four column marker for one sector.
func ShowSector(w io.Writer, s *Sector) {
	label := ' '
	switch s.Status {
	case SectorMissing:
		fmt.Fprintf(w, "  . ")
		return
	case SectorBad:
		label = '?'
	case SectorGood:
		if s.Deleted {
			label = 'x'
		} else {
			label = '+'
		}
	}
	fmt.Fprintf(w, "%3d%c", s.Addr.Sector, label)
}

// ShowTrack prints the mode and sector layout of a track on one line
// (without the line break).
func ShowTrack(w io.Writer, t *Track) {
	fmt.Fprintf(w, "%s %dx%d", t.Mode, len(t.Sectors), t.SectorSize())
	for i := range t.Sectors {
		ShowSector(w, &t.Sectors[i])
	}
}

// ShowTrackData prints the payload of every sector in logical order,
// formatted like "hexdump -C".
func ShowTrackData(w io.Writer, t *Track) {
	sectors := make([]*Sector, len(t.Sectors))
	for i := range t.Sectors {
		sectors[i] = &t.Sectors[i]
	}
	sort.SliceStable(sectors, func(i, j int) bool {
		if sectors[i].Addr.Sector != sectors[j].Addr.Sector {
			return sectors[i].Addr.Sector < sectors[j].Addr.Sector
		}
		return sectors[i].Phys < sectors[j].Phys
	})

	for _, s := range sectors {
		if s.Status == SectorMissing {
			continue
		}
		fmt.Fprintf(w, "Physical C %d H %d S %d, logical C %d H %d S %d",
			t.PhysCyl, t.PhysHead, s.Phys, s.Addr.Cyl, s.Addr.Head, s.Addr.Sector)
		if s.Status == SectorBad {
			fmt.Fprintf(w, " (bad data)")
		}
		fmt.Fprintf(w, ":\n")
		hexDump(w, s.Data())
		fmt.Fprintf(w, "\n")
	}
}

func hexDump(w io.Writer, data []byte) {
	const lineLen = 16
	for i := 0; i < len(data); i += lineLen {
		fmt.Fprintf(w, "%04x ", i)
		for j := 0; j < lineLen; j++ {
			if i+j < len(data) {
				fmt.Fprintf(w, " %02x", data[i+j])
			} else {
				fmt.Fprintf(w, "   ")
			}
		}
		fmt.Fprintf(w, "  |")
		for j := 0; j < lineLen; j++ {
			if i+j >= len(data) {
				fmt.Fprintf(w, " ")
				continue
			}
			c := data[i+j]
			if c >= 32 && c < 127 {
				fmt.Fprintf(w, "%c", c)
			} else {
				fmt.Fprintf(w, ".")
			}
		}
		fmt.Fprintf(w, "|\n")
	}
}

// Show prints the comment and a summary line per track.
// With withData set, sector payloads are dumped as well.
func (d *Disk) Show(w io.Writer, withData bool) {
	fmt.Fprintf(w, "%s\n", d.Comment)
	for cyl := 0; cyl < d.NumPhysCyls; cyl++ {
		for head := 0; head < d.NumPhysHeads; head++ {
			t := d.Track(cyl, head)
			fmt.Fprintf(w, "%2d.%d:", cyl, head)
			ShowTrack(w, t)
			fmt.Fprintf(w, "\n")
			if withData {
				fmt.Fprintf(w, "\n")
				ShowTrackData(w, t)
			}
		}
	}
}
