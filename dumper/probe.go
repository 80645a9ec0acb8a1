package dumper

import (
	"fmt"

	"github.com/sergev/dumpfloppy/disk"
	"github.com/sergev/dumpfloppy/fdc"
)

// readID reads the ID field of whatever sector reaches the head next
// and appends it to the track. It reports false if the controller
// found no sector in the current data mode.
func (s *Session) readID(t *disk.Track) (bool, error) {
	reply, err := s.ctl.Issue(&fdc.Command{
		Op:       fdc.OpReadID,
		Drive:    s.opts.Drive,
		Head:     t.PhysHead,
		Cylinder: t.PhysCyl,
		Rate:     t.Mode.Rate,
		FM:       t.Mode.FM,
	})
	if err != nil {
		return false, err
	}
	if !reply.OK() {
		return false, nil
	}

	addr := disk.Address{Cyl: reply.Cyl, Head: reply.Head, Sector: reply.Sector}
	if err := t.AddSector(addr, reply.SizeCode); err != nil {
		return false, fmt.Errorf("track %02d.%d: %w", t.PhysCyl, t.PhysHead, err)
	}
	return true, nil
}

// ProbeTrack finds the data mode and the sector layout of a track.
// The mode of a guessed layout is tried first. It reports false, with
// the track left unknown, if no layout could be established.
func (s *Session) ProbeTrack(t *disk.Track) (bool, error) {
	var guess *disk.DataMode
	if t.Status == disk.TrackGuessed {
		guess = t.Mode
	}
	t.Clear()

	s.printf("Probing %02d.%d:", t.PhysCyl, t.PhysHead)

	// Try all the data modes until a sector ID can be read.
	// Only one mode per track is supported.
	found := false
	for _, m := range modeOrder(guess) {
		t.Mode = m
		ok, err := s.readID(t)
		if err != nil {
			return false, err
		}
		if ok {
			found = true
			break
		}
	}
	if !found {
		s.printf(" unknown data mode\n")
		t.Clear()
		return false, nil
	}
	s.printf(" %s", t.Mode)

	// Sample the sector numbering over a few revolutions.
	for i := 0; i < ProbeSamples; i++ {
		ok, err := s.readID(t)
		if err != nil {
			return false, err
		}
		if !ok {
			s.printf(" readid failed\n")
			t.Clear()
			return false, nil
		}
	}

	ids := make([]uint8, len(t.Sectors))
	for i := range t.Sectors {
		ids[i] = t.Sectors[i].Addr.Sector
	}
	start, end, ok := rotation(ids)
	if !ok {
		s.printf(" lowest sector only seen once\n")
		t.Clear()
		return false, nil
	}
	stray := strayIDs(ids, start, end)
	t.KeepRange(start, end)

	s.printf(" %dx%d", len(t.Sectors), t.SectorSize())
	lowest, highest, contiguous := t.Scan()
	if contiguous {
		s.printf(" %d-%d", lowest.Addr.Sector, highest.Addr.Sector)
	} else {
		for i := range t.Sectors {
			s.printf(" %d", t.Sectors[i].Addr.Sector)
		}
	}
	for _, id := range stray {
		s.printf(" (stray %d)", id)
	}
	s.printf("\n")

	t.Status = disk.TrackProbed
	t.Restore()
	return true, nil
}

// modeOrder lists the data modes to try, starting with first if not nil.
func modeOrder(first *disk.DataMode) []*disk.DataMode {
	modes := make([]*disk.DataMode, 0, len(disk.DataModes))
	if first != nil {
		modes = append(modes, first)
	}
	for i := range disk.DataModes {
		if m := &disk.DataModes[i]; m != first {
			modes = append(modes, m)
		}
	}
	return modes
}

// rotation finds one revolution in a sample of sector IDs taken in
// arrival order, e.g.
//
//	7 8 9 1 2 3 4 5 6 7 8 9 1 2 3 4 5 6 7 8 9 1 2 3
//	                        [----------------)
//
// The range ends at the last occurrence of the lowest ID and starts at
// the occurrence before it. It fails if the lowest ID was seen only once.
func rotation(ids []uint8) (start, end int, ok bool) {
	lowest := disk.MaxSectors
	end = -1
	for i, id := range ids {
		if int(id) <= lowest {
			lowest = int(id)
			end = i
		}
	}
	for start = end - 1; start >= 0; start-- {
		if int(ids[start]) == lowest {
			return start, end, true
		}
	}
	return 0, 0, false
}

// strayIDs returns the IDs seen in the sample but missing from [start, end).
func strayIDs(ids []uint8, start, end int) []uint8 {
	var inRange, reported [disk.MaxSectors]bool
	for _, id := range ids[start:end] {
		inRange[id] = true
	}
	var stray []uint8
	for _, id := range ids {
		if !inRange[id] && !reported[id] {
			reported[id] = true
			stray = append(stray, id)
		}
	}
	return stray
}
