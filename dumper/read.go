package dumper

import (
	"bytes"

	"github.com/sergev/dumpfloppy/disk"
	"github.com/sergev/dumpfloppy/fdc"
)

// readData reads sectors with consecutive logical IDs, starting at sec,
// until buf is full.
func (s *Session) readData(t *disk.Track, sec *disk.Sector, buf []byte) (fdc.Reply, error) {
	return s.ctl.Issue(&fdc.Command{
		Op:        fdc.OpReadData,
		Drive:     s.opts.Drive,
		Head:      t.PhysHead,
		Cylinder:  t.PhysCyl,
		Rate:      t.Mode.Rate,
		FM:        t.Mode.FM,
		LogCyl:    sec.Addr.Cyl,
		LogHead:   sec.Addr.Head,
		LogSector: sec.Addr.Sector,
		SizeCode:  t.SizeCode,
		Buf:       buf,
	})
}

// ReadTrack reads the sectors of a track that haven't been read yet,
// probing the track first unless its layout was observed on the drive.
// It reports whether every sector has been read.
func (s *Session) ReadTrack(t *disk.Track) (bool, error) {
	if t.Status != disk.TrackProbed {
		ok, err := s.ProbeTrack(t)
		if err != nil || !ok {
			return false, err
		}
	}

	s.printf("Reading %02d.%d:", t.PhysCyl, t.PhysHead)

	lowest, highest, contiguous := t.Scan()
	size := t.SectorSize()

	// Try the whole track in one command first; it is much faster than
	// reading sector by sector. The data comes ordered by logical ID.
	// A deleted data mark stops the transfer, so such a reply is dropped.
	var whole []byte
	if contiguous {
		buf := make([]byte, size*len(t.Sectors))
		reply, err := s.readData(t, lowest, buf)
		if err != nil {
			return false, err
		}
		if reply.OK() && reply.ST2&fdc.ST2ControlMark == 0 {
			whole = buf
			s.printf(" %d-%d+", lowest.Addr.Sector, highest.Addr.Sector)
		}
	}

	// Get the remaining sectors in physical order.
	allOK := true
	var filled [disk.MaxSectors]bool
	for i := range t.Sectors {
		sec := &t.Sectors[i]
		if sec.Status == disk.SectorGood {
			s.printf(" (%d)", sec.Addr.Sector)
			continue
		}
		s.printf(" %d", sec.Addr.Sector)

		if whole != nil {
			off := int(sec.Addr.Sector-lowest.Addr.Sector) * size
			data := whole[off : off+size : off+size]
			if filled[sec.Addr.Sector] {
				// Same ID twice in the revolution.
				data = bytes.Clone(data)
			}
			filled[sec.Addr.Sector] = true
			sec.Fill(data)
			s.printf("=")
			continue
		}

		buf := make([]byte, size)
		reply, err := s.readData(t, sec, buf)
		if err != nil {
			return false, err
		}
		if !reply.OK() {
			sec.Free()
			s.printf("-")
			allOK = false
			continue
		}
		sec.Fill(buf)
		sec.Deleted = reply.ST2&fdc.ST2ControlMark != 0
		s.printf("+")
	}

	if !allOK {
		s.printf("\n")
		return false, nil
	}
	s.printf(" OK\n")
	return true, nil
}
