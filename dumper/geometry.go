package dumper

import (
	"github.com/sergev/dumpfloppy/disk"
)

// ProbeDisk probes both sides of the reference cylinder to find the
// number of heads and the stepping between logical and physical
// cylinders. The disk must have its geometry set to the drive's
// capabilities beforehand; the head count may be reduced.
func (s *Session) ProbeDisk(d *disk.Disk) error {
	for head := 0; head < d.NumPhysHeads; head++ {
		if _, err := s.ProbeTrack(d.Track(ReferenceCyl, head)); err != nil {
			return err
		}
	}

	side0 := d.Track(ReferenceCyl, 0)
	side1 := d.Track(ReferenceCyl, 1)
	ok0 := side0.Status == disk.TrackProbed
	ok1 := d.NumPhysHeads > 1 && side1.Status == disk.TrackProbed

	ref := side0
	switch {
	case !ok0 && !ok1:
		return ErrUnreadable
	case ok0 && !ok1:
		s.printf("Single-sided disk\n")
		d.NumPhysHeads = 1
	case !ok0:
		// Head 0 gave nothing, so head 1 has to tell the stepping.
		s.printf("Double-sided disk\n")
		ref = side1
	case side0.Sectors[0].Addr.Head == 0 && side1.Sectors[0].Addr.Head == 0:
		s.printf("Double-sided disk with separate sides\n")
	default:
		s.printf("Double-sided disk\n")
	}

	logCyl := int(ref.Sectors[0].Addr.Cyl)
	switch {
	case logCyl*2 == ref.PhysCyl:
		s.printf("Doublestepping required (40T disk in 80T drive)\n")
		d.CylStep = 2
	case logCyl == ref.PhysCyl*2:
		return ErrDriveTooCoarse
	case logCyl != ref.PhysCyl:
		s.printf("Mismatch between physical and logical cylinders\n")
	}
	return nil
}
