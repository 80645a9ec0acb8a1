// Package flux presents a USB flux adapter as a floppy disk controller.
//
// The adapter only records the time of each flux transition within a
// revolution of the disk. The Controller decodes that revolution into
// sectors and answers READ ID and READ DATA commands from it, the way a
// real controller would from the bits passing under the head.
package flux

import (
	"errors"
	"fmt"

	"github.com/sergev/dumpfloppy/disk"
	"github.com/sergev/dumpfloppy/fdc"
	"github.com/sergev/dumpfloppy/mfm"
)

// ErrNoFlux is returned by a Drive for a track without any transitions
// between two index pulses: no disk, or an unformatted track.
var ErrNoFlux = errors.New("no flux transitions within a revolution")

// Drive is a floppy drive attached to a flux adapter.
type Drive interface {
	Seek(cyl int) error
	SetHead(head int) error

	// ReadRevolution returns the transitions of one revolution of the
	// track under the head, in nanoseconds from the index pulse, and the
	// duration of that revolution, or 0 when it is unknown.
	ReadRevolution() ([]uint64, uint64, error)

	Close() error
}

// InfoPrinter is implemented by drives that can describe their adapter.
type InfoPrinter interface {
	PrintInfo()
}

// Controller answers floppy controller commands from decoded revolutions.
// Only MFM tracks can be decoded; FM commands fail as if no address mark
// were found.
type Controller struct {
	drive Drive
	debug bool

	cyl   int           // cylinder under the head, -1 when unknown
	track *decodedTrack // last track read, nil after a failure
}

// decodedTrack holds the sectors found in one revolution.
type decodedTrack struct {
	cyl, head int
	kbps      uint16
	sectors   []mfm.Sector
	next      int // sector returned by the next READ ID
}

// NewController creates a controller reading from the drive.
func NewController(drive Drive, debug bool) *Controller {
	return &Controller{
		drive: drive,
		debug: debug,
		cyl:   -1,
	}
}

// Close releases the drive.
func (c *Controller) Close() error {
	return c.drive.Close()
}

// Issue executes one controller command.
func (c *Controller) Issue(cmd *fdc.Command) (fdc.Reply, error) {
	reply, err := c.issue(cmd)
	if c.debug && err == nil {
		fmt.Printf("--- %s %d.%d: st %02x %02x %02x, id %d/%d/%d/%d\n",
			cmd.Op, cmd.Cylinder, cmd.Head, reply.ST0, reply.ST1, reply.ST2,
			reply.Cyl, reply.Head, reply.Sector, reply.SizeCode)
	}
	return reply, err
}

func (c *Controller) issue(cmd *fdc.Command) (fdc.Reply, error) {
	switch cmd.Op {
	case fdc.OpRecalibrate:
		c.track = nil
		if err := c.drive.Seek(0); err != nil {
			return fdc.Reply{}, fmt.Errorf("recalibrate: %w", err)
		}
		c.cyl = 0
		return fdc.Reply{}, nil

	case fdc.OpReadID:
		if cmd.FM {
			return fdc.Failed(fdc.ST1MissingAddressMark, 0), nil
		}
		t, err := c.load(cmd)
		if err != nil {
			return fdc.Reply{}, err
		}
		if len(t.sectors) == 0 {
			c.track = nil
			return fdc.Failed(fdc.ST1MissingAddressMark, 0), nil
		}
		s := &t.sectors[t.next]
		t.next = (t.next + 1) % len(t.sectors)
		return fdc.Reply{Cyl: s.Cyl, Head: s.Head, Sector: s.Sector, SizeCode: s.SizeCode}, nil

	case fdc.OpReadData:
		if cmd.FM {
			return fdc.Failed(fdc.ST1MissingAddressMark, 0), nil
		}
		size := disk.SectorBytes(cmd.SizeCode)
		if len(cmd.Buf) == 0 || len(cmd.Buf)%size != 0 {
			return fdc.Reply{}, fmt.Errorf("read data: buffer of %d bytes for %d byte sectors", len(cmd.Buf), size)
		}
		t, err := c.load(cmd)
		if err != nil {
			return fdc.Reply{}, err
		}
		reply := t.readData(cmd, size)
		if !reply.OK() {
			// Read a fresh revolution next time.
			c.track = nil
		}
		return reply, nil
	}
	return fdc.Reply{}, fmt.Errorf("unsupported operation %s", cmd.Op)
}

// load returns the decoded track under the head, reading it if needed.
func (c *Controller) load(cmd *fdc.Command) (*decodedTrack, error) {
	kbps := rateKBps(cmd.Rate)
	if t := c.track; t != nil && t.cyl == cmd.Cylinder && t.head == cmd.Head && t.kbps == kbps {
		return t, nil
	}
	c.track = nil

	if c.cyl != cmd.Cylinder {
		if err := c.drive.Seek(cmd.Cylinder); err != nil {
			return nil, fmt.Errorf("failed to seek to cylinder %d: %w", cmd.Cylinder, err)
		}
		c.cyl = cmd.Cylinder
	}
	if err := c.drive.SetHead(cmd.Head); err != nil {
		return nil, fmt.Errorf("failed to set head %d: %w", cmd.Head, err)
	}

	t := &decodedTrack{cyl: cmd.Cylinder, head: cmd.Head, kbps: kbps}
	transitions, _, err := c.drive.ReadRevolution()
	switch {
	case err == nil:
		t.sectors = mfm.NewReader(mfm.DecodeBitcells(transitions, kbps)).ScanTrack()
	case errors.Is(err, ErrNoFlux):
		// Nothing to find.
	default:
		return nil, fmt.Errorf("failed to read cylinder %d, head %d: %w", cmd.Cylinder, cmd.Head, err)
	}

	if c.debug {
		fmt.Printf("--- track %d.%d at %d kbps: %d sectors\n", cmd.Cylinder, cmd.Head, kbps, len(t.sectors))
	}
	c.track = t
	return t, nil
}

// find returns the sector with the given ID, preferring a copy with
// good data.
func (t *decodedTrack) find(cyl, head, sector, sizeCode uint8) *mfm.Sector {
	var found *mfm.Sector
	for i := range t.sectors {
		s := &t.sectors[i]
		if s.Cyl != cyl || s.Head != head || s.Sector != sector || s.SizeCode != sizeCode {
			continue
		}
		if s.Data != nil && s.DataOK {
			return s
		}
		if found == nil {
			found = s
		}
	}
	return found
}

// readData fills the buffer from sectors with consecutive IDs, starting
// at the one addressed by the command. Like the real controller, a
// deleted sector ends the transfer, so it can only be read on its own.
func (t *decodedTrack) readData(cmd *fdc.Command, size int) fdc.Reply {
	reply := fdc.Reply{Cyl: cmd.LogCyl, Head: cmd.LogHead, SizeCode: cmd.SizeCode}
	id := cmd.LogSector
	for off := 0; off < len(cmd.Buf); off += size {
		s := t.find(cmd.LogCyl, cmd.LogHead, id, cmd.SizeCode)
		switch {
		case s == nil:
			return fdc.Failed(fdc.ST1NoData, 0)
		case s.Data == nil:
			return fdc.Failed(fdc.ST1MissingAddressMark, 0)
		case !s.DataOK:
			return fdc.Failed(fdc.ST1DataError, fdc.ST2DataErrorInField)
		case s.Deleted && off+size < len(cmd.Buf):
			return fdc.Failed(0, fdc.ST2ControlMark)
		}
		copy(cmd.Buf[off:off+size], s.Data)
		if s.Deleted {
			reply.ST2 |= fdc.ST2ControlMark
		}
		reply.Sector = id
		id++
	}
	return reply
}

// rateKBps converts a controller rate code to kilobits per second.
func rateKBps(rate uint8) uint16 {
	for i := range disk.DataModes {
		if disk.DataModes[i].Rate == rate {
			return disk.DataModes[i].KBps()
		}
	}
	return 0
}

var _ fdc.Controller = (*Controller)(nil)
