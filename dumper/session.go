// Package dumper discovers the layout of an unknown floppy disk and
// acquires the contents of every sector through a floppy controller.
package dumper

import (
	"fmt"
	"io"

	"github.com/sergev/dumpfloppy/disk"
	"github.com/sergev/dumpfloppy/fdc"
)

const (
	// DefaultRetries is the number of attempts made to read one track.
	DefaultRetries = 10

	// ProbeSamples is the number of sector IDs read after the data mode
	// is known, enough for a few revolutions of the disk.
	ProbeSamples = 30

	// ReferenceCyl is probed to find the disk geometry. It must be
	// non-zero to compare logical and physical cylinders, and cylinder 0
	// may be unformatted on disks where it holds a boot block.
	ReferenceCyl = 2
)

// Options control a dump session.
type Options struct {
	Drive       int  // drive unit passed to the controller
	AlwaysProbe bool // don't guess a layout from the previous cylinder
	MaxTries    int  // attempts per track, DefaultRetries if zero
}

// TrackWriter receives every track once it has been read completely.
type TrackWriter interface {
	WriteTrack(t *disk.Track) error
}

// Session owns the controller for the duration of a dump.
type Session struct {
	ctl  fdc.Controller
	opts Options
	out  io.Writer
}

// NewSession returns a session issuing commands to ctl and narrating
// progress to out.
func NewSession(ctl fdc.Controller, opts Options, out io.Writer) *Session {
	if opts.MaxTries <= 0 {
		opts.MaxTries = DefaultRetries
	}
	if out == nil {
		out = io.Discard
	}
	return &Session{
		ctl:  ctl,
		opts: opts,
		out:  out,
	}
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// ReadDisk reads every track of the disk in increasing cylinder then head
// order and hands each one to w, if not nil. Unless AlwaysProbe is set, the
// layout of the previous cylinder on the same head is taken as a guess,
// and the probe tries its data mode first.
func (s *Session) ReadDisk(d *disk.Disk, w TrackWriter) error {
	for cyl := 0; cyl < d.NumPhysCyls; cyl += d.CylStep {
		for head := 0; head < d.NumPhysHeads; head++ {
			t := d.Track(cyl, head)

			prev := cyl - d.CylStep
			if !s.opts.AlwaysProbe && prev >= 0 && t.Status != disk.TrackProbed {
				// One step is one logical cylinder.
				t.CopyLayout(d.Track(prev, head), 1)
			}

			if err := s.readWithRetries(t); err != nil {
				return err
			}

			if w != nil {
				if err := w.WriteTrack(t); err != nil {
					return fmt.Errorf("track %02d.%d: %w", cyl, head, err)
				}
			}
		}
	}
	return nil
}

// readWithRetries reads a track until it is complete. Each failed attempt
// forgets the layout, so the next one probes the track again; sectors
// already read are kept.
func (s *Session) readWithRetries(t *disk.Track) error {
	for try := 0; ; try++ {
		if try == s.opts.MaxTries {
			return fmt.Errorf("track %02d.%d: %w", t.PhysCyl, t.PhysHead, ErrRetriesExhausted)
		}

		ok, err := s.ReadTrack(t)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		t.Clear()
	}
}
