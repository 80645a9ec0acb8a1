package fdc

import (
	"fmt"
	"sort"
	"strings"
)

// Op selects the controller operation of a Command.
type Op int

const (
	OpRecalibrate Op = iota // seek the head back to track 0
	OpReadID                // read the ID field of the next sector to pass the head
	OpReadData              // read data of consecutive sectors into Buf
)

func (op Op) String() string {
	switch op {
	case OpRecalibrate:
		return "RECALIBRATE"
	case OpReadID:
		return "READ ID"
	case OpReadData:
		return "READ DATA"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Command is one request to the floppy controller.
type Command struct {
	Op       Op
	Drive    int   // drive unit, 0 to 3
	Head     int   // physical head
	Cylinder int   // physical cylinder to seek to
	Rate     uint8 // transfer rate code, 0 to 3
	FM       bool  // single density encoding

	// Logical address of the first sector, for OpReadData.
	LogCyl    uint8
	LogHead   uint8
	LogSector uint8
	SizeCode  uint8

	// Destination for OpReadData. Its length selects how many
	// consecutive sectors are transferred.
	Buf []byte
}

// Reply carries the result bytes reported by the controller.
type Reply struct {
	ST0      byte
	ST1      byte
	ST2      byte
	Cyl      uint8 // logical cylinder of the sector seen
	Head     uint8 // logical head
	Sector   uint8 // logical sector id
	SizeCode uint8 // 128 << SizeCode bytes
}

// Status register bits used by the controllers in this module.
const (
	ST0AbnormalTermination = 0x40
	ST1MissingAddressMark  = 0x01
	ST1NoData              = 0x04
	ST1DataError           = 0x20
	ST2ControlMark         = 0x40 // deleted data address mark
	ST2DataErrorInField    = 0x20
)

// OK reports whether the interrupt code in ST0 signals normal termination.
func (r Reply) OK() bool {
	return (r.ST0>>6)&3 == 0
}

// Failed returns a reply reporting an abnormal termination.
func Failed(st1, st2 byte) Reply {
	return Reply{ST0: ST0AbnormalTermination, ST1: st1, ST2: st2}
}

// Controller issues commands to a floppy disk controller.
//
// A non-nil error means the request could not be issued at all.
// Failures reported by the hardware come back in the Reply.
type Controller interface {
	Issue(cmd *Command) (Reply, error)
	Close() error
}

// Options select and configure the controller to open.
type Options struct {
	Drive    int    // drive unit
	Port     string // serial port for USB adapters; empty means autodetect
	Firmware string // firmware image to upload, for adapters that need one
	Debug    bool   // trace commands on stdout
}

// Factory opens a controller.
type Factory func(opts Options) (Controller, error)

var registered = map[string]Factory{}

// Register makes a controller available under the given adapter name.
func Register(name string, factory Factory) {
	registered[name] = factory
}

// Open opens the controller registered under the given adapter name.
func Open(name string, opts Options) (Controller, error) {
	factory, ok := registered[name]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (available: %s)", name, strings.Join(Adapters(), ", "))
	}
	return factory(opts)
}

// Adapters returns the names of registered controllers, sorted.
func Adapters() []string {
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrackCounter is implemented by controllers that know how many
// cylinders the attached drive has.
type TrackCounter interface {
	Tracks() (int, error)
}

// StatusPrinter is implemented by controllers that can describe themselves.
type StatusPrinter interface {
	PrintStatus()
}
