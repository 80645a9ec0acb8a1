//go:build linux

package fdc

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests from <linux/fd.h>
const (
	fdReset       = 0x0254 // _IO(2, 0x54)
	fdRawCmd      = 0x0258 // _IO(2, 0x58)
	fdResetAlways = 2
)

// Controller commands from <linux/fdreg.h>
const (
	fdRecalibrate = 0x07
	fdReadID      = 0xEA
	fdRead        = 0xE6

	cmdMT  = 0x80 // multi-track
	cmdMFM = 0x40 // double density
)

// floppy_raw_cmd flags
const (
	rawRead     = 0x01
	rawIntr     = 0x08
	rawNeedSeek = 0x80
)

// rawCmd mirrors struct floppy_raw_cmd. C long maps to Go int on Linux.
type rawCmd struct {
	Flags        uint32
	Data         unsafe.Pointer
	KernelData   uintptr
	Next         uintptr
	Length       int
	PhysLength   int
	BufferLength int32
	Rate         uint8
	CmdCount     uint8
	Cmd          [16]uint8
	ReplyCount   uint8
	Reply        [16]uint8
	Track        int32
	ResultCode   int32
	Reserved1    int32
	Reserved2    int32
}

// driveParams mirrors struct floppy_drive_params.
type driveParams struct {
	Cmos           int8
	MaxDtr         uint
	Hlt            uint
	Hut            uint
	Srt            uint
	Spinup         uint
	Spindown       uint
	SpindownOffset uint8
	SelectDelay    uint8
	Rps            uint8
	Tracks         uint8
	Timeout        uint
	InterleaveSect uint8
	MaxErrors      [5]uint32
	Flags          int8
	ReadTrack      int8
	Autodetect     [8]int16
	Checkfreq      int32
	NativeFormat   int32
}

// fdGetDrvPrm returns _IOR(2, 0x11, struct floppy_drive_params).
func fdGetDrvPrm() uintptr {
	const iocRead = 2
	return iocRead<<30 | unsafe.Sizeof(driveParams{})<<16 | 2<<8 | 0x11
}

// Device is a floppy drive attached to the PC floppy controller,
// driven through the Linux FDRAWCMD interface.
type Device struct {
	fd     int
	path   string
	drive  int
	debug  bool
	params driveParams
}

func init() {
	Register("fdc", func(opts Options) (Controller, error) {
		return OpenDevice(opts.Drive, opts.Debug)
	})
}

// OpenDevice opens /dev/fdN, reads the drive parameters, resets the
// controller and moves the head to track 0.
func OpenDevice(drive int, debug bool) (*Device, error) {
	if drive < 0 || drive > 3 {
		return nil, fmt.Errorf("invalid drive number %d", drive)
	}
	path := fmt.Sprintf("/dev/fd%d", drive)

	// O_ACCMODE opens the device for ioctls only.
	fd, err := unix.Open(path, unix.O_ACCMODE|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	d := &Device{
		fd:    fd,
		path:  path,
		drive: drive,
		debug: debug,
	}

	// BIOS parameters of the drive. These aren't necessarily accurate:
	// there's no BIOS type for an 80-track 5.25" DD drive.
	if err := d.ioctl(fdGetDrvPrm(), uintptr(unsafe.Pointer(&d.params))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("cannot get drive parameters: %w", err)
	}

	if err := d.ioctl(fdReset, fdResetAlways); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("cannot reset controller: %w", err)
	}

	// Recalibrate gives up after 80 steps, so do it twice in case the
	// head was left beyond track 80.
	for i := 0; i < 2; i++ {
		if _, err := d.Issue(&Command{Op: OpRecalibrate, Drive: drive}); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) ioctl(req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// driveSelector encodes the head and drive unit as the second command byte.
func driveSelector(head, drive int) uint8 {
	return uint8(head<<2 | drive&3)
}

// buildRawCmd converts a Command into a floppy_raw_cmd request.
func buildRawCmd(cmd *Command) (rawCmd, error) {
	var raw rawCmd
	switch cmd.Op {
	case OpRecalibrate:
		raw.Cmd[0] = fdRecalibrate
		raw.Cmd[1] = driveSelector(0, cmd.Drive)
		raw.CmdCount = 2
		raw.Flags = rawIntr
		return raw, nil

	case OpReadID:
		raw.Cmd[0] = fdReadID
		raw.Cmd[1] = driveSelector(cmd.Head, cmd.Drive)
		raw.CmdCount = 2
		raw.Flags = rawIntr | rawNeedSeek

	case OpReadData:
		if len(cmd.Buf) == 0 {
			return raw, errors.New("READ DATA without a buffer")
		}
		raw.Cmd[0] = fdRead &^ cmdMT
		raw.Cmd[1] = driveSelector(cmd.Head, cmd.Drive)
		raw.Cmd[2] = cmd.LogCyl
		raw.Cmd[3] = cmd.LogHead
		raw.Cmd[4] = cmd.LogSector
		raw.Cmd[5] = cmd.SizeCode
		// End of track sector number.
		raw.Cmd[6] = 0xFF
		// Intersector gap; the fdutils manual says it makes no
		// difference for reads.
		raw.Cmd[7] = 0x1B
		// Bytes in sector, only meaningful for size code 0.
		if cmd.SizeCode == 0 {
			raw.Cmd[8] = 128
		} else {
			raw.Cmd[8] = 0xFF
		}
		raw.CmdCount = 9
		raw.Flags = rawRead | rawIntr | rawNeedSeek
		raw.Data = unsafe.Pointer(&cmd.Buf[0])
		raw.Length = len(cmd.Buf)

	default:
		return raw, fmt.Errorf("unsupported command %s", cmd.Op)
	}

	raw.Track = int32(cmd.Cylinder)
	raw.Rate = cmd.Rate
	if cmd.FM {
		raw.Cmd[0] &^= cmdMFM
	}
	return raw, nil
}

// parseReply extracts the result phase of READ ID and READ DATA.
func parseReply(raw *rawCmd) Reply {
	return Reply{
		ST0:      raw.Reply[0],
		ST1:      raw.Reply[1],
		ST2:      raw.Reply[2],
		Cyl:      raw.Reply[3],
		Head:     raw.Reply[4],
		Sector:   raw.Reply[5],
		SizeCode: raw.Reply[6],
	}
}

// Issue sends one command through FDRAWCMD and waits for its completion.
func (d *Device) Issue(cmd *Command) (Reply, error) {
	raw, err := buildRawCmd(cmd)
	if err != nil {
		return Reply{}, err
	}
	err = d.ioctl(fdRawCmd, uintptr(unsafe.Pointer(&raw)))
	runtime.KeepAlive(cmd.Buf)
	if err != nil {
		return Reply{}, fmt.Errorf("%s failed: %w", cmd.Op, err)
	}
	if d.debug {
		fmt.Printf("--- %s: cmd % x, reply % x\n", cmd.Op, raw.Cmd[:raw.CmdCount], raw.Reply[:raw.ReplyCount])
	}
	if cmd.Op == OpRecalibrate {
		return Reply{}, nil
	}
	if raw.ReplyCount < 7 {
		return Reply{}, fmt.Errorf("%s returned short reply (%d bytes)", cmd.Op, raw.ReplyCount)
	}
	return parseReply(&raw), nil
}

// Tracks returns the number of cylinders reported by the drive parameters.
func (d *Device) Tracks() (int, error) {
	if d.params.Tracks == 0 {
		return 0, fmt.Errorf("%s: drive parameters report no tracks", d.path)
	}
	return int(d.params.Tracks), nil
}

// PrintStatus prints the drive parameters.
func (d *Device) PrintStatus() {
	fmt.Printf("Device: %s\n", d.path)
	fmt.Printf("CMOS drive type: %d\n", d.params.Cmos)
	fmt.Printf("Tracks: %d\n", d.params.Tracks)
	fmt.Printf("Rotation Speed: %d RPM\n", int(d.params.Rps)*60)
	fmt.Printf("Max Data Rate: %d kbps\n", d.params.MaxDtr)
}

// Close releases the device.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}
