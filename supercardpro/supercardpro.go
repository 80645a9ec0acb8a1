// Package supercardpro reads floppy disks through a SuperCard Pro USB
// flux adapter, presenting it as a floppy controller.
package supercardpro

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	VendorID  = 0x0403
	ProductID = 0x6015
)

const baudRate = 38400

// SCP command codes
const (
	SCPCMD_SELA        = 0x80 // select drive A
	SCPCMD_SELB        = 0x81 // select drive B
	SCPCMD_DSELA       = 0x82 // deselect drive A
	SCPCMD_DSELB       = 0x83 // deselect drive B
	SCPCMD_MTRAON      = 0x84 // turn motor A on
	SCPCMD_MTRBON      = 0x85 // turn motor B on
	SCPCMD_MTRAOFF     = 0x86 // turn motor A off
	SCPCMD_MTRBOFF     = 0x87 // turn motor B off
	SCPCMD_SEEK0       = 0x88 // seek track 0
	SCPCMD_STEPTO      = 0x89 // step to specified track
	SCPCMD_SIDE        = 0x8d // select side
	SCPCMD_READFLUX    = 0xa0 // read flux level
	SCPCMD_GETFLUXINFO = 0xa1 // get info for last flux read
	SCPCMD_SENDRAM_USB = 0xa9 // send data from buffer to USB
	SCPCMD_SCPINFO     = 0xd0 // get SCP info
)

// SCP status codes
const (
	SCP_STATUS_OK = 0x4f // command successful
)

// Time for the head to settle after a seek.
var settleDelay = 20 * time.Millisecond

// Client wraps a serial port connection to a SuperCard Pro device
type Client struct {
	port         io.ReadWriteCloser
	serialNumber string
}

// NewClient opens the serial port of a SuperCard Pro.
func NewClient(portDetails *enumerator.PortDetails) (*Client, error) {
	port, err := serial.Open(portDetails.Name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}
	return &Client{
		port:         port,
		serialNumber: portDetails.SerialNumber,
	}, nil
}

// Close closes the serial port connection
func (c *Client) Close() error {
	return c.port.Close()
}

// StatusError is a failure status returned by the device.
type StatusError struct {
	Cmd    byte
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("SuperCard Pro command 0x%02x failed with status 0x%02x", e.Cmd, e.Status)
}

// scpSend sends a command to the SuperCard Pro device using the SCP protocol
// Protocol: [cmd byte][len byte][data...][checksum byte]
// Checksum = 0x4a + sum of all bytes before it
// Response: [cmd echo byte][status byte]
// For SCPCMD_SENDRAM_USB, readData is filled before the response arrives.
func (c *Client) scpSend(cmd byte, data []byte, readData []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("data length %d exceeds maximum 255", len(data))
	}

	packet := make([]byte, 0, 3+len(data))
	packet = append(packet, cmd, byte(len(data)))
	packet = append(packet, data...)
	checksum := byte(0x4a)
	for _, b := range packet {
		checksum += b
	}
	packet = append(packet, checksum)

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("failed to write command packet: %w", err)
	}

	if cmd == SCPCMD_SENDRAM_USB && readData != nil {
		if _, err := io.ReadFull(c.port, readData); err != nil {
			return fmt.Errorf("failed to read RAM data: %w", err)
		}
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("failed to read command response: %w", err)
	}
	if response[0] != cmd {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, received 0x%02x", cmd, response[0])
	}
	if response[1] != SCP_STATUS_OK {
		return &StatusError{Cmd: cmd, Status: response[1]}
	}
	return nil
}

// SCPInfo contains hardware and firmware version information
type SCPInfo struct {
	HardwareMajor uint8
	HardwareMinor uint8
	FirmwareMajor uint8
	FirmwareMinor uint8
}

// getSCPInfo retrieves hardware and firmware version information from the device
func (c *Client) getSCPInfo() (SCPInfo, error) {
	var info SCPInfo
	if err := c.scpSend(SCPCMD_SCPINFO, nil, nil); err != nil {
		return info, fmt.Errorf("failed to send SCPINFO command: %w", err)
	}

	// Read 2 bytes: [hardware_version][firmware_version]
	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return info, fmt.Errorf("failed to read version info: %w", err)
	}

	// Upper nibble is the major version, lower nibble the minor.
	info.HardwareMajor = response[0] >> 4
	info.HardwareMinor = response[0] & 0x0f
	info.FirmwareMajor = response[1] >> 4
	info.FirmwareMinor = response[1] & 0x0f
	return info, nil
}

// selectDrive selects a drive and turns on its motor
func (c *Client) selectDrive(unit int) error {
	sel, motor := byte(SCPCMD_SELA), byte(SCPCMD_MTRAON)
	if unit == 1 {
		sel, motor = SCPCMD_SELB, SCPCMD_MTRBON
	}
	if err := c.scpSend(sel, nil, nil); err != nil {
		return fmt.Errorf("failed to select drive %d: %w", unit, err)
	}
	if err := c.scpSend(motor, nil, nil); err != nil {
		return fmt.Errorf("failed to turn on motor for drive %d: %w", unit, err)
	}
	return nil
}

// deselectDrive turns off the motor of a drive and deselects it
func (c *Client) deselectDrive(unit int) error {
	motor, desel := byte(SCPCMD_MTRAOFF), byte(SCPCMD_DSELA)
	if unit == 1 {
		motor, desel = SCPCMD_MTRBOFF, SCPCMD_DSELB
	}
	if err := c.scpSend(motor, nil, nil); err != nil {
		return fmt.Errorf("failed to turn off motor for drive %d: %w", unit, err)
	}
	if err := c.scpSend(desel, nil, nil); err != nil {
		return fmt.Errorf("failed to deselect drive %d: %w", unit, err)
	}
	return nil
}

// seekCylinder moves the head to the cylinder and lets it settle.
func (c *Client) seekCylinder(cyl int) error {
	if cyl == 0 {
		if err := c.scpSend(SCPCMD_SEEK0, nil, nil); err != nil {
			return fmt.Errorf("failed to seek to track 0: %w", err)
		}
	} else {
		if err := c.scpSend(SCPCMD_STEPTO, []byte{byte(cyl)}, nil); err != nil {
			return fmt.Errorf("failed to step to cylinder %d: %w", cyl, err)
		}
	}
	time.Sleep(settleDelay)
	return nil
}

// selectSide selects the head to read with.
func (c *Client) selectSide(side int) error {
	if err := c.scpSend(SCPCMD_SIDE, []byte{byte(side)}, nil); err != nil {
		return fmt.Errorf("failed to select side %d: %w", side, err)
	}
	return nil
}
