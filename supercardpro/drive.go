package supercardpro

import (
	"fmt"

	"github.com/sergev/dumpfloppy/fdc"
	"github.com/sergev/dumpfloppy/flux"
)

// drive is a floppy drive attached to a SuperCard Pro.
type drive struct {
	client *Client
	unit   int
}

func init() {
	fdc.Register("supercardpro", Open)
}

// Open finds a SuperCard Pro, selects the drive and starts its motor.
// The adapter has two drive connectors, A and B, for units 0 and 1.
func Open(opts fdc.Options) (fdc.Controller, error) {
	if opts.Drive < 0 || opts.Drive > 1 {
		return nil, fmt.Errorf("SuperCard Pro has no drive unit %d", opts.Drive)
	}
	port, err := flux.FindPort(opts.Port, VendorID, ProductID, "SuperCard Pro")
	if err != nil {
		return nil, err
	}
	client, err := NewClient(port)
	if err != nil {
		return nil, err
	}
	d, err := newDrive(client, opts.Drive)
	if err != nil {
		client.Close()
		return nil, err
	}
	return flux.NewController(d, opts.Debug), nil
}

func newDrive(client *Client, unit int) (*drive, error) {
	if err := client.selectDrive(unit); err != nil {
		return nil, err
	}
	return &drive{client: client, unit: unit}, nil
}

func (d *drive) Seek(cyl int) error {
	return d.client.seekCylinder(cyl)
}

func (d *drive) SetHead(head int) error {
	return d.client.selectSide(head)
}

// ReadRevolution reads two revolutions and keeps the first one.
func (d *drive) ReadRevolution() ([]uint64, uint64, error) {
	fluxData, err := d.client.readFlux(2)
	if err != nil {
		return nil, 0, err
	}
	return decodeFlux(fluxData)
}

// Close stops the motor and releases the device.
func (d *drive) Close() error {
	d.client.deselectDrive(d.unit)
	return d.client.Close()
}

// PrintInfo prints the hardware and firmware versions.
func (d *drive) PrintInfo() {
	info, err := d.client.getSCPInfo()
	if err != nil {
		fmt.Printf("SuperCard Pro Firmware Version: Unknown\n")
	} else {
		fmt.Printf("SuperCard Pro Hardware Version: %d.%d\n", info.HardwareMajor, info.HardwareMinor)
		fmt.Printf("Firmware Version: %d.%d\n", info.FirmwareMajor, info.FirmwareMinor)
	}
	fmt.Printf("Serial Number: %s\n", d.client.serialNumber)
	fmt.Printf("Drive Unit: %c\n", 'A'+d.unit)
}
