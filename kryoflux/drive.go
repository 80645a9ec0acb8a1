package kryoflux

import (
	"fmt"

	"github.com/sergev/dumpfloppy/fdc"
	"github.com/sergev/dumpfloppy/flux"
)

// Highest track the head may be stepped to.
const maxTrack = 83

// drive is a floppy drive attached to a KryoFlux.
type drive struct {
	client *Client
	unit   int
}

func init() {
	fdc.Register("kryoflux", Open)
}

// Open finds the KryoFlux, uploading its firmware when needed, and
// starts the motor of the drive.
func Open(opts fdc.Options) (fdc.Controller, error) {
	if opts.Drive < 0 || opts.Drive > 1 {
		return nil, fmt.Errorf("KryoFlux has no drive unit %d", opts.Drive)
	}
	client, err := NewClient(opts.Firmware)
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
	if err := client.configure(unit, 0, 0, maxTrack); err != nil {
		return nil, err
	}
	if err := client.setMotor(true); err != nil {
		return nil, err
	}
	return &drive{client: client, unit: unit}, nil
}

func (d *drive) Seek(cyl int) error {
	return d.client.setTrack(cyl)
}

func (d *drive) SetHead(head int) error {
	return d.client.setSide(head)
}

// ReadRevolution captures a stream of several revolutions and keeps
// the first whole one.
func (d *drive) ReadRevolution() ([]uint64, uint64, error) {
	data, err := d.client.captureStream()
	if err != nil {
		return nil, 0, err
	}
	s, err := decodeStream(data)
	if err != nil {
		return nil, 0, err
	}
	return s.Revolution()
}

// Close stops the motor and releases the device.
func (d *drive) Close() error {
	d.client.setMotor(false)
	return d.client.Close()
}

// PrintInfo prints the device description.
func (d *drive) PrintInfo() {
	fmt.Printf("KryoFlux Adapter Info:\n")
	fmt.Printf("%s\n", d.client.info1)
	fmt.Printf("%s\n", d.client.info2)
	fmt.Printf("Drive Unit: %d\n", d.unit)
}
