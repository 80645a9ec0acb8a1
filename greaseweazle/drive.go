package greaseweazle

import (
	"errors"
	"fmt"

	"github.com/sergev/dumpfloppy/fdc"
	"github.com/sergev/dumpfloppy/flux"
)

// fluxDevice is the part of the device protocol needed to read tracks.
type fluxDevice interface {
	Seek(cylinder byte) error
	SetHead(head byte) error
	ReadFlux(ticks uint32, maxIndex uint16) ([]byte, error)
	GetFluxStatus() error
}

// drive is a floppy drive attached to a Greaseweazle.
type drive struct {
	client       *Client // nil when the device is faked
	dev          fluxDevice
	unit         byte
	sampleFreqHz uint32
}

func init() {
	fdc.Register("greaseweazle", Open)
}

// Open finds a Greaseweazle, selects the drive unit and starts its motor.
func Open(opts fdc.Options) (fdc.Controller, error) {
	port, err := flux.FindPort(opts.Port, VendorID, ProductID, "Greaseweazle")
	if err != nil {
		return nil, err
	}
	client, err := NewClient(port)
	if err != nil {
		return nil, err
	}

	unit := byte(opts.Drive)
	if err := client.SelectDrive(unit); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to select drive %d: %w", unit, err)
	}
	if err := client.SetMotor(unit, true); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to turn on motor: %w", err)
	}

	d := &drive{
		client:       client,
		dev:          client,
		unit:         unit,
		sampleFreqHz: client.firmwareInfo.SampleFreqHz,
	}
	return flux.NewController(d, opts.Debug), nil
}

func newController(dev fluxDevice, sampleFreqHz uint32, debug bool) *flux.Controller {
	return flux.NewController(&drive{dev: dev, sampleFreqHz: sampleFreqHz}, debug)
}

func (d *drive) Seek(cyl int) error {
	return d.dev.Seek(byte(cyl))
}

func (d *drive) SetHead(head int) error {
	return d.dev.SetHead(byte(head))
}

// ReadRevolution reads the track from one index pulse to the next.
// A missing index pulse means there is no disk to read.
func (d *drive) ReadRevolution() ([]uint64, uint64, error) {
	transitions, revolution, err := readRevolution(d.dev, d.sampleFreqHz)
	var ack AckError
	if errors.As(err, &ack) && ack == ACK_NO_INDEX {
		return nil, 0, fmt.Errorf("%w: %w", flux.ErrNoFlux, err)
	}
	return transitions, revolution, err
}

// Close stops the motor and releases the device.
func (d *drive) Close() error {
	if d.client == nil {
		return nil
	}
	d.client.SetMotor(d.unit, false)
	d.client.Deselect()
	return d.client.Close()
}

// PrintInfo prints the firmware information and the drive unit.
func (d *drive) PrintInfo() {
	if d.client == nil {
		return
	}
	d.client.PrintFirmware()
	fmt.Printf("Drive Unit: %d\n", d.unit)
}
