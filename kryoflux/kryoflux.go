// Package kryoflux reads floppy disks through a KryoFlux USB flux
// adapter, presenting it as a floppy controller.
package kryoflux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124
	Interface = 1

	EndpointBulkOut = 0x01
	EndpointBulkIn  = 0x82

	ControlRequestType = 0xc3 // REQTYPE_IN_VENDOR_OTHER

	RequestReset    = 0x05
	RequestDevice   = 0x06
	RequestMotor    = 0x07
	RequestDensity  = 0x08
	RequestSide     = 0x09
	RequestTrack    = 0x0a
	RequestStream   = 0x0b
	RequestMinTrack = 0x0c
	RequestMaxTrack = 0x0d
	RequestStatus   = 0x80
	RequestInfo     = 0x81

	FWLoadAddress    = 0x00202000
	FWWriteChunkSize = 16384
	FWReadChunkSize  = 6400

	ReadBufferSize = 6400
	StreamOnValue  = 0x601

	// Default clocks in Hz
	DefaultSampleClock = 24027428.57142857
	DefaultIndexClock  = 3003428.5714285625
)

// Waits for the device to come back after a firmware upload.
const (
	reopenRetries = 25
	reopenDelay   = 200 * time.Millisecond
)

// controlDevice issues USB control transfers, like *gousb.Device.
type controlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Client wraps a USB connection to a KryoFlux device
type Client struct {
	ctx     *gousb.Context
	usb     *gousb.Device
	dev     controlDevice
	done    func()
	bulkOut io.Writer
	bulkIn  io.Reader

	info1, info2 string // from REQUEST_INFO 1 and 2
}

// NewClient opens the KryoFlux, uploads the firmware if the device runs
// its bootloader, and resets it.
func NewClient(firmwarePath string) (*Client, error) {
	ctx := gousb.NewContext()
	client, err := openDevice(ctx, 1)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	if !client.checkFirmwarePresent() {
		firmware, err := loadFirmware(firmwarePath)
		if err != nil {
			client.Close()
			return nil, err
		}
		fmt.Printf("Uploading KryoFlux firmware...\n")
		if err := client.uploadFirmware(firmware); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to upload firmware: %w", err)
		}

		// The device re-enumerates with the new firmware.
		client.closeDevice()
		time.Sleep(time.Second)
		client, err = openDevice(ctx, reopenRetries)
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("after firmware upload: %w", err)
		}
		if !client.checkFirmwarePresent() {
			client.Close()
			return nil, errors.New("firmware not present after upload")
		}
	}

	if err := client.reset(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reset device: %w", err)
	}
	return client, nil
}

// openDevice finds the KryoFlux and claims its interface, trying a
// number of times while the device enumerates.
func openDevice(ctx *gousb.Context, tries int) (*Client, error) {
	var err error
	for try := 0; try < tries; try++ {
		if try > 0 {
			time.Sleep(reopenDelay)
		}
		var c *Client
		if c, err = claimDevice(ctx); err == nil {
			return c, nil
		}
	}
	return nil, err
}

func claimDevice(ctx *gousb.Context) (*Client, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == VendorID && uint16(desc.Product) == ProductID
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("KryoFlux device not found (VID=0x%04X PID=0x%04X)", VendorID, ProductID)
	}
	dev := devs[0]
	for _, d := range devs[1:] {
		d.Close()
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to get config 1: %w", err)
	}
	intf, err := cfg.Interface(Interface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", Interface, err)
	}
	done := func() {
		intf.Close()
		cfg.Close()
	}

	bulkOut, err := intf.OutEndpoint(EndpointBulkOut)
	if err != nil {
		done()
		dev.Close()
		return nil, fmt.Errorf("failed to open bulk out endpoint: %w", err)
	}
	bulkIn, err := intf.InEndpoint(EndpointBulkIn)
	if err != nil {
		done()
		dev.Close()
		return nil, fmt.Errorf("failed to open bulk in endpoint: %w", err)
	}

	return &Client{
		ctx:     ctx,
		usb:     dev,
		dev:     dev,
		done:    done,
		bulkOut: bulkOut,
		bulkIn:  bulkIn,
	}, nil
}

// loadFirmware reads the firmware image; a leading ~/ stands for the
// home directory.
func loadFirmware(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("KryoFlux needs its firmware uploaded: set firmware in the drive profile")
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine user home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read KryoFlux firmware: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("KryoFlux firmware %s is empty", path)
	}
	return data, nil
}

// controlIn performs a control transfer IN request. The device answers
// with text holding "=index" to acknowledge it.
func (c *Client) controlIn(request byte, index uint16) (string, error) {
	buf := make([]byte, 512)
	length, err := c.dev.Control(ControlRequestType, request, 0, index, buf)
	if err != nil {
		return "", fmt.Errorf("control transfer 0x%02x failed: %w", request, err)
	}
	if length > len(buf) {
		length = len(buf)
	}
	response := strings.TrimRight(string(buf[:length]), "\x00")

	_, value, found := strings.Cut(response, "=")
	if !found {
		return response, nil
	}
	// The value may be followed by a comma and more fields.
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil || n != int(index&0xff) {
		return "", fmt.Errorf("request 0x%02x: response %q does not match index %d", request, response, index&0xff)
	}
	return response, nil
}

// checkFirmwarePresent reports whether the device runs the firmware:
// the bootloader doesn't answer the status request.
func (c *Client) checkFirmwarePresent() bool {
	last := c.tryStatus()
	for i := 0; i < 10; i++ {
		present := c.tryStatus()
		if present == last {
			return present
		}
		last = present
	}
	return last
}

func (c *Client) tryStatus() bool {
	_, err := c.controlIn(RequestStatus, 0)
	return err == nil
}

// sendBootloaderString sends a command to the bootloader.
func (c *Client) sendBootloaderString(s string) error {
	_, err := c.bulkOut.Write([]byte(s))
	return err
}

// recvBootloaderString receives a reply ending with LF CR.
func (c *Client) recvBootloaderString(size int) (string, error) {
	buf := make([]byte, size)
	total := 0
	for total < size {
		n, err := c.bulkIn.Read(buf[total:])
		if err != nil {
			return "", err
		}
		total += n
		if total >= 2 && buf[total-1] == '\r' && buf[total-2] == '\n' {
			break
		}
	}
	return string(buf[:total]), nil
}

// uploadFirmware writes the firmware through the bootloader, reads it
// back to verify, and starts it.
func (c *Client) uploadFirmware(fw []byte) error {
	for _, query := range []string{"N#", "V#"} {
		if err := c.sendBootloaderString(query); err != nil {
			return fmt.Errorf("failed to send %s command: %w", query, err)
		}
		if _, err := c.recvBootloaderString(512); err != nil {
			return fmt.Errorf("failed to query bootloader (%s): %w", query, err)
		}
	}

	size := len(fw)
	if err := c.sendBootloaderString(fmt.Sprintf("S%08x,%08x#", FWLoadAddress, size)); err != nil {
		return fmt.Errorf("failed to send Set command: %w", err)
	}
	for offs := 0; offs < size; offs += FWWriteChunkSize {
		end := min(offs+FWWriteChunkSize, size)
		if _, err := c.bulkOut.Write(fw[offs:end]); err != nil {
			return fmt.Errorf("failed to write firmware chunk at offset %d: %w", offs, err)
		}
	}

	if err := c.sendBootloaderString(fmt.Sprintf("R%08x,%08x#", FWLoadAddress, size)); err != nil {
		return fmt.Errorf("failed to send Read command: %w", err)
	}
	verify := make([]byte, FWReadChunkSize)
	for offs := 0; offs < size; {
		chunk := min(FWReadChunkSize, size-offs)
		n, err := c.bulkIn.Read(verify[:chunk])
		if err != nil {
			return fmt.Errorf("failed to read firmware chunk for verification at offset %d: %w", offs, err)
		}
		n = min(n, chunk)
		for i := 0; i < n; i++ {
			if verify[i] != fw[offs+i] {
				return fmt.Errorf("firmware verification failed at offset %d", offs+i)
			}
		}
		offs += n
	}

	if err := c.sendBootloaderString(fmt.Sprintf("G%08x#", FWLoadAddress)); err != nil {
		return fmt.Errorf("failed to send Go command: %w", err)
	}
	return nil
}

// reset resets the device and fetches its description.
func (c *Client) reset() error {
	if _, err := c.controlIn(RequestReset, 0); err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	info1, err := c.controlIn(RequestInfo, 1)
	if err != nil {
		return fmt.Errorf("info request 1 failed: %w", err)
	}
	info2, err := c.controlIn(RequestInfo, 2)
	if err != nil {
		return fmt.Errorf("info request 2 failed: %w", err)
	}
	c.info1 = strings.TrimSpace(info1)
	c.info2 = strings.TrimSpace(info2)
	return nil
}

// configure selects the drive, its density and the range of tracks.
func (c *Client) configure(device, density, minTrack, maxTrack int) error {
	steps := []struct {
		request byte
		value   int
		what    string
	}{
		{RequestDevice, device, "device"},
		{RequestDensity, density, "density"},
		{RequestMinTrack, minTrack, "min track"},
		{RequestMaxTrack, maxTrack, "max track"},
	}
	for _, s := range steps {
		if _, err := c.controlIn(s.request, uint16(s.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.what, err)
		}
	}
	return nil
}

func (c *Client) setMotor(on bool) error {
	value, state := uint16(0), "off"
	if on {
		value, state = 1, "on"
	}
	if _, err := c.controlIn(RequestMotor, value); err != nil {
		return fmt.Errorf("failed to turn motor %s: %w", state, err)
	}
	return nil
}

func (c *Client) setTrack(track int) error {
	if _, err := c.controlIn(RequestTrack, uint16(track)); err != nil {
		return fmt.Errorf("failed to set track %d: %w", track, err)
	}
	return nil
}

func (c *Client) setSide(side int) error {
	if _, err := c.controlIn(RequestSide, uint16(side)); err != nil {
		return fmt.Errorf("failed to set side %d: %w", side, err)
	}
	return nil
}

func (c *Client) streamOn() error {
	if _, err := c.controlIn(RequestStream, StreamOnValue); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

func (c *Client) streamOff() error {
	if _, err := c.controlIn(RequestStream, 0); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

// closeDevice releases the interface and the device, keeping the context.
func (c *Client) closeDevice() {
	if c.done != nil {
		c.done()
		c.done = nil
	}
	if c.usb != nil {
		c.usb.Close()
		c.usb = nil
	}
}

// Close closes the USB connection
func (c *Client) Close() error {
	c.closeDevice()
	if c.ctx != nil {
		return c.ctx.Close()
	}
	return nil
}
