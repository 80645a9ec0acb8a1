package greaseweazle

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sergev/dumpfloppy/flux"
)

// readN28 decodes a 28-bit value from Greaseweazle N28 encoding
// Returns the decoded value and the number of bytes consumed
func readN28(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("insufficient data for N28 encoding at offset %d", offset)
	}

	b0 := data[offset]
	b1 := data[offset+1]
	b2 := data[offset+2]
	b3 := data[offset+3]

	value := ((uint32(b0) & 0xfe) >> 1) |
		((uint32(b1) & 0xfe) << 6) |
		((uint32(b2) & 0xfe) << 13) |
		((uint32(b3) & 0xfe) << 20)

	return value, 4, nil
}

// ReadFlux reads raw flux data from the current track
// ticks: maximum ticks to read (0 = no limit)
// maxIndex: maximum index pulses to read (0 = no limit, typically 2 for 2 revolutions)
func (c *Client) ReadFlux(ticks uint32, maxIndex uint16) ([]byte, error) {
	cmd := make([]byte, 8)
	cmd[0] = CMD_READ_FLUX
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], ticks)
	binary.LittleEndian.PutUint16(cmd[6:8], maxIndex)

	if err := c.doCommand(cmd); err != nil {
		return nil, fmt.Errorf("failed to send READ_FLUX command: %w", err)
	}

	// Read flux data until we encounter a 0 byte (end of stream marker).
	// Reading byte by byte leaves the following ACK in the port.
	var data []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.port, buf); err != nil {
			return nil, fmt.Errorf("failed to read flux data: %w", err)
		}
		if buf[0] == 0 {
			return data, nil
		}
		data = append(data, buf[0])
	}
}

// decodeFlux converts a Greaseweazle flux stream into transition times
// in nanoseconds from the first index pulse. Only transitions up to the
// second index pulse are kept. It also returns the duration of that
// revolution, or 0 if the stream holds fewer than two index pulses.
func decodeFlux(fluxData []byte, sampleFreqHz uint32) ([]uint64, uint64, error) {
	tickPeriodNs := 1e9 / float64(sampleFreqHz)

	var transitions []uint64
	var indexPulses []uint64 // in ticks
	ticks := uint64(0)

	i := 0
	for i < len(fluxData) {
		b := fluxData[i]

		switch {
		case b == 0xFF:
			if i+1 >= len(fluxData) {
				return nil, 0, fmt.Errorf("incomplete opcode at offset %d", i)
			}
			opcode := fluxData[i+1]
			n28, consumed, err := readN28(fluxData, i+2)
			if err != nil {
				return nil, 0, err
			}
			i += 2 + consumed

			switch opcode {
			case FLUXOP_INDEX:
				// Index pulse arrived n28 ticks after the last transition.
				indexPulses = append(indexPulses, ticks+uint64(n28))
			case FLUXOP_SPACE:
				ticks += uint64(n28)
			default:
				return nil, 0, fmt.Errorf("unknown opcode 0x%02x at offset %d", opcode, i-consumed-1)
			}
			continue

		case b < 250:
			// Direct interval: 1-249 ticks
			ticks += uint64(b)
			i++

		default:
			// Extended interval: 250-1524 ticks
			if i+1 >= len(fluxData) {
				return nil, 0, fmt.Errorf("incomplete extended interval at offset %d", i)
			}
			ticks += 250 + uint64(b-250)*255 + uint64(fluxData[i+1]) - 1
			i += 2
		}

		if len(indexPulses) == 1 && ticks >= indexPulses[0] {
			transitions = append(transitions, uint64(float64(ticks-indexPulses[0])*tickPeriodNs))
		}
	}

	var revolution uint64
	if len(indexPulses) >= 2 {
		revolution = uint64(float64(indexPulses[1]-indexPulses[0]) * tickPeriodNs)
	}
	if len(transitions) == 0 {
		return nil, revolution, flux.ErrNoFlux
	}
	return transitions, revolution, nil
}

// readRevolution reads one revolution of the current track.
func readRevolution(drive fluxDevice, sampleFreqHz uint32) ([]uint64, uint64, error) {
	data, err := drive.ReadFlux(0, 2)
	if err != nil {
		return nil, 0, err
	}
	if err := drive.GetFluxStatus(); err != nil {
		return nil, 0, fmt.Errorf("flux status: %w", err)
	}
	return decodeFlux(data, sampleFreqHz)
}
