package supercardpro

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sergev/dumpfloppy/flux"
)

// Flux samples are counted in units of 25 ns.
const tickNs = 25

// Size of the flux buffer in the device memory.
const ramSize = 512 * 1024

// FluxInfo contains information about a single revolution of flux data
type FluxInfo struct {
	IndexTime  uint32 // duration of the revolution, in ticks
	NrBitcells uint32 // number of flux samples
}

// FluxData contains flux information and data for up to 5 revolutions
type FluxData struct {
	Info [5]FluxInfo
	Data []byte // raw samples, 16-bit big-endian intervals
}

// readFlux reads flux data for the specified number of revolutions,
// starting at the index pulse.
func (c *Client) readFlux(nrRevs int) (*FluxData, error) {
	// [nr_revs, 1] where 1 means wait for the index
	if err := c.scpSend(SCPCMD_READFLUX, []byte{byte(nrRevs), 1}, nil); err != nil {
		return nil, fmt.Errorf("failed to send READFLUX command: %w", err)
	}

	if err := c.scpSend(SCPCMD_GETFLUXINFO, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to send GETFLUXINFO command: %w", err)
	}
	// 5 revolutions of index time and sample count
	infoData := make([]byte, 40)
	if _, err := io.ReadFull(c.port, infoData); err != nil {
		return nil, fmt.Errorf("failed to read flux info: %w", err)
	}

	fluxData := &FluxData{}
	for i := range fluxData.Info {
		offset := i * 8
		fluxData.Info[i].IndexTime = binary.BigEndian.Uint32(infoData[offset : offset+4])
		fluxData.Info[i].NrBitcells = binary.BigEndian.Uint32(infoData[offset+4 : offset+8])
	}

	ramCmd := make([]byte, 8)
	binary.BigEndian.PutUint32(ramCmd[0:4], 0)
	binary.BigEndian.PutUint32(ramCmd[4:8], ramSize)
	fluxData.Data = make([]byte, ramSize)
	if err := c.scpSend(SCPCMD_SENDRAM_USB, ramCmd, fluxData.Data); err != nil {
		return nil, fmt.Errorf("failed to read flux data: %w", err)
	}
	return fluxData, nil
}

// decodeFlux converts the first revolution of the flux data into
// transition times in nanoseconds from the index pulse. It also returns
// the duration of the revolution.
func decodeFlux(fluxData *FluxData) ([]uint64, uint64, error) {
	indexTime := fluxData.Info[0].IndexTime
	if indexTime == 0 {
		return nil, 0, flux.ErrNoFlux
	}
	revolution := uint64(indexTime) * tickNs

	var transitions []uint64
	ticks := uint64(0)
	for offset := 0; offset+2 <= len(fluxData.Data); offset += 2 {
		val := binary.BigEndian.Uint16(fluxData.Data[offset:])
		if val == 0 {
			// Overflow: no transition for 0x10000 ticks.
			ticks += 0x10000
			if ticks > uint64(indexTime) {
				break
			}
			continue
		}
		ticks += uint64(val)
		if ticks > uint64(indexTime) {
			break
		}
		transitions = append(transitions, ticks*tickNs)
	}

	if len(transitions) == 0 {
		return nil, revolution, flux.ErrNoFlux
	}
	return transitions, revolution, nil
}
