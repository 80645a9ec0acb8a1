package kryoflux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sergev/dumpfloppy/flux"
)

// Out of band block types.
const (
	oobStreamInfo = 0x01
	oobIndex      = 0x02
	oobStreamEnd  = 0x03
	oobKFInfo     = 0x04
	oobEOF        = 0x0d
)

// StreamEnd result codes.
const (
	resultOK        = 0
	resultBuffering = 1
	resultNoIndex   = 2
)

// Limits for capturing a stream.
var (
	captureTimeout = 30 * time.Second
	idleTimeout    = 5 * time.Second
)

// IndexTiming describes one index pulse.
type IndexTiming struct {
	// Position in the stream of the flux reversal following the index.
	// Only flux bytes count, out of band blocks don't.
	StreamPosition uint32

	// Sample clocks from the previous flux reversal to the index.
	SampleCounter uint32

	// Index clock counter at the index.
	IndexCounter uint32
}

// fluxCell is one flux reversal of the stream.
type fluxCell struct {
	endPos uint32 // stream position after the cell
	end    uint64 // time of the reversal in sample clocks
}

// Stream is a decoded KryoFlux stream.
type Stream struct {
	cells       []fluxCell
	Index       []IndexTiming
	SampleClock float64 // Hz
	IndexClock  float64 // Hz
	Result      uint32  // StreamEnd result code
}

// captureStream reads a stream from the device, up to its end block.
func (c *Client) captureStream() ([]byte, error) {
	if err := c.streamOn(); err != nil {
		return nil, err
	}
	defer c.streamOff()

	var stream []byte
	buf := make([]byte, ReadBufferSize)
	scanned := 0
	start := time.Now()
	lastData := start
	for {
		if time.Since(start) > captureTimeout || time.Since(lastData) > idleTimeout {
			// Keep what arrived; it might still hold a revolution.
			if len(stream) > 0 {
				return stream, nil
			}
			return nil, errors.New("stream read timeout: no data received")
		}

		n, err := c.bulkIn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream data: %w", err)
		}
		if n == 0 {
			continue
		}
		lastData = time.Now()
		stream = append(stream, buf[:n]...)

		var end bool
		if scanned, end = endOfStream(stream, scanned); end {
			return stream, nil
		}
	}
}

// endOfStream scans the stream from offset for the end block. It returns
// the offset of the first incomplete block, and whether the end was found.
func endOfStream(data []byte, offset int) (int, bool) {
	for offset < len(data) {
		n := 1
		switch b := data[offset]; {
		case b <= 0x07, b == 0x09:
			n = 2
		case b == 0x0a, b == 0x0c:
			n = 3
		case b == 0x0d:
			if offset+4 > len(data) {
				return offset, false
			}
			if data[offset+1] == oobEOF {
				return offset, true
			}
			n = 4 + int(binary.LittleEndian.Uint16(data[offset+2:]))
		}
		if offset+n > len(data) {
			return offset, false
		}
		offset += n
	}
	return offset, false
}

// decodeStream parses stream data into flux reversals and index pulses.
func decodeStream(data []byte) (*Stream, error) {
	s := &Stream{
		SampleClock: DefaultSampleClock,
		IndexClock:  DefaultIndexClock,
	}
	var ticks uint64
	var pos uint32 // position counting flux bytes only

	for i := 0; i < len(data); {
		b := data[i]
		var value uint64
		n := 1
		switch {
		case b <= 0x07:
			// Flux2
			if i+2 > len(data) {
				return nil, fmt.Errorf("incomplete Flux2 block at offset %d", i)
			}
			value = uint64(b)<<8 | uint64(data[i+1])
			n = 2
		case b == 0x08, b == 0x09, b == 0x0a:
			// Nop1, Nop2, Nop3
			pos += uint32(b - 0x07)
			i += int(b - 0x07)
			continue
		case b == 0x0b:
			// Ovl16
			ticks += 0x10000
			pos++
			i++
			continue
		case b == 0x0c:
			// Flux3
			if i+3 > len(data) {
				return nil, fmt.Errorf("incomplete Flux3 block at offset %d", i)
			}
			value = uint64(data[i+1])<<8 | uint64(data[i+2])
			n = 3
		case b == 0x0d:
			size, err := s.decodeOOB(data[i:])
			if err != nil {
				return nil, fmt.Errorf("at offset %d: %w", i, err)
			}
			if size == 0 {
				return s, nil
			}
			i += size
			continue
		default:
			// Flux1
			value = uint64(b)
		}
		ticks += value
		pos += uint32(n)
		i += n
		s.cells = append(s.cells, fluxCell{endPos: pos, end: ticks})
	}
	return s, nil
}

// decodeOOB parses an out of band block and returns its size, or 0 at
// the end of the stream.
func (s *Stream) decodeOOB(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, errors.New("lost OOB header")
	}
	if data[1] == oobEOF {
		return 0, nil
	}
	if len(data) < 4 {
		return 0, errors.New("lost OOB header")
	}
	size := int(binary.LittleEndian.Uint16(data[2:4]))
	if len(data) < 4+size {
		return 0, errors.New("lost OOB data")
	}
	payload := data[4 : 4+size]

	switch data[1] {
	case oobIndex:
		if size < 12 {
			return 0, errors.New("short index block")
		}
		s.Index = append(s.Index, IndexTiming{
			StreamPosition: binary.LittleEndian.Uint32(payload[0:4]),
			SampleCounter:  binary.LittleEndian.Uint32(payload[4:8]),
			IndexCounter:   binary.LittleEndian.Uint32(payload[8:12]),
		})
	case oobStreamEnd:
		if size >= 8 {
			s.Result = binary.LittleEndian.Uint32(payload[4:8])
		}
	case oobKFInfo:
		s.parseInfo(string(payload))
	}
	return 4 + size, nil
}

// parseInfo takes the clocks from a hardware information block like
// "name=KryoFlux DiskSystem, version=3.00s, sck=24027428.5714285, ick=3003428.5714285625".
func (s *Stream) parseInfo(info string) {
	for _, field := range strings.Split(strings.TrimRight(info, "\x00"), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		hz, err := strconv.ParseFloat(value, 64)
		if err != nil || hz <= 0 {
			continue
		}
		switch key {
		case "sck":
			s.SampleClock = hz
		case "ick":
			s.IndexClock = hz
		}
	}
}

// indexTicks returns the time of an index pulse in sample clocks.
func (s *Stream) indexTicks(idx IndexTiming) uint64 {
	// The cell holding the stream position of the index.
	i := sort.Search(len(s.cells), func(i int) bool {
		return s.cells[i].endPos > idx.StreamPosition
	})
	var prev uint64
	if i > 0 {
		prev = s.cells[i-1].end
	}
	return prev + uint64(idx.SampleCounter)
}

// Revolution returns the flux reversals between the first two index
// pulses, in nanoseconds from the first one, and the duration of that
// revolution.
func (s *Stream) Revolution() ([]uint64, uint64, error) {
	switch s.Result {
	case resultOK:
	case resultNoIndex:
		return nil, 0, fmt.Errorf("%w: no index signal", flux.ErrNoFlux)
	case resultBuffering:
		return nil, 0, errors.New("stream error: buffering problem")
	default:
		return nil, 0, fmt.Errorf("stream error: result code %d", s.Result)
	}
	if len(s.Index) < 2 {
		return nil, 0, flux.ErrNoFlux
	}

	first := s.indexTicks(s.Index[0])
	second := s.indexTicks(s.Index[1])
	revolution := uint64(float64(s.Index[1].IndexCounter-s.Index[0].IndexCounter) * 1e9 / s.IndexClock)

	var transitions []uint64
	for _, cell := range s.cells {
		if cell.end <= first {
			continue
		}
		if cell.end > second {
			break
		}
		transitions = append(transitions, uint64(float64(cell.end-first)*1e9/s.SampleClock))
	}
	if len(transitions) == 0 {
		return nil, revolution, flux.ErrNoFlux
	}
	return transitions, revolution, nil
}
