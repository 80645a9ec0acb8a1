package mfm

import "github.com/sergev/dumpfloppy/pll"

// Decoder recovers MFM half-bit cells from flux transition times.
type Decoder struct {
	pll.State
	flux *pll.FluxIterator
}

// NewDecoder creates a decoder over transition times in nanoseconds,
// for a data rate in kilobits per second.
func NewDecoder(transitions []uint64, bitRateKhz uint16) *Decoder {
	d := &Decoder{flux: pll.NewFluxIterator(transitions)}
	d.Init(bitRateKhz)
	return d
}

// NextBit returns the next cell: true when it holds a transition.
func (d *Decoder) NextBit() bool {
	return d.State.NextBit(d.flux)
}

// IsDone reports whether all transitions have been consumed.
func (d *Decoder) IsDone() bool {
	return d.flux.IsDone()
}

// DecodeBitcells runs the decoder over all transitions and returns the
// cells packed MSB first, ready for a Reader.
func DecodeBitcells(transitions []uint64, bitRateKhz uint16) []byte {
	d := NewDecoder(transitions, bitRateKhz)
	var out []byte
	var cur byte
	n := 0
	for !d.IsDone() || d.Flux >= d.Period/2 {
		if d.NextBit() {
			cur |= 1 << (7 - n)
		}
		n++
		if n == 8 {
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	if n > 0 {
		out = append(out, cur)
	}
	return out
}
