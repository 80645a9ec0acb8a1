package mfm

import "errors"

var errNoBitcells = errors.New("empty MFM data")

// GenerateFluxTransitions converts packed MFM cells into transition times,
// in nanoseconds from the start of the track: each cell holding a one
// ends with a transition.
func GenerateFluxTransitions(mfmBits []byte, bitRateKhz uint16) ([]uint64, error) {
	if len(mfmBits) == 0 {
		return nil, errNoBitcells
	}
	cellNs := uint64(1e9 / (float64(bitRateKhz) * 1000 * 2))

	var transitions []uint64
	now := uint64(0)
	for i := 0; i < len(mfmBits)*8; i++ {
		now += cellNs
		if mfmBits[i/8]&(0x80>>(i%8)) != 0 {
			transitions = append(transitions, now)
		}
	}
	return transitions, nil
}
