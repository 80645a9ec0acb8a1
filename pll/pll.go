// Package pll recovers the bit clock of a floppy track from the times of
// its flux transitions, the way the SuperCard Pro software does.
package pll

// Loop constants, in percent.
const (
	ClockMaxAdj  = 10 // period may drift this far from the ideal, either way
	PeriodAdjPct = 5  // share of the phase error applied to the period
	PhaseAdjPct  = 60 // share of the phase error applied to the phase
)

// FluxSource provides flux intervals for the loop.
type FluxSource interface {
	// NextFlux returns the time until the next transition in nanoseconds,
	// or 0 when there are no more transitions.
	NextFlux() uint64
}

// FluxIterator provides flux intervals from absolute transition times.
type FluxIterator struct {
	transitions []uint64 // nanoseconds since the index pulse
	index       int
	lastTime    uint64
}

// NewFluxIterator creates an iterator over ascending transition times.
func NewFluxIterator(transitions []uint64) *FluxIterator {
	return &FluxIterator{transitions: transitions}
}

func (fi *FluxIterator) NextFlux() uint64 {
	if fi.index >= len(fi.transitions) {
		return 0
	}
	next := fi.transitions[fi.index]
	interval := next - fi.lastTime
	fi.lastTime = next
	fi.index++
	return interval
}

// IsDone returns true if all transitions have been consumed.
func (fi *FluxIterator) IsDone() bool {
	return fi.index >= len(fi.transitions)
}

// State is the state of the phase-locked loop. All times are in
// nanoseconds; one period is one MFM half-bit cell.
type State struct {
	PeriodIdeal  float64
	Period       float64
	Flux         float64 // flux time not yet assigned to a cell
	Time         float64 // total time elapsed
	ClockedZeros int     // cells since the last transition
}

// Init locks the loop to the nominal cell period for a data rate in
// kilobits per second.
func (s *State) Init(kbps uint16) {
	*s = State{PeriodIdeal: 1e6 / float64(kbps) / 2}
	s.Period = s.PeriodIdeal
}

// NextBit advances the loop by one cell and reports whether the cell
// holds a transition. An exhausted source yields zeros.
func (s *State) NextBit(source FluxSource) bool {
	for s.Flux < s.Period/2 {
		interval := source.NextFlux()
		if interval == 0 {
			s.ClockedZeros++
			return false
		}
		s.Flux += float64(interval)
	}

	s.Time += s.Period
	s.Flux -= s.Period

	if s.Flux >= s.Period/2 {
		s.ClockedZeros++
		return false
	}

	// Transition in this cell: nudge the period by the phase mismatch
	// while in sync, otherwise relax it towards the ideal.
	if s.ClockedZeros <= 3 {
		s.Period += s.Flux * PeriodAdjPct / 100
	} else {
		s.Period += (s.PeriodIdeal - s.Period) * PeriodAdjPct / 100
	}

	pMin := s.PeriodIdeal * (100 - ClockMaxAdj) / 100
	pMax := s.PeriodIdeal * (100 + ClockMaxAdj) / 100
	if s.Period < pMin {
		s.Period = pMin
	}
	if s.Period > pMax {
		s.Period = pMax
	}

	// Pull the cell boundary towards the observed transition.
	newFlux := s.Flux * (100 - PhaseAdjPct) / 100
	s.Time += s.Flux - newFlux
	s.Flux = newFlux

	s.ClockedZeros = 0
	return true
}
