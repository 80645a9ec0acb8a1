package disk

import (
	"errors"
	"fmt"
	"time"
)

// Capacity ceilings, reflecting the densest real media.
const (
	MaxSectors = 256 // sectors per track
	MaxCyls    = 256 // physical cylinders per disk
	MaxHeads   = 2   // physical heads per disk
)

var (
	ErrTooManySectors = errors.New("too many sectors in track")
	ErrMixedFormats   = errors.New("mixed sector formats within track")
	ErrGeometry       = errors.New("disk geometry out of range")
)

// SectorBytes converts an FDC sector size code to a size in bytes.
func SectorBytes(code uint8) int {
	return 128 << code
}

// SectorStatus tells whether the payload of a sector has been acquired.
type SectorStatus int

const (
	SectorMissing SectorStatus = iota
	SectorBad
	SectorGood
)

// Address is the logical cylinder/head/sector recorded in a sector header.
type Address struct {
	Cyl    uint8
	Head   uint8
	Sector uint8
}

// Sector is one sector of a track, indexed by its physical position.
// A sector owns its payload; the payload is present exactly when the
// status is SectorGood.
type Sector struct {
	Status  SectorStatus
	Addr    Address
	Phys    int // position in the track, in order of passing the head
	Deleted bool
	data    []byte
}

// Data returns the payload, or nil unless the sector is good.
func (s *Sector) Data() []byte {
	return s.data
}

// Fill hands a payload over to the sector and marks it good.
// The caller must not use the buffer afterwards.
func (s *Sector) Fill(data []byte) {
	s.data = data
	s.Status = SectorGood
}

// MarkBad records that the sector exists but its data could not be trusted.
func (s *Sector) MarkBad() {
	s.data = nil
	s.Status = SectorBad
}

// Free drops the payload and returns the sector to the missing state.
func (s *Sector) Free() {
	s.data = nil
	s.Status = SectorMissing
}

// TrackStatus tells how much is known about the layout of a track.
type TrackStatus int

const (
	TrackUnknown TrackStatus = iota
	TrackGuessed             // layout copied from a neighbouring cylinder
	TrackProbed              // layout observed on the drive
)

// Track is the contents of one physical track.
// All sectors of a track share one data mode and one size code.
type Track struct {
	Status   TrackStatus
	Mode     *DataMode
	PhysCyl  int
	PhysHead int
	SizeCode uint8
	Sectors  []Sector // indexed by physical sector

	salvage map[Address]salvaged
}

// salvaged is the payload of a good sector kept across a re-probe.
type salvaged struct {
	data    []byte
	deleted bool
}

// Init resets the track to an empty state at the given position.
func (t *Track) Init(physCyl, physHead int) {
	*t = Track{PhysCyl: physCyl, PhysHead: physHead}
}

// Clear forgets the layout of the track. Payloads of good sectors are kept
// aside and given back by Restore after the layout is known again.
func (t *Track) Clear() {
	for i := range t.Sectors {
		s := &t.Sectors[i]
		if s.Status != SectorGood {
			continue
		}
		if t.salvage == nil {
			t.salvage = make(map[Address]salvaged)
		}
		if _, ok := t.salvage[s.Addr]; !ok {
			t.salvage[s.Addr] = salvaged{data: s.data, deleted: s.Deleted}
		}
		s.Free()
	}
	t.Status = TrackUnknown
	t.Mode = nil
	t.SizeCode = 0
	t.Sectors = t.Sectors[:0]
}

// Restore moves salvaged payloads onto sectors with the same logical
// address and size, along with their deleted marks. It returns the
// number of sectors filled.
func (t *Track) Restore() int {
	n := 0
	size := t.SectorSize()
	for i := range t.Sectors {
		s := &t.Sectors[i]
		if s.Status == SectorGood {
			continue
		}
		saved, ok := t.salvage[s.Addr]
		if !ok || len(saved.data) != size {
			continue
		}
		s.Fill(saved.data)
		s.Deleted = saved.deleted
		delete(t.salvage, s.Addr)
		n++
	}
	return n
}

// AddSector appends a sector with the given address and size code, as seen
// passing the head.
func (t *Track) AddSector(addr Address, sizeCode uint8) error {
	if len(t.Sectors) >= MaxSectors {
		return ErrTooManySectors
	}
	if len(t.Sectors) > 0 && sizeCode != t.SizeCode {
		return fmt.Errorf("%w: size code %d after %d", ErrMixedFormats, sizeCode, t.SizeCode)
	}
	t.SizeCode = sizeCode
	t.Sectors = append(t.Sectors, Sector{
		Addr: addr,
		Phys: len(t.Sectors),
	})
	return nil
}

// KeepRange reduces the sector list to sectors [start, end), keeping their
// order and renumbering physical positions from zero.
func (t *Track) KeepRange(start, end int) {
	n := copy(t.Sectors, t.Sectors[start:end])
	for i := n; i < len(t.Sectors); i++ {
		t.Sectors[i] = Sector{}
	}
	t.Sectors = t.Sectors[:n]
	for i := range t.Sectors {
		t.Sectors[i].Phys = i
	}
}

// SectorSize returns the payload size of each sector in bytes.
func (t *Track) SectorSize() int {
	return SectorBytes(t.SizeCode)
}

// Complete reports whether every sector of the track has been read.
func (t *Track) Complete() bool {
	for i := range t.Sectors {
		if t.Sectors[i].Status != SectorGood {
			return false
		}
	}
	return true
}

// Scan finds the sectors with the lowest and highest logical ids, and
// whether every id between them occurs in the track.
// Both sectors are nil for an empty track.
func (t *Track) Scan() (lowest, highest *Sector, contiguous bool) {
	var seen [MaxSectors]bool
	for i := range t.Sectors {
		s := &t.Sectors[i]
		seen[s.Addr.Sector] = true
		if lowest == nil || s.Addr.Sector < lowest.Addr.Sector {
			lowest = s
		}
		if highest == nil || s.Addr.Sector > highest.Addr.Sector {
			highest = s
		}
	}
	if lowest == nil {
		return nil, nil, false
	}
	contiguous = true
	for id := int(lowest.Addr.Sector); id <= int(highest.Addr.Sector); id++ {
		if !seen[id] {
			contiguous = false
		}
	}
	return lowest, highest, contiguous
}

// CopyLayout takes the layout of src as a guess for this track, shifting
// logical cylinders by cylDelta. Nothing happens if src has no layout.
func (t *Track) CopyLayout(src *Track, cylDelta int) {
	if src.Status == TrackUnknown {
		return
	}
	t.Clear()
	t.Status = TrackGuessed
	t.Mode = src.Mode
	t.SizeCode = src.SizeCode
	for i := range src.Sectors {
		addr := src.Sectors[i].Addr
		addr.Cyl = uint8(int(addr.Cyl) + cylDelta)
		t.Sectors = append(t.Sectors, Sector{Addr: addr, Phys: i})
	}
}

// Disk is a fixed grid of tracks indexed by physical cylinder and head.
type Disk struct {
	Comment      string
	NumPhysCyls  int
	NumPhysHeads int
	CylStep      int // 2 when doublestepping

	tracks [MaxCyls][MaxHeads]Track
}

// New returns an empty disk.
func New() *Disk {
	d := &Disk{CylStep: 1}
	for cyl := 0; cyl < MaxCyls; cyl++ {
		for head := 0; head < MaxHeads; head++ {
			d.tracks[cyl][head].Init(cyl, head)
		}
	}
	return d
}

// SetGeometry sets the number of physical cylinders and heads.
func (d *Disk) SetGeometry(cyls, heads int) error {
	if cyls < 0 || cyls > MaxCyls {
		return fmt.Errorf("%w: %d cylinders", ErrGeometry, cyls)
	}
	if heads < 0 || heads > MaxHeads {
		return fmt.Errorf("%w: %d heads", ErrGeometry, heads)
	}
	d.NumPhysCyls = cyls
	d.NumPhysHeads = heads
	return nil
}

// Track returns the track at the given physical position.
func (d *Disk) Track(cyl, head int) *Track {
	return &d.tracks[cyl][head]
}

// MakeComment returns an ImageDisk style banner line naming the program.
func MakeComment(program, version string, now time.Time) string {
	return fmt.Sprintf("IMD 1.18-%s-%s: %s\r\n", program, version, now.Format("02/01/2006 15:04:05"))
}
