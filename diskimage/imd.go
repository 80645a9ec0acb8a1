package diskimage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sergev/dumpfloppy/disk"
)

const (
	imdEndOfComment = 0x1A

	imdHeadMask    = 0x03
	imdNeedCylMap  = 0x80
	imdNeedHeadMap = 0x40
	imdAllFlags    = imdHeadMask | imdNeedCylMap | imdNeedHeadMap

	// Sector data record types are combined by addition.
	sdrUnavailable  = 0x00
	sdrData         = 0x01
	sdrIsCompressed = 0x01
	sdrIsDeleted    = 0x02
	sdrIsError      = 0x04

	// Size code announcing a per-sector size table.
	imdVariableSize = 0xFF
)

// ErrIMD is wrapped by all errors about malformed IMD images.
var ErrIMD = errors.New("bad IMD image")

// Writer emits an IMD image track by track. Every track is flushed
// as soon as it is written, so a partial image survives a crash.
type Writer struct {
	bw     *bufio.Writer
	closer io.Closer
}

// NewWriter returns a writer emitting an IMD image to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// CreateIMD creates an image file and writes its header.
func CreateIMD(filename, comment string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	w := NewWriter(file)
	w.closer = file
	if err := w.WriteHeader(comment); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// WriteHeader writes the comment followed by the end of comment marker.
func (w *Writer) WriteHeader(comment string) error {
	w.bw.WriteString(comment)
	w.bw.WriteByte(imdEndOfComment)
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write IMD header: %w", err)
	}
	return nil
}

// WriteTrack appends one track record. The cylinder and head maps are
// written only when some sector's logical value differs from the
// physical position of the track.
func (w *Writer) WriteTrack(t *disk.Track) error {
	if t.Mode == nil {
		return fmt.Errorf("%w: track %d.%d has no data mode", ErrIMD, t.PhysCyl, t.PhysHead)
	}
	n := len(t.Sectors)

	var flags uint8
	secMap := make([]byte, n)
	cylMap := make([]byte, n)
	headMap := make([]byte, n)
	for i := range t.Sectors {
		addr := t.Sectors[i].Addr
		secMap[i] = addr.Sector
		cylMap[i] = addr.Cyl
		headMap[i] = addr.Head
		if int(addr.Cyl) != t.PhysCyl {
			flags |= imdNeedCylMap
		}
		if int(addr.Head) != t.PhysHead {
			flags |= imdNeedHeadMap
		}
	}

	w.bw.Write([]byte{
		t.Mode.IMDMode,
		uint8(t.PhysCyl),
		flags | uint8(t.PhysHead),
		uint8(n),
		t.SizeCode,
	})
	w.bw.Write(secMap)
	if flags&imdNeedCylMap != 0 {
		w.bw.Write(cylMap)
	}
	if flags&imdNeedHeadMap != 0 {
		w.bw.Write(headMap)
	}

	for i := range t.Sectors {
		s := &t.Sectors[i]
		if s.Status != disk.SectorGood {
			w.bw.WriteByte(sdrUnavailable)
			continue
		}
		record := uint8(sdrData)
		if s.Deleted {
			record += sdrIsDeleted
		}
		w.bw.WriteByte(record)
		w.bw.Write(s.Data())
	}

	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write track %d.%d: %w", t.PhysCyl, t.PhysHead, err)
	}
	return nil
}

// Close flushes the image and closes the file opened by CreateIMD.
func (w *Writer) Close() error {
	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// WriteIMDFile writes all known tracks of a disk to an IMD file.
func WriteIMDFile(filename string, d *disk.Disk) error {
	w, err := CreateIMD(filename, d.Comment)
	if err != nil {
		return err
	}
	for cyl := 0; cyl < d.NumPhysCyls; cyl++ {
		for head := 0; head < d.NumPhysHeads; head++ {
			t := d.Track(cyl, head)
			if t.Status == disk.TrackUnknown {
				continue
			}
			if err := w.WriteTrack(t); err != nil {
				w.Close()
				return err
			}
		}
	}
	return w.Close()
}

// ReadIMD parses an IMD image. Sectors recorded with a data error are
// returned as bad, without their payload.
func ReadIMD(r io.Reader) (*disk.Disk, error) {
	br := bufio.NewReader(r)
	d := disk.New()

	comment, err := br.ReadBytes(imdEndOfComment)
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't find comment delimiter", ErrIMD)
	}
	d.Comment = string(comment[:len(comment)-1])

	for {
		more, err := readIMDTrack(br, d)
		if err != nil {
			return nil, err
		}
		if !more {
			return d, nil
		}
	}
}

// readIMDTrack reads a track record and adds it to the disk.
// It returns false at the end of the image.
func readIMDTrack(br *bufio.Reader, d *disk.Disk) (bool, error) {
	var header [5]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("%w: couldn't read track header", ErrIMD)
	}

	mode, ok := disk.ModeByIMD(header[0])
	if !ok {
		return false, fmt.Errorf("%w: track mode unknown: %d", ErrIMD, header[0])
	}
	cyl := int(header[1])
	if header[2]&^imdAllFlags != 0 {
		return false, fmt.Errorf("%w: track has unsupported flags: %02x", ErrIMD, header[2])
	}
	head := int(header[2] & imdHeadMask)
	if head >= disk.MaxHeads {
		return false, fmt.Errorf("%w: track head value too large: %d", ErrIMD, head)
	}
	n := int(header[3])
	sizeCode := header[4]
	if sizeCode == imdVariableSize {
		return false, fmt.Errorf("%w: variable sector size extension not supported", ErrIMD)
	}
	if sizeCode > 6 {
		return false, fmt.Errorf("%w: sector size code %d not supported", ErrIMD, sizeCode)
	}

	if cyl >= d.NumPhysCyls {
		d.NumPhysCyls = cyl + 1
	}
	if head >= d.NumPhysHeads {
		d.NumPhysHeads = head + 1
	}

	secMap := make([]byte, n)
	if _, err := io.ReadFull(br, secMap); err != nil {
		return false, fmt.Errorf("%w: couldn't read sector map", ErrIMD)
	}
	cylMap := make([]byte, n)
	if header[2]&imdNeedCylMap != 0 {
		if _, err := io.ReadFull(br, cylMap); err != nil {
			return false, fmt.Errorf("%w: couldn't read cylinder map", ErrIMD)
		}
	} else {
		for i := range cylMap {
			cylMap[i] = uint8(cyl)
		}
	}
	headMap := make([]byte, n)
	if header[2]&imdNeedHeadMap != 0 {
		if _, err := io.ReadFull(br, headMap); err != nil {
			return false, fmt.Errorf("%w: couldn't read head map", ErrIMD)
		}
	} else {
		for i := range headMap {
			headMap[i] = uint8(head)
		}
	}

	t := d.Track(cyl, head)
	t.Init(cyl, head)
	t.Mode = mode
	t.Status = disk.TrackProbed
	for i := 0; i < n; i++ {
		addr := disk.Address{Cyl: cylMap[i], Head: headMap[i], Sector: secMap[i]}
		if err := t.AddSector(addr, sizeCode); err != nil {
			return false, err
		}
	}

	size := disk.SectorBytes(sizeCode)
	for i := range t.Sectors {
		if err := readIMDSector(br, &t.Sectors[i], size); err != nil {
			return false, fmt.Errorf("track %d.%d: %w", cyl, head, err)
		}
	}
	return true, nil
}

func readIMDSector(br *bufio.Reader, s *disk.Sector, size int) error {
	record, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: couldn't read sector header", ErrIMD)
	}
	if record == sdrUnavailable {
		return nil
	}

	kind := record - sdrData
	bad := false
	if kind >= sdrIsError {
		kind -= sdrIsError
		bad = true
	}
	if kind >= sdrIsDeleted {
		kind -= sdrIsDeleted
		s.Deleted = true
	}
	data := make([]byte, size)
	if kind >= sdrIsCompressed {
		kind -= sdrIsCompressed
		fill, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: couldn't read compressed sector data", ErrIMD)
		}
		for i := range data {
			data[i] = fill
		}
	} else if _, err := io.ReadFull(br, data); err != nil {
		return fmt.Errorf("%w: couldn't read sector data", ErrIMD)
	}
	if kind != 0 {
		return fmt.Errorf("%w: sector has unsupported flags: %02x", ErrIMD, record)
	}

	if bad {
		s.MarkBad()
	} else {
		s.Fill(data)
	}
	return nil
}

// ReadIMDFile reads an IMD image from a file.
func ReadIMDFile(filename string) (*disk.Disk, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	d, err := ReadIMD(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return d, nil
}
