package mfm

// Writer produces an MFM bitstream, packed MSB first.
type Writer struct {
	buffer      []byte
	bitPos      int // half-bits written
	lastDataBit int // previous data bit, selects the clock of a zero
	maxHalfBits int // track length; later bits are dropped
}

// NewWriter creates a writer for a track of maxHalfBits cells.
func NewWriter(maxHalfBits int) *Writer {
	return &Writer{
		buffer:      make([]byte, 0, maxHalfBits/8+1),
		maxHalfBits: maxHalfBits,
	}
}

func (w *Writer) writeHalfBit(bit int) {
	if w.bitPos >= w.maxHalfBits {
		return
	}
	if w.bitPos/8 >= len(w.buffer) {
		w.buffer = append(w.buffer, 0)
	}
	if bit != 0 {
		w.buffer[w.bitPos/8] |= 1 << (7 - w.bitPos%8)
	}
	w.bitPos++
}

// Write one data bit as a clock cell and a data cell. The clock cell
// holds a transition only between two zeros.
func (w *Writer) writeBit(bit int) {
	if bit != 0 {
		w.writeHalfBit(0)
		w.writeHalfBit(1)
	} else {
		w.writeHalfBit(w.lastDataBit ^ 1)
		w.writeHalfBit(0)
	}
	w.lastDataBit = bit
}

func (w *Writer) writeByte(data byte) {
	for i := 7; i >= 0; i-- {
		w.writeBit(int(data>>i) & 1)
	}
}

// Write n bytes of gap
func (w *Writer) writeGap(n int) {
	for i := 0; i < n; i++ {
		w.writeByte(0x4e)
	}
}

// writeSync writes a sync byte with one clock cell missing, a pattern
// no ordinary data byte produces: A1 loses the clock of bit 2, C2 the
// clock of bit 3.
func (w *Writer) writeSync(data byte) {
	missing := 2
	if data == 0xc2 {
		missing = 3
	}
	for i := 7; i >= 0; i-- {
		bit := int(data>>i) & 1
		if i == missing {
			w.writeHalfBit(0)
			w.writeHalfBit(bit)
			w.lastDataBit = bit
			continue
		}
		w.writeBit(bit)
	}
}

// Write an address mark: twelve zero bytes, three sync bytes and the tag.
// Index marks use C2 for sync, all others A1.
func (w *Writer) writeMarker(tag byte) {
	for i := 0; i < 12; i++ {
		w.writeByte(0)
	}
	sync := byte(0xa1)
	if tag == tagIndex {
		sync = 0xc2
	}
	for i := 0; i < 3; i++ {
		w.writeSync(sync)
	}
	w.writeByte(tag)
}

// Return the MFM-encoded buffer
func (w *Writer) getData() []byte {
	return w.buffer[:(w.bitPos+7)/8]
}

// Write a sequence of data bytes.
func (w *Writer) writeBytes(data []byte) {
	for _, b := range data {
		w.writeByte(b)
	}
}

// Write a CRC, high byte first.
func (w *Writer) writeCRC(sum uint16) {
	w.writeByte(byte(sum >> 8))
	w.writeByte(byte(sum))
}

// EncodeTrack encodes sectors as an IBM format MFM track, in the given
// order, and fills the rest of the track with gap bytes. A sector with
// nil Data gets no data field; a sector with DataOK unset gets a broken
// data CRC.
//
// Track layout for IBM PC floppies
// ┌─────┬──────┬────┬···┬──────┬──────┬────┬──────┬────┬────┬···┬─────┐
// │gap4a│Index │gap1│   │Sector│Sector│gap2│Data  │Data│gap3│   │gap4b│
// │(80) │Marker│(50)│   │Marker│Header│(22)│Marker│+CRC│    │   │     │
// └─────┴──────┴────┴···┴──────┴──────┴────┴──────┴────┴────┴···┴─────┘
//                     └───────────────repeat──────────────────┘
func (w *Writer) EncodeTrack(sectors []Sector, bitRate uint16) []byte {
	const startGap = 80 // gap4a: empty bytes before index marker
	const indexGap = 50 // gap1: empty bytes before first sector

	headerGap, sectorGap := trackGaps(bitRate, len(sectors))

	w.writeGap(startGap)
	w.writeMarker(tagIndex)
	w.writeGap(indexGap)

	for _, s := range sectors {
		id := []byte{s.Cyl, s.Head, s.Sector, s.SizeCode}
		w.writeMarker(tagID)
		w.writeBytes(id)
		w.writeCRC(crc16CCITT(crcAfterIDAM, id))

		w.writeGap(headerGap)
		if s.Data != nil {
			tag := byte(tagData)
			if s.Deleted {
				tag = tagDeletedData
			}
			w.writeMarker(tag)
			w.writeBytes(s.Data)

			sum := crc16CCITTByte(crcAfterSync, tag)
			sum = crc16CCITT(sum, s.Data)
			if !s.DataOK {
				sum = ^sum
			}
			w.writeCRC(sum)
		}
		w.writeGap(sectorGap)
	}

	// Fill remaining track
	fillGap := w.maxHalfBits/16 - w.bitPos/16
	if fillGap > 0 {
		w.writeGap(fillGap)
	}
	return w.getData()
}

// trackGaps returns the gap after the ID field (gap2) and the gap
// between sectors (gap3), in bytes, as used by the standard PC formats:
//
//	rate     sectors   gap2  gap3
//	250/300  up to 9   22    80
//	250/300  10        22    34
//	500      15        22    84
//	500      18        22    108
//	500      20        22    44
//	1000     36        41    84
//	1000     39        41    40
func trackGaps(kbps uint16, sectors int) (gap2, gap3 int) {
	gap2 = 22
	switch {
	case kbps > 500:
		gap2, gap3 = 41, 84
		if sectors > 36 {
			gap3 = 40
		}
	case kbps == 500:
		switch {
		case sectors < 18:
			gap3 = 84
		case sectors == 18:
			gap3 = 108
		default:
			gap3 = 44
		}
	default:
		gap3 = 80
		if sectors > 9 {
			gap3 = 34
		}
	}
	return gap2, gap3
}
