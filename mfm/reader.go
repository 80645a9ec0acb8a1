package mfm

import (
	"errors"
)

// Address mark tags following the A1 A1 A1 sync.
const (
	tagIndex       = 0xfc
	tagID          = 0xfe
	tagData        = 0xfb
	tagDeletedData = 0xf8
)

// MaxSizeCode is the largest sector size code the reader decodes.
const MaxSizeCode = 6

var errEndOfTrack = errors.New("end of bitstream")

// Sector is one sector of an IBM format track.
type Sector struct {
	Cyl      uint8 // logical cylinder from the ID field
	Head     uint8
	Sector   uint8
	SizeCode uint8
	Data     []byte // nil when no data field followed the ID field
	DataOK   bool   // data CRC matched
	Deleted  bool   // deleted data address mark
}

// Read bits from an MFM bitstream (MSB-first byte order)
// In MFM encoding: each data bit is encoded as 2 bits.
type Reader struct {
	data   []byte // MFM bitstream data (two bits per each data bit)
	bitPos int    // Current bit position in raw bitstream (0-based)
}

// Create a new MFM bitstream reader
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Read "half" bit, which means a raw next bit from MFM stream.
func (r *Reader) readHalfBit() (int, error) {
	if r.bitPos >= len(r.data)*8 {
		return -1, errEndOfTrack
	}
	bit := (r.data[r.bitPos/8] >> (7 - r.bitPos&7)) & 1
	r.bitPos++
	return int(bit), nil
}

// Read a single data bit: the clock half-bit is ignored.
func (r *Reader) readBit() (int, error) {
	if _, err := r.readHalfBit(); err != nil {
		return -1, err
	}
	return r.readHalfBit()
}

func (r *Reader) readByte() (byte, error) {
	var result byte
	for i := 0; i < 8; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		result = result<<1 | byte(bit)
	}
	return result, nil
}

func (r *Reader) readBytes(buf []byte) error {
	for i := range buf {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// Scan for the next address mark and return the tag byte after it.
func (r *Reader) scanMarker() (byte, error) {
	history := uint32(0x13713713)

	for {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		history = history<<1 | uint32(bit)

		// All ones - synchronize to half-bit
		if history == 0xffffffff {
			if _, err := r.readHalfBit(); err != nil {
				return 0, err
			}
			history = 0
			continue
		}

		// Waiting for 00-a1-a1-a1 or 00-c2-c2-c2
		if history == 0x00a1a1a1 || history == 0x00c2c2c2 {
			return r.readByte()
		}
	}
}

// readID reads the ID field after an ID address mark.
// It reports false when the header CRC doesn't match.
func (r *Reader) readID() (Sector, bool, error) {
	var id [6]byte
	if err := r.readBytes(id[:]); err != nil {
		return Sector{}, false, err
	}
	sum := crc16CCITT(crcAfterIDAM, id[:4])
	if sum != uint16(id[4])<<8|uint16(id[5]) {
		return Sector{}, false, nil
	}
	return Sector{Cyl: id[0], Head: id[1], Sector: id[2], SizeCode: id[3]}, true, nil
}

// readData reads a data field of the sector's size after a data mark.
func (r *Reader) readData(s *Sector, tag byte) error {
	data := make([]byte, 128<<s.SizeCode)
	if err := r.readBytes(data); err != nil {
		return err
	}
	var crc [2]byte
	if err := r.readBytes(crc[:]); err != nil {
		return err
	}
	sum := crc16CCITTByte(crcAfterSync, tag)
	sum = crc16CCITT(sum, data)

	s.Data = data
	s.DataOK = sum == uint16(crc[0])<<8|uint16(crc[1])
	s.Deleted = tag == tagDeletedData
	return nil
}

// ScanTrack decodes all ID fields with a valid CRC, in the order they
// pass the head, each with the data field that follows it. A sector cut
// by the end of the bitstream is returned without data.
func (r *Reader) ScanTrack() []Sector {
	var sectors []Sector

	tag, err := r.scanMarker()
	for err == nil {
		if tag != tagID {
			tag, err = r.scanMarker()
			continue
		}
		s, ok, rerr := r.readID()
		if rerr != nil {
			break
		}
		if !ok {
			tag, err = r.scanMarker()
			continue
		}

		// The next mark is either our data field, or another ID field
		// when the data field is missing.
		tag, err = r.scanMarker()
		if err == nil && (tag == tagData || tag == tagDeletedData) && s.SizeCode <= MaxSizeCode {
			if rerr := r.readData(&s, tag); rerr != nil {
				s.Data, s.DataOK = nil, false
				err = rerr
			} else {
				tag, err = r.scanMarker()
			}
		}
		sectors = append(sectors, s)
	}
	return sectors
}
