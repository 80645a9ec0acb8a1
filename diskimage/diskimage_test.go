package diskimage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sergev/dumpfloppy/disk"
)

// newTrack builds a track of 128-byte sectors at cylinder 3, head 1,
// with sector i filled with byte i+1.
func newTrack(t *testing.T, d *disk.Disk, addrs ...disk.Address) *disk.Track {
	t.Helper()
	track := d.Track(3, 1)
	track.Mode = &disk.DataModes[0]
	track.Status = disk.TrackProbed
	for i, addr := range addrs {
		if err := track.AddSector(addr, 0); err != nil {
			t.Fatalf("AddSector error: %v", err)
		}
		track.Sectors[i].Fill(bytes.Repeat([]byte{byte(i + 1)}, 128))
	}
	return track
}

func TestDetectImageFormat(t *testing.T) {
	testCases := []struct {
		filename string
		expected ImageFormat
	}{
		{"disk.imd", ImageFormatIMD},
		{"DISK.IMD", ImageFormatIMD},
		{"disk.img", ImageFormatIMG},
		{"disk.ima", ImageFormatIMG},
		{"disk.hfe", ImageFormatUnknown},
		{"disk", ImageFormatUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			if got := DetectImageFormat(tc.filename); got != tc.expected {
				t.Errorf("DetectImageFormat(%q) = %s, expected %s", tc.filename, got, tc.expected)
			}
		})
	}
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader("IMD 1.18-dumpfloppy-1.0: 19/01/2026 20:15:13\r\n"); err != nil {
		t.Fatalf("WriteHeader() error: %v", err)
	}
	expected := "IMD 1.18-dumpfloppy-1.0: 19/01/2026 20:15:13\r\n\x1a"
	if buf.String() != expected {
		t.Errorf("header = %q, expected %q", buf.String(), expected)
	}
}

func TestWriteTrackMaps(t *testing.T) {
	testCases := []struct {
		name   string
		second disk.Address
		flags  byte
		maps   []byte
	}{
		{"physical addresses", disk.Address{Cyl: 3, Head: 1, Sector: 2}, 0x00, nil},
		{"cylinder differs", disk.Address{Cyl: 4, Head: 1, Sector: 2}, 0x80, []byte{3, 4}},
		{"head differs", disk.Address{Cyl: 3, Head: 0, Sector: 2}, 0x40, []byte{1, 0}},
		{"both differ", disk.Address{Cyl: 1, Head: 0, Sector: 2}, 0xC0, []byte{3, 1, 1, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := disk.New()
			track := newTrack(t, d, disk.Address{Cyl: 3, Head: 1, Sector: 1}, tc.second)

			var buf bytes.Buffer
			if err := NewWriter(&buf).WriteTrack(track); err != nil {
				t.Fatalf("WriteTrack() error: %v", err)
			}

			expected := []byte{5, 3, tc.flags | 1, 2, 0, 1, 2}
			expected = append(expected, tc.maps...)
			expected = append(expected, 0x01)
			expected = append(expected, bytes.Repeat([]byte{1}, 128)...)
			expected = append(expected, 0x01)
			expected = append(expected, bytes.Repeat([]byte{2}, 128)...)
			if !bytes.Equal(buf.Bytes(), expected) {
				t.Errorf("track record = % x\nexpected % x", buf.Bytes()[:min(buf.Len(), 16)], expected[:16])
			}
		})
	}
}

func TestWriteTrackRecords(t *testing.T) {
	d := disk.New()
	track := newTrack(t, d,
		disk.Address{Cyl: 3, Head: 1, Sector: 1},
		disk.Address{Cyl: 3, Head: 1, Sector: 2},
		disk.Address{Cyl: 3, Head: 1, Sector: 3})
	track.Sectors[0].Deleted = true
	track.Sectors[1].Free()
	track.Sectors[2].MarkBad()

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteTrack(track); err != nil {
		t.Fatalf("WriteTrack() error: %v", err)
	}
	data := buf.Bytes()
	if len(data) != 5+3+1+128+1+1 {
		t.Fatalf("track record length = %d", len(data))
	}
	if data[8] != 0x03 || data[8+1+128] != 0x00 || data[8+1+128+1] != 0x00 {
		t.Errorf("sector records = %#02x %#02x %#02x", data[8], data[8+1+128], data[8+1+128+1])
	}
}

func TestWriteTrackWithoutMode(t *testing.T) {
	track := disk.New().Track(0, 0)
	if err := NewWriter(&bytes.Buffer{}).WriteTrack(track); !errors.Is(err, ErrIMD) {
		t.Errorf("WriteTrack() error = %v, expected ErrIMD", err)
	}
}

func TestReadIMD(t *testing.T) {
	var image []byte
	image = append(image, "IMD 1.18: test\r\n\x1a"...)
	// Cylinder 0 head 0, FM-500k, sectors 1 and 2 of 128 bytes:
	// compressed, then deleted with data error.
	image = append(image, 0, 0, 0, 2, 0, 1, 2)
	image = append(image, 0x02, 0xE5)
	image = append(image, 0x07)
	image = append(image, bytes.Repeat([]byte{0x55}, 128)...)
	// Cylinder 1 head 1, MFM-250k, logical cylinder map, one deleted
	// sector and one unavailable.
	image = append(image, 5, 1, 0x81, 2, 0, 9, 8, 0, 0)
	image = append(image, 0x03)
	image = append(image, bytes.Repeat([]byte{0xAA}, 128)...)
	image = append(image, 0x00)

	d, err := ReadIMD(bytes.NewReader(image))
	if err != nil {
		t.Fatalf("ReadIMD() error: %v", err)
	}
	if d.Comment != "IMD 1.18: test\r\n" {
		t.Errorf("Comment = %q", d.Comment)
	}
	if d.NumPhysCyls != 2 || d.NumPhysHeads != 2 {
		t.Errorf("geometry = %dx%d, expected 2x2", d.NumPhysCyls, d.NumPhysHeads)
	}

	t0 := d.Track(0, 0)
	if t0.Status != disk.TrackProbed || t0.Mode.Name != "FM-500k" || len(t0.Sectors) != 2 {
		t.Fatalf("track 0.0 = %v %s %d sectors", t0.Status, t0.Mode, len(t0.Sectors))
	}
	if s := &t0.Sectors[0]; s.Status != disk.SectorGood || !bytes.Equal(s.Data(), bytes.Repeat([]byte{0xE5}, 128)) {
		t.Errorf("compressed sector not expanded")
	}
	if s := &t0.Sectors[1]; s.Status != disk.SectorBad || s.Data() != nil || !s.Deleted {
		t.Errorf("bad sector: status %d deleted %v data %v", s.Status, s.Deleted, s.Data() != nil)
	}

	t1 := d.Track(1, 1)
	if t1.Sectors[0].Addr != (disk.Address{Cyl: 0, Head: 1, Sector: 9}) {
		t.Errorf("sector address = %+v", t1.Sectors[0].Addr)
	}
	if !t1.Sectors[0].Deleted || t1.Sectors[0].Status != disk.SectorGood {
		t.Errorf("deleted sector not decoded")
	}
	if t1.Sectors[1].Status != disk.SectorMissing {
		t.Errorf("unavailable sector has status %d", t1.Sectors[1].Status)
	}
	if d.Track(0, 1).Status != disk.TrackUnknown {
		t.Errorf("track absent from the image is not unknown")
	}
}

func TestReadIMDErrors(t *testing.T) {
	header := func(track ...byte) []byte {
		return append([]byte("IMD\x1a"), track...)
	}
	testCases := []struct {
		name  string
		image []byte
	}{
		{"no comment end", []byte("IMD 1.18")},
		{"short track header", header(5, 0)},
		{"unknown mode", header(9, 0, 0, 0, 0)},
		{"unsupported flags", header(5, 0, 0x20, 0, 0)},
		{"head too large", header(5, 0, 2, 0, 0)},
		{"variable sector size", header(5, 0, 0, 1, 0xFF)},
		{"short sector map", header(5, 0, 0, 2, 0, 1)},
		{"short sector data", header(5, 0, 0, 1, 0, 1, 1, 0xE5)},
		{"unsupported record", header(5, 0, 0, 1, 0, 1, 9)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadIMD(bytes.NewReader(tc.image)); !errors.Is(err, ErrIMD) {
				t.Errorf("ReadIMD() error = %v, expected ErrIMD", err)
			}
		})
	}
}

func TestIMDFileRoundTrip(t *testing.T) {
	d := disk.New()
	if err := d.SetGeometry(4, 2); err != nil {
		t.Fatal(err)
	}
	d.Comment = disk.MakeComment("dumpfloppy", "test", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	newTrack(t, d,
		disk.Address{Cyl: 3, Head: 1, Sector: 2},
		disk.Address{Cyl: 3, Head: 1, Sector: 1})

	filename := filepath.Join(t.TempDir(), "disk.imd")
	if err := Write(filename, d); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := Read(filename)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got.Comment != d.Comment {
		t.Errorf("Comment = %q, expected %q", got.Comment, d.Comment)
	}
	track := got.Track(3, 1)
	if len(track.Sectors) != 2 || track.Sectors[0].Addr.Sector != 2 || track.Sectors[1].Addr.Sector != 1 {
		t.Fatalf("sectors not in physical order")
	}
	if !bytes.Equal(track.Sectors[1].Data(), bytes.Repeat([]byte{2}, 128)) {
		t.Errorf("payload changed")
	}
}

func TestWriteIMG(t *testing.T) {
	d := disk.New()
	if err := d.SetGeometry(4, 2); err != nil {
		t.Fatal(err)
	}
	// Physical order 2, 3, 1 must come out in logical order.
	newTrack(t, d,
		disk.Address{Cyl: 3, Head: 1, Sector: 2},
		disk.Address{Cyl: 3, Head: 1, Sector: 3},
		disk.Address{Cyl: 3, Head: 1, Sector: 1})

	filename := filepath.Join(t.TempDir(), "disk.img")
	if err := Write(filename, d); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	var expected []byte
	for _, fill := range []byte{3, 1, 2} {
		expected = append(expected, bytes.Repeat([]byte{fill}, 128)...)
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("image content does not follow logical sector order")
	}

	d.Track(3, 1).Sectors[1].MarkBad()
	if err := WriteIMG(&bytes.Buffer{}, d); err == nil {
		t.Errorf("WriteIMG() with a bad sector should fail")
	}
}

func TestReadUnsupportedFormat(t *testing.T) {
	if _, err := Read("disk.img"); err == nil {
		t.Errorf("Read() of an IMG file should fail")
	}
	if err := Write("disk.xyz", disk.New()); err == nil {
		t.Errorf("Write() of an unknown format should fail")
	}
}
