package disk

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// newTrack builds a track with the given logical sector ids on cylinder 3, head 0.
func newTrack(t *testing.T, ids ...uint8) *Track {
	t.Helper()
	track := &Track{}
	track.Init(3, 0)
	for _, id := range ids {
		if err := track.AddSector(Address{Cyl: 3, Head: 0, Sector: id}, 2); err != nil {
			t.Fatalf("AddSector(%d) error: %v", id, err)
		}
	}
	return track
}

func TestDataModesOrder(t *testing.T) {
	expected := []string{"MFM-250k", "FM-250k", "MFM-300k", "FM-300k", "MFM-500k", "FM-500k", "MFM-1000k"}
	if len(DataModes) != len(expected) {
		t.Fatalf("len(DataModes) = %d, expected %d", len(DataModes), len(expected))
	}
	for i, name := range expected {
		if DataModes[i].Name != name {
			t.Errorf("DataModes[%d] = %s, expected %s", i, DataModes[i].Name, name)
		}
		if DataModes[i].FM && DataModes[i].Rate == 3 {
			t.Errorf("DataModes[%d]: FM is not allowed at rate 3", i)
		}
	}
}

func TestModeByIMD(t *testing.T) {
	mode, ok := ModeByIMD(5)
	if !ok || mode.Name != "MFM-250k" || mode.KBps() != 250 {
		t.Errorf("ModeByIMD(5) = %v, %v", mode, ok)
	}
	mode, ok = ModeByIMD(0)
	if !ok || mode.Name != "FM-500k" || !mode.FM {
		t.Errorf("ModeByIMD(0) = %v, %v", mode, ok)
	}
	if _, ok := ModeByIMD(7); ok {
		t.Errorf("ModeByIMD(7) should fail")
	}
}

func TestSectorBytes(t *testing.T) {
	for code, size := range []int{128, 256, 512, 1024, 2048, 4096, 8192} {
		if got := SectorBytes(uint8(code)); got != size {
			t.Errorf("SectorBytes(%d) = %d, expected %d", code, got, size)
		}
	}
}

func TestSectorLifecycle(t *testing.T) {
	var s Sector
	if s.Status != SectorMissing || s.Data() != nil {
		t.Fatalf("new sector: status %d, data %v", s.Status, s.Data())
	}

	s.Fill(make([]byte, 128))
	if s.Status != SectorGood || s.Data() == nil {
		t.Errorf("after Fill: status %d, data nil = %v", s.Status, s.Data() == nil)
	}

	s.MarkBad()
	if s.Status != SectorBad || s.Data() != nil {
		t.Errorf("after MarkBad: status %d, data nil = %v", s.Status, s.Data() == nil)
	}

	s.Fill(make([]byte, 128))
	s.Free()
	if s.Status != SectorMissing || s.Data() != nil {
		t.Errorf("after Free: status %d, data nil = %v", s.Status, s.Data() == nil)
	}
}

func TestAddSectorMixedFormats(t *testing.T) {
	track := newTrack(t, 1, 2)
	err := track.AddSector(Address{Cyl: 3, Sector: 3}, 3)
	if !errors.Is(err, ErrMixedFormats) {
		t.Errorf("AddSector with different size code: error = %v, expected ErrMixedFormats", err)
	}
}

func TestAddSectorCeiling(t *testing.T) {
	track := &Track{}
	track.Init(0, 0)
	for i := 0; i < MaxSectors; i++ {
		if err := track.AddSector(Address{Sector: uint8(i)}, 0); err != nil {
			t.Fatalf("AddSector(%d) error: %v", i, err)
		}
	}
	if err := track.AddSector(Address{}, 0); !errors.Is(err, ErrTooManySectors) {
		t.Errorf("AddSector beyond ceiling: error = %v, expected ErrTooManySectors", err)
	}
}

func TestKeepRange(t *testing.T) {
	track := newTrack(t, 7, 8, 9, 1, 2, 3, 4, 5, 6, 7, 8, 9, 1, 2)
	track.KeepRange(3, 12)
	if len(track.Sectors) != 9 {
		t.Fatalf("len(Sectors) = %d, expected 9", len(track.Sectors))
	}
	for i := range track.Sectors {
		if track.Sectors[i].Addr.Sector != uint8(i+1) {
			t.Errorf("Sectors[%d].Addr.Sector = %d, expected %d", i, track.Sectors[i].Addr.Sector, i+1)
		}
		if track.Sectors[i].Phys != i {
			t.Errorf("Sectors[%d].Phys = %d, expected %d", i, track.Sectors[i].Phys, i)
		}
	}
}

func TestScan(t *testing.T) {
	testCases := []struct {
		name       string
		ids        []uint8
		lowest     uint8
		highest    uint8
		contiguous bool
	}{
		{"interleaved", []uint8{1, 4, 7, 2, 5, 8, 3, 6, 9}, 1, 9, true},
		{"zero based", []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 0, 9, true},
		{"gap", []uint8{1, 2, 4, 5}, 1, 5, false},
		{"single", []uint8{17}, 17, 17, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			track := newTrack(t, tc.ids...)
			lowest, highest, contiguous := track.Scan()
			if lowest.Addr.Sector != tc.lowest {
				t.Errorf("lowest = %d, expected %d", lowest.Addr.Sector, tc.lowest)
			}
			if highest.Addr.Sector != tc.highest {
				t.Errorf("highest = %d, expected %d", highest.Addr.Sector, tc.highest)
			}
			if contiguous != tc.contiguous {
				t.Errorf("contiguous = %v, expected %v", contiguous, tc.contiguous)
			}
		})
	}

	empty := &Track{}
	if lowest, highest, _ := empty.Scan(); lowest != nil || highest != nil {
		t.Errorf("Scan of empty track returned sectors")
	}
}

func TestClearAndRestore(t *testing.T) {
	track := newTrack(t, 1, 2, 3)
	track.Status = TrackProbed
	track.Sectors[0].Fill(bytes.Repeat([]byte{0x11}, 512))
	track.Sectors[2].Fill(bytes.Repeat([]byte{0x33}, 512))
	track.Sectors[2].Deleted = true

	track.Clear()
	if track.Status != TrackUnknown || len(track.Sectors) != 0 {
		t.Fatalf("after Clear: status %d, %d sectors", track.Status, len(track.Sectors))
	}

	// Same sectors come back in a different rotational order.
	for _, id := range []uint8{3, 1, 2} {
		if err := track.AddSector(Address{Cyl: 3, Head: 0, Sector: id}, 2); err != nil {
			t.Fatalf("AddSector error: %v", err)
		}
	}
	if n := track.Restore(); n != 2 {
		t.Errorf("Restore() = %d, expected 2", n)
	}
	if d := track.Sectors[0].Data(); d == nil || d[0] != 0x33 {
		t.Errorf("sector 3 payload not restored")
	}
	if d := track.Sectors[1].Data(); d == nil || d[0] != 0x11 {
		t.Errorf("sector 1 payload not restored")
	}
	if !track.Sectors[0].Deleted || track.Sectors[1].Deleted {
		t.Errorf("deleted marks: sector 3 %v, sector 1 %v", track.Sectors[0].Deleted, track.Sectors[1].Deleted)
	}
	if track.Sectors[2].Status != SectorMissing || track.Sectors[2].Data() != nil {
		t.Errorf("sector 2 should still be missing")
	}
}

func TestRestoreIgnoresDifferentSize(t *testing.T) {
	track := newTrack(t, 1)
	track.Sectors[0].Fill(make([]byte, 512))
	track.Clear()
	if err := track.AddSector(Address{Cyl: 3, Sector: 1}, 1); err != nil {
		t.Fatalf("AddSector error: %v", err)
	}
	if n := track.Restore(); n != 0 {
		t.Errorf("Restore() = %d, expected 0 for a different sector size", n)
	}
}

func TestCopyLayout(t *testing.T) {
	d := New()
	src := d.Track(4, 1)
	for _, id := range []uint8{1, 2, 3} {
		if err := src.AddSector(Address{Cyl: 2, Head: 1, Sector: id}, 1); err != nil {
			t.Fatalf("AddSector error: %v", err)
		}
	}
	src.Mode = &DataModes[0]
	src.Status = TrackProbed
	src.Sectors[0].Fill(make([]byte, 256))

	dest := d.Track(6, 1)
	dest.CopyLayout(src, 1)
	if dest.Status != TrackGuessed {
		t.Errorf("dest.Status = %d, expected TrackGuessed", dest.Status)
	}
	if dest.Mode != src.Mode || dest.SizeCode != 1 || len(dest.Sectors) != 3 {
		t.Fatalf("dest layout = %v %d %d", dest.Mode, dest.SizeCode, len(dest.Sectors))
	}
	for i := range dest.Sectors {
		s := &dest.Sectors[i]
		if s.Addr.Cyl != 3 || s.Addr.Head != 1 || s.Addr.Sector != uint8(i+1) {
			t.Errorf("dest.Sectors[%d].Addr = %+v", i, s.Addr)
		}
		if s.Status != SectorMissing || s.Data() != nil {
			t.Errorf("dest.Sectors[%d] should not carry data", i)
		}
	}

	unknown := d.Track(7, 1)
	dest.CopyLayout(unknown, 1)
	if dest.Status != TrackGuessed || len(dest.Sectors) != 3 {
		t.Errorf("copying an unknown layout must not change the track")
	}
}

func TestSetGeometry(t *testing.T) {
	d := New()
	if err := d.SetGeometry(80, 2); err != nil {
		t.Errorf("SetGeometry(80, 2) error: %v", err)
	}
	if err := d.SetGeometry(MaxCyls+1, 2); !errors.Is(err, ErrGeometry) {
		t.Errorf("SetGeometry(%d, 2) error = %v", MaxCyls+1, err)
	}
	if err := d.SetGeometry(80, 3); !errors.Is(err, ErrGeometry) {
		t.Errorf("SetGeometry(80, 3) error = %v", err)
	}
	if d.Track(79, 1).PhysCyl != 79 || d.Track(79, 1).PhysHead != 1 {
		t.Errorf("track position not initialized")
	}
}

func TestMakeComment(t *testing.T) {
	now := time.Date(2026, 1, 19, 20, 15, 13, 0, time.UTC)
	got := MakeComment("dumpfloppy", "1.0", now)
	expected := "IMD 1.18-dumpfloppy-1.0: 19/01/2026 20:15:13\r\n"
	if got != expected {
		t.Errorf("MakeComment() = %q, expected %q", got, expected)
	}
}

func TestShow(t *testing.T) {
	d := New()
	if err := d.SetGeometry(1, 1); err != nil {
		t.Fatal(err)
	}
	d.Comment = "test disk"
	track := d.Track(0, 0)
	track.Mode = &DataModes[0]
	for _, id := range []uint8{1, 2, 3, 4} {
		if err := track.AddSector(Address{Sector: id}, 0); err != nil {
			t.Fatal(err)
		}
	}
	track.Sectors[0].Fill(bytes.Repeat([]byte{'A'}, 128))
	track.Sectors[1].MarkBad()
	track.Sectors[2].Fill(make([]byte, 128))
	track.Sectors[2].Deleted = true

	var out bytes.Buffer
	d.Show(&out, false)
	expected := "test disk\n 0.0:MFM-250k 4x128  1+  2?  3x  . \n"
	if out.String() != expected {
		t.Errorf("Show() = %q, expected %q", out.String(), expected)
	}

	out.Reset()
	ShowTrackData(&out, track)
	text := out.String()
	if !strings.Contains(text, "Physical C 0 H 0 S 0, logical C 0 H 0 S 1:\n") {
		t.Errorf("missing sector 1 heading in:\n%s", text)
	}
	if !strings.Contains(text, "0000  41 41 41 41") || !strings.Contains(text, "|AAAAAAAAAAAAAAAA|") {
		t.Errorf("missing hex dump line in:\n%s", text)
	}
	if !strings.Contains(text, " (bad data):\n") {
		t.Errorf("missing bad data marker in:\n%s", text)
	}
}
