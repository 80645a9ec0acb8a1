package disk

// DataMode is a combination of recording encoding and transfer rate.
// Rates are the data transfer rate to the drive, so FM-500k carries half
// as much data as MFM-500k.
type DataMode struct {
	IMDMode uint8  // mode code in ImageDisk track headers
	Name    string // human readable name
	Rate    uint8  // controller rate code, 0 to 3
	FM      bool   // single density (FM) encoding
}

// DataModes lists the known modes in the order they are tried when probing.
var DataModes = []DataMode{
	// 5.25" DD/QD and 3.5" DD drives
	{IMDMode: 5, Name: "MFM-250k", Rate: 2, FM: false},
	{IMDMode: 2, Name: "FM-250k", Rate: 2, FM: true},

	// DD media in 5.25" HD drives
	{IMDMode: 4, Name: "MFM-300k", Rate: 1, FM: false},
	{IMDMode: 1, Name: "FM-300k", Rate: 1, FM: true},

	// 3.5" HD, 5.25" HD and 8" drives
	{IMDMode: 3, Name: "MFM-500k", Rate: 0, FM: false},
	{IMDMode: 0, Name: "FM-500k", Rate: 0, FM: true},

	// 3.5" ED drives. ImageDisk 1.18 defines no code for this one.
	// Rate 3 is not allowed with FM.
	{IMDMode: 6, Name: "MFM-1000k", Rate: 3, FM: false},
}

// ModeByIMD returns the data mode with the given ImageDisk mode code.
func ModeByIMD(code uint8) (*DataMode, bool) {
	for i := range DataModes {
		if DataModes[i].IMDMode == code {
			return &DataModes[i], true
		}
	}
	return nil, false
}

// KBps returns the transfer rate of the mode in kilobits per second.
func (m *DataMode) KBps() uint16 {
	switch m.Rate {
	case 0:
		return 500
	case 1:
		return 300
	case 2:
		return 250
	default:
		return 1000
	}
}

func (m *DataMode) String() string {
	if m == nil {
		return "-"
	}
	return m.Name
}
