package diskimage

import (
	"fmt"

	"github.com/sergev/dumpfloppy/disk"
)

// Read reads a disk image in the format given by the file extension.
func Read(filename string) (*disk.Disk, error) {
	switch format := DetectImageFormat(filename); format {
	case ImageFormatIMD:
		return ReadIMDFile(filename)
	default:
		return nil, fmt.Errorf("reading %s images is not supported: %s", format, filename)
	}
}

// Write writes a disk image in the format given by the file extension.
func Write(filename string, d *disk.Disk) error {
	switch format := DetectImageFormat(filename); format {
	case ImageFormatIMD:
		return WriteIMDFile(filename, d)
	case ImageFormatIMG:
		return WriteIMGFile(filename, d)
	default:
		return fmt.Errorf("unknown image format: %s", filename)
	}
}
