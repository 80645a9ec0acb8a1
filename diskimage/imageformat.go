// Package diskimage reads and writes disk images.
package diskimage

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents a floppy disk image format
type ImageFormat int

const (
	// ImageFormatUnknown represents an unknown or unrecognized format
	ImageFormatUnknown ImageFormat = iota
	ImageFormatIMD                 // IMD format - Dave Dunfield's ImageDisk utility
	ImageFormatIMG                 // IMG or IMA format - a raw, sector-by-sector binary copy of the entire disk
)

// String returns the string representation of the ImageFormat
func (f ImageFormat) String() string {
	switch f {
	case ImageFormatIMD:
		return "IMD"
	case ImageFormatIMG:
		return "IMG"
	default:
		return "Unknown"
	}
}

// DetectImageFormat detects the image format from a filename based on its extension.
// The extension check is case-insensitive. Returns ImageFormatUnknown if the format
// cannot be determined.
func DetectImageFormat(filename string) ImageFormat {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ImageFormatUnknown
	}

	switch strings.ToLower(ext[1:]) {
	case "imd":
		return ImageFormatIMD
	case "img", "ima":
		return ImageFormatIMG
	default:
		return ImageFormatUnknown
	}
}
