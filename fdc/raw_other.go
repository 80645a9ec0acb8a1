//go:build !linux

package fdc

import "errors"

func init() {
	Register("fdc", func(opts Options) (Controller, error) {
		return nil, errors.New("the PC floppy controller is only supported on Linux")
	})
}
