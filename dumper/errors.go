package dumper

import "errors"

var (
	ErrUnreadable       = errors.New("cylinder 2 unreadable on either side")
	ErrDriveTooCoarse   = errors.New("can't read this disk (80T disk in 40T drive)")
	ErrRetriesExhausted = errors.New("track failed to read after retrying")
)
