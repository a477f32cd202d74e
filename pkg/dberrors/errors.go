package dberrors

import "errors"

// A missing key is not an error: lookups report it with a found flag.
var (
	ErrClosed          = errors.New("lsmkv: store closed")
	ErrInvalidArgument = errors.New("lsmkv: invalid argument")
)
