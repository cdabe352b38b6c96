package bencode

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedEOF     = errors.New("input ended before a complete value was read")
	ErrInvalidLength     = errors.New("byte string length is malformed")
	ErrInvalidInteger    = errors.New("integer is malformed")
	ErrMissingTerminator = errors.New("missing terminating 'e'")
	ErrUnknownType       = errors.New("unknown value type")
	ErrInvalidKey        = errors.New("dictionary key is not a byte string")
	ErrNotDict           = errors.New("top-level value is not a dictionary")
)

// EncodeError is returned when a Go value has no bencode representation.
type EncodeError struct {
	Value interface{}
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("bencode: unsupported type %T", e.Value)
}

// ParseError is returned when the input is not valid bencode. Offset is the
// number of bytes consumed from the input when the problem was found.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bencode: parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
