package bencode

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math/big"
	"strconv"
	"unicode/utf8"
)

// maxPrealloc bounds how much we allocate up front for a byte string. Longer
// strings grow their buffer as bytes actually arrive, so a bogus length prefix
// cannot make us allocate gigabytes.
const maxPrealloc = 64 << 10

// Decoder reads a sequence of bencoded values from an input stream.
//
// Each call to Decode consumes exactly one complete top-level value and leaves
// the stream positioned at the first byte of the next one. Once Decode returns
// an error every subsequent call returns the same error.
type Decoder struct {
	r      *bufio.Reader
	offset int64
	err    error
}

func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	return &Decoder{r: br}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Decode reads the next value from the stream. It returns io.EOF when the
// stream ends cleanly between values, a *ParseError when the bytes are not
// valid bencode, and any other error from the underlying reader unchanged.
func (d *Decoder) Decode() (interface{}, error) {
	if d.err != nil {
		return nil, d.err
	}

	c, err := d.r.ReadByte()
	if err != nil {
		d.err = err
		return nil, err
	}
	d.offset++

	v, err := d.decodeValue(c)
	if err != nil {
		d.err = err
		return nil, err
	}

	return v, nil
}

// DecodeAll decodes every value in data.
func DecodeAll(data []byte) ([]interface{}, error) {
	dec := NewDecoder(bytes.NewReader(data))
	values := make([]interface{}, 0, 1)

	for {
		v, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return nil, err
		}

		values = append(values, v)
	}
}

func (d *Decoder) decodeValue(c byte) (interface{}, error) {
	switch {
	case c == 'i':
		return d.decodeInt()

	case isDigit(c):
		b, err := d.decodeBytes(c)
		if err != nil {
			return nil, err
		}

		if utf8.Valid(b) {
			return string(b), nil
		}
		return b, nil

	case c == 'l':
		list := make([]interface{}, 0)
		for {
			c, err := d.next()
			if err != nil {
				return nil, err
			}

			if c == 'e' {
				return list, nil
			}

			item, err := d.decodeValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}

	case c == 'd':
		dict := NewDict()
		for {
			c, err := d.next()
			if err != nil {
				return nil, err
			}

			if c == 'e' {
				return dict, nil
			}

			if !isDigit(c) {
				return nil, d.parseError(ErrInvalidKey)
			}

			key, err := d.decodeBytes(c)
			if err != nil {
				return nil, err
			}

			c, err = d.next()
			if err != nil {
				return nil, err
			}

			value, err := d.decodeValue(c)
			if err != nil {
				return nil, err
			}

			// Later duplicates win, the key keeps its first position.
			dict.Set(string(key), value)
		}
	}

	return nil, d.parseError(ErrUnknownType)
}

// decodeInt reads the body of an integer, the leading 'i' has already been
// consumed.
func (d *Decoder) decodeInt() (interface{}, error) {
	var digits []byte

	c, err := d.next()
	if err != nil {
		return nil, err
	}

	if c == '-' {
		digits = append(digits, c)
		if c, err = d.next(); err != nil {
			return nil, err
		}
	}

	for isDigit(c) {
		digits = append(digits, c)
		if c, err = d.next(); err != nil {
			return nil, err
		}
	}

	unsigned := bytes.TrimPrefix(digits, []byte("-"))

	switch {
	case len(unsigned) == 0:
		return nil, d.parseError(ErrInvalidInteger)
	case c != 'e':
		return nil, d.parseError(ErrMissingTerminator)
	case unsigned[0] == '0' && len(digits) > 1:
		// Rejects leading zeros as well as "-0"
		return nil, d.parseError(ErrInvalidInteger)
	}

	if i, err := strconv.ParseInt(string(digits), 10, 64); err == nil {
		return i, nil
	}

	i, ok := new(big.Int).SetString(string(digits), 10)
	if !ok {
		return nil, d.parseError(ErrInvalidInteger)
	}

	return i, nil
}

// decodeBytes reads a length prefixed byte string whose first length digit has
// already been consumed.
func (d *Decoder) decodeBytes(first byte) ([]byte, error) {
	digits := []byte{first}

	for {
		c, err := d.next()
		if err != nil {
			return nil, err
		}

		if c == ':' {
			break
		}

		if !isDigit(c) {
			return nil, d.parseError(ErrInvalidLength)
		}

		digits = append(digits, c)
	}

	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return nil, d.parseError(ErrInvalidLength)
	}

	if n <= maxPrealloc {
		b := make([]byte, n)
		read, err := io.ReadFull(d.r, b)
		d.offset += int64(read)
		if err != nil {
			return nil, d.ioError(err)
		}

		return b, nil
	}

	var buf bytes.Buffer
	read, err := io.CopyN(&buf, d.r, n)
	d.offset += read
	if err != nil {
		return nil, d.ioError(err)
	}

	return buf.Bytes(), nil
}

// next reads one byte from inside a value, where running out of input is a
// parse error rather than a clean end of stream.
func (d *Decoder) next() (byte, error) {
	c, err := d.r.ReadByte()
	if err != nil {
		return 0, d.ioError(err)
	}

	d.offset++
	return c, nil
}

func (d *Decoder) ioError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return d.parseError(ErrUnexpectedEOF)
	}

	return err
}

func (d *Decoder) parseError(err error) error {
	return &ParseError{Offset: d.offset, Err: err}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
