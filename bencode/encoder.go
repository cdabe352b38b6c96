package bencode

import (
	"io"
	"math/big"
	"sort"
	"strconv"
)

// Encode returns the bencoding of v.
func Encode(v interface{}) ([]byte, error) {
	return appendValue(nil, v)
}

// Encoder writes bencoded values to an output stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencoding of v to the stream. The value is encoded in full
// before anything is written, so an EncodeError never leaves a partial value
// on the stream, and the bytes reach the writer in a single Write call.
func (e *Encoder) Encode(v interface{}) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}

	_, err = e.w.Write(b)
	return err
}

func appendValue(b []byte, v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return appendString(b, x), nil
	case []byte:
		return appendBytes(b, x), nil

	case int:
		return appendInt(b, int64(x)), nil
	case int8:
		return appendInt(b, int64(x)), nil
	case int16:
		return appendInt(b, int64(x)), nil
	case int32:
		return appendInt(b, int64(x)), nil
	case int64:
		return appendInt(b, x), nil
	case uint:
		return appendUint(b, uint64(x)), nil
	case uint8:
		return appendUint(b, uint64(x)), nil
	case uint16:
		return appendUint(b, uint64(x)), nil
	case uint32:
		return appendUint(b, uint64(x)), nil
	case uint64:
		return appendUint(b, x), nil
	case *big.Int:
		if x == nil {
			return nil, &EncodeError{Value: v}
		}
		return appendBigInt(b, x), nil
	case big.Int:
		return appendBigInt(b, &x), nil

	case []interface{}:
		b = append(b, 'l')
		for _, item := range x {
			var err error
			if b, err = appendValue(b, item); err != nil {
				return nil, err
			}
		}
		return append(b, 'e'), nil
	case []string:
		b = append(b, 'l')
		for _, item := range x {
			b = appendString(b, item)
		}
		return append(b, 'e'), nil

	case *Dict:
		if x == nil {
			return nil, &EncodeError{Value: v}
		}
		return appendDict(b, x)
	case Dict:
		return appendDict(b, &x)
	case map[string]interface{}:
		d := NewDict()
		for _, k := range sortedKeys(x) {
			d.Set(k, x[k])
		}
		return appendDict(b, d)
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b = append(b, 'd')
		for _, k := range keys {
			b = appendString(b, k)
			b = appendString(b, x[k])
		}
		return append(b, 'e'), nil
	}

	return nil, &EncodeError{Value: v}
}

func appendDict(b []byte, d *Dict) ([]byte, error) {
	b = append(b, 'd')

	var err error
	d.Range(func(key string, value interface{}) bool {
		b = appendString(b, key)
		b, err = appendValue(b, value)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	return append(b, 'e'), nil
}

func appendString(b []byte, s string) []byte {
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ':')
	return append(b, s...)
}

func appendBytes(b []byte, s []byte) []byte {
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ':')
	return append(b, s...)
}

func appendInt(b []byte, i int64) []byte {
	b = append(b, 'i')
	b = strconv.AppendInt(b, i, 10)
	return append(b, 'e')
}

func appendUint(b []byte, i uint64) []byte {
	b = append(b, 'i')
	b = strconv.AppendUint(b, i, 10)
	return append(b, 'e')
}

func appendBigInt(b []byte, i *big.Int) []byte {
	b = append(b, 'i')
	b = i.Append(b, 10)
	return append(b, 'e')
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MustEncode is like Encode but panics if v cannot be encoded. It is meant for
// literals in tests and examples.
func MustEncode(v interface{}) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}

	return b
}
