package bencode

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/tidwall/sjson"
)

// ToJSONValue converts a decoded value into something encoding/json renders
// faithfully. Dictionaries become json.RawMessage objects that keep their key
// order, big integers are written as JSON numbers, and byte strings that are
// not valid UTF-8 become base64 text.
func ToJSONValue(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil

	case *big.Int:
		return json.RawMessage(x.String()), nil

	case []interface{}:
		list := make([]interface{}, len(x))
		for i, item := range x {
			jv, err := ToJSONValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = jv
		}
		return list, nil
	}

	d, ok := toDict(v)
	if !ok {
		if _, err := Encode(v); err != nil {
			return nil, err
		}
		return v, nil
	}

	// sjson appends keys it has not seen yet at the end of the object
	doc := []byte("{}")

	var err error
	d.Range(func(key string, value interface{}) bool {
		var jv interface{}
		if jv, err = ToJSONValue(value); err != nil {
			return false
		}

		doc, err = sjson.SetBytes(doc, keyPath(key), jv)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(doc), nil
}

// keyPath turns a dictionary key into an sjson path naming exactly that key.
// The leading ':' keeps numeric keys from being read as array indexes, and
// every ASCII character outside [A-Za-z0-9_-] is escaped so it is not read as
// path syntax.
func keyPath(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 1)
	b.WriteByte(':')

	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x80 && !isPathChar(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func isPathChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}
