package bencode

import (
	"math/big"
)

// Equal reports whether a and b represent the same bencode value. Integer
// types are compared by value, string and []byte by their bytes, and
// dictionaries by content regardless of key order. Values with no bencode
// representation are never equal to anything.
func Equal(a, b interface{}) bool {
	if ai, ok := toBigInt(a); ok {
		bi, ok := toBigInt(b)
		return ok && ai.Cmp(bi) == 0
	}

	if as, ok := toText(a); ok {
		bs, ok := toText(b)
		return ok && as == bs
	}

	if al, ok := toList(a); ok {
		bl, ok := toList(b)
		if !ok || len(al) != len(bl) {
			return false
		}

		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	}

	if ad, ok := toDict(a); ok {
		bd, ok := toDict(b)
		if !ok || ad.Len() != bd.Len() {
			return false
		}

		equal := true
		ad.Range(func(key string, av interface{}) bool {
			bv, ok := bd.Get(key)
			equal = ok && Equal(av, bv)
			return equal
		})
		return equal
	}

	return false
}

func toBigInt(v interface{}) (*big.Int, bool) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, false
		}
		return x, true
	case big.Int:
		return &x, true
	case uint:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint64:
		return new(big.Int).SetUint64(x), true
	}

	if i, ok := toInt64(v); ok {
		return big.NewInt(i), true
	}

	return nil, false
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case *big.Int:
		if x != nil && x.IsInt64() {
			return x.Int64(), true
		}
	}

	return 0, false
}

func toText(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}

	return "", false
}

func toList(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []string:
		l := make([]interface{}, len(x))
		for i, s := range x {
			l[i] = s
		}
		return l, true
	}

	return nil, false
}

func toDict(v interface{}) (*Dict, bool) {
	switch x := v.(type) {
	case *Dict:
		if x == nil {
			return nil, false
		}
		return x, true
	case Dict:
		return &x, true
	case map[string]interface{}:
		d := NewDict()
		for _, k := range sortedKeys(x) {
			d.Set(k, x[k])
		}
		return d, true
	case map[string]string:
		d := NewDict()
		for k, s := range x {
			d.Set(k, s)
		}
		return d, true
	}

	return nil, false
}
