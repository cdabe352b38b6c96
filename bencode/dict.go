package bencode

// Dict is a bencode dictionary that preserves the order in which keys were
// first set. Setting an existing key replaces its value but keeps its position.
//
// The zero value is an empty dictionary ready to use.
type Dict struct {
	keys   []string
	values map[string]interface{}
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{}
}

// Set sets key to value and returns the dictionary so calls can be chained.
func (d *Dict) Set(key string, value interface{}) *Dict {
	if d.values == nil {
		d.values = make(map[string]interface{})
	}

	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}

	d.values[key] = value
	return d
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (interface{}, bool) {
	if d == nil {
		return nil, false
	}

	v, ok := d.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil if it is absent.
func (d *Dict) Value(key string) interface{} {
	v, _ := d.Get(key)
	return v
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key. It is a no-op if the key is absent.
func (d *Dict) Delete(key string) {
	if !d.Has(key) {
		return
	}

	delete(d.values, key)

	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}

	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// Len returns the number of keys.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}

	return len(d.keys)
}

// Range calls fn for every key in insertion order until fn returns false.
func (d *Dict) Range(fn func(key string, value interface{}) bool) {
	if d == nil {
		return
	}

	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// GetString returns the value under key as text. Both string and []byte values
// are accepted.
func (d *Dict) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}

	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}

	return "", false
}

// GetInt returns the value under key if it is an integer that fits in an int64.
func (d *Dict) GetInt(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}

	return toInt64(v)
}

// GetList returns the value under key if it is a list.
func (d *Dict) GetList(key string) ([]interface{}, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}

	l, ok := v.([]interface{})
	return l, ok
}

// GetStrings returns the value under key as a list of text values. Items that
// are not strings are skipped.
func (d *Dict) GetStrings(key string) ([]string, bool) {
	l, ok := d.GetList(key)
	if !ok {
		return nil, false
	}

	ss := make([]string, 0, len(l))
	for _, item := range l {
		switch s := item.(type) {
		case string:
			ss = append(ss, s)
		case []byte:
			ss = append(ss, string(s))
		}
	}

	return ss, true
}

// GetDict returns the value under key if it is a dictionary.
func (d *Dict) GetDict(key string) (*Dict, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}

	switch dd := v.(type) {
	case *Dict:
		return dd, true
	case Dict:
		return &dd, true
	}

	return nil, false
}
