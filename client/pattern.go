package client

import (
	"github.com/luma/nrepl/bencode"
)

// Matcher decides whether the value a message carries under one key satisfies
// a pattern. Use Exact or Present to build one.
type Matcher interface {
	match(value interface{}, ok bool) bool
}

type exact struct {
	value interface{}
}

func (e exact) match(value interface{}, ok bool) bool {
	return ok && bencode.Equal(value, e.value)
}

type present struct{}

func (present) match(_ interface{}, ok bool) bool {
	return ok
}

// Exact matches messages whose value under the key equals value, as decided by
// bencode.Equal.
func Exact(value interface{}) Matcher {
	return exact{value: value}
}

// Present matches messages that carry the key, whatever its value.
func Present() Matcher {
	return present{}
}

// Pattern maps message keys to matchers. A message matches when every key of
// the pattern matches. An empty pattern matches every message. A nil matcher
// behaves like Present.
type Pattern map[string]Matcher

func (p Pattern) Matches(msg *bencode.Dict) bool {
	for key, m := range p {
		value, ok := msg.Get(key)

		if m == nil {
			m = present{}
		}

		if !m.match(value, ok) {
			return false
		}
	}

	return true
}
