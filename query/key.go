package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cache slot: an ordered tuple such as
// {"heavymath", "markets", "detail", "1-market-9"}. Keys compare by value,
// element by element, through their JSON encoding.
type Key []any

// Hash is the canonical string form of the key.
func (k Key) Hash() string {
	parts := make([]string, len(k))
	for i, el := range k {
		parts[i] = encode(el)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// HasPrefix reports whether the first len(prefix) elements of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if encode(k[i]) != encode(prefix[i]) {
			return false
		}
	}
	return true
}

// With returns a copy of k extended by parts.
func (k Key) With(parts ...any) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

func (k Key) String() string {
	return k.Hash()
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
