package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
)

const maxArgsLen = 200

// Key builds a deterministic cache key from an operation name and its
// arguments. Arguments are JSON encoded, so structs serialize in field order
// and maps with sorted keys: deeply equal arguments always give the same key.
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return op
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%#v", a))
			continue
		}
		parts = append(parts, string(b))
	}
	joined := strings.Join(parts, ",")

	// long argument lists are hashed; the op prefix stays readable
	if len(joined) > maxArgsLen {
		return fmt.Sprintf("%s:h_%x", op, md5.Sum([]byte(joined)))
	}
	return op + ":" + joined
}
