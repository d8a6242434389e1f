package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tuple extracts the tracked-attribute subset of a conformed row's fields.
// Fields absent from the row are carried as explicit nils so that a field
// appearing later in the source schema registers as a change.
func Tuple(fields map[string]interface{}, tracked []string) map[string]interface{} {
	tuple := make(map[string]interface{}, len(tracked))
	for _, name := range tracked {
		tuple[name] = fields[name]
	}
	return tuple
}

// Equal compares two tracked-attribute tuples field-wise. Null is distinct
// from every non-null value; two nulls are equal.
func Equal(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok {
			return false
		}
		if !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Hash computes a stable SHA-256 digest of a tuple, surfaced on lifecycle
// events so observers can audit which version a key moved to. Field order
// does not affect the digest.
func Hash(tuple map[string]interface{}) string {
	names := make([]string, 0, len(tuple))
	for name := range tuple {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(canonical(tuple[name]))
		b.WriteByte('\x1f')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func canonical(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []string:
		return strings.Join(t, "\x1e")
	default:
		return fmt.Sprintf("%v", t)
	}
}
