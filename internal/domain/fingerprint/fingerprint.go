// Package fingerprint computes stable content identifiers for structured data.
//
// The canonical form is independent of map key insertion order: object keys
// are sorted bytewise, array order is preserved, and scalars use their JSON
// literal. The canonical string is hashed with SHA-256 and rendered as
// lowercase hex.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds nesting so that cyclic maps fail fast instead of overflowing the stack.
const maxDepth = 512

// ErrUnencodable marks input that has no canonical form (cycles, NaN, funcs, channels).
// It is raised as a panic: passing such data is a programming error.
var ErrUnencodable = errors.New("fingerprint: unencodable value")

// Of returns the fingerprint of data.
func Of(data map[string]any) string {
	sum := sha256.Sum256([]byte(Canonical(data)))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the canonical serialization that Of hashes.
func Canonical(data map[string]any) string {
	var b strings.Builder
	writeValue(&b, data, 0)
	return b.String()
}

func writeValue(b *strings.Builder, v any, depth int) {
	if depth > maxDepth {
		panic(fmt.Errorf("%w: nesting deeper than %d (cycle?)", ErrUnencodable, maxDepth))
	}
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		writeString(b, val)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		writeFloat(b, val)
	case float32:
		writeFloat(b, float64(val))
	case int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(val, 10))
	case json.Number:
		writeNumber(b, val)
	case map[string]any:
		writeObject(b, val, depth)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, item, depth+1)
		}
		b.WriteByte(']')
	default:
		writeValue(b, generic(val), depth+1)
	}
}

func writeObject(b *strings.Builder, obj map[string]any, depth int) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, k)
		b.WriteByte(':')
		writeValue(b, obj[k], depth+1)
	}
	b.WriteByte('}')
}

func writeString(b *strings.Builder, s string) {
	b.WriteString(strconv.Quote(s))
}

func writeFloat(b *strings.Builder, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		panic(fmt.Errorf("%w: non-finite number %v", ErrUnencodable, f))
	}
	// Integral floats share the integer encoding so 1 and 1.0 fingerprint alike.
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		b.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeNumber(b *strings.Builder, n json.Number) {
	if i, err := n.Int64(); err == nil {
		b.WriteString(strconv.FormatInt(i, 10))
		return
	}
	f, err := n.Float64()
	if err != nil {
		panic(fmt.Errorf("%w: invalid number %q", ErrUnencodable, n.String()))
	}
	writeFloat(b, f)
}

// generic converts typed values (structs, typed maps and slices) into the
// map[string]any / []any shape by a JSON round trip.
func generic(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("%w: %T: %v", ErrUnencodable, v, err))
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		panic(fmt.Errorf("%w: %T: %v", ErrUnencodable, v, err))
	}
	return out
}
