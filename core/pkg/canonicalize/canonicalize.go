// Package canonicalize provides the single deterministic byte encoding used
// for every hash and signature in the mesh (spec §4.1, C1). Nothing else in
// the tree is permitted to hash raw, non-canonical bytes — this package is
// the only hashing surface.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// Bytes returns the RFC 8785 canonical JSON representation of v.
//
//   - object keys sorted lexicographically at every nesting depth
//   - compact separators, no whitespace
//   - numbers normalized (3.0 -> 3)
//   - strings NFC-normalized, UTF-8
//   - booleans/null lowercase
//
// v is first marshaled with the standard encoder (so struct tags apply),
// then decoded generically and NFC-normalized, then transformed with the
// RFC 8785 implementation to get byte-exact canonical output.
func Bytes(v interface{}) ([]byte, error) {
	pre, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(pre))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}
	generic = normalizeStrings(generic)

	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: re-marshal: %w", err)
	}

	out, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// String returns Bytes(v) as a string.
func String(v interface{}) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// normalizeStrings walks a generically-decoded JSON value and NFC-normalizes
// every string, including map keys. Sets and tuples already arrive as
// []interface{} from the decoder; jcs.Transform sorts object keys for us,
// so we only need to recurse and normalize leaves here.
func normalizeStrings(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeStrings(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = normalizeStrings(val)
		}
		return out
	default:
		return t
	}
}

// shortestFloat renders a float64 in the shortest round-trip decimal form,
// matching spec's "3.0 emitted as 3" rule. json.Number already does this
// for values that started as integers; this helper is exposed for callers
// building json.Number values programmatically (e.g. confidence scores).
func shortestFloat(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Number converts a float64 into the json.Number canonicalize expects so
// that integral floats collapse to integers under Bytes/String.
func Number(f float64) json.Number {
	if f == float64(int64(f)) {
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return shortestFloat(f)
}

// SortedStrings returns a freshly sorted copy — used wherever the data
// model says "sets and tuples converted to sorted arrays" (§4.1) ahead of
// canonicalization, e.g. correlation groups or tool allow-lists.
func SortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
