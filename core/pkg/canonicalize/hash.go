package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
)

// HashPrefix is prepended to every SHA-256 text digest produced by this
// package — the only hashing surface in the mesh (§4.1).
const HashPrefix = "sha256:"

// HashBytes returns the "sha256:"-prefixed hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// HashText hashes UTF-8 text directly (spec's "SHA-256 text helper").
func HashText(s string) string {
	return HashBytes([]byte(s))
}

// Hash canonicalizes v and returns its "sha256:"-prefixed digest.
func Hash(v interface{}) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashWithBlankedField canonicalizes v after temporarily zeroing the named
// field (by JSON tag) to the empty string and returns the digest. The
// field's original value is restored afterwards and the digest is not
// written into it; callers store it themselves (authority.Ledger.Append
// does). This is the hashing step of §4.1's hash-field rule, and of
// §4.4/§4.5's entry_hash / abp hash / seal_hash conventions.
//
// v must be a pointer to a struct whose field has a `json:"<fieldName>"` tag
// matching fieldJSONName; the field must be a string.
func HashWithBlankedField(v interface{}, fieldJSONName string) (string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return "", fmt.Errorf("canonicalize: HashWithBlankedField requires a pointer to struct")
	}
	elem := rv.Elem()
	field, ok := findJSONField(elem, fieldJSONName)
	if !ok {
		return "", fmt.Errorf("canonicalize: no field with json tag %q", fieldJSONName)
	}
	if field.Kind() != reflect.String {
		return "", fmt.Errorf("canonicalize: field %q is not a string", fieldJSONName)
	}

	saved := field.String()
	field.SetString("")
	b, err := Bytes(v)
	field.SetString(saved)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

func findJSONField(v reflect.Value, jsonName string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		name := tag
		for j := 0; j < len(tag); j++ {
			if tag[j] == ',' {
				name = tag[:j]
				break
			}
		}
		if name == jsonName {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}
