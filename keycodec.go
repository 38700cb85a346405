package redistruct

import "strings"

// NoSuffix is the sentinel suffix meaning "omit the suffix segment". Used by
// class-level collection keys that must not carry the default object suffix.
const NoSuffix = "\x00"

// BuildKey joins prefix, identifier and suffix into a storage key. It is a
// pure function: same inputs, same key. An empty identifier is rejected with
// MissingIdentifier since it would silently produce a shared, ambiguous key.
//
// An empty or NoSuffix suffix omits the suffix segment entirely.
func BuildKey(delimiter, prefix, identifier, suffix string) (string, error) {
	if identifier == "" {
		return "", Error{Code: MissingIdentifier, UserData: prefix}
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	parts := make([]string, 0, 3)
	parts = append(parts, prefix, identifier)
	if suffix != "" && suffix != NoSuffix {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, delimiter), nil
}

// BuildClassKey derives the key of a class-level collection: no identifier
// segment and no suffix, just the model prefix and the collection name.
func BuildClassKey(delimiter, prefix, name string) string {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return prefix + delimiter + name
}
