package xmlstate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Value enumerates the types the conversion layer understands.
type Value interface {
	string | bool |
		int | int8 | int16 | int32 | int64 |
		uint | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 |
		*url.URL
}

// Assign reads the element text or attribute value, converts it to T and
// passes it to set. Conversion failures abort the parse.
func Assign[T Value](set func(T)) Step {
	return Step{kind: stepParse, parse: func(text string) error {
		value, err := parseValue[T](text)
		if err != nil {
			return err
		}
		set(value)
		return nil
	}}
}

// Append reads a value like Assign and appends it to list.
func Append[T Value](list *[]T) Step {
	return Assign(func(value T) {
		*list = append(*list, value)
	})
}

// AssignFlag treats the element as a boolean flag: an empty element means
// true by presence, otherwise the text is read as a boolean.
func AssignFlag(set func(bool)) Step {
	return Step{kind: stepParse, parse: func(text string) error {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			set(true)
			return nil
		}
		value, err := parseBool(trimmed)
		if err != nil {
			return err
		}
		set(value)
		return nil
	}}
}

// AssignEnum converts the value through the given key map. Unknown keys
// abort the parse.
func AssignEnum[T any](values map[string]T, set func(T)) Step {
	return Step{kind: stepParse, parse: func(text string) error {
		trimmed := strings.TrimSpace(text)
		value, ok := values[trimmed]
		if !ok {
			return fmt.Errorf("invalid value for enumeration: %q", trimmed)
		}
		set(value)
		return nil
	}}
}

// AssignEnumOpportunistic converts like AssignEnum but degrades to the
// fallback with the raw text when the key is unknown, for schemas whose
// value set is open-ended.
func AssignEnumOpportunistic[T any](values map[string]T, set func(T), fallback func(string)) Step {
	return Step{kind: stepParse, parse: func(text string) error {
		trimmed := strings.TrimSpace(text)
		if value, ok := values[trimmed]; ok {
			set(value)
		} else {
			fallback(trimmed)
		}
		return nil
	}}
}

// Segment selects a component of a dotted version number.
type Segment int

// Version number segments.
const (
	SegmentMajor Segment = iota
	SegmentMinor
)

// Version is a dotted two-segment version number.
type Version struct {
	Major int
	Minor int
}

// String formats the version as "major.minor".
func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// IsZero reports whether the version was never assigned.
func (v Version) IsZero() bool { return v == Version{} }

// AssignVersion reads an integer into one segment of a version number.
func AssignVersion(version *Version, segment Segment) Step {
	return Assign(func(number int) {
		switch segment {
		case SegmentMajor:
			version.Major = number
		case SegmentMinor:
			version.Minor = number
		}
	})
}

func parseValue[T Value](text string) (T, error) {
	var value T
	trimmed := strings.TrimSpace(text)

	var err error
	switch out := any(&value).(type) {
	case *string:
		*out = text

	case *bool:
		*out, err = parseBool(trimmed)

	case *int:
		err = parseSigned(trimmed, strconv.IntSize, func(n int64) { *out = int(n) })
	case *int8:
		err = parseSigned(trimmed, 8, func(n int64) { *out = int8(n) })
	case *int16:
		err = parseSigned(trimmed, 16, func(n int64) { *out = int16(n) })
	case *int32:
		err = parseSigned(trimmed, 32, func(n int64) { *out = int32(n) })
	case *int64:
		err = parseSigned(trimmed, 64, func(n int64) { *out = n })

	case *uint:
		err = parseUnsigned(trimmed, strconv.IntSize, func(n uint64) { *out = uint(n) })
	case *uint8:
		err = parseUnsigned(trimmed, 8, func(n uint64) { *out = uint8(n) })
	case *uint16:
		err = parseUnsigned(trimmed, 16, func(n uint64) { *out = uint16(n) })
	case *uint32:
		err = parseUnsigned(trimmed, 32, func(n uint64) { *out = uint32(n) })
	case *uint64:
		err = parseUnsigned(trimmed, 64, func(n uint64) { *out = n })

	case *float32:
		var f float64
		if f, err = strconv.ParseFloat(trimmed, 32); err == nil {
			*out = float32(f)
		} else {
			err = fmt.Errorf("invalid number: %q", trimmed)
		}
	case *float64:
		if *out, err = strconv.ParseFloat(trimmed, 64); err != nil {
			err = fmt.Errorf("invalid number: %q", trimmed)
		}

	case **url.URL:
		if *out, err = url.Parse(trimmed); err != nil {
			err = fmt.Errorf("invalid URL: %q", trimmed)
		}
	}

	return value, err
}

func parseSigned(text string, bits int, store func(int64)) error {
	n, err := strconv.ParseInt(text, 10, bits)
	if err != nil {
		return fmt.Errorf("invalid number: %q", text)
	}
	store(n)
	return nil
}

func parseUnsigned(text string, bits int, store func(uint64)) error {
	n, err := strconv.ParseUint(text, 10, bits)
	if err != nil {
		return fmt.Errorf("invalid number: %q", text)
	}
	store(n)
	return nil
}

// parseBool accepts the usual spellings of booleans as well as integers,
// where any nonzero value is true.
func parseBool(text string) (bool, error) {
	switch strings.ToLower(text) {
	case "true", "yes", "on", "enabled":
		return true, nil
	case "false", "no", "off", "disabled":
		return false, nil
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n != 0, nil
	}

	return false, fmt.Errorf("invalid boolean: %q", text)
}
