package httpmsg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date formats accepted for HTTP dates (RFC 9110 section 5.6.7).
const (
	rfc1123Format = "Mon, 02 Jan 2006 15:04:05 GMT"  // "Sun, 06 Nov 1994 08:49:37 GMT"
	rfc850Format  = "Monday, 02-Jan-06 15:04:05 GMT" // "Sunday, 06-Nov-94 08:49:37 GMT"
	ascTimeFormat = "Mon Jan _2 15:04:05 2006"       // "Sun Nov  6 08:49:37 1994"
)

// ParseDateTime parses an HTTP date in any of the three RFC 9110 formats
// and returns the corresponding UTC instant.
func ParseDateTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)

	for _, format := range []string{rfc1123Format, rfc850Format, ascTimeFormat} {
		if t, err := time.Parse(format, text); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized HTTP date: %q", text)
}

// Expiry computes the expiry instant from Cache-Control and Expires
// header values, in that precedence: "no-cache" expires immediately,
// "max-age=N" expires N seconds after now, otherwise the Expires date
// applies. The zero time means the message never expires.
func Expiry(cacheControl, expires string, now time.Time) time.Time {
	const maxAgePrefix = "max-age="

	compact := strings.ReplaceAll(cacheControl, " ", "")

	var maxAge string
	for _, token := range strings.Split(compact, ",") {
		if strings.EqualFold(token, "no-cache") {
			return now
		}
		if len(token) > len(maxAgePrefix) && strings.EqualFold(token[:len(maxAgePrefix)], maxAgePrefix) {
			maxAge = token[len(maxAgePrefix):]
		}
	}

	if maxAge != "" {
		if seconds, err := strconv.ParseUint(maxAge, 10, 32); err == nil {
			return now.Add(time.Duration(seconds) * time.Second)
		}
	}

	if expires != "" {
		if t, err := ParseDateTime(expires); err == nil {
			return t
		}
	}

	return time.Time{}
}
