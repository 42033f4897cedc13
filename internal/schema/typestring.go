package schema

import (
	"regexp"
	"strings"
)

const unsignedMarker = "unsigned"

var (
	enumType  = regexp.MustCompile(`(?i)^enum\((.+)\).*$`)
	sizedType = regexp.MustCompile(`(?i)^(.+?)\(([0-9,]+)\).*$`)
)

// DecodeType splits a raw column type as reported by SHOW COLUMNS into its
// lowercase kind, its length or enum values, and the unsigned flag.
//
//	"varchar(255)"           -> varchar, Size "255"
//	"decimal(10,2) unsigned" -> decimal, Size "10,2", unsigned
//	"enum('a','b')"          -> enum, Values [a b]
//	"datetime"               -> datetime, no length
//
// Enum values are split on every comma, so a literal containing a comma is
// split too.
func DecodeType(raw string) (kind string, length Length, unsigned bool) {
	t := strings.TrimSpace(raw)

	if strings.HasSuffix(strings.ToLower(t), unsignedMarker) {
		t = strings.TrimRight(t[:len(t)-len(unsignedMarker)], " \t")
		unsigned = true
	}

	if m := enumType.FindStringSubmatch(t); m != nil {
		parts := strings.Split(m[1], ",")
		values := make([]string, len(parts))
		for i, p := range parts {
			values[i] = unquote(p)
		}
		return "enum", Length{Values: values}, unsigned
	}

	if m := sizedType.FindStringSubmatch(t); m != nil {
		return strings.ToLower(m[1]), Length{Size: m[2]}, unsigned
	}

	return strings.ToLower(t), Length{}, unsigned
}

// unquote strips one pair of surrounding single quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
