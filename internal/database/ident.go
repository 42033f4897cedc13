package database

import "strings"

// QuoteIdent wraps a MySQL identifier in backticks, doubling any embedded
// backtick. SHOW statements cannot take placeholders for table names, so
// every identifier interpolated into one must pass through here.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
