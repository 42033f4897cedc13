package schema

import (
	"regexp"
	"strings"
)

// The grammar understood here is the one SHOW CREATE TABLE emits for a
// named single-column constraint, one constraint per line:
//
//	CONSTRAINT `name` FOREIGN KEY (`col`) REFERENCES [`db`.]`table` (`col`) [ON DELETE act] [ON UPDATE act]
//
// Composite keys and anything else starting with CONSTRAINT (CHECK, ...)
// do not match and are skipped.
var (
	constraintLine = regexp.MustCompile("(?i)CONSTRAINT `([^`]+)` FOREIGN KEY \\(`([^`]+)`\\) REFERENCES (?:`[^`]+`\\.)?`([^`]+)` \\(`([^`]+)`\\)")
	onUpdateClause = regexp.MustCompile(`(?i)ON UPDATE (RESTRICT|CASCADE|SET NULL|SET DEFAULT|NO ACTION)`)
	onDeleteClause = regexp.MustCompile(`(?i)ON DELETE (RESTRICT|CASCADE|SET NULL|SET DEFAULT|NO ACTION)`)
)

// ExtractForeignKeys returns the foreign keys declared in a CREATE TABLE
// statement, in declaration order. Lines it cannot read are skipped; it
// never fails.
func ExtractForeignKeys(ddl string) []ForeignKey {
	ddl = strings.ReplaceAll(ddl, "\r", "")

	var fks []ForeignKey
	for _, line := range strings.Split(ddl, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "CONSTRAINT") {
			continue
		}
		if fk, ok := parseConstraint(line); ok {
			fks = append(fks, fk)
		}
	}
	return fks
}

func parseConstraint(line string) (ForeignKey, bool) {
	m := constraintLine.FindStringSubmatch(line)
	if len(m) != 5 {
		return ForeignKey{}, false
	}
	return ForeignKey{
		Name:      m[1],
		Column:    m[2],
		RefTable:  m[3],
		RefColumn: m[4],
		OnUpdate:  referentialAction(onUpdateClause, line),
		OnDelete:  referentialAction(onDeleteClause, line),
	}, true
}

func referentialAction(clause *regexp.Regexp, line string) string {
	if m := clause.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1])
	}
	return ActionRestrict
}
