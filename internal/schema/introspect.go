package schema

import "context"

// Introspector issues the three metadata queries the parser needs.
// Implementations are read-only and safe for concurrent use.
type Introspector interface {
	// ListTables returns every table name in the current database.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeColumns returns the columns of table in database order.
	DescribeColumns(ctx context.Context, table string) ([]ColumnRow, error)

	// CreateStatement returns the CREATE TABLE text of table, or "" when
	// the server returns none (views, for example).
	CreateStatement(ctx context.Context, table string) (string, error)
}
