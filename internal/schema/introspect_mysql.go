package schema

import (
	"context"
	"time"

	"github.com/koustreak/dbparser/internal/database"
	"github.com/koustreak/dbparser/internal/errs"
)

// MySQLIntrospector implements Introspector with SHOW statements.
type MySQLIntrospector struct {
	db      database.DB
	timeout time.Duration
}

// NewMySQLIntrospector creates a MySQL introspector. A positive timeout
// bounds each query.
func NewMySQLIntrospector(db database.DB, timeout time.Duration) *MySQLIntrospector {
	return &MySQLIntrospector{db: db, timeout: timeout}
}

// DB returns the connection the introspector queries.
func (m *MySQLIntrospector) DB() database.DB {
	return m.db
}

// ListTables runs SHOW TABLES. The result column is named after the
// database (Tables_in_<db>), so the first column is read by position.
func (m *MySQLIntrospector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := m.query(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows.data))
	for _, row := range rows.data {
		if len(rows.columns) == 0 {
			break
		}
		name, _ := database.Text(row[rows.columns[0]])
		tables = append(tables, name)
	}
	return tables, nil
}

// DescribeColumns runs SHOW COLUMNS FROM `table`.
func (m *MySQLIntrospector) DescribeColumns(ctx context.Context, table string) ([]ColumnRow, error) {
	rows, err := m.query(ctx, "SHOW COLUMNS FROM "+database.QuoteIdent(table))
	if err != nil {
		return nil, err
	}

	cols := make([]ColumnRow, 0, len(rows.data))
	for _, row := range rows.data {
		var c ColumnRow
		c.Field, _ = database.Text(row["Field"])
		c.Type, _ = database.Text(row["Type"])
		null, _ := database.Text(row["Null"])
		c.Null = null == "YES"
		c.Key, _ = database.Text(row["Key"])
		if def, ok := database.Text(row["Default"]); ok {
			c.Default = &def
		}
		c.Extra, _ = database.Text(row["Extra"])
		cols = append(cols, c)
	}
	return cols, nil
}

// CreateStatement runs SHOW CREATE TABLE `table` and returns its
// "Create Table" column.
func (m *MySQLIntrospector) CreateStatement(ctx context.Context, table string) (string, error) {
	rows, err := m.query(ctx, "SHOW CREATE TABLE "+database.QuoteIdent(table))
	if err != nil {
		return "", err
	}
	if len(rows.data) == 0 {
		return "", errs.Newf(errs.ErrKindNotFound, "no creation statement for table %s", table)
	}
	ddl, _ := database.Text(rows.data[0]["Create Table"])
	return ddl, nil
}

type result struct {
	columns []string
	data    []map[string]any
}

func (m *MySQLIntrospector) query(ctx context.Context, sql string) (*result, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	rows, err := m.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}
	data, err := database.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return &result{columns: columns, data: data}, nil
}
