package schema

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/dbparser/internal/cache/memory"
	"github.com/koustreak/dbparser/internal/database"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResult struct {
	cols []string
	data [][]any
}

// stubDB answers queries from a fixed map keyed by SQL text.
type stubDB struct {
	results     map[string]stubResult
	queries     []string
	sawDeadline bool
}

func (s *stubDB) Ping(context.Context) error { return nil }
func (s *stubDB) Close()                     {}

func (s *stubDB) Query(ctx context.Context, sql string, _ ...any) (database.Rows, error) {
	s.queries = append(s.queries, sql)
	_, s.sawDeadline = ctx.Deadline()
	r, ok := s.results[sql]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such table")
	}
	return &stubRows{cols: r.cols, data: r.data}, nil
}

type stubRows struct {
	cols []string
	data [][]any
	pos  int
}

func (r *stubRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*any)) = r.data[r.pos-1][i]
	}
	return nil
}

func (r *stubRows) Columns() ([]string, error) { return r.cols, nil }
func (r *stubRows) Close()                     {}
func (r *stubRows) Err() error                 { return nil }

func b(s string) []byte { return []byte(s) }

func shopDB() *stubDB {
	return &stubDB{results: map[string]stubResult{
		"SHOW TABLES": {
			cols: []string{"Tables_in_shop"},
			data: [][]any{{b("orders")}, {b("users")}},
		},
		"SHOW COLUMNS FROM `orders`": {
			cols: []string{"Field", "Type", "Null", "Key", "Default", "Extra"},
			data: [][]any{
				{b("id"), b("int unsigned"), b("NO"), b("PRI"), nil, b("auto_increment")},
				{b("user_id"), b("int unsigned"), b("NO"), b("MUL"), nil, b("")},
				{b("status"), b("enum('new','paid')"), b("YES"), b(""), b("new"), b("")},
			},
		},
		"SHOW CREATE TABLE `orders`": {
			cols: []string{"Table", "Create Table"},
			data: [][]any{{b("orders"), b("CREATE TABLE `orders` (\n" +
				"  CONSTRAINT `fk_user` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`)\n)")}},
		},
		"SHOW CREATE TABLE `recent_orders`": {
			cols: []string{"View", "Create View", "character_set_client", "collation_connection"},
			data: [][]any{{b("recent_orders"), b("CREATE VIEW ..."), b("utf8mb4"), b("utf8mb4_0900_ai_ci")}},
		},
	}}
}

func TestMySQLIntrospector_ListTables(t *testing.T) {
	m := NewMySQLIntrospector(shopDB(), 0)

	tables, err := m.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)
}

func TestMySQLIntrospector_DescribeColumns(t *testing.T) {
	db := shopDB()
	m := NewMySQLIntrospector(db, time.Second)

	cols, err := m.DescribeColumns(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, db.sawDeadline)

	assert.Equal(t, ColumnRow{Field: "id", Type: "int unsigned", Key: "PRI", Extra: "auto_increment"}, cols[0])
	assert.False(t, cols[1].Null)
	assert.True(t, cols[2].Null)
	require.NotNil(t, cols[2].Default)
	assert.Equal(t, "new", *cols[2].Default)
	assert.Nil(t, cols[0].Default)
}

func TestMySQLIntrospector_CreateStatement(t *testing.T) {
	m := NewMySQLIntrospector(shopDB(), 0)

	ddl, err := m.CreateStatement(context.Background(), "orders")
	require.NoError(t, err)
	assert.Contains(t, ddl, "CONSTRAINT `fk_user`")

	ddl, err = m.CreateStatement(context.Background(), "recent_orders")
	require.NoError(t, err)
	assert.Empty(t, ddl)
}

func TestMySQLIntrospector_QuotesIdentifiers(t *testing.T) {
	db := shopDB()
	m := NewMySQLIntrospector(db, 0)

	_, err := m.DescribeColumns(context.Background(), "we`ird")
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, "SHOW COLUMNS FROM `we``ird`", db.queries[0])
}

func TestMySQLIntrospector_FeedsParser(t *testing.T) {
	ctx := context.Background()
	db := shopDB()
	p := newTestParser(NewMySQLIntrospector(db, 0), memory.New())

	tbl, err := p.Table(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, tbl.PrimaryKeys())

	col, _ := tbl.Column("user_id")
	fk, ok := col.References()
	require.True(t, ok)
	assert.Equal(t, "users", fk.RefTable)
	assert.Equal(t, ActionRestrict, fk.OnDelete)
}
