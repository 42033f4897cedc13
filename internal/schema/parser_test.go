package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/cache/memory"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntrospector struct {
	tables  []string
	columns map[string][]ColumnRow
	ddl     map[string]string
	delay   time.Duration
	listErr error

	listCalls     atomic.Int32
	describeCalls atomic.Int32
	ddlCalls      atomic.Int32
}

func newFake() *fakeIntrospector {
	return &fakeIntrospector{
		tables: []string{"users", "orders"},
		columns: map[string][]ColumnRow{
			"users": {
				{Field: "id", Type: "int unsigned", Key: "PRI", Extra: "auto_increment"},
				{Field: "email", Type: "varchar(255)", Key: "UNI"},
			},
			"orders": ordersRows(),
		},
		ddl: map[string]string{
			"users":  "CREATE TABLE `users` (\n  `id` int unsigned NOT NULL,\n  PRIMARY KEY (`id`)\n)",
			"orders": ordersDDL,
		},
	}
}

func (f *fakeIntrospector) ListTables(context.Context) ([]string, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.tables...), nil
}

func (f *fakeIntrospector) DescribeColumns(_ context.Context, table string) ([]ColumnRow, error) {
	f.describeCalls.Add(1)
	time.Sleep(f.delay)
	return f.columns[table], nil
}

func (f *fakeIntrospector) CreateStatement(_ context.Context, table string) (string, error) {
	f.ddlCalls.Add(1)
	return f.ddl[table], nil
}

func newTestParser(db Introspector, backend cache.Backend) *Parser {
	return NewParser(db, cache.New(backend, nil), &Config{Prefix: "shop"})
}

func TestParser_Tables(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	p := newTestParser(db, memory.New())

	list, err := p.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders"}, list)

	ok, err := p.TableExists(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.TableExists(ctx, "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), db.listCalls.Load())
}

func TestParser_TablesErrorPropagates(t *testing.T) {
	db := newFake()
	db.listErr = errs.New(errs.ErrKindConnectionFailed, "down")
	p := newTestParser(db, memory.New())

	_, err := p.Tables(context.Background())
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestParser_Table(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	p := newTestParser(db, memory.New())

	tbl, err := p.Table(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, tbl.PrimaryKeys())
	assert.Len(t, tbl.ForeignKeys(), 3)

	again, err := p.Table(ctx, "orders")
	require.NoError(t, err)
	assert.Same(t, tbl, again)
	assert.Equal(t, int32(1), db.describeCalls.Load())
	assert.Equal(t, int32(1), db.ddlCalls.Load())
}

func TestParser_TableNotFound(t *testing.T) {
	db := newFake()
	p := newTestParser(db, memory.New())

	_, err := p.Table(context.Background(), "ghosts")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, int32(0), db.describeCalls.Load())
}

func TestParser_TableSchemaInconsistency(t *testing.T) {
	db := newFake()
	db.ddl["users"] = "  CONSTRAINT `fk_team` FOREIGN KEY (`team_id`) REFERENCES `teams` (`id`)"
	p := newTestParser(db, memory.New())

	_, err := p.Table(context.Background(), "users")
	assert.True(t, errs.IsSchemaInconsistency(err))
}

func TestParser_FlushReloads(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	backend := memory.New()
	p := newTestParser(db, backend)

	first, err := p.Table(ctx, "users")
	require.NoError(t, err)

	require.NoError(t, p.Flush(ctx))
	_, ok, _ := backend.Get(ctx, p.TableKey("users"))
	assert.False(t, ok)
	_, ok, _ = backend.Get(ctx, p.ListKey())
	assert.False(t, ok)

	second, err := p.Table(ctx, "users")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, first.ColumnNames(), second.ColumnNames())
	assert.Equal(t, int32(2), db.describeCalls.Load())
	assert.Equal(t, int32(2), db.ddlCalls.Load())
	assert.Equal(t, int32(2), db.listCalls.Load())
}

// hookedBackend runs beforeInvalidate ahead of each tag invalidation.
type hookedBackend struct {
	*memory.Backend
	beforeInvalidate func()
}

func (h *hookedBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	if h.beforeInvalidate != nil {
		h.beforeInvalidate()
	}
	return h.Backend.InvalidateTags(ctx, tags...)
}

func TestParser_FlushDoesNotKeepListReadDuringFlush(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	backend := &hookedBackend{Backend: memory.New()}
	p := newTestParser(db, backend)

	_, err := p.Tables(ctx)
	require.NoError(t, err)

	backend.beforeInvalidate = func() {
		_, err := p.Tables(ctx)
		assert.NoError(t, err)
	}
	require.NoError(t, p.Flush(ctx))
	backend.beforeInvalidate = nil

	db.tables = []string{"users", "orders", "coupons"}
	tables, err := p.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders", "coupons"}, tables)
	assert.Equal(t, int32(2), db.listCalls.Load())
}

func TestParser_FlushWithKeyListBackend(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	backend := &mapBackend{data: map[string][]byte{}}
	p := newTestParser(db, backend)

	_, err := p.Table(ctx, "users")
	require.NoError(t, err)
	_, err = p.Table(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, p.Flush(ctx))
	assert.Empty(t, backend.data)

	_, err = p.Table(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int32(3), db.describeCalls.Load())
}

func TestParser_Invalidate(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	p := newTestParser(db, memory.New())

	_, err := p.Table(ctx, "users")
	require.NoError(t, err)
	_, err = p.Table(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, p.Invalidate(ctx, "users"))
	_, err = p.Table(ctx, "users")
	require.NoError(t, err)
	_, err = p.Table(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, int32(3), db.describeCalls.Load())
}

func TestParser_SharedCacheAcrossParsers(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	backend := memory.New()

	a := newTestParser(db, backend)
	b := newTestParser(db, backend)

	ta, err := a.Table(ctx, "orders")
	require.NoError(t, err)
	tb, err := b.Table(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, ta.ColumnNames(), tb.ColumnNames())
	assert.Equal(t, int32(1), db.describeCalls.Load())
}

func TestParser_ConcurrentFirstAccess(t *testing.T) {
	ctx := context.Background()
	db := newFake()
	db.delay = 20 * time.Millisecond
	backend := memory.New()
	parsers := []*Parser{
		newTestParser(db, backend),
		newTestParser(db, backend),
		newTestParser(db, backend),
	}

	const callers = 24
	var wg sync.WaitGroup
	results := make([]*Table, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl, err := parsers[i%len(parsers)].Table(ctx, "orders")
			assert.NoError(t, err)
			results[i] = tbl
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), db.describeCalls.Load())
	assert.Equal(t, int32(1), db.ddlCalls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].ColumnNames(), r.ColumnNames())
		assert.Equal(t, results[0].PrimaryKeys(), r.PrimaryKeys())
	}
}

func TestParser_Keys(t *testing.T) {
	p := NewParser(newFake(), cache.New(memory.New(), nil), &Config{Prefix: "shop"})
	assert.Equal(t, "shop.tables.list", p.ListKey())
	assert.Equal(t, "shop.tables.users", p.TableKey("users"))
	assert.Equal(t, "shop.tables.list#table", p.TableKey("list"))
	assert.Equal(t, "shop.db.table", p.Tag())

	bare := NewParser(newFake(), cache.New(memory.New(), nil), nil)
	assert.Equal(t, "tables.users", bare.TableKey("users"))
}

func TestParser_DB(t *testing.T) {
	db := newFake()
	p := NewParser(db, cache.New(memory.New(), nil), nil)
	assert.Same(t, db, p.DB())
}

// mapBackend is a bare Backend with no optional capabilities.
type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestNewParser_NonPositiveTTLsUseDefaults(t *testing.T) {
	gw := cache.New(memory.New(), nil)

	p := NewParser(newFake(), gw, &Config{ListTTL: 0, TableTTL: -time.Second})
	assert.Equal(t, 24*time.Hour, p.listTTL)
	assert.Equal(t, 30*24*time.Hour, p.tableTTL)

	p = NewParser(newFake(), gw, &Config{ListTTL: time.Minute, TableTTL: time.Hour})
	assert.Equal(t, time.Minute, p.listTTL)
	assert.Equal(t, time.Hour, p.tableTTL)
}
