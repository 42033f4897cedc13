package schema

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/koustreak/dbparser/internal/logger"
)

// Config tunes a Parser.
type Config struct {
	// Prefix namespaces every cache key so several databases can share
	// one cache backend.
	Prefix string

	// ListTTL is the lifetime of the cached table-name list. Tables come
	// and go more often than their columns change, so it is shorter.
	ListTTL time.Duration

	// TableTTL is the lifetime of each cached Table.
	TableTTL time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns a one-day list TTL and a thirty-day table TTL.
func DefaultConfig() *Config {
	return &Config{
		ListTTL:  24 * time.Hour,
		TableTTL: 30 * 24 * time.Hour,
		Logger:   logger.Nop(),
	}
}

// Parser builds Table models from a live database and caches them at two
// levels: a map private to this Parser, and the shared cache behind the
// Gateway. It is safe for concurrent use.
type Parser struct {
	db     Introspector
	gw     *cache.Gateway
	prefix string
	tag    string

	listTTL  time.Duration
	tableTTL time.Duration
	log      *logger.Logger

	mu     sync.RWMutex
	tables map[string]*Table
	list   []string
}

// NewParser creates a Parser. A nil cfg means DefaultConfig; zero or
// negative TTLs in cfg fall back to the defaults, so parser entries always
// expire.
func NewParser(db Introspector, gw *cache.Gateway, cfg *Config) *Parser {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	listTTL, tableTTL := cfg.ListTTL, cfg.TableTTL
	if listTTL <= 0 {
		listTTL = def.ListTTL
	}
	if tableTTL <= 0 {
		tableTTL = def.TableTTL
	}
	log := cfg.Logger
	if log == nil {
		log = def.Logger
	}

	p := &Parser{
		db:       db,
		gw:       gw,
		prefix:   cfg.Prefix,
		listTTL:  listTTL,
		tableTTL: tableTTL,
		tables:   make(map[string]*Table),
	}
	p.tag = p.key("db.table")
	p.log = log.With().Str("component", "schema").Str("prefix", cfg.Prefix).Logger()
	return p
}

// DB returns the introspector the parser queries.
func (p *Parser) DB() Introspector {
	return p.db
}

// Tables returns every table name in the database, in the order the
// database lists them.
func (p *Parser) Tables(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	list := p.list
	p.mu.RUnlock()
	if list != nil {
		return slices.Clone(list), nil
	}

	list, err := cache.GetOrCompute(ctx, p.gw, p.ListKey(), p.listTTL, []string{p.tag},
		func(ctx context.Context) ([]string, error) {
			names, err := p.db.ListTables(ctx)
			if err != nil {
				return nil, fmt.Errorf("list tables: %w", err)
			}
			if names == nil {
				names = []string{}
			}
			p.log.Debugf("listed %d tables", len(names))
			return names, nil
		})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.list == nil {
		p.list = list
	}
	list = p.list
	p.mu.Unlock()
	return slices.Clone(list), nil
}

// TableExists reports whether name is among Tables.
func (p *Parser) TableExists(ctx context.Context, name string) (bool, error) {
	list, err := p.Tables(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(list, name), nil
}

// Table returns the model of the named table. Until Flush or Invalidate,
// every call for the same name returns the same *Table.
func (p *Parser) Table(ctx context.Context, name string) (*Table, error) {
	p.mu.RLock()
	t, ok := p.tables[name]
	p.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := cache.GetOrCompute(ctx, p.gw, p.TableKey(name), p.tableTTL, []string{p.tag},
		func(ctx context.Context) (*Table, error) {
			return p.build(ctx, name)
		})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.tables[name]; ok {
		return existing, nil
	}
	p.tables[name] = t
	return t, nil
}

func (p *Parser) build(ctx context.Context, name string) (*Table, error) {
	start := time.Now()

	exists, err := p.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s does not exist", name)
	}

	rows, err := p.db.DescribeColumns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("describe columns of %s: %w", name, err)
	}
	ddl, err := p.db.CreateStatement(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creation statement of %s: %w", name, err)
	}

	t, err := BuildTable(name, rows, ddl)
	if err != nil {
		return nil, err
	}

	p.log.DebugWith("table built", map[string]interface{}{
		"table":        name,
		"columns":      len(rows),
		"foreign_keys": len(t.ForeignKeys()),
		"took_ms":      time.Since(start).Milliseconds(),
	})
	return t, nil
}

// Invalidate forgets one table, locally and in the shared cache.
func (p *Parser) Invalidate(ctx context.Context, name string) error {
	if err := p.gw.Delete(ctx, p.TableKey(name)); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.tables, name)
	p.mu.Unlock()
	return nil
}

// Flush forgets every table and the table list, locally and in the shared
// cache, so the next access re-queries the database. The shared entries go
// first: clearing the local state earlier would let a concurrent call
// reload the stale shared copy. A load already computing when Flush runs
// may still store its result afterwards.
func (p *Parser) Flush(ctx context.Context) error {
	if err := p.gw.Invalidate(ctx, p.tag); err != nil {
		return fmt.Errorf("invalidate %s: %w", p.tag, err)
	}
	if err := p.gw.Delete(ctx, p.ListKey()); err != nil {
		return fmt.Errorf("delete table list: %w", err)
	}

	p.mu.Lock()
	p.tables = make(map[string]*Table)
	p.list = nil
	p.mu.Unlock()

	p.log.Info("schema cache flushed")
	return nil
}

// ListKey is the cache key of the table-name list.
func (p *Parser) ListKey() string {
	return p.key("tables.list")
}

// TableKey is the cache key of one table. A table literally named "list"
// gets a suffix so it cannot collide with ListKey.
func (p *Parser) TableKey(name string) string {
	if name == "list" {
		return p.key("tables.list#table")
	}
	return p.key("tables." + name)
}

// Tag is the tag every cache entry of this parser carries.
func (p *Parser) Tag() string {
	return p.tag
}

func (p *Parser) key(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}
