package schema

import (
	"encoding/json"
	"slices"

	"github.com/koustreak/dbparser/internal/errs"
)

// Table is the structural model of one database table. It is immutable once
// built; accessors hand out deep copies, so one *Table can be shared by
// every caller of a Parser.
type Table struct {
	Name string

	primaryKeys []string
	columns     []Column
	index       map[string]int
}

// BuildTable decodes the column rows (kept in the order given) and attaches
// the foreign keys found in ddl. It fails with ErrKindSchemaInconsistency
// when a foreign key names a column that rows do not contain.
func BuildTable(name string, rows []ColumnRow, ddl string) (*Table, error) {
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		kind, length, unsigned := DecodeType(r.Type)
		cols = append(cols, Column{
			Name:       r.Field,
			Kind:       kind,
			Length:     length,
			Nullable:   r.Null,
			Key:        ParseKeyRole(r.Key),
			Default:    r.Default,
			Unsigned:   unsigned,
			Extra:      r.Extra,
			IsDeclared: true,
		})
	}
	return NewTable(name, cols, ExtractForeignKeys(ddl))
}

// NewTable assembles a table from already decoded columns and foreign keys.
// A repeated column name keeps its first position and takes the later value.
func NewTable(name string, cols []Column, fks []ForeignKey) (*Table, error) {
	t := &Table{
		Name:    name,
		columns: make([]Column, 0, len(cols)),
		index:   make(map[string]int, len(cols)),
	}

	for _, c := range cols {
		c = c.clone()
		c.ForeignKeys = nil
		if i, ok := t.index[c.Name]; ok {
			t.columns[i] = c
			continue
		}
		t.index[c.Name] = len(t.columns)
		t.columns = append(t.columns, c)
	}

	// Collected after the pass so a redefined column's final role decides.
	for _, c := range t.columns {
		if c.Key == KeyPrimary {
			t.primaryKeys = append(t.primaryKeys, c.Name)
		}
	}

	for _, fk := range fks {
		i, ok := t.index[fk.Column]
		if !ok {
			return nil, errs.Newf(errs.ErrKindSchemaInconsistency,
				"table %s: column %s, declared in foreign key %s, does not exist", name, fk.Column, fk.Name)
		}
		t.columns[i].ForeignKeys = append(t.columns[i].ForeignKeys, fk)
	}

	return t, nil
}

// PrimaryKeys returns the primary-key column names in column order.
func (t *Table) PrimaryKeys() []string {
	return slices.Clone(t.primaryKeys)
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i].clone(), true
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Columns returns the columns in database order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.clone()
	}
	return out
}

// ColumnNames returns the column names in database order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKeys returns every foreign key of the table, grouped by column in
// column order.
func (t *Table) ForeignKeys() []ForeignKey {
	var fks []ForeignKey
	for _, c := range t.columns {
		fks = append(fks, c.ForeignKeys...)
	}
	return fks
}

// WithVirtualColumns returns a copy of t extended with columns that do not
// exist in the database. They are marked IsDeclared=false. A virtual column
// never replaces a declared one and is skipped if it claims the primary role.
func (t *Table) WithVirtualColumns(cols ...Column) *Table {
	out := &Table{
		Name:        t.Name,
		primaryKeys: slices.Clone(t.primaryKeys),
		columns:     t.Columns(),
		index:       make(map[string]int, len(t.columns)+len(cols)),
	}
	for name, i := range t.index {
		out.index[name] = i
	}

	for _, c := range cols {
		if c.Key == KeyPrimary {
			continue
		}
		if _, ok := out.index[c.Name]; ok {
			continue
		}
		c = c.clone()
		c.IsDeclared = false
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out
}

type tableJSON struct {
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	PrimaryKeys []string `json:"primary_keys"`
}

// MarshalJSON encodes the table with its columns as an ordered array.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableJSON{
		Name:        t.Name,
		Columns:     t.columns,
		PrimaryKeys: t.primaryKeys,
	})
}

// UnmarshalJSON restores a table encoded by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Name = raw.Name
	t.primaryKeys = raw.PrimaryKeys
	t.columns = raw.Columns
	t.index = make(map[string]int, len(raw.Columns))
	for i, c := range raw.Columns {
		t.index[c.Name] = i
	}
	return nil
}
