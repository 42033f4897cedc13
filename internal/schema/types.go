package schema

import "slices"

// KeyRole is the key classification MySQL reports for a column.
type KeyRole string

const (
	KeyNone     KeyRole = ""
	KeyPrimary  KeyRole = "primary"
	KeyUnique   KeyRole = "unique"
	KeyMultiple KeyRole = "multiple"
)

// ParseKeyRole maps the Key column of SHOW COLUMNS (PRI, UNI, MUL or empty).
// Unrecognised values map to KeyNone.
func ParseKeyRole(raw string) KeyRole {
	switch raw {
	case "PRI":
		return KeyPrimary
	case "UNI":
		return KeyUnique
	case "MUL":
		return KeyMultiple
	default:
		return KeyNone
	}
}

// Referential actions for ON UPDATE / ON DELETE.
const (
	ActionRestrict   = "RESTRICT"
	ActionCascade    = "CASCADE"
	ActionSetNull    = "SET NULL"
	ActionNoAction   = "NO ACTION"
	ActionSetDefault = "SET DEFAULT"
)

// Length is the parenthesised part of a column type. At most one field is
// set: Size for sized types ("255", "10,2"), Values for enums.
type Length struct {
	Size   string   `json:"size,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Absent reports whether the type carried no length or value list.
func (l Length) Absent() bool {
	return l.Size == "" && l.Values == nil
}

// ForeignKey is a single-column foreign key parsed from the creation DDL.
type ForeignKey struct {
	Name      string `json:"name"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
	OnUpdate  string `json:"on_update"`
	OnDelete  string `json:"on_delete"`
}

// Column describes one column of a table.
type Column struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Length   Length  `json:"length"`
	Nullable bool    `json:"nullable"`
	Key      KeyRole `json:"key,omitempty"`
	Default  *string `json:"default,omitempty"`
	Unsigned bool    `json:"unsigned,omitempty"`
	Extra    string  `json:"extra,omitempty"`

	// IsDeclared is false only for virtual columns added by
	// Table.WithVirtualColumns.
	IsDeclared  bool         `json:"is_declared"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// References returns the first foreign key declared on the column.
func (c *Column) References() (ForeignKey, bool) {
	if len(c.ForeignKeys) == 0 {
		return ForeignKey{}, false
	}
	return c.ForeignKeys[0], true
}

// clone copies c with its slices and default detached from the original.
func (c Column) clone() Column {
	c.Length.Values = slices.Clone(c.Length.Values)
	c.ForeignKeys = slices.Clone(c.ForeignKeys)
	if c.Default != nil {
		d := *c.Default
		c.Default = &d
	}
	return c
}

// ColumnRow is one row of the column-description query.
type ColumnRow struct {
	Field   string
	Type    string
	Null    bool
	Key     string
	Default *string
	Extra   string
}
