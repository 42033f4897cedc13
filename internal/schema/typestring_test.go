package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeType(t *testing.T) {
	tests := []struct {
		raw      string
		kind     string
		length   Length
		unsigned bool
	}{
		{raw: "int", kind: "int"},
		{raw: "DATETIME", kind: "datetime"},
		{raw: "varchar(255)", kind: "varchar", length: Length{Size: "255"}},
		{raw: "decimal(10,2)", kind: "decimal", length: Length{Size: "10,2"}},
		{raw: "decimal(10,2) unsigned", kind: "decimal", length: Length{Size: "10,2"}, unsigned: true},
		{raw: "int(11) UNSIGNED", kind: "int", length: Length{Size: "11"}, unsigned: true},
		{raw: "bigint unsigned", kind: "bigint", unsigned: true},
		{raw: "int(10) unsigned zerofill", kind: "int", length: Length{Size: "10"}},
		{raw: "TINYINT(1)", kind: "tinyint", length: Length{Size: "1"}},
		{raw: "enum('a','b','c')", kind: "enum", length: Length{Values: []string{"a", "b", "c"}}},
		{raw: "ENUM('new','paid') CHARACTER SET utf8mb4", kind: "enum", length: Length{Values: []string{"new", "paid"}}},
		{raw: "enum('')", kind: "enum", length: Length{Values: []string{""}}},
		{raw: "varchar(32) character set latin1", kind: "varchar", length: Length{Size: "32"}},
		{raw: "timestamp(6)", kind: "timestamp", length: Length{Size: "6"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			kind, length, unsigned := DecodeType(tt.raw)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.length, length)
			assert.Equal(t, tt.unsigned, unsigned)
		})
	}
}

func TestDecodeType_UnsignedMarkerIsTransparent(t *testing.T) {
	for _, base := range []string{"int", "int(11)", "decimal(10,2)", "smallint(5)", "float"} {
		for _, marker := range []string{" unsigned", " UNSIGNED", " Unsigned"} {
			k1, l1, u1 := DecodeType(base + marker)
			k2, l2, u2 := DecodeType(base)
			assert.True(t, u1, base+marker)
			assert.False(t, u2, base)
			assert.Equal(t, k2, k1, base+marker)
			assert.Equal(t, l2, l1, base+marker)
		}
	}
}

func TestDecodeType_EnumKeepsOrder(t *testing.T) {
	_, length, _ := DecodeType("enum('z','a','m')")
	assert.Equal(t, []string{"z", "a", "m"}, length.Values)
	assert.Empty(t, length.Size)
}

func TestDecodeType_EnumCommaLimitation(t *testing.T) {
	// Values are split on every comma, quoted or not.
	_, length, _ := DecodeType("enum('a,b','c')")
	assert.Equal(t, []string{"'a", "b'", "c"}, length.Values)
}

func TestLength_Absent(t *testing.T) {
	assert.True(t, Length{}.Absent())
	assert.False(t, Length{Size: "1"}.Absent())
	assert.False(t, Length{Values: []string{}}.Absent())
}
