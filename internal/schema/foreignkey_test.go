package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersDDL = "CREATE TABLE `orders` (\r\n" +
	"  `id` int unsigned NOT NULL AUTO_INCREMENT,\r\n" +
	"  `user_id` int unsigned NOT NULL,\r\n" +
	"  `coupon_id` int unsigned DEFAULT NULL,\r\n" +
	"  `shop_id` int unsigned NOT NULL,\r\n" +
	"  PRIMARY KEY (`id`),\r\n" +
	"  KEY `fk_user` (`user_id`),\r\n" +
	"  CONSTRAINT `fk_user` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE CASCADE,\r\n" +
	"  CONSTRAINT `fk_coupon` FOREIGN KEY (`coupon_id`) REFERENCES `coupons` (`id`) ON DELETE SET NULL ON UPDATE NO ACTION,\r\n" +
	"  CONSTRAINT `fk_shop` FOREIGN KEY (`shop_id`) REFERENCES `core`.`shops` (`id`) ON UPDATE cascade\r\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

func TestExtractForeignKeys(t *testing.T) {
	fks := ExtractForeignKeys(ordersDDL)
	require.Len(t, fks, 3)

	assert.Equal(t, ForeignKey{
		Name: "fk_user", Column: "user_id", RefTable: "users", RefColumn: "id",
		OnUpdate: ActionRestrict, OnDelete: ActionCascade,
	}, fks[0])
	assert.Equal(t, ForeignKey{
		Name: "fk_coupon", Column: "coupon_id", RefTable: "coupons", RefColumn: "id",
		OnUpdate: ActionNoAction, OnDelete: ActionSetNull,
	}, fks[1])
	assert.Equal(t, ForeignKey{
		Name: "fk_shop", Column: "shop_id", RefTable: "shops", RefColumn: "id",
		OnUpdate: ActionCascade, OnDelete: ActionRestrict,
	}, fks[2])
}

func TestExtractForeignKeys_SingleLine(t *testing.T) {
	fks := ExtractForeignKeys("CONSTRAINT `fk_a` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE CASCADE")
	require.Len(t, fks, 1)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)
	assert.Equal(t, "RESTRICT", fks[0].OnUpdate)
}

func TestExtractForeignKeys_SkipsUnsupported(t *testing.T) {
	ddl := "CREATE TABLE `t` (\n" +
		"  `a` int,\n" +
		"  `b` int,\n" +
		"  CONSTRAINT `fk_ab` FOREIGN KEY (`a`, `b`) REFERENCES `p` (`x`, `y`),\n" +
		"  CONSTRAINT `chk_a` CHECK ((`a` > 0)),\n" +
		"  KEY `CONSTRAINT` (`a`),\n" +
		"  constraint `lower` FOREIGN KEY (`a`) REFERENCES `p` (`x`)\n" +
		")"
	assert.Empty(t, ExtractForeignKeys(ddl))
}

func TestExtractForeignKeys_Empty(t *testing.T) {
	assert.Empty(t, ExtractForeignKeys(""))
	assert.Empty(t, ExtractForeignKeys("CREATE TABLE `t` (`id` int)"))
}
