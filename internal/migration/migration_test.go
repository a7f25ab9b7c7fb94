package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAutoMigratesSQLite(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Run(conn, config.Config{DBType: "sqlite"}))
	for _, table := range []string{"users", "realms", "members", "stores", "products", "product_categories", "cart_items", "orders", "outbox_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("members", "ux_members_realm_user"))
	assert.True(t, conn.Migrator().HasIndex("stores", "ux_stores_realm"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
