package db

import (
	"testing"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "tokens"

	d, err := Dialect(cfg)
	require.NoError(t, err)
	pg, ok := d.(*postgres.Dialector)
	require.True(t, ok)
	require.Contains(t, pg.Config.DSN, "dbname=tokens")

	cfg.Database.Type = "sqlite"
	cfg.Database.DBNAME = ":memory:"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	_, ok = d.(*sqlite.Dialector)
	require.True(t, ok)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}

func TestNewAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{AppEnv: "production"}
	cfg.Database.AutoMigrate = true

	type probe struct {
		ID string `gorm:"primaryKey"`
	}

	gdb, err := New(cfg, sqlite.Open("file:dbtest?mode=memory&cache=shared"))
	require.NoError(t, err)

	require.NoError(t, Migrate(migrationParams{DB: gdb, Config: cfg, Models: []any{&probe{}}}))
	require.True(t, gdb.Migrator().HasTable(&probe{}))
}
