package repository

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/home-express/finance-core/pkg/pg"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entities lists every table of the finance core, in dependency order.
func Entities() []any {
	return []any{
		&BookingEntity{},
		&BookingStatusHistoryEntity{},
		&ContractEntity{},
		&IncidentEntity{},
		&CommissionRateEntity{},
		&BankAccountEntity{},
		&PaymentEntity{},
		&SettlementEntity{},
		&WalletEntity{},
		&WalletTransactionEntity{},
		&PayoutEntity{},
		&PayoutItemEntity{},
	}
}

func openSqlite(t testing.TB) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// OpenTestDB returns a migrated in-memory sqlite database. The pool is held
// to one connection because every sqlite :memory: connection is its own database.
func OpenTestDB(t testing.TB) *pg.DB {
	db := openSqlite(t)
	require.NoError(t, db.AutoMigrate(Entities()...))
	return pg.New(db, db)
}

// OpenMigratedTestDB is OpenTestDB with the schema built by running the goose
// migrations in dir instead of AutoMigrate, so constraints match production.
func OpenMigratedTestDB(t testing.TB, dir string) *pg.DB {
	t.Helper()
	db := openSqlite(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	translated := t.TempDir()
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no migrations in %s", dir)
	for _, f := range files {
		src, err := os.ReadFile(f)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(translated, filepath.Base(f)), []byte(sqliteDialect(string(src))), 0o644))
	}

	goose.SetLogger(goose.NopLogger())
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(sqlDB, translated))
	return pg.New(db, db)
}

var (
	plpgsqlFunction = regexp.MustCompile(`(?s)-- \+goose StatementBegin\s+CREATE OR REPLACE FUNCTION.*?-- \+goose StatementEnd\s*`)
	appendOnlyTrig  = regexp.MustCompile(`CREATE TRIGGER (\w+)\s+BEFORE UPDATE OR DELETE ON (\w+)\s+FOR EACH ROW EXECUTE FUNCTION \w+\(\);`)
	addConstraint   = regexp.MustCompile(`ALTER TABLE \w+\s+ADD CONSTRAINT [^;]+;`)
	varcharColumn   = regexp.MustCompile(`(?m)^(\s+)(\w+)(\s+)VARCHAR\((\d+)\)`)
)

// sqliteDialect rewrites the postgres-only parts of an Up migration. sqlite
// ignores VARCHAR lengths, so each one becomes an explicit length CHECK.
// Constraints added by ALTER TABLE are dropped since sqlite cannot add them.
func sqliteDialect(src string) string {
	if i := strings.Index(src, "-- +goose Down"); i >= 0 {
		src = src[:i]
	}
	src = plpgsqlFunction.ReplaceAllString(src, "")
	src = appendOnlyTrig.ReplaceAllString(src, `-- +goose StatementBegin
CREATE TRIGGER ${1}_update BEFORE UPDATE ON ${2}
BEGIN SELECT RAISE(ABORT, '${2} is append-only'); END;
-- +goose StatementEnd
-- +goose StatementBegin
CREATE TRIGGER ${1}_delete BEFORE DELETE ON ${2}
BEGIN SELECT RAISE(ABORT, '${2} is append-only'); END;
-- +goose StatementEnd`)
	src = addConstraint.ReplaceAllString(src, "")
	src = varcharColumn.ReplaceAllString(src, "${1}${2}${3}VARCHAR(${4}) CHECK (length(${2}) <= ${4})")
	return strings.NewReplacer(
		"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"TIMESTAMPTZ", "DATETIME",
		"now()", "CURRENT_TIMESTAMP",
	).Replace(src)
}

func setupTestDB(t *testing.T) *pg.DB {
	return OpenTestDB(t)
}
