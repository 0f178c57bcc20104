package pg

import (
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreSequential(t *testing.T) {
	migrations, err := goose.CollectMigrations("../../migrations", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, int64(i+1), m.Version, m.Source)
	}
}
