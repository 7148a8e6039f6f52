package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	assert.Equal(t, "0001_jobs.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestMigrationsDefineDispatcherTables(t *testing.T) {
	var all string
	files, err := migrationFiles()
	require.NoError(t, err)
	for _, f := range files {
		b, readErr := migrationsFS.ReadFile("migrations/" + f)
		require.NoError(t, readErr)
		all += string(b)
	}

	for _, table := range []string{"jobs", "job_events", "system_state"} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Equal(t, "0002_job_events", versionOf("0002_job_events.sql"))
}
