package pg

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/gigsync/migrations/postgres"
)

func TestPendingOrdersAndSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_index_up.sql":  {Data: []byte("-- 2")},
		"m/0001_init_up.sql":   {Data: []byte("-- 1")},
		"m/0001_init_down.sql": {Data: []byte("-- x")},
		"m/README.md":          {Data: []byte("x")},
	}
	got, err := pending(fsys, "m", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init_up.sql", "0002_index_up.sql"}, got)

	got, err = pending(fsys, "m", map[string]bool{"0001_init_up.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_index_up.sql"}, got)
}

func TestEmbeddedBlobsMigration(t *testing.T) {
	got, err := pending(migrations.BlobsFS, migrations.BlobsDir, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_gigsync_blobs_up.sql", got[0])
}
