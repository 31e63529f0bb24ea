package repository

import (
	"path/filepath"
	"testing"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/service/db"
	"github.com/stretchr/testify/require"
)

func TestFileDBRoundTrip(t *testing.T) {
	conf := &config.FileDBConfig{
		Tiers:       []string{"raw", "tcm"},
		TierDirs:    map[string]string{"raw": "raw", "tcm": "tcm"},
		FileFormat:  map[string]string{"raw": "{run}-raw", "tcm": "{run}-tcm"},
		TableFormat: map[string]string{"raw": "ch{ch:03d}/raw", "tcm": "hardware_tcm_{tcm}"},
	}
	fdb, err := filedb.New(conf)
	require.NoError(t, err)
	rec, err := fdb.AddFile(map[string]string{"run": "r001"})
	require.NoError(t, err)
	raw := rec.Tier("raw")
	raw.Tables = []string{"1", "2"}
	raw.ColIdx = []int{fdb.AddColumns([]string{"energy"}), fdb.AddColumns([]string{"energy", "baseline"})}
	rec.Status = 1
	_, err = fdb.AddFile(map[string]string{"run": "r002"})
	require.NoError(t, err)

	conn, err := db.ConnectDuckDB(filepath.Join(t.TempDir(), "filedb.duckdb"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, SaveFileDB(conn, fdb))
	// saving twice replaces the previous content
	require.NoError(t, SaveFileDB(conn, fdb))

	loaded, err := LoadFileDB(conn, conf)
	require.NoError(t, err)
	require.Equal(t, fdb.Columns, loaded.Columns)
	require.Len(t, loaded.Records, 2)
	require.Equal(t, "r001", loaded.Records[0].Fields["run"])
	require.Equal(t, uint32(1), loaded.Records[0].Status)
	require.Equal(t, []string{"1", "2"}, loaded.Records[0].Tier("raw").Tables)
	require.Equal(t, raw.ColIdx, loaded.Records[0].Tier("raw").ColIdx)
	require.Equal(t, "r002-tcm", loaded.Records[1].Tier("tcm").File)
	require.Empty(t, loaded.Records[1].Tier("raw").Tables)

	// the restored registry keeps deduplicating
	require.Equal(t, raw.ColIdx[1], loaded.AddColumns([]string{"baseline", "energy"}))
}
