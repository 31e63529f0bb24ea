package flow

import (
	"context"
	"testing"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/store"
	"github.com/stretchr/testify/require"
)

const loaderYAML = `
data_dir: /data
levels:
  hit:
    tiers: [raw, dsp]
  evt:
    tiers: [evt]
  tcm:
    tiers: [tcm]
    parent: hit
    child: evt
    tcm_cols:
      child_idx: coin_idx
      parent_tb: array_id
      parent_idx: array_idx
channel_map:
  V01:
    system: geds
    ch: 1
  V02:
    system: geds
    ch: 2
  S01:
    system: spms
    ch: 3
`

func fileDBConfig() *config.FileDBConfig {
	tiers := []string{"raw", "dsp", "evt", "tcm"}
	conf := &config.FileDBConfig{
		DataDir:    "/data",
		Tiers:      tiers,
		TierDirs:   map[string]string{},
		FileFormat: map[string]string{},
		TableFormat: map[string]string{
			"raw": "ch{ch:03d}/raw",
			"dsp": "ch{ch:03d}/dsp",
			"evt": "evt",
			"tcm": "hardware_tcm_{tcm}",
		},
	}
	for _, tier := range tiers {
		conf.TierDirs[tier] = tier
		conf.FileFormat[tier] = "{type}/{run}/l200-{run}-{type}-tier_" + tier
	}
	return conf
}

func newTable(t *testing.T, cols map[string]data_types.IColumn, order ...string) *model.Table {
	tbl := model.NewTable()
	for _, name := range order {
		require.NoError(t, tbl.Set(name, cols[name]))
	}
	return tbl
}

func waveforms(t *testing.T, rows ...float32) data_types.IColumn {
	values := make([]float32, 0, 2*len(rows))
	t0 := make([]float64, len(rows))
	dt := make([]float64, len(rows))
	for i, v := range rows {
		values = append(values, v, v)
		dt[i] = 16
	}
	wf, err := data_types.NewWaveformColumn(t0, dt, values, 2)
	require.NoError(t, err)
	return wf
}

func tcmTable(t *testing.T) *model.Table {
	return newTable(t, map[string]data_types.IColumn{
		"array_id":  data_types.NewVectorFromRows([][]int64{{1, 2}, {}, {1, 2, 1}}),
		"array_idx": data_types.NewVectorFromRows([][]int64{{0, 0}, {}, {1, 1, 2}}),
	}, "array_id", "array_idx")
}

// testData holds three files:
//   - 0: channels 1 (3 rows) and 2 (2 rows), one TCM table with
//     cumulative length [2,2,5]
//   - 1: the same data with two TCM tables
//   - 2: raw and dsp only
type testData struct {
	st     *store.MemStore
	db     *filedb.FileDB
	loader *Loader
}

func newTestData(t *testing.T, opts ...Option) *testData {
	ctx := context.Background()
	conf, err := config.ParseLoaderConfig([]byte(loaderYAML), "")
	require.NoError(t, err)
	db, err := filedb.New(fileDBConfig())
	require.NoError(t, err)
	st := store.NewMemStore()

	for i, fields := range []map[string]string{
		{"type": "cal", "run": "r000"},
		{"type": "phy", "run": "r001"},
		{"type": "phy", "run": "r002"},
	} {
		rec, err := db.AddFile(fields)
		require.NoError(t, err)
		put := func(tier, table string, tbl *model.Table) {
			st.Put(db.Path("", tier, rec), table, tbl)
		}
		put("raw", "ch001/raw", newTable(t, map[string]data_types.IColumn{
			"waveform_max": data_types.NewColumn([]float64{10, 20, 30}),
			"wf":           waveforms(t, 1, 2, 3),
		}, "waveform_max", "wf"))
		put("raw", "ch002/raw", newTable(t, map[string]data_types.IColumn{
			"waveform_max": data_types.NewColumn([]float64{40, 50}),
			"wf":           waveforms(t, 4, 5),
		}, "waveform_max", "wf"))
		put("dsp", "ch001/dsp", newTable(t, map[string]data_types.IColumn{
			"daqenergy": data_types.NewColumn([]float64{100, 200, 300}),
			"bl_mean":   data_types.NewColumn([]float64{1, 2, 3}),
			"channel":   data_types.NewColumn([]int64{1, 1, 1}),
		}, "daqenergy", "bl_mean", "channel"))
		put("dsp", "ch002/dsp", newTable(t, map[string]data_types.IColumn{
			"daqenergy": data_types.NewColumn([]float64{400, 500}),
			"bl_mean":   data_types.NewColumn([]float64{4, 5}),
			"channel":   data_types.NewColumn([]int64{2, 2}),
		}, "daqenergy", "bl_mean", "channel"))
		if i == 2 {
			continue
		}
		put("evt", "evt", newTable(t, map[string]data_types.IColumn{
			"energy_sum": data_types.NewColumn([]float64{300, 0, 1000}),
			"hit_energy": data_types.NewVectorFromRows([][]float64{{1, 2}, {}, {3, 4, 5}}),
		}, "energy_sum", "hit_energy"))
		put("tcm", "hardware_tcm_1", tcmTable(t))
		if i == 1 {
			put("tcm", "hardware_tcm_2", tcmTable(t))
		}
	}
	require.NoError(t, db.ScanTables(ctx, st, ""))

	loader, err := NewLoader(conf, db, st, opts...)
	require.NoError(t, err)
	return &testData{st: st, db: db, loader: loader}
}

// putColumn adds a column to a table of file id and rescans the file index.
func (d *testData) putColumn(t *testing.T, id int64, tier, table, name string, col data_types.IColumn) {
	ctx := context.Background()
	rec, err := d.db.Record(id)
	require.NoError(t, err)
	path := d.db.Path("", tier, rec)
	tbl, err := d.st.Read(ctx, table, path, nil, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Set(name, col))
	d.st.Put(path, table, tbl)
	require.NoError(t, d.db.ScanTables(ctx, d.st, ""))
}

// onParquet copies every table into parquet files under a temporary data
// directory and returns a loader that reads them.
func (d *testData) onParquet(t *testing.T, opts ...Option) *Loader {
	ctx := context.Background()
	dir := t.TempDir()
	ps := store.NewParquetStore("")
	for _, rec := range d.db.Records {
		for _, tier := range d.db.Config.Tiers {
			src := d.db.Path("", tier, rec)
			if !d.st.Exists(src) {
				continue
			}
			tables, err := d.st.Tables(ctx, src)
			require.NoError(t, err)
			for _, tb := range tables {
				tbl, err := d.st.Read(ctx, tb, src, nil, nil)
				require.NoError(t, err)
				require.NoError(t, ps.Write(ctx, tbl, tb, d.db.Path(dir, tier, rec), store.Overwrite))
			}
		}
	}
	loader, err := NewLoader(d.loader.Config(), d.db, ps, append([]Option{WithDataDir(dir)}, opts...)...)
	require.NoError(t, err)
	return loader
}

func floats(t *testing.T, tbl *model.Table, name string) []float64 {
	col, ok := tbl.Get(name)
	require.True(t, ok, "column %s", name)
	c, ok := col.(*data_types.Column[float64])
	require.True(t, ok, "column %s is %T", name, col)
	return c.Data()
}

func ints(t *testing.T, tbl *model.Table, name string) []int64 {
	col, ok := tbl.Get(name)
	require.True(t, ok, "column %s", name)
	c, ok := col.(*data_types.Column[int64])
	require.True(t, ok, "column %s is %T", name, col)
	return c.Data()
}

type hitRow struct {
	table string
	idx   int64
	child int64
}

func rowsOf(e *EntryList) []hitRow {
	res := make([]hitRow, e.Len())
	for i := range res {
		res[i] = hitRow{e.ParentTable[i], e.ParentIdx[i], e.ChildIdx[i]}
	}
	return res
}
