package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/flow"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/store"
	"github.com/stretchr/testify/require"
)

const e2eLoader = `
levels:
  hit:
    tiers: [dsp]
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
  V01: {system: geds, ch: 1}
  V02: {system: geds, ch: 2}
`

const e2eFileDB = `
tiers: [dsp, evt, tcm]
tier_dirs: {dsp: dsp, evt: evt, tcm: tcm}
file_format:
  dsp: "{type}/{run}-dsp"
  evt: "{type}/{run}-evt"
  tcm: "{type}/{run}-tcm"
table_format:
  dsp: "ch{ch:03d}/dsp"
  evt: "evt"
  tcm: "hardware_tcm_{tcm}"
`

func writeE2EData(t *testing.T, dataDir string) {
	ctx := context.Background()
	st := store.NewParquetStore(dataDir)
	put := func(tier, file, path string, names []string, cols ...data_types.IColumn) {
		tbl := model.NewTable()
		for i, name := range names {
			require.NoError(t, tbl.Set(name, cols[i]))
		}
		require.NoError(t, st.Write(ctx, tbl, path, filepath.Join(tier, file), store.Overwrite))
	}
	waveforms := func(rows ...float32) data_types.IColumn {
		var values []float32
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
	dspCols := []string{"daqenergy", "channel", "is_valid", "wf"}
	for _, run := range []string{"r000", "r001"} {
		put("dsp", "phy/"+run+"-dsp", "ch001/dsp", dspCols,
			data_types.NewColumn([]float64{100, 200, 300}),
			data_types.NewColumn([]int64{1, 1, 1}),
			data_types.NewColumn([]bool{true, false, true}),
			waveforms(1, 2, 3))
		put("dsp", "phy/"+run+"-dsp", "ch002/dsp", dspCols,
			data_types.NewColumn([]float64{400, 500}),
			data_types.NewColumn([]int64{2, 2}),
			data_types.NewColumn([]bool{true, true}),
			waveforms(4, 5))
		put("evt", "phy/"+run+"-evt", "evt", []string{"energy_sum"}, data_types.NewColumn([]float64{300, 0, 1000}))
		put("tcm", "phy/"+run+"-tcm", "hardware_tcm_1", []string{"array_id", "array_idx"},
			data_types.NewVectorFromRows([][]int64{{1, 2}, {}, {1, 2, 1}}),
			data_types.NewVectorFromRows([][]int64{{0, 0}, {}, {1, 1, 2}}))
	}
}

func e2eFlags(op string) *model.CommandLineFlags {
	str := func(s string) *string { return &s }
	return &model.CommandLineFlags{
		Config:      str(""),
		Op:          str(op),
		Query:       str(""),
		Datastreams: str(""),
		TCM:         str(""),
		TCMTable:    str(""),
		Columns:     str(""),
		Cuts:        model.LevelCuts{},
		Orientation: str(flow.OrientationHit),
		AggFunc:     str(""),
		Format:      str(""),
		Out:         str(""),
		Export:      str(""),
	}
}

func TestE2EScanAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	writeE2EData(t, dataDir)

	loaderPath := filepath.Join(dir, "loader.yaml")
	fileDBPath := filepath.Join(dir, "filedb.yaml")
	require.NoError(t, os.WriteFile(loaderPath, []byte(e2eLoader), 0o644))
	require.NoError(t, os.WriteFile(fileDBPath, []byte(e2eFileDB), 0o644))
	conf := &config.Configuration{
		Tierflow: config.TierflowConfiguration{
			LoaderConfig: loaderPath,
			FileDBConfig: fileDBPath,
			FileDBPath:   filepath.Join(dir, "filedb.duckdb"),
			DataDir:      dataDir,
			Workers:      2,
		},
	}
	logger := slog.Default()

	require.NoError(t, run(ctx, flow.OpScan, e2eFlags("scan"), conf, logger))

	// the second run reads the index back from DuckDB
	outDir := filepath.Join(dir, "out")
	flags := e2eFlags("load")
	*flags.Query = "run == 'r001'"
	*flags.TCM = "tcm"
	*flags.Columns = "daqenergy,energy_sum,channel,is_valid,wf"
	*flags.Out = outDir
	require.NoError(t, flags.Cuts.Set("hit=daqenergy > 150"))
	require.NoError(t, run(ctx, flow.OpLoad, flags, conf, logger))

	tbl, err := store.NewParquetStore("").Read(ctx, flow.HitsPath(1), outDir, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(4), tbl.NumRows())
	col, ok := tbl.Get("daqenergy")
	require.True(t, ok)
	require.Equal(t, []float64{400, 200, 500, 300}, col.(*data_types.Column[float64]).Data())
	col, ok = tbl.Get("energy_sum")
	require.True(t, ok)
	require.Equal(t, []float64{300, 1000, 1000, 1000}, col.(*data_types.Column[float64]).Data())
	col, ok = tbl.Get("channel")
	require.True(t, ok)
	require.Equal(t, []int64{2, 1, 2, 1}, col.(*data_types.Column[int64]).Data())
	col, ok = tbl.Get("is_valid")
	require.True(t, ok)
	require.Equal(t, []bool{true, false, true, true}, col.(*data_types.Column[bool]).Data())
	col, ok = tbl.Get("wf")
	require.True(t, ok)
	wf, ok := col.(*data_types.WaveformColumn)
	require.True(t, ok, "wf is %T", col)
	require.Equal(t, []float32{4, 4, 2, 2, 5, 5, 3, 3}, wf.Values())
	_, err = os.Stat(filepath.Join(outDir, flow.HitsPath(0)+".parquet"))
	require.True(t, os.IsNotExist(err))

	err = run(ctx, flow.OpBrowse, e2eFlags("browse"), conf, logger)
	require.True(t, errors.Is(err, flow.ErrUnsupportedOperation))
}
