package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/store"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, d *testData, q Query, opts LoadOptions) []*Output {
	opts.InMemory = true
	res, err := d.loader.Load(context.Background(), q, nil, opts)
	require.NoError(t, err)
	return res
}

func TestLoadScattersHitColumns(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).
		WithOutput(FormatStructuredTable, false, []string{"daqenergy", "bl_mean", "channel"})
	out := load(t, d, q, LoadOptions{TCMLevel: "tcm"})
	require.Len(t, out, 1)
	tbl := out[0].Table
	require.Equal(t, []string{"hit_table", "hit_idx", "evt_table", "evt_idx", "daqenergy", "bl_mean", "channel"},
		tbl.Names())
	require.Equal(t, []float64{100, 400, 200, 500, 300}, floats(t, tbl, "daqenergy"))
	require.Equal(t, []float64{1, 4, 2, 5, 3}, floats(t, tbl, "bl_mean"))
	require.Equal(t, []int64{1, 2, 1, 2, 1}, ints(t, tbl, "channel"))
}

func TestLoadWithoutOutputColumns(t *testing.T) {
	d := newTestData(t)
	_, err := d.loader.Load(context.Background(), d.loader.NewQuery().WithFiles(0), nil,
		LoadOptions{TCMLevel: "tcm", InMemory: true})
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestLoadUsesCarriedColumns(t *testing.T) {
	d := newTestData(t)
	q, err := d.loader.NewQuery().WithFiles(0).
		WithOutput("", false, []string{"daqenergy", "waveform_max"}).
		WithCuts(map[string]string{"hit": "daqenergy > 150"})
	require.NoError(t, err)
	tbl := load(t, d, q, LoadOptions{})[0].Table
	require.Equal(t, []float64{200, 300, 400, 500}, floats(t, tbl, "daqenergy"))
	require.Equal(t, []float64{20, 30, 40, 50}, floats(t, tbl, "waveform_max"))
	require.False(t, tbl.Has("evt_idx"))
}

func TestLoadChildLevel(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).
		WithOutput("", false, []string{"energy_sum", "hit_energy"})
	tbl := load(t, d, q, LoadOptions{TCMLevel: "tcm"})[0].Table
	// scalars are broadcast to the hits of their event
	require.Equal(t, []float64{300, 300, 1000, 1000, 1000}, floats(t, tbl, "energy_sum"))
	// event vectors as long as the event are spread over its hits
	require.Equal(t, []float64{1, 2, 3, 4, 5}, floats(t, tbl, "hit_energy"))

	cut, err := q.WithCuts(map[string]string{"hit": "daqenergy > 150"})
	require.NoError(t, err)
	tbl = load(t, d, cut, LoadOptions{TCMLevel: "tcm"})[0].Table
	require.Equal(t, []float64{300, 1000, 1000, 1000}, floats(t, tbl, "energy_sum"))
	require.False(t, tbl.Has("hit_energy"))
}

func TestLoadWaveforms(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).WithOutput("", false, []string{"wf", "daqenergy"})
	tbl := load(t, d, q, LoadOptions{TCMLevel: "tcm"})[0].Table
	col, ok := tbl.Get("wf")
	require.True(t, ok)
	wf, ok := col.(*data_types.WaveformColumn)
	require.True(t, ok)
	require.Equal(t, 2, wf.Stride())
	require.Equal(t, []float32{1, 1, 4, 4, 2, 2, 5, 5, 3, 3}, wf.Values())
	require.Equal(t, []float64{16, 16, 16, 16, 16}, wf.Dt())

	flat := load(t, d, q.WithOutput(FormatFlatFrame, false, nil), LoadOptions{TCMLevel: "tcm"})[0]
	defer flat.Release()
	require.Equal(t, FormatFlatFrame, flat.Format)
	require.NotNil(t, flat.Record)
	require.Equal(t, int64(5), flat.Record.NumRows())
	var names []string
	for _, f := range flat.Record.Schema().Fields() {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"hit_table", "hit_idx", "evt_table", "evt_idx", "wf_t0", "wf_dt", "wf_values", "daqenergy"}, names)
}

func TestLoadUnknownFormatFallsBack(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).WithOutput("pd.DataFrame", false, []string{"daqenergy"})
	out := load(t, d, q, LoadOptions{})[0]
	require.Equal(t, FormatStructuredTable, out.Format)
	require.Nil(t, out.Record)
}

func TestLoadEvents(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).WithOutput("", false, []string{"daqenergy", "channel"})

	// the only TCM level is picked
	tbl := load(t, d, q, LoadOptions{Orientation: OrientationEvt, AggFunc: AggSum})[0].Table
	require.Equal(t, []int64{0, 2}, ints(t, tbl, "evt_idx"))
	require.Equal(t, []int64{2, 3}, ints(t, tbl, "n_hits"))
	require.Equal(t, []float64{500, 1000}, floats(t, tbl, "daqenergy"))
	require.Equal(t, []float64{3, 4}, floats(t, tbl, "channel"))

	tbl = load(t, d, q, LoadOptions{Orientation: OrientationEvt})[0].Table
	col, ok := tbl.Get("daqenergy")
	require.True(t, ok)
	vec := col.(*data_types.VectorColumn[float64])
	require.Equal(t, []float64{100, 400}, vec.Row(0))
	require.Equal(t, []float64{200, 500, 300}, vec.Row(1))
	col, ok = tbl.Get("hit_table")
	require.True(t, ok)
	require.Equal(t, []string{"1", "2", "1"}, col.(*data_types.VectorColumn[string]).Row(1))

	tbl = load(t, d, q, LoadOptions{Orientation: OrientationEvt, AggFunc: AggMax})[0].Table
	require.Equal(t, []float64{400, 500}, floats(t, tbl, "daqenergy"))
	tbl = load(t, d, q, LoadOptions{Orientation: OrientationEvt, AggFunc: AggFirst})[0].Table
	require.Equal(t, []float64{100, 200}, floats(t, tbl, "daqenergy"))
	tbl = load(t, d, q, LoadOptions{Orientation: OrientationEvt, AggFunc: AggCount})[0].Table
	require.Equal(t, []int64{2, 3}, ints(t, tbl, "daqenergy"))

	_, err := d.loader.Load(context.Background(), q, nil,
		LoadOptions{Orientation: OrientationEvt, AggFunc: "median", InMemory: true})
	require.True(t, errors.Is(err, ErrNotImplementedInput))
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	d := newTestData(t)
	q := d.loader.NewQuery().WithFiles(0).WithOutput("", false, []string{"daqenergy"})

	_, err := d.loader.Load(ctx, q, nil, LoadOptions{Orientation: "sideways", InMemory: true})
	require.True(t, errors.Is(err, ErrNotImplementedInput))

	_, err = d.loader.Load(ctx, q.WithOutput("", true, nil), nil, LoadOptions{InMemory: true})
	require.True(t, errors.Is(err, ErrUnsupportedOperation))

	_, err = d.loader.Load(ctx, q, nil, LoadOptions{})
	require.True(t, errors.Is(err, ErrConfiguration))

	hits, err := d.loader.GenerateEntries(ctx, q, GenerateOptions{InMemory: true})
	require.NoError(t, err)
	_, err = d.loader.Load(ctx, q, hits, LoadOptions{Orientation: OrientationEvt, InMemory: true})
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestLoadPersistsOutput(t *testing.T) {
	ctx := context.Background()
	d := newTestData(t)
	out := store.NewMemStore()
	q := d.loader.NewQuery().WithFiles(0, 2).WithOutput("", false, []string{"daqenergy"})

	res, err := d.loader.Load(ctx, q, nil, LoadOptions{Output: out, OutputFile: "out"})
	require.NoError(t, err)
	require.Nil(t, res)
	for _, file := range []int64{0, 2} {
		tbl, err := out.Read(ctx, HitsPath(file), "out", nil, nil)
		require.NoError(t, err)
		require.Equal(t, []float64{100, 200, 300, 400, 500}, floats(t, tbl, "daqenergy"))
	}
}

func TestLoadWaveformsFromParquet(t *testing.T) {
	d := newTestData(t)
	loader := d.onParquet(t)
	q := loader.NewQuery().WithFiles(0).WithOutput("", false, []string{"daqenergy", "wf"})
	res, err := loader.Load(context.Background(), q, nil, LoadOptions{TCMLevel: "tcm", InMemory: true})
	require.NoError(t, err)
	tbl := res[0].Table
	require.Equal(t, []string{"hit_table", "hit_idx", "evt_table", "evt_idx", "daqenergy", "wf"}, tbl.Names())
	col, _ := tbl.Get("wf")
	wf, ok := col.(*data_types.WaveformColumn)
	require.True(t, ok, "wf is %T", col)
	require.Equal(t, 2, wf.Stride())
	require.Equal(t, []float32{1, 1, 4, 4, 2, 2, 5, 5, 3, 3}, wf.Values())
}

func TestLoadBoolColumnFromParquet(t *testing.T) {
	d := newTestData(t)
	d.putColumn(t, 0, "dsp", "ch001/dsp", "is_valid", data_types.NewColumn([]bool{true, false, true}))
	d.putColumn(t, 0, "dsp", "ch002/dsp", "is_valid", data_types.NewColumn([]bool{false, true}))
	loader := d.onParquet(t)
	q, err := loader.NewQuery().WithFiles(0).
		WithOutput("", false, []string{"daqenergy", "channel", "is_valid"}).
		WithCuts(map[string]string{"hit": "is_valid"})
	require.NoError(t, err)
	res, err := loader.Load(context.Background(), q, nil, LoadOptions{InMemory: true})
	require.NoError(t, err)
	tbl := res[0].Table
	require.Equal(t, []float64{100, 300, 500}, floats(t, tbl, "daqenergy"))
	require.Equal(t, []int64{1, 1, 2}, ints(t, tbl, "channel"))
	col, _ := tbl.Get("is_valid")
	require.Equal(t, []bool{true, true, true}, col.(*data_types.Column[bool]).Data())
}

func TestLoadTakesColumnsFromResolvedTier(t *testing.T) {
	d := newTestData(t)
	// ch001 also has daqenergy in raw, the first tier of the hit level
	d.putColumn(t, 0, "raw", "ch001/raw", "daqenergy", data_types.NewColumn([]float64{7, 8, 9}))

	rec, err := d.db.Record(0)
	require.NoError(t, err)
	hit, ok := d.loader.Config().Level("hit")
	require.True(t, ok)
	require.Equal(t, "raw", d.loader.resolveFile([]string{"daqenergy"}, rec, hit.Tiers, "1").Columns["daqenergy"])
	require.Equal(t, "dsp", d.loader.resolveFile([]string{"daqenergy"}, rec, hit.Tiers, "2").Columns["daqenergy"])
	require.Equal(t, "raw", d.loader.Resolve([]string{"daqenergy"}, []int64{0}, false).Files[0].Columns["daqenergy"])

	q := d.loader.NewQuery().WithFiles(0).WithOutput("", false, []string{"daqenergy"})
	tbl := load(t, d, q, LoadOptions{})[0].Table
	require.Equal(t, []float64{7, 8, 9, 400, 500}, floats(t, tbl, "daqenergy"))
}
