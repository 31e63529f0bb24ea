package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryBuildersCopy(t *testing.T) {
	d := newTestData(t)
	base := d.loader.NewQuery()
	q := base.WithFiles(0, 1)
	q2 := q.WithFiles(2)
	require.Empty(t, base.Files)
	require.Equal(t, []int64{0, 1}, q.Files)
	require.Equal(t, []int64{0, 1, 2}, q2.Files)

	c1, err := q.WithCuts(map[string]string{"hit": "daqenergy > 1"})
	require.NoError(t, err)
	c2, err := c1.WithCuts(map[string]string{"hit": "bl_mean < 2", "evt": "energy_sum > 0"})
	require.NoError(t, err)
	require.Empty(t, q.Cuts)
	require.Equal(t, "daqenergy > 1", c1.Cuts["hit"])
	require.Equal(t, "(daqenergy > 1) and (bl_mean < 2)", c2.Cuts["hit"])
	require.Equal(t, "energy_sum > 0", c2.Cuts["evt"])

	out := c2.WithOutput(FormatFlatFrame, false, []string{"daqenergy"})
	require.Equal(t, FormatStructuredTable, c2.Format)
	require.Equal(t, FormatFlatFrame, out.Format)
	require.Equal(t, []string{"daqenergy"}, out.WithOutput("", true, nil).Columns)
}

func TestQueryUnknownLevel(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery()
	_, err := q.WithCuts(map[string]string{"skm": "a > 1"})
	require.True(t, errors.Is(err, ErrConfiguration))
	_, err = q.WithTables("skm", "1")
	require.True(t, errors.Is(err, ErrConfiguration))
	_, err = q.WithCutList([]string{"daqenergy > 1"})
	require.True(t, errors.Is(err, ErrUnsupportedOperation))
}

func TestQueryDefaultsFromConfig(t *testing.T) {
	d := newTestData(t)
	conf := d.loader.Config()
	conf.Cuts = map[string]string{"hit": "daqenergy > 0"}
	conf.Output = nil
	q := d.loader.NewQuery()
	require.Equal(t, "daqenergy > 0", q.Cuts["hit"])
	require.Equal(t, FormatStructuredTable, q.Format)
	q.Cuts["hit"] = "changed"
	require.Equal(t, "daqenergy > 0", conf.Cuts["hit"])
}

func TestSelectFiles(t *testing.T) {
	d := newTestData(t)
	ids, err := d.loader.SelectFiles("type == 'phy'")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids)
	_, err = d.loader.SelectFiles("type ==")
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestDatastreams(t *testing.T) {
	d := newTestData(t)
	q := d.loader.NewQuery()

	byKeyword, err := d.loader.Datastreams(q, []string{"2", "1"}, "ch")
	require.NoError(t, err)
	require.Equal(t, []string{"2", "1"}, byKeyword.Tables["hit"])

	bySystem, err := d.loader.Datastreams(q, []string{"geds"}, "system")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, bySystem.Tables["hit"])
	require.NotContains(t, bySystem.Tables, "evt")

	_, err = d.loader.Datastreams(q, []string{"x"}, "detector")
	require.True(t, errors.Is(err, ErrUnsupportedOperation))
}

func TestResolve(t *testing.T) {
	d := newTestData(t)
	res := d.loader.Resolve([]string{"daqenergy", "waveform_max", "energy_sum", "nope"}, []int64{0, 2, 9}, false)
	require.Len(t, res.Files, 2)

	f0 := res.Files[0]
	require.Equal(t, map[string]string{"daqenergy": "dsp", "waveform_max": "raw", "energy_sum": "evt"}, f0.Columns)
	require.Len(t, f0.Tables["raw"], 2)
	require.Len(t, f0.Tables["dsp"], 2)
	require.Len(t, f0.Tables["evt"], 1)
	require.Empty(t, f0.Tables["tcm"])
	require.True(t, f0.HasTable("evt", f0.Tables["evt"][0]))
	require.False(t, f0.HasTable("tcm", "1"))

	f2 := res.Files[2]
	require.NotContains(t, f2.Columns, "energy_sum")
	require.Empty(t, f2.Tables["evt"])

	merged := d.loader.Resolve([]string{"energy_sum"}, []int64{0, 1, 2}, true)
	require.Nil(t, merged.Files)
	require.Len(t, merged.Merged["evt"], 1)
	require.Empty(t, merged.Merged["dsp"])
}
