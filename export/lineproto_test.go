package export

import (
	"bytes"
	"testing"

	"github.com/influxdata/influxdb/models"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/flow"
	"github.com/metrico/tierflow/model"
	"github.com/stretchr/testify/require"
)

func TestWriteLineProtocol(t *testing.T) {
	tbl := model.NewTable()
	energy, err := data_types.NewColumnWithValids([]float64{100, 0, 300}, []bool{true, false, true})
	require.NoError(t, err)
	for _, c := range []struct {
		name string
		col  data_types.IColumn
	}{
		{"hit_table", data_types.NewColumn([]string{"1", "2", "1"})},
		{"hit_idx", data_types.NewColumn([]int64{0, 0, 1})},
		{"daqenergy", energy},
		{"hit_energy", data_types.NewVectorFromRows([][]float64{{1}, {2}, {3}})},
		{"timestamp", data_types.NewColumn([]float64{1.5, 2, 3})},
	} {
		require.NoError(t, tbl.Set(c.name, c.col))
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLineProtocol(&buf, "hits", &flow.Output{File: 7, Table: tbl}))
	points, err := models.ParsePointsString(buf.String())
	require.NoError(t, err)
	require.Len(t, points, 3)

	p := points[0]
	require.Equal(t, "hits", string(p.Name()))
	require.Equal(t, "7", p.Tags().GetString("file"))
	require.Equal(t, "1", p.Tags().GetString("table"))
	require.Equal(t, int64(1_500_000_000), p.UnixNano())
	fields, err := p.Fields()
	require.NoError(t, err)
	require.Equal(t, models.Fields{"hit_idx": int64(0), "daqenergy": 100.0}, fields)

	fields, err = points[1].Fields()
	require.NoError(t, err)
	require.Equal(t, models.Fields{"hit_idx": int64(0)}, fields)
	require.Equal(t, "2", points[1].Tags().GetString("table"))
}

func TestWriteLineProtocolRowIndexTime(t *testing.T) {
	tbl := model.NewTable()
	require.NoError(t, tbl.Set("energy", data_types.NewColumn([]float32{1, 2})))
	var buf bytes.Buffer
	require.NoError(t, WriteLineProtocol(&buf, "evts", &flow.Output{File: 0, Table: tbl}))
	points, err := models.ParsePointsString(buf.String())
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, int64(1), points[1].UnixNano())
	require.Empty(t, points[1].Tags().GetString("table"))

	require.Error(t, WriteLineProtocol(&buf, "evts", &flow.Output{}))
}
