package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb/models"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/flow"
)

// TimestampColumn holds the event time in seconds when present.
const TimestampColumn = "timestamp"

// WriteLineProtocol writes one point per row of a loaded table. The file id and
// the first table column become tags, numeric and boolean scalar columns
// become fields.
// Rows without any valid field are left out.
func WriteLineProtocol(w io.Writer, measurement string, out *flow.Output) error {
	tbl := out.Table
	if tbl == nil {
		return fmt.Errorf("file %d: nothing to export", out.File)
	}
	tableCol := ""
	var fields []string
	for _, name := range tbl.Names() {
		col, _ := tbl.Get(name)
		if col.Kind() != data_types.KindScalar || name == TimestampColumn {
			continue
		}
		if _, ok := col.(*data_types.Column[string]); ok {
			if tableCol == "" && strings.HasSuffix(name, "_table") {
				tableCol = name
			}
			continue
		}
		fields = append(fields, name)
	}
	ts, hasTs := tbl.Get(TimestampColumn)
	file := strconv.FormatInt(out.File, 10)

	bw := bufio.NewWriter(w)
	for i := int64(0); i < tbl.NumRows(); i++ {
		values := models.Fields{}
		for _, name := range fields {
			col, _ := tbl.Get(name)
			if !col.IsValid(i) {
				continue
			}
			v := col.GetVal(i)
			if b, ok := v.(bool); ok {
				values[name] = b
			} else if n, ok := data_types.AsInt64(v); ok {
				values[name] = n
			} else if f, ok := data_types.AsFloat64(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
				values[name] = f
			}
		}
		if len(values) == 0 {
			continue
		}
		tags := map[string]string{"file": file}
		if tableCol != "" {
			col, _ := tbl.Get(tableCol)
			if col.IsValid(i) {
				tags["table"] = col.GetVal(i).(string)
			}
		}
		t := time.Unix(0, i)
		if hasTs && ts.IsValid(i) {
			if sec, ok := data_types.AsFloat64(ts.GetVal(i)); ok {
				t = time.Unix(0, int64(sec*1e9))
			}
		}
		point, err := models.NewPoint(measurement, models.NewTags(tags), values, t)
		if err != nil {
			return fmt.Errorf("file %d row %d: %w", out.File, i, err)
		}
		if _, err := bw.WriteString(point.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
