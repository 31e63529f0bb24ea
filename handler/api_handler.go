package handler

import (
	"fmt"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-faster/jx"
	jsoniter "github.com/json-iterator/go"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/flow"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/modules"
	"github.com/metrico/tierflow/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler serves the loader over HTTP. Results are persisted to Output when
// a request names an output file.
type Handler struct {
	API    modules.Api
	Loader *flow.Loader
	Output store.Writer
}

type datastreams struct {
	Word string   `json:"word"`
	IDs  []string `json:"ids"`
}

// queryRequest is the JSON body of the entries, load and resolve endpoints.
type queryRequest struct {
	Files       []int64             `json:"files"`
	FileQuery   string              `json:"file_query"`
	Tables      map[string][]string `json:"tables"`
	Datastreams *datastreams        `json:"datastreams"`
	Cuts        map[string]string   `json:"cuts"`
	Columns     []string            `json:"columns"`
	Format      string              `json:"format"`
	MergeFiles  bool                `json:"merge_files"`

	TCMLevel    string `json:"tcm_level"`
	TCMTable    string `json:"tcm_table"`
	Orientation string `json:"orientation"`
	AggFunc     string `json:"agg_func"`
	OutputFile  string `json:"output_file"`
}

func decodeRequest(r *http.Request) (*queryRequest, error) {
	req := &queryRequest{}
	if r.Body == nil {
		return req, nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, fmt.Errorf("%w: request body: %v", flow.ErrConfiguration, err)
	}
	return req, nil
}

// query builds the loader query of a request on top of the configured
// defaults.
func (u *Handler) query(req *queryRequest) (flow.Query, error) {
	q := u.Loader.NewQuery()
	if req.FileQuery != "" {
		ids, err := u.Loader.SelectFiles(req.FileQuery)
		if err != nil {
			return q, err
		}
		q = q.WithFiles(ids...)
	}
	q = q.WithFiles(req.Files...)
	var err error
	for _, level := range slices.Sorted(maps.Keys(req.Tables)) {
		if q, err = q.WithTables(level, req.Tables[level]...); err != nil {
			return q, err
		}
	}
	if ds := req.Datastreams; ds != nil {
		if q, err = u.Loader.Datastreams(q, ds.IDs, ds.Word); err != nil {
			return q, err
		}
	}
	if len(req.Cuts) > 0 {
		if q, err = q.WithCuts(req.Cuts); err != nil {
			return q, err
		}
	}
	return q.WithOutput(req.Format, req.MergeFiles, req.Columns), nil
}

func (u *Handler) output(req *queryRequest) store.Writer {
	if req.OutputFile == "" {
		return nil
	}
	return u.Output
}

func writeJSON(w http.ResponseWriter, e *jx.Encoder) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, err := w.Write(e.Bytes())
	return err
}

func (u *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
		e.Field("files", func(e *jx.Encoder) { e.Int(len(u.Loader.FileDB().Records)) })
	})
	return writeJSON(w, e)
}

// Files lists the ids of the files matching the query parameter, all files
// when it is empty.
func (u *Handler) Files(w http.ResponseWriter, r *http.Request) error {
	ids, err := u.Loader.SelectFiles(r.URL.Query().Get("query"))
	if err != nil {
		return err
	}
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("files", func(e *jx.Encoder) {
			e.ArrStart()
			for _, id := range ids {
				e.Int64(id)
			}
			e.ArrEnd()
		})
	})
	return writeJSON(w, e)
}

// FileInfo describes one indexed file: its fields and the tables found per
// tier.
func (u *Handler) FileInfo(w http.ResponseWriter, r *http.Request) error {
	id, err := ParseFileID(u.API.GetPathParams(r)["id"])
	if err != nil {
		return err
	}
	rec, err := u.Loader.FileDB().Record(id)
	if err != nil {
		return fmt.Errorf("%w: %v", flow.ErrFileNotFound, err)
	}
	db := u.Loader.FileDB()
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(rec.ID) })
		e.Field("fields", func(e *jx.Encoder) {
			e.ObjStart()
			for _, k := range slices.Sorted(maps.Keys(rec.Fields)) {
				e.FieldStart(k)
				e.Str(rec.Fields[k])
			}
			e.ObjEnd()
		})
		e.Field("tiers", func(e *jx.Encoder) {
			e.ObjStart()
			for _, tier := range db.Tiers() {
				if !db.TierExists(rec, tier) {
					continue
				}
				e.FieldStart(tier)
				e.ArrStart()
				for _, tb := range rec.Tier(tier).Tables {
					e.Str(tb)
				}
				e.ArrEnd()
			}
			e.ObjEnd()
		})
	})
	return writeJSON(w, e)
}

func (u *Handler) Resolve(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeRequest(r)
	if err != nil {
		return err
	}
	q, err := u.query(req)
	if err != nil {
		return err
	}
	res := u.Loader.Resolve(q.Columns, q.Files, q.MergeFiles)
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		if res.Merged != nil {
			e.Field("merged", func(e *jx.Encoder) { writeStringsMap(e, res.Merged) })
			return
		}
		e.Field("files", func(e *jx.Encoder) {
			e.ArrStart()
			for _, id := range q.Files {
				f, ok := res.Files[id]
				if !ok {
					continue
				}
				e.Obj(func(e *jx.Encoder) {
					e.Field("file", func(e *jx.Encoder) { e.Int64(id) })
					e.Field("tables", func(e *jx.Encoder) { writeStringsMap(e, f.Tables) })
					e.Field("columns", func(e *jx.Encoder) {
						e.ObjStart()
						for _, col := range slices.Sorted(maps.Keys(f.Columns)) {
							e.FieldStart(col)
							e.Str(f.Columns[col])
						}
						e.ObjEnd()
					})
				})
			}
			e.ArrEnd()
		})
	})
	return writeJSON(w, e)
}

func (u *Handler) Entries(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeRequest(r)
	if err != nil {
		return err
	}
	q, err := u.query(req)
	if err != nil {
		return err
	}
	lists, err := u.Loader.GenerateEntries(r.Context(), q, flow.GenerateOptions{
		TCMLevel:   req.TCMLevel,
		TCMTable:   req.TCMTable,
		InMemory:   true,
		Output:     u.output(req),
		OutputFile: req.OutputFile,
	})
	if err != nil {
		return err
	}
	e := &jx.Encoder{}
	var encErr error
	e.Obj(func(e *jx.Encoder) {
		e.Field("entries", func(e *jx.Encoder) {
			e.ArrStart()
			for _, list := range lists {
				tbl, err := list.ToTable()
				if err != nil {
					encErr = err
					break
				}
				writeTable(e, list.File, flow.FormatStructuredTable, tbl)
			}
			e.ArrEnd()
		})
	})
	if encErr != nil {
		return encErr
	}
	return writeJSON(w, e)
}

func (u *Handler) Load(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeRequest(r)
	if err != nil {
		return err
	}
	q, err := u.query(req)
	if err != nil {
		return err
	}
	outs, err := u.Loader.Load(r.Context(), q, nil, flow.LoadOptions{
		Orientation: req.Orientation,
		TCMLevel:    req.TCMLevel,
		TCMTable:    req.TCMTable,
		InMemory:    true,
		Output:      u.output(req),
		OutputFile:  req.OutputFile,
		AggFunc:     req.AggFunc,
	})
	if err != nil {
		return err
	}
	defer func() {
		for _, out := range outs {
			out.Release()
		}
	}()
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("tables", func(e *jx.Encoder) {
			e.ArrStart()
			for _, out := range outs {
				writeTable(e, out.File, out.Format, out.Table)
			}
			e.ArrEnd()
		})
	})
	return writeJSON(w, e)
}

func writeStringsMap(e *jx.Encoder, m map[string][]string) {
	e.ObjStart()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		e.FieldStart(k)
		e.ArrStart()
		for _, v := range m[k] {
			e.Str(v)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// writeTable encodes a table column-wise: {"file", "format", "rows",
// "columns": [names], "data": {name: [values]}}.
func writeTable(e *jx.Encoder, file int64, format string, tbl *model.Table) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("file", func(e *jx.Encoder) { e.Int64(file) })
		e.Field("format", func(e *jx.Encoder) { e.Str(format) })
		e.Field("rows", func(e *jx.Encoder) { e.Int64(tbl.NumRows()) })
		e.Field("columns", func(e *jx.Encoder) {
			e.ArrStart()
			for _, name := range tbl.Names() {
				e.Str(name)
			}
			e.ArrEnd()
		})
		e.Field("data", func(e *jx.Encoder) {
			e.ObjStart()
			for _, name := range tbl.Names() {
				col, _ := tbl.Get(name)
				e.FieldStart(name)
				writeColumn(e, col)
			}
			e.ObjEnd()
		})
	})
}

func writeColumn(e *jx.Encoder, col data_types.IColumn) {
	e.ArrStart()
	for i := int64(0); i < col.GetLength(); i++ {
		writeValue(e, col.GetVal(i))
	}
	e.ArrEnd()
}

func writeSlice[T any](e *jx.Encoder, values []T) {
	e.ArrStart()
	for _, v := range values {
		writeValue(e, v)
	}
	e.ArrEnd()
}

func writeFloat(e *jx.Encoder, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.Null()
		return
	}
	e.Float64(f)
}

func writeValue(e *jx.Encoder, v any) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case string:
		e.Str(v)
	case bool:
		e.Bool(v)
	case int8:
		e.Int64(int64(v))
	case uint8:
		e.UInt64(uint64(v))
	case int16:
		e.Int64(int64(v))
	case int32:
		e.Int64(int64(v))
	case int64:
		e.Int64(v)
	case uint16:
		e.UInt64(uint64(v))
	case uint32:
		e.UInt64(uint64(v))
	case uint64:
		e.UInt64(v)
	case float32:
		writeFloat(e, float64(v))
	case float64:
		writeFloat(e, v)
	case []string:
		writeSlice(e, v)
	case []bool:
		writeSlice(e, v)
	case []int8:
		writeSlice(e, v)
	case []uint8:
		writeSlice(e, v)
	case []int16:
		writeSlice(e, v)
	case []int32:
		writeSlice(e, v)
	case []int64:
		writeSlice(e, v)
	case []uint16:
		writeSlice(e, v)
	case []uint32:
		writeSlice(e, v)
	case []uint64:
		writeSlice(e, v)
	case []float32:
		writeSlice(e, v)
	case []float64:
		writeSlice(e, v)
	default:
		e.Str(fmt.Sprint(v))
	}
}

// ParseFileID reads a file id path parameter.
func ParseFileID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: file id %q", flow.ErrConfiguration, s)
	}
	return id, nil
}
