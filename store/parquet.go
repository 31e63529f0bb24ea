package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/model"
)

const parquetExt = ".parquet"

var _ Store = &ParquetStore{}

// ParquetStore maps every data file to a directory holding one parquet file
// per table path.
type ParquetStore struct {
	root         string
	rowGroupSize int64
}

func NewParquetStore(root string) *ParquetStore {
	return &ParquetStore{root: root, rowGroupSize: 8124}
}

func (p *ParquetStore) dir(f string) string {
	if p.root == "" || filepath.IsAbs(f) {
		return f
	}
	return filepath.Join(p.root, f)
}

func (p *ParquetStore) tableFile(tablePath, f string) string {
	return filepath.Join(p.dir(f), filepath.FromSlash(tablePath)+parquetExt)
}

func (p *ParquetStore) open(tablePath, f string) (*file.Reader, *pqarrow.FileReader, error) {
	name := p.tableFile(tablePath, f)
	if _, err := os.Stat(name); err != nil {
		return nil, nil, fmt.Errorf("table %s in %s: %w", tablePath, f, fs.ErrNotExist)
	}
	rdr, err := file.OpenParquetFile(name, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.DefaultAllocator)
	if err != nil {
		rdr.Close()
		return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return rdr, fr, nil
}

func leafIndices(field pqarrow.SchemaField) []int {
	if len(field.Children) == 0 {
		return []int{field.ColIndex}
	}
	var res []int
	for _, c := range field.Children {
		res = append(res, leafIndices(c)...)
	}
	return res
}

// narrowRowGroups picks the row groups holding rows and rebases rows onto the
// concatenation of the picked groups. Out of range rows stay out of range. The
// first group is picked when no row falls into any group, so that the schema
// can still be read.
func narrowRowGroups(sizes []int64, rows []int64) ([]int, []int64) {
	starts := make([]int64, len(sizes)+1)
	for i, n := range sizes {
		starts[i+1] = starts[i] + n
	}
	groupOf := func(r int64) int {
		return sort.Search(len(sizes), func(i int) bool { return starts[i+1] > r })
	}
	used := make([]bool, len(sizes))
	for _, r := range rows {
		if g := groupOf(r); g < len(sizes) {
			used[g] = true
		}
	}
	if len(sizes) > 0 && !slices.Contains(used, true) {
		used[0] = true
	}
	var groups []int
	base := make([]int64, len(sizes))
	var total int64
	for g, ok := range used {
		if ok {
			groups = append(groups, g)
			base[g] = total
			total += sizes[g]
		}
	}
	rebased := make([]int64, len(rows))
	for k, r := range rows {
		g := groupOf(r)
		if g == len(sizes) || !used[g] {
			rebased[k] = total + r - starts[len(sizes)]
			continue
		}
		rebased[k] = base[g] + r - starts[g]
	}
	return groups, rebased
}

func rowGroupSizes(rdr *file.Reader) []int64 {
	res := make([]int64, rdr.NumRowGroups())
	for i := range res {
		res[i] = rdr.MetaData().RowGroup(i).NumRows()
	}
	return res
}

// regularWaveforms turns ragged waveform columns whose rows all have the same
// length back into fixed stride waveforms.
func regularWaveforms(tbl *model.Table) error {
	for _, name := range tbl.Names() {
		col, _ := tbl.Get(name)
		ragged, ok := col.(*data_types.RaggedWaveformColumn)
		if !ok {
			continue
		}
		if wf, ok := ragged.Regular(); ok {
			if err := tbl.Set(name, wf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read decodes only the row groups that hold rows. Columns of a type that has
// no column kind are dropped with a warning.
func (p *ParquetStore) Read(ctx context.Context, tablePath, f string, rows []int64, fields []string) (*model.Table, error) {
	rdr, fr, err := p.open(tablePath, f)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	var wanted map[string]bool
	if fields != nil {
		wanted = map[string]bool{}
		for _, name := range fields {
			wanted[name] = true
		}
	}
	var leaves []int
	for _, field := range fr.Manifest.Fields {
		if wanted != nil && !wanted[field.Field.Name] {
			continue
		}
		if !data_types.Supports(field.Field.Type) {
			slog.Warn("unsupported column type, skipping", "file", f, "table", tablePath,
				"column", field.Field.Name, "type", field.Field.Type.String())
			continue
		}
		leaves = append(leaves, leafIndices(field)...)
	}
	if len(leaves) == 0 {
		if rows == nil {
			rows = make([]int64, rdr.NumRows())
			for i := range rows {
				rows[i] = int64(i)
			}
		}
		return model.NewTable().Take(rows)
	}

	var groups []int
	if rows != nil {
		groups, rows = narrowRowGroups(rowGroupSizes(rdr), rows)
	}
	rr, err := fr.GetRecordReader(ctx, leaves, groups)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", tablePath, err)
	}
	defer rr.Release()

	res := model.NewTable()
	for rr.Next() {
		tbl, err := model.FromRecord(rr.Record())
		if err != nil {
			return nil, err
		}
		if err := res.Append(tbl); err != nil {
			return nil, err
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", tablePath, err)
	}
	if res.NumCols() == 0 {
		rb := array.NewRecordBuilder(memory.DefaultAllocator, rr.Schema())
		defer rb.Release()
		rec := rb.NewRecord()
		defer rec.Release()
		if res, err = model.FromRecord(rec); err != nil {
			return nil, err
		}
	}
	if err := regularWaveforms(res); err != nil {
		return nil, err
	}
	if rows == nil {
		return res, nil
	}
	return res.Take(rows)
}

func (p *ParquetStore) RowCount(ctx context.Context, tablePath, f string) (int64, error) {
	rdr, _, err := p.open(tablePath, f)
	if err != nil {
		return 0, err
	}
	defer rdr.Close()
	return rdr.NumRows(), nil
}

func (p *ParquetStore) Exists(f string) bool {
	info, err := os.Stat(p.dir(f))
	return err == nil && info.IsDir()
}

func (p *ParquetStore) Tables(ctx context.Context, f string) ([]string, error) {
	dir := p.dir(f)
	var res []string
	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(name, parquetExt) {
			return nil
		}
		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		res = append(res, filepath.ToSlash(strings.TrimSuffix(rel, parquetExt)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

func (p *ParquetStore) Columns(ctx context.Context, tablePath, f string) ([]string, error) {
	rdr, fr, err := p.open(tablePath, f)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()
	schema, err := fr.Schema()
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, schema.NumFields())
	for _, field := range schema.Fields() {
		res = append(res, field.Name)
	}
	return res, nil
}

func (p *ParquetStore) Write(ctx context.Context, obj *model.Table, path, f string, mode WriteMode) error {
	target := p.tableFile(path, f)
	if mode == Append {
		if _, err := os.Stat(target); err == nil {
			prev, err := p.Read(ctx, path, f, nil, nil)
			if err != nil {
				return err
			}
			if err := prev.Append(obj); err != nil {
				return err
			}
			obj = prev
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	uid, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	tmpFileName := filepath.Join(filepath.Dir(target), "."+uid.String()+parquetExt+".tmp")
	if err := saveTmpFile(tmpFileName, obj, p.rowGroupSize); err != nil {
		os.Remove(tmpFileName)
		return err
	}
	return os.Rename(tmpFileName, target)
}

func saveTmpFile(filename string, obj *model.Table, rowGroupSize int64) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer out.Close()
	return encodeParquet(out, obj, rowGroupSize)
}

func encodeParquet(w io.Writer, obj *model.Table, rowGroupSize int64) error {
	record, err := obj.ToRecord(memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer record.Release()
	writerProps := parquet.NewWriterProperties(
		parquet.WithMaxRowGroupLength(rowGroupSize),
	)
	arrprops := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(record.Schema(), w, writerProps, arrprops)
	if err != nil {
		return err
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
