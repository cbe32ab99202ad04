package landmark

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

const parquetBatchSize = 64 * 1024

// ReadParquet reads a landmark table from a parquet file. Integer and float
// columns of any width are accepted; the type column may be dictionary encoded.
func ReadParquet(path string) (*Table, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("parquet reader %s: %w", path, err)
	}

	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	defer tbl.Release()

	t, err := tableFromArrow(tbl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func tableFromArrow(tbl arrow.Table) (*Table, error) {
	n := int(tbl.NumRows())

	frames, err := numericColumn(tbl, "frame", true)
	if err != nil {
		return nil, err
	}
	indices, err := numericColumn(tbl, "landmark_index", true)
	if err != nil {
		return nil, err
	}
	types, err := stringColumn(tbl, "type")
	if err != nil {
		return nil, err
	}
	xs, err := numericColumn(tbl, "x", true)
	if err != nil {
		return nil, err
	}
	ys, err := numericColumn(tbl, "y", true)
	if err != nil {
		return nil, err
	}
	zs, err := numericColumn(tbl, "z", false)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(frames[i]) || math.IsNaN(indices[i]) {
			return nil, fmt.Errorf("row %d: null frame or landmark_index", i)
		}
		rows[i] = Row{
			Frame:         int(frames[i]),
			Type:          types[i],
			LandmarkIndex: int(indices[i]),
			X:             xs[i],
			Y:             ys[i],
			Z:             math.NaN(),
		}
		if zs != nil {
			rows[i].Z = zs[i]
		}
	}
	return NewTable(rows), nil
}

func columnChunks(tbl arrow.Table, name string) ([]arrow.Array, bool) {
	idx := tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, false
	}
	return tbl.Column(idx[0]).Data().Chunks(), true
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

type numberArray[T number] interface {
	arrow.Array
	Value(i int) T
}

func appendNumbers[T number](dst []float64, a numberArray[T]) []float64 {
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			dst = append(dst, math.NaN())
			continue
		}
		dst = append(dst, float64(a.Value(i)))
	}
	return dst
}

// numericColumn flattens a numeric column to float64 with NaN for nulls.
// A missing optional column yields nil.
func numericColumn(tbl arrow.Table, name string, required bool) ([]float64, error) {
	chunks, ok := columnChunks(tbl, name)
	if !ok {
		if required {
			return nil, fmt.Errorf("missing column %q", name)
		}
		return nil, nil
	}

	out := make([]float64, 0, tbl.NumRows())
	for _, chunk := range chunks {
		switch a := chunk.(type) {
		case *array.Int8:
			out = appendNumbers[int8](out, a)
		case *array.Int16:
			out = appendNumbers[int16](out, a)
		case *array.Int32:
			out = appendNumbers[int32](out, a)
		case *array.Int64:
			out = appendNumbers[int64](out, a)
		case *array.Uint8:
			out = appendNumbers[uint8](out, a)
		case *array.Uint16:
			out = appendNumbers[uint16](out, a)
		case *array.Uint32:
			out = appendNumbers[uint32](out, a)
		case *array.Uint64:
			out = appendNumbers[uint64](out, a)
		case *array.Float32:
			out = appendNumbers[float32](out, a)
		case *array.Float64:
			out = appendNumbers[float64](out, a)
		case *array.Null:
			for i := 0; i < a.Len(); i++ {
				out = append(out, math.NaN())
			}
		default:
			return nil, fmt.Errorf("column %q: unsupported type %s", name, chunk.DataType())
		}
	}
	return out, nil
}

func stringColumn(tbl arrow.Table, name string) ([]string, error) {
	chunks, ok := columnChunks(tbl, name)
	if !ok {
		return nil, fmt.Errorf("missing column %q", name)
	}

	out := make([]string, 0, tbl.NumRows())
	for _, chunk := range chunks {
		switch a := chunk.(type) {
		case *array.String:
			for i := 0; i < a.Len(); i++ {
				out = append(out, a.Value(i))
			}
		case *array.LargeString:
			for i := 0; i < a.Len(); i++ {
				out = append(out, a.Value(i))
			}
		case *array.Dictionary:
			dict, ok := a.Dictionary().(*array.String)
			if !ok {
				return nil, fmt.Errorf("column %q: unsupported dictionary type %s", name, a.Dictionary().DataType())
			}
			for i := 0; i < a.Len(); i++ {
				if a.IsNull(i) {
					out = append(out, "")
					continue
				}
				out = append(out, dict.Value(a.GetValueIndex(i)))
			}
		default:
			return nil, fmt.Errorf("column %q: unsupported type %s", name, chunk.DataType())
		}
	}
	return out, nil
}

var parquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "frame", Type: arrow.PrimitiveTypes.Int32},
	{Name: "type", Type: arrow.BinaryTypes.String},
	{Name: "landmark_index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "y", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "z", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// WriteParquet writes rows with the column layout of the landmark dataset.
// Frame and landmark index values must fit in an int32.
func WriteParquet(w io.Writer, rows []Row) error {
	b := array.NewRecordBuilder(memory.DefaultAllocator, parquetSchema)
	defer b.Release()

	frame := b.Field(0).(*array.Int32Builder)
	typ := b.Field(1).(*array.StringBuilder)
	index := b.Field(2).(*array.Int32Builder)
	coords := []*array.Float64Builder{
		b.Field(3).(*array.Float64Builder),
		b.Field(4).(*array.Float64Builder),
		b.Field(5).(*array.Float64Builder),
	}

	for i, r := range rows {
		if !fitsInt32(r.Frame) || !fitsInt32(r.LandmarkIndex) {
			return fmt.Errorf("row %d: frame %d or landmark index %d out of int32 range", i, r.Frame, r.LandmarkIndex)
		}
		frame.Append(int32(r.Frame))
		typ.Append(r.Type)
		index.Append(int32(r.LandmarkIndex))
		for c, v := range []float64{r.X, r.Y, r.Z} {
			if math.IsNaN(v) {
				coords[c].AppendNull()
			} else {
				coords[c].Append(v)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	tbl := array.NewTableFromRecords(parquetSchema, []arrow.Record{rec})
	defer tbl.Release()

	return pqarrow.WriteTable(tbl, w, parquetBatchSize, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
}

func fitsInt32(v int) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
