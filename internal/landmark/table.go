package landmark

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Landmark types as they appear in the `type` column.
const (
	TypeLeftHand  = "left_hand"
	TypeRightHand = "right_hand"
	TypePose      = "pose"
	TypeFace      = "face"
)

// Field names a coordinate column.
type Field string

const (
	FieldX Field = "x"
	FieldY Field = "y"
	FieldZ Field = "z"
)

// ParseField validates a coordinate column name.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldX, FieldY, FieldZ:
		return f, nil
	default:
		return "", fmt.Errorf("unknown coordinate field %q", s)
	}
}

// Row is one landmark observation. Null coordinates are NaN.
type Row struct {
	Frame         int
	Type          string
	LandmarkIndex int
	X, Y, Z       float64
}

// Coord returns the value of the given coordinate column.
func (r Row) Coord(f Field) float64 {
	switch f {
	case FieldX:
		return r.X
	case FieldY:
		return r.Y
	case FieldZ:
		return r.Z
	}
	return math.NaN()
}

// HasCoords reports whether any coordinate of the row is non-null.
func (r Row) HasCoords() bool {
	return !math.IsNaN(r.X) || !math.IsNaN(r.Y) || !math.IsNaN(r.Z)
}

// Table is the per-frame landmark table of one recorded sequence.
type Table struct {
	rows    []Row
	frames  []int
	byFrame map[int][]int
}

// NewTable indexes rows by frame. Row order is preserved.
func NewTable(rows []Row) *Table {
	t := &Table{
		rows:    rows,
		byFrame: make(map[int][]int),
	}
	for i, r := range rows {
		if _, seen := t.byFrame[r.Frame]; !seen {
			t.frames = append(t.frames, r.Frame)
		}
		t.byFrame[r.Frame] = append(t.byFrame[r.Frame], i)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the table rows in file order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Frames returns the distinct frame indices in order of first appearance.
func (t *Table) Frames() []int {
	return t.frames
}

// HandRows returns the rows of one landmark type within one frame, in file order.
func (t *Table) HandRows(frame int, typ string) []Row {
	var out []Row
	for _, i := range t.byFrame[frame] {
		if t.rows[i].Type == typ {
			out = append(out, t.rows[i])
		}
	}
	return out
}

// ReadFile loads a landmark table, choosing the decoder from the file extension.
func ReadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return ReadParquet(path)
	case ".csv":
		return ReadCSVFile(path)
	default:
		return nil, fmt.Errorf("unsupported landmark table format: %s", path)
	}
}
