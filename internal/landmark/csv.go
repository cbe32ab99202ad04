package landmark

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var requiredColumns = []string{"frame", "type", "landmark_index", "x", "y"}

// ReadCSVFile reads a landmark table stored as CSV.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a landmark table with a header row. Extra columns are ignored,
// z is optional, and empty or NaN cells are nulls.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty landmark table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	zCol, hasZ := col["z"]

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		frame, err := strconv.Atoi(strings.TrimSpace(rec[col["frame"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: frame: %w", line, err)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rec[col["landmark_index"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: landmark_index: %w", line, err)
		}

		row := Row{
			Frame:         frame,
			Type:          strings.TrimSpace(rec[col["type"]]),
			LandmarkIndex: idx,
			Z:             math.NaN(),
		}
		if row.X, err = parseCoord(rec[col["x"]]); err != nil {
			return nil, fmt.Errorf("line %d: x: %w", line, err)
		}
		if row.Y, err = parseCoord(rec[col["y"]]); err != nil {
			return nil, fmt.Errorf("line %d: y: %w", line, err)
		}
		if hasZ {
			if row.Z, err = parseCoord(rec[zCol]); err != nil {
				return nil, fmt.Errorf("line %d: z: %w", line, err)
			}
		}
		rows = append(rows, row)
	}

	return NewTable(rows), nil
}

func parseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes rows in the layout ReadCSV accepts.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"frame", "type", "landmark_index", "x", "y", "z"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Frame),
			r.Type,
			strconv.Itoa(r.LandmarkIndex),
			formatCoord(r.X),
			formatCoord(r.Y),
			formatCoord(r.Z),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCoord(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
