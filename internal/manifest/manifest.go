// Package manifest reads the top-level index that maps recorded sequences to
// their sign label and landmark table location.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrMissingColumn is returned when the manifest header lacks a required column.
var ErrMissingColumn = errors.New("missing manifest column")

// Row is one recorded gesture sequence.
type Row struct {
	Sign          string
	Path          string
	SequenceID    string
	ParticipantID string
}

// ReadFile reads a manifest CSV. Relative paths are resolved against root,
// or against the manifest's directory when root is empty.
func ReadFile(path, root string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	if root == "" {
		root = filepath.Dir(path)
	}

	rows, err := Read(f, root)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return rows, nil
}

// Read parses manifest CSV with at least the sign, path and sequence_id columns.
func Read(r io.Reader, root string) ([]Row, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty manifest")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"sign", "path", "sequence_id"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	participant, hasParticipant := col["participant_id"]

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := Row{
			Sign:       strings.TrimSpace(rec[col["sign"]]),
			Path:       strings.TrimSpace(rec[col["path"]]),
			SequenceID: strings.TrimSpace(rec[col["sequence_id"]]),
		}
		if hasParticipant {
			row.ParticipantID = strings.TrimSpace(rec[participant])
		}
		if row.Sign == "" {
			return nil, fmt.Errorf("line %d: empty sign", line)
		}
		if row.Path == "" {
			return nil, fmt.Errorf("line %d: empty path", line)
		}
		if root != "" && !filepath.IsAbs(row.Path) {
			row.Path = filepath.Join(root, row.Path)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Labels returns the sorted, deduplicated sign names. A sign's position in
// the result is its label index.
func Labels(rows []Row) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, r := range rows {
		if _, ok := seen[r.Sign]; ok {
			continue
		}
		seen[r.Sign] = struct{}{}
		labels = append(labels, r.Sign)
	}
	sort.Strings(labels)
	return labels
}

// GroupBySign groups rows by sign, keeping manifest order within each group.
func GroupBySign(rows []Row) map[string][]Row {
	groups := make(map[string][]Row)
	for _, r := range rows {
		groups[r.Sign] = append(groups[r.Sign], r)
	}
	return groups
}
