package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Artifact file names inside an output directory.
const (
	FeaturesFile = "X_data.npy"
	TargetsFile  = "y_data.npy"
	LabelsFile   = "labels.txt"
)

// rename is replaced in tests to simulate filesystem failures.
var rename = os.Rename

// Save writes the feature matrix, target vector and label list into dir.
// Every artifact is written to a temporary file first. The existing outputs
// are then swapped out as a group: if any replacement fails, the previous
// files are put back. A dataset without samples is written as a (0, dim)
// matrix with an empty target vector and the full label list.
func Save(dir string, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	targets := make([]int64, len(d.Targets))
	for i, t := range d.Targets {
		targets[i] = int64(t)
	}

	writes := []struct {
		name  string
		write func(io.Writer) error
	}{
		{FeaturesFile, func(w io.Writer) error { return writeFeatures(w, d) }},
		{TargetsFile, func(w io.Writer) error { return npyio.Write(w, targets) }},
		{LabelsFile, func(w io.Writer) error { return WriteLabels(w, d.Labels) }},
	}

	names := make([]string, 0, len(writes))
	temps := make([]string, 0, len(writes))
	defer func() {
		for _, p := range temps {
			os.Remove(p)
		}
	}()

	for _, wr := range writes {
		tmp, err := writeTemp(dir, wr.name, wr.write)
		if err != nil {
			return fmt.Errorf("write %s: %w", wr.name, err)
		}
		names = append(names, wr.name)
		temps = append(temps, tmp)
	}

	if err := replace(dir, names, temps); err != nil {
		return err
	}
	temps = temps[:0]
	return nil
}

func writeFeatures(w io.Writer, d *Dataset) error {
	if d.Len() == 0 {
		return npyio.Write(w, emptyMatrix{cols: d.Dim()})
	}
	m, err := d.Matrix()
	if err != nil {
		return err
	}
	return npyio.Write(w, m)
}

// emptyMatrix is a matrix with no rows. mat.Dense cannot represent it.
type emptyMatrix struct {
	cols int
}

func (e emptyMatrix) Dims() (r, c int)    { return 0, e.cols }
func (e emptyMatrix) At(i, j int) float64 { panic(mat.ErrIndexOutOfRange) }
func (e emptyMatrix) T() mat.Matrix       { return mat.Transpose{Matrix: e} }

// replace moves temps[i] over dir/names[i]. Existing targets are set aside
// first and restored if any move fails, so dir holds either all old or all
// new artifacts.
func replace(dir string, names, temps []string) (err error) {
	backups := make([]string, len(names))
	placed := 0

	defer func() {
		if err == nil {
			for _, b := range backups {
				if b != "" {
					os.Remove(b)
				}
			}
			return
		}
		for i, name := range names {
			dst := filepath.Join(dir, name)
			switch {
			case backups[i] != "":
				rename(backups[i], dst)
			case i < placed:
				os.Remove(dst)
			}
		}
	}()

	for i, name := range names {
		dst := filepath.Join(dir, name)
		if _, statErr := os.Lstat(dst); statErr != nil {
			continue
		}
		backup := filepath.Join(dir, "."+name+".bak")
		if err := rename(dst, backup); err != nil {
			return fmt.Errorf("back up %s: %w", name, err)
		}
		backups[i] = backup
	}

	for i, name := range names {
		if err := rename(temps[i], filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
		placed = i + 1
	}
	return nil
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Load reads the artifacts written by Save and validates their alignment.
func Load(dir string) (*Dataset, error) {
	labels, err := ReadLabelsFile(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}

	rows, cols, raw, err := readFeatures(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, err
	}

	var targets []int64
	if err := readNpy(filepath.Join(dir, TargetsFile), &targets); err != nil {
		return nil, err
	}

	d := New(labels, cols)
	d.Features = make([][]float64, rows)
	for i := range d.Features {
		d.Features[i] = raw[i*cols : (i+1)*cols : (i+1)*cols]
	}
	d.Targets = make([]int, len(targets))
	for i, t := range targets {
		d.Targets[i] = int(t)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("dataset in %s: %w", dir, err)
	}
	return d, nil
}

// readFeatures reads a 2-D float64 array. Zero rows are allowed.
func readFeatures(path string) (rows, cols int, raw []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("read %s: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return 0, 0, nil, fmt.Errorf("read %s: want a 2-D array, got shape %v", path, shape)
	}
	rows, cols = shape[0], shape[1]

	raw = make([]float64, rows*cols)
	if err := r.Read(&raw); err != nil {
		return 0, 0, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, cols, raw, nil
}

func readNpy(path string, ptr interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := npyio.Read(f, ptr); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// WriteLabels writes one label per line; the line number is the label index.
func WriteLabels(w io.Writer, labels []string) error {
	for _, l := range labels {
		if _, err := fmt.Fprintf(w, "%s\n", l); err != nil {
			return err
		}
	}
	return nil
}

// ReadLabels reads a label list, ignoring a trailing empty line.
func ReadLabels(r io.Reader) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		labels = append(labels, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	return labels, nil
}

// ReadLabelsFile reads a label list from disk.
func ReadLabelsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLabels(f)
}
