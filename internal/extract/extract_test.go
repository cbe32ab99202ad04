package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/manifest"
)

// hand builds n landmark rows of one hand type. Coordinates encode base so
// tests can tell which sequence and frame a vector came from.
func hand(frame int, typ string, base float64, n int) []landmark.Row {
	rows := make([]landmark.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = landmark.Row{
			Frame:         frame,
			Type:          typ,
			LandmarkIndex: i,
			X:             base + float64(i)*0.01,
			Y:             base + float64(i)*0.02,
			Z:             -float64(i) * 0.001,
		}
	}
	return rows
}

func nullHand(frame int, typ string) []landmark.Row {
	rows := make([]landmark.Row, landmark.NumLandmarks)
	for i := range rows {
		rows[i] = landmark.Row{
			Frame:         frame,
			Type:          typ,
			LandmarkIndex: i,
			X:             math.NaN(),
			Y:             math.NaN(),
			Z:             math.NaN(),
		}
	}
	return rows
}

func concat(parts ...[]landmark.Row) []landmark.Row {
	var out []landmark.Row
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func writeTable(t *testing.T, dir, name string, rows []landmark.Row) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, landmark.WriteCSV(f, rows))
	return path
}

func newExtractor(t *testing.T, opts Options, log *zap.Logger) *Extractor {
	t.Helper()
	e, err := New(opts, log)
	require.NoError(t, err)
	return e
}

func xyVector(base float64) []float64 {
	vec := make([]float64, 0, 42)
	for i := 0; i < landmark.NumLandmarks; i++ {
		vec = append(vec, base+float64(i)*0.01, base+float64(i)*0.02)
	}
	return vec
}

func TestRun_EndToEndScenario(t *testing.T) {
	dir := t.TempDir()

	rows := []manifest.Row{
		{Sign: "A", SequenceID: "1", Path: writeTable(t, dir, "a1.csv", concat(
			nullHand(0, landmark.TypeRightHand),
			hand(0, landmark.TypeLeftHand, 0.3, 21),
		))},
		{Sign: "A", SequenceID: "2", Path: writeTable(t, dir, "a2.csv", concat(
			nullHand(0, landmark.TypeRightHand),
			nullHand(0, landmark.TypeLeftHand),
		))},
		{Sign: "B", SequenceID: "4", Path: writeTable(t, dir, "b1.csv", hand(0, landmark.TypeRightHand, 0.6, 21))},
		{Sign: "A", SequenceID: "3", Path: writeTable(t, dir, "a3.csv", concat(
			nullHand(0, landmark.TypeRightHand),
			nullHand(1, landmark.TypeLeftHand),
		))},
	}

	core, logs := observer.New(zapcore.WarnLevel)
	opts := DefaultOptions()
	opts.SamplesPerLabel = 2
	e := newExtractor(t, opts, zap.New(core))

	ds, report, err := e.Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, ds.Labels)
	assert.Equal(t, []int{0, 1}, ds.Targets)
	require.Len(t, ds.Features, 2)
	assert.InDeltaSlice(t, xyVector(0.3), ds.Features[0], 1e-12, "left hand fallback for A")
	assert.InDeltaSlice(t, xyVector(0.6), ds.Features[1], 1e-12)

	require.Len(t, report.Labels, 2)
	assert.Equal(t, 3, report.Labels[0].Tried)
	assert.Equal(t, 1, report.Labels[0].Collected)
	assert.Equal(t, 2, report.Labels[0].Skipped)

	warned := logs.FilterMessage("label under quota").FilterField(zap.String("sign", "A")).All()
	require.Len(t, warned, 1)
	assert.Equal(t, int64(1), warned[0].ContextMap()["found"])
	assert.Equal(t, int64(2), warned[0].ContextMap()["want"])
}

func TestRun_Deterministic(t *testing.T) {
	dir := t.TempDir()
	var rows []manifest.Row
	for _, sign := range []string{"go", "bye", "hello"} {
		for i := 0; i < 6; i++ {
			base := float64(len(rows)) * 0.01
			rows = append(rows, manifest.Row{
				Sign:       sign,
				SequenceID: fmt.Sprint(len(rows)),
				Path:       writeTable(t, dir, fmt.Sprintf("%s-%d.csv", sign, i), hand(0, landmark.TypeRightHand, base, 21)),
			})
		}
	}

	opts := DefaultOptions()
	opts.SamplesPerLabel = 3

	ds1, _, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
	require.NoError(t, err)
	ds2, _, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, ds1.Labels, ds2.Labels)
	assert.Equal(t, ds1.Targets, ds2.Targets)
	assert.Equal(t, ds1.Features, ds2.Features)

	opts.Seed = 7
	ds3, _, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, ds1.Targets, ds3.Targets, "targets only depend on counts")
}

func TestRun_LabelIndexIndependentOfRowOrder(t *testing.T) {
	dir := t.TempDir()
	rows := []manifest.Row{
		{Sign: "wait", Path: writeTable(t, dir, "w.csv", hand(0, landmark.TypeRightHand, 0.1, 21))},
		{Sign: "blow", Path: writeTable(t, dir, "b.csv", hand(0, landmark.TypeRightHand, 0.2, 21))},
		{Sign: "cloud", Path: writeTable(t, dir, "c.csv", hand(0, landmark.TypeRightHand, 0.3, 21))},
	}
	reversed := slices.Clone(rows)
	slices.Reverse(reversed)

	ds1, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), rows)
	require.NoError(t, err)
	ds2, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), reversed)
	require.NoError(t, err)

	assert.Equal(t, []string{"blow", "cloud", "wait"}, ds1.Labels)
	assert.Equal(t, ds1.Labels, ds2.Labels)
	assert.Equal(t, ds1.Targets, ds2.Targets)
	assert.Equal(t, ds1.Features, ds2.Features)
}

func TestRun_QuotaBound(t *testing.T) {
	dir := t.TempDir()
	var rows []manifest.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, manifest.Row{
			Sign: "A",
			Path: writeTable(t, dir, fmt.Sprintf("a%d.csv", i), hand(0, landmark.TypeRightHand, float64(i), 21)),
		})
	}

	for _, sampling := range []Sampling{SamplingShuffle, SamplingFirst} {
		t.Run(string(sampling), func(t *testing.T) {
			opts := DefaultOptions()
			opts.SamplesPerLabel = 3
			opts.Sampling = sampling

			ds, report, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
			require.NoError(t, err)
			assert.Equal(t, 3, ds.Len())
			assert.Equal(t, 3, report.Labels[0].Tried)
			assert.Empty(t, report.Shortfalls())
		})
	}
}

func TestRun_FirstAvailableKeepsManifestOrder(t *testing.T) {
	dir := t.TempDir()
	var rows []manifest.Row
	for i := 0; i < 4; i++ {
		rows = append(rows, manifest.Row{
			Sign: "A",
			Path: writeTable(t, dir, fmt.Sprintf("a%d.csv", i), hand(0, landmark.TypeRightHand, float64(i), 21)),
		})
	}

	opts := DefaultOptions()
	opts.Sampling = SamplingFirst
	opts.SamplesPerLabel = 2

	ds, _, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, ds.Features, 2)
	assert.Equal(t, 0.0, ds.Features[0][0])
	assert.Equal(t, 1.0, ds.Features[1][0])
}

func TestRun_SkipsMissingAndUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.csv")
	require.NoError(t, os.WriteFile(garbage, []byte("not,a,landmark,table\n1,2,3,4\n"), 0o644))

	rows := []manifest.Row{
		{Sign: "A", Path: filepath.Join(dir, "missing.csv")},
		{Sign: "A", Path: garbage},
		{Sign: "A", Path: writeTable(t, dir, "ok.csv", hand(0, landmark.TypeRightHand, 0.5, 21))},
	}

	core, logs := observer.New(zapcore.WarnLevel)
	opts := DefaultOptions()
	opts.Sampling = SamplingFirst
	opts.SamplesPerLabel = 5

	ds, report, err := newExtractor(t, opts, zap.New(core)).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 2, report.Labels[0].Skipped)
	assert.Len(t, logs.FilterMessage("landmark file missing, skipping").All(), 1)
	assert.Len(t, logs.FilterMessage("landmark table unreadable, skipping").All(), 1)
}

func TestRun_FrameSelection(t *testing.T) {
	dir := t.TempDir()

	t.Run("prefers the middle frame", func(t *testing.T) {
		path := writeTable(t, dir, "mid.csv", concat(
			hand(10, landmark.TypeRightHand, 0.1, 21),
			hand(11, landmark.TypeRightHand, 0.2, 21),
			hand(12, landmark.TypeRightHand, 0.3, 21),
			hand(13, landmark.TypeRightHand, 0.4, 21),
		))

		ds, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), []manifest.Row{{Sign: "A", Path: path}})
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		assert.InDeltaSlice(t, xyVector(0.3), ds.Features[0], 1e-12)
	})

	t.Run("scans remaining frames in order", func(t *testing.T) {
		path := writeTable(t, dir, "scan.csv", concat(
			nullHand(0, landmark.TypeRightHand),
			hand(1, landmark.TypeLeftHand, 0.2, 21),
			nullHand(2, landmark.TypeRightHand),
			hand(3, landmark.TypeRightHand, 0.4, 21),
		))
		rows := []manifest.Row{{Sign: "A", Path: path}}

		ds, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), rows)
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		assert.InDeltaSlice(t, xyVector(0.2), ds.Features[0], 1e-12)

		opts := DefaultOptions()
		opts.FramePolicy = FrameMiddleOnly
		ds, report, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
		require.NoError(t, err)
		assert.Equal(t, 0, ds.Len())
		assert.Len(t, report.Shortfalls(), 1)
	})

	t.Run("skips incomplete hands", func(t *testing.T) {
		path := writeTable(t, dir, "partial.csv", concat(
			hand(0, landmark.TypeRightHand, 0.1, 21),
			hand(1, landmark.TypeRightHand, 0.2, 20),
		))

		ds, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), []manifest.Row{{Sign: "A", Path: path}})
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		assert.InDeltaSlice(t, xyVector(0.1), ds.Features[0], 1e-12)
	})
}

func TestRun_VectorDimension(t *testing.T) {
	dir := t.TempDir()
	unsorted := hand(0, landmark.TypeRightHand, 0.1, 21)
	slices.Reverse(unsorted)
	rows := []manifest.Row{
		{Sign: "A", Path: writeTable(t, dir, "a.csv", unsorted)},
		{Sign: "B", Path: writeTable(t, dir, "b.csv", hand(0, landmark.TypeRightHand, 0.2, 22))},
	}

	t.Run("xy", func(t *testing.T) {
		ds, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), rows)
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		for _, row := range ds.Features {
			assert.Len(t, row, 42)
		}
		assert.InDeltaSlice(t, xyVector(0.1), ds.Features[0], 1e-12, "rows are sorted by landmark index")
	})

	t.Run("xyz", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Fields = []landmark.Field{landmark.FieldX, landmark.FieldY, landmark.FieldZ}

		ds, _, err := newExtractor(t, opts, nil).Run(context.Background(), rows)
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		assert.Len(t, ds.Features[0], 63)
		assert.Equal(t, 63, ds.Dim())
		assert.InDelta(t, -0.001, ds.Features[0][5], 1e-12)
	})
}

func TestRun_NullCoordinatesInsideHandBecomeNaN(t *testing.T) {
	rows := hand(0, landmark.TypeRightHand, 0.1, 21)
	rows[4].X = math.NaN()
	rows[4].Y = math.NaN()

	path := writeTable(t, t.TempDir(), "nan.csv", rows)
	ds, _, err := newExtractor(t, DefaultOptions(), nil).Run(context.Background(), []manifest.Row{{Sign: "A", Path: path}})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.True(t, math.IsNaN(ds.Features[0][8]))
	assert.False(t, math.IsNaN(ds.Features[0][0]))
}

func TestRun_Normalize(t *testing.T) {
	path := writeTable(t, t.TempDir(), "n.csv", hand(0, landmark.TypeRightHand, 0.4, 21))

	opts := DefaultOptions()
	opts.Normalize = true
	ds, _, err := newExtractor(t, opts, nil).Run(context.Background(), []manifest.Row{{Sign: "A", Path: path}})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	vec := ds.Features[0]
	assert.InDelta(t, 0, vec[0], 1e-12, "wrist x")
	assert.InDelta(t, 0, vec[1], 1e-12, "wrist y")
	mx, my := vec[2*landmark.MiddleMCP], vec[2*landmark.MiddleMCP+1]
	assert.InDelta(t, 1.0, math.Hypot(mx, my), 1e-9)
}

func TestRun_EmptyManifest(t *testing.T) {
	opts := DefaultOptions()
	ds, report, err := newExtractor(t, opts, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, opts.Dim(), ds.Dim())
	assert.Empty(t, ds.Labels)
	assert.Empty(t, report.Shortfalls())
}

func TestRun_Errors(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := newExtractor(t, DefaultOptions(), nil).Run(ctx, []manifest.Row{{Sign: "A", Path: "x.csv"}})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRun_CustomLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	e := newExtractor(t, DefaultOptions(), nil)
	e.SetLoader(func(string) (*landmark.Table, error) {
		return landmark.NewTable(hand(0, landmark.TypeLeftHand, 0.7, 21)), nil
	})

	ds, _, err := e.Run(context.Background(), []manifest.Row{{Sign: "A", Path: path}})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.InDeltaSlice(t, xyVector(0.7), ds.Features[0], 1e-12)
}

func TestCandidateFrames(t *testing.T) {
	collect := func(frames []int, policy FramePolicy) []int {
		var out []int
		for f := range candidateFrames(frames, policy) {
			out = append(out, f)
		}
		return out
	}

	assert.Equal(t, []int{30, 10, 20, 40}, collect([]int{10, 20, 30, 40}, FrameMiddleThenScan))
	assert.Equal(t, []int{20, 10, 30}, collect([]int{10, 20, 30}, FrameMiddleThenScan))
	assert.Equal(t, []int{20}, collect([]int{10, 20, 30}, FrameMiddleOnly))
	assert.Equal(t, []int{5}, collect([]int{5}, FrameMiddleThenScan))
	assert.Empty(t, collect(nil, FrameMiddleThenScan))

	seq := candidateFrames([]int{1, 2, 3}, FrameMiddleThenScan)
	var first, second []int
	for f := range seq {
		first = append(first, f)
		break
	}
	for f := range seq {
		second = append(second, f)
	}
	assert.Equal(t, []int{2}, first)
	assert.Equal(t, []int{2, 1, 3}, second, "sequence restarts from the middle frame")
}

func TestSelectHand(t *testing.T) {
	tbl := landmark.NewTable(concat(
		hand(0, landmark.TypeRightHand, 0.1, 21),
		hand(0, landmark.TypeLeftHand, 0.2, 21),
		nullHand(1, landmark.TypeRightHand),
		hand(1, landmark.TypeLeftHand, 0.3, 21),
		nullHand(2, landmark.TypeRightHand),
		nullHand(2, landmark.TypeLeftHand),
		hand(3, landmark.TypePose, 0.4, 21),
	))

	right := selectHand(tbl, 0)
	require.Len(t, right, 21)
	assert.Equal(t, landmark.TypeRightHand, right[0].Type)

	left := selectHand(tbl, 1)
	require.Len(t, left, 21)
	assert.Equal(t, landmark.TypeLeftHand, left[0].Type)

	assert.Nil(t, selectHand(tbl, 2))
	assert.Nil(t, selectHand(tbl, 3), "pose rows are never a hand")
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no fields", func(o *Options) { o.Fields = nil }},
		{"unknown field", func(o *Options) { o.Fields = []landmark.Field{"w"} }},
		{"duplicate field", func(o *Options) { o.Fields = []landmark.Field{landmark.FieldX, landmark.FieldX} }},
		{"unknown sampling", func(o *Options) { o.Sampling = "random" }},
		{"unknown frame policy", func(o *Options) { o.FramePolicy = "last" }},
		{"zero quota", func(o *Options) { o.SamplesPerLabel = 0 }},
	}

	require.NoError(t, DefaultOptions().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			assert.Error(t, opts.Validate())
			_, err := New(opts, nil)
			assert.Error(t, err)
		})
	}
}

func TestHandVector_MatchesExtraction(t *testing.T) {
	rows := hand(0, landmark.TypeRightHand, 0.25, 21)
	var h landmark.Hand
	for i, r := range rows {
		h.Points[i] = landmark.Point3D{X: r.X, Y: r.Y, Z: r.Z}
	}

	for _, normalize := range []bool{false, true} {
		t.Run(fmt.Sprintf("normalize=%v", normalize), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Normalize = normalize
			e := newExtractor(t, opts, nil)

			want, ok := e.assemble(rows)
			require.True(t, ok)
			assert.InDeltaSlice(t, want, HandVector(h, opts), 1e-12)
		})
	}
}

func TestReport(t *testing.T) {
	r := &Report{
		Quota: 2,
		Labels: []LabelReport{
			{Sign: "A", Collected: 2},
			{Sign: "B", Collected: 1},
		},
	}
	assert.Equal(t, 3, r.Total())
	short := r.Shortfalls()
	require.Len(t, short, 1)
	assert.Equal(t, "B", short[0].Sign)
}
