package extract

import (
	"cmp"
	"iter"
	"math"
	"slices"

	"github.com/ayusman/handsign/internal/landmark"
)

// candidateFrames yields the middle distinct frame, then (unless the policy
// is middle-only) the remaining frames in their original order. The sequence
// can be ranged over any number of times.
func candidateFrames(frames []int, policy FramePolicy) iter.Seq[int] {
	return func(yield func(int) bool) {
		if len(frames) == 0 {
			return
		}
		mid := len(frames) / 2
		if !yield(frames[mid]) {
			return
		}
		if policy == FrameMiddleOnly {
			return
		}
		for i, f := range frames {
			if i == mid {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func anyCoords(rows []landmark.Row) bool {
	for _, r := range rows {
		if r.HasCoords() {
			return true
		}
	}
	return false
}

// selectHand returns the right hand rows of a frame, or the left hand rows
// when the right hand has no coordinates. Nil means no usable hand.
func selectHand(tbl *landmark.Table, frame int) []landmark.Row {
	hand := tbl.HandRows(frame, landmark.TypeRightHand)
	if !anyCoords(hand) {
		hand = tbl.HandRows(frame, landmark.TypeLeftHand)
	}
	if !anyCoords(hand) {
		return nil
	}
	return hand
}

// assemble flattens hand rows sorted by landmark index. ok is false when the
// vector does not have exactly the configured dimension.
func (e *Extractor) assemble(hand []landmark.Row) (vec []float64, ok bool) {
	sorted := slices.Clone(hand)
	slices.SortStableFunc(sorted, func(a, b landmark.Row) int {
		return cmp.Compare(a.LandmarkIndex, b.LandmarkIndex)
	})

	if e.opts.Normalize {
		if sorted, ok = e.normalize(sorted); !ok {
			return nil, false
		}
	}

	vec = make([]float64, 0, len(sorted)*len(e.opts.Fields))
	for _, r := range sorted {
		for _, f := range e.opts.Fields {
			vec = append(vec, r.Coord(f))
		}
	}

	if len(vec) != e.opts.Dim() {
		return nil, false
	}
	return vec, true
}

// normalize rewrites a complete 0..20 hand through landmark.Hand.Normalize.
// Coordinates not selected for output are zeroed first so a missing z does
// not poison the scale.
func (e *Extractor) normalize(sorted []landmark.Row) ([]landmark.Row, bool) {
	if len(sorted) != landmark.NumLandmarks {
		return nil, false
	}

	useZ := slices.Contains(e.opts.Fields, landmark.FieldZ)
	var hand landmark.Hand
	for i, r := range sorted {
		if r.LandmarkIndex != i {
			return nil, false
		}
		p := landmark.Point3D{X: r.X, Y: r.Y}
		if useZ {
			p.Z = r.Z
		}
		hand.Points[i] = p
	}

	norm := hand.Normalize()
	out := make([]landmark.Row, len(sorted))
	for i, r := range sorted {
		out[i] = r
		out[i].X = norm.Points[i].X
		out[i].Y = norm.Points[i].Y
		if useZ {
			out[i].Z = norm.Points[i].Z
		} else {
			out[i].Z = math.NaN()
		}
	}
	return out, true
}
