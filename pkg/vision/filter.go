package vision

import (
	"fmt"
	"sort"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// Deduplicate sorts candidates by area (largest first, stable) and keeps a candidate only
// when its overlap with every kept one is at most DuplicateOverlap. At most MaxCandidates
// are kept.
func (d *FaceDetector) Deduplicate(candidates []types.FaceCandidate) []types.FaceCandidate {
	sorted := make([]types.FaceCandidate, len(candidates))
	copy(sorted, candidates)
	sortByAreaDesc(sorted)

	var kept []types.FaceCandidate
	for _, c := range sorted {
		if len(kept) >= d.config.MaxCandidates {
			break
		}
		duplicate := false
		for _, k := range kept {
			if c.Rect.Overlap(k.Rect) > d.config.DuplicateOverlap {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}
	return kept
}

// SameFace reports whether two candidates describe the same face: they overlap by more
// than SameFaceOverlap, or their centers are closer than SameFaceDistance times the
// shorter side of either rect (whichever allows more).
func (d *FaceDetector) SameFace(a, b types.FaceCandidate) bool {
	if a.Rect.Overlap(b.Rect) > d.config.SameFaceOverlap {
		return true
	}
	dist := a.Rect.CenterDistance(b.Rect)
	reach := d.config.SameFaceDistance * float64(max(a.Rect.MinSide(), b.Rect.MinSide()))
	return dist < reach
}

// DistinctFaces collapses same-face groups to their largest member, largest first
func (d *FaceDetector) DistinctFaces(candidates []types.FaceCandidate) []types.FaceCandidate {
	sorted := make([]types.FaceCandidate, len(candidates))
	copy(sorted, candidates)
	sortByAreaDesc(sorted)

	var distinct []types.FaceCandidate
	for _, c := range sorted {
		same := false
		for _, f := range distinct {
			if d.SameFace(c, f) {
				same = true
				break
			}
		}
		if !same {
			distinct = append(distinct, c)
		}
	}
	return distinct
}

// FilterResult is the outcome of the candidate filter
type FilterResult struct {
	Candidate types.FaceCandidate
	Accepted  bool
	Distinct  int
}

// Filter reduces raw candidates to at most one accepted face. It fails with
// ErrNoFaceDetected on an empty input and ErrMultipleFacesDetected when more than one
// distinct face remains. A single face whose score does not exceed AcceptScore is
// returned with Accepted=false.
func (d *FaceDetector) Filter(buf *types.PixelBuffer, raw []types.FaceCandidate) (FilterResult, error) {
	if len(raw) == 0 {
		return FilterResult{}, types.ErrNoFaceDetected
	}

	distinct := d.DistinctFaces(d.Deduplicate(raw))
	if len(distinct) > 1 {
		return FilterResult{Distinct: len(distinct)}, fmt.Errorf("%w: %d distinct faces", types.ErrMultipleFacesDetected, len(distinct))
	}

	face := distinct[0]
	face.Score = d.EvaluateCandidate(buf, face.Rect)

	return FilterResult{
		Candidate: face,
		Accepted:  face.Score > d.config.AcceptScore,
		Distinct:  1,
	}, nil
}

// FindFace runs the heuristic pipeline: simple layout detector, full scan and filter, then
// the permissive fallback when the single remaining face scores too low.
func (d *FaceDetector) FindFace(buf *types.PixelBuffer) (types.Detection, error) {
	if face, ok := d.DetectSimple(buf); ok {
		return types.Detection{Candidate: face, Method: types.MethodSimple}, nil
	}

	raw := d.ScanCandidates(buf)
	result, err := d.Filter(buf, raw)
	if err != nil {
		return types.Detection{Method: types.MethodNone, RawCandidates: len(raw)}, err
	}

	if result.Accepted {
		return types.Detection{Candidate: result.Candidate, Method: types.MethodScan, RawCandidates: len(raw)}, nil
	}

	return types.Detection{Candidate: d.Fallback(buf), Method: types.MethodFallback, RawCandidates: len(raw)}, nil
}

func sortByAreaDesc(candidates []types.FaceCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rect.Area() > candidates[j].Rect.Area()
	})
}
