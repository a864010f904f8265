package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// ApplyNMS performs greedy Non-Maximum Suppression independently per class.
//
// Candidates are visited by descending score, ties broken by class id and then
// by row index. A candidate is kept unless a kept candidate of the same class
// overlaps it with IoU >= iouThreshold. Boxes of different classes never
// suppress each other, and a zero-area box has IoU 0 with every box.
//
// Running ApplyNMS on its own output returns the same candidates.
//
// Arguments:
//   - candidates: The candidates in any order; the slice is not modified.
//   - iouThreshold: The overlap at which a lower-ranked box is suppressed.
//
// Returns:
//   - []Candidate: The kept candidates in visiting order; never nil.
//
// @example
// kept := ApplyNMS(candidates, 0.5)
func ApplyNMS(candidates []Candidate, iouThreshold float32) []Candidate {
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	kept := make([]Candidate, 0, len(sorted))
	byClass := make(map[int][]images.Rect)

	for _, c := range sorted {
		suppressed := false
		for _, anchor := range byClass[c.ClassID] {
			if images.CalculateIoU(anchor, c.Box) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, c)
		byClass[c.ClassID] = append(byClass[c.ClassID], c.Box)
	}
	return kept
}
