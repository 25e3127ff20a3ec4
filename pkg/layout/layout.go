// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package layout implements the deterministic seven-stage layout
// post-processor: confidence filtering, IoU dedup, cell assignment,
// cross-validation relabeling, empty-cluster removal, orphan-cell
// promotion, and bbox adjustment. Stage 5 and stage 7 are ported
// directly from the original stage05_empty_remover and
// stage07_bbox_adjuster modules; stages 1-4 and 6 have no original
// source file and are built from their own internal consistency plus
// the stage description in the distilled spec.
package layout

import (
	"strings"

	"github.com/ingestlabs/extractcore/pkg/types"
)

// CrossValidationConfig tunes stage 4's label relabeling.
type CrossValidationConfig struct {
	// PictureTextAreaRatio is the fraction of a "picture" cluster's
	// area its assigned cells must cover before the cluster is
	// relabeled "text" — a picture region legitimately containing OCR
	// text that dense is more likely a misclassified text block.
	PictureTextAreaRatio float64
}

// LayoutConfig holds every stage's tunables.
type LayoutConfig struct {
	// MinConfidence is stage 1's keep threshold.
	MinConfidence float64
	// IoUThreshold is stage 2's suppression threshold.
	IoUThreshold float64
	// KeepIfEmpty names the (lowercased) labels stage 5 keeps even
	// with no assigned cells.
	KeepIfEmpty map[string]bool
	// CrossValidation tunes stage 4.
	CrossValidation CrossValidationConfig
}

// DefaultKeepIfEmpty is the stage 5 default: formula, table, and
// picture clusters carry meaning even with no OCR'd text inside them.
func DefaultKeepIfEmpty() map[string]bool {
	return map[string]bool{"formula": true, "table": true, "picture": true}
}

// DefaultLayoutConfig returns reasonable defaults for all seven stages.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		MinConfidence:   0.3,
		IoUThreshold:    0.8,
		KeepIfEmpty:     DefaultKeepIfEmpty(),
		CrossValidation: CrossValidationConfig{PictureTextAreaRatio: 0.3},
	}
}

// Process runs all seven stages in order over clusters (without
// assigned cells) and the page's raw text cells, returning the final
// cluster set with cells assigned and bboxes adjusted.
func Process(clusters []types.Cluster, cells []types.TextCell, cfg LayoutConfig) []types.Cluster {
	out := Stage1FilterByConfidence(clusters, cfg.MinConfidence)
	out = Stage2Dedup(out, cfg.IoUThreshold)
	out, orphans := Stage3AssignCells(out, cells)
	out = Stage4CrossValidate(out, cfg.CrossValidation)
	alloc := NewIDAllocator(out)
	out = Stage5RemoveEmpty(out, cfg.KeepIfEmpty)
	out = Stage6PromoteOrphans(out, orphans, alloc)
	out = Stage7AdjustBBox(out)
	return out
}

// Stage1FilterByConfidence drops clusters below minConfidence,
// preserving order.
func Stage1FilterByConfidence(clusters []types.Cluster, minConfidence float64) []types.Cluster {
	out := make([]types.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Confidence >= minConfidence {
			out = append(out, c)
		}
	}
	return out
}

// Stage2Dedup suppresses the lower-confidence cluster of any pair
// whose IoU reaches iouThreshold, except when one cluster is nested
// inside the other (a small, mostly-contained region such as a table
// cell detected alongside its parent table is kept, not suppressed).
// Ties are broken by suppressing the later cluster.
func Stage2Dedup(clusters []types.Cluster, iouThreshold float64) []types.Cluster {
	keep := make([]bool, len(clusters))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(clusters); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(clusters); j++ {
			if !keep[j] {
				continue
			}
			a, b := clusters[i], clusters[j]
			if a.BBox.IoU(b.BBox) < iouThreshold {
				continue
			}
			if isNested(a.BBox, b.BBox) {
				continue
			}
			if a.Confidence >= b.Confidence {
				keep[j] = false
			} else {
				keep[i] = false
				break
			}
		}
	}

	out := make([]types.Cluster, 0, len(clusters))
	for i, k := range keep {
		if k {
			out = append(out, clusters[i])
		}
	}
	return out
}

// isNested reports whether the smaller of a, b sits almost entirely
// inside the larger while covering less than half its area — the
// signature of a genuinely nested region rather than a duplicate
// detection of the same region.
func isNested(a, b types.BBox) bool {
	smaller, larger := a.Area(), b.Area()
	if smaller > larger {
		smaller, larger = larger, smaller
	}
	if smaller == 0 || larger == 0 {
		return false
	}
	containment := a.IntersectionArea(b) / smaller
	return containment >= 0.9 && smaller/larger < 0.5
}

// Stage3AssignCells assigns each text cell to the cluster with which
// it has the highest IoU. Ties are broken first by the smaller
// cluster area (the more specific region wins), then by the lower
// cluster ID. Cells with zero IoU against every cluster are returned
// as orphans for stage 6 to promote.
func Stage3AssignCells(clusters []types.Cluster, cells []types.TextCell) (assigned []types.Cluster, orphans []types.TextCell) {
	out := make([]types.Cluster, len(clusters))
	for i, c := range clusters {
		c.Cells = nil
		out[i] = c
	}

	for _, cell := range cells {
		best := -1
		var bestIoU float64
		for i, c := range out {
			iou := c.BBox.IoU(cell.BBox)
			if iou <= 0 {
				continue
			}
			switch {
			case best == -1, iou > bestIoU:
				best, bestIoU = i, iou
			case iou == bestIoU:
				if betterTiebreak(out[i], out[best]) {
					best = i
				}
			}
		}
		if best == -1 {
			orphans = append(orphans, cell)
			continue
		}
		out[best].Cells = append(out[best].Cells, cell)
	}

	return out, orphans
}

func betterTiebreak(candidate, current types.Cluster) bool {
	ca, cb := candidate.BBox.Area(), current.BBox.Area()
	if ca != cb {
		return ca < cb
	}
	return candidate.ID < current.ID
}

// Stage4CrossValidate relabels clusters whose assigned cells are
// inconsistent with their detected label. Currently covers one rule:
// a "picture" cluster whose cells cover a large share of its area is
// more likely a misclassified text block than an image with dense
// embedded OCR.
func Stage4CrossValidate(clusters []types.Cluster, cfg CrossValidationConfig) []types.Cluster {
	out := make([]types.Cluster, len(clusters))
	copy(out, clusters)

	for i, c := range out {
		if !strings.EqualFold(c.Label, "picture") || len(c.Cells) == 0 {
			continue
		}
		clusterArea := c.BBox.Area()
		if clusterArea <= 0 {
			continue
		}
		var textArea float64
		for _, cell := range c.Cells {
			textArea += cell.BBox.Area()
		}
		if textArea/clusterArea >= cfg.PictureTextAreaRatio {
			out[i].Label = "text"
		}
	}
	return out
}

// shouldKeepIfEmpty reports whether label (case-insensitively) is one
// of the structural labels whose absence of assigned cells is still
// meaningful. Ported from should_keep_if_empty in
// stage05_empty_remover.rs.
func shouldKeepIfEmpty(label string, keepIfEmpty map[string]bool) bool {
	return keepIfEmpty[strings.ToLower(label)]
}

// Stage5RemoveEmpty drops clusters with no assigned cells, unless
// their label is in keepIfEmpty. Order and IDs are preserved. Ported
// from Stage05EmptyRemover.process in stage05_empty_remover.rs.
func Stage5RemoveEmpty(clusters []types.Cluster, keepIfEmpty map[string]bool) []types.Cluster {
	out := make([]types.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if len(c.Cells) > 0 || shouldKeepIfEmpty(c.Label, keepIfEmpty) {
			out = append(out, c)
		}
	}
	return out
}

// NewIDAllocator returns a generator of fresh, monotonically
// increasing cluster IDs starting just past the highest ID already in
// use by clusters.
func NewIDAllocator(clusters []types.Cluster) func() int {
	next := 0
	for _, c := range clusters {
		if c.ID >= next {
			next = c.ID + 1
		}
	}
	return func() int {
		id := next
		next++
		return id
	}
}

// Stage6PromoteOrphans wraps each orphan cell (one stage 3 could not
// assign to any cluster) in its own synthetic "text" cluster, with a
// fresh ID from nextID and full confidence since the cell itself was
// already produced by native extraction or OCR.
func Stage6PromoteOrphans(clusters []types.Cluster, orphans []types.TextCell, nextID func() int) []types.Cluster {
	out := make([]types.Cluster, len(clusters))
	copy(out, clusters)
	for _, cell := range orphans {
		out = append(out, types.Cluster{
			ID:         nextID(),
			Label:      "text",
			BBox:       cell.BBox,
			Confidence: 1.0,
			Cells:      []types.TextCell{cell},
		})
	}
	return out
}

// Stage7AdjustBBox recomputes each non-empty cluster's bbox from its
// assigned cells: a "table" cluster's bbox becomes the union of its
// detected bbox and its cells' bbox (tables often detect tighter than
// their visible borders); every other label's bbox is replaced
// outright by its cells' bbox. Clusters with no cells are left
// unchanged. Ported from adjust_cluster_bbox in
// stage07_bbox_adjuster.rs.
func Stage7AdjustBBox(clusters []types.Cluster) []types.Cluster {
	out := make([]types.Cluster, len(clusters))
	copy(out, clusters)
	for i, c := range out {
		if len(c.Cells) == 0 {
			continue
		}
		cellsBBox := calculateCellsBBox(c.Cells)
		if strings.EqualFold(c.Label, "table") {
			out[i].BBox = c.BBox.Union(cellsBBox)
		} else {
			out[i].BBox = cellsBBox
		}
	}
	return out
}

func calculateCellsBBox(cells []types.TextCell) types.BBox {
	bbox := cells[0].BBox
	for _, cell := range cells[1:] {
		bbox = bbox.Union(cell.BBox)
	}
	return bbox
}
