// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestlabs/extractcore/pkg/types"
)

func bbox(l, t, r, b float64) types.BBox { return types.BBox{L: l, T: t, R: r, B: b} }

func cellAt(text string, b types.BBox) types.TextCell {
	return types.TextCell{Text: text, BBox: b}
}

// --- Stage 1 ---

func TestStage1FilterByConfidence(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Confidence: 0.9},
		{ID: 2, Confidence: 0.1},
		{ID: 3, Confidence: 0.3},
	}
	out := Stage1FilterByConfidence(clusters, 0.3)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 3, out[1].ID)
}

// --- Stage 2 ---

func TestStage2DedupSuppressesLowerConfidenceOverlap(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Confidence: 0.9, BBox: bbox(0, 0, 10, 10)},
		{ID: 2, Confidence: 0.5, BBox: bbox(1, 1, 11, 11)},
	}
	out := Stage2Dedup(clusters, 0.5)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestStage2DedupKeepsNestedRegions(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Confidence: 0.9, BBox: bbox(0, 0, 100, 100)},
		{ID: 2, Confidence: 0.8, BBox: bbox(10, 10, 20, 20)},
	}
	out := Stage2Dedup(clusters, 0.01)
	assert.Len(t, out, 2)
}

func TestStage2DedupKeepsNonOverlapping(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Confidence: 0.9, BBox: bbox(0, 0, 10, 10)},
		{ID: 2, Confidence: 0.8, BBox: bbox(100, 100, 110, 110)},
	}
	out := Stage2Dedup(clusters, 0.5)
	assert.Len(t, out, 2)
}

// --- Stage 3 ---

func TestStage3AssignCellsHighestIoU(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, BBox: bbox(0, 0, 10, 10)},
		{ID: 2, BBox: bbox(0, 0, 5, 5)},
	}
	cells := []types.TextCell{cellAt("a", bbox(0, 0, 5, 5))}
	out, orphans := Stage3AssignCells(clusters, cells)
	assert.Empty(t, orphans)
	assert.Empty(t, out[0].Cells)
	require.Len(t, out[1].Cells, 1)
}

func TestStage3AssignCellsTiebreakByLowerIDOnEqualBoxes(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, BBox: bbox(0, 0, 10, 10)},
		{ID: 2, BBox: bbox(0, 0, 8, 8)},
	}
	// Identical boxes give equal IoU and equal area, so the lower
	// cluster ID decides.
	clusters[1].BBox = bbox(0, 0, 10, 10)
	cells := []types.TextCell{cellAt("a", bbox(0, 0, 10, 10))}
	out, orphans := Stage3AssignCells(clusters, cells)
	assert.Empty(t, orphans)
	require.Len(t, out[0].Cells, 1)
	assert.Empty(t, out[1].Cells)
}

func TestStage3AssignCellsOrphansNonOverlapping(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, BBox: bbox(0, 0, 10, 10)}}
	cells := []types.TextCell{cellAt("a", bbox(100, 100, 110, 110))}
	out, orphans := Stage3AssignCells(clusters, cells)
	assert.Empty(t, out[0].Cells)
	require.Len(t, orphans, 1)
}

// --- Stage 4 ---

func TestStage4CrossValidateRelabelsDenseTextPicture(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "picture", BBox: bbox(0, 0, 10, 10), Cells: []types.TextCell{
			cellAt("hello world", bbox(0, 0, 10, 5)),
		}},
	}
	out := Stage4CrossValidate(clusters, CrossValidationConfig{PictureTextAreaRatio: 0.3})
	assert.Equal(t, "text", out[0].Label)
}

func TestStage4CrossValidateLeavesSparsePictureAlone(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "picture", BBox: bbox(0, 0, 100, 100), Cells: []types.TextCell{
			cellAt("caption", bbox(0, 0, 5, 5)),
		}},
	}
	out := Stage4CrossValidate(clusters, CrossValidationConfig{PictureTextAreaRatio: 0.3})
	assert.Equal(t, "picture", out[0].Label)
}

// --- Stage 5 (ported from stage05_empty_remover.rs) ---

func TestRemovesEmptyClusters(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "text"},
		{ID: 2, Label: "text", Cells: []types.TextCell{cellAt("x", bbox(0, 0, 1, 1))}},
	}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ID)
}

func TestKeepsEmptyFormula(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "formula"}}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	require.Len(t, out, 1)
}

func TestKeepsFormulaWithCells(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "formula", Cells: []types.TextCell{cellAt("x=1", bbox(0, 0, 1, 1))}}}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	require.Len(t, out, 1)
}

func TestStage5PreservesClusterOrder(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "table"},
		{ID: 2, Label: "text", Cells: []types.TextCell{cellAt("x", bbox(0, 0, 1, 1))}},
		{ID: 3, Label: "picture"},
	}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].ID, out[1].ID, out[2].ID})
}

func TestStage5ConfigKeepSpecialFalse(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "formula"}, {ID: 2, Label: "table"}}
	out := Stage5RemoveEmpty(clusters, map[string]bool{})
	assert.Empty(t, out)
}

func TestKeepsEmptyPicture(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "picture"}}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	require.Len(t, out, 1)
}

func TestAllEmptyNoFormulas(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "text"}, {ID: 2, Label: "caption"}}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	assert.Empty(t, out)
}

func TestAllNonEmpty(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "text", Cells: []types.TextCell{cellAt("a", bbox(0, 0, 1, 1))}},
		{ID: 2, Label: "caption", Cells: []types.TextCell{cellAt("b", bbox(0, 0, 1, 1))}},
	}
	out := Stage5RemoveEmpty(clusters, DefaultKeepIfEmpty())
	assert.Len(t, out, 2)
}

func TestDefaultKeepIfEmptySet(t *testing.T) {
	d := DefaultKeepIfEmpty()
	assert.True(t, d["formula"])
	assert.True(t, d["table"])
	assert.True(t, d["picture"])
	assert.False(t, d["text"])
}

// --- Stage 6 ---

func TestStage6PromoteOrphansAssignsFreshMonotonicIDs(t *testing.T) {
	clusters := []types.Cluster{{ID: 5}}
	orphans := []types.TextCell{cellAt("a", bbox(0, 0, 1, 1)), cellAt("b", bbox(1, 1, 2, 2))}
	alloc := NewIDAllocator(clusters)
	out := Stage6PromoteOrphans(clusters, orphans, alloc)
	require.Len(t, out, 3)
	assert.Equal(t, 6, out[1].ID)
	assert.Equal(t, 7, out[2].ID)
	assert.Equal(t, "text", out[1].Label)
}

func TestNewIDAllocatorStartsPastMaxExistingID(t *testing.T) {
	clusters := []types.Cluster{{ID: 2}, {ID: 9}, {ID: 4}}
	alloc := NewIDAllocator(clusters)
	assert.Equal(t, 10, alloc())
	assert.Equal(t, 11, alloc())
}

// --- Stage 7 (ported from stage07_bbox_adjuster.rs) ---

func TestEmptyClusterUnchanged(t *testing.T) {
	clusters := []types.Cluster{{ID: 1, Label: "text", BBox: bbox(10, 10, 50, 50)}}
	out := Stage7AdjustBBox(clusters)
	assert.Equal(t, bbox(10, 10, 50, 50), out[0].BBox)
}

func TestNonTableBBoxReplaced(t *testing.T) {
	clusters := []types.Cluster{{
		ID: 1, Label: "text", BBox: bbox(0, 0, 1000, 1000),
		Cells: []types.TextCell{
			cellAt("a", bbox(15, 15, 30, 25)),
			cellAt("b", bbox(15, 26, 30, 36)),
		},
	}}
	out := Stage7AdjustBBox(clusters)
	assert.Equal(t, bbox(15, 15, 30, 36), out[0].BBox)
}

func TestTableBBoxUnion(t *testing.T) {
	clusters := []types.Cluster{{
		ID: 1, Label: "table", BBox: bbox(10, 10, 50, 50),
		Cells: []types.TextCell{
			cellAt("a", bbox(15, 15, 30, 25)),
			cellAt("b", bbox(35, 35, 60, 45)),
		},
	}}
	out := Stage7AdjustBBox(clusters)
	assert.Equal(t, bbox(10, 10, 60, 50), out[0].BBox)
}

func TestCalculateCellsBBox(t *testing.T) {
	cells := []types.TextCell{
		cellAt("a", bbox(10, 20, 30, 40)),
		cellAt("b", bbox(15, 15, 25, 35)),
		cellAt("c", bbox(20, 25, 40, 45)),
	}
	got := calculateCellsBBox(cells)
	assert.Equal(t, bbox(10, 15, 40, 45), got)
}

func TestStage7MultipleClusters(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "text", BBox: bbox(0, 0, 1000, 1000), Cells: []types.TextCell{
			cellAt("a", bbox(15, 15, 30, 25)),
		}},
		{ID: 2, Label: "table", BBox: bbox(50, 50, 90, 90), Cells: []types.TextCell{
			cellAt("b", bbox(60, 60, 100, 100)),
		}},
		{ID: 3, Label: "caption", BBox: bbox(110, 110, 150, 150)},
	}
	out := Stage7AdjustBBox(clusters)
	assert.Equal(t, bbox(15, 15, 30, 25), out[0].BBox)
	assert.Equal(t, bbox(50, 50, 100, 100), out[1].BBox)
	assert.Equal(t, bbox(110, 110, 150, 150), out[2].BBox)
}

func TestProcessOrphanPromotionAfterStage5RemovalSkipsVacatedIDs(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 0, Label: "text", Confidence: 0.9, BBox: bbox(0, 0, 10, 10)},
		{ID: 1, Label: "text", Confidence: 0.9, BBox: bbox(20, 20, 30, 30)},
		{ID: 2, Label: "text", Confidence: 0.9, BBox: bbox(40, 40, 50, 50)},
	}
	cells := []types.TextCell{
		cellAt("body", bbox(0, 0, 10, 10)),
		cellAt("stray", bbox(500, 500, 510, 510)),
	}
	out := Process(clusters, cells, DefaultLayoutConfig())

	// Cluster 1 has no assigned cells and is not in KeepIfEmpty, so
	// stage 5 drops it; cluster 2 is likewise dropped. The allocator
	// must be seeded before stage 5 removes them, so the orphan
	// promoted by stage 6 gets id 3, the next id past the highest one
	// that existed going into stage 5 — not id 1 or 2, which stage 5
	// just vacated.
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].ID)
	assert.Equal(t, 3, out[1].ID)
}

// --- Full pipeline ---

func TestProcessRunsAllStagesInOrder(t *testing.T) {
	clusters := []types.Cluster{
		{ID: 1, Label: "text", Confidence: 0.9, BBox: bbox(0, 0, 100, 100)},
		{ID: 2, Label: "table", Confidence: 0.05, BBox: bbox(200, 200, 300, 300)},
	}
	cells := []types.TextCell{
		cellAt("body", bbox(10, 10, 90, 90)),
		cellAt("stray", bbox(500, 500, 510, 510)),
	}
	out := Process(clusters, cells, DefaultLayoutConfig())

	// Cluster 2 dropped by stage 1 (low confidence); cluster 1 survives
	// with its cell assigned and bbox tightened; the stray cell is
	// promoted into its own synthetic cluster by stage 6.
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, bbox(10, 10, 90, 90), out[0].BBox)
	assert.Equal(t, "text", out[1].Label)
	assert.Equal(t, bbox(500, 500, 510, 510), out[1].BBox)
}
