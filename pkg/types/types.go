// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package types holds the canonical data structures shared across the
// extraction pipeline: bounding boxes, layout clusters and cells,
// markdown chunks, job status, and the plugin request/response
// envelope. These are plain structs with json tags; no package in
// this module should redeclare an equivalent shape.
package types

import "time"

// BBox is an axis-aligned rectangle. Its coordinate origin is
// documented per use site: image pixel top-left for layout clusters,
// normalized 0..1 for OCR output.
type BBox struct {
	L float64 `json:"l"`
	T float64 `json:"t"`
	R float64 `json:"r"`
	B float64 `json:"b"`
}

// Valid reports whether the box respects l<=r and t<=b.
func (b BBox) Valid() bool {
	return b.L <= b.R && b.T <= b.B
}

// Union returns the smallest box containing both b and other.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		L: min(b.L, other.L),
		T: min(b.T, other.T),
		R: max(b.R, other.R),
		B: max(b.B, other.B),
	}
}

// Area returns the box's area, or 0 for a degenerate/invalid box.
func (b BBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.R - b.L) * (b.B - b.T)
}

// IntersectionArea returns the overlapping area between b and other,
// or 0 if they do not overlap.
func (b BBox) IntersectionArea(other BBox) float64 {
	l := max(b.L, other.L)
	t := max(b.T, other.T)
	r := min(b.R, other.R)
	bo := min(b.B, other.B)
	if r <= l || bo <= t {
		return 0
	}
	return (r - l) * (bo - t)
}

// IoU returns the intersection-over-union of b and other.
func (b BBox) IoU(other BBox) float64 {
	inter := b.IntersectionArea(other)
	if inter == 0 {
		return 0
	}
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// TextCell is an atomic text fragment with its own bbox, produced by
// native text extraction or OCR.
type TextCell struct {
	Text       string   `json:"text"`
	BBox       BBox     `json:"bbox"`
	Confidence *float64 `json:"confidence,omitempty"`
	IsBold     bool     `json:"is_bold"`
	IsItalic   bool     `json:"is_italic"`
}

// Cluster is a detected region on a page carrying a label, confidence,
// bbox, and assigned text cells.
type Cluster struct {
	ID         int        `json:"id"`
	Label      string     `json:"label"`
	BBox       BBox       `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	Cells      []TextCell `json:"cells"`
}

// ChunkType enumerates the structural kind of a markdown chunk.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkCodeBlock ChunkType = "code_block"
	ChunkTable     ChunkType = "table"
	ChunkList      ChunkType = "list"
	ChunkQuote     ChunkType = "quote"
)

// HeaderRef is one entry of a chunk's header hierarchy: a markdown
// header level and its title text.
type HeaderRef struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Chunk is a unit of markdown content emitted by the hierarchy-aware
// chunker.
type Chunk struct {
	Content         string      `json:"content"`
	Position        int         `json:"position"`
	TokenCount       int         `json:"token_count"`
	CharCount       int         `json:"char_count"`
	Language        string      `json:"language,omitempty"`
	ChunkType       ChunkType   `json:"chunk_type"`
	HeaderHierarchy []HeaderRef `json:"header_hierarchy"`
}

// Keyframe is one sampled video frame with its perceptual fingerprint.
type Keyframe struct {
	TimestampSeconds float64           `json:"timestamp_seconds"`
	FrameNumber      int               `json:"frame_number"`
	PerceptualHash   uint64            `json:"perceptual_hash"`
	Sharpness        float64           `json:"sharpness"`
	ThumbnailPaths   map[string]string `json:"thumbnail_paths,omitempty"`
}

// ActivityType classifies a temporal segment's motion level.
type ActivityType string

const (
	ActivityStatic          ActivityType = "static"
	ActivityLowMotion       ActivityType = "low_motion"
	ActivityModerateMotion  ActivityType = "moderate_motion"
	ActivityHighMotion      ActivityType = "high_motion"
	ActivityRapidCuts       ActivityType = "rapid_cuts"
)

// Segment is one labeled temporal span of a keyframe sequence.
type Segment struct {
	StartTime    float64      `json:"start_time"`
	EndTime      float64      `json:"end_time"`
	Activity     ActivityType `json:"activity"`
	Confidence   float64      `json:"confidence"`
	MotionScore  *float64     `json:"motion_score,omitempty"`
	SceneChanges *int         `json:"scene_changes,omitempty"`
}

// JobState is the lifecycle status of a job. Terminal states
// (Completed, Failed) are sticky.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether s is a sticky terminal state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStatus is the externally visible state of a submitted job.
type JobStatus struct {
	ID             string   `json:"id"`
	Status         JobState `json:"status"`
	TotalTasks     int      `json:"total_tasks"`
	CompletedTasks int      `json:"completed_tasks"`
	FailedTasks    int      `json:"failed_tasks"`
	Error          string   `json:"error,omitempty"`
}

// PluginDataKind tags which variant a PluginData value holds.
type PluginDataKind string

const (
	PluginDataFilePath PluginDataKind = "file_path"
	PluginDataBytes    PluginDataKind = "bytes"
	PluginDataJSON     PluginDataKind = "json"
	PluginDataList     PluginDataKind = "list"
)

// PluginData is the opaque payload passed between plugins: a tagged
// union of {file path, bytes, JSON value, ordered list of PluginData}.
// Exactly one of the fields matching Kind is populated.
type PluginData struct {
	Kind     PluginDataKind `json:"kind"`
	FilePath string         `json:"file_path,omitempty"`
	Bytes    []byte         `json:"bytes,omitempty"`
	JSON     any            `json:"json,omitempty"`
	List     []PluginData   `json:"list,omitempty"`
}

// NewFilePathData constructs a PluginData holding a file path.
func NewFilePathData(path string) PluginData {
	return PluginData{Kind: PluginDataFilePath, FilePath: path}
}

// NewBytesData constructs a PluginData holding raw bytes.
func NewBytesData(b []byte) PluginData {
	return PluginData{Kind: PluginDataBytes, Bytes: b}
}

// NewJSONData constructs a PluginData holding an arbitrary JSON value.
func NewJSONData(v any) PluginData {
	return PluginData{Kind: PluginDataJSON, JSON: v}
}

// NewListData constructs a PluginData holding an ordered list of
// PluginData values.
func NewListData(items []PluginData) PluginData {
	return PluginData{Kind: PluginDataList, List: items}
}

// Operation is a tagged-union description of one stage's parameters.
// The executor never introspects Params; each plugin interprets its
// own variant by Name.
type Operation struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// PluginRequest is what the executor hands to a plugin for one op.
type PluginRequest struct {
	Input     PluginData `json:"input"`
	Operation Operation  `json:"operation"`
}

// PluginResponse is what a plugin returns for one op.
type PluginResponse struct {
	Output   PluginData    `json:"output"`
	Duration time.Duration `json:"duration"`
	Warnings []string      `json:"warnings,omitempty"`
}

// RuntimeHints are advisory characteristics of a plugin; the executor
// does not enforce them.
type RuntimeHints struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty"`
	RequiresGPU      bool  `json:"requires_gpu"`
	Experimental     bool  `json:"experimental"`
}

// PerformanceHints describe a plugin's expected resource profile.
type PerformanceHints struct {
	ExpectedSecondsPerGB float64 `json:"expected_seconds_per_gb,omitempty"`
	MemoryBytesPerFile   int64   `json:"memory_bytes_per_file,omitempty"`
	StreamingCapable     bool    `json:"streaming_capable"`
}

// CachePolicy controls whether and how a plugin's output may be
// cached by callers.
type CachePolicy struct {
	Enabled          bool      `json:"enabled"`
	Version          int       `json:"version"`
	InvalidateBefore time.Time `json:"invalidate_before,omitempty"`
}

// PluginDescriptor is the static metadata registered for one plugin:
// its name, declared capability sets, and advisory hints.
type PluginDescriptor struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	InputCapabilities []string         `json:"input_capabilities"`
	OutputCapabilities []string        `json:"output_capabilities"`
	Runtime           RuntimeHints     `json:"runtime"`
	Performance       PerformanceHints `json:"performance"`
	Cache             CachePolicy      `json:"cache"`
}
