// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package types

import "testing"

func TestBBoxValid(t *testing.T) {
	if !(BBox{L: 0, T: 0, R: 10, B: 10}).Valid() {
		t.Error("expected valid box")
	}
	if (BBox{L: 10, T: 0, R: 0, B: 10}).Valid() {
		t.Error("expected invalid box (l > r)")
	}
}

func TestBBoxUnion(t *testing.T) {
	a := BBox{L: 10, T: 10, R: 50, B: 50}
	b := BBox{L: 35, T: 35, R: 60, B: 45}
	got := a.Union(b)
	want := BBox{L: 10, T: 10, R: 60, B: 50}
	if got != want {
		t.Errorf("Union() = %+v, want %+v", got, want)
	}
}

func TestBBoxIoU(t *testing.T) {
	a := BBox{L: 0, T: 0, R: 10, B: 10}
	b := BBox{L: 5, T: 5, R: 15, B: 15}
	got := a.IoU(b)
	// intersection = 5x5=25, union = 100+100-25=175
	want := 25.0 / 175.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("IoU() = %v, want %v", got, want)
	}

	disjoint := BBox{L: 100, T: 100, R: 110, B: 110}
	if got := a.IoU(disjoint); got != 0 {
		t.Errorf("disjoint IoU() = %v, want 0", got)
	}
}

func TestJobStateTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobQueued, false},
		{JobRunning, false},
		{JobCompleted, true},
		{JobFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestPluginDataConstructors(t *testing.T) {
	if d := NewFilePathData("/tmp/x.mp4"); d.Kind != PluginDataFilePath || d.FilePath != "/tmp/x.mp4" {
		t.Errorf("NewFilePathData produced %+v", d)
	}
	if d := NewBytesData([]byte("abc")); d.Kind != PluginDataBytes || string(d.Bytes) != "abc" {
		t.Errorf("NewBytesData produced %+v", d)
	}
	if d := NewJSONData(map[string]int{"a": 1}); d.Kind != PluginDataJSON {
		t.Errorf("NewJSONData produced %+v", d)
	}
	list := NewListData([]PluginData{NewBytesData([]byte("a")), NewBytesData([]byte("b"))})
	if list.Kind != PluginDataList || len(list.List) != 2 {
		t.Errorf("NewListData produced %+v", list)
	}
}
