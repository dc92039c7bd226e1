package types

import (
	"encoding/json"
	"testing"
)

func TestBatchDescriptor_EpochSeconds(t *testing.T) {
	d := BatchDescriptor{Interval: 1000}
	if got := d.EpochSeconds(); got != 600000 {
		t.Errorf("EpochSeconds() = %d, want 600000", got)
	}
}

func TestParseCategory(t *testing.T) {
	for _, valid := range []string{"green", "yellow", "red"} {
		if _, err := ParseCategory(valid); err != nil {
			t.Errorf("ParseCategory(%q) returned error: %v", valid, err)
		}
	}
	if _, err := ParseCategory("purple"); err == nil {
		t.Error("ParseCategory(purple) expected error, got nil")
	}
}

func TestBatchIndex_WireFormat(t *testing.T) {
	doc := `{
		"full_14_batch": {"interval": 2690000, "batch_file_paths": ["/f14/0"]},
		"full_7_batch": {"interval": 2691000, "batch_file_paths": ["/f7/0"]},
		"daily_batches": [
			{"interval": 2691144, "batch_file_paths": ["/d/0", "/d/1"]}
		]
	}`

	var idx BatchIndex
	if err := json.Unmarshal([]byte(doc), &idx); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}

	if idx.Full14.Interval != 2690000 {
		t.Errorf("Full14.Interval = %d, want 2690000", idx.Full14.Interval)
	}
	if len(idx.Daily) != 1 || len(idx.Daily[0].FilePaths) != 2 {
		t.Errorf("unexpected daily batches: %+v", idx.Daily)
	}
}

func TestSessionAggregate_AllPaths(t *testing.T) {
	agg := SessionAggregate{
		FullParts: []BatchPart{
			{BatchNumber: 1, Path: "/full/1"},
			{BatchNumber: 2, Path: "/full/2"},
		},
		DailyParts: []BatchPart{
			{BatchNumber: 1, Path: "/daily/1"},
		},
	}

	paths := agg.AllPaths()
	want := []string{"/full/1", "/full/2", "/daily/1"}
	if len(paths) != len(want) {
		t.Fatalf("AllPaths() returned %d paths, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("AllPaths()[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestMissingParts_Empty(t *testing.T) {
	if !(MissingParts{}).Empty() {
		t.Error("zero MissingParts should be empty")
	}
	m := MissingParts{Daily: []BatchDescriptor{{Interval: 1}}}
	if m.Empty() {
		t.Error("MissingParts with daily descriptor should not be empty")
	}
}

func TestServiceHealth_Usable(t *testing.T) {
	cases := []struct {
		status HealthStatus
		want   bool
	}{
		{HealthAvailable, true},
		{HealthMissing, false},
		{HealthNeedsUpdate, false},
		{HealthDisabled, false},
		{HealthVersionTooOld, false},
		{HealthUnknown, false},
	}
	for _, tc := range cases {
		h := ServiceHealth{Status: tc.status}
		if h.Usable() != tc.want {
			t.Errorf("ServiceHealth{%s}.Usable() = %v, want %v", tc.status, h.Usable(), tc.want)
		}
	}
}
