package storage

import (
	"context"
	"path/filepath"
	"testing"

	"macroschedd/internal/schedule"
	logx "macroschedd/pkg/logx"
)

func sampleState() *State {
	st := EmptyState()
	st.NextID = 4
	st.Schedules["1"] = &schedule.Schedule{
		ID: 1, Name: "warmup", Macro: "PREHEAT",
		Params:  map[string]string{"BED": "60"},
		Type:    schedule.TypeDaily,
		Time:    "07:30",
		Enabled: true,
		NextRun: "2025-06-01T07:30:00Z",
	}
	st.Schedules["3"] = &schedule.Schedule{
		ID: 3, Name: "friday filament dry", Macro: "DRY_BOX",
		Type:    schedule.TypeWeekly,
		Time:    "18:00",
		Days:    []int{4},
		Enabled: false,
	}
	return st
}

func assertRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Fresh store: empty state, not an error.
	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load (fresh): %v", err)
	}
	if len(st.Schedules) != 0 || st.NextID != 1 {
		t.Fatalf("fresh state = %+v, want empty with next_id 1", st)
	}

	want := sampleState()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.NextID != want.NextID {
		t.Fatalf("NextID = %d, want %d", got.NextID, want.NextID)
	}
	if len(got.Schedules) != len(want.Schedules) {
		t.Fatalf("got %d schedules, want %d", len(got.Schedules), len(want.Schedules))
	}
	s1 := got.Schedules["1"]
	if s1 == nil || s1.Name != "warmup" || s1.Params["BED"] != "60" || !s1.Enabled {
		t.Fatalf("schedule 1 round trip mismatch: %+v", s1)
	}
	s3 := got.Schedules["3"]
	if s3 == nil || s3.Type != schedule.TypeWeekly || len(s3.Days) != 1 || s3.Days[0] != 4 || s3.Enabled {
		t.Fatalf("schedule 3 round trip mismatch: %+v", s3)
	}

	// Save replaces, never merges.
	smaller := EmptyState()
	smaller.NextID = 5
	smaller.Schedules["4"] = &schedule.Schedule{ID: 4, Name: "only", Macro: "M", Type: schedule.TypeInterval, IntervalMinutes: 10, Enabled: true}
	if err := s.Save(ctx, smaller); err != nil {
		t.Fatalf("Save (replace): %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load (replace): %v", err)
	}
	if len(got.Schedules) != 1 || got.Schedules["4"] == nil || got.NextID != 5 {
		t.Fatalf("replace semantics broken: %+v", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "schedules.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "schedules.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "bolt", Path: filepath.Join(t.TempDir(), "schedules.bolt")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{}, logx.Nop())
	if err != nil || s != nil {
		t.Fatalf("disabled storage: got (%v, %v), want (nil, nil)", s, err)
	}
	s, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || s != nil {
		t.Fatalf("driver none: got (%v, %v), want (nil, nil)", s, err)
	}
	if _, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "schedules.json")
	ctx := context.Background()

	s1, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = s1.Close()

	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	st, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if len(st.Schedules) != 2 || st.NextID != 4 {
		t.Fatalf("state lost across reopen: %+v", st)
	}
}
