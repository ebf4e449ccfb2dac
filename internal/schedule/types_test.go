package schedule

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{name: "once ok", s: Schedule{Name: "n", Macro: "M", Type: TypeOnce, Datetime: "2025-06-01T12:00:00"}},
		{name: "once rfc3339 ok", s: Schedule{Name: "n", Macro: "M", Type: TypeOnce, Datetime: "2025-06-01T12:00:00Z"}},
		{name: "once missing datetime", s: Schedule{Name: "n", Macro: "M", Type: TypeOnce}, wantErr: true},
		{name: "once bad datetime", s: Schedule{Name: "n", Macro: "M", Type: TypeOnce, Datetime: "tomorrow"}, wantErr: true},
		{name: "daily ok", s: Schedule{Name: "n", Macro: "M", Type: TypeDaily, Time: "08:30"}},
		{name: "daily bad time", s: Schedule{Name: "n", Macro: "M", Type: TypeDaily, Time: "25:00"}, wantErr: true},
		{name: "weekly ok", s: Schedule{Name: "n", Macro: "M", Type: TypeWeekly, Time: "08:30", Days: []int{0, 4}}},
		{name: "weekly empty days", s: Schedule{Name: "n", Macro: "M", Type: TypeWeekly, Time: "08:30"}, wantErr: true},
		{name: "weekly day out of range", s: Schedule{Name: "n", Macro: "M", Type: TypeWeekly, Time: "08:30", Days: []int{7}}, wantErr: true},
		{name: "interval ok", s: Schedule{Name: "n", Macro: "M", Type: TypeInterval, IntervalMinutes: 5}},
		{name: "interval zero", s: Schedule{Name: "n", Macro: "M", Type: TypeInterval}, wantErr: true},
		{name: "cron ok", s: Schedule{Name: "n", Macro: "M", Type: TypeCron, CronExpression: "0 9 * * 1"}},
		{name: "cron malformed", s: Schedule{Name: "n", Macro: "M", Type: TypeCron, CronExpression: "0 9 * *"}, wantErr: true},
		{name: "unknown type", s: Schedule{Name: "n", Macro: "M", Type: "hourly"}, wantErr: true},
		{name: "missing name", s: Schedule{Macro: "M", Type: TypeDaily, Time: "08:30"}, wantErr: true},
		{name: "missing macro", s: Schedule{Name: "n", Type: TypeDaily, Time: "08:30"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	t.Parallel()
	s := Schedule{Macro: "PREHEAT", Params: map[string]string{"BED": "60", "EXTRUDER": "200"}}
	if got, want := s.Command(), "PREHEAT BED=60 EXTRUDER=200"; got != want {
		t.Fatalf("Command = %q, want %q", got, want)
	}

	bare := Schedule{Macro: "HOME_ALL"}
	if got := bare.Command(); got != "HOME_ALL" {
		t.Fatalf("Command = %q, want HOME_ALL", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	s := &Schedule{ID: 1, Name: "n", Macro: "M", Type: TypeWeekly, Time: "08:00", Days: []int{1, 2}, Params: map[string]string{"A": "1"}}
	cp := s.Clone()
	cp.Params["A"] = "2"
	cp.Days[0] = 5
	if s.Params["A"] != "1" || s.Days[0] != 1 {
		t.Fatal("Clone shares state with the original")
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	t.Parallel()
	got, err := ParseTimestamp("2025-06-01T12:00:00")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("ParseTimestamp = %v, want %v", got, want)
	}

	rt, err := ParseTimestamp(FormatTimestamp(want))
	if err != nil {
		t.Fatalf("ParseTimestamp(round trip): %v", err)
	}
	if !rt.Equal(want) {
		t.Fatalf("round trip = %v, want %v", rt, want)
	}

	if _, err := ParseTimestamp("soon"); err == nil {
		t.Fatal("expected error for junk timestamp")
	}
}

func TestFakeClockAdvance(t *testing.T) {
	t.Parallel()
	start := mondayMorning()
	c := NewFakeClock(start)

	ch := c.After(10 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired too early")
	default:
	}

	c.Advance(6 * time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire after its deadline")
	}

	if got := c.Now(); !got.Equal(start.Add(11 * time.Minute)) {
		t.Fatalf("Now = %v, want %v", got, start.Add(11*time.Minute))
	}

	// Non-positive delays fire immediately.
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-delay timer did not fire immediately")
	}
}
