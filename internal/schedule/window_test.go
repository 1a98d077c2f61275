package schedule

import "testing"

func TestWindowWrapAroundMidnight(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 6} // 22:00 -> 06:00
	tests := []struct {
		hour, minute int
		want         bool
	}{
		{23, 0, true},
		{0, 0, true},
		{5, 59, true},
		{22, 0, true},
		{6, 0, false},
		{12, 0, false},
		{21, 59, false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.hour*60 + tt.minute); got != tt.want {
			t.Errorf("22:00->06:00 contains %02d:%02d = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestWindowSameDay(t *testing.T) {
	w := Window{StartHour: 8, StartMin: 30, EndHour: 10, EndMin: 0}
	tests := []struct {
		hour, minute int
		want         bool
	}{
		{8, 29, false},
		{8, 30, true},
		{9, 59, true},
		{10, 0, false}, // end is exclusive
	}
	for _, tt := range tests {
		if got := w.Contains(tt.hour*60 + tt.minute); got != tt.want {
			t.Errorf("08:30->10:00 contains %02d:%02d = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestDisabledWindowMatchesNothing(t *testing.T) {
	w := Window{StartHour: 7, StartMin: 15, EndHour: 7, EndMin: 15}
	if !w.Disabled() {
		t.Error("start == end should be disabled")
	}
	for m := 0; m < 24*60; m++ {
		if w.Contains(m) {
			t.Fatalf("disabled window matched minute %d", m)
		}
	}
}

func TestScheduleAnyWindow(t *testing.T) {
	s := Schedule{Windows: [MaxWindows]Window{
		{StartHour: 22, EndHour: 6},
		{StartHour: 13, EndHour: 14},
		{}, // disabled
	}}
	if !s.Blocked(13, 30) {
		t.Error("13:30 should be blocked by second window")
	}
	if !s.Blocked(23, 30) {
		t.Error("23:30 should be blocked by wrapped window")
	}
	if s.Blocked(12, 0) {
		t.Error("12:00 should not be blocked")
	}

	// Idempotent: repeated evaluation with the same inputs agrees.
	if s.Blocked(13, 30) != s.Blocked(13, 30) {
		t.Error("Blocked is not idempotent")
	}
}
