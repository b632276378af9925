package model

import (
	"testing"
	"time"
)

func TestLastActivityPicksNewestTimestamp(t *testing.T) {
	attempt := &ExamAttempt{
		Actions: RawJSON(`[
			{"type":"answer","timestamp":1700000000000},
			{"type":"tab_switch","timestamp":1700000300000},
			{"type":"answer","timestamp":1700000100000}
		]`),
	}
	want := time.UnixMilli(1700000300000)
	if got := attempt.LastActivity(); !got.Equal(want) {
		t.Fatalf("LastActivity() = %v, want %v", got, want)
	}
}

func TestLastActivityEmptyOrUnusable(t *testing.T) {
	tests := []struct {
		name    string
		actions RawJSON
	}{
		{name: "nil log", actions: nil},
		{name: "empty array", actions: RawJSON(`[]`)},
		{name: "not an array", actions: RawJSON(`{"oops":true}`)},
		{name: "entries without timestamps", actions: RawJSON(`[{"type":"focus"}]`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			attempt := &ExamAttempt{Actions: tc.actions}
			if got := attempt.LastActivity(); !got.IsZero() {
				t.Fatalf("expected zero time, got %v", got)
			}
		})
	}
}

func TestAnswerMapRoundTrip(t *testing.T) {
	m := AnswerMap{1: 0, 12: 3}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var out AnswerMap
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(out) != 2 || out[1] != 0 || out[12] != 3 {
		t.Fatalf("round trip mismatch: %v", out)
	}
}
