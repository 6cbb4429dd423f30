package report

import (
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/gateway"
)

func TestNewSummary(t *testing.T) {
	tests := []struct {
		sent, failed, want int
	}{
		{80, 20, 80},
		{0, 0, 0},
		{0, 5, 0},
		{5, 0, 100},
		{2, 1, 67},
		{1, 2, 33},
		{1, 7, 13},
	}
	for _, tt := range tests {
		got := NewSummary(tt.sent, tt.failed)
		if got.SuccessRate != tt.want {
			t.Errorf("NewSummary(%d, %d).SuccessRate = %d, want %d", tt.sent, tt.failed, got.SuccessRate, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	logs := []LogEntry{
		{Status: "sent"},
		{Status: "delivered"},
		{Status: "FAILED"},
		{Status: "sent", Error: "bounced"},
		{Status: "queued"},
	}
	got := summarize(logs)
	if got.Sent != 2 || got.Failed != 2 || got.SuccessRate != 50 {
		t.Errorf("summarize = %+v, want 2 sent, 2 failed, 50%%", got)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	for _, in := range []string{"2026-03-14T09:30:00Z", "2026-03-14 09:30:00", "14/03/2026 09:30:00", "1773480600000"} {
		if got := parseDate(in); !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", in, got, want)
		}
	}
	if got := parseDate("ayer"); !got.IsZero() {
		t.Errorf("parseDate(ayer) = %v, want zero", got)
	}
}

func TestAtoi(t *testing.T) {
	tests := map[gateway.FlexString]int{"42": 42, " 7 ": 7, "3.0": 3, "": 0, "n/a": 0}
	for in, want := range tests {
		if got := atoi(in); got != want {
			t.Errorf("atoi(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDownloadRef(t *testing.T) {
	if got := DownloadRef("wa_1"); got != "report_wa_1.csv" {
		t.Errorf("DownloadRef = %q", got)
	}
}
