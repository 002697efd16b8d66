package common

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{5 << 20, "5.00 MiB"},
		{3 << 30, "3.00 GiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatProgressLine(t *testing.T) {
	s := MetricsSnapshot{Bytes: 512, TotalBytes: 1024, Duration: time.Second}
	line := formatProgressLine(s)
	if !strings.Contains(line, "50.00%") {
		t.Errorf("progress line missing percentage: %q", line)
	}
	s.TotalBytes = 0
	line = formatProgressLine(s)
	if !strings.HasPrefix(line, "Processed:") {
		t.Errorf("totalless progress line = %q", line)
	}
}

func TestSnapshotCompletion(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(100)
	m.AddFrame(25)
	m.AddBytes(25)
	if got := m.Snapshot().Completion(); got != 0.5 {
		t.Fatalf("Completion = %v, want 0.5", got)
	}
}

func TestStartProgressPrinterStops(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(10)
	var buf bytes.Buffer
	stop := StartProgressPrinter(&buf, m, 5*time.Millisecond)
	m.AddFrame(10)
	time.Sleep(30 * time.Millisecond)
	stop()
	if !strings.Contains(buf.String(), "Progress:") {
		t.Fatalf("no progress line written: %q", buf.String())
	}
	// Calling the stop function must leave the line cleared.
	if !strings.HasSuffix(buf.String(), "\r\n") {
		t.Errorf("progress line not cleared: %q", buf.String())
	}
}
