package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
)

func sampleChunks() ([]string, []*blackbox.Chunk) {
	names := []string{"loopIteration", "time", "gyroADC[0]"}
	chunk := &blackbox.Chunk{
		Index: 0,
		Frames: [][]int32{
			{0, 1000, -5},
			{1, 1300, 7},
		},
		Events: []blackbox.Event{
			{Kind: blackbox.EventSyncBeep, Time: 1000, TimeSet: true,
				Data: blackbox.EventData{BeepTime: 1000}},
		},
		GapStartsHere: map[int]bool{0: true},
	}
	return names, []*blackbox.Chunk{chunk}
}

func TestWriteCSV(t *testing.T) {
	names, chunks := sampleChunks()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, names, chunks); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want 3", len(lines))
	}
	if lines[0] != "loopIteration,time,gyroADC[0]" {
		t.Errorf("csv header = %q", lines[0])
	}
	if lines[1] != "0,1000,-5" || lines[2] != "1,1300,7" {
		t.Errorf("csv rows = %q, %q", lines[1], lines[2])
	}
}

func TestWriteJSON(t *testing.T) {
	names, chunks := sampleChunks()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, names, chunks); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(doc.Chunks) != 1 || len(doc.Chunks[0].Frames) != 2 {
		t.Fatalf("document shape = %+v", doc)
	}
	if len(doc.Chunks[0].Events) != 1 || doc.Chunks[0].Events[0].Data["beepTime"] != 1000 {
		t.Errorf("event payload = %+v", doc.Chunks[0].Events)
	}
	if len(doc.Chunks[0].Gaps) != 1 || doc.Chunks[0].Gaps[0] != 0 {
		t.Errorf("gaps = %v", doc.Chunks[0].Gaps)
	}
}

func TestWriteNDJSON(t *testing.T) {
	names, chunks := sampleChunks()
	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, names, chunks); err != nil {
		t.Fatalf("WriteNDJSON failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("ndjson lines = %d, want 3 (2 frames + 1 event)", len(lines))
	}
	var frame map[string]int64
	if err := json.Unmarshal([]byte(lines[0]), &frame); err != nil {
		t.Fatalf("frame record unmarshals: %v", err)
	}
	if frame["gyroADC[0]"] != -5 {
		t.Errorf("frame record = %v", frame)
	}
}

func TestExportLogRequiresOpenLog(t *testing.T) {
	log, err := blackbox.New([]byte(blackbox.LogStartMarker))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var buf bytes.Buffer
	if err := ExportLog(&buf, log, "csv"); err != blackbox.ErrNoLogOpen {
		t.Fatalf("ExportLog without open log = %v, want ErrNoLogOpen", err)
	}
}
