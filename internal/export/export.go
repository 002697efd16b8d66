// Package export writes decoded chunks out as CSV, JSON or NDJSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
)

// WriteCSV streams every frame in the chunks as one CSV row per frame, with
// the merged field names as the header row.
func WriteCSV(w io.Writer, fieldNames []string, chunks []*blackbox.Chunk) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fieldNames); err != nil {
		return err
	}
	row := make([]string, len(fieldNames))
	for _, chunk := range chunks {
		for _, frame := range chunk.Frames {
			for i := range row {
				if i < len(frame) {
					row[i] = strconv.FormatInt(int64(frame[i]), 10)
				} else {
					row[i] = ""
				}
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON export shape: field names once, then frames and
// events per chunk.
type Document struct {
	FieldNames []string        `json:"fieldNames"`
	Chunks     []DocumentChunk `json:"chunks"`
}

type DocumentChunk struct {
	Index  int             `json:"index"`
	Frames [][]int32       `json:"frames"`
	Events []DocumentEvent `json:"events,omitempty"`
	Gaps   []int           `json:"gaps,omitempty"`
}

type DocumentEvent struct {
	Kind blackbox.EventKind `json:"kind"`
	Time int64              `json:"time"`
	Data map[string]uint32  `json:"data,omitempty"`
}

// WriteJSON marshals the chunks as a single indented JSON document.
func WriteJSON(w io.Writer, fieldNames []string, chunks []*blackbox.Chunk) error {
	doc := Document{FieldNames: fieldNames}
	for _, chunk := range chunks {
		doc.Chunks = append(doc.Chunks, toDocumentChunk(chunk))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteNDJSON streams one JSON object per frame, interleaved with event
// records, matching the shape the daemon serves.
func WriteNDJSON(w io.Writer, fieldNames []string, chunks []*blackbox.Chunk) error {
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		for _, frame := range chunk.Frames {
			record := make(map[string]int64, len(fieldNames))
			for i, name := range fieldNames {
				if i < len(frame) {
					record[name] = int64(frame[i])
				}
			}
			if err := enc.Encode(record); err != nil {
				return err
			}
		}
		for _, event := range chunk.Events {
			if err := enc.Encode(toDocumentEvent(event)); err != nil {
				return err
			}
		}
	}
	return nil
}

func toDocumentChunk(chunk *blackbox.Chunk) DocumentChunk {
	out := DocumentChunk{Index: chunk.Index, Frames: chunk.Frames}
	for _, event := range chunk.Events {
		out.Events = append(out.Events, toDocumentEvent(event))
	}
	for gap := range chunk.GapStartsHere {
		out.Gaps = append(out.Gaps, gap)
	}
	sort.Ints(out.Gaps)
	return out
}

func toDocumentEvent(event blackbox.Event) DocumentEvent {
	out := DocumentEvent{Kind: event.Kind, Time: event.Time, Data: map[string]uint32{}}
	switch event.Kind {
	case blackbox.EventSyncBeep:
		out.Data["beepTime"] = event.Data.BeepTime
	case blackbox.EventFlightMode:
		out.Data["newFlags"] = event.Data.NewFlags
		out.Data["lastFlags"] = event.Data.LastFlags
	case blackbox.EventDisarm:
		out.Data["reason"] = event.Data.Reason
	case blackbox.EventLoggingResume:
		out.Data["logIteration"] = event.Data.LogIteration
		out.Data["currentTime"] = event.Data.CurrentTime
	default:
		out.Data = nil
	}
	return out
}

// ExportLog decodes the open sub-log's full time range and writes it in the
// requested format ("csv", "json" or "ndjson").
func ExportLog(w io.Writer, log *blackbox.FlightLog, format string) error {
	idx := log.OpenLogIndex()
	if idx < 0 {
		return blackbox.ErrNoLogOpen
	}
	minTime, err := log.MinTime(idx)
	if err != nil {
		return err
	}
	maxTime, err := log.MaxTime(idx)
	if err != nil {
		return err
	}
	chunks, err := log.ChunksInTimeRange(minTime, maxTime)
	if err != nil {
		return err
	}
	fieldNames, err := log.MainFieldNames()
	if err != nil {
		return err
	}
	switch format {
	case "csv":
		return WriteCSV(w, fieldNames, chunks)
	case "json":
		return WriteJSON(w, fieldNames, chunks)
	case "ndjson":
		return WriteNDJSON(w, fieldNames, chunks)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
