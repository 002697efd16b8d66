// Package report renders decode results into JSON and PDF summaries.
package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
	"github.com/qdrk/bf-blackbox-parser/internal/common"
	"github.com/qdrk/bf-blackbox-parser/internal/health"
)

// LogSummary condenses one sub-log for reporting.
type LogSummary struct {
	Index         int     `json:"index"`
	Error         string  `json:"error,omitempty"`
	Firmware      string  `json:"firmware,omitempty"`
	Craft         string  `json:"craft,omitempty"`
	DurationSec   float64 `json:"durationSec"`
	MinTimeUs     int64   `json:"minTimeUs"`
	MaxTimeUs     int64   `json:"maxTimeUs"`
	IntraFrames   int     `json:"intraFrames"`
	InterFrames   int     `json:"interFrames"`
	SlowFrames    int     `json:"slowFrames"`
	CorruptFrames int     `json:"corruptFrames"`
	Chunks        int     `json:"chunks"`
	CleanEnd      bool    `json:"cleanEnd"`
}

// FileReport is the top-level report for one physical log file.
type FileReport struct {
	File      string        `json:"file"`
	Sha256    string        `json:"sha256"`
	SizeBytes int64         `json:"sizeBytes"`
	Logs      []LogSummary  `json:"logs"`
	Health    health.Report `json:"health"`
}

// Build assembles a FileReport from an indexed log buffer.
func Build(file string, data []byte, log *blackbox.FlightLog, healthReport health.Report) FileReport {
	rep := FileReport{
		File:      file,
		Sha256:    common.Sha256OfBytes(data),
		SizeBytes: int64(len(data)),
		Health:    healthReport,
	}
	for i := 0; i < log.LogCount(); i++ {
		summary := LogSummary{Index: i}
		dir, err := log.Directory(i)
		if err != nil {
			summary.Error = err.Error()
			rep.Logs = append(rep.Logs, summary)
			continue
		}
		summary.Error = dir.Error
		summary.MinTimeUs = dir.MinTime
		summary.MaxTimeUs = dir.MaxTime
		if dir.HasMinTime {
			summary.DurationSec = float64(dir.MaxTime-dir.MinTime) / 1e6
		}
		summary.Chunks = dir.ChunkCount()
		summary.CleanEnd = dir.SawEndMarker
		summary.CorruptFrames = dir.Stats.TotalCorruptedFrames
		if fts := dir.Stats.Frame[blackbox.FrameTypeIntra]; fts != nil {
			summary.IntraFrames = fts.ValidCount
		}
		if fts := dir.Stats.Frame[blackbox.FrameTypeInter]; fts != nil {
			summary.InterFrames = fts.ValidCount
		}
		if fts := dir.Stats.Frame[blackbox.FrameTypeSlow]; fts != nil {
			summary.SlowFrames = fts.ValidCount
		}
		if dir.Error == "" {
			if err := log.Open(i); err == nil {
				if cfg, err := log.SysConfig(); err == nil {
					summary.Firmware = cfg.FirmwareRevision
					summary.Craft = cfg.CraftName
				}
			}
		}
		rep.Logs = append(rep.Logs, summary)
	}
	return rep
}

// SaveJSON writes the report as an indented JSON document.
func SaveJSON(rep FileReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// LoadJSON reads a report back from disk.
func LoadJSON(path string) (FileReport, error) {
	var rep FileReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

func formatDuration(sec float64) string {
	if sec <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%05.2f", int(sec)/60, sec-float64(int(sec)/60*60))
}
