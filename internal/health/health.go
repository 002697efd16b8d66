// Package health evaluates decode-quality rules over an indexed log and
// produces an acceptance-style report.
package health

import (
	"fmt"
	"time"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Diagnostic is a single rule finding against one sub-log.
type Diagnostic struct {
	Ts       time.Time `json:"ts"`
	File     string    `json:"file"`
	LogIndex int       `json:"logIndex"`
	RuleId   string    `json:"ruleId"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Report aggregates findings across a whole file.
type Report struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	Findings []Diagnostic `json:"findings,omitempty"`
}

// Context carries what the rules inspect for one sub-log.
type Context struct {
	File      string
	LogIndex  int
	Directory *blackbox.Directory
}

// Rule is one check over an indexed sub-log.
type Rule struct {
	RuleId   string
	Name     string
	Severity Severity
	Check    func(ctx *Context) []string
}

// Builtin returns the standard rule set.
func Builtin() []Rule {
	return []Rule{
		{
			RuleId:   "BBX-001",
			Name:     "header parses",
			Severity: ERROR,
			Check: func(ctx *Context) []string {
				if ctx.Directory.Error != "" {
					return []string{fmt.Sprintf("log unusable: %s", ctx.Directory.Error)}
				}
				return nil
			},
		},
		{
			RuleId:   "BBX-002",
			Name:     "corruption ratio",
			Severity: WARN,
			Check: func(ctx *Context) []string {
				stats := ctx.Directory.Stats
				valid := 0
				for _, fts := range stats.Frame {
					valid += fts.ValidCount
				}
				if valid == 0 || stats.TotalCorruptedFrames == 0 {
					return nil
				}
				ratio := float64(stats.TotalCorruptedFrames) / float64(valid+stats.TotalCorruptedFrames)
				if ratio > 0.01 {
					return []string{fmt.Sprintf("%.1f%% of frames corrupt (%d of %d)",
						ratio*100, stats.TotalCorruptedFrames, valid+stats.TotalCorruptedFrames)}
				}
				return nil
			},
		},
		{
			RuleId:   "BBX-003",
			Name:     "interframe desyncs",
			Severity: WARN,
			Check: func(ctx *Context) []string {
				p := ctx.Directory.Stats.Frame[blackbox.FrameTypeInter]
				if p == nil || p.DesyncCount == 0 {
					return nil
				}
				return []string{fmt.Sprintf("%d interframes rejected for implausible jumps", p.DesyncCount)}
			},
		},
		{
			RuleId:   "BBX-004",
			Name:     "clean termination",
			Severity: INFO,
			Check: func(ctx *Context) []string {
				if ctx.Directory.Error != "" || ctx.Directory.SawEndMarker {
					return nil
				}
				return []string{"log has no end marker; the flight battery was probably pulled"}
			},
		},
		{
			RuleId:   "BBX-005",
			Name:     "slow state present",
			Severity: INFO,
			Check: func(ctx *Context) []string {
				if ctx.Directory.Error != "" {
					return nil
				}
				if ctx.Directory.Stats.Frame[blackbox.FrameTypeSlow] == nil {
					return []string{"no slow frames decoded; flight mode context is unavailable"}
				}
				return nil
			},
		},
		{
			RuleId:   "BBX-006",
			Name:     "time monotonicity",
			Severity: ERROR,
			Check: func(ctx *Context) []string {
				dir := ctx.Directory
				var out []string
				for i := 1; i < len(dir.Times); i++ {
					if dir.Times[i] < dir.Times[i-1] {
						out = append(out, fmt.Sprintf("chunk %d time %d precedes chunk %d time %d",
							i, dir.Times[i], i-1, dir.Times[i-1]))
					}
				}
				return out
			},
		},
	}
}

// Evaluate runs the rules over every sub-log of the file.
func Evaluate(file string, log *blackbox.FlightLog, rules []Rule) Report {
	var report Report
	now := time.Now().UTC()
	for i := 0; i < log.LogCount(); i++ {
		dir, err := log.Directory(i)
		if err != nil {
			continue
		}
		ctx := &Context{File: file, LogIndex: i, Directory: dir}
		for _, rule := range rules {
			for _, msg := range rule.Check(ctx) {
				report.Findings = append(report.Findings, Diagnostic{
					Ts:       now,
					File:     file,
					LogIndex: i,
					RuleId:   rule.RuleId,
					Severity: rule.Severity,
					Message:  msg,
				})
			}
		}
	}
	for _, d := range report.Findings {
		report.Summary.Total++
		switch d.Severity {
		case ERROR:
			report.Summary.Errors++
		case WARN:
			report.Summary.Warnings++
		}
	}
	report.Summary.Pass = report.Summary.Errors == 0
	return report
}
