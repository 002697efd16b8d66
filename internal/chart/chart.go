// Package chart renders decoded field series as standalone HTML line charts.
package chart

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
)

// Downsampling keeps the emitted HTML responsive in a browser.
const defaultMaxPoints = 4000

// Options selects what to plot.
type Options struct {
	Title     string
	Fields    []string
	MaxPoints int
}

// RenderChunks plots the requested fields across the chunks, time on the X
// axis in seconds from the start of the range.
func RenderChunks(w io.Writer, fieldNames []string, chunks []*blackbox.Chunk, options Options) error {
	if len(options.Fields) == 0 {
		return fmt.Errorf("no fields selected")
	}
	fieldIdx := make([]int, len(options.Fields))
	for i, name := range options.Fields {
		fieldIdx[i] = -1
		for j, have := range fieldNames {
			if have == name {
				fieldIdx[i] = j
				break
			}
		}
		if fieldIdx[i] < 0 {
			return fmt.Errorf("field %q is not present in this log", name)
		}
	}

	total := 0
	for _, chunk := range chunks {
		total += len(chunk.Frames)
	}
	if total == 0 {
		return fmt.Errorf("no frames in the selected range")
	}
	maxPoints := options.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	stride := 1
	if total > maxPoints {
		stride = (total + maxPoints - 1) / maxPoints
	}

	var t0 int64 = -1
	xAxis := make([]string, 0, total/stride+1)
	series := make([][]opts.LineData, len(fieldIdx))
	for i := range series {
		series[i] = make([]opts.LineData, 0, total/stride+1)
	}

	n := 0
	for _, chunk := range chunks {
		for _, frame := range chunk.Frames {
			if n%stride != 0 {
				n++
				continue
			}
			n++
			tm := int64(frame[blackbox.FieldIndexTime])
			if t0 < 0 {
				t0 = tm
			}
			xAxis = append(xAxis, fmt.Sprintf("%.3f", float64(tm-t0)/1e6))
			for i, idx := range fieldIdx {
				series[i] = append(series[i], opts.LineData{Value: frame[idx]})
			}
		}
	}

	line := charts.NewLine()
	title := options.Title
	if title == "" {
		title = "Blackbox log"
	}
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xAxis)
	for i, name := range options.Fields {
		line.AddSeries(name, series[i])
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	return line.Render(w)
}

// RenderTimeRangeToFile decodes the given range of the open sub-log and
// writes the chart HTML to path.
func RenderTimeRangeToFile(path string, log *blackbox.FlightLog, start, end int64, options Options) error {
	chunks, err := log.ChunksInTimeRange(start, end)
	if err != nil {
		return err
	}
	fieldNames, err := log.MainFieldNames()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return RenderChunks(f, fieldNames, chunks, options)
}
