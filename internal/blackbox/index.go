package blackbox

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/qdrk/bf-blackbox-parser/internal/bstream"
	"github.com/qdrk/bf-blackbox-parser/internal/common"
)

// LogStartMarker delimits sub-logs inside a physical log file: every arming
// session begins with this product banner.
const LogStartMarker = "H Product:Blackbox flight data recorder by Nicholas Sherlock\n"

// Chunks begin on every iframesPerChunk-th intraframe.
const iframesPerChunk = 4

// Directory is the random-access index of one sub-log: the byte offset and
// time of every chunk boundary, the slow-frame state in force when the chunk
// begins, and an activity summary for display.
type Directory struct {
	// Parallel arrays, one entry per chunk.
	Times       []int64
	Offsets     []int
	AvgThrottle []int
	InitialSlow [][]int32
	HasEvent    []bool

	MinTime    int64
	MaxTime    int64
	HasMinTime bool

	Stats Stats

	// LogStart/LogEnd bound the sub-log in the file; DataStart is the
	// first byte after the header.
	LogStart  int
	LogEnd    int
	DataStart int

	SawEndMarker bool

	// Error is non-empty when the sub-log cannot be opened.
	Error string
}

// ChunkCount returns the number of chunks in the sub-log.
func (d *Directory) ChunkCount() int { return len(d.Times) }

// chunkRange returns the byte range holding chunk c.
func (d *Directory) chunkRange(c int) (start, end int) {
	start = d.Offsets[c]
	if c+1 < len(d.Offsets) {
		return start, d.Offsets[c+1]
	}
	return start, d.LogEnd
}

// Index locates every sub-log in a physical log buffer and builds per-sub-log
// directories on demand.
type Index struct {
	data        []byte
	logOffsets  []int
	directories []*Directory
	metrics     *common.Metrics
}

// SetMetrics attaches a metrics recorder fed during indexing passes.
func (x *Index) SetMetrics(m *common.Metrics) {
	x.metrics = m
	if x.metrics != nil {
		x.metrics.SetTotalBytes(int64(len(x.data)))
	}
}

// NewIndex scans the buffer for sub-log boundaries.
func NewIndex(data []byte) *Index {
	offsets := bstream.New(data).AllIndicesOf([]byte(LogStartMarker))
	return &Index{
		data:        data,
		logOffsets:  offsets,
		directories: make([]*Directory, len(offsets)-1),
	}
}

// LogCount returns the number of sub-logs found.
func (x *Index) LogCount() int { return len(x.logOffsets) - 1 }

// LogOffsets returns the start offset of each sub-log plus the end sentinel.
func (x *Index) LogOffsets() []int { return x.logOffsets }

// Directory returns the index of sub-log i, building it on first use.
func (x *Index) Directory(i int) (*Directory, error) {
	if i < 0 || i >= x.LogCount() {
		return nil, fmt.Errorf("no such log %d (have %d)", i, x.LogCount())
	}
	if x.directories[i] == nil {
		x.directories[i] = x.buildDirectory(i)
	}
	return x.directories[i], nil
}

// buildDirectory runs a full indexing pass over one sub-log: parse the
// header, then stream every frame, recording each fourth intraframe as a
// chunk boundary together with the slow state and activity at that point.
func (x *Index) buildDirectory(i int) *Directory {
	dir := &Directory{
		LogStart: x.logOffsets[i],
		LogEnd:   x.logOffsets[i+1],
	}

	parser := NewParser(x.data)
	if err := parser.ParseHeader(dir.LogStart, dir.LogEnd); err != nil {
		dir.Error = err.Error()
		return dir
	}
	dir.DataStart = parser.DataStart()

	defs := parser.FrameDefs()
	var motorFields []int
	for m := 0; ; m++ {
		idx := defs.I.FieldIndex(fmt.Sprintf("motor[%d]", m))
		if idx < 0 {
			break
		}
		motorFields = append(motorFields, idx)
	}

	iframeCount := 0
	for {
		ev, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dir.Error = err.Error()
			break
		}
		if x.metrics != nil {
			x.metrics.AddFrame(int64(ev.Size))
			if !ev.Valid {
				x.metrics.IncResync()
			}
		}
		if !ev.Valid {
			continue
		}

		switch ev.Type {
		case FrameTypeIntra, FrameTypeInter:
			time := int64(ev.Values[FieldIndexTime])
			if ev.Type == FrameTypeIntra {
				if iframeCount%iframesPerChunk == 0 {
					dir.Times = append(dir.Times, time)
					dir.Offsets = append(dir.Offsets, ev.Start)
					dir.AvgThrottle = append(dir.AvgThrottle, meanOfFields(ev.Values, motorFields))
					dir.InitialSlow = append(dir.InitialSlow, append([]int32(nil), parser.LastSlow()...))
					dir.HasEvent = append(dir.HasEvent, false)
				}
				iframeCount++
			}
			if !dir.HasMinTime {
				dir.MinTime = time
				dir.HasMinTime = true
			}
			if time > dir.MaxTime {
				dir.MaxTime = time
			}
		case FrameTypeEvent:
			if n := len(dir.Times); n > 0 {
				dir.HasEvent[n-1] = true
			}
			if ev.Event.Kind == EventLogEnd {
				dir.SawEndMarker = true
			}
		case FrameTypeSlow:
			// The parser carries the slow snapshot itself.
		}
	}

	dir.Stats = *parser.Stats()

	if dir.Error == "" && !dir.HasMinTime {
		if dir.SawEndMarker {
			dir.Error = ": Logging paused, no data"
		} else {
			dir.Error = ": Log truncated, no data"
		}
	}
	return dir
}

func meanOfFields(frame []int32, fields []int) int {
	if len(fields) == 0 {
		return 0
	}
	total := 0.0
	for _, idx := range fields {
		total += float64(frame[idx])
	}
	return int(math.Round(total / float64(len(fields))))
}
