// Package blackbox decodes Betaflight/Cleanflight/INAV blackbox flight
// recorder logs into a uniform, randomly accessible time series of
// per-iteration frames.
package blackbox

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/qdrk/bf-blackbox-parser/internal/common"
)

var (
	// ErrNoLogs means the buffer contains no sub-log start marker.
	ErrNoLogs = errors.New("no blackbox logs found in the buffer")
	// ErrNoLogOpen is returned by accessors that need an opened sub-log.
	ErrNoLogOpen = errors.New("no log is open")
)

// Chunk is the unit of random access: the run of main frames between two
// chunk boundaries, with the events that occurred inside it.
type Chunk struct {
	Index  int
	Frames [][]int32
	Events []Event
	// GapStartsHere marks frame indices after which the decoder had to
	// resynchronize: the next frame does not connect smoothly.
	GapStartsHere map[int]bool
}

// FlightLog is the public facade over one physical log file. It indexes the
// file's sub-logs and, once a sub-log is opened, serves merged frames (main
// fields, slow fields, computed fields) by time range.
//
// A FlightLog owns its decode state and chunk cache and must not be shared
// across goroutines; the underlying buffer is never written and may back any
// number of FlightLog instances.
type FlightLog struct {
	data  []byte
	index *Index

	logIndex int
	opened   bool
	parser   *Parser
	dir      *Directory

	fieldNames []string
	fieldIndex map[string]int
	layout     computedLayout
	numCells   int

	metrics *common.Metrics

	chunkCache map[int]*Chunk
}

// New scans the buffer for sub-logs. The buffer is retained, not copied.
func New(data []byte) (*FlightLog, error) {
	index := NewIndex(data)
	if index.LogCount() == 0 {
		return nil, ErrNoLogs
	}
	return &FlightLog{data: data, index: index, logIndex: -1}, nil
}

// LogCount returns the number of sub-logs in the file.
func (l *FlightLog) LogCount() int { return l.index.LogCount() }

// SetMetrics attaches a metrics recorder fed during indexing and chunk
// decoding, for progress reporting on large files.
func (l *FlightLog) SetMetrics(m *common.Metrics) {
	l.metrics = m
	l.index.SetMetrics(m)
}

// Directory returns the index of sub-log i, building it on first use.
func (l *FlightLog) Directory(log int) (*Directory, error) {
	return l.index.Directory(log)
}

// LogError returns the sub-log's indexing error, or "" when it is openable.
func (l *FlightLog) LogError(log int) string {
	dir, err := l.index.Directory(log)
	if err != nil {
		return err.Error()
	}
	return dir.Error
}

// Open selects a sub-log for frame access. It fails when the sub-log's
// header was unusable or its index recorded an error.
func (l *FlightLog) Open(log int) error {
	dir, err := l.index.Directory(log)
	if err != nil {
		return err
	}
	if dir.Error != "" {
		return fmt.Errorf("log %d cannot be opened: %s", log, dir.Error)
	}

	parser := NewParser(l.data)
	if err := parser.ParseHeader(dir.LogStart, dir.LogEnd); err != nil {
		return err
	}

	l.logIndex = log
	l.opened = true
	l.parser = parser
	l.dir = dir
	l.chunkCache = make(map[int]*Chunk)

	defs := parser.FrameDefs()
	cfg := parser.SysConfig()
	l.layout = resolveComputedLayout(defs, cfg)
	l.numCells = cfg.EstimateNumCells()

	l.fieldNames = append([]string(nil), defs.I.Name...)
	l.fieldNames = append(l.fieldNames, defs.S.Name...)
	l.fieldNames = append(l.fieldNames, l.layout.computedFieldNames()...)
	l.fieldIndex = make(map[string]int, len(l.fieldNames))
	for i, name := range l.fieldNames {
		if _, dup := l.fieldIndex[name]; !dup {
			l.fieldIndex[name] = i
		}
	}
	return nil
}

// OpenLogIndex returns the currently open sub-log, or -1.
func (l *FlightLog) OpenLogIndex() int {
	if !l.opened {
		return -1
	}
	return l.logIndex
}

// SysConfig returns the open sub-log's parsed configuration.
func (l *FlightLog) SysConfig() (*SysConfig, error) {
	if !l.opened {
		return nil, ErrNoLogOpen
	}
	return l.parser.SysConfig(), nil
}

// FrameDefs returns the open sub-log's frame definitions.
func (l *FlightLog) FrameDefs() (*FrameDefs, error) {
	if !l.opened {
		return nil, ErrNoLogOpen
	}
	return l.parser.FrameDefs(), nil
}

// NumMotors returns the number of motor fields in the open sub-log.
func (l *FlightLog) NumMotors() (int, error) {
	if !l.opened {
		return 0, ErrNoLogOpen
	}
	return l.layout.numMotors, nil
}

// NumCells returns the battery cell count estimated at open time.
func (l *FlightLog) NumCells() (int, error) {
	if !l.opened {
		return 0, ErrNoLogOpen
	}
	return l.numCells, nil
}

// MinTime returns the time of the sub-log's first main frame.
func (l *FlightLog) MinTime(log int) (int64, error) {
	dir, err := l.index.Directory(log)
	if err != nil {
		return 0, err
	}
	if !dir.HasMinTime {
		return 0, fmt.Errorf("log %d has no frames", log)
	}
	return dir.MinTime, nil
}

// MaxTime returns the time of the sub-log's last main frame.
func (l *FlightLog) MaxTime(log int) (int64, error) {
	dir, err := l.index.Directory(log)
	if err != nil {
		return 0, err
	}
	if !dir.HasMinTime {
		return 0, fmt.Errorf("log %d has no frames", log)
	}
	return dir.MaxTime, nil
}

// Stats returns the sub-log's decode statistics together with the merged
// per-field ranges (main fields followed by slow fields).
func (l *FlightLog) Stats(log int) (*Stats, []FieldStats, error) {
	dir, err := l.index.Directory(log)
	if err != nil {
		return nil, nil, err
	}
	return &dir.Stats, dir.Stats.MergedFieldStats(), nil
}

// ActivitySummary describes a sub-log at chunk granularity for overview
// displays: one time, mean motor value and event flag per chunk.
type ActivitySummary struct {
	Times       []int64
	AvgThrottle []int
	HasEvent    []bool
}

// ActivitySummary returns the sub-log's per-chunk activity index.
func (l *FlightLog) ActivitySummary(log int) (ActivitySummary, error) {
	dir, err := l.index.Directory(log)
	if err != nil {
		return ActivitySummary{}, err
	}
	return ActivitySummary{
		Times:       dir.Times,
		AvgThrottle: dir.AvgThrottle,
		HasEvent:    dir.HasEvent,
	}, nil
}

// MainFieldNames returns the merged field names of the open sub-log: main
// fields, slow fields, then the active computed fields.
func (l *FlightLog) MainFieldNames() ([]string, error) {
	if !l.opened {
		return nil, ErrNoLogOpen
	}
	return l.fieldNames, nil
}

// MainFieldIndexByName returns the merged index of the named field, or -1.
func (l *FlightLog) MainFieldIndexByName(name string) (int, error) {
	if !l.opened {
		return -1, ErrNoLogOpen
	}
	if i, ok := l.fieldIndex[name]; ok {
		return i, nil
	}
	return -1, nil
}

// FrameAtTime locates the main frame in force at time t. It returns the
// containing chunk and the indices of the previous, current and next frames
// within it; absent neighbours are -1.
func (l *FlightLog) FrameAtTime(t int64) (*Chunk, int, int, int, error) {
	if !l.opened {
		return nil, -1, -1, -1, ErrNoLogOpen
	}
	c := searchTimeOrPrevious(l.dir.Times, t)
	if c < 0 {
		return nil, -1, -1, -1, fmt.Errorf("time %d precedes the log", t)
	}
	chunk := l.chunk(c)
	// The current frame is the one before the first frame past t.
	next := sort.Search(len(chunk.Frames), func(i int) bool {
		return int64(chunk.Frames[i][FieldIndexTime]) > t
	})
	cur := next - 1
	prev := next - 2
	if next >= len(chunk.Frames) {
		next = -1
	}
	if cur < 0 {
		cur = -1
	}
	if prev < 0 {
		prev = -1
	}
	return chunk, prev, cur, next, nil
}

// searchTimeOrPrevious returns the index of the last entry at or before t,
// or -1 when every entry is later.
func searchTimeOrPrevious(times []int64, t int64) int {
	return sort.Search(len(times), func(i int) bool { return times[i] > t }) - 1
}

// searchTimeOrNext returns the index of the first entry at or after t,
// clamped to the last entry when t is past the end.
func searchTimeOrNext(times []int64, t int64) int {
	i := sort.Search(len(times), func(i int) bool { return times[i] >= t })
	if i == len(times) {
		return len(times) - 1
	}
	return i
}

// ChunksInTimeRange decodes and returns every chunk overlapping [start,
// end], with slow fields merged in and computed fields injected.
func (l *FlightLog) ChunksInTimeRange(start, end int64) ([]*Chunk, error) {
	if !l.opened {
		return nil, ErrNoLogOpen
	}
	return l.chunksByIndex(
		searchTimeOrPrevious(l.dir.Times, start),
		searchTimeOrPrevious(l.dir.Times, end),
	)
}

// SmoothedChunksInTimeRange behaves like ChunksInTimeRange but rounds the
// upper bound outward so windowed post-processing has context to work with.
func (l *FlightLog) SmoothedChunksInTimeRange(start, end int64) ([]*Chunk, error) {
	if !l.opened {
		return nil, ErrNoLogOpen
	}
	return l.chunksByIndex(
		searchTimeOrPrevious(l.dir.Times, start),
		searchTimeOrNext(l.dir.Times, end),
	)
}

func (l *FlightLog) chunksByIndex(first, last int) ([]*Chunk, error) {
	if last < 0 {
		return nil, nil
	}
	if first < 0 {
		first = 0
	}
	chunks := make([]*Chunk, 0, last-first+1)
	for c := first; c <= last && c < l.dir.ChunkCount(); c++ {
		chunks = append(chunks, l.chunk(c))
	}
	return chunks, nil
}

// chunk returns chunk c, decoding and caching it on first use.
func (l *FlightLog) chunk(c int) *Chunk {
	if cached, ok := l.chunkCache[c]; ok {
		return cached
	}
	chunk := l.decodeChunk(c)
	l.chunkCache[c] = chunk
	return chunk
}

// decodeChunk replays the chunk's byte range through the parser, merging
// each main frame with the slow state in force and collecting events.
func (l *FlightLog) decodeChunk(c int) *Chunk {
	start, end := l.dir.chunkRange(c)
	l.parser.SetDataRange(start, end)
	l.parser.PrimeSlow(l.dir.InitialSlow[c])

	defs := l.parser.FrameDefs()
	mainCount := defs.I.Count
	slowCount := defs.S.Count

	chunk := &Chunk{Index: c, GapStartsHere: make(map[int]bool)}
	// Events still waiting for a main-frame timestamp, with the number of
	// frames already decoded when each arrived.
	type pendingEvent struct {
		eventIdx int
		framePos int
	}
	var pendingEvents []pendingEvent

	markGap := func() {
		if n := len(chunk.Frames); n > 0 {
			chunk.GapStartsHere[n-1] = true
		}
	}

	for {
		ev, err := l.parser.Next()
		if err != nil {
			// io.EOF ends the chunk; a codec failure truncates it, and the
			// indexing pass has already recorded the cause.
			if !errors.Is(err, io.EOF) {
				markGap()
			}
			break
		}
		if l.metrics != nil {
			l.metrics.AddFrame(int64(ev.Size))
			if !ev.Valid {
				l.metrics.IncResync()
			}
		}
		if !ev.Valid {
			markGap()
			continue
		}
		switch ev.Type {
		case FrameTypeIntra, FrameTypeInter:
			frame := make([]int32, mainCount+slowCount+l.layout.count)
			copy(frame, ev.Values[:mainCount])
			copy(frame[mainCount:], l.parser.LastSlow())
			chunk.Frames = append(chunk.Frames, frame)
		case FrameTypeSlow:
			// Subsequent main frames pick the new state up from the parser.
		case FrameTypeEvent:
			event := *ev.Event
			if event.Kind == EventLoggingResume {
				markGap()
			}
			if !event.TimeSet {
				pendingEvents = append(pendingEvents, pendingEvent{
					eventIdx: len(chunk.Events),
					framePos: len(chunk.Frames),
				})
			}
			chunk.Events = append(chunk.Events, event)
		}
	}

	l.layout.injectComputedFields(l.parser.SysConfig(), mainCount+slowCount, chunk.Frames)

	// Events have no time of their own; stamp each with the main frame that
	// follows it. An event past this chunk's final frame is followed by the
	// frame that opens the next chunk; only when no main frame follows
	// anywhere in the sub-log does the sub-log's last frame time apply.
	for _, pe := range pendingEvents {
		event := &chunk.Events[pe.eventIdx]
		switch {
		case pe.framePos < len(chunk.Frames):
			event.Time = int64(chunk.Frames[pe.framePos][FieldIndexTime])
		case c+1 < l.dir.ChunkCount():
			event.Time = l.dir.Times[c+1]
		default:
			event.Time = l.dir.MaxTime
		}
		event.TimeSet = true
	}

	return chunk
}
