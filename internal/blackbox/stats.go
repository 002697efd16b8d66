package blackbox

// FieldStats tracks the value range of one field across a whole sub-log.
type FieldStats struct {
	Min int64
	Max int64
}

// FrameTypeStats accumulates per-frame-type decode statistics.
type FrameTypeStats struct {
	Bytes        int64
	SizeCount    map[int]int
	ValidCount   int
	CorruptCount int
	DesyncCount  int
	Field        []FieldStats
}

// Stats summarizes one decode pass over a sub-log.
type Stats struct {
	TotalBytes                    int64
	TotalCorruptedFrames          int
	IntentionallyAbsentIterations int
	Frame                         map[FrameType]*FrameTypeStats
}

func newStats() Stats {
	return Stats{Frame: make(map[FrameType]*FrameTypeStats)}
}

func (s *Stats) frameStats(t FrameType) *FrameTypeStats {
	fts, ok := s.Frame[t]
	if !ok {
		fts = &FrameTypeStats{SizeCount: make(map[int]int)}
		s.Frame[t] = fts
	}
	return fts
}

// countFrame records an accepted frame of the given byte length.
func (s *Stats) countFrame(t FrameType, size int) {
	fts := s.frameStats(t)
	fts.Bytes += int64(size)
	fts.SizeCount[size]++
	fts.ValidCount++
	s.TotalBytes += int64(size)
}

// countCorrupt records a frame discarded by validation.
func (s *Stats) countCorrupt(t FrameType) {
	s.frameStats(t).CorruptCount++
	s.TotalCorruptedFrames++
}

// updateFieldStats folds a decoded frame into the per-field ranges.
func (s *Stats) updateFieldStats(t FrameType, frame []int32) {
	fts := s.frameStats(t)
	if len(fts.Field) < len(frame) {
		grown := make([]FieldStats, len(frame))
		copy(grown, fts.Field)
		for i := len(fts.Field); i < len(grown); i++ {
			grown[i] = FieldStats{Min: int64(frame[i]), Max: int64(frame[i])}
		}
		fts.Field = grown
	}
	for i, v := range frame {
		if int64(v) < fts.Field[i].Min {
			fts.Field[i].Min = int64(v)
		}
		if int64(v) > fts.Field[i].Max {
			fts.Field[i].Max = int64(v)
		}
	}
}

// MergedFieldStats returns the main-frame field ranges with the slow-frame
// ranges appended, matching the merged field layout the facade exposes.
func (s *Stats) MergedFieldStats() []FieldStats {
	i := s.Frame[FrameTypeIntra]
	if i == nil {
		return nil
	}
	out := make([]FieldStats, len(i.Field))
	copy(out, i.Field)
	if slow := s.Frame[FrameTypeSlow]; slow != nil {
		out = append(out, slow.Field...)
	}
	return out
}
