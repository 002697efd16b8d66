package blackbox

import (
	"io"

	"github.com/qdrk/bf-blackbox-parser/internal/bstream"
)

const bstreamEOFChar = bstream.EOFChar

// FrameType is the single-byte frame marker.
type FrameType byte

const (
	FrameTypeIntra   FrameType = 'I'
	FrameTypeInter   FrameType = 'P'
	FrameTypeSlow    FrameType = 'S'
	FrameTypeEvent   FrameType = 'E'
	FrameTypeGPS     FrameType = 'G'
	FrameTypeGPSHome FrameType = 'H'
)

const (
	// MaxFrameLength bounds a plausible frame: anything longer is treated
	// as corruption.
	MaxFrameLength = 256

	// Frames that jump further than this from their predecessor are the
	// product of corruption, not flight.
	maxIterationJumpBetweenFrames = 500 * 10
	maxTimeJumpBetweenFrames      = 10 * 1000000
)

// Event kinds carried by E frames.
type EventKind int

const (
	EventSyncBeep            EventKind = 0
	EventAutotuneCycleStart  EventKind = 10
	EventAutotuneCycleResult EventKind = 11
	EventAutotuneTargets     EventKind = 12
	EventInflightAdjustment  EventKind = 13
	EventLoggingResume       EventKind = 14
	EventDisarm              EventKind = 15
	EventFlightMode          EventKind = 30
	EventLogEnd              EventKind = 255
)

const endOfLogMessage = "End of log\x00"

// Event is a decoded E frame. A sync beep takes its Time from its payload;
// other events carry no timestamp of their own, and their Time is filled in
// later from the next main frame.
type Event struct {
	Kind    EventKind
	Time    int64
	TimeSet bool
	Data    EventData
}

// EventData holds the kind-specific payload fields; only those belonging to
// the Kind are meaningful.
type EventData struct {
	BeepTime     uint32
	NewFlags     uint32
	LastFlags    uint32
	Reason       uint32
	LogIteration uint32
	CurrentTime  uint32
}

// FrameEvent is one emission from the parser: a main or slow frame (Values),
// an event (Event), or a corrupt frame (Valid=false).
type FrameEvent struct {
	Type  FrameType
	Valid bool
	// Values views the decoder's history slot for main and slow frames; it
	// is only good until the next call to Next.
	Values []int32
	Event  *Event
	Start  int
	Size   int
}

// FrameDefs bundles the per-frame-type field schemas parsed from the header.
type FrameDefs struct {
	I FrameDef
	P FrameDef
	S FrameDef
	E FrameDef
	G FrameDef
	H FrameDef
}

func (d *FrameDefs) byMarker(m byte) *FrameDef {
	switch FrameType(m) {
	case FrameTypeIntra:
		return &d.I
	case FrameTypeInter:
		return &d.P
	case FrameTypeSlow:
		return &d.S
	case FrameTypeEvent:
		return &d.E
	case FrameTypeGPS:
		return &d.G
	case FrameTypeGPSHome:
		return &d.H
	}
	return nil
}

type frameHandler struct {
	parse    func(p *Parser) error
	complete func(p *Parser, start, size int) *FrameEvent
}

// Parser decodes one sub-log: header first, then frames one emission at a
// time via Next. A Parser is single-use per sub-log and not safe for
// concurrent use.
type Parser struct {
	stream    *bstream.Stream
	sysConfig SysConfig
	frameDefs FrameDefs
	stats     Stats

	frameTypes map[byte]frameHandler

	// Three fixed history buffers addressed by small cursors. cur is the
	// slot being decoded into; prev/prev2 are the one and two most recent
	// committed main frames.
	historyRing [3][]int32
	cur         int
	prev        int
	prev2       int
	havePrev    bool
	havePrev2   bool

	lastSlow   []int32
	gpsScratch []int32

	lastEvent *Event

	mainStreamIsValid      bool
	lastMainFrameIteration int64
	lastMainFrameTime      int64
	lastSkippedFrames      int

	pending          *frameHandler
	pendingType      FrameType
	pendingPremature bool
	frameStart       int
	done             bool
	err              error
}

// NewParser wraps the raw log buffer. Call ParseHeader before Next.
func NewParser(data []byte) *Parser {
	p := &Parser{
		stream:                 bstream.New(data),
		sysConfig:              defaultSysConfig(),
		lastMainFrameIteration: -1,
		lastMainFrameTime:      -1,
	}
	p.frameTypes = map[byte]frameHandler{
		'I': {parse: (*Parser).parseIntraframe, complete: (*Parser).completeIntraframe},
		'P': {parse: (*Parser).parseInterframe, complete: (*Parser).completeInterframe},
		'S': {parse: (*Parser).parseSlowFrame, complete: (*Parser).completeSlowFrame},
		'E': {parse: (*Parser).parseEventFrame, complete: (*Parser).completeEventFrame},
		'G': {parse: (*Parser).parseGPSFrame, complete: nil},
		'H': {parse: (*Parser).parseGPSHomeFrame, complete: nil},
	}
	return p
}

// SysConfig returns the parsed system configuration.
func (p *Parser) SysConfig() *SysConfig { return &p.sysConfig }

// FrameDefs returns the parsed frame definitions.
func (p *Parser) FrameDefs() *FrameDefs { return &p.frameDefs }

// Stats returns the decode statistics accumulated so far.
func (p *Parser) Stats() *Stats { return &p.stats }

// Stream exposes the underlying stream for offset queries.
func (p *Parser) Stream() *bstream.Stream { return p.stream }

// LastSlow returns the most recently decoded slow frame values.
func (p *Parser) LastSlow() []int32 { return p.lastSlow }

// PrimeSlow seeds the slow state, used when decoding a chunk that does not
// start at the beginning of the sub-log.
func (p *Parser) PrimeSlow(values []int32) {
	copy(p.lastSlow, values)
}

// ParseHeader parses the textual header within [start, end) and prepares the
// frame decoding state.
func (p *Parser) ParseHeader(start, end int) error {
	p.stream.SetBounds(start, end)
	p.sysConfig = defaultSysConfig()
	p.frameDefs = FrameDefs{}
	p.stats = newStats()
	if err := p.parseHeader(); err != nil {
		return err
	}
	for i := range p.historyRing {
		p.historyRing[i] = make([]int32, p.frameDefs.I.Count)
	}
	p.lastSlow = make([]int32, p.frameDefs.S.Count)
	if p.frameDefs.G.Complete() {
		p.gpsScratch = make([]int32, p.frameDefs.G.Count)
	}
	p.stream.ClearEOF()
	p.resetFrameState()
	return nil
}

// DataStart returns the cursor position after header parsing, i.e. the byte
// offset of the first frame.
func (p *Parser) DataStart() int { return p.stream.Pos() }

// SetDataRange points the decoder at a frame byte range, resetting all
// per-stream decode state. The header must have been parsed already.
func (p *Parser) SetDataRange(start, end int) {
	p.stream.SetBounds(start, end)
	p.resetFrameState()
}

func (p *Parser) resetFrameState() {
	p.cur, p.prev, p.prev2 = 0, 0, 0
	p.havePrev, p.havePrev2 = false, false
	p.mainStreamIsValid = false
	p.lastMainFrameIteration = -1
	p.lastMainFrameTime = -1
	p.lastSkippedFrames = 0
	p.lastEvent = nil
	p.pending = nil
	p.pendingPremature = false
	p.done = false
	p.err = nil
}

// Next advances the decoder until one frame is resolved and returns it.
// A frame is only resolved once the byte after it has been seen: a frame is
// acceptable iff it is short enough and the following byte starts a known
// frame type or is a clean end of stream. io.EOF signals the end of the
// sub-log.
func (p *Parser) Next() (FrameEvent, error) {
	if p.err != nil {
		return FrameEvent{}, p.err
	}
	for {
		if p.done {
			return FrameEvent{}, io.EOF
		}

		c := p.stream.ReadChar()
		atEOF := c == bstreamEOFChar && p.stream.EOF()

		var emission *FrameEvent

		if p.pending != nil {
			frameEnd := p.stream.Pos()
			if !atEOF {
				frameEnd--
			}
			size := frameEnd - p.frameStart

			_, knownNext := p.frameTypes[byte(c)]
			acceptable := size <= MaxFrameLength && !p.pendingPremature && (atEOF || knownNext)

			handler := *p.pending
			p.pending = nil

			if acceptable {
				p.stats.countFrame(p.pendingType, size)
				if handler.complete != nil {
					emission = handler.complete(p, p.frameStart, size)
				}
			} else {
				p.mainStreamIsValid = false
				p.stats.countCorrupt(p.pendingType)
				emission = &FrameEvent{
					Type:  p.pendingType,
					Valid: false,
					Start: p.frameStart,
					Size:  size,
				}
				// Resume the marker search one byte into the corrupt frame.
				p.stream.SetPos(p.frameStart + 1)
				p.stream.ClearEOF()
				return *emission, nil
			}
		}

		if atEOF {
			p.done = true
			if emission != nil {
				return *emission, nil
			}
			return FrameEvent{}, io.EOF
		}

		handler, known := p.frameTypes[byte(c)]
		// GPS frames without a schema cannot be sized, so their marker is
		// no better than garbage.
		if known && c == 'G' && !p.frameDefs.G.Complete() {
			known = false
		}
		if known && c == 'H' && !p.frameDefs.H.Complete() {
			known = false
		}
		p.frameStart = p.stream.Pos() - 1
		if known {
			p.pendingType = FrameType(c)
			if err := handler.parse(p); err != nil {
				p.err = err
				if emission != nil {
					return *emission, nil
				}
				return FrameEvent{}, err
			}
			p.pendingPremature = p.stream.EOF()
			p.pending = &handler
		} else {
			// Garbage byte between frames; it cannot terminate a valid
			// frame, so the main stream needs an intraframe to recover.
			p.mainStreamIsValid = false
		}

		if emission != nil {
			return *emission, nil
		}
	}
}

func (p *Parser) parseIntraframe() error {
	var previous []int32
	if p.havePrev {
		previous = p.historyRing[p.prev]
	}
	return p.decodeFrameFields(&p.frameDefs.I, p.historyRing[p.cur], previous, nil, 0)
}

func (p *Parser) completeIntraframe(frameStart, size int) *FrameEvent {
	current := p.historyRing[p.cur]
	iteration := int64(uint32(current[FieldIndexIteration]))
	time := int64(current[FieldIndexTime])

	acceptFrame := true
	if p.lastMainFrameIteration != -1 {
		acceptFrame = iteration >= p.lastMainFrameIteration &&
			iteration <= p.lastMainFrameIteration+maxIterationJumpBetweenFrames &&
			time >= p.lastMainFrameTime &&
			time <= p.lastMainFrameTime+maxTimeJumpBetweenFrames
	}

	if acceptFrame {
		p.stats.IntentionallyAbsentIterations += p.countIntentionallySkippedFramesTo(iteration)
		p.lastMainFrameIteration = iteration
		p.lastMainFrameTime = time
		p.mainStreamIsValid = true
		p.stats.updateFieldStats(FrameTypeIntra, current)
	} else {
		p.mainStreamIsValid = false
	}

	ev := &FrameEvent{
		Type:   FrameTypeIntra,
		Valid:  p.mainStreamIsValid,
		Values: current,
		Start:  frameStart,
		Size:   size,
	}

	if acceptFrame {
		// Both look-back slots collapse onto the intraframe; predictions
		// never reach back across an I boundary.
		p.prev = p.cur
		p.prev2 = p.cur
		p.havePrev, p.havePrev2 = true, true
		p.cur = (p.cur + 1) % 3
	}
	return ev
}

func (p *Parser) parseInterframe() error {
	p.lastSkippedFrames = p.countIntentionallySkippedFrames()
	var previous, previous2 []int32
	if p.havePrev {
		previous = p.historyRing[p.prev]
	}
	if p.havePrev2 {
		previous2 = p.historyRing[p.prev2]
	}
	return p.decodeFrameFields(&p.frameDefs.P, p.historyRing[p.cur], previous, previous2, p.lastSkippedFrames)
}

func (p *Parser) completeInterframe(frameStart, size int) *FrameEvent {
	current := p.historyRing[p.cur]
	iteration := int64(uint32(current[FieldIndexIteration]))
	time := int64(current[FieldIndexTime])

	if p.mainStreamIsValid &&
		(time > p.lastMainFrameTime+maxTimeJumpBetweenFrames ||
			iteration > p.lastMainFrameIteration+maxIterationJumpBetweenFrames) {
		p.mainStreamIsValid = false
		p.stats.frameStats(FrameTypeInter).DesyncCount++
	}

	if p.mainStreamIsValid {
		p.lastMainFrameIteration = iteration
		p.lastMainFrameTime = time
		p.stats.IntentionallyAbsentIterations += p.lastSkippedFrames
		p.stats.updateFieldStats(FrameTypeInter, current)
	}

	ev := &FrameEvent{
		Type:   FrameTypeInter,
		Valid:  p.mainStreamIsValid,
		Values: current,
		Start:  frameStart,
		Size:   size,
	}

	// An interframe can never resynchronize the stream, so an invalid
	// stream stays invalid until the next intraframe.
	if p.mainStreamIsValid {
		p.prev2 = p.prev
		p.prev = p.cur
		p.havePrev2 = p.havePrev
		p.havePrev = true
		p.cur = (p.cur + 1) % 3
	}
	return ev
}

func (p *Parser) parseSlowFrame() error {
	if p.frameDefs.S.Count == 0 {
		return nil
	}
	return p.decodeFrameFields(&p.frameDefs.S, p.lastSlow, nil, nil, 0)
}

func (p *Parser) completeSlowFrame(frameStart, size int) *FrameEvent {
	p.stats.updateFieldStats(FrameTypeSlow, p.lastSlow)
	return &FrameEvent{
		Type:   FrameTypeSlow,
		Valid:  true,
		Values: p.lastSlow,
		Start:  frameStart,
		Size:   size,
	}
}

func (p *Parser) parseEventFrame() error {
	kind := EventKind(p.stream.ReadByte())
	event := &Event{Kind: kind}
	switch kind {
	case EventSyncBeep:
		event.Data.BeepTime = p.stream.ReadUnsignedVB()
		event.Time = int64(event.Data.BeepTime)
		event.TimeSet = true
	case EventFlightMode:
		event.Data.NewFlags = p.stream.ReadUnsignedVB()
		event.Data.LastFlags = p.stream.ReadUnsignedVB()
	case EventDisarm:
		event.Data.Reason = p.stream.ReadUnsignedVB()
	case EventLoggingResume:
		event.Data.LogIteration = p.stream.ReadUnsignedVB()
		event.Data.CurrentTime = p.stream.ReadUnsignedVB()
	case EventLogEnd:
		if p.stream.ReadString(len(endOfLogMessage)) == endOfLogMessage {
			// This log is done; clamp the stream so reading stops here.
			p.stream.SetEnd(p.stream.Pos())
		} else {
			// A stray "E\xff" that is not the real end marker.
			event = nil
		}
	default:
		// Unknown event kinds have unknown payloads; drop the frame and
		// let validation resynchronize if the stream drifts.
		event = nil
	}
	p.lastEvent = event
	return nil
}

func (p *Parser) completeEventFrame(frameStart, size int) *FrameEvent {
	event := p.lastEvent
	p.lastEvent = nil
	if event == nil {
		return nil
	}
	if event.Kind == EventLoggingResume {
		// A deliberate forward jump: accept the next main frame at the
		// resumed iteration and time.
		p.lastMainFrameIteration = int64(event.Data.LogIteration)
		p.lastMainFrameTime = int64(event.Data.CurrentTime)
	}
	return &FrameEvent{
		Type:  FrameTypeEvent,
		Valid: true,
		Event: event,
		Start: frameStart,
		Size:  size,
	}
}

// parseGPSFrame consumes a GPS frame so that surrounding frames keep their
// byte alignment. The decoded values are not published.
func (p *Parser) parseGPSFrame() error {
	return p.decodeFrameFields(&p.frameDefs.G, p.gpsScratch, nil, nil, 0)
}

func (p *Parser) parseGPSHomeFrame() error {
	scratch := make([]int32, p.frameDefs.H.Count)
	return p.decodeFrameFields(&p.frameDefs.H, scratch, nil, nil, 0)
}

// shouldHaveFrame reports whether the sampling configuration logs the given
// loop iteration.
func (p *Parser) shouldHaveFrame(frameIndex int64) bool {
	c := &p.sysConfig
	return (frameIndex%int64(c.FrameIntervalI)+int64(c.FrameIntervalPNum)-1)%int64(c.FrameIntervalPDenom) < int64(c.FrameIntervalPNum)
}

// countIntentionallySkippedFrames counts iterations after the last main
// frame that the sampling rate dropped on purpose, up to the next iteration
// that should be present.
func (p *Parser) countIntentionallySkippedFrames() int {
	if p.lastMainFrameIteration == -1 {
		return 0
	}
	count := 0
	for frameIndex := p.lastMainFrameIteration + 1; !p.shouldHaveFrame(frameIndex); frameIndex++ {
		count++
	}
	return count
}

// countIntentionallySkippedFramesTo counts intentionally dropped iterations
// between the last main frame and the given iteration.
func (p *Parser) countIntentionallySkippedFramesTo(targetIteration int64) int {
	if p.lastMainFrameIteration == -1 {
		return 0
	}
	count := 0
	for frameIndex := p.lastMainFrameIteration + 1; frameIndex < targetIteration; frameIndex++ {
		if !p.shouldHaveFrame(frameIndex) {
			count++
		}
	}
	return count
}
