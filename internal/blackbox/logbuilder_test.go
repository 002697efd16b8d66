package blackbox

import (
	"bytes"
	"fmt"
)

// logBuilder assembles deterministic blackbox log buffers for tests. It is
// the encoding mirror of the decoder for the narrow schema the tests use;
// production code never writes logs.
type logBuilder struct {
	buf bytes.Buffer
}

func newLogBuilder() *logBuilder { return &logBuilder{} }

func (b *logBuilder) bytes() []byte { return b.buf.Bytes() }

func (b *logBuilder) raw(data ...byte) { b.buf.Write(data) }

func (b *logBuilder) header(key, value string) {
	fmt.Fprintf(&b.buf, "H %s:%s\n", key, value)
}

func (b *logBuilder) startMarker() {
	b.buf.WriteString(LogStartMarker)
}

func encodeUVB(v uint32) []byte {
	var buf bytes.Buffer
	writeUnsignedVB(&buf, v)
	return buf.Bytes()
}

func writeUnsignedVB(buf *bytes.Buffer, v uint32) {
	for v > 127 {
		buf.WriteByte(byte(v&0x7F | 0x80))
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

func writeSignedVB(buf *bytes.Buffer, v int32) {
	writeUnsignedVB(buf, uint32(v<<1)^uint32(v>>31))
}

// Test schema: a trimmed Betaflight-style field set that still exercises the
// group encodings and the interesting predictors.
//
//	index  field           I pred/enc     P pred/enc
//	0      loopIteration   0 / UVB        INC / NULL
//	1      time            0 / UVB        STRAIGHT_LINE / SVB
//	2-4    axisP[0..2]     0 / SVB        PREVIOUS / SVB
//	5-7    axisI[0..2]     0 / SVB        AVERAGE_2 / SVB
//	8-11   setpoint[0..3]  0 / SVB        PREVIOUS / SVB
//	12-14  gyroADC[0..2]   0 / SVB        PREVIOUS / TAG2_3S32
//	15-18  motor[0..3]     MINMOTOR / UVB PREVIOUS / TAG8_8SVB
const (
	testFieldCount     = 19
	testSlowFieldCount = 3

	tfIteration = 0
	tfTime      = 1
	tfAxisP     = 2
	tfAxisI     = 5
	tfSetpoint  = 8
	tfGyro      = 12
	tfMotor     = 15
)

var testFieldNames = "loopIteration,time," +
	"axisP[0],axisP[1],axisP[2]," +
	"axisI[0],axisI[1],axisI[2]," +
	"setpoint[0],setpoint[1],setpoint[2],setpoint[3]," +
	"gyroADC[0],gyroADC[1],gyroADC[2]," +
	"motor[0],motor[1],motor[2],motor[3]"

type headerOptions struct {
	firmware    string
	iInterval   int
	pNum        int
	pDenom      int
	motorOutput string
	extra       [][2]string
}

func defaultHeaderOptions() headerOptions {
	return headerOptions{
		firmware:    "Betaflight 4.2.0 (d0fd1c4b0) STM32F405",
		iInterval:   32,
		pNum:        1,
		pDenom:      1,
		motorOutput: "192,2047",
	}
}

// writeStandardHeader emits the start banner plus a complete header for the
// test schema.
func (b *logBuilder) writeStandardHeader(opts headerOptions) {
	b.startMarker()
	b.header("Data version", "2")
	b.header("Firmware revision", opts.firmware)
	b.header("I interval", fmt.Sprintf("%d", opts.iInterval))
	if opts.pNum == 1 {
		b.header("P interval", fmt.Sprintf("%d", opts.pDenom))
	} else {
		b.header("P interval", fmt.Sprintf("%d/%d", opts.pNum, opts.pDenom))
	}
	b.header("Field I name", testFieldNames)
	b.header("Field I signed", "0,0,1,1,1,1,1,1,1,1,1,1,1,1,1,0,0,0,0")
	b.header("Field I predictor", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,11,11,11,11")
	b.header("Field I encoding", "1,1,0,0,0,0,0,0,0,0,0,0,0,0,0,1,1,1,1")
	b.header("Field P predictor", "6,2,1,1,1,3,3,3,1,1,1,1,1,1,1,1,1,1,1")
	b.header("Field P encoding", "9,0,0,0,0,0,0,0,0,0,0,0,7,7,7,6,6,6,6")
	b.header("Field S name", "flightModeFlags,stateFlags,failsafePhase")
	b.header("Field S signed", "0,0,0")
	b.header("Field S predictor", "0,0,0")
	b.header("Field S encoding", "1,1,1")
	b.header("gyro_scale", "0x3f800000")
	b.header("rc_rates", "175,175,128")
	b.header("rates", "70,70,70")
	b.header("rc_expo", "0,0,0")
	b.header("rate_limits", "1998,1998,1998")
	b.header("pidsum_limit", "500")
	b.header("pidsum_limit_yaw", "400")
	b.header("minthrottle", "1070")
	b.header("maxthrottle", "2000")
	b.header("motorOutput", opts.motorOutput)
	for _, kv := range opts.extra {
		b.header(kv[0], kv[1])
	}
}

// writeIFrame encodes an intraframe holding the given absolute values.
func (b *logBuilder) writeIFrame(values []int32, motorMin int32) {
	b.buf.WriteByte('I')
	writeUnsignedVB(&b.buf, uint32(values[tfIteration]))
	writeUnsignedVB(&b.buf, uint32(values[tfTime]))
	for i := tfAxisP; i < tfMotor; i++ {
		writeSignedVB(&b.buf, values[i])
	}
	for i := tfMotor; i < testFieldCount; i++ {
		writeUnsignedVB(&b.buf, uint32(values[i]-motorMin))
	}
}

// writePFrame encodes an interframe as deltas against the given history.
func (b *logBuilder) writePFrame(values, prev, prev2 []int32) {
	b.buf.WriteByte('P')
	// loopIteration rides on the skip count alone.
	writeSignedVB(&b.buf, values[tfTime]-(2*prev[tfTime]-prev2[tfTime]))
	for i := tfAxisP; i < tfAxisI; i++ {
		writeSignedVB(&b.buf, values[i]-prev[i])
	}
	for i := tfAxisI; i < tfSetpoint; i++ {
		writeSignedVB(&b.buf, values[i]-(prev[i]+prev2[i])/2)
	}
	for i := tfSetpoint; i < tfGyro; i++ {
		writeSignedVB(&b.buf, values[i]-prev[i])
	}
	// gyro triple: the 32-bit-per-field layout of the tag2_3s32 codec.
	b.buf.WriteByte(0xFF)
	for i := tfGyro; i < tfMotor; i++ {
		raw := uint32(values[i] - prev[i])
		b.buf.Write([]byte{byte(raw), byte(raw >> 8), byte(raw >> 16), byte(raw >> 24)})
	}
	// motor group: tag8_8svb bitmap plus signed VBs for nonzero deltas.
	var bitmap byte
	for i := tfMotor; i < testFieldCount; i++ {
		if values[i] != prev[i] {
			bitmap |= 1 << uint(i-tfMotor)
		}
	}
	b.buf.WriteByte(bitmap)
	for i := tfMotor; i < testFieldCount; i++ {
		if values[i] != prev[i] {
			writeSignedVB(&b.buf, values[i]-prev[i])
		}
	}
}

func (b *logBuilder) writeSFrame(values []int32) {
	b.buf.WriteByte('S')
	for _, v := range values {
		writeUnsignedVB(&b.buf, uint32(v))
	}
}

func (b *logBuilder) writeSyncBeep(time uint32) {
	b.buf.WriteByte('E')
	b.buf.WriteByte(byte(EventSyncBeep))
	writeUnsignedVB(&b.buf, time)
}

func (b *logBuilder) writeFlightModeEvent(newFlags, lastFlags uint32) {
	b.buf.WriteByte('E')
	b.buf.WriteByte(byte(EventFlightMode))
	writeUnsignedVB(&b.buf, newFlags)
	writeUnsignedVB(&b.buf, lastFlags)
}

func (b *logBuilder) writeDisarmEvent(reason uint32) {
	b.buf.WriteByte('E')
	b.buf.WriteByte(byte(EventDisarm))
	writeUnsignedVB(&b.buf, reason)
}

func (b *logBuilder) writeLoggingResume(iteration, time uint32) {
	b.buf.WriteByte('E')
	b.buf.WriteByte(byte(EventLoggingResume))
	writeUnsignedVB(&b.buf, iteration)
	writeUnsignedVB(&b.buf, time)
}

func (b *logBuilder) writeLogEnd() {
	b.buf.WriteByte('E')
	b.buf.WriteByte(byte(EventLogEnd))
	b.buf.WriteString(endOfLogMessage)
}

// testFrame fabricates a plausible value vector for loop iteration n.
func testFrame(iteration int32, time int32) []int32 {
	v := make([]int32, testFieldCount)
	v[tfIteration] = iteration
	v[tfTime] = time
	for a := int32(0); a < 3; a++ {
		v[tfAxisP+a] = 10*a + iteration%7
		v[tfAxisI+a] = 5*a - iteration%3
		v[tfGyro+a] = 100*a - 50 + iteration%11
	}
	for ch := int32(0); ch < 4; ch++ {
		v[tfSetpoint+ch] = 20*ch - 30 + iteration%5
	}
	for m := int32(0); m < 4; m++ {
		v[tfMotor+m] = 192 + 100*m + iteration%13
	}
	return v
}

// simpleFlight writes a run of main frames starting at the given iteration
// and time, one intraframe followed by count-1 interframes, stepping the
// iteration by iterStep and the time by timeStep. It returns the value
// vectors it encoded.
func (b *logBuilder) simpleFlight(startIter, startTime, iterStep, timeStep, count int32) [][]int32 {
	frames := make([][]int32, 0, count)
	var prev, prev2 []int32
	for n := int32(0); n < count; n++ {
		values := testFrame(startIter+n*iterStep, startTime+n*timeStep)
		if n == 0 {
			b.writeIFrame(values, 192)
			prev, prev2 = values, values
		} else {
			b.writePFrame(values, prev, prev2)
			prev2, prev = prev, values
		}
		frames = append(frames, values)
	}
	return frames
}
