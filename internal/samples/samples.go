// Package samples builds a small deterministic blackbox log file for tests,
// demos and the daemon's development workflow.
package samples

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
)

const (
	// LogFileName is the file WriteFiles produces.
	LogFileName = "sample.bbl"

	// The sample's fixed timeline.
	BaseTimeUs   int64 = 10_000_000
	TimeStepUs   int64 = 250
	FramesPerLog       = 32

	// SecondLogBaseTimeUs starts the second arming session.
	SecondLogBaseTimeUs int64 = 90_000_000
)

const fieldNames = "loopIteration,time," +
	"axisP[0],axisP[1],axisP[2]," +
	"axisI[0],axisI[1],axisI[2]," +
	"setpoint[0],setpoint[1],setpoint[2],setpoint[3]," +
	"gyroADC[0],gyroADC[1],gyroADC[2]," +
	"motor[0],motor[1],motor[2],motor[3]"

const (
	fieldCount = 19
	idxTime    = 1
	idxGyro    = 12
	idxMotor   = 15
	motorMin   = 192
)

// Build returns a complete two-flight blackbox file.
func Build() []byte {
	var buf bytes.Buffer
	writeLog(&buf, BaseTimeUs)
	writeLog(&buf, SecondLogBaseTimeUs)
	return buf.Bytes()
}

// WriteFiles writes the sample capture into outDir.
func WriteFiles(outDir string) error {
	path := filepath.Join(outDir, LogFileName)
	if err := os.WriteFile(path, Build(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeLog(buf *bytes.Buffer, baseTime int64) {
	writeHeader(buf)

	var prev, prev2 []int32
	for n := int32(0); n < FramesPerLog; n++ {
		values := frameValues(n, baseTime)
		if n%4 == 0 {
			writeIFrame(buf, values)
			prev, prev2 = values, values
		} else {
			writePFrame(buf, values, prev, prev2)
			prev2, prev = prev, values
		}
	}
	writeSlowFrame(buf, []int32{1, 0, 0})
	writeLogEnd(buf)
}

func writeHeader(buf *bytes.Buffer) {
	buf.WriteString(blackbox.LogStartMarker)
	header := func(key, value string) {
		fmt.Fprintf(buf, "H %s:%s\n", key, value)
	}
	header("Data version", "2")
	header("Firmware revision", "Betaflight 4.2.0 (d0fd1c4b0) STM32F405")
	header("Craft name", "SampleQuad")
	header("I interval", "4")
	header("P interval", "1")
	header("Field I name", fieldNames)
	header("Field I signed", "0,0,1,1,1,1,1,1,1,1,1,1,1,1,1,0,0,0,0")
	header("Field I predictor", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,11,11,11,11")
	header("Field I encoding", "1,1,0,0,0,0,0,0,0,0,0,0,0,0,0,1,1,1,1")
	header("Field P predictor", "6,2,1,1,1,3,3,3,1,1,1,1,1,1,1,1,1,1,1")
	header("Field P encoding", "9,0,0,0,0,0,0,0,0,0,0,0,7,7,7,6,6,6,6")
	header("Field S name", "flightModeFlags,stateFlags,failsafePhase")
	header("Field S signed", "0,0,0")
	header("Field S predictor", "0,0,0")
	header("Field S encoding", "1,1,1")
	header("gyro_scale", "0x3f800000")
	header("rc_rates", "175,175,128")
	header("rates", "70,70,70")
	header("rc_expo", "0,0,0")
	header("rate_limits", "1998,1998,1998")
	header("pidsum_limit", "500")
	header("pidsum_limit_yaw", "400")
	header("minthrottle", "1070")
	header("maxthrottle", "2000")
	header("motorOutput", "192,2047")
}

func frameValues(n int32, baseTime int64) []int32 {
	v := make([]int32, fieldCount)
	v[0] = n
	v[idxTime] = int32(baseTime) + n*int32(TimeStepUs)
	for a := int32(0); a < 3; a++ {
		v[2+a] = 10*a + n%7
		v[5+a] = 5*a - n%3
		v[idxGyro+a] = 100*a - 50 + n%11
	}
	for ch := int32(0); ch < 4; ch++ {
		v[8+ch] = 20*ch - 30 + n%5
	}
	for m := int32(0); m < 4; m++ {
		v[idxMotor+m] = motorMin + 100*m + n%13
	}
	return v
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

func writeIFrame(buf *bytes.Buffer, values []int32) {
	buf.WriteByte('I')
	writeUnsignedVB(buf, uint32(values[0]))
	writeUnsignedVB(buf, uint32(values[idxTime]))
	for i := 2; i < idxMotor; i++ {
		writeSignedVB(buf, values[i])
	}
	for i := idxMotor; i < fieldCount; i++ {
		writeUnsignedVB(buf, uint32(values[i]-motorMin))
	}
}

func writePFrame(buf *bytes.Buffer, values, prev, prev2 []int32) {
	buf.WriteByte('P')
	writeSignedVB(buf, values[idxTime]-(2*prev[idxTime]-prev2[idxTime]))
	for i := 2; i < 5; i++ {
		writeSignedVB(buf, values[i]-prev[i])
	}
	for i := 5; i < 8; i++ {
		writeSignedVB(buf, values[i]-(prev[i]+prev2[i])/2)
	}
	for i := 8; i < idxGyro; i++ {
		writeSignedVB(buf, values[i]-prev[i])
	}
	buf.WriteByte(0xFF)
	for i := idxGyro; i < idxMotor; i++ {
		raw := uint32(values[i] - prev[i])
		buf.Write([]byte{byte(raw), byte(raw >> 8), byte(raw >> 16), byte(raw >> 24)})
	}
	var bitmap byte
	for i := idxMotor; i < fieldCount; i++ {
		if values[i] != prev[i] {
			bitmap |= 1 << uint(i-idxMotor)
		}
	}
	buf.WriteByte(bitmap)
	for i := idxMotor; i < fieldCount; i++ {
		if values[i] != prev[i] {
			writeSignedVB(buf, values[i]-prev[i])
		}
	}
}

func writeSlowFrame(buf *bytes.Buffer, values []int32) {
	buf.WriteByte('S')
	for _, v := range values {
		writeUnsignedVB(buf, uint32(v))
	}
}

func writeLogEnd(buf *bytes.Buffer) {
	buf.WriteByte('E')
	buf.WriteByte(0xFF)
	buf.WriteString("End of log\x00")
}
