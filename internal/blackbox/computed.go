package blackbox

import (
	"fmt"
	"math"
)

// Up to this many computed slots are appended to each main frame; unused
// trailing slots are truncated.
const additionalComputedFieldCount = 20

const axisCount = 3

// computedLayout records which derived-field families are active for the
// open log and where each lands in the merged frame vector.
type computedLayout struct {
	sumStart   int
	rcStart    int
	errStart   int
	motorStart int
	count      int

	// Source field indices resolved once at open time.
	axisP     [axisCount]int
	axisI     [axisCount]int
	axisD     [axisCount]int
	axisF     [axisCount]int
	rcCommand [4]int
	setpoint  [4]int
	gyroADC   [axisCount]int
	motor     []int

	useSetpoint bool
	numMotors   int
}

func fieldIndexes(def *FrameDef, format string, n int) ([]int, bool) {
	out := make([]int, n)
	all := true
	for i := 0; i < n; i++ {
		out[i] = def.FieldIndex(fmt.Sprintf(format, i))
		if out[i] < 0 {
			all = false
		}
	}
	return out, all
}

// resolveComputedLayout decides which computed families can run given the
// log's schema, firmware and disabled-field mask, and assigns slot positions
// following the slow fields.
func resolveComputedLayout(defs *FrameDefs, cfg *SysConfig) computedLayout {
	l := computedLayout{sumStart: -1, rcStart: -1, errStart: -1, motorStart: -1}
	def := &defs.I

	p, hasP := fieldIndexes(def, "axisP[%d]", axisCount)
	ii, hasI := fieldIndexes(def, "axisI[%d]", axisCount)
	d, _ := fieldIndexes(def, "axisD[%d]", axisCount)
	f, _ := fieldIndexes(def, "axisF[%d]", axisCount)
	copy(l.axisP[:], p)
	copy(l.axisI[:], ii)
	copy(l.axisD[:], d)
	copy(l.axisF[:], f)

	rc, hasRC := fieldIndexes(def, "rcCommand[%d]", 4)
	sp, hasSP := fieldIndexes(def, "setpoint[%d]", 4)
	copy(l.rcCommand[:], rc)
	copy(l.setpoint[:], sp)

	gyro, hasGyro := fieldIndexes(def, "gyroADC[%d]", axisCount)
	copy(l.gyroADC[:], gyro)

	for m := 0; ; m++ {
		idx := def.FieldIndex(fmt.Sprintf("motor[%d]", m))
		if idx < 0 {
			break
		}
		l.motor = append(l.motor, idx)
	}
	l.numMotors = len(l.motor)

	l.useSetpoint = cfg.BetaflightAtLeast("4.0.0") && hasSP

	next := 0
	if hasP && hasI && !cfg.FieldDisabled(FieldGroupPID) {
		l.sumStart = next
		next += axisCount
	}
	haveScaledRC := false
	if l.useSetpoint {
		if !cfg.FieldDisabled(FieldGroupSetpoint) {
			l.rcStart = next
			next += 4
			haveScaledRC = true
		}
	} else if hasRC && cfg.FirmwareAtLeast("3.0.0", "2.0.0") && !cfg.FieldDisabled(FieldGroupRCCommands) {
		l.rcStart = next
		next += 4
		haveScaledRC = true
	}
	if haveScaledRC && hasGyro && !cfg.FieldDisabled(FieldGroupGyro) {
		l.errStart = next
		next += axisCount
	}
	if l.numMotors > 0 && !cfg.FieldDisabled(FieldGroupMotor) {
		l.motorStart = next
		next += l.numMotors
	}
	if next > additionalComputedFieldCount {
		next = additionalComputedFieldCount
	}
	l.count = next
	return l
}

// computedFieldNames lists the active derived fields in slot order.
func (l *computedLayout) computedFieldNames() []string {
	names := make([]string, 0, l.count)
	if l.sumStart >= 0 {
		for a := 0; a < axisCount; a++ {
			names = append(names, fmt.Sprintf("axisSum[%d]", a))
		}
	}
	if l.rcStart >= 0 {
		for a := 0; a < 4; a++ {
			names = append(names, fmt.Sprintf("rcCommands[%d]", a))
		}
	}
	if l.errStart >= 0 {
		for a := 0; a < axisCount; a++ {
			names = append(names, fmt.Sprintf("axisError[%d]", a))
		}
	}
	if l.motorStart >= 0 {
		for m := 0; m < l.numMotors; m++ {
			names = append(names, fmt.Sprintf("motorLegacy[%d]", m))
		}
	}
	if len(names) > l.count {
		names = names[:l.count]
	}
	return names
}

// injectComputedFields fills the trailing computed slots of every frame in
// the chunk. Frame values stay integral: fractional intermediate results are
// rounded to the nearest integer on storage.
func (l *computedLayout) injectComputedFields(cfg *SysConfig, base int, frames [][]int32) {
	for _, frame := range frames {
		var scaledRC [4]float64

		if l.sumStart >= 0 {
			for a := 0; a < axisCount; a++ {
				sum := float64(frame[l.axisP[a]]) + float64(frame[l.axisI[a]])
				if l.axisD[a] >= 0 {
					sum += float64(frame[l.axisD[a]])
				}
				if l.axisF[a] >= 0 {
					sum += float64(frame[l.axisF[a]])
				}
				limit := float64(cfg.PidSumLimit)
				if a == 2 {
					limit = float64(cfg.PidSumLimitYaw)
				}
				if limit > 0 {
					sum = clampFloat(sum, -limit, limit)
				}
				frame[base+l.sumStart+a] = roundToInt32(sum)
			}
		}

		if l.rcStart >= 0 {
			if l.useSetpoint {
				for a := 0; a < axisCount; a++ {
					scaledRC[a] = float64(frame[l.setpoint[a]])
				}
				scaledRC[3] = float64(frame[l.setpoint[3]]) / 10
			} else {
				for a := 0; a < axisCount; a++ {
					scaledRC[a] = cfg.RCCommandRawToDegreesPerSecond(float64(frame[l.rcCommand[a]]), a)
				}
				scaledRC[3] = float64(frame[l.rcCommand[3]])
			}
			for a := 0; a < 4; a++ {
				frame[base+l.rcStart+a] = roundToInt32(scaledRC[a])
			}
		}

		if l.errStart >= 0 {
			for a := 0; a < axisCount; a++ {
				err := scaledRC[a] - cfg.GyroRawToDegreesPerSecond(float64(frame[l.gyroADC[a]]))
				frame[base+l.errStart+a] = roundToInt32(err)
			}
		}

		if l.motorStart >= 0 {
			for m, idx := range l.motor {
				frame[base+l.motorStart+m] = frame[idx]
			}
		}
	}
}

func roundToInt32(v float64) int32 {
	return int32(math.Round(v))
}
