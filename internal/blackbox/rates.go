package blackbox

import "math"

// Betaflight raises effective RC rate past 2.0 with this slope.
const rcRateIncremental = 14.54

// adcVref is the ADC reference in decivolts used by the battery scaling.
const adcVref = 33

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GyroRawToDegreesPerSecond converts a raw gyro field value to degrees per
// second using the normalized gyro scale from the header.
func (c *SysConfig) GyroRawToDegreesPerSecond(value float64) float64 {
	return c.GyroScale * 1000000 / (math.Pi / 180.0) * value
}

// RCCommandRawToDegreesPerSecond converts a raw rcCommand deflection to the
// setpoint rotation rate the firmware would derive from it. The formula
// matches the rates math introduced with Betaflight 3.0 and Cleanflight 2.0.
func (c *SysConfig) RCCommandRawToDegreesPerSecond(value float64, axis int) float64 {
	rcInput := value / 500
	if expo := float64(c.RCExpo[axis]) / 100; expo != 0 {
		a := math.Abs(rcInput)
		rcInput = rcInput*a*a*a*expo + rcInput*(1-expo)
	}

	rcRate := float64(c.RCRates[axis]) / 100
	if rcRate > 2.0 {
		rcRate += rcRateIncremental * (rcRate - 2.0)
	}
	angleRate := 200 * rcRate * rcInput
	if c.Rates[axis] != 0 {
		superFactor := 1.0 / clampFloat(1.0-math.Abs(rcInput)*float64(c.Rates[axis])/100.0, 0.01, 1.00)
		angleRate *= superFactor
	}

	if c.PIDController == 0 || !c.HasRateLimits {
		return float64(int32(clampFloat(angleRate*4.1, -8190, 8190)) >> 2)
	}
	limit := float64(c.RateLimits[axis])
	return clampFloat(angleRate, -limit, limit)
}

// VbatADCToMillivolts converts a raw battery ADC reading to millivolts.
func (c *SysConfig) VbatADCToMillivolts(adc int) int {
	return (adc * adcVref * 10 * c.VbatScale) / 4095
}

// EstimateNumCells guesses the battery cell count from the reference voltage
// captured at arming: the smallest count whose full-charge voltage exceeds
// the reference.
func (c *SysConfig) EstimateNumCells() int {
	refVoltage := c.VbatADCToMillivolts(c.VbatRef) / 100
	cells := 1
	for ; cells < 8; cells++ {
		if refVoltage < cells*c.VbatMaxCellVoltage {
			break
		}
	}
	return cells
}
