package blackbox

import (
	"errors"
	"math"
	"testing"
)

func parseTestHeader(t *testing.T, b *logBuilder) *Parser {
	t.Helper()
	p := NewParser(b.bytes())
	if err := p.ParseHeader(0, len(b.bytes())); err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	return p
}

func TestParseHeaderStandard(t *testing.T) {
	b := newLogBuilder()
	b.writeStandardHeader(defaultHeaderOptions())
	b.simpleFlight(0, 10_000_000, 1, 300, 2)
	p := parseTestHeader(t, b)

	cfg := p.SysConfig()
	if cfg.FirmwareType != FirmwareTypeBetaflight {
		t.Errorf("FirmwareType = %d, want Betaflight", cfg.FirmwareType)
	}
	if cfg.FirmwareVersion != "4.2.0" {
		t.Errorf("FirmwareVersion = %q, want 4.2.0", cfg.FirmwareVersion)
	}
	if cfg.DataVersion != 2 {
		t.Errorf("DataVersion = %d, want 2", cfg.DataVersion)
	}
	if cfg.FrameIntervalI != 32 || cfg.FrameIntervalPNum != 1 || cfg.FrameIntervalPDenom != 1 {
		t.Errorf("frame intervals = %d %d/%d", cfg.FrameIntervalI, cfg.FrameIntervalPNum, cfg.FrameIntervalPDenom)
	}
	if cfg.MotorOutput != [2]int{192, 2047} {
		t.Errorf("MotorOutput = %v", cfg.MotorOutput)
	}
	if cfg.MinThrottle != 1070 || cfg.MaxThrottle != 2000 {
		t.Errorf("throttle range = %d..%d", cfg.MinThrottle, cfg.MaxThrottle)
	}
	// 1.0 in float bits, normalized to radians per microsecond.
	want := 1.0 * (math.Pi / 180.0) * 0.000001
	if math.Abs(cfg.GyroScale-want) > 1e-15 {
		t.Errorf("GyroScale = %g, want %g", cfg.GyroScale, want)
	}
	if cfg.RCRates != [3]int{175, 175, 128} {
		t.Errorf("RCRates = %v", cfg.RCRates)
	}
	if cfg.PidSumLimit != 500 || cfg.PidSumLimitYaw != 400 {
		t.Errorf("pid sum limits = %d/%d", cfg.PidSumLimit, cfg.PidSumLimitYaw)
	}

	defs := p.FrameDefs()
	if defs.I.Count != testFieldCount {
		t.Fatalf("I count = %d, want %d", defs.I.Count, testFieldCount)
	}
	if !defs.I.Complete() || !defs.P.Complete() {
		t.Fatal("main frame definitions incomplete")
	}
	if defs.P.Count != defs.I.Count {
		t.Error("P definition did not inherit the I field count")
	}
	if defs.P.Name[0] != "loopIteration" {
		t.Errorf("inherited P name[0] = %q", defs.P.Name[0])
	}
	if got := defs.I.FieldIndex("motor[0]"); got != tfMotor {
		t.Errorf("motor[0] index = %d, want %d", got, tfMotor)
	}
	if defs.S.Count != testSlowFieldCount {
		t.Errorf("S count = %d, want %d", defs.S.Count, testSlowFieldCount)
	}
}

func TestParseHeaderPIntervalFraction(t *testing.T) {
	opts := defaultHeaderOptions()
	opts.pNum, opts.pDenom = 1, 8
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 8, 300, 2)
	p := parseTestHeader(t, b)
	cfg := p.SysConfig()
	if cfg.FrameIntervalPNum != 1 || cfg.FrameIntervalPDenom != 8 {
		t.Fatalf("P interval = %d/%d, want 1/8", cfg.FrameIntervalPNum, cfg.FrameIntervalPDenom)
	}
}

func TestParseHeaderPIntervalSlash(t *testing.T) {
	opts := defaultHeaderOptions()
	opts.pNum, opts.pDenom = 2, 4
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	p := parseTestHeader(t, b)
	cfg := p.SysConfig()
	if cfg.FrameIntervalPNum != 2 || cfg.FrameIntervalPDenom != 4 {
		t.Fatalf("P interval = %d/%d, want 2/4", cfg.FrameIntervalPNum, cfg.FrameIntervalPDenom)
	}
}

func TestParseHeaderAliases(t *testing.T) {
	opts := defaultHeaderOptions()
	opts.extra = [][2]string{
		{"dterm_lowpass_hz", "150"},
		{"gyro_lowpass_hz", "120"},
	}
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	cfg := parseTestHeader(t, b).SysConfig()
	if cfg.DtermLpfHz != 150 {
		t.Errorf("DtermLpfHz = %g, want 150", cfg.DtermLpfHz)
	}
	if cfg.GyroLpfHz != 120 {
		t.Errorf("GyroLpfHz = %g, want 120", cfg.GyroLpfHz)
	}
}

func TestParseHeaderVersionGatedScaling(t *testing.T) {
	// Betaflight 3.0 predates the unit change, so filter cutoffs arrive in
	// centihertz and accel limits unscaled.
	opts := defaultHeaderOptions()
	opts.firmware = "Betaflight 3.0.1 (abcdef) SPRACINGF3"
	opts.extra = [][2]string{
		{"dterm_lpf_hz", "9000"},
		{"yawRateAccelLimit", "10000"},
	}
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	cfg := parseTestHeader(t, b).SysConfig()
	if cfg.DtermLpfHz != 90 {
		t.Errorf("old-firmware DtermLpfHz = %g, want 90", cfg.DtermLpfHz)
	}
	if cfg.YawRateAccelLimit != 10000 {
		t.Errorf("old-firmware YawRateAccelLimit = %g, want 10000", cfg.YawRateAccelLimit)
	}

	opts = defaultHeaderOptions()
	opts.extra = [][2]string{
		{"dterm_lpf_hz", "90"},
		{"yawRateAccelLimit", "10000"},
	}
	b = newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	cfg = parseTestHeader(t, b).SysConfig()
	if cfg.DtermLpfHz != 90 {
		t.Errorf("new-firmware DtermLpfHz = %g, want 90", cfg.DtermLpfHz)
	}
	if cfg.YawRateAccelLimit != 10 {
		t.Errorf("new-firmware YawRateAccelLimit = %g, want 10", cfg.YawRateAccelLimit)
	}
}

func TestParseHeaderVbatCellVoltage(t *testing.T) {
	opts := defaultHeaderOptions()
	opts.extra = [][2]string{{"vbatcellvoltage", "33,35,43"}}
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	cfg := parseTestHeader(t, b).SysConfig()
	if cfg.VbatMinCellVoltage != 33 || cfg.VbatWarningCellVoltage != 35 || cfg.VbatMaxCellVoltage != 43 {
		t.Fatalf("cell voltages = %d/%d/%d", cfg.VbatMinCellVoltage, cfg.VbatWarningCellVoltage, cfg.VbatMaxCellVoltage)
	}
}

func TestParseHeaderUnknownKeysPreserved(t *testing.T) {
	opts := defaultHeaderOptions()
	opts.extra = [][2]string{{"mystery_option", "42:17"}}
	b := newLogBuilder()
	b.writeStandardHeader(opts)
	b.simpleFlight(0, 1000, 1, 300, 2)
	cfg := parseTestHeader(t, b).SysConfig()
	found := false
	for _, h := range cfg.UnknownHeaders {
		if h.Name == "mystery_option" {
			found = true
			// The value keeps everything after the first colon.
			if h.Value != "42:17" {
				t.Errorf("unknown header value = %q, want \"42:17\"", h.Value)
			}
		}
	}
	if !found {
		t.Fatal("unknown header was not preserved")
	}
}

func TestParseHeaderIncomplete(t *testing.T) {
	b := newLogBuilder()
	b.startMarker()
	b.header("Data version", "2")
	b.header("Firmware revision", "Betaflight 4.2.0 (d0fd1c4b0) STM32F405")
	// No field definitions at all.
	b.raw('I', 0x00)
	p := NewParser(b.bytes())
	err := p.ParseHeader(0, len(b.bytes()))
	if !errors.Is(err, ErrHeaderIncomplete) {
		t.Fatalf("ParseHeader error = %v, want ErrHeaderIncomplete", err)
	}
}

func TestParseHeaderMissingPDefinition(t *testing.T) {
	b := newLogBuilder()
	b.startMarker()
	b.header("Data version", "2")
	b.header("Field I name", "loopIteration,time")
	b.header("Field I signed", "0,0")
	b.header("Field I predictor", "0,0")
	b.header("Field I encoding", "1,1")
	b.raw('I', 0x00, 0x00)
	p := NewParser(b.bytes())
	err := p.ParseHeader(0, len(b.bytes()))
	if !errors.Is(err, ErrHeaderIncomplete) {
		t.Fatalf("ParseHeader error = %v, want ErrHeaderIncomplete", err)
	}
}

func TestFirmwareAtLeast(t *testing.T) {
	tests := []struct {
		ftype   int
		version string
		want    bool
	}{
		{FirmwareTypeBetaflight, "3.1.0", true},
		{FirmwareTypeBetaflight, "3.0.9", false},
		{FirmwareTypeBetaflight, "4.2.0", true},
		{FirmwareTypeCleanflight, "2.0.0", true},
		{FirmwareTypeCleanflight, "1.9.9", false},
		{FirmwareTypeINAV, "9.9.9", false},
		{FirmwareTypeUnknown, "9.9.9", false},
	}
	for _, tc := range tests {
		cfg := SysConfig{FirmwareType: tc.ftype, FirmwareVersion: tc.version}
		if got := cfg.FirmwareAtLeast("3.1.0", "2.0.0"); got != tc.want {
			t.Errorf("FirmwareAtLeast(type=%d, %q) = %v, want %v", tc.ftype, tc.version, got, tc.want)
		}
	}
}

func TestTranslateLegacyFieldNames(t *testing.T) {
	b := newLogBuilder()
	b.startMarker()
	b.header("Data version", "1")
	b.header("Field I name", "loopIteration,time,gyroData[0],gyroData[1],gyroData[2]")
	b.header("Field I signed", "0,0,1,1,1")
	b.header("Field I predictor", "0,0,0,0,0")
	b.header("Field I encoding", "1,1,0,0,0")
	b.header("Field P predictor", "6,2,1,1,1")
	b.header("Field P encoding", "9,0,0,0,0")
	b.raw('I')
	b.raw(encodeUVB(0)...)
	b.raw(encodeUVB(1000)...)
	b.raw(0, 0, 0)
	p := NewParser(b.bytes())
	if err := p.ParseHeader(0, len(b.bytes())); err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	defs := p.FrameDefs()
	if defs.I.Name[2] != "gyroADC[0]" {
		t.Fatalf("legacy name translated to %q, want gyroADC[0]", defs.I.Name[2])
	}
	if !defs.I.HasField("gyroADC[2]") || defs.I.HasField("gyroData[2]") {
		t.Fatal("legacy names should only be reachable under their modern spelling")
	}
}
