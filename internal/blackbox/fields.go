package blackbox

import "strings"

// Field indices that the decoder itself depends on: every main frame starts
// with the loop iteration counter followed by the timestamp in microseconds.
const (
	FieldIndexIteration = 0
	FieldIndexTime      = 1
)

// Field encodings, as carried in the "Field * encoding" header lines.
const (
	EncodingSignedVB        = 0
	EncodingUnsignedVB      = 1
	EncodingNeg14Bit        = 3
	EncodingTag8_8SVB       = 6
	EncodingTag2_3S32       = 7
	EncodingTag8_4S16       = 8
	EncodingNull            = 9
	EncodingTag2_3SVariable = 10
)

// Field predictors, as carried in the "Field * predictor" header lines.
const (
	PredictorZero              = 0
	PredictorPrevious          = 1
	PredictorStraightLine      = 2
	PredictorAverage2          = 3
	PredictorMinthrottle       = 4
	PredictorMotor0            = 5
	PredictorInc               = 6
	PredictorHomeCoord         = 7
	Predictor1500              = 8
	PredictorVbatRef           = 9
	PredictorLastMainFrameTime = 10
	PredictorMinMotor          = 11
)

// FrameDef describes the field schema of one frame type as declared by the
// log header.
type FrameDef struct {
	Name        []string
	NameToIndex map[string]int
	Signed      []bool
	Predictor   []int
	Encoding    []int
	Count       int
}

// Complete reports whether the definition carries enough information to
// decode a frame: at least one named field with predictor and encoding
// entries for every field.
func (d *FrameDef) Complete() bool {
	return d.Count > 0 && len(d.Encoding) == d.Count && len(d.Predictor) == d.Count
}

// HasField reports whether a field of the given name was declared.
func (d *FrameDef) HasField(name string) bool {
	_, ok := d.NameToIndex[name]
	return ok
}

// FieldIndex returns the position of the named field, or -1.
func (d *FrameDef) FieldIndex(name string) int {
	if i, ok := d.NameToIndex[name]; ok {
		return i
	}
	return -1
}

func (d *FrameDef) setNames(names []string) {
	d.Name = make([]string, len(names))
	d.NameToIndex = make(map[string]int, len(names))
	for i, name := range names {
		name = translateFieldName(name)
		d.Name[i] = name
		d.NameToIndex[name] = i
	}
	d.Count = len(names)
	if len(d.Signed) < d.Count {
		d.Signed = append(d.Signed, make([]bool, d.Count-len(d.Signed))...)
	}
}

// translateFieldName maps first-generation field names onto their modern
// spellings so consumers only ever see one set of names.
func translateFieldName(name string) string {
	if strings.HasPrefix(name, "gyroData") {
		return "gyroADC" + name[len("gyroData"):]
	}
	return name
}

// inheritFrom copies the shared main-frame schema from the intraframe
// definition: interframes describe the same fields, they only encode them
// differently.
func (d *FrameDef) inheritFrom(parent *FrameDef) {
	d.Name = parent.Name
	d.NameToIndex = parent.NameToIndex
	d.Signed = parent.Signed
	d.Count = parent.Count
}
