package models

// Label is the binary outcome of a prediction.
type Label string

const (
	LabelReal Label = "REAL"
	LabelFake Label = "FAKE"
)

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	return l == LabelReal || l == LabelFake
}

// Verdict is the formatted result of a single video classification.
type Verdict struct {
	Label Label `json:"result"`
	// Confidence is the probability of Label as a percentage, rounded to two decimals.
	Confidence float64 `json:"confidence"`
	// FakeProbability is the raw classifier output the verdict was derived from.
	FakeProbability float64 `json:"-"`
}
