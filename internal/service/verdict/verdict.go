package verdict

import (
	"math"

	"deepfakeserver/internal/models"
)

// FakeThreshold is the fake-class probability a video must exceed to be labelled FAKE.
const FakeThreshold = 0.5

// Format turns the fake-class probability into a labelled verdict.
// A probability of exactly FakeThreshold is REAL. Confidence is always the probability
// mass of the chosen label, as a percentage rounded to two decimals.
func Format(fakeProb float64) models.Verdict {
	if fakeProb > FakeThreshold {
		return models.Verdict{
			Label:           models.LabelFake,
			Confidence:      round2(fakeProb * 100),
			FakeProbability: fakeProb,
		}
	}
	return models.Verdict{
		Label:           models.LabelReal,
		Confidence:      round2((1 - fakeProb) * 100),
		FakeProbability: fakeProb,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
