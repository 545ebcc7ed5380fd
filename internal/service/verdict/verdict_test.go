package verdict

import (
	"math"
	"testing"

	"deepfakeserver/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name       string
		prob       float64
		label      models.Label
		confidence float64
	}{
		{"certainly real", 0, models.LabelReal, 100},
		{"mostly real", 0.1234, models.LabelReal, 87.66},
		{"boundary is real", 0.5, models.LabelReal, 50},
		{"just above boundary", 0.5001, models.LabelFake, 50.01},
		{"mostly fake", 0.98764, models.LabelFake, 98.76},
		{"certainly fake", 1, models.LabelFake, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Format(tt.prob)
			assert.Equal(t, tt.label, v.Label)
			assert.InDelta(t, tt.confidence, v.Confidence, 1e-9)
			assert.Equal(t, tt.prob, v.FakeProbability)
		})
	}
}

func TestFormat_ConfidenceIsSelectedLabelMass(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		v := Format(p)

		want := math.Round((1-p)*100*100) / 100
		if p > FakeThreshold {
			want = math.Round(p*100*100) / 100
			assert.Equal(t, models.LabelFake, v.Label, "p=%v", p)
		} else {
			assert.Equal(t, models.LabelReal, v.Label, "p=%v", p)
		}
		assert.Equal(t, want, v.Confidence, "p=%v", p)
		assert.GreaterOrEqual(t, v.Confidence, 50.0)
		assert.LessOrEqual(t, v.Confidence, 100.0)
	}
}
