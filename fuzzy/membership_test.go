package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/scholar/errors"
)

func TestTriangle_Degree(t *testing.T) {
	tests := []struct {
		name  string
		shape Triangle
		x     float64
		want  float64
	}{
		{"left foot", Triangle{0, 2, 3}, 0, 0},
		{"rising edge", Triangle{0, 2, 3}, 1, 0.5},
		{"peak", Triangle{0, 2, 3}, 2, 1},
		{"falling edge", Triangle{0, 2, 3}, 2.5, 0.5},
		{"right foot", Triangle{0, 2, 3}, 3, 0},
		{"below support", Triangle{0, 2, 3}, -1, 0},
		{"above support", Triangle{0, 2, 3}, 7, 0},
		{"left shoulder at peak", Triangle{0, 0, 60}, 0, 1},
		{"left shoulder slope", Triangle{0, 0, 60}, 30, 0.5},
		{"left shoulder end", Triangle{0, 0, 60}, 60, 0},
		{"right shoulder at peak", Triangle{75, 100, 100}, 100, 1},
		{"right shoulder slope", Triangle{75, 100, 100}, 87.5, 0.5},
		{"right shoulder beyond", Triangle{75, 100, 100}, 100.5, 0},
		{"singleton", Triangle{5, 5, 5}, 5, 1},
		{"singleton miss", Triangle{5, 5, 5}, 5.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.shape.Degree(tt.x), 1e-12)
		})
	}
}

func TestTriangle_DegreeWithinUnitInterval(t *testing.T) {
	shapes := []Triangle{
		{0, 2, 3}, {2.5, 3.2, 3.6}, {0, 0, 4e6}, {7e6, 15e6, 15e6}, {85, 95, 100}, {1, 1, 1},
	}
	for _, s := range shapes {
		for x := -10.0; x <= 110; x += 0.25 {
			d := s.Degree(x)
			require.GreaterOrEqual(t, d, 0.0, "shape %v at %g", s, x)
			require.LessOrEqual(t, d, 1.0, "shape %v at %g", s, x)
		}
	}
}

func TestTriangle_Validate(t *testing.T) {
	assert.NoError(t, Triangle{0, 0, 1}.Validate())
	assert.NoError(t, Triangle{1, 1, 1}.Validate())
	assert.Error(t, Triangle{2, 1, 3}.Validate())
	assert.Error(t, Triangle{0, 3, 2}.Validate())
}

func TestVariable_Membership(t *testing.T) {
	gpa := Variable{
		Name: "gpa", Min: 0, Max: 4,
		Terms: []Term{
			{Name: "low", Shape: Triangle{0, 2, 3}},
			{Name: "high", Shape: Triangle{3.3, 4, 4}},
		},
	}

	d, err := gpa.Membership("high", 4)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	_, err = gpa.Membership("excellent", 4)
	assert.True(t, errors.Is(err, ErrUnknownTerm))

	degrees := gpa.Fuzzify(2.5)
	assert.InDelta(t, 0.5, degrees["low"], 1e-12)
	assert.Equal(t, 0.0, degrees["high"])

	assert.Equal(t, 4.0, gpa.Clamp(9))
	assert.Equal(t, 0.0, gpa.Clamp(-1))
}

func TestVariable_Validate(t *testing.T) {
	tests := []struct {
		name string
		v    Variable
	}{
		{"missing name", Variable{Min: 0, Max: 1, Terms: []Term{{Name: "a", Shape: Triangle{0, 0, 1}}}}},
		{"empty domain", Variable{Name: "x", Min: 1, Max: 1, Terms: []Term{{Name: "a", Shape: Triangle{0, 0, 1}}}}},
		{"no terms", Variable{Name: "x", Min: 0, Max: 1}},
		{"duplicate term", Variable{Name: "x", Min: 0, Max: 1, Terms: []Term{
			{Name: "a", Shape: Triangle{0, 0, 1}},
			{Name: "a", Shape: Triangle{0, 1, 1}},
		}}},
		{"bad shape", Variable{Name: "x", Min: 0, Max: 1, Terms: []Term{{Name: "a", Shape: Triangle{1, 0, 1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.v.Validate())
		})
	}
}
