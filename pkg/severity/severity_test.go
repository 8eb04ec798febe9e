package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromCVSS(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{10.0, Critical},
		{9.0, Critical},
		{8.9, High},
		{7.0, High},
		{6.9, Medium},
		{4.0, Medium},
		{3.9, Low},
		{0.1, Low},
		{0.0, Info},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromCVSS(tt.score), "score %v", tt.score)
	}
}

func TestFromScanner(t *testing.T) {
	assert.Equal(t, Critical, FromScanner(4))
	assert.Equal(t, High, FromScanner(3))
	assert.Equal(t, Medium, FromScanner(2))
	assert.Equal(t, Low, FromScanner(1))
	assert.Equal(t, Info, FromScanner(0))
	assert.Equal(t, Unknown, FromScanner(7))
}

func TestFromString(t *testing.T) {
	assert.Equal(t, Critical, FromString(" critical "))
	assert.Equal(t, High, FromString("HIGH"))
	assert.Equal(t, Medium, FromString("Moderate"))
	assert.Equal(t, Info, FromString("none"))
	assert.Equal(t, Unknown, FromString("bogus"))
}

func TestMax(t *testing.T) {
	assert.Equal(t, High, Max(Low, High))
	assert.Equal(t, Critical, Max(Critical, Unknown))
	assert.Equal(t, Medium, Max(Medium, Medium))
}

func TestCountBySeverity(t *testing.T) {
	var c CountBySeverity
	assert.Equal(t, Unknown, c.Highest())

	for _, l := range []Level{Low, Medium, Medium, Level("bogus")} {
		c.Increment(l)
	}
	assert.Equal(t, 4, c.Total)
	assert.Equal(t, 2, c.Medium)
	assert.Equal(t, 1, c.Unknown)
	assert.Equal(t, Medium, c.Highest())
}
