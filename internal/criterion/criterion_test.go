package criterion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floats(vs ...float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		val := v
		out[i] = &val
	}
	return out
}

func toBools(s Series) []bool {
	out := make([]bool, len(s))
	for i := range s {
		out[i] = s.True(i)
	}
	return out
}

func TestCompare(t *testing.T) {
	left := floats(1.0, 2.0, 3.0, 3.5, 4.0)
	right := floats(3.0, 2.5, 1.0, 2.0, 5.0)
	got := Compare(left, right)
	assert.Equal(t, []bool{false, false, true, true, false}, toBools(got))
}

func TestCrossUpward(t *testing.T) {
	compare := []bool{false, false, true, true, false, true}
	series := make(Series, len(compare))
	for i, v := range compare {
		val := v
		series[i] = &val
	}
	got := Cross(series, true)
	assert.Equal(t, []bool{false, false, true, false, false, true}, toBools(got))
}

func TestCrossDownward(t *testing.T) {
	compare := []bool{false, false, true, true, false, true}
	series := make(Series, len(compare))
	for i, v := range compare {
		val := v
		series[i] = &val
	}
	got := Cross(series, false)
	assert.Equal(t, []bool{false, false, false, false, true, false}, toBools(got))
}
