package imp

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestPosteriorsSumToOne(t *testing.T) {
	const (
		nMarkers = 12
		nStates  = 3
	)
	match := make([][]bool, nMarkers)
	for m := range match {
		match[m] = []bool{m%2 == 0, m%3 == 0, true}
	}
	h := newHmmScratch(nMarkers, nStates)
	h.posteriors(match, nMarkers, nStates, 1e-3, 1e-2)
	for m := 0; m < nMarkers; m++ {
		sum := 0.0
		for j := 0; j < nStates; j++ {
			p := h.post[m][j]
			expect.True(t, p >= 0 && p <= 1, "m=%d j=%d: %v", m, j, p)
			sum += p
		}
		expect.True(t, math.Abs(sum-1) < 1e-9, "m=%d: sum %v", m, sum)
	}
}

func TestPosteriorsPreferMatchingState(t *testing.T) {
	const (
		nMarkers = 20
		nStates  = 4
	)
	match := make([][]bool, nMarkers)
	for m := range match {
		match[m] = make([]bool, nStates)
		match[m][1] = true // state 1 matches everywhere
		match[m][3] = m < 2
	}
	h := newHmmScratch(nMarkers, nStates)
	h.posteriors(match, nMarkers, nStates, 1e-4, 1e-3)
	for m := 0; m < nMarkers; m++ {
		for j := 0; j < nStates; j++ {
			if j != 1 {
				expect.True(t, h.post[m][j] < h.post[m][1],
					"m=%d: state %d (%v) >= state 1 (%v)", m, j, h.post[m][j], h.post[m][1])
			}
		}
	}
}

func TestPosteriorsSingleState(t *testing.T) {
	match := [][]bool{{false}, {true}, {false}}
	h := newHmmScratch(3, 1)
	h.posteriors(match, 3, 1, 1e-4, 1e-3)
	for m := 0; m < 3; m++ {
		expect.True(t, math.Abs(h.post[m][0]-1) < 1e-12)
	}
}
