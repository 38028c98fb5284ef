package imp

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestWindowsTiling(t *testing.T) {
	for _, tc := range []struct {
		nMarkers, size, overlap int
	}{
		{0, 10, 2},
		{1, 10, 2},
		{10, 10, 2},
		{11, 10, 2},
		{100, 10, 2},
		{100, 7, 3},
		{5, 100, 10},
	} {
		spans := Windows(tc.nMarkers, tc.size, tc.overlap)
		next := 0
		for _, sp := range spans {
			expect.EQ(t, sp.OutStart, next, "%+v", tc)
			expect.True(t, sp.Start <= sp.OutStart && sp.OutEnd <= sp.End, "%+v: %+v", tc, sp)
			expect.True(t, sp.OutStart < sp.OutEnd, "%+v: %+v", tc, sp)
			expect.True(t, sp.Start >= 0 && sp.End <= tc.nMarkers, "%+v: %+v", tc, sp)
			expect.True(t, sp.End-sp.Start <= tc.size, "%+v: %+v", tc, sp)
			next = sp.OutEnd
		}
		expect.EQ(t, next, tc.nMarkers, "%+v", tc)
	}
}

func TestWindowsSingleSpanKeepsAll(t *testing.T) {
	spans := Windows(50, 100, 10)
	expect.EQ(t, len(spans), 1)
	expect.EQ(t, spans[0], Span{Start: 0, End: 50, OutStart: 0, OutEnd: 50})
}

func TestWindowsBadShapePanics(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{
		{0, 0},
		{10, -1},
		{10, 5},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("size=%d overlap=%d: no panic", tc.size, tc.overlap)
				}
			}()
			Windows(100, tc.size, tc.overlap)
		}()
	}
}
