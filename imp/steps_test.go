package imp

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

// makeWindow builds a test window from marker-major rows.  Each row has
// one digit per haplotype; the first nRefHaps columns are reference
// haplotypes.
func makeWindow(t testing.TB, nRefHaps int, rows ...string) *Window {
	var nHaps int
	if len(rows) > 0 {
		nHaps = len(rows[0])
	}
	w := NewWindow(nRefHaps, nHaps-nRefHaps)
	for _, row := range rows {
		nAlleles := 1
		alleles := make([]uint8, len(row))
		for i := 0; i < len(row); i++ {
			a := int(row[i] - '0')
			alleles[i] = uint8(a)
			if a+1 > nAlleles {
				nAlleles = a + 1
			}
		}
		if err := w.AddMarker(alleles[:nRefHaps], alleles[nRefHaps:], nAlleles); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func TestCodedStepsPartition(t *testing.T) {
	w := makeWindow(t, 3,
		"010",
		"011",
		"100",
		"110",
		"001")
	cs := NewCodedSteps(w, 2)
	expect.EQ(t, cs.NSteps(), 3)
	expect.EQ(t, cs.StepStart(0), 0)
	expect.EQ(t, cs.StepStart(1), 2)
	expect.EQ(t, cs.StepStart(2), 4)
	expect.EQ(t, cs.StepStart(3), 5)
}

func TestCodedStepsGrouping(t *testing.T) {
	// Step 0 covers markers 0-1: hap sequences 00, 11, 01, 01.
	// Step 1 covers marker 2: 0, 0, 1, 0.
	w := makeWindow(t, 4,
		"0100",
		"0111",
		"0010")
	cs := NewCodedSteps(w, 2)
	expect.EQ(t, cs.NSteps(), 2)

	expect.EQ(t, cs.NCodes(0), 3)
	expect.EQ(t, cs.Code(0, 0), int32(0)) // first distinct sequence
	expect.EQ(t, cs.Code(0, 1), int32(1))
	expect.EQ(t, cs.Code(0, 2), int32(2))
	expect.EQ(t, cs.Code(0, 3), cs.Code(0, 2)) // 01 == 01

	expect.EQ(t, cs.NCodes(1), 2)
	expect.EQ(t, cs.Code(1, 0), cs.Code(1, 1))
	expect.EQ(t, cs.Code(1, 0), cs.Code(1, 3))
	expect.NEQ(t, cs.Code(1, 0), cs.Code(1, 2))
}

func TestCodedStepsSingleMarkerSteps(t *testing.T) {
	w := makeWindow(t, 2,
		"021",
		"110",
		"200")
	cs := NewCodedSteps(w, 1)
	expect.EQ(t, cs.NSteps(), 3)
	for s := 0; s < 3; s++ {
		expect.EQ(t, cs.StepStart(s), s)
		// With one marker per step, codes group exactly by allele.
		for h1 := 0; h1 < 3; h1++ {
			for h2 := 0; h2 < 3; h2++ {
				same := w.Allele(s, h1) == w.Allele(s, h2)
				expect.EQ(t, cs.Code(s, h1) == cs.Code(s, h2), same, "step %d haps %d,%d", s, h1, h2)
			}
		}
	}
}

func TestCodedStepsWideStep(t *testing.T) {
	// A step wider than the window clamps to one step.
	w := makeWindow(t, 2,
		"01",
		"01",
		"10")
	cs := NewCodedSteps(w, 100)
	expect.EQ(t, cs.NSteps(), 1)
	expect.EQ(t, cs.StepStart(0), 0)
	expect.EQ(t, cs.StepStart(1), 3)
	expect.EQ(t, cs.NCodes(0), 2)
}

func TestCodedStepsEmptyWindow(t *testing.T) {
	w := NewWindow(0, 0)
	cs := NewCodedSteps(w, 4)
	expect.EQ(t, cs.NSteps(), 0)
	expect.EQ(t, cs.StepStart(0), 0)
}
