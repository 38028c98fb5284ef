package imp

import (
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// CodedSteps partitions a window's markers into contiguous steps and
// assigns every haplotype one coded allele per step.  Two haplotypes
// share a code at step s iff they carry identical allele sequences
// across the step's markers, so a PBWT sweep over codes is equivalent
// to a sweep over the underlying markers at step granularity.
//
// Codes are interned in first-seen haplotype order, which makes the
// coding deterministic for a given window.
type CodedSteps struct {
	nHaps  int
	starts []int32 // len nSteps+1; starts[0]==0, starts[nSteps]==nMarkers
	codes  []int32 // [s*nHaps + h]
	nCodes []int32 // per step
}

// NewCodedSteps builds the step index for src, grouping stepMarkers
// consecutive markers per step.  The final step may be shorter.
func NewCodedSteps(src Haps, stepMarkers int) *CodedSteps {
	if stepMarkers < 1 {
		log.Panicf("imp: stepMarkers %d < 1", stepMarkers)
	}
	nMarkers := src.NMarkers()
	nHaps := src.NHaps()
	nSteps := (nMarkers + stepMarkers - 1) / stepMarkers
	cs := &CodedSteps{
		nHaps:  nHaps,
		starts: make([]int32, nSteps+1),
		codes:  make([]int32, nSteps*nHaps),
		nCodes: make([]int32, nSteps),
	}
	for s := 0; s < nSteps; s++ {
		cs.starts[s] = int32(s * stepMarkers)
	}
	cs.starts[nSteps] = int32(nMarkers)

	// seen maps a step-sequence hash to the haplotypes that first
	// carried each distinct sequence with that hash.  The rep list
	// disambiguates hash collisions by direct comparison.
	seen := map[uint64][]int32{}
	seq := []byte(nil)
	for s := 0; s < nSteps; s++ {
		start, end := int(cs.starts[s]), int(cs.starts[s+1])
		codes := cs.codes[s*nHaps : (s+1)*nHaps]
		for h := 0; h < nHaps; h++ {
			seq = seq[:0]
			for m := start; m < end; m++ {
				seq = append(seq, byte(src.Allele(m, h)))
			}
			hash := farm.Hash64(seq)
			code := int32(-1)
			for _, rep := range seen[hash] {
				if stepSeqEqual(src, start, end, h, int(rep)) {
					code = codes[rep]
					break
				}
			}
			if code < 0 {
				code = cs.nCodes[s]
				cs.nCodes[s]++
				seen[hash] = append(seen[hash], int32(h))
			}
			codes[h] = code
		}
		for k := range seen {
			delete(seen, k)
		}
	}
	return cs
}

func stepSeqEqual(src Haps, start, end, h1, h2 int) bool {
	for m := start; m < end; m++ {
		if src.Allele(m, h1) != src.Allele(m, h2) {
			return false
		}
	}
	return true
}

// NSteps returns the number of steps.
func (cs *CodedSteps) NSteps() int {
	return len(cs.nCodes)
}

// StepStart returns the first marker of step s.  StepStart(NSteps())
// returns the marker count, so steps cover [StepStart(s), StepStart(s+1)).
func (cs *CodedSteps) StepStart(s int) int {
	return int(cs.starts[s])
}

// Code returns the coded allele of haplotype h at step s.
func (cs *CodedSteps) Code(s, h int) int32 {
	return cs.codes[s*cs.nHaps+h]
}

// NCodes returns the number of distinct codes at step s.
func (cs *CodedSteps) NCodes(s int) int {
	return int(cs.nCodes[s])
}
