package imp

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/impute/ints"
	"github.com/grailbio/impute/pbwt"
)

// Dir selects the sweep direction of an IBS lookup.
type Dir int

const (
	// Fwd selects neighbors sharing a suffix of the markers up to a step.
	Fwd Dir = iota
	// Bwd selects neighbors sharing a prefix of the markers from a step on.
	Bwd
)

// IbsIndex holds, for both sweep directions, one IBS reference
// haplotype per (target haplotype, step), or -1 where none exists.
// Once built the index is read-only and may be shared across
// goroutines.
type IbsIndex struct {
	nSteps    int
	nRefHaps  int
	nTargHaps int
	fwd       *ints.Matrix // [targ][s]
	bwd       *ints.Matrix // [targ][s], s on the reversed step axis
}

// NewIbsIndex runs a forward and a backward PBWT sweep over the coded
// steps of src and records the nearest reference neighbor of every
// target haplotype at every step boundary.  The two sweeps run
// concurrently; they share no mutable state.
func NewIbsIndex(src Haps, steps *CodedSteps) *IbsIndex {
	nSteps := steps.NSteps()
	nTargHaps := src.NHaps() - src.NRefHaps()
	ix := &IbsIndex{
		nSteps:    nSteps,
		nRefHaps:  src.NRefHaps(),
		nTargHaps: nTargHaps,
		fwd:       ints.NewMatrix(nTargHaps, nSteps),
		bwd:       ints.NewMatrix(nTargHaps, nSteps),
	}
	must(traverse.Each(2, func(dir int) error {
		if dir == 0 {
			runIbsSweep(src, steps, false, ix.fwd)
		} else {
			runIbsSweep(src, steps, true, ix.bwd)
		}
		return nil
	}))
	return ix
}

func must(err error) {
	if err != nil {
		log.Panic(err)
	}
}

// Lookup returns the IBS reference haplotype recorded for target
// haplotype targHap at step s in direction dir, or -1 when none was
// found.  Step indices count forward along the marker axis for both
// directions.
func (ix *IbsIndex) Lookup(dir Dir, targHap, s int) int32 {
	if targHap < 0 || targHap >= ix.nTargHaps || s < 0 || s >= ix.nSteps {
		log.Panicf("imp: ibs lookup (%d, %d) outside %d targets x %d steps",
			targHap, s, ix.nTargHaps, ix.nSteps)
	}
	if dir == Bwd {
		s = ix.nSteps - 1 - s
	}
	return ix.tableAt(dir).Get(targHap, s)
}

// NSteps returns the number of steps covered by the index.
func (ix *IbsIndex) NSteps() int { return ix.nSteps }

func (ix *IbsIndex) tableAt(dir Dir) *ints.Matrix {
	if dir == Fwd {
		return ix.fwd
	}
	return ix.bwd
}

// ibsSweep runs one PBWT sweep over the coded steps, consuming them in
// marker order (reverse=false) or reversed (reverse=true), and fills
// out.Row(targ)[si] after each step si of the sweep.
type ibsSweep struct {
	steps    *CodedSteps
	reverse  bool
	nSteps   int
	si       int // steps consumed so far in sweep order, minus one
	nRefHaps int

	below     []int32 // per target: nearest ref at a lower position, or -1
	belowDist []int32
}

func runIbsSweep(src Haps, steps *CodedSteps, reverse bool, out *ints.Matrix) {
	nHaps := src.NHaps()
	nSteps := steps.NSteps()
	sw := &ibsSweep{
		steps:     steps,
		reverse:   reverse,
		nSteps:    nSteps,
		nRefHaps:  src.NRefHaps(),
		below:     make([]int32, nHaps-src.NRefHaps()),
		belowDist: make([]int32, nHaps-src.NRefHaps()),
	}
	u := pbwt.NewUpdater(nHaps)
	prefix := make([]int32, nHaps)
	pbwt.IdentityPrefix(prefix)
	alleles := make([]int32, nHaps)
	for si := 0; si < nSteps; si++ {
		s := sw.realStep(si)
		for h := 0; h < nHaps; h++ {
			alleles[h] = steps.Code(s, h)
		}
		nCodes := steps.NCodes(s)
		if nCodes < 1 {
			// No haplotypes; keep the (empty) permutation well formed.
			nCodes = 1
		}
		u.Update(alleles, nCodes, prefix)
		sw.si = si
		sw.record(prefix, out)
	}
}

// realStep maps a sweep index to the underlying step.
func (sw *ibsSweep) realStep(si int) int {
	if sw.reverse {
		return sw.nSteps - 1 - si
	}
	return si
}

// record scans the permutation once per direction and picks, for each
// target haplotype, the nearest reference haplotype, skipping other
// target haplotypes.  When reference neighbors exist both above and
// below at equal permutation distance, the one sharing the longer run
// of step codes with the target (walking backward in sweep order) wins;
// if that too is equal, the lower haplotype index.
func (sw *ibsSweep) record(prefix []int32, out *ints.Matrix) {
	lastRef, lastPos := int32(-1), -1
	for i, h := range prefix {
		if int(h) < sw.nRefHaps {
			lastRef, lastPos = h, i
			continue
		}
		t := int(h) - sw.nRefHaps
		sw.below[t] = lastRef
		if lastRef >= 0 {
			sw.belowDist[t] = int32(i - lastPos)
		}
	}
	lastRef, lastPos = -1, -1
	for i := len(prefix) - 1; i >= 0; i-- {
		h := prefix[i]
		if int(h) < sw.nRefHaps {
			lastRef, lastPos = h, i
			continue
		}
		t := int(h) - sw.nRefHaps
		pick := sw.below[t]
		if lastRef >= 0 {
			switch {
			case pick < 0 || int32(lastPos-i) < sw.belowDist[t]:
				pick = lastRef
			case int32(lastPos-i) == sw.belowDist[t]:
				pick = sw.pickTie(h, pick, lastRef)
			}
		}
		out.Set(t, sw.si, pick)
	}
}

// pickTie resolves an equal-distance tie between two reference
// neighbors of targ by comparing their step codes against the target's,
// walking backward from the step just consumed.  The neighbor that
// keeps matching after the other diverges wins; equal divergence falls
// back to the lower haplotype index.
func (sw *ibsSweep) pickTie(targ, ref1, ref2 int32) int32 {
	for k := sw.si; k >= 0; k-- {
		s := sw.realStep(k)
		tc := sw.steps.Code(s, int(targ))
		m1 := sw.steps.Code(s, int(ref1)) == tc
		m2 := sw.steps.Code(s, int(ref2)) == tc
		if m1 != m2 {
			if m1 {
				return ref1
			}
			return ref2
		}
		if !m1 {
			break
		}
	}
	if ref1 < ref2 {
		return ref1
	}
	return ref2
}
