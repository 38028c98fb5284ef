package imp

import (
	"container/heap"
	"math/rand"

	"github.com/grailbio/base/log"
)

// segment tracks one composite-haplotype slot in the builder's
// priority queue.  All links are plain indices; the queue orders
// segments by the step at which the slot's current haplotype was last
// observed.
type segment struct {
	hap      int32 // reference haplotype of the slot's open segment
	start    int32 // first marker of the open segment
	lastStep int32 // queue key; may be stale until rebalanced
	slot     int32 // composite haplotype index in [0, maxStates)
}

type segQueue []segment

func (q segQueue) Len() int            { return len(q) }
func (q segQueue) Less(i, j int) bool  { return q[i].lastStep < q[j].lastStep }
func (q segQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *segQueue) Push(x interface{}) { *q = append(*q, x.(segment)) }
func (q *segQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// ImpStates converts the per-step IBS neighbors of a target haplotype
// into at most Opts.MaxStates composite reference haplotypes (mosaics
// of reference segments spanning the window) and materializes them as
// dense per-marker state matrices for the HMM.
//
// An ImpStates owns mutable scratch and serves one target haplotype at
// a time; use one per worker goroutine.  Scratch is cleared, not
// reallocated, between targets.
type ImpStates struct {
	src       Haps
	steps     *CodedSteps
	ibs       *IbsIndex
	maxStates int
	seed      int64

	lastStep map[int32]int32
	fellBack bool
	q        segQueue
	compHap  [][]int32 // per slot: reference haplotype per segment
	compEnd  [][]int32 // per slot: exclusive end marker per closed segment
	cursor   []int
}

// NewImpStates returns a builder over src using the given step index
// and IBS tables.  opts.MaxStates must be >= 1.
func NewImpStates(src Haps, steps *CodedSteps, ibs *IbsIndex, opts Opts) *ImpStates {
	if opts.MaxStates < 1 {
		log.Panicf("imp: MaxStates %d < 1", opts.MaxStates)
	}
	k := opts.MaxStates
	return &ImpStates{
		src:       src,
		steps:     steps,
		ibs:       ibs,
		maxStates: k,
		seed:      opts.Seed,
		lastStep:  make(map[int32]int32, k),
		q:         make(segQueue, 0, k),
		compHap:   make([][]int32, k),
		compEnd:   make([][]int32, k),
		cursor:    make([]int, k),
	}
}

// Materialize builds the composite haplotypes for target haplotype
// targHap (an index in [0, NHaps()-NRefHaps())) and expands them into
// hapOut and matchOut.  Row m of each matrix receives one entry per
// state j: hapOut[m][j] is the reference haplotype backing state j at
// marker m, and matchOut[m][j] reports whether that haplotype carries
// the target's allele there.  Both matrices are caller-owned and must
// have at least NMarkers() rows of at least MaxStates columns.  The
// state count is returned; it is zero only when there are no reference
// haplotypes at all.
//
// Materialize is deterministic: identical inputs and seed yield
// identical matrices.
func (is *ImpStates) Materialize(targHap int, hapOut [][]int32, matchOut [][]bool) int {
	nMarkers := is.src.NMarkers()
	nTarg := is.src.NHaps() - is.src.NRefHaps()
	if targHap < 0 || targHap >= nTarg {
		log.Panicf("imp: target haplotype %d outside [0, %d)", targHap, nTarg)
	}
	if len(hapOut) < nMarkers || len(matchOut) < nMarkers {
		log.Panicf("imp: output matrices have %d/%d rows, want >= %d",
			len(hapOut), len(matchOut), nMarkers)
	}
	is.clear()
	for s := 0; s < is.ibs.NSteps(); s++ {
		is.feed(is.ibs.Lookup(Fwd, targHap, s), int32(s))
		is.feed(is.ibs.Lookup(Bwd, targHap, s), int32(s))
	}
	is.fellBack = len(is.q) == 0
	if is.fellBack {
		is.randomStates(targHap)
	}
	nStates := len(is.q)
	for _, seg := range is.q {
		c := seg.slot
		is.compEnd[c] = append(is.compEnd[c], int32(nMarkers))
	}
	is.expand(targHap, nStates, hapOut, matchOut)
	return nStates
}

// NSegments returns the number of segments in composite haplotype c as
// of the last Materialize call.
func (is *ImpStates) NSegments(c int) int {
	return len(is.compHap[c])
}

// FellBack reports whether the last Materialize call found no IBS
// neighbor in either direction and used random states instead.
func (is *ImpStates) FellBack() bool {
	return is.fellBack
}

func (is *ImpStates) clear() {
	for h := range is.lastStep {
		delete(is.lastStep, h)
	}
	is.q = is.q[:0]
	for c := range is.compHap {
		is.compHap[c] = is.compHap[c][:0]
		is.compEnd[c] = is.compEnd[c][:0]
		is.cursor[c] = 0
	}
}

// feed records one IBS hit (hap observed at step).  Hits must arrive in
// non-decreasing step order.
func (is *ImpStates) feed(hap, step int32) {
	if hap < 0 {
		return
	}
	if _, ok := is.lastStep[hap]; ok {
		// The haplotype already backs a slot; refresh its last
		// sighting and leave the queue alone.  The queue head is
		// rebalanced lazily before the next insertion.
		is.lastStep[hap] = step
		return
	}
	for len(is.q) > 0 {
		cur := is.lastStep[is.q[0].hap]
		if cur == is.q[0].lastStep {
			break
		}
		is.q[0].lastStep = cur
		heap.Fix(&is.q, 0)
	}
	if len(is.q) < is.maxStates {
		c := int32(len(is.q))
		is.compHap[c] = append(is.compHap[c], hap)
		heap.Push(&is.q, segment{hap: hap, start: 0, lastStep: step, slot: c})
	} else {
		head := is.q[0]
		// Split midway between the evicted haplotype's last sighting
		// and the new one, so neither side of the boundary strays far
		// from its supporting IBS evidence.
		split := int32(is.steps.StepStart(int(head.lastStep+step) >> 1))
		delete(is.lastStep, head.hap)
		c := head.slot
		is.compHap[c] = append(is.compHap[c], hap)
		is.compEnd[c] = append(is.compEnd[c], split)
		is.q[0] = segment{hap: hap, start: split, lastStep: step, slot: c}
		heap.Fix(&is.q, 0)
	}
	is.lastStep[hap] = step
}

// randomStates seeds the queue with distinct random reference
// haplotypes when no IBS neighbor was found in either direction.  The
// generator is seeded from the target index, so the fallback is
// reproducible without a shared RNG.  Picks equal to the target index
// are rejected unless every reference haplotype is needed.
func (is *ImpStates) randomStates(targHap int) {
	nRefHaps := is.src.NRefHaps()
	if nRefHaps == 0 {
		return
	}
	n := is.maxStates
	if n > nRefHaps {
		n = nRefHaps
	}
	rng := rand.New(rand.NewSource(is.seed + int64(targHap)))
	for len(is.q) < n {
		hap := int32(rng.Intn(nRefHaps))
		if int(hap) == targHap && n < nRefHaps {
			continue
		}
		if _, ok := is.lastStep[hap]; ok {
			continue
		}
		c := int32(len(is.q))
		is.compHap[c] = append(is.compHap[c], hap)
		is.q = append(is.q, segment{hap: hap, start: 0, lastStep: 0, slot: c})
		is.lastStep[hap] = 0
	}
}

func (is *ImpStates) expand(targHap, nStates int, hapOut [][]int32, matchOut [][]bool) {
	nMarkers := is.src.NMarkers()
	shifted := is.src.NRefHaps() + targHap
	for m := 0; m < nMarkers; m++ {
		hapRow, matchRow := hapOut[m], matchOut[m]
		if len(hapRow) < nStates || len(matchRow) < nStates {
			log.Panicf("imp: output row %d has %d/%d columns, want >= %d",
				m, len(hapRow), len(matchRow), nStates)
		}
		targAllele := is.src.Allele(m, shifted)
		for c := 0; c < nStates; c++ {
			for int32(m) >= is.compEnd[c][is.cursor[c]] {
				is.cursor[c]++
			}
			hap := is.compHap[c][is.cursor[c]]
			hapRow[c] = hap
			matchRow[c] = targAllele == is.src.Allele(m, int(hap))
		}
	}
}
