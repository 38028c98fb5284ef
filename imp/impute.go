// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package imp

import (
	"runtime"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Result holds the per-target output of one window.
type Result struct {
	// Alleles[t][m] is the posterior best-guess allele of target
	// haplotype t at marker m.
	Alleles [][]uint8
	// AltProb[t][m] is the posterior probability that target haplotype
	// t carries a non-reference allele at marker m.
	AltProb [][]float32
	// Stats is the merged work counters of all workers.
	Stats Stats
}

// Imputer drives the core for every target haplotype of one window:
// coded steps and the bidirectional IBS index are built once and shared
// read-only; each worker owns private composite-builder and HMM
// scratch.
type Imputer struct {
	src   Haps
	steps *CodedSteps
	ibs   *IbsIndex
	opts  Opts
}

// NewImputer builds the shared step index and IBS tables for src.
func NewImputer(src Haps, opts Opts) *Imputer {
	if opts.MaxStates < 1 {
		log.Panicf("imp: MaxStates %d < 1", opts.MaxStates)
	}
	steps := NewCodedSteps(src, opts.StepMarkers)
	return &Imputer{
		src:   src,
		steps: steps,
		ibs:   NewIbsIndex(src, steps),
		opts:  opts,
	}
}

// Run processes all target haplotypes with at most parallelism worker
// goroutines (0 means runtime.NumCPU()) and returns the assembled
// result.  Output is deterministic and independent of parallelism.
func (ip *Imputer) Run(parallelism int) *Result {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	nTarg := ip.src.NHaps() - ip.src.NRefHaps()
	nMarkers := ip.src.NMarkers()
	res := &Result{
		Alleles: make([][]uint8, nTarg),
		AltProb: make([][]float32, nTarg),
	}
	if parallelism > nTarg {
		parallelism = nTarg
	}
	if nTarg == 0 {
		return res
	}
	var (
		mu    sync.Mutex
		stats Stats
	)
	must(traverse.Each(parallelism, func(jobIdx int) error {
		w := newWorker(ip, nMarkers)
		startIdx := (jobIdx * nTarg) / parallelism
		endIdx := ((jobIdx + 1) * nTarg) / parallelism
		for t := startIdx; t < endIdx; t++ {
			res.Alleles[t], res.AltProb[t] = w.imputeTarget(t)
		}
		mu.Lock()
		stats = stats.Merge(w.stats)
		mu.Unlock()
		return nil
	}))
	res.Stats = stats
	return res
}

// worker is the per-goroutine scratch of Run.
type worker struct {
	ip         *Imputer
	states     *ImpStates
	hmm        *hmmScratch
	hapOut     [][]int32
	matchOut   [][]bool
	alleleProb []float64
	stats      Stats
}

func newWorker(ip *Imputer, nMarkers int) *worker {
	k := ip.opts.MaxStates
	w := &worker{
		ip:         ip,
		states:     NewImpStates(ip.src, ip.steps, ip.ibs, ip.opts),
		hmm:        newHmmScratch(nMarkers, k),
		hapOut:     make([][]int32, nMarkers),
		matchOut:   make([][]bool, nMarkers),
		alleleProb: make([]float64, maxWindowAlleles+1),
	}
	for m := 0; m < nMarkers; m++ {
		w.hapOut[m] = make([]int32, k)
		w.matchOut[m] = make([]bool, k)
	}
	return w
}

func (w *worker) imputeTarget(t int) ([]uint8, []float32) {
	src := w.ip.src
	nMarkers := src.NMarkers()
	shifted := src.NRefHaps() + t
	alleles := make([]uint8, nMarkers)
	altProb := make([]float32, nMarkers)

	w.stats.Targets++
	nStates := w.states.Materialize(t, w.hapOut, w.matchOut)
	w.stats.States += nStates
	if w.states.FellBack() {
		w.stats.Fallbacks++
	}
	for c := 0; c < nStates; c++ {
		w.stats.Segments += w.states.NSegments(c)
	}
	if nStates == 0 {
		// No reference haplotypes; pass the observed alleles through.
		for m := 0; m < nMarkers; m++ {
			a := src.Allele(m, shifted)
			alleles[m] = uint8(a)
			if a != 0 {
				altProb[m] = 1
			}
		}
		return alleles, altProb
	}

	w.hmm.posteriors(w.matchOut, nMarkers, nStates, w.ip.opts.ErrRate, w.ip.opts.SwitchProb)
	for m := 0; m < nMarkers; m++ {
		nAlleles := src.NAlleles(m)
		probs := w.alleleProb[:nAlleles]
		for a := range probs {
			probs[a] = 0
		}
		post := w.hmm.post[m]
		for j := 0; j < nStates; j++ {
			probs[src.Allele(m, int(w.hapOut[m][j]))] += post[j]
		}
		best := 0
		for a := 1; a < nAlleles; a++ {
			if probs[a] > probs[best] {
				best = a
			}
		}
		alleles[m] = uint8(best)
		altProb[m] = float32(1 - probs[0])
	}
	return alleles, altProb
}
