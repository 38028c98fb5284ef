// Package pbwt implements the positional Burrows-Wheeler transform
// update step.  An Updater maintains a prefix permutation of haplotype
// indices; after consuming markers 0..m, haplotypes that appear
// adjacently in the permutation share the longest common suffix of
// allele values across those markers.
//
// A backward sweep is the same operation with markers consumed in
// reverse order; no separate structure is needed.
package pbwt

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/impute/ints"
)

// Updater performs one-marker PBWT updates.  It owns per-allele scratch
// buckets that are emptied after every Update, so a single Updater can
// be reused across all markers of a sweep.  Updaters are not safe for
// concurrent use.
type Updater struct {
	nHaps   int
	buckets []ints.List
}

// NewUpdater returns an Updater for permutations of [0, nHaps).
func NewUpdater(nHaps int) *Updater {
	if nHaps < 0 {
		log.Panicf("pbwt: negative nHaps %d", nHaps)
	}
	return &Updater{nHaps: nHaps}
}

// NHaps returns the number of haplotypes.
func (u *Updater) NHaps() int {
	return u.nHaps
}

// Update rewrites prefix in place from the PBWT state just before the
// current marker to the state just after it.  alleles[h] is the allele
// carried by haplotype h at the current marker; values must lie in
// [0, nAlleles).  The rewrite is stable within each allele class: two
// haplotypes with equal alleles keep their relative order.
//
// Contract violations (nAlleles < 1, wrong-sized inputs, allele out of
// range, prefix not a permutation entry) crash the process.
func (u *Updater) Update(alleles []int32, nAlleles int, prefix []int32) {
	if nAlleles < 1 {
		log.Panicf("pbwt: nAlleles %d < 1", nAlleles)
	}
	if len(alleles) != u.nHaps || len(prefix) != u.nHaps {
		log.Panicf("pbwt: got %d alleles and %d prefix entries, want %d",
			len(alleles), len(prefix), u.nHaps)
	}
	for len(u.buckets) < nAlleles {
		u.buckets = append(u.buckets, ints.List{})
	}
	for _, h := range prefix {
		if h < 0 || int(h) >= u.nHaps {
			log.Panicf("pbwt: prefix entry %d outside [0, %d)", h, u.nHaps)
		}
		a := alleles[h]
		if a < 0 || int(a) >= nAlleles {
			log.Panicf("pbwt: allele %d at haplotype %d outside [0, %d)", a, h, nAlleles)
		}
		u.buckets[a].Append(h)
	}
	out := prefix[:0]
	for a := 0; a < nAlleles; a++ {
		out = u.buckets[a].CopyTo(out)
		u.buckets[a].Clear()
	}
}

// IdentityPrefix fills prefix with the identity permutation, the PBWT
// state before any marker has been consumed.
func IdentityPrefix(prefix []int32) {
	for i := range prefix {
		prefix[i] = int32(i)
	}
}
