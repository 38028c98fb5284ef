// Package imp implements the IBS state-selection core used for phasing
// and imputation: a coded-step index over markers, bidirectional
// PBWT-based IBS neighbor tables, and a bounded composite-haplotype
// builder whose output states feed a Li-Stephens HMM.
package imp

import (
	"fmt"

	"github.com/grailbio/base/log"
)

// Haps provides phased allele data for one window.  Haplotype indices
// [0, NRefHaps()) are reference haplotypes; [NRefHaps(), NHaps()) are
// target haplotypes.  Implementations must be immutable for the
// lifetime of the window and safe for concurrent readers.
type Haps interface {
	// NMarkers returns the number of markers in the window.
	NMarkers() int
	// NHaps returns the total number of haplotypes.
	NHaps() int
	// NRefHaps returns the number of reference haplotypes.
	NRefHaps() int
	// NAlleles returns the number of alleles at marker m (>= 1).
	NAlleles(m int) int
	// Allele returns the allele carried by haplotype h at marker m,
	// in [0, NAlleles(m)).
	Allele(m, h int) int
}

// maxWindowAlleles bounds the per-marker allele count so that a step's
// allele sequence packs into one byte per marker when coding steps.
const maxWindowAlleles = 255

// Window is an in-memory Haps implementation holding the reference and
// target haplotypes of one marker window, stored marker-major.
type Window struct {
	nRefHaps int
	nHaps    int
	alleles  []uint8 // [m*nHaps + h]
	nAlleles []int32 // per marker
}

// NewWindow returns an empty window over nRefHaps reference and
// nTargHaps target haplotypes.  Markers are added with AddMarker.
func NewWindow(nRefHaps, nTargHaps int) *Window {
	if nRefHaps < 0 || nTargHaps < 0 {
		log.Panicf("imp: negative haplotype count (%d, %d)", nRefHaps, nTargHaps)
	}
	return &Window{nRefHaps: nRefHaps, nHaps: nRefHaps + nTargHaps}
}

// AddMarker appends one marker.  ref holds the alleles of the reference
// haplotypes, targ those of the target haplotypes; all values must lie
// in [0, nAlleles).  Unlike the core accessors, AddMarker reports bad
// file-derived data as an error rather than crashing.
func (w *Window) AddMarker(ref, targ []uint8, nAlleles int) error {
	if nAlleles < 1 || nAlleles > maxWindowAlleles {
		return fmt.Errorf("marker %d: allele count %d outside [1, %d]",
			len(w.nAlleles), nAlleles, maxWindowAlleles)
	}
	if len(ref) != w.nRefHaps || len(targ) != w.nHaps-w.nRefHaps {
		return fmt.Errorf("marker %d: got %d+%d haplotypes, want %d+%d",
			len(w.nAlleles), len(ref), len(targ), w.nRefHaps, w.nHaps-w.nRefHaps)
	}
	for _, a := range ref {
		if int(a) >= nAlleles {
			return fmt.Errorf("marker %d: reference allele %d outside [0, %d)",
				len(w.nAlleles), a, nAlleles)
		}
	}
	for _, a := range targ {
		if int(a) >= nAlleles {
			return fmt.Errorf("marker %d: target allele %d outside [0, %d)",
				len(w.nAlleles), a, nAlleles)
		}
	}
	w.alleles = append(w.alleles, ref...)
	w.alleles = append(w.alleles, targ...)
	w.nAlleles = append(w.nAlleles, int32(nAlleles))
	return nil
}

// NMarkers implements Haps.
func (w *Window) NMarkers() int { return len(w.nAlleles) }

// NHaps implements Haps.
func (w *Window) NHaps() int { return w.nHaps }

// NRefHaps implements Haps.
func (w *Window) NRefHaps() int { return w.nRefHaps }

// NAlleles implements Haps.
func (w *Window) NAlleles(m int) int { return int(w.nAlleles[m]) }

// Allele implements Haps.
func (w *Window) Allele(m, h int) int {
	return int(w.alleles[m*w.nHaps+h])
}
