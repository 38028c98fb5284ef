package imp

type Opts struct {
	// MaxStates bounds the number of composite reference haplotypes
	// built per target haplotype (the HMM state count).
	MaxStates int
	// StepMarkers is the number of consecutive markers grouped into one
	// IBS lookup step.
	StepMarkers int
	// Seed seeds the per-target random fallback generator.
	Seed int64
	// ErrRate is the allele mismatch probability used by the HMM
	// emission term.
	ErrRate float64
	// SwitchProb is the per-marker probability of switching to a
	// uniformly chosen state in the HMM transition term.
	SwitchProb float64
	// WindowMarkers is the number of markers per sliding window.
	WindowMarkers int
	// OverlapMarkers is the number of markers each window extends past
	// its output range on each side; adjacent windows share
	// 2*OverlapMarkers markers.
	OverlapMarkers int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MaxStates:      280,    // Go: -states
	StepMarkers:    16,     // Go: -step-markers
	Seed:           -99999, // Go: -seed
	ErrRate:        1e-4,   // Go: -err
	SwitchProb:     4e-3,   // Go: -switch-prob
	WindowMarkers:  4000,   // Go: -window-markers
	OverlapMarkers: 200,    // Go: -overlap-markers
}
