package main

/*
bio-impute phases and imputes a cohort of diploid samples against a
phased reference panel, writing a phased VCF with per-sample ALT
dosages.

The tool has two modes:

  1. -make-ref: convert a phased reference VCF into the block-compressed
     binary panel format (.rio), which loads much faster.

       bio-impute -make-ref -ref panel.vcf.gz -out panel.rio

  2. default: impute the -targ cohort against the -ref panel.

       bio-impute -targ cohort.vcf.gz -ref panel.rio -out imputed.vcf.gz

The reference and target files must cover the same variant sites.
*/

import (
	"context"
	"flag"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bgzf"

	"github.com/grailbio/impute/encoding/refpanel"
	"github.com/grailbio/impute/encoding/vcf"
	"github.com/grailbio/impute/imp"
)

var (
	targPath    = flag.String("targ", "", "Target cohort VCF (may be gzipped); required unless -make-ref")
	refPath     = flag.String("ref", "", "Reference panel: a phased VCF or a .rio panel written by -make-ref; required")
	outPath     = flag.String("out", "", "Output path: VCF (bgzipped when it ends in .gz), or the .rio panel in -make-ref mode; required")
	statsPath   = flag.String("stats", "", "Optional per-window stats TSV path")
	makeRef     = flag.Bool("make-ref", false, "Convert -ref VCF into a binary panel at -out and exit")
	parallelism = flag.Int("parallelism", 0, "Maximum number of worker goroutines per window; 0 = runtime.NumCPU()")
)

// cohort is a fully loaded VCF: the sample list plus one record per
// site.
type cohort struct {
	samples []string
	sites   []vcf.Site
	alleles [][]uint8 // [site][2*sample]
}

func (c *cohort) nHaps() int { return 2 * len(c.samples) }

// readVCF loads an entire VCF, rejecting missing genotypes: both the
// panel and the cohort must be fully observed, since the core phases
// and re-estimates observed alleles rather than filling gaps.
func readVCF(ctx context.Context, path string) (*cohort, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	sc := vcf.NewScanner(r)
	c := &cohort{samples: sc.Samples()}
	var rec vcf.Record
	e := errors.Once{}
scan:
	for sc.Scan(&rec) {
		alleles := make([]uint8, len(rec.Alleles))
		for i, a := range rec.Alleles {
			if a == vcf.MissingAllele {
				e.Set(errors.E("missing genotype at", rec.Chrom, rec.Pos,
					"in", path, "(missing genotypes are not supported)"))
				break scan
			}
			alleles[i] = uint8(a)
		}
		site := rec.Site
		site.Alt = append([]string(nil), rec.Alt...)
		c.sites = append(c.sites, site)
		c.alleles = append(c.alleles, alleles)
	}
	e.Set(sc.Err())
	e.Set(in.Close(ctx))
	return c, e.Err()
}

func readPanel(ctx context.Context, path string) (*cohort, error) {
	if !strings.HasSuffix(path, ".rio") {
		return readVCF(ctx, path)
	}
	r, err := refpanel.NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	c := &cohort{
		samples: r.Samples(),
		sites:   make([]vcf.Site, 0, r.NSites()),
		alleles: make([][]uint8, 0, r.NSites()),
	}
	for r.Scan() {
		site, alleles := r.Get()
		c.sites = append(c.sites, *site)
		c.alleles = append(c.alleles, append([]uint8(nil), alleles...))
	}
	if err := r.Close(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func writePanel(ctx context.Context, path string, c *cohort) error {
	w, err := refpanel.NewWriter(ctx, path, c.samples)
	if err != nil {
		return err
	}
	for i := range c.sites {
		if err := w.Write(&c.sites[i], c.alleles[i]); err != nil {
			_ = w.Close(ctx)
			return err
		}
	}
	return w.Close(ctx)
}

// checkGrids verifies that the panel and the cohort cover the same
// sites in the same order.
func checkGrids(ref, targ *cohort) error {
	if len(ref.sites) != len(targ.sites) {
		return errors.E("panel has", len(ref.sites), "sites, cohort has", len(targ.sites))
	}
	for i := range ref.sites {
		if !ref.sites[i].SameSite(&targ.sites[i]) {
			return errors.E("site", i, "differs between panel and cohort:",
				ref.sites[i].Chrom, ref.sites[i].Pos, "vs", targ.sites[i].Chrom, targ.sites[i].Pos)
		}
	}
	return nil
}

func impute(ctx context.Context, ref, targ *cohort, opts imp.Opts) error {
	nMarkers := len(targ.sites)
	nTargHaps := targ.nHaps()
	outAlleles := make([][]uint8, nTargHaps)
	outAltProb := make([][]float32, nTargHaps)
	for t := range outAlleles {
		outAlleles[t] = make([]uint8, nMarkers)
		outAltProb[t] = make([]float32, nMarkers)
	}

	spans := imp.Windows(nMarkers, opts.WindowMarkers, opts.OverlapMarkers)
	var (
		allStats   imp.Stats
		spanStats  []imp.Stats
		statsSpans []imp.Span
	)
	for _, sp := range spans {
		win := imp.NewWindow(ref.nHaps(), nTargHaps)
		for m := sp.Start; m < sp.End; m++ {
			if err := win.AddMarker(ref.alleles[m], targ.alleles[m], targ.sites[m].NAlleles()); err != nil {
				return errors.E(err, "window", sp.Start, "-", sp.End)
			}
		}
		res := imp.NewImputer(win, opts).Run(*parallelism)
		for t := 0; t < nTargHaps; t++ {
			for m := sp.OutStart; m < sp.OutEnd; m++ {
				outAlleles[t][m] = res.Alleles[t][m-sp.Start]
				outAltProb[t][m] = res.AltProb[t][m-sp.Start]
			}
		}
		allStats = allStats.Merge(res.Stats)
		spanStats = append(spanStats, res.Stats)
		statsSpans = append(statsSpans, sp)
		log.Printf("window [%d, %d): %d targets, %d states, %d fallbacks",
			sp.Start, sp.End, res.Stats.Targets, res.Stats.States, res.Stats.Fallbacks)
	}
	log.Printf("Stats: %+v", allStats)

	if err := writeImputed(ctx, *outPath, targ, outAlleles, outAltProb); err != nil {
		return err
	}
	if *statsPath != "" {
		if err := writeStats(ctx, *statsPath, statsSpans, spanStats); err != nil {
			return err
		}
	}
	return nil
}

func writeImputed(ctx context.Context, path string, targ *cohort, alleles [][]uint8, altProb [][]float32) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	var w io.Writer = out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		bw := bgzf.NewWriter(w, *parallelism)
		defer func() {
			if e := bw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = bw
	}
	vw := vcf.NewWriter(w, targ.samples, true)
	if err = vw.WriteHeader("bio-impute"); err != nil {
		return err
	}
	nSamples := len(targ.samples)
	gt := make([]uint8, 2*nSamples)
	ds := make([]float32, nSamples)
	for m := range targ.sites {
		for s := 0; s < nSamples; s++ {
			gt[2*s] = alleles[2*s][m]
			gt[2*s+1] = alleles[2*s+1][m]
			ds[s] = altProb[2*s][m] + altProb[2*s+1][m]
		}
		if err = vw.Write(&targ.sites[m], gt, ds); err != nil {
			return err
		}
	}
	return vw.Flush()
}

func writeStats(ctx context.Context, path string, spans []imp.Span, stats []imp.Stats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	tw := tsv.NewWriter(out.Writer(ctx))
	tw.WriteString("start\tend\ttargets\tstates\tfallbacks\tsegments")
	if err = tw.EndLine(); err != nil {
		return err
	}
	for i, sp := range spans {
		tw.WriteUint32(uint32(sp.Start))
		tw.WriteUint32(uint32(sp.End))
		tw.WriteUint32(uint32(stats[i].Targets))
		tw.WriteUint32(uint32(stats[i].States))
		tw.WriteUint32(uint32(stats[i].Fallbacks))
		tw.WriteUint32(uint32(stats[i].Segments))
		if err = tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func main() {
	opts := imp.DefaultOpts
	flag.IntVar(&opts.MaxStates, "states", imp.DefaultOpts.MaxStates, "Max composite reference haplotypes (HMM states) per target haplotype")
	flag.IntVar(&opts.StepMarkers, "step-markers", imp.DefaultOpts.StepMarkers, "Markers per IBS step")
	flag.Int64Var(&opts.Seed, "seed", imp.DefaultOpts.Seed, "Random seed for the no-IBS-neighbor fallback")
	flag.Float64Var(&opts.ErrRate, "err", imp.DefaultOpts.ErrRate, "HMM allele mismatch probability")
	flag.Float64Var(&opts.SwitchProb, "switch-prob", imp.DefaultOpts.SwitchProb, "HMM per-marker state switch probability")
	flag.IntVar(&opts.WindowMarkers, "window-markers", imp.DefaultOpts.WindowMarkers, "Markers per sliding window")
	flag.IntVar(&opts.OverlapMarkers, "overlap-markers", imp.DefaultOpts.OverlapMarkers, "Markers each window extends past its output range, per side")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *parallelism <= 0 {
		*parallelism = runtime.NumCPU()
	}
	if *refPath == "" || *outPath == "" {
		log.Fatal("-ref and -out are required")
	}
	if *makeRef {
		c, err := readVCF(ctx, *refPath)
		if err != nil {
			log.Fatalf("read %s: %v", *refPath, err)
		}
		if err := writePanel(ctx, *outPath, c); err != nil {
			log.Fatalf("write %s: %v", *outPath, err)
		}
		log.Printf("Wrote %d sites, %d samples to %s", len(c.sites), len(c.samples), *outPath)
		return
	}
	if *targPath == "" {
		log.Fatal("-targ is required")
	}
	ref, err := readPanel(ctx, *refPath)
	if err != nil {
		log.Fatalf("read %s: %v", *refPath, err)
	}
	log.Printf("Panel: %d sites, %d haplotypes", len(ref.sites), ref.nHaps())
	targ, err := readVCF(ctx, *targPath)
	if err != nil {
		log.Fatalf("read %s: %v", *targPath, err)
	}
	log.Printf("Cohort: %d sites, %d haplotypes", len(targ.sites), targ.nHaps())
	if err := checkGrids(ref, targ); err != nil {
		log.Fatal(err)
	}
	if err := impute(ctx, ref, targ, opts); err != nil {
		log.Fatal(err)
	}
	log.Printf("All done")
}
