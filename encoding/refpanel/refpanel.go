// Package refpanel reads and writes the block-compressed binary
// reference panel format.  A panel file is a recordio file with a zstd
// transformer: one record per variant site holding the site metadata
// and the phased reference haplotype alleles, and a trailer with the
// sample list and record count so readers can size their buffers up
// front.
package refpanel

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/grailbio/impute/encoding/vcf"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "refpanel-version"
	fileVersion       = "RP_V1"
)

// trailer is stored in the trailer section of the recordio file.
type trailer struct {
	// Samples is the panel sample list; the panel has 2*len(Samples)
	// haplotypes.
	Samples []string
	// NSites is the number of site records in the body.
	NSites int
}

// siteRecord is the gob payload of one body record.
type siteRecord struct {
	Site vcf.Site
	// Alleles holds two phased alleles per sample.
	Alleles []uint8
}

// Writer writes a reference panel file.  Sites must be appended in
// genomic order.
type Writer struct {
	out     file.File
	w       recordio.Writer
	nHaps   int
	nSites  int
	samples []string
}

// NewWriter creates path and returns a panel writer for the given
// samples.
func NewWriter(ctx context.Context, path string, samples []string) (*Writer, error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "refpanel create", path)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	return &Writer{out: out, w: w, nHaps: 2 * len(samples), samples: samples}, nil
}

// Write appends one site with its phased reference alleles (two per
// sample, in sample order).
func (w *Writer) Write(site *vcf.Site, alleles []uint8) error {
	if len(alleles) != w.nHaps {
		return errors.E("refpanel: got", len(alleles), "alleles, want", w.nHaps)
	}
	b := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(b).Encode(siteRecord{Site: *site, Alleles: alleles}); err != nil {
		return err
	}
	w.w.Append(b.Bytes())
	w.nSites++
	return nil
}

// Close writes the trailer and closes the file.  It must be called
// exactly once, after all sites have been written.
func (w *Writer) Close(ctx context.Context) error {
	b := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(b).Encode(trailer{Samples: w.samples, NSites: w.nSites}); err != nil {
		return err
	}
	w.w.SetTrailer(b.Bytes())
	e := errors.Once{}
	e.Set(w.w.Finish())
	e.Set(w.out.Close(ctx))
	return e.Err()
}

// Reader reads a reference panel file written by Writer.
type Reader struct {
	in      file.File
	r       recordio.Scanner
	samples []string
	nSites  int
	err     error

	rec siteRecord // last record read by Scan
}

// NewReader opens the panel at path and reads its header and trailer.
func NewReader(ctx context.Context, path string) (*Reader, error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "refpanel open", path)
	}
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			if v, ok := kv.Value.(string); !ok || v != fileVersion {
				_ = in.Close(ctx)
				return nil, errors.E("refpanel: version mismatch in", path, ": got", kv.Value, "want", fileVersion)
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		_ = in.Close(ctx)
		return nil, errors.E("refpanel:", fileVersionHeader, "not found in", path)
	}
	var t trailer
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&t); err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, "refpanel trailer", path)
	}
	return &Reader{in: in, r: r, samples: t.Samples, nSites: t.NSites}, nil
}

// Samples returns the panel sample list.
func (r *Reader) Samples() []string { return r.samples }

// NSites returns the number of site records in the file.
func (r *Reader) NSites() int { return r.nSites }

// Scan reads the next site record.
func (r *Reader) Scan() bool {
	if r.err != nil || !r.r.Scan() {
		return false
	}
	r.rec = siteRecord{}
	if err := gob.NewDecoder(bytes.NewReader(r.r.Get().([]byte))).Decode(&r.rec); err != nil {
		r.err = errors.E(err, "refpanel record decode")
		return false
	}
	return true
}

// Get yields the site and alleles read by the last successful Scan.
// The returned slices are owned by the reader until the next Scan.
func (r *Reader) Get() (*vcf.Site, []uint8) {
	return &r.rec.Site, r.rec.Alleles
}

// Close closes the reader.  It must be called exactly once.
func (r *Reader) Close(ctx context.Context) error {
	e := errors.Once{}
	e.Set(r.err)
	e.Set(r.r.Err())
	e.Set(r.in.Close(ctx))
	return e.Err()
}
