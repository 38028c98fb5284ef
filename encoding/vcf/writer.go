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
package vcf

import (
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
)

// Writer emits phased VCF records for a fixed sample set.  Genotypes
// are written with the phased separator; when per-genotype dosages are
// supplied the FORMAT becomes GT:DS.
type Writer struct {
	tw      *tsv.Writer
	out     io.Writer
	samples []string
	dosage  bool
	scratch []byte
}

// NewWriter returns a Writer emitting records for the given samples.
// If dosage is true, every Write must supply per-sample ALT dosages.
// WriteHeader must be called before the first Write.
func NewWriter(w io.Writer, samples []string, dosage bool) *Writer {
	return &Writer{tw: tsv.NewWriter(w), out: w, samples: samples, dosage: dosage}
}

// WriteHeader writes the meta lines and the #CHROM header.
func (w *Writer) WriteHeader(source string) error {
	header := "##fileformat=VCFv4.2\n" +
		"##source=" + source + "\n" +
		"##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n"
	if w.dosage {
		header += "##FORMAT=<ID=DS,Number=1,Type=Float,Description=\"Estimated ALT dose\">\n"
	}
	header += "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT"
	for _, s := range w.samples {
		header += "\t" + s
	}
	header += "\n"
	_, err := w.out.Write(gunsafe.StringToBytes(header))
	return err
}

// Write emits one record.  alleles holds two phased alleles per sample
// in sample order; dosages holds one ALT dosage per sample and must be
// nil iff the writer was created without dosage output.
func (w *Writer) Write(site *Site, alleles []uint8, dosages []float32) error {
	if len(alleles) != 2*len(w.samples) {
		return fmt.Errorf("vcf: %d alleles for %d samples", len(alleles), len(w.samples))
	}
	if w.dosage != (dosages != nil) || (w.dosage && len(dosages) != len(w.samples)) {
		return fmt.Errorf("vcf: dosage output mismatch at %s:%d", site.Chrom, site.Pos)
	}
	w.tw.WriteString(site.Chrom)
	w.tw.WriteUint32(uint32(site.Pos))
	w.tw.WriteString(site.ID)
	w.tw.WriteString(site.Ref)
	if len(site.Alt) == 0 {
		w.tw.WriteByte('.')
	} else {
		w.scratch = w.scratch[:0]
		for i, alt := range site.Alt {
			if i > 0 {
				w.scratch = append(w.scratch, ',')
			}
			w.scratch = append(w.scratch, alt...)
		}
		w.tw.WriteString(gunsafe.BytesToString(w.scratch))
	}
	w.tw.WriteByte('.')      // QUAL
	w.tw.WriteString("PASS") // FILTER
	w.tw.WriteByte('.')      // INFO
	if w.dosage {
		w.tw.WriteString("GT:DS")
	} else {
		w.tw.WriteString("GT")
	}
	for i := range w.samples {
		w.scratch = strconv.AppendInt(w.scratch[:0], int64(alleles[2*i]), 10)
		w.scratch = append(w.scratch, '|')
		w.scratch = strconv.AppendInt(w.scratch, int64(alleles[2*i+1]), 10)
		if w.dosage {
			w.scratch = append(w.scratch, ':')
			w.scratch = strconv.AppendFloat(w.scratch, float64(dosages[i]), 'f', 3, 32)
		}
		w.tw.WriteString(gunsafe.BytesToString(w.scratch))
	}
	return w.tw.EndLine()
}

// Flush flushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.tw.Flush()
}
