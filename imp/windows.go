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

import "github.com/grailbio/base/log"

// Span is one sliding window over a marker axis.  [Start, End) is the
// full window handed to the core; [OutStart, OutEnd) is the
// non-overlapped middle whose results the caller keeps.  Adjacent
// spans' output ranges tile [0, nMarkers) exactly.
type Span struct {
	Start, End       int
	OutStart, OutEnd int
}

// Windows slices [0, nMarkers) into spans of at most size markers that
// extend overlap markers past their output range on each side, so
// adjacent spans share 2*overlap markers.
func Windows(nMarkers, size, overlap int) []Span {
	if size < 1 || overlap < 0 || 2*overlap >= size {
		log.Panicf("imp: bad window shape size=%d overlap=%d", size, overlap)
	}
	if nMarkers == 0 {
		return nil
	}
	stride := size - 2*overlap
	var spans []Span
	for out := 0; out < nMarkers; out += stride {
		sp := Span{
			Start:    out - overlap,
			End:      out + stride + overlap,
			OutStart: out,
			OutEnd:   out + stride,
		}
		if sp.Start < 0 {
			sp.Start = 0
		}
		if sp.End > nMarkers {
			sp.End = nMarkers
		}
		if sp.OutEnd > nMarkers {
			sp.OutEnd = nMarkers
		}
		spans = append(spans, sp)
	}
	return spans
}
