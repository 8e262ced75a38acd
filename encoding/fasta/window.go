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
package fasta

// DefaultWindowSize is the default number of bases a Window caches.
const DefaultWindowSize = 1 << 16

// Window caches a stretch of one sequence of a Fasta, for callers that read
// bases mostly left to right, one at a time.
type Window struct {
	fa   Fasta
	size uint64

	seqName string
	seqLen  uint64
	start   uint64
	bases   string
}

// NewWindow creates a Window over fa that reads size bases at a time.  size
// <= 0 selects DefaultWindowSize.
func NewWindow(fa Fasta, size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{fa: fa, size: uint64(size)}
}

// Base returns the base at 0-based position pos of seqName, or 'N' if the
// sequence or the position does not exist.
func (w *Window) Base(seqName string, pos int) byte {
	if pos < 0 {
		return 'N'
	}
	p := uint64(pos)
	if seqName != w.seqName {
		n, err := w.fa.Len(seqName)
		if err != nil {
			return 'N'
		}
		w.seqName, w.seqLen, w.bases = seqName, n, ""
	}
	if p >= w.seqLen {
		return 'N'
	}
	if p < w.start || p >= w.start+uint64(len(w.bases)) {
		end := p + w.size
		if end > w.seqLen {
			end = w.seqLen
		}
		bases, err := w.fa.Get(seqName, p, end)
		if err != nil {
			return 'N'
		}
		w.start, w.bases = p, bases
	}
	return w.bases[p-w.start]
}
