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
package locus

import (
	"fmt"

	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Op is a CIGAR operation as seen by a Walker.  M, = and X all map to
// OpMatch.
type Op uint8

const (
	// OpMatch consumes one read base and one reference base.
	OpMatch Op = iota
	// OpInsertion consumes read bases only.
	OpInsertion
	// OpDeletion consumes reference bases only.
	OpDeletion
	// OpSkip consumes reference bases only (spliced alignments).
	OpSkip
	// OpSoftClip consumes read bases only.
	OpSoftClip
	// OpHardClip consumes nothing.
	OpHardClip
	// OpPad consumes nothing.
	OpPad
)

var opNames = [...]string{"M", "I", "D", "N", "S", "H", "P"}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

func opFromCigar(t sam.CigarOpType) (Op, error) {
	switch t {
	case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
		return OpMatch, nil
	case sam.CigarInsertion:
		return OpInsertion, nil
	case sam.CigarDeletion:
		return OpDeletion, nil
	case sam.CigarSkipped:
		return OpSkip, nil
	case sam.CigarSoftClipped:
		return OpSoftClip, nil
	case sam.CigarHardClipped:
		return OpHardClip, nil
	case sam.CigarPadded:
		return OpPad, nil
	}
	return 0, errors.Wrapf(ErrMalformedCigar, "unsupported CIGAR operation %v", t)
}

type cigarElem struct {
	op Op
	n  int
}

// Walker moves one read along the reference, one reference base per Step.
//
// After a successful Step, the walker stands on reference position Pos(),
// which is aligned to read base ReadOffset() (for OpMatch) or to nothing (for
// OpDeletion and OpSkip).
//
// In extended mode the walker also remembers an insertion or deletion that
// immediately precedes the current reference base.  The event is set when the
// walker steps over it and stays visible for one more Step: HadIndel() is true
// while the walker stands on the base after the event, which is also when the
// driver reports the event at the preceding base.
type Walker struct {
	read     *sam.Record
	sample   int
	extended bool
	elems    []cigarElem

	cigarIdx     int
	counter      int // bases of elems[cigarIdx] consumed so far
	op           Op  // operation of the current element
	readOffset   int
	genomeOffset int
	exhausted    bool

	eventType  EventType
	eventLen   int
	eventStart int
	eventBases []byte
	eventDelay int

	seq []byte // expanded read bases, filled on the first insertion
}

// NewWalker creates a walker for read r, which belongs to the given sample
// index.  If extended is set, the walker tracks indel events.  It returns an
// error wrapping ErrMalformedCigar for an unsupported CIGAR operation, or for
// two indels with no aligned base between them.
//
// The walker is positioned before the read; Step must be called to reach its
// first reference base.
func NewWalker(r *sam.Record, sample int, extended bool) (*Walker, error) {
	w := &Walker{
		read:         r,
		sample:       sample,
		extended:     extended,
		elems:        make([]cigarElem, len(r.Cigar)),
		cigarIdx:     -1,
		readOffset:   -1,
		genomeOffset: -1,
		eventLen:     -1,
		eventStart:   -1,
	}
	afterIndel := false // an indel with no M or N since
	for i, co := range r.Cigar {
		op, err := opFromCigar(co.Type())
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", r.Name)
		}
		w.elems[i] = cigarElem{op: op, n: co.Len()}
		if co.Len() == 0 {
			continue
		}
		switch op {
		case OpInsertion, OpDeletion:
			if afterIndel {
				return nil, errors.Wrapf(ErrMalformedCigar, "read %s: adjacent indels in %v", r.Name, r.Cigar)
			}
			afterIndel = true
		case OpMatch, OpSkip:
			afterIndel = false
		}
	}
	return w, nil
}

// Read returns the read.
func (w *Walker) Read() *sam.Record { return w.read }

// Sample returns the sample index of the read.
func (w *Walker) Sample() int { return w.sample }

// ReadOffset returns the index of the last read base consumed, -1 if none.
func (w *Walker) ReadOffset() int { return w.readOffset }

// GenomeOffset returns the current offset from the alignment start.
func (w *Walker) GenomeOffset() int { return w.genomeOffset }

// Pos returns the 0-based reference position the walker stands on.
func (w *Walker) Pos() int { return w.read.Pos + w.genomeOffset }

// Op returns the operation of the current CIGAR element.  After the read is
// exhausted, it is the operation of the last element.
func (w *Walker) Op() Op { return w.op }

// Exhausted reports whether Step has run past the end of the read.
func (w *Walker) Exhausted() bool { return w.exhausted }

// HadIndel reports whether an indel event immediately precedes the current
// reference base.  Always false unless the walker is in extended mode.
func (w *Walker) HadIndel() bool { return w.eventLen > 0 }

// Event returns the pending indel event.
//
// REQUIRES: HadIndel()
func (w *Walker) Event() ExtendedEventElement {
	return ExtendedEventElement{
		Read:   w.read,
		Offset: w.eventStart,
		Length: w.eventLen,
		Bases:  w.eventBases,
		Type:   w.eventType,
		Sample: w.sample,
	}
}

func (w *Walker) String() string {
	return fmt.Sprintf("%s ro=%d go=%d ci=%d cc=%d op=%v", w.read.Name, w.readOffset, w.genomeOffset, w.cigarIdx, w.counter, w.op)
}

// Step advances the walker by one reference base and returns the operation
// that consumed it.  It returns false once the read has no reference base
// left.  In extended mode, the first such call on a read whose last event is
// still visible moves the walker one more base so that the event can be
// reported; the event is forgotten on the call after that.
func (w *Walker) Step() (Op, bool) {
	if w.exhausted {
		return w.stepPastEnd()
	}
	for {
		if w.cigarIdx < 0 || w.counter >= w.elems[w.cigarIdx].n {
			if w.cigarIdx+1 >= len(w.elems) {
				w.exhausted = true
				return w.stepPastEnd()
			}
			w.cigarIdx++
			w.counter = 0
			w.op = w.elems[w.cigarIdx].op
			continue
		}
		e := w.elems[w.cigarIdx]
		switch e.op {
		case OpHardClip, OpPad:
			w.counter = e.n
		case OpInsertion:
			if w.extended {
				w.setEvent(Insertion, e.n)
				w.eventBases = w.bases(w.readOffset+1, w.readOffset+1+e.n)
			}
			fallthrough
		case OpSoftClip:
			w.counter = e.n
			w.readOffset += e.n
		case OpDeletion:
			if w.extended && w.counter == 0 {
				w.setEvent(Deletion, e.n)
			}
			fallthrough
		case OpSkip:
			w.counter++
			w.genomeOffset++
			w.decayEvent()
			return e.op, true
		case OpMatch:
			w.counter++
			w.readOffset++
			w.genomeOffset++
			w.decayEvent()
			return e.op, true
		}
	}
}

func (w *Walker) stepPastEnd() (Op, bool) {
	if w.extended && w.eventDelay > 0 {
		w.genomeOffset++
		w.decayEvent()
	} else {
		w.clearEvent()
	}
	return w.op, false
}

// setEvent records an event starting after the current read offset.  The
// delay of 2 covers the step that lands on the next reference base, plus the
// step after it.
func (w *Walker) setEvent(t EventType, n int) {
	w.eventType = t
	w.eventLen = n
	w.eventStart = w.readOffset
	w.eventBases = nil
	w.eventDelay = 2
}

func (w *Walker) decayEvent() {
	if w.eventDelay == 0 {
		return
	}
	w.eventDelay--
	if w.eventDelay == 0 {
		w.clearEvent()
	}
}

func (w *Walker) clearEvent() {
	w.eventType = NoEvent
	w.eventLen = -1
	w.eventStart = -1
	w.eventBases = nil
	w.eventDelay = 0
}

// bases returns the read bases [start, end), clipped to the stored sequence.
func (w *Walker) bases(start, end int) []byte {
	if w.seq == nil {
		w.seq = w.read.Seq.Expand()
	}
	if end > len(w.seq) {
		end = len(w.seq)
	}
	if start >= end {
		return []byte{}
	}
	return w.seq[start:end]
}
