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
	"math/rand"

	"github.com/grailbio/base/log"
	"github.com/grailbio/biotraverse/coord"
	"github.com/grailbio/biotraverse/encoding/bamprovider"
	"github.com/grailbio/biotraverse/interval"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Stats counts what an Iterator has done so far.
type Stats struct {
	// ReadsSeen counts the reads pulled from the input.
	ReadsSeen int
	// ReadsSkipped counts unmapped reads, reads without a CIGAR, and reads
	// that align to no reference base.
	ReadsSkipped int
	// ReadsAdmitted counts the reads that were buffered.
	ReadsAdmitted int
	// ReadsDownsampled counts the reads dropped on arrival, either by
	// reservoir sampling or because the buffer was full.
	ReadsDownsampled int
	// ReadsEvicted counts buffered reads removed to make room.
	ReadsEvicted int
	// LociEmitted counts normal pileups.
	LociEmitted int
	// ExtendedLociEmitted counts extended-event pileups.
	ExtendedLociEmitted int
	// FilteredBases counts reads left out of a normal pileup by Opts.Filters.
	FilteredBases int
}

// Iterator turns a coordinate-sorted stream of reads into a stream of
// per-locus pileups.  Usage:
//
//   it := locus.NewIterator(src, header, locus.DefaultOpts)
//   for it.HasNext() {
//     ctx, err := it.Next()
//     ...
//   }
//   if err := it.Close(); err != nil { ... }
//
// Every buffered read is stepped one reference base per locus, so all active
// walkers stand on the same position.  Loci are produced in increasing order,
// except that an extended-event pileup for position p is produced after the
// normal pileup at p.
//
// An Iterator is not thread-safe.
type Iterator struct {
	src      bamprovider.Iterator
	opts     Opts
	rng      *rand.Rand
	samples  *sampleIndex
	states   readStates
	down     *downsampler
	overflow *OverflowTracker

	peeked   *sam.Record
	srcDone  bool
	last     coord.Coord
	haveLast bool

	hasExtendedEvents bool
	next              *AlignmentContext
	err               error
	stats             Stats
}

// NewIterator creates an Iterator over src.  header supplies the read groups
// that map reads to samples; it may be nil.  The Iterator takes ownership of
// src.
func NewIterator(src bamprovider.Iterator, header *sam.Header, opts Opts) *Iterator {
	it := &Iterator{
		src:      src,
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		samples:  newSampleIndex(header),
		down:     newDownsampler(opts.MaxReadsPerSample, opts.DownsampleBy),
		overflow: NewOverflowTracker(opts.MaxReadsPerSample, opts.MaxOverflowWarnings),
	}
	it.overflow.metrics = opts.Metrics
	if err := opts.validate(); err != nil {
		it.err = err
	}
	return it
}

// HasNext reports whether Next will return an AlignmentContext.  Calling it
// repeatedly without Next has no further effect.
func (it *Iterator) HasNext() bool {
	if it.next == nil && it.err == nil {
		it.load()
	}
	if it.next == nil {
		it.overflow.Flush()
	}
	return it.next != nil
}

// Next returns the next AlignmentContext.  It returns the traversal error, or
// ErrExhausted if there is none, once HasNext is false.
func (it *Iterator) Next() (*AlignmentContext, error) {
	if !it.HasNext() {
		if it.err != nil {
			return nil, it.err
		}
		return nil, ErrExhausted
	}
	c := it.next
	it.next = nil
	if c.IsExtended() {
		it.stats.ExtendedLociEmitted++
	} else {
		it.stats.LociEmitted++
	}
	it.opts.Metrics.incLoci(c.IsExtended())
	return c, nil
}

// Err returns the error that ended the traversal, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the input.  It returns the traversal error, if any.
func (it *Iterator) Close() error {
	it.overflow.Flush()
	if err := it.src.Close(); err != nil && it.err == nil {
		it.err = err
	}
	return it.err
}

// Samples returns the sample names, indexed by the Sample fields of the
// pileup elements.  It grows as new read groups are seen.
func (it *Iterator) Samples() []string { return it.samples.names }

// Overflow returns the iterator's overflow tracker.
func (it *Iterator) Overflow() *OverflowTracker { return it.overflow }

// Stats returns counters for the traversal so far.
func (it *Iterator) Stats() Stats { return it.stats }

func readCoord(r *sam.Record) coord.Coord {
	return coord.Coord{RefID: int32(r.Ref.ID()), Pos: int32(r.Pos)}
}

func (it *Iterator) walkerCoord(w *Walker) coord.Coord {
	return coord.Coord{RefID: int32(w.read.Ref.ID()), Pos: int32(w.Pos())}
}

// peek returns the next usable read without consuming it, or nil at the end
// of the input or on error.
func (it *Iterator) peek() *sam.Record {
	for it.peeked == nil {
		if it.srcDone || it.err != nil {
			return nil
		}
		if !it.src.Scan() {
			it.srcDone = true
			if err := it.src.Err(); err != nil {
				it.err = err
			}
			return nil
		}
		r := it.src.Record()
		it.stats.ReadsSeen++
		it.opts.Metrics.addReadsSeen(1)
		if r.Ref == nil || r.Flags&sam.Unmapped != 0 || len(r.Cigar) == 0 {
			it.stats.ReadsSkipped++
			continue
		}
		c := readCoord(r)
		if it.haveLast && c.LT(it.last) {
			it.err = errors.Wrapf(ErrUnsorted, "read %s at %v follows a read at %v", r.Name, c, it.last)
			return nil
		}
		it.last, it.haveLast = c, true
		it.peeked = r
	}
	return it.peeked
}

// collectPendingReads moves the reads that start at the leftmost locus from
// the input into the buffer.  If the buffer is empty, the leftmost locus is
// the start of the next read.
func (it *Iterator) collectPendingReads() {
	first := it.states.first()
	var limit coord.Coord
	if first != nil {
		limit = it.walkerCoord(first)
	} else {
		r := it.peek()
		if r == nil {
			return
		}
		limit = readCoord(r)
	}
	n := 0
	for r := it.peek(); r != nil; r = it.peek() {
		c := readCoord(r)
		if c.GT(limit) {
			break
		}
		if c.LT(limit) {
			it.err = errors.Wrapf(ErrUnsorted, "read %s at %v starts before the current locus %v", r.Name, c, limit)
			return
		}
		it.peeked = nil
		it.down.add(r, it.samples.lookup(r), it.rng)
		n++
	}
	if n > 0 {
		it.drain()
	}
}

// drain admits the reads waiting in the reservoirs into the buffer.  With
// DownsampleBySample, it evicts buffered reads of a sample whose buffer would
// exceed MaxReadsPerSample.  Reads that would take the buffer past
// MaxReadsAtLocus are refused.
func (it *Iterator) drain() {
	capacity := it.opts.MaxReadsPerSample
	shared := it.opts.DownsampleBy == DownsampleAllReads
	if shared {
		capacity = 0
	}
	it.down.drain(func(s int, reads, dropped []*sam.Record) {
		if it.err != nil {
			return
		}
		it.stats.ReadsDownsampled += len(dropped)
		it.opts.Metrics.addDownsampled(len(dropped))
		existing := it.states.countSample(s)
		if capacity > 0 && existing+len(reads) > capacity {
			evicted := it.states.evict(s, existing+len(reads)-capacity, it.rng)
			existing -= len(evicted)
			if existing >= capacity {
				cleared := it.states.clearOldest(s)
				existing -= len(cleared)
				evicted = append(evicted, cleared...)
			}
			it.stats.ReadsEvicted += len(evicted)
			it.opts.Metrics.addEvicted(len(evicted))
			log.Debug.Printf("locus.Iterator: sample %q: evicted %d read(s), %d remain", it.samples.names[s], len(evicted), existing)
		}
		limit := len(reads)
		if capacity > 0 && capacity-existing < limit {
			limit = capacity - existing
		}
		if maxAtLocus := it.opts.MaxReadsAtLocus; maxAtLocus > 0 {
			room := maxAtLocus - it.states.size()
			if room < 0 {
				room = 0
			}
			if room < limit {
				limit = room
			}
		}
		var refused []*sam.Record
		if !shared {
			refused = dropped
		}
		admitted, nRefused := 0, 0
		for _, r := range reads {
			if admitted >= limit {
				refused = append(refused, r)
				nRefused++
				continue
			}
			w, err := NewWalker(r, s, it.opts.GenerateExtendedEvents)
			if err != nil {
				it.err = err
				return
			}
			if _, ok := w.Step(); !ok && !w.HadIndel() {
				it.stats.ReadsSkipped++
				continue
			}
			if w.HadIndel() {
				it.hasExtendedEvents = true
			}
			it.states.add(w)
			admitted++
		}
		it.stats.ReadsAdmitted += admitted
		if nRefused > 0 {
			it.stats.ReadsDownsampled += nRefused
			it.opts.Metrics.addDownsampled(nRefused)
		}
		if len(refused) > 0 {
			it.overflow.Exceeded(overflowRegion(refused), admitted)
		}
	})
}

// overflowRegion returns the region spanned by reads, which share a
// reference.
func overflowRegion(reads []*sam.Record) interval.Entry {
	e := interval.Entry{
		RefName: reads[0].Ref.Name(),
		Start0:  interval.PosType(reads[0].Pos),
		End:     interval.PosType(reads[0].End()),
	}
	for _, r := range reads[1:] {
		if p := interval.PosType(r.Pos); p < e.Start0 {
			e.Start0 = p
		}
		if end := interval.PosType(r.End()); end > e.End {
			e.End = end
		}
	}
	return e
}

// load builds the next AlignmentContext into it.next, if there is one.
func (it *Iterator) load() {
	for it.next == nil && it.err == nil {
		it.collectPendingReads()
		if it.err != nil {
			return
		}
		if it.states.isEmpty() {
			if it.peek() == nil {
				return
			}
			continue
		}
		if it.opts.GenerateExtendedEvents && it.hasExtendedEvents {
			// The walkers have already stepped onto the base after the events,
			// so this branch does not step them again.
			it.hasExtendedEvents = false
			it.next = it.extendedContext()
			continue
		}
		it.next = it.normalContext()
		it.updateStates()
	}
}

func (it *Iterator) inTargets(l Locus) bool {
	if it.opts.Targets == nil {
		return true
	}
	return it.opts.Targets.ContainsByID(l.Ref.ID(), interval.PosType(l.Pos))
}

func (it *Iterator) filtered(r *sam.Record, pos int) bool {
	for _, f := range it.opts.Filters {
		if f(r, pos) {
			it.stats.FilteredBases++
			return true
		}
	}
	return false
}

// normalContext builds the pileup at the leftmost locus, or returns nil if no
// read contributes to it.
func (it *Iterator) normalContext() *AlignmentContext {
	first := it.states.first()
	loc := Locus{Ref: first.read.Ref, Pos: first.Pos()}
	p := &Pileup{}
	it.states.each(func(w *Walker) {
		if w.Exhausted() {
			return
		}
		offset := w.ReadOffset()
		switch w.Op() {
		case OpSkip:
			return
		case OpDeletion:
			if !it.opts.IncludeReadsWithDeletionAtLoci {
				return
			}
			offset = -1
		}
		if it.filtered(w.read, loc.Pos) {
			return
		}
		if offset < 0 {
			p.NDeletions++
		}
		if w.read.MapQ == 0 {
			p.NMapQ0++
		}
		p.Elements = append(p.Elements, PileupElement{Read: w.read, Offset: offset, Sample: w.sample})
	})
	if len(p.Elements) == 0 || !it.inTargets(loc) {
		return nil
	}
	return &AlignmentContext{Locus: loc, Pileup: p}
}

// extendedContext builds the extended-event pileup for the position before
// the leftmost locus, or returns nil if it holds no event.
func (it *Iterator) extendedContext() *AlignmentContext {
	first := it.states.first()
	loc := Locus{Ref: first.read.Ref, Pos: first.Pos() - 1}
	p := &ExtendedEventPileup{}
	nEvents := 0
	it.states.each(func(w *Walker) {
		var e ExtendedEventElement
		if w.HadIndel() {
			e = w.Event()
			nEvents++
			switch e.Type {
			case Insertion:
				p.NInsertions++
			case Deletion:
				p.NDeletions++
				if e.Length > p.MaxDeletionLen {
					p.MaxDeletionLen = e.Length
				}
			}
		} else {
			if w.Exhausted() || w.GenomeOffset() <= 0 {
				return
			}
			switch w.Op() {
			case OpSkip:
				return
			case OpDeletion:
				if !it.opts.IncludeReadsWithDeletionAtLoci {
					return
				}
			}
			e = ExtendedEventElement{Read: w.read, Offset: w.ReadOffset() - 1, Type: NoEvent, Sample: w.sample}
		}
		if w.read.MapQ == 0 {
			p.NMapQ0++
		}
		p.Elements = append(p.Elements, e)
	})
	if nEvents == 0 || loc.Pos < 0 || !it.inTargets(loc) {
		return nil
	}
	return &AlignmentContext{Locus: loc, Extended: p}
}

// updateStates steps every walker one reference base and drops the exhausted
// ones.  A walker that still has an event to report is kept until the event
// has been reported.
func (it *Iterator) updateStates() {
	it.states.filter(func(w *Walker) bool {
		_, ok := w.Step()
		if it.opts.GenerateExtendedEvents && w.HadIndel() {
			it.hasExtendedEvents = true
			return true
		}
		return ok
	})
}
