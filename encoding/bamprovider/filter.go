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
package bamprovider

import (
	"github.com/grailbio/biotraverse/interval"
	"github.com/grailbio/hts/sam"
)

// FilterOpts defines which records NewFilterIterator drops.  Unmapped records
// and records with an empty CIGAR are always dropped.
type FilterOpts struct {
	// FlagExclude drops records with a FLAG bit intersecting this value.
	FlagExclude int
	// MinMapQ drops records with MAPQ below this level.
	MinMapQ int
	// Targets, if non-nil, drops records whose alignment doesn't intersect the
	// set.  It must have been built with the BAM header.
	Targets *interval.Targets
}

// DefaultFilterOpts drops secondary, QC-fail, duplicate and supplementary
// alignments.
var DefaultFilterOpts = FilterOpts{
	FlagExclude: 0xf00,
	MinMapQ:     0,
}

// FilterStats counts the records seen by a filter iterator.
type FilterStats struct {
	Passed    int64
	Unmapped  int64
	Flagged   int64
	LowMapQ   int64
	OffTarget int64
}

// FilterIterator is an Iterator that drops unwanted records from another
// Iterator.
type FilterIterator struct {
	src     Iterator
	opts    FilterOpts
	targets *interval.Targets
	rec     *sam.Record
	stats   FilterStats
}

// NewFilterIterator wraps src so that only records passing opts are yielded.
// Dropped records are returned to the sam free pool.  Close closes src.
func NewFilterIterator(src Iterator, opts FilterOpts) *FilterIterator {
	it := &FilterIterator{src: src, opts: opts}
	if opts.Targets != nil {
		it.targets = opts.Targets.Clone()
	}
	return it
}

func (it *FilterIterator) keep(r *sam.Record) bool {
	switch {
	case r.Ref == nil || r.Flags&sam.Unmapped != 0 || len(r.Cigar) == 0:
		it.stats.Unmapped++
	case int(r.Flags)&it.opts.FlagExclude != 0:
		it.stats.Flagged++
	case int(r.MapQ) < it.opts.MinMapQ:
		it.stats.LowMapQ++
	case it.targets != nil && !it.targets.IntersectsByID(r.Ref.ID(), interval.PosType(r.Pos), interval.PosType(r.End())):
		it.stats.OffTarget++
	default:
		it.stats.Passed++
		return true
	}
	return false
}

// Scan implements the Iterator interface.
func (it *FilterIterator) Scan() bool {
	for it.src.Scan() {
		r := it.src.Record()
		if it.keep(r) {
			it.rec = r
			return true
		}
		sam.PutInFreePool(r)
	}
	it.rec = nil
	return false
}

// Record implements the Iterator interface.
func (it *FilterIterator) Record() *sam.Record { return it.rec }

// Err implements the Iterator interface.
func (it *FilterIterator) Err() error { return it.src.Err() }

// Close implements the Iterator interface.
func (it *FilterIterator) Close() error { return it.src.Close() }

// Stats returns the counts of records passed and dropped so far.
func (it *FilterIterator) Stats() FilterStats { return it.stats }
