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
	"sort"

	"github.com/grailbio/hts/sam"
)

// DefaultSeed seeds the downsampling random source, so that repeated runs on
// the same input retain the same reads.
const DefaultSeed = 38148309

// pendingRead is a read waiting in a reservoir.
type pendingRead struct {
	r      *sam.Record
	sample int
	seq    int // arrival index since the last drain
}

// reservoir keeps a uniform random sample of at most capacity of the reads
// added to it since the last drain (Algorithm R).  capacity <= 0 means no
// limit.
type reservoir struct {
	capacity int
	seen     int
	reads    []pendingRead
}

// add offers r to the reservoir, and returns the read that was dropped as a
// result.  The returned read is nil if none was.
func (rv *reservoir) add(r *sam.Record, sample int, rng *rand.Rand) pendingRead {
	p := pendingRead{r: r, sample: sample, seq: rv.seen}
	rv.seen++
	if rv.capacity <= 0 || len(rv.reads) < rv.capacity {
		rv.reads = append(rv.reads, p)
		return pendingRead{}
	}
	if j := rng.Intn(rv.seen); j < rv.capacity {
		dropped := rv.reads[j]
		rv.reads[j] = p
		return dropped
	}
	return p
}

// drain returns the retained reads in arrival order, and resets the
// reservoir.
func (rv *reservoir) drain() []pendingRead {
	reads := rv.reads
	rv.reads = nil
	rv.seen = 0
	sort.Slice(reads, func(i, j int) bool { return reads[i].seq < reads[j].seq })
	return reads
}

// downsampler routes reads to reservoirs: one per sample, or a single one
// shared by all samples.
type downsampler struct {
	capacity   int
	shared     bool
	reservoirs []reservoir
	// dropped collects the reads the reservoirs have dropped since the last
	// drain, by sample.
	dropped [][]*sam.Record
}

func newDownsampler(capacity int, by DownsampleBy) *downsampler {
	return &downsampler{capacity: capacity, shared: by == DownsampleAllReads}
}

func (d *downsampler) add(r *sam.Record, sample int, rng *rand.Rand) {
	key := sample
	if d.shared {
		key = 0
	}
	for key >= len(d.reservoirs) {
		d.reservoirs = append(d.reservoirs, reservoir{capacity: d.capacity})
	}
	for sample >= len(d.dropped) {
		d.dropped = append(d.dropped, nil)
	}
	if p := d.reservoirs[key].add(r, sample, rng); p.r != nil {
		d.dropped[p.sample] = append(d.dropped[p.sample], p.r)
	}
}

// drain calls fn for every sample with pending reads, in sample order, and
// resets all reservoirs.  reads are in arrival order.
func (d *downsampler) drain(fn func(sample int, reads, dropped []*sam.Record)) {
	bySample := make([][]*sam.Record, len(d.dropped))
	for i := range d.reservoirs {
		for _, p := range d.reservoirs[i].drain() {
			bySample[p.sample] = append(bySample[p.sample], p.r)
		}
	}
	for s, reads := range bySample {
		dropped := d.dropped[s]
		d.dropped[s] = nil
		if len(reads) == 0 && len(dropped) == 0 {
			continue
		}
		fn(s, reads, dropped)
	}
}
