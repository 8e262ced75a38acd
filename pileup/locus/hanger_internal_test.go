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
	"math/rand"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newTestWalker(t *testing.T, ref *sam.Reference, name string, pos, sample int) *Walker {
	w, err := NewWalker(newTestRead(t, name, ref, pos, "10M"), sample, false)
	assert.NoError(t, err)
	w.Step()
	return w
}

func walkerNames(rs *readStates) []string {
	var names []string
	rs.each(func(w *Walker) { names = append(names, w.read.Name) })
	return names
}

func TestReadStates(t *testing.T) {
	ref := newTestRef(t)
	var rs readStates
	expect.True(t, rs.isEmpty())
	expect.True(t, rs.first() == nil)

	rs.add(newTestWalker(t, ref, "a0", 10, 0))
	rs.add(newTestWalker(t, ref, "b0", 10, 1))
	rs.add(newTestWalker(t, ref, "a1", 10, 0))
	rs.add(newTestWalker(t, ref, "a2", 12, 0))
	expect.EQ(t, len(rs.hangers), 2)
	expect.EQ(t, rs.size(), 4)
	expect.EQ(t, rs.countSample(0), 3)
	expect.EQ(t, rs.countSample(1), 1)
	expect.EQ(t, rs.countSample(7), 0)
	expect.EQ(t, walkerNames(&rs), []string{"a0", "a1", "b0", "a2"})
	expect.EQ(t, rs.first().read.Name, "a0")

	rs.filter(func(w *Walker) bool { return w.read.Name != "a0" && w.read.Name != "a1" })
	expect.EQ(t, walkerNames(&rs), []string{"b0", "a2"})
	expect.EQ(t, rs.countSample(0), 1)
	expect.EQ(t, rs.first().read.Name, "b0")

	// Emptied hangers are pruned.
	rs.filter(func(w *Walker) bool { return w.read.Name != "b0" })
	expect.EQ(t, len(rs.hangers), 1)
	expect.EQ(t, rs.first().read.Name, "a2")
	rs.filter(func(w *Walker) bool { return false })
	expect.True(t, rs.isEmpty())
	expect.EQ(t, rs.size(), 0)
}

func TestReadStatesEvict(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	var rs readStates
	for _, pos := range []int{10, 10, 10, 11, 12, 12, 12} {
		rs.add(newTestWalker(t, ref, "a", pos, 0))
	}
	rs.add(newTestWalker(t, ref, "b", 12, 1))
	expect.EQ(t, rs.countSample(0), 7)

	// The first pass takes one walker each from the hangers at 12 and 10;
	// the hanger at 11 holds a single walker and is never touched.
	evicted := rs.evict(0, 2, rng)
	expect.EQ(t, len(evicted), 2)
	expect.EQ(t, evicted[0].read.Pos, 12)
	expect.EQ(t, evicted[1].read.Pos, 10)
	expect.EQ(t, rs.countSample(0), 5)

	// Eviction stops once every hanger holds at most one walker of the
	// sample.
	evicted = rs.evict(0, 100, rng)
	expect.EQ(t, len(evicted), 2)
	expect.EQ(t, rs.countSample(0), 3)
	for _, h := range rs.hangers {
		expect.EQ(t, len(h.sample(0)), 1)
	}
	// Other samples are unaffected.
	expect.EQ(t, rs.countSample(1), 1)
	expect.EQ(t, rs.size(), 4)

	cleared := rs.clearOldest(0)
	expect.EQ(t, len(cleared), 1)
	expect.EQ(t, cleared[0].read.Pos, 10)
	expect.EQ(t, rs.countSample(0), 2)
	expect.EQ(t, rs.first().read.Pos, 11)
	expect.True(t, rs.clearOldest(1) == nil)
}

func records(ps []pendingRead) []*sam.Record {
	var rs []*sam.Record
	for _, p := range ps {
		rs = append(rs, p.r)
	}
	return rs
}

func TestReservoir(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	rv := reservoir{capacity: 3}
	var reads, dropped []*sam.Record
	for i := 0; i < 10; i++ {
		r := newTestRead(t, "r", ref, 10, "5M")
		reads = append(reads, r)
		if d := rv.add(r, 0, rng); d.r != nil {
			dropped = append(dropped, d.r)
		}
	}
	kept := records(rv.drain())
	expect.EQ(t, len(kept), 3)
	expect.EQ(t, len(dropped), 7)
	seen := map[*sam.Record]int{}
	for _, r := range append(kept, dropped...) {
		seen[r]++
	}
	for _, r := range reads {
		expect.EQ(t, seen[r], 1)
	}
	expect.EQ(t, rv.seen, 0)
	expect.EQ(t, len(rv.drain()), 0)

	unlimited := reservoir{}
	for _, r := range reads {
		expect.True(t, unlimited.add(r, 0, rng).r == nil)
	}
	expect.EQ(t, records(unlimited.drain()), reads)
}

// Replacements do not reorder the retained reads.
func TestReservoirArrivalOrder(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	rv := reservoir{capacity: 4}
	index := map[*sam.Record]int{}
	for trial := 0; trial < 50; trial++ {
		for i := 0; i < 30; i++ {
			r := newTestRead(t, fmt.Sprintf("r%d", i), ref, 0, "1M")
			index[r] = i
			rv.add(r, i%2, rng)
		}
		kept := rv.drain()
		assert.EQ(t, len(kept), 4)
		for i := 1; i < len(kept); i++ {
			expect.True(t, index[kept[i-1].r] < index[kept[i].r], "trial %d: %v", trial, records(kept))
		}
		for _, p := range kept {
			expect.EQ(t, p.sample, index[p.r]%2)
		}
	}
}

// Every read of a large batch is retained with about the same probability.
func TestReservoirUniform(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	const (
		nReads   = 20
		capacity = 5
		nTrials  = 4000
	)
	reads := make([]*sam.Record, nReads)
	index := map[*sam.Record]int{}
	for i := range reads {
		reads[i] = newTestRead(t, "r", ref, 0, "1M")
		index[reads[i]] = i
	}
	counts := make([]int, nReads)
	rv := reservoir{capacity: capacity}
	for trial := 0; trial < nTrials; trial++ {
		for _, r := range reads {
			rv.add(r, 0, rng)
		}
		for _, p := range rv.drain() {
			counts[index[p.r]]++
		}
	}
	want := nTrials * capacity / nReads
	for i, n := range counts {
		expect.True(t, n > want*8/10 && n < want*12/10, "read %d retained %d times, want about %d", i, n, want)
	}
}

func TestDownsampler(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	d := newDownsampler(2, DownsampleBySample)
	for i := 0; i < 5; i++ {
		d.add(newTestRead(t, "a", ref, 0, "1M"), 0, rng)
	}
	d.add(newTestRead(t, "c", ref, 0, "1M"), 2, rng)
	var got []int
	d.drain(func(s int, reads, dropped []*sam.Record) {
		got = append(got, s, len(reads), len(dropped))
	})
	// Sample 1 saw no reads and is skipped.
	expect.EQ(t, got, []int{0, 2, 3, 2, 1, 0})
	d.drain(func(s int, reads, dropped []*sam.Record) {
		t.Errorf("unexpected drain of sample %d", s)
	})
}

func TestDownsamplerShared(t *testing.T) {
	ref := newTestRef(t)
	rng := rand.New(rand.NewSource(DefaultSeed))
	d := newDownsampler(3, DownsampleAllReads)
	for i := 0; i < 12; i++ {
		d.add(newTestRead(t, fmt.Sprintf("r%d", i), ref, 0, "1M"), i%3, rng)
	}
	kept, dropped := 0, 0
	d.drain(func(s int, reads, drop []*sam.Record) {
		for _, r := range append(reads, drop...) {
			var i int
			_, err := fmt.Sscanf(r.Name, "r%d", &i)
			assert.NoError(t, err)
			expect.EQ(t, i%3, s, r.Name)
		}
		kept += len(reads)
		dropped += len(drop)
	})
	// One reservoir over all samples.
	expect.EQ(t, kept, 3)
	expect.EQ(t, dropped, 9)
	expect.EQ(t, len(d.reservoirs), 1)
}
