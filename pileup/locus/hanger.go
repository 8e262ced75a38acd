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
)

// hanger holds the walkers of reads that were admitted together, i.e. that
// share an alignment start.  walkers is indexed by sample.
type hanger struct {
	pos     int
	walkers [][]*Walker
	n       int
}

func (h *hanger) sample(s int) []*Walker {
	if s >= len(h.walkers) {
		return nil
	}
	return h.walkers[s]
}

func (h *hanger) add(w *Walker) {
	for w.sample >= len(h.walkers) {
		h.walkers = append(h.walkers, nil)
	}
	h.walkers[w.sample] = append(h.walkers[w.sample], w)
	h.n++
}

// removeAt removes walker i of sample s, keeping the order of the rest.
func (h *hanger) removeAt(s, i int) *Walker {
	ws := h.walkers[s]
	w := ws[i]
	copy(ws[i:], ws[i+1:])
	ws[len(ws)-1] = nil
	h.walkers[s] = ws[:len(ws)-1]
	h.n--
	return w
}

// readStates is the buffer of active walkers.  hangers are in increasing
// alignment-start order, so hangers[0] holds the walkers that have been
// buffered longest.
type readStates struct {
	hangers   []*hanger
	perSample []int
	total     int
}

// add appends w, starting a new hanger unless w's read starts where the last
// hanger's reads do.
func (rs *readStates) add(w *Walker) {
	var h *hanger
	if n := len(rs.hangers); n > 0 && rs.hangers[n-1].pos == w.read.Pos {
		h = rs.hangers[n-1]
	} else {
		h = &hanger{pos: w.read.Pos}
		rs.hangers = append(rs.hangers, h)
	}
	h.add(w)
	rs.growSamples(w.sample + 1)
	rs.perSample[w.sample]++
	rs.total++
}

func (rs *readStates) growSamples(n int) {
	for len(rs.perSample) < n {
		rs.perSample = append(rs.perSample, 0)
	}
}

// prune drops hangers that no longer hold any walker.
func (rs *readStates) prune() {
	j := 0
	for _, h := range rs.hangers {
		if h.n > 0 {
			rs.hangers[j] = h
			j++
		}
	}
	for i := j; i < len(rs.hangers); i++ {
		rs.hangers[i] = nil
	}
	rs.hangers = rs.hangers[:j]
}

func (rs *readStates) isEmpty() bool {
	rs.prune()
	return len(rs.hangers) == 0
}

// size returns the number of active walkers.
func (rs *readStates) size() int { return rs.total }

// countSample returns the number of active walkers of sample s, over all
// hangers.
func (rs *readStates) countSample(s int) int {
	if s >= len(rs.perSample) {
		return 0
	}
	return rs.perSample[s]
}

// first returns a walker of the oldest hanger, or nil if the buffer is empty.
// All active walkers stand on the same reference position, so its position
// is the leftmost locus.
func (rs *readStates) first() *Walker {
	rs.prune()
	if len(rs.hangers) == 0 {
		return nil
	}
	for _, ws := range rs.hangers[0].walkers {
		if len(ws) > 0 {
			return ws[0]
		}
	}
	panic("non-empty hanger without walkers")
}

// each calls fn on every active walker, oldest hanger first.
func (rs *readStates) each(fn func(w *Walker)) {
	for _, h := range rs.hangers {
		for _, ws := range h.walkers {
			for _, w := range ws {
				fn(w)
			}
		}
	}
}

// filter calls keep on every active walker, oldest hanger first, and removes
// the walkers for which it returns false.
func (rs *readStates) filter(keep func(w *Walker) bool) {
	for _, h := range rs.hangers {
		for s, ws := range h.walkers {
			j := 0
			for _, w := range ws {
				if keep(w) {
					ws[j] = w
					j++
					continue
				}
				h.n--
				rs.perSample[s]--
				rs.total--
			}
			for i := j; i < len(ws); i++ {
				ws[i] = nil
			}
			h.walkers[s] = ws[:j]
		}
	}
	rs.prune()
}

// evict removes up to n walkers of sample s.  Hangers are visited newest
// first; each visit removes one randomly chosen walker from a hanger that
// holds more than one walker of s.  Passes repeat until n walkers have been
// removed or a pass removes nothing.  The removed walkers are returned.
func (rs *readStates) evict(s, n int, rng *rand.Rand) []*Walker {
	var evicted []*Walker
	for len(evicted) < n {
		progress := false
		for i := len(rs.hangers) - 1; i >= 0 && len(evicted) < n; i-- {
			h := rs.hangers[i]
			ws := h.sample(s)
			if len(ws) <= 1 {
				continue
			}
			evicted = append(evicted, h.removeAt(s, rng.Intn(len(ws))))
			rs.perSample[s]--
			rs.total--
			progress = true
		}
		if !progress {
			break
		}
	}
	return evicted
}

// clearOldest removes every walker of sample s from the oldest hanger, and
// returns them.
func (rs *readStates) clearOldest(s int) []*Walker {
	if len(rs.hangers) == 0 {
		return nil
	}
	h := rs.hangers[0]
	ws := h.sample(s)
	if len(ws) == 0 {
		return nil
	}
	h.walkers[s] = nil
	h.n -= len(ws)
	rs.perSample[s] -= len(ws)
	rs.total -= len(ws)
	rs.prune()
	return ws
}
