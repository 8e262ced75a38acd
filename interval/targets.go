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
package interval

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// NewTargetsOpts defines behavior of the Targets constructors.
type NewTargetsOpts struct {
	// SAMHeader enables ID-based lookup.  Contigs absent from the header are
	// kept in Entries but never match an ID.
	SAMHeader *sam.Header
	// OneBasedInput interprets BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// Targets is a set of genomic positions.  Each contig's set is stored as a
// length-2N sorted endpoint sequence, where the (0-based) start of interval #k
// is in element [2k] and its end is in element [2k+1].  A position p is in the
// set iff the number of endpoints <= p is odd.
//
// Targets remembers the last ID-based query so that nondecreasing queries, the
// usual pattern during a traversal, avoid a full binary search.  It is thus
// not thread-safe; use Clone to get an independent cursor.
type Targets struct {
	names   []string
	nameMap map[string][]PosType
	idMap   [][]PosType

	lastID  int
	lastPos PosType
	lastIdx int
}

// searchPosType returns the number of elements of a that are < x.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

func newTargets() *Targets {
	return &Targets{nameMap: map[string][]PosType{}, lastID: -1}
}

// NewTargetsFromEntries builds Targets from entries in any order.
// Overlapping and touching entries are merged; empty entries are dropped.
func NewTargetsFromEntries(entries []Entry, opts NewTargetsOpts) (*Targets, error) {
	t := newTargets()
	byName := map[string][]Entry{}
	for _, e := range entries {
		if e.Start0 < 0 || e.End < e.Start0 || e.End >= PosTypeMax {
			return nil, fmt.Errorf("interval.NewTargetsFromEntries: invalid interval %s [%d, %d)", e.RefName, e.Start0, e.End)
		}
		if _, ok := byName[e.RefName]; !ok {
			t.names = append(t.names, e.RefName)
		}
		byName[e.RefName] = append(byName[e.RefName], e)
	}
	for _, name := range t.names {
		es := byName[name]
		sort.SliceStable(es, func(i, j int) bool { return es[i].Start0 < es[j].Start0 })
		var endpoints []PosType
		for _, e := range es {
			if e.End == e.Start0 {
				continue
			}
			n := len(endpoints)
			if n > 0 && e.Start0 <= endpoints[n-1] {
				if e.End > endpoints[n-1] {
					endpoints[n-1] = e.End
				}
				continue
			}
			endpoints = append(endpoints, e.Start0, e.End)
		}
		t.nameMap[name] = endpoints
	}
	if opts.SAMHeader != nil {
		t.resolveIDs(opts.SAMHeader)
	}
	return t, nil
}

func (t *Targets) resolveIDs(header *sam.Header) {
	refs := header.Refs()
	t.idMap = make([][]PosType, len(refs))
	nMissing := 0
	for _, name := range t.names {
		found := false
		for _, ref := range refs {
			if ref.Name() == name {
				t.idMap[ref.ID()] = t.nameMap[name]
				found = true
				break
			}
		}
		if !found {
			nMissing++
		}
	}
	if nMissing > 0 {
		log.Printf("interval.Targets: warning: %d target contig(s) missing from the SAM header", nMissing)
	}
}

// NewTargets loads intervals from BED-formatted data.  Only the first three
// columns are read; header, track and comment lines are skipped.
func NewTargets(reader io.Reader, opts NewTargetsOpts) (*Targets, error) {
	var startSubtract PosType
	if opts.OneBasedInput {
		startSubtract = 1
	}
	var entries []Entry
	scanner := bufio.NewScanner(reader)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		line := scanner.Text()
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("interval.NewTargets: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("interval.NewTargets: line %d: %v", lineIdx, err)
		}
		end, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("interval.NewTargets: line %d: %v", lineIdx, err)
		}
		e := Entry{RefName: fields[0], Start0: PosType(start) - startSubtract, End: PosType(end)}
		if e.Start0 < 0 || e.End < e.Start0 {
			return nil, fmt.Errorf("interval.NewTargets: invalid coordinate pair on line %d", lineIdx)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	t, err := NewTargetsFromEntries(entries, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("BED loaded, %d base(s) covered.", t.NBases())
	return t, nil
}

// NewTargetsFromPath is a wrapper for NewTargets that takes a path instead of
// an io.Reader.  Gzipped files are recognized by their extension.
func NewTargetsFromPath(path string, opts NewTargetsOpts) (t *Targets, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close()
		reader = gz
	}
	return NewTargets(reader, opts)
}

// NewTargetsFromRegion builds single-interval Targets from a region string;
// see ParseRegionString.
func NewTargetsFromRegion(region string, opts NewTargetsOpts) (*Targets, error) {
	e, err := ParseRegionString(region)
	if err != nil {
		return nil, err
	}
	return NewTargetsFromEntries([]Entry{e}, opts)
}

// Clone returns Targets sharing the interval set, with its own query cursor.
func (t *Targets) Clone() *Targets {
	return &Targets{names: t.names, nameMap: t.nameMap, idMap: t.idMap, lastID: -1}
}

// NBases returns the number of positions in the set.
func (t *Targets) NBases() int {
	n := 0
	for _, e := range t.Entries() {
		n += e.Len()
	}
	return n
}

// Entries returns the merged intervals, contigs in order of first appearance.
func (t *Targets) Entries() []Entry {
	var entries []Entry
	for _, name := range t.names {
		endpoints := t.nameMap[name]
		for i := 0; i < len(endpoints); i += 2 {
			entries = append(entries, Entry{RefName: name, Start0: endpoints[i], End: endpoints[i+1]})
		}
	}
	return entries
}

func (t *Targets) byID(refID int) []PosType {
	if refID < 0 || refID >= len(t.idMap) {
		return nil
	}
	return t.idMap[refID]
}

// ContainsByID checks whether the (0-based) position pos is in the set, where
// the contig is specified by sam.Header reference ID.
//
// REQUIRES: the Targets were built with NewTargetsOpts.SAMHeader.
func (t *Targets) ContainsByID(refID int, pos PosType) bool {
	endpoints := t.byID(refID)
	if endpoints == nil {
		return false
	}
	posPlus1 := pos + 1
	if refID == t.lastID && posPlus1 >= t.lastPos {
		idx := t.lastIdx
		for idx < len(endpoints) && endpoints[idx] < posPlus1 {
			idx++
		}
		t.lastIdx, t.lastPos = idx, posPlus1
		return idx&1 == 1
	}
	t.lastID = refID
	t.lastPos = posPlus1
	t.lastIdx = searchPosType(endpoints, posPlus1)
	return t.lastIdx&1 == 1
}

// IntersectsByID checks whether the half-open range [start, end) on the given
// contig intersects the set.
func (t *Targets) IntersectsByID(refID int, start, end PosType) bool {
	endpoints := t.byID(refID)
	if endpoints == nil || end <= start {
		return false
	}
	idx := searchPosType(endpoints, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx < len(endpoints) && endpoints[idx] < end
}
