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
	"github.com/grailbio/hts/sam"
)

var (
	rgTag = sam.NewTag("RG")
	smTag = sam.NewTag("SM")
)

// sampleIndex maps reads to dense sample indices.  Samples named by the
// header's read groups come first, in header order; samples only seen on
// reads are appended as they appear.
type sampleIndex struct {
	names  []string
	byName map[string]int
	// byRG maps a read group ID to its sample index.
	byRG map[string]int
}

func newSampleIndex(header *sam.Header) *sampleIndex {
	s := &sampleIndex{
		byName: map[string]int{},
		byRG:   map[string]int{},
	}
	if header == nil {
		return s
	}
	for _, rg := range header.RGs() {
		name := rg.Get(smTag)
		if name == "" {
			name = rg.Name()
		}
		s.byRG[rg.Name()] = s.intern(name)
	}
	return s
}

func (s *sampleIndex) intern(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	i := len(s.names)
	s.names = append(s.names, name)
	s.byName[name] = i
	return i
}

// lookup returns the sample index of r.  A read group missing from the
// header names its own sample.  Reads without a read group belong to the
// sample "".
func (s *sampleIndex) lookup(r *sam.Record) int {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return s.intern("")
	}
	rg, ok := aux.Value().(string)
	if !ok {
		return s.intern("")
	}
	if i, ok := s.byRG[rg]; ok {
		return i
	}
	i := s.intern(rg)
	s.byRG[rg] = i
	return i
}

func (s *sampleIndex) len() int { return len(s.names) }
