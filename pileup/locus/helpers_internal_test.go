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
	"strconv"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
)

var cigarOpTypes = map[byte]sam.CigarOpType{
	'M': sam.CigarMatch,
	'I': sam.CigarInsertion,
	'D': sam.CigarDeletion,
	'N': sam.CigarSkipped,
	'S': sam.CigarSoftClipped,
	'H': sam.CigarHardClipped,
	'P': sam.CigarPadded,
	'=': sam.CigarEqual,
	'X': sam.CigarMismatch,
	'B': sam.CigarBack,
}

// parseCigar parses a CIGAR string.  Unlike sam.ParseCigar, it accepts
// zero-length elements.
func parseCigar(t testing.TB, s string) sam.Cigar {
	var cigar sam.Cigar
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			continue
		}
		n, err := strconv.Atoi(s[start:i])
		assert.NoError(t, err)
		op, ok := cigarOpTypes[s[i]]
		assert.True(t, ok, "bad op in %s", s)
		cigar = append(cigar, sam.NewCigarOp(op, n))
		start = i + 1
	}
	return cigar
}

// newTestRead creates a read with the given 0-based position and CIGAR, and
// a sequence of the matching length cycling through ACGT.
func newTestRead(t testing.TB, name string, ref *sam.Reference, pos int, cigar string) *sam.Record {
	c := parseCigar(t, cigar)
	_, qlen := c.Lengths()
	seq := make([]byte, qlen)
	qual := make([]byte, qlen)
	for i := range seq {
		seq[i] = "ACGT"[i%4]
		qual[i] = 30
	}
	return &sam.Record{
		Name:  name,
		Ref:   ref,
		Pos:   pos,
		MapQ:  60,
		Cigar: c,
		Seq:   sam.NewSeq(seq),
		Qual:  qual,
	}
}

func newTestRef(t testing.TB) *sam.Reference {
	ref, err := sam.NewReference("chr1", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	_, err = sam.NewHeader(nil, []*sam.Reference{ref})
	assert.NoError(t, err)
	return ref
}
