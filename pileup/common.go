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
package pileup

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// Common pileup components.

// These constants are also the natural values for A/C/G/T in a packed 2-bit
// representation.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

// NBaseEnum counts BaseX as well as the regular base types.
const NBaseEnum = 5

// Seq8ToASCIITable is the .bam seq nibble -> ASCII mapping.
var Seq8ToASCIITable = [...]byte{'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

// ASCIIToEnum maps an ASCII base (either case) to A/C/G/T/X.
func ASCIIToEnum(b byte) byte {
	switch b {
	case 'A', 'a':
		return BaseA
	case 'C', 'c':
		return BaseC
	case 'G', 'g':
		return BaseG
	case 'T', 't':
		return BaseT
	}
	return BaseX
}

// SeqNibble returns the .bam seq nibble of base i of s.
//
// REQUIRES: 0 <= i < s.Length
func SeqNibble(s sam.Seq, i int) byte {
	d := byte(s.Seq[i>>1])
	if i&1 == 0 {
		return d >> 4
	}
	return d & 0xf
}

// SeqBase returns base i of s as ASCII, or 'N' if i is out of range (e.g. the
// read has no stored sequence).
func SeqBase(s sam.Seq, i int) byte {
	if i < 0 || i >= s.Length {
		return 'N'
	}
	return Seq8ToASCIITable[SeqNibble(s, i)]
}

// StrandType describes which strand a read or read-pair is aligned to.
type StrandType int

const (
	// StrandNone means no strand restriction.
	StrandNone StrandType = iota
	// StrandFwd means forward strand.
	StrandFwd
	// StrandRev means reverse strand.
	StrandRev
)

// ReadStrand returns the strand the read itself is aligned to.
func ReadStrand(samr *sam.Record) StrandType {
	if samr.Flags&sam.Reverse != 0 {
		return StrandRev
	}
	return StrandFwd
}

// ParseCols parses a column-set-descriptor string given on the command line
// (colsParam) into a bitset.  Either every comma-separated term carries a
// '+'/'-' prefix, in which case the terms patch defaultColBitset, or none do,
// in which case the terms are the full set.
func ParseCols(colsParam string, colNameMap map[string]int, defaultColBitset int) (colBitset int, err error) {
	if colsParam == "" {
		return defaultColBitset, nil
	}
	parts := strings.Split(colsParam, ",")
	patch := parts[0] != "" && (parts[0][0] == '+' || parts[0][0] == '-')
	if patch {
		colBitset = defaultColBitset
	}
	for _, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("pileup.ParseCols: empty term in %q", colsParam)
		}
		sign := part[0]
		hasSign := sign == '+' || sign == '-'
		if hasSign != patch {
			return 0, fmt.Errorf("pileup.ParseCols: either all terms in column set descriptor must be preceded by +/-, or none can be")
		}
		name := part
		if hasSign {
			name = part[1:]
		}
		v := colNameMap[name]
		if v == 0 {
			return 0, fmt.Errorf("pileup.ParseCols: %v not found", name)
		}
		if sign == '-' {
			colBitset &= ^v
		} else {
			colBitset |= v
		}
	}
	return colBitset, nil
}

// RefLengther reports reference sequence lengths, e.g. from a FASTA index.
type RefLengther interface {
	Len(seqName string) (uint64, error)
	SeqNames() []string
}

// CheckRefLengths performs reference-length consistency checks between
// headerRefs and fa.  References missing on either side only produce a
// warning.
func CheckRefLengths(fa RefLengther, headerRefs []*sam.Reference) error {
	nMissingFromFa := 0
	for _, ref := range headerRefs {
		refLen, err := fa.Len(ref.Name())
		if err != nil {
			nMissingFromFa++
			continue
		}
		if refLen != uint64(ref.Len()) {
			return fmt.Errorf("pileup.CheckRefLengths: inconsistent lengths for contig %s (%d in BAM header, %d in .fa)", ref.Name(), ref.Len(), refLen)
		}
	}
	if nMissingFromFa != 0 {
		log.Printf("pileup.CheckRefLengths: warning: %d reference(s) present in BAM header but missing from .fa", nMissingFromFa)
	}
	if n := len(fa.SeqNames()) + nMissingFromFa - len(headerRefs); n > 0 {
		log.Printf("pileup.CheckRefLengths: warning: %d reference(s) present in .fa but missing from BAM header", n)
	}
	return nil
}
