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

	"github.com/grailbio/biotraverse/coord"
	"github.com/grailbio/biotraverse/pileup"
	"github.com/grailbio/hts/sam"
)

// Locus is a single reference position.  Pos is 0-based.
type Locus struct {
	Ref *sam.Reference
	Pos int
}

// String prints the locus as "contig:pos", with a 1-based position.
func (l Locus) String() string {
	if l.Ref == nil {
		return fmt.Sprintf("*:%d", l.Pos+1)
	}
	return fmt.Sprintf("%s:%d", l.Ref.Name(), l.Pos+1)
}

// Coord returns the locus as a coord.Coord.
func (l Locus) Coord() coord.Coord {
	if l.Ref == nil {
		return coord.Coord{RefID: coord.UnmappedRefID, Pos: int32(l.Pos)}
	}
	return coord.Coord{RefID: int32(l.Ref.ID()), Pos: int32(l.Pos)}
}

// PileupElement is one read of a normal pileup.
type PileupElement struct {
	Read *sam.Record
	// Offset is the index of the read base aligned to the locus, or -1 if the
	// read has a deletion there.
	Offset int
	// Sample is an index into Iterator.Samples().
	Sample int
}

// IsDeletion reports whether the read has a deletion at the locus.
func (e PileupElement) IsDeletion() bool { return e.Offset < 0 }

// Base returns the ASCII read base at the locus, or '-' for a deletion.
func (e PileupElement) Base() byte {
	if e.Offset < 0 {
		return '-'
	}
	return pileup.SeqBase(e.Read.Seq, e.Offset)
}

// Qual returns the base quality at the locus, or 0 if unavailable.
func (e PileupElement) Qual() byte {
	if e.Offset < 0 || e.Offset >= len(e.Read.Qual) || e.Read.Qual[e.Offset] == 0xff {
		return 0
	}
	return e.Read.Qual[e.Offset]
}

// Pileup is the set of reads aligned to one reference position.
type Pileup struct {
	Elements []PileupElement
	// NDeletions counts the elements with a deletion at the locus.
	NDeletions int
	// NMapQ0 counts the elements with mapping quality 0.
	NMapQ0 int
}

// Depth returns the number of elements.
func (p *Pileup) Depth() int { return len(p.Elements) }

// EventType is the kind of an extended event.
type EventType uint8

const (
	// NoEvent marks a read that covers the locus without an indel after it.
	NoEvent EventType = iota
	// Insertion is an insertion right after the locus.
	Insertion
	// Deletion is a deletion starting right after the locus.
	Deletion
)

func (t EventType) String() string {
	switch t {
	case Insertion:
		return "I"
	case Deletion:
		return "D"
	}
	return "."
}

// ExtendedEventElement is one read of an extended-event pileup.
type ExtendedEventElement struct {
	Read *sam.Record
	// Offset is the read offset of the last base before the event, or -1 if
	// the event precedes every aligned base.  For NoEvent elements, it is the
	// offset of the base at the locus.
	Offset int
	// Length is the number of inserted or deleted bases.  0 for NoEvent.
	Length int
	// Bases are the inserted bases, in ASCII.  nil unless Type == Insertion.
	Bases []byte
	Type  EventType
	// Sample is an index into Iterator.Samples().
	Sample int
}

// String prints the event the way samtools mpileup does, e.g. "+2AC" or
// "-3".  NoEvent prints as ".".
func (e ExtendedEventElement) String() string {
	switch e.Type {
	case Insertion:
		return fmt.Sprintf("+%d%s", e.Length, e.Bases)
	case Deletion:
		return fmt.Sprintf("-%d", e.Length)
	}
	return "."
}

// ExtendedEventPileup is the set of reads covering the position just before
// the current reference base, together with the indels that sit between the
// two.
type ExtendedEventPileup struct {
	Elements       []ExtendedEventElement
	NInsertions    int
	NDeletions     int
	MaxDeletionLen int
	NMapQ0         int
}

// Depth returns the number of elements.
func (p *ExtendedEventPileup) Depth() int { return len(p.Elements) }

// AlignmentContext is the output of the traversal for one locus.  Exactly one
// of Pileup and Extended is non-nil.
type AlignmentContext struct {
	Locus    Locus
	Pileup   *Pileup
	Extended *ExtendedEventPileup
}

// IsExtended reports whether this is an extended-event context.
func (c *AlignmentContext) IsExtended() bool { return c.Extended != nil }

// Size returns the number of pileup elements.
func (c *AlignmentContext) Size() int {
	if c.Extended != nil {
		return c.Extended.Depth()
	}
	return c.Pileup.Depth()
}
