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

// Package coord defines a total order over alignment positions, matching the
// order of a coordinate-sorted BAM file.
package coord

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
)

// UnmappedRefID is the reference ID of unmapped reads. They sort after every
// mapped read.
const UnmappedRefID = int32(-1)

// Coord is a (reference ID, 0-based position) pair.
type Coord struct {
	RefID int32
	Pos   int32
}

// Range is a half-open range [Start, Limit).
type Range struct {
	Start, Limit Coord
}

// FromRecord returns the coordinate of the alignment start of r.
func FromRecord(r *sam.Record) Coord {
	if r.Ref == nil {
		return Coord{UnmappedRefID, int32(r.Pos)}
	}
	return Coord{int32(r.Ref.ID()), int32(r.Pos)}
}

func sortableRefID(id int32) int32 {
	if id == UnmappedRefID {
		return math.MaxInt32
	}
	return id
}

// Compare returns (negative int, 0, positive int) if (r<r1, r=r1, r>r1)
// respectively.
func (r Coord) Compare(r1 Coord) int {
	refid0 := sortableRefID(r.RefID)
	refid1 := sortableRefID(r1.RefID)
	if refid0 != refid1 {
		if refid0 < refid1 {
			return -1
		}
		return 1
	}
	return int(r.Pos) - int(r1.Pos)
}

// LT returns true iff r < r1.
func (r Coord) LT(r1 Coord) bool { return r.Compare(r1) < 0 }

// GE returns true iff r >= r1.
func (r Coord) GE(r1 Coord) bool { return r.Compare(r1) >= 0 }

// GT returns true iff r > r1.
func (r Coord) GT(r1 Coord) bool { return r.Compare(r1) > 0 }

func (r Coord) String() string {
	return fmt.Sprintf("%d:%d", r.RefID, r.Pos)
}

// Intersects returns true iff (r ∩ r1) != ∅.
func (r Range) Intersects(r1 Range) bool {
	return r.Start.LT(r1.Limit) && r1.Start.LT(r.Limit)
}
