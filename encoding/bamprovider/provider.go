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
	"fmt"
	"strings"

	"github.com/grailbio/biotraverse/coord"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it
	// defaults to path + ".bai".
	Index string
}

// Region is a genomic range to read.  A record belongs to the region iff its
// alignment overlaps [Start, End) on Ref.  A nil Ref means all mapped records
// in the file.
type Region struct {
	Ref        *sam.Reference
	Start, End int
}

// AllMapped is the Region that covers every mapped record.
var AllMapped = Region{}

// String implements fmt.Stringer.
func (r Region) String() string {
	if r.Ref == nil {
		return "all-mapped"
	}
	return fmt.Sprintf("%s:%d-%d", r.Ref.Name(), r.Start, r.End)
}

// Overlaps checks if rec's alignment overlaps the region.
func (r Region) Overlaps(rec *sam.Record) bool {
	if rec.Ref == nil {
		return false
	}
	if r.Ref == nil {
		return true
	}
	span := coord.Range{
		Start: coord.FromRecord(rec),
		Limit: coord.Coord{RefID: int32(rec.Ref.ID()), Pos: int32(rec.End())},
	}
	return r.span().Intersects(span)
}

// past checks if rec, and every record that sorts after it, lies beyond the
// region.
func (r Region) past(rec *sam.Record) bool {
	if rec.Ref == nil {
		return true
	}
	if r.Ref == nil {
		return false
	}
	return coord.FromRecord(rec).GE(r.span().Limit)
}

// span returns the region as a coord.Range.
//
// REQUIRES: r.Ref != nil
func (r Region) span() coord.Range {
	id := int32(r.Ref.ID())
	return coord.Range{
		Start: coord.Coord{RefID: id, Pos: int32(r.Start)},
		Limit: coord.Coord{RefID: id, Pos: int32(r.End)},
	}
}

// Provider allows reading a coordinate-sorted BAM file.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over the records overlapping the
	// region.
	//
	// REQUIRES: Close has not been called.
	NewIterator(region Region) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range, in
// coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// NewProvider creates a Provider for the BAM file at path.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	if !strings.HasSuffix(path, ".bam") {
		vlog.VI(1).Infof("%v: no .bam suffix, reading it as BAM anyway", path)
	}
	return &BAMProvider{Path: path, Index: opts.Index}
}
