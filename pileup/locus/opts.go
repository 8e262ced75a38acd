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
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/biotraverse/interval"
	"github.com/grailbio/hts/sam"
	"gopkg.in/yaml.v3"
)

// Filter is a predicate on the read base (or deletion) aligned to reference
// position pos (0-based).  A read is left out of the normal pileup at pos if
// any filter returns true.
type Filter func(r *sam.Record, pos int) bool

// DownsampleBy selects how arriving reads are grouped for downsampling.
type DownsampleBy string

const (
	// DownsampleBySample gives each sample its own reservoir, and keeps the
	// reads buffered per sample within MaxReadsPerSample by evicting older
	// reads.
	DownsampleBySample DownsampleBy = "sample"
	// DownsampleAllReads offers the reads that start at one locus, over all
	// samples, to a single reservoir of MaxReadsPerSample reads.  Buffered
	// reads are never evicted.  With MaxReadsPerSample = 1 at most one read
	// is kept per alignment start.
	DownsampleAllReads DownsampleBy = "all"
)

// Opts configures an Iterator.
type Opts struct {
	// MaxReadsPerSample bounds the number of reads buffered per sample.  Reads
	// beyond the bound are downsampled.  <= 0 means no limit.
	MaxReadsPerSample int `yaml:"max_reads_per_sample"`
	// DownsampleBy selects per-sample or shared downsampling.  "" means
	// DownsampleBySample.
	DownsampleBy DownsampleBy `yaml:"downsample_by"`
	// MaxReadsAtLocus bounds the number of buffered reads over all samples,
	// which is the depth at the current locus.  Arriving reads that would
	// exceed it are refused and reported as an overflow.  0 means no limit.
	MaxReadsAtLocus int `yaml:"max_reads_at_locus"`
	// GenerateExtendedEvents enables extended-event pileups for indels.
	GenerateExtendedEvents bool `yaml:"generate_extended_events"`
	// IncludeReadsWithDeletionAtLoci includes reads with a deletion at a locus
	// in its normal pileup, at offset -1.
	IncludeReadsWithDeletionAtLoci bool `yaml:"include_reads_with_deletion_at_loci"`
	// Seed seeds downsampling.
	Seed int64 `yaml:"seed"`
	// MaxOverflowWarnings caps the number of overflow regions logged.  < 0
	// means no limit.
	MaxOverflowWarnings int `yaml:"max_overflow_warnings"`

	// Filters exclude reads from normal pileups base by base.
	Filters []Filter `yaml:"-"`
	// Targets, if non-nil, restricts the emitted loci.  Reads are still
	// traversed outside the targets.
	Targets *interval.Targets `yaml:"-"`
	// Metrics, if non-nil, receives traversal counters.
	Metrics *Metrics `yaml:"-"`
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	MaxReadsPerSample:   1000,
	DownsampleBy:        DownsampleBySample,
	Seed:                DefaultSeed,
	MaxOverflowWarnings: DefaultMaxOverflowWarnings,
}

// LoadOpts reads a YAML configuration from path.  Fields missing from the
// file keep their value in base.  Unknown fields are an error.
func LoadOpts(ctx context.Context, path string, base Opts) (opts Opts, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return base, errors.E(err, "locus.LoadOpts: open", path)
	}
	defer func() {
		if e := f.Close(ctx); e != nil && err == nil {
			err = errors.E(e, "locus.LoadOpts: close", path)
		}
	}()
	opts = base
	dec := yaml.NewDecoder(f.Reader(ctx))
	dec.KnownFields(true)
	if err = dec.Decode(&opts); err != nil && err != io.EOF {
		return base, errors.E(errors.Invalid, err, "locus.LoadOpts: parse", path)
	}
	return opts, opts.validate()
}

func (o Opts) validate() error {
	if o.MaxReadsAtLocus < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("locus: max_reads_at_locus must be >= 0, got %d", o.MaxReadsAtLocus))
	}
	switch o.DownsampleBy {
	case "", DownsampleBySample, DownsampleAllReads:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("locus: downsample_by must be %q or %q, got %q", DownsampleBySample, DownsampleAllReads, o.DownsampleBy))
	}
	return nil
}
