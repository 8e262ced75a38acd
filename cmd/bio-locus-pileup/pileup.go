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
package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biotraverse/encoding/bamprovider"
	"github.com/grailbio/biotraverse/encoding/fasta"
	"github.com/grailbio/biotraverse/interval"
	"github.com/grailbio/biotraverse/pileup"
	"github.com/grailbio/biotraverse/pileup/locus"
	"github.com/grailbio/hts/sam"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Opts holds the command-line options that are not part of locus.Opts.
type Opts struct {
	BedPath      string
	Region       string
	BamIndexPath string
	Cols         string
	FlagExclude  int
	Format       string
	Mapq         int
	OutPrefix    string
	Parallelism  int
	ReadAhead    int
	MetricsAddr  string
	Locus        locus.Opts
}

// DefaultOpts mirrors the flag defaults.
var DefaultOpts = Opts{
	Cols:        "counts",
	FlagExclude: bamprovider.DefaultFilterOpts.FlagExclude,
	Format:      locus.FormatTSV,
	OutPrefix:   "bio-locus-pileup",
	Parallelism: 1,
	Locus:       locus.DefaultOpts,
}

// loadTargets builds the target set from -region or -bed.  It returns nil
// when neither is set.
func loadTargets(opts *Opts, header *sam.Header) (*interval.Targets, error) {
	targetsOpts := interval.NewTargetsOpts{SAMHeader: header}
	switch {
	case opts.Region != "" && opts.BedPath != "":
		return nil, fmt.Errorf("bio-locus-pileup: -region and -bed are mutually exclusive")
	case opts.Region != "":
		return interval.NewTargetsFromRegion(opts.Region, targetsOpts)
	case opts.BedPath != "":
		return interval.NewTargetsFromPath(opts.BedPath, targetsOpts)
	}
	return nil, nil
}

// logTargets summarizes targets, and warns about contigs missing from the BAM
// header.
func logTargets(targets *interval.Targets, header *sam.Header) {
	entries := targets.Entries()
	for i, e := range entries {
		if i > 0 && entries[i-1].RefName == e.RefName {
			continue
		}
		if bamprovider.RefByName(header, e.RefName) == nil {
			log.Printf("bio-locus-pileup: warning: target contig %s is not in the BAM header", e.RefName)
		}
	}
	log.Printf("bio-locus-pileup: %s target interval(s) covering %s bases",
		humanize.Comma(int64(len(entries))), humanize.Comma(int64(targets.NBases())))
}

// newSource opens the read iterator.  A -region is read through the BAM
// index; everything else is a full scan, filtered down to the targets.
func newSource(ctx context.Context, provider bamprovider.Provider, opts *Opts, targets *interval.Targets) (*bamprovider.FilterIterator, bamprovider.Iterator, error) {
	var src bamprovider.Iterator
	if opts.Region != "" {
		e, err := interval.ParseRegionString(opts.Region)
		if err != nil {
			return nil, nil, err
		}
		src = bamprovider.NewRefIterator(provider, e.RefName, int(e.Start0), int(e.End))
	} else {
		src = provider.NewIterator(bamprovider.AllMapped)
	}
	filter := bamprovider.NewFilterIterator(src, bamprovider.FilterOpts{
		FlagExclude: opts.FlagExclude,
		MinMapQ:     opts.Mapq,
		Targets:     targets,
	})
	if opts.ReadAhead > 0 {
		return filter, bamprovider.NewReadAheadIterator(ctx, filter, opts.ReadAhead), nil
	}
	return filter, filter, nil
}

// serveMetrics exposes reg on addr/metrics until the process exits.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("bio-locus-pileup: metrics server on %s: %v", addr, err)
		}
	}()
	log.Printf("bio-locus-pileup: serving metrics on %s/metrics", addr)
}

// Pileup traverses the BAM at bamPath and writes the pileup to
// opts.OutPrefix.  fastaPath may be empty, in which case the REF column is
// 'N'.  If reg is non-nil, traversal counters are registered with it.
func Pileup(ctx context.Context, bamPath, fastaPath string, opts *Opts, reg prometheus.Registerer) (stats locus.Stats, err error) {
	cols, err := pileup.ParseCols(opts.Cols, locus.ColNameMap, locus.DefaultCols)
	if err != nil {
		return
	}
	provider := bamprovider.NewProvider(bamPath, bamprovider.ProviderOpts{Index: opts.BamIndexPath})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	header, err := provider.GetHeader()
	if err != nil {
		return
	}
	targets, err := loadTargets(opts, header)
	if err != nil {
		return
	}
	if targets != nil {
		logTargets(targets, header)
	}

	writerOpts := locus.WriterOpts{
		Format:      opts.Format,
		Cols:        cols,
		Samples:     locus.HeaderSamples(header),
		Extended:    opts.Locus.GenerateExtendedEvents,
		Parallelism: opts.Parallelism,
	}
	if fastaPath != "" {
		var ref *fasta.Reference
		if ref, err = fasta.Open(ctx, fastaPath); err != nil {
			return
		}
		defer func() {
			if e := ref.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		if err = pileup.CheckRefLengths(ref, header.Refs()); err != nil {
			return
		}
		writerOpts.Ref = fasta.NewWindow(ref, fasta.DefaultWindowSize)
	}

	locusOpts := opts.Locus
	locusOpts.Targets = targets
	if reg != nil {
		if locusOpts.Metrics, err = locus.NewMetrics(reg); err != nil {
			return
		}
	}

	filter, src, err := newSource(ctx, provider, opts, targets)
	if err != nil {
		return
	}
	it := locus.NewIterator(src, header, locusOpts)
	w, err := locus.NewWriter(ctx, opts.OutPrefix, writerOpts)
	if err != nil {
		_ = it.Close()
		return
	}
	for it.HasNext() {
		var c *locus.AlignmentContext
		if c, err = it.Next(); err != nil {
			break
		}
		if err = w.Write(c); err != nil {
			break
		}
	}
	if e := it.Close(); e != nil && err == nil {
		err = e
	}
	if e := w.Close(ctx); e != nil && err == nil {
		err = e
	}
	stats = it.Stats()
	if err != nil {
		return
	}

	fstats := filter.Stats()
	log.Printf("bio-locus-pileup: %s read(s) passed filters (%s unmapped, %s flagged, %s low MAPQ, %s off target)",
		humanize.Comma(fstats.Passed), humanize.Comma(fstats.Unmapped), humanize.Comma(fstats.Flagged),
		humanize.Comma(fstats.LowMapQ), humanize.Comma(fstats.OffTarget))
	log.Printf("bio-locus-pileup: %s normal and %s indel context(s) written; %s read(s) downsampled, %s evicted, %s overflow warning(s) suppressed",
		humanize.Comma(int64(stats.LociEmitted)), humanize.Comma(int64(stats.ExtendedLociEmitted)),
		humanize.Comma(int64(stats.ReadsDownsampled)), humanize.Comma(int64(stats.ReadsEvicted)),
		humanize.Comma(int64(it.Overflow().Suppressed())))
	return
}
