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
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biotraverse/pileup/locus"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bedPath           = flag.String("bed", DefaultOpts.BedPath, "Input BED path; mutually exclusive with -region")
	region            = flag.String("region", DefaultOpts.Region, "Restrict the pileup to the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>; requires a BAM index")
	bamIndexPath      = flag.String("index", DefaultOpts.BamIndexPath, "Input BAM index path. Defaults to bampath + .bai")
	cols              = flag.String("cols", DefaultOpts.Cols, "Output TSV column sets. #CHROM/POS/REF/DEPTH/NDEL/NMQ0 are always present. Currently supported optional sets are 'counts', 'strands', and 'samples'")
	configPath        = flag.String("config", "", "YAML file with traversal settings; flags given on the command line override it")
	downsampleBy      = flag.String("downsample-by", string(DefaultOpts.Locus.DownsampleBy), "Downsampling groups: 'sample' gives each sample its own reservoir; 'all' shares one reservoir over all reads starting at a position and never evicts buffered reads")
	extended          = flag.Bool("extended", DefaultOpts.Locus.GenerateExtendedEvents, "Report insertions and deletions to <out>.indel.tsv")
	flagExclude       = flag.Int("flag-exclude", DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	format            = flag.String("format", DefaultOpts.Format, "Output format; 'tsv' and 'tsv-bgz' supported")
	includeDeletions  = flag.Bool("include-deletions", DefaultOpts.Locus.IncludeReadsWithDeletionAtLoci, "Include reads with a deletion at a position in its pileup")
	mapq              = flag.Int("mapq", DefaultOpts.Mapq, "Reads with MAPQ below this level are skipped")
	maxReadsAtLocus   = flag.Int("max-reads-at-locus", DefaultOpts.Locus.MaxReadsAtLocus, "Upper bound on reads buffered over all samples, i.e. on pileup depth; 0 = unlimited")
	maxReadsPerSample = flag.Int("max-reads-per-sample", DefaultOpts.Locus.MaxReadsPerSample, "Upper bound on reads buffered per sample; excess reads are downsampled")
	maxWarnings       = flag.Int("max-overflow-warnings", DefaultOpts.Locus.MaxOverflowWarnings, "Number of downsampled regions logged before the rest are only counted; -1 = unlimited")
	metricsAddr       = flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. ':9090')")
	outPrefix         = flag.String("out", DefaultOpts.OutPrefix, "Output path prefix")
	parallelism       = flag.Int("parallelism", DefaultOpts.Parallelism, "Number of bgzf compression goroutines for tsv-bgz output")
	readAhead         = flag.Int("read-ahead", DefaultOpts.ReadAhead, "If positive, read up to this many records ahead on a separate goroutine")
	seed              = flag.Int64("seed", DefaultOpts.Locus.Seed, "Downsampling seed")
)

func bioLocusPileupUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath [fapath]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// applyFlags copies the explicitly set traversal flags over opts.
func applyFlags(opts *locus.Opts) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "downsample-by":
			opts.DownsampleBy = locus.DownsampleBy(*downsampleBy)
		case "extended":
			opts.GenerateExtendedEvents = *extended
		case "include-deletions":
			opts.IncludeReadsWithDeletionAtLoci = *includeDeletions
		case "max-reads-at-locus":
			opts.MaxReadsAtLocus = *maxReadsAtLocus
		case "max-reads-per-sample":
			opts.MaxReadsPerSample = *maxReadsPerSample
		case "max-overflow-warnings":
			opts.MaxOverflowWarnings = *maxWarnings
		case "seed":
			opts.Seed = *seed
		}
	})
}

func main() {
	flag.Usage = bioLocusPileupUsage
	shutdown := grail.Init()
	defer shutdown()

	positionalArgs := flag.Args()
	if len(positionalArgs) < 1 || len(positionalArgs) > 2 {
		log.Fatalf("Expected bampath and an optional fapath; please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
	}
	fastaPath := ""
	if len(positionalArgs) == 2 {
		fastaPath = positionalArgs[1]
	}
	ctx := vcontext.Background()
	opts := Opts{
		BedPath:      *bedPath,
		Region:       *region,
		BamIndexPath: *bamIndexPath,
		Cols:         *cols,
		FlagExclude:  *flagExclude,
		Format:       *format,
		Mapq:         *mapq,
		OutPrefix:    *outPrefix,
		Parallelism:  *parallelism,
		ReadAhead:    *readAhead,
		MetricsAddr:  *metricsAddr,
		Locus:        locus.DefaultOpts,
	}
	if *configPath != "" {
		var err error
		if opts.Locus, err = locus.LoadOpts(ctx, *configPath, opts.Locus); err != nil {
			log.Fatalf("%v", err)
		}
	}
	applyFlags(&opts.Locus)

	var reg prometheus.Registerer
	if opts.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		serveMetrics(opts.MetricsAddr, registry)
		reg = registry
	}
	if _, err := Pileup(ctx, positionalArgs[0], fastaPath, &opts, reg); err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}
