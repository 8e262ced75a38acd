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
package locus_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biotraverse/pileup/locus"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestLoadOpts(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	write := func(name, data string) string {
		path := filepath.Join(tmpDir, name)
		assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
		return path
	}

	opts, err := locus.LoadOpts(ctx, write("full.yaml", `
max_reads_per_sample: 250
downsample_by: all
max_reads_at_locus: 5000
generate_extended_events: true
include_reads_with_deletion_at_loci: true
seed: 7
max_overflow_warnings: -1
`), locus.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, opts.MaxReadsPerSample, 250)
	expect.EQ(t, opts.MaxReadsAtLocus, 5000)
	expect.EQ(t, opts.DownsampleBy, locus.DownsampleAllReads)
	expect.True(t, opts.GenerateExtendedEvents)
	expect.True(t, opts.IncludeReadsWithDeletionAtLoci)
	expect.EQ(t, opts.Seed, int64(7))
	expect.EQ(t, opts.MaxOverflowWarnings, -1)

	// Missing fields keep the base values.
	opts, err = locus.LoadOpts(ctx, write("partial.yaml", "generate_extended_events: true\n"), locus.DefaultOpts)
	assert.NoError(t, err)
	expect.True(t, opts.GenerateExtendedEvents)
	expect.EQ(t, opts.MaxReadsPerSample, locus.DefaultOpts.MaxReadsPerSample)
	expect.EQ(t, opts.Seed, int64(locus.DefaultSeed))
	expect.EQ(t, opts.DownsampleBy, locus.DownsampleBySample)

	opts, err = locus.LoadOpts(ctx, write("empty.yaml", ""), locus.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, opts.MaxReadsPerSample, locus.DefaultOpts.MaxReadsPerSample)

	_, err = locus.LoadOpts(ctx, write("unknown.yaml", "max_reads: 3\n"), locus.DefaultOpts)
	expect.Regexp(t, err, "max_reads")
	_, err = locus.LoadOpts(ctx, write("bad.yaml", "max_reads_per_sample: many\n"), locus.DefaultOpts)
	expect.NotNil(t, err)
	_, err = locus.LoadOpts(ctx, write("negative.yaml", "max_reads_at_locus: -2\n"), locus.DefaultOpts)
	expect.Regexp(t, err, "max_reads_at_locus")
	_, err = locus.LoadOpts(ctx, write("by.yaml", "downsample_by: lane\n"), locus.DefaultOpts)
	expect.Regexp(t, err, "downsample_by")
	_, err = locus.LoadOpts(ctx, filepath.Join(tmpDir, "missing.yaml"), locus.DefaultOpts)
	expect.NotNil(t, err)
}
