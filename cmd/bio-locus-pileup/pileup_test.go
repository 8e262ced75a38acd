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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/prometheus/client_golang/prometheus"
)

const testHeader = "@HD\tVN:1.5\tSO:coordinate\n" +
	"@RG\tID:rg1\tSM:S1\n" +
	"@RG\tID:rg2\tSM:S2\n"

func newTestRead(t *testing.T, name string, ref *sam.Reference, pos int, cigar string, rg string, mapq byte, flags sam.Flags) *sam.Record {
	c, err := sam.ParseCigar([]byte(cigar))
	assert.NoError(t, err)
	_, readLen := c.Lengths()
	seq := make([]byte, readLen)
	qual := make([]byte, readLen)
	for i := range seq {
		seq[i] = "ACGT"[i%4]
		qual[i] = 30
	}
	aux, err := sam.NewAux(sam.NewTag("RG"), rg)
	assert.NoError(t, err)
	return &sam.Record{
		Name:      name,
		Ref:       ref,
		Pos:       pos,
		MapQ:      mapq,
		Flags:     flags,
		Cigar:     c,
		Seq:       sam.NewSeq(seq),
		Qual:      qual,
		AuxFields: sam.AuxFields{aux},
	}
}

// writeTestBAM writes recs to path, with a .bai index.
func writeTestBAM(t *testing.T, path string, header *sam.Header, recs []*sam.Record) {
	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	assert.NoError(t, err)
	for _, r := range recs {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())

	in, err := os.Open(path)
	assert.NoError(t, err)
	defer in.Close() // nolint: errcheck
	reader, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	var index bam.Index
	for {
		r, err := reader.Read()
		if err != nil {
			break
		}
		assert.NoError(t, index.Add(r, reader.LastChunk()))
	}
	assert.NoError(t, reader.Close())
	indexOut, err := os.Create(path + ".bai")
	assert.NoError(t, err)
	assert.NoError(t, bam.WriteIndex(indexOut, &index))
	assert.NoError(t, indexOut.Close())
}

func readLines(t *testing.T, path string) []string {
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

type testInputs struct {
	dir, bamPath, faPath string
}

func setupInputs(t *testing.T, dir string) testInputs {
	chr1, err := sam.NewReference("chr1", "", "", 40, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader([]byte(testHeader), []*sam.Reference{chr1})
	assert.NoError(t, err)
	recs := []*sam.Record{
		newTestRead(t, "a", chr1, 2, "4M", "rg1", 60, 0),
		newTestRead(t, "c", chr1, 4, "4M", "rg1", 5, 0),
		newTestRead(t, "b", chr1, 4, "2M1I2M", "rg2", 60, sam.Reverse),
		newTestRead(t, "d", chr1, 6, "4M", "rg2", 60, sam.Duplicate),
	}
	in := testInputs{
		dir:     dir,
		bamPath: filepath.Join(dir, "test.bam"),
		faPath:  filepath.Join(dir, "ref.fa"),
	}
	writeTestBAM(t, in.bamPath, header, recs)
	ref := strings.Repeat("ACGT", 10)
	assert.NoError(t, ioutil.WriteFile(in.faPath, []byte(">chr1\n"+ref[:20]+"\n"+ref[20:]+"\n"), 0644))
	return in
}

func TestPileup(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	in := setupInputs(t, tmpDir)

	opts := DefaultOpts
	opts.Cols = "counts,samples"
	opts.Mapq = 20
	opts.OutPrefix = filepath.Join(tmpDir, "full")
	opts.Locus.GenerateExtendedEvents = true
	reg := prometheus.NewRegistry()
	stats, err := Pileup(ctx, in.bamPath, in.faPath, &opts, reg)
	assert.NoError(t, err)
	expect.EQ(t, stats.ReadsSeen, 2)
	expect.EQ(t, stats.ReadsAdmitted, 2)
	expect.EQ(t, stats.LociEmitted, 6)
	expect.EQ(t, stats.ExtendedLociEmitted, 1)
	expect.EQ(t, readLines(t, opts.OutPrefix+".tsv"), []string{
		"#CHROM\tPOS\tREF\tDEPTH\tNDEL\tNMQ0\tA\tC\tG\tT\tN\tS1\tS2",
		"chr1\t3\tG\t1\t0\t0\t1\t0\t0\t0\t0\t1\t0",
		"chr1\t4\tT\t1\t0\t0\t0\t1\t0\t0\t0\t1\t0",
		"chr1\t5\tA\t2\t0\t0\t1\t0\t1\t0\t0\t1\t1",
		"chr1\t6\tC\t2\t0\t0\t0\t1\t0\t1\t0\t1\t1",
		"chr1\t7\tG\t1\t0\t0\t0\t0\t0\t1\t0\t0\t1",
		"chr1\t8\tT\t1\t0\t0\t1\t0\t0\t0\t0\t0\t1",
	})
	expect.EQ(t, readLines(t, opts.OutPrefix+".indel.tsv"), []string{
		"#CHROM\tPOS\tREF\tDEPTH\tNINS\tNDEL\tMAXDEL\tNMQ0\tEVENTS",
		"chr1\t6\tC\t1\t1\t0\t0\t0\t+1G:1",
	})
	families, err := reg.Gather()
	assert.NoError(t, err)
	expect.True(t, len(families) > 0)

	// A region is read through the index, and only its loci are reported.
	opts = DefaultOpts
	opts.Mapq = 20
	opts.Region = "chr1:6-7"
	opts.OutPrefix = filepath.Join(tmpDir, "region")
	_, err = Pileup(ctx, in.bamPath, "", &opts, nil)
	assert.NoError(t, err)
	expect.EQ(t, readLines(t, opts.OutPrefix+".tsv"), []string{
		"#CHROM\tPOS\tREF\tDEPTH\tNDEL\tNMQ0\tA\tC\tG\tT\tN",
		"chr1\t6\tN\t2\t0\t0\t0\t1\t0\t1\t0",
		"chr1\t7\tN\t1\t0\t0\t0\t0\t0\t1\t0",
	})

	// A BED file works the same way, without the index.
	bedPath := filepath.Join(tmpDir, "targets.bed")
	assert.NoError(t, ioutil.WriteFile(bedPath, []byte("chr1\t5\t7\n"), 0644))
	opts.Region = ""
	opts.BedPath = bedPath
	opts.BamIndexPath = filepath.Join(tmpDir, "missing.bai")
	opts.OutPrefix = filepath.Join(tmpDir, "bed")
	_, err = Pileup(ctx, in.bamPath, "", &opts, nil)
	assert.NoError(t, err)
	expect.EQ(t, readLines(t, opts.OutPrefix+".tsv"), readLines(t, filepath.Join(tmpDir, "region.tsv")))
}

func TestPileupErrors(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	in := setupInputs(t, tmpDir)

	opts := DefaultOpts
	opts.OutPrefix = filepath.Join(tmpDir, "out")
	opts.Region = "chr1:1-10"
	opts.BedPath = filepath.Join(tmpDir, "targets.bed")
	_, err := Pileup(ctx, in.bamPath, "", &opts, nil)
	expect.Regexp(t, err, "mutually exclusive")

	opts = DefaultOpts
	opts.OutPrefix = filepath.Join(tmpDir, "out")
	opts.Cols = "counts,quals"
	_, err = Pileup(ctx, in.bamPath, "", &opts, nil)
	expect.Regexp(t, err, "quals not found")

	opts = DefaultOpts
	opts.OutPrefix = filepath.Join(tmpDir, "out")
	opts.Locus.DownsampleBy = "lane"
	_, err = Pileup(ctx, in.bamPath, "", &opts, nil)
	expect.Regexp(t, err, "downsample_by")

	opts = DefaultOpts
	opts.OutPrefix = filepath.Join(tmpDir, "out")
	_, err = Pileup(ctx, filepath.Join(tmpDir, "missing.bam"), "", &opts, nil)
	expect.NotNil(t, err)

	// The FASTA disagrees with the BAM header.
	faPath := filepath.Join(tmpDir, "short.fa")
	assert.NoError(t, ioutil.WriteFile(faPath, []byte(">chr1\nACGT\n"), 0644))
	_, err = Pileup(ctx, in.bamPath, faPath, &opts, nil)
	expect.Regexp(t, err, "inconsistent lengths")
}
