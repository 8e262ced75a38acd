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
package interval_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biotraverse/interval"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

func testHeader(t *testing.T) *sam.Header {
	chr1, err := sam.NewReference("chr1", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	assert.NoError(t, err)
	return header
}

const testBED = `track name=test
chr1	100	200
chr1	150	250
chr1	250	260
chr1	400	500
chr2	10	20
chr3	0	5
`

func TestNewTargets(t *testing.T) {
	targets, err := interval.NewTargets(strings.NewReader(testBED), interval.NewTargetsOpts{SAMHeader: testHeader(t)})
	assert.NoError(t, err)
	expect.EQ(t, targets.Entries(), []interval.Entry{
		{"chr1", 100, 260},
		{"chr1", 400, 500},
		{"chr2", 10, 20},
		{"chr3", 0, 5},
	})
	expect.EQ(t, targets.NBases(), 160+100+10+5)

	tests := []struct {
		refID int
		pos   interval.PosType
		want  bool
	}{
		{0, 99, false},
		{0, 100, true},
		{0, 259, true},
		{0, 260, false},
		{0, 450, true},
		{0, 500, false},
		// Non-sequential query.
		{0, 120, true},
		{1, 15, true},
		{1, 20, false},
		{2, 0, false},
		{-1, 0, false},
	}
	for _, test := range tests {
		expect.EQ(t, targets.ContainsByID(test.refID, test.pos), test.want, "%+v", test)
	}
}

func TestIntersectsByID(t *testing.T) {
	targets, err := interval.NewTargets(strings.NewReader(testBED), interval.NewTargetsOpts{SAMHeader: testHeader(t)})
	assert.NoError(t, err)
	tests := []struct {
		start, end interval.PosType
		want       bool
	}{
		{0, 100, false},
		{0, 101, true},
		{150, 151, true},
		{260, 400, false},
		{260, 401, true},
		{300, 350, false},
		{499, 1000, true},
		{500, 1000, false},
		{120, 120, false},
	}
	for _, test := range tests {
		expect.EQ(t, targets.IntersectsByID(0, test.start, test.end), test.want, "%+v", test)
	}
}

func TestOneBasedInput(t *testing.T) {
	targets, err := interval.NewTargets(strings.NewReader("chr1\t1\t10\n"),
		interval.NewTargetsOpts{OneBasedInput: true})
	assert.NoError(t, err)
	expect.EQ(t, targets.Entries(), []interval.Entry{{"chr1", 0, 10}})
}

func TestNewTargetsErrors(t *testing.T) {
	_, err := interval.NewTargets(strings.NewReader("chr1\t10\n"), interval.NewTargetsOpts{})
	expect.Regexp(t, err, "fewer tokens")
	_, err = interval.NewTargets(strings.NewReader("chr1\t10\t5\n"), interval.NewTargetsOpts{})
	expect.Regexp(t, err, "invalid coordinate pair")
	_, err = interval.NewTargets(strings.NewReader("chr1\tx\t5\n"), interval.NewTargetsOpts{})
	expect.NotNil(t, err)
}

func TestNewTargetsFromPathGzip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testBED))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())

	ctx := vcontext.Background()
	path := filepath.Join(tmpdir, "targets.bed.gz")
	assert.NoError(t, file.WriteFile(ctx, path, buf.Bytes()))

	targets, err := interval.NewTargetsFromPath(path, interval.NewTargetsOpts{SAMHeader: testHeader(t)})
	assert.NoError(t, err)
	expect.True(t, targets.ContainsByID(1, 10))
	expect.EQ(t, len(targets.Entries()), 4)
}

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region string
		want   interval.Entry
		errRe  string
	}{
		{"chr1", interval.Entry{"chr1", 0, interval.PosTypeMax - 1}, ""},
		{"chr1:5", interval.Entry{"chr1", 4, 5}, ""},
		{"chr1:5-10", interval.Entry{"chr1", 4, 10}, ""},
		{"chr1:1,000-2,000", interval.Entry{"chr1", 999, 2000}, ""},
		{"HLA-A*01:01:01:01:1-3", interval.Entry{"HLA-A*01:01:01:01", 0, 3}, ""},
		{"", interval.Entry{}, "empty region"},
		{":5", interval.Entry{}, "empty contig"},
		{"chr1:0", interval.Entry{}, "out of range"},
		{"chr1:10-5", interval.Entry{}, "invalid range"},
		{"chr1:a-5", interval.Entry{}, "invalid syntax"},
	}
	for _, test := range tests {
		got, err := interval.ParseRegionString(test.region)
		if test.errRe != "" {
			expect.Regexp(t, err, test.errRe, test.region)
			continue
		}
		expect.NoError(t, err, test.region)
		expect.EQ(t, got, test.want)
		if got.End != interval.PosTypeMax-1 {
			rt, err := interval.ParseRegionString(got.String())
			expect.NoError(t, err)
			expect.EQ(t, rt, got)
		}
	}
}

func TestNewTargetsFromRegion(t *testing.T) {
	targets, err := interval.NewTargetsFromRegion("chr2:11-20", interval.NewTargetsOpts{SAMHeader: testHeader(t)})
	assert.NoError(t, err)
	expect.False(t, targets.ContainsByID(1, 9))
	expect.True(t, targets.ContainsByID(1, 10))
	expect.True(t, targets.ContainsByID(1, 19))
	expect.False(t, targets.ContainsByID(1, 20))
	clone := targets.Clone()
	expect.True(t, clone.ContainsByID(1, 15))
}
