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
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames are allowed to be S3 URLs, in which case the data will be read from
// S3. Otherwise the data will be read from the local filesystem.
//
// The index is needed only by iterators over a Region with a non-nil Ref.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu      sync.Mutex
	nActive int
	header  *sam.Header
	index   *bam.Index
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	region   Region

	err  error
	next *sam.Record
}

func (b *BAMProvider) indexPath() string {
	if b.Index == "" {
		return b.Path + ".bai"
	}
	return b.Index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b.Path)
	}
	return b.err.Err()
}

// loadIndex reads the .bai file once per provider.
func (b *BAMProvider) loadIndex() (*bam.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return b.index, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.indexPath())
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	if b.index, err = bam.ReadIndex(in.Reader(ctx)); err != nil {
		return nil, fmt.Errorf("bamprovider: read index %s: %v", b.indexPath(), err)
	}
	return b.index, nil
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(region Region) Iterator {
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()

	iter := &bamIterator{provider: b, region: region}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		return iter
	}
	if region.Ref == nil {
		return iter
	}
	if region.Start >= region.End {
		iter.err = fmt.Errorf("bamprovider.NewIterator: empty region %v", region)
		return iter
	}
	var idx *bam.Index
	if idx, iter.err = b.loadIndex(); iter.err != nil {
		return iter
	}
	chunks, err := idx.Chunks(region.Ref, region.Start, region.End)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads for this interval.
		iter.err = io.EOF
		return iter
	}
	if err != nil {
		iter.err = err
		return iter
	}
	iter.err = iter.reader.Seek(chunks[0].Begin)
	vlog.VI(1).Infof("%v: seeking to %v for %v", b.Path, chunks[0].Begin, region)
	return iter
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	for {
		if i.next, i.err = i.reader.Read(); i.err != nil {
			return false
		}
		if i.region.past(i.next) {
			i.err = io.EOF
			return false
		}
		if i.region.Overlaps(i.next) {
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	i.provider.err.Set(err)

	b := i.provider
	b.mu.Lock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b.Path)
	}
	b.mu.Unlock()
	return err
}
