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
	"context"

	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// DefaultReadAheadDepth is the default channel capacity of
// NewReadAheadIterator.
const DefaultReadAheadDepth = 1024

type readAheadIterator struct {
	src  Iterator
	ch   chan *sam.Record
	done chan struct{}

	// ctxErr is set by the producer before ch is closed.
	ctxErr error

	rec    *sam.Record
	err    error
	closed bool
}

// NewReadAheadIterator returns an Iterator that yields the records of src,
// which are read on a separate goroutine.  At most depth records are buffered
// ahead of the consumer.  The producer stops when src is exhausted, ctx is
// canceled, or Close is called.  Close also closes src.
//
// src must not be used by the caller after this call.
func NewReadAheadIterator(ctx context.Context, src Iterator, depth int) Iterator {
	if depth <= 0 {
		depth = DefaultReadAheadDepth
	}
	it := &readAheadIterator{
		src:  src,
		ch:   make(chan *sam.Record, depth),
		done: make(chan struct{}),
	}
	go it.produce(ctx)
	return it
}

func (it *readAheadIterator) produce(ctx context.Context) {
	defer close(it.ch)
	for it.src.Scan() {
		if err := ctx.Err(); err != nil {
			it.ctxErr = err
			return
		}
		select {
		case it.ch <- it.src.Record():
		case <-it.done:
			return
		case <-ctx.Done():
			it.ctxErr = ctx.Err()
			return
		}
	}
}

// Scan implements the Iterator interface.
func (it *readAheadIterator) Scan() bool {
	if it.closed {
		vlog.Fatal("readAheadIterator.Scan: called after Close")
	}
	rec, ok := <-it.ch
	if !ok {
		it.rec = nil
		if it.err == nil {
			it.err = it.ctxErr
		}
		if it.err == nil {
			it.err = it.src.Err()
		}
		return false
	}
	it.rec = rec
	return true
}

// Record implements the Iterator interface.
func (it *readAheadIterator) Record() *sam.Record { return it.rec }

// Err implements the Iterator interface.
func (it *readAheadIterator) Err() error { return it.err }

// Close implements the Iterator interface.
func (it *readAheadIterator) Close() error {
	if it.closed {
		return it.err
	}
	it.closed = true
	close(it.done)
	for range it.ch {
	}
	if err := it.src.Close(); err != nil && it.err == nil {
		it.err = err
	}
	return it.err
}
