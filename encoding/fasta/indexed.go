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
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
)

// indexEntry is one line of a .fai file.
type indexEntry struct {
	name string
	// length is the number of bases in the sequence.
	length uint64
	// offset is the file offset of the first base.
	offset uint64
	// lineBases is the number of bases per line.
	lineBases uint64
	// lineWidth is the number of bytes per line, including the terminator.
	lineWidth uint64
}

// fileOffset returns the file offset of base pos.
func (e indexEntry) fileOffset(pos uint64) uint64 {
	return e.offset + (pos/e.lineBases)*e.lineWidth + pos%e.lineBases
}

// parseIndex reads a .fai file: one line per sequence, with the fields
// "<name>\t<length>\t<offset>\t<bases per line>\t<bytes per line>".
func parseIndex(r io.Reader) ([]indexEntry, error) {
	var entries []indexEntry
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 5 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("fasta: invalid index line %d: %q", lineno, line))
		}
		e := indexEntry{name: fields[0]}
		for i, dst := range []*uint64{&e.length, &e.offset, &e.lineBases, &e.lineWidth} {
			v, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return nil, errors.E(errors.Invalid, err, fmt.Sprintf("fasta: invalid index line %q", line))
			}
			*dst = v
		}
		if e.length > 0 && (e.lineBases == 0 || e.lineWidth < e.lineBases) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("fasta: invalid line geometry in index line %q", line))
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "fasta: reading index")
	}
	return entries, nil
}

type indexedFasta struct {
	seqs     map[string]indexEntry
	seqNames []string

	mu     sync.Mutex
	reader io.ReadSeeker
	// buf caches file contents starting at bufOff.
	bufOff int64
	buf    []byte
}

// NewIndexed creates a Fasta that reads bases from fasta on demand, using
// the .fai index read from index.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]indexEntry, len(entries)), reader: fasta}
	for _, e := range entries {
		f.seqs[e.name] = e
		f.seqNames = append(f.seqNames, e.name)
	}
	return f, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	e, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.E(errors.NotExist, "sequence not found in index: "+seqName)
	}
	return e.length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

// readAt returns the file bytes [off, off+n).  The returned slice is valid
// until the next call.
//
// REQUIRES: f.mu is held.
func (f *indexedFasta) readAt(off int64, n int) ([]byte, error) {
	if off >= f.bufOff && off+int64(n) <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : off-f.bufOff+int64(n)], nil
	}
	if _, err := f.reader.Seek(off, io.SeekStart); err != nil {
		return nil, errors.E(err, fmt.Sprintf("fasta: seek to %d", off))
	}
	size := 8192
	if size < n {
		size = n
	}
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	f.buf = f.buf[:size]
	nRead, err := io.ReadFull(f.reader, f.buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.E(err, fmt.Sprintf("fasta: read at %d", off))
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	if nRead < n {
		return nil, errors.E(errors.Invalid, "fasta: unexpected end of file (bad index?)")
	}
	return f.buf[:n], nil
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", errors.E(errors.Invalid, "start must be less than end")
	}
	e, ok := f.seqs[seqName]
	if !ok {
		return "", errors.E(errors.NotExist, "sequence not found in index: "+seqName)
	}
	if end > e.length {
		return "", errors.E(errors.Invalid, fmt.Sprintf("end is past end of sequence %s: %d", seqName, e.length))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	off := e.fileOffset(start)
	raw, err := f.readAt(int64(off), int(e.fileOffset(end-1)-off+1))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(int(end - start))
	// Copy the bases of each line, skipping the line terminators.
	col := start % e.lineBases
	for len(raw) > 0 {
		n := e.lineBases - col
		if n > uint64(len(raw)) {
			n = uint64(len(raw))
		}
		sb.Write(raw[:n])
		skip := n + (e.lineWidth - e.lineBases)
		if skip >= uint64(len(raw)) {
			break
		}
		raw = raw[skip:]
		col = 0
	}
	return sb.String(), nil
}
