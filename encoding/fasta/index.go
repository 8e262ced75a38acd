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
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes the .fai index of the FASTA data read from in to out.
// The index can be passed to NewIndexed to random-access the FASTA file.
//
// The index format is defined by "samtools faidx"
// (http://www.htslib.org/doc/faidx.html).  The line geometry of a sequence is
// taken from its first line.
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		w       = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		cur     indexEntry
		inSeq   bool
		fileOff uint64
	)
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		if !inSeq {
			return
		}
		w.WriteString(cur.name)
		w.WriteInt64(int64(cur.length))
		w.WriteInt64(int64(cur.offset))
		w.WriteInt64(int64(cur.lineBases))
		w.WriteInt64(int64(cur.lineWidth))
		setErr(w.EndLine())
	}
	for eof := false; !eof && err == nil; {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF {
			eof = true
		} else if e != nil {
			setErr(e)
		}
		fileOff += uint64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			cur = indexEntry{name: seqNameFromHeader(line), offset: fileOff}
			inSeq = true
			continue
		}
		if !inSeq {
			setErr(errors.E(errors.Invalid, "malformed FASTA file: sequence data before the first header"))
			break
		}
		if cur.lineWidth == 0 {
			cur.lineWidth = uint64(len(fullLine))
			cur.lineBases = uint64(len(line))
		}
		cur.length += uint64(len(line))
	}
	if fileOff == 0 {
		setErr(errors.E(errors.Invalid, "empty FASTA file"))
		return
	}
	flush()
	setErr(w.Flush())
	return
}
