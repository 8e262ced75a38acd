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
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biotraverse/pileup"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
)

// Output formats supported by Writer.
const (
	FormatTSV    = "tsv"
	FormatTSVBGZ = "tsv-bgz"
)

// Optional column sets of the main output.
//   Counts  = A/C/G/T/N base counts.
//   Strands = forward/reverse read depth.
//   Samples = depth of each sample named in WriterOpts.Samples.
const (
	ColCounts = 1 << iota
	ColStrands
	ColSamples
)

// ColNameMap maps column-set names, as accepted by pileup.ParseCols, to
// column bits.
var ColNameMap = map[string]int{
	"counts":  ColCounts,
	"strands": ColStrands,
	"samples": ColSamples,
}

// DefaultCols is the default column set.
const DefaultCols = ColCounts

// RefBaser returns reference bases.  *fasta.Window implements it.
type RefBaser interface {
	Base(seqName string, pos int) byte
}

// WriterOpts configures a Writer.
type WriterOpts struct {
	// Format is FormatTSV or FormatTSVBGZ.
	Format string
	// Cols is a bitset of Col* values.
	Cols int
	// Samples names the per-sample depth columns.  Sample i of a pileup
	// element is counted in column i; samples beyond the list are only
	// counted in DEPTH.
	Samples []string
	// Ref, if non-nil, supplies the REF column.  Otherwise REF is 'N'.
	Ref RefBaser
	// Extended enables the <prefix>.indel.tsv output.
	Extended bool
	// Parallelism is the number of bgzf compression goroutines.
	Parallelism int
}

type tsvFile struct {
	path string
	f    file.File
	bgz  *bgzf.Writer
	w    *tsv.Writer
}

func createTSV(ctx context.Context, path string, opts WriterOpts) (*tsvFile, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	t := &tsvFile{path: path, f: f}
	if opts.Format == FormatTSVBGZ {
		t.bgz = bgzf.NewWriter(f.Writer(ctx), opts.Parallelism)
		t.w = tsv.NewWriter(t.bgz)
	} else {
		t.w = tsv.NewWriter(f.Writer(ctx))
	}
	return t, nil
}

func (t *tsvFile) close(ctx context.Context) (err error) {
	defer file.CloseAndReport(ctx, t.f, &err)
	err = t.w.Flush()
	if t.bgz != nil {
		if e := t.bgz.Close(); e != nil && err == nil {
			err = e
		}
	}
	return
}

// discard abandons the file without creating it at path.
func (t *tsvFile) discard(ctx context.Context) {
	if t.bgz != nil {
		_ = t.bgz.Close()
	}
	t.f.Discard(ctx)
}

// Writer writes alignment contexts as TSV.  Normal pileups go to
// <prefix>.tsv, one row per locus:
//
//   #CHROM POS REF DEPTH NDEL NMQ0 [A C G T N] [FWD REV] [<sample>...]
//
// Extended-event pileups go to <prefix>.indel.tsv:
//
//   #CHROM POS REF DEPTH NINS NDEL MAXDEL NMQ0 EVENTS
//
// where EVENTS lists each distinct event with its read count, e.g.
// "+2AC:3,-1:1".  POS is 1-based.  With FormatTSVBGZ, ".gz" is appended to
// both paths.
type Writer struct {
	opts  WriterOpts
	main  *tsvFile
	indel *tsvFile

	counts  [pileup.NBaseEnum]int
	strands [3]int
	samples []int
}

// NewWriter creates the output files and writes their headers.
func NewWriter(ctx context.Context, prefix string, opts WriterOpts) (*Writer, error) {
	suffix := ".tsv"
	switch opts.Format {
	case "", FormatTSV:
		opts.Format = FormatTSV
	case FormatTSVBGZ:
		suffix += ".gz"
	default:
		return nil, fmt.Errorf("locus.NewWriter: unknown format %q", opts.Format)
	}
	w := &Writer{opts: opts, samples: make([]int, len(opts.Samples))}
	var err error
	if w.main, err = createTSV(ctx, prefix+suffix, opts); err != nil {
		return nil, err
	}
	if opts.Extended {
		if w.indel, err = createTSV(ctx, prefix+".indel"+suffix, opts); err != nil {
			w.main.discard(ctx)
			return nil, err
		}
	}
	if err = w.writeHeaders(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// writeHeaders writes the header line of each output.  On failure it
// discards the outputs.
func (w *Writer) writeHeaders(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			w.main.discard(ctx)
			if w.indel != nil {
				w.indel.discard(ctx)
			}
		}
	}()
	opts := w.opts
	m := w.main.w
	m.WriteString("#CHROM\tPOS\tREF\tDEPTH\tNDEL\tNMQ0")
	if opts.Cols&ColCounts != 0 {
		m.WriteString("A\tC\tG\tT\tN")
	}
	if opts.Cols&ColStrands != 0 {
		m.WriteString("FWD\tREV")
	}
	if opts.Cols&ColSamples != 0 {
		for _, s := range opts.Samples {
			m.WriteString(s)
		}
	}
	if err = m.EndLine(); err != nil {
		return err
	}
	if w.indel != nil {
		w.indel.w.WriteString("#CHROM\tPOS\tREF\tDEPTH\tNINS\tNDEL\tMAXDEL\tNMQ0\tEVENTS")
		err = w.indel.w.EndLine()
	}
	return err
}

func (w *Writer) refBase(ref *sam.Reference, pos int) byte {
	if w.opts.Ref == nil {
		return 'N'
	}
	return w.opts.Ref.Base(ref.Name(), pos)
}

// writeChromPosRef appends the CHROM/POS/REF columns, converting pos to
// 1-based.
func (w *Writer) writeChromPosRef(t *tsv.Writer, l Locus) {
	t.WriteString(l.Ref.Name())
	t.WriteUint32(uint32(l.Pos + 1))
	t.WriteByte(w.refBase(l.Ref, l.Pos))
}

// Write appends c to the matching output.  Extended contexts are dropped if
// the writer was created without WriterOpts.Extended.
func (w *Writer) Write(c *AlignmentContext) error {
	if c.IsExtended() {
		if w.indel == nil {
			return nil
		}
		return w.writeExtended(c.Locus, c.Extended)
	}
	return w.writeNormal(c.Locus, c.Pileup)
}

func (w *Writer) writeNormal(l Locus, p *Pileup) error {
	t := w.main.w
	w.writeChromPosRef(t, l)
	t.WriteInt64(int64(p.Depth()))
	t.WriteInt64(int64(p.NDeletions))
	t.WriteInt64(int64(p.NMapQ0))
	if w.opts.Cols&(ColCounts|ColStrands|ColSamples) != 0 {
		w.counts = [pileup.NBaseEnum]int{}
		w.strands = [3]int{}
		for i := range w.samples {
			w.samples[i] = 0
		}
		for _, e := range p.Elements {
			if !e.IsDeletion() {
				w.counts[pileup.ASCIIToEnum(e.Base())]++
			}
			w.strands[pileup.ReadStrand(e.Read)]++
			if e.Sample < len(w.samples) {
				w.samples[e.Sample]++
			}
		}
	}
	if w.opts.Cols&ColCounts != 0 {
		for _, n := range w.counts {
			t.WriteInt64(int64(n))
		}
	}
	if w.opts.Cols&ColStrands != 0 {
		t.WriteInt64(int64(w.strands[pileup.StrandFwd]))
		t.WriteInt64(int64(w.strands[pileup.StrandRev]))
	}
	if w.opts.Cols&ColSamples != 0 {
		for _, n := range w.samples {
			t.WriteInt64(int64(n))
		}
	}
	return t.EndLine()
}

// formatEvents lists the distinct events of p in order of first appearance,
// each with its read count.
func formatEvents(p *ExtendedEventPileup) string {
	var (
		keys   []string
		counts = map[string]int{}
	)
	for _, e := range p.Elements {
		if e.Type == NoEvent {
			continue
		}
		k := e.String()
		if counts[k] == 0 {
			keys = append(keys, k)
		}
		counts[k]++
	}
	if len(keys) == 0 {
		return "."
	}
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(counts[k]))
	}
	return sb.String()
}

func (w *Writer) writeExtended(l Locus, p *ExtendedEventPileup) error {
	t := w.indel.w
	w.writeChromPosRef(t, l)
	t.WriteInt64(int64(p.Depth()))
	t.WriteInt64(int64(p.NInsertions))
	t.WriteInt64(int64(p.NDeletions))
	t.WriteInt64(int64(p.MaxDeletionLen))
	t.WriteInt64(int64(p.NMapQ0))
	t.WriteString(formatEvents(p))
	return t.EndLine()
}

// Close flushes and closes the output files.
func (w *Writer) Close(ctx context.Context) error {
	err := w.main.close(ctx)
	if w.indel != nil {
		if e := w.indel.close(ctx); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// HeaderSamples returns the sample names of header's read groups, in the
// order an Iterator over reads with this header assigns sample indices.
func HeaderSamples(header *sam.Header) []string {
	return newSampleIndex(header).names
}
