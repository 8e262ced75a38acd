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

/*
Given a coordinate-sorted BAM, bio-locus-pileup walks the reference one
position at a time and reports, at each covered position, the reads aligned
there.  This command is similar to "samtools mpileup" without the per-read
columns.

Reads are assigned to samples through the SM tag of their read group, and the
number of reads buffered per sample is bounded by reservoir downsampling
(-max-reads-per-sample).  With -extended, insertions and deletions are also
reported, to <prefix>.indel.tsv, at the position preceding each event.

Settings can be read from a YAML file (-config); flags given on the command
line take precedence over it.

Sample usage:
bio-locus-pileup \
    --region chr1:1000000-2000000 \
    --extended \
    --out output-prefix \
    my.bam \
    ref.fa
*/
package main
