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

// Package locus turns a coordinate-sorted stream of aligned reads into a
// stream of per-position pileups.
//
// Each buffered read is wrapped in a Walker, a CIGAR state machine that moves
// one reference base per step.  Walkers are kept in "hangers", one per
// alignment start, and grouped by sample within a hanger.  For every reference
// position covered by a read, the Iterator emits an AlignmentContext holding
// the reads aligned there and their read offsets, then steps every walker.
//
// When extended events are enabled, an insertion or deletion is reported in a
// separate context attached to the base preceding the event, emitted just
// before the normal context of the following base.
//
// Per-sample depth is bounded with reservoir sampling over reads that share an
// alignment start, plus an eviction policy over the buffered hangers.  Reads
// lost this way are reported through an OverflowTracker.  All random choices
// come from a fixed seed, so a run is reproducible.
package locus
