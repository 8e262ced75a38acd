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

// Package bamprovider provides coordinate-ordered access to the records of a
// BAM file, either in full or restricted to a genomic region.
//
// Iterator is the read stream consumed by the locus traversal. Iterators can
// be stacked: NewFilterIterator drops reads that should never reach a pileup,
// and NewReadAheadIterator decodes records on a separate goroutine.
package bamprovider
