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
	"github.com/grailbio/base/log"
	"github.com/grailbio/biotraverse/interval"
)

// DefaultMaxOverflowWarnings is the default number of overflow warnings an
// OverflowTracker logs before it starts suppressing them.
const DefaultMaxOverflowWarnings = 10

// OverflowTracker logs a limited number of warnings for loci where more reads
// arrived than could be buffered.  Overflowing loci that overlap or touch are
// coalesced into one region, so that a deep region produces a single warning.
//
// Each Iterator owns its tracker; trackers are not safe for concurrent use.
type OverflowTracker struct {
	maxReads    int
	maxWarnings int
	metrics     *Metrics

	pending    interval.Entry
	hasPending bool

	warnings           []interval.Entry
	suppressed         int
	reportedSuppressed int
}

// NewOverflowTracker creates a tracker for a per-sample limit of maxReads.  At
// most maxWarnings regions are logged; a negative value means no limit.
func NewOverflowTracker(maxReads, maxWarnings int) *OverflowTracker {
	return &OverflowTracker{maxReads: maxReads, maxWarnings: maxWarnings}
}

// Exceeded records that reads overlapping region were dropped, and that
// retained reads were kept at its start.
func (t *OverflowTracker) Exceeded(region interval.Entry, retained int) {
	t.metrics.incOverflow()
	log.Debug.Printf("locus.OverflowTracker: %s: kept %d read(s)", region, retained)
	if t.hasPending && t.pending.RefName == region.RefName && region.Start0 <= t.pending.End {
		if region.End > t.pending.End {
			t.pending.End = region.End
		}
		return
	}
	t.flushPending()
	t.pending = region
	t.hasPending = true
}

func (t *OverflowTracker) flushPending() {
	if !t.hasPending {
		return
	}
	t.hasPending = false
	if t.maxWarnings >= 0 && len(t.warnings) >= t.maxWarnings {
		t.suppressed++
		return
	}
	t.warnings = append(t.warnings, t.pending)
	log.Printf("locus.OverflowTracker: warning: more than %d reads per sample in %s; excess reads were downsampled",
		t.maxReads, t.pending)
}

// Flush logs the region that is still being coalesced, and a count of the
// warnings suppressed so far.  It may be called more than once.
func (t *OverflowTracker) Flush() {
	t.flushPending()
	if t.suppressed > t.reportedSuppressed {
		log.Printf("locus.OverflowTracker: warning: %d further overflow region(s) were not reported", t.suppressed)
		t.reportedSuppressed = t.suppressed
	}
}

// Warnings returns the regions that have been logged, in order.
func (t *OverflowTracker) Warnings() []interval.Entry { return t.warnings }

// Suppressed returns the number of regions that were not logged because the
// warning limit was reached.
func (t *OverflowTracker) Suppressed() int { return t.suppressed }
