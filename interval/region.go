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
package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PosType is the coordinate type of this package.
type PosType = int32

// PosTypeMax is the largest representable position.
const PosTypeMax = math.MaxInt32

// Entry represents a single interval, with 0-based half-open coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// String prints the entry in 1-based region-string form, so that
// ParseRegionString(e.String()) == e.
func (e Entry) String() string {
	if e.End == e.Start0+1 {
		return fmt.Sprintf("%s:%d", e.RefName, e.Start0+1)
	}
	return fmt.Sprintf("%s:%d-%d", e.RefName, e.Start0+1, e.End)
}

// Len returns the number of bases covered by the entry.
func (e Entry) Len() int {
	return int(e.End - e.Start0)
}

// ParseRegionString parses a region string of one of the forms
//   [contig]:[1-based first pos]-[last pos]
//   [contig]:[1-based pos]
//   [contig]
// returning the contig and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1) is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if region == "" {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colon := strings.LastIndexByte(region, ':')
	if colon == -1 {
		result = Entry{RefName: region, Start0: 0, End: PosTypeMax - 1}
		return
	}
	if colon == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig in %q", region)
		return
	}
	result.RefName = region[:colon]
	rangeStr := strings.Replace(region[colon+1:], ",", "", -1)
	dash := strings.IndexByte(rangeStr, '-')
	if dash == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			err = fmt.Errorf("interval.ParseRegionString: %q: %v", region, err)
			return
		}
		if pos1 <= 0 || pos1 >= PosTypeMax {
			err = fmt.Errorf("interval.ParseRegionString: position %v out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	var start1, last int64
	if start1, err = strconv.ParseInt(rangeStr[:dash], 10, 64); err != nil {
		err = fmt.Errorf("interval.ParseRegionString: %q: %v", region, err)
		return
	}
	if last, err = strconv.ParseInt(rangeStr[dash+1:], 10, 64); err != nil {
		err = fmt.Errorf("interval.ParseRegionString: %q: %v", region, err)
		return
	}
	if start1 <= 0 || last < start1 || last >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(last)
	return
}
