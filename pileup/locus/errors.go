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

import "github.com/pkg/errors"

var (
	// ErrUnsorted is returned when the input reads are not sorted by
	// (reference, alignment start).  The traversal cannot continue.
	ErrUnsorted = errors.New("locus: input is not coordinate-sorted")
	// ErrMalformedCigar is returned for a CIGAR with an unsupported operation,
	// or with two indels not separated by an aligned base.
	ErrMalformedCigar = errors.New("locus: malformed CIGAR")
	// ErrExhausted is returned by Iterator.Next when HasNext is false.
	ErrExhausted = errors.New("locus: no more alignment contexts")
)
