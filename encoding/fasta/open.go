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
	"bytes"
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Reference is an indexed FASTA file opened by Open.
type Reference struct {
	Fasta
	in file.File
}

// Open opens the FASTA file at path for indexed access.  The index is read
// from path+".fai"; if that file does not exist, the index is generated in
// memory, which requires a full pass over the FASTA file.
func Open(ctx context.Context, path string) (*Reference, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "fasta.Open", path)
	}
	var index bytes.Buffer
	idx, err := file.Open(ctx, path+".fai")
	switch {
	case err == nil:
		_, err = index.ReadFrom(idx.Reader(ctx))
		if e := idx.Close(ctx); e != nil && err == nil {
			err = e
		}
	case errors.Is(errors.NotExist, err):
		log.Printf("fasta.Open: %s.fai not found, indexing %s", path, path)
		err = GenerateIndex(&index, in.Reader(ctx))
	}
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, "fasta.Open: index of", path)
	}
	fa, err := NewIndexed(in.Reader(ctx), &index)
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, "fasta.Open", path)
	}
	return &Reference{Fasta: fa, in: in}, nil
}

// Close closes the underlying file.
func (r *Reference) Close(ctx context.Context) error {
	return r.in.Close(ctx)
}
