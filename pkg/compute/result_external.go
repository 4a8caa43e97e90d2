// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package compute

import (
	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/storage"
)

// ResultExternal holds the rows of a result that does not fit in memory.
type ResultExternal interface {
	// AddRow adds a row and returns the row count of the store.
	AddRow(row chunk.Row) (int64, error)
	AddRows(rows []chunk.Row) (int64, error)
	// Next returns the next row, or nil after the last one.
	Next() (chunk.Row, error)
	Reset() error
	Contains(values chunk.Row) (bool, error)
	RemoveRow(values chunk.Row) (int64, error)
	// CreateShallowCopy returns a reader sharing the rows, or nil.
	CreateShallowCopy() ResultExternal
	Close() error
}

type ExternalOptions struct {
	VisibleColumnCount int
	ResultColumnCount  int
	Distinct           bool
	DistinctIndexes    []int
	Sort               *SortOrder
	CompareMode        chunk.CompareMode
}

// ExternalFactory creates the store a result spills to.
type ExternalFactory func(opts ExternalOptions) (ResultExternal, error)

// TempResultFactory creates bbolt temporary stores in dir.
func TempResultFactory(dir string) ExternalFactory {
	return func(opts ExternalOptions) (ResultExternal, error) {
		tOpts := storage.TempResultOptions{
			VisibleColumnCount: opts.VisibleColumnCount,
			ResultColumnCount:  opts.ResultColumnCount,
			Distinct:           opts.Distinct,
			DistinctIndexes:    opts.DistinctIndexes,
			CompareMode:        opts.CompareMode,
		}
		if opts.Sort != nil {
			tOpts.Sort = opts.Sort
		}
		tr, err := storage.NewTempResult(dir, tOpts)
		if err != nil {
			return nil, err
		}
		return tempExternal{tr}, nil
	}
}

type tempExternal struct {
	*storage.TempResult
}

func (t tempExternal) CreateShallowCopy() ResultExternal {
	cp := t.TempResult.CreateShallowCopy()
	if cp == nil {
		return nil
	}
	return tempExternal{cp}
}

var _ ResultExternal = tempExternal{}
