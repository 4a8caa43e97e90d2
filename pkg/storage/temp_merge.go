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
package storage

import (
	"container/heap"

	"go.etcd.io/bbolt"

	"github.com/daviszhen/rowbuf/pkg/chunk"
)

type runHead struct {
	row    chunk.Row
	run    int
	cursor *bbolt.Cursor
}

// runHeap orders run heads by row, then by run. Runs hold consecutive
// slices of the insertion order, so equal rows come out in the order
// they were added.
type runHeap struct {
	heads []*runHead
	cmp   chunk.RowComparator
}

func (h *runHeap) Len() int {
	return len(h.heads)
}

func (h *runHeap) Less(i, j int) bool {
	ret := h.cmp.Compare(h.heads[i].row, h.heads[j].row)
	if ret != 0 {
		return ret < 0
	}
	return h.heads[i].run < h.heads[j].run
}

func (h *runHeap) Swap(i, j int) {
	h.heads[i], h.heads[j] = h.heads[j], h.heads[i]
}

func (h *runHeap) Push(x any) {
	h.heads = append(h.heads, x.(*runHead))
}

func (h *runHeap) Pop() any {
	n := len(h.heads)
	x := h.heads[n-1]
	h.heads[n-1] = nil
	h.heads = h.heads[:n-1]
	return x
}

type runMerge struct {
	codec *rowCodec
	heap  runHeap
}

func newRunMerge(tx *bbolt.Tx, codec *rowCodec, cmp chunk.RowComparator, runCount int) (*runMerge, error) {
	m := &runMerge{
		codec: codec,
		heap: runHeap{
			heads: make([]*runHead, 0, runCount),
			cmp:   cmp,
		},
	}
	runs := tx.Bucket(bucketRuns)
	for i := 0; i < runCount; i++ {
		cursor := runs.Bucket(seqKey(uint64(i))).Cursor()
		k, v := cursor.First()
		if k == nil {
			continue
		}
		row, err := codec.decode(v)
		if err != nil {
			return nil, err
		}
		m.heap.heads = append(m.heap.heads, &runHead{
			row:    row,
			run:    i,
			cursor: cursor,
		})
	}
	heap.Init(&m.heap)
	return m, nil
}

func (m *runMerge) next() (chunk.Row, error) {
	if m.heap.Len() == 0 {
		return nil, nil
	}
	head := m.heap.heads[0]
	row := head.row
	k, v := head.cursor.Next()
	if k == nil {
		heap.Pop(&m.heap)
		return row, nil
	}
	next, err := m.codec.decode(v)
	if err != nil {
		return nil, err
	}
	head.row = next
	heap.Fix(&m.heap, 0)
	return row, nil
}
