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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/util"
)

var (
	bucketRows = []byte("rows")
	bucketKeys = []byte("keys")
	bucketRuns = []byte("runs")
)

const (
	// DefaultRunRows is the number of rows sorted in memory at once when
	// a sorted read pass is prepared.
	DefaultRunRows      = 16384
	tempInitialMmapSize = 8 << 20
)

var (
	ErrTempResultClosed  = errors.New("temporary result is closed")
	errReadOnlyCopy      = errors.New("shallow copy of a temporary result is read only")
	errRemoveNotDistinct = errors.New("remove from a temporary result without DISTINCT")
)

type TempResultOptions struct {
	VisibleColumnCount int
	ResultColumnCount  int
	// Distinct deduplicates rows by their visible columns.
	Distinct bool
	// DistinctIndexes deduplicates rows by the columns at these indexes.
	DistinctIndexes []int
	// Sort orders every read pass. When it is set, a row replaces the
	// stored row with the same distinct key if it sorts strictly before it.
	Sort        chunk.RowComparator
	CompareMode chunk.CompareMode
	RunRows     int
}

// tempFile is the bbolt file shared by a TempResult and its shallow copies.
type tempFile struct {
	db   *bbolt.DB
	path string
	refs int

	writeVersion uint64
	runsVersion  uint64
	runsBuilt    bool
	runCount     int
}

type readPass struct {
	tx     *bbolt.Tx
	cursor *bbolt.Cursor
	begun  bool
	merge  *runMerge
}

// TempResult keeps result rows in a temporary bbolt file.
//
// Rows are stored under a sequence number in insertion order, and every
// row's key is indexed so that Contains and DISTINCT need no scan. A read
// pass with a sort order merges sorted runs of at most RunRows rows, so
// memory stays bounded whatever the row count.
//
// A read transaction is open while a pass is in progress. bbolt can
// deadlock when a write transaction starts next to a read transaction
// of the same goroutine, so every write ends the pass first.
type TempResult struct {
	file     *tempFile
	opts     TempResultOptions
	codec    *rowCodec
	rowCount int64
	nextSeq  uint64
	copied   bool
	read     *readPass
	closed   bool
}

func NewTempResult(dir string, opts TempResultOptions) (*TempResult, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if opts.RunRows <= 0 {
		opts.RunRows = DefaultRunRows
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("temp result dir: %w", err)
	}
	codec, err := newRowCodec()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("rowbuf-%s.db", uuid.NewString()))
	bopts := bbolt.Options{
		NoSync:          true,
		NoGrowSync:      true,
		NoFreelistSync:  true,
		FreelistType:    bbolt.FreelistMapType,
		InitialMmapSize: tempInitialMmapSize,
	}
	db, err := bbolt.Open(path, 0600, &bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open temp result: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRows, bucketKeys} {
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var result *multierror.Error
		result = multierror.Append(result, fmt.Errorf("init temp result: %w", err))
		if err = db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err = os.Remove(path); err != nil {
			result = multierror.Append(result, err)
		}
		return nil, result.ErrorOrNil()
	}
	util.Debug("create temp result",
		zap.String("path", path),
		zap.Bool("distinct", opts.Distinct || opts.DistinctIndexes != nil),
		zap.Bool("sorted", opts.Sort != nil))
	return &TempResult{
		file: &tempFile{
			db:   db,
			path: path,
			refs: 1,
		},
		opts:  opts,
		codec: codec,
	}, nil
}

func (t *TempResult) Path() string {
	return t.file.path
}

func (t *TempResult) RowCount() int64 {
	return t.rowCount
}

func (t *TempResult) isDistinct() bool {
	return t.opts.Distinct || t.opts.DistinctIndexes != nil
}

func (t *TempResult) rowKey(row chunk.Row) []byte {
	var key chunk.Row
	if t.opts.DistinctIndexes != nil {
		key = row.Project(t.opts.DistinctIndexes)
	} else {
		key = row.Visible(t.opts.VisibleColumnCount)
	}
	return t.opts.CompareMode.KeyBytes(key)
}

func (t *TempResult) AddRow(row chunk.Row) (int64, error) {
	err := t.update(func(tx *bbolt.Tx) error {
		return t.put(tx, row)
	})
	return t.rowCount, err
}

func (t *TempResult) AddRows(rows []chunk.Row) (int64, error) {
	if len(rows) == 0 {
		return t.rowCount, nil
	}
	err := t.update(func(tx *bbolt.Tx) error {
		for _, row := range rows {
			if err := t.put(tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return t.rowCount, err
}

func (t *TempResult) put(tx *bbolt.Tx, row chunk.Row) error {
	rows := tx.Bucket(bucketRows)
	keys := tx.Bucket(bucketKeys)
	key := t.rowKey(row)
	if t.isDistinct() {
		if old := keys.Get(key); old != nil {
			if t.opts.Sort == nil {
				return nil
			}
			seq := seqKey(keySeq(old))
			stored, err := t.codec.decode(rows.Get(seq))
			if err != nil {
				return err
			}
			if t.opts.Sort.Compare(row, stored) >= 0 {
				return nil
			}
			data, err := t.codec.encode(row)
			if err != nil {
				return err
			}
			return rows.Put(seq, data)
		}
	}
	data, err := t.codec.encode(row)
	if err != nil {
		return err
	}
	seq := seqKey(t.nextSeq)
	t.nextSeq++
	if err = rows.Put(seq, data); err != nil {
		return err
	}
	if err = keys.Put(key, seq); err != nil {
		return err
	}
	t.rowCount++
	return nil
}

// RemoveRow removes the row whose visible columns equal values.
func (t *TempResult) RemoveRow(values chunk.Row) (int64, error) {
	if !t.isDistinct() {
		return t.rowCount, errRemoveNotDistinct
	}
	key := t.opts.CompareMode.KeyBytes(values)
	err := t.update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketKeys)
		old := keys.Get(key)
		if old == nil {
			return nil
		}
		seq := seqKey(keySeq(old))
		if err := keys.Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRows).Delete(seq); err != nil {
			return err
		}
		t.rowCount--
		return nil
	})
	return t.rowCount, err
}

// Contains reports whether a row with the key values was added. values
// is the distinct key of a DISTINCT result and the visible columns
// otherwise.
func (t *TempResult) Contains(values chunk.Row) (bool, error) {
	if t.closed {
		return false, ErrTempResultClosed
	}
	key := t.opts.CompareMode.KeyBytes(values)
	found := false
	err := t.file.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketKeys).Get(key) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("temp result lookup: %w", err)
	}
	return found, nil
}

func (t *TempResult) update(fn func(tx *bbolt.Tx) error) error {
	if t.closed {
		return ErrTempResultClosed
	}
	if t.copied {
		return errReadOnlyCopy
	}
	if err := t.closeRead(); err != nil {
		return err
	}
	seq, count := t.nextSeq, t.rowCount
	if err := t.file.db.Update(fn); err != nil {
		t.nextSeq, t.rowCount = seq, count
		return fmt.Errorf("temp result write: %w", err)
	}
	t.file.writeVersion++
	return nil
}

// Reset starts a new read pass from the first row.
func (t *TempResult) Reset() error {
	if t.closed {
		return ErrTempResultClosed
	}
	if err := t.closeRead(); err != nil {
		return err
	}
	if t.opts.Sort != nil {
		if err := t.ensureRuns(); err != nil {
			return err
		}
	}
	tx, err := t.file.db.Begin(false)
	if err != nil {
		return fmt.Errorf("temp result read: %w", err)
	}
	pass := &readPass{tx: tx}
	if t.opts.Sort != nil {
		pass.merge, err = newRunMerge(tx, t.codec, t.opts.Sort, t.file.runCount)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	} else {
		pass.cursor = tx.Bucket(bucketRows).Cursor()
	}
	t.read = pass
	return nil
}

// Next returns the next row of the read pass, or nil after the last one.
func (t *TempResult) Next() (chunk.Row, error) {
	if t.closed {
		return nil, ErrTempResultClosed
	}
	if t.read == nil {
		if err := t.Reset(); err != nil {
			return nil, err
		}
	}
	if t.read.merge != nil {
		return t.read.merge.next()
	}
	var k, v []byte
	if !t.read.begun {
		k, v = t.read.cursor.First()
		t.read.begun = true
	} else {
		k, v = t.read.cursor.Next()
	}
	if k == nil {
		return nil, nil
	}
	return t.codec.decode(v)
}

func (t *TempResult) closeRead() error {
	if t.read == nil {
		return nil
	}
	err := t.read.tx.Rollback()
	t.read = nil
	if err != nil {
		return fmt.Errorf("end temp result read: %w", err)
	}
	return nil
}

// ensureRuns rebuilds the sorted runs when rows were written after the
// last build.
func (t *TempResult) ensureRuns() error {
	file := t.file
	if file.runsBuilt && file.runsVersion == file.writeVersion {
		return nil
	}
	if t.copied {
		return errReadOnlyCopy
	}
	if err := t.closeRead(); err != nil {
		return err
	}
	runCount := 0
	err := file.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRuns) != nil {
			if err := tx.DeleteBucket(bucketRuns); err != nil {
				return err
			}
		}
		runs, err := tx.CreateBucket(bucketRuns)
		if err != nil {
			return err
		}
		batch := make([]chunk.Row, 0, min(t.opts.RunRows, int(t.rowCount)))
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			slices.SortStableFunc(batch, t.opts.Sort.Compare)
			run, err := runs.CreateBucket(seqKey(uint64(runCount)))
			if err != nil {
				return err
			}
			runCount++
			for i, row := range batch {
				data, err := t.codec.encode(row)
				if err != nil {
					return err
				}
				if err = run.Put(seqKey(uint64(i)), data); err != nil {
					return err
				}
			}
			batch = batch[:0]
			return nil
		}
		src := tx.Bucket(bucketRows).Cursor()
		for k, v := src.First(); k != nil; k, v = src.Next() {
			row, err := t.codec.decode(v)
			if err != nil {
				return err
			}
			batch = append(batch, row)
			if len(batch) >= t.opts.RunRows {
				if err = flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		return fmt.Errorf("sort temp result: %w", err)
	}
	file.runCount = runCount
	file.runsVersion = file.writeVersion
	file.runsBuilt = true
	util.Debug("sort temp result",
		zap.String("path", file.path),
		zap.Int("runs", runCount),
		zap.Int64("rows", t.rowCount))
	return nil
}

// CreateShallowCopy returns a reader over the same file with its own
// read pass. The copy cannot write. It returns nil when the result is
// closed or its runs cannot be prepared.
func (t *TempResult) CreateShallowCopy() *TempResult {
	if t.closed {
		return nil
	}
	if t.opts.Sort != nil {
		if err := t.ensureRuns(); err != nil {
			util.Warn("prepare temp result copy", zap.Error(err))
			return nil
		}
	}
	t.file.refs++
	return &TempResult{
		file:     t.file,
		opts:     t.opts,
		codec:    t.codec,
		rowCount: t.rowCount,
		nextSeq:  t.nextSeq,
		copied:   true,
	}
}

// Close ends the read pass. The file is removed when the last copy
// sharing it is closed.
func (t *TempResult) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var result *multierror.Error
	if err := t.closeRead(); err != nil {
		result = multierror.Append(result, err)
	}
	t.file.refs--
	if t.file.refs == 0 {
		if err := t.file.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close temp result: %w", err))
		}
		if err := os.Remove(t.file.path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("remove temp result: %w", err))
		}
		util.Debug("drop temp result", zap.String("path", t.file.path))
	}
	return result.ErrorOrNil()
}
