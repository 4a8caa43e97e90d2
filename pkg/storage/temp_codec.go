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
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
)

// spillValue is the on-disk form of chunk.Value.
type spillValue struct {
	_      struct{} `cbor:",toarray"`
	Id     common.LTypeId
	Width  int
	Scale  int
	IsNull bool
	Bool   bool
	I64    int64
	I64_1  int64
	I64_2  int64
	U64    uint64
	F64    float64
	Str    string
	HasLob bool
	Lob    []byte
}

type rowCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func newRowCodec() (*rowCodec, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	decMode, err := cbor.DecOptions{
		UTF8: cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}
	return &rowCodec{
		encMode: encMode,
		decMode: decMode,
	}, nil
}

func (codec *rowCodec) encode(row chunk.Row) ([]byte, error) {
	vals := make([]spillValue, len(row))
	for i, val := range row {
		sv := &vals[i]
		sv.Id = val.Typ.Id
		sv.Width = val.Typ.Width
		sv.Scale = val.Typ.Scale
		sv.IsNull = val.IsNull
		sv.Bool = val.Bool
		sv.I64 = val.I64
		sv.I64_1 = val.I64_1
		sv.I64_2 = val.I64_2
		sv.U64 = val.U64
		sv.F64 = val.F64
		sv.Str = val.Str
		if val.Lob != nil {
			sv.HasLob = true
			sv.Lob = val.Lob.Bytes()
		}
	}
	data, err := codec.encMode.Marshal(vals)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return data, nil
}

func (codec *rowCodec) decode(data []byte) (chunk.Row, error) {
	var vals []spillValue
	if err := codec.decMode.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	row := make(chunk.Row, len(vals))
	for i, sv := range vals {
		row[i] = chunk.Value{
			Typ: common.LType{
				Id:    sv.Id,
				Width: sv.Width,
				Scale: sv.Scale,
			},
			IsNull: sv.IsNull,
			Bool:   sv.Bool,
			I64:    sv.I64,
			I64_1:  sv.I64_1,
			I64_2:  sv.I64_2,
			U64:    sv.U64,
			F64:    sv.F64,
			Str:    sv.Str,
		}
		if sv.HasLob {
			row[i].Lob = &chunk.MemLob{Data: sv.Lob, Temporary: true}
		}
	}
	return row, nil
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

func keySeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
