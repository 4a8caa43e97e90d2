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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
	"github.com/daviszhen/rowbuf/pkg/util"
)

const (
	parquetBatchRows = 1024
)

// Dataset is a csv, tbl or parquet file with a declared column list.
type Dataset struct {
	Name   string
	Path   string
	Format string
	Names  []string
	Types  []common.LType
}

func LoadDataset(cfg util.Dataset) (*Dataset, error) {
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("dataset %s has no columns", cfg.Name)
	}
	types := make([]common.LType, len(cfg.Columns))
	for i, col := range cfg.Columns {
		typ, err := common.ParseLType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("dataset %s column %s: %w", cfg.Name, col.Name, err)
		}
		types[i] = typ
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "csv"
	}
	switch format {
	case "csv", "tbl", "parquet":
	default:
		return nil, fmt.Errorf("dataset %s: unsupported format %s", cfg.Name, cfg.Format)
	}
	return &Dataset{
		Name:   cfg.Name,
		Path:   cfg.Path,
		Format: format,
		Names: lo.Map(cfg.Columns, func(col util.DatasetColumn, _ int) string {
			return strings.ToLower(col.Name)
		}),
		Types: types,
	}, nil
}

// ColumnIndex returns the position of the column name or -1.
func (ds *Dataset) ColumnIndex(name string) int {
	return lo.IndexOf(ds.Names, strings.ToLower(name))
}

// Scan calls fn for every row of the file, in file order.
func (ds *Dataset) Scan(fn func(row chunk.Row) error) error {
	switch ds.Format {
	case "parquet":
		return ds.scanParquet(fn)
	default:
		return ds.scanCsv(fn)
	}
}

func (ds *Dataset) scanCsv(fn func(row chunk.Row) error) error {
	dataFile, err := os.Open(ds.Path)
	if err != nil {
		return err
	}
	defer dataFile.Close()
	reader := csv.NewReader(dataFile)
	if ds.Format == "tbl" {
		reader.Comma = '|'
	}
	//tpch lines end with a delimiter
	reader.FieldsPerRecord = -1
	lineNo := 0
	for {
		line, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		lineNo++
		if len(line) < len(ds.Types) {
			return fmt.Errorf("%s:%d: no enough fields in the line", ds.Path, lineNo)
		}
		row := make(chunk.Row, len(ds.Types))
		for j, typ := range ds.Types {
			row[j], err = fieldToValue(line[j], typ)
			if err != nil {
				return fmt.Errorf("%s:%d: column %s: %w", ds.Path, lineNo, ds.Names[j], err)
			}
		}
		if err = fn(row); err != nil {
			return err
		}
	}
}

func (ds *Dataset) scanParquet(fn func(row chunk.Row) error) (err error) {
	pqFile, err := pqLocal.NewLocalFileReader(ds.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pqFile.Close(); err == nil {
			err = cerr
		}
	}()
	reader, err := pqReader.NewParquetColumnReader(pqFile, 1)
	if err != nil {
		return err
	}
	defer reader.ReadStop()

	total := reader.GetNumRows()
	for readed := int64(0); readed < total; {
		cnt := min(int64(parquetBatchRows), total-readed)
		rows := make([]chunk.Row, cnt)
		for i := range rows {
			rows[i] = make(chunk.Row, len(ds.Types))
		}
		for j, typ := range ds.Types {
			values, _, _, err := reader.ReadColumnByIndex(int64(j), cnt)
			if err != nil {
				return err
			}
			if int64(len(values)) != cnt {
				return fmt.Errorf("column %d has %d values, want %d", j, len(values), cnt)
			}
			for i, field := range values {
				rows[i][j], err = parquetColToValue(field, typ)
				if err != nil {
					return fmt.Errorf("%s: column %s: %w", ds.Path, ds.Names[j], err)
				}
			}
		}
		for _, row := range rows {
			if err = fn(row); err != nil {
				return err
			}
		}
		readed += cnt
	}
	return nil
}

func fieldToValue(field string, lTyp common.LType) (chunk.Value, error) {
	if lTyp.Id != common.LTID_VARCHAR && (field == "" || field == "NULL" || field == "\\N") {
		return chunk.NewNull(lTyp), nil
	}
	var err error
	val := chunk.Value{
		Typ: lTyp,
	}
	switch lTyp.Id {
	case common.LTID_DATE:
		d, err := time.Parse(time.DateOnly, field)
		if err != nil {
			return val, err
		}
		val.I64 = int64(d.Year())
		val.I64_1 = int64(d.Month())
		val.I64_2 = int64(d.Day())
	case common.LTID_BOOLEAN:
		val.Bool, err = strconv.ParseBool(field)
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT:
		val.I64, err = strconv.ParseInt(field, 10, 64)
	case common.LTID_UBIGINT:
		val.U64, err = strconv.ParseUint(field, 10, 64)
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		val.F64, err = strconv.ParseFloat(field, 64)
	case common.LTID_DECIMAL:
		val.I64, err = decimalCoef(field, lTyp.Scale)
	case common.LTID_VARCHAR:
		val.Str = field
	case common.LTID_BLOB:
		val.Lob = chunk.NewMemLob([]byte(field))
	default:
		return val, fmt.Errorf("usp csv type %v", lTyp)
	}
	return val, err
}

// decimalCoef parses s and returns its value scaled by 10^scale. Extra
// fraction digits are truncated.
func decimalCoef(s string, scale int) (int64, error) {
	if _, err := common.ParseDecimal(s); err != nil {
		return 0, err
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > scale {
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))
	coef, err := strconv.ParseInt(intPart+frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		coef = -coef
	}
	return coef, nil
}

func parquetColToValue(field any, lTyp common.LType) (chunk.Value, error) {
	if field == nil {
		return chunk.NewNull(lTyp), nil
	}
	val := chunk.Value{
		Typ: lTyp,
	}
	switch lTyp.Id {
	case common.LTID_DATE:
		days, ok := field.(int32)
		if !ok {
			return val, fmt.Errorf("date field is %T", field)
		}
		d := time.Date(1970, 1, int(1+days), 0, 0, 0, 0, time.UTC)
		val.I64 = int64(d.Year())
		val.I64_1 = int64(d.Month())
		val.I64_2 = int64(d.Day())
	case common.LTID_BOOLEAN:
		b, ok := field.(bool)
		if !ok {
			return val, fmt.Errorf("boolean field is %T", field)
		}
		val.Bool = b
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DECIMAL:
		switch fVal := field.(type) {
		case int32:
			val.I64 = int64(fVal)
		case int64:
			val.I64 = fVal
		default:
			return val, fmt.Errorf("integer field is %T", field)
		}
	case common.LTID_UBIGINT:
		switch fVal := field.(type) {
		case int64:
			val.U64 = uint64(fVal)
		case int32:
			val.U64 = uint64(uint32(fVal))
		default:
			return val, fmt.Errorf("ubigint field is %T", field)
		}
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		switch fVal := field.(type) {
		case float32:
			val.F64 = float64(fVal)
		case float64:
			val.F64 = fVal
		default:
			return val, fmt.Errorf("float field is %T", field)
		}
	case common.LTID_VARCHAR:
		s, ok := field.(string)
		if !ok {
			return val, fmt.Errorf("varchar field is %T", field)
		}
		val.Str = s
	case common.LTID_BLOB:
		s, ok := field.(string)
		if !ok {
			return val, fmt.Errorf("blob field is %T", field)
		}
		val.Lob = chunk.NewMemLob([]byte(s))
	default:
		return val, fmt.Errorf("usp parquet type %v", lTyp)
	}
	return val, nil
}
