package common

import "fmt"

type LTypeId int

const (
	LTID_INVALID  LTypeId = 0
	LTID_NULL     LTypeId = 1
	LTID_BOOLEAN  LTypeId = 10
	LTID_TINYINT  LTypeId = 11
	LTID_SMALLINT LTypeId = 12
	LTID_INTEGER  LTypeId = 13
	LTID_BIGINT   LTypeId = 14
	LTID_DATE     LTypeId = 15
	LTID_DECIMAL  LTypeId = 21
	LTID_FLOAT    LTypeId = 22
	LTID_DOUBLE   LTypeId = 23
	LTID_VARCHAR  LTypeId = 25
	LTID_BLOB     LTypeId = 26
	LTID_UBIGINT  LTypeId = 31
)

var lTypeIdToStr = map[LTypeId]string{
	LTID_INVALID:  "LTID_INVALID",
	LTID_NULL:     "LTID_NULL",
	LTID_BOOLEAN:  "LTID_BOOLEAN",
	LTID_TINYINT:  "LTID_TINYINT",
	LTID_SMALLINT: "LTID_SMALLINT",
	LTID_INTEGER:  "LTID_INTEGER",
	LTID_BIGINT:   "LTID_BIGINT",
	LTID_DATE:     "LTID_DATE",
	LTID_DECIMAL:  "LTID_DECIMAL",
	LTID_FLOAT:    "LTID_FLOAT",
	LTID_DOUBLE:   "LTID_DOUBLE",
	LTID_VARCHAR:  "LTID_VARCHAR",
	LTID_BLOB:     "LTID_BLOB",
	LTID_UBIGINT:  "LTID_UBIGINT",
}

var lTypeNameToId = map[string]LTypeId{
	"null":     LTID_NULL,
	"boolean":  LTID_BOOLEAN,
	"bool":     LTID_BOOLEAN,
	"tinyint":  LTID_TINYINT,
	"smallint": LTID_SMALLINT,
	"integer":  LTID_INTEGER,
	"int":      LTID_INTEGER,
	"bigint":   LTID_BIGINT,
	"date":     LTID_DATE,
	"decimal":  LTID_DECIMAL,
	"float":    LTID_FLOAT,
	"double":   LTID_DOUBLE,
	"varchar":  LTID_VARCHAR,
	"text":     LTID_VARCHAR,
	"blob":     LTID_BLOB,
	"ubigint":  LTID_UBIGINT,
}

func (id LTypeId) String() string {
	if s, has := lTypeIdToStr[id]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", id))
}
