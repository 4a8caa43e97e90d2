package compute

type OrderType int

const (
	OT_INVALID OrderType = iota
	OT_DEFAULT
	OT_ASC
	OT_DESC
)

func (ot OrderType) String() string {
	if ot == OT_DESC {
		return "desc"
	}
	return "asc"
}

type OrderByNullType int

const (
	OBNT_INVALID OrderByNullType = iota
	OBNT_DEFAULT
	OBNT_NULLS_FIRST
	OBNT_NULLS_LAST
)

func (obnt OrderByNullType) String() string {
	switch obnt {
	case OBNT_NULLS_FIRST:
		return "nulls first"
	case OBNT_NULLS_LAST:
		return "nulls last"
	default:
		return ""
	}
}

const (
	// ranges at most this long are sorted directly during selection
	INSERTION_SORT_THRESHOLD = 24
)
