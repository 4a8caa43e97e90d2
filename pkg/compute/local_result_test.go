package compute

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowbuf/pkg/chunk"
	"github.com/daviszhen/rowbuf/pkg/common"
	"github.com/daviszhen/rowbuf/pkg/util"
)

type testEnv struct {
	session *Session
	metrics *Metrics
	created int
	closed  int
}

type countingExternal struct {
	ResultExternal
	env *testEnv
}

func (c countingExternal) Close() error {
	c.env.closed++
	return c.ResultExternal.Close()
}

func newTestEnv(t *testing.T, maxMemoryRows int) *testEnv {
	cfg := util.DefaultConfig()
	cfg.Spill.MaxMemoryRows = maxMemoryRows
	cfg.Spill.TempDir = t.TempDir()
	cfg.Debug.CheckOwner = true
	env := &testEnv{
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	factory := TempResultFactory(cfg.Spill.TempDir)
	env.session = NewSession(cfg,
		WithMetrics(env.metrics),
		WithExternalFactory(func(opts ExternalOptions) (ResultExternal, error) {
			ext, err := factory(opts)
			if err != nil {
				return nil, err
			}
			env.created++
			return countingExternal{ResultExternal: ext, env: env}, nil
		}),
	)
	t.Cleanup(env.session.Close)
	return env
}

func intRow(vals ...int64) chunk.Row {
	row := make(chunk.Row, len(vals))
	for i, v := range vals {
		row[i] = chunk.NewBigint(v)
	}
	return row
}

func intExprs(n int) []Expression {
	exprs := make([]Expression, n)
	for i := range exprs {
		exprs[i] = NewColumnExpr(fmt.Sprintf("c%d", i), common.BigintType())
	}
	return exprs
}

func rowStrings(rows []chunk.Row) []string {
	ret := make([]string, len(rows))
	for i, row := range rows {
		ret[i] = row.String()
	}
	return ret
}

func firstCol(rows []chunk.Row) []int64 {
	ret := make([]int64, len(rows))
	for i, row := range rows {
		ret[i] = row[0].I64
	}
	return ret
}

func collect(t *testing.T, r *LocalResult) []chunk.Row {
	require.NoError(t, r.Reset())
	ret := make([]chunk.Row, 0)
	for {
		has, err := r.Next()
		require.NoError(t, err)
		if !has {
			break
		}
		ret = append(ret, r.CurrentRow())
	}
	assert.True(t, r.IsAfterLast())
	assert.Nil(t, r.CurrentRow())
	return ret
}

func Test_insertionOrder(t *testing.T) {
	const rowCnt = 25
	for _, maxRows := range []int{1, 3, 10, rowCnt, 1000} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 2, 2)
			defer r.Close()
			for i := int64(0); i < rowCnt; i++ {
				require.NoError(t, r.AddRow(intRow(i, i%4)))
				require.Equal(t, i+1, r.RowCount())
			}
			require.NoError(t, r.Done())
			assert.Equal(t, rowCnt > maxRows, r.NeedToClose())
			rows := collect(t, r)
			assert.Equal(t, seqInts(rowCnt), firstCol(rows))
			//a second pass gives the same rows
			assert.Equal(t, seqInts(rowCnt), firstCol(collect(t, r)))
			if rowCnt > maxRows {
				assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.spills))
			}
		})
	}
}

func seqInts(n int) []int64 {
	ret := make([]int64, n)
	for i := range ret {
		ret[i] = int64(i)
	}
	return ret
}

func Test_nilSession(t *testing.T) {
	r := NewLocalResult(nil, intExprs(1), 1, 1)
	for i := int64(0); i < 100; i++ {
		require.NoError(t, r.AddRow(intRow(i)))
	}
	r.SetSortOrder(NewSortOrder(chunk.CompareMode{}, SortColumn{Index: 0, Order: OT_DESC}))
	r.SetLimit(3)
	require.NoError(t, r.Done())
	assert.False(t, r.NeedToClose())
	assert.Equal(t, []int64{99, 98, 97}, firstCol(collect(t, r)))
	require.NoError(t, r.Close())
}

func Test_spillDisabled(t *testing.T) {
	cfg := util.DefaultConfig()
	cfg.Spill.Enabled = false
	cfg.Spill.MaxMemoryRows = 1
	session := NewSession(cfg)
	r := NewLocalResult(session, intExprs(1), 1, 1)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, r.AddRow(intRow(i)))
	}
	require.NoError(t, r.Done())
	assert.False(t, r.NeedToClose())
	assert.Equal(t, int64(10), r.RowCount())
}

func Test_distinct(t *testing.T) {
	for _, maxRows := range []int{1, 2, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 1, 2)
			defer r.Close()
			r.SetDistinct()
			rows := []chunk.Row{
				{chunk.NewBigint(1), chunk.NewBigint(0)},
				{chunk.NewDecimal(100, 5, 2), chunk.NewBigint(1)},
				{chunk.NewInteger(2), chunk.NewBigint(2)},
				{chunk.NewDouble(1), chunk.NewBigint(3)},
				{chunk.NewBigint(3), chunk.NewBigint(4)},
				{chunk.NewUbigint(2), chunk.NewBigint(5)},
			}
			for _, row := range rows {
				require.NoError(t, r.AddRow(row))
			}
			assert.Equal(t, int64(3), r.RowCount())
			//adding the same rows again changes nothing
			for _, row := range rows {
				require.NoError(t, r.AddRow(slices.Clone(row)))
			}
			assert.Equal(t, int64(3), r.RowCount())

			has, err := r.ContainsDistinct(chunk.Row{chunk.NewDecimal(30, 3, 1)})
			require.NoError(t, err)
			assert.True(t, has)
			has, err = r.ContainsDistinct(chunk.Row{chunk.NewBigint(4)})
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, r.Done())
			got := collect(t, r)
			require.Len(t, got, 3)
			vals := make([]string, 0)
			for _, row := range got {
				d, ok := row[0].ToDecimal()
				require.True(t, ok)
				vals = append(vals, d.Canonical())
			}
			slices.Sort(vals)
			assert.Equal(t, []string{"1", "2", "3"}, vals)
		})
	}
}

func Test_distinctOnReplacement(t *testing.T) {
	for _, maxRows := range []int{1, 2, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 2, 2)
			defer r.Close()
			sort := Asc(env.session.CompareMode(), 1)
			r.SetSortOrder(sort)
			r.SetDistinctIndexes([]int{0})
			for _, row := range []chunk.Row{
				intRow(1, 50), intRow(2, 40), intRow(1, 30),
				intRow(3, 10), intRow(2, 45), intRow(1, 35),
				intRow(2, 20), intRow(3, 15),
			} {
				require.NoError(t, r.AddRow(row))
			}
			assert.Equal(t, int64(3), r.RowCount())
			require.NoError(t, r.Done())
			assert.Equal(t, []string{"(3, 10)", "(2, 20)", "(1, 30)"},
				rowStrings(collect(t, r)))
		})
	}
}

func Test_removeDistinct(t *testing.T) {
	for _, maxRows := range []int{1, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(1), 1, 1)
			defer r.Close()
			r.SetDistinct()
			for _, v := range []int64{1, 2, 3, 2} {
				require.NoError(t, r.AddRow(intRow(v)))
			}
			require.NoError(t, r.AddRow(chunk.Row{chunk.NewNull(common.BigintType())}))
			has, err := r.ContainsNull()
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, r.RemoveDistinct(intRow(2)))
			assert.Equal(t, int64(3), r.RowCount())
			require.NoError(t, r.RemoveDistinct(chunk.Row{chunk.NewNull(common.IntegerType())}))
			assert.Equal(t, int64(2), r.RowCount())
			has, err = r.ContainsNull()
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, r.Done())
			got := firstCol(collect(t, r))
			slices.Sort(got)
			assert.Equal(t, []int64{1, 3}, got)
			assert.Panics(t, func() { _ = r.RemoveDistinct(intRow(1)) })
		})
	}
}

func Test_containsDistinctPlain(t *testing.T) {
	for _, maxRows := range []int{2, 100} {
		env := newTestEnv(t, maxRows)
		r := NewLocalResult(env.session, intExprs(2), 1, 2)
		require.NoError(t, r.AddRow(intRow(1, 7)))
		require.NoError(t, r.AddRow(intRow(2, 8)))
		require.NoError(t, r.AddRow(intRow(3, 9)))
		has, err := r.ContainsDistinct(intRow(3))
		require.NoError(t, err)
		assert.True(t, has)
		//rows added later are seen as well
		require.NoError(t, r.AddRow(intRow(4, 10)))
		has, err = r.ContainsDistinct(intRow(4))
		require.NoError(t, err)
		assert.True(t, has)
		has, err = r.ContainsDistinct(intRow(7))
		require.NoError(t, err)
		assert.False(t, has)
		require.NoError(t, r.Close())
	}
}

func Test_containsNull(t *testing.T) {
	env := newTestEnv(t, 2)
	r := NewLocalResult(env.session, intExprs(2), 1, 2)
	defer r.Close()
	null := chunk.NewNull(common.BigintType())
	for i := int64(0); i < 5; i++ {
		require.NoError(t, r.AddRow(chunk.Row{chunk.NewBigint(i), null}))
	}
	has, err := r.ContainsNull()
	require.NoError(t, err)
	assert.False(t, has, "hidden columns do not count")
	require.NoError(t, r.AddRow(chunk.Row{null, chunk.NewBigint(5)}))
	require.NoError(t, r.Done())

	has, err = r.Next()
	require.NoError(t, err)
	require.True(t, has)
	has, err = r.Next()
	require.NoError(t, err)
	require.True(t, has)
	assert.Equal(t, int64(1), r.CurrentRow()[0].I64)

	has, err = r.ContainsNull()
	require.NoError(t, err)
	assert.True(t, has)
	//the cursor goes on where it was
	has, err = r.Next()
	require.NoError(t, err)
	require.True(t, has)
	assert.Equal(t, int64(2), r.CurrentRow()[0].I64)
	assert.Equal(t, int64(2), r.RowId())
}

func Test_fetchPercent(t *testing.T) {
	for _, maxRows := range []int{2, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			tests := []struct {
				percent int64
				want    int
			}{
				{50, 4},
				{0, 0},
				{1, 1},
				{100, 7},
			}
			for _, tt := range tests {
				env := newTestEnv(t, maxRows)
				r := NewLocalResult(env.session, intExprs(1), 1, 1)
				for i := int64(0); i < 7; i++ {
					require.NoError(t, r.AddRow(intRow(i)))
				}
				r.SetLimit(tt.percent)
				r.SetFetchPercent(true)
				require.NoError(t, r.Done())
				assert.Equal(t, int64(tt.want), r.RowCount(), "percent %d", tt.percent)
				assert.Equal(t, seqInts(tt.want), firstCol(collect(t, r)))
				require.NoError(t, r.Close())
			}
		})
	}
}

func Test_fetchPercentInvalid(t *testing.T) {
	for _, percent := range []int64{101, -1} {
		r := NewLocalResult(nil, intExprs(1), 1, 1)
		require.NoError(t, r.AddRow(intRow(1)))
		r.SetLimit(percent)
		r.SetFetchPercent(true)
		err := r.Done()
		var invalid *InvalidValueError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "FETCH PERCENT", invalid.Param)
		assert.Equal(t, percent, invalid.Value)
	}
}

func Test_withTies(t *testing.T) {
	tests := []struct {
		offset int64
		limit  int64
		want   []int64
	}{
		{0, 2, []int64{1, 2, 2, 2}},
		{0, 1, []int64{1}},
		{1, 1, []int64{2, 2, 2}},
		{0, 4, []int64{1, 2, 2, 2}},
		{0, 5, []int64{1, 2, 2, 2, 3}},
		{4, 1, []int64{3}},
		{5, 1, []int64{}},
	}
	for _, maxRows := range []int{1, 2, 100} {
		for _, tt := range tests {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 2, 2)
			sort := Asc(env.session.CompareMode(), 0)
			r.SetSortOrder(sort)
			r.SetWithTies(sort)
			r.SetOffset(tt.offset)
			r.SetLimit(tt.limit)
			for i, v := range []int64{2, 3, 2, 1, 2} {
				require.NoError(t, r.AddRow(intRow(v, int64(i))))
			}
			require.NoError(t, r.Done())
			msg := fmt.Sprintf("max %d offset %d limit %d", maxRows, tt.offset, tt.limit)
			assert.Equal(t, int64(len(tt.want)), r.RowCount(), msg)
			assert.Equal(t, tt.want, firstCol(collect(t, r)), msg)
			require.NoError(t, r.Close())
		}
	}
}

func Test_withTiesDifferentOrder(t *testing.T) {
	r := NewLocalResult(nil, intExprs(1), 1, 1)
	r.SetSortOrder(Asc(chunk.CompareMode{}, 0))
	assert.Panics(t, func() {
		r.SetWithTies(Asc(chunk.CompareMode{}, 0))
	})
}

func Test_offsetLimit(t *testing.T) {
	tests := []struct {
		offset int64
		limit  int64
		want   []int64
	}{
		{0, -1, []int64{0, 1, 2, 3, 4, 5}},
		{-3, -1, []int64{0, 1, 2, 3, 4, 5}},
		{2, -1, []int64{2, 3, 4, 5}},
		{0, 3, []int64{0, 1, 2}},
		{4, 10, []int64{4, 5}},
		{1, 2, []int64{1, 2}},
		{0, 0, []int64{}},
		{6, -1, []int64{}},
		{0, 6, []int64{0, 1, 2, 3, 4, 5}},
	}
	for _, sorted := range []bool{false, true} {
		for _, maxRows := range []int{1, 4, 100} {
			for _, tt := range tests {
				env := newTestEnv(t, maxRows)
				r := NewLocalResult(env.session, intExprs(1), 1, 1)
				if sorted {
					r.SetSortOrder(Asc(env.session.CompareMode(), 0))
				}
				r.SetOffset(tt.offset)
				r.SetLimit(tt.limit)
				src := []int64{0, 1, 2, 3, 4, 5}
				if sorted {
					src = []int64{5, 3, 0, 4, 1, 2}
				}
				for _, v := range src {
					require.NoError(t, r.AddRow(intRow(v)))
				}
				require.NoError(t, r.Done())
				msg := fmt.Sprintf("sorted %v max %d offset %d limit %d", sorted, maxRows, tt.offset, tt.limit)
				assert.Equal(t, tt.want, firstCol(collect(t, r)), msg)
				assert.Equal(t, int64(len(tt.want)), r.RowCount(), msg)
				require.NoError(t, r.Close())
				assert.Equal(t, env.created, env.closed, msg)
			}
		}
	}
}

func Test_offsetLimitEqualKeys(t *testing.T) {
	for _, maxRows := range []int{3, 1000} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 2, 2)
			defer r.Close()
			r.SetSortOrder(Asc(env.session.CompareMode(), 0))
			r.SetOffset(40)
			r.SetLimit(4)
			for i := int64(0); i < 400; i++ {
				require.NoError(t, r.AddRow(intRow(i%3, i)))
			}
			require.NoError(t, r.Done())
			assert.Equal(t, []string{"(0, 120)", "(0, 123)", "(0, 126)", "(0, 129)"},
				rowStrings(collect(t, r)))
		})
	}
}

func Test_distinctDoubles(t *testing.T) {
	for _, maxRows := range []int{1, 2, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			exprs := []Expression{NewColumnExpr("d", common.DoubleType())}
			r := NewLocalResult(env.session, exprs, 1, 1)
			defer r.Close()
			r.SetDistinct()
			r.SetSortOrder(Asc(env.session.CompareMode(), 0))
			for _, v := range []float64{2e-25, 0, 1.2345678901234568e-5, 1e-25, 1.2345678901234567e-5, 0, 1e-25} {
				require.NoError(t, r.AddRow(chunk.Row{chunk.NewDouble(v)}))
			}
			assert.Equal(t, int64(5), r.RowCount())
			require.NoError(t, r.Done())
			got := make([]float64, 0)
			for _, row := range collect(t, r) {
				got = append(got, row[0].F64)
			}
			assert.Equal(t, []float64{0, 1e-25, 2e-25, 1.2345678901234567e-5, 1.2345678901234568e-5}, got)
		})
	}
}

func Test_clearAllReleasesStore(t *testing.T) {
	env := newTestEnv(t, 2)
	r := NewLocalResult(env.session, intExprs(1), 1, 1)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, r.AddRow(intRow(i)))
	}
	require.True(t, r.NeedToClose())
	r.SetOffset(10)
	require.NoError(t, r.Done())
	assert.Equal(t, int64(0), r.RowCount())
	assert.False(t, r.NeedToClose())
	assert.Equal(t, 1, env.created)
	assert.Equal(t, 1, env.closed)
	has, err := r.Next()
	require.NoError(t, err)
	assert.False(t, has)

	entries, err := os.ReadDir(env.session.Config().Spill.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_trimExternalSpillsAgain(t *testing.T) {
	env := newTestEnv(t, 3)
	r := NewLocalResult(env.session, intExprs(1), 1, 1)
	defer r.Close()
	for i := int64(0); i < 20; i++ {
		require.NoError(t, r.AddRow(intRow(i)))
	}
	r.SetOffset(2)
	r.SetLimit(10)
	require.NoError(t, r.Done())
	assert.True(t, r.NeedToClose())
	assert.Equal(t, 2, env.created)
	assert.Equal(t, 1, env.closed)
	assert.Equal(t, []int64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, firstCol(collect(t, r)))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.externalTrims))
}

func Test_shallowCopy(t *testing.T) {
	for _, maxRows := range []int{2, 100} {
		t.Run(fmt.Sprintf("max%d", maxRows), func(t *testing.T) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(1), 1, 1)
			r.SetSortOrder(NewSortOrder(env.session.CompareMode(), SortColumn{Index: 0, Order: OT_DESC}))
			for i := int64(0); i < 6; i++ {
				require.NoError(t, r.AddRow(intRow(i)))
			}
			r.SetLimit(4)
			require.NoError(t, r.Done())

			has, err := r.Next()
			require.NoError(t, err)
			require.True(t, has)

			cp := r.CreateShallowCopy(env.session)
			require.NotNil(t, cp)
			assert.Equal(t, int64(4), cp.RowCount())
			assert.Equal(t, int64(-1), cp.RowId())
			assert.Equal(t, []int64{5, 4, 3, 2}, firstCol(collect(t, cp)))

			//the original cursor did not move
			has, err = r.Next()
			require.NoError(t, err)
			require.True(t, has)
			assert.Equal(t, int64(4), r.CurrentRow()[0].I64)

			require.NoError(t, r.Close())
			assert.Nil(t, r.CreateShallowCopy(env.session))
			assert.Equal(t, []int64{5, 4, 3, 2}, firstCol(collect(t, cp)))
			require.NoError(t, cp.Close())
		})
	}
}

func Test_shallowCopyRefused(t *testing.T) {
	env := newTestEnv(t, 100)

	distinct := NewLocalResult(env.session, intExprs(1), 1, 1)
	distinct.SetDistinct()
	require.NoError(t, distinct.AddRow(intRow(1)))
	assert.Nil(t, distinct.CreateShallowCopy(env.session), "distinct rows are not materialized yet")
	require.NoError(t, distinct.Done())
	assert.NotNil(t, distinct.CreateShallowCopy(env.session))

	lobs := NewLocalResult(env.session, intExprs(1), 1, 1)
	require.NoError(t, lobs.AddRow(chunk.Row{chunk.NewLobValue(chunk.NewMemLob([]byte("x")))}))
	require.NoError(t, lobs.Done())
	assert.Nil(t, lobs.CreateShallowCopy(env.session))

	spilled := newTestEnv(t, 1)
	pending := NewLocalResult(spilled.session, intExprs(1), 1, 1)
	defer pending.Close()
	for i := int64(0); i < 3; i++ {
		require.NoError(t, pending.AddRow(intRow(i)))
	}
	assert.Nil(t, pending.CreateShallowCopy(spilled.session))
}

func Test_lobs(t *testing.T) {
	env := newTestEnv(t, 100)
	r := NewLocalResult(env.session, intExprs(2), 2, 2)
	data := []byte("hello")
	src := chunk.NewMemLob(data)
	require.NoError(t, r.AddRow(chunk.Row{chunk.NewLobValue(src), chunk.NewBigint(1)}))
	temp := &chunk.MemLob{Data: []byte("kept"), Temporary: true}
	require.NoError(t, r.AddRow(chunk.Row{chunk.NewLobValue(temp), chunk.NewBigint(2)}))
	assert.Equal(t, 1, env.session.TemporaryLobCount())
	assert.Equal(t, int64(5), env.session.TemporaryLobBytes())
	data[0] = 'j'

	require.NoError(t, r.Done())
	rows := collect(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, []byte("hello"), rows[0][0].Lob.Bytes())
	assert.Same(t, temp, rows[1][0].Lob)

	env.session.Close()
	assert.Equal(t, 0, env.session.TemporaryLobCount())
}

func Test_lifecycleErrors(t *testing.T) {
	r := NewLocalResult(nil, intExprs(2), 1, 2)
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrResultNotFinalized)
	assert.Panics(t, func() { _ = r.AddRow(intRow(1)) })
	mixed := NewLocalResult(nil, intExprs(2), 1, 2)
	mixed.SetDistinctIndexes([]int{0})
	assert.Panics(t, func() { mixed.SetDistinct() })
	assert.Panics(t, func() { _ = NewLocalResult(nil, intExprs(2), 3, 2) })

	require.NoError(t, r.AddRow(intRow(1, 2)))
	require.NoError(t, r.Done())
	assert.Panics(t, func() { _ = r.AddRow(intRow(1, 2)) })
	assert.Panics(t, func() { _ = r.Done() })

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, r.IsClosed())
	assert.ErrorIs(t, r.AddRow(intRow(1, 2)), ErrResultClosed)
	assert.ErrorIs(t, r.Reset(), ErrResultClosed)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrResultClosed)
	assert.ErrorIs(t, r.Done(), ErrResultClosed)
	_, err = r.ContainsNull()
	assert.ErrorIs(t, err, ErrResultClosed)

	plain := NewLocalResult(nil, intExprs(1), 1, 1)
	assert.Panics(t, func() { _ = plain.RemoveDistinct(intRow(1)) })
	on := NewLocalResult(nil, intExprs(1), 1, 1)
	on.SetDistinctIndexes([]int{0})
	assert.Panics(t, func() { _ = on.RemoveDistinct(intRow(1)) })
}

func Test_cursorAccessors(t *testing.T) {
	r := NewLocalResult(nil, intExprs(2), 2, 2)
	assert.Equal(t, "columns: 2 rows: 0 pos: -1", r.String())
	for i := int64(0); i < 3; i++ {
		require.NoError(t, r.AddRow(intRow(i, i)))
	}
	require.NoError(t, r.Done())
	assert.True(t, r.HasNext())
	assert.False(t, r.IsAfterLast())
	for i := 0; i < 3; i++ {
		has, err := r.Next()
		require.NoError(t, err)
		require.True(t, has)
	}
	assert.False(t, r.HasNext())
	assert.Equal(t, "columns: 2 rows: 3 pos: 2", r.String())
	has, err := r.Next()
	require.NoError(t, err)
	assert.False(t, has)
	assert.True(t, r.IsAfterLast())
	has, err = r.Next()
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, int64(3), r.RowId())

	assert.False(t, r.IsLazy())
	assert.False(t, r.NeedToClose())
	r.SetFetchSize(10)
	assert.Equal(t, 0, r.FetchSize())
	assert.Equal(t, "c1", r.Alias(1))
	assert.Equal(t, "c0", r.ColumnName(0))
	assert.Equal(t, common.BigintType(), r.ColumnType(0))
	assert.Equal(t, NULLABLE, r.Nullable(0))
	assert.False(t, r.IsIdentity(0))
}

func Test_explain(t *testing.T) {
	r := NewLocalResult(nil, intExprs(2), 1, 2)
	sort := Asc(chunk.CompareMode{}, 1)
	r.SetSortOrder(sort)
	r.SetWithTies(sort)
	r.SetLimit(3)
	out := r.Explain()
	assert.Contains(t, out, "LocalResult")
	assert.Contains(t, out, "order by")
	assert.Contains(t, out, "3 with ties")
	assert.Contains(t, out, "1 c1 hidden")
}

func Test_ownerCheck(t *testing.T) {
	env := newTestEnv(t, 100)
	r := NewLocalResult(env.session, intExprs(1), 1, 1)
	require.NoError(t, r.AddRow(intRow(1)))

	done := make(chan any)
	go func() {
		defer func() {
			done <- recover()
		}()
		_ = r.AddRow(intRow(2))
	}()
	assert.NotNil(t, <-done)
	assert.Equal(t, int64(1), r.RowCount())
}

// Test_parallelResults runs independent results at the same time.
func Test_parallelResults(t *testing.T) {
	g := errgroup.Group{}
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			cfg := util.DefaultConfig()
			cfg.Spill.MaxMemoryRows = 5 + w
			cfg.Spill.TempDir = t.TempDir()
			session := NewSession(cfg)
			defer session.Close()
			r := NewLocalResult(session, intExprs(1), 1, 1)
			defer r.Close()
			r.SetSortOrder(Asc(session.CompareMode(), 0))
			for i := int64(99); i >= 0; i-- {
				if err := r.AddRow(intRow(i)); err != nil {
					return err
				}
			}
			if err := r.Done(); err != nil {
				return err
			}
			for i := int64(0); i < 100; i++ {
				has, err := r.Next()
				if err != nil {
					return err
				}
				if !has || r.CurrentRow()[0].I64 != i {
					return fmt.Errorf("worker %d: row %d is %v", w, i, r.CurrentRow())
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// Test_tieRichEquivalence finalizes the same tie-rich rows in memory and
// through a temporary store and expects the same key sequence.
func Test_tieRichEquivalence(t *testing.T) {
	rnd := rand.New(rand.NewSource(20240601))
	for round := 0; round < 60; round++ {
		n := rnd.Intn(40)
		if round%2 == 1 {
			n = 100 + rnd.Intn(300)
		}
		keys := rnd.Int63n(4) + 1
		rows := make([]chunk.Row, n)
		for i := range rows {
			rows[i] = intRow(rnd.Int63n(keys), int64(i))
		}
		offset := rnd.Int63n(int64(n)+2) - 1
		limit := rnd.Int63n(int64(n)+2) - 1
		withTies := rnd.Intn(2) == 0 && limit >= 0
		percent := !withTies && rnd.Intn(4) == 0
		if percent {
			limit = rnd.Int63n(101)
		}
		distinct := rnd.Intn(4) == 0

		run := func(maxRows int) ([]chunk.Row, int64) {
			env := newTestEnv(t, maxRows)
			r := NewLocalResult(env.session, intExprs(2), 2, 2)
			defer r.Close()
			sort := Asc(env.session.CompareMode(), 0)
			r.SetSortOrder(sort)
			if distinct {
				r.SetDistinctIndexes([]int{0})
			}
			if withTies {
				r.SetWithTies(sort)
			}
			r.SetOffset(offset)
			r.SetLimit(limit)
			r.SetFetchPercent(percent)
			for _, row := range rows {
				require.NoError(t, r.AddRow(slices.Clone(row)))
			}
			require.NoError(t, r.Done())
			return collect(t, r), r.RowCount()
		}
		msg := fmt.Sprintf("round %d n %d offset %d limit %d ties %v percent %v distinct %v",
			round, n, offset, limit, withTies, percent, distinct)
		memRows, memCount := run(1 << 20)
		diskRows, diskCount := run(3)
		require.Equal(t, rowStrings(memRows), rowStrings(diskRows), msg)
		require.Equal(t, memCount, diskCount, msg)
		require.Equal(t, int64(len(memRows)), memCount, msg)
		require.True(t, slices.IsSorted(firstCol(memRows)), msg)
	}
}

func Test_limitsWereApplied(t *testing.T) {
	r := NewLocalResult(nil, intExprs(1), 1, 1)
	r.SetSortOrder(NewSortOrder(chunk.CompareMode{}, SortColumn{Index: 0, Order: OT_DESC}))
	r.SetOffset(1)
	r.SetLimit(1)
	r.LimitsWereApplied()
	for _, v := range []int64{1, 3, 2} {
		require.NoError(t, r.AddRow(intRow(v)))
	}
	require.NoError(t, r.Done())
	assert.Equal(t, []int64{1, 3, 2}, firstCol(collect(t, r)))
}

func Test_setMaxMemoryRows(t *testing.T) {
	env := newTestEnv(t, 1000)
	r := NewLocalResult(env.session, intExprs(1), 1, 1)
	defer r.Close()
	r.SetMaxMemoryRows(4)
	r.SetDistinct()
	assert.True(t, r.IsDistinct())
	for i := int64(0); i < 10; i++ {
		require.NoError(t, r.AddRow(intRow(i%6)))
	}
	assert.True(t, r.NeedToClose())
	assert.Equal(t, int64(6), r.RowCount())
	require.NoError(t, r.Done())
	got := firstCol(collect(t, r))
	slices.Sort(got)
	assert.Equal(t, seqInts(6), got)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.spills))
}

func Test_wireColumns(t *testing.T) {
	exprs := []Expression{
		NewColumnExpr("id", common.BigintType()),
		&ColumnExpr{Name: "price", AsName: "p", DataTyp: common.DecimalType(15, 2)},
		NewColumnExpr("hidden", common.IntegerType()),
	}
	r := NewLocalResult(nil, exprs, 2, 3)
	cols := r.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, int16(8), cols[0].Width)
	assert.Equal(t, "p", cols[1].Name)

	assert.Nil(t, wireValue(chunk.NewNull(common.BigintType())))
	assert.Nil(t, wireValue(chunk.NewLobValue(nil)))
	assert.Equal(t, int64(7), wireValue(chunk.NewBigint(7)))
	assert.Equal(t, int32(7), wireValue(chunk.NewInteger(7)))
	assert.Equal(t, "12.50", wireValue(chunk.NewDecimal(1250, 15, 2)))
	assert.Equal(t, []byte("ab"), wireValue(chunk.NewLobValue(chunk.NewMemLob([]byte("ab")))))
}
