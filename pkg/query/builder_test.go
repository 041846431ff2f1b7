package query

import (
	"strings"
	"testing"
	"time"

	perr "github.com/chainclock/chainclock/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2023-09-06T12:30:00Z
var fixedNow = time.Unix(1694003400, 0).UTC()

func newTestBuilder(t *testing.T, chains ...string) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultTables, StaticChains(chains))
	require.NoError(t, err)
	return b.WithClock(func() time.Time { return fixedNow })
}

func mustFilter(t *testing.T, p Params) Filter {
	t.Helper()
	f, err := ParseFilter(p, testOptions)
	require.NoError(t, err)
	return f
}

func TestBuildBlockQuery(t *testing.T) {
	b := newTestBuilder(t, "eth", "bsc")

	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "chain and block number",
			params: Params{Chain: strPtr("eth"), BlockNumber: strPtr("123")},
			want:   "SELECT * FROM blocks WHERE (chain == 'eth' AND block_number == '123') ORDER BY block_number DESC LIMIT 1",
		},
		{
			name: "timestamp range",
			params: Params{
				Chain:                      strPtr("eth"),
				GreaterOrEqualsByTimestamp: strPtr("1438270048"),
				LessOrEqualsByTimestamp:    strPtr("1438270083"),
				Limit:                      strPtr("3"),
			},
			want: "SELECT * FROM blocks WHERE (toUnixTimestamp(timestamp) >= 1438270048 AND " +
				"toUnixTimestamp(timestamp) <= 1438270083 AND chain == 'eth') ORDER BY block_number DESC LIMIT 3",
		},
		{
			name:   "block id and ascending",
			params: Params{Chain: strPtr("bsc"), BlockID: strPtr("0xabc123"), SortBy: strPtr("ASC")},
			want:   "SELECT * FROM blocks WHERE (chain == 'bsc' AND block_id == 'abc123') ORDER BY block_number ASC LIMIT 1",
		},
		{
			name:   "timestamp and date",
			params: Params{Chain: strPtr("eth"), Timestamp: strPtr("2023-09-06"), Date: strPtr("2023-09-06")},
			want: "SELECT * FROM blocks WHERE (chain == 'eth' AND toUnixTimestamp(timestamp) == 1693958400 AND " +
				"DATE(timestamp) == '2023-09-06') ORDER BY block_number DESC LIMIT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.BuildBlockQuery(mustFilter(t, tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildBlockQueryFanOut(t *testing.T) {
	b := newTestBuilder(t, "eth", "bsc")
	f := mustFilter(t, Params{BlockNumber: strPtr("7"), Limit: strPtr("2")})

	got, err := b.BuildBlockQuery(f)
	require.NoError(t, err)

	parts := strings.Split(got, " UNION ALL ")
	require.Len(t, parts, 2)
	for i, chain := range []string{"eth", "bsc"} {
		single, err := b.BuildBlockQuery(f.WithChain(chain))
		require.NoError(t, err)
		assert.Equal(t, single, parts[i])
	}
	assert.Equal(t, "SELECT * FROM blocks WHERE (chain == 'eth' AND block_number == '7') ORDER BY block_number DESC LIMIT 2", parts[0])
}

func TestBuildBlockQuerySkipsUnsafeDirectoryEntries(t *testing.T) {
	b := newTestBuilder(t, "eth", "bad-chain", "x' OR '1'='1")

	got, err := b.BuildBlockQuery(mustFilter(t, Params{}))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blocks WHERE (chain == 'eth') ORDER BY block_number DESC LIMIT 1", got)
}

func TestBuildBlockQueryEmptyDirectory(t *testing.T) {
	b := newTestBuilder(t)

	got, err := b.BuildBlockQuery(mustFilter(t, Params{}))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blocks ORDER BY block_number DESC LIMIT 1", got)
}

func TestBuildBlockQueryIsDeterministic(t *testing.T) {
	b := newTestBuilder(t, "eth", "bsc", "polygon")
	f := mustFilter(t, Params{GreaterByBlockNumber: strPtr("10"), LessByTimestamp: strPtr("1693958400")})

	first, err := b.BuildBlockQuery(f)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := b.BuildBlockQuery(f)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildBlockQueryRejectsHandBuiltInjection(t *testing.T) {
	b := newTestBuilder(t, "eth")
	chain := "eth') OR (1=1"

	_, err := b.BuildBlockQuery(Filter{Chain: &chain})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeIllegalQuery))
}

func TestBuildAggregateQuery(t *testing.T) {
	b := newTestBuilder(t, "eth")

	tests := []struct {
		name   string
		params Params
		column AggregateColumn
		want   string
	}{
		{
			name:   "default function",
			column: ColumnTransactionTraces,
			want:   "SELECT chain, count(transaction_traces) FROM BlockStats GROUP BY chain",
		},
		{
			name:   "function and chain",
			params: Params{Chain: strPtr("eth"), AggregateFunction: strPtr("median")},
			column: ColumnTraceCalls,
			want:   "SELECT chain, median(trace_calls) FROM BlockStats WHERE (chain == 'eth') GROUP BY chain",
		},
		{
			name:   "block range",
			params: Params{GreaterOrEqualsByBlockNumber: strPtr("5"), LessByBlockNumber: strPtr("9"), AggregateFunction: strPtr("sum")},
			column: ColumnTraceCalls,
			want:   "SELECT chain, sum(trace_calls) FROM BlockStats WHERE (block_number >= 5 AND block_number < 9) GROUP BY chain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.BuildAggregateQuery(mustFilter(t, tt.params), tt.column)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("column outside the allow-list", func(t *testing.T) {
		_, err := b.BuildAggregateQuery(Filter{}, "uaw")
		require.Error(t, err)
		assert.True(t, perr.IsCode(err, perr.ErrorCodeIllegalQuery))
	})
}

func TestBuildUniqueActiveWalletsQuery(t *testing.T) {
	b := newTestBuilder(t, "eth")

	got, err := b.BuildUniqueActiveWalletsQuery(mustFilter(t, Params{Date: strPtr("2023-09-06")}))
	require.NoError(t, err)
	assert.Equal(t, "SELECT chain, count(distinct uaw) FROM BlockStats ARRAY JOIN uaw WHERE (DATE(timestamp) == '2023-09-06') GROUP BY chain", got)

	got, err = b.BuildUniqueActiveWalletsQuery(mustFilter(t, Params{}))
	require.NoError(t, err)
	assert.Equal(t, "SELECT chain, count(distinct uaw) FROM BlockStats ARRAY JOIN uaw GROUP BY chain", got)
}

func TestBuildHistoryQuery(t *testing.T) {
	b := newTestBuilder(t, "eth")

	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name: "default range",
			want: "SELECT chain, toUnixTimestamp(DATE(timestamp)) AS day, count(trace_calls) AS value FROM BlockStats " +
				"WHERE (timestamp BETWEEN 1693917000 AND 1694003400) GROUP BY chain, day ORDER BY day ASC",
		},
		{
			name:   "seven days for one chain",
			params: Params{Chain: strPtr("eth"), Range: strPtr("7d"), AggregateFunction: strPtr("sum")},
			want: "SELECT chain, toUnixTimestamp(DATE(timestamp)) AS day, sum(trace_calls) AS value FROM BlockStats " +
				"WHERE (timestamp BETWEEN 1693353600 AND 1693958400 AND chain == 'eth') GROUP BY chain, day ORDER BY day ASC",
		},
		{
			name:   "all time",
			params: Params{Range: strPtr("all"), AggregateFunction: strPtr("avg")},
			want: "SELECT chain, toUnixTimestamp(DATE(timestamp)) AS day, avg(trace_calls) AS value FROM BlockStats " +
				"WHERE (timestamp BETWEEN 0 AND 1694003400) GROUP BY chain, day ORDER BY day ASC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.BuildHistoryQuery(mustFilter(t, tt.params), ColumnTraceCalls)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildUniqueActiveWalletsHistoryQuery(t *testing.T) {
	b := newTestBuilder(t, "eth")

	got, err := b.BuildUniqueActiveWalletsHistoryQuery(mustFilter(t, Params{Chain: strPtr("eth"), Range: strPtr("30d")}))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT chain, toUnixTimestamp(DATE(timestamp)) AS day, count(distinct uaw) AS value FROM BlockStats ARRAY JOIN uaw "+
			"WHERE (timestamp BETWEEN 1691366400 AND 1693958400 AND chain == 'eth') GROUP BY chain, day ORDER BY day ASC",
		got)
}

func TestNewBuilderRejectsTableNames(t *testing.T) {
	_, err := NewBuilder(Tables{Blocks: "blocks; DROP TABLE x", Aggregates: "BlockStats"}, nil)
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeIllegalQuery))

	b, err := NewBuilder(Tables{Blocks: "chaindata.blocks", Aggregates: "chaindata.BlockStats"}, nil)
	require.NoError(t, err)
	got, err := b.BuildBlockQuery(Filter{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM chaindata.blocks ORDER BY block_number DESC LIMIT 1", got)
}

func TestResolveChain(t *testing.T) {
	b := newTestBuilder(t, "eth")

	require.NoError(t, b.ResolveChain(Filter{}))
	require.NoError(t, b.ResolveChain(Filter{}.WithChain("eth")))

	err := b.ResolveChain(Filter{}.WithChain("doge"))
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnknownChain))
}
