//go:build integration

package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	perr "github.com/chainclock/chainclock/pkg/errors"
	"github.com/chainclock/chainclock/pkg/query"
	"github.com/chainclock/chainclock/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap/zaptest"
)

var fixtures = []string{
	`CREATE TABLE blocks (chain String, block_number UInt64, block_id String, timestamp DateTime)
		ENGINE = MergeTree ORDER BY (chain, block_number)`,
	`CREATE TABLE BlockStats (chain String, block_number UInt64, timestamp DateTime,
		trace_calls UInt64, transaction_traces UInt64, uaw Array(String))
		ENGINE = MergeTree ORDER BY (chain, block_number)`,
	`CREATE TABLE module_hashes (chain String, hash String) ENGINE = MergeTree ORDER BY chain`,
	`INSERT INTO blocks VALUES
		('eth', 1, 'aa', '2023-09-06 00:00:00'),
		('eth', 2, 'bb', '2023-09-06 00:00:12'),
		('bsc', 1, 'cc', '2023-09-06 00:00:03')`,
	`INSERT INTO BlockStats VALUES
		('eth', 1, '2023-09-06 00:00:00', 10, 2, ['0x1', '0x2']),
		('eth', 2, '2023-09-06 00:00:12', 5, 1, ['0x2']),
		('bsc', 1, '2023-09-06 00:00:03', 7, 3, ['0x9'])`,
	`INSERT INTO module_hashes VALUES ('eth', 'h1'), ('eth', 'h2'), ('bsc', 'h3')`,
}

func setupClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.1",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword(""),
		tcclickhouse.WithDatabase("chainclock"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)
	addr := fmt.Sprintf("%s:%s", host, port.Port())

	// the service client is read only, so fixtures go through a separate connection
	admin, err := ch.Open(&ch.Options{Addr: []string{addr}, Auth: ch.Auth{Database: "chainclock", Username: "default"}})
	require.NoError(t, err)
	defer admin.Close()
	for _, stmt := range fixtures {
		require.NoError(t, admin.Exec(ctx, stmt))
	}

	client, err := New(ctx, zaptest.NewLogger(t), Options{
		DSN:             "clickhouse://default:@" + addr + "/chainclock",
		Database:        "chainclock",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		DialTimeout:     10 * time.Second,
		QueryTimeout:    10 * time.Second,
		ChainsTable:     "module_hashes",
		Retry:           &retry.Config{MaxRetries: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientAgainstClickHouse(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	chains, err := client.FetchChains(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eth", "bsc"}, chains)

	b, err := query.NewBuilder(query.DefaultTables, query.StaticChains{"bsc", "eth"})
	require.NoError(t, err)

	t.Run("block fan-out", func(t *testing.T) {
		f, err := query.ParseFilter(query.Params{}, query.FilterOptions{MaxLimit: 10})
		require.NoError(t, err)
		text, err := b.BuildBlockQuery(f)
		require.NoError(t, err)

		rows, err := client.Query(ctx, text)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		latest := map[string]uint64{}
		for _, r := range rows {
			latest[r["chain"].(string)] = r["block_number"].(uint64)
		}
		assert.Equal(t, map[string]uint64{"eth": 2, "bsc": 1}, latest)
	})

	t.Run("aggregate", func(t *testing.T) {
		text, err := b.BuildAggregateQuery(query.Filter{Function: query.FunctionSum}, query.ColumnTraceCalls)
		require.NoError(t, err)

		rows, err := client.Query(ctx, text)
		require.NoError(t, err)
		got, err := query.NormalizeAggregate(rows)
		require.NoError(t, err)

		sums := map[string]float64{}
		for _, c := range got {
			sums[c.Chain] = c.Fields["sum(trace_calls)"][0]
		}
		assert.Equal(t, map[string]float64{"eth": 15, "bsc": 7}, sums)
	})

	t.Run("unique active wallets", func(t *testing.T) {
		date := "2023-09-06"
		text, err := b.BuildUniqueActiveWalletsQuery(query.Filter{Date: &date})
		require.NoError(t, err)

		rows, err := client.Query(ctx, text)
		require.NoError(t, err)
		got, err := query.NormalizeAggregate(rows)
		require.NoError(t, err)

		counts := map[string]float64{}
		for _, c := range got {
			counts[c.Chain] = c.Fields["count(distinct uaw)"][0]
		}
		assert.Equal(t, map[string]float64{"eth": 2, "bsc": 1}, counts)
	})

	t.Run("history", func(t *testing.T) {
		hb := b.WithClock(func() time.Time { return time.Date(2023, 9, 7, 12, 0, 0, 0, time.UTC) })
		text, err := hb.BuildHistoryQuery(query.Filter{Range: query.Range7d, Function: query.FunctionSum}, query.ColumnTransactionTraces)
		require.NoError(t, err)

		rows, err := client.Query(ctx, text)
		require.NoError(t, err)
		series, err := query.NormalizeHistory(rows, query.Range7d.Interval())
		require.NoError(t, err)
		assert.Len(t, series, 2)
		for _, s := range series {
			assert.Equal(t, []int64{1693958400}, s.Timestamps)
		}
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := client.Query(ctx, "SELECT * FROM missing")
		require.Error(t, err)
		assert.True(t, perr.IsCode(err, perr.ErrorCodeDB))
	})
}
