package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	perr "github.com/chainclock/chainclock/pkg/errors"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Executor runs a compiled query against the analytical store.
type Executor interface {
	Query(ctx context.Context, text string) ([]Row, error)
}

// ChainLister exposes the currently known chains.
type ChainLister interface {
	// Snapshot returns the known chains in a stable order.
	Snapshot() []string
	Contains(chain string) bool
}

// AggregateColumn is a BlockStats column that aggregate endpoints may target.
type AggregateColumn string

const (
	ColumnTraceCalls        AggregateColumn = "trace_calls"
	ColumnTransactionTraces AggregateColumn = "transaction_traces"

	// uawColumn is only reachable through the unique active wallets builders.
	uawColumn = "uaw"
)

var aggregateColumns = map[AggregateColumn]struct{}{
	ColumnTraceCalls:        {},
	ColumnTransactionTraces: {},
}

// AggregateColumns lists the columns accepted by BuildAggregateQuery and BuildHistoryQuery.
func AggregateColumns() []AggregateColumn {
	return []AggregateColumn{ColumnTraceCalls, ColumnTransactionTraces}
}

// Valid reports whether c is on the aggregate allow-list.
func (c AggregateColumn) Valid() bool {
	_, ok := aggregateColumns[c]
	return ok
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is a plain or database-qualified table name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Tables names the tables queried by the builders.
type Tables struct {
	Blocks     string
	Aggregates string
}

// DefaultTables matches the schema written by the block stats sink.
var DefaultTables = Tables{Blocks: "blocks", Aggregates: "BlockStats"}

// Builder compiles Filters into ClickHouse queries. It never performs I/O.
type Builder struct {
	tables Tables
	chains ChainLister
	now    func() time.Time
}

// NewBuilder returns a Builder over tables. Table names must be plain or database-qualified identifiers.
func NewBuilder(tables Tables, chains ChainLister) (*Builder, error) {
	for _, name := range []string{tables.Blocks, tables.Aggregates} {
		if !ValidIdentifier(name) {
			return nil, perr.IllegalQueryf("invalid table name %q", name)
		}
	}
	if chains == nil {
		chains = StaticChains(nil)
	}
	return &Builder{tables: tables, chains: chains, now: time.Now}, nil
}

// WithClock returns a copy of b that resolves history windows against now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	c := *b
	c.now = now
	return &c
}

// ResolveChain rejects a requested chain that the directory does not know.
func (b *Builder) ResolveChain(f Filter) error {
	if f.Chain == nil {
		return nil
	}
	if !b.chains.Contains(*f.Chain) {
		return perr.UnknownChainf("chain %q not found", *f.Chain)
	}
	return nil
}

// BuildBlockQuery compiles a block lookup.
// Without a chain it unions one lookup per known chain so that the limit applies per chain.
func (b *Builder) BuildBlockQuery(f Filter) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	if f.Chain != nil {
		return b.blockQuery(f), nil
	}

	chains := b.snapshot()
	if len(chains) == 0 {
		return b.blockQuery(f), nil
	}
	parts := make([]string, 0, len(chains))
	for _, chain := range chains {
		parts = append(parts, b.blockQuery(f.WithChain(chain)))
	}
	return strings.Join(parts, " UNION ALL "), nil
}

func (b *Builder) blockQuery(f Filter) string {
	return fmt.Sprintf("SELECT * FROM %s%s ORDER BY block_number %s LIMIT %s",
		b.tables.Blocks, whereClause(f), f.sort(), f.limit())
}

// BuildAggregateQuery compiles a per-chain aggregate of column.
func (b *Builder) BuildAggregateQuery(f Filter, column AggregateColumn) (string, error) {
	if !column.Valid() {
		return "", perr.IllegalQueryf("column %q is not aggregatable", column)
	}
	if err := f.validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT chain, %s(%s) FROM %s%s GROUP BY chain",
		f.function(), column, b.tables.Aggregates, whereClause(f)), nil
}

// BuildUniqueActiveWalletsQuery compiles a per-chain distinct count of active wallets.
func (b *Builder) BuildUniqueActiveWalletsQuery(f Filter) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT chain, count(distinct %s) FROM %s ARRAY JOIN %s%s GROUP BY chain",
		uawColumn, b.tables.Aggregates, uawColumn, whereClause(f)), nil
}

// BuildHistoryQuery compiles a time-bucketed aggregate of column over f.Range.
func (b *Builder) BuildHistoryQuery(f Filter, column AggregateColumn) (string, error) {
	if !column.Valid() {
		return "", perr.IllegalQueryf("column %q is not aggregatable", column)
	}
	if err := f.validate(); err != nil {
		return "", err
	}
	return b.historyQuery(f, fmt.Sprintf("%s(%s)", f.function(), column), ""), nil
}

// BuildUniqueActiveWalletsHistoryQuery compiles a time-bucketed distinct count of active wallets.
func (b *Builder) BuildUniqueActiveWalletsHistoryQuery(f Filter) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	return b.historyQuery(f, "count(distinct "+uawColumn+")", " ARRAY JOIN "+uawColumn), nil
}

func (b *Builder) historyQuery(f Filter, aggregate, join string) string {
	r := f.historyRange()
	start, end := r.Window(b.now())

	clauses := []string{fmt.Sprintf("timestamp BETWEEN %d AND %d", start, end)}
	if f.Chain != nil {
		clauses = append(clauses, fmt.Sprintf("chain == '%s'", *f.Chain))
	}

	return fmt.Sprintf("SELECT chain, %s AS day, %s AS value FROM %s%s%s GROUP BY chain, day ORDER BY day ASC",
		r.bucket(), aggregate, b.tables.Aggregates, join, where(clauses))
}

// snapshot returns the directory chains that are safe to interpolate.
func (b *Builder) snapshot() []string {
	all := b.chains.Snapshot()
	out := make([]string, 0, len(all))
	for _, chain := range all {
		if _, ok := ParseChain(chain); ok {
			out = append(out, chain)
		}
	}
	return out
}

// StaticChains is a fixed ChainLister, in the given order.
type StaticChains []string

// Snapshot implements ChainLister.
func (s StaticChains) Snapshot() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Contains implements ChainLister.
func (s StaticChains) Contains(chain string) bool {
	for _, c := range s {
		if c == chain {
			return true
		}
	}
	return false
}
