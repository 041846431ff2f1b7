package query

import (
	"fmt"
	"strconv"
	"strings"

	perr "github.com/chainclock/chainclock/pkg/errors"
)

// Params holds the untrusted query string of a request, decoded by name.
// Every field is optional; nil means the parameter was not sent.
type Params struct {
	Chain             *string `schema:"chain"`
	BlockID           *string `schema:"block_id"`
	BlockNumber       *string `schema:"block_number"`
	Timestamp         *string `schema:"timestamp"`
	Date              *string `schema:"date"`
	Limit             *string `schema:"limit"`
	SortBy            *string `schema:"sort_by"`
	AggregateFunction *string `schema:"aggregate_function"`
	Range             *string `schema:"range"`

	GreaterOrEqualsByBlockNumber *string `schema:"greater_or_equals_by_block_number"`
	GreaterOrEqualsByTimestamp   *string `schema:"greater_or_equals_by_timestamp"`
	GreaterByBlockNumber         *string `schema:"greater_by_block_number"`
	GreaterByTimestamp           *string `schema:"greater_by_timestamp"`
	LessOrEqualsByBlockNumber    *string `schema:"less_or_equals_by_block_number"`
	LessOrEqualsByTimestamp      *string `schema:"less_or_equals_by_timestamp"`
	LessByBlockNumber            *string `schema:"less_by_block_number"`
	LessByTimestamp              *string `schema:"less_by_timestamp"`
}

// Field is a column that range operators can target.
type Field string

const (
	FieldBlockNumber Field = "block_number"
	FieldTimestamp   Field = "timestamp"
)

// expr returns the SQL expression compared against for the field.
func (f Field) expr() string {
	if f == FieldTimestamp {
		return "toUnixTimestamp(timestamp)"
	}
	return string(f)
}

// Comparator is a range comparison operator.
type Comparator string

const (
	GreaterOrEquals Comparator = ">="
	Greater         Comparator = ">"
	LessOrEquals    Comparator = "<="
	Less            Comparator = "<"
)

// Operator is one compiled range condition.
type Operator struct {
	Field      Field
	Comparator Comparator
	Value      int64
}

// operatorTable fixes the order in which range parameters are compiled.
var operatorTable = []struct {
	prefix     string
	comparator Comparator
}{
	{"greater_or_equals_by", GreaterOrEquals},
	{"greater_by", Greater},
	{"less_or_equals_by", LessOrEquals},
	{"less_by", Less},
}

var operatorFields = []Field{FieldBlockNumber, FieldTimestamp}

// operator returns the raw value of the range parameter <prefix>_<field>.
func (p Params) operator(prefix string, field Field) *string {
	switch prefix + "_" + string(field) {
	case "greater_or_equals_by_block_number":
		return p.GreaterOrEqualsByBlockNumber
	case "greater_or_equals_by_timestamp":
		return p.GreaterOrEqualsByTimestamp
	case "greater_by_block_number":
		return p.GreaterByBlockNumber
	case "greater_by_timestamp":
		return p.GreaterByTimestamp
	case "less_or_equals_by_block_number":
		return p.LessOrEqualsByBlockNumber
	case "less_or_equals_by_timestamp":
		return p.LessOrEqualsByTimestamp
	case "less_by_block_number":
		return p.LessByBlockNumber
	case "less_by_timestamp":
		return p.LessByTimestamp
	}
	return nil
}

// Filter is the validated form of a request.
// Nil fields are left out of the WHERE clause; zero Sort, Limit, Function and Range mean their defaults.
type Filter struct {
	Chain       *string
	BlockID     *string
	BlockNumber *int64
	Timestamp   *int64
	Date        *string
	Operators   []Operator

	Sort     SortDirection
	Limit    int
	Function AggregateFunction
	Range    HistoryRange
}

// WithChain returns a copy of f restricted to chain.
func (f Filter) WithChain(chain string) Filter {
	f.Chain = &chain
	return f
}

// FilterOptions tunes ParseFilter for an endpoint.
type FilterOptions struct {
	// MaxLimit bounds Limit; values below 1 are treated as 1.
	MaxLimit int
	// DefaultFunction replaces DefaultFunction when aggregate_function is absent.
	DefaultFunction AggregateFunction
	// WithFunction parses aggregate_function; when false the parameter is ignored.
	WithFunction bool
	// WithRange parses range; when false the parameter is ignored.
	WithRange bool
}

// ParseFilter validates every parameter in p and assembles a Filter.
//
// Malformed chains, block ids and block numbers are dropped. Malformed limits, timestamps
// and dates are rejected, as are aggregate functions and ranges on endpoints that use them.
func ParseFilter(p Params, opts FilterOptions) (Filter, error) {
	var f Filter

	if chain, ok := ParseChain(p.Chain); ok {
		f.Chain = &chain
	}
	if id, ok := ParseBlockID(p.BlockID); ok {
		f.BlockID = &id
	}
	if n, ok := ParseBlockNumber(p.BlockNumber); ok {
		f.BlockNumber = &n
	}

	ts, ok, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return Filter{}, err
	}
	if ok {
		f.Timestamp = &ts
	}

	date, ok, err := ParseDate(p.Date)
	if err != nil {
		return Filter{}, err
	}
	if ok {
		f.Date = &date
	}

	for _, entry := range operatorTable {
		for _, field := range operatorFields {
			name := entry.prefix + "_" + string(field)
			raw := p.operator(entry.prefix, field)

			var (
				value   int64
				present bool
			)
			switch field {
			case FieldBlockNumber:
				value, present = ParseBlockNumber(raw)
			case FieldTimestamp:
				value, present, err = ParseTimestamp(raw)
				if err != nil {
					return Filter{}, perr.WithField(err, name)
				}
			}
			if present {
				f.Operators = append(f.Operators, Operator{Field: field, Comparator: entry.comparator, Value: value})
			}
		}
	}

	f.Sort = ParseSortBy(p.SortBy)

	f.Limit, err = ParseLimit(p.Limit, opts.MaxLimit)
	if err != nil {
		return Filter{}, err
	}

	if opts.WithFunction {
		fn, ok := ParseAggregateFunction(p.AggregateFunction)
		if !ok {
			return Filter{}, perr.InvalidParamf("aggregate_function", "unsupported aggregate_function %q", deref(p.AggregateFunction))
		}
		if !Present(p.AggregateFunction) && opts.DefaultFunction != "" {
			fn = opts.DefaultFunction
		}
		f.Function = fn
	}

	if opts.WithRange {
		r, ok := ParseHistoryRange(p.Range)
		if !ok {
			return Filter{}, perr.InvalidParamf("range", "unsupported range %q", deref(p.Range))
		}
		f.Range = r
	}

	return f, nil
}

// whereClause compiles the range operators followed by the equality filters.
// It returns an empty string when f filters nothing.
func whereClause(f Filter) string {
	return where(filterClauses(f))
}

func filterClauses(f Filter) []string {
	clauses := make([]string, 0, len(f.Operators)+5)
	for _, op := range f.Operators {
		clauses = append(clauses, fmt.Sprintf("%s %s %d", op.Field.expr(), op.Comparator, op.Value))
	}
	if f.Chain != nil {
		clauses = append(clauses, fmt.Sprintf("chain == '%s'", *f.Chain))
	}
	if f.BlockID != nil {
		clauses = append(clauses, fmt.Sprintf("block_id == '%s'", *f.BlockID))
	}
	if f.BlockNumber != nil {
		clauses = append(clauses, fmt.Sprintf("block_number == '%d'", *f.BlockNumber))
	}
	if f.Timestamp != nil {
		clauses = append(clauses, fmt.Sprintf("%s == %d", FieldTimestamp.expr(), *f.Timestamp))
	}
	if f.Date != nil {
		clauses = append(clauses, fmt.Sprintf("DATE(timestamp) == '%s'", *f.Date))
	}
	return clauses
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE (" + strings.Join(clauses, " AND ") + ")"
}

// validate re-checks the interpolated fields of a Filter built outside ParseFilter.
func (f Filter) validate() error {
	if f.Chain != nil {
		if _, ok := ParseChain(*f.Chain); !ok {
			return perr.IllegalQueryf("chain %q is not a valid identifier", *f.Chain)
		}
	}
	if f.BlockID != nil {
		if _, ok := ParseBlockID(*f.BlockID); !ok || strings.HasPrefix(*f.BlockID, "0x") {
			return perr.IllegalQueryf("block id %q is not normalized hex", *f.BlockID)
		}
	}
	if f.Date != nil {
		if _, _, err := ParseDate(*f.Date); err != nil {
			return perr.IllegalQueryf("date %q is not a calendar day", *f.Date)
		}
	}
	for _, op := range f.Operators {
		switch op.Comparator {
		case GreaterOrEquals, Greater, LessOrEquals, Less:
		default:
			return perr.IllegalQueryf("unsupported comparator %q", op.Comparator)
		}
		if op.Field != FieldBlockNumber && op.Field != FieldTimestamp {
			return perr.IllegalQueryf("unsupported operator field %q", op.Field)
		}
	}
	if f.Limit < 0 {
		return perr.IllegalQueryf("negative limit %d", f.Limit)
	}
	switch f.Sort {
	case "", SortAsc, SortDesc:
	default:
		return perr.IllegalQueryf("unsupported sort direction %q", f.Sort)
	}
	if f.Function != "" && !f.Function.Valid() {
		return perr.IllegalQueryf("unsupported aggregate function %q", f.Function)
	}
	if f.Range != "" && !f.Range.Valid() {
		return perr.IllegalQueryf("unsupported range %q", f.Range)
	}
	return nil
}

func (f Filter) limit() string {
	if f.Limit == 0 {
		return strconv.Itoa(DefaultLimit)
	}
	return strconv.Itoa(f.Limit)
}

func (f Filter) sort() SortDirection {
	if f.Sort == "" {
		return DefaultSort
	}
	return f.Sort
}

func (f Filter) function() AggregateFunction {
	if f.Function == "" {
		return DefaultFunction
	}
	return f.Function
}

func (f Filter) historyRange() HistoryRange {
	if f.Range == "" {
		return DefaultRange
	}
	return f.Range
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
