package query

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	perr "github.com/chainclock/chainclock/pkg/errors"
)

const (
	// DefaultLimit is used when no limit (or a non-positive one) is requested.
	DefaultLimit = 1
	// DefaultSort orders blocks newest first.
	DefaultSort = SortDesc
	// DefaultFunction is the aggregate applied when none is requested.
	DefaultFunction = FunctionCount
	// DefaultRange is the history window applied when none is requested.
	DefaultRange = Range24h
)

var (
	blockIDPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)
	chainPattern   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// timestampLayouts are tried in order against a date string with any trailing Z removed.
// Fractional seconds are accepted after the seconds field by time.Parse.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
}

// SortDirection orders block lookups by block number.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// AggregateFunction is the ClickHouse aggregate applied to an aggregate column.
type AggregateFunction string

const (
	FunctionCount  AggregateFunction = "count"
	FunctionMin    AggregateFunction = "min"
	FunctionMax    AggregateFunction = "max"
	FunctionAvg    AggregateFunction = "avg"
	FunctionSum    AggregateFunction = "sum"
	FunctionMedian AggregateFunction = "median"
)

var aggregateFunctions = map[AggregateFunction]struct{}{
	FunctionCount:  {},
	FunctionMin:    {},
	FunctionMax:    {},
	FunctionAvg:    {},
	FunctionSum:    {},
	FunctionMedian: {},
}

// Valid reports whether f is one of the supported aggregates.
func (f AggregateFunction) Valid() bool {
	_, ok := aggregateFunctions[f]
	return ok
}

// text converts a raw request value into its string form.
// nil, nil pointers and empty strings are absent.
func text(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return text(*v)
	case json.Number:
		return text(v.String())
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		return text(rv.Elem().Interface())
	}
	return "", false
}

func formatFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// Present reports whether a raw value carries anything at all.
func Present(raw any) bool {
	_, ok := text(raw)
	return ok
}

// ParseBlockID accepts a hex block hash, optionally 0x-prefixed, and returns it without the prefix.
func ParseBlockID(raw any) (string, bool) {
	s, ok := text(raw)
	if !ok || !blockIDPattern.MatchString(s) {
		return "", false
	}
	return strings.TrimPrefix(s, "0x"), true
}

// ParseBlockNumber returns a strictly positive block number.
// Zero, negative and non-numeric values mean "no filter".
func ParseBlockNumber(raw any) (int64, bool) {
	s, ok := text(raw)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseChain accepts alphanumeric chain identifiers only.
// This is the only guard in front of chain names reaching a query string.
func ParseChain(raw any) (string, bool) {
	s, ok := text(raw)
	if !ok || !chainPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseLimit returns a limit in [1, max]. Absent and non-positive values yield DefaultLimit;
// non-numeric values are rejected.
func ParseLimit(raw any, max int) (int, error) {
	if max < DefaultLimit {
		max = DefaultLimit
	}
	s, ok := text(raw)
	if !ok {
		return DefaultLimit, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if numErr, isNum := err.(*strconv.NumError); isNum && numErr.Err == strconv.ErrRange && digitsPattern.MatchString(s) {
			return max, nil
		}
		return 0, perr.InvalidParamf("limit", "limit must be an integer, got %q", s)
	}
	switch {
	case n <= 0:
		return DefaultLimit, nil
	case n > int64(max):
		return max, nil
	}
	return int(n), nil
}

// ParseTimestamp normalizes a timestamp to unix seconds.
//
// Digit strings and numbers are epoch values: 10 digits are seconds, 13 digits are
// milliseconds (floored to seconds), any other length fails with InvalidTimestamp.
// Other strings are dates read as UTC.
func ParseTimestamp(raw any) (int64, bool, error) {
	s, ok := text(raw)
	if !ok {
		return 0, false, nil
	}

	if digitsPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, perr.InvalidTimestampf("timestamp", "invalid timestamp %q", s)
		}
		switch len(strconv.FormatInt(n, 10)) {
		case 10:
			return n, true, nil
		case 13:
			return n / 1000, true, nil
		default:
			return 0, false, perr.InvalidTimestampf("timestamp", "invalid timestamp %q: expected 10 digit seconds or 13 digit milliseconds", s)
		}
	}

	date := strings.TrimSuffix(s, "Z")
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Unix(), true, nil
		}
	}
	return 0, false, perr.InvalidTimestampf("timestamp", "invalid timestamp %q", s)
}

// ParseDate accepts a calendar day in YYYY-MM-DD form.
func ParseDate(raw any) (string, bool, error) {
	s, ok := text(raw)
	if !ok {
		return "", false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", false, perr.InvalidParamf("date", "date must be formatted as YYYY-MM-DD, got %q", s)
	}
	return t.Format(time.DateOnly), true, nil
}

// ParseSortBy returns ASC or DESC, falling back to DefaultSort.
func ParseSortBy(raw any) SortDirection {
	s, _ := text(raw)
	switch SortDirection(s) {
	case SortAsc:
		return SortAsc
	case SortDesc:
		return SortDesc
	}
	return DefaultSort
}

// ParseAggregateFunction returns DefaultFunction when absent and false when the value is not supported.
func ParseAggregateFunction(raw any) (AggregateFunction, bool) {
	s, ok := text(raw)
	if !ok {
		return DefaultFunction, true
	}
	fn := AggregateFunction(s)
	if !fn.Valid() {
		return "", false
	}
	return fn, true
}

// ParseHistoryRange returns DefaultRange when absent and false when the value is not supported.
func ParseHistoryRange(raw any) (HistoryRange, bool) {
	s, ok := text(raw)
	if !ok {
		return DefaultRange, true
	}
	r := HistoryRange(s)
	if !r.Valid() {
		return "", false
	}
	return r, true
}
