package query

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	perr "github.com/chainclock/chainclock/pkg/errors"
	josejson "github.com/go-jose/go-jose/v4/json"
)

// Series is the history of one chain, one value per bucket.
type Series struct {
	Chain      string    `json:"chain"`
	Values     []float64 `json:"values"`
	Timestamps []int64   `json:"timestamps"`
	Interval   int64     `json:"interval"`
}

// ChainFields holds every non-chain column of one chain's rows, in row order.
type ChainFields struct {
	Chain  string               `json:"chain"`
	Fields map[string][]float64 `json:"fields"`
}

// NormalizeHistory groups (chain, day, value) rows into one Series per chain.
// Chains appear in first-seen order and rows keep their arrival order within a chain.
func NormalizeHistory(rows []Row, interval int64) ([]Series, error) {
	out := make([]Series, 0)
	index := make(map[string]int)

	for i, row := range rows {
		chain, err := rowChain(row, i)
		if err != nil {
			return nil, err
		}
		day, err := rowNumber(row, "day", i)
		if err != nil {
			return nil, err
		}
		value, err := rowNumber(row, "value", i)
		if err != nil {
			return nil, err
		}

		pos, ok := index[chain]
		if !ok {
			pos = len(out)
			index[chain] = pos
			out = append(out, Series{Chain: chain, Values: []float64{}, Timestamps: []int64{}, Interval: interval})
		}
		out[pos].Values = append(out[pos].Values, value)
		out[pos].Timestamps = append(out[pos].Timestamps, int64(math.Floor(day)))
	}
	return out, nil
}

// NormalizeAggregate groups rows by chain, accumulating every other column.
func NormalizeAggregate(rows []Row) ([]ChainFields, error) {
	out := make([]ChainFields, 0)
	index := make(map[string]int)

	for i, row := range rows {
		chain, err := rowChain(row, i)
		if err != nil {
			return nil, err
		}

		pos, ok := index[chain]
		if !ok {
			pos = len(out)
			index[chain] = pos
			out = append(out, ChainFields{Chain: chain, Fields: map[string][]float64{}})
		}

		keys := make([]string, 0, len(row))
		for k := range row {
			if k != "chain" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := rowNumber(row, k, i)
			if err != nil {
				return nil, err
			}
			out[pos].Fields[k] = append(out[pos].Fields[k], v)
		}
	}
	return out, nil
}

func rowChain(row Row, i int) (string, error) {
	raw, ok := row["chain"]
	if !ok {
		return "", perr.Malformedf("row %d has no chain column", i)
	}
	chain, ok := raw.(string)
	if !ok || chain == "" {
		return "", perr.Malformedf("row %d has a non-string chain %v", i, raw)
	}
	return chain, nil
}

func rowNumber(row Row, column string, i int) (float64, error) {
	raw, ok := row[column]
	if !ok {
		return 0, perr.Malformedf("row %d has no %s column", i, column)
	}
	v, ok := ToNumber(raw)
	if !ok {
		return 0, perr.Malformedf("row %d column %s is not numeric: %v", i, column, raw)
	}
	return v, nil
}

// ToNumber coerces numeric values and numeric-looking strings to float64.
// ClickHouse encodes 64-bit integers as JSON strings, so both forms are accepted.
func ToNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case josejson.Number:
		// cached rows are decoded with UseNumber
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0, false
		}
		return ToNumber(rv.Elem().Interface())
	}
	if s, ok := raw.(interface{ String() string }); ok {
		return ToNumber(s.String())
	}
	return 0, false
}
