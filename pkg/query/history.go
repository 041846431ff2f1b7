package query

import "time"

const (
	secondsPerHour = 3600
	secondsPerDay  = 86400
)

// HistoryRange is a relative time window resolved against the current instant.
type HistoryRange string

const (
	Range24h HistoryRange = "24h"
	Range7d  HistoryRange = "7d"
	Range30d HistoryRange = "30d"
	Range90d HistoryRange = "90d"
	Range1y  HistoryRange = "1y"
	RangeAll HistoryRange = "all"
)

// rangeDays is the length in days of every day-aligned range.
var rangeDays = map[HistoryRange]int64{
	Range7d:  7,
	Range30d: 30,
	Range90d: 90,
	Range1y:  365,
}

// Valid reports whether r is a supported range.
func (r HistoryRange) Valid() bool {
	if r == Range24h || r == RangeAll {
		return true
	}
	_, ok := rangeDays[r]
	return ok
}

// Window returns the inclusive [start, end] bounds of r in unix seconds.
//
// 24h counts exact seconds back from now. Day based ranges end at the UTC start of
// the current day, so the partial current day is excluded. all starts at the epoch.
func (r HistoryRange) Window(now time.Time) (start, end int64) {
	now = now.UTC()
	switch r {
	case Range24h:
		end = now.Unix()
		return end - 24*secondsPerHour, end
	case RangeAll:
		return 0, now.Unix()
	}
	sod := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	return sod - rangeDays[r]*secondsPerDay, sod
}

// Interval returns the bucket width in seconds. Every range is bucketed by UTC day;
// a 24h window therefore spans at most two buckets.
func (r HistoryRange) Interval() int64 {
	return secondsPerDay
}

// bucket returns the expression truncating timestamp to the start of its UTC day, in unix seconds.
func (r HistoryRange) bucket() string {
	return "toUnixTimestamp(DATE(timestamp))"
}
