// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// PartitionValue is a parsed PartitionKey: exactly one of Time or Int is
// meaningful, selected by the owning Partition's Kind.
type PartitionValue struct {
	Time time.Time // UTC, truncated to the partition's granularity bucket start
	Int  int64
}

// ParsePartitionKey parses s according to p's grammar (§6):
//
//	HOUR   YYYY-MM-DDTHH
//	DAY    YYYY-MM-DD
//	MONTH  YYYY-MM
//	YEAR   YYYY
//	RANGE  decimal integer
func ParsePartitionKey(p Partition, s string) (PartitionValue, error) {
	switch p.Kind {
	case PartitionRange:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return PartitionValue{}, fmt.Errorf("partition key %q is not a decimal integer: %w", s, err)
		}
		return PartitionValue{Int: n}, nil
	case PartitionTime, PartitionIngestionTime:
		t, err := parseTimeKey(p.Granularity, s)
		if err != nil {
			return PartitionValue{}, err
		}
		return PartitionValue{Time: t}, nil
	default:
		return PartitionValue{}, fmt.Errorf("unknown partition kind %q", p.Kind)
	}
}

func parseTimeKey(g Granularity, s string) (time.Time, error) {
	var layout string
	switch g {
	case Hour:
		layout = "2006-01-02T15"
	case Day:
		layout = "2006-01-02"
	case Month:
		layout = "2006-01"
	case Year:
		layout = "2006"
	default:
		return time.Time{}, fmt.Errorf("unknown granularity %q", g)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("partition key %q does not match %s format: %w", s, g, err)
	}
	return t.UTC(), nil
}

// FormatPartitionKey renders v back to its canonical string form for p.
func FormatPartitionKey(p Partition, v PartitionValue) string {
	switch p.Kind {
	case PartitionRange:
		return strconv.FormatInt(v.Int, 10)
	case PartitionTime, PartitionIngestionTime:
		switch p.Granularity {
		case Hour:
			return v.Time.Format("2006-01-02T15")
		case Month:
			return v.Time.Format("2006-01")
		case Year:
			return v.Time.Format("2006")
		default: // Day
			return v.Time.Format("2006-01-02")
		}
	default:
		return ""
	}
}

// CivilDate converts a TIME/INGESTION_TIME PartitionValue's day to a
// civil.Date, used by the Version Resolver to compare against
// effective_from dates.
func (v PartitionValue) CivilDate() civil.Date {
	return civil.DateOf(v.Time)
}

// TruncateToGranularity returns the start instant of t's bucket at
// granularity g.
func TruncateToGranularity(g Granularity, t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}
