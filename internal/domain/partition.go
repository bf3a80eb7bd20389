package domain

import (
	"fmt"
	"time"
)

// Partition is one calendar-month segment of the fact store owning the
// half-open interval [Start, End).
type Partition struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthPartitionFor returns the monthly partition whose range contains ts.
func MonthPartitionFor(ts time.Time) Partition {
	ts = ts.UTC()
	start := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return Partition{
		Name:  fmt.Sprintf("fct_retail_sales_%s", start.Format("2006_01")),
		Start: start,
		End:   end,
	}
}

// Contains reports whether ts falls inside the partition's range.
func (p Partition) Contains(ts time.Time) bool {
	ts = ts.UTC()
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// Overlaps reports whether two partitions share any instant.
func (p Partition) Overlaps(other Partition) bool {
	return p.Start.Before(other.End) && other.Start.Before(p.End)
}
