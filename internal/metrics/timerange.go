package metrics

import (
	"time"

	"github.com/vpspilot/pilot/internal/errors"
)

// TimeRange is one of the fixed windows the backend can answer for.
// The zero value is not a valid range.
type TimeRange string

// Supported ranges, in ascending order.
const (
	Range5M  TimeRange = "5M"
	Range15M TimeRange = "15M"
	Range1H  TimeRange = "1H"
	Range1D  TimeRange = "1D"
	Range2D  TimeRange = "2D"
	Range7D  TimeRange = "7D"
)

// DefaultRange is the range a fresh session starts with.
const DefaultRange = Range5M

type rangeSpec struct {
	duration time.Duration
	interval string
}

var rangeSpecs = map[TimeRange]rangeSpec{
	Range5M:  {5 * time.Minute, "5 minutes"},
	Range15M: {15 * time.Minute, "15 minutes"},
	Range1H:  {time.Hour, "1 hour"},
	Range1D:  {24 * time.Hour, "1 day"},
	Range2D:  {48 * time.Hour, "2 days"},
	Range7D:  {7 * 24 * time.Hour, "7 days"},
}

var rangeOrder = []TimeRange{Range5M, Range15M, Range1H, Range1D, Range2D, Range7D}

// Ranges returns every supported range in ascending order.
func Ranges() []TimeRange {
	out := make([]TimeRange, len(rangeOrder))
	copy(out, rangeOrder)
	return out
}

// RangeLabels returns the labels of every supported range in ascending order.
func RangeLabels() []string {
	labels := make([]string, len(rangeOrder))
	for i, r := range rangeOrder {
		labels[i] = string(r)
	}
	return labels
}

// ParseTimeRange maps a user-facing label to a TimeRange. Labels are matched
// exactly; anything outside the supported set is an ErrRange error.
func ParseTimeRange(label string) (TimeRange, error) {
	r := TimeRange(label)
	if !r.Valid() {
		return "", errors.NewInvalidRange(label, RangeLabels())
	}
	return r, nil
}

// MustParseTimeRange is like ParseTimeRange but panics on an unknown label.
// Only for constants known at compile time.
func MustParseTimeRange(label string) TimeRange {
	r, err := ParseTimeRange(label)
	if err != nil {
		panic(err)
	}
	return r
}

// Valid reports whether r is one of the supported ranges.
func (r TimeRange) Valid() bool {
	_, ok := rangeSpecs[r]
	return ok
}

// Code returns the wire code sent as time_range in stream queries.
func (r TimeRange) Code() string {
	return string(r)
}

// Duration returns the length of the window.
func (r TimeRange) Duration() time.Duration {
	return rangeSpecs[r].duration
}

// Interval returns the backend's interval text for the range ("5 minutes").
func (r TimeRange) Interval() string {
	return rangeSpecs[r].interval
}

// String implements fmt.Stringer.
func (r TimeRange) String() string {
	return string(r)
}

// Index returns the position of r in Ranges(), or -1 if r is invalid.
func (r TimeRange) Index() int {
	for i, v := range rangeOrder {
		if v == r {
			return i
		}
	}
	return -1
}

// Next returns the next larger range, wrapping around to the smallest.
func (r TimeRange) Next() TimeRange {
	i := r.Index()
	if i < 0 {
		return DefaultRange
	}
	return rangeOrder[(i+1)%len(rangeOrder)]
}

// Prev returns the next smaller range, wrapping around to the largest.
func (r TimeRange) Prev() TimeRange {
	i := r.Index()
	if i < 0 {
		return DefaultRange
	}
	return rangeOrder[(i-1+len(rangeOrder))%len(rangeOrder)]
}
