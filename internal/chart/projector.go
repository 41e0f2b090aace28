// Package chart turns metric frames into aligned tables ready for plotting.
//
// Every table has one row per distinct timestamp across its series, with
// timestamps normalized to whole seconds in UTC. A series that has no sample
// at a row's timestamp contributes 0 there. Projection is a pure function of
// the frame.
package chart

import (
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/vpspilot/pilot/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SeriesConfig describes how to draw one column of a table.
type SeriesConfig struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// AlignedRow is one timestamp of a table. Values is keyed by series key
// (cpu_1, memory, net_recv, ...).
type AlignedRow struct {
	Time   time.Time
	Values map[string]float64
}

// MarshalJSON writes {"time": "...", "<key>": value, ...} with keys in
// natural order so output is byte-identical across calls.
func (r AlignedRow) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })

	s := json.BorrowStream(nil)
	defer json.ReturnStream(s)

	s.WriteObjectStart()
	s.WriteObjectField("time")
	s.WriteString(r.Time.UTC().Format(time.RFC3339))
	for _, k := range keys {
		s.WriteMore()
		s.WriteObjectField(k)
		s.WriteFloat64(r.Values[k])
	}
	s.WriteObjectEnd()
	if s.Error != nil {
		return nil, s.Error
	}
	return append([]byte(nil), s.Buffer()...), nil
}

// Table is the chart-ready projection of a group of series.
type Table struct {
	Rows   []AlignedRow   `json:"rows"`
	Config []SeriesConfig `json:"config"`
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Column returns one series' values in row order.
func (t Table) Column(key string) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[key]
	}
	return out
}

// Last returns the newest value of a series and whether the table has rows.
func (t Table) Last(key string) (float64, bool) {
	if len(t.Rows) == 0 {
		return 0, false
	}
	return t.Rows[len(t.Rows)-1].Values[key], true
}

// Span returns the first and last row timestamps.
func (t Table) Span() (time.Time, time.Time) {
	if len(t.Rows) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Rows[0].Time, t.Rows[len(t.Rows)-1].Time
}

// Charts holds the three tables the dashboard draws.
type Charts struct {
	CPU     Table `json:"cpu"`
	Memory  Table `json:"memory"`
	Network Table `json:"network"`
}

// Project builds the CPU, memory and network tables for a frame. The frame is
// not modified. A nil or empty frame yields empty tables.
func Project(f *metrics.Frame) Charts {
	series := f.Series()
	var cpu, mem, net []metrics.SeriesKey
	for _, k := range f.Keys() {
		switch k.Kind {
		case metrics.KindCPU:
			cpu = append(cpu, k)
		case metrics.KindMemory:
			mem = append(mem, k)
		case metrics.KindNetworkSent, metrics.KindNetworkReceived:
			net = append(net, k)
		}
	}
	return Charts{
		CPU:     table(series, cpu),
		Memory:  table(series, mem),
		Network: table(series, net),
	}
}

func table(series map[metrics.SeriesKey][]metrics.Sample, keys []metrics.SeriesKey) Table {
	return Table{
		Rows:   Align(series, keys),
		Config: Configs(keys),
	}
}

// Configs returns the config for keys, colored by position.
func Configs(keys []metrics.SeriesKey) []SeriesConfig {
	out := make([]SeriesConfig, len(keys))
	for i, k := range keys {
		out[i] = SeriesConfig{
			Key:   k.String(),
			Label: k.Label(),
			Color: Color(i, len(keys)),
		}
	}
	return out
}

// PlaceholderCPUConfig sizes the CPU chart for a node before its first frame,
// using the core count from the node descriptor.
func PlaceholderCPUConfig(cores int) []SeriesConfig {
	if cores <= 0 {
		return []SeriesConfig{}
	}
	keys := make([]metrics.SeriesKey, cores)
	for i := range keys {
		keys[i] = metrics.CPUKey(i + 1)
	}
	return Configs(keys)
}

// Normalize maps a sample time to its row timestamp.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Align merges the given series into rows keyed by normalized timestamp.
// Rows are ascending and unique; missing values are 0. Within one series a
// later sample at the same normalized second overwrites an earlier one.
func Align(series map[metrics.SeriesKey][]metrics.Sample, keys []metrics.SeriesKey) []AlignedRow {
	byTime := make(map[int64]map[string]float64)
	for _, k := range keys {
		name := k.String()
		for _, s := range series[k] {
			ts := Normalize(s.Time).Unix()
			row, ok := byTime[ts]
			if !ok {
				row = make(map[string]float64, len(keys))
				byTime[ts] = row
			}
			row[name] = s.Value
		}
	}

	stamps := make([]int64, 0, len(byTime))
	for ts := range byTime {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	rows := make([]AlignedRow, len(stamps))
	for i, ts := range stamps {
		values := byTime[ts]
		for _, k := range keys {
			name := k.String()
			if _, ok := values[name]; !ok {
				values[name] = 0
			}
		}
		rows[i] = AlignedRow{Time: time.Unix(ts, 0).UTC(), Values: values}
	}
	return rows
}

// naturalLess orders cpu_2 before cpu_10.
func naturalLess(a, b string) bool {
	ap, an := splitNumericSuffix(a)
	bp, bn := splitNumericSuffix(b)
	if ap != bp {
		return ap < bp
	}
	if an != bn {
		return an < bn
	}
	return a < b
}

func splitNumericSuffix(s string) (string, int) {
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return s, -1
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, -1
	}
	return s[:i], n
}
