package metrics

import "sort"

// CPUFrame holds per-core samples keyed by 1-based core index.
type CPUFrame struct {
	Cores map[int][]Sample
}

// CoreIDs returns the core indexes present, ascending.
func (c CPUFrame) CoreIDs() []int {
	ids := make([]int, 0, len(c.Cores))
	for id := range c.Cores {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MemoryFrame holds the memory usage series.
type MemoryFrame struct {
	Samples []Sample
}

// NetworkFrame holds received and sent throughput series.
type NetworkFrame struct {
	Received []Sample
	Sent     []Sample
}

// Frame is one push from the backend: a full window of every series for the
// requested range. CPU, Memory and Network are nil when the message didn't
// carry that metric.
type Frame struct {
	NodeID  int
	Range   TimeRange
	CPU     *CPUFrame
	Memory  *MemoryFrame
	Network *NetworkFrame
}

// Empty reports whether the frame carries no series at all.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Series()) == 0
}

// Series flattens the frame into a map of series key to samples. The sample
// slices are shared with the frame; callers must not modify them.
func (f *Frame) Series() map[SeriesKey][]Sample {
	out := make(map[SeriesKey][]Sample)
	if f == nil {
		return out
	}
	if f.CPU != nil {
		for core, samples := range f.CPU.Cores {
			out[CPUKey(core)] = samples
		}
	}
	if f.Memory != nil {
		out[MemoryKey] = f.Memory.Samples
	}
	if f.Network != nil {
		out[NetworkReceivedKey] = f.Network.Received
		out[NetworkSentKey] = f.Network.Sent
	}
	return out
}

// Keys returns the frame's series keys in a stable order.
func (f *Frame) Keys() []SeriesKey {
	series := f.Series()
	keys := make([]SeriesKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
