package metrics

import (
	"fmt"
	"time"
)

// Sample is a single timestamped value of one series. Time is the backend's
// collection time, never the time the client received it.
type Sample struct {
	Time  time.Time
	Value float64
}

// Kind identifies which metric a series belongs to.
type Kind int

const (
	KindCPU Kind = iota
	KindMemory
	KindNetworkSent
	KindNetworkReceived
)

// String returns the short name used in logs and labels.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindMemory:
		return "memory"
	case KindNetworkSent:
		return "networkSent"
	case KindNetworkReceived:
		return "networkReceived"
	default:
		return "unknown"
	}
}

// Unit returns the unit values of this kind are expressed in.
func (k Kind) Unit() string {
	switch k {
	case KindNetworkSent, KindNetworkReceived:
		return "B/s"
	default:
		return "%"
	}
}

// SeriesKey identifies one series inside a frame. SubID is the 1-based CPU core
// index for cpu series and 0 for everything else.
type SeriesKey struct {
	Kind  Kind
	SubID int
}

// CPUKey returns the key of the given 1-based CPU core.
func CPUKey(core int) SeriesKey {
	return SeriesKey{Kind: KindCPU, SubID: core}
}

var (
	MemoryKey          = SeriesKey{Kind: KindMemory}
	NetworkSentKey     = SeriesKey{Kind: KindNetworkSent}
	NetworkReceivedKey = SeriesKey{Kind: KindNetworkReceived}
)

// String returns the chart column name for the series: cpu_1, memory,
// net_sent, net_recv.
func (k SeriesKey) String() string {
	switch k.Kind {
	case KindCPU:
		return fmt.Sprintf("cpu_%d", k.SubID)
	case KindMemory:
		return "memory"
	case KindNetworkSent:
		return "net_sent"
	case KindNetworkReceived:
		return "net_recv"
	default:
		return fmt.Sprintf("unknown_%d", k.SubID)
	}
}

// Label returns a human-readable series name.
func (k SeriesKey) Label() string {
	switch k.Kind {
	case KindCPU:
		return fmt.Sprintf("CPU %d", k.SubID)
	case KindMemory:
		return "Memory"
	case KindNetworkSent:
		return "Sent"
	case KindNetworkReceived:
		return "Received"
	default:
		return k.String()
	}
}

// Less orders keys by kind, then sub id.
func (k SeriesKey) Less(other SeriesKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	return k.SubID < other.SubID
}
