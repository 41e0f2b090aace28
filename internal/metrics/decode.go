package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vpspilot/pilot/internal/errors"
)

// NetworkFields names the per-sample fields of the net series. Backend
// revisions disagree on the spelling (recv/sent vs net_recv/net_sent), so the
// names come from configuration.
type NetworkFields struct {
	Received string `yaml:"received" mapstructure:"received"`
	Sent     string `yaml:"sent" mapstructure:"sent"`
}

// DefaultNetworkFields returns the field names the current backend uses.
func DefaultNetworkFields() NetworkFields {
	return NetworkFields{Received: "recv", Sent: "sent"}
}

// timeLayouts are tried in order when parsing a sample's time string.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Decoder turns server->client stream messages into frames. It validates the
// payload shape explicitly and rejects anything it doesn't recognize instead
// of coercing it.
type Decoder struct {
	fields NetworkFields
}

// NewDecoder creates a decoder. Empty field names fall back to the defaults.
func NewDecoder(fields NetworkFields) *Decoder {
	def := DefaultNetworkFields()
	if fields.Received == "" {
		fields.Received = def.Received
	}
	if fields.Sent == "" {
		fields.Sent = def.Sent
	}
	return &Decoder{fields: fields}
}

// Fields returns the network field names in use.
func (d *Decoder) Fields() NetworkFields {
	return d.fields
}

// Decode parses one message. Every error it returns has code ErrFrame.
func (d *Decoder) Decode(data []byte) (*Frame, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.NewMalformedFrame("payload is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.NewMalformedFrame("payload is not a JSON object")
	}

	cpu, mem, net := root.Get("cpu"), root.Get("mem"), root.Get("net")
	if !cpu.Exists() && !mem.Exists() && !net.Exists() {
		return nil, errors.NewMalformedFrame("payload has none of cpu, mem, net")
	}

	frame := &Frame{}

	if id := root.Get("node_id"); id.Exists() {
		n, err := intValue(id)
		if err != nil {
			return nil, errors.NewMalformedFrame("node_id: " + err.Error())
		}
		frame.NodeID = n
	}
	if tr := root.Get("time_range"); tr.Exists() {
		if tr.Type != gjson.String {
			return nil, errors.NewMalformedFrame("time_range is not a string")
		}
		frame.Range = rangeFromWire(tr.String())
	}

	if cpu.Exists() {
		c, err := d.decodeCPU(cpu)
		if err != nil {
			return nil, errors.NewMalformedFrame("cpu: " + err.Error())
		}
		frame.CPU = c
	}
	if mem.Exists() {
		samples, err := decodeSamples(mem)
		if err != nil {
			return nil, errors.NewMalformedFrame("mem: " + err.Error())
		}
		frame.Memory = &MemoryFrame{Samples: samples}
	}
	if net.Exists() {
		n, err := d.decodeNetwork(net)
		if err != nil {
			return nil, errors.NewMalformedFrame("net: " + err.Error())
		}
		frame.Network = n
	}

	return frame, nil
}

// decodeCPU accepts either {"<core>": [{time, value}]} or the pivoted row form
// [{time, cpu_1, cpu_2, ...}].
func (d *Decoder) decodeCPU(v gjson.Result) (*CPUFrame, error) {
	out := &CPUFrame{Cores: make(map[int][]Sample)}

	switch {
	case v.Type == gjson.Null:
		return out, nil

	case v.IsObject():
		var err error
		v.ForEach(func(key, value gjson.Result) bool {
			var core int
			core, err = parseCoreID(key.String())
			if err != nil {
				return false
			}
			var samples []Sample
			samples, err = decodeSamples(value)
			if err != nil {
				err = fmt.Errorf("core %d: %w", core, err)
				return false
			}
			if _, dup := out.Cores[core]; dup {
				err = fmt.Errorf("core %d listed twice", core)
				return false
			}
			out.Cores[core] = samples
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	case v.IsArray():
		var err error
		idx := 0
		v.ForEach(func(_, row gjson.Result) bool {
			err = decodePivotRow(row, out)
			if err != nil {
				err = fmt.Errorf("row %d: %w", idx, err)
				return false
			}
			idx++
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, fmt.Errorf("expected object or list, got %s", v.Type)
	}
}

// decodePivotRow reads one {time, timestamp?, cpu_N...} row.
func decodePivotRow(row gjson.Result, out *CPUFrame) error {
	if !row.IsObject() {
		return fmt.Errorf("expected object, got %s", row.Type)
	}
	// The time string is formatted in the backend's local zone; the unix
	// timestamp is not.
	var ts time.Time
	var err error
	if unix := row.Get("timestamp"); unix.Type == gjson.Number {
		ts = unixTime(unix.Float())
	} else if ts, err = sampleTime(row); err != nil {
		return err
	}

	row.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "time" || name == "timestamp" {
			return true
		}
		if !strings.HasPrefix(name, "cpu_") {
			err = fmt.Errorf("unexpected field %q", name)
			return false
		}
		var core int
		core, err = parseCoreID(name)
		if err != nil {
			return false
		}
		var val float64
		val, err = numberValue(value)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			return false
		}
		out.Cores[core] = append(out.Cores[core], Sample{Time: ts, Value: val})
		return true
	})
	return err
}

func (d *Decoder) decodeNetwork(v gjson.Result) (*NetworkFrame, error) {
	out := &NetworkFrame{}
	if v.Type == gjson.Null {
		return out, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("expected list, got %s", v.Type)
	}

	var err error
	idx := 0
	v.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			err = fmt.Errorf("sample %d: expected object, got %s", idx, row.Type)
			return false
		}
		var ts time.Time
		ts, err = sampleTime(row)
		if err != nil {
			err = fmt.Errorf("sample %d: %w", idx, err)
			return false
		}
		var recv, sent float64
		recv, err = numberValue(field(row, d.fields.Received))
		if err != nil {
			err = fmt.Errorf("sample %d: %s: %w", idx, d.fields.Received, err)
			return false
		}
		sent, err = numberValue(field(row, d.fields.Sent))
		if err != nil {
			err = fmt.Errorf("sample %d: %s: %w", idx, d.fields.Sent, err)
			return false
		}
		out.Received = append(out.Received, Sample{Time: ts, Value: recv})
		out.Sent = append(out.Sent, Sample{Time: ts, Value: sent})
		idx++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeSamples reads a [{time, value}] list. null decodes as an empty series.
func decodeSamples(v gjson.Result) ([]Sample, error) {
	if v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("expected list, got %s", v.Type)
	}

	var (
		samples []Sample
		err     error
		idx     int
	)
	v.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			err = fmt.Errorf("sample %d: expected object, got %s", idx, row.Type)
			return false
		}
		var ts time.Time
		ts, err = sampleTime(row)
		if err != nil {
			err = fmt.Errorf("sample %d: %w", idx, err)
			return false
		}
		var val float64
		val, err = numberValue(row.Get("value"))
		if err != nil {
			err = fmt.Errorf("sample %d: value: %w", idx, err)
			return false
		}
		samples = append(samples, Sample{Time: ts, Value: val})
		idx++
		return true
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// field looks up a top-level key by exact name, so configured names containing
// gjson path syntax are matched literally.
func field(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			out = value
			return false
		}
		return true
	})
	return out
}

// sampleTime reads the "time" field: an ISO-8601 string or unix seconds.
func sampleTime(row gjson.Result) (time.Time, error) {
	v := row.Get("time")
	switch v.Type {
	case gjson.String:
		return ParseTime(v.String())
	case gjson.Number:
		return unixTime(v.Float()), nil
	case gjson.Null:
		if !v.Exists() {
			return time.Time{}, fmt.Errorf("missing time")
		}
		return time.Time{}, fmt.Errorf("time is null")
	default:
		return time.Time{}, fmt.Errorf("time has type %s", v.Type)
	}
}

func unixTime(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC().Truncate(time.Millisecond)
}

// ParseTime parses a backend timestamp. Strings without a zone are UTC.
// The result is truncated to millisecond resolution.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func numberValue(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.Null:
		if !v.Exists() {
			return 0, fmt.Errorf("missing")
		}
		return 0, fmt.Errorf("is null")
	default:
		return 0, fmt.Errorf("expected number, got %s", v.Type)
	}
}

func intValue(v gjson.Result) (int, error) {
	f, err := numberValue(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int(f), nil
}

// parseCoreID accepts "3" or "cpu_3" and requires a 1-based index.
func parseCoreID(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "cpu_"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid core id %q", s)
	}
	return n, nil
}

// rangeFromWire maps an echoed time_range, either a label or the backend's
// interval text, back to a TimeRange. Unknown values map to "".
func rangeFromWire(s string) TimeRange {
	if r := TimeRange(s); r.Valid() {
		return r
	}
	for _, r := range rangeOrder {
		if r.Interval() == s {
			return r
		}
	}
	return ""
}
