package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow bounds a SeriesBuffer when no window is configured. It matches
// the largest range the backend serves.
const DefaultWindow = 7 * 24 * time.Hour

// SeriesBuffer is an ordered, time-bounded collection of samples for one series.
// Samples are kept sorted by time; anything older than the newest sample minus
// the window is evicted. A SeriesBuffer is not safe for concurrent use; Store
// guards the buffers it owns.
type SeriesBuffer struct {
	window  time.Duration
	samples []Sample
}

// NewSeriesBuffer creates a buffer bounded by window.
func NewSeriesBuffer(window time.Duration) *SeriesBuffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &SeriesBuffer{window: window}
}

// Window returns the buffer's time bound.
func (b *SeriesBuffer) Window() time.Duration {
	return b.window
}

// SetWindow changes the time bound and evicts samples that fall outside it.
func (b *SeriesBuffer) SetWindow(window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}
	b.window = window
	b.evict()
}

// Replace discards the buffer's contents and loads samples, the backend's full
// window for one push. The input slice is not retained.
func (b *SeriesBuffer) Replace(samples []Sample) {
	b.samples = b.samples[:0]
	for _, s := range samples {
		b.insert(s)
	}
	b.evict()
}

// Append adds one sample, keeping the buffer ordered.
func (b *SeriesBuffer) Append(s Sample) {
	b.insert(s)
	b.evict()
}

// insert places s in time order. A sample with the same timestamp as an
// existing one replaces it.
func (b *SeriesBuffer) insert(s Sample) {
	n := len(b.samples)
	if n == 0 || b.samples[n-1].Time.Before(s.Time) {
		b.samples = append(b.samples, s)
		return
	}

	i := sort.Search(n, func(i int) bool { return !b.samples[i].Time.Before(s.Time) })
	if i < n && b.samples[i].Time.Equal(s.Time) {
		b.samples[i] = s
		return
	}
	b.samples = append(b.samples, Sample{})
	copy(b.samples[i+1:], b.samples[i:])
	b.samples[i] = s
}

// evict drops samples older than the newest sample minus the window.
func (b *SeriesBuffer) evict() {
	if len(b.samples) == 0 {
		return
	}
	cutoff := b.samples[len(b.samples)-1].Time.Add(-b.window)
	i := sort.Search(len(b.samples), func(i int) bool { return !b.samples[i].Time.Before(cutoff) })
	if i > 0 {
		b.samples = append(b.samples[:0], b.samples[i:]...)
	}
}

// Len returns the number of samples held.
func (b *SeriesBuffer) Len() int {
	return len(b.samples)
}

// Samples returns a copy of the samples in chronological order.
func (b *SeriesBuffer) Samples() []Sample {
	if len(b.samples) == 0 {
		return nil
	}
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Values returns the sample values in chronological order.
func (b *SeriesBuffer) Values() []float64 {
	if len(b.samples) == 0 {
		return nil
	}
	out := make([]float64, len(b.samples))
	for i, s := range b.samples {
		out[i] = s.Value
	}
	return out
}

// Latest returns the newest sample.
func (b *SeriesBuffer) Latest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Store keeps one SeriesBuffer per series of the frames applied to it.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	window  time.Duration
	buffers map[SeriesKey]*SeriesBuffer
	updated time.Time
}

// NewStore creates a store whose buffers are bounded by window.
func NewStore(window time.Duration) *Store {
	return &Store{
		window:  window,
		buffers: make(map[SeriesKey]*SeriesBuffer),
	}
}

// Apply loads a full-window frame. Every series in the frame replaces its
// buffer; buffers for series the frame no longer carries are dropped.
func (s *Store) Apply(f *Frame) {
	if f == nil {
		return
	}
	series := f.Series()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, samples := range series {
		buf, ok := s.buffers[key]
		if !ok {
			buf = NewSeriesBuffer(s.window)
			s.buffers[key] = buf
		}
		buf.Replace(samples)
	}
	for key := range s.buffers {
		if _, ok := series[key]; !ok {
			delete(s.buffers, key)
		}
	}
	s.updated = time.Now()
}

// SetWindow changes the bound of every buffer.
func (s *Store) SetWindow(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = window
	for _, buf := range s.buffers {
		buf.SetWindow(window)
	}
}

// Values returns the values of one series, oldest first.
func (s *Store) Values(key SeriesKey) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[key]
	if !ok {
		return nil
	}
	return buf.Values()
}

// Samples returns the samples of one series, oldest first.
func (s *Store) Samples(key SeriesKey) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[key]
	if !ok {
		return nil
	}
	return buf.Samples()
}

// Latest returns the newest sample of one series.
func (s *Store) Latest(key SeriesKey) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[key]
	if !ok {
		return Sample{}, false
	}
	return buf.Latest()
}

// Keys returns the keys held, in a stable order.
func (s *Store) Keys() []SeriesKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]SeriesKey, 0, len(s.buffers))
	for k := range s.buffers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Updated returns when the last frame was applied.
func (s *Store) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Clear drops all buffers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[SeriesKey]*SeriesBuffer)
	s.updated = time.Time{}
}
