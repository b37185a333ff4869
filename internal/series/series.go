// Package series provides append-only, causally-indexed value sequences.
//
// A Series holds one numeric field (open, close, an indicator output, ...) for
// one instrument. Values are appended in step order and read back with relative
// offsets from the latest appended value: offset 0 is the current bar, negative
// offsets walk into history. Positive offsets reference steps that have not
// been emitted yet and always fail: lookahead is never allowed.
package series

import (
	"math"
	"time"

	"algame/internal/errors"
	"algame/internal/models"
)

// Undefined is the value carried by steps where a series has no meaningful
// output yet (e.g. an indicator inside its warmup window).
var Undefined = math.NaN()

// Series is an append-only sequence of scalar values, one per simulated step.
type Series struct {
	name   string
	values []float64
}

// New creates an empty series with the given name. The name appears in
// causality errors to identify the offending read.
func New(name string) *Series {
	return &Series{name: name}
}

// Name returns the series name.
func (s *Series) Name() string {
	return s.name
}

// Len returns the number of values appended so far.
func (s *Series) Len() int {
	return len(s.values)
}

// Append extends the series by one causally-ordered value.
func (s *Series) Append(v float64) {
	s.values = append(s.values, v)
}

// At returns the value at the current step plus offset. Offset 0 is the most
// recently appended value. A positive offset is a causality violation; a
// negative offset reaching before the first value fails with ErrOutOfRange.
func (s *Series) At(offset int) (float64, error) {
	if offset > 0 {
		return 0, errors.NewCausalityError(s.name, len(s.values)-1, offset)
	}
	idx := len(s.values) - 1 + offset
	if idx < 0 || len(s.values) == 0 {
		return 0, errors.Wrapf(errors.ErrOutOfRange, "series %s offset %d with %d values", s.name, offset, len(s.values))
	}
	return s.values[idx], nil
}

// Last returns the current value. ok is false when the series is empty.
func (s *Series) Last() (v float64, ok bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// Defined reports whether the value at offset exists and is not Undefined.
func (s *Series) Defined(offset int) bool {
	v, err := s.At(offset)
	return err == nil && !math.IsNaN(v)
}

// Values returns a copy of all appended values, oldest first.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Frame bundles the OHLCV series and timestamps for one instrument. All six
// sequences advance together, one slot per bar the instrument actually traded;
// a missing bar at some global step simply leaves the frame untouched.
type Frame struct {
	Instrument string
	Open       *Series
	High       *Series
	Low        *Series
	Close      *Series
	Volume     *Series
	times      []time.Time
}

// NewFrame creates an empty frame for one instrument.
func NewFrame(instrument string) *Frame {
	return &Frame{
		Instrument: instrument,
		Open:       New(instrument + ".open"),
		High:       New(instrument + ".high"),
		Low:        New(instrument + ".low"),
		Close:      New(instrument + ".close"),
		Volume:     New(instrument + ".volume"),
	}
}

// Append records one bar across all field series.
func (f *Frame) Append(bar models.Bar) {
	f.Open.Append(bar.Open)
	f.High.Append(bar.High)
	f.Low.Append(bar.Low)
	f.Close.Append(bar.Close)
	f.Volume.Append(float64(bar.Volume))
	f.times = append(f.times, bar.Timestamp)
}

// Len returns the number of bars appended for this instrument.
func (f *Frame) Len() int {
	return f.Close.Len()
}

// Time returns the timestamp at the given relative offset.
func (f *Frame) Time(offset int) (time.Time, error) {
	if offset > 0 {
		return time.Time{}, errors.NewCausalityError(f.Instrument+".time", len(f.times)-1, offset)
	}
	idx := len(f.times) - 1 + offset
	if idx < 0 || len(f.times) == 0 {
		return time.Time{}, errors.Wrapf(errors.ErrOutOfRange, "frame %s time offset %d", f.Instrument, offset)
	}
	return f.times[idx], nil
}
