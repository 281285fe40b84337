package gpio

import "errors"

// FakePanel is a test double that returns scripted switch readings.
type FakePanel struct {
	// Samples contains scripted readings to return.
	// Each call to Read() consumes the next sample.
	Samples []Switches

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakePanel creates a FakePanel with the given samples.
func NewFakePanel(samples ...Switches) *FakePanel {
	return &FakePanel{Samples: samples}
}

// SwitchesForLevel returns the reading a healthy panel gives at level n:
// every switch up to n is submerged.
func SwitchesForLevel(n int) Switches {
	var s Switches
	for i := 0; i < n && i < SwitchCount; i++ {
		s[i] = true
	}
	return s
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakePanel) Read() (Switches, error) {
	if f.ReadError != nil {
		return Switches{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Switches{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the panel as closed.
func (f *FakePanel) Close() error {
	f.Closed = true
	return nil
}

// FakeRelay records relay writes.
type FakeRelay struct {
	// On is the current relay state.
	On bool

	// Writes contains every value passed to Set.
	Writes []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRelay creates a released FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the write.
func (f *FakeRelay) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.Writes = append(f.Writes, on)
	return nil
}

// Close releases the relay and marks it closed.
func (f *FakeRelay) Close() error {
	f.On = false
	f.Closed = true
	return nil
}
