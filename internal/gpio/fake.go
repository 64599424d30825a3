package gpio

import "errors"

// FakeLine is a test double usable as both Reader and Writer.
type FakeLine struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Writes records every value passed to Write.
	Writes []bool

	// Closed tracks if Close was called
	Closed bool

	// ReadError, WriteError, if set, are returned by Read and Write.
	ReadError  error
	WriteError error
}

// NewFakeLine creates a FakeLine with the given samples.
func NewFakeLine(samples ...bool) *FakeLine {
	return &FakeLine{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeLine) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Write records the value.
func (f *FakeLine) Write(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, on)
	return nil
}

// Level returns the last written value.
func (f *FakeLine) Level() bool {
	if len(f.Writes) == 0 {
		return false
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the line to the beginning of samples.
func (f *FakeLine) Reset() {
	f.index = 0
	f.Writes = nil
	f.Closed = false
}
