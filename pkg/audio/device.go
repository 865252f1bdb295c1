package audio

import (
	"errors"
	"fmt"
)

// StreamConfig describes the stream a subsystem asks the engine to open.
type StreamConfig struct {
	Format       Format
	SampleRateHz int
	Channels     int
}

// Device is one live handle on an OS audio stream. Start and Stop control
// the hardware callbacks; Uninit releases the handle. A Device is owned by
// exactly one subsystem and is never shared.
type Device interface {
	Start() error
	Stop() error
	Uninit()
}

// Engine opens device streams. The data callbacks run on externally
// scheduled hardware threads: they must never block or acquire locks held
// across Engine calls.
type Engine interface {
	// OpenCapture opens the default input device. onData is invoked per
	// captured block with a buffer only valid for the duration of the call.
	OpenCapture(cfg StreamConfig, onData func(pcm []byte)) (Device, error)
	// OpenPlayback opens the default output device. fill must completely
	// overwrite out on every invocation.
	OpenPlayback(cfg StreamConfig, fill func(out []byte)) (Device, error)
	Close()
}

// ErrFormatUnsupported is returned (wrapped) by an Engine when the backend
// cannot open a stream in the requested sample representation; negotiation
// then moves to the next preferred format.
var ErrFormatUnsupported = errors.New("sample format not supported by backend")

// DeviceError reports a hardware failure: no usable device, or a stream
// that could not be opened or started.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio device error during %s", e.Op)
	}
	return fmt.Sprintf("audio device error during %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports that no sample representation in the
// negotiation list could be opened.
type UnsupportedFormatError struct {
	Tried []Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("no supported sample format among %v", e.Tried)
}
