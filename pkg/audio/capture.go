package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Capture owns the input device. The device handle is created lazily on
// Start and fully released by Stop; there is never more than one live
// handle. The hardware callback only reads the emit gate, it never takes
// the lifecycle lock.
type Capture struct {
	eng          Engine
	sampleRateHz int
	channels     int
	errOut       io.Writer

	mu     sync.Mutex
	dev    Device
	format Format
	emit   func(format Format, pcm []byte)

	active atomic.Bool
}

// NewCapture wires a capture subsystem to an engine. Diagnostics from the
// callback context go to errOut.
func NewCapture(eng Engine, sampleRateHz, channels int, errOut io.Writer) *Capture {
	if errOut == nil {
		errOut = io.Discard
	}
	return &Capture{
		eng:          eng,
		sampleRateHz: sampleRateHz,
		channels:     channels,
		errOut:       errOut,
	}
}

// Start opens the default input device, negotiating a sample representation
// in preference order, and begins emitting captured blocks. Calling Start
// on a running capture is a no-op.
func (c *Capture) Start(emit func(format Format, pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return nil
	}

	var dev Device
	var negotiated Format
	for _, f := range PreferredFormats {
		cfg := StreamConfig{Format: f, SampleRateHz: c.sampleRateHz, Channels: c.channels}
		d, err := c.eng.OpenCapture(cfg, c.onData)
		if err != nil {
			if errors.Is(err, ErrFormatUnsupported) {
				continue
			}
			return err
		}
		dev, negotiated = d, f
		break
	}
	if dev == nil {
		return &UnsupportedFormatError{Tried: PreferredFormats}
	}

	c.emit = emit
	c.format = negotiated
	if err := dev.Start(); err != nil {
		dev.Uninit()
		c.emit = nil
		return &DeviceError{Op: "start capture", Err: err}
	}
	c.dev = dev
	c.active.Store(true)
	return nil
}

// onData runs on the hardware thread. Failures are logged and swallowed;
// they must never escape the callback context.
func (c *Capture) onData(pcm []byte) {
	if !c.active.Load() {
		return
	}
	emit, format := c.emit, c.format
	if emit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(c.errOut, "[warning] capture callback failure: %v\n", r)
		}
	}()
	block := make([]byte, len(pcm))
	copy(block, pcm)
	emit(format, block)
}

// Stop halts and fully releases the input device before the active gate
// clears, so an immediate restart never sees a busy device. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		c.active.Store(false)
		return
	}
	if err := c.dev.Stop(); err != nil {
		fmt.Fprintf(c.errOut, "[warning] capture stop: %v\n", err)
	}
	c.dev.Uninit()
	c.dev = nil
	c.emit = nil
	c.active.Store(false)
}

// Format returns the negotiated sample representation, or "" before the
// first successful Start.
func (c *Capture) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}
