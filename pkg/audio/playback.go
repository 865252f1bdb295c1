package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// playbackQueueFrames bounds the inbound frame queue. Keeping it small
// favors bounded latency over buffering depth; late frames are dropped.
const playbackQueueFrames = 16

// Playback owns the output device. While active, the hardware callback
// drains a small bounded queue of inbound frames; while inactive or when
// the queue runs dry it emits the digital-silence value for the negotiated
// representation, never leftover memory.
type Playback struct {
	eng          Engine
	sampleRateHz int
	channels     int
	errOut       io.Writer

	mu     sync.Mutex
	dev    Device
	format Format

	qmu     sync.Mutex
	queue   [][]byte
	pending []byte

	active  atomic.Bool
	dropped atomic.Int64
}

// NewPlayback wires a playback subsystem to an engine.
func NewPlayback(eng Engine, sampleRateHz, channels int, errOut io.Writer) *Playback {
	if errOut == nil {
		errOut = io.Discard
	}
	return &Playback{
		eng:          eng,
		sampleRateHz: sampleRateHz,
		channels:     channels,
		errOut:       errOut,
	}
}

// Start opens the default output device, negotiating a sample
// representation in preference order. No-op if already running.
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev != nil {
		return nil
	}

	var dev Device
	var negotiated Format
	for _, f := range PreferredFormats {
		cfg := StreamConfig{Format: f, SampleRateHz: p.sampleRateHz, Channels: p.channels}
		d, err := p.eng.OpenPlayback(cfg, p.fill)
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

	p.format = negotiated
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return &DeviceError{Op: "start playback", Err: err}
	}
	p.dev = dev
	p.active.Store(true)
	return nil
}

// Submit queues one inbound frame for the output callback. Frames arriving
// while playback is inactive are discarded; when the queue is full the
// oldest frame is dropped so latency stays bounded.
func (p *Playback) Submit(pcm []byte) {
	if !p.active.Load() {
		return
	}
	frame := make([]byte, len(pcm))
	copy(frame, pcm)

	p.qmu.Lock()
	p.queue = append(p.queue, frame)
	if len(p.queue) > playbackQueueFrames {
		p.queue = p.queue[1:]
		if p.dropped.Add(1) == 1 {
			defer fmt.Fprintln(p.errOut, "[warning] playback queue full; dropping late audio")
		}
	}
	p.qmu.Unlock()
}

// fill runs on the hardware thread. It must completely overwrite out on
// every invocation.
func (p *Playback) fill(out []byte) {
	if !p.active.Load() {
		FillSilence(p.format, out)
		return
	}

	n := 0
	p.qmu.Lock()
	for n < len(out) {
		if len(p.pending) == 0 {
			if len(p.queue) == 0 {
				break
			}
			p.pending = p.queue[0]
			p.queue = p.queue[1:]
		}
		copied := copy(out[n:], p.pending)
		p.pending = p.pending[copied:]
		n += copied
	}
	p.qmu.Unlock()

	if n < len(out) {
		FillSilence(p.format, out[n:])
	}
}

// Stop halts and fully releases the output device before the active gate
// clears, then discards any queued frames. Idempotent.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev == nil {
		p.active.Store(false)
		return
	}
	if err := p.dev.Stop(); err != nil {
		fmt.Fprintf(p.errOut, "[warning] playback stop: %v\n", err)
	}
	p.dev.Uninit()
	p.dev = nil
	p.active.Store(false)

	p.qmu.Lock()
	p.queue = nil
	p.pending = nil
	p.qmu.Unlock()
}

// Format returns the negotiated sample representation, or "" before the
// first successful Start.
func (p *Playback) Format() Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}
