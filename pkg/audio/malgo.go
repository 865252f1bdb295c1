package audio

import (
	"github.com/gen2brain/malgo"
)

// MalgoEngine backs the Engine interface with miniaudio via gen2brain/malgo.
type MalgoEngine struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoEngine initializes the audio context. Callers should Close it
// after all devices are released.
func NewMalgoEngine() (*MalgoEngine, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, &DeviceError{Op: "context init", Err: err}
	}
	return &MalgoEngine{ctx: ctx}, nil
}

func malgoFormat(f Format) (malgo.FormatType, bool) {
	switch f {
	case FormatF32:
		return malgo.FormatF32, true
	case FormatS16:
		return malgo.FormatS16, true
	default:
		// miniaudio has no unsigned 16-bit representation.
		return malgo.FormatUnknown, false
	}
}

func (e *MalgoEngine) OpenCapture(cfg StreamConfig, onData func(pcm []byte)) (Device, error) {
	format, ok := malgoFormat(cfg.Format)
	if !ok {
		return nil, &DeviceError{Op: "open capture", Err: ErrFormatUnsupported}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			onData(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &DeviceError{Op: "open capture", Err: err}
	}
	return device, nil
}

func (e *MalgoEngine) OpenPlayback(cfg StreamConfig, fill func(out []byte)) (Device, error) {
	format, ok := malgoFormat(cfg.Format)
	if !ok {
		return nil, &DeviceError{Op: "open playback", Err: ErrFormatUnsupported}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSamples, _ []byte, _ uint32) {
			fill(pOutputSamples)
		},
	}

	device, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &DeviceError{Op: "open playback", Err: err}
	}
	return device, nil
}

func (e *MalgoEngine) Close() {
	if e == nil || e.ctx == nil {
		return
	}
	_ = e.ctx.Uninit()
	e.ctx.Free()
	e.ctx = nil
}
