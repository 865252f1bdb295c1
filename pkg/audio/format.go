// Package audio owns the capture and playback subsystems: lazy device
// handles, sample-format negotiation, and the silence gate for playback.
// Device access goes through the Engine interface so session logic can be
// tested without hardware.
package audio

// Format names a raw sample representation. The values double as the wire
// encoding tag carried in audio chunk headers.
type Format string

const (
	// FormatF32 is 32-bit float little-endian PCM.
	FormatF32 Format = "pcm_f32le"
	// FormatS16 is 16-bit signed little-endian PCM.
	FormatS16 Format = "pcm_s16le"
	// FormatU16 is 16-bit unsigned little-endian PCM.
	FormatU16 Format = "pcm_u16le"
)

// PreferredFormats is the negotiation order for device streams.
var PreferredFormats = []Format{FormatF32, FormatS16, FormatU16}

// Valid reports whether f is a known sample representation.
func (f Format) Valid() bool {
	switch f {
	case FormatF32, FormatS16, FormatU16:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the size of one sample in bytes.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatF32:
		return 4
	case FormatS16, FormatU16:
		return 2
	default:
		return 0
	}
}

// FillSilence writes the digital-silence value for f over dst. For float
// and signed representations silence is zero; unsigned 16-bit silence is
// the midpoint 0x8000.
func FillSilence(f Format, dst []byte) {
	if f != FormatU16 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		if i%2 == 1 {
			dst[i] = 0x80
		} else {
			dst[i] = 0x00
		}
	}
}

// IsSilence reports whether every complete sample in pcm equals the
// silence value for f.
func IsSilence(f Format, pcm []byte) bool {
	if f != FormatU16 {
		for _, b := range pcm {
			if b != 0 {
				return false
			}
		}
		return true
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		if pcm[i] != 0x00 || pcm[i+1] != 0x80 {
			return false
		}
	}
	return true
}
