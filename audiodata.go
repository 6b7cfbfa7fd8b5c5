// Raw audio sample container.
package webcodecs

import "fmt"

// SampleFormat represents PCM sample formats. Planar variants store each
// channel contiguously; interleaved variants alternate channels per frame.
type SampleFormat int

const (
	SampleFormatU8 SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatF32
	SampleFormatU8Planar
	SampleFormatS16Planar
	SampleFormatS32Planar
	SampleFormatF32Planar
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatU8Planar:
		return "u8-planar"
	case SampleFormatS16Planar:
		return "s16-planar"
	case SampleFormatS32Planar:
		return "s32-planar"
	case SampleFormatF32Planar:
		return "f32-planar"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the storage size of one sample of one channel.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatU8, SampleFormatU8Planar:
		return 1
	case SampleFormatS16, SampleFormatS16Planar:
		return 2
	case SampleFormatS32, SampleFormatS32Planar, SampleFormatF32, SampleFormatF32Planar:
		return 4
	default:
		return 0
	}
}

// IsPlanar reports whether channels are stored in separate planes.
func (s SampleFormat) IsPlanar() bool {
	return s >= SampleFormatU8Planar
}

// avSampleFmt maps to the libav AVSampleFormat value.
func (s SampleFormat) avSampleFmt() int32 {
	switch s {
	case SampleFormatU8:
		return avSampleFmtU8
	case SampleFormatS16:
		return avSampleFmtS16
	case SampleFormatS32:
		return avSampleFmtS32
	case SampleFormatF32:
		return avSampleFmtFlt
	case SampleFormatU8Planar:
		return avSampleFmtU8P
	case SampleFormatS16Planar:
		return avSampleFmtS16P
	case SampleFormatS32Planar:
		return avSampleFmtS32P
	case SampleFormatF32Planar:
		return avSampleFmtFltP
	default:
		return -1
	}
}

// AudioData is a block of raw PCM samples.
//
// FrameCount is the number of samples per channel. Timestamps are in
// microseconds and carried opaquely. Close releases the sample buffer;
// operations on closed data return ErrInvalidState.
type AudioData struct {
	Format     SampleFormat
	SampleRate int
	FrameCount int
	Channels   int
	Timestamp  int64 // microseconds
	Duration   int64 // microseconds, 0 when unknown

	data   []byte
	closed bool
}

// NewAudioData copies data into a new sample block. The buffer must hold
// exactly FrameCount*Channels samples of the given format.
func NewAudioData(format SampleFormat, sampleRate, frameCount, channels int, timestamp int64, data []byte) (*AudioData, error) {
	if sampleRate <= 0 || frameCount <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid audio geometry: rate=%d frames=%d channels=%d",
			sampleRate, frameCount, channels)
	}
	bps := format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("unsupported sample format %v", format)
	}
	want := frameCount * channels * bps
	if len(data) != want {
		return nil, fmt.Errorf("sample buffer is %d bytes, %d frames x %d channels of %v needs %d",
			len(data), frameCount, channels, format, want)
	}
	buf := make([]byte, want)
	copy(buf, data)
	return &AudioData{
		Format:     format,
		SampleRate: sampleRate,
		FrameCount: frameCount,
		Channels:   channels,
		Timestamp:  timestamp,
		data:       buf,
	}, nil
}

// AllocationSize returns the byte size of the sample buffer.
func (a *AudioData) AllocationSize() (int, error) {
	if a.closed {
		return 0, ErrInvalidState
	}
	return len(a.data), nil
}

// CopyTo copies the sample data into dst, which must be at least
// AllocationSize bytes.
func (a *AudioData) CopyTo(dst []byte) (int, error) {
	if a.closed {
		return 0, ErrInvalidState
	}
	if len(dst) < len(a.data) {
		return 0, fmt.Errorf("destination is %d bytes, need %d", len(dst), len(a.data))
	}
	return copy(dst, a.data), nil
}

// Clone creates an independent copy of the sample block.
func (a *AudioData) Clone() (*AudioData, error) {
	if a.closed {
		return nil, ErrInvalidState
	}
	buf := make([]byte, len(a.data))
	copy(buf, a.data)
	return &AudioData{
		Format:     a.Format,
		SampleRate: a.SampleRate,
		FrameCount: a.FrameCount,
		Channels:   a.Channels,
		Timestamp:  a.Timestamp,
		Duration:   a.Duration,
		data:       buf,
	}, nil
}

// Close releases the sample buffer. Idempotent.
func (a *AudioData) Close() {
	a.closed = true
	a.data = nil
}

// plane returns the sub-slice for channel plane i. For interleaved formats
// only plane 0 exists and holds all channels.
func (a *AudioData) plane(i int) []byte {
	if !a.Format.IsPlanar() {
		return a.data
	}
	size := a.FrameCount * a.Format.BytesPerSample()
	return a.data[i*size : (i+1)*size]
}
