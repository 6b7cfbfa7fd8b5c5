// Raw video sample container.
package webcodecs

import "fmt"

// PixelFormat represents video pixel formats accepted by encoders and
// produced by decoders.
type PixelFormat int

const (
	PixelFormatI420  PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatI420A                    // YUV 4:2:0 planar with alpha plane
	PixelFormatI422                     // YUV 4:2:2 planar
	PixelFormatI444                     // YUV 4:4:4 planar
	PixelFormatNV12                     // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA                     // Packed RGBA, 4 bytes per pixel
	PixelFormatRGBX                     // Packed RGB with padding byte
	PixelFormatBGRA                     // Packed BGRA, 4 bytes per pixel
	PixelFormatBGRX                     // Packed BGR with padding byte
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatI420A:
		return "I420A"
	case PixelFormatI422:
		return "I422"
	case PixelFormatI444:
		return "I444"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	case PixelFormatRGBX:
		return "RGBX"
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatBGRX:
		return "BGRX"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420, PixelFormatI422, PixelFormatI444:
		return 3
	case PixelFormatI420A:
		return 4
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA, PixelFormatRGBX, PixelFormatBGRA, PixelFormatBGRX:
		return 1
	default:
		return 0
	}
}

// planeDim is the byte width and row count of one plane at a given frame
// size. Chroma dimensions round up so odd frame sizes keep a full final
// sample.
type planeDim struct {
	width  int // bytes per row, tightly packed
	height int
}

func halfRoundUp(v int) int { return (v + 1) / 2 }

// planeDims returns the tightly-packed plane geometry for a frame.
func (p PixelFormat) planeDims(width, height int) []planeDim {
	cw, ch := halfRoundUp(width), halfRoundUp(height)
	switch p {
	case PixelFormatI420:
		return []planeDim{{width, height}, {cw, ch}, {cw, ch}}
	case PixelFormatI420A:
		return []planeDim{{width, height}, {cw, ch}, {cw, ch}, {width, height}}
	case PixelFormatI422:
		return []planeDim{{width, height}, {cw, height}, {cw, height}}
	case PixelFormatI444:
		return []planeDim{{width, height}, {width, height}, {width, height}}
	case PixelFormatNV12:
		return []planeDim{{width, height}, {cw * 2, ch}}
	case PixelFormatRGBA, PixelFormatRGBX, PixelFormatBGRA, PixelFormatBGRX:
		return []planeDim{{width * 4, height}}
	default:
		return nil
	}
}

// VideoFrame is a raw video frame with tightly-packed plane data.
//
// Timestamps are in microseconds, carried opaquely and round-tripped
// exactly through encode and decode. Close releases the pixel buffer;
// operations on a closed frame return ErrInvalidState.
type VideoFrame struct {
	Format    PixelFormat
	Width     int
	Height    int
	Timestamp int64 // microseconds
	Duration  int64 // microseconds, 0 when unknown

	data   []byte
	closed bool
}

// NewVideoFrame copies data into a new frame. The buffer must hold exactly
// the tightly-packed allocation size for the format and dimensions.
func NewVideoFrame(format PixelFormat, width, height int, timestamp int64, data []byte) (*VideoFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	want := videoAllocationSize(format, width, height)
	if want == 0 {
		return nil, fmt.Errorf("unsupported pixel format %v", format)
	}
	if len(data) != want {
		return nil, fmt.Errorf("pixel buffer is %d bytes, %v %dx%d needs %d",
			len(data), format, width, height, want)
	}
	buf := make([]byte, want)
	copy(buf, data)
	return &VideoFrame{
		Format:    format,
		Width:     width,
		Height:    height,
		Timestamp: timestamp,
		data:      buf,
	}, nil
}

func videoAllocationSize(format PixelFormat, width, height int) int {
	total := 0
	for _, d := range format.planeDims(width, height) {
		total += d.width * d.height
	}
	return total
}

// AllocationSize returns the byte size of the tightly-packed pixel buffer.
func (f *VideoFrame) AllocationSize() (int, error) {
	if f.closed {
		return 0, ErrInvalidState
	}
	return len(f.data), nil
}

// CopyTo copies the pixel data into dst, which must be at least
// AllocationSize bytes.
func (f *VideoFrame) CopyTo(dst []byte) (int, error) {
	if f.closed {
		return 0, ErrInvalidState
	}
	if len(dst) < len(f.data) {
		return 0, fmt.Errorf("destination is %d bytes, need %d", len(dst), len(f.data))
	}
	return copy(dst, f.data), nil
}

// Clone creates an independent copy of the frame.
func (f *VideoFrame) Clone() (*VideoFrame, error) {
	if f.closed {
		return nil, ErrInvalidState
	}
	buf := make([]byte, len(f.data))
	copy(buf, f.data)
	return &VideoFrame{
		Format:    f.Format,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
		data:      buf,
	}, nil
}

// Close releases the pixel buffer. Idempotent.
func (f *VideoFrame) Close() {
	f.closed = true
	f.data = nil
}

// plane returns the sub-slice for plane index i of a tightly-packed buffer.
func (f *VideoFrame) plane(i int) []byte {
	dims := f.Format.planeDims(f.Width, f.Height)
	off := 0
	for j := 0; j < i; j++ {
		off += dims[j].width * dims[j].height
	}
	return f.data[off : off+dims[i].width*dims[i].height]
}
