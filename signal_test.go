package webcodecs

// Test signal generators: I420 frames (gradient, moving box) and sine
// tone sample blocks for round-trip tests.

import (
	"math"
	"testing"
)

// blackI420Frame returns a solid black I420 frame.
func blackI420Frame(t *testing.T, width, height int, timestamp int64) *VideoFrame {
	t.Helper()
	buf := make([]byte, videoAllocationSize(PixelFormatI420, width, height))
	ySize := width * height
	for i := ySize; i < len(buf); i++ {
		buf[i] = 128 // neutral chroma
	}
	f, err := NewVideoFrame(PixelFormatI420, width, height, timestamp, buf)
	if err != nil {
		t.Fatalf("black frame: %v", err)
	}
	return f
}

// movingBoxFrame renders a bright box over a horizontal luma gradient so
// consecutive frames differ and encoders produce meaningful deltas.
func movingBoxFrame(t *testing.T, width, height, frameNum int, timestamp int64) *VideoFrame {
	t.Helper()
	cw, ch := (width+1)/2, (height+1)/2
	buf := make([]byte, videoAllocationSize(PixelFormatI420, width, height))
	yPlane := buf[:width*height]
	uPlane := buf[width*height : width*height+cw*ch]
	vPlane := buf[width*height+cw*ch:]

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yPlane[y*width+x] = byte(x * 255 / width)
		}
	}
	for i := range uPlane {
		uPlane[i] = 128
		vPlane[i] = 128
	}

	boxSize := height / 4
	boxX := (frameNum * 5) % (width - boxSize)
	boxY := (height - boxSize) / 2
	for y := boxY; y < boxY+boxSize; y++ {
		for x := boxX; x < boxX+boxSize; x++ {
			yPlane[y*width+x] = 235
		}
	}

	f, err := NewVideoFrame(PixelFormatI420, width, height, timestamp, buf)
	if err != nil {
		t.Fatalf("moving box frame: %v", err)
	}
	return f
}

// sineAudio generates an interleaved f32 sine tone block.
func sineAudio(t *testing.T, sampleRate, channels, frames int, freq float64, phaseOffset int, timestamp int64) *AudioData {
	t.Helper()
	buf := make([]byte, frames*channels*4)
	for i := 0; i < frames; i++ {
		sample := float32(0.3 * math.Sin(2*math.Pi*freq*float64(phaseOffset+i)/float64(sampleRate)))
		bits := math.Float32bits(sample)
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			buf[off] = byte(bits)
			buf[off+1] = byte(bits >> 8)
			buf[off+2] = byte(bits >> 16)
			buf[off+3] = byte(bits >> 24)
		}
	}
	a, err := NewAudioData(SampleFormatF32, sampleRate, frames, channels, timestamp, buf)
	if err != nil {
		t.Fatalf("sine block: %v", err)
	}
	return a
}
