package webcodecs

// End-to-end tests against the native libraries. Each test skips unless
// the runtime can be loaded and the codec it needs is present.

import (
	"context"
	"sync"
	"testing"
)

func requireRuntime(t *testing.T) {
	t.Helper()
	if !IsRuntimeAvailable() {
		t.Skip("libav runtime not available")
	}
}

func requireVideoEncoder(t *testing.T, cfg VideoEncoderConfig) {
	t.Helper()
	if !IsVideoEncoderConfigSupported(cfg).Supported {
		t.Skipf("no %s encoder in this build", cfg.Codec)
	}
}

func requireAudioEncoder(t *testing.T, cfg AudioEncoderConfig) {
	t.Helper()
	if !IsAudioEncoderConfigSupported(cfg).Supported {
		t.Skipf("no %s encoder in this build", cfg.Codec)
	}
}

// encodeTestClip encodes frameCount moving-box frames and returns the
// chunks plus the decoder configuration from the first key chunk.
func encodeTestClip(t *testing.T, cfg VideoEncoderConfig, frameCount int) ([]*EncodedVideoChunk, *VideoDecoderConfig) {
	t.Helper()

	var chunks []*EncodedVideoChunk
	var decCfg *VideoDecoderConfig
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(c *EncodedVideoChunk, m *EncodedVideoChunkMetadata) {
			chunks = append(chunks, c)
			if m != nil && m.DecoderConfig != nil {
				decCfg = m.DecoderConfig
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if err := enc.Configure(cfg); err != nil {
		t.Fatalf("configure: %v", err)
	}
	const frameDur = int64(33333)
	for i := 0; i < frameCount; i++ {
		f := movingBoxFrame(t, cfg.Width, cfg.Height, i, int64(i)*frameDur)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatalf("encode frame %d: %v", i, err)
		}
		f.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return chunks, decCfg
}

func TestH264EncodeProducesKeyChunkWithConfig(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	chunks, decCfg := encodeTestClip(t, cfg, 30)
	if len(chunks) != 30 {
		t.Fatalf("got %d chunks, want 30", len(chunks))
	}
	if chunks[0].Type != ChunkTypeKey {
		t.Error("first chunk is not a key chunk")
	}
	if chunks[0].Timestamp != 0 {
		t.Errorf("first chunk timestamp = %d, want 0", chunks[0].Timestamp)
	}
	if decCfg == nil {
		t.Fatal("no decoder configuration on the first key chunk")
	}
	if decCfg.Width != 320 || decCfg.Height != 240 {
		t.Errorf("decoder config dimensions %dx%d", decCfg.Width, decCfg.Height)
	}
	if len(decCfg.Description) == 0 {
		t.Error("decoder description (encoder extradata) is empty")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Timestamp <= chunks[i-1].Timestamp {
			t.Fatalf("chunk %d timestamp %d not increasing", i, chunks[i].Timestamp)
		}
	}
}

func TestH264RoundTrip(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	chunks, decCfg := encodeTestClip(t, cfg, 30)
	if decCfg == nil {
		t.Fatal("no decoder configuration emitted")
	}
	decCfg.HardwareAcceleration = PreferSoftware

	var frames []*VideoFrame
	dec, err := NewVideoDecoder(VideoDecoderInit{
		Output: func(f *VideoFrame) { frames = append(frames, f) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if err := dec.Configure(*decCfg); err != nil {
		t.Fatalf("configure decoder: %v", err)
	}
	for i, c := range chunks {
		if err := dec.Decode(c); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
	}
	if err := dec.Flush(context.Background()); err != nil {
		t.Fatalf("flush decoder: %v", err)
	}

	if len(frames) != 30 {
		t.Fatalf("decoded %d frames, want 30", len(frames))
	}
	if frames[0].Timestamp != 0 {
		t.Errorf("first frame timestamp = %d", frames[0].Timestamp)
	}
	for _, f := range frames {
		if f.Width != 320 || f.Height != 240 {
			t.Fatalf("decoded frame %dx%d", f.Width, f.Height)
		}
		f.Close()
	}
}

func TestEncoderTimestampExtremes(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	var got []int64
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(c *EncodedVideoChunk, _ *EncodedVideoChunkMetadata) {
			got = append(got, c.Timestamp)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	// Timestamps are opaque: one hour before zero through five hours
	// after, strictly increasing, must round-trip exactly.
	want := []int64{
		-3600000000,
		-3599966667,
		-1,
		0,
		33333,
		18000000000,
		18000000001,
	}
	for i, ts := range want {
		f := movingBoxFrame(t, 320, 240, i, ts)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatalf("encode ts %d: %v", ts, err)
		}
		f.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d timestamp = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodeRGBAKeyFrame(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	var chunks []*EncodedVideoChunk
	var decCfg *VideoDecoderConfig
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(c *EncodedVideoChunk, m *EncodedVideoChunkMetadata) {
			chunks = append(chunks, c)
			if m != nil && m.DecoderConfig != nil {
				decCfg = m.DecoderConfig
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	// Orange RGBA input; the converter rescales it to the codec's planar
	// format.
	buf := make([]byte, 320*240*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = 230, 120, 30, 255
	}
	f, err := NewVideoFrame(PixelFormatRGBA, 320, 240, 0, buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(f, &VideoEncodeOptions{KeyFrame: true}); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(chunks) == 0 {
		t.Fatal("no output chunk")
	}
	if chunks[0].Type != ChunkTypeKey {
		t.Error("forced key frame did not produce a key chunk")
	}
	if chunks[0].Timestamp != 0 {
		t.Errorf("chunk timestamp = %d, want 0", chunks[0].Timestamp)
	}
	if decCfg == nil {
		t.Error("no decoder configuration on the first key chunk")
	}
}

func TestVP8RoundTrip(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("vp8", 160, 120)
	cfg.LatencyMode = LatencyRealtime
	requireVideoEncoder(t, cfg)

	chunks, decCfg := encodeTestClip(t, cfg, 10)
	if len(chunks) != 10 {
		t.Fatalf("got %d chunks, want 10", len(chunks))
	}
	if decCfg == nil {
		t.Fatal("no decoder configuration emitted")
	}

	var frames []*VideoFrame
	dec, err := NewVideoDecoder(VideoDecoderInit{
		Output: func(f *VideoFrame) { frames = append(frames, f) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if err := dec.Configure(*decCfg); err != nil {
		t.Fatalf("configure decoder: %v", err)
	}
	for i, c := range chunks {
		if err := dec.Decode(c); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
	}
	if err := dec.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(frames) != 10 {
		t.Fatalf("decoded %d frames, want 10", len(frames))
	}
	for _, f := range frames {
		f.Close()
	}
}

func TestDecoderRequiresKeyChunkFirst(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	chunks, decCfg := encodeTestClip(t, cfg, 10)
	if decCfg == nil {
		t.Fatal("no decoder configuration emitted")
	}
	var delta *EncodedVideoChunk
	for _, c := range chunks {
		if c.Type == ChunkTypeDelta {
			delta = c
			break
		}
	}
	if delta == nil {
		t.Skip("clip has no delta chunks")
	}

	dec, err := NewVideoDecoder(VideoDecoderInit{Output: discardVideoFrame})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	if err := dec.Configure(*decCfg); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(delta); err != ErrKeyChunkRequired {
		t.Errorf("delta before key = %v, want ErrKeyChunkRequired", err)
	}
	// A key chunk unblocks the stream.
	if err := dec.Decode(chunks[0]); err != nil {
		t.Errorf("key chunk rejected: %v", err)
	}
}

func TestEncoderFlushThenContinue(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	var chunks []*EncodedVideoChunk
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(c *EncodedVideoChunk, _ *EncodedVideoChunkMetadata) {
			chunks = append(chunks, c)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		f := movingBoxFrame(t, 320, 240, i, int64(i)*33333)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	afterFirst := len(chunks)
	if afterFirst != 5 {
		t.Fatalf("first flush delivered %d chunks, want 5", afterFirst)
	}

	// The session must keep encoding after a flush.
	for i := 5; i < 10; i++ {
		f := movingBoxFrame(t, 320, 240, i, int64(i)*33333)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatalf("encode after flush: %v", err)
		}
		f.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 10 {
		t.Fatalf("second flush delivered %d chunks total, want 10", len(chunks))
	}
}

func TestAsyncEncoderDeliversInOrder(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	var mu sync.Mutex
	var chunks []*EncodedVideoChunk
	dequeues := 0
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(c *EncodedVideoChunk, _ *EncodedVideoChunkMetadata) {
			mu.Lock()
			chunks = append(chunks, c)
			mu.Unlock()
		},
		Dequeue: func() {
			mu.Lock()
			dequeues++
			mu.Unlock()
		},
		Async: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	const n = 20
	for i := 0; i < n; i++ {
		f := movingBoxFrame(t, 320, 240, i, int64(i)*33333)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Flush returns only after every pending output was delivered.
	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != n {
		t.Fatalf("delivered %d chunks, want %d", len(chunks), n)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Timestamp <= chunks[i-1].Timestamp {
			t.Fatalf("chunk %d out of order", i)
		}
	}
	if dequeues != n {
		t.Errorf("dequeue fired %d times, want %d", dequeues, n)
	}
	if enc.EncodeQueueSize() != 0 {
		t.Errorf("queue size after flush = %d", enc.EncodeQueueSize())
	}
}

func TestOpusRoundTrip(t *testing.T) {
	requireRuntime(t)
	cfg := AudioEncoderConfig{Codec: "opus", SampleRate: 48000, Channels: 2, Bitrate: 96000}
	requireAudioEncoder(t, cfg)

	var chunks []*EncodedAudioChunk
	var decCfg *AudioDecoderConfig
	enc, err := NewAudioEncoder(AudioEncoderInit{
		Output: func(c *EncodedAudioChunk, m *EncodedAudioChunkMetadata) {
			chunks = append(chunks, c)
			if m != nil && m.DecoderConfig != nil {
				decCfg = m.DecoderConfig
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	const block = 960 // 20 ms at 48 kHz
	for i := 0; i < 10; i++ {
		a := sineAudio(t, 48000, 2, block, 440, i*block, int64(i*block)*1000000/48000)
		if err := enc.Encode(a); err != nil {
			t.Fatal(err)
		}
		a.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("no encoded chunks")
	}
	if decCfg == nil {
		t.Fatal("no decoder configuration emitted")
	}

	var total int
	var missingDuration int
	dec, err := NewAudioDecoder(AudioDecoderInit{
		Output: func(a *AudioData) {
			total += a.FrameCount
			if a.Duration <= 0 {
				missingDuration++
			}
			a.Close()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	if err := dec.Configure(*decCfg); err != nil {
		t.Fatalf("configure decoder: %v", err)
	}
	for i, c := range chunks {
		if err := dec.Decode(c); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
	}
	if err := dec.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	// 10 blocks in, roughly 10 blocks out. Opus pre-skip trims a little.
	if total < 8*block {
		t.Errorf("decoded %d samples, want at least %d", total, 8*block)
	}
	if missingDuration > 0 {
		t.Errorf("%d decoded blocks carried no duration", missingDuration)
	}
}

func TestAACTimestampCompensation(t *testing.T) {
	requireRuntime(t)
	cfg := AudioEncoderConfig{Codec: "mp4a.40.2", SampleRate: 48000, Channels: 2, Bitrate: 128000}
	requireAudioEncoder(t, cfg)

	var got []int64
	enc, err := NewAudioEncoder(AudioEncoderInit{
		Output: func(c *EncodedAudioChunk, _ *EncodedAudioChunkMetadata) {
			got = append(got, c.Timestamp)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	// Five 1024-sample blocks, exactly one AAC frame each.
	const block = 1024
	for i := 0; i < 5; i++ {
		ts := int64(i*block) * 1000000 / 48000
		a := sineAudio(t, 48000, 2, block, 440, i*block, ts)
		if err := enc.Encode(a); err != nil {
			t.Fatal(err)
		}
		a.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Priming compensation must map each output chunk back onto its
	// input block's timestamp.
	want := []int64{0, 21333, 42666, 64000, 85333}
	if len(got) < len(want) {
		t.Fatalf("got %d chunks, want at least %d", len(got), len(want))
	}
	for i, w := range want {
		if diff := got[i] - w; diff < -1 || diff > 1 {
			t.Errorf("chunk %d timestamp = %d, want %d", i, got[i], w)
		}
	}
}

func TestAudioEncoderOddBlockSizes(t *testing.T) {
	requireRuntime(t)
	cfg := AudioEncoderConfig{Codec: "opus", SampleRate: 48000, Channels: 1, Bitrate: 64000}
	requireAudioEncoder(t, cfg)

	var chunks int
	enc, err := NewAudioEncoder(AudioEncoderInit{
		Output: func(*EncodedAudioChunk, *EncodedAudioChunkMetadata) { chunks++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	// Block sizes that never line up with the codec frame size. The
	// sample FIFO has to re-slice them.
	sizes := []int{100, 1000, 333, 4096, 1}
	pos := 0
	for _, n := range sizes {
		ts := int64(pos) * 1000000 / 48000
		a := sineAudio(t, 48000, 1, n, 440, pos, ts)
		if err := enc.Encode(a); err != nil {
			t.Fatal(err)
		}
		a.Close()
		pos += n
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if chunks == 0 {
		t.Error("no chunks from odd-sized input blocks")
	}
}

func TestResetDropsPendingOutputs(t *testing.T) {
	requireRuntime(t)
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 320, 240)
	cfg.LatencyMode = LatencyRealtime
	cfg.HardwareAcceleration = PreferSoftware
	requireVideoEncoder(t, cfg)

	var mu sync.Mutex
	var delivered int
	enc, err := NewVideoEncoder(VideoEncoderInit{
		Output: func(*EncodedVideoChunk, *EncodedVideoChunkMetadata) {
			mu.Lock()
			delivered++
			mu.Unlock()
		},
		Async: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := enc.Configure(cfg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		f := movingBoxFrame(t, 320, 240, i, int64(i)*33333)
		if err := enc.Encode(f, nil); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	if err := enc.Reset(); err != nil {
		t.Fatal(err)
	}
	if enc.State() != StateUnconfigured {
		t.Errorf("state after reset = %v", enc.State())
	}
	f := blackI420Frame(t, 320, 240, 0)
	defer f.Close()
	if err := enc.Encode(f, nil); err == nil {
		t.Error("encode accepted after reset")
	}

	// Reconfigure and make sure the session still works.
	if err := enc.Configure(cfg); err != nil {
		t.Fatalf("reconfigure after reset: %v", err)
	}
	mu.Lock()
	delivered = 0
	mu.Unlock()
	for i := 0; i < 5; i++ {
		g := movingBoxFrame(t, 320, 240, i, int64(i)*33333)
		if err := enc.Encode(g, nil); err != nil {
			t.Fatal(err)
		}
		g.Close()
	}
	if err := enc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if delivered != 5 {
		t.Errorf("delivered %d chunks after reconfigure, want 5", delivered)
	}
}
