// Audio decoder session.
package webcodecs

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// AudioDecoderConfig configures an AudioDecoder.
//
// Description is the out-of-band codec configuration (AudioSpecificConfig
// for AAC, the identification header for Opus when present).
type AudioDecoderConfig struct {
	Codec       string
	SampleRate  int
	Channels    int
	Description []byte
}

// AudioDecoderInit carries the session callbacks. See VideoEncoderInit
// for the callback and Async contract.
type AudioDecoderInit struct {
	Output  func(*AudioData)
	Error   func(error)
	Dequeue func()
	Async   bool
}

// AudioDecoder decodes EncodedAudioChunks into AudioData. Decoded output
// is normalized to interleaved f32 at the stream's native sample rate.
type AudioDecoder struct {
	session

	amu sync.Mutex
	dec *audioDecBackend

	output func(*AudioData)
}

// NewAudioDecoder creates an unconfigured decoder session.
func NewAudioDecoder(init AudioDecoderInit) (*AudioDecoder, error) {
	if init.Output == nil {
		return nil, fmt.Errorf("audio decoder: Output callback is required")
	}
	d := &AudioDecoder{output: init.Output}
	d.start(init.Async, init.Error, init.Dequeue)
	return d, nil
}

// Configure opens a codec backend for the configuration.
func (d *AudioDecoder) Configure(cfg AudioDecoderConfig) error {
	if err := d.beginConfigure(); err != nil {
		return err
	}
	family := ParseCodecString(cfg.Codec)
	if !family.IsAudio() {
		return fmt.Errorf("%w: %q is not an audio codec", ErrNotSupported, cfg.Codec)
	}
	if err := loadAVLibs(); err != nil {
		return err
	}
	candidates := selectCandidates(audioDecoderCandidates(family),
		NoPreference, runtimeRegistry().hasDecoder)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no %s decoder available", ErrNotSupported, family)
	}

	backend, err := openAudioDecBackend(cfg, family, candidates)
	if err != nil {
		return err
	}

	d.invalidate()
	d.amu.Lock()
	if d.dec != nil {
		d.dec.close()
	}
	d.dec = backend
	d.amu.Unlock()
	d.setConfigured()
	return nil
}

// Decode queues one chunk.
func (d *AudioDecoder) Decode(chunk *EncodedAudioChunk) error {
	if err := d.requireConfigured(); err != nil {
		return err
	}
	d.submit(func(epoch uint64) {
		defer d.completeUnit(epoch)
		d.amu.Lock()
		defer d.amu.Unlock()
		if d.dec == nil || !d.live(epoch) {
			return
		}
		err := d.dec.submit(chunk, func(a *AudioData) {
			d.deliver(epoch, func() { d.output(a) })
		})
		if err != nil {
			d.reportError(epoch, err)
		}
	})
	return nil
}

// DecodeQueueSize is the number of chunks submitted but not yet
// completed.
func (d *AudioDecoder) DecodeQueueSize() int { return d.queueSize() }

// Flush drains all buffered samples out of the decoder.
func (d *AudioDecoder) Flush(ctx context.Context) error {
	if err := d.requireConfigured(); err != nil {
		return err
	}
	return d.flushWait(ctx, func() error {
		d.amu.Lock()
		defer d.amu.Unlock()
		if d.dec == nil {
			return nil
		}
		epoch := d.epoch.Load()
		return d.dec.flush(func(a *AudioData) {
			d.deliver(epoch, func() { d.output(a) })
		})
	})
}

// Reset discards queued work and returns the session to Unconfigured.
func (d *AudioDecoder) Reset() error {
	if err := d.resetState(); err != nil {
		return err
	}
	d.invalidate()
	d.amu.Lock()
	if d.dec != nil {
		d.dec.close()
		d.dec = nil
	}
	d.amu.Unlock()
	return nil
}

// Close releases the backend and stops the session goroutines.
// Idempotent.
func (d *AudioDecoder) Close() {
	d.invalidate()
	d.closeState()
	d.amu.Lock()
	if d.dec != nil {
		d.dec.close()
		d.dec = nil
	}
	d.amu.Unlock()
}

// audioDecBackend owns one decoding AVCodecContext and the converter
// normalizing output to interleaved f32.
type audioDecBackend struct {
	ctxPtr uintptr
	ctx    *avCodecContext
	cand   codecCandidate

	framePtr uintptr
	pktPtr   uintptr
	conv     audioConverter
}

func openAudioDecBackend(cfg AudioDecoderConfig, family CodecFamily, candidates []codecCandidate) (*audioDecBackend, error) {
	var lastErr error
	for _, cand := range candidates {
		b, err := newAudioDecBackend(cfg, cand)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no %s decoder opened: %v", ErrNotSupported, family, lastErr)
}

func newAudioDecBackend(cfg AudioDecoderConfig, cand codecCandidate) (*audioDecBackend, error) {
	codec := avcodecFindDecoderByName(cand.Name)
	if codec == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, cand.Name)
	}
	ctxPtr := avcodecAllocContext3(codec)
	if ctxPtr == 0 {
		return nil, &CodecError{Op: "decode", Msg: "context allocation failed"}
	}
	b := &audioDecBackend{
		ctxPtr: ctxPtr,
		ctx:    (*avCodecContext)(unsafe.Pointer(ctxPtr)),
		cand:   cand,
	}

	if cfg.SampleRate > 0 {
		b.ctx.SampleRate = int32(cfg.SampleRate)
	}
	if cfg.Channels > 0 {
		avChannelLayoutDefault(uintptr(unsafe.Pointer(&b.ctx.ChLayout)), int32(cfg.Channels))
	}
	b.ctx.PktTimebase = avRational{1, 1000000}
	if len(cfg.Description) > 0 {
		if err := setExtradata(b.ctx, cfg.Description); err != nil {
			avcodecFreeContext(&b.ctxPtr)
			return nil, err
		}
	}

	if ret := avcodecOpen2(ctxPtr, codec, 0); ret < 0 {
		avcodecFreeContext(&b.ctxPtr)
		return nil, &CodecError{Op: "decode", Msg: "open " + cand.Name, Err: avError(ret)}
	}

	b.framePtr = avFrameAlloc()
	b.pktPtr = avPacketAlloc()
	if b.framePtr == 0 || b.pktPtr == 0 {
		b.close()
		return nil, &CodecError{Op: "decode", Msg: "scratch allocation failed"}
	}
	return b, nil
}

// submit decodes one chunk and emits every sample block the codec hands
// back.
func (b *audioDecBackend) submit(chunk *EncodedAudioChunk, emit func(*AudioData)) error {
	if len(chunk.data) == 0 {
		return nil
	}
	pkt := (*avPacket)(unsafe.Pointer(b.pktPtr))
	pkt.Data = uintptr(unsafe.Pointer(&chunk.data[0]))
	pkt.Size = int32(len(chunk.data))
	pkt.Pts = chunk.Timestamp
	pkt.Dts = chunk.Timestamp
	pkt.Duration = chunk.Duration
	pkt.Flags = avPktFlagKey

	ret := avcodecSendPacket(b.ctxPtr, b.pktPtr)
	pkt.Data = 0
	pkt.Size = 0
	runtime.KeepAlive(chunk)
	if ret < 0 {
		return &CodecError{Op: "decode", Msg: "send packet", Err: avError(ret)}
	}
	return b.drain(emit)
}

func (b *audioDecBackend) drain(emit func(*AudioData)) error {
	frame := (*avFrame)(unsafe.Pointer(b.framePtr))
	for {
		ret := avcodecReceiveFrame(b.ctxPtr, b.framePtr)
		if ret == avErrEAGAIN || ret == avErrEOF {
			return nil
		}
		if ret < 0 {
			return &CodecError{Op: "decode", Msg: "receive frame", Err: avError(ret)}
		}
		out, err := b.readFrame(frame)
		avFrameUnref(b.framePtr)
		if err != nil {
			return err
		}
		emit(out)
	}
}

// readFrame normalizes one decoded frame to interleaved f32.
func (b *audioDecBackend) readFrame(frame *avFrame) (*AudioData, error) {
	channels := int(frame.ChLayout.NbChannels)
	if err := b.conv.ensure(frame.Format, frame.SampleRate, frame.ChLayout.NbChannels,
		avSampleFmtFlt, frame.SampleRate, frame.ChLayout.NbChannels); err != nil {
		return nil, err
	}
	planes, got, err := b.conv.convert(frame.ExtendedData, frame.NbSamples)
	if err != nil {
		return nil, err
	}

	ts := frame.Pts
	if ts == avNoptsValue {
		ts = frame.BestEffortTimestamp
	}
	dur := frame.Duration
	if dur <= 0 && frame.SampleRate > 0 {
		dur = int64(got) * 1000000 / int64(frame.SampleRate)
	}
	return &AudioData{
		Format:     SampleFormatF32,
		SampleRate: int(frame.SampleRate),
		FrameCount: got,
		Channels:   channels,
		Timestamp:  ts,
		Duration:   dur,
		data:       planes[0],
	}, nil
}

// flush drains buffered samples, then rearms the context.
func (b *audioDecBackend) flush(emit func(*AudioData)) error {
	pkt := (*avPacket)(unsafe.Pointer(b.pktPtr))
	pkt.Data = 0
	pkt.Size = 0
	if ret := avcodecSendPacket(b.ctxPtr, b.pktPtr); ret < 0 && ret != avErrEOF {
		return &CodecError{Op: "decode", Msg: "send end-of-stream", Err: avError(ret)}
	}
	if err := b.drain(emit); err != nil {
		return err
	}
	avcodecFlushBuffers(b.ctxPtr)
	return nil
}

func (b *audioDecBackend) close() {
	if b.framePtr != 0 {
		avFrameFree(&b.framePtr)
	}
	if b.pktPtr != 0 {
		avPacketFree(&b.pktPtr)
	}
	if b.ctxPtr != 0 {
		avcodecFreeContext(&b.ctxPtr)
	}
	b.conv.free()
}
