// Audio encoder session.
package webcodecs

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// AudioEncoderConfig configures an AudioEncoder.
type AudioEncoderConfig struct {
	Codec      string
	SampleRate int
	Channels   int
	Bitrate    int64 // bits per second; 0 keeps the codec default
}

// DefaultAudioEncoderConfig returns a reasonable starting configuration.
func DefaultAudioEncoderConfig(codec string) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:      codec,
		SampleRate: 48000,
		Channels:   2,
		Bitrate:    128000,
	}
}

// AudioEncoderInit carries the session callbacks. See VideoEncoderInit
// for the callback and Async contract.
type AudioEncoderInit struct {
	Output  func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)
	Error   func(error)
	Dequeue func()
	Async   bool
}

// AudioEncoder encodes AudioData into EncodedAudioChunks.
type AudioEncoder struct {
	session

	amu sync.Mutex
	enc *audioEncBackend

	output func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)
}

// NewAudioEncoder creates an unconfigured encoder session.
func NewAudioEncoder(init AudioEncoderInit) (*AudioEncoder, error) {
	if init.Output == nil {
		return nil, fmt.Errorf("audio encoder: Output callback is required")
	}
	e := &AudioEncoder{output: init.Output}
	e.start(init.Async, init.Error, init.Dequeue)
	return e, nil
}

// Configure opens a codec backend for the configuration.
func (e *AudioEncoder) Configure(cfg AudioEncoderConfig) error {
	if err := e.beginConfigure(); err != nil {
		return err
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return fmt.Errorf("%w: invalid audio geometry rate=%d channels=%d",
			ErrNotSupported, cfg.SampleRate, cfg.Channels)
	}
	family := ParseCodecString(cfg.Codec)
	if !family.IsAudio() {
		return fmt.Errorf("%w: %q is not an audio codec", ErrNotSupported, cfg.Codec)
	}
	if err := loadAVLibs(); err != nil {
		return err
	}
	candidates := selectCandidates(audioEncoderCandidates(family),
		NoPreference, runtimeRegistry().hasEncoder)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no %s encoder available", ErrNotSupported, family)
	}

	backend, err := openAudioEncBackend(cfg, family, candidates)
	if err != nil {
		return err
	}

	e.invalidate()
	e.amu.Lock()
	if e.enc != nil {
		e.enc.close()
	}
	e.enc = backend
	e.amu.Unlock()
	e.setConfigured()
	return nil
}

// Encode queues one block of samples. The data is copied; the caller may
// close it immediately after Encode returns.
func (e *AudioEncoder) Encode(data *AudioData) error {
	if err := e.requireConfigured(); err != nil {
		return err
	}
	d, err := data.Clone()
	if err != nil {
		return err
	}
	e.submit(func(epoch uint64) {
		defer e.completeUnit(epoch)
		e.amu.Lock()
		defer e.amu.Unlock()
		if e.enc == nil || !e.live(epoch) {
			return
		}
		err := e.enc.submit(d, func(c *EncodedAudioChunk, m *EncodedAudioChunkMetadata) {
			e.deliver(epoch, func() { e.output(c, m) })
		})
		if err != nil {
			e.reportError(epoch, err)
		}
	})
	return nil
}

// EncodeQueueSize is the number of blocks submitted but not yet
// completed.
func (e *AudioEncoder) EncodeQueueSize() int { return e.queueSize() }

// Flush encodes all buffered samples including a final short frame,
// drains the codec delay, and rearms the session for further input.
func (e *AudioEncoder) Flush(ctx context.Context) error {
	if err := e.requireConfigured(); err != nil {
		return err
	}
	return e.flushWait(ctx, func() error {
		e.amu.Lock()
		defer e.amu.Unlock()
		if e.enc == nil {
			return nil
		}
		epoch := e.epoch.Load()
		return e.enc.flush(func(c *EncodedAudioChunk, m *EncodedAudioChunkMetadata) {
			e.deliver(epoch, func() { e.output(c, m) })
		})
	})
}

// Reset discards queued work and returns the session to Unconfigured.
func (e *AudioEncoder) Reset() error {
	if err := e.resetState(); err != nil {
		return err
	}
	e.invalidate()
	e.amu.Lock()
	if e.enc != nil {
		e.enc.close()
		e.enc = nil
	}
	e.amu.Unlock()
	return nil
}

// Close releases the backend and stops the session goroutines.
// Idempotent.
func (e *AudioEncoder) Close() {
	e.invalidate()
	e.closeState()
	e.amu.Lock()
	if e.enc != nil {
		e.enc.close()
		e.enc = nil
	}
	e.amu.Unlock()
}

// Sample formats accepted by each encoder implementation.
var encoderSampleFmts = map[string]int32{
	"libopus":    avSampleFmtFlt,
	"opus":       avSampleFmtFlt,
	"aac":        avSampleFmtFltP,
	"libmp3lame": avSampleFmtFltP,
	"flac":       avSampleFmtS16,
	"libvorbis":  avSampleFmtFltP,
}

// audioEncBackend owns one AVCodecContext plus the sample staging FIFO
// that slices arbitrary input blocks into codec-sized frames.
type audioEncBackend struct {
	ctxPtr uintptr
	ctx    *avCodecContext
	cand   codecCandidate
	cfg    AudioEncoderConfig

	framePtr uintptr
	pktPtr   uintptr
	conv     audioConverter

	// Staging FIFO in the codec's sample format.
	fifo      [][]byte
	fifoCount int

	// Timestamp bookkeeping. Output pts is derived from the first input
	// timestamp plus the samples consumed so far; primingUS (from the
	// codec's initial_padding) is added to every output so the first
	// chunk lands on the first input timestamp.
	havePts   bool
	basePts   int64
	consumed  int64
	primingUS int64

	frameSize int
	descSent  bool
}

func openAudioEncBackend(cfg AudioEncoderConfig, family CodecFamily, candidates []codecCandidate) (*audioEncBackend, error) {
	var lastErr error
	for _, cand := range candidates {
		b, err := newAudioEncBackend(cfg, cand)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no %s encoder opened: %v", ErrNotSupported, family, lastErr)
}

func newAudioEncBackend(cfg AudioEncoderConfig, cand codecCandidate) (*audioEncBackend, error) {
	b := &audioEncBackend{cand: cand, cfg: cfg}
	if err := b.open(); err != nil {
		return nil, err
	}
	b.framePtr = avFrameAlloc()
	b.pktPtr = avPacketAlloc()
	if b.framePtr == 0 || b.pktPtr == 0 {
		b.close()
		return nil, &CodecError{Op: "encode", Msg: "scratch allocation failed"}
	}
	return b, nil
}

func (b *audioEncBackend) open() error {
	codec := avcodecFindEncoderByName(b.cand.Name)
	if codec == 0 {
		return fmt.Errorf("%w: %s", ErrCodecNotFound, b.cand.Name)
	}
	ctxPtr := avcodecAllocContext3(codec)
	if ctxPtr == 0 {
		return &CodecError{Op: "encode", Msg: "context allocation failed"}
	}
	b.ctxPtr = ctxPtr
	b.ctx = (*avCodecContext)(unsafe.Pointer(ctxPtr))

	sampleFmt, ok := encoderSampleFmts[b.cand.Name]
	if !ok {
		sampleFmt = avSampleFmtFltP
	}
	b.ctx.SampleRate = int32(b.cfg.SampleRate)
	b.ctx.SampleFmt = sampleFmt
	b.ctx.TimeBase = avRational{1, 1000000}
	avChannelLayoutDefault(uintptr(unsafe.Pointer(&b.ctx.ChLayout)), int32(b.cfg.Channels))
	if b.cfg.Bitrate > 0 {
		b.ctx.BitRate = b.cfg.Bitrate
	}

	if ret := avcodecOpen2(ctxPtr, codec, 0); ret < 0 {
		avcodecFreeContext(&b.ctxPtr)
		return &CodecError{Op: "encode", Msg: "open " + b.cand.Name, Err: avError(ret)}
	}

	b.frameSize = int(b.ctx.FrameSize)
	b.primingUS = int64(b.ctx.InitialPadding) * 1000000 / int64(b.cfg.SampleRate)
	b.fifo = nil
	b.fifoCount = 0
	b.havePts = false
	b.consumed = 0
	return nil
}

// submit resamples one input block into the staging FIFO and encodes
// every full codec frame that became available.
func (b *audioEncBackend) submit(d *AudioData, emit func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)) error {
	defer d.Close()

	if !b.havePts {
		b.havePts = true
		b.basePts = d.Timestamp
	}

	if err := b.conv.ensure(d.Format.avSampleFmt(), int32(d.SampleRate), int32(d.Channels),
		b.ctx.SampleFmt, b.ctx.SampleRate, b.ctx.ChLayout.NbChannels); err != nil {
		return err
	}

	nIn := 1
	if d.Format.IsPlanar() {
		nIn = d.Channels
	}
	inPtrs := make([]uintptr, nIn)
	for i := range inPtrs {
		inPtrs[i] = uintptr(unsafe.Pointer(&d.plane(i)[0]))
	}
	planes, got, err := b.conv.convert(uintptr(unsafe.Pointer(&inPtrs[0])), int32(d.FrameCount))
	runtime.KeepAlive(d)
	if err != nil {
		return err
	}
	b.push(planes, got)

	return b.encodeReady(false, emit)
}

// push appends converted planes to the staging FIFO.
func (b *audioEncBackend) push(planes [][]byte, count int) {
	if count == 0 {
		return
	}
	if b.fifo == nil {
		b.fifo = make([][]byte, len(planes))
	}
	for i := range planes {
		b.fifo[i] = append(b.fifo[i], planes[i]...)
	}
	b.fifoCount += count
}

// pop slices n samples off the front of the FIFO.
func (b *audioEncBackend) pop(n int) [][]byte {
	bps := int(avGetBytesPerSample(b.ctx.SampleFmt))
	per := n * bps
	if b.ctx.SampleFmt < avSampleFmtU8P {
		per = n * bps * int(b.ctx.ChLayout.NbChannels)
	}
	out := make([][]byte, len(b.fifo))
	for i := range b.fifo {
		out[i] = b.fifo[i][:per]
		b.fifo[i] = b.fifo[i][per:]
	}
	b.fifoCount -= n
	return out
}

// encodeReady encodes full frames from the FIFO; with final set it also
// encodes the trailing partial frame.
func (b *audioEncBackend) encodeReady(final bool, emit func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)) error {
	frameSize := b.frameSize
	for {
		n := 0
		switch {
		case frameSize > 0 && b.fifoCount >= frameSize:
			n = frameSize
		case b.fifoCount > 0 && (final || frameSize == 0):
			n = b.fifoCount
		default:
			return nil
		}
		planes := b.pop(n)
		if err := b.sendSamples(planes, n, emit); err != nil {
			return err
		}
	}
}

func (b *audioEncBackend) sendSamples(planes [][]byte, n int, emit func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)) error {
	frame := (*avFrame)(unsafe.Pointer(b.framePtr))
	avFrameUnref(b.framePtr)
	frame.NbSamples = int32(n)
	frame.Format = b.ctx.SampleFmt
	frame.SampleRate = b.ctx.SampleRate
	if ret := avChannelLayoutCopy(uintptr(unsafe.Pointer(&frame.ChLayout)),
		uintptr(unsafe.Pointer(&b.ctx.ChLayout))); ret < 0 {
		return &CodecError{Op: "encode", Msg: "channel layout copy failed", Err: avError(ret)}
	}
	if ret := avFrameGetBuffer(b.framePtr, 0); ret < 0 {
		return &CodecError{Op: "encode", Msg: "frame buffer allocation failed", Err: avError(ret)}
	}
	for i := range planes {
		dst := unsafe.Slice((*byte)(unsafe.Pointer(frame.Data[i])), len(planes[i]))
		copy(dst, planes[i])
	}
	frame.Pts = b.basePts + b.consumed*1000000/int64(b.ctx.SampleRate)
	b.consumed += int64(n)

	if ret := avcodecSendFrame(b.ctxPtr, b.framePtr); ret < 0 {
		return &CodecError{Op: "encode", Msg: "send frame", Err: avError(ret)}
	}
	return b.drain(emit)
}

func (b *audioEncBackend) drain(emit func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)) error {
	pkt := (*avPacket)(unsafe.Pointer(b.pktPtr))
	for {
		ret := avcodecReceivePacket(b.ctxPtr, b.pktPtr)
		if ret == avErrEAGAIN || ret == avErrEOF {
			return nil
		}
		if ret < 0 {
			return &CodecError{Op: "encode", Msg: "receive packet", Err: avError(ret)}
		}

		data := unsafe.Slice((*byte)(unsafe.Pointer(pkt.Data)), pkt.Size)
		chunk := NewEncodedAudioChunk(ChunkTypeKey, pkt.Pts+b.primingUS, pkt.Duration, data)

		var meta *EncodedAudioChunkMetadata
		if !b.descSent {
			b.descSent = true
			var description []byte
			if b.ctx.ExtradataSize > 0 {
				description = make([]byte, b.ctx.ExtradataSize)
				copy(description, unsafe.Slice((*byte)(unsafe.Pointer(b.ctx.Extradata)), b.ctx.ExtradataSize))
			}
			meta = &EncodedAudioChunkMetadata{DecoderConfig: &AudioDecoderConfig{
				Codec:       b.cfg.Codec,
				SampleRate:  b.cfg.SampleRate,
				Channels:    b.cfg.Channels,
				Description: description,
			}}
		}
		avPacketUnref(b.pktPtr)
		emit(chunk, meta)
	}
}

// flush encodes the buffered tail, drains the codec delay and reopens the
// context so later submits keep producing output.
func (b *audioEncBackend) flush(emit func(*EncodedAudioChunk, *EncodedAudioChunkMetadata)) error {
	if b.conv.ctx != 0 {
		planes, got, err := b.conv.drain()
		if err != nil {
			return err
		}
		b.push(planes, got)
	}
	if err := b.encodeReady(true, emit); err != nil {
		return err
	}
	if ret := avcodecSendFrame(b.ctxPtr, 0); ret < 0 && ret != avErrEOF {
		return &CodecError{Op: "encode", Msg: "send end-of-stream", Err: avError(ret)}
	}
	if err := b.drain(emit); err != nil {
		return err
	}

	avcodecFreeContext(&b.ctxPtr)
	return b.open()
}

func (b *audioEncBackend) close() {
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
