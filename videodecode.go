// Video decoder session.
package webcodecs

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// VideoDecoderConfig configures a VideoDecoder.
//
// Description is the opaque extradata a matching encoder emitted with its
// first key chunk; it is injected into the codec context before decoding.
// Leave it empty for streams carrying their parameter sets in-band.
type VideoDecoderConfig struct {
	Codec       string
	Width       int // coded width hint, optional
	Height      int // coded height hint, optional
	Description []byte

	HardwareAcceleration Preference
}

// VideoDecoderInit carries the session callbacks. See VideoEncoderInit
// for the callback and Async contract.
type VideoDecoderInit struct {
	Output  func(*VideoFrame)
	Error   func(error)
	Dequeue func()
	Async   bool
}

// VideoDecoder decodes EncodedVideoChunks into VideoFrames.
type VideoDecoder struct {
	session

	amu sync.Mutex
	dec *videoDecBackend

	output func(*VideoFrame)
}

// NewVideoDecoder creates an unconfigured decoder session.
func NewVideoDecoder(init VideoDecoderInit) (*VideoDecoder, error) {
	if init.Output == nil {
		return nil, fmt.Errorf("video decoder: Output callback is required")
	}
	d := &VideoDecoder{output: init.Output}
	d.start(init.Async, init.Error, init.Dequeue)
	return d, nil
}

// Configure opens a codec backend for the configuration.
func (d *VideoDecoder) Configure(cfg VideoDecoderConfig) error {
	if err := d.beginConfigure(); err != nil {
		return err
	}
	family := ParseCodecString(cfg.Codec)
	if !family.IsVideo() {
		return fmt.Errorf("%w: %q is not a video codec", ErrNotSupported, cfg.Codec)
	}
	if err := loadAVLibs(); err != nil {
		return err
	}
	candidates := selectCandidates(videoDecoderCandidates(family),
		cfg.HardwareAcceleration, runtimeRegistry().hasDecoder)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no %s decoder available (%s)",
			ErrNotSupported, family, cfg.HardwareAcceleration)
	}

	backend, err := openVideoDecBackend(cfg, family, candidates)
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

// Decode queues one chunk. The first chunk after Configure or Flush must
// be a key chunk.
func (d *VideoDecoder) Decode(chunk *EncodedVideoChunk) error {
	if err := d.requireConfigured(); err != nil {
		return err
	}
	d.amu.Lock()
	needKey := d.dec != nil && d.dec.needKey
	if needKey && chunk.Type == ChunkTypeKey {
		d.dec.needKey = false
		needKey = false
	}
	d.amu.Unlock()
	if needKey {
		return ErrKeyChunkRequired
	}

	d.submit(func(epoch uint64) {
		defer d.completeUnit(epoch)
		d.amu.Lock()
		defer d.amu.Unlock()
		if d.dec == nil || !d.live(epoch) {
			return
		}
		err := d.dec.submit(chunk, func(f *VideoFrame) {
			d.deliver(epoch, func() { d.output(f) })
		})
		if err != nil {
			d.reportError(epoch, err)
		}
	})
	return nil
}

// DecodeQueueSize is the number of chunks submitted but not yet
// completed.
func (d *VideoDecoder) DecodeQueueSize() int { return d.queueSize() }

// Flush drains all buffered frames out of the decoder. The next chunk
// must be a key chunk.
func (d *VideoDecoder) Flush(ctx context.Context) error {
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
		return d.dec.flush(func(f *VideoFrame) {
			d.deliver(epoch, func() { d.output(f) })
		})
	})
}

// Reset discards queued work and returns the session to Unconfigured.
func (d *VideoDecoder) Reset() error {
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
func (d *VideoDecoder) Close() {
	d.invalidate()
	d.closeState()
	d.amu.Lock()
	if d.dec != nil {
		d.dec.close()
		d.dec = nil
	}
	d.amu.Unlock()
}

// videoDecBackend owns one decoding AVCodecContext.
type videoDecBackend struct {
	ctxPtr uintptr
	ctx    *avCodecContext
	cand   codecCandidate

	framePtr   uintptr
	scratchPtr uintptr
	pktPtr     uintptr
	conv       videoConverter

	needKey bool
}

func openVideoDecBackend(cfg VideoDecoderConfig, family CodecFamily, candidates []codecCandidate) (*videoDecBackend, error) {
	var lastErr error
	for _, cand := range candidates {
		b, err := newVideoDecBackend(cfg, cand)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no %s decoder opened: %v", ErrNotSupported, family, lastErr)
}

func newVideoDecBackend(cfg VideoDecoderConfig, cand codecCandidate) (*videoDecBackend, error) {
	codec := avcodecFindDecoderByName(cand.Name)
	if codec == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, cand.Name)
	}
	ctxPtr := avcodecAllocContext3(codec)
	if ctxPtr == 0 {
		return nil, &CodecError{Op: "decode", Msg: "context allocation failed"}
	}
	b := &videoDecBackend{
		ctxPtr:  ctxPtr,
		ctx:     (*avCodecContext)(unsafe.Pointer(ctxPtr)),
		cand:    cand,
		needKey: true,
	}

	b.ctx.Width = int32(cfg.Width)
	b.ctx.Height = int32(cfg.Height)
	b.ctx.PktTimebase = avRational{1, 1000000}
	if len(cfg.Description) > 0 {
		if err := setExtradata(b.ctx, cfg.Description); err != nil {
			avcodecFreeContext(&b.ctxPtr)
			return nil, err
		}
	}
	avOptSet(ctxPtr, "threads", "auto", 0)

	if ret := avcodecOpen2(ctxPtr, codec, 0); ret < 0 {
		avcodecFreeContext(&b.ctxPtr)
		return nil, &CodecError{Op: "decode", Msg: "open " + cand.Name, Err: avError(ret)}
	}

	b.framePtr = avFrameAlloc()
	b.scratchPtr = avFrameAlloc()
	b.pktPtr = avPacketAlloc()
	if b.framePtr == 0 || b.scratchPtr == 0 || b.pktPtr == 0 {
		b.close()
		return nil, &CodecError{Op: "decode", Msg: "scratch allocation failed"}
	}
	return b, nil
}

// Zero-padded trailer required after the description bytes; libav parsers
// read past the end of the buffer.
const avInputBufferPaddingSize = 64

// setExtradata copies a codec description into the context.
func setExtradata(ctx *avCodecContext, description []byte) error {
	buf := avMalloc(uintptr(len(description) + avInputBufferPaddingSize))
	if buf == 0 {
		return &CodecError{Op: "decode", Msg: "extradata allocation failed"}
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), len(description)+avInputBufferPaddingSize)
	copy(dst, description)
	for i := len(description); i < len(dst); i++ {
		dst[i] = 0
	}
	ctx.Extradata = buf
	ctx.ExtradataSize = int32(len(description))
	return nil
}

// submit decodes one chunk and emits every frame the codec hands back.
func (b *videoDecBackend) submit(chunk *EncodedVideoChunk, emit func(*VideoFrame)) error {
	if len(chunk.data) == 0 {
		return nil
	}
	pkt := (*avPacket)(unsafe.Pointer(b.pktPtr))
	pkt.Data = uintptr(unsafe.Pointer(&chunk.data[0]))
	pkt.Size = int32(len(chunk.data))
	pkt.Pts = chunk.Timestamp
	pkt.Dts = chunk.Timestamp
	pkt.Duration = chunk.Duration
	if chunk.Type == ChunkTypeKey {
		pkt.Flags = avPktFlagKey
	} else {
		pkt.Flags = 0
	}

	ret := avcodecSendPacket(b.ctxPtr, b.pktPtr)
	pkt.Data = 0
	pkt.Size = 0
	runtime.KeepAlive(chunk)
	if ret < 0 {
		return &CodecError{Op: "decode", Msg: "send packet", Err: avError(ret)}
	}
	return b.drain(emit)
}

func (b *videoDecBackend) drain(emit func(*VideoFrame)) error {
	frame := (*avFrame)(unsafe.Pointer(b.framePtr))
	scratch := (*avFrame)(unsafe.Pointer(b.scratchPtr))
	for {
		ret := avcodecReceiveFrame(b.ctxPtr, b.framePtr)
		if ret == avErrEAGAIN || ret == avErrEOF {
			return nil
		}
		if ret < 0 {
			return &CodecError{Op: "decode", Msg: "receive frame", Err: avError(ret)}
		}
		out, err := readVideoFrame(frame, &b.conv, scratch)
		avFrameUnref(b.framePtr)
		if err != nil {
			return err
		}
		emit(out)
	}
}

// flush drains buffered frames, then rearms the context for the next key
// chunk.
func (b *videoDecBackend) flush(emit func(*VideoFrame)) error {
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
	b.needKey = true
	return nil
}

func (b *videoDecBackend) close() {
	if b.framePtr != 0 {
		avFrameFree(&b.framePtr)
	}
	if b.scratchPtr != 0 {
		avFrameFree(&b.scratchPtr)
	}
	if b.pktPtr != 0 {
		avPacketFree(&b.pktPtr)
	}
	if b.ctxPtr != 0 {
		avcodecFreeContext(&b.ctxPtr)
	}
	b.conv.free()
}
