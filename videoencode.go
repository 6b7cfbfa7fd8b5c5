// Video encoder session.
package webcodecs

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// AlphaOption controls handling of alpha-carrying input frames.
type AlphaOption int

const (
	// AlphaDiscard drops the alpha plane before encoding.
	AlphaDiscard AlphaOption = iota
	// AlphaKeep encodes the alpha plane. Supported by the libvpx
	// encoders (YUVA420P input).
	AlphaKeep
)

// BitstreamFormat selects the H.264/HEVC output framing.
type BitstreamFormat int

const (
	// BitstreamAVC asks the encoder for out-of-band parameter sets: the
	// encoder's extradata is carried in the decoder description instead
	// of being repeated in the chunks. NAL framing stays whatever the
	// encoder emits.
	BitstreamAVC BitstreamFormat = iota
	// BitstreamAnnexB keeps parameter sets in-band.
	BitstreamAnnexB
)

// VideoColorSpace carries color metadata hints passed through to the
// encoder. Empty fields are left at the codec default.
type VideoColorSpace struct {
	Primaries string // "bt709", "bt470bg", "smpte170m", "bt2020"
	Transfer  string // "bt709", "smpte170m", "iec61966-2-1", "linear", "pq", "hlg"
	Matrix    string // "rgb", "bt709", "bt470bg", "smpte170m", "bt2020-ncl"
	FullRange bool
}

var colorPrimariesValues = map[string]int32{
	"bt709":     avColPriBT709,
	"bt470bg":   avColPriBT470BG,
	"smpte170m": avColPriSMPTE170,
	"bt2020":    avColPriBT2020,
}

var colorTransferValues = map[string]int32{
	"bt709":        avColTrcBT709,
	"smpte170m":    avColTrcSMPTE170,
	"iec61966-2-1": avColTrcSRGB,
	"linear":       avColTrcLinear,
	"pq":           avColTrcPQ,
	"hlg":          avColTrcHLG,
}

var colorMatrixValues = map[string]int32{
	"rgb":        avColSpcRGB,
	"bt709":      avColSpcBT709,
	"bt470bg":    avColSpcBT470BG,
	"smpte170m":  avColSpcSMPTE170,
	"bt2020-ncl": avColSpcBT2020,
}

// VideoEncoderConfig configures a VideoEncoder.
type VideoEncoderConfig struct {
	Codec     string // WebCodecs codec string or libav encoder name
	Width     int
	Height    int
	Bitrate   int64 // bits per second; 0 picks a resolution-based default
	Framerate float64

	BitrateMode          BitrateMode
	Quantizer            int // used by BitrateQuantizer; 0 means codec default
	LatencyMode          LatencyMode
	HardwareAcceleration Preference
	Format               BitstreamFormat
	Alpha                AlphaOption
	ColorSpace           *VideoColorSpace
}

// DefaultVideoEncoderConfig returns a reasonable starting configuration.
func DefaultVideoEncoderConfig(codec string, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:     codec,
		Width:     width,
		Height:    height,
		Bitrate:   int64(width * height * 4),
		Framerate: 30,
	}
}

// VideoEncodeOptions are per-frame encode knobs.
type VideoEncodeOptions struct {
	KeyFrame bool
}

// VideoEncoderInit carries the session callbacks.
//
// Output receives every encoded chunk; metadata carries the decoder
// configuration on the first key chunk. Error receives per-unit
// *CodecError failures. Dequeue, when set, fires after every completed
// unit. With Async set the session runs on its own worker goroutine and
// callbacks arrive on a dedicated delivery goroutine in FIFO order.
type VideoEncoderInit struct {
	Output  func(*EncodedVideoChunk, *EncodedVideoChunkMetadata)
	Error   func(error)
	Dequeue func()
	Async   bool
}

// VideoEncoder encodes VideoFrames into EncodedVideoChunks.
type VideoEncoder struct {
	session

	amu sync.Mutex
	enc *videoEncBackend
	cfg VideoEncoderConfig

	output func(*EncodedVideoChunk, *EncodedVideoChunkMetadata)
}

// NewVideoEncoder creates an unconfigured encoder session.
func NewVideoEncoder(init VideoEncoderInit) (*VideoEncoder, error) {
	if init.Output == nil {
		return nil, fmt.Errorf("video encoder: Output callback is required")
	}
	e := &VideoEncoder{output: init.Output}
	e.start(init.Async, init.Error, init.Dequeue)
	return e, nil
}

// Configure opens a codec backend for the configuration, replacing any
// previous one. Returns ErrNotSupported when no implementation can serve
// the configuration.
func (e *VideoEncoder) Configure(cfg VideoEncoderConfig) error {
	if err := e.beginConfigure(); err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrNotSupported, cfg.Width, cfg.Height)
	}
	family := ParseCodecString(cfg.Codec)
	if !family.IsVideo() {
		return fmt.Errorf("%w: %q is not a video codec", ErrNotSupported, cfg.Codec)
	}
	if err := loadAVLibs(); err != nil {
		return err
	}
	candidates := selectCandidates(videoEncoderCandidates(family),
		cfg.HardwareAcceleration, runtimeRegistry().hasEncoder)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no %s encoder available (%s)",
			ErrNotSupported, family, cfg.HardwareAcceleration)
	}

	backend, err := openVideoEncBackend(cfg, family, candidates)
	if err != nil {
		return err
	}

	e.invalidate()
	e.amu.Lock()
	if e.enc != nil {
		e.enc.close()
	}
	e.enc = backend
	e.cfg = cfg
	e.amu.Unlock()
	e.setConfigured()
	return nil
}

// Encode queues one frame. The frame is copied; the caller may close it
// immediately after Encode returns.
func (e *VideoEncoder) Encode(frame *VideoFrame, opts *VideoEncodeOptions) error {
	if err := e.requireConfigured(); err != nil {
		return err
	}
	f, err := frame.Clone()
	if err != nil {
		return err
	}
	var o VideoEncodeOptions
	if opts != nil {
		o = *opts
	}
	e.submit(func(epoch uint64) {
		defer e.completeUnit(epoch)
		e.amu.Lock()
		defer e.amu.Unlock()
		if e.enc == nil || !e.live(epoch) {
			return
		}
		err := e.enc.submit(f, o, func(c *EncodedVideoChunk, m *EncodedVideoChunkMetadata) {
			e.deliver(epoch, func() { e.output(c, m) })
		})
		if err != nil {
			e.reportError(epoch, err)
		}
	})
	return nil
}

// EncodeQueueSize is the number of frames submitted but not yet
// completed.
func (e *VideoEncoder) EncodeQueueSize() int { return e.queueSize() }

// Flush drains all queued frames and the codec's internal delay, then
// returns. All pending outputs are delivered before Flush returns. The
// session stays configured and keeps accepting frames afterwards.
func (e *VideoEncoder) Flush(ctx context.Context) error {
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
		return e.enc.flush(func(c *EncodedVideoChunk, m *EncodedVideoChunkMetadata) {
			e.deliver(epoch, func() { e.output(c, m) })
		})
	})
}

// Reset discards queued work and returns the session to Unconfigured.
// In-flight outputs are dropped.
func (e *VideoEncoder) Reset() error {
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
func (e *VideoEncoder) Close() {
	e.invalidate()
	e.closeState()
	e.amu.Lock()
	if e.enc != nil {
		e.enc.close()
		e.enc = nil
	}
	e.amu.Unlock()
}

// videoEncBackend owns one AVCodecContext and its scratch frames.
type videoEncBackend struct {
	ctxPtr uintptr
	ctx    *avCodecContext
	cand   codecCandidate
	family CodecFamily
	cfg    VideoEncoderConfig

	framePtr uintptr // caller-format scratch
	convPtr  uintptr // codec-format scratch
	pktPtr   uintptr
	conv     videoConverter

	description []byte
	descSent    bool
}

// openVideoEncBackend tries candidates in order; the first that opens
// wins. Hardware failures fall through to the software candidates at the
// tail of the list.
func openVideoEncBackend(cfg VideoEncoderConfig, family CodecFamily, candidates []codecCandidate) (*videoEncBackend, error) {
	var lastErr error
	for _, cand := range candidates {
		b, err := newVideoEncBackend(cfg, family, cand)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no %s encoder opened: %v", ErrNotSupported, family, lastErr)
}

func newVideoEncBackend(cfg VideoEncoderConfig, family CodecFamily, cand codecCandidate) (*videoEncBackend, error) {
	codec := avcodecFindEncoderByName(cand.Name)
	if codec == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, cand.Name)
	}
	ctxPtr := avcodecAllocContext3(codec)
	if ctxPtr == 0 {
		return nil, &CodecError{Op: "encode", Msg: "context allocation failed"}
	}
	b := &videoEncBackend{
		ctxPtr: ctxPtr,
		ctx:    (*avCodecContext)(unsafe.Pointer(ctxPtr)),
		cand:   cand,
		family: family,
		cfg:    cfg,
	}
	if err := b.open(codec); err != nil {
		avcodecFreeContext(&b.ctxPtr)
		return nil, err
	}

	b.framePtr = avFrameAlloc()
	b.convPtr = avFrameAlloc()
	b.pktPtr = avPacketAlloc()
	if b.framePtr == 0 || b.convPtr == 0 || b.pktPtr == 0 {
		b.close()
		return nil, &CodecError{Op: "encode", Msg: "scratch allocation failed"}
	}
	return b, nil
}

func (b *videoEncBackend) open(codec uintptr) error {
	cfg := b.cfg
	ctx := b.ctx

	ctx.Width = int32(cfg.Width)
	ctx.Height = int32(cfg.Height)
	ctx.TimeBase = avRational{1, 1000000}
	ctx.PixFmt = b.targetPixFmt()

	fr := cfg.Framerate
	if fr <= 0 {
		fr = 30
	}
	ctx.Framerate = avRational{int32(fr*1000 + 0.5), 1000}
	ctx.GopSize = int32(2 * fr)
	ctx.KeyintMin = int32(fr)
	if cfg.LatencyMode == LatencyRealtime {
		ctx.MaxBFrames = 0
		ctx.Flags |= avCodecFlagLowDelay
	}

	bitrate := cfg.Bitrate
	if bitrate <= 0 {
		bitrate = int64(cfg.Width * cfg.Height * 4)
	}
	switch cfg.BitrateMode {
	case BitrateConstant:
		ctx.BitRate = bitrate
		avOptSetInt(b.ctxPtr, "minrate", bitrate, 0)
		avOptSetInt(b.ctxPtr, "maxrate", bitrate, 0)
		avOptSetInt(b.ctxPtr, "bufsize", bitrate, 0)
	case BitrateQuantizer:
		// Rate floats; quality is pinned below per encoder.
		ctx.BitRate = 0
	default:
		ctx.BitRate = bitrate
	}

	if cs := cfg.ColorSpace; cs != nil {
		if v, ok := colorPrimariesValues[cs.Primaries]; ok {
			ctx.ColorPrimaries = v
		}
		if v, ok := colorTransferValues[cs.Transfer]; ok {
			ctx.ColorTrc = v
		}
		if v, ok := colorMatrixValues[cs.Matrix]; ok {
			ctx.Colorspace = v
		}
		if cs.FullRange {
			ctx.ColorRange = avColRangeJPEG
		} else {
			ctx.ColorRange = avColRangeMPEG
		}
	}

	// Out-of-band parameter sets for length-prefixed bitstreams.
	if (b.family == FamilyH264 || b.family == FamilyHEVC) && cfg.Format == BitstreamAVC {
		ctx.Flags |= avCodecFlagGlobalHeader
	}

	avOptSet(b.ctxPtr, "threads", "auto", 0)
	b.applyEncoderOptions()

	if ret := avcodecOpen2(b.ctxPtr, codec, 0); ret < 0 {
		return &CodecError{Op: "encode", Msg: "open " + b.cand.Name, Err: avError(ret)}
	}

	if ctx.ExtradataSize > 0 {
		b.description = make([]byte, ctx.ExtradataSize)
		copy(b.description, unsafe.Slice((*byte)(unsafe.Pointer(ctx.Extradata)), ctx.ExtradataSize))
	}
	return nil
}

func (b *videoEncBackend) targetPixFmt() int32 {
	if b.cfg.Alpha == AlphaKeep &&
		(b.cand.Name == "libvpx" || b.cand.Name == "libvpx-vp9") {
		return avPixFmtYUVA420P
	}
	return avPixFmtYUV420P
}

// applyEncoderOptions sets the per-implementation private options for the
// configured latency and bitrate modes.
func (b *videoEncBackend) applyEncoderOptions() {
	priv := b.ctx.PrivData
	realtime := b.cfg.LatencyMode == LatencyRealtime
	quantizer := int64(b.cfg.Quantizer)

	switch b.cand.Name {
	case "libx264", "libx265":
		if realtime {
			avOptSet(priv, "preset", "ultrafast", 0)
			avOptSet(priv, "tune", "zerolatency", 0)
		} else {
			avOptSet(priv, "preset", "medium", 0)
		}
		if b.cfg.BitrateMode == BitrateQuantizer && quantizer > 0 {
			avOptSetInt(priv, "crf", quantizer, 0)
		}
		if b.cfg.BitrateMode == BitrateConstant && b.cand.Name == "libx264" {
			avOptSet(priv, "nal-hrd", "cbr", 0)
		}
	case "h264_nvenc", "hevc_nvenc", "av1_nvenc":
		if realtime {
			avOptSet(priv, "preset", "p1", 0)
			avOptSet(priv, "tune", "ll", 0)
			avOptSetInt(priv, "delay", 0, 0)
			avOptSetInt(priv, "zerolatency", 1, 0)
		} else {
			avOptSet(priv, "preset", "p4", 0)
		}
	case "h264_videotoolbox", "hevc_videotoolbox":
		if realtime {
			avOptSetInt(priv, "realtime", 1, 0)
			avOptSetInt(priv, "prio_speed", 1, 0)
		}
	case "h264_qsv", "hevc_qsv", "vp9_qsv", "av1_qsv":
		if realtime {
			avOptSet(priv, "preset", "veryfast", 0)
		}
	case "libvpx", "libvpx-vp9":
		if realtime {
			avOptSet(priv, "deadline", "realtime", 0)
			avOptSetInt(priv, "cpu-used", 8, 0)
			avOptSetInt(priv, "lag-in-frames", 0, 0)
		} else {
			avOptSet(priv, "deadline", "good", 0)
			avOptSetInt(priv, "cpu-used", 2, 0)
		}
		if b.cfg.BitrateMode == BitrateQuantizer && quantizer > 0 {
			avOptSetInt(priv, "crf", quantizer, 0)
		}
	case "libaom-av1":
		if realtime {
			avOptSet(priv, "usage", "realtime", 0)
			avOptSetInt(priv, "cpu-used", 8, 0)
		} else {
			avOptSetInt(priv, "cpu-used", 4, 0)
		}
	case "libsvtav1":
		if realtime {
			avOptSetInt(priv, "preset", 10, 0)
		} else {
			avOptSetInt(priv, "preset", 7, 0)
		}
	}
}

// submit encodes one frame and emits every packet the codec hands back.
func (b *videoEncBackend) submit(f *VideoFrame, opts VideoEncodeOptions, emit func(*EncodedVideoChunk, *EncodedVideoChunkMetadata)) error {
	defer f.Close()

	frame := (*avFrame)(unsafe.Pointer(b.framePtr))
	if err := fillVideoFrame(frame, f); err != nil {
		return err
	}

	send := frame
	if frame.Format != b.ctx.PixFmt || frame.Width != b.ctx.Width || frame.Height != b.ctx.Height {
		if err := b.conv.ensure(frame.Width, frame.Height, frame.Format,
			b.ctx.Width, b.ctx.Height, b.ctx.PixFmt); err != nil {
			return err
		}
		dst := (*avFrame)(unsafe.Pointer(b.convPtr))
		avFrameUnref(b.convPtr)
		dst.Width = b.ctx.Width
		dst.Height = b.ctx.Height
		dst.Format = b.ctx.PixFmt
		if ret := avFrameGetBuffer(b.convPtr, 32); ret < 0 {
			return &CodecError{Op: "encode", Msg: "conversion buffer allocation failed", Err: avError(ret)}
		}
		if err := b.conv.scale(frame, dst); err != nil {
			return err
		}
		dst.Pts = frame.Pts
		send = dst
	}
	if opts.KeyFrame {
		send.PictType = avPictureTypeI
	} else {
		send.PictType = 0
	}

	if ret := avcodecSendFrame(b.ctxPtr, uintptr(unsafe.Pointer(send))); ret < 0 {
		return &CodecError{Op: "encode", Msg: "send frame", Err: avError(ret)}
	}
	return b.drain(emit)
}

// drain pulls packets until the codec wants more input.
func (b *videoEncBackend) drain(emit func(*EncodedVideoChunk, *EncodedVideoChunkMetadata)) error {
	pkt := (*avPacket)(unsafe.Pointer(b.pktPtr))
	for {
		ret := avcodecReceivePacket(b.ctxPtr, b.pktPtr)
		if ret == avErrEAGAIN || ret == avErrEOF {
			return nil
		}
		if ret < 0 {
			return &CodecError{Op: "encode", Msg: "receive packet", Err: avError(ret)}
		}

		typ := ChunkTypeDelta
		if pkt.Flags&avPktFlagKey != 0 {
			typ = ChunkTypeKey
		}
		data := unsafe.Slice((*byte)(unsafe.Pointer(pkt.Data)), pkt.Size)
		chunk := NewEncodedVideoChunk(typ, pkt.Pts, pkt.Duration, data)

		var meta *EncodedVideoChunkMetadata
		if typ == ChunkTypeKey && !b.descSent {
			b.descSent = true
			meta = &EncodedVideoChunkMetadata{DecoderConfig: &VideoDecoderConfig{
				Codec:       b.cfg.Codec,
				Width:       b.cfg.Width,
				Height:      b.cfg.Height,
				Description: append([]byte(nil), b.description...),
			}}
		}
		avPacketUnref(b.pktPtr)
		emit(chunk, meta)
	}
}

// flush drains the codec's delay completely, then rebuilds the context so
// the session keeps encoding afterwards. Encoders generally cannot be
// reused after end-of-stream, so a fresh context replaces the drained
// one.
func (b *videoEncBackend) flush(emit func(*EncodedVideoChunk, *EncodedVideoChunkMetadata)) error {
	if ret := avcodecSendFrame(b.ctxPtr, 0); ret < 0 && ret != avErrEOF {
		return &CodecError{Op: "encode", Msg: "send end-of-stream", Err: avError(ret)}
	}
	if err := b.drain(emit); err != nil {
		return err
	}
	return b.reopen()
}

// reopen replaces the drained context with a fresh one for the same
// candidate and configuration.
func (b *videoEncBackend) reopen() error {
	codec := avcodecFindEncoderByName(b.cand.Name)
	if codec == 0 {
		return fmt.Errorf("%w: %s", ErrCodecNotFound, b.cand.Name)
	}
	ctxPtr := avcodecAllocContext3(codec)
	if ctxPtr == 0 {
		return &CodecError{Op: "encode", Msg: "context allocation failed"}
	}
	avcodecFreeContext(&b.ctxPtr)
	b.ctxPtr = ctxPtr
	b.ctx = (*avCodecContext)(unsafe.Pointer(ctxPtr))
	return b.open(codec)
}

func (b *videoEncBackend) close() {
	if b.framePtr != 0 {
		avFrameFree(&b.framePtr)
	}
	if b.convPtr != 0 {
		avFrameFree(&b.convPtr)
	}
	if b.pktPtr != 0 {
		avPacketFree(&b.pktPtr)
	}
	if b.ctxPtr != 0 {
		avcodecFreeContext(&b.ctxPtr)
	}
	b.conv.free()
}
