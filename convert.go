// Format conversion between caller-facing containers and codec-native
// frames. Converter contexts are created lazily on the first mismatching
// unit, cached, and rebuilt when the source parameters change.
package webcodecs

import (
	"fmt"
	"unsafe"
)

// pixelFormatToAV maps container formats to libav pixel format values.
// Valid only after the runtime loaded.
func pixelFormatToAV(p PixelFormat) int32 {
	switch p {
	case PixelFormatI420:
		return avPixFmtYUV420P
	case PixelFormatI420A:
		return avPixFmtYUVA420P
	case PixelFormatI422:
		return avPixFmtYUV422P
	case PixelFormatI444:
		return avPixFmtYUV444P
	case PixelFormatNV12:
		return avPixFmtNV12
	case PixelFormatRGBA:
		return avPixFmtRGBA
	case PixelFormatRGBX:
		return avPixFmtRGB0
	case PixelFormatBGRA:
		return avPixFmtBGRA
	case PixelFormatBGRX:
		return avPixFmtBGR0
	default:
		return -1
	}
}

// avToPixelFormat maps a libav pixel format back to a container format.
func avToPixelFormat(fmt int32) (PixelFormat, bool) {
	switch fmt {
	case avPixFmtYUV420P:
		return PixelFormatI420, true
	case avPixFmtYUVA420P:
		return PixelFormatI420A, true
	case avPixFmtYUV422P:
		return PixelFormatI422, true
	case avPixFmtYUV444P:
		return PixelFormatI444, true
	case avPixFmtNV12:
		return PixelFormatNV12, true
	case avPixFmtRGBA:
		return PixelFormatRGBA, true
	case avPixFmtRGB0:
		return PixelFormatRGBX, true
	case avPixFmtBGRA:
		return PixelFormatBGRA, true
	case avPixFmtBGR0:
		return PixelFormatBGRX, true
	default:
		return 0, false
	}
}

// videoConverter wraps a cached libswscale context.
type videoConverter struct {
	ctx                uintptr
	srcW, srcH, srcFmt int32
	dstW, dstH, dstFmt int32
}

// ensure (re)builds the context when the conversion key changed.
func (c *videoConverter) ensure(srcW, srcH, srcFmt, dstW, dstH, dstFmt int32) error {
	if c.ctx != 0 &&
		c.srcW == srcW && c.srcH == srcH && c.srcFmt == srcFmt &&
		c.dstW == dstW && c.dstH == dstH && c.dstFmt == dstFmt {
		return nil
	}
	c.free()
	ctx := swsGetContext(srcW, srcH, srcFmt, dstW, dstH, dstFmt, swsBilinear, 0, 0, 0)
	if ctx == 0 {
		return &CodecError{Op: "convert", Msg: fmt.Sprintf(
			"cannot convert %dx%d fmt %d to %dx%d fmt %d", srcW, srcH, srcFmt, dstW, dstH, dstFmt)}
	}
	c.ctx = ctx
	c.srcW, c.srcH, c.srcFmt = srcW, srcH, srcFmt
	c.dstW, c.dstH, c.dstFmt = dstW, dstH, dstFmt
	return nil
}

// scale converts src into dst. Both frames must have buffers allocated.
func (c *videoConverter) scale(src, dst *avFrame) error {
	rows := swsScale(c.ctx,
		uintptr(unsafe.Pointer(&src.Data[0])), uintptr(unsafe.Pointer(&src.Linesize[0])),
		0, src.Height,
		uintptr(unsafe.Pointer(&dst.Data[0])), uintptr(unsafe.Pointer(&dst.Linesize[0])))
	if rows <= 0 {
		return &CodecError{Op: "convert", Msg: "sws_scale produced no output"}
	}
	return nil
}

func (c *videoConverter) free() {
	if c.ctx != 0 {
		swsFreeContext(c.ctx)
		c.ctx = 0
	}
}

// audioConverter wraps a cached libswresample context.
type audioConverter struct {
	ctx                    uintptr
	inFmt, inRate, inCh    int32
	outFmt, outRate, outCh int32
}

func (c *audioConverter) ensure(inFmt, inRate, inCh, outFmt, outRate, outCh int32) error {
	if c.ctx != 0 &&
		c.inFmt == inFmt && c.inRate == inRate && c.inCh == inCh &&
		c.outFmt == outFmt && c.outRate == outRate && c.outCh == outCh {
		return nil
	}
	c.free()

	var inLayout, outLayout avChannelLayout
	avChannelLayoutDefault(uintptr(unsafe.Pointer(&inLayout)), inCh)
	avChannelLayoutDefault(uintptr(unsafe.Pointer(&outLayout)), outCh)

	var ctx uintptr
	ret := swrAllocSetOpts2(&ctx,
		uintptr(unsafe.Pointer(&outLayout)), outFmt, outRate,
		uintptr(unsafe.Pointer(&inLayout)), inFmt, inRate,
		0, 0)
	if ret < 0 || ctx == 0 {
		return &CodecError{Op: "convert", Msg: "swr_alloc_set_opts2 failed", Err: avError(ret)}
	}
	if ret := swrInit(ctx); ret < 0 {
		swrFree(&ctx)
		return &CodecError{Op: "convert", Msg: "swr_init failed", Err: avError(ret)}
	}
	c.ctx = ctx
	c.inFmt, c.inRate, c.inCh = inFmt, inRate, inCh
	c.outFmt, c.outRate, c.outCh = outFmt, outRate, outCh
	return nil
}

// convert resamples inCount samples read from the in plane pointer array
// (uint8_t**, may be nil to drain) into freshly allocated output planes.
// Returns one plane per channel for planar output, a single plane
// otherwise, trimmed to the produced sample count.
func (c *audioConverter) convert(in uintptr, inCount int32) ([][]byte, int, error) {
	outCap := (inCount*c.outRate+c.inRate-1)/c.inRate + int32(swrGetDelay(c.ctx, int64(c.outRate))) + 64

	bps := avGetBytesPerSample(c.outFmt)
	planar := c.outFmt >= avSampleFmtU8P
	nPlanes := int32(1)
	planeBytes := outCap * bps * c.outCh
	if planar {
		nPlanes = c.outCh
		planeBytes = outCap * bps
	}

	planes := make([][]byte, nPlanes)
	ptrs := make([]uintptr, nPlanes)
	for i := range planes {
		planes[i] = make([]byte, planeBytes)
		ptrs[i] = uintptr(unsafe.Pointer(&planes[i][0]))
	}

	got := swrConvert(c.ctx, uintptr(unsafe.Pointer(&ptrs[0])), outCap, in, inCount)
	if got < 0 {
		return nil, 0, &CodecError{Op: "convert", Msg: "swr_convert failed", Err: avError(got)}
	}

	trim := got * bps
	if !planar {
		trim = got * bps * c.outCh
	}
	for i := range planes {
		planes[i] = planes[i][:trim]
	}
	return planes, int(got), nil
}

// drain flushes buffered samples out of the resampler.
func (c *audioConverter) drain() ([][]byte, int, error) {
	return c.convert(0, 0)
}

func (c *audioConverter) free() {
	if c.ctx != 0 {
		swrFree(&c.ctx)
	}
}

// copyRows copies a tightly-packed plane into stride-padded native memory.
func copyRows(dst uintptr, dstStride int32, src []byte, srcStride, rows int) {
	out := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(dstStride)*rows)
	for r := 0; r < rows; r++ {
		copy(out[r*int(dstStride):], src[r*srcStride:(r+1)*srcStride])
	}
}

// fillVideoFrame copies a VideoFrame into a native frame in the frame's
// own pixel format, allocating the buffer.
func fillVideoFrame(frame *avFrame, f *VideoFrame) error {
	avFrameUnref(uintptr(unsafe.Pointer(frame)))
	frame.Width = int32(f.Width)
	frame.Height = int32(f.Height)
	frame.Format = pixelFormatToAV(f.Format)
	if ret := avFrameGetBuffer(uintptr(unsafe.Pointer(frame)), 32); ret < 0 {
		return &CodecError{Op: "encode", Msg: "frame buffer allocation failed", Err: avError(ret)}
	}
	dims := f.Format.planeDims(f.Width, f.Height)
	for i, d := range dims {
		copyRows(frame.Data[i], frame.Linesize[i], f.plane(i), d.width, d.height)
	}
	frame.Pts = f.Timestamp
	return nil
}

// readVideoFrame copies a decoded native frame into a tightly-packed
// VideoFrame, converting through the cached converter when the decoder's
// pixel format has no container representation.
func readVideoFrame(frame *avFrame, conv *videoConverter, scratch *avFrame) (*VideoFrame, error) {
	src := frame
	format, ok := avToPixelFormat(frame.Format)
	if !ok {
		// Decoder-native formats outside the container set normalize
		// to I420.
		if err := conv.ensure(frame.Width, frame.Height, frame.Format,
			frame.Width, frame.Height, avPixFmtYUV420P); err != nil {
			return nil, err
		}
		avFrameUnref(uintptr(unsafe.Pointer(scratch)))
		scratch.Width = frame.Width
		scratch.Height = frame.Height
		scratch.Format = avPixFmtYUV420P
		if ret := avFrameGetBuffer(uintptr(unsafe.Pointer(scratch)), 32); ret < 0 {
			return nil, &CodecError{Op: "decode", Msg: "frame buffer allocation failed", Err: avError(ret)}
		}
		if err := conv.scale(frame, scratch); err != nil {
			return nil, err
		}
		src = scratch
		format = PixelFormatI420
	}

	width, height := int(src.Width), int(src.Height)
	avFmt := pixelFormatToAV(format)
	size := avImageGetBufferSize(avFmt, src.Width, src.Height, 1)
	if size <= 0 {
		return nil, &CodecError{Op: "decode", Msg: "cannot size output frame"}
	}
	buf := make([]byte, size)
	ret := avImageCopyToBuffer(uintptr(unsafe.Pointer(&buf[0])), size,
		uintptr(unsafe.Pointer(&src.Data[0])), uintptr(unsafe.Pointer(&src.Linesize[0])),
		avFmt, src.Width, src.Height, 1)
	if ret < 0 {
		return nil, &CodecError{Op: "decode", Msg: "frame copy failed", Err: avError(ret)}
	}

	ts := frame.Pts
	if ts == avNoptsValue {
		ts = frame.BestEffortTimestamp
	}
	out := &VideoFrame{
		Format:    format,
		Width:     width,
		Height:    height,
		Timestamp: ts,
		data:      buf[:ret],
	}
	if frame.Duration > 0 {
		out.Duration = frame.Duration
	}
	return out, nil
}
