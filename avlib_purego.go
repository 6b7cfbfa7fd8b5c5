//go:build darwin || linux

// FFmpeg libav bindings loaded dynamically at runtime via purego.
//
// Four shared libraries are loaded together: libavcodec (codec contexts,
// send/receive), libavutil (frames, options, error strings), libswscale
// (pixel conversion) and libswresample (audio resampling). Loading any one
// of them without the others is useless, so a single sync.Once guards all
// four and a single error describes the first failure.

package webcodecs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Mirrored struct layouts assume libavcodec 61 / libavutil 59 (FFmpeg 7.x).
const (
	avcodecMajorRequired = 61
	avutilMajorRequired  = 59
)

var (
	avLibOnce    sync.Once
	avLibInitErr error
	avLibLoaded  bool

	avcodecHandle    uintptr
	avutilHandle     uintptr
	swscaleHandle    uintptr
	swresampleHandle uintptr
)

// libavutil function pointers
var (
	avutilVersion          func() uint32
	avVersionInfo          func() uintptr
	avFrameAlloc           func() uintptr
	avFrameFree            func(pframe *uintptr)
	avFrameGetBuffer       func(frame uintptr, align int32) int32
	avFrameUnref           func(frame uintptr)
	avStrerror             func(errnum int32, buf uintptr, bufSize uintptr) int32
	avOptSet               func(obj uintptr, name string, val string, searchFlags int32) int32
	avOptSetInt            func(obj uintptr, name string, val int64, searchFlags int32) int32
	avMalloc               func(size uintptr) uintptr
	avFree                 func(ptr uintptr)
	avImageGetBufferSize   func(pixFmt, width, height, align int32) int32
	avImageCopyToBuffer    func(dst uintptr, dstSize int32, srcData uintptr, srcLinesize uintptr, pixFmt, width, height, align int32) int32
	avChannelLayoutDefault func(chl uintptr, nbChannels int32)
	avChannelLayoutCopy    func(dst, src uintptr) int32
	avChannelLayoutUninit  func(chl uintptr)
	avGetBytesPerSample    func(sampleFmt int32) int32
	avGetPixFmt            func(name string) int32
)

// libavcodec function pointers
var (
	avcodecVersion           func() uint32
	avcodecFindEncoderByName func(name string) uintptr
	avcodecFindDecoderByName func(name string) uintptr
	avcodecAllocContext3     func(codec uintptr) uintptr
	avcodecFreeContext       func(pctx *uintptr)
	avcodecOpen2             func(ctx, codec, options uintptr) int32
	avcodecSendFrame         func(ctx, frame uintptr) int32
	avcodecReceivePacket     func(ctx, pkt uintptr) int32
	avcodecSendPacket        func(ctx, pkt uintptr) int32
	avcodecReceiveFrame      func(ctx, frame uintptr) int32
	avcodecFlushBuffers      func(ctx uintptr)
	avPacketAlloc            func() uintptr
	avPacketFree             func(ppkt *uintptr)
	avPacketUnref            func(pkt uintptr)
)

// libswscale function pointers
var (
	swsGetContext  func(srcW, srcH, srcFmt, dstW, dstH, dstFmt, flags int32, srcFilter, dstFilter, param uintptr) uintptr
	swsScale       func(ctx uintptr, srcSlice uintptr, srcStride uintptr, srcSliceY, srcSliceH int32, dst uintptr, dstStride uintptr) int32
	swsFreeContext func(ctx uintptr)
)

// libswresample function pointers
var (
	swrAllocSetOpts2 func(pswr *uintptr, outChLayout uintptr, outSampleFmt, outSampleRate int32, inChLayout uintptr, inSampleFmt, inSampleRate int32, logOffset int32, logCtx uintptr) int32
	swrInit          func(swr uintptr) int32
	swrConvert       func(swr uintptr, out uintptr, outCount int32, in uintptr, inCount int32) int32
	swrFree          func(pswr *uintptr)
	swrGetDelay      func(swr uintptr, base int64) int64
)

// AVERROR(EAGAIN): errno values differ per platform.
var avErrEAGAIN = func() int32 {
	if runtime.GOOS == "darwin" {
		return -35
	}
	return -11
}()

// Pixel format values resolved by name once the runtime loads, so the
// bindings never depend on enum positions that move between builds.
var (
	avPixFmtYUV420P  int32 = -1
	avPixFmtYUVA420P int32 = -1
	avPixFmtYUV422P  int32 = -1
	avPixFmtYUV444P  int32 = -1
	avPixFmtNV12     int32 = -1
	avPixFmtRGBA     int32 = -1
	avPixFmtRGB0     int32 = -1
	avPixFmtBGRA     int32 = -1
	avPixFmtBGR0     int32 = -1
)

// loadAVLibs loads libavcodec, libavutil, libswscale and libswresample.
// Safe to call repeatedly; the result is computed once per process.
func loadAVLibs() error {
	avLibOnce.Do(func() {
		avLibInitErr = loadAVLibsOnce()
		if avLibInitErr == nil {
			avLibLoaded = true
		}
	})
	return avLibInitErr
}

// IsRuntimeAvailable reports whether the libav shared libraries loaded
// and match the supported major versions.
func IsRuntimeAvailable() bool {
	return loadAVLibs() == nil
}

// RuntimeVersion returns the loaded FFmpeg version string, or "" when the
// runtime is unavailable.
func RuntimeVersion() string {
	if loadAVLibs() != nil {
		return ""
	}
	return goString(avVersionInfo())
}

func loadAVLibsOnce() error {
	libs := []struct {
		name   string
		major  int
		handle *uintptr
	}{
		{"avutil", avutilMajorRequired, &avutilHandle},
		{"avcodec", avcodecMajorRequired, &avcodecHandle},
		{"swscale", 8, &swscaleHandle},
		{"swresample", 5, &swresampleHandle},
	}

	for _, lib := range libs {
		handle, err := dlopenFirst(avLibPaths(lib.name, lib.major))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
		}
		*lib.handle = handle
	}

	if err := loadAVSymbols(); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	if major := avcodecVersion() >> 16; major != avcodecMajorRequired {
		return fmt.Errorf("%w: libavcodec major %d, need %d",
			ErrRuntimeUnavailable, major, avcodecMajorRequired)
	}
	if major := avutilVersion() >> 16; major != avutilMajorRequired {
		return fmt.Errorf("%w: libavutil major %d, need %d",
			ErrRuntimeUnavailable, major, avutilMajorRequired)
	}

	resolvePixelFormats()
	return nil
}

func dlopenFirst(paths []string) (uintptr, error) {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return 0, errors.New("no candidate paths")
}

func avLibPaths(name string, major int) []string {
	var paths []string

	versioned := fmt.Sprintf("lib%s.so.%d", name, major)
	unversioned := fmt.Sprintf("lib%s.so", name)
	if runtime.GOOS == "darwin" {
		versioned = fmt.Sprintf("lib%s.%d.dylib", name, major)
		unversioned = fmt.Sprintf("lib%s.dylib", name)
	}

	// Environment variable override
	if envPath := os.Getenv("FFMPEG_LIB_PATH"); envPath != "" {
		paths = append(paths,
			filepath.Join(envPath, versioned),
			filepath.Join(envPath, unversioned),
		)
	}

	// Bare sonames first so the dynamic loader's own search order applies
	paths = append(paths, versioned, unversioned)

	// System paths
	switch runtime.GOOS {
	case "darwin":
		for _, dir := range []string{"/opt/homebrew/lib", "/usr/local/lib"} {
			paths = append(paths,
				filepath.Join(dir, versioned),
				filepath.Join(dir, unversioned),
			)
		}
	case "linux":
		for _, dir := range []string{
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/local/lib",
			"/usr/lib",
		} {
			paths = append(paths,
				filepath.Join(dir, versioned),
				filepath.Join(dir, unversioned),
			)
		}
	}

	return paths
}

func loadAVSymbols() (err error) {
	defer func() {
		// RegisterLibFunc panics on a missing symbol; a missing symbol in a
		// matching-major build means a crippled install.
		if r := recover(); r != nil {
			err = fmt.Errorf("symbol registration failed: %v", r)
		}
	}()

	// libavutil
	purego.RegisterLibFunc(&avutilVersion, avutilHandle, "avutil_version")
	purego.RegisterLibFunc(&avVersionInfo, avutilHandle, "av_version_info")
	purego.RegisterLibFunc(&avFrameAlloc, avutilHandle, "av_frame_alloc")
	purego.RegisterLibFunc(&avFrameFree, avutilHandle, "av_frame_free")
	purego.RegisterLibFunc(&avFrameGetBuffer, avutilHandle, "av_frame_get_buffer")
	purego.RegisterLibFunc(&avFrameUnref, avutilHandle, "av_frame_unref")
	purego.RegisterLibFunc(&avStrerror, avutilHandle, "av_strerror")
	purego.RegisterLibFunc(&avOptSet, avutilHandle, "av_opt_set")
	purego.RegisterLibFunc(&avOptSetInt, avutilHandle, "av_opt_set_int")
	purego.RegisterLibFunc(&avMalloc, avutilHandle, "av_malloc")
	purego.RegisterLibFunc(&avFree, avutilHandle, "av_free")
	purego.RegisterLibFunc(&avImageGetBufferSize, avutilHandle, "av_image_get_buffer_size")
	purego.RegisterLibFunc(&avImageCopyToBuffer, avutilHandle, "av_image_copy_to_buffer")
	purego.RegisterLibFunc(&avChannelLayoutDefault, avutilHandle, "av_channel_layout_default")
	purego.RegisterLibFunc(&avChannelLayoutCopy, avutilHandle, "av_channel_layout_copy")
	purego.RegisterLibFunc(&avChannelLayoutUninit, avutilHandle, "av_channel_layout_uninit")
	purego.RegisterLibFunc(&avGetBytesPerSample, avutilHandle, "av_get_bytes_per_sample")
	purego.RegisterLibFunc(&avGetPixFmt, avutilHandle, "av_get_pix_fmt")

	// libavcodec
	purego.RegisterLibFunc(&avcodecVersion, avcodecHandle, "avcodec_version")
	purego.RegisterLibFunc(&avcodecFindEncoderByName, avcodecHandle, "avcodec_find_encoder_by_name")
	purego.RegisterLibFunc(&avcodecFindDecoderByName, avcodecHandle, "avcodec_find_decoder_by_name")
	purego.RegisterLibFunc(&avcodecAllocContext3, avcodecHandle, "avcodec_alloc_context3")
	purego.RegisterLibFunc(&avcodecFreeContext, avcodecHandle, "avcodec_free_context")
	purego.RegisterLibFunc(&avcodecOpen2, avcodecHandle, "avcodec_open2")
	purego.RegisterLibFunc(&avcodecSendFrame, avcodecHandle, "avcodec_send_frame")
	purego.RegisterLibFunc(&avcodecReceivePacket, avcodecHandle, "avcodec_receive_packet")
	purego.RegisterLibFunc(&avcodecSendPacket, avcodecHandle, "avcodec_send_packet")
	purego.RegisterLibFunc(&avcodecReceiveFrame, avcodecHandle, "avcodec_receive_frame")
	purego.RegisterLibFunc(&avcodecFlushBuffers, avcodecHandle, "avcodec_flush_buffers")
	purego.RegisterLibFunc(&avPacketAlloc, avcodecHandle, "av_packet_alloc")
	purego.RegisterLibFunc(&avPacketFree, avcodecHandle, "av_packet_free")
	purego.RegisterLibFunc(&avPacketUnref, avcodecHandle, "av_packet_unref")

	// libswscale
	purego.RegisterLibFunc(&swsGetContext, swscaleHandle, "sws_getContext")
	purego.RegisterLibFunc(&swsScale, swscaleHandle, "sws_scale")
	purego.RegisterLibFunc(&swsFreeContext, swscaleHandle, "sws_freeContext")

	// libswresample
	purego.RegisterLibFunc(&swrAllocSetOpts2, swresampleHandle, "swr_alloc_set_opts2")
	purego.RegisterLibFunc(&swrInit, swresampleHandle, "swr_init")
	purego.RegisterLibFunc(&swrConvert, swresampleHandle, "swr_convert")
	purego.RegisterLibFunc(&swrFree, swresampleHandle, "swr_free")
	purego.RegisterLibFunc(&swrGetDelay, swresampleHandle, "swr_get_delay")

	return nil
}

func resolvePixelFormats() {
	avPixFmtYUV420P = avGetPixFmt("yuv420p")
	avPixFmtYUVA420P = avGetPixFmt("yuva420p")
	avPixFmtYUV422P = avGetPixFmt("yuv422p")
	avPixFmtYUV444P = avGetPixFmt("yuv444p")
	avPixFmtNV12 = avGetPixFmt("nv12")
	avPixFmtRGBA = avGetPixFmt("rgba")
	avPixFmtRGB0 = avGetPixFmt("rgb0")
	avPixFmtBGRA = avGetPixFmt("bgra")
	avPixFmtBGR0 = avGetPixFmt("bgr0")
}

// goString copies a NUL-terminated C string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

// avError converts a negative libav return code into a Go error carrying
// the av_strerror description.
func avError(code int32) error {
	buf := make([]byte, 128)
	if avStrerror(code, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))) < 0 {
		return fmt.Errorf("libav error %d", code)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return fmt.Errorf("%s (av error %d)", string(buf[:n]), code)
}
