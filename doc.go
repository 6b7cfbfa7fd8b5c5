// Package webcodecs provides browser-standard media codec sessions in Go,
// backed by the FFmpeg libav runtime loaded dynamically via purego.
//
// Key pieces include:
//   - VideoEncoder/VideoDecoder and AudioEncoder/AudioDecoder sessions with
//     the W3C WebCodecs lifecycle (configure, encode/decode, flush, reset, close)
//   - VideoFrame/AudioData sample containers and EncodedVideoChunk/
//     EncodedAudioChunk compressed containers
//   - Hardware encoder/decoder selection with automatic software fallback
//   - Pixel format scaling (libswscale) and audio resampling (libswresample)
//     between caller formats and codec-required formats
//
// # Architecture
//
//	Encode: VideoFrame/AudioData -> session state machine -> codec backend
//	        (format conversion, avcodec send/receive) -> chunk callback
//	Decode: EncodedVideoChunk/EncodedAudioChunk -> session state machine ->
//	        codec backend -> frame/data callback
//
// Sessions run synchronously on the caller's goroutine by default. With
// Init.Async set, each session owns one worker goroutine and callbacks are
// delivered in FIFO order from a dedicated delivery goroutine; the worker
// never blocks on callback consumption.
//
// # Native Libraries
//
// Bindings load libavcodec, libavutil, libswscale and libswresample at
// runtime. Set FFMPEG_LIB_PATH to the directory containing the shared
// libraries to override the default search order. Availability is exposed
// through IsRuntimeAvailable; sessions fail to configure when the runtime
// is missing.
//
// # Supported Codecs
//
// Video: H.264, HEVC, VP8, VP9, AV1 (hardware tiers where the platform
// provides them, software always available as fallback).
// Audio: Opus, AAC, MP3, FLAC, Vorbis.
// Availability depends on how the local FFmpeg build was configured.
package webcodecs
