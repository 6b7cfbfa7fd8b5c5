// Configuration support queries.
//
// These answer from the capability registry alone. No codec is opened and
// no device is touched, so a positive answer means "an implementation
// exists", not "this exact configuration will open".
package webcodecs

// VideoEncoderSupport is the result of IsVideoEncoderConfigSupported.
type VideoEncoderSupport struct {
	Supported bool
	Config    VideoEncoderConfig
}

// VideoDecoderSupport is the result of IsVideoDecoderConfigSupported.
type VideoDecoderSupport struct {
	Supported bool
	Config    VideoDecoderConfig
}

// AudioEncoderSupport is the result of IsAudioEncoderConfigSupported.
type AudioEncoderSupport struct {
	Supported bool
	Config    AudioEncoderConfig
}

// AudioDecoderSupport is the result of IsAudioDecoderConfigSupported.
type AudioDecoderSupport struct {
	Supported bool
	Config    AudioDecoderConfig
}

// IsVideoEncoderConfigSupported reports whether some encoder
// implementation can serve the configuration.
func IsVideoEncoderConfigSupported(cfg VideoEncoderConfig) VideoEncoderSupport {
	out := VideoEncoderSupport{Config: cfg}
	family := ParseCodecString(cfg.Codec)
	if !family.IsVideo() || cfg.Width <= 0 || cfg.Height <= 0 {
		return out
	}
	candidates := selectCandidates(videoEncoderCandidates(family),
		cfg.HardwareAcceleration, runtimeRegistry().hasEncoder)
	out.Supported = len(candidates) > 0
	return out
}

// IsVideoDecoderConfigSupported reports whether some decoder
// implementation can serve the configuration.
func IsVideoDecoderConfigSupported(cfg VideoDecoderConfig) VideoDecoderSupport {
	out := VideoDecoderSupport{Config: cfg}
	family := ParseCodecString(cfg.Codec)
	if !family.IsVideo() {
		return out
	}
	candidates := selectCandidates(videoDecoderCandidates(family),
		cfg.HardwareAcceleration, runtimeRegistry().hasDecoder)
	out.Supported = len(candidates) > 0
	return out
}

// IsAudioEncoderConfigSupported reports whether some encoder
// implementation can serve the configuration.
func IsAudioEncoderConfigSupported(cfg AudioEncoderConfig) AudioEncoderSupport {
	out := AudioEncoderSupport{Config: cfg}
	family := ParseCodecString(cfg.Codec)
	if !family.IsAudio() || cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return out
	}
	candidates := selectCandidates(audioEncoderCandidates(family),
		NoPreference, runtimeRegistry().hasEncoder)
	out.Supported = len(candidates) > 0
	return out
}

// IsAudioDecoderConfigSupported reports whether some decoder
// implementation can serve the configuration.
func IsAudioDecoderConfigSupported(cfg AudioDecoderConfig) AudioDecoderSupport {
	out := AudioDecoderSupport{Config: cfg}
	family := ParseCodecString(cfg.Codec)
	if !family.IsAudio() {
		return out
	}
	candidates := selectCandidates(audioDecoderCandidates(family),
		NoPreference, runtimeRegistry().hasDecoder)
	out.Supported = len(candidates) > 0
	return out
}
