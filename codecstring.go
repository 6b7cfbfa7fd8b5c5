package webcodecs

import "strings"

// CodecFamily identifies a logical codec independent of the concrete
// runtime implementation that will service it.
type CodecFamily int

const (
	FamilyUnknown CodecFamily = iota
	FamilyH264
	FamilyHEVC
	FamilyVP8
	FamilyVP9
	FamilyAV1
	FamilyOpus
	FamilyAAC
	FamilyMP3
	FamilyFLAC
	FamilyVorbis
)

func (f CodecFamily) String() string {
	switch f {
	case FamilyH264:
		return "h264"
	case FamilyHEVC:
		return "hevc"
	case FamilyVP8:
		return "vp8"
	case FamilyVP9:
		return "vp9"
	case FamilyAV1:
		return "av1"
	case FamilyOpus:
		return "opus"
	case FamilyAAC:
		return "aac"
	case FamilyMP3:
		return "mp3"
	case FamilyFLAC:
		return "flac"
	case FamilyVorbis:
		return "vorbis"
	default:
		return "unknown"
	}
}

// IsVideo returns true for video codec families.
func (f CodecFamily) IsVideo() bool {
	switch f {
	case FamilyH264, FamilyHEVC, FamilyVP8, FamilyVP9, FamilyAV1:
		return true
	default:
		return false
	}
}

// IsAudio returns true for audio codec families.
func (f CodecFamily) IsAudio() bool {
	switch f {
	case FamilyOpus, FamilyAAC, FamilyMP3, FamilyFLAC, FamilyVorbis:
		return true
	default:
		return false
	}
}

// ParseCodecString maps a WebCodecs codec string to its codec family.
// Raw libav encoder/decoder names are accepted as aliases so callers can
// pin a concrete implementation.
//
// Video: "avc1.PPCCLL"/"avc3.*" -> H.264, "hvc1.*"/"hev1.*" -> HEVC,
// "vp8", "vp09.*"/"vp9", "av01.*" -> AV1.
// Audio: "opus", "mp4a.40.2"/"aac", "mp3", "flac", "vorbis".
func ParseCodecString(codec string) CodecFamily {
	switch {
	case strings.HasPrefix(codec, "avc1") || strings.HasPrefix(codec, "avc3"):
		return FamilyH264
	case strings.HasPrefix(codec, "hvc1") || strings.HasPrefix(codec, "hev1"):
		return FamilyHEVC
	case codec == "vp8":
		return FamilyVP8
	case strings.HasPrefix(codec, "vp09") || codec == "vp9":
		return FamilyVP9
	case strings.HasPrefix(codec, "av01"):
		return FamilyAV1
	case codec == "opus" || codec == "libopus":
		return FamilyOpus
	case strings.HasPrefix(codec, "mp4a.40") || codec == "aac":
		return FamilyAAC
	case codec == "mp3" || codec == "libmp3lame":
		return FamilyMP3
	case codec == "flac":
		return FamilyFLAC
	case codec == "vorbis" || codec == "libvorbis":
		return FamilyVorbis
	}

	// libav implementation names used as aliases.
	switch {
	case codec == "libx264" || codec == "h264" || strings.HasPrefix(codec, "h264_"):
		return FamilyH264
	case codec == "libx265" || codec == "hevc" || strings.HasPrefix(codec, "hevc_"):
		return FamilyHEVC
	case codec == "libvpx" || strings.Contains(codec, "vp8"):
		return FamilyVP8
	case codec == "libvpx-vp9" || strings.Contains(codec, "vp9"):
		return FamilyVP9
	case codec == "libaom-av1" || codec == "libsvtav1" || codec == "libdav1d" ||
		strings.Contains(codec, "av1"):
		return FamilyAV1
	}

	return FamilyUnknown
}

// H264Profile constants matching the profile_idc values carried in
// "avc1.PPCCLL" codec strings.
const (
	H264ProfileBaseline = 66
	H264ProfileMain     = 77
	H264ProfileHigh     = 100
)

// ParseAVCProfile extracts the profile_idc from an "avc1.PPCCLL" codec
// string. Returns 0 when the string carries no parsable profile.
func ParseAVCProfile(codec string) int {
	if !strings.HasPrefix(codec, "avc1.") && !strings.HasPrefix(codec, "avc3.") {
		return 0
	}
	hexPart := codec[5:]
	if len(hexPart) != 6 {
		return 0
	}
	profile := 0
	for _, c := range hexPart[:2] {
		profile <<= 4
		switch {
		case c >= '0' && c <= '9':
			profile |= int(c - '0')
		case c >= 'a' && c <= 'f':
			profile |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			profile |= int(c-'A') + 10
		default:
			return 0
		}
	}
	return profile
}

// LatencyMode selects the encoder speed/quality preset family.
type LatencyMode int

const (
	// LatencyQuality favors compression efficiency (default).
	LatencyQuality LatencyMode = iota
	// LatencyRealtime favors low-delay output: zero lookahead, no
	// B-frames, fast presets.
	LatencyRealtime
)

func (m LatencyMode) String() string {
	if m == LatencyRealtime {
		return "realtime"
	}
	return "quality"
}

// BitrateMode selects the encoder rate control strategy.
type BitrateMode int

const (
	BitrateVariable BitrateMode = iota // Target average bitrate
	BitrateConstant                    // Capped, buffer-constrained bitrate
	BitrateQuantizer                   // Constant quality, bitrate floats
)

func (m BitrateMode) String() string {
	switch m {
	case BitrateConstant:
		return "constant"
	case BitrateQuantizer:
		return "quantizer"
	default:
		return "variable"
	}
}
