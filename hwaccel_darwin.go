package webcodecs

// VideoToolbox is the only hardware backend on macOS. It exposes encoders
// as named libav implementations; decoding goes through the software
// decoders (the hwaccel-based VideoToolbox decode path has no standalone
// decoder name to probe).
var hwVideoEncoders = map[CodecFamily][]codecCandidate{
	FamilyH264: {{"h264_videotoolbox", TierVideoToolbox}},
	FamilyHEVC: {{"hevc_videotoolbox", TierVideoToolbox}},
}

var hwVideoDecoders = map[CodecFamily][]codecCandidate{}
