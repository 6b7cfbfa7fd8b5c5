// Hardware codec selection.
//
// Each platform carries static priority tables of hardware codec
// implementations per codec family and direction. Selection filters those
// tables against the capability registry, a pure existence check: no codec
// or device is ever opened to answer a selection query.
package webcodecs

// HardwareTier identifies the acceleration backend of a codec
// implementation.
type HardwareTier int

const (
	TierNone HardwareTier = iota // software
	TierVideoToolbox
	TierNVENC
	TierCUVID
	TierQSV
	TierVAAPI
	TierAMF
	TierMediaFoundation
	TierV4L2M2M
)

func (t HardwareTier) String() string {
	switch t {
	case TierVideoToolbox:
		return "videotoolbox"
	case TierNVENC:
		return "nvenc"
	case TierCUVID:
		return "cuvid"
	case TierQSV:
		return "qsv"
	case TierVAAPI:
		return "vaapi"
	case TierAMF:
		return "amf"
	case TierMediaFoundation:
		return "mediafoundation"
	case TierV4L2M2M:
		return "v4l2m2m"
	default:
		return "software"
	}
}

// IsHardware reports whether the tier is a hardware backend.
func (t HardwareTier) IsHardware() bool { return t != TierNone }

// Preference expresses the caller's hardware acceleration preference.
type Preference int

const (
	// NoPreference tries hardware implementations first, software last.
	NoPreference Preference = iota
	// PreferHardware behaves like NoPreference.
	PreferHardware
	// PreferSoftware considers software implementations only.
	PreferSoftware
	// RequireHardware considers hardware implementations only; selection
	// fails when none is available.
	RequireHardware
)

func (p Preference) String() string {
	switch p {
	case PreferHardware:
		return "prefer-hardware"
	case PreferSoftware:
		return "prefer-software"
	case RequireHardware:
		return "require-hardware"
	default:
		return "no-preference"
	}
}

// codecCandidate names one concrete libav implementation.
type codecCandidate struct {
	Name string
	Tier HardwareTier
}

// Software implementations shared by all platforms, in priority order.
var swVideoEncoders = map[CodecFamily][]codecCandidate{
	FamilyH264: {{"libx264", TierNone}, {"libopenh264", TierNone}},
	FamilyHEVC: {{"libx265", TierNone}},
	FamilyVP8:  {{"libvpx", TierNone}},
	FamilyVP9:  {{"libvpx-vp9", TierNone}},
	FamilyAV1:  {{"libsvtav1", TierNone}, {"libaom-av1", TierNone}},
}

// Software decoders. AV1 prefers dav1d over libaom over the built-in.
var swVideoDecoders = map[CodecFamily][]codecCandidate{
	FamilyH264: {{"h264", TierNone}},
	FamilyHEVC: {{"hevc", TierNone}},
	FamilyVP8:  {{"vp8", TierNone}, {"libvpx", TierNone}},
	FamilyVP9:  {{"vp9", TierNone}, {"libvpx-vp9", TierNone}},
	FamilyAV1:  {{"libdav1d", TierNone}, {"libaom-av1", TierNone}, {"av1", TierNone}},
}

// videoEncoderCandidates returns the full candidate list for an encoder:
// platform hardware table first, software implementations last.
func videoEncoderCandidates(family CodecFamily) []codecCandidate {
	return append(append([]codecCandidate{}, hwVideoEncoders[family]...), swVideoEncoders[family]...)
}

// videoDecoderCandidates returns the full candidate list for a decoder.
func videoDecoderCandidates(family CodecFamily) []codecCandidate {
	return append(append([]codecCandidate{}, hwVideoDecoders[family]...), swVideoDecoders[family]...)
}

// selectCandidates orders and filters candidates by preference and
// availability. An empty result is not an error here; the caller decides
// whether an empty selection is fatal.
func selectCandidates(candidates []codecCandidate, pref Preference, available func(name string) bool) []codecCandidate {
	var out []codecCandidate
	switch pref {
	case PreferSoftware:
		for _, c := range candidates {
			if !c.Tier.IsHardware() && available(c.Name) {
				out = append(out, c)
			}
		}
	case RequireHardware:
		for _, c := range candidates {
			if c.Tier.IsHardware() && available(c.Name) {
				out = append(out, c)
			}
		}
	default:
		for _, c := range candidates {
			if c.Tier.IsHardware() && available(c.Name) {
				out = append(out, c)
			}
		}
		for _, c := range candidates {
			if !c.Tier.IsHardware() && available(c.Name) {
				out = append(out, c)
			}
		}
	}
	return out
}

// softwareOnly strips hardware candidates, preserving order. Used for the
// retry after a hardware open failure.
func softwareOnly(candidates []codecCandidate) []codecCandidate {
	var out []codecCandidate
	for _, c := range candidates {
		if !c.Tier.IsHardware() {
			out = append(out, c)
		}
	}
	return out
}
