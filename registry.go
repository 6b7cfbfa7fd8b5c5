// Capability registry.
//
// A read-only snapshot of which codec implementations the loaded libav
// build actually carries, computed once per process by existence checks
// (avcodec_find_encoder_by_name / avcodec_find_decoder_by_name over the
// union of all candidate tables). Nothing is opened during the probe.
package webcodecs

import "sync"

// Audio implementations in priority order. The native opus and vorbis
// encoders are experimental in FFmpeg, so the lib* wrappers come first.
var audioEncoders = map[CodecFamily][]codecCandidate{
	FamilyOpus:   {{"libopus", TierNone}, {"opus", TierNone}},
	FamilyAAC:    {{"aac", TierNone}},
	FamilyMP3:    {{"libmp3lame", TierNone}},
	FamilyFLAC:   {{"flac", TierNone}},
	FamilyVorbis: {{"libvorbis", TierNone}},
}

var audioDecoders = map[CodecFamily][]codecCandidate{
	FamilyOpus:   {{"libopus", TierNone}, {"opus", TierNone}},
	FamilyAAC:    {{"aac", TierNone}},
	FamilyMP3:    {{"mp3", TierNone}},
	FamilyFLAC:   {{"flac", TierNone}},
	FamilyVorbis: {{"vorbis", TierNone}, {"libvorbis", TierNone}},
}

func audioEncoderCandidates(family CodecFamily) []codecCandidate {
	return append([]codecCandidate{}, audioEncoders[family]...)
}

func audioDecoderCandidates(family CodecFamily) []codecCandidate {
	return append([]codecCandidate{}, audioDecoders[family]...)
}

type capabilityRegistry struct {
	encoders map[string]bool
	decoders map[string]bool
}

func (r *capabilityRegistry) hasEncoder(name string) bool { return r.encoders[name] }
func (r *capabilityRegistry) hasDecoder(name string) bool { return r.decoders[name] }

var (
	registryOnce sync.Once
	registry     *capabilityRegistry
)

// runtimeRegistry returns the process-wide capability snapshot. With the
// runtime unavailable the snapshot is empty and every lookup is false.
func runtimeRegistry() *capabilityRegistry {
	registryOnce.Do(func() {
		if loadAVLibs() != nil {
			registry = &capabilityRegistry{
				encoders: map[string]bool{},
				decoders: map[string]bool{},
			}
			return
		}
		registry = probeRegistry(
			func(name string) bool { return avcodecFindEncoderByName(name) != 0 },
			func(name string) bool { return avcodecFindDecoderByName(name) != 0 },
		)
	})
	return registry
}

// probeRegistry builds a snapshot from explicit probe functions. Split out
// so tests can fabricate availability without the native runtime.
func probeRegistry(probeEncoder, probeDecoder func(name string) bool) *capabilityRegistry {
	r := &capabilityRegistry{
		encoders: map[string]bool{},
		decoders: map[string]bool{},
	}
	families := []CodecFamily{
		FamilyH264, FamilyHEVC, FamilyVP8, FamilyVP9, FamilyAV1,
		FamilyOpus, FamilyAAC, FamilyMP3, FamilyFLAC, FamilyVorbis,
	}
	for _, f := range families {
		for _, c := range videoEncoderCandidates(f) {
			r.encoders[c.Name] = r.encoders[c.Name] || probeEncoder(c.Name)
		}
		for _, c := range videoDecoderCandidates(f) {
			r.decoders[c.Name] = r.decoders[c.Name] || probeDecoder(c.Name)
		}
		for _, c := range audioEncoderCandidates(f) {
			r.encoders[c.Name] = r.encoders[c.Name] || probeEncoder(c.Name)
		}
		for _, c := range audioDecoderCandidates(f) {
			r.decoders[c.Name] = r.decoders[c.Name] || probeDecoder(c.Name)
		}
	}
	return r
}
