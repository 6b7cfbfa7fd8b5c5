package webcodecs

import "testing"

// availSet builds an availability predicate from a name list.
func availSet(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func candidateNames(cands []codecCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSelectCandidates(t *testing.T) {
	table := []codecCandidate{
		{"h264_nvenc", TierNVENC},
		{"h264_vaapi", TierVAAPI},
		{"libx264", TierNone},
		{"libopenh264", TierNone},
	}

	tests := []struct {
		name  string
		pref  Preference
		avail func(string) bool
		want  []string
	}{
		{
			name:  "no preference orders hardware first",
			pref:  NoPreference,
			avail: availSet("h264_vaapi", "libx264"),
			want:  []string{"h264_vaapi", "libx264"},
		},
		{
			name:  "prefer hardware keeps software fallback",
			pref:  PreferHardware,
			avail: availSet("h264_nvenc", "h264_vaapi", "libx264"),
			want:  []string{"h264_nvenc", "h264_vaapi", "libx264"},
		},
		{
			name:  "prefer software drops hardware",
			pref:  PreferSoftware,
			avail: availSet("h264_nvenc", "libx264", "libopenh264"),
			want:  []string{"libx264", "libopenh264"},
		},
		{
			name:  "require hardware drops software",
			pref:  RequireHardware,
			avail: availSet("h264_nvenc", "libx264"),
			want:  []string{"h264_nvenc"},
		},
		{
			name:  "require hardware with none available is empty",
			pref:  RequireHardware,
			avail: availSet("libx264"),
			want:  nil,
		},
		{
			name:  "nothing available is empty, not an error",
			pref:  NoPreference,
			avail: availSet(),
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := candidateNames(selectCandidates(table, tt.pref, tt.avail))
			if !equalNames(got, tt.want) {
				t.Errorf("selectCandidates(%v) = %v, want %v", tt.pref, got, tt.want)
			}
		})
	}
}

func TestSoftwareOnly(t *testing.T) {
	table := []codecCandidate{
		{"h264_nvenc", TierNVENC},
		{"libx264", TierNone},
		{"libopenh264", TierNone},
	}
	got := candidateNames(softwareOnly(table))
	if !equalNames(got, []string{"libx264", "libopenh264"}) {
		t.Errorf("softwareOnly = %v", got)
	}
}

func TestVideoCandidateTables(t *testing.T) {
	// Software candidates terminate every list so fallback always has a
	// target on a full FFmpeg build.
	for _, f := range []CodecFamily{FamilyH264, FamilyHEVC, FamilyVP8, FamilyVP9, FamilyAV1} {
		enc := videoEncoderCandidates(f)
		if len(enc) == 0 || enc[len(enc)-1].Tier.IsHardware() {
			t.Errorf("%v: encoder candidates must end with software, got %v", f, candidateNames(enc))
		}
		dec := videoDecoderCandidates(f)
		if len(dec) == 0 || dec[len(dec)-1].Tier.IsHardware() {
			t.Errorf("%v: decoder candidates must end with software, got %v", f, candidateNames(dec))
		}
	}
}

func TestAV1DecoderPreferenceOrder(t *testing.T) {
	got := candidateNames(selectCandidates(videoDecoderCandidates(FamilyAV1),
		PreferSoftware, availSet("libdav1d", "libaom-av1", "av1")))
	want := []string{"libdav1d", "libaom-av1", "av1"}
	if !equalNames(got, want) {
		t.Errorf("AV1 software decoder order = %v, want %v", got, want)
	}
}

func TestProbeRegistry(t *testing.T) {
	r := probeRegistry(
		availSet("libx264", "libopus"),
		availSet("h264", "libopus"),
	)
	if !r.hasEncoder("libx264") || !r.hasEncoder("libopus") {
		t.Error("probed encoders missing")
	}
	if r.hasEncoder("h264_nvenc") {
		t.Error("unavailable encoder reported present")
	}
	if !r.hasDecoder("h264") {
		t.Error("probed decoder missing")
	}
	if r.hasDecoder("libx264") {
		t.Error("encoder-only name reported as decoder")
	}
}

func TestTierString(t *testing.T) {
	if TierNone.IsHardware() {
		t.Error("TierNone must not be hardware")
	}
	for _, tier := range []HardwareTier{TierVideoToolbox, TierNVENC, TierCUVID, TierQSV, TierVAAPI, TierAMF, TierMediaFoundation, TierV4L2M2M} {
		if !tier.IsHardware() {
			t.Errorf("%v must be hardware", tier)
		}
		if tier.String() == "software" {
			t.Errorf("tier %d has no name", tier)
		}
	}
}
