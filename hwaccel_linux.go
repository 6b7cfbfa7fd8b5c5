package webcodecs

// Hardware codec priority tables for Linux: NVIDIA (nvenc/cuvid), Intel
// QuickSync, VAAPI, then memory-to-memory V4L2 on SoCs.
var hwVideoEncoders = map[CodecFamily][]codecCandidate{
	FamilyH264: {
		{"h264_nvenc", TierNVENC},
		{"h264_qsv", TierQSV},
		{"h264_vaapi", TierVAAPI},
		{"h264_v4l2m2m", TierV4L2M2M},
	},
	FamilyHEVC: {
		{"hevc_nvenc", TierNVENC},
		{"hevc_qsv", TierQSV},
		{"hevc_vaapi", TierVAAPI},
	},
	FamilyVP8: {
		{"vp8_vaapi", TierVAAPI},
		{"vp8_v4l2m2m", TierV4L2M2M},
	},
	FamilyVP9: {
		{"vp9_vaapi", TierVAAPI},
		{"vp9_qsv", TierQSV},
	},
	FamilyAV1: {
		{"av1_nvenc", TierNVENC},
		{"av1_qsv", TierQSV},
		{"av1_vaapi", TierVAAPI},
	},
}

var hwVideoDecoders = map[CodecFamily][]codecCandidate{
	FamilyH264: {
		{"h264_cuvid", TierCUVID},
		{"h264_qsv", TierQSV},
		{"h264_v4l2m2m", TierV4L2M2M},
	},
	FamilyHEVC: {
		{"hevc_cuvid", TierCUVID},
		{"hevc_qsv", TierQSV},
		{"hevc_v4l2m2m", TierV4L2M2M},
	},
	FamilyVP8: {
		{"vp8_cuvid", TierCUVID},
		{"vp8_qsv", TierQSV},
		{"vp8_v4l2m2m", TierV4L2M2M},
	},
	FamilyVP9: {
		{"vp9_cuvid", TierCUVID},
		{"vp9_qsv", TierQSV},
		{"vp9_v4l2m2m", TierV4L2M2M},
	},
	FamilyAV1: {
		{"av1_cuvid", TierCUVID},
		{"av1_qsv", TierQSV},
	},
}
