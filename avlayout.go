package webcodecs

// Memory layout mirrors for the libav structs we touch directly.
//
// libavcodec 61 / libavutil 59 (FFmpeg 7.x) on 64-bit platforms. Contexts,
// frames and packets are always allocated and freed by libav itself; the
// mirrors below cover the public prefix of each struct, which is all the
// bindings read or write. loadAVLibs rejects any other major version before
// these layouts are used.

// avRational mirrors AVRational.
type avRational struct {
	Num int32
	Den int32
}

// avChannelLayout mirrors AVChannelLayout. The union member is the native
// order mask; custom channel maps are never produced by these bindings.
type avChannelLayout struct {
	Order      int32
	NbChannels int32
	Mask       uint64
	Opaque     uintptr
}

// avPacket mirrors AVPacket.
type avPacket struct {
	Buf           uintptr
	Pts           int64
	Dts           int64
	Data          uintptr
	Size          int32
	StreamIndex   int32
	Flags         int32
	_             [4]byte
	SideData      uintptr
	SideDataElems int32
	_             [4]byte
	Duration      int64
	Pos           int64
	Opaque        uintptr
	OpaqueRef     uintptr
	TimeBase      avRational
}

// avFrame mirrors AVFrame.
type avFrame struct {
	Data                [8]uintptr
	Linesize            [8]int32
	ExtendedData        uintptr
	Width               int32
	Height              int32
	NbSamples           int32
	Format              int32
	PictType            int32
	SampleAspectRatio   avRational
	_                   [4]byte
	Pts                 int64
	PktDts              int64
	TimeBase            avRational
	Quality             int32
	_                   [4]byte
	Opaque              uintptr
	RepeatPict          int32
	SampleRate          int32
	Buf                 [8]uintptr
	ExtendedBuf         uintptr
	NbExtendedBuf       int32
	_                   [4]byte
	SideData            uintptr
	NbSideData          int32
	Flags               int32
	ColorRange          int32
	ColorPrimaries      int32
	ColorTrc            int32
	Colorspace          int32
	ChromaLocation      int32
	_                   [4]byte
	BestEffortTimestamp int64
	Metadata            uintptr
	DecodeErrorFlags    int32
	_                   [4]byte
	HwFramesCtx         uintptr
	OpaqueRef           uintptr
	CropTop             uintptr
	CropBottom          uintptr
	CropLeft            uintptr
	CropRight           uintptr
	PrivateRef          uintptr
	ChLayout            avChannelLayout
	Duration            int64
}

// avCodecContext mirrors the prefix of AVCodecContext through the audio
// block. Rate-control and threading fields past this prefix are set through
// av_opt_set on the context instead of direct stores.
type avCodecContext struct {
	AvClass        uintptr
	LogLevelOffset int32
	CodecType      int32
	Codec          uintptr
	CodecID        int32
	CodecTag       uint32
	PrivData       uintptr
	Internal       uintptr
	Opaque         uintptr
	BitRate        int64
	Flags          int32
	Flags2         int32
	Extradata      uintptr
	ExtradataSize  int32
	TimeBase       avRational
	PktTimebase    avRational
	Framerate      avRational
	Delay          int32

	// Video.
	Width                int32
	Height               int32
	CodedWidth           int32
	CodedHeight          int32
	SampleAspectRatio    avRational
	PixFmt               int32
	SwPixFmt             int32
	ColorPrimaries       int32
	ColorTrc             int32
	Colorspace           int32
	ColorRange           int32
	ChromaSampleLocation int32
	FieldOrder           int32
	Refs                 int32
	HasBFrames           int32
	SliceFlags           int32
	_                    [4]byte
	DrawHorizBand        uintptr
	GetFormat            uintptr
	MaxBFrames           int32
	BQuantFactor         float32
	BQuantOffset         float32
	IQuantFactor         float32
	IQuantOffset         float32
	LumiMasking          float32
	TemporalCplxMasking  float32
	SpatialCplxMasking   float32
	PMasking             float32
	DarkMasking          float32
	NsseWeight           int32
	MeCmp                int32
	MeSubCmp             int32
	MbCmp                int32
	IldctCmp             int32
	DiaSize              int32
	LastPredictorCount   int32
	MePreCmp             int32
	PreDiaSize           int32
	MeSubpelQuality      int32
	MeRange              int32
	MbDecision           int32
	IntraMatrix          uintptr
	InterMatrix          uintptr
	ChromaIntraMatrix    uintptr
	IntraDcPrecision     int32
	MbLmin               int32
	MbLmax               int32
	BidirRefine          int32
	KeyintMin            int32
	GopSize              int32
	Mv0Threshold         int32
	Slices               int32

	// Audio.
	SampleRate       int32
	SampleFmt        int32
	ChLayout         avChannelLayout
	FrameSize        int32
	BlockAlign       int32
	Cutoff           int32
	AudioServiceType int32
	RequestSampleFmt int32
	InitialPadding   int32
	TrailingPadding  int32
	_                [4]byte
	SeekPreroll      int64
}

const (
	avMediaTypeVideo = 0
	avMediaTypeAudio = 1

	avNoptsValue = int64(-0x8000000000000000)

	avPictureTypeI = 1

	avPktFlagKey = 1

	avCodecFlagLowDelay     = 1 << 19
	avCodecFlagGlobalHeader = 1 << 22

	avOptSearchChildren = 1
)

// AVERROR_EOF = FFERRTAG('E','O','F',' ').
const avErrEOF = -541478725

// Sample formats (AVSampleFormat).
const (
	avSampleFmtU8   = 0
	avSampleFmtS16  = 1
	avSampleFmtS32  = 2
	avSampleFmtFlt  = 3
	avSampleFmtU8P  = 5
	avSampleFmtS16P = 6
	avSampleFmtS32P = 7
	avSampleFmtFltP = 8
)

// Color metadata (AVColorRange / AVColorPrimaries / AVColorTransferCharacteristic / AVColorSpace).
const (
	avColRangeMPEG = 1
	avColRangeJPEG = 2

	avColPriBT709    = 1
	avColPriBT470BG  = 5
	avColPriSMPTE170 = 6
	avColPriBT2020   = 9

	avColTrcBT709    = 1
	avColTrcSMPTE170 = 6
	avColTrcLinear   = 8
	avColTrcSRGB     = 13
	avColTrcPQ       = 16
	avColTrcHLG      = 18

	avColSpcRGB      = 0
	avColSpcBT709    = 1
	avColSpcBT470BG  = 5
	avColSpcSMPTE170 = 6
	avColSpcBT2020   = 9
)

// sws flags.
const swsBilinear = 2
