package webcodecs

import "testing"

func TestConfigSupportedRejectsWrongKind(t *testing.T) {
	if IsVideoEncoderConfigSupported(DefaultVideoEncoderConfig("opus", 640, 360)).Supported {
		t.Error("audio codec reported as supported video encoder")
	}
	if IsVideoEncoderConfigSupported(DefaultVideoEncoderConfig("garbage", 640, 360)).Supported {
		t.Error("unknown codec reported as supported")
	}
	if IsVideoEncoderConfigSupported(DefaultVideoEncoderConfig("vp8", 0, 360)).Supported {
		t.Error("zero width reported as supported")
	}
	if IsVideoDecoderConfigSupported(VideoDecoderConfig{Codec: "mp4a.40.2"}).Supported {
		t.Error("audio codec reported as supported video decoder")
	}
	if IsAudioEncoderConfigSupported(AudioEncoderConfig{Codec: "avc1.42E01E", SampleRate: 48000, Channels: 2}).Supported {
		t.Error("video codec reported as supported audio encoder")
	}
	if IsAudioEncoderConfigSupported(AudioEncoderConfig{Codec: "opus", SampleRate: 48000, Channels: 0}).Supported {
		t.Error("zero channels reported as supported")
	}
	if IsAudioDecoderConfigSupported(AudioDecoderConfig{Codec: "vp09.00.10.08"}).Supported {
		t.Error("video codec reported as supported audio decoder")
	}
}

func TestConfigSupportedEchoesConfig(t *testing.T) {
	cfg := DefaultVideoEncoderConfig("avc1.42E01E", 1280, 720)
	out := IsVideoEncoderConfigSupported(cfg)
	if out.Config.Codec != cfg.Codec || out.Config.Width != cfg.Width || out.Config.Height != cfg.Height {
		t.Errorf("config not echoed: %+v", out.Config)
	}
}

func TestConfigSupportedWithRuntime(t *testing.T) {
	if !IsRuntimeAvailable() {
		t.Skip("libav runtime not available")
	}
	// The native H.264 decoder ships in every libavcodec build.
	if !IsVideoDecoderConfigSupported(VideoDecoderConfig{Codec: "avc1.42E01E"}).Supported {
		t.Error("H.264 decode not reported as supported")
	}
	if IsVideoDecoderConfigSupported(VideoDecoderConfig{
		Codec:                "avc1.42E01E",
		HardwareAcceleration: PreferSoftware,
	}).Config.Codec != "avc1.42E01E" {
		t.Error("config not echoed")
	}
}
