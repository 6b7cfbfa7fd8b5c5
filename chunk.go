// Encoded sample containers.
package webcodecs

import "fmt"

// ChunkType classifies an encoded chunk.
type ChunkType int

const (
	// ChunkTypeKey chunks are decodable without prior chunks.
	ChunkTypeKey ChunkType = iota
	// ChunkTypeDelta chunks depend on previously decoded chunks.
	ChunkTypeDelta
)

func (t ChunkType) String() string {
	if t == ChunkTypeKey {
		return "key"
	}
	return "delta"
}

// EncodedVideoChunk is an immutable compressed video sample. The payload
// is copied on construction and never aliased out.
type EncodedVideoChunk struct {
	Type      ChunkType
	Timestamp int64 // microseconds
	Duration  int64 // microseconds, 0 when unknown

	data []byte
}

// NewEncodedVideoChunk copies data into a new chunk.
func NewEncodedVideoChunk(typ ChunkType, timestamp, duration int64, data []byte) *EncodedVideoChunk {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &EncodedVideoChunk{Type: typ, Timestamp: timestamp, Duration: duration, data: buf}
}

// ByteLength returns the payload size.
func (c *EncodedVideoChunk) ByteLength() int { return len(c.data) }

// CopyTo copies the payload into dst.
func (c *EncodedVideoChunk) CopyTo(dst []byte) (int, error) {
	if len(dst) < len(c.data) {
		return 0, fmt.Errorf("destination is %d bytes, need %d", len(dst), len(c.data))
	}
	return copy(dst, c.data), nil
}

// EncodedAudioChunk is an immutable compressed audio sample.
type EncodedAudioChunk struct {
	Type      ChunkType
	Timestamp int64 // microseconds
	Duration  int64 // microseconds, 0 when unknown

	data []byte
}

// NewEncodedAudioChunk copies data into a new chunk.
func NewEncodedAudioChunk(typ ChunkType, timestamp, duration int64, data []byte) *EncodedAudioChunk {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &EncodedAudioChunk{Type: typ, Timestamp: timestamp, Duration: duration, data: buf}
}

// ByteLength returns the payload size.
func (c *EncodedAudioChunk) ByteLength() int { return len(c.data) }

// CopyTo copies the payload into dst.
func (c *EncodedAudioChunk) CopyTo(dst []byte) (int, error) {
	if len(dst) < len(c.data) {
		return 0, fmt.Errorf("destination is %d bytes, need %d", len(dst), len(c.data))
	}
	return copy(dst, c.data), nil
}

// EncodedVideoChunkMetadata accompanies encoder output. DecoderConfig is
// populated on the first key chunk only and carries the encoder's
// extradata as the description a matching decoder needs.
type EncodedVideoChunkMetadata struct {
	DecoderConfig *VideoDecoderConfig
}

// EncodedAudioChunkMetadata accompanies audio encoder output.
type EncodedAudioChunkMetadata struct {
	DecoderConfig *AudioDecoderConfig
}
