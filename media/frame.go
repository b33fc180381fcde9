// Package media defines the encoded frame record that flows through the
// snapstream pipeline, from network ingestion through buffering to decode.
package media

import "fmt"

// DefaultLaneCapacity is the per-lane capacity of the frame buffer. Sized to
// absorb producer bursts without holding more than a couple of seconds of
// camera output: under overload the eviction policy matters more than depth.
const DefaultLaneCapacity = 20

// Kind distinguishes the two media lanes a frame can travel on.
type Kind uint8

const (
	KindVideo Kind = iota + 1
	KindAudio
)

// String returns the lowercase lane name for logging.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Codec identifies the compression format of a frame's payload.
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
	CodecOpus
)

// String returns the FFmpeg decoder name for the codec.
func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "hevc"
	case CodecOpus:
		return "opus"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Frame is one encoded media unit as received from the network layer: a
// complete video access unit or one audio packet. The producer creates it,
// the frame buffer owns it while queued, and the decode worker consumes it.
type Frame struct {
	Kind       Kind
	Codec      Codec
	Data       []byte
	Timestamp  int64 // capture time in milliseconds, monotonic per channel
	Channel    int   // camera multiplex channel
	IsKeyframe bool  // video only: decodable without prior reference frames
}
