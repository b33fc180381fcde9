// Package codec defines the adapter boundary between the decode worker and
// the underlying codec library. The worker binds one decoder per media kind
// on first use and feeds it complete encoded units; implementations own all
// decoder state and resources behind these interfaces.
package codec

import (
	"errors"
	"image"

	"github.com/user/snapstream/media"
)

// ErrUnsupportedCodec is returned by factories for codec identifiers they
// cannot decode.
var ErrUnsupportedCodec = errors.New("codec: unsupported codec")

// VideoDecoder decodes encoded video units. Decode always performs the full
// decode so reference-frame state stays correct even when the caller is not
// going to use the output; conversion cost is paid only when Picture is
// called.
type VideoDecoder interface {
	// Decode feeds one encoded unit and returns how many complete pictures
	// it produced. Zero is not an error: codecs buffer frames internally.
	Decode(pkt []byte) (int, error)
	// Picture renders the first picture of the most recent non-empty batch.
	// Only valid after a Decode call that returned a positive count.
	Picture() (image.Image, error)
	Close()
}

// AudioDecoder decodes encoded audio units straight to target-format PCM
// (16-bit signed, mono, 16 kHz), one chunk per decoded frame.
type AudioDecoder interface {
	Decode(pkt []byte) ([][]byte, error)
	Close()
}

// VideoFactory constructs a video decoder for a codec, optionally preferring
// hardware-assisted operation when available.
type VideoFactory func(c media.Codec, hwaccel bool) (VideoDecoder, error)

// AudioFactory constructs an audio decoder (including its resampler) for a
// codec.
type AudioFactory func(c media.Codec) (AudioDecoder, error)
