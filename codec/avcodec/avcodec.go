// Package avcodec implements the codec adapter interfaces on top of FFmpeg
// via go-astiav. It provides software H.264/H.265 video decoding with
// image conversion, and Opus audio decoding with resampling to the fixed
// 16-bit/mono/16kHz output format.
package avcodec

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/user/snapstream/codec"
	"github.com/user/snapstream/media"
)

var quietOnce sync.Once

// quietLib drops libav's own stderr chatter to errors only; decode noise is
// reported through our logger instead.
func quietLib() {
	quietOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelError)
	})
}

func codecID(c media.Codec) (astiav.CodecID, error) {
	switch c {
	case media.CodecH264:
		return astiav.CodecIDH264, nil
	case media.CodecH265:
		return astiav.CodecIDHevc, nil
	case media.CodecOpus:
		return astiav.CodecIDOpus, nil
	default:
		return astiav.CodecIDNone, fmt.Errorf("%w: %s", codec.ErrUnsupportedCodec, c)
	}
}

func openContext(c media.Codec, threads int) (*astiav.CodecContext, error) {
	quietLib()

	id, err := codecID(c)
	if err != nil {
		return nil, err
	}
	dec := astiav.FindDecoder(id)
	if dec == nil {
		return nil, fmt.Errorf("avcodec: no decoder for %s", c)
	}
	cc := astiav.AllocCodecContext(dec)
	if cc == nil {
		return nil, fmt.Errorf("avcodec: alloc context for %s", c)
	}
	cc.SetThreadCount(threads)
	if err := cc.Open(dec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("avcodec: open %s: %w", c, err)
	}
	return cc, nil
}
