package avcodec

import (
	"errors"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"

	"github.com/user/snapstream/codec"
	"github.com/user/snapstream/media"
)

// VideoDecoder decodes H.264/H.265 access units. Each incoming unit must be
// complete (one packet per call), which is what camera streams deliver.
type VideoDecoder struct {
	cc      *astiav.CodecContext
	first   *astiav.Frame // first picture of the most recent non-empty batch
	scratch *astiav.Frame
	hasPic  bool

	// conversion fallback for pixel formats without a native Go image type
	sws    *astiav.SoftwareScaleContext
	swsW   int
	swsH   int
	swsFmt astiav.PixelFormat
	rgba   *astiav.Frame
}

var _ codec.VideoDecoder = (*VideoDecoder)(nil)

// NewVideo opens a video decoder for c. When hwaccel is set the codec
// context runs with automatic threading, matching how the hardware-capable
// deployments drive the decoder; the decode itself stays in software.
func NewVideo(c media.Codec, hwaccel bool) (codec.VideoDecoder, error) {
	if c != media.CodecH264 && c != media.CodecH265 {
		return nil, fmt.Errorf("%w: %s is not a video codec", codec.ErrUnsupportedCodec, c)
	}
	threads := 1
	if hwaccel {
		threads = 0 // auto
	}
	cc, err := openContext(c, threads)
	if err != nil {
		return nil, err
	}
	return &VideoDecoder{
		cc:      cc,
		first:   astiav.AllocFrame(),
		scratch: astiav.AllocFrame(),
	}, nil
}

// Decode sends one encoded unit and drains every complete picture the codec
// produces, returning the count. The first picture of the batch is retained
// for Picture; the rest only update decoder reference state.
func (d *VideoDecoder) Decode(pkt []byte) (int, error) {
	p := astiav.AllocPacket()
	defer p.Free()
	if err := p.FromData(pkt); err != nil {
		return 0, fmt.Errorf("avcodec: packet from data: %w", err)
	}
	if err := d.cc.SendPacket(p); err != nil {
		return 0, fmt.Errorf("avcodec: send packet: %w", err)
	}

	n := 0
	for {
		dst := d.scratch
		if n == 0 {
			dst = d.first
		}
		if err := d.cc.ReceiveFrame(dst); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				break
			}
			return n, fmt.Errorf("avcodec: receive frame: %w", err)
		}
		n++
	}
	if n > 0 {
		d.hasPic = true
	}
	return n, nil
}

// Picture renders the retained picture as a Go image. Formats with a native
// Go representation (yuv420p and friends) convert directly; anything else
// goes through a software scale to RGBA.
func (d *VideoDecoder) Picture() (image.Image, error) {
	if !d.hasPic {
		return nil, errors.New("avcodec: no decoded picture")
	}
	fd := d.first.Data()
	if img, err := fd.GuessImageFormat(); err == nil {
		if err := fd.ToImage(img); err == nil {
			return img, nil
		}
	}
	return d.pictureRGBA()
}

func (d *VideoDecoder) pictureRGBA() (image.Image, error) {
	w, h, pf := d.first.Width(), d.first.Height(), d.first.PixelFormat()
	if d.sws == nil || d.swsW != w || d.swsH != h || d.swsFmt != pf {
		if d.sws != nil {
			d.sws.Free()
			d.sws = nil
		}
		sws, err := astiav.CreateSoftwareScaleContext(w, h, pf, w, h,
			astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return nil, fmt.Errorf("avcodec: create scale context: %w", err)
		}
		d.sws = sws
		d.swsW, d.swsH, d.swsFmt = w, h, pf
	}
	if d.rgba == nil {
		d.rgba = astiav.AllocFrame()
	}
	d.rgba.Unref()
	if err := d.sws.ScaleFrame(d.first, d.rgba); err != nil {
		return nil, fmt.Errorf("avcodec: scale frame: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := d.rgba.Data().ToImage(img); err != nil {
		return nil, fmt.Errorf("avcodec: frame to image: %w", err)
	}
	return img, nil
}

// Close frees every libav allocation owned by the decoder.
func (d *VideoDecoder) Close() {
	if d.sws != nil {
		d.sws.Free()
	}
	if d.rgba != nil {
		d.rgba.Free()
	}
	d.scratch.Free()
	d.first.Free()
	d.cc.Free()
}
