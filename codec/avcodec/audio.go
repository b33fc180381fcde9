package avcodec

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/user/snapstream/codec"
	"github.com/user/snapstream/media"
)

// Fixed PCM output format expected by downstream consumers.
const (
	targetSampleRate   = 16000
	targetBytesPerSamp = 2 // s16 mono
)

// AudioDecoder decodes Opus packets and resamples every frame to
// 16-bit/mono/16kHz PCM.
type AudioDecoder struct {
	cc  *astiav.CodecContext
	swr *astiav.SoftwareResampleContext
	src *astiav.Frame
	dst *astiav.Frame
}

var _ codec.AudioDecoder = (*AudioDecoder)(nil)

// NewAudio opens an audio decoder and its resampler for c. Both are bound
// together: a decoder without the resampler cannot produce the fixed output
// format.
func NewAudio(c media.Codec) (codec.AudioDecoder, error) {
	if c != media.CodecOpus {
		return nil, fmt.Errorf("%w: %s is not an audio codec", codec.ErrUnsupportedCodec, c)
	}
	cc, err := openContext(c, 1)
	if err != nil {
		return nil, err
	}
	return &AudioDecoder{
		cc:  cc,
		swr: astiav.AllocSoftwareResampleContext(),
		src: astiav.AllocFrame(),
		dst: astiav.AllocFrame(),
	}, nil
}

// Decode sends one encoded packet and returns one resampled PCM chunk per
// decoded frame. An empty result with a nil error means the codec buffered
// the input.
func (d *AudioDecoder) Decode(pkt []byte) ([][]byte, error) {
	p := astiav.AllocPacket()
	defer p.Free()
	if err := p.FromData(pkt); err != nil {
		return nil, fmt.Errorf("avcodec: packet from data: %w", err)
	}
	if err := d.cc.SendPacket(p); err != nil {
		return nil, fmt.Errorf("avcodec: send packet: %w", err)
	}

	var chunks [][]byte
	for {
		if err := d.cc.ReceiveFrame(d.src); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				break
			}
			return chunks, fmt.Errorf("avcodec: receive frame: %w", err)
		}
		pcm, err := d.resample()
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, pcm)
	}
	return chunks, nil
}

func (d *AudioDecoder) resample() ([]byte, error) {
	d.dst.Unref()
	d.dst.SetChannelLayout(astiav.ChannelLayoutMono)
	d.dst.SetSampleFormat(astiav.SampleFormatS16)
	d.dst.SetSampleRate(targetSampleRate)
	if err := d.swr.ConvertFrame(d.src, d.dst); err != nil {
		return nil, fmt.Errorf("avcodec: resample: %w", err)
	}
	b, err := d.dst.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("avcodec: frame bytes: %w", err)
	}
	// The plane buffer may carry alignment padding past the real samples.
	if n := d.dst.NbSamples() * targetBytesPerSamp; n <= len(b) {
		b = b[:n]
	}
	return b, nil
}

// Close frees every libav allocation owned by the decoder.
func (d *AudioDecoder) Close() {
	d.dst.Free()
	d.src.Free()
	d.swr.Free()
	d.cc.Free()
}
