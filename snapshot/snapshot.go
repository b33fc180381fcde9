// Package snapshot turns decoded video pictures into JPEG payloads for
// forwarding. Output resolution follows the source unless a maximum width
// is configured, in which case frames are downscaled preserving aspect
// ratio before encoding.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultQuality balances snapshot fidelity against payload size for
// forwarding over constrained links.
const DefaultQuality = 90

// Encoder encodes pictures as JPEG. Safe for use by a single goroutine;
// the decode worker owns one.
type Encoder struct {
	quality  int
	maxWidth int
}

// NewEncoder creates an Encoder. quality is clamped to 1..100 with zero or
// less selecting DefaultQuality; maxWidth of zero or less means no
// downscaling.
func NewEncoder(quality, maxWidth int) *Encoder {
	if quality <= 0 {
		quality = DefaultQuality
	}
	if quality > 100 {
		quality = 100
	}
	if maxWidth < 0 {
		maxWidth = 0
	}
	return &Encoder{quality: quality, maxWidth: maxWidth}
}

// Encode returns img as JPEG bytes, downscaling first when the encoder has
// a maximum width and the picture exceeds it.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("snapshot: nil image")
	}
	if e.maxWidth > 0 && img.Bounds().Dx() > e.maxWidth {
		img = downscale(img, e.maxWidth)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("snapshot: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
