package voucher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultSizeBudget is the target decoded size of a stored voucher (500 KiB).
	DefaultSizeBudget int64 = 500 << 10
	// DefaultMaxDimension bounds the longer side of a re-encoded voucher.
	DefaultMaxDimension = 1200

	// MaxPixels caps the area of an image accepted for decoding (50 MP).
	MaxPixels = 50_000_000

	initialQuality = 90
	qualityStep    = 10
	minQuality     = 10
)

// Normalized is the outcome of Normalize.
type Normalized struct {
	Image      EncodedImage
	Compressed bool
	// Quality is the JPEG quality used, 0 when the original was kept.
	Quality int
	// Width and Height are set only for re-encoded images.
	Width  int
	Height int
}

// Normalizer bounds the size and dimensions of stored vouchers.
type Normalizer struct {
	budget       int64
	maxDimension int
}

// NewNormalizer returns a Normalizer; non-positive arguments select defaults.
func NewNormalizer(budget int64, maxDimension int) *Normalizer {
	if budget <= 0 {
		budget = DefaultSizeBudget
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Normalizer{budget: budget, maxDimension: maxDimension}
}

// Normalize keeps the original when it fits the budget. Otherwise it fits
// the image within maxDimension preserving aspect ratio and re-encodes it as
// JPEG, lowering quality from 90 in steps of 10 until the result fits or
// quality 10 is reached. A re-encode that ends up larger than the original
// is discarded in favour of the original. Documents are always kept as-is.
func (n *Normalizer) Normalize(ctx context.Context, mediaType string, raw []byte) (Normalized, error) {
	original := Encode(mediaType, raw)
	if mediaType == MediaTypePDF || original.ByteSize() <= n.budget {
		return Normalized{Image: original}, nil
	}

	img, err := decodeBounded(raw)
	if err != nil {
		return Normalized{}, err
	}
	img = flatten(fit(img, n.maxDimension))

	var encoded EncodedImage
	quality := initialQuality
	for {
		if ctx.Err() != nil {
			return Normalized{}, interrupted(ctx)
		}
		encoded, err = encodeJPEG(img, quality)
		if err != nil {
			return Normalized{}, fmt.Errorf("Normalize: encode at quality %d: %w", quality, err)
		}
		if encoded.ByteSize() <= n.budget || quality <= minQuality {
			break
		}
		quality -= qualityStep
	}

	if encoded.ByteSize() > int64(len(raw)) {
		return Normalized{Image: original}, nil
	}
	b := img.Bounds()
	return Normalized{
		Image:      encoded,
		Compressed: true,
		Quality:    quality,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}, nil
}

// decodeBounded checks the header dimensions before decoding, so an image
// that compresses well but expands past MaxPixels is never allocated.
func decodeBounded(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecodeFailure)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailure, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return img, nil
}

// fit scales img down so neither side exceeds limit.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}
	nw, nh := limit, limit
	if w >= h {
		nh = scaleSide(h, limit, w)
	} else {
		nw = scaleSide(w, limit, h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func scaleSide(side, target, longest int) int {
	v := (side*target + longest/2) / longest
	if v < 1 {
		return 1
	}
	return v
}

// flatten composites img over white so transparent areas do not turn black
// in JPEG.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Over)
	return dst
}

func encodeJPEG(img image.Image, quality int) (EncodedImage, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return Encode(MediaTypeJPEG, buf.Bytes()), nil
}
