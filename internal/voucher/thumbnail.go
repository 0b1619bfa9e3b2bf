package voucher

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// DefaultThumbnailSize is the side of the square preview, in pixels.
const DefaultThumbnailSize = 150

const thumbnailQuality = 80

// Thumbnail center-crops src to a square and scales it to size x size.
// The result depends only on the input pixels.
func Thumbnail(src EncodedImage, size int) (EncodedImage, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	data, err := src.Decode()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	img, err := decodeBounded(data)
	if err != nil {
		return "", err
	}

	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if side == 0 {
		return "", fmt.Errorf("%w: empty image", ErrDecodeFailure)
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, xdraw.Over, nil)

	thumb, err := encodeJPEG(dst, thumbnailQuality)
	if err != nil {
		return "", fmt.Errorf("Thumbnail: encode: %w", err)
	}
	return thumb, nil
}
