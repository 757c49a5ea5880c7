package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ThumbnailSize is the longest side, in pixels, of a chat bubble thumbnail.
const ThumbnailSize = 160

// Thumbnail scales img so its longest side is at most maxSide, keeping the
// aspect ratio. Images already small enough are copied unscaled.
func Thumbnail(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > maxSide || h > maxSide {
		if w >= h {
			h = max(1, h*maxSide/w)
			w = maxSide
		} else {
			w = max(1, w*maxSide/h)
			h = maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ThumbnailDataURI renders a PNG thumbnail of img as a data URI suitable for
// an <img src> attribute.
func ThumbnailDataURI(img image.Image, maxSide int) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, maxSide)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
